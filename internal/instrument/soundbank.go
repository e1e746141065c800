package instrument

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/youpy/go-riff"
)

// MelodicBank is the SF2 bank holding the General MIDI melodic programs.
const MelodicBank = 0

const phdrRecordSize = 38

// Preset is one program of an SF2 sound bank.
type Preset struct {
	Name    string
	Program uint16
	Bank    uint16
}

// SoundBank is the parsed header of an SF2 file.
type SoundBank struct {
	Path    string
	Name    string
	Presets []Preset
}

// LoadSoundBank opens and parses an SF2 file.
func LoadSoundBank(path string) (*SoundBank, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("soundbank: %w", err)
	}
	defer f.Close()

	sb, err := ParseSoundBank(f)
	if err != nil {
		return nil, err
	}
	sb.Path = path
	return sb, nil
}

// ParseSoundBank reads the RIFF "sfbk" structure and its preset headers.
func ParseSoundBank(r riff.RIFFReader) (sb *SoundBank, err error) {
	// go-riff panics on truncated input instead of returning an error.
	defer func() {
		if rec := recover(); rec != nil {
			sb = nil
			err = fmt.Errorf("soundbank: truncated riff data: %v", rec)
		}
	}()

	top, err := riff.NewReader(r).Read()
	if err != nil {
		return nil, fmt.Errorf("soundbank: %w", err)
	}
	if string(top.FileType) != "sfbk" {
		return nil, fmt.Errorf("soundbank: riff form %q is not sfbk", top.FileType)
	}

	lists := make(map[string][]byte)
	for _, ch := range top.Chunks {
		if string(ch.ChunkID) != "LIST" || ch.ChunkSize < 4 {
			continue
		}
		var kind [4]byte
		if n, err := ch.ReadAt(kind[:], 0); n < len(kind) {
			return nil, fmt.Errorf("soundbank: read LIST type: %w", err)
		}
		// Sample data is never needed to resolve presets.
		if string(kind[:]) == "sdta" {
			lists["sdta"] = nil
			continue
		}
		data, err := io.ReadAll(ch)
		if err != nil {
			return nil, fmt.Errorf("soundbank: read LIST: %w", err)
		}
		if len(data) < 4 {
			continue
		}
		lists[string(data[:4])] = data[4:]
	}
	for _, name := range []string{"INFO", "sdta", "pdta"} {
		if _, ok := lists[name]; !ok {
			return nil, fmt.Errorf("soundbank: missing %s list", name)
		}
	}

	sb = &SoundBank{}
	for id, body := range subChunks(lists["INFO"]) {
		if id == "INAM" {
			sb.Name = cString(body)
		}
	}

	phdr, ok := subChunks(lists["pdta"])["phdr"]
	if !ok {
		return nil, fmt.Errorf("soundbank: missing phdr chunk")
	}
	if len(phdr)%phdrRecordSize != 0 || len(phdr) < phdrRecordSize {
		return nil, fmt.Errorf("soundbank: phdr size %d is not a multiple of %d", len(phdr), phdrRecordSize)
	}
	// The last record is the EOP terminator.
	n := len(phdr)/phdrRecordSize - 1
	for i := 0; i < n; i++ {
		rec := phdr[i*phdrRecordSize : (i+1)*phdrRecordSize]
		sb.Presets = append(sb.Presets, Preset{
			Name:    cString(rec[:20]),
			Program: binary.LittleEndian.Uint16(rec[20:22]),
			Bank:    binary.LittleEndian.Uint16(rec[22:24]),
		})
	}
	return sb, nil
}

// Preset looks up a program in the given bank.
func (sb *SoundBank) Preset(bank uint16, program uint8) (Preset, bool) {
	for _, p := range sb.Presets {
		if p.Bank == bank && p.Program == uint16(program) {
			return p, true
		}
	}
	return Preset{}, false
}

// subChunks splits a LIST body into its [id][size][data] children.
func subChunks(body []byte) map[string][]byte {
	out := make(map[string][]byte)
	for len(body) >= 8 {
		id := string(body[:4])
		size := int(binary.LittleEndian.Uint32(body[4:8]))
		body = body[8:]
		if size > len(body) {
			break
		}
		out[id] = body[:size]
		if size%2 == 1 && size < len(body) {
			size++
		}
		body = body[size:]
	}
	return out
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return strings.TrimSpace(string(b))
}
