package instrument

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PreferredOutputs are synth ports picked first when no port is configured.
var PreferredOutputs = []string{"FluidSynth", "TiMidity", "Synth", "Sampler"}

// ExcludedOutputs are virtual/system ports that are never auto-selected.
var ExcludedOutputs = []string{"Midi Through", "Through Port", "Dummy"}

const (
	ccBankSelectMSB = 0
	ccBankSelectLSB = 32
	ccAllNotesOff   = 123
)

// OutputLister is the part of a MIDI driver the sampler needs.
type OutputLister interface {
	Outs() ([]drivers.Out, error)
}

// SamplerConfig selects the sound bank and the synth output port.
type SamplerConfig struct {
	SoundBank string
	Port      string // exact name or case-insensitive substring; empty auto-selects
}

// Sampler plays notes on an external SF2 synth through a MIDI output port.
type Sampler struct {
	mu        sync.Mutex
	out       drivers.Out
	send      func(msg midi.Message) error
	soundBank string
	portName  string
	logger    *slog.Logger
}

// NewSampler checks the sound bank and opens the synth port. It returns
// ErrSoundAssetMissing or ErrEngineStart (wrapped) on failure.
func NewSampler(drv OutputLister, cfg SamplerConfig, logger *slog.Logger) (*Sampler, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.SoundBank == "" {
		return nil, fmt.Errorf("%w: no path configured", ErrSoundAssetMissing)
	}
	if _, err := os.Stat(cfg.SoundBank); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSoundAssetMissing, err)
	}

	outs, err := drv.Outs()
	if err != nil {
		return nil, fmt.Errorf("%w: list outputs: %w", ErrEngineStart, err)
	}
	out, err := pickOutput(outs, cfg.Port)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrEngineStart, err)
	}
	if err := out.Open(); err != nil {
		return nil, fmt.Errorf("%w: open %q: %w", ErrEngineStart, out.String(), err)
	}
	send, err := midi.SendTo(out)
	if err != nil {
		_ = out.Close()
		return nil, fmt.Errorf("%w: send to %q: %w", ErrEngineStart, out.String(), err)
	}

	logger.Info("sampler: output connected", "port", out.String(), "soundbank", cfg.SoundBank)
	return &Sampler{
		out:       out,
		send:      send,
		soundBank: cfg.SoundBank,
		portName:  out.String(),
		logger:    logger,
	}, nil
}

// Port returns the connected output port name.
func (s *Sampler) Port() string { return s.portName }

// SetPatch loads program from the melodic bank of the sound bank and selects
// it on channel. Failures are ErrPatchLoad; the sampler stays attached.
func (s *Sampler) SetPatch(program, channel uint8) error {
	sb, err := LoadSoundBank(s.soundBank)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPatchLoad, err)
	}
	p, ok := sb.Preset(MelodicBank, program)
	if !ok {
		return fmt.Errorf("%w: program %d not in bank %d of %q", ErrPatchLoad, program, MelodicBank, sb.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	msgs := []midi.Message{
		midi.ControlChange(channel, ccBankSelectMSB, MelodicBank),
		midi.ControlChange(channel, ccBankSelectLSB, 0),
		midi.ProgramChange(channel, program),
	}
	for _, msg := range msgs {
		if err := s.send(msg); err != nil {
			return fmt.Errorf("%w: %w", ErrPatchLoad, err)
		}
	}
	s.logger.Info("sampler: patch loaded", "program", program, "preset", p.Name, "bank", sb.Name)
	return nil
}

func (s *Sampler) NoteOn(pitch, velocity, channel uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(midi.NoteOn(channel, pitch, velocity))
}

func (s *Sampler) NoteOff(pitch, channel uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.send(midi.NoteOff(channel, pitch))
}

// Close silences channel and closes the output port.
func (s *Sampler) Close(channel uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	err := s.send(midi.ControlChange(channel, ccAllNotesOff, 0))
	if s.out != nil {
		err = errors.Join(err, s.out.Close())
		s.out = nil
	}
	s.logger.Info("sampler: output closed", "port", s.portName)
	return err
}

// ListOutputs returns the names of all usable output ports.
func ListOutputs(drv OutputLister) ([]string, error) {
	outs, err := drv.Outs()
	if err != nil {
		return nil, err
	}
	var names []string
	for _, o := range outs {
		if !excluded(o.String()) {
			names = append(names, o.String())
		}
	}
	return names, nil
}

func pickOutput(outs []drivers.Out, want string) (drivers.Out, error) {
	names := make([]string, len(outs))
	for i, o := range outs {
		names[i] = o.String()
	}
	name, err := pickOutputName(names, want)
	if err != nil {
		return nil, err
	}
	for _, o := range outs {
		if o.String() == name {
			return o, nil
		}
	}
	return nil, fmt.Errorf("output %q not found", name)
}

// pickOutputName applies the port selection rules: an exact configured name,
// then a configured substring, then the preferred synths, then the only
// remaining port.
func pickOutputName(names []string, want string) (string, error) {
	var usable []string
	for _, n := range names {
		if !excluded(n) {
			usable = append(usable, n)
		}
	}

	if want != "" {
		for _, n := range names {
			if n == want {
				return n, nil
			}
		}
		for _, n := range usable {
			if containsCI(n, want) {
				return n, nil
			}
		}
		return "", fmt.Errorf("output %q not found", want)
	}

	for _, pat := range PreferredOutputs {
		for _, n := range usable {
			if containsCI(n, pat) {
				return n, nil
			}
		}
	}
	switch len(usable) {
	case 0:
		return "", errors.New("no MIDI outputs available")
	case 1:
		return usable[0], nil
	}
	return "", fmt.Errorf("%d outputs available and none preferred; set instrument.port", len(usable))
}

func excluded(name string) bool {
	for _, pat := range ExcludedOutputs {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
