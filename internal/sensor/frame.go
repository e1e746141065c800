// Package sensor reads accelerometer samples from a serial IMU or a simulator.
package sensor

import (
	"bytes"
	"encoding/binary"

	"github.com/chase3718/lou-shaker/internal/motion"
)

const (
	SOF0          = 0xAA
	SOF1          = 0x55
	CmdAccelFrame = 0x20

	payloadLen = 7 // ax, ay, az (int16 LE) + seq
	frameLen   = 4 + payloadLen + 1

	milliG = 1000.0
)

// Frame is one accelerometer reading as sent by the IMU firmware. Axes are in
// milli-g.
type Frame struct {
	AX, AY, AZ int16
	Seq        byte
}

// Sample converts the frame to g.
func (f Frame) Sample() motion.Sample {
	return motion.Sample{
		X: float64(f.AX) / milliG,
		Y: float64(f.AY) / milliG,
		Z: float64(f.AZ) / milliG,
	}
}

// Encode builds the on-wire representation:
//
//	[SOF0][SOF1][LEN][CMD][ax lo,hi][ay lo,hi][az lo,hi][Seq][CKS]
//
// LEN counts CMD plus payload; CKS is the XOR of LEN, CMD and payload.
func (f *Frame) Encode() []byte {
	payload := make([]byte, payloadLen)
	binary.LittleEndian.PutUint16(payload[0:], uint16(f.AX))
	binary.LittleEndian.PutUint16(payload[2:], uint16(f.AY))
	binary.LittleEndian.PutUint16(payload[4:], uint16(f.AZ))
	payload[6] = f.Seq

	length := byte(len(payload) + 1) // +1 for CMD byte
	cks := length ^ CmdAccelFrame
	for _, b := range payload {
		cks ^= b
	}

	out := []byte{SOF0, SOF1, length, CmdAccelFrame}
	out = append(out, payload...)
	out = append(out, cks)
	return out
}

// Decoder reassembles frames from a byte stream, dropping anything that does
// not start with SOF or fails the length/command/checksum checks.
type Decoder struct {
	buf     []byte
	Dropped int
}

// Feed consumes one byte and reports a frame when one completes.
func (d *Decoder) Feed(b byte) (Frame, bool) {
	switch len(d.buf) {
	case 0:
		if b != SOF0 {
			d.Dropped++
			return Frame{}, false
		}
	case 1:
		if b != SOF1 {
			d.reset(b)
			return Frame{}, false
		}
	case 2:
		if b != payloadLen+1 {
			d.reset(b)
			return Frame{}, false
		}
	case 3:
		if b != CmdAccelFrame {
			d.reset(b)
			return Frame{}, false
		}
	}
	d.buf = append(d.buf, b)
	if len(d.buf) < frameLen {
		return Frame{}, false
	}

	raw := d.buf
	d.buf = d.buf[:0]

	var cks byte
	for _, v := range raw[2 : frameLen-1] {
		cks ^= v
	}
	if cks != raw[frameLen-1] {
		d.Dropped++
		d.rescan(raw[1:])
		return Frame{}, false
	}
	p := raw[4:]
	return Frame{
		AX:  int16(binary.LittleEndian.Uint16(p[0:])),
		AY:  int16(binary.LittleEndian.Uint16(p[2:])),
		AZ:  int16(binary.LittleEndian.Uint16(p[4:])),
		Seq: p[6],
	}, true
}

// rescan replays the bytes of a rejected frame from the next SOF0, so a
// truncated frame does not swallow the one that follows it. rest is shorter
// than a frame and cannot complete one.
func (d *Decoder) rescan(rest []byte) {
	i := bytes.IndexByte(rest, SOF0)
	if i < 0 {
		return
	}
	replay := append([]byte(nil), rest[i:]...)
	for _, b := range replay {
		d.Feed(b)
	}
}

// reset drops the partial frame; b may itself start a new one.
func (d *Decoder) reset(b byte) {
	d.Dropped++
	d.buf = d.buf[:0]
	if b == SOF0 {
		d.buf = append(d.buf, b)
	}
}
