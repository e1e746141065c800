// Package instrument drives the sampled instrument that plays triggered notes.
package instrument

import (
	"errors"
)

// Construction failures. They are reported once when the instrument is built
// and never raised from NoteOn/NoteOff.
var (
	// ErrSoundAssetMissing means the SF2 sound bank could not be found.
	ErrSoundAssetMissing = errors.New("sound bank not found")
	// ErrEngineStart means the MIDI output feeding the synth could not be opened.
	ErrEngineStart = errors.New("engine failed to start")
	// ErrPatchLoad means the requested program could not be loaded from the
	// bank. The instrument stays usable but may play silence.
	ErrPatchLoad = errors.New("failed to load patch")
)

// Instrument is anything that can sound and release a pitch.
type Instrument interface {
	NoteOn(pitch, velocity, channel uint8) error
	NoteOff(pitch, channel uint8) error
}

// Multi sends every event to all instruments and joins their errors.
type Multi []Instrument

func (m Multi) NoteOn(pitch, velocity, channel uint8) error {
	var errs []error
	for _, inst := range m {
		if err := inst.NoteOn(pitch, velocity, channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) NoteOff(pitch, channel uint8) error {
	var errs []error
	for _, inst := range m {
		if err := inst.NoteOff(pitch, channel); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
