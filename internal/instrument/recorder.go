package instrument

import (
	"fmt"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

const (
	recordTicksPerQuarter = 960
	recordBPM             = 120.0
)

// Recorder captures played notes with their real timing and writes them to a
// single-track Standard MIDI File on Close.
type Recorder struct {
	mu     sync.Mutex
	path   string
	track  smf.Track
	last   time.Time
	events int
	now    func() time.Time
}

// NewRecorder starts a recording that will be written to path.
func NewRecorder(path string) *Recorder {
	return newRecorder(path, time.Now)
}

func newRecorder(path string, now func() time.Time) *Recorder {
	r := &Recorder{path: path, now: now, last: now()}
	r.track.Add(0, smf.MetaTempo(recordBPM))
	return r
}

func (r *Recorder) NoteOn(pitch, velocity, channel uint8) error {
	r.add(midi.NoteOn(channel, pitch, velocity))
	return nil
}

func (r *Recorder) NoteOff(pitch, channel uint8) error {
	r.add(midi.NoteOff(channel, pitch))
	return nil
}

// Events returns the number of note events recorded so far.
func (r *Recorder) Events() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.events
}

func (r *Recorder) add(msg midi.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t := r.now()
	r.track.Add(durationTicks(t.Sub(r.last)), msg)
	r.last = t
	r.events++
}

// Close writes the file.
func (r *Recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.track.Close(0)
	s := smf.New()
	s.TimeFormat = smf.MetricTicks(recordTicksPerQuarter)
	if err := s.Add(r.track); err != nil {
		return fmt.Errorf("recorder: add track: %w", err)
	}
	if err := s.WriteFile(r.path); err != nil {
		return fmt.Errorf("recorder: write %s: %w", r.path, err)
	}
	return nil
}

func durationTicks(d time.Duration) uint32 {
	if d <= 0 {
		return 0
	}
	return uint32(d.Seconds() * recordTicksPerQuarter * recordBPM / 60)
}
