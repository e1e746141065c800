// Package trigger turns a "play now" request into a timed note-on/note-off
// pair on an instrument, walking a cyclic note index.
package trigger

import (
	"log/slog"
	"time"

	"github.com/chase3718/lou-shaker/internal/instrument"
	"github.com/chase3718/lou-shaker/internal/motion"
)

// DefaultHold is how long a triggered note sounds.
const DefaultHold = 150 * time.Millisecond

// Event describes one handled trigger.
type Event struct {
	Time     time.Time `json:"time"`
	Note     uint8     `json:"note"`
	Name     string    `json:"name"`
	Velocity uint8     `json:"velocity"`
	Peak     float64   `json:"peak"`
	Sounded  bool      `json:"sounded"`
}

// Fire sends note-on now and schedules the matching note-off after hold.
// Instrument errors are logged and dropped: a failed note is never retried
// and never stops later triggers.
func Fire(inst instrument.Instrument, sched Scheduler, logger *slog.Logger, channel, note, velocity uint8, hold time.Duration) {
	if err := inst.NoteOn(note, velocity, channel); err != nil {
		logger.Warn("trigger: note on failed", "note", NoteName(note), "velocity", velocity, "err", err)
	}
	sched.AfterFunc(hold, func() {
		if err := inst.NoteOff(note, channel); err != nil {
			logger.Warn("trigger: note off failed", "note", NoteName(note), "err", err)
		}
	})
}

// Config wires a Player. Only Scheduler is required.
type Config struct {
	Instrument instrument.Instrument // nil: triggers still advance the cursor but play nothing
	Scheduler  Scheduler
	Buffer     *motion.Buffer
	Hold       time.Duration
	Channel    uint8
	Logger     *slog.Logger
	OnFire     func(Event)
	Now        func() time.Time
}

// Player owns the motion window and the note cursor. Its methods must be
// called from a single goroutine.
type Player struct {
	inst    instrument.Instrument
	sched   Scheduler
	buffer  *motion.Buffer
	cursor  Cursor
	hold    time.Duration
	channel uint8
	logger  *slog.Logger
	onFire  func(Event)
	now     func() time.Time
}

func NewPlayer(cfg Config) *Player {
	p := &Player{
		inst:    cfg.Instrument,
		sched:   cfg.Scheduler,
		buffer:  cfg.Buffer,
		cursor:  NewCursor(),
		hold:    cfg.Hold,
		channel: cfg.Channel,
		logger:  cfg.Logger,
		onFire:  cfg.OnFire,
		now:     cfg.Now,
	}
	if p.buffer == nil {
		p.buffer = motion.NewBuffer(motion.DefaultCapacity)
	}
	if p.hold <= 0 {
		p.hold = DefaultHold
	}
	if p.logger == nil {
		p.logger = slog.Default()
	}
	if p.now == nil {
		p.now = time.Now
	}
	return p
}

// AddSample records one accelerometer reading.
func (p *Player) AddSample(s motion.Sample) {
	p.buffer.Append(s.Magnitude())
}

func (p *Player) Buffer() *motion.Buffer { return p.buffer }

// Note is the pitch the next trigger will play.
func (p *Player) Note() uint8 { return p.cursor.Note() }

// Trigger plays the current note with a velocity taken from the recent
// motion peak, then advances the cursor.
func (p *Player) Trigger() Event {
	peak := p.buffer.Peak()
	ev := Event{
		Time:     p.now(),
		Note:     p.cursor.Note(),
		Name:     NoteName(p.cursor.Note()),
		Velocity: motion.Velocity(peak),
		Peak:     peak,
	}
	p.logger.Info("trigger: fired", "peak", ev.Peak, "velocity", ev.Velocity, "note", ev.Name)

	if p.inst != nil {
		Fire(p.inst, p.sched, p.logger, p.channel, ev.Note, ev.Velocity, p.hold)
		ev.Sounded = true
	} else {
		p.logger.Debug("trigger: no instrument attached", "note", ev.Name)
	}

	p.cursor.Advance()

	if p.onFire != nil {
		p.onFire(ev)
	}
	return ev
}
