// Package app runs the single event loop that owns the motion window, the
// note cursor and the note-off queue.
package app

import (
	"context"
	"log/slog"
	"time"

	"github.com/chase3718/lou-shaker/internal/motion"
	"github.com/chase3718/lou-shaker/internal/trigger"
)

// DefaultTick is how often due note-offs are flushed.
const DefaultTick = 2 * time.Millisecond

type App struct {
	player *trigger.Player
	queue  *trigger.Queue
	tick   time.Duration
	logger *slog.Logger
}

// New wires an app. The player must schedule on queue.
func New(player *trigger.Player, queue *trigger.Queue, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{player: player, queue: queue, tick: DefaultTick, logger: logger}
}

// Run handles samples, triggers and due note-offs until ctx is done. A nil
// samples channel means no sensor: the window stays empty and triggers use the
// default peak. Pending note-offs are sent before Run returns so nothing is
// left sounding.
func (a *App) Run(ctx context.Context, samples <-chan motion.Sample, triggers <-chan struct{}) error {
	ticker := time.NewTicker(a.tick)
	defer ticker.Stop()

	if samples == nil {
		a.logger.Warn("app: no sensor, velocity uses the default peak", "peak", motion.DefaultPeak)
	}

	received := 0
	for {
		select {
		case <-ctx.Done():
			if n := a.queue.Drain(); n > 0 {
				a.logger.Info("app: released pending notes", "count", n)
			}
			a.logger.Info("app: stopped", "samples", received)
			return nil

		case s, ok := <-samples:
			if !ok {
				a.logger.Warn("app: sensor stream closed", "samples", received)
				samples = nil
				continue
			}
			a.player.AddSample(s)
			received++

		case <-triggers:
			a.player.Trigger()

		case t := <-ticker.C:
			a.queue.Flush(t)
		}
	}
}
