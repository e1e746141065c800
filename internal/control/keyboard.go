package control

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/eiannone/keyboard"
)

type keyAction int

const (
	keyIgnore keyAction = iota
	keyTrigger
	keyQuit
)

func classifyKey(ev keyboard.KeyEvent) keyAction {
	switch ev.Key {
	case keyboard.KeySpace, keyboard.KeyEnter:
		return keyTrigger
	case keyboard.KeyEsc, keyboard.KeyCtrlC:
		return keyQuit
	}
	switch ev.Rune {
	case ' ':
		return keyTrigger
	case 'q', 'Q':
		return keyQuit
	}
	return keyIgnore
}

// Keyboard puts the terminal in raw mode and turns space/enter into triggers.
// q, Esc or Ctrl-C call quit. The terminal is restored when ctx ends; the
// returned channel is closed once that has happened.
func Keyboard(ctx context.Context, triggers chan<- struct{}, quit func(), logger *slog.Logger) (<-chan struct{}, error) {
	keys, err := keyboard.GetKeys(16)
	if err != nil {
		return nil, fmt.Errorf("keyboard: %w", err)
	}
	logger.Info("keyboard: ready", "trigger", "space/enter", "quit", "q/esc")

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if err := keyboard.Close(); err != nil {
				logger.Warn("keyboard: close failed", "err", err)
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-keys:
				if !ok {
					return
				}
				if ev.Err != nil {
					logger.Error("keyboard: read failed", "err", ev.Err)
					return
				}
				switch classifyKey(ev) {
				case keyTrigger:
					Request(triggers, "keyboard", logger)
				case keyQuit:
					logger.Info("keyboard: quit requested")
					quit()
					return
				}
			}
		}
	}()
	return done, nil
}
