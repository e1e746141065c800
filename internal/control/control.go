// Package control collects "trigger now" requests from the keyboard, a MIDI
// controller and websocket clients into a single channel.
package control

import "log/slog"

// Request delivers one trigger to the channel without blocking. A full channel
// means the event loop already has triggers queued, so the request is dropped.
func Request(triggers chan<- struct{}, source string, logger *slog.Logger) {
	select {
	case triggers <- struct{}{}:
		logger.Debug("control: trigger requested", "source", source)
	default:
		logger.Warn("control: trigger queue full, dropping request", "source", source)
	}
}
