package control

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/drivers"
)

// PreferredInputs: devices matching any of these are picked first.
var PreferredInputs = []string{"Launchkey", "Novation", "nanoPAD", "MPD"}

// ExcludedInputs: virtual/system ports that are never auto-connected.
var ExcludedInputs = []string{"Midi Through", "Through Port", "Dummy"}

const rescanInterval = time.Second

// InputLister is the part of a MIDI driver the watcher needs.
type InputLister interface {
	Ins() ([]drivers.In, error)
}

// MIDIWatcher monitors available MIDI inputs and keeps a connection to the
// preferred controller, following hot-plug and hot-unplug. Every note-on from
// the controller becomes a trigger.
type MIDIWatcher struct {
	mu        sync.Mutex
	drv       InputLister
	inPort    drivers.In
	stopFn    func()
	connected bool
	current   string
	lastScan  time.Time
	now       func() time.Time

	triggers chan<- struct{}
	logger   *slog.Logger
}

func NewMIDIWatcher(drv InputLister, triggers chan<- struct{}, logger *slog.Logger) *MIDIWatcher {
	return &MIDIWatcher{
		drv:      drv,
		triggers: triggers,
		logger:   logger,
		now:      time.Now,
	}
}

// Close shuts down the active MIDI connection. The driver is owned by the
// caller.
func (m *MIDIWatcher) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closeConn()
}

// Connected returns the name of the connected controller, if any.
func (m *MIDIWatcher) Connected() (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current, m.connected
}

// Tick should be called on a regular interval from the main loop. It scans
// for devices, auto-connects to a preferred one, and detects disappearances.
func (m *MIDIWatcher) Tick() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if !m.lastScan.IsZero() && now.Sub(m.lastScan) < rescanInterval {
		return
	}
	m.lastScan = now

	inputs := m.listInputs()

	if m.connected {
		for _, n := range inputs {
			if n == m.current {
				return
			}
		}
		m.logger.Warn("midi: controller disappeared", "device", m.current)
		m.closeConn()
		m.lastScan = time.Time{} // rescan immediately next tick
		return
	}

	if len(inputs) == 0 {
		return
	}
	cand, ok := preferredInput(inputs)
	if !ok {
		m.logger.Debug("midi: no preferred controller", "available", strings.Join(inputs, ", "))
		return
	}
	if err := m.connect(cand); err != nil {
		m.logger.Error("midi: connect failed", "device", cand, "err", err)
	}
}

// handle turns a controller message into a trigger.
func (m *MIDIWatcher) handle(msg midi.Message) {
	var ch, key, vel uint8
	if msg.GetNoteStart(&ch, &key, &vel) {
		m.logger.Debug("midi: note on", "ch", ch, "key", key, "vel", vel)
		Request(m.triggers, "midi", m.logger)
	}
}

func (m *MIDIWatcher) listInputs() []string {
	ins, err := m.drv.Ins()
	if err != nil {
		m.logger.Error("midi: list inputs failed", "err", err)
		return nil
	}
	var names []string
	for _, in := range ins {
		name := in.String()
		if excludedInput(name) {
			m.logger.Debug("midi: input excluded", "device", name)
			continue
		}
		names = append(names, name)
	}
	return names
}

func preferredInput(inputs []string) (string, bool) {
	for _, pat := range PreferredInputs {
		for _, name := range inputs {
			if containsCI(name, pat) {
				return name, true
			}
		}
	}
	if len(inputs) == 1 {
		return inputs[0], true
	}
	return "", false
}

func excludedInput(name string) bool {
	for _, pat := range ExcludedInputs {
		if containsCI(name, pat) {
			return true
		}
	}
	return false
}

func (m *MIDIWatcher) closeConn() {
	if m.stopFn != nil {
		m.stopFn()
		m.stopFn = nil
	}
	if m.inPort != nil {
		_ = m.inPort.Close()
		m.inPort = nil
	}
	m.connected = false
	m.current = ""
}

func (m *MIDIWatcher) connect(name string) error {
	ins, err := m.drv.Ins()
	if err != nil {
		return err
	}
	var found drivers.In
	for _, in := range ins {
		if in.String() == name {
			found = in
			break
		}
	}
	if found == nil {
		return fmt.Errorf("input %q not found", name)
	}
	if err := found.Open(); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}

	stop, err := midi.ListenTo(found, func(msg midi.Message, _ int32) {
		m.handle(msg)
	}, midi.HandleError(func(listenErr error) {
		m.logger.Warn("midi: listener error", "device", name, "err", listenErr)
		// closeConn stops the listener, so it must not run on the listener
		// goroutine.
		go func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			if m.connected && m.current == name {
				m.closeConn()
				m.lastScan = time.Time{}
			}
		}()
	}))
	if err != nil {
		_ = found.Close()
		return fmt.Errorf("listen %q: %w", name, err)
	}

	m.inPort = found
	m.stopFn = stop
	m.connected = true
	m.current = name
	m.logger.Info("midi: controller connected", "device", name)
	return nil
}

func containsCI(s, sub string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(sub))
}
