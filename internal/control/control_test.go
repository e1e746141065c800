package control

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/eiannone/keyboard"
	"github.com/gorilla/websocket"
	"gitlab.com/gomidi/midi/v2"

	"github.com/chase3718/lou-shaker/internal/trigger"
)

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

func TestRequest_DropsWhenFull(t *testing.T) {
	triggers := make(chan struct{}, 1)
	Request(triggers, "test", quiet)
	Request(triggers, "test", quiet) // must not block
	if len(triggers) != 1 {
		t.Fatalf("queued = %d, want 1", len(triggers))
	}
}

func TestClassifyKey(t *testing.T) {
	tests := []struct {
		ev   keyboard.KeyEvent
		want keyAction
	}{
		{keyboard.KeyEvent{Key: keyboard.KeySpace}, keyTrigger},
		{keyboard.KeyEvent{Key: keyboard.KeyEnter}, keyTrigger},
		{keyboard.KeyEvent{Rune: ' '}, keyTrigger},
		{keyboard.KeyEvent{Key: keyboard.KeyEsc}, keyQuit},
		{keyboard.KeyEvent{Key: keyboard.KeyCtrlC}, keyQuit},
		{keyboard.KeyEvent{Rune: 'q'}, keyQuit},
		{keyboard.KeyEvent{Rune: 'x'}, keyIgnore},
	}
	for _, tt := range tests {
		if got := classifyKey(tt.ev); got != tt.want {
			t.Errorf("classifyKey(%+v) = %d, want %d", tt.ev, got, tt.want)
		}
	}
}

func TestPreferredInput(t *testing.T) {
	if got, ok := preferredInput([]string{"USB Keys", "nanoPAD2 MIDI 1"}); !ok || got != "nanoPAD2 MIDI 1" {
		t.Fatalf("got %q, %v", got, ok)
	}
	if got, ok := preferredInput([]string{"Only Device"}); !ok || got != "Only Device" {
		t.Fatalf("got %q, %v", got, ok)
	}
	if _, ok := preferredInput([]string{"A", "B"}); ok {
		t.Fatal("expected no pick among unknown devices")
	}
	if !excludedInput("Midi Through Port-0") {
		t.Fatal("through port should be excluded")
	}
}

func TestMIDIWatcher_NoteOnTriggers(t *testing.T) {
	triggers := make(chan struct{}, 4)
	w := NewMIDIWatcher(nil, triggers, quiet)

	w.handle(midi.NoteOn(0, 36, 100))
	w.handle(midi.NoteOff(0, 36))
	w.handle(midi.NoteOn(0, 36, 0)) // velocity 0 is a release
	w.handle(midi.ControlChange(0, 1, 64))

	if len(triggers) != 1 {
		t.Fatalf("triggers = %d, want 1", len(triggers))
	}
}

func TestIsTriggerMessage(t *testing.T) {
	tests := map[string]bool{
		"trigger":            true,
		" TRIGGER\n":         true,
		`{"type":"trigger"}`: true,
		`{"type":"note"}`:    false,
		"hello":              false,
		`{"type":"trigger"`:  false,
	}
	for in, want := range tests {
		if got := isTriggerMessage([]byte(in)); got != want {
			t.Errorf("isTriggerMessage(%q) = %v, want %v", in, got, want)
		}
	}
}

func dialHub(t *testing.T, h *Hub) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestHub_ClientTriggers(t *testing.T) {
	triggers := make(chan struct{}, 4)
	h := NewHub(triggers, quiet)
	conn := dialHub(t, h)

	if err := conn.WriteMessage(websocket.TextMessage, []byte("trigger")); err != nil {
		t.Fatal(err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"trigger"}`)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 2; i++ {
		select {
		case <-triggers:
		case <-time.After(time.Second):
			t.Fatalf("trigger %d not received", i)
		}
	}
}

func TestHub_BroadcastsNotes(t *testing.T) {
	h := NewHub(make(chan struct{}, 1), quiet)
	conn := dialHub(t, h)
	waitUntil(t, time.Second, func() bool { return h.Clients() == 1 }, "client not registered")

	h.Broadcast(trigger.Event{
		Time:     time.Date(2026, 3, 3, 0, 0, 0, 0, time.UTC),
		Note:     21,
		Name:     "A0",
		Velocity: 26,
		Peak:     1.2,
		Sounded:  true,
	})

	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	_, payload, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var env struct {
		Type string        `json:"type"`
		Data trigger.Event `json:"data"`
	}
	if err := json.Unmarshal(payload, &env); err != nil {
		t.Fatalf("unmarshal %s: %v", payload, err)
	}
	if env.Type != "note" || env.Data.Note != 21 || env.Data.Velocity != 26 {
		t.Fatalf("message = %s", payload)
	}
}

func TestHub_CloseDisconnectsClients(t *testing.T) {
	h := NewHub(make(chan struct{}, 1), quiet)
	conn := dialHub(t, h)
	waitUntil(t, time.Second, func() bool { return h.Clients() == 1 }, "client not registered")

	h.Close()
	if h.Clients() != 0 {
		t.Fatalf("clients = %d after Close", h.Clients())
	}
	_ = conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatal("expected read error after hub close")
	}
}
