package sensor

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/chase3718/lou-shaker/internal/motion"
)

func feedAll(d *Decoder, data []byte) []Frame {
	var frames []Frame
	for _, b := range data {
		if f, ok := d.Feed(b); ok {
			frames = append(frames, f)
		}
	}
	return frames
}

func TestFrame_EncodeLayout(t *testing.T) {
	f := Frame{AX: 1000, AY: -1, AZ: 0, Seq: 7}
	got := f.Encode()
	if len(got) != frameLen {
		t.Fatalf("len = %d, want %d", len(got), frameLen)
	}
	want := []byte{0xAA, 0x55, 0x08, 0x20, 0xE8, 0x03, 0xFF, 0xFF, 0x00, 0x00, 0x07}
	if !bytes.Equal(got[:len(want)], want) {
		t.Fatalf("encoded = % X, want prefix % X", got, want)
	}
}

func TestDecoder_RoundTrip(t *testing.T) {
	in := []Frame{
		{AX: 12, AY: -340, AZ: 981, Seq: 1},
		{AX: -2000, AY: 2000, AZ: 0, Seq: 2},
	}
	var stream []byte
	for i := range in {
		stream = append(stream, in[i].Encode()...)
	}
	var d Decoder
	out := feedAll(&d, stream)
	if len(out) != len(in) {
		t.Fatalf("decoded %d frames, want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Errorf("frame %d = %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestDecoder_ResyncsAfterGarbage(t *testing.T) {
	good := Frame{AX: 1, AY: 2, AZ: 1000, Seq: 9}
	bad := good.Encode()
	bad[len(bad)-1] ^= 0xFF // corrupt checksum

	var stream []byte
	stream = append(stream, 0x00, 0x13, 0xAA, 0xAA) // noise, then a doubled SOF0
	stream = append(stream, good.Encode()...)
	stream = append(stream, bad...)
	stream = append(stream, good.Encode()...)

	var d Decoder
	out := feedAll(&d, stream)
	if len(out) != 2 {
		t.Fatalf("decoded %d frames, want 2", len(out))
	}
	if d.Dropped == 0 {
		t.Fatal("expected dropped bytes to be counted")
	}
}

func TestDecoder_TruncatedFrameDoesNotSwallowNext(t *testing.T) {
	cut := Frame{AX: 7, Seq: 2}
	good := Frame{AX: -12, AY: 40, AZ: 990, Seq: 3}
	var stream []byte
	stream = append(stream, cut.Encode()[:6]...) // link dropped mid-frame
	stream = append(stream, good.Encode()...)

	var d Decoder
	out := feedAll(&d, stream)
	if len(out) != 1 || out[0] != good {
		t.Fatalf("decoded %+v, want [%+v]", out, good)
	}
	if d.Dropped == 0 {
		t.Fatal("expected the rejected frame to be counted")
	}
}

func TestFrame_Sample(t *testing.T) {
	s := Frame{AX: 500, AY: -250, AZ: 1000}.Sample()
	if s != (motion.Sample{X: 0.5, Y: -0.25, Z: 1.0}) {
		t.Fatalf("sample = %+v", s)
	}
}

func TestStream_DecodesUntilEOF(t *testing.T) {
	var data []byte
	for i := 0; i < 5; i++ {
		f := Frame{AZ: int16(1000 + i*100), Seq: byte(i)}
		data = append(data, f.Encode()...)
	}
	out := make(chan motion.Sample, 10)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := stream(context.Background(), bytes.NewReader(data), out, logger); err != nil {
		t.Fatalf("stream: %v", err)
	}
	close(out)
	var got []float64
	for s := range out {
		got = append(got, s.Magnitude())
	}
	if len(got) != 5 || got[4] != 1.4 {
		t.Fatalf("magnitudes = %v", got)
	}
}

func TestSimulator_RestAndShake(t *testing.T) {
	sim := NewSimulator(10*time.Millisecond, 1)
	buf := motion.NewBuffer(motion.DefaultCapacity)

	// First 10 ms steps of the cycle are inside a shake.
	for i := 0; i < 10; i++ {
		buf.Append(sim.Next().Magnitude())
	}
	if buf.Peak() < 1.5 {
		t.Fatalf("peak during shake = %v, want > 1.5", buf.Peak())
	}

	// Skip to the quiet part of the cycle.
	for i := 0; i < 50; i++ {
		sim.Next()
	}
	for i := 0; i < 10; i++ {
		buf.Append(sim.Next().Magnitude())
	}
	if p := buf.Peak(); p < 0.9 || p > 1.1 {
		t.Fatalf("peak at rest = %v, want ~1.0", p)
	}
}

func TestSimulator_RunStopsOnCancel(t *testing.T) {
	sim := NewSimulator(time.Millisecond, 2)
	ctx, cancel := context.WithCancel(context.Background())
	out := make(chan motion.Sample)
	done := make(chan error, 1)
	go func() { done <- sim.Run(ctx, out) }()

	<-out
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop")
	}
}
