// Package motion holds the rolling window of accelerometer magnitudes and the
// peak-to-velocity mapping used when a note is triggered.
package motion

import "math"

const (
	// DefaultCapacity is the number of recent samples kept (~100 ms at 100 Hz).
	DefaultCapacity = 10

	// DefaultPeak is reported by an empty buffer.
	DefaultPeak = 1.2
)

// Sample is one 3-axis accelerometer reading in g.
type Sample struct {
	X, Y, Z float64
}

// Magnitude returns |x + y + z|.
func (s Sample) Magnitude() float64 {
	return math.Abs(s.X + s.Y + s.Z)
}

// Buffer is a fixed-capacity FIFO window of motion magnitudes.
// It is not safe for concurrent use; the app event loop owns it.
type Buffer struct {
	samples  []float64
	capacity int
}

// NewBuffer returns an empty buffer. A capacity below 1 falls back to
// DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		samples:  make([]float64, 0, capacity+1),
		capacity: capacity,
	}
}

// Append adds a magnitude at the end, evicting the single oldest sample when
// the window is over capacity.
func (b *Buffer) Append(magnitude float64) {
	b.samples = append(b.samples, magnitude)
	if len(b.samples) > b.capacity {
		copy(b.samples, b.samples[1:])
		b.samples = b.samples[:len(b.samples)-1]
	}
}

// Peak returns the largest magnitude in the window, or DefaultPeak if empty.
func (b *Buffer) Peak() float64 {
	if len(b.samples) == 0 {
		return DefaultPeak
	}
	peak := b.samples[0]
	for _, v := range b.samples[1:] {
		if v > peak {
			peak = v
		}
	}
	return peak
}

func (b *Buffer) Len() int { return len(b.samples) }
func (b *Buffer) Cap() int { return b.capacity }

// Samples returns a copy of the window, oldest first.
func (b *Buffer) Samples() []float64 {
	out := make([]float64, len(b.samples))
	copy(out, b.samples)
	return out
}
