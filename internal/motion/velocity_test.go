package motion

import "testing"

func TestVelocity_Table(t *testing.T) {
	tests := []struct {
		peak float64
		want uint8
	}{
		{-3.0, 1},
		{0.0, 1},
		{0.79, 1},
		{0.8, 1},
		{1.2, 26},
		{1.5, 45},
		{2.0, 77},
		{2.8, 126},
		{10.0, 126},
	}
	for _, tt := range tests {
		if got := Velocity(tt.peak); got != tt.want {
			t.Errorf("Velocity(%v) = %d, want %d", tt.peak, got, tt.want)
		}
	}
}

func TestVelocity_Monotonic(t *testing.T) {
	prev := Velocity(0)
	for p := 0.0; p <= 4.0; p += 0.005 {
		v := Velocity(p)
		if v < prev {
			t.Fatalf("Velocity(%v) = %d < previous %d", p, v, prev)
		}
		if v < MinVelocity || v > MaxVelocity {
			t.Fatalf("Velocity(%v) = %d out of range", p, v)
		}
		prev = v
	}
}
