package motion

import "math"

// Velocity bounds for a triggered note. 0 would be read as note-off by most
// synths, so the floor is 1.
const (
	MinVelocity = 1
	MaxVelocity = 126

	restLevel     = 0.8  // g, roughly a phone lying still
	velocityScale = 64.0 // velocity units per g above rest
)

// Velocity maps a peak magnitude to a note velocity in [MinVelocity, MaxVelocity].
func Velocity(peak float64) uint8 {
	v := (peak - restLevel) * velocityScale

	if v < 0 {
		v = MinVelocity
	}
	if v > MaxVelocity {
		v = MaxVelocity
	}

	v = math.Round(v)
	if v < MinVelocity {
		return MinVelocity
	}
	return uint8(v)
}
