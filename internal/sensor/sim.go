package sensor

import (
	"context"
	"math"
	"math/rand/v2"
	"time"

	"github.com/chase3718/lou-shaker/internal/motion"
)

// Simulator produces a device lying still with a short shake every few
// seconds, for running without hardware.
type Simulator struct {
	Interval   time.Duration
	ShakeEvery time.Duration
	ShakeFor   time.Duration
	ShakePeak  float64 // extra g at the top of a shake

	rng  *rand.Rand
	step int
}

func NewSimulator(interval time.Duration, seed uint64) *Simulator {
	if interval <= 0 {
		interval = 10 * time.Millisecond
	}
	return &Simulator{
		Interval:   interval,
		ShakeEvery: 2 * time.Second,
		ShakeFor:   250 * time.Millisecond,
		ShakePeak:  1.6,
		rng:        rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}
}

// Next returns the sample for the next interval.
func (s *Simulator) Next() motion.Sample {
	elapsed := time.Duration(s.step) * s.Interval
	s.step++

	noise := func() float64 { return (s.rng.Float64() - 0.5) * 0.04 }
	sample := motion.Sample{X: noise(), Y: noise(), Z: 1.0 + noise()}

	if s.ShakeEvery > 0 {
		phase := elapsed % s.ShakeEvery
		if phase < s.ShakeFor {
			env := math.Sin(math.Pi * float64(phase) / float64(s.ShakeFor))
			sample.Z += s.ShakePeak * env
		}
	}
	return sample
}

// Run emits one sample per Interval until ctx is done.
func (s *Simulator) Run(ctx context.Context, out chan<- motion.Sample) error {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			select {
			case out <- s.Next():
			case <-ctx.Done():
				return nil
			}
		}
	}
}
