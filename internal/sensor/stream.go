package sensor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/chase3718/lou-shaker/internal/motion"
)

// stream decodes frames from r until ctx ends, r hits EOF, or a read fails.
// Reads returning (0, nil) are treated as timeouts.
func stream(ctx context.Context, r io.Reader, out chan<- motion.Sample, logger *slog.Logger) error {
	var dec Decoder
	buf := make([]byte, 128)
	frames := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		n, err := r.Read(buf)
		for _, b := range buf[:n] {
			f, ok := dec.Feed(b)
			if !ok {
				continue
			}
			frames++
			select {
			case out <- f.Sample():
			case <-ctx.Done():
				return nil
			}
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				logger.Warn("sensor: stream ended", "frames", frames, "dropped", dec.Dropped)
				return nil
			}
			return fmt.Errorf("sensor: read: %w", err)
		}
	}
}
