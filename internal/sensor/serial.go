package sensor

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.bug.st/serial"

	"github.com/chase3718/lou-shaker/internal/motion"
)

const serialReadTimeout = 100 * time.Millisecond

// Serial wraps a go.bug.st/serial port streaming accelerometer frames.
type Serial struct {
	port   serial.Port
	name   string
	logger *slog.Logger
}

// OpenSerial opens the named serial device at the given baud rate.
func OpenSerial(name string, baud int, logger *slog.Logger) (*Serial, error) {
	if logger == nil {
		logger = slog.Default()
	}
	p, err := serial.Open(name, &serial.Mode{BaudRate: baud})
	if err != nil {
		return nil, fmt.Errorf("serial: open %s: %w", name, err)
	}
	if err := p.SetReadTimeout(serialReadTimeout); err != nil {
		_ = p.Close()
		return nil, fmt.Errorf("serial: set read timeout: %w", err)
	}
	logger.Info("serial: port opened", "device", name, "baud", baud)
	return &Serial{port: p, name: name, logger: logger}, nil
}

// Run decodes frames until ctx is done or the port fails, sending each sample
// to out. A read error ends the stream; the port is not reopened.
func (s *Serial) Run(ctx context.Context, out chan<- motion.Sample) error {
	return stream(ctx, s.port, out, s.logger)
}

// Close closes the underlying serial port.
func (s *Serial) Close() error {
	s.logger.Info("serial: closing port", "device", s.name)
	return s.port.Close()
}

// ListPorts returns the serial devices present on the system.
func ListPorts() ([]string, error) {
	return serial.GetPortsList()
}
