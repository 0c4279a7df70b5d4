package serial

import (
	"io"
	"net"
	"time"
)

// Port represents a byte stream to the peer.
// Implementations:
// - Native serial (using github.com/tarm/serial)
// - In-memory pipe (for tests and loopback)
type Port interface {
	io.ReadWriteCloser

	// Flush discards data received but not yet read
	Flush() error
}

// Config holds serial port configuration
type Config struct {
	// Device path (e.g., "/dev/ttyUSB0", "COM3")
	Device string `toml:"device"`

	// Baud rate (USB CDC ignores this)
	Baud int `toml:"baud"`

	// Read timeout (0 = blocking). A timed out read returns io.EOF.
	ReadTimeout time.Duration `toml:"read_timeout"`
}

// DefaultConfig returns the default configuration for device
func DefaultConfig(device string) Config {
	return Config{
		Device:      device,
		Baud:        115200,
		ReadTimeout: 100 * time.Millisecond,
	}
}

// pipePort adapts one end of net.Pipe to Port
type pipePort struct {
	net.Conn
}

func (p pipePort) Flush() error {
	return nil
}

// NewPipe returns two connected in-memory ports
func NewPipe() (Port, Port) {
	a, b := net.Pipe()
	return pipePort{Conn: a}, pipePort{Conn: b}
}
