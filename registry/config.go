package registry

import "time"

// Negotiation defaults
const (
	DefaultAckTimeout   = 500 * time.Millisecond
	DefaultAckRetries   = 3
	DefaultPollInterval = 5 * time.Millisecond
)

// Config holds negotiation timing
type Config struct {
	AckTimeout   time.Duration `toml:"ack_timeout"`
	AckRetries   int           `toml:"ack_retries"`
	PollInterval time.Duration `toml:"poll_interval"`
}

// DefaultConfig returns the negotiation timing used by the controller
func DefaultConfig() Config {
	return Config{
		AckTimeout:   DefaultAckTimeout,
		AckRetries:   DefaultAckRetries,
		PollInterval: DefaultPollInterval,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.AckTimeout <= 0 {
		c.AckTimeout = d.AckTimeout
	}
	if c.AckRetries <= 0 {
		c.AckRetries = d.AckRetries
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	return c
}
