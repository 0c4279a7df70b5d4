// Package config loads the peer configuration from a TOML file.
package config

import (
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/pkg/errors"
	"go.uber.org/zap/zapcore"

	"vdp/host/serial"
	"vdp/link"
	"vdp/registry"
)

// DefaultDevice is the serial device used when none is configured
const DefaultDevice = "/dev/ttyUSB0"

// Log formats
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

// Log selects logger output
type Log struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// Config is the complete peer configuration
type Config struct {
	Serial   serial.Config   `toml:"serial"`
	Link     link.Config     `toml:"link"`
	Registry registry.Config `toml:"registry"`
	Log      Log             `toml:"log"`
}

// Default returns the configuration used without a file
func Default() Config {
	return Config{
		Serial:   serial.DefaultConfig(DefaultDevice),
		Link:     link.DefaultConfig(),
		Registry: registry.DefaultConfig(),
		Log: Log{
			Level:  "info",
			Format: FormatConsole,
		},
	}
}

// Load reads path over the defaults. Keys absent from the file keep their
// default values; unknown keys are rejected.
func Load(path string) (Config, error) {
	cfg := Default()
	meta, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return Config{}, errors.Wrapf(err, "loading config %s", path)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, k := range undecoded {
			keys = append(keys, k.String())
		}
		return Config{}, errors.Errorf("unknown config keys in %s: %s", path, strings.Join(keys, ", "))
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, errors.Wrapf(err, "validating config %s", path)
	}
	return cfg, nil
}

// Validate rejects values no component accepts
func (c Config) Validate() error {
	if c.Serial.Device == "" {
		return errors.New("serial.device is empty")
	}
	if c.Serial.Baud <= 0 {
		return errors.Errorf("serial.baud must be positive, got %d", c.Serial.Baud)
	}
	if c.Serial.ReadTimeout < 0 {
		return errors.Errorf("serial.read_timeout must not be negative, got %s", c.Serial.ReadTimeout)
	}
	if c.Link.MaxInQueue < 0 || c.Link.MaxOutQueue < 0 {
		return errors.New("link queue sizes must not be negative")
	}
	if c.Registry.AckRetries < 0 {
		return errors.Errorf("registry.ack_retries must not be negative, got %d", c.Registry.AckRetries)
	}
	if _, err := c.Log.ZapLevel(); err != nil {
		return err
	}
	switch c.Log.Format {
	case FormatConsole, FormatJSON:
	default:
		return errors.Errorf("log.format must be %q or %q, got %q", FormatConsole, FormatJSON, c.Log.Format)
	}
	return nil
}

// ZapLevel parses the configured level
func (l Log) ZapLevel() (zapcore.Level, error) {
	level, err := zapcore.ParseLevel(l.Level)
	if err != nil {
		return 0, errors.Wrapf(err, "log.level %q", l.Level)
	}
	return level, nil
}
