package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func writeConfig(t *testing.T, content string) string {
	path := filepath.Join(t.TempDir(), "vdp.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	requireT := require.New(t)

	cfg := Default()
	requireT.NoError(cfg.Validate())
	requireT.Equal("/dev/ttyUSB0", cfg.Serial.Device)
	requireT.Equal(115200, cfg.Serial.Baud)
	requireT.Equal(100*time.Millisecond, cfg.Serial.ReadTimeout)
	requireT.Equal(50, cfg.Link.MaxInQueue)
	requireT.Equal(50, cfg.Link.MaxOutQueue)
	requireT.Equal(500*time.Millisecond, cfg.Registry.AckTimeout)
	requireT.Equal(3, cfg.Registry.AckRetries)
	requireT.Equal(5*time.Millisecond, cfg.Registry.PollInterval)
}

func TestLoadOverridesDefaults(t *testing.T) {
	requireT := require.New(t)

	path := writeConfig(t, `
[serial]
device = "/dev/ttyACM1"
read_timeout = "250ms"

[registry]
ack_timeout = "1s"
ack_retries = 5

[log]
level = "debug"
format = "json"
`)

	cfg, err := Load(path)
	requireT.NoError(err)
	requireT.Equal("/dev/ttyACM1", cfg.Serial.Device)
	requireT.Equal(115200, cfg.Serial.Baud)
	requireT.Equal(250*time.Millisecond, cfg.Serial.ReadTimeout)
	requireT.Equal(time.Second, cfg.Registry.AckTimeout)
	requireT.Equal(5, cfg.Registry.AckRetries)
	requireT.Equal(5*time.Millisecond, cfg.Registry.PollInterval)
	requireT.Equal(50, cfg.Link.MaxOutQueue)

	level, err := cfg.Log.ZapLevel()
	requireT.NoError(err)
	requireT.Equal(zapcore.DebugLevel, level)
	requireT.Equal(FormatJSON, cfg.Log.Format)
}

func TestLoadRejects(t *testing.T) {
	testCases := []struct {
		name    string
		content string
	}{
		{name: "unknown key", content: "[serial]\nspeed = 9600\n"},
		{name: "bad syntax", content: "[serial\n"},
		{name: "empty device", content: "[serial]\ndevice = \"\"\n"},
		{name: "bad level", content: "[log]\nlevel = \"loud\"\n"},
		{name: "bad format", content: "[log]\nformat = \"xml\"\n"},
		{name: "negative retries", content: "[registry]\nack_retries = -1\n"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.content))
			require.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	require.Error(t, err)
}
