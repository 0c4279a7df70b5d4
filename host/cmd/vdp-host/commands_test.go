package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"vdp/protocol"
)

func TestVersion(t *testing.T) {
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"version"})
	require.NoError(t, rootCmd.Execute())
	require.Contains(t, out.String(), protocol.Version)
}

func TestFlagsOverrideConfig(t *testing.T) {
	requireT := require.New(t)

	configPath, device, baud, verbose = "", "/dev/ttyS3", 9600, true
	defer func() {
		configPath, device, baud, verbose = "", "", 0, false
	}()

	cfg, err := loadConfig()
	requireT.NoError(err)
	requireT.Equal("/dev/ttyS3", cfg.Serial.Device)
	requireT.Equal(9600, cfg.Serial.Baud)
	requireT.Equal("debug", cfg.Log.Level)
}

func TestHostStatusSchema(t *testing.T) {
	requireT := require.New(t)

	part := hostStatus()
	part.Fetch()

	packet := protocol.NewPacketWriter().WriteBroadcast(1, part)
	requireT.NoError(protocol.ValidatePacket(packet))
	_, schema, err := protocol.DecodeBroadcast(packet)
	requireT.NoError(err)
	requireT.True(protocol.SameShape(part, schema))
}
