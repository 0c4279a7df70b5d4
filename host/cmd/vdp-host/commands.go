package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/outofforest/logger"
	"github.com/outofforest/parallel"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"vdp/host/config"
	"vdp/host/peer"
	"vdp/host/serial"
	"vdp/protocol"
	"vdp/registry"
)

var (
	// Global flags
	configPath string
	device     string
	baud       int
	verbose    bool

	// stream flags
	interval time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "vdp-host",
	Short: "Host side of the channel protocol over a serial link",
	Long: `vdp-host - connects to a peer over a serial port.

A controller announces channel schemas and streams values once the peer
acknowledged them. A listener mirrors the announced channels and receives
their values.

Examples:
  # Print everything a device streams
  vdp-host listen --device /dev/ttyACM0

  # Stream host status every 100ms using a config file
  vdp-host stream -c vdp.toml --interval 100ms`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Mirror channels announced by the peer and print their values",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		out := cmd.OutOrStdout()
		return run(cmd, registry.Listener, nil,
			registry.WithBroadcastCallback(func(ch registry.Channel) {
				fmt.Fprintf(out, "channel %d announced:\n%s\n", ch.ID, protocol.Describe(ch.Data))
			}),
			registry.WithDataCallback(func(ch registry.Channel) {
				fmt.Fprintf(out, "channel %d:\n%s\n", ch.ID, protocol.DescribeData(ch.Data))
			}),
		)
	},
}

var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Announce a host status channel and stream it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if interval <= 0 {
			return errors.Errorf("interval must be positive, got %s", interval)
		}
		return run(cmd, registry.Controller, func(ctx context.Context, p *peer.Peer) error {
			id, err := p.Registry().OpenChannel(hostStatus())
			if err != nil {
				return err
			}
			return p.Stream(ctx, interval, id)
		})
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show protocol version",
	Args:  cobra.NoArgs,
	Run: func(cmd *cobra.Command, _ []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "vdp-host protocol %s\n", protocol.Version)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "TOML config file")
	rootCmd.PersistentFlags().StringVarP(&device, "device", "d", "", "serial device path (overrides config)")
	rootCmd.PersistentFlags().IntVar(&baud, "baud", 0, "baud rate (overrides config, ignored for USB CDC)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	streamCmd.Flags().DurationVar(&interval, "interval", time.Second, "time between updates")

	rootCmd.AddCommand(listenCmd, streamCmd, versionCmd)
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if configPath != "" {
		var err error
		if cfg, err = config.Load(configPath); err != nil {
			return config.Config{}, err
		}
	}
	if device != "" {
		cfg.Serial.Device = device
	}
	if baud > 0 {
		cfg.Serial.Baud = baud
	}
	if verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, cfg.Validate()
}

func newLogger(cfg config.Log) (*zap.Logger, error) {
	level, err := cfg.ZapLevel()
	if err != nil {
		return nil, err
	}

	zapCfg := zap.NewDevelopmentConfig()
	if cfg.Format == config.FormatJSON {
		zapCfg = zap.NewProductionConfig()
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	log, err := zapCfg.Build()
	return log, errors.WithStack(err)
}

func run(
	cmd *cobra.Command,
	side registry.Side,
	task func(ctx context.Context, p *peer.Peer) error,
	opts ...registry.Option,
) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log, err := newLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer func() {
		_ = log.Sync()
	}()

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	ctx = logger.WithLogger(ctx, log)

	port, err := serial.Open(cfg.Serial)
	if err != nil {
		return err
	}
	log.Info("Serial port open",
		zap.String("device", port.Device()), zap.Int("baud", cfg.Serial.Baud), zap.Stringer("side", side))

	p := peer.New(cfg, side, log, opts...)

	err = parallel.Run(ctx, func(ctx context.Context, spawn parallel.SpawnFn) error {
		spawn("peer", parallel.Fail, func(ctx context.Context) error {
			return p.Run(ctx, port)
		})
		if task != nil {
			spawn("task", parallel.Fail, func(ctx context.Context) error {
				return task(ctx, p)
			})
		}
		return nil
	})

	stats := p.Link().Stats()
	log.Info("Link closed",
		zap.Uint64("sent", stats.Sent),
		zap.Uint64("received", stats.Received),
		zap.Uint64("droppedInbound", stats.DroppedInbound),
		zap.Uint64("droppedOutbound", stats.DroppedOutbound))

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// hostStatus is the channel streamed by the stream command
func hostStatus() protocol.Part {
	start := time.Now()
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return protocol.NewTimestamped("host",
		protocol.NewRecord("status",
			protocol.NewString("hostname", func() string { return hostname }),
			protocol.NewNumber("uptime", func() float64 { return time.Since(start).Seconds() }),
			protocol.NewNumber("pid", func() int32 { return int32(os.Getpid()) }),
		),
		func() uint32 { return uint32(time.Since(start).Milliseconds()) },
	)
}
