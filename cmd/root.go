package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/bnema/virtway/internal/config"
	"github.com/bnema/virtway/internal/logger"
	"github.com/bnema/virtway/internal/relay"
	"github.com/bnema/virtway/internal/virtgpu"
	"github.com/bnema/virtway/internal/wire"
)

var (
	flagConfig    string
	flagSocket    string
	flagTag       string
	flagClipName  string
	flagDirectShm bool
)

var rootCmd = &cobra.Command{
	Use:   "virtway",
	Short: "Wayland relay between guest clients and a host compositor",
	Long: `virtway listens on a guest-facing Wayland socket and relays every
client to the host compositor, translating object ids, mirroring
shared-memory buffers into host-visible allocations and namespacing
clipboard MIME types.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if flagConfig != "" {
			config.SetConfigPath(flagConfig)
		}
		if err := config.Init(); err != nil {
			return err
		}
		if lvl := config.Get().Logging.LogLevel; lvl != "" {
			logger.SetLevel(lvl)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		return runRelay(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.Flags().StringVar(&flagSocket, "socket", "", "guest-facing socket path")
	rootCmd.Flags().StringVar(&flagTag, "tag", "", "window title tag")
	rootCmd.Flags().StringVar(&flagClipName, "clipname", "", "clipboard namespace prefix (empty disables)")
	rootCmd.Flags().BoolVar(&flagDirectShm, "direct-shm", false, "forward guest shm descriptors untouched")
}

// Execute runs the root command.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	return rootCmd.ExecuteContext(ctx)
}

func runRelay(cmd *cobra.Command) error {
	ctx := cmd.Context()
	cfg := config.Get()
	if flagTag != "" {
		cfg.Relay.Tag = flagTag
	}
	if flagSocket != "" {
		cfg.Relay.ListenSocket = flagSocket
	}
	if flagDirectShm {
		cfg.Relay.DirectShm = true
	}

	clipName := cfg.Relay.ClipName
	if cmd.Flags().Changed("clipname") {
		clipName = &flagClipName
	}
	clip := relay.NewClipboard(clipName)

	path := config.ListenSocketPath()
	listener, err := wire.Listen(path)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", path, err)
	}
	defer listener.Close()
	logger.Info("listening for guest clients", "socket", path, "clip_prefix", clip.Prefix())

	go func() {
		<-ctx.Done()
		listener.Close()
	}()

	device := virtgpu.NewMemfd()
	for {
		conn, err := listener.AcceptUnix()
		if err != nil {
			if ctx.Err() != nil {
				logger.Info("shutting down")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("accept: %w", err)
		}
		go serveClient(ctx, conn, cfg, clip, device)
	}
}

func serveClient(ctx context.Context, conn *net.UnixConn, cfg *config.Config, clip *relay.Clipboard, device virtgpu.Device) {
	guest := wire.NewConn(conn)

	var host *wire.Conn
	var err error
	if cfg.Relay.HostSocket != "" {
		host, err = wire.DialPath(cfg.Relay.HostSocket)
	} else {
		host, err = wire.Dial()
	}
	if err != nil {
		logger.Error("cannot reach host compositor", "err", err)
		guest.Close()
		return
	}

	sess := relay.NewSession(guest, host, relay.Options{
		Tag:       cfg.Relay.Tag,
		Clipboard: clip,
		DirectShm: cfg.Relay.DirectShm,
		Device:    device,
		Log:       logger.Logger,
	})
	if err := sess.Run(ctx); err != nil {
		logger.Error("session ended", "err", err)
	}
}
