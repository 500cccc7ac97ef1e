// ccmuxd is the background daemon that owns the session tree, spawns
// and supervises PTYs, and serves the wire protocol to attached
// clients over a Unix domain socket.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/ianremillard/ccmux/internal/config"
	"github.com/ianremillard/ccmux/internal/daemon"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	var configPath string

	root := &cobra.Command{
		Use:   "ccmuxd",
		Short: "ccmux background daemon",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(configPath)
		},
	}
	root.Flags().StringVar(&configPath, "config", "", "config file path (default: XDG config dir)")

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func run(configPath string) error {
	level := zerolog.InfoLevel
	if v := os.Getenv("CCMUX_LOG"); v != "" {
		if l, err := zerolog.ParseLevel(v); err == nil {
			level = l
		}
	}
	zerolog.SetGlobalLevel(level)

	path := configPath
	if path == "" {
		path = config.DefaultConfigPath()
	}
	cfg, err := config.Load(path)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	socketPath := cfg.Listen.SocketPath
	if socketPath == "" {
		socketPath = config.DefaultSocketPath()
	}

	d := daemon.New(cfg, version)
	defer d.Close()

	srv, err := daemon.Listen(d, socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	log.Info().Str("socket", socketPath).Str("version", version).Msg("ccmuxd listening")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve() }()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down")
		_ = srv.Close()
		_ = os.Remove(socketPath)
		return nil
	case err := <-errCh:
		return err
	}
}
