package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lunahq/orbiter/internal/config"
	"github.com/lunahq/orbiter/internal/daemon"
	"github.com/lunahq/orbiter/internal/logger"
	"github.com/lunahq/orbiter/pkg/channels"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const stopTimeout = 10 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Orbiter daemon",
	Long: `Start the Orbiter daemon in the foreground.
The daemon routes inbound messages to sessions, runs the agent per session,
and records observations until interrupted.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	loader := config.NewLoader(cfgFile)
	cfg, err := loader.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}

	lg, err := logger.New(logger.Config{
		Level:     cfg.Logging.Level,
		File:      cfg.Logging.File,
		Console:   cfg.Logging.Console,
		Pretty:    cfg.Logging.Pretty,
		Redaction: cfg.Logging.Redaction,
		MaxSizeMB: cfg.Logging.MaxSizeMB,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer lg.Close()

	d, err := daemon.New(cfg, daemon.Options{})
	if err != nil {
		return err
	}

	// Built-in operator ingress; wire adapters register here too.
	if err := d.Channels().Register(channels.NewDirectChannel("direct")); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if err := d.Start(ctx, loader); err != nil {
		return err
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	return d.Stop(stopCtx)
}
