package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/pulsegate/internal/server"
	"github.com/fgeck/pulsegate/internal/services/dispatcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var dryRun bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve control actions over HTTP",
	Long: `Open the control lines and serve the control actions over HTTP:
  GET /boot?passcode=NNNNNN    probe, then pulse the boot line if offline
  GET /status?passcode=NNNNNN  report online / offline / unknown
  GET /reboot?passcode=NNNNNN  pulse the reboot line (if wired)
  GET /wake?passcode=NNNNNN    probe, then send Wake-on-LAN if offline
  GET /healthz                 liveness, no passcode

With --dry-run the lines are simulated and every transition is logged.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate GPIO lines instead of opening the chip")
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info().
		Str("config", configFile).
		Str("host", cfg.Target.Host).
		Int("port", cfg.Target.Port).
		Str("chip", cfg.GPIO.Chip).
		Bool("dry_run", dryRun).
		Msg("configuration loaded")

	lines, err := openControllers(log.Logger, cfg.GPIO, dryRun)
	if err != nil {
		log.Error().Err(err).Msg("failed to open control lines")
		return err
	}
	defer lines.Close()

	// Set up context with signal handling
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigChan
		log.Warn().Str("signal", sig.String()).Msg("received signal, shutting down")
		cancel()
	}()

	disp := dispatcher.New(log.Logger, *cfg, lines.boot, lines.rebootService())
	srv := server.New(disp, cfg.Server.Listen, log.Logger)
	if err := srv.Start(ctx); err != nil {
		log.Error().Err(err).Msg("failed to start server")
		return err
	}

	<-srv.Done()
	disp.Close()

	log.Info().Msg("shutdown complete")
	return nil
}
