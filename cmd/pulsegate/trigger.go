package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/dispatcher"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var passcode string

var triggerCmd = &cobra.Command{
	Use:   "trigger <boot|status|reboot|wake>",
	Short: "Run one control action locally",
	Long: `Run one control action through the same passcode gate and safety checks
as the HTTP server, then exit. The exit status is non-zero unless the action
was executed.`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"boot", "status", "reboot", "wake"},
	RunE:      runTrigger,
}

func init() {
	triggerCmd.Flags().StringVar(&passcode, "passcode", os.Getenv("PULSEGATE_PASSCODE"), "6-digit passcode (default $PULSEGATE_PASSCODE)")
	triggerCmd.Flags().BoolVar(&dryRun, "dry-run", false, "simulate GPIO lines instead of opening the chip")
}

func runTrigger(cmd *cobra.Command, args []string) error {
	action, err := models.ParseAction(args[0])
	if err != nil {
		return err
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	lines, err := openControllers(log.Logger, cfg.GPIO, dryRun)
	if err != nil {
		log.Error().Err(err).Msg("failed to open control lines")
		return err
	}
	defer lines.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	disp := dispatcher.New(log.Logger, *cfg, lines.boot, lines.rebootService())
	result := disp.Handle(ctx, models.ControlRequest{Action: action, Passcode: passcode})
	disp.Close()

	fmt.Println(result.Message)
	if result.Outcome != models.OutcomeExecuted {
		return fmt.Errorf("%s: %s", result.Action, result.Outcome)
	}
	return nil
}
