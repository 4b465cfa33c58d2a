package main

import (
	"context"
	"fmt"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/probe"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Probe the target host once",
	Long: `Run one reachability probe against the configured target and print the
result. No passcode is needed and no control line is touched.`,
	RunE: runStatus,
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report, err := probe.New(log.Logger).Probe(context.Background(), cfg.Target, cfg.Probe)
	if err != nil {
		log.Error().Err(err).Msg("probe failed")
		return err
	}

	fmt.Printf("%s:%d is %s (%s)\n", cfg.Target.Host, cfg.Target.Port, report.Result, report.Duration.Round(time.Millisecond))
	printCheck("ICMP", report.ICMP)
	printCheck(fmt.Sprintf("TCP %d", cfg.Target.Port), report.Port)
	if cfg.Probe.SSHHandshake {
		fmt.Printf("  SSH ready: %v\n", report.SSHReady)
	}

	return nil
}

func printCheck(name string, c models.CheckOutcome) {
	switch {
	case !c.Attempted:
		fmt.Printf("  %s: skipped\n", name)
	case c.Up:
		fmt.Printf("  %s: up (%s)\n", name, c.Latency.Round(100*time.Microsecond))
	case c.Indeterminate:
		fmt.Printf("  %s: unavailable (%v)\n", name, c.Error)
	default:
		fmt.Printf("  %s: down (%v)\n", name, c.Error)
	}
}
