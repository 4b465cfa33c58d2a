package main

import (
	"fmt"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/pulse"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// controllers owns the opened control lines for the lifetime of a command.
type controllers struct {
	boot   *pulse.Impl
	reboot *pulse.Impl
}

// openControllers requests the configured GPIO lines, or log-only lines when
// dryRun is set.
func openControllers(logger zerolog.Logger, cfg models.GPIOConfig, dryRun bool) (*controllers, error) {
	open := func(name string, lc models.LineConfig) (*pulse.Impl, error) {
		if dryRun {
			return pulse.New(logger, name, pulse.NewLogLine(logger, name), lc.Width), nil
		}
		line, err := pulse.OpenGPIO(cfg.Chip, lc)
		if err != nil {
			return nil, fmt.Errorf("%s line: %w", name, err)
		}
		return pulse.New(logger, name, line, lc.Width), nil
	}

	c := &controllers{}
	var err error
	if c.boot, err = open("boot", cfg.Boot); err != nil {
		return nil, err
	}
	if cfg.Reboot != nil {
		if c.reboot, err = open("reboot", *cfg.Reboot); err != nil {
			c.Close()
			return nil, err
		}
	}
	return c, nil
}

// rebootService returns the reboot controller, or a nil interface when the
// board has no reboot line.
func (c *controllers) rebootService() pulse.Service {
	if c.reboot == nil {
		return nil
	}
	return c.reboot
}

// Close drives every line Low and releases it.
func (c *controllers) Close() {
	for _, ctrl := range []*pulse.Impl{c.boot, c.reboot} {
		if ctrl == nil {
			continue
		}
		if err := ctrl.Close(); err != nil {
			log.Error().Err(err).Msg("failed to release control line")
		}
	}
}
