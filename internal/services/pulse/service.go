// Package pulse drives a hardware control line through a fixed-width
// High-then-Low pulse, emulating a reset-button press on the downstream host.
package pulse

import (
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

// ErrBusy is returned when a pulse is already in flight on the line.
// Callers should retry once the pulse width has elapsed.
var ErrBusy = errors.New("pulse already in progress")

// HardwareFaultError reports that the line could not be driven.
type HardwareFaultError struct {
	Line string
	Op   string // "assert" or "release"
	Err  error
}

func (e *HardwareFaultError) Error() string {
	return fmt.Sprintf("line %s: %s failed: %v", e.Line, e.Op, e.Err)
}

func (e *HardwareFaultError) Unwrap() error { return e.Err }

// Service defines the interface for pulse operations.
type Service interface {
	Pulse() error
	Width() time.Duration
}

// Impl owns one output line. It is the only writer of that line.
type Impl struct {
	name   string
	line   Line
	width  time.Duration
	busy   atomic.Bool
	sleep  func(time.Duration)
	logger zerolog.Logger
}

// New creates a pulse controller for line with a fixed width.
func New(logger zerolog.Logger, name string, line Line, width time.Duration) *Impl {
	return NewWithSleep(logger, name, line, width, time.Sleep)
}

// NewWithSleep creates a pulse controller with a custom delay function (for testing).
func NewWithSleep(logger zerolog.Logger, name string, line Line, width time.Duration, sleep func(time.Duration)) *Impl {
	return &Impl{
		name:   name,
		line:   line,
		width:  width,
		sleep:  sleep,
		logger: logger.With().Str("line", name).Logger(),
	}
}

// Width returns the configured pulse width.
func (c *Impl) Width() time.Duration {
	return c.width
}

// Pulse sets the line High, waits for the configured width and sets it Low.
// A pulse always runs to completion; the Low transition runs on every exit
// path, including a failed assert and a panic. A concurrent call fails fast
// with ErrBusy.
func (c *Impl) Pulse() (err error) {
	if !c.busy.CompareAndSwap(false, true) {
		c.logger.Warn().Msg("pulse rejected, line busy")
		return ErrBusy
	}
	defer c.busy.Store(false)

	start := time.Now()
	defer func() {
		if lowErr := c.line.SetValue(Low); lowErr != nil {
			c.logger.Error().Err(lowErr).Msg("failed to release line")
			if err == nil {
				err = &HardwareFaultError{Line: c.name, Op: "release", Err: lowErr}
			}
			return
		}
		c.logger.Info().
			Dur("held", time.Since(start)).
			Bool("ok", err == nil).
			Msg("line released")
	}()

	c.logger.Info().Dur("width", c.width).Msg("asserting line")
	if err := c.line.SetValue(High); err != nil {
		return &HardwareFaultError{Line: c.name, Op: "assert", Err: err}
	}

	c.sleep(c.width)
	return nil
}

// Close drives the line Low and releases it.
func (c *Impl) Close() error {
	lowErr := c.line.SetValue(Low)
	closeErr := c.line.Close()
	if lowErr != nil {
		return fmt.Errorf("release line %s: %w", c.name, lowErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close line %s: %w", c.name, closeErr)
	}
	return nil
}
