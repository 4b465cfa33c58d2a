package pulse

import (
	"fmt"
	"sync"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/rs/zerolog"
	"github.com/warthog618/go-gpiocdev"
)

// Logical line levels.
const (
	Low  = 0
	High = 1
)

// consumer is the label the kernel shows for lines we hold.
const consumer = "pulsegate"

// Line is a single digital output line. *gpiocdev.Line satisfies it.
type Line interface {
	SetValue(value int) error
	Close() error
}

// OpenGPIO requests a line on a GPIO character device as an output driven Low.
func OpenGPIO(chip string, cfg models.LineConfig) (Line, error) {
	opts := []gpiocdev.LineReqOption{
		gpiocdev.AsOutput(Low),
		gpiocdev.WithConsumer(consumer),
	}
	if cfg.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}

	line, err := gpiocdev.RequestLine(chip, cfg.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s line %d: %w", chip, cfg.Offset, err)
	}
	return line, nil
}

// LogLine is an in-memory line that logs every transition. It lets the
// service run without GPIO hardware.
type LogLine struct {
	mu     sync.Mutex
	name   string
	value  int
	logger zerolog.Logger
}

// NewLogLine creates a dry-run line starting Low.
func NewLogLine(logger zerolog.Logger, name string) *LogLine {
	return &LogLine{name: name, logger: logger}
}

// SetValue records and logs the new level.
func (l *LogLine) SetValue(value int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.value = value
	l.logger.Info().Str("line", l.name).Int("value", value).Msg("dry-run line set")
	return nil
}

// Value returns the current level.
func (l *LogLine) Value() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.value
}

// Close is a no-op.
func (l *LogLine) Close() error { return nil }
