// Package config provides configuration file parsing.
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/spf13/viper"
)

// Default values applied when a key is absent.
const (
	DefaultPort         = 22
	DefaultUsername     = "pi"
	DefaultChip         = "gpiochip0"
	DefaultPulseWidth   = 300 * time.Millisecond
	DefaultProbeTimeout = 750 * time.Millisecond
	DefaultListen       = ":8080"
	DefaultBroadcastIP  = "255.255.255.255"
)

// Bounds enforced by Validate.
const (
	MinPulseWidth   = 10 * time.Millisecond
	MaxPulseWidth   = time.Second
	MinProbeTimeout = 100 * time.Millisecond
	MaxProbeTimeout = 10 * time.Second
	PasscodeLength  = 6
)

// Parser handles configuration file parsing.
type Parser struct {
	v *viper.Viper
}

// NewParser creates a new configuration parser.
func NewParser() *Parser {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("target.port", DefaultPort)
	v.SetDefault("target.username", DefaultUsername)
	v.SetDefault("gpio.chip", DefaultChip)
	v.SetDefault("gpio.boot.width", DefaultPulseWidth)
	v.SetDefault("probe.timeout", DefaultProbeTimeout)
	v.SetDefault("probe.icmp", true)
	v.SetDefault("probe.ssh_handshake", true)
	v.SetDefault("safety.boot_on_probe_error", false)
	v.SetDefault("server.listen", DefaultListen)
	return &Parser{v: v}
}

// LoadFile loads configuration from a file path.
func (p *Parser) LoadFile(path string) (*models.Config, error) {
	p.v.SetConfigFile(path)

	if err := p.v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return p.parse()
}

// LoadReader loads configuration from a reader (useful for testing).
func (p *Parser) LoadReader(content string) (*models.Config, error) {
	if err := p.v.ReadConfig(strings.NewReader(content)); err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	return p.parse()
}

func (p *Parser) parse() (*models.Config, error) {
	cfg := &models.Config{
		Target: models.TargetConfig{
			Host:     p.v.GetString("target.host"),
			Port:     p.v.GetInt("target.port"),
			Username: p.expandEnv(p.v.GetString("target.username")),
		},
		// Quote passcodes in YAML: an unquoted value with a leading zero is read as a number.
		Passcode: p.expandEnv(p.v.GetString("passcode")),
		GPIO: models.GPIOConfig{
			Chip: p.v.GetString("gpio.chip"),
			Boot: models.LineConfig{
				Offset:    p.v.GetInt("gpio.boot.line"),
				Width:     p.v.GetDuration("gpio.boot.width"),
				ActiveLow: p.v.GetBool("gpio.boot.active_low"),
			},
		},
		Probe: models.ProbeConfig{
			Timeout:      p.v.GetDuration("probe.timeout"),
			ICMP:         p.v.GetBool("probe.icmp"),
			SSHHandshake: p.v.GetBool("probe.ssh_handshake"),
		},
		Safety: models.SafetySettings{
			BootOnProbeError: p.v.GetBool("safety.boot_on_probe_error"),
		},
		Server: models.ServerConfig{
			Listen: p.v.GetString("server.listen"),
		},
	}

	if cfg.Target.Host == "" {
		return nil, fmt.Errorf("target.host is required")
	}
	if !p.v.IsSet("gpio.boot.line") {
		return nil, fmt.Errorf("gpio.boot.line is required")
	}

	// Parse optional reboot line.
	if p.v.IsSet("gpio.reboot") {
		if !p.v.IsSet("gpio.reboot.line") {
			return nil, fmt.Errorf("gpio.reboot.line is required when gpio.reboot is configured")
		}
		cfg.GPIO.Reboot = &models.LineConfig{
			Offset:    p.v.GetInt("gpio.reboot.line"),
			Width:     p.v.GetDuration("gpio.reboot.width"),
			ActiveLow: p.v.GetBool("gpio.reboot.active_low"),
		}
		if cfg.GPIO.Reboot.Width == 0 {
			cfg.GPIO.Reboot.Width = DefaultPulseWidth
		}
	}

	// Parse optional WOL config.
	if p.v.IsSet("wol") {
		cfg.WOL = &models.WOLConfig{
			MACAddress:  p.v.GetString("wol.mac_address"),
			BroadcastIP: p.v.GetString("wol.broadcast_ip"),
		}

		if cfg.WOL.MACAddress == "" {
			return nil, fmt.Errorf("wol.mac_address is required when wol is configured")
		}
		if cfg.WOL.BroadcastIP == "" {
			cfg.WOL.BroadcastIP = DefaultBroadcastIP
		}
	}

	// Parse optional Telegram config.
	if p.v.IsSet("telegram") {
		cfg.Telegram = &models.TelegramConfig{
			BotToken: p.expandEnv(p.v.GetString("telegram.bot_token")),
			ChatID:   p.expandEnv(p.v.GetString("telegram.chat_id")),
		}

		if cfg.Telegram.BotToken == "" {
			return nil, fmt.Errorf("telegram.bot_token is required when telegram is configured")
		}
		if cfg.Telegram.ChatID == "" {
			return nil, fmt.Errorf("telegram.chat_id is required when telegram is configured")
		}
	}

	return cfg, nil
}

// expandEnv expands environment variables in the format ${VAR} or $VAR.
func (p *Parser) expandEnv(s string) string {
	return os.ExpandEnv(s)
}

// Validate performs validation on the loaded configuration.
func Validate(cfg *models.Config) error {
	if cfg == nil {
		return fmt.Errorf("configuration is nil")
	}

	if cfg.Target.Host == "" {
		return fmt.Errorf("target.host is required")
	}
	if cfg.Target.Port < 1 || cfg.Target.Port > 65535 {
		return fmt.Errorf("target.port must be between 1 and 65535, got %d", cfg.Target.Port)
	}

	if err := ValidatePasscode(cfg.Passcode); err != nil {
		return err
	}

	if cfg.GPIO.Chip == "" {
		return fmt.Errorf("gpio.chip is required")
	}
	if err := validateLine("gpio.boot", cfg.GPIO.Boot); err != nil {
		return err
	}
	if cfg.GPIO.Reboot != nil {
		if err := validateLine("gpio.reboot", *cfg.GPIO.Reboot); err != nil {
			return err
		}
		if cfg.GPIO.Reboot.Offset == cfg.GPIO.Boot.Offset {
			return fmt.Errorf("gpio.reboot.line must differ from gpio.boot.line")
		}
	}

	if cfg.Probe.Timeout < MinProbeTimeout || cfg.Probe.Timeout > MaxProbeTimeout {
		return fmt.Errorf("probe.timeout must be between %s and %s, got %s", MinProbeTimeout, MaxProbeTimeout, cfg.Probe.Timeout)
	}

	if cfg.WOL != nil {
		if _, err := net.ParseMAC(cfg.WOL.MACAddress); err != nil {
			return fmt.Errorf("wol.mac_address is invalid: %w", err)
		}
		if net.ParseIP(cfg.WOL.BroadcastIP) == nil {
			return fmt.Errorf("wol.broadcast_ip is invalid: %q", cfg.WOL.BroadcastIP)
		}
	}

	return nil
}

// ValidatePasscode checks that a passcode is exactly six ASCII digits.
func ValidatePasscode(code string) error {
	if len(code) != PasscodeLength {
		return fmt.Errorf("passcode must be exactly %d digits", PasscodeLength)
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return fmt.Errorf("passcode must be numeric")
		}
	}
	return nil
}

func validateLine(key string, l models.LineConfig) error {
	if l.Offset < 0 {
		return fmt.Errorf("%s.line must not be negative, got %d", key, l.Offset)
	}
	if l.Width < MinPulseWidth || l.Width > MaxPulseWidth {
		return fmt.Errorf("%s.width must be between %s and %s, got %s", key, MinPulseWidth, MaxPulseWidth, l.Width)
	}
	return nil
}
