package main

import (
	"fmt"
	"os"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const redacted = "(redacted)"

var printConfig bool

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the configuration file without opening any control line.
With --print the effective configuration, defaults included, is written as
YAML with secrets redacted.`,
	RunE: validateConfig,
}

func init() {
	validateCmd.Flags().BoolVar(&printConfig, "print", false, "print the effective configuration as YAML")
}

func validateConfig(cmd *cobra.Command, args []string) error {
	if configFile != "" {
		if _, err := os.Stat(configFile); os.IsNotExist(err) {
			log.Error().Str("file", configFile).Msg("config file not found")
			return fmt.Errorf("config file not found: %s", configFile)
		}
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	if printConfig {
		out, err := yaml.Marshal(effectiveConfig(cfg))
		if err != nil {
			return fmt.Errorf("failed to encode config: %w", err)
		}
		fmt.Print(string(out))
		return nil
	}

	fmt.Println("Configuration is valid!")
	fmt.Println()
	fmt.Println("Target:")
	fmt.Printf("  Host: %s\n", cfg.Target.Host)
	fmt.Printf("  Port: %d\n", cfg.Target.Port)
	fmt.Printf("  Username: %s\n", cfg.Target.Username)
	fmt.Println()
	fmt.Println("Control Lines:")
	fmt.Printf("  Chip: %s\n", cfg.GPIO.Chip)
	fmt.Printf("  Boot: line %d, %s pulse\n", cfg.GPIO.Boot.Offset, cfg.GPIO.Boot.Width)
	if cfg.GPIO.Reboot != nil {
		fmt.Printf("  Reboot: line %d, %s pulse\n", cfg.GPIO.Reboot.Offset, cfg.GPIO.Reboot.Width)
	}
	fmt.Println()
	fmt.Println("Probe:")
	fmt.Printf("  Timeout: %s\n", cfg.Probe.Timeout)
	fmt.Printf("  ICMP: %v\n", cfg.Probe.ICMP)
	fmt.Printf("  SSH Handshake: %v\n", cfg.Probe.SSHHandshake)
	fmt.Printf("  Boot On Probe Error: %v\n", cfg.Safety.BootOnProbeError)
	fmt.Println()
	fmt.Println("Optional Features:")
	fmt.Printf("  Soft Reboot: %v\n", cfg.GPIO.Reboot != nil)
	fmt.Printf("  Wake-on-LAN: %v\n", cfg.WOL != nil)
	fmt.Printf("  Telegram: %v\n", cfg.Telegram != nil)
	fmt.Printf("  Listen: %s\n", cfg.Server.Listen)

	if cfg.WOL != nil {
		fmt.Println()
		fmt.Println("WOL Configuration:")
		fmt.Printf("  MAC Address: %s\n", cfg.WOL.MACAddress)
		fmt.Printf("  Broadcast IP: %s\n", cfg.WOL.BroadcastIP)
	}

	if cfg.Telegram != nil {
		fmt.Println()
		fmt.Println("Telegram Configuration:")
		fmt.Printf("  Chat ID: %s\n", cfg.Telegram.ChatID)
		fmt.Printf("  Bot Token: (configured)\n")
	}

	return nil
}

// fileConfig mirrors the configuration file layout for --print.
type fileConfig struct {
	Target struct {
		Host     string `yaml:"host"`
		Port     int    `yaml:"port"`
		Username string `yaml:"username"`
	} `yaml:"target"`
	Passcode string `yaml:"passcode"`
	GPIO     struct {
		Chip   string    `yaml:"chip"`
		Boot   fileLine  `yaml:"boot"`
		Reboot *fileLine `yaml:"reboot,omitempty"`
	} `yaml:"gpio"`
	Probe struct {
		Timeout      string `yaml:"timeout"`
		ICMP         bool   `yaml:"icmp"`
		SSHHandshake bool   `yaml:"ssh_handshake"`
	} `yaml:"probe"`
	Safety struct {
		BootOnProbeError bool `yaml:"boot_on_probe_error"`
	} `yaml:"safety"`
	Server struct {
		Listen string `yaml:"listen"`
	} `yaml:"server"`
	WOL *struct {
		MACAddress  string `yaml:"mac_address"`
		BroadcastIP string `yaml:"broadcast_ip"`
	} `yaml:"wol,omitempty"`
	Telegram *struct {
		BotToken string `yaml:"bot_token"`
		ChatID   string `yaml:"chat_id"`
	} `yaml:"telegram,omitempty"`
}

type fileLine struct {
	Line      int    `yaml:"line"`
	Width     string `yaml:"width"`
	ActiveLow bool   `yaml:"active_low"`
}

func toFileLine(l models.LineConfig) fileLine {
	return fileLine{Line: l.Offset, Width: l.Width.String(), ActiveLow: l.ActiveLow}
}

// effectiveConfig converts cfg back to the file layout with secrets redacted.
func effectiveConfig(cfg *models.Config) fileConfig {
	var out fileConfig

	out.Target.Host = cfg.Target.Host
	out.Target.Port = cfg.Target.Port
	out.Target.Username = cfg.Target.Username
	out.Passcode = redacted

	out.GPIO.Chip = cfg.GPIO.Chip
	out.GPIO.Boot = toFileLine(cfg.GPIO.Boot)
	if cfg.GPIO.Reboot != nil {
		l := toFileLine(*cfg.GPIO.Reboot)
		out.GPIO.Reboot = &l
	}

	out.Probe.Timeout = cfg.Probe.Timeout.String()
	out.Probe.ICMP = cfg.Probe.ICMP
	out.Probe.SSHHandshake = cfg.Probe.SSHHandshake
	out.Safety.BootOnProbeError = cfg.Safety.BootOnProbeError
	out.Server.Listen = cfg.Server.Listen

	if cfg.WOL != nil {
		out.WOL = &struct {
			MACAddress  string `yaml:"mac_address"`
			BroadcastIP string `yaml:"broadcast_ip"`
		}{cfg.WOL.MACAddress, cfg.WOL.BroadcastIP}
	}
	if cfg.Telegram != nil {
		out.Telegram = &struct {
			BotToken string `yaml:"bot_token"`
			ChatID   string `yaml:"chat_id"`
		}{redacted, cfg.Telegram.ChatID}
	}

	return out
}
