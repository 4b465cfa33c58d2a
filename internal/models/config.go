// Package models contains the data structures used throughout pulsegate.
package models

import "time"

// Config holds the complete, validated configuration for one pulsegate instance.
// It is built once at startup and passed by value to every service.
type Config struct {
	Target   TargetConfig
	Passcode string
	GPIO     GPIOConfig
	Probe    ProbeConfig
	Safety   SafetySettings
	Server   ServerConfig
	WOL      *WOLConfig      // nil if not configured
	Telegram *TelegramConfig // nil if not configured
}

// TargetConfig describes the downstream host.
type TargetConfig struct {
	Host     string
	Port     int    // port checked by the reachability probe (default 22)
	Username string // SSH user named in the handshake; no credentials are sent
}

// GPIOConfig holds the hardware control lines.
type GPIOConfig struct {
	Chip   string
	Boot   LineConfig
	Reboot *LineConfig // nil if the board only wires the boot line
}

// LineConfig describes one digital output line and its fixed pulse width.
type LineConfig struct {
	Offset    int
	Width     time.Duration
	ActiveLow bool
}

// ProbeConfig holds reachability probe settings.
type ProbeConfig struct {
	Timeout      time.Duration
	ICMP         bool // send an ICMP echo alongside the port check
	SSHHandshake bool // run an SSH key exchange once the port is open
}

// SafetySettings holds tunable safety policy.
type SafetySettings struct {
	// BootOnProbeError lets Boot and Wake proceed when reachability is indeterminate.
	BootOnProbeError bool
}

// ServerConfig holds HTTP router settings.
type ServerConfig struct {
	Listen string
}
