package models

import "time"

// ProbeResult is the tri-state reachability verdict.
type ProbeResult int

// Probe verdicts.
const (
	ProbeOnline ProbeResult = iota + 1
	ProbeOffline
	ProbeError
)

func (r ProbeResult) String() string {
	switch r {
	case ProbeOnline:
		return "online"
	case ProbeOffline:
		return "offline"
	case ProbeError:
		return "error"
	default:
		return "unknown"
	}
}

// CheckOutcome holds the result of a single reachability check.
type CheckOutcome struct {
	Attempted bool
	Up        bool
	// Indeterminate is set when the check could not be performed at all
	// (resolution failure, socket permission denied), as opposed to a timeout
	// or refusal which is a definitive "down".
	Indeterminate bool
	Latency       time.Duration
	Error         error
}

// ProbeReport holds the combined result of a reachability probe.
type ProbeReport struct {
	Result   ProbeResult
	ICMP     CheckOutcome
	Port     CheckOutcome
	SSHReady bool
	Duration time.Duration
}
