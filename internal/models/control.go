package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Action is a control action requested by an operator.
type Action int

// Supported actions.
const (
	ActionBoot Action = iota + 1
	ActionStatus
	ActionSoftReboot
	ActionWake
)

// ErrInvalidAction is returned by ParseAction for unknown tokens.
var ErrInvalidAction = errors.New("invalid action")

// ParseAction converts a request token ("boot", "status", "reboot", "wake") into an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "boot":
		return ActionBoot, nil
	case "status":
		return ActionStatus, nil
	case "reboot", "soft_reboot", "softreboot":
		return ActionSoftReboot, nil
	case "wake":
		return ActionWake, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidAction, s)
	}
}

func (a Action) String() string {
	switch a {
	case ActionBoot:
		return "boot"
	case ActionStatus:
		return "status"
	case ActionSoftReboot:
		return "reboot"
	case ActionWake:
		return "wake"
	default:
		return "unknown"
	}
}

// ControlRequest is one inbound control request. It is consumed synchronously
// and never persisted.
type ControlRequest struct {
	Action   Action
	Passcode string
}

// Outcome is the discriminated result of a control request.
type Outcome int

// Outcomes. AccessDenied, AlreadyOnline and Busy each imply a different next
// step for the operator and must never be rendered the same way.
const (
	OutcomeExecuted Outcome = iota + 1
	OutcomeAlreadyOnline
	OutcomeAccessDenied
	OutcomeProbeFailed
	OutcomeInvalidAction
	OutcomeBusy
	OutcomeHardwareFault
	OutcomeUnsupported
)

func (o Outcome) String() string {
	switch o {
	case OutcomeExecuted:
		return "executed"
	case OutcomeAlreadyOnline:
		return "already_online"
	case OutcomeAccessDenied:
		return "access_denied"
	case OutcomeProbeFailed:
		return "probe_failed"
	case OutcomeInvalidAction:
		return "invalid_action"
	case OutcomeBusy:
		return "busy"
	case OutcomeHardwareFault:
		return "hardware_fault"
	case OutcomeUnsupported:
		return "unsupported"
	default:
		return "unknown"
	}
}

// Status check details.
const (
	DetailOnline  = "online"
	DetailOffline = "offline"
	DetailUnknown = "unknown/error"
)

// ControlResult is returned by the dispatcher for every request.
type ControlResult struct {
	RequestID string
	Action    Action
	Outcome   Outcome
	Detail    string // "online"/"offline"/"unknown/error" for status checks
	Message   string // short human-readable status line

	// RetryAfter is set for Busy results: the caller may retry once it elapses.
	RetryAfter time.Duration
}
