// Package dispatcher authorizes control requests and routes them to the
// prober, the pulse controllers and the wake sender.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/auth"
	"github.com/fgeck/pulsegate/internal/services/probe"
	"github.com/fgeck/pulsegate/internal/services/pulse"
	"github.com/fgeck/pulsegate/internal/services/telegram"
	"github.com/fgeck/pulsegate/internal/services/wol"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const (
	// notifyTimeout bounds a single notification; notifications never delay a response.
	notifyTimeout = 10 * time.Second

	// maxPendingNotifications caps notifications in flight. Further ones are
	// dropped until a slot frees up.
	maxPendingNotifications = 4
)

// Rendered status lines.
const (
	MsgAccessDenied  = "ACCESS DENIED"
	MsgOnline        = "Host is online"
	MsgOffline       = "Host is offline"
	MsgUnknown       = "Host status unknown (probe error)"
	MsgBootTriggered = "Boot triggered"
	MsgRebootSent    = "Reboot triggered"
	MsgWakeSent      = "Wake packet sent"
	MsgAlreadyOnline = "Host is already online; not triggered"
	MsgProbeFailed   = "Host reachability unknown; not triggered"
	MsgHardwareFault = "Hardware fault; control line released"
	MsgWakeFailed    = "Wake packet could not be sent"
	MsgNoRebootLine  = "Soft reboot line not configured"
	MsgNoWOL         = "Wake-on-LAN not configured"
	MsgInvalidAction = "INVALID ACTION"
)

// Service defines the interface for handling control requests.
type Service interface {
	Handle(ctx context.Context, req models.ControlRequest) models.ControlResult
}

// Impl implements the dispatcher Service interface. It holds no per-request
// state; the pulse controllers own the only shared mutable state.
type Impl struct {
	cfg         models.Config
	authSvc     auth.Service
	probeSvc    probe.Service
	bootPulse   pulse.Service
	rebootPulse pulse.Service // nil if no reboot line is wired
	wolSvc      wol.Service
	telegramSvc telegram.Service
	logger      zerolog.Logger
	newID       func() string

	notifySlots *semaphore.Weighted
	mu          sync.Mutex
	closed      bool
	pending     sync.WaitGroup
}

// New creates a new dispatcher from the configuration and already-opened
// pulse controllers. reboot may be nil.
func New(logger zerolog.Logger, cfg models.Config, boot, reboot pulse.Service) *Impl {
	return NewWithServices(
		logger,
		cfg,
		auth.New(cfg.Passcode),
		probe.New(logger),
		boot,
		reboot,
		wol.New(logger),
		telegram.New(logger),
	)
}

// NewWithServices creates a new dispatcher with custom services (for testing).
func NewWithServices(
	logger zerolog.Logger,
	cfg models.Config,
	authSvc auth.Service,
	probeSvc probe.Service,
	boot pulse.Service,
	reboot pulse.Service,
	wolSvc wol.Service,
	telegramSvc telegram.Service,
) *Impl {
	return &Impl{
		cfg:         cfg,
		authSvc:     authSvc,
		probeSvc:    probeSvc,
		bootPulse:   boot,
		rebootPulse: reboot,
		wolSvc:      wolSvc,
		telegramSvc: telegramSvc,
		logger:      logger,
		newID:       uuid.NewString,
		notifySlots: semaphore.NewWeighted(maxPendingNotifications),
	}
}

// Handle processes one control request and always returns exactly one result.
// It blocks for at most one probe timeout plus one pulse width.
func (s *Impl) Handle(ctx context.Context, req models.ControlRequest) (result models.ControlResult) {
	start := time.Now()
	result = models.ControlResult{RequestID: s.newID(), Action: req.Action}
	logger := s.logger.With().
		Str("request_id", result.RequestID).
		Stringer("action", req.Action).
		Logger()

	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Msg("control request failed")
			result.Outcome = models.OutcomeHardwareFault
			result.Message = MsgHardwareFault
		}
		logger.Info().
			Stringer("outcome", result.Outcome).
			Str("detail", result.Detail).
			Dur("duration", time.Since(start)).
			Msg("control request handled")
		s.notify(result)
	}()

	if !s.authSvc.Authenticate(req.Passcode) {
		logger.Warn().Msg("invalid passcode")
		result.Outcome = models.OutcomeAccessDenied
		result.Message = MsgAccessDenied
		return result
	}

	switch req.Action {
	case models.ActionStatus:
		s.status(ctx, &result)
	case models.ActionBoot:
		if s.gate(ctx, logger, &result) {
			s.pulse(logger, s.bootPulse, &result, MsgBootTriggered)
		}
	case models.ActionSoftReboot:
		if s.rebootPulse == nil {
			result.Outcome = models.OutcomeUnsupported
			result.Message = MsgNoRebootLine
			return result
		}
		s.pulse(logger, s.rebootPulse, &result, MsgRebootSent)
	case models.ActionWake:
		if s.cfg.WOL == nil || s.wolSvc == nil {
			result.Outcome = models.OutcomeUnsupported
			result.Message = MsgNoWOL
			return result
		}
		if s.gate(ctx, logger, &result) {
			s.wake(ctx, logger, &result)
		}
	default:
		result.Outcome = models.OutcomeInvalidAction
		result.Message = MsgInvalidAction
	}

	return result
}

// Close stops accepting notifications and blocks until the pending ones have
// finished. Requests handled after Close are still answered but not notified.
func (s *Impl) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.pending.Wait()
}

func (s *Impl) status(ctx context.Context, result *models.ControlResult) {
	result.Outcome = models.OutcomeExecuted

	switch s.probe(ctx) {
	case models.ProbeOnline:
		result.Detail = models.DetailOnline
		result.Message = MsgOnline
	case models.ProbeOffline:
		result.Detail = models.DetailOffline
		result.Message = MsgOffline
	default:
		result.Detail = models.DetailUnknown
		result.Message = MsgUnknown
	}
}

// gate runs the pre-action safety check and reports whether the action may
// proceed. A reachable host is never reset.
func (s *Impl) gate(ctx context.Context, logger zerolog.Logger, result *models.ControlResult) bool {
	verdict := s.probe(ctx)

	if verdict == models.ProbeOnline {
		result.Outcome = models.OutcomeAlreadyOnline
		result.Detail = models.DetailOnline
		result.Message = MsgAlreadyOnline
		return false
	}

	if err := ctx.Err(); err != nil {
		logger.Warn().Err(err).Msg("request cancelled during probe")
		result.Outcome = models.OutcomeProbeFailed
		result.Message = MsgProbeFailed
		return false
	}

	if verdict == models.ProbeOffline {
		result.Detail = models.DetailOffline
		return true
	}

	result.Detail = models.DetailUnknown
	if s.cfg.Safety.BootOnProbeError {
		logger.Warn().Msg("reachability unknown, proceeding per safety.boot_on_probe_error")
		return true
	}
	result.Outcome = models.OutcomeProbeFailed
	result.Message = MsgProbeFailed
	return false
}

func (s *Impl) probe(ctx context.Context) models.ProbeResult {
	report, err := s.probeSvc.Probe(ctx, s.cfg.Target, s.cfg.Probe)
	if err != nil || report == nil {
		s.logger.Warn().Err(err).Msg("probe failed")
		return models.ProbeError
	}
	return report.Result
}

func (s *Impl) pulse(logger zerolog.Logger, ctrl pulse.Service, result *models.ControlResult, executed string) {
	err := ctrl.Pulse()
	switch {
	case err == nil:
		result.Outcome = models.OutcomeExecuted
		result.Message = executed
	case errors.Is(err, pulse.ErrBusy):
		result.Outcome = models.OutcomeBusy
		result.RetryAfter = ctrl.Width()
		result.Message = fmt.Sprintf("Pulse already in progress; retry in %s", ctrl.Width())
	default:
		logger.Error().Err(err).Msg("pulse failed")
		result.Outcome = models.OutcomeHardwareFault
		result.Message = MsgHardwareFault
	}
}

func (s *Impl) wake(ctx context.Context, logger zerolog.Logger, result *models.ControlResult) {
	res, err := s.wolSvc.Wake(ctx, *s.cfg.WOL)
	if err == nil && res != nil {
		err = res.Error
	}
	if err != nil {
		logger.Error().Err(err).Msg("wake failed")
		result.Outcome = models.OutcomeHardwareFault
		result.Message = MsgWakeFailed
		return
	}
	result.Outcome = models.OutcomeExecuted
	result.Message = MsgWakeSent
}

// notify sends a Telegram message for hardware-affecting executions and for
// denied requests. It never blocks the caller.
func (s *Impl) notify(result models.ControlResult) {
	if s.cfg.Telegram == nil || s.telegramSvc == nil {
		return
	}
	hardware := result.Outcome == models.OutcomeExecuted && result.Action != models.ActionStatus
	if !hardware && result.Outcome != models.OutcomeAccessDenied {
		return
	}

	msg := models.TelegramMessage{
		RequestID: result.RequestID,
		Action:    result.Action,
		Outcome:   result.Outcome,
		Host:      s.cfg.Target.Host,
		Message:   result.Message,
		Time:      time.Now(),
	}
	cfg := *s.cfg.Telegram

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.logger.Debug().Str("request_id", msg.RequestID).Msg("dispatcher closed, notification skipped")
		return
	}
	if !s.notifySlots.TryAcquire(1) {
		s.mu.Unlock()
		s.logger.Warn().Str("request_id", msg.RequestID).Msg("too many notifications in flight, notification dropped")
		return
	}
	s.pending.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.pending.Done()
		defer s.notifySlots.Release(1)

		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()

		res, err := s.telegramSvc.SendNotification(ctx, cfg, msg)
		if err == nil && res != nil {
			err = res.Error
		}
		if err != nil {
			s.logger.Error().Err(err).Str("request_id", msg.RequestID).Msg("failed to send Telegram notification")
		}
	}()
}
