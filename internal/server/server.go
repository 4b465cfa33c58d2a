// Package server exposes the control actions over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/dispatcher"
	"github.com/rs/zerolog"
)

const (
	// shutdownTimeout bounds graceful shutdown. It must cover one in-flight
	// pulse so a running pulse is never cut short by process exit.
	shutdownTimeout = 5 * time.Second

	readHeaderTimeout = 5 * time.Second

	// writeTimeout must exceed the longest probe timeout plus the longest pulse width.
	writeTimeout = 15 * time.Second
)

// Response is the JSON body returned when the client accepts application/json.
type Response struct {
	RequestID string `json:"request_id,omitempty"`
	Action    string `json:"action,omitempty"`
	Outcome   string `json:"outcome"`
	Detail    string `json:"detail,omitempty"`
	Message   string `json:"message"`
}

// Server routes GET /<action>?passcode=NNNNNN to the dispatcher.
//
// Routes:
//   - /boot, /status, /reboot, /wake: control actions
//   - /healthz: liveness of this process, no passcode
//
// Any other path is answered with 404 "INVALID ACTION" and never reaches the
// dispatcher.
type Server struct {
	dispatcher dispatcher.Service
	listen     string
	httpServer *http.Server
	logger     zerolog.Logger

	mu   sync.Mutex
	addr net.Addr
	done chan struct{}
}

// New creates a new Server. The server is not started until Start is called.
func New(d dispatcher.Service, listen string, logger zerolog.Logger) *Server {
	return &Server{
		dispatcher: d,
		listen:     listen,
		logger:     logger,
		done:       make(chan struct{}),
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.HandleFunc("/", s.handleAction)
	return mux
}

// Start binds the listen address and serves in the background. It returns an
// error if the address cannot be bound. Cancelling ctx shuts the server down
// gracefully; Done is closed once shutdown has finished.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.listen, err)
	}

	s.mu.Lock()
	s.addr = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		WriteTimeout:      writeTimeout,
		// Request contexts derive from ctx so in-flight probes stop on shutdown.
		// Pulses are not context-bound and always finish.
		BaseContext: func(net.Listener) context.Context {
			return ctx
		},
	}

	s.logger.Info().Str("addr", ln.Addr().String()).Msg("http server listening")

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error().Err(err).Msg("http server error")
		}
	}()

	go func() {
		defer close(s.done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("http server shutdown error")
			return
		}
		s.logger.Info().Msg("http server stopped")
	}()

	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Done is closed after a started server has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	action, err := models.ParseAction(strings.Trim(r.URL.Path, "/"))
	if err != nil {
		// The path is logged, never the query: it carries the passcode.
		s.logger.Debug().Str("path", r.URL.Path).Msg("rejected unknown action")
		s.write(w, r, http.StatusNotFound, Response{
			Outcome: models.OutcomeInvalidAction.String(),
			Message: dispatcher.MsgInvalidAction,
		})
		return
	}

	result := s.dispatcher.Handle(r.Context(), models.ControlRequest{
		Action:   action,
		Passcode: r.FormValue("passcode"),
	})

	w.Header().Set("X-Request-ID", result.RequestID)
	if result.Outcome == models.OutcomeBusy {
		w.Header().Set("Retry-After", retryAfter(result.RetryAfter))
	}

	s.write(w, r, StatusCode(result.Outcome), Response{
		RequestID: result.RequestID,
		Action:    result.Action.String(),
		Outcome:   result.Outcome.String(),
		Detail:    result.Detail,
		Message:   result.Message,
	})
}

func (s *Server) write(w http.ResponseWriter, r *http.Request, status int, resp Response) {
	w.Header().Set("Cache-Control", "no-store")

	if wantsJSON(r) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.logger.Error().Err(err).Msg("failed to encode response")
		}
		return
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	if _, err := fmt.Fprintln(w, resp.Message); err != nil {
		s.logger.Error().Err(err).Msg("failed to write response")
	}
}

// StatusCode maps an outcome to its HTTP status.
func StatusCode(o models.Outcome) int {
	switch o {
	case models.OutcomeExecuted:
		return http.StatusOK
	case models.OutcomeAccessDenied:
		return http.StatusForbidden
	case models.OutcomeAlreadyOnline:
		return http.StatusConflict
	case models.OutcomeBusy:
		return http.StatusTooManyRequests
	case models.OutcomeProbeFailed:
		return http.StatusServiceUnavailable
	case models.OutcomeUnsupported:
		return http.StatusNotImplemented
	case models.OutcomeInvalidAction:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func wantsJSON(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "application/json")
}

// retryAfter renders d in whole seconds, rounded up, at least 1.
func retryAfter(d time.Duration) string {
	secs := int(math.Ceil(d.Seconds()))
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
