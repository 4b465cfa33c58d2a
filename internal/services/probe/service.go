// Package probe checks whether the downstream host is reachable.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/sync/errgroup"
)

// Service defines the interface for reachability probing.
type Service interface {
	Probe(ctx context.Context, target models.TargetConfig, cfg models.ProbeConfig) (*models.ProbeReport, error)
}

// Resolver resolves host names. *net.Resolver satisfies it.
type Resolver interface {
	LookupIPAddr(ctx context.Context, host string) ([]net.IPAddr, error)
}

// Pinger performs a network-layer liveness check.
type Pinger interface {
	Ping(ctx context.Context, ip net.IP) error
}

// Dialer opens TCP connections. *net.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, network, addr string) (net.Conn, error)
}

// Impl implements the probe Service interface.
type Impl struct {
	resolver Resolver
	pinger   Pinger
	dialer   Dialer
	logger   zerolog.Logger
}

// New creates a new probe service.
func New(logger zerolog.Logger) *Impl {
	return &Impl{
		resolver: net.DefaultResolver,
		pinger:   NewICMPPinger(),
		dialer:   &net.Dialer{},
		logger:   logger,
	}
}

// NewWithClients creates a new probe service with custom clients (for testing).
func NewWithClients(logger zerolog.Logger, resolver Resolver, pinger Pinger, dialer Dialer) *Impl {
	return &Impl{
		resolver: resolver,
		pinger:   pinger,
		dialer:   dialer,
		logger:   logger,
	}
}

// Probe runs the ICMP and port checks in parallel under a single deadline of
// cfg.Timeout. The host is Online if either check succeeds, Error if neither
// check could be performed, and Offline otherwise.
func (s *Impl) Probe(ctx context.Context, target models.TargetConfig, cfg models.ProbeConfig) (*models.ProbeReport, error) {
	start := time.Now()
	report := &models.ProbeReport{}

	ctx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	s.logger.Debug().
		Str("host", target.Host).
		Int("port", target.Port).
		Dur("timeout", cfg.Timeout).
		Msg("probing target")

	ip, err := s.resolve(ctx, target.Host)
	if err != nil {
		unavailable := models.CheckOutcome{Attempted: true, Indeterminate: true, Error: err}
		report.ICMP = unavailable
		report.Port = unavailable
		report.Result = models.ProbeError
		report.Duration = time.Since(start)
		s.logger.Warn().Err(err).Str("host", target.Host).Msg("cannot resolve target")
		return report, nil
	}

	addr := net.JoinHostPort(ip.String(), strconv.Itoa(target.Port))

	// The group only joins the two checks. Each records its own outcome and
	// returns nil, so neither cancels the other.
	var g errgroup.Group
	if cfg.ICMP {
		g.Go(func() error {
			report.ICMP = s.checkICMP(ctx, ip)
			return nil
		})
	} else {
		report.ICMP = models.CheckOutcome{Indeterminate: true}
	}
	g.Go(func() error {
		report.Port, report.SSHReady = s.checkPort(ctx, addr, target, cfg.SSHHandshake)
		return nil
	})
	_ = g.Wait()

	report.Result = classify(report.ICMP, report.Port)
	report.Duration = time.Since(start)

	s.logger.Info().
		Str("host", target.Host).
		Stringer("result", report.Result).
		Bool("icmp_up", report.ICMP.Up).
		Bool("port_up", report.Port.Up).
		Bool("ssh_ready", report.SSHReady).
		Dur("duration", report.Duration).
		Msg("probe completed")

	return report, nil
}

func classify(icmpCheck, portCheck models.CheckOutcome) models.ProbeResult {
	switch {
	case icmpCheck.Up || portCheck.Up:
		return models.ProbeOnline
	case icmpCheck.Indeterminate && portCheck.Indeterminate:
		return models.ProbeError
	default:
		return models.ProbeOffline
	}
}

func (s *Impl) resolve(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}

	addrs, err := s.resolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if a.IP.To4() != nil {
			return a.IP, nil
		}
	}
	if len(addrs) > 0 {
		return addrs[0].IP, nil
	}
	return nil, fmt.Errorf("resolve %s: no addresses", host)
}

func (s *Impl) checkICMP(ctx context.Context, ip net.IP) models.CheckOutcome {
	out := models.CheckOutcome{Attempted: true}
	start := time.Now()

	err := s.pinger.Ping(ctx, ip)
	out.Latency = time.Since(start)
	if err != nil {
		out.Error = err
		out.Indeterminate = errors.Is(err, ErrUnavailable)
		s.logger.Debug().Err(err).Bool("indeterminate", out.Indeterminate).Msg("icmp check failed")
		return out
	}

	out.Up = true
	return out
}

func (s *Impl) checkPort(ctx context.Context, addr string, target models.TargetConfig, handshake bool) (models.CheckOutcome, bool) {
	out := models.CheckOutcome{Attempted: true}
	start := time.Now()

	conn, err := s.dialer.DialContext(ctx, "tcp", addr)
	out.Latency = time.Since(start)
	if err != nil {
		out.Error = err
		out.Indeterminate = errors.Is(err, os.ErrPermission)
		s.logger.Debug().Err(err).Str("addr", addr).Msg("port check failed")
		return out, false
	}
	defer func() { _ = conn.Close() }()

	out.Up = true
	if !handshake {
		return out, false
	}
	return out, s.sshReady(ctx, conn, addr, target)
}

// errKeyExchanged stops the SSH handshake once the server has presented its
// host key, before any authentication is attempted.
var errKeyExchanged = errors.New("ssh key exchange reached")

// sshReady runs an SSH key exchange on conn. Reaching the host key callback
// proves an SSH server is answering. The handshake is aborted there, so no
// credentials are ever sent and the host never logs a failed login.
func (s *Impl) sshReady(ctx context.Context, conn net.Conn, addr string, target models.TargetConfig) bool {
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	var spoke atomic.Bool
	clientCfg := &ssh.ClientConfig{
		User: target.Username,
		HostKeyCallback: func(string, net.Addr, ssh.PublicKey) error {
			spoke.Store(true)
			return errKeyExchanged
		},
	}

	// NewClientConn always fails here; err is errKeyExchanged once the host key arrived.
	if _, _, _, err := ssh.NewClientConn(conn, addr, clientCfg); !spoke.Load() {
		s.logger.Debug().Err(err).Msg("ssh handshake failed before key exchange")
	}

	return spoke.Load()
}
