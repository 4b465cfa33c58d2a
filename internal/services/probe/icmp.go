package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

// protocolICMP is the IANA protocol number for ICMP over IPv4.
const protocolICMP = 1

// ErrUnavailable marks a check that could not be performed at all, as opposed
// to one that ran and got no answer.
var ErrUnavailable = errors.New("check unavailable")

// ICMPPinger sends a single ICMP echo request and waits for the reply.
// It prefers an unprivileged datagram socket and falls back to a raw socket.
type ICMPPinger struct {
	id  int
	seq atomic.Uint32
}

// NewICMPPinger creates a pinger with a process-specific echo identifier.
func NewICMPPinger() *ICMPPinger {
	return &ICMPPinger{id: os.Getpid() & 0xffff}
}

// Ping returns nil once an echo reply from ip arrives, or an error when ctx
// expires first. Errors wrapping ErrUnavailable mean no echo could be sent.
func (p *ICMPPinger) Ping(ctx context.Context, ip net.IP) error {
	ip4 := ip.To4()
	if ip4 == nil {
		return fmt.Errorf("%w: ICMP echo supports IPv4 targets only", ErrUnavailable)
	}

	conn, privileged, err := listenICMP()
	if err != nil {
		return err
	}
	defer func() { _ = conn.Close() }()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	stop := context.AfterFunc(ctx, func() { _ = conn.SetDeadline(time.Now()) })
	defer stop()

	seq := int(p.seq.Add(1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.id, Seq: seq, Data: []byte("pulsegate")},
	}
	wire, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("%w: marshal echo: %v", ErrUnavailable, err)
	}

	var dst net.Addr = &net.UDPAddr{IP: ip4}
	if privileged {
		dst = &net.IPAddr{IP: ip4}
	}
	if _, err := conn.WriteTo(wire, dst); err != nil {
		return fmt.Errorf("send echo: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("await echo reply: %w", err)
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil || reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		echo, ok := reply.Body.(*icmp.Echo)
		if !ok || echo.Seq != seq || !peerIP(peer).Equal(ip4) {
			continue
		}
		// Datagram sockets get a kernel-assigned identifier; only raw sockets keep ours.
		if privileged && echo.ID != p.id {
			continue
		}
		return nil
	}
}

func listenICMP() (*icmp.PacketConn, bool, error) {
	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err == nil {
		return conn, false, nil
	}
	conn, rawErr := icmp.ListenPacket("ip4:icmp", "0.0.0.0")
	if rawErr == nil {
		return conn, true, nil
	}
	return nil, false, fmt.Errorf("%w: open ICMP socket: %v", ErrUnavailable, errors.Join(err, rawErr))
}

func peerIP(addr net.Addr) net.IP {
	switch a := addr.(type) {
	case *net.UDPAddr:
		return a.IP
	case *net.IPAddr:
		return a.IP
	default:
		return nil
	}
}
