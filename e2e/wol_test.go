//go:build e2e

package e2e

import (
	"context"
	"io"
	"net"
	"os"
	"testing"

	"github.com/fgeck/pulsegate/internal/models"
	"github.com/fgeck/pulsegate/internal/services/wol"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

// udpSink receives magic packets on a loopback port.
func udpSink(t *testing.T) (*net.UDPConn, string) {
	t.Helper()

	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return conn, conn.LocalAddr().String()
}

type forwardingClient struct {
	addr string
	real wol.Client
}

func (c *forwardingClient) Wake(_ string, mac net.HardwareAddr) error {
	return c.real.Wake(c.addr, mac)
}

func TestWOL_MagicPacketOnLoopback_E2E(t *testing.T) {
	conn, addr := udpSink(t)

	svc := wol.NewWithClient(testLogger(), &forwardingClient{addr: addr, real: &wol.DefaultClient{}})

	result, err := svc.Wake(context.Background(), models.WOLConfig{
		MACAddress:  "AA:BB:CC:DD:EE:FF",
		BroadcastIP: "127.0.0.1",
	})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
	assert.Nil(t, result.Error)

	buf := make([]byte, 256)
	n, _, err := conn.ReadFromUDP(buf)
	require.NoError(t, err)
	// 6 bytes of 0xFF followed by 16 repetitions of the MAC.
	require.Equal(t, 102, n)
	assert.Equal(t, []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}, buf[:6])
	assert.Equal(t, []byte{0xaa, 0xbb, 0xcc, 0xdd, 0xee, 0xff}, buf[6:12])
}

// RealWOL tests - only run if explicitly configured
func TestRealWOL_E2E(t *testing.T) {
	mac := os.Getenv("TEST_WOL_MAC")
	if mac == "" {
		t.Skip("TEST_WOL_MAC not set")
	}

	broadcast := os.Getenv("TEST_WOL_BROADCAST_IP")
	if broadcast == "" {
		broadcast = "255.255.255.255"
	}

	svc := wol.New(testLogger())

	result, err := svc.Wake(context.Background(), models.WOLConfig{MACAddress: mac, BroadcastIP: broadcast})

	require.NoError(t, err)
	assert.True(t, result.PacketSent)
}
