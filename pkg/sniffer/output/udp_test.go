package output

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/norasector/shockburst/pkg/sniffer/config"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarshalPacket(t *testing.T) {
	packet := mustPacket(t, []byte{0xe7, 0xe7, 0xe7}, []byte{0xab, 0x01})
	packet.Frequency = 2404500000
	packet.Timestamp = time.Unix(1700000000, 0)

	msg, err := MarshalPacket(packet)
	require.NoError(t, err)

	decoded, err := UnmarshalPacket(msg)
	require.NoError(t, err)
	fields := decoded.AsMap()
	assert.Equal(t, "e7e7e7", fields["address"])
	assert.Equal(t, "ab01", fields["payload"])
	assert.Equal(t, float64(2404500000), fields["frequency"])
	assert.Equal(t, false, fields["no_ack"])

	_, err = UnmarshalPacket(msg[:len(msg)-1])
	assert.Error(t, err)
	_, err = UnmarshalPacket(nil)
	assert.Error(t, err)
}

func TestUDPOutputSends(t *testing.T) {
	listener, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1)})
	require.NoError(t, err)
	defer listener.Close()

	port := listener.LocalAddr().(*net.UDPAddr).Port
	out := NewUDPOutput([]config.OutputDestination{{Host: "127.0.0.1", Port: port}}, nil, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go out.Start(ctx)

	out.Receive() <- mustPacket(t, []byte{0xc2, 0xc2, 0xc2}, []byte{0x55})

	require.NoError(t, listener.SetReadDeadline(time.Now().Add(5*time.Second)))
	buf := make([]byte, 2048)
	n, _, err := listener.ReadFromUDP(buf)
	require.NoError(t, err)

	decoded, err := UnmarshalPacket(buf[:n])
	require.NoError(t, err)
	assert.Equal(t, "c2c2c2", decoded.AsMap()["address"])
	assert.Equal(t, "55", decoded.AsMap()["payload"])
}
