package output

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"net"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/shockburst/pkg/sniffer/config"
	"github.com/norasector/shockburst/pkg/util"
	"github.com/rs/zerolog"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/types/known/structpb"
)

// UDPOutput sends every packet as a length prefixed protobuf Struct to each
// destination.
type UDPOutput struct {
	dests    []config.OutputDestination
	recvChan chan *esb.Packet
	metrics  api.WriteAPI
	logger   zerolog.Logger
}

func NewUDPOutput(dests []config.OutputDestination, metrics api.WriteAPI, logger zerolog.Logger) *UDPOutput {
	if metrics == nil {
		metrics = &util.MockWriteAPI{}
	}
	return &UDPOutput{
		dests:    dests,
		recvChan: make(chan *esb.Packet, packetBufferLength),
		metrics:  metrics,
		logger:   logger,
	}
}

func (s *UDPOutput) Receive() chan<- *esb.Packet {
	return s.recvChan
}

// MarshalPacket encodes a packet into the wire message: a little endian uint16
// length followed by a protobuf encoded google.protobuf.Struct.
func MarshalPacket(packet *esb.Packet) ([]byte, error) {
	msg, err := structpb.NewStruct(map[string]interface{}{
		"address":   packet.AddressString(),
		"payload":   packet.PayloadString(),
		"pid":       int(packet.PID),
		"no_ack":    packet.NoAck,
		"crc":       fmt.Sprintf("%x", packet.CRC),
		"frequency": packet.Frequency,
		"timestamp": packet.Timestamp.UnixNano(),
	})
	if err != nil {
		return nil, err
	}

	encoded, err := proto.Marshal(msg)
	if err != nil {
		return nil, err
	}

	var msgBuf bytes.Buffer
	if err := binary.Write(&msgBuf, binary.LittleEndian, uint16(len(encoded))); err != nil {
		return nil, err
	}
	msgBuf.Write(encoded)
	return msgBuf.Bytes(), nil
}

// UnmarshalPacket is the inverse of MarshalPacket.
func UnmarshalPacket(b []byte) (*structpb.Struct, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("message too short (%d bytes)", len(b))
	}
	length := int(binary.LittleEndian.Uint16(b))
	if len(b)-2 < length {
		return nil, fmt.Errorf("message truncated (%d of %d bytes)", len(b)-2, length)
	}

	var msg structpb.Struct
	if err := proto.Unmarshal(b[2:2+length], &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *UDPOutput) Start(ctx context.Context) error {
	destAddrs := make([]*net.UDPAddr, 0, len(s.dests))
	for _, dest := range s.dests {
		ips, err := net.LookupIP(dest.Host)
		if err != nil {
			return err
		}
		if len(ips) == 0 {
			return fmt.Errorf("no IPs returned for %s", dest.Host)
		}

		destAddr := &net.UDPAddr{IP: ips[0], Port: dest.Port}
		destAddrs = append(destAddrs, destAddr)
		s.logger.Info().IPAddr("dest_ip", destAddr.IP).Int("port", dest.Port).Msg("udp output starting")
	}

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-s.recvChan:
			msg, err := MarshalPacket(packet)
			if err != nil {
				s.logger.Warn().Err(err).Msg("error marshaling packet")
				continue
			}

			sent, dropped := 0, 0
			for _, destAddr := range destAddrs {
				if _, err := conn.WriteToUDP(msg, destAddr); err != nil {
					s.logger.Error().Err(err).Msg("error writing")
					dropped++
					continue
				}
				sent++
			}

			go s.metrics.WritePoint(influxdb2.NewPoint("packet.sent",
				map[string]string{
					"frequency": util.MHzToString(packet.Frequency),
					"address":   packet.AddressString(),
				},
				map[string]interface{}{
					"bytes_written":  len(msg),
					"payload_length": packet.Size(),
					"sent":           sent,
					"dropped":        dropped,
				}, time.Now()))
		}
	}
}
