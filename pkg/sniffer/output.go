package sniffer

import (
	"context"

	"github.com/norasector/shockburst/pkg/esb"
)

// PacketOutput handles decoded packets.
type PacketOutput interface {
	// Start receives a context and should run in a loop, terminating upon ctx closing or on any errors.
	Start(ctx context.Context) error
	// Receive returns a channel that receives decoded packets.
	Receive() chan<- *esb.Packet
}
