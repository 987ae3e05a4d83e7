package output

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/shockburst/pkg/util"
)

const packetBufferLength int = 32

type PrinterOptions struct {
	// Include prints only these addresses (lowercase hex) when not empty.
	Include []string
	// Exclude never prints these addresses.
	Exclude   []string
	IgnoreAck bool
	// Filters must all match for a packet to be printed.
	Filters []esb.Filter
	// Verbose prefixes every line with time, channel and packet id.
	Verbose bool
}

// Printer writes one line per packet.
type Printer struct {
	dest     io.Writer
	opts     PrinterOptions
	recvChan chan *esb.Packet
	include  map[string]struct{}
	exclude  map[string]struct{}
}

func NewPrinter(dest io.Writer, opts PrinterOptions) *Printer {
	ret := &Printer{
		dest:     dest,
		opts:     opts,
		recvChan: make(chan *esb.Packet, packetBufferLength),
		include:  make(map[string]struct{}),
		exclude:  make(map[string]struct{}),
	}

	for _, addr := range opts.Include {
		ret.include[strings.ToLower(addr)] = struct{}{}
	}
	for _, addr := range opts.Exclude {
		ret.exclude[strings.ToLower(addr)] = struct{}{}
	}

	return ret
}

func (p *Printer) Receive() chan<- *esb.Packet {
	return p.recvChan
}

func (p *Printer) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case packet := <-p.recvChan:
			if !p.accept(packet) {
				continue
			}
			if err := p.write(packet); err != nil {
				return err
			}
		}
	}
}

func (p *Printer) accept(packet *esb.Packet) bool {
	if packet.IsAck() && p.opts.IgnoreAck {
		return false
	}

	address := packet.AddressString()
	if _, ok := p.exclude[address]; ok {
		return false
	}
	if len(p.include) > 0 {
		if _, ok := p.include[address]; !ok {
			return false
		}
	}

	for _, f := range p.opts.Filters {
		if !f.Matches(packet) {
			return false
		}
	}
	return true
}

func (p *Printer) write(packet *esb.Packet) error {
	var err error
	if p.opts.Verbose {
		_, err = fmt.Fprintf(p.dest, "%s %s pid=%d %s\n",
			packet.Timestamp.Format("15:04:05.000000"),
			util.MHzToString(packet.Frequency),
			packet.PID,
			packet)
	} else {
		_, err = fmt.Fprintln(p.dest, packet)
	}
	return err
}
