package esb

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/shockburst/pkg/burst"
	"github.com/norasector/shockburst/pkg/util"
	"github.com/rs/zerolog"
)

const (
	defaultSweepTimeout  = 200 * time.Millisecond
	defaultLockedTimeout = 5 * time.Second
	hopCheckInterval     = 100 * time.Millisecond
)

// Tuner moves the receiver to a new channel.
type Tuner interface {
	Tune(frequency int) error
}

// DefaultChannels returns the 24 channels scanned by default, 2401.5 MHz to
// 2470.5 MHz in 3 MHz steps.
func DefaultChannels() []int {
	ret := make([]int, 24)
	for i := range ret {
		ret[i] = 2401500000 + i*3000000
	}
	return ret
}

type DecoderOptions struct {
	Decode DecodeOptions
	// Channels to hop across.  Hopping is disabled with fewer than two.
	Channels []int
	// SweepTimeout is how long to stay on a channel while searching.
	SweepTimeout time.Duration
	// LockedTimeout is how long to stay on a channel after a packet was seen.
	LockedTimeout time.Duration
}

func (o *DecoderOptions) defaults() {
	if o.Decode == (DecodeOptions{}) {
		o.Decode = DefaultDecodeOptions()
	}
	if o.Channels == nil {
		o.Channels = DefaultChannels()
	}
	if o.SweepTimeout <= 0 {
		o.SweepTimeout = defaultSweepTimeout
	}
	if o.LockedTimeout <= 0 {
		o.LockedTimeout = defaultLockedTimeout
	}
}

// Decoder turns bursts into packets and hops channels while nothing decodes.
type Decoder struct {
	opts       DecoderOptions
	burstChan  <-chan burst.Burst
	packetChan chan<- *Packet
	tuner      Tuner
	writeAPI   api.WriteAPI
	logger     zerolog.Logger
	now        func() time.Time

	channelIdx int
	lastRecv   time.Time
	timeout    time.Duration
}

// NewDecoder creates a decoder.  tuner may be nil, in which case the decoder
// never hops.
func NewDecoder(opts DecoderOptions, burstChan <-chan burst.Burst, packetChan chan<- *Packet, tuner Tuner, writeAPI api.WriteAPI, logger zerolog.Logger) (*Decoder, error) {
	opts.defaults()
	if opts.Decode.CRCLength != 1 && opts.Decode.CRCLength != 2 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCRCLength, opts.Decode.CRCLength)
	}
	if writeAPI == nil {
		writeAPI = &util.MockWriteAPI{}
	}

	return &Decoder{
		opts:       opts,
		burstChan:  burstChan,
		packetChan: packetChan,
		tuner:      tuner,
		writeAPI:   writeAPI,
		logger:     logger,
		now:        time.Now,
		timeout:    opts.SweepTimeout,
	}, nil
}

// Channel returns the frequency the decoder last tuned to.
func (d *Decoder) Channel() int {
	if len(d.opts.Channels) == 0 {
		return 0
	}
	return d.opts.Channels[d.channelIdx]
}

func (d *Decoder) hopping() bool {
	return d.tuner != nil && len(d.opts.Channels) > 1
}

func (d *Decoder) Start(ctx context.Context) error {
	d.lastRecv = d.now()
	if d.tuner != nil && len(d.opts.Channels) > 0 {
		if err := d.tuner.Tune(d.Channel()); err != nil {
			return err
		}
	}

	ticker := time.NewTicker(hopCheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case b := <-d.burstChan:
			if err := d.handleBurst(ctx, b); err != nil {
				return err
			}
		case <-ticker.C:
		}

		if err := d.hop(); err != nil {
			return err
		}
	}
}

func (d *Decoder) handleBurst(ctx context.Context, b burst.Burst) error {
	metrics := map[string]interface{}{
		"symbols":   len(b.Symbols),
		"samples":   b.Samples,
		"truncated": b.Truncated,
	}

	packet, err := Decode(b.Symbols, d.opts.Decode)
	if err != nil {
		metrics["decoded"] = 0
		metrics["failed"] = 1
	} else {
		metrics["decoded"] = 1
		metrics["failed"] = 0
		metrics["payload_length"] = packet.Size()
	}

	go d.writeAPI.WritePoint(influxdb2.NewPoint("esb.burst.processed",
		map[string]string{
			"frequency": util.MHzToString(b.Frequency),
		},
		metrics, b.Timestamp))

	if err != nil {
		return nil
	}

	packet.Frequency = b.Frequency
	packet.Timestamp = b.Timestamp

	d.logger.Debug().
		Str("frequency", util.MHzToString(b.Frequency)).
		Str("address", packet.AddressString()).
		Int("pid", int(packet.PID)).
		Int("size", packet.Size()).
		Msg("packet decoded")

	d.lastRecv = d.now()
	d.timeout = d.opts.LockedTimeout

	select {
	case <-ctx.Done():
		return ctx.Err()
	case d.packetChan <- packet:
	}

	return nil
}

// hop moves to the next channel once the current one has been quiet for longer
// than the active timeout.
func (d *Decoder) hop() error {
	if !d.hopping() {
		return nil
	}
	now := d.now()
	if now.Sub(d.lastRecv) <= d.timeout {
		return nil
	}

	d.channelIdx = (d.channelIdx + 1) % len(d.opts.Channels)
	if err := d.tuner.Tune(d.Channel()); err != nil {
		return err
	}

	d.logger.Trace().
		Int("channel", d.channelIdx).
		Str("frequency", util.MHzToString(d.Channel())).
		Msg("switching channel")

	d.lastRecv = now
	d.timeout = d.opts.SweepTimeout
	return nil
}
