package sniffer

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/influxdata/influxdb-client-go/api"
	"github.com/norasector/shockburst/pkg/burst"
	"github.com/norasector/shockburst/pkg/dsp/viz"
	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/shockburst/pkg/sniffer/device"
	"github.com/norasector/shockburst/pkg/util"
	"github.com/norasector/turbine-common/types"
	"golang.org/x/sync/errgroup"
)

const (
	burstBufferLength  = 16
	packetBufferLength = 32
)

// Sniffer receives one Enhanced ShockBurst channel at a time and hops across
// the channel plan until it finds traffic.
type Sniffer struct {
	device        device.Device
	opts          Options
	writeAPI      api.WriteAPI
	rawSampleChan chan *types.SegmentComplex64
	burstChan     chan burst.Burst
	packetChan    chan *esb.Packet
	vizServer     *viz.Server
	channel       *Channel
	decoder       *esb.Decoder
	logger        zerolog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	ctx    context.Context
}

type SnifferOption func(s *Sniffer) error

func WithInfluxDB(influxClient api.WriteAPI) SnifferOption {
	return func(s *Sniffer) error {
		s.writeAPI = influxClient
		return nil
	}
}

func WithImageServer(vizServer *viz.Server) SnifferOption {
	return func(s *Sniffer) error {
		s.vizServer = vizServer
		return nil
	}
}

func WithLogger(logger zerolog.Logger) SnifferOption {
	return func(s *Sniffer) error {
		s.logger = logger
		return nil
	}
}

func NewSniffer(device device.Device, options Options, opts ...SnifferOption) (*Sniffer, error) {
	s := &Sniffer{
		device:        device,
		opts:          options,
		rawSampleChan: make(chan *types.SegmentComplex64, 1),
		burstChan:     make(chan burst.Burst, burstBufferLength),
		packetChan:    make(chan *esb.Packet, packetBufferLength),
		writeAPI:      &util.MockWriteAPI{}, // overwritten with option
		logger:        log.Logger,
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if err := s.opts.validate(); err != nil {
		return nil, err
	}

	channel, err := newChannel(s, s.opts.Decoder.Channels[0])
	if err != nil {
		return nil, err
	}
	s.channel = channel

	s.decoder, err = esb.NewDecoder(s.opts.Decoder, s.burstChan, s.packetChan, s, s.writeAPI, s.logger)
	if err != nil {
		return nil, err
	}

	return s, nil
}

// Tune moves the receiver to a channel.  The device is tuned below the channel
// by the configured offset and any burst in progress is dropped.
func (s *Sniffer) Tune(frequency int) error {
	if err := s.device.SetFrequency(frequency - s.opts.Offset); err != nil {
		return fmt.Errorf("tuning to %s: %w", util.MHzToString(frequency), err)
	}
	s.channel.reset(frequency)
	return nil
}

// Frequency returns the channel currently being received.
func (s *Sniffer) Frequency() int {
	return s.channel.Frequency()
}

func (s *Sniffer) Stop() error {
	s.mu.Lock()
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	if s.vizServer != nil {
		s.vizServer.Stop(context.TODO())
	}
	return s.device.Stop()
}

func (s *Sniffer) Start(ctx context.Context) error {
	if s.opts.SampleRate > s.device.MaxSampleRate() {
		return fmt.Errorf("error: sample rate %d > device max sample rate %d", s.opts.SampleRate, s.device.MaxSampleRate())
	}

	eg, ctx := errgroup.WithContext(ctx)
	s.mu.Lock()
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.mu.Unlock()

	eg.Go(func() error {
		return s.device.Start(ctx,
			s.opts.Decoder.Channels[0]-s.opts.Offset,
			s.opts.SampleRate,
			s.rawSampleChan)
	})

	if s.vizServer != nil {
		eg.Go(func() error {
			return s.vizServer.Run(ctx)
		})
	}

	eg.Go(func() error {
		return s.decoder.Start(s.ctx)
	})
	eg.Go(s.outputPackets)
	eg.Go(s.processRawSamples)

	for _, output := range s.opts.Outputs {
		thisOutput := output
		eg.Go(func() error {
			return thisOutput.Start(s.ctx)
		})
	}

	low, high := util.FrequencyRange(s.opts.Decoder.Channels...)
	s.logger.Info().
		Str("sample_rate", util.MHzToString(s.opts.SampleRate)).
		Str("data_rate", util.MHzToString(s.opts.DataRate)).
		Int("channels", len(s.opts.Decoder.Channels)).
		Str("low", util.MHzToString(low)).
		Str("high", util.MHzToString(high)).
		Msg("Starting")

	return eg.Wait()
}

func (s *Sniffer) outputPackets() error {
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case packet := <-s.packetChan:
			skippedOutputs := 0
			for _, output := range s.opts.Outputs {
				select {
				case output.Receive() <- packet:
					// We will not wait on blocked channels.
				default:
					skippedOutputs++
				}
			}

			go s.writeAPI.WritePoint(influxdb2.NewPoint("packet.output",
				map[string]string{
					"frequency": util.MHzToString(packet.Frequency),
					"address":   packet.AddressString(),
				},
				map[string]interface{}{
					"payload_length":  packet.Size(),
					"pid":             int(packet.PID),
					"skipped_outputs": skippedOutputs,
				}, time.Now()))
		}
	}
}

func (s *Sniffer) processRawSamples() error {
	segNum := 0
	for {
		select {
		case <-s.ctx.Done():
			return s.ctx.Err()
		case buf := <-s.rawSampleChan:
			segNum++
			buf.SegmentNumber = segNum

			if err := s.processChannel(s.ctx, buf, s.channel); err != nil {
				return err
			}

			// With GOGC=off collect here, between two device buffers.
			if os.Getenv("GOGC") == "off" && segNum%60 == 0 {
				runtime.GC()
			}
		}
	}
}
