package sniffer

import (
	"context"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go"
	"github.com/norasector/shockburst/pkg/burst"
	"github.com/norasector/shockburst/pkg/dsp/demodulators/quad"
	"github.com/norasector/shockburst/pkg/dsp/envelope"
	"github.com/norasector/shockburst/pkg/dsp/filters/fir"
	"github.com/norasector/shockburst/pkg/dsp/mixer"
	"github.com/norasector/shockburst/pkg/dsp/processor"
	"github.com/norasector/shockburst/pkg/dsp/slicer"
	"github.com/norasector/shockburst/pkg/dsp/viz"
	"github.com/norasector/shockburst/pkg/util"
	"github.com/norasector/turbine-common/types"
	"github.com/racerxdl/segdsp/dsp"
	"golang.org/x/sync/errgroup"
)

// Channel turns complex samples around one channel into bursts.  The front end
// shifts the channel to baseband and decimates; its output feeds the FSK data
// path and the carrier detector, whose hard decisions drive the burst framer.
type Channel struct {
	front   *processor.Processor
	data    *processor.Processor
	carrier *processor.Processor
	framer  *burst.Framer

	sampleNum int
}

func newChannel(s *Sniffer, frequency int) (*Channel, error) {
	opts := s.opts
	ifRate := opts.IntermediateRate()
	dec := opts.SampleRate / ifRate

	c := &Channel{
		front:   processor.NewProcessor("channel-front", "Radio Input", s.vizServer),
		data:    processor.NewProcessor("channel-data", "Channel", s.vizServer),
		carrier: processor.NewProcessor("channel-carrier", "Channel", s.vizServer),
	}

	s.logger.Info().
		Str("frequency", util.MHzToString(frequency)).
		Int("decimation", dec).
		Int("intermediate_rate", ifRate).
		Int("samples_per_symbol", opts.SamplesPerSymbol).
		Str("offset", util.MHzToString(opts.Offset)).
		Msg("initializing channel")

	// Beat frequency oscillator, moves the channel from the offset to 0 Hz
	c.front.AddBlock(processor.NewDSPWorkerCC(
		"bfo_mixer",
		"BFO Mixer",
		opts.SampleRate,
		opts.SampleRate,
		mixer.NewWaveformMixer(opts.SampleRate, -opts.Offset),
		processor.ShowFFTBalance(),
	))

	lpfCoeffs := fir.MakeLowPass(1.0,
		float64(opts.SampleRate),
		float64(opts.Bandwidth),
		float64(opts.TransitionWidth),
		fir.Hamming)

	c.front.AddBlock(processor.NewDSPWorkerCC(
		"lowpass_decimator",
		"Lowpass Decimator",
		opts.SampleRate,
		ifRate,
		dsp.MakeDecimationFirFilter(dec, lpfCoeffs),
	))

	c.data.AddBlock(processor.NewDSPWorkerCF(
		"quad_demod",
		"FM Demodulation",
		ifRate,
		ifRate,
		quad.MakeQuadDemod(quad.GainForDeviation(float64(ifRate), float64(opts.FSKDeviation)/8)),
		processor.WithVizLength(opts.SamplesPerSymbol*32),
		processor.WithPlotType(viz.PlotTypeLines),
	))

	c.data.AddBlock(processor.NewDSPWorkerFB(
		"binary_slicer",
		"Binary Slicer",
		ifRate,
		ifRate,
		slicer.NewBinarySlicer(opts.InvertSymbols),
		processor.WithVizLength(opts.SamplesPerSymbol*32),
		processor.WithPlotType(viz.PlotTypeLines),
	))

	c.carrier.AddBlock(processor.NewDSPWorkerCF(
		"magnitude",
		"Magnitude",
		ifRate,
		ifRate,
		envelope.NewMagnitude(),
	))

	c.carrier.AddBlock(processor.NewDSPWorkerFF(
		"carrier_average",
		"Carrier Average",
		ifRate,
		ifRate,
		envelope.NewMovingAverage(opts.CarrierAverageLength, 1/float64(opts.CarrierAverageLength), -opts.CarrierThreshold),
		processor.WithPlotOptions([]viz.PlotOptions{viz.YLabel("envelope - threshold")}),
	))

	c.carrier.AddBlock(processor.NewDSPWorkerFB(
		"carrier_slicer",
		"Carrier Detect",
		ifRate,
		ifRate,
		slicer.NewBinarySlicer(false),
		processor.WithPlotType(viz.PlotTypeLines),
		processor.WithPlotOptions([]viz.PlotOptions{viz.YRange(-0.1, 1.1)}),
	))

	for _, proc := range []*processor.Processor{c.front, c.data, c.carrier} {
		if err := proc.Initialize(); err != nil {
			return nil, err
		}
	}

	framer, err := burst.NewFramer(opts.Burst, frequency, s.burstChan, s.logger)
	if err != nil {
		return nil, err
	}
	c.framer = framer

	return c, nil
}

// Frequency is the channel the framer currently labels bursts with.
func (c *Channel) Frequency() int {
	return c.framer.Frequency()
}

func (c *Channel) reset(frequency int) {
	c.framer.Reset(frequency)
}

func (s *Sniffer) processChannel(ctx context.Context, buf *types.SegmentComplex64, c *Channel) error {
	start := time.Now()
	frequency := c.Frequency()
	metrics := map[string]interface{}{
		"sample_length": len(buf.Data),
		"sample_bytes":  len(buf.Data) * 8,
	}

	defer func() {
		metrics["duration"] = time.Since(start).Microseconds()

		go s.writeAPI.WritePoint(influxdb2.NewPoint("channel.processed",
			map[string]string{
				"frequency":   util.MHzToString(frequency),
				"sample_type": "complex64",
			},
			metrics, start))
	}()

	baseband, err := c.front.ProcessComplexToComplex(buf, metrics)
	if err != nil {
		return err
	}

	// the data and carrier paths only read the baseband segment
	var data, carrier *types.SegmentBinaryBytes
	dataMetrics := make(map[string]interface{})
	carrierMetrics := make(map[string]interface{})

	var eg errgroup.Group
	eg.Go(func() error {
		var err error
		data, err = c.data.ProcessComplexToBinary(baseband, dataMetrics)
		return err
	})
	eg.Go(func() error {
		var err error
		carrier, err = c.carrier.ProcessComplexToBinary(baseband, carrierMetrics)
		return err
	})
	if err := eg.Wait(); err != nil {
		return err
	}

	for k, v := range dataMetrics {
		metrics[k] = v
	}
	for k, v := range carrierMetrics {
		metrics[k] = v
	}
	metrics["carrier_ratio"] = onesRatio(carrier.Data)

	if err := util.TimeOperation(metrics, "framer_duration", func() error {
		return c.framer.Receive(ctx, data.Data, carrier.Data)
	}); err != nil {
		return err
	}

	c.sampleNum++

	return nil
}

func onesRatio(b []byte) float64 {
	if len(b) == 0 {
		return 0
	}
	n := 0
	for _, v := range b {
		if v != 0 {
			n++
		}
	}
	return math.Round(float64(n)/float64(len(b))*1000) / 1000
}
