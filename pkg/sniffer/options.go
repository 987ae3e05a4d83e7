package sniffer

import (
	"fmt"

	"github.com/norasector/shockburst/pkg/burst"
	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/shockburst/pkg/sniffer/config"
)

type Options struct {
	SampleRate       int
	DataRate         int
	SamplesPerSymbol int
	// Offset between the device centre and the channel being received.
	Offset          int
	Bandwidth       int
	TransitionWidth int
	FSKDeviation    int
	InvertSymbols   bool

	CarrierAverageLength int
	CarrierThreshold     float64

	Burst   burst.Options
	Decoder esb.DecoderOptions
	Outputs []PacketOutput
}

// OptionsFromConfig maps a config onto sniffer options, filling its unset fields
// first.  Outputs are left to the caller.
func OptionsFromConfig(c *config.Config) Options {
	c.Defaults()
	return Options{
		SampleRate:           c.SampleRate,
		DataRate:             c.DataRate,
		SamplesPerSymbol:     c.SamplesPerSymbol,
		Offset:               c.Offset,
		Bandwidth:            c.Bandwidth,
		TransitionWidth:      c.TransitionWidth,
		FSKDeviation:         c.FSKDeviation,
		InvertSymbols:        c.InvertSymbols,
		CarrierAverageLength: c.Carrier.AverageLength,
		CarrierThreshold:     *c.Carrier.Threshold,
		Burst: burst.Options{
			SamplesPerSymbol: c.SamplesPerSymbol,
			MinSamples:       c.Burst.MinSamples,
			MaxSymbols:       c.Burst.MaxSymbols,
		},
		Decoder: esb.DecoderOptions{
			Decode: esb.DecodeOptions{
				AddressLength: c.Decoder.AddressLength,
				CRCLength:     c.Decoder.CRCLength,
				Raw:           true,
				Tries:         *c.Decoder.Tries,
			},
			Channels:      c.Decoder.Channels,
			SweepTimeout:  c.Decoder.SweepTimeout,
			LockedTimeout: c.Decoder.LockedTimeout,
		},
	}
}

// IntermediateRate is the rate the channel is processed at after decimation.
func (o Options) IntermediateRate() int {
	return o.DataRate * o.SamplesPerSymbol
}

func (o *Options) validate() error {
	if o.SampleRate <= 0 || o.DataRate <= 0 || o.SamplesPerSymbol <= 0 {
		return fmt.Errorf("must specify sample rate, data rate and samples per symbol")
	}
	if o.SampleRate%o.IntermediateRate() != 0 {
		return fmt.Errorf("sample rate %d is not a multiple of %d", o.SampleRate, o.IntermediateRate())
	}
	if o.Bandwidth <= 0 || o.TransitionWidth <= 0 || o.FSKDeviation <= 0 {
		return fmt.Errorf("must specify bandwidth, transition width and fsk deviation")
	}
	if o.Burst.SamplesPerSymbol == 0 {
		o.Burst.SamplesPerSymbol = o.SamplesPerSymbol
	}
	if o.Burst.SamplesPerSymbol != o.SamplesPerSymbol {
		return fmt.Errorf("burst samples per symbol %d does not match %d", o.Burst.SamplesPerSymbol, o.SamplesPerSymbol)
	}
	if o.CarrierAverageLength <= 0 {
		o.CarrierAverageLength = 50
	}
	if len(o.Decoder.Channels) == 0 {
		o.Decoder.Channels = esb.DefaultChannels()
	}
	return nil
}
