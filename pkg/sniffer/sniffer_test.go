package sniffer

import (
	"context"
	"math"
	"math/cmplx"
	"sync"
	"testing"
	"time"

	"github.com/norasector/shockburst/pkg/burst"
	"github.com/norasector/shockburst/pkg/esb"
	"github.com/norasector/turbine-common/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSampleRate = 8000000
	testDataRate   = 1000000
	testSPS        = 8
	testOffset     = 2000000
	testDeviation  = 250000
	testChannel    = 2402000000
)

type fakeDevice struct {
	segments []*types.SegmentComplex64

	mu    sync.Mutex
	tuned []int
}

func (f *fakeDevice) Start(ctx context.Context, centerFreq int, sampleRate int, complexSamples chan *types.SegmentComplex64) error {
	for _, seg := range f.segments {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case complexSamples <- seg:
		}
	}
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeDevice) Stop() error        { return nil }
func (f *fakeDevice) MaxSampleRate() int { return 20e6 }

func (f *fakeDevice) SetFrequency(centerFreq int) error {
	f.mu.Lock()
	f.tuned = append(f.tuned, centerFreq)
	f.mu.Unlock()
	return nil
}

func (f *fakeDevice) Tuned() []int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]int(nil), f.tuned...)
}

type fakeOutput struct {
	recv chan *esb.Packet
}

func (f *fakeOutput) Start(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeOutput) Receive() chan<- *esb.Packet {
	return f.recv
}

func testOptions() Options {
	return Options{
		SampleRate:           testSampleRate,
		DataRate:             testDataRate,
		SamplesPerSymbol:     testSPS,
		Offset:               testOffset,
		Bandwidth:            600000,
		TransitionWidth:      500000,
		FSKDeviation:         testDeviation,
		CarrierAverageLength: 50,
		CarrierThreshold:     0.01,
		Burst:                burst.Options{MinSamples: 100},
		Decoder: esb.DecoderOptions{
			Decode:   esb.DecodeOptions{AddressLength: 5, CRCLength: 2, Raw: true, Tries: 8},
			Channels: []int{testChannel},
		},
	}
}

// modulate produces a continuous phase 2-FSK burst at the offset, framed by
// silence.
func modulate(bits []byte) []complex64 {
	ret := make([]complex64, 300, len(bits)*testSPS+600)
	phase := 0.0
	for _, b := range bits {
		freq := float64(testOffset - testDeviation)
		if b == 1 {
			freq = testOffset + testDeviation
		}
		for i := 0; i < testSPS; i++ {
			ret = append(ret, complex64(cmplx.Rect(1, phase)))
			phase = math.Mod(phase+2*math.Pi*freq/testSampleRate, 2*math.Pi)
		}
	}
	return append(ret, make([]complex64, 300)...)
}

func segments(samples []complex64, size int) []*types.SegmentComplex64 {
	var ret []*types.SegmentComplex64
	for len(samples) > 0 {
		n := size
		if n > len(samples) {
			n = len(samples)
		}
		ret = append(ret, &types.SegmentComplex64{Data: samples[:n]})
		samples = samples[n:]
	}
	return ret
}

func TestNewSnifferValidation(t *testing.T) {
	opts := testOptions()
	opts.SampleRate = 9000000
	_, err := NewSniffer(&fakeDevice{}, opts, WithLogger(zerolog.Nop()))
	assert.Error(t, err)

	opts = testOptions()
	opts.DataRate = 0
	_, err = NewSniffer(&fakeDevice{}, opts, WithLogger(zerolog.Nop()))
	assert.Error(t, err)

	opts = testOptions()
	opts.Burst.SamplesPerSymbol = 4
	_, err = NewSniffer(&fakeDevice{}, opts, WithLogger(zerolog.Nop()))
	assert.Error(t, err)
}

func TestSnifferTune(t *testing.T) {
	dev := &fakeDevice{}
	s, err := NewSniffer(dev, testOptions(), WithLogger(zerolog.Nop()))
	require.NoError(t, err)
	assert.Equal(t, testChannel, s.Frequency())

	require.NoError(t, s.Tune(2405000000))
	assert.Equal(t, []int{2403000000}, dev.Tuned())
	assert.Equal(t, 2405000000, s.Frequency())
}

func TestSnifferDecodesPacket(t *testing.T) {
	packet, err := esb.NewPacket([]byte{0xe7, 0xe7, 0xe7, 0xe7, 0xe7}, []byte{0xde, 0xad, 0xbe, 0xef}, 1, false, 2)
	require.NoError(t, err)

	// one byte of training ahead of the preamble covers the carrier detector
	// and filter settling
	bits := append([]byte{}, esb.Preamble...)
	bits = append(bits, esb.Preamble...)
	bits = append(bits, packet.Bits()...)

	dev := &fakeDevice{segments: segments(modulate(bits), 256)}
	out := &fakeOutput{recv: make(chan *esb.Packet, 1)}

	opts := testOptions()
	opts.Outputs = []PacketOutput{out}
	s, err := NewSniffer(dev, opts, WithLogger(zerolog.Nop()))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error)
	go func() {
		done <- s.Start(ctx)
	}()

	select {
	case got := <-out.recv:
		assert.Equal(t, packet.Address, got.Address)
		assert.Equal(t, packet.Payload, got.Payload)
		assert.Equal(t, uint8(1), got.PID)
		assert.Equal(t, testChannel, got.Frequency)
	case <-time.After(10 * time.Second):
		t.Fatal("no packet decoded")
	}

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
	require.NoError(t, s.Stop())
	assert.Equal(t, []int{testChannel - testOffset}, dev.Tuned())
}
