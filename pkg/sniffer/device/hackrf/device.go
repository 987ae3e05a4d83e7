package hackrf

import (
	"context"
	"os"
	"sync"

	"github.com/norasector/turbine-common/types"
	"github.com/samuel/go-hackrf/hackrf"
)

const (
	maxSampleRate = 20e6

	defaultLNAGain = 32
	defaultVGAGain = 20
)

type Options struct {
	LNAGain   int
	VGAGain   int
	EnableAmp bool
	// RecordLocation writes raw cs8 samples to a file instead of streaming them.
	RecordLocation string
}

// HackRFDevice streams from a HackRF One.  The 2.4 GHz ISM band is well inside
// its tuning range, which makes it the only supported live receiver.
type HackRFDevice struct {
	device *hackrf.Device
	opts   Options

	mu         sync.Mutex
	centerFreq int
	sampleRate int

	outputChan chan *types.SegmentComplex64
	ctx        context.Context

	outputFile *os.File
}

func (h *HackRFDevice) MaxSampleRate() int {
	return maxSampleRate
}

// NewHackRFDevice opens the first HackRF.  hackrf.Init must have been called.
func NewHackRFDevice(opts Options) (*HackRFDevice, error) {
	if opts.LNAGain == 0 {
		opts.LNAGain = defaultLNAGain
	}
	if opts.VGAGain == 0 {
		opts.VGAGain = defaultVGAGain
	}

	device, err := hackrf.Open()
	if err != nil {
		return nil, err
	}

	ret := &HackRFDevice{
		device: device,
		opts:   opts,
	}

	if opts.RecordLocation != "" {
		ret.outputFile, err = os.Create(opts.RecordLocation)
		if err != nil {
			device.Close()
			return nil, err
		}
	}

	return ret, nil
}

func (h *HackRFDevice) callback(buf []byte) error {
	if h.outputFile != nil {
		_, err := h.outputFile.Write(buf)
		return err
	}

	h.mu.Lock()
	seg := types.SegmentCS8Raw{
		SampleRate: h.sampleRate,
		Data:       make([]byte, len(buf)),
		Frequency:  h.centerFreq,
	}
	h.mu.Unlock()
	copy(seg.Data, buf)

	select {
	case <-h.ctx.Done():
		return h.ctx.Err()
	case h.outputChan <- seg.ToComplex64():
	}

	return nil
}

func (h *HackRFDevice) Start(ctx context.Context, centerFreq int, sampleRate int, complexSamples chan *types.SegmentComplex64) error {
	h.ctx = ctx
	h.outputChan = complexSamples
	h.sampleRate = sampleRate

	if err := h.SetFrequency(centerFreq); err != nil {
		return err
	}
	if err := h.device.SetSampleRateManual(h.sampleRate*2, 2); err != nil {
		return err
	}
	if err := h.device.SetLNAGain(h.opts.LNAGain); err != nil {
		return err
	}
	if err := h.device.SetVGAGain(h.opts.VGAGain); err != nil {
		return err
	}
	if err := h.device.SetBasebandFilterBandwidth(h.sampleRate); err != nil {
		return err
	}
	if err := h.device.SetAmpEnable(h.opts.EnableAmp); err != nil {
		return err
	}
	if err := h.device.StartRX(h.callback); err != nil {
		return err
	}

	<-ctx.Done()
	return ctx.Err()
}

func (h *HackRFDevice) SetFrequency(centerFreq int) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if err := h.device.SetFreq(uint64(centerFreq)); err != nil {
		return err
	}
	h.centerFreq = centerFreq
	return nil
}

func (h *HackRFDevice) Stop() error {
	if h.outputFile != nil {
		defer h.outputFile.Close()
	}
	if err := h.device.StopRX(); err != nil {
		return err
	}
	return h.device.Close()
}
