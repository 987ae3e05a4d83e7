package file

import (
	"context"
	"io"
	"os"
	"sync"
	"time"

	"github.com/norasector/turbine-common/types"
)

// FileDevice plays back a cs8 capture.  Retuning cannot change what was
// recorded, so SetFrequency only changes the frequency segments are labelled
// with.
type FileDevice struct {
	reader      io.ReadCloser
	readSize    int
	timeBetween time.Duration
	loop        bool

	mu         sync.Mutex
	centerFreq int
}

type Option func(f *FileDevice)

// WithLoop rewinds the capture when it ends instead of stopping.
func WithLoop() Option {
	return func(f *FileDevice) {
		f.loop = true
	}
}

func NewFileDevice(file string, readSize int, timeBetween time.Duration, opts ...Option) (*FileDevice, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}

	return NewReaderDevice(f, readSize, timeBetween, opts...), nil
}

func NewReaderDevice(reader io.ReadCloser, readSize int, timeBetween time.Duration, opts ...Option) *FileDevice {
	ret := &FileDevice{
		reader:      reader,
		readSize:    readSize,
		timeBetween: timeBetween,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func (f *FileDevice) Start(ctx context.Context, centerFreq int, sampleRate int, complexSamples chan *types.SegmentComplex64) error {
	if err := f.SetFrequency(centerFreq); err != nil {
		return err
	}

	tick := time.NewTicker(f.timeBetween)
	defer tick.Stop()

	// cs8 samples are interleaved I/Q pairs
	buf := make([]byte, f.readSize&^1)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-tick.C:
			n, err := io.ReadFull(f.reader, buf)
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				if seeker, ok := f.reader.(io.Seeker); ok && f.loop {
					if _, err := seeker.Seek(0, io.SeekStart); err != nil {
						return err
					}
				} else if n == 0 {
					return io.EOF
				}
			} else if err != nil {
				return err
			}
			if n == 0 {
				continue
			}

			f.mu.Lock()
			freq := f.centerFreq
			f.mu.Unlock()

			seg := types.SegmentCS8Raw{
				SampleRate: sampleRate,
				Data:       make([]byte, n&^1),
				Frequency:  freq,
			}
			copy(seg.Data, buf)

			select {
			case <-ctx.Done():
				return ctx.Err()
			case complexSamples <- seg.ToComplex64():
			}
		}
	}
}

func (f *FileDevice) SetFrequency(centerFreq int) error {
	f.mu.Lock()
	f.centerFreq = centerFreq
	f.mu.Unlock()
	return nil
}

func (f *FileDevice) Frequency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.centerFreq
}

func (f *FileDevice) Stop() error {
	return f.reader.Close()
}

func (f *FileDevice) MaxSampleRate() int {
	return 20e6
}
