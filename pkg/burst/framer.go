package burst

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/norasector/shockburst/pkg/dsp/timing"
	"github.com/rs/zerolog"
)

// Burst is the symbol stream recovered while the carrier detector was high.
type Burst struct {
	Frequency int
	Symbols   []byte
	// Samples is the burst length in input samples.
	Samples   int
	Timestamp time.Time
	// Truncated is set when the burst hit the symbol limit and was split.
	Truncated bool
}

type Options struct {
	SamplesPerSymbol int
	// MinSamples drops bursts shorter than this many samples.
	MinSamples int
	// MaxSymbols splits bursts that grow past this many symbols, 0 for no limit.
	MaxSymbols int
}

// Framer cuts a sample stream into bursts using a parallel carrier-detect stream
// and recovers the symbols of every burst.  Both streams carry one bit per byte.
type Framer struct {
	mu sync.Mutex

	opts      Options
	sampler   *timing.SymbolSampler
	frequency int

	inBurst bool
	// continued marks the remainder of a burst that was split at MaxSymbols
	continued bool
	samples   int
	symbols   []byte
	started   time.Time
	scratch   []byte
	done      []Burst

	outputChan chan<- Burst
	logger     zerolog.Logger
	now        func() time.Time
}

func NewFramer(opts Options, frequency int, outputChan chan<- Burst, logger zerolog.Logger) (*Framer, error) {
	sampler, err := timing.NewSymbolSampler(opts.SamplesPerSymbol)
	if err != nil {
		return nil, err
	}
	if opts.MinSamples < 0 || opts.MaxSymbols < 0 {
		return nil, fmt.Errorf("burst limits must not be negative (min samples %d, max symbols %d)", opts.MinSamples, opts.MaxSymbols)
	}

	return &Framer{
		opts:       opts,
		sampler:    sampler,
		frequency:  frequency,
		outputChan: outputChan,
		logger:     logger,
		now:        time.Now,
	}, nil
}

// Receive consumes one segment.  data[i] and carrier[i] describe the same
// sample.  Completed bursts are sent to the output channel after the segment has
// been scanned; Receive blocks until they are accepted or ctx is done.
func (f *Framer) Receive(ctx context.Context, data, carrier []byte) error {
	if len(data) != len(carrier) {
		return fmt.Errorf("data and carrier length mismatch (%d %d)", len(data), len(carrier))
	}

	f.mu.Lock()
	for start := 0; start < len(data); {
		if carrier[start] == 0 {
			if f.inBurst {
				f.finish(false)
			}
			start++
			continue
		}

		stop := start
		for stop < len(data) && carrier[stop] != 0 {
			stop++
		}

		if !f.inBurst {
			f.begin()
		}
		f.sample(data[start:stop])
		start = stop
	}
	done := f.done
	f.done = nil
	f.mu.Unlock()

	// sent without holding the lock so Reset never waits on a slow consumer
	for _, b := range done {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case f.outputChan <- b:
		}
	}

	return nil
}

func (f *Framer) begin() {
	f.inBurst = true
	f.continued = false
	f.samples = 0
	f.symbols = nil
	f.started = f.now()
	f.sampler.Reset()
}

func (f *Framer) sample(region []byte) {
	for len(region) > 0 {
		// never ask for more symbols than the burst may still hold, so a split
		// lands exactly on the sample that completed the last allowed symbol
		capacity := len(region)
		if f.opts.MaxSymbols > 0 && f.opts.MaxSymbols-len(f.symbols) < capacity {
			capacity = f.opts.MaxSymbols - len(f.symbols)
		}
		if cap(f.scratch) < capacity {
			f.scratch = make([]byte, capacity)
		}
		out := f.scratch[:capacity]

		consumed, produced := f.sampler.GeneralWork(region, out)
		f.samples += consumed
		f.symbols = append(f.symbols, out[:produced]...)
		region = region[consumed:]

		if f.opts.MaxSymbols > 0 && len(f.symbols) >= f.opts.MaxSymbols {
			f.finish(true)
			// the carrier is still up: continue with the same symbol timing
			f.inBurst = true
			f.continued = true
			f.started = f.now()
		}
	}
}

func (f *Framer) finish(truncated bool) {
	f.inBurst = false
	// the remainder of a split burst already passed the length check
	keep := truncated || f.samples >= f.opts.MinSamples
	if f.continued {
		keep = truncated || len(f.symbols) > 0
	}
	if !keep {
		f.logger.Trace().Int("samples", f.samples).Bool("continued", f.continued).Msg("dropping short burst")
		f.symbols = nil
		f.samples = 0
		return
	}

	f.done = append(f.done, Burst{
		Frequency: f.frequency,
		Symbols:   f.symbols,
		Samples:   f.samples,
		Timestamp: f.started,
		Truncated: truncated,
	})
	f.symbols = nil
	f.samples = 0
}

// Reset drops the burst in progress and moves the framer to a new frequency.
func (f *Framer) Reset(frequency int) {
	f.mu.Lock()
	f.inBurst = false
	f.continued = false
	f.samples = 0
	f.symbols = nil
	f.frequency = frequency
	f.sampler.Reset()
	f.mu.Unlock()
}

func (f *Framer) Frequency() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.frequency
}
