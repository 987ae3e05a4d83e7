package timing

import (
	"errors"
	"fmt"
)

var ErrInvalidSamplesPerSymbol = errors.New("samples per symbol must be positive")

// SymbolSampler recovers one bit per symbol from a hard-decision bit stream
// oversampled by an integer factor. Symbol phase is inferred from the run length
// since the last bit transition: a symbol is taken whenever the run counter sits
// at the middle offset of a symbol period.
//
// Input and output items are single bits stored one per byte (0 or 1).
type SymbolSampler struct {
	samplesPerSymbol int
	midpoint         int

	last    byte
	counter int
}

func NewSymbolSampler(samplesPerSymbol int) (*SymbolSampler, error) {
	if samplesPerSymbol <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidSamplesPerSymbol, samplesPerSymbol)
	}

	return &SymbolSampler{
		samplesPerSymbol: samplesPerSymbol,
		midpoint:         samplesPerSymbol / 2,
	}, nil
}

func (s *SymbolSampler) SamplesPerSymbol() int {
	return s.samplesPerSymbol
}

// Forecast returns the number of input samples required to produce noutput
// symbols, assuming one full symbol period per output bit.
func (s *SymbolSampler) Forecast(noutput int) int {
	return noutput * s.samplesPerSymbol
}

// GeneralWork scans input until either output is full or input is exhausted and
// returns how many samples were consumed and how many symbols were written.
func (s *SymbolSampler) GeneralWork(input, output []byte) (consumed, produced int) {
	for produced < len(output) && consumed < len(input) {
		bit := input[consumed]
		if bit != s.last {
			s.counter = 0
		}
		s.counter++

		if s.counter%s.samplesPerSymbol == s.midpoint {
			output[produced] = bit
			produced++
		}
		s.last = bit
		consumed++
	}

	return consumed, produced
}

// Work consumes all of input and returns the recovered symbols.
func (s *SymbolSampler) Work(input []byte) []byte {
	// every sample can emit at most one symbol
	ret := make([]byte, len(input))
	_, n := s.GeneralWork(input, ret)
	return ret[:n]
}

// Reset returns the sampler to its cold-start state.
func (s *SymbolSampler) Reset() {
	s.last = 0
	s.counter = 0
}
