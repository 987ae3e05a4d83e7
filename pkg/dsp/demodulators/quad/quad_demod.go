package quad

import (
	"math"

	"github.com/racerxdl/segdsp/dsp"
)

// QuadDemod is an FM discriminator: the output is the phase step between
// consecutive samples scaled by gain.
type QuadDemod struct {
	gain float32
	last complex64
}

func MakeQuadDemod(gain float32) *QuadDemod {
	return &QuadDemod{
		gain: gain,
	}
}

// GainForDeviation returns the gain that maps a tone at +deviation Hz to an
// output of 1.
func GainForDeviation(sampleRate, deviation float64) float32 {
	return float32(sampleRate / (2 * math.Pi * deviation))
}

func (f *QuadDemod) Work(data []complex64) []float32 {
	out := make([]float32, f.PredictOutputSize(len(data)))
	f.WorkBuffer(data, out)
	return out
}

func (f *QuadDemod) WorkBuffer(input []complex64, output []float32) int {
	if len(input) == 0 {
		return 0
	}

	samples := make([]complex64, 0, len(input)+1)
	samples = append(samples, f.last)
	samples = append(samples, input...)
	tmp := dsp.MultiplyConjugate(samples[1:], samples, len(input))

	for i := 0; i < len(input); i++ {
		output[i] = f.gain * float32(math.Atan2(float64(imag(tmp[i])), float64(real(tmp[i]))))
	}

	f.last = input[len(input)-1]
	return len(input)
}

func (f *QuadDemod) PredictOutputSize(inputLength int) int {
	return inputLength
}
