package envelope

import "math"

// resyncInterval is how many samples the running sum of a MovingAverage is
// updated incrementally before it is recomputed from its history.
const resyncInterval = 4000

// Magnitude outputs |x| of every complex sample.
type Magnitude struct{}

func NewMagnitude() *Magnitude {
	return &Magnitude{}
}

func (m *Magnitude) WorkBuffer(input []complex64, output []float32) int {
	for i, v := range input {
		re, im := float64(real(v)), float64(imag(v))
		output[i] = float32(math.Sqrt(re*re + im*im))
	}
	return len(input)
}

func (m *Magnitude) PredictOutputSize(inputSize int) int {
	return inputSize
}

// MovingAverage is a running sum over the last length samples multiplied by
// scale, plus a constant offset.  With a negative offset the output changes sign
// where the averaged envelope crosses the threshold, which makes it a carrier
// detector when followed by a binary slicer.
type MovingAverage struct {
	scale  float64
	offset float64

	history []float32
	pos     int
	sum     float64
	updates int
}

func NewMovingAverage(length int, scale, offset float64) *MovingAverage {
	if length < 1 {
		length = 1
	}
	return &MovingAverage{
		scale:   scale,
		offset:  offset,
		history: make([]float32, length),
	}
}

func (m *MovingAverage) WorkBuffer(input []float32, output []float32) int {
	for i, v := range input {
		m.sum += float64(v) - float64(m.history[m.pos])
		m.history[m.pos] = v
		m.pos = (m.pos + 1) % len(m.history)
		m.updates++
		if m.updates >= resyncInterval {
			m.resync()
		}

		output[i] = float32(m.sum*m.scale + m.offset)
	}
	return len(input)
}

// resync replaces the running sum, which collects rounding error with every
// update, by the exact sum of the history.
func (m *MovingAverage) resync() {
	m.sum = 0
	for _, v := range m.history {
		m.sum += float64(v)
	}
	m.updates = 0
}

func (m *MovingAverage) Work(input []float32) []float32 {
	ret := make([]float32, len(input))
	m.WorkBuffer(input, ret)
	return ret
}

func (m *MovingAverage) PredictOutputSize(inputSize int) int {
	return inputSize
}
