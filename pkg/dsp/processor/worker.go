package processor

import "github.com/norasector/shockburst/pkg/dsp/viz"

type DataType int

const (
	DataTypeComplex DataType = iota
	DataTypeFloat
	DataTypeBytes
)

func (d DataType) String() string {
	switch d {
	case DataTypeComplex:
		return "complex"
	case DataTypeFloat:
		return "float"
	case DataTypeBytes:
		return "bytes"
	default:
		return "unknown"
	}
}

type DSPWorker struct {
	Name        string
	DisplayName string
	InputRate   int
	OutputRate  int

	inputDataType  DataType
	outputDataType DataType

	ccWorker  CCWorker
	cfWorker  CFWorker
	fbWorker  FBWorker
	ffWorker  FFWorker
	bbWorker  BBWorker
	gbbWorker GeneralBBWorker

	fOutputBuffer []float32
	cOutputBuffer []complex64
	bOutputBuffer []byte

	// input a general worker has not consumed yet
	residual []byte

	fft         *viz.FFTPlotter
	timeDomain  *viz.TimeDomainPlotter
	vizSize     int
	plotType    viz.PlotType
	showBalance bool

	plotOptions []viz.PlotOptions
}

type DSPWorkerOption func(r *DSPWorker)

func WithPlotOptions(opts []viz.PlotOptions) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotOptions = append(r.plotOptions, opts...)
	}
}
func WithVizLength(length int) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.vizSize = length
	}
}
func WithPlotType(plotType viz.PlotType) DSPWorkerOption {
	return func(r *DSPWorker) {
		r.plotType = plotType
	}
}

func ShowFFTBalance() DSPWorkerOption {
	return func(r *DSPWorker) {
		r.showBalance = true
	}
}

func newWorker(name, displayName string, inputRate, outputRate int, in, out DataType, opts []DSPWorkerOption) *DSPWorker {
	ret := &DSPWorker{
		Name:           name,
		DisplayName:    displayName,
		InputRate:      inputRate,
		OutputRate:     outputRate,
		inputDataType:  in,
		outputDataType: out,
	}
	for _, opt := range opts {
		opt(ret)
	}
	return ret
}

func NewDSPWorkerCC(name, displayName string, inputRate, outputRate int, worker CCWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeComplex, opts)
	ret.ccWorker = worker
	return ret
}

func NewDSPWorkerCF(name, displayName string, inputRate, outputRate int, worker CFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeComplex, DataTypeFloat, opts)
	ret.cfWorker = worker
	return ret
}

func NewDSPWorkerFF(name, displayName string, inputRate, outputRate int, worker FFWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeFloat, opts)
	ret.ffWorker = worker
	return ret
}

func NewDSPWorkerFB(name, displayName string, inputRate, outputRate int, worker FBWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeFloat, DataTypeBytes, opts)
	ret.fbWorker = worker
	return ret
}

func NewDSPWorkerBB(name, displayName string, inputRate, outputRate int, worker BBWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeBytes, DataTypeBytes, opts)
	ret.bbWorker = worker
	return ret
}

// NewDSPWorkerGeneralBB wraps a worker whose consumption varies per call.  Input it
// leaves unconsumed is kept and offered again together with the next segment.
func NewDSPWorkerGeneralBB(name, displayName string, inputRate, outputRate int, worker GeneralBBWorker, opts ...DSPWorkerOption) *DSPWorker {
	ret := newWorker(name, displayName, inputRate, outputRate, DataTypeBytes, DataTypeBytes, opts)
	ret.gbbWorker = worker
	return ret
}

// Complex in, complex out
type CCWorker interface {
	WorkBuffer([]complex64, []complex64) int
	PredictOutputSize(int) int
}

// Complex in, float out
type CFWorker interface {
	WorkBuffer([]complex64, []float32) int
	PredictOutputSize(int) int
}

// Float in, binary bytes out (1 symbol per byte)
type FBWorker interface {
	WorkBuffer([]float32, []byte) int
	PredictOutputSize(int) int
}

type FFWorker interface {
	WorkBuffer([]float32, []float32) int
	PredictOutputSize(int) int
}

type BBWorker interface {
	WorkBuffer([]byte, []byte) int
	PredictOutputSize(int) int
}

// GeneralBBWorker does not consume its input one-for-one.  Forecast reports how
// many input items must be available before GeneralWork can be expected to fill
// noutput items; GeneralWork reports what it actually consumed and produced.
type GeneralBBWorker interface {
	Forecast(noutput int) int
	GeneralWork(input, output []byte) (consumed, produced int)
}
