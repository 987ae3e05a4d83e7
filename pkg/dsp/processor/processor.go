package processor

import (
	"errors"
	"fmt"
	"time"

	"github.com/norasector/shockburst/pkg/dsp/viz"
	"github.com/norasector/turbine-common/types"
)

type Processor struct {
	Name        string
	InputName   string
	blocks      []*DSPWorker
	vizServer   *viz.Server
	initialized bool
	inputFFT    *viz.FFTPlotter
	vizIndex    int
}

// NewProcessor creates an empty block chain.  vizServer may be nil, in which case
// no plots are produced.
func NewProcessor(name, inputName string, vizServer *viz.Server) *Processor {
	return &Processor{
		Name:      name,
		InputName: inputName,
		vizServer: vizServer,
	}
}

func (p *Processor) AddBlock(worker *DSPWorker) {
	p.blocks = append(p.blocks, worker)
}

func (p *Processor) nextIndexString(s string) string {
	p.vizIndex++
	return fmt.Sprintf("%02d. %s", p.vizIndex, s)
}

func (p *Processor) register(prod viz.Producer) {
	p.vizServer.Register(p.Name, prod)
}

func (p *Processor) attachPlotter(block *DSPWorker) {
	switch block.outputDataType {
	case DataTypeComplex:
		vizLength := 1024
		if block.vizSize > 0 {
			vizLength = block.vizSize
		}
		block.fft = viz.NewFFTPlotterComplex(p.nextIndexString(block.DisplayName), vizLength, block.OutputRate)
		block.fft.ShowBalance(block.showBalance)
		for _, opt := range block.plotOptions {
			block.fft.AddPlotOption(opt)
		}
		p.register(block.fft)
	case DataTypeFloat, DataTypeBytes:
		vizLength := 128
		if block.vizSize > 0 {
			vizLength = block.vizSize
		}
		block.timeDomain = viz.NewTimeDomainPlotter(p.nextIndexString(block.DisplayName), vizLength)
		if block.plotType != viz.PlotTypeDefault {
			block.timeDomain.SetPlotType(block.plotType)
		}
		for _, opt := range block.plotOptions {
			block.timeDomain.AddPlotOption(opt)
		}
		p.register(block.timeDomain)
	}
}

func (p *Processor) Initialize() error {
	if p.initialized {
		return nil
	}
	if len(p.blocks) < 2 {
		return fmt.Errorf("%s: must specify at least 2 blocks", p.Name)
	}

	for i := 1; i < len(p.blocks); i++ {
		cur, next := p.blocks[i-1], p.blocks[i]

		if cur.outputDataType != next.inputDataType {
			return fmt.Errorf("cur: %s next %s data type mismatch (%s %s)", cur.Name, next.Name, cur.outputDataType, next.inputDataType)
		}
		if cur.OutputRate != next.InputRate {
			return fmt.Errorf("cur: %s next %s rate mismatch (%d %d)", cur.Name, next.Name, cur.OutputRate, next.InputRate)
		}
	}

	if p.vizServer != nil {
		if p.blocks[0].inputDataType == DataTypeComplex {
			p.inputFFT = viz.NewFFTPlotterComplex(p.nextIndexString(p.InputName), 1024, p.blocks[0].InputRate)
			p.register(p.inputFFT)
		}
		for _, block := range p.blocks {
			p.attachPlotter(block)
		}
	}

	p.initialized = true

	return nil
}

// segment carries data between blocks.  Exactly one field is populated.
type segment struct {
	c []complex64
	f []float32
	b []byte
}

func (p *Processor) processData(input segment, expectedInputType, expectedOutputType DataType, metrics map[string]interface{}) (segment, error) {
	if !p.initialized {
		if err := p.Initialize(); err != nil {
			return segment{}, err
		}
	}

	if p.blocks[0].inputDataType != expectedInputType {
		return segment{}, fmt.Errorf("%s: invalid input type: got %s expected %s", p.Name, expectedInputType, p.blocks[0].inputDataType)
	}
	if p.blocks[len(p.blocks)-1].outputDataType != expectedOutputType {
		return segment{}, fmt.Errorf("%s: invalid output type: got %s expected %s", p.Name, expectedOutputType, p.blocks[len(p.blocks)-1].outputDataType)
	}

	if p.inputFFT != nil && len(input.c) > 0 {
		p.inputFFT.AppendComplex(input.c)
	}

	cur := input
	for _, block := range p.blocks {
		start := time.Now()
		next, err := block.run(cur)
		if err != nil {
			return segment{}, err
		}
		metrics[fmt.Sprintf("%s_duration", block.Name)] = time.Since(start).Microseconds()
		cur = next
	}

	return cur, nil
}

func (block *DSPWorker) run(in segment) (segment, error) {
	var out segment

	switch block.inputDataType {
	case DataTypeComplex:
		switch block.outputDataType {
		case DataTypeComplex:
			block.cOutputBuffer = growComplex(block.cOutputBuffer, block.ccWorker.PredictOutputSize(len(in.c))*2)
			length := block.ccWorker.WorkBuffer(in.c, block.cOutputBuffer)
			out.c = block.cOutputBuffer[:length]
			if block.fft != nil {
				block.fft.AppendComplex(out.c)
			}
		case DataTypeFloat:
			block.fOutputBuffer = growFloat(block.fOutputBuffer, block.cfWorker.PredictOutputSize(len(in.c))*2)
			length := block.cfWorker.WorkBuffer(in.c, block.fOutputBuffer)
			out.f = block.fOutputBuffer[:length]
			if block.timeDomain != nil {
				block.timeDomain.AppendFloat(out.f)
			}
		default:
			return out, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
		}

	case DataTypeFloat:
		switch block.outputDataType {
		case DataTypeFloat:
			block.fOutputBuffer = growFloat(block.fOutputBuffer, block.ffWorker.PredictOutputSize(len(in.f))*2)
			length := block.ffWorker.WorkBuffer(in.f, block.fOutputBuffer)
			out.f = block.fOutputBuffer[:length]
			if block.timeDomain != nil {
				block.timeDomain.AppendFloat(out.f)
			}
		case DataTypeBytes:
			block.bOutputBuffer = growBytes(block.bOutputBuffer, block.fbWorker.PredictOutputSize(len(in.f))*2)
			length := block.fbWorker.WorkBuffer(in.f, block.bOutputBuffer)
			out.b = block.bOutputBuffer[:length]
			if block.timeDomain != nil {
				block.timeDomain.AppendBits(out.b)
			}
		default:
			return out, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
		}

	case DataTypeBytes:
		switch {
		case block.gbbWorker != nil:
			block.residual = append(block.residual, in.b...)
			// at most one output item per input item
			block.bOutputBuffer = growBytes(block.bOutputBuffer, len(block.residual))
			consumed, produced := schedule(block.gbbWorker, block.residual, block.bOutputBuffer)
			out.b = block.bOutputBuffer[:produced]
			block.residual = append(block.residual[:0], block.residual[consumed:]...)
		case block.bbWorker != nil:
			block.bOutputBuffer = growBytes(block.bOutputBuffer, block.bbWorker.PredictOutputSize(len(in.b))*2)
			length := block.bbWorker.WorkBuffer(in.b, block.bOutputBuffer)
			out.b = block.bOutputBuffer[:length]
		default:
			return out, fmt.Errorf("%s unknown output type %s for input %s", block.Name, block.outputDataType, block.inputDataType)
		}

	default:
		return out, fmt.Errorf("unknown input type %s", block.inputDataType)
	}

	if block.outputDataType == DataTypeBytes && block.inputDataType == DataTypeBytes && block.timeDomain != nil {
		block.timeDomain.AppendBits(out.b)
	}

	return out, nil
}

// schedule drives a general worker over input the way a pull-based scheduler
// would: it only asks for as many output items as the forecast says the available
// input can cover, and keeps calling until no further progress is possible.
func schedule(w GeneralBBWorker, input, output []byte) (consumed, produced int) {
	for {
		noutput := maxOutput(w, len(input)-consumed, len(output)-produced)
		if noutput == 0 {
			return consumed, produced
		}

		c, p := w.GeneralWork(input[consumed:], output[produced:produced+noutput])
		consumed += c
		produced += p
		if c == 0 && p == 0 {
			return consumed, produced
		}
	}
}

// maxOutput finds the largest n <= capacity with Forecast(n) <= available.
func maxOutput(w GeneralBBWorker, available, capacity int) int {
	lo, hi := 0, capacity
	for lo < hi {
		mid := lo + (hi-lo+1)/2
		if w.Forecast(mid) <= available {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	return lo
}

// Pending reports how many input items general blocks are holding back.
func (p *Processor) Pending() int {
	n := 0
	for _, block := range p.blocks {
		n += len(block.residual)
	}
	return n
}

// Reset drops any input held back by general blocks.
func (p *Processor) Reset() {
	for _, block := range p.blocks {
		block.residual = block.residual[:0]
	}
}

func growComplex(buf []complex64, n int) []complex64 {
	if cap(buf) < n {
		return make([]complex64, n)
	}
	return buf[:n]
}

func growFloat(buf []float32, n int) []float32 {
	if cap(buf) < n {
		return make([]float32, n)
	}
	return buf[:n]
}

func growBytes(buf []byte, n int) []byte {
	if cap(buf) < n {
		return make([]byte, n)
	}
	return buf[:n]
}

var errNilSegment = errors.New("nil input segment")

func (p *Processor) ProcessComplexToComplex(input *types.SegmentComplex64, metrics map[string]interface{}) (*types.SegmentComplex64, error) {
	if input == nil {
		return nil, errNilSegment
	}
	out, err := p.processData(segment{c: input.Data}, DataTypeComplex, DataTypeComplex, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentComplex64{
		SegmentNumber: input.SegmentNumber,
		Data:          out.c,
	}, nil
}

func (p *Processor) ProcessComplexToBinary(input *types.SegmentComplex64, metrics map[string]interface{}) (*types.SegmentBinaryBytes, error) {
	if input == nil {
		return nil, errNilSegment
	}
	out, err := p.processData(segment{c: input.Data}, DataTypeComplex, DataTypeBytes, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentBinaryBytes{
		SymbolRate:    p.blocks[len(p.blocks)-1].OutputRate,
		Data:          out.b,
		SegmentNumber: input.SegmentNumber,
	}, nil
}

func (p *Processor) ProcessComplexToFloat(input *types.SegmentComplex64, metrics map[string]interface{}) (*types.SegmentFloat32, error) {
	if input == nil {
		return nil, errNilSegment
	}
	out, err := p.processData(segment{c: input.Data}, DataTypeComplex, DataTypeFloat, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentFloat32{
		SegmentNumber: input.SegmentNumber,
		Data:          out.f,
	}, nil
}

func (p *Processor) ProcessFloatToBinary(input *types.SegmentFloat32, metrics map[string]interface{}) (*types.SegmentBinaryBytes, error) {
	if input == nil {
		return nil, errNilSegment
	}
	out, err := p.processData(segment{f: input.Data}, DataTypeFloat, DataTypeBytes, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentBinaryBytes{
		SymbolRate:    p.blocks[len(p.blocks)-1].OutputRate,
		Data:          out.b,
		SegmentNumber: input.SegmentNumber,
	}, nil
}

// ProcessBinary runs a bytes-in, bytes-out chain.  An empty segment is valid: a
// general block may still hold input from an earlier call, but without new input
// it has nothing further to produce.
func (p *Processor) ProcessBinary(input *types.SegmentBinaryBytes, metrics map[string]interface{}) (*types.SegmentBinaryBytes, error) {
	if input == nil {
		return nil, errNilSegment
	}
	out, err := p.processData(segment{b: input.Data}, DataTypeBytes, DataTypeBytes, metrics)
	if err != nil {
		return nil, err
	}

	return &types.SegmentBinaryBytes{
		SymbolRate:    p.blocks[len(p.blocks)-1].OutputRate,
		Data:          out.b,
		SegmentNumber: input.SegmentNumber,
	}, nil
}
