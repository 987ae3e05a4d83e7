package processor

import (
	"testing"

	"github.com/norasector/shockburst/pkg/dsp/slicer"
	"github.com/norasector/shockburst/pkg/dsp/timing"
	"github.com/norasector/turbine-common/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type gainWorker struct{ gain float32 }

func (g gainWorker) WorkBuffer(in, out []float32) int {
	for i := range in {
		out[i] = in[i] * g.gain
	}
	return len(in)
}

func (g gainWorker) PredictOutputSize(n int) int { return n }

// countingWorker records every request the scheduler makes.
type countingWorker struct {
	*timing.SymbolSampler
	requests []int
	offered  []int
}

func (c *countingWorker) GeneralWork(in, out []byte) (int, int) {
	c.requests = append(c.requests, len(out))
	c.offered = append(c.offered, len(in))
	return c.SymbolSampler.GeneralWork(in, out)
}

func newSymbolChain(t *testing.T, sps int) (*Processor, *timing.SymbolSampler) {
	t.Helper()
	sampler, err := timing.NewSymbolSampler(sps)
	require.NoError(t, err)

	p := NewProcessor("test", "Bits", nil)
	p.AddBlock(NewDSPWorkerBB("normalise", "Normalise", 8, 8, slicer.NewByteSlicer()))
	p.AddBlock(NewDSPWorkerGeneralBB("symbol_recovery", "Symbol Recovery", 8, 8/sps, sampler))
	return p, sampler
}

func repeat(b byte, n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = b
	}
	return ret
}

func TestInitializeValidation(t *testing.T) {
	p := NewProcessor("short", "in", nil)
	p.AddBlock(NewDSPWorkerFF("gain", "Gain", 10, 10, gainWorker{2}))
	assert.Error(t, p.Initialize())

	p = NewProcessor("types", "in", nil)
	p.AddBlock(NewDSPWorkerFF("gain", "Gain", 10, 10, gainWorker{2}))
	p.AddBlock(NewDSPWorkerBB("bytes", "Bytes", 10, 10, slicer.NewByteSlicer()))
	assert.Error(t, p.Initialize())

	p = NewProcessor("rates", "in", nil)
	p.AddBlock(NewDSPWorkerFF("gain", "Gain", 10, 10, gainWorker{2}))
	p.AddBlock(NewDSPWorkerFB("slicer", "Slicer", 20, 20, slicer.NewBinarySlicer(false)))
	assert.Error(t, p.Initialize())

	p = NewProcessor("ok", "in", nil)
	p.AddBlock(NewDSPWorkerFF("gain", "Gain", 10, 10, gainWorker{2}))
	p.AddBlock(NewDSPWorkerFB("slicer", "Slicer", 10, 10, slicer.NewBinarySlicer(false)))
	assert.NoError(t, p.Initialize())
}

func TestProcessFloatToBinary(t *testing.T) {
	p := NewProcessor("float", "in", nil)
	p.AddBlock(NewDSPWorkerFF("gain", "Gain", 10, 10, gainWorker{-1}))
	p.AddBlock(NewDSPWorkerFB("slicer", "Slicer", 10, 10, slicer.NewBinarySlicer(false)))

	metrics := map[string]interface{}{}
	out, err := p.ProcessFloatToBinary(&types.SegmentFloat32{SegmentNumber: 3, Data: []float32{1, -1, 2, -2}}, metrics)
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1, 0, 1}, out.Data)
	assert.Equal(t, 3, out.SegmentNumber)
	assert.Contains(t, metrics, "gain_duration")
	assert.Contains(t, metrics, "slicer_duration")

	_, err = p.ProcessBinary(&types.SegmentBinaryBytes{Data: []byte{1}}, metrics)
	assert.Error(t, err)
}

func TestProcessBinaryRecoversSymbols(t *testing.T) {
	p, _ := newSymbolChain(t, 4)

	out, err := p.ProcessBinary(&types.SegmentBinaryBytes{Data: []byte("00001111")}, map[string]interface{}{})
	require.NoError(t, err)
	assert.Equal(t, []byte{0, 1}, out.Data)
	assert.Equal(t, 2, out.SymbolRate)
}

func TestProcessBinaryHoldsBackShortInput(t *testing.T) {
	p, _ := newSymbolChain(t, 4)
	metrics := map[string]interface{}{}

	// fewer samples than one symbol period: nothing may be consumed
	out, err := p.ProcessBinary(&types.SegmentBinaryBytes{Data: repeat(1, 3)}, metrics)
	require.NoError(t, err)
	assert.Empty(t, out.Data)
	assert.Equal(t, 3, p.Pending())

	// the second symbol fills the forecast-sized request, the last two samples wait
	out, err = p.ProcessBinary(&types.SegmentBinaryBytes{Data: repeat(1, 5)}, metrics)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 1}, out.Data)
	assert.Equal(t, 2, p.Pending())

	out, err = p.ProcessBinary(&types.SegmentBinaryBytes{}, metrics)
	require.NoError(t, err)
	assert.Empty(t, out.Data)

	p.Reset()
	assert.Zero(t, p.Pending())
}

func TestProcessBinaryChunkingIsTransparent(t *testing.T) {
	input := []byte{}
	for i := 0; i < 40; i++ {
		input = append(input, repeat(byte(i%3%2), 9+i%4)...)
	}

	ref, err := timing.NewSymbolSampler(9)
	require.NoError(t, err)
	all := ref.Work(input)

	whole, _ := newSymbolChain(t, 9)
	want, err := whole.ProcessBinary(&types.SegmentBinaryBytes{Data: input}, map[string]interface{}{})
	require.NoError(t, err)
	require.NotEmpty(t, want.Data)
	assert.Equal(t, all[:len(want.Data)], want.Data)
	assert.Less(t, whole.Pending(), 9)

	chunked, _ := newSymbolChain(t, 9)
	var got []byte
	for pos := 0; pos < len(input); pos += 7 {
		end := pos + 7
		if end > len(input) {
			end = len(input)
		}
		out, err := chunked.ProcessBinary(&types.SegmentBinaryBytes{Data: input[pos:end]}, map[string]interface{}{})
		require.NoError(t, err)
		got = append(got, out.Data...)
	}

	// the tail shorter than one symbol period is still held back
	assert.Less(t, chunked.Pending(), 9)
	require.NotEmpty(t, got)
	assert.Equal(t, all[:len(got)], got)
}

func TestScheduleHonoursForecast(t *testing.T) {
	sampler, err := timing.NewSymbolSampler(4)
	require.NoError(t, err)
	w := &countingWorker{SymbolSampler: sampler}

	// alternating pairs produce one symbol per two samples, twice the forecast rate
	input := []byte{0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0, 0, 1, 1, 0}
	output := make([]byte, len(input))
	consumed, produced := schedule(w, input, output)

	for i := range w.requests {
		assert.LessOrEqual(t, sampler.Forecast(w.requests[i]), w.offered[i])
	}
	// requests of 4, 2 and 1 symbols, then fewer than 4 samples remain
	assert.Equal(t, []int{4, 2, 1}, w.requests)
	assert.Equal(t, 7, produced)
	assert.Equal(t, 14, consumed)
	assert.Equal(t, []byte{0, 1, 0, 1, 0, 1, 0}, output[:produced])
}

func TestMaxOutput(t *testing.T) {
	sampler, err := timing.NewSymbolSampler(4)
	require.NoError(t, err)

	assert.Equal(t, 0, maxOutput(sampler, 3, 10))
	assert.Equal(t, 1, maxOutput(sampler, 4, 10))
	assert.Equal(t, 2, maxOutput(sampler, 11, 10))
	assert.Equal(t, 10, maxOutput(sampler, 400, 10))
	assert.Equal(t, 0, maxOutput(sampler, 400, 0))
}
