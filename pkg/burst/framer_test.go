package burst

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func bits(s string) []byte {
	ret := make([]byte, 0, len(s))
	for _, c := range s {
		switch c {
		case '0':
			ret = append(ret, 0)
		case '1':
			ret = append(ret, 1)
		}
	}
	return ret
}

func ones(n int) []byte {
	ret := make([]byte, n)
	for i := range ret {
		ret[i] = 1
	}
	return ret
}

func newTestFramer(t *testing.T, opts Options) (*Framer, chan Burst) {
	t.Helper()
	ch := make(chan Burst, 16)
	f, err := NewFramer(opts, 2405000000, ch, zerolog.Nop())
	require.NoError(t, err)
	f.now = func() time.Time { return time.Unix(1700000000, 0) }
	return f, ch
}

func drain(ch chan Burst) []Burst {
	var ret []Burst
	for {
		select {
		case b := <-ch:
			ret = append(ret, b)
		default:
			return ret
		}
	}
}

func TestNewFramerValidation(t *testing.T) {
	_, err := NewFramer(Options{SamplesPerSymbol: 0}, 0, nil, zerolog.Nop())
	assert.Error(t, err)
	_, err = NewFramer(Options{SamplesPerSymbol: 4, MinSamples: -1}, 0, nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestFramerSingleBurst(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4})

	data := bits("0000 1111 0000 1111 0 1111")
	carrier := append(ones(16), 0, 0, 0, 0, 0)

	require.NoError(t, f.Receive(context.Background(), data, carrier))

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, bits("0101"), got[0].Symbols)
	assert.Equal(t, 16, got[0].Samples)
	assert.Equal(t, 2405000000, got[0].Frequency)
	assert.False(t, got[0].Truncated)
	assert.Equal(t, time.Unix(1700000000, 0), got[0].Timestamp)
}

func TestFramerBurstAcrossSegments(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4})
	ctx := context.Background()

	data := bits("0000 1111 0000 1111 0")
	carrier := append(ones(16), 0)

	require.NoError(t, f.Receive(ctx, data[:6], carrier[:6]))
	assert.Empty(t, drain(ch))
	require.NoError(t, f.Receive(ctx, data[6:], carrier[6:]))

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, bits("0101"), got[0].Symbols)
	assert.Equal(t, 16, got[0].Samples)
}

func TestFramerDropsShortBursts(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4, MinSamples: 8})

	data := bits("111111 0 111111111 0")
	carrier := bits("111111 0 111111111 0")
	require.NoError(t, f.Receive(context.Background(), data, carrier))

	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, 9, got[0].Samples)
	assert.Equal(t, bits("11"), got[0].Symbols)
}

func TestFramerSplitsLongBursts(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4, MaxSymbols: 3})

	data := append(ones(32), 0)
	carrier := append(ones(32), 0)
	require.NoError(t, f.Receive(context.Background(), data, carrier))

	got := drain(ch)
	require.Len(t, got, 3)
	assert.Equal(t, bits("111"), got[0].Symbols)
	assert.Equal(t, 10, got[0].Samples)
	assert.True(t, got[0].Truncated)
	assert.Equal(t, bits("111"), got[1].Symbols)
	assert.Equal(t, 12, got[1].Samples)
	assert.True(t, got[1].Truncated)
	assert.Equal(t, bits("11"), got[2].Symbols)
	assert.Equal(t, 10, got[2].Samples)
	assert.False(t, got[2].Truncated)
}

func TestFramerKeepsShortTailOfSplitBurst(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4, MinSamples: 8, MaxSymbols: 3})

	data := append(ones(16), 0)
	carrier := append(ones(16), 0)
	require.NoError(t, f.Receive(context.Background(), data, carrier))

	got := drain(ch)
	require.Len(t, got, 2)
	assert.Equal(t, bits("111"), got[0].Symbols)
	assert.Equal(t, 10, got[0].Samples)
	assert.True(t, got[0].Truncated)
	assert.Equal(t, bits("1"), got[1].Symbols)
	assert.Equal(t, 6, got[1].Samples)
	assert.False(t, got[1].Truncated)

	// a split on the last carrier sample leaves nothing to send
	data = append(ones(10), 0)
	carrier = append(ones(10), 0)
	require.NoError(t, f.Receive(context.Background(), data, carrier))
	got = drain(ch)
	require.Len(t, got, 1)
	assert.True(t, got[0].Truncated)

	// a new carrier period is measured on its own again
	require.NoError(t, f.Receive(context.Background(), bits("1111 0"), bits("1111 0")))
	assert.Empty(t, drain(ch))
}

func TestFramerReset(t *testing.T) {
	f, ch := newTestFramer(t, Options{SamplesPerSymbol: 4})
	ctx := context.Background()

	require.NoError(t, f.Receive(ctx, ones(10), ones(10)))
	f.Reset(2408000000)
	assert.Equal(t, 2408000000, f.Frequency())

	require.NoError(t, f.Receive(ctx, bits("0000 0"), bits("1111 0")))
	got := drain(ch)
	require.Len(t, got, 1)
	assert.Equal(t, 4, got[0].Samples)
	assert.Equal(t, bits("0"), got[0].Symbols)
	assert.Equal(t, 2408000000, got[0].Frequency)
}

func TestFramerErrors(t *testing.T) {
	f, _ := newTestFramer(t, Options{SamplesPerSymbol: 4})
	assert.Error(t, f.Receive(context.Background(), ones(3), ones(2)))

	blocked, err := NewFramer(Options{SamplesPerSymbol: 4}, 0, make(chan Burst), zerolog.Nop())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, blocked.Receive(ctx, bits("11110"), bits("11110")), context.Canceled)
}
