package config

import (
	"testing"
	"time"

	"github.com/norasector/shockburst/pkg/esb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	c, err := Parse([]byte("device: hackrf\n"))
	require.NoError(t, err)

	assert.Equal(t, 18000000, c.SampleRate)
	assert.Equal(t, 2000000, c.DataRate)
	assert.Equal(t, 9, c.SamplesPerSymbol)
	assert.Equal(t, 3500000, c.Offset)
	assert.Equal(t, 500, c.Burst.MinSamples)
	assert.Equal(t, esb.DefaultChannels(), c.Decoder.Channels)
	assert.Equal(t, 200*time.Millisecond, c.Decoder.SweepTimeout)
}

func TestParse(t *testing.T) {
	c, err := Parse([]byte(`
playback_location: capture.cs8
sample_rate: 8000000
data_rate: 1000000
samples_per_symbol: 4
decoder:
  crc_length: 1
  channels: [2402000000, 2480000000]
  sweep_timeout: 1s
printer:
  enabled: true
  ignore_ack: true
  include: [e7e7e7e7e7]
  filters:
    - position: begins
      data: "01"
      field: payload
output_destinations:
  - host: localhost
    port: 9000
`))
	require.NoError(t, err)

	assert.Equal(t, "file", c.Device)
	assert.Equal(t, 4, c.SamplesPerSymbol)
	assert.Equal(t, 1, c.Decoder.CRCLength)
	assert.Equal(t, []int{2402000000, 2480000000}, c.Decoder.Channels)
	assert.Equal(t, time.Second, c.Decoder.SweepTimeout)
	assert.True(t, c.Printer.IgnoreAck)
	require.Len(t, c.Printer.Filters, 1)
	assert.Equal(t, esb.PositionBegins, c.Printer.Filters[0].Position)
	assert.Equal(t, esb.FieldPayload, c.Printer.Filters[0].Field)
	assert.Equal(t, []OutputDestination{{Host: "localhost", Port: 9000}}, c.OutputDestinations)
}

func TestValidate(t *testing.T) {
	cases := map[string]string{
		"unknown device":        "device: rtlsdr\n",
		"rate mismatch":         "sample_rate: 20000000\nsamples_per_symbol: 9\n",
		"crc length":            "decoder:\n  crc_length: 3\n",
		"include and exclude":   "printer:\n  include: [aa]\n  exclude: [bb]\n",
		"bad filter":            "printer:\n  filters:\n    - position: nowhere\n",
		"bad destination":       "output_destinations:\n  - host: localhost\n",
		"file without playback": "device: file\n",
	}

	for name, contents := range cases {
		_, err := Parse([]byte(contents))
		assert.Error(t, err, name)
	}
}

func TestLoadExampleConfig(t *testing.T) {
	c, err := Load("../../../shockburst.yaml")
	require.NoError(t, err)

	assert.Equal(t, "hackrf", c.Device)
	assert.Equal(t, 4096, c.Burst.MaxSymbols)
	assert.Equal(t, 5*time.Second, c.Decoder.LockedTimeout)
	assert.True(t, c.Printer.IgnoreAck)
	assert.Len(t, c.Decoder.Channels, 24)

	_, err = Load("does-not-exist.yaml")
	assert.Error(t, err)
}

func TestParseKeepsExplicitZeros(t *testing.T) {
	c, err := Parse([]byte("device: hackrf\n"))
	require.NoError(t, err)
	require.NotNil(t, c.Decoder.Tries)
	require.NotNil(t, c.Carrier.Threshold)
	assert.Equal(t, 8, *c.Decoder.Tries)
	assert.Equal(t, 0.01, *c.Carrier.Threshold)

	c, err = Parse([]byte("device: hackrf\ndecoder:\n  tries: 0\ncarrier:\n  threshold: 0\n"))
	require.NoError(t, err)
	assert.Equal(t, 0, *c.Decoder.Tries)
	assert.Equal(t, 0.0, *c.Carrier.Threshold)
}
