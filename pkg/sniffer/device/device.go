package device

import (
	"context"

	"github.com/norasector/turbine-common/types"
)

// Device delivers complex baseband segments.
type Device interface {
	// Start streams samples into complexSamples until ctx is done or the device fails.
	Start(ctx context.Context, centerFreq int, sampleRate int, complexSamples chan *types.SegmentComplex64) error
	Stop() error
	MaxSampleRate() int
	// SetFrequency retunes a running device.
	SetFrequency(centerFreq int) error
}
