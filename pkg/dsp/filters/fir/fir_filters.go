package fir

// computeNTaps estimates the filter length needed for the given transition width
// with the attenuation the window can reach.  The result is always odd so the
// filter has a centre tap.
func computeNTaps(sampleRate float64, transitionWidth float64, winType WindowType) int {
	maxAttenuation := windowMaxAttenuation[winType]
	ntaps := int(float64(maxAttenuation) * sampleRate / (22.0 * transitionWidth))
	ntaps |= 1

	return ntaps
}
