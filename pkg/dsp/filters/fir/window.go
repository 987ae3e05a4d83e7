package fir

import (
	"fmt"
	"math"
)

type WindowFunc func(int) []float32

type WindowType int

const (
	Hamming        WindowType = 0
	Hann           WindowType = 1
	BlackmanHarris WindowType = 2
	Blackman       WindowType = 3
)

var (
	windowMaxAttenuation = map[WindowType]int{
		Hamming:        53,
		Hann:           44,
		BlackmanHarris: 92,
		Blackman:       74,
	}
	windowFuncs = map[WindowType]WindowFunc{
		Hamming:        HammingWindow,
		Hann:           HannWindow,
		Blackman:       BlackmanWindow,
		BlackmanHarris: blackmanHarris92,
	}
)

// cosineSum evaluates a generalised cosine window with alternating term signs.
func cosineSum(ntaps int, coeffs ...float64) []float32 {
	ret := make([]float32, ntaps)
	M := float64(ntaps - 1)

	for i := 0; i < ntaps; i++ {
		fi := float64(i)
		var v, sign float64 = 0, 1
		for k, c := range coeffs {
			v += sign * c * math.Cos(2*math.Pi*float64(k)*fi/M)
			sign = -sign
		}
		ret[i] = float32(v)
	}
	return ret
}

func BlackmanHarrisWindow(ntaps, atten int) []float32 {
	switch atten {
	case 61:
		return cosineSum(ntaps, 0.42323, 0.49755, 0.07922)
	case 67:
		return cosineSum(ntaps, 0.44959, 0.49364, 0.05677)
	case 74:
		return cosineSum(ntaps, 0.40271, 0.49703, 0.09392, 0.00183)
	case 92:
		return cosineSum(ntaps, 0.35875, 0.48829, 0.14128, 0.01168)
	default:
		panic(fmt.Errorf("blackman harris window must have attenuation value 61, 67, 74, 92, got %d", atten))
	}
}

func blackmanHarris92(ntaps int) []float32 {
	return BlackmanHarrisWindow(ntaps, 92)
}

func BlackmanWindow(ntaps int) []float32 {
	return cosineSum(ntaps, 0.42, 0.5, 0.08)
}

func HammingWindow(ntaps int) []float32 {
	return cosineSum(ntaps, 0.54, 0.46)
}

func HannWindow(ntaps int) []float32 {
	return cosineSum(ntaps, 0.5, 0.5)
}
