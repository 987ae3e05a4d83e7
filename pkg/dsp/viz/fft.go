package viz

import (
	"fmt"
	"math"
	"math/cmplx"
	"sync"

	"github.com/norasector/shockburst/pkg/dsp/filters/fir"
	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

const (
	powerAverage   = 0.10
	balanceAverage = 0.05
)

// FFTPlotter shows a smoothed power spectrum of the most recent len samples.
type FFTPlotter struct {
	mu           sync.Mutex
	bufFloat     []float32
	bufComplex   []complex64
	sampleRate   int
	len          int
	isComplex    bool
	averagePower []float64
	avgSumPower  float64
	name         string
	showBalance  bool
	plotOptions  []PlotOptions
}

func (f *FFTPlotter) ShowBalance(show bool) {
	f.showBalance = show
}

func (f *FFTPlotter) Name() string {
	return f.name
}

func NewFFTPlotterFloat(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufFloat:     make([]float32, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		name:         name,
	}
}

func NewFFTPlotterComplex(name string, len, sampleRate int) *FFTPlotter {
	return &FFTPlotter{
		bufComplex:   make([]complex64, len),
		averagePower: make([]float64, len),
		len:          len,
		sampleRate:   sampleRate,
		isComplex:    true,
		name:         name,
	}
}

// AppendFloat is a no-op on a complex plotter.
func (f *FFTPlotter) AppendFloat(s []float32) {
	if f.isComplex {
		return
	}
	f.mu.Lock()
	if len(s) >= f.len {
		copy(f.bufFloat, s[len(s)-f.len:])
	} else {
		copy(f.bufFloat, f.bufFloat[len(s):])
		copy(f.bufFloat[f.len-len(s):], s)
	}
	f.mu.Unlock()
}

// AppendComplex is a no-op on a float plotter.
func (f *FFTPlotter) AppendComplex(s []complex64) {
	if !f.isComplex {
		return
	}
	f.mu.Lock()
	if len(s) >= f.len {
		copy(f.bufComplex, s[len(s)-f.len:])
	} else {
		copy(f.bufComplex, f.bufComplex[len(s):])
		copy(f.bufComplex[f.len-len(s):], s)
	}
	f.mu.Unlock()
}

func (f *FFTPlotter) AddPlotOption(opt PlotOptions) {
	f.plotOptions = append(f.plotOptions, opt)
}

func (f *FFTPlotter) spectrum() (coeffs []complex128, shiftFunc func(int) int, freqFunc func(int) float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	win := fir.BlackmanWindow(f.len)
	if f.isComplex {
		fft := fourier.NewCmplxFFT(f.len)
		data := make([]complex128, f.len)
		norm := 0.42 * float64(f.len)
		for i := 0; i < f.len; i++ {
			v := complex128(f.bufComplex[i])
			data[i] = complex(real(v)*float64(win[i])/norm, imag(v)*float64(win[i])/norm)
		}
		return fft.Coefficients(nil, data), fft.ShiftIdx, fft.Freq
	}

	fft := fourier.NewFFT(f.len)
	data := make([]float64, f.len)
	for i := 0; i < f.len; i++ {
		data[i] = float64(f.bufFloat[i]) * float64(win[i])
	}
	return fft.Coefficients(nil, data), func(i int) int { return i }, fft.Freq
}

func (f *FFTPlotter) GetImage() *ImageContainer {
	p := plotWithDefaults()
	p.Title.Text = f.name
	p.Y.Label.Text = "Power (dB)"
	p.X.Label.Text = "Frequency"
	p.Y.Max = 0
	p.Y.Min = -100

	for _, opt := range f.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())

	coeffs, shiftFunc, freqFunc := f.spectrum()

	points := make(plotter.XYs, 0, len(coeffs))
	var sumPower float64
	for i := 0; i < len(coeffs); i++ {
		shiftIdx := shiftFunc(i)
		freq := freqFunc(shiftIdx) * float64(f.sampleRate)
		mag := cmplx.Abs(coeffs[shiftIdx])

		f.averagePower[i] = ((1.0 - powerAverage) * f.averagePower[i]) + (powerAverage * mag)
		if f.averagePower[i] == 0 {
			break
		}

		if f.averagePower[i] > 1e-5 {
			if freq < 0 {
				sumPower -= f.averagePower[i]
			} else if freq > 0 {
				sumPower += f.averagePower[i]
			}
			f.avgSumPower = ((1.0 - balanceAverage) * f.avgSumPower) + (balanceAverage * sumPower)
		}
		points = append(points, plotter.XY{X: freq, Y: 20 * math.Log10(f.averagePower[i])})
	}

	if len(points) == 0 {
		return nil
	}
	if err := plotutil.AddLines(p, "frequency", points); err != nil {
		return nil
	}

	if f.showBalance {
		p.Title.Text += fmt.Sprintf(" Balance: %3.0f", math.Abs(f.avgSumPower*1000))
	}

	return renderPNG(f.name, p)
}
