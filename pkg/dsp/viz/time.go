package viz

import (
	"sync"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
)

type PlotType int

const (
	PlotTypeDefault PlotType = iota
	PlotTypeScatter
	PlotTypeLines
)

// TimeDomainPlotter keeps the most recent size samples of a real signal.
type TimeDomainPlotter struct {
	mu          sync.Mutex
	bufFloat    []float32
	size        int
	name        string
	plotFunc    func(*plot.Plot, ...interface{}) error
	plotOptions []PlotOptions
}

func NewTimeDomainPlotter(name string, size int) *TimeDomainPlotter {
	return &TimeDomainPlotter{
		bufFloat: make([]float32, 0, size),
		size:     size,
		name:     name,
		plotFunc: plotutil.AddScatters,
	}
}

func (t *TimeDomainPlotter) Name() string {
	return t.name
}

func (t *TimeDomainPlotter) SetPlotType(tp PlotType) {
	switch tp {
	case PlotTypeLines:
		t.plotFunc = plotutil.AddLines
	default:
		t.plotFunc = plotutil.AddScatters
	}
}

func (t *TimeDomainPlotter) AppendFloat(f []float32) {
	t.mu.Lock()
	t.bufFloat = append(t.bufFloat, f...)
	if len(t.bufFloat) > t.size {
		t.bufFloat = append(t.bufFloat[:0], t.bufFloat[len(t.bufFloat)-t.size:]...)
	}
	t.mu.Unlock()
}

// AppendBits plots hard decisions stored one per byte.
func (t *TimeDomainPlotter) AppendBits(b []byte) {
	f := make([]float32, len(b))
	for i := range b {
		f[i] = float32(b[i])
	}
	t.AppendFloat(f)
}

func (t *TimeDomainPlotter) AddPlotOption(opt PlotOptions) {
	t.plotOptions = append(t.plotOptions, opt)
}

func (t *TimeDomainPlotter) snapshot() plotter.XYs {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.bufFloat) < t.size {
		return nil
	}
	ret := make(plotter.XYs, t.size)
	for i := 0; i < t.size; i++ {
		ret[i] = plotter.XY{X: float64(i), Y: float64(t.bufFloat[i])}
	}
	return ret
}

func (t *TimeDomainPlotter) GetImage() *ImageContainer {
	points := t.snapshot()
	if points == nil {
		return nil
	}

	p := plotWithDefaults()
	p.Title.Text = t.name
	p.Y.Label.Text = "Amplitude"
	p.Y.Min = -4
	p.Y.Max = 4
	p.X.Label.Text = "t"

	for _, opt := range t.plotOptions {
		opt(p)
	}

	p.Add(plotter.NewGrid())
	if err := t.plotFunc(p, "f(t)", points); err != nil {
		return nil
	}

	return renderPNG(t.name, p)
}
