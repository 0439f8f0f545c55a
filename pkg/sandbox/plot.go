package sandbox

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/dop251/goja"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

const (
	defaultPlotWidth  = 8.0
	defaultPlotHeight = 5.0
	defaultHistBins   = 10
)

// plotOptions are the optional settings accepted by every plot builtin.
type plotOptions struct {
	title, xLabel, yLabel string
	path                  string
	bins                  int
	width, height         float64
}

func (s *Sandbox) plotBar(call goja.FunctionCall) goja.Value {
	labels := s.labelsArg(call.Argument(0))
	values := s.numbersArg(call.Argument(1), true)
	if len(labels) != len(values) {
		panic(s.vm.NewTypeError("plot.bar: %d labels for %d values", len(labels), len(values)))
	}
	opts := s.plotOpts(call.Argument(2))

	bars, err := plotter.NewBarChart(plotter.Values(values), vg.Points(barWidth(len(values), opts.width)))
	if err != nil {
		s.throw(err)
	}
	p := newPlot(opts)
	p.Add(bars)
	p.NominalX(labels...)
	return s.savePlot(p, opts)
}

func (s *Sandbox) plotLine(call goja.FunctionCall) goja.Value {
	xys := s.xysArg(call, "plot.line")
	opts := s.plotOpts(call.Argument(2))

	line, err := plotter.NewLine(xys)
	if err != nil {
		s.throw(err)
	}
	p := newPlot(opts)
	p.Add(plotter.NewGrid(), line)
	return s.savePlot(p, opts)
}

func (s *Sandbox) plotScatter(call goja.FunctionCall) goja.Value {
	xys := s.xysArg(call, "plot.scatter")
	opts := s.plotOpts(call.Argument(2))

	scatter, err := plotter.NewScatter(xys)
	if err != nil {
		s.throw(err)
	}
	p := newPlot(opts)
	p.Add(plotter.NewGrid(), scatter)
	return s.savePlot(p, opts)
}

func (s *Sandbox) plotHist(call goja.FunctionCall) goja.Value {
	values := s.numbersArg(call.Argument(0), false)
	opts := s.plotOpts(call.Argument(1))
	if len(values) == 0 {
		panic(s.vm.NewTypeError("plot.hist: no values to plot"))
	}

	hist, err := plotter.NewHist(plotter.Values(values), opts.bins)
	if err != nil {
		s.throw(err)
	}
	p := newPlot(opts)
	p.Add(hist)
	return s.savePlot(p, opts)
}

func newPlot(opts plotOptions) *plot.Plot {
	p := plot.New()
	p.Title.Text = opts.title
	p.X.Label.Text = opts.xLabel
	p.Y.Label.Text = opts.yLabel
	return p
}

// savePlot renders p to the configured path and returns that path.
func (s *Sandbox) savePlot(p *plot.Plot, opts plotOptions) goja.Value {
	path := s.plotPath
	if opts.path != "" {
		path = s.resolve(opts.path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		s.throw(err)
	}
	if err := p.Save(vg.Length(opts.width)*vg.Inch, vg.Length(opts.height)*vg.Inch, path); err != nil {
		s.throw(fmt.Errorf("saving plot: %w", err))
	}
	return s.vm.ToValue(path)
}

func (s *Sandbox) plotOpts(v goja.Value) plotOptions {
	opts := plotOptions{bins: defaultHistBins, width: defaultPlotWidth, height: defaultPlotHeight}
	obj, ok := v.(*goja.Object)
	if !ok {
		return opts
	}
	str := func(key string) string {
		if x := obj.Get(key); x != nil && !goja.IsUndefined(x) && !goja.IsNull(x) {
			return x.String()
		}
		return ""
	}
	num := func(key string, def float64) float64 {
		if x := obj.Get(key); x != nil && !goja.IsUndefined(x) && !goja.IsNull(x) {
			if f := x.ToFloat(); f > 0 {
				return f
			}
		}
		return def
	}
	opts.title = str("title")
	opts.xLabel = str("xlabel")
	opts.yLabel = str("ylabel")
	opts.path = str("path")
	opts.bins = int(num("bins", defaultHistBins))
	opts.width = num("width", defaultPlotWidth)
	opts.height = num("height", defaultPlotHeight)
	return opts
}

func (s *Sandbox) labelsArg(v goja.Value) []string {
	list, ok := v.Export().([]any)
	if !ok {
		panic(s.vm.NewTypeError("expected an array of labels"))
	}
	out := make([]string, len(list))
	for i, x := range list {
		out[i] = s.format(s.vm.ToValue(x))
	}
	return out
}

// numbersArg reads an array of numbers. Missing entries become zero when
// keepMissing is set and are dropped otherwise.
func (s *Sandbox) numbersArg(v goja.Value, keepMissing bool) []float64 {
	list, ok := v.Export().([]any)
	if !ok {
		panic(s.vm.NewTypeError("expected an array of numbers"))
	}
	out := make([]float64, 0, len(list))
	for _, x := range list {
		if x == nil {
			if keepMissing {
				out = append(out, 0)
			}
			continue
		}
		out = append(out, s.vm.ToValue(x).ToFloat())
	}
	return out
}

// xysArg pairs the first two arguments, skipping pairs with a missing side.
func (s *Sandbox) xysArg(call goja.FunctionCall, name string) plotter.XYs {
	xs, ok1 := call.Argument(0).Export().([]any)
	ys, ok2 := call.Argument(1).Export().([]any)
	if !ok1 || !ok2 {
		panic(s.vm.NewTypeError("%s expects two arrays", name))
	}
	if len(xs) != len(ys) {
		panic(s.vm.NewTypeError("%s: %d x values for %d y values", name, len(xs), len(ys)))
	}
	xys := make(plotter.XYs, 0, len(xs))
	for i := range xs {
		if xs[i] == nil || ys[i] == nil {
			continue
		}
		xys = append(xys, plotter.XY{X: s.vm.ToValue(xs[i]).ToFloat(), Y: s.vm.ToValue(ys[i]).ToFloat()})
	}
	if len(xys) == 0 {
		panic(s.vm.NewTypeError("%s: no points to plot", name))
	}
	return xys
}

// barWidth spreads the bars over roughly two thirds of the canvas.
func barWidth(n int, widthInches float64) float64 {
	if n == 0 {
		return 20
	}
	w := widthInches * 72 * 0.66 / float64(n)
	return min(max(w, 2), 60)
}
