package main

import (
	"math"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"

	"github.com/mani33/Psignifit-3.x/psi"
)

// plotPoints is the number of points of the fitted curve.
const plotPoints = 200

// plotFit saves a plot of the observed proportions and the fitted
// psychometric function. The image format is chosen by the file
// extension.
func plotFit(fn string, m psi.Psychometric, data *psi.Data, prm []float64, thresholds []float64) error {
	p := plot.New()
	p.Title.Text = "Psychometric function"
	p.X.Label.Text = "intensity"
	p.Y.Label.Text = "proportion correct"

	obs := make(plotter.XYs, data.NBlocks())
	lo, hi := math.Inf(1), math.Inf(-1)
	for i, x := range data.Intensities {
		obs[i].X = x
		obs[i].Y = data.PCorrect(i)
		lo = math.Min(lo, x)
		hi = math.Max(hi, x)
	}
	if lo == hi {
		lo, hi = lo-1, hi+1
	}
	margin := 0.1 * (hi - lo)
	lo, hi = lo-margin, hi+margin

	curve := make(plotter.XYs, plotPoints)
	for i := range curve {
		x := lo + (hi-lo)*float64(i)/float64(plotPoints-1)
		curve[i].X = x
		curve[i].Y = m.Evaluate(x, prm)
	}

	if err := plotutil.AddScatters(p, "data", obs); err != nil {
		return err
	}
	if err := plotutil.AddLines(p, "fit", curve); err != nil {
		return err
	}

	var thr plotter.XYs
	for _, t := range thresholds {
		if t < lo || t > hi || math.IsNaN(t) {
			continue
		}
		thr = append(thr, plotter.XY{X: t, Y: m.Evaluate(t, prm)})
	}
	if len(thr) > 0 {
		if err := plotutil.AddScatters(p, "thresholds", thr); err != nil {
			return err
		}
	}

	p.Y.Min = 0
	p.Y.Max = 1
	return p.Save(5*vg.Inch, 4*vg.Inch, fn)
}
