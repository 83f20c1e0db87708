package optimize

import (
	"fmt"
	"math"

	lbfgsb "github.com/idavydov/go-lbfgsb"

	"github.com/mani33/Psignifit-3.x/psi"
)

// boundMargin keeps L-BFGS-B away from the box boundaries.
const boundMargin = 1e-5

// LBFGSB is a limited memory quasi-Newton minimizer with box
// constraints. It uses the model gradient if the model is
// Differentiable and central differences otherwise. The iteration
// limit is not used.
type LBFGSB struct {
	BaseOptimizer
	m    Model
	data *psi.Data
	dH   float64
	ftol float64
	gtol float64
	x    []float64
}

// NewLBFGSB creates an L-BFGS-B minimizer.
func NewLBFGSB(m Model) *LBFGSB {
	l := &LBFGSB{
		dH:   1e-6,
		ftol: 1e-9,
		gtol: 1e-9,
	}
	l.repPeriod = 10
	l.maxIter = DefaultMaxIterations
	l.x = make([]float64, m.GetNparams())
	return l
}

// SetTolerance sets the function and the gradient tolerances.
func (l *LBFGSB) SetTolerance(ftol, gtol float64) {
	l.ftol = ftol
	l.gtol = gtol
}

// Logger records the trajectory.
func (l *LBFGSB) Logger(info *lbfgsb.OptimizationIterationInformation) {
	l.i = info.Iteration
	l.record(info.F, info.X)
}

// EvaluateFunction returns the objective value and keeps track of the
// best point.
func (l *LBFGSB) EvaluateFunction(x []float64) float64 {
	f := objective(l.m, x, l.data)
	l.calls++
	l.update(f, x)
	return f
}

// EvaluateGradient returns the gradient of the objective.
func (l *LBFGSB) EvaluateGradient(x []float64) (grad []float64) {
	if d, ok := l.m.(Differentiable); ok {
		return d.DNegLogPosterior(x, l.data)
	}
	grad = make([]float64, len(x))
	copy(l.x, x)
	for i := range x {
		l.x[i] = x[i] - l.dH
		f1 := objective(l.m, l.x, l.data)
		l.x[i] = x[i] + l.dH
		f2 := objective(l.m, l.x, l.data)
		l.x[i] = x[i]
		l.calls += 2
		grad[i] = (f2 - f1) / 2 / l.dH
	}
	return
}

// bounds returns the model bounds moved inside by boundMargin.
func (l *LBFGSB) bounds(n int) [][2]float64 {
	bounds := make([][2]float64, n)
	var mb [][2]float64
	if b, ok := l.m.(Bounded); ok {
		mb = b.Bounds()
	}
	for i := range bounds {
		bounds[i] = [2]float64{math.Inf(-1), math.Inf(1)}
		if i < len(mb) {
			bounds[i] = [2]float64{mb[i][0] + boundMargin, mb[i][1] - boundMargin}
		}
	}
	return bounds
}

// projectedGradientNorm returns the largest gradient component which
// does not point outside of the box.
func projectedGradientNorm(x, grad []float64, bounds [][2]float64) (norm float64) {
	for i, g := range grad {
		if (x[i] <= bounds[i][0] && g > 0) || (x[i] >= bounds[i][1] && g < 0) {
			continue
		}
		norm = math.Max(norm, math.Abs(g))
	}
	return
}

// Optimize minimizes the negative log posterior of m starting from
// start. Extra values in start are ignored.
func (l *LBFGSB) Optimize(m Model, data *psi.Data, start []float64) []float64 {
	n := m.GetNparams()
	l.m = m
	l.data = data
	if len(l.x) != n {
		l.x = make([]float64, n)
	}
	l.reset(m)
	if start == nil {
		start = m.GetStart(data)
	}
	if len(start) < n {
		panic(fmt.Sprintf("Starting vector should have at least %d values, got %d", n, len(start)))
	}
	bounds := l.bounds(n)
	x0 := make([]float64, n)
	for i := range x0 {
		x0[i] = math.Max(bounds[i][0], math.Min(bounds[i][1], start[i]))
	}
	l.minF = objective(m, x0, data)
	copy(l.minPar, x0)
	l.calls++

	opt := new(lbfgsb.Lbfgsb)
	opt.SetApproximationSize(10)
	opt.SetFTolerance(l.ftol)
	opt.SetGTolerance(l.gtol)
	opt.SetBounds(bounds)
	opt.SetLogger(l.Logger)

	_, exitStatus := opt.Minimize(l, x0)
	log.Debug("Exit status: ", exitStatus)

	grad := l.EvaluateGradient(l.minPar)
	l.converged = projectedGradientNorm(l.minPar, grad, bounds) < 1e-3*math.Max(1, math.Abs(l.minF))
	if !l.converged {
		log.Warning("L-BFGS-B did not converge: ", exitStatus)
	}
	l.PrintFinal("L-BFGS-B")
	return append([]float64(nil), l.minPar...)
}

// Summary returns the summary of the last run.
func (l *LBFGSB) Summary() Summary {
	return l.summary("lbfgsb")
}
