// Package fit runs the optimizers on psychometric models and collects
// the quantities derived from the best fit.
package fit

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/op/go-logging"

	"github.com/mani33/Psignifit-3.x/optimize"
	"github.com/mani33/Psignifit-3.x/psi"
)

var log = logging.MustGetLogger("fit")

// Optimization methods.
const (
	Simplex = "simplex"
	LBFGSB  = "lbfgsb"
)

// Methods lists the optimization methods.
var Methods = []string{Simplex, LBFGSB}

// DefaultCut is the performance level used when no cuts are given.
const DefaultCut = 0.5

// Settings control a fit.
type Settings struct {
	// Method is Simplex or LBFGSB.
	Method string
	// Cuts are the performance levels for thresholds.
	Cuts []float64
	// MaxIterations limits the number of iterations, zero keeps
	// the optimizer default.
	MaxIterations int
	// ReportPeriod sets how often the trajectory is recorded.
	ReportPeriod int
	// Polish runs L-BFGS-B from the simplex result.
	Polish bool
	// Quiet disables optimizer final reports.
	Quiet bool
	// Trajectory receives the optimizer trajectory if not nil.
	Trajectory io.Writer
}

// DefaultSettings returns simplex settings with the default cut.
func DefaultSettings() Settings {
	return Settings{
		Method: Simplex,
		Cuts:   []float64{DefaultCut},
	}
}

// Validate checks the settings.
func (s *Settings) Validate() error {
	if s.Method != Simplex && s.Method != LBFGSB {
		return fmt.Errorf("Unknown optimization method: %s", s.Method)
	}
	if s.MaxIterations < 0 {
		return errors.New("Number of iterations should be non-negative")
	}
	for _, c := range s.Cuts {
		if !(c > 0 && c < 1) {
			return fmt.Errorf("Cut should be in (0, 1), got %v", c)
		}
	}
	return nil
}

// NewOptimizer creates the optimizer for a model.
func NewOptimizer(m optimize.Model, s Settings) (optimize.Optimizer, error) {
	var opt optimize.Optimizer
	switch s.Method {
	case Simplex:
		opt = optimize.NewSimplex(m)
	case LBFGSB:
		opt = optimize.NewLBFGSB(m)
	default:
		return nil, fmt.Errorf("Unknown optimization method: %s", s.Method)
	}
	if s.MaxIterations > 0 {
		opt.SetMaxIterations(s.MaxIterations)
	}
	if s.ReportPeriod > 0 {
		opt.SetReportPeriod(s.ReportPeriod)
	}
	opt.SetQuiet(s.Quiet)
	return opt, nil
}

// minimize runs the optimizer and the optional polishing step. It
// fails if the objective at the result is not finite.
func minimize(m optimize.Model, data *psi.Data, start []float64, s Settings) (prm []float64, sum optimize.Summary, err error) {
	opt, err := NewOptimizer(m, s)
	if err != nil {
		return nil, sum, err
	}
	prm = opt.Optimize(m, data, start)
	sum = opt.Summary()
	if s.Trajectory != nil {
		if err = opt.WriteTrajectory(s.Trajectory); err != nil {
			return nil, sum, err
		}
	}
	if s.Polish && s.Method == Simplex {
		lopt := optimize.NewLBFGSB(m)
		lopt.SetQuiet(s.Quiet)
		lprm := lopt.Optimize(m, data, prm)
		if lopt.GetMinF() < sum.MinNegLogPosterior {
			log.Debugf("Polishing improved the fit from %v to %v", sum.MinNegLogPosterior, lopt.GetMinF())
			prm = lprm
			sum.MinNegLogPosterior = lopt.GetMinF()
			sum.Parameters = append([]float64(nil), prm...)
			sum.Evaluations += lopt.Summary().Evaluations
		}
	}
	if f := m.NegLogPosterior(prm, data); math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, sum, fmt.Errorf("Negative log posterior at the optimum is not finite (%v)", f)
	}
	return prm, sum, nil
}

// Result is a fitted model with diagnostics.
type Result struct {
	Params            []float64
	ParameterNames    []string
	NegLogPosterior   float64
	Deviance          float64
	Cuts              []float64
	Thresholds        []float64
	DevianceResiduals []float64
	Rpd               float64
	Rkd               float64
	// LeastFavourable is NaN for cuts where the direction is not
	// defined.
	LeastFavourable []float64
	Converged       bool
	Iterations      int
	Evaluations     int
	Method          string
}

// Run fits the model to the data. If start is nil, model starting
// values are used.
func Run(m *psi.Model, data *psi.Data, start []float64, s Settings) (*Result, error) {
	if len(s.Cuts) == 0 {
		s.Cuts = []float64{DefaultCut}
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	prm, sum, err := minimize(m, data, start, s)
	if err != nil {
		return nil, err
	}
	if !sum.Converged {
		log.Warningf("Optimization did not converge after %d iterations", sum.Iterations)
	}
	return Evaluate(m, data, prm, s.Cuts, sum), nil
}

// Evaluate computes the diagnostics of the model at prm.
func Evaluate(m *psi.Model, data *psi.Data, prm []float64, cuts []float64, sum optimize.Summary) *Result {
	res := &Result{
		Params:          append([]float64(nil), prm...),
		ParameterNames:  m.GetParameterNames(),
		NegLogPosterior: m.NegLogPosterior(prm, data),
		Deviance:        m.Deviance(prm, data),
		Cuts:            append([]float64(nil), cuts...),
		Converged:       sum.Converged,
		Iterations:      sum.Iterations,
		Evaluations:     sum.Evaluations,
		Method:          sum.Method,
	}
	res.DevianceResiduals = m.DevianceResiduals(prm, data)
	res.Rpd = m.Rpd(res.DevianceResiduals, prm, data)
	res.Rkd = m.Rkd(res.DevianceResiduals)
	for _, cut := range cuts {
		res.Thresholds = append(res.Thresholds, m.Threshold(prm, cut))
		lf, err := m.LeastFavourable(prm, data, cut, true)
		if err != nil {
			log.Warningf("Cut %v: %v", cut, err)
			lf = math.NaN()
		}
		res.LeastFavourable = append(res.LeastFavourable, lf)
	}
	log.Infof("Deviance: %v, Rpd: %v, Rkd: %v", res.Deviance, res.Rpd, res.Rkd)
	return res
}
