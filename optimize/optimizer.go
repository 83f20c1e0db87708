// Package optimize implements minimizers of the negative log
// posterior of psychometric function models.
package optimize

import (
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/op/go-logging"

	"github.com/mani33/Psignifit-3.x/psi"
)

var log = logging.MustGetLogger("optimize")

// Model is the objective of an optimization.
type Model interface {
	GetNparams() int
	GetStart(data *psi.Data) []float64
	NegLogPosterior(prm []float64, data *psi.Data) float64
}

// Differentiable models provide the gradient of the objective.
type Differentiable interface {
	Model
	DNegLogPosterior(prm []float64, data *psi.Data) []float64
}

// Bounded models provide box constraints.
type Bounded interface {
	Bounds() [][2]float64
}

// named models provide parameter names.
type named interface {
	GetParameterNames() []string
}

// Optimizer is a minimizer of the negative log posterior.
type Optimizer interface {
	// Optimize returns the best parameter vector found starting
	// from start. If start is nil, model starting values are used.
	Optimize(m Model, data *psi.Data, start []float64) []float64
	Converged() bool
	Summary() Summary
	SetMaxIterations(n int)
	SetReportPeriod(period int)
	SetQuiet(quiet bool)
	WriteTrajectory(w io.Writer) error
}

// Summary stores information about a finished optimization.
type Summary struct {
	// Method is the optimization method.
	Method string `json:"method"`
	// Iterations is the number of iterations performed.
	Iterations int `json:"iterations"`
	// Evaluations is the number of objective function calls.
	Evaluations int `json:"evaluations"`
	// Converged is false if the iteration limit was reached.
	Converged bool `json:"converged"`
	// MinNegLogPosterior is the best objective value.
	MinNegLogPosterior float64 `json:"minNegLogPosterior"`
	// Parameters are the best parameter values.
	Parameters []float64 `json:"parameters"`
	// ParameterNames are the names of the parameters.
	ParameterNames []string `json:"parameterNames,omitempty"`
}

// TrajectoryPoint is the best point at an iteration.
type TrajectoryPoint struct {
	Iteration       int
	NegLogPosterior float64
	Parameters      []float64
}

// BaseOptimizer contains the state shared by all optimizers.
type BaseOptimizer struct {
	i          int
	calls      int
	minF       float64
	minPar     []float64
	names      []string
	converged  bool
	maxIter    int
	repPeriod  int
	trajectory []TrajectoryPoint
	Quiet      bool
}

// objective returns the negative log posterior. Non-finite values
// are replaced by +Inf.
func objective(m Model, prm []float64, data *psi.Data) float64 {
	f := m.NegLogPosterior(prm, data)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return math.Inf(1)
	}
	return f
}

// reset prepares the optimizer for a new run.
func (o *BaseOptimizer) reset(m Model) {
	n := m.GetNparams()
	o.i = 0
	o.calls = 0
	o.minF = math.Inf(1)
	o.minPar = make([]float64, n)
	o.converged = false
	o.trajectory = o.trajectory[:0]
	if nm, ok := m.(named); ok {
		o.names = nm.GetParameterNames()
	} else {
		o.names = make([]string, n)
		for i := range o.names {
			o.names[i] = "p" + strconv.Itoa(i)
		}
	}
}

// update remembers prm if f is the best value so far.
func (o *BaseOptimizer) update(f float64, prm []float64) {
	if f < o.minF {
		o.minF = f
		copy(o.minPar, prm)
	}
}

// record adds a trajectory point every report period.
func (o *BaseOptimizer) record(f float64, prm []float64) {
	if o.repPeriod <= 0 || o.i%o.repPeriod != 0 {
		return
	}
	o.trajectory = append(o.trajectory, TrajectoryPoint{
		Iteration:       o.i,
		NegLogPosterior: f,
		Parameters:      append([]float64(nil), prm...),
	})
}

// SetMaxIterations sets the maximum number of iterations.
func (o *BaseOptimizer) SetMaxIterations(n int) {
	o.maxIter = n
}

// SetReportPeriod sets how often trajectory points are recorded,
// zero disables the trajectory.
func (o *BaseOptimizer) SetReportPeriod(period int) {
	o.repPeriod = period
}

// SetQuiet disables printing of the final result.
func (o *BaseOptimizer) SetQuiet(quiet bool) {
	o.Quiet = quiet
}

// Converged returns false if the last run stopped at the iteration
// limit.
func (o *BaseOptimizer) Converged() bool {
	return o.converged
}

// Iterations returns the number of iterations of the last run.
func (o *BaseOptimizer) Iterations() int {
	return o.i
}

// GetMinF returns the best objective value of the last run.
func (o *BaseOptimizer) GetMinF() float64 {
	return o.minF
}

// Trajectory returns the recorded trajectory of the last run.
func (o *BaseOptimizer) Trajectory() []TrajectoryPoint {
	return o.trajectory
}

func (o *BaseOptimizer) summary(method string) Summary {
	return Summary{
		Method:             method,
		Iterations:         o.i,
		Evaluations:        o.calls,
		Converged:          o.converged,
		MinNegLogPosterior: o.minF,
		Parameters:         append([]float64(nil), o.minPar...),
		ParameterNames:     o.names,
	}
}

// ParameterNamesString returns tab separated parameter names.
func (o *BaseOptimizer) ParameterNamesString() string {
	return strings.Join(o.names, "\t")
}

// ParameterString returns tab separated parameter values.
func ParameterString(prm []float64) string {
	s := make([]string, len(prm))
	for i, v := range prm {
		s[i] = strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strings.Join(s, "\t")
}

// WriteTrajectory writes the recorded trajectory as a tab separated
// table with a header.
func (o *BaseOptimizer) WriteTrajectory(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "iteration\tnegLogPosterior\t%s\n", o.ParameterNamesString()); err != nil {
		return err
	}
	for _, p := range o.trajectory {
		if _, err := fmt.Fprintf(w, "%d\t%f\t%s\n", p.Iteration, p.NegLogPosterior, ParameterString(p.Parameters)); err != nil {
			return err
		}
	}
	return nil
}

// PrintFinal logs the result of the last run.
func (o *BaseOptimizer) PrintFinal(method string) {
	if o.Quiet {
		return
	}
	log.Infof("Finished %s", method)
	log.Noticef("Minimum negative log posterior: %v", o.minF)
	log.Infof("Objective function calls: %v", o.calls)
	log.Infof("Parameter  names: %v", o.ParameterNamesString())
	log.Infof("Parameter values: %v", ParameterString(o.minPar))
}
