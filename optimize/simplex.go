package optimize

import (
	"fmt"
	"math"

	"github.com/mani33/Psignifit-3.x/psi"
)

const (
	// TINY is the default relative tolerance of objective values
	// and the absolute tolerance of node coordinates.
	TINY = 1e-10
	// SMALL is the maximum difference between two consecutive
	// converged minima.
	SMALL = 1e-6

	// Nelder-Mead coefficients.
	reflection  = 1
	expansion   = 2
	contraction = 0.5
	shrinkage   = 0.5

	// DefaultMaxIterations is the default iteration limit.
	DefaultMaxIterations = 10000

	// relSpan and zeroSpan define the default simplex size: each
	// coordinate is displaced by 5% or by zeroSpan if it is zero.
	relSpan  = 0.05
	zeroSpan = 0.00025
)

// Simplex is the Nelder-Mead downhill simplex minimizer. Buffers are
// allocated once and reused by consecutive runs. A Simplex must not
// be used by several goroutines at once.
type Simplex struct {
	BaseOptimizer
	ftol float64
	xtol float64

	nodes     [][]float64
	fx        []float64
	modified  []bool
	centroid  []float64
	newnode   []float64
	trialnode []float64
	start     []float64
	span      []float64
}

// NewSimplex creates a simplex minimizer sized for model m.
func NewSimplex(m Model) (s *Simplex) {
	s = &Simplex{
		ftol: TINY,
		xtol: TINY,
	}
	s.maxIter = DefaultMaxIterations
	s.repPeriod = 10
	s.allocate(m.GetNparams())
	return
}

// allocate creates buffers for n parameters.
func (s *Simplex) allocate(n int) {
	s.nodes = make([][]float64, n+1)
	for i := range s.nodes {
		s.nodes[i] = make([]float64, n)
	}
	s.fx = make([]float64, n+1)
	s.modified = make([]bool, n+1)
	s.centroid = make([]float64, n)
	s.newnode = make([]float64, n)
	s.trialnode = make([]float64, n)
	s.start = make([]float64, n)
	s.span = make([]float64, n)
}

// SetTolerance sets the relative tolerance of objective values and
// the absolute tolerance of node coordinates.
func (s *Simplex) SetTolerance(ftol, xtol float64) {
	s.ftol = ftol
	s.xtol = xtol
}

func defaultSpan(x float64) float64 {
	if x == 0 {
		return zeroSpan
	}
	return relSpan * math.Abs(x)
}

// initialize sets the starting point and the simplex size. Entries
// of start after the first n are the simplex size per dimension.
func (s *Simplex) initialize(m Model, data *psi.Data, start []float64) {
	n := len(s.start)
	if start == nil {
		start = m.GetStart(data)
	}
	if len(start) < n || len(start) > 2*n {
		panic(fmt.Sprintf("Starting vector should have from %d to %d values, got %d", n, 2*n, len(start)))
	}
	copy(s.start, start[:n])
	extra := start[n:]
	for j := range s.span {
		if j < len(extra) && extra[j] != 0 {
			s.span[j] = extra[j]
		} else {
			s.span[j] = defaultSpan(s.start[j])
		}
	}
	s.build()
}

// build creates the simplex around the starting point displacing one
// coordinate per node.
func (s *Simplex) build() {
	for i, node := range s.nodes {
		copy(node, s.start)
		if i > 0 {
			node[i-1] += s.span[i-1]
		}
		s.modified[i] = true
	}
}

// reevaluate computes objective values at modified nodes and returns
// indices of the worst, the second worst and the best node.
func (s *Simplex) reevaluate(m Model, data *psi.Data) (maxind, nextind, minind int) {
	for i, node := range s.nodes {
		if s.modified[i] {
			s.fx[i] = objective(m, node, data)
			s.calls++
			s.modified[i] = false
		}
	}
	maxind, nextind, minind = 0, 1, 0
	if s.fx[1] > s.fx[0] {
		maxind, nextind = 1, 0
	}
	for i, f := range s.fx {
		if f < s.fx[minind] {
			minind = i
		}
		if i < 2 {
			continue
		}
		if f > s.fx[maxind] {
			nextind = maxind
			maxind = i
		} else if f > s.fx[nextind] {
			nextind = i
		}
	}
	return
}

// calculateCentroid computes the mean of all nodes except excluded.
func (s *Simplex) calculateCentroid(excluded int) {
	for j := range s.centroid {
		s.centroid[j] = 0
	}
	for i, node := range s.nodes {
		if i == excluded {
			continue
		}
		for j, v := range node {
			s.centroid[j] += v
		}
	}
	for j := range s.centroid {
		s.centroid[j] /= float64(len(s.nodes) - 1)
	}
}

// point sets dst to centroid + coef*(centroid - node[maxind]) and
// returns the objective value at dst.
func (s *Simplex) point(m Model, data *psi.Data, dst []float64, maxind int, coef float64) float64 {
	for j := range dst {
		dst[j] = s.centroid[j] + coef*(s.centroid[j]-s.nodes[maxind][j])
	}
	s.calls++
	return objective(m, dst, data)
}

// replace puts node with value f in place of node maxind.
func (s *Simplex) replace(maxind int, node []float64, f float64) {
	copy(s.nodes[maxind], node)
	s.fx[maxind] = f
	s.modified[maxind] = false
}

// reflect reflects the worst node through the centroid into
// newnode.
func (s *Simplex) reflect(m Model, data *psi.Data, maxind int) float64 {
	return s.point(m, data, s.newnode, maxind, reflection)
}

// expand tries to go further than the reflected point and keeps the
// better of the two.
func (s *Simplex) expand(m Model, data *psi.Data, maxind int, fr float64) {
	fe := s.point(m, data, s.trialnode, maxind, reflection*expansion)
	if fe < fr {
		s.replace(maxind, s.trialnode, fe)
	} else {
		s.replace(maxind, s.newnode, fr)
	}
}

// contract tries a point between the centroid and the reflected
// point if the reflected point is better than the worst node, and
// between the centroid and the worst node otherwise. It returns false
// if the contracted point does not improve the simplex.
func (s *Simplex) contract(m Model, data *psi.Data, maxind int, fr float64) bool {
	if fr < s.fx[maxind] {
		fc := s.point(m, data, s.trialnode, maxind, reflection*contraction)
		if fc <= fr {
			s.replace(maxind, s.trialnode, fc)
			return true
		}
		return false
	}
	fc := s.point(m, data, s.trialnode, maxind, -contraction)
	if fc < s.fx[maxind] {
		s.replace(maxind, s.trialnode, fc)
		return true
	}
	return false
}

// shrink moves all nodes towards the best node.
func (s *Simplex) shrink(minind int) {
	best := s.nodes[minind]
	for i, node := range s.nodes {
		if i == minind {
			continue
		}
		for j := range node {
			node[j] = best[j] + shrinkage*(node[j]-best[j])
		}
		s.modified[i] = true
	}
}

// simplexConverged tests the relative spread of objective values and the
// spread of node coordinates.
func (s *Simplex) simplexConverged(maxind, minind int) bool {
	fhi, flo := s.fx[maxind], s.fx[minind]
	rtol := 2 * math.Abs(fhi-flo) / (math.Abs(flo) + math.Abs(fhi) + TINY)
	if rtol < s.ftol {
		return true
	}
	for j := range s.start {
		lo, hi := s.nodes[0][j], s.nodes[0][j]
		for _, node := range s.nodes[1:] {
			lo = math.Min(lo, node[j])
			hi = math.Max(hi, node[j])
		}
		if hi-lo >= s.xtol {
			return false
		}
	}
	return true
}

// Optimize minimizes the negative log posterior of m starting from
// start. If start has more than GetNparams values, the remaining
// values set the simplex size per dimension. After convergence the
// simplex is rebuilt around the best node; the run stops when two
// consecutive minima agree. Reaching the iteration limit is not an
// error, Converged reports it.
func (s *Simplex) Optimize(m Model, data *psi.Data, start []float64) []float64 {
	if n := m.GetNparams(); n != len(s.start) {
		s.allocate(n)
	}
	s.reset(m)
	s.initialize(m, data, start)

	repeat := false
	oldF := 0.0
	var maxind, nextind, minind int
	for s.i = 1; s.i <= s.maxIter; s.i++ {
		maxind, nextind, minind = s.reevaluate(m, data)
		s.record(s.fx[minind], s.nodes[minind])
		if s.simplexConverged(maxind, minind) {
			if repeat && math.Abs(oldF-s.fx[minind]) < SMALL {
				s.converged = true
				break
			}
			repeat = true
			oldF = s.fx[minind]
			copy(s.start, s.nodes[minind])
			s.build()
			continue
		}
		s.calculateCentroid(maxind)
		fr := s.reflect(m, data, maxind)
		switch {
		case fr < s.fx[minind]:
			s.expand(m, data, maxind, fr)
		case fr < s.fx[nextind]:
			s.replace(maxind, s.newnode, fr)
		default:
			if !s.contract(m, data, maxind, fr) {
				s.shrink(minind)
			}
		}
	}
	if !s.converged {
		s.i = s.maxIter
		_, _, minind = s.reevaluate(m, data)
		log.Warningf("Iterations exceeded (%d)", s.maxIter)
	}

	s.minF = s.fx[minind]
	copy(s.minPar, s.nodes[minind])
	s.PrintFinal("downhill simplex")
	return append([]float64(nil), s.minPar...)
}

// Summary returns the summary of the last run.
func (s *Simplex) Summary() Summary {
	return s.summary("simplex")
}
