// Package psi implements the psychometric function model: binomial
// likelihood of trial data given a core, a sigmoid, asymptotes and
// per-parameter priors.
//
// Parameter vectors are ordered as [core0, core1, lapse] for nAFC
// tasks and [core0, core1, lapse, guess] for yes/no tasks (nafc == 1).
package psi

import (
	"errors"
	"fmt"
	"math"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"

	"github.com/mani33/Psignifit-3.x/core"
	"github.com/mani33/Psignifit-3.x/matrix"
	"github.com/mani33/Psignifit-3.x/prior"
	"github.com/mani33/Psignifit-3.x/sigmoid"
)

var log = logging.MustGetLogger("psi")

const (
	// psiEpsilon keeps Psi away from 0 and 1 inside logarithms.
	psiEpsilon = 1e-10
	// dh is the step for numerical derivatives.
	dh = 1e-5

	startLapse = 0.02
	startGuess = 0.02
)

// Psychometric is implemented by Model and OutlierModel.
type Psychometric interface {
	GetNparams() int
	Evaluate(x float64, prm []float64) float64
	NegLogLikelihood(prm []float64, data *Data) float64
	NegLogPosterior(prm []float64, data *Data) float64
	Deviance(prm []float64, data *Data) float64
	DNegLogLikelihood(prm []float64, data *Data) []float64
	DNegLogPosterior(prm []float64, data *Data) []float64
	DDNegLogLikelihood(prm []float64, data *Data) *matrix.Matrix
	GetStart(data *Data) []float64
	Threshold(prm []float64, cut float64) float64
	GetParameterNames() []string
	Bounds() [][2]float64
}

// Model is the standard psychometric function
//
//	Psi(x) = guess + (1 - guess - lapse) * F(G(x, prm)),
//
// where F is a sigmoid and G is a core.
type Model struct {
	nafc   int
	guess  float64
	core   core.Core
	sig    sigmoid.Sigmoid
	priors []prior.Prior
}

// NewModel creates a new model for an nAFC task, nafc == 1 means a
// yes/no task with a free guessing rate.
func NewModel(nafc int, cr core.Core, sig sigmoid.Sigmoid) (*Model, error) {
	if nafc < 1 {
		return nil, fmt.Errorf("Number of alternatives should be >= 1, got %d", nafc)
	}
	if cr == nil || sig == nil {
		return nil, errors.New("Core and sigmoid are required")
	}
	m := &Model{
		nafc: nafc,
		core: cr,
		sig:  sig,
	}
	if nafc > 1 {
		m.guess = 1 / float64(nafc)
	}
	m.priors = make([]prior.Prior, m.GetNparams())
	return m, nil
}

// GetNparams returns the number of free parameters.
func (m *Model) GetNparams() int {
	if m.nafc == 1 {
		return core.NParams + 2
	}
	return core.NParams + 1
}

// GetNalternatives returns the number of alternatives, 1 for yes/no.
func (m *Model) GetNalternatives() int {
	return m.nafc
}

// GetCore returns the core.
func (m *Model) GetCore() core.Core {
	return m.core
}

// GetSigmoid returns the sigmoid.
func (m *Model) GetSigmoid() sigmoid.Sigmoid {
	return m.sig
}

// GetParameterNames returns parameter names in the order of the
// parameter vector.
func (m *Model) GetParameterNames() []string {
	names := []string{"a", "b", "lambda"}
	if m.nafc == 1 {
		names = append(names, "gamma")
	}
	return names
}

// Bounds returns the box constraints of the parameters. Core
// parameters are unbounded.
func (m *Model) Bounds() [][2]float64 {
	b := make([][2]float64, m.GetNparams())
	for i := 0; i < core.NParams; i++ {
		b[i] = [2]float64{math.Inf(-1), math.Inf(1)}
	}
	b[core.NParams] = [2]float64{0, 1 - m.guess}
	if m.nafc == 1 {
		b[core.NParams+1] = [2]float64{0, 1}
	}
	return b
}

// checkParams panics if prm has the wrong length.
func (m *Model) checkParams(prm []float64) {
	if len(prm) != m.GetNparams() {
		panic(fmt.Sprintf("Expected %d parameters, got %d", m.GetNparams(), len(prm)))
	}
}

// asymptotes returns the guessing and the lapse rate.
func (m *Model) asymptotes(prm []float64) (guess, lapse float64) {
	lapse = prm[core.NParams]
	guess = m.guess
	if m.nafc == 1 {
		guess = prm[core.NParams+1]
	}
	return
}

// validAsymptotes returns false if the asymptotes do not define a
// probability.
func (m *Model) validAsymptotes(prm []float64) bool {
	guess, lapse := m.asymptotes(prm)
	return guess >= 0 && lapse >= 0 && guess+lapse < 1
}

func (m *Model) evaluate(x float64, prm []float64) float64 {
	guess, lapse := m.asymptotes(prm)
	return guess + (1-guess-lapse)*m.sig.F(m.core.G(x, prm))
}

// Evaluate returns Psi(x).
func (m *Model) Evaluate(x float64, prm []float64) float64 {
	m.checkParams(prm)
	return m.evaluate(x, prm)
}

// Threshold returns the intensity at which the sigmoid reaches cut.
func (m *Model) Threshold(prm []float64, cut float64) float64 {
	m.checkParams(prm)
	return m.core.Inv(m.sig.Inv(cut), prm)
}

func clampPsi(p float64) float64 {
	return math.Max(psiEpsilon, math.Min(1-psiEpsilon, p))
}

// blockLogLikelihood is the binomial log likelihood of k out of n at
// probability p without the binomial coefficient.
func blockLogLikelihood(k, n int, p float64) (l float64) {
	p = clampPsi(p)
	if k > 0 {
		l += float64(k) * math.Log(p)
	}
	if n > k {
		l += float64(n-k) * math.Log1p(-p)
	}
	return
}

// blockDeviance compares probability p with the saturated model for a
// single block.
func blockDeviance(k, n int, p float64) float64 {
	p = clampPsi(p)
	nf := float64(n)
	d := 0.0
	if k > 0 {
		d += float64(k) * math.Log(float64(k)/(nf*p))
	}
	if n > k {
		d += float64(n-k) * math.Log(float64(n-k)/(nf*(1-p)))
	}
	return math.Max(0, 2*d)
}

// dBlockLogLikelihood is the derivative of blockLogLikelihood by p.
func dBlockLogLikelihood(k, n int, p float64) float64 {
	p = clampPsi(p)
	return float64(k)/p - float64(n-k)/(1-p)
}

// negLogLikelihood sums over all blocks except skip.
func (m *Model) negLogLikelihood(prm []float64, data *Data, skip int) (l float64) {
	for i, x := range data.Intensities {
		if i == skip {
			continue
		}
		l -= blockLogLikelihood(data.NCorrect[i], data.NTrials[i], m.evaluate(x, prm))
	}
	return
}

// NegLogLikelihood returns the negative binomial log likelihood.
func (m *Model) NegLogLikelihood(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	return m.negLogLikelihood(prm, data, -1)
}

// logPrior returns the sum of log prior densities, -Inf if any of the
// densities is zero.
func logPrior(priors []prior.Prior, prm []float64) (l float64) {
	for i, p := range priors {
		if p == nil {
			continue
		}
		d := p.Pdf(prm[i])
		if d <= 0 {
			return math.Inf(-1)
		}
		l += math.Log(d)
	}
	return
}

// NegLogPosterior returns the negative log likelihood minus the log
// prior densities. Parameters outside the prior support or with
// invalid asymptotes give +Inf.
func (m *Model) NegLogPosterior(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	if !m.validAsymptotes(prm) {
		return math.Inf(1)
	}
	return m.negLogLikelihood(prm, data, -1) - logPrior(m.priors, prm)
}

func (m *Model) deviance(prm []float64, data *Data, skip int) (d float64) {
	for i, x := range data.Intensities {
		if i == skip {
			continue
		}
		d += blockDeviance(data.NCorrect[i], data.NTrials[i], m.evaluate(x, prm))
	}
	return
}

// Deviance returns twice the log likelihood ratio between the
// saturated model and prm.
func (m *Model) Deviance(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	return m.deviance(prm, data, -1)
}

// dNegLogLikelihood adds the gradient over all blocks except skip to
// grad.
func (m *Model) dNegLogLikelihood(prm []float64, data *Data, skip int, grad []float64) {
	guess, lapse := m.asymptotes(prm)
	scale := 1 - guess - lapse
	for i, x := range data.Intensities {
		if i == skip {
			continue
		}
		dl := dBlockLogLikelihood(data.NCorrect[i], data.NTrials[i], m.evaluate(x, prm))
		z := m.core.G(x, prm)
		f := m.sig.F(z)
		df := m.sig.Df(z)
		for j := 0; j < core.NParams; j++ {
			grad[j] -= dl * scale * df * m.core.Dg(x, prm, j)
		}
		grad[core.NParams] += dl * f
		if m.nafc == 1 {
			grad[core.NParams+1] -= dl * (1 - f)
		}
	}
}

// DNegLogLikelihood returns the gradient of the negative log
// likelihood.
func (m *Model) DNegLogLikelihood(prm []float64, data *Data) []float64 {
	m.checkParams(prm)
	grad := make([]float64, len(prm))
	m.dNegLogLikelihood(prm, data, -1, grad)
	return grad
}

// dNegLogPrior adds the numerical derivative of the negative log
// prior to grad. Parameters close to the prior support boundary are
// skipped.
func dNegLogPrior(priors []prior.Prior, prm []float64, grad []float64) {
	for i, p := range priors {
		if p == nil {
			continue
		}
		d1 := p.Pdf(prm[i] + dh)
		d2 := p.Pdf(prm[i] - dh)
		if d1 <= 0 || d2 <= 0 {
			continue
		}
		grad[i] -= (math.Log(d1) - math.Log(d2)) / 2 / dh
	}
}

// DNegLogPosterior returns the gradient of the negative log
// posterior.
func (m *Model) DNegLogPosterior(prm []float64, data *Data) []float64 {
	grad := m.DNegLogLikelihood(prm, data)
	dNegLogPrior(m.priors, prm, grad)
	return grad
}

// PartialNegLogLikelihood returns the derivative of the negative log
// likelihood by parameter i.
func (m *Model) PartialNegLogLikelihood(prm []float64, data *Data, i int) float64 {
	return m.DNegLogLikelihood(prm, data)[i]
}

// PartialNegLogPosterior returns the derivative of the negative log
// posterior by parameter i.
func (m *Model) PartialNegLogPosterior(prm []float64, data *Data, i int) float64 {
	return m.DNegLogPosterior(prm, data)[i]
}

// hessian computes central differences of the gradient and
// symmetrizes the result.
func hessian(prm []float64, grad func([]float64) []float64) *matrix.Matrix {
	n := len(prm)
	h, err := matrix.New(n, n)
	if err != nil {
		panic(err)
	}
	x := append([]float64(nil), prm...)
	for j := 0; j < n; j++ {
		x[j] = prm[j] + dh
		g1 := grad(x)
		x[j] = prm[j] - dh
		g2 := grad(x)
		x[j] = prm[j]
		for i := 0; i < n; i++ {
			h.SetItem(i, j, (g1[i]-g2[i])/2/dh)
		}
	}
	if err := h.Symmetrize(); err != nil {
		panic(err)
	}
	return h
}

// DDNegLogLikelihood returns the Hessian of the negative log
// likelihood.
func (m *Model) DDNegLogLikelihood(prm []float64, data *Data) *matrix.Matrix {
	m.checkParams(prm)
	return hessian(prm, func(x []float64) []float64 {
		return m.DNegLogLikelihood(x, data)
	})
}

// GetStart computes starting values. Observed proportions are mapped
// to the sigmoid scale and the core parameters are obtained by a
// linear regression on these scores.
func (m *Model) GetStart(data *Data) []float64 {
	prm := make([]float64, m.GetNparams())
	guess := m.guess
	if m.nafc == 1 {
		guess = startGuess
		prm[core.NParams+1] = guess
	}
	prm[core.NParams] = startLapse
	z := make([]float64, data.NBlocks())
	for i := range z {
		q := (data.PCorrect(i) - guess) / (1 - guess - startLapse)
		z[i] = m.sig.Inv(math.Max(0.05, math.Min(0.95, q)))
	}
	copy(prm, m.core.Transform(data.Intensities, z))
	log.Debugf("Starting values: %v", prm)
	return prm
}

// SetPrior sets the prior for parameter i, nil means flat.
func (m *Model) SetPrior(i int, p prior.Prior) {
	m.priors[i] = p
}

// GetPrior returns the prior for parameter i, nil means flat.
func (m *Model) GetPrior(i int) prior.Prior {
	return m.priors[i]
}

// EvalPrior returns the prior density of parameter i at x. Flat priors
// give 1.
func (m *Model) EvalPrior(i int, x float64) float64 {
	if m.priors[i] == nil {
		return 1
	}
	return m.priors[i].Pdf(x)
}

// RandPrior draws parameter i from its prior.
func (m *Model) RandPrior(i int, src rand.Source) (float64, error) {
	if m.priors[i] == nil {
		return 0, fmt.Errorf("No prior for parameter %d", i)
	}
	return m.priors[i].Rand(src), nil
}

// DevianceResiduals returns signed square roots of per block
// deviances.
func (m *Model) DevianceResiduals(prm []float64, data *Data) []float64 {
	m.checkParams(prm)
	res := make([]float64, data.NBlocks())
	for i, x := range data.Intensities {
		p := m.evaluate(x, prm)
		d := math.Sqrt(blockDeviance(data.NCorrect[i], data.NTrials[i], p))
		if data.PCorrect(i) < p {
			d = -d
		}
		res[i] = d
	}
	return res
}

// correlation returns the Pearson correlation or 0 if it is not
// defined.
func correlation(x, y []float64) float64 {
	if len(x) < 2 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) {
		return 0
	}
	return r
}

// Rpd returns the correlation between deviance residuals and model
// predictions.
func (m *Model) Rpd(residuals, prm []float64, data *Data) float64 {
	m.checkParams(prm)
	pred := make([]float64, data.NBlocks())
	for i, x := range data.Intensities {
		pred[i] = m.evaluate(x, prm)
	}
	return correlation(residuals, pred)
}

// blockOrderCorrelation correlates residuals with their index.
func blockOrderCorrelation(residuals []float64) float64 {
	idx := make([]float64, len(residuals))
	for i := range idx {
		idx[i] = float64(i)
	}
	return correlation(residuals, idx)
}

// Rkd returns the correlation between deviance residuals and block
// order.
func (m *Model) Rkd(residuals []float64) float64 {
	return blockOrderCorrelation(residuals)
}

// LeastFavourable returns the derivative of the log likelihood in the
// least favourable direction for the threshold at cut. Only
// thresholds are supported.
func (m *Model) LeastFavourable(prm []float64, data *Data, cut float64, threshold bool) (float64, error) {
	m.checkParams(prm)
	if !threshold {
		return 0, errors.New("Least favourable direction is only implemented for thresholds")
	}
	u := make([]float64, len(prm))
	zc := m.sig.Inv(cut)
	x := append([]float64(nil), prm...)
	for j := 0; j < core.NParams; j++ {
		x[j] = prm[j] + dh
		t1 := m.core.Inv(zc, x)
		x[j] = prm[j] - dh
		t2 := m.core.Inv(zc, x)
		x[j] = prm[j]
		u[j] = (t1 - t2) / 2 / dh
	}
	du, err := m.DDNegLogLikelihood(prm, data).Solve(u)
	if err != nil {
		return 0, fmt.Errorf("Least favourable direction: %w", err)
	}
	s := floats.Norm(du, 2)
	if s == 0 || math.IsNaN(s) || math.IsInf(s, 0) {
		return 0, errors.New("Least favourable direction is not defined")
	}
	grad := m.DNegLogLikelihood(prm, data)
	return -floats.Dot(grad, du) / s, nil
}
