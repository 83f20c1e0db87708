package psi

import (
	"fmt"
	"math"

	"golang.org/x/exp/rand"

	"github.com/mani33/Psignifit-3.x/matrix"
	"github.com/mani33/Psignifit-3.x/prior"
)

// OutlierModel fits all blocks but one with the base model. The
// excluded block jout gets its own probability p of a correct
// response, stored as the last parameter:
//
//	Psi(x_jout) = p
//	Psi(x)      = base Psi(x), otherwise.
//
// Priors of the shared parameters are those of the base model.
type OutlierModel struct {
	base   *Model
	jout   int
	pPrior prior.Prior
}

// defaultOutlierPrior is used for p when no other prior is set.
func defaultOutlierPrior() prior.Prior {
	return &prior.Uniform{Min: 0, Max: 1}
}

// NewOutlierModel creates an outlier model excluding block jout.
func NewOutlierModel(base *Model, jout int) *OutlierModel {
	return &OutlierModel{
		base:   base,
		jout:   jout,
		pPrior: defaultOutlierPrior(),
	}
}

// Base returns the base model.
func (m *OutlierModel) Base() *Model {
	return m.base
}

// SetExclude changes the excluded block.
func (m *OutlierModel) SetExclude(jout int) {
	m.jout = jout
}

// GetExclude returns the excluded block.
func (m *OutlierModel) GetExclude() int {
	return m.jout
}

// GetNparams returns the number of parameters of the base model plus
// one.
func (m *OutlierModel) GetNparams() int {
	return m.base.GetNparams() + 1
}

// GetP returns the probability of a correct response in the excluded
// block.
func (m *OutlierModel) GetP(prm []float64) float64 {
	m.checkParams(prm)
	return prm[len(prm)-1]
}

func (m *OutlierModel) checkParams(prm []float64) {
	if len(prm) != m.GetNparams() {
		panic(fmt.Sprintf("Expected %d parameters, got %d", m.GetNparams(), len(prm)))
	}
}

func (m *OutlierModel) checkData(data *Data) {
	if m.jout < 0 || m.jout >= data.NBlocks() {
		panic(fmt.Sprintf("Excluded block %d is not in the data (%d blocks)", m.jout, data.NBlocks()))
	}
}

// GetParameterNames returns the base model names and "p".
func (m *OutlierModel) GetParameterNames() []string {
	return append(m.base.GetParameterNames(), "p")
}

// Bounds returns the base model bounds and [0, 1] for p.
func (m *OutlierModel) Bounds() [][2]float64 {
	return append(m.base.Bounds(), [2]float64{0, 1})
}

// Evaluate returns the base model Psi.
func (m *OutlierModel) Evaluate(x float64, prm []float64) float64 {
	m.checkParams(prm)
	return m.base.evaluate(x, prm)
}

// Threshold returns the base model threshold.
func (m *OutlierModel) Threshold(prm []float64, cut float64) float64 {
	m.checkParams(prm)
	return m.base.core.Inv(m.base.sig.Inv(cut), prm)
}

// NegLogLikelihood returns the negative log likelihood with the
// excluded block modeled by p.
func (m *OutlierModel) NegLogLikelihood(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	m.checkData(data)
	j := m.jout
	return m.base.negLogLikelihood(prm, data, j) -
		blockLogLikelihood(data.NCorrect[j], data.NTrials[j], m.GetP(prm))
}

// NegLogPosterior adds the base priors and the prior of p to the
// negative log likelihood.
func (m *OutlierModel) NegLogPosterior(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	p := m.GetP(prm)
	if !m.base.validAsymptotes(prm) || p < 0 || p > 1 {
		return math.Inf(1)
	}
	d := m.pPrior.Pdf(p)
	if d <= 0 {
		return math.Inf(1)
	}
	return m.NegLogLikelihood(prm, data) - logPrior(m.base.priors, prm) - math.Log(d)
}

// Deviance returns the deviance with the excluded block modeled by p.
func (m *OutlierModel) Deviance(prm []float64, data *Data) float64 {
	m.checkParams(prm)
	m.checkData(data)
	j := m.jout
	return m.base.deviance(prm, data, j) +
		blockDeviance(data.NCorrect[j], data.NTrials[j], m.GetP(prm))
}

// DNegLogLikelihood returns the gradient of the negative log
// likelihood. The excluded block only contributes to the derivative
// by p.
func (m *OutlierModel) DNegLogLikelihood(prm []float64, data *Data) []float64 {
	m.checkParams(prm)
	m.checkData(data)
	j := m.jout
	grad := make([]float64, len(prm))
	m.base.dNegLogLikelihood(prm, data, j, grad)
	grad[len(grad)-1] = -dBlockLogLikelihood(data.NCorrect[j], data.NTrials[j], m.GetP(prm))
	return grad
}

// DNegLogPosterior returns the gradient of the negative log
// posterior.
func (m *OutlierModel) DNegLogPosterior(prm []float64, data *Data) []float64 {
	grad := m.DNegLogLikelihood(prm, data)
	dNegLogPrior(m.base.priors, prm, grad)
	dNegLogPrior([]prior.Prior{m.pPrior}, prm[len(prm)-1:], grad[len(grad)-1:])
	return grad
}

// DDNegLogLikelihood returns the Hessian of the negative log
// likelihood.
func (m *OutlierModel) DDNegLogLikelihood(prm []float64, data *Data) *matrix.Matrix {
	m.checkParams(prm)
	return hessian(prm, func(x []float64) []float64 {
		return m.DNegLogLikelihood(x, data)
	})
}

// GetStart uses the base model starting values and the observed
// proportion of the excluded block.
func (m *OutlierModel) GetStart(data *Data) []float64 {
	m.checkData(data)
	p := clampPsi(data.PCorrect(m.jout))
	return append(m.base.GetStart(data), p)
}

// SetPrior sets the prior for parameter i. Priors of the shared
// parameters are set on the base model. Setting nil for p restores
// the uniform prior on [0, 1].
func (m *OutlierModel) SetPrior(i int, p prior.Prior) {
	if i < m.base.GetNparams() {
		m.base.SetPrior(i, p)
		return
	}
	if i != m.base.GetNparams() {
		panic(fmt.Sprintf("Parameter index %d is out of range", i))
	}
	if p == nil {
		p = defaultOutlierPrior()
	}
	m.pPrior = p
}

// EvalPrior returns the prior density of parameter i at x.
func (m *OutlierModel) EvalPrior(i int, x float64) float64 {
	if i < m.base.GetNparams() {
		return m.base.EvalPrior(i, x)
	}
	return m.pPrior.Pdf(x)
}

// RandPrior draws parameter i from its prior.
func (m *OutlierModel) RandPrior(i int, src rand.Source) (float64, error) {
	if i < m.base.GetNparams() {
		return m.base.RandPrior(i, src)
	}
	return m.pPrior.Rand(src), nil
}
