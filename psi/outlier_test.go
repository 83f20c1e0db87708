package psi

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"

	"github.com/mani33/Psignifit-3.x/prior"
)

// forcedData returns data following Psi at prm with block 2 forced
// to zero correct responses.
func forcedData(tst *testing.T, m *Model, prm []float64) *Data {
	k := make([]int, len(testX))
	for i, x := range testX {
		k[i] = int(math.Round(float64(testN[i]) * m.Evaluate(x, prm)))
	}
	k[2] = 0
	data, err := NewData(testX, k, testN)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return data
}

func TestOutlierPosterior(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0, 2, 0.02}
	data := forcedData(tst, m, prm)
	om := NewOutlierModel(m, 2)
	oprm := append(append([]float64(nil), prm...), data.PCorrect(2))
	if om.GetP(oprm) != 0 {
		tst.Fatal("Incorrect p:", om.GetP(oprm))
	}
	lo := om.NegLogPosterior(oprm, data)
	lb := m.NegLogPosterior(prm, data)
	if math.IsInf(lo, 0) || math.IsNaN(lo) || lo >= lb {
		tst.Errorf("Outlier model should be better: %v, base model: %v", lo, lb)
	}
	if d := om.Deviance(oprm, data); d >= m.Deviance(prm, data) {
		tst.Error("Outlier model should reduce the deviance:", d)
	}
	// the excluded block does not depend on the shared parameters
	other := append([]float64(nil), oprm...)
	other[3] = 0.5
	diff := om.NegLogLikelihood(other, data) - om.NegLogLikelihood(oprm, data)
	j := 2
	expected := blockLogLikelihood(data.NCorrect[j], data.NTrials[j], 0) -
		blockLogLikelihood(data.NCorrect[j], data.NTrials[j], 0.5)
	if !appreq(diff, expected, 1e-10) {
		tst.Error("Incorrect contribution of the excluded block:", diff, expected)
	}
}

func TestOutlierPrior(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	om := NewOutlierModel(m, 0)
	data := testData(tst)
	prm := []float64{0.3, 1.7, 0.03, 0.5}
	if !math.IsInf(om.NegLogPosterior([]float64{0.3, 1.7, 0.03, 1.2}, data), 1) {
		tst.Error("p outside of [0, 1] should give +Inf")
	}
	om.SetPrior(3, &prior.Beta{Alpha: 2, Beta: 2})
	expected := om.NegLogLikelihood(prm, data) - math.Log(1.5)
	if !appreq(om.NegLogPosterior(prm, data), expected, 1e-12) {
		tst.Error("Incorrect posterior with a prior on p")
	}
	om.SetPrior(3, nil)
	if om.EvalPrior(3, 0.3) != 1 {
		tst.Error("Default prior for p should be uniform")
	}
	om.SetPrior(2, &prior.Uniform{Min: 0, Max: 0.1})
	if m.GetPrior(2) == nil {
		tst.Error("Shared priors should be set on the base model")
	}
	src := rand.NewSource(5)
	for i := 0; i < 100; i++ {
		p, err := om.RandPrior(3, src)
		if err != nil || p < 0 || p > 1 {
			tst.Fatal("Incorrect prior sample for p:", p, err)
		}
	}
}

func TestOutlierGradient(tst *testing.T) {
	m := newModel(tst, 1, "ab", "logistic")
	m.SetPrior(2, &prior.Beta{Alpha: 2, Beta: 20})
	om := NewOutlierModel(m, 1)
	om.SetPrior(4, &prior.Beta{Alpha: 2, Beta: 3})
	data := testData(tst)
	prm := []float64{0.3, 1.7, 0.03, 0.1, 0.4}
	num := numGrad(func(x []float64) float64 { return om.NegLogPosterior(x, data) }, prm)
	an := om.DNegLogPosterior(prm, data)
	for i := range num {
		if !appreq(num[i], an[i], smallDiff) {
			tst.Errorf("dnlp[%d] analytic %v, numerical %v", i, an[i], num[i])
		}
	}
	h := om.DDNegLogLikelihood(prm, data)
	// only p depends on the excluded block
	for i := 0; i < 4; i++ {
		if math.Abs(h.GetItem(i, 4)) > 1e-6 {
			tst.Error("Shared parameters should not interact with p:", h.GetItem(i, 4))
		}
	}
}

func TestOutlierExclude(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	om := NewOutlierModel(m, 0)
	data := testData(tst)
	om.SetExclude(4)
	if om.GetExclude() != 4 {
		tst.Error("Excluded block was not changed")
	}
	start := om.GetStart(data)
	if len(start) != 4 || start[3] != data.PCorrect(4) {
		tst.Error("Incorrect starting values:", start)
	}
	if names := om.GetParameterNames(); names[len(names)-1] != "p" {
		tst.Error("Incorrect parameter names:", names)
	}
	om.SetExclude(5)
	defer func() {
		if recover() == nil {
			tst.Error("Expected panic for an excluded block outside of the data")
		}
	}()
	om.NegLogLikelihood(start, data)
}
