package psi

import (
	"math"
	"testing"

	"github.com/op/go-logging"
	"golang.org/x/exp/rand"

	"github.com/mani33/Psignifit-3.x/core"
	"github.com/mani33/Psignifit-3.x/prior"
	"github.com/mani33/Psignifit-3.x/sigmoid"
)

const smallDiff = 1e-4

func init() {
	logging.SetLevel(logging.WARNING, "psi")
}

var (
	testX = []float64{-4, -2, 0, 2, 4}
	testK = []int{22, 25, 29, 35, 38}
	testN = []int{40, 40, 40, 40, 40}
)

func testData(tst *testing.T) *Data {
	data, err := NewData(testX, testK, testN)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return data
}

func newModel(tst *testing.T, nafc int, c, s string) *Model {
	sig, err := sigmoid.Get(s)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	cr, err := core.Get(c, sig)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	m, err := NewModel(nafc, cr, sig)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	return m
}

// appreq returns true if a and b are approximately equal.
func appreq(a, b, eps float64) bool {
	return math.Abs(a-b) <= eps*math.Max(1, math.Max(math.Abs(a), math.Abs(b)))
}

// numGrad computes the gradient of f by central differences.
func numGrad(f func([]float64) float64, prm []float64) []float64 {
	const h = 1e-6
	g := make([]float64, len(prm))
	x := append([]float64(nil), prm...)
	for i := range prm {
		x[i] = prm[i] + h
		f1 := f(x)
		x[i] = prm[i] - h
		f2 := f(x)
		x[i] = prm[i]
		g[i] = (f1 - f2) / 2 / h
	}
	return g
}

func TestNparams(tst *testing.T) {
	if n := newModel(tst, 2, "ab", "logistic").GetNparams(); n != 3 {
		tst.Error("2AFC model should have 3 parameters, got", n)
	}
	yn := newModel(tst, 1, "ab", "logistic")
	if n := yn.GetNparams(); n != 4 {
		tst.Error("Yes/no model should have 4 parameters, got", n)
	}
	if n := NewOutlierModel(yn, 0).GetNparams(); n != 5 {
		tst.Error("Yes/no outlier model should have 5 parameters, got", n)
	}
	if _, err := NewModel(0, core.Ab{}, sigmoid.Logistic{}); err == nil {
		tst.Error("Expected error for zero alternatives")
	}
}

func TestEvaluate(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0, 2, 0.02}
	if p := m.Evaluate(0, prm); !appreq(p, 0.74, 1e-12) {
		tst.Error("Expected 0.74, got", p)
	}
	yn := newModel(tst, 1, "ab", "logistic")
	if p := yn.Evaluate(0, []float64{0, 2, 0.1, 0.2}); !appreq(p, 0.2+0.7*0.5, 1e-12) {
		tst.Error("Incorrect yes/no value:", p)
	}
}

func TestThreshold(tst *testing.T) {
	for _, s := range []string{"logistic", "gauss", "gumbel_l", "cauchy"} {
		m := newModel(tst, 2, "mw0.1", s)
		prm := []float64{1.5, 3, 0.02}
		for _, cut := range []float64{0.2, 0.5, 0.8} {
			t := m.Threshold(prm, cut)
			if t != m.GetCore().Inv(m.GetSigmoid().Inv(cut), prm) {
				tst.Errorf("%s: threshold differs from core inverse", s)
			}
		}
		if t := m.Threshold(prm, 0.5); !appreq(t, 1.5, 1e-12) {
			tst.Errorf("%s: mw threshold at 0.5 should be the midpoint, got %v", s, t)
		}
	}
}

func TestGradient(tst *testing.T) {
	data := testData(tst)
	for _, c := range []struct {
		nafc int
		core string
		sig  string
		prm  []float64
	}{
		{2, "ab", "logistic", []float64{0.3, 1.7, 0.03}},
		{2, "mw0.1", "gauss", []float64{0.3, 4, 0.03}},
		{2, "linear", "gumbel_r", []float64{0.4, 0.2, 0.05}},
		{1, "ab", "logistic", []float64{0.3, 1.7, 0.03, 0.1}},
	} {
		m := newModel(tst, c.nafc, c.core, c.sig)
		m.SetPrior(core.NParams, &prior.Beta{Alpha: 2, Beta: 20})
		num := numGrad(func(x []float64) float64 { return m.NegLogLikelihood(x, data) }, c.prm)
		an := m.DNegLogLikelihood(c.prm, data)
		for i := range num {
			if !appreq(num[i], an[i], smallDiff) {
				tst.Errorf("%s/%s: dnll[%d] analytic %v, numerical %v", c.core, c.sig, i, an[i], num[i])
			}
			if an[i] != m.PartialNegLogLikelihood(c.prm, data, i) {
				tst.Error("Partial derivative differs from gradient component", i)
			}
		}
		num = numGrad(func(x []float64) float64 { return m.NegLogPosterior(x, data) }, c.prm)
		an = m.DNegLogPosterior(c.prm, data)
		for i := range num {
			if !appreq(num[i], an[i], smallDiff) {
				tst.Errorf("%s/%s: dnlp[%d] analytic %v, numerical %v", c.core, c.sig, i, an[i], num[i])
			}
		}
	}
}

func TestHessian(tst *testing.T) {
	data := testData(tst)
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0.3, 1.7, 0.03}
	h := m.DDNegLogLikelihood(prm, data)
	n1, n2 := h.GetSize()
	if n1 != 3 || n2 != 3 {
		tst.Fatal("Incorrect Hessian size:", n1, n2)
	}
	const step = 1e-4
	x := append([]float64(nil), prm...)
	f0 := m.NegLogLikelihood(prm, data)
	for i := range prm {
		x[i] = prm[i] + step
		f1 := m.NegLogLikelihood(x, data)
		x[i] = prm[i] - step
		f2 := m.NegLogLikelihood(x, data)
		x[i] = prm[i]
		num := (f1 - 2*f0 + f2) / step / step
		if !appreq(num, h.GetItem(i, i), 1e-3) {
			tst.Errorf("Hessian[%d,%d]: %v, numerical %v", i, i, h.GetItem(i, i), num)
		}
		for j := range prm {
			if h.GetItem(i, j) != h.GetItem(j, i) {
				tst.Error("Hessian is not symmetric")
			}
		}
	}
}

func TestPosterior(tst *testing.T) {
	data := testData(tst)
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0.3, 1.7, 0.03}
	if m.NegLogPosterior(prm, data) != m.NegLogLikelihood(prm, data) {
		tst.Error("Flat priors should not change the likelihood")
	}
	p, _ := prior.Parse("Beta(2,20)")
	m.SetPrior(2, p)
	expected := m.NegLogLikelihood(prm, data) - math.Log(p.Pdf(0.03))
	if !appreq(m.NegLogPosterior(prm, data), expected, 1e-12) {
		tst.Error("Incorrect posterior:", m.NegLogPosterior(prm, data), expected)
	}
	if m.EvalPrior(0, 5) != 1 || m.EvalPrior(2, 0.03) != p.Pdf(0.03) {
		tst.Error("Incorrect prior evaluation")
	}

	u, _ := prior.Parse("Uniform(0,0.1)")
	m.SetPrior(2, u)
	if !math.IsInf(m.NegLogPosterior([]float64{0.3, 1.7, 0.2}, data), 1) {
		tst.Error("Posterior outside of the prior support should be +Inf")
	}
	m.SetPrior(2, nil)
	if !math.IsInf(m.NegLogPosterior([]float64{0.3, 1.7, -0.01}, data), 1) {
		tst.Error("Posterior for a negative lapse rate should be +Inf")
	}
}

func TestRandPrior(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	if _, err := m.RandPrior(0, nil); err == nil {
		tst.Error("Expected error for a flat prior")
	}
	m.SetPrior(2, &prior.Uniform{Min: 0, Max: 0.1})
	src := rand.NewSource(1)
	for i := 0; i < 100; i++ {
		x, err := m.RandPrior(2, src)
		if err != nil || x < 0 || x > 0.1 {
			tst.Fatal("Incorrect prior sample:", x, err)
		}
	}
}

func TestAllOrNothing(tst *testing.T) {
	data, err := NewData(testX, []int{0, 0, 40, 40, 40}, testN)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	m := newModel(tst, 1, "ab", "logistic")
	for _, prm := range [][]float64{
		{0, 1, 0, 0},
		{-1, 0.001, 0, 0},
		{3, 0.001, 0, 0},
		{0, 1e-12, 0.02, 0.02},
		{0, -5, 0, 0},
	} {
		l := m.NegLogLikelihood(prm, data)
		if math.IsNaN(l) || math.IsInf(l, 0) {
			tst.Errorf("Non-finite likelihood at %v: %v", prm, l)
		}
		d := m.Deviance(prm, data)
		if math.IsNaN(d) || math.IsInf(d, 0) || d < 0 {
			tst.Errorf("Incorrect deviance at %v: %v", prm, d)
		}
	}
	// the step function is better than a shallow slope
	if m.NegLogLikelihood([]float64{-1, 0.001, 0, 0}, data) >= m.NegLogLikelihood([]float64{-1, 5, 0, 0}, data) {
		tst.Error("Likelihood ordering is broken for all-or-nothing data")
	}
}

func TestDeviance(tst *testing.T) {
	data := testData(tst)
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0.3, 1.7, 0.03}
	saturated := 0.0
	for i := range testX {
		saturated -= blockLogLikelihood(testK[i], testN[i], data.PCorrect(i))
	}
	expected := 2 * (m.NegLogLikelihood(prm, data) - saturated)
	if d := m.Deviance(prm, data); !appreq(d, expected, 1e-10) {
		tst.Error("Incorrect deviance:", d, expected)
	}
	res := m.DevianceResiduals(prm, data)
	sum := 0.0
	for i, r := range res {
		sum += r * r
		if (r < 0) != (data.PCorrect(i) < m.Evaluate(testX[i], prm)) {
			tst.Error("Incorrect residual sign in block", i)
		}
	}
	if !appreq(sum, expected, 1e-10) {
		tst.Error("Squared residuals should sum to the deviance:", sum, expected)
	}
}

// Deviance at the generating parameters is approximately chi-square
// distributed with one degree of freedom per block.
func TestDevianceDistribution(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0, 2, 0.02}
	n := []int{100, 100, 100, 100, 100}
	src := rand.NewSource(7)
	const nsim = 500
	mean := 0.0
	for i := 0; i < nsim; i++ {
		data := Simulate(m, prm, testX, n, src)
		mean += m.Deviance(prm, data) / nsim
	}
	if mean < 3.5 || mean > 6.5 {
		tst.Error("Mean deviance should be close to the number of blocks, got", mean)
	}
}

func TestCorrelations(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	if r := m.Rkd([]float64{-2, -1, 0, 1, 2}); !appreq(r, 1, 1e-12) {
		tst.Error("Rkd of increasing residuals should be 1, got", r)
	}
	if r := m.Rkd([]float64{1}); r != 0 {
		tst.Error("Rkd of a single block should be 0, got", r)
	}
	data := testData(tst)
	prm := []float64{0.3, 1.7, 0.03}
	res := m.DevianceResiduals(prm, data)
	r := m.Rpd(res, prm, data)
	if math.IsNaN(r) || r < -1 || r > 1 {
		tst.Error("Incorrect Rpd:", r)
	}
}

func TestStart(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0, 2, 0.02}
	k := make([]int, len(testX))
	n := []int{10000, 10000, 10000, 10000, 10000}
	for i, x := range testX {
		k[i] = int(math.Round(float64(n[i]) * m.Evaluate(x, prm)))
	}
	data, err := NewData(testX, k, n)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	start := m.GetStart(data)
	if len(start) != 3 || math.Abs(start[0]) > 0.05 || math.Abs(start[1]-2) > 0.05 || start[2] != startLapse {
		tst.Error("Incorrect starting values:", start)
	}
	yn := newModel(tst, 1, "ab", "logistic")
	if start := yn.GetStart(data); len(start) != 4 {
		tst.Error("Incorrect number of starting values:", start)
	}
}

func TestLeastFavourable(tst *testing.T) {
	data := testData(tst)
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0.3, 1.7, 0.03}
	if _, err := m.LeastFavourable(prm, data, 0.5, false); err == nil {
		tst.Error("Expected error for slopes")
	}
	lf, err := m.LeastFavourable(prm, data, 0.5, true)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	if math.IsNaN(lf) || math.IsInf(lf, 0) {
		tst.Error("Least favourable derivative is not finite:", lf)
	}
}

func TestWrongLength(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	data := testData(tst)
	for _, f := range []func(){
		func() { m.Evaluate(0, []float64{0, 1}) },
		func() { m.NegLogLikelihood([]float64{0, 1, 0, 0}, data) },
		func() { m.NegLogPosterior([]float64{0}, data) },
	} {
		func() {
			defer func() {
				if recover() == nil {
					tst.Error("Expected panic for a wrong parameter vector length")
				}
			}()
			f()
		}()
	}
}

func TestSimulate(tst *testing.T) {
	m := newModel(tst, 2, "ab", "logistic")
	prm := []float64{0, 2, 0.02}
	d1 := Simulate(m, prm, testX, testN, rand.NewSource(3))
	d2 := Simulate(m, prm, testX, testN, rand.NewSource(3))
	for i := range testX {
		if d1.NCorrect[i] != d2.NCorrect[i] {
			tst.Error("Same seed gives different data")
		}
		if d1.NCorrect[i] < 0 || d1.NCorrect[i] > testN[i] {
			tst.Error("Simulated count out of range:", d1.NCorrect[i])
		}
	}
}
