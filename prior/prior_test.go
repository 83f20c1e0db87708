package prior

import (
	"math"
	"testing"

	"golang.org/x/exp/rand"
)

type priorCase struct {
	s        string
	min, max float64
	mean     float64
	sd       float64
}

var cases = []priorCase{
	{"Uniform(0,0.1)", 0, 0.1, 0.05, 0.1 / math.Sqrt(12)},
	{"Gauss(1,2)", -19, 21, 1, 2},
	{"Beta(2,20)", 0, 1, 2. / 22, math.Sqrt(2 * 20 / (22 * 22 * 23.))},
	{"Gamma(2,3)", 0, 120, 6, math.Sqrt(18)},
	{"nGamma(2,3)", -120, 0, -6, math.Sqrt(18)},
	{"invGamma(5,4)", 0, 60, 1, math.Sqrt(16 / (16 * 3.))},
}

// integrate computes a trapezoid approximation of the integral.
func integrate(f func(float64) float64, min, max float64) (s float64) {
	const n = 200000
	h := (max - min) / n
	for i := 0; i <= n; i++ {
		w := 1.0
		if i == 0 || i == n {
			w = 0.5
		}
		s += w * f(min+float64(i)*h)
	}
	return s * h
}

func TestParse(tst *testing.T) {
	for _, c := range cases {
		p, err := Parse(c.s)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if p.String() != c.s {
			tst.Errorf("Expected %s, got %s", c.s, p.String())
		}
	}
	for _, s := range []string{"", "None", "flat"} {
		p, err := Parse(s)
		if err != nil || p != nil {
			tst.Errorf("Expected no prior for '%s'", s)
		}
	}
	for _, s := range []string{"Beta(2)", "Beta(a,2)", "Foo(1,2)", "Beta(-1,2)", "Uniform(1,0)"} {
		p, err := Parse(s)
		if err == nil || p != nil {
			tst.Errorf("Expected error for '%s'", s)
		}
	}
}

func TestDensity(tst *testing.T) {
	for _, c := range cases {
		p, _ := Parse(c.s)
		total := integrate(p.Pdf, c.min, c.max)
		if math.Abs(total-1) > 1e-3 {
			tst.Errorf("%s: density integrates to %v", c.s, total)
		}
	}
}

func TestSupport(tst *testing.T) {
	for _, s := range []string{"Uniform(0,1)", "Beta(2,20)", "Gamma(1,2)", "invGamma(2,2)"} {
		p, _ := Parse(s)
		for _, x := range []float64{-1, -1e-9, 1.5} {
			if s == "Gamma(1,2)" || s == "invGamma(2,2)" {
				if x > 0 {
					continue
				}
			}
			if d := p.Pdf(x); d != 0 {
				tst.Errorf("%s: density at %v is %v", s, x, d)
			}
		}
	}
	p, _ := Parse("nGamma(2,2)")
	if p.Pdf(1) != 0 {
		tst.Error("nGamma should have zero density for positive values")
	}
}

func TestRand(tst *testing.T) {
	const n = 20000
	for _, c := range cases {
		p, _ := Parse(c.s)
		src := rand.NewSource(1)
		sum := 0.0
		for i := 0; i < n; i++ {
			x := p.Rand(src)
			if p.Pdf(x) == 0 {
				tst.Fatalf("%s: sample %v outside of support", c.s, x)
			}
			sum += x
		}
		mean := sum / n
		if math.Abs(mean-c.mean) > 6*c.sd/math.Sqrt(n) {
			tst.Errorf("%s: sample mean %v, expected %v", c.s, mean, c.mean)
		}
	}
}

func TestRandReproducible(tst *testing.T) {
	p, _ := Parse("Gauss(0,1)")
	a := p.Rand(rand.NewSource(42))
	b := p.Rand(rand.NewSource(42))
	if a != b {
		tst.Error("Same seed gives different samples:", a, b)
	}
}
