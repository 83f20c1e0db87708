// Package sigmoid implements monotonic saturating functions mapping
// a latent score onto (0, 1).
package sigmoid

import (
	"fmt"
	"math"
	"sort"

	"github.com/gonum/mathext"
)

// Sigmoid is a saturating nonlinearity with analytic inverse.
type Sigmoid interface {
	// Name returns the descriptor of the sigmoid.
	Name() string
	// F evaluates the sigmoid.
	F(z float64) float64
	// Df is the first derivative of F.
	Df(z float64) float64
	// Inv is the inverse of F, defined on (0, 1).
	Inv(p float64) float64
}

var registry = map[string]func() Sigmoid{
	"logistic": func() Sigmoid { return Logistic{} },
	"gauss":    func() Sigmoid { return Gauss{} },
	"gumbel_l": func() Sigmoid { return GumbelL{} },
	"lgumbel":  func() Sigmoid { return GumbelL{} },
	"gumbel_r": func() Sigmoid { return GumbelR{} },
	"rgumbel":  func() Sigmoid { return GumbelR{} },
	"cauchy":   func() Sigmoid { return Cauchy{} },
	"exp":      func() Sigmoid { return Exponential{} },
}

// Get returns a sigmoid by its descriptor.
func Get(name string) (Sigmoid, error) {
	f, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("The sigmoid '%s' you requested is not available", name)
	}
	return f(), nil
}

// Names returns all the known descriptors.
func Names() (names []string) {
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

// Logistic is 1/(1+exp(-z)).
type Logistic struct{}

func (Logistic) Name() string { return "logistic" }

func (Logistic) F(z float64) float64 {
	if z < 0 {
		e := math.Exp(z)
		return e / (1 + e)
	}
	return 1 / (1 + math.Exp(-z))
}

func (s Logistic) Df(z float64) float64 {
	f := s.F(z)
	return f * (1 - f)
}

func (Logistic) Inv(p float64) float64 {
	return math.Log(p / (1 - p))
}

// Gauss is the cumulative standard normal distribution.
type Gauss struct{}

func (Gauss) Name() string { return "gauss" }

func (Gauss) F(z float64) float64 {
	return 0.5 * math.Erfc(-z/math.Sqrt2)
}

func (Gauss) Df(z float64) float64 {
	return math.Exp(-z*z/2) / math.Sqrt(2*math.Pi)
}

func (Gauss) Inv(p float64) float64 {
	return mathext.NormalQuantile(p)
}

// GumbelL is the left skewed Gumbel distribution, 1-exp(-exp(z)).
// Combined with a logarithmic core it gives a Weibull function.
type GumbelL struct{}

func (GumbelL) Name() string { return "gumbel_l" }

func (GumbelL) F(z float64) float64 {
	return -math.Expm1(-math.Exp(z))
}

func (GumbelL) Df(z float64) float64 {
	return math.Exp(z - math.Exp(z))
}

func (GumbelL) Inv(p float64) float64 {
	return math.Log(-math.Log1p(-p))
}

// GumbelR is the right skewed Gumbel distribution, exp(-exp(-z)).
type GumbelR struct{}

func (GumbelR) Name() string { return "gumbel_r" }

func (GumbelR) F(z float64) float64 {
	return math.Exp(-math.Exp(-z))
}

func (GumbelR) Df(z float64) float64 {
	return math.Exp(-z - math.Exp(-z))
}

func (GumbelR) Inv(p float64) float64 {
	return -math.Log(-math.Log(p))
}

// Cauchy is the cumulative Cauchy distribution.
type Cauchy struct{}

func (Cauchy) Name() string { return "cauchy" }

func (Cauchy) F(z float64) float64 {
	return math.Atan(z)/math.Pi + 0.5
}

func (Cauchy) Df(z float64) float64 {
	return 1 / (math.Pi * (1 + z*z))
}

func (Cauchy) Inv(p float64) float64 {
	return math.Tan(math.Pi * (p - 0.5))
}

// Exponential is 1-exp(-z) for z > 0 and 0 otherwise.
type Exponential struct{}

func (Exponential) Name() string { return "exp" }

func (Exponential) F(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return -math.Expm1(-z)
}

func (Exponential) Df(z float64) float64 {
	if z <= 0 {
		return 0
	}
	return math.Exp(-z)
}

func (Exponential) Inv(p float64) float64 {
	return -math.Log1p(-p)
}
