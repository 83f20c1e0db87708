// Package core implements the latent score transforms (cores) of a
// psychometric function. A core maps stimulus intensity and two
// parameters onto the real line; the sigmoid maps the result to (0, 1).
package core

import (
	"fmt"
	"math"
	"regexp"
	"strconv"

	"gonum.org/v1/gonum/stat"

	"github.com/mani33/Psignifit-3.x/sigmoid"
)

// NParams is the number of parameters of every core.
const NParams = 2

// logFloor is returned for non-positive intensities by the cores
// working on log(x).
const logFloor = -1e10

// Core is the "internal" part of the psychometric function.
type Core interface {
	// Name returns the core descriptor.
	Name() string
	// G evaluates the core.
	G(x float64, prm []float64) float64
	// Dg is the derivative of G with respect to parameter i.
	Dg(x float64, prm []float64, i int) float64
	// Inv returns the intensity x with G(x, prm) = z.
	Inv(z float64, prm []float64) float64
	// Transform computes core parameters from latent scores z
	// observed at intensities x, it is used for starting values.
	Transform(x, z []float64) []float64
}

var descriptorRe = regexp.MustCompile(`^([a-z]+)([\d.]*)$`)

// Get returns a core from a descriptor like "ab" or "mw0.1". Some
// cores depend on the sigmoid they are combined with.
func Get(descriptor string, sig sigmoid.Sigmoid) (Core, error) {
	m := descriptorRe.FindStringSubmatch(descriptor)
	if m == nil {
		return nil, fmt.Errorf("Cannot parse core descriptor '%s'", descriptor)
	}
	name, par := m[1], m[2]
	switch name {
	case "ab":
		return Ab{}, nil
	case "mw":
		alpha := 0.1
		if par != "" {
			var err error
			alpha, err = strconv.ParseFloat(par, 64)
			if err != nil {
				return nil, fmt.Errorf("Incorrect mw core parameter: %w", err)
			}
		}
		return NewMw(sig, alpha)
	case "linear":
		return Linear{}, nil
	case "log":
		return Log{}, nil
	case "weibull":
		return Weibull{}, nil
	case "poly":
		return Poly{}, nil
	}
	return nil, fmt.Errorf("The core '%s' you requested is not available", name)
}

// checkParams panics if the number of parameters is incorrect.
func checkParams(prm []float64) {
	if len(prm) < NParams {
		panic("Incorrect number of core parameters")
	}
}

// regress returns the intercept and slope of a least squares line
// through (t, y). The slope is kept away from zero so that it can be
// inverted.
func regress(t, y []float64) (c0, c1 float64) {
	if len(t) < 2 {
		if len(t) == 1 {
			return y[0] - t[0], 1
		}
		return 0, 1
	}
	c0, c1 = stat.LinearRegression(t, y, nil, false)
	if math.IsNaN(c0) || math.IsNaN(c1) || math.IsInf(c1, 0) {
		return stat.Mean(y, nil) - stat.Mean(t, nil), 1
	}
	if math.Abs(c1) < 1e-6 {
		c1 = math.Copysign(1e-6, c1)
	}
	return
}

// logPairs returns (log x, z) for positive x only.
func logPairs(x, z []float64) (lx, lz []float64) {
	for i := range x {
		if x[i] > 0 {
			lx = append(lx, math.Log(x[i]))
			lz = append(lz, z[i])
		}
	}
	return
}

// Ab is z = (x - a) / b.
type Ab struct{}

func (Ab) Name() string { return "ab" }

func (Ab) G(x float64, prm []float64) float64 {
	checkParams(prm)
	return (x - prm[0]) / prm[1]
}

func (Ab) Dg(x float64, prm []float64, i int) float64 {
	checkParams(prm)
	switch i {
	case 0:
		return -1 / prm[1]
	case 1:
		return -(x - prm[0]) / (prm[1] * prm[1])
	}
	return 0
}

func (Ab) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return z*prm[1] + prm[0]
}

func (Ab) Transform(x, z []float64) []float64 {
	c0, c1 := regress(x, z)
	return []float64{-c0 / c1, 1 / c1}
}

// Mw is parameterized by the midpoint m of the sigmoid and the width
// w of the interval in which the sigmoid rises from alpha to 1-alpha.
type Mw struct {
	alpha  float64
	zalpha float64
	zshift float64
}

// NewMw creates a new midpoint-width core for a given sigmoid.
func NewMw(sig sigmoid.Sigmoid, alpha float64) (*Mw, error) {
	if alpha <= 0 || alpha >= 0.5 {
		return nil, fmt.Errorf("mw core alpha should be in (0, 0.5), got %v", alpha)
	}
	return &Mw{
		alpha:  alpha,
		zalpha: sig.Inv(1-alpha) - sig.Inv(alpha),
		zshift: sig.Inv(0.5),
	}, nil
}

func (c *Mw) Name() string { return "mw" + strconv.FormatFloat(c.alpha, 'g', -1, 64) }

// Alpha returns the alpha defining the width.
func (c *Mw) Alpha() float64 { return c.alpha }

func (c *Mw) G(x float64, prm []float64) float64 {
	checkParams(prm)
	return c.zalpha*(x-prm[0])/prm[1] + c.zshift
}

func (c *Mw) Dg(x float64, prm []float64, i int) float64 {
	checkParams(prm)
	switch i {
	case 0:
		return -c.zalpha / prm[1]
	case 1:
		return -c.zalpha * (x - prm[0]) / (prm[1] * prm[1])
	}
	return 0
}

func (c *Mw) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return prm[0] + prm[1]*(z-c.zshift)/c.zalpha
}

func (c *Mw) Transform(x, z []float64) []float64 {
	c0, c1 := regress(x, z)
	return []float64{(c.zshift - c0) / c1, c.zalpha / c1}
}

// Linear is z = a*x + b.
type Linear struct{}

func (Linear) Name() string { return "linear" }

func (Linear) G(x float64, prm []float64) float64 {
	checkParams(prm)
	return prm[0]*x + prm[1]
}

func (Linear) Dg(x float64, prm []float64, i int) float64 {
	switch i {
	case 0:
		return x
	case 1:
		return 1
	}
	return 0
}

func (Linear) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return (z - prm[1]) / prm[0]
}

func (Linear) Transform(x, z []float64) []float64 {
	c0, c1 := regress(x, z)
	return []float64{c1, c0}
}

// Log is z = a*log(x) + b, defined for x > 0.
type Log struct{}

func (Log) Name() string { return "log" }

func (Log) G(x float64, prm []float64) float64 {
	checkParams(prm)
	if x <= 0 {
		return logFloor
	}
	return prm[0]*math.Log(x) + prm[1]
}

func (Log) Dg(x float64, prm []float64, i int) float64 {
	if x <= 0 {
		return 0
	}
	switch i {
	case 0:
		return math.Log(x)
	case 1:
		return 1
	}
	return 0
}

func (Log) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return math.Exp((z - prm[1]) / prm[0])
}

func (Log) Transform(x, z []float64) []float64 {
	c0, c1 := regress(logPairs(x, z))
	return []float64{c1, c0}
}

const (
	twoOverLog2 = 2 / math.Ln2
)

var logLog2 = math.Log(math.Ln2)

// Weibull is parameterized by the threshold m and the slope s at the
// threshold. It is meant to be combined with the gumbel_l sigmoid.
type Weibull struct{}

func (Weibull) Name() string { return "weibull" }

func (Weibull) G(x float64, prm []float64) float64 {
	checkParams(prm)
	if x <= 0 {
		return logFloor
	}
	return twoOverLog2*prm[0]*prm[1]*(math.Log(x)-math.Log(prm[0])) + logLog2
}

func (Weibull) Dg(x float64, prm []float64, i int) float64 {
	checkParams(prm)
	if x <= 0 {
		return 0
	}
	d := math.Log(x) - math.Log(prm[0])
	switch i {
	case 0:
		return twoOverLog2 * prm[1] * (d - 1)
	case 1:
		return twoOverLog2 * prm[0] * d
	}
	return 0
}

func (Weibull) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return prm[0] * math.Exp((z-logLog2)/(twoOverLog2*prm[0]*prm[1]))
}

func (Weibull) Transform(x, z []float64) []float64 {
	c0, c1 := regress(logPairs(x, z))
	m := math.Exp((logLog2 - c0) / c1)
	return []float64{m, c1 / (twoOverLog2 * m)}
}

// Poly is z = (x/a)^b for x > 0 and 0 otherwise. Combined with the
// exp sigmoid it gives the classical Weibull function.
type Poly struct{}

func (Poly) Name() string { return "poly" }

func (Poly) G(x float64, prm []float64) float64 {
	checkParams(prm)
	if x <= 0 {
		return 0
	}
	return math.Pow(x/prm[0], prm[1])
}

func (Poly) Dg(x float64, prm []float64, i int) float64 {
	checkParams(prm)
	if x <= 0 {
		return 0
	}
	g := math.Pow(x/prm[0], prm[1])
	switch i {
	case 0:
		return -prm[1] / prm[0] * g
	case 1:
		return g * math.Log(x/prm[0])
	}
	return 0
}

func (Poly) Inv(z float64, prm []float64) float64 {
	checkParams(prm)
	return prm[0] * math.Pow(z, 1/prm[1])
}

func (Poly) Transform(x, z []float64) []float64 {
	var lx, lz []float64
	for i := range x {
		if x[i] > 0 && z[i] > 0 {
			lx = append(lx, math.Log(x[i]))
			lz = append(lz, math.Log(z[i]))
		}
	}
	c0, c1 := regress(lx, lz)
	return []float64{math.Exp(-c0 / c1), c1}
}
