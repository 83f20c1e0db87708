// Package prior implements prior distributions for single parameters
// of a psychometric function.
package prior

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Prior is a density of a single parameter. Pdf is zero outside of
// the support and never negative.
type Prior interface {
	// Pdf returns the density at x.
	Pdf(x float64) float64
	// Rand draws a random value using src. If src is nil the global
	// source is used.
	Rand(src rand.Source) float64
	// String returns the prior in the form accepted by Parse.
	String() string
}

// Uniform is a uniform prior on [Min, Max].
type Uniform struct {
	Min, Max float64
}

// NewUniform creates a uniform prior.
func NewUniform(min, max float64) (*Uniform, error) {
	if max <= min {
		return nil, fmt.Errorf("uniform prior: max (%v) <= min (%v)", max, min)
	}
	return &Uniform{min, max}, nil
}

func (p *Uniform) Pdf(x float64) float64 {
	if x < p.Min || x > p.Max {
		return 0
	}
	return 1 / (p.Max - p.Min)
}

func (p *Uniform) Rand(src rand.Source) float64 {
	return distuv.Uniform{Min: p.Min, Max: p.Max, Src: src}.Rand()
}

func (p *Uniform) String() string {
	return fmt.Sprintf("Uniform(%v,%v)", p.Min, p.Max)
}

// Gauss is a normal prior.
type Gauss struct {
	Mu, Sigma float64
}

// NewGauss creates a normal prior.
func NewGauss(mu, sigma float64) (*Gauss, error) {
	if sigma <= 0 {
		return nil, fmt.Errorf("gauss prior: sigma should be > 0, got %v", sigma)
	}
	return &Gauss{mu, sigma}, nil
}

func (p *Gauss) Pdf(x float64) float64 {
	return distuv.Normal{Mu: p.Mu, Sigma: p.Sigma}.Prob(x)
}

func (p *Gauss) Rand(src rand.Source) float64 {
	return distuv.Normal{Mu: p.Mu, Sigma: p.Sigma, Src: src}.Rand()
}

func (p *Gauss) String() string {
	return fmt.Sprintf("Gauss(%v,%v)", p.Mu, p.Sigma)
}

// Beta is a beta prior on [0, 1], typically used for the lapse rate.
type Beta struct {
	Alpha, Beta float64
}

// NewBeta creates a beta prior.
func NewBeta(alpha, beta float64) (*Beta, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("beta prior: parameters should be > 0, got %v, %v", alpha, beta)
	}
	return &Beta{alpha, beta}, nil
}

func (p *Beta) Pdf(x float64) float64 {
	if x < 0 || x > 1 {
		return 0
	}
	return distuv.Beta{Alpha: p.Alpha, Beta: p.Beta}.Prob(x)
}

func (p *Beta) Rand(src rand.Source) float64 {
	return distuv.Beta{Alpha: p.Alpha, Beta: p.Beta, Src: src}.Rand()
}

func (p *Beta) String() string {
	return fmt.Sprintf("Beta(%v,%v)", p.Alpha, p.Beta)
}

// Gamma is a gamma prior with shape K and scale Theta on x >= 0.
type Gamma struct {
	K, Theta float64
}

// NewGamma creates a gamma prior.
func NewGamma(k, theta float64) (*Gamma, error) {
	if k <= 0 || theta <= 0 {
		return nil, fmt.Errorf("gamma prior: parameters should be > 0, got %v, %v", k, theta)
	}
	return &Gamma{k, theta}, nil
}

func (p *Gamma) dist(src rand.Source) distuv.Gamma {
	return distuv.Gamma{Alpha: p.K, Beta: 1 / p.Theta, Src: src}
}

func (p *Gamma) Pdf(x float64) float64 {
	if x < 0 {
		return 0
	}
	return p.dist(nil).Prob(x)
}

func (p *Gamma) Rand(src rand.Source) float64 {
	return p.dist(src).Rand()
}

func (p *Gamma) String() string {
	return fmt.Sprintf("Gamma(%v,%v)", p.K, p.Theta)
}

// NGamma is a gamma prior mirrored to the negative half line.
type NGamma struct {
	Gamma
}

// NewNGamma creates a mirrored gamma prior.
func NewNGamma(k, theta float64) (*NGamma, error) {
	g, err := NewGamma(k, theta)
	if err != nil {
		return nil, err
	}
	return &NGamma{*g}, nil
}

func (p *NGamma) Pdf(x float64) float64 {
	return p.Gamma.Pdf(-x)
}

func (p *NGamma) Rand(src rand.Source) float64 {
	return -p.Gamma.Rand(src)
}

func (p *NGamma) String() string {
	return fmt.Sprintf("nGamma(%v,%v)", p.K, p.Theta)
}

// InvGamma is an inverse gamma prior with shape Alpha and scale Beta.
type InvGamma struct {
	Alpha, Beta float64
}

// NewInvGamma creates an inverse gamma prior.
func NewInvGamma(alpha, beta float64) (*InvGamma, error) {
	if alpha <= 0 || beta <= 0 {
		return nil, fmt.Errorf("inverse gamma prior: parameters should be > 0, got %v, %v", alpha, beta)
	}
	return &InvGamma{alpha, beta}, nil
}

func (p *InvGamma) Pdf(x float64) float64 {
	if x <= 0 {
		return 0
	}
	lg, _ := math.Lgamma(p.Alpha)
	return math.Exp(p.Alpha*math.Log(p.Beta) - lg - (p.Alpha+1)*math.Log(x) - p.Beta/x)
}

// Rand uses that 1/X is inverse gamma distributed if X is gamma
// distributed with rate Beta.
func (p *InvGamma) Rand(src rand.Source) float64 {
	return 1 / distuv.Gamma{Alpha: p.Alpha, Beta: p.Beta, Src: src}.Rand()
}

func (p *InvGamma) String() string {
	return fmt.Sprintf("invGamma(%v,%v)", p.Alpha, p.Beta)
}

// checked drops typed nil priors returned together with an error.
func checked(p Prior, err error) (Prior, error) {
	if err != nil {
		return nil, err
	}
	return p, nil
}

var priorRe = regexp.MustCompile(`^\s*([A-Za-z]+)\s*\(\s*([^,()]+)\s*,\s*([^,()]+)\s*\)\s*$`)

// Parse creates a prior from a string like "Beta(2,20)". Strings
// "", "None" and "flat" return nil, i.e. no prior.
func Parse(s string) (Prior, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none", "flat":
		return nil, nil
	}
	m := priorRe.FindStringSubmatch(s)
	if m == nil {
		return nil, fmt.Errorf("Cannot parse prior '%s'", s)
	}
	a, err := strconv.ParseFloat(strings.TrimSpace(m[2]), 64)
	if err != nil {
		return nil, fmt.Errorf("Cannot parse prior '%s': %w", s, err)
	}
	b, err := strconv.ParseFloat(strings.TrimSpace(m[3]), 64)
	if err != nil {
		return nil, fmt.Errorf("Cannot parse prior '%s': %w", s, err)
	}
	switch strings.ToLower(m[1]) {
	case "uniform":
		return checked(NewUniform(a, b))
	case "gauss", "normal":
		return checked(NewGauss(a, b))
	case "beta":
		return checked(NewBeta(a, b))
	case "gamma":
		return checked(NewGamma(a, b))
	case "ngamma":
		return checked(NewNGamma(a, b))
	case "invgamma":
		return checked(NewInvGamma(a, b))
	}
	return nil, fmt.Errorf("Unknown prior '%s'", m[1])
}
