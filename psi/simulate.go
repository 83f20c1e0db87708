package psi

import (
	"golang.org/x/exp/rand"
	"gonum.org/v1/gonum/stat/distuv"
)

// Simulate draws binomial responses from the psychometric function
// with parameters prm at intensities x with n trials per block.
func Simulate(m Psychometric, prm []float64, x []float64, n []int, src rand.Source) *Data {
	if len(x) != len(n) {
		panic("Intensities and trials length mismatch")
	}
	k := make([]int, len(x))
	for i := range x {
		b := distuv.Binomial{
			N:   float64(n[i]),
			P:   m.Evaluate(x[i], prm),
			Src: src,
		}
		k[i] = int(b.Rand())
	}
	return &Data{
		Intensities: append([]float64(nil), x...),
		NCorrect:    k,
		NTrials:     append([]int(nil), n...),
	}
}
