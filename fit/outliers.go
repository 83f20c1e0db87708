package fit

import (
	"errors"
	"fmt"
	"math"

	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/mani33/Psignifit-3.x/psi"
)

// Outlier is the result of refitting with one block excluded.
type Outlier struct {
	Block     int       `json:"block"`
	Intensity float64   `json:"intensity"`
	P         float64   `json:"p"`
	Deviance  float64   `json:"deviance"`
	Drop      float64   `json:"devianceDrop"`
	PValue    float64   `json:"pValue"`
	Outlier   bool      `json:"outlier"`
	Params    []float64 `json:"parameters"`
}

// Outliers refits the model once per block, each time giving the
// block its own probability of a correct response. A block is an
// outlier if the deviance drops by more than the chi-square(1)
// quantile at level. Blocks are fitted by up to workers goroutines;
// workers <= 0 means no limit.
func Outliers(m *psi.Model, data *psi.Data, full *Result, level float64, workers int, s Settings) ([]Outlier, error) {
	if !(level > 0 && level < 1) {
		return nil, fmt.Errorf("Level should be in (0, 1), got %v", level)
	}
	if full == nil || len(full.Params) != m.GetNparams() {
		return nil, errors.New("Outlier test requires a full model fit")
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}
	s.Quiet = true
	s.Trajectory = nil

	chi2 := distuv.ChiSquared{K: 1}
	crit := chi2.Quantile(level)
	log.Infof("Critical deviance drop: %v", crit)

	res := make([]Outlier, data.NBlocks())
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for j := range res {
		g.Go(func() error {
			om := psi.NewOutlierModel(m, j)
			start := append(append([]float64(nil), full.Params...), om.GetStart(data)[m.GetNparams()])
			prm, _, err := minimize(om, data, start, s)
			if err != nil {
				return fmt.Errorf("Block %d: %w", j, err)
			}
			d := om.Deviance(prm, data)
			drop := full.Deviance - d
			res[j] = Outlier{
				Block:     j,
				Intensity: data.Intensities[j],
				P:         om.GetP(prm),
				Deviance:  d,
				Drop:      drop,
				PValue:    chi2.Survival(math.Max(0, drop)),
				Outlier:   drop > crit,
				Params:    prm,
			}
			log.Debugf("Block %d: deviance drop %v", j, drop)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}
