package fit

import (
	"testing"

	"github.com/mani33/Psignifit-3.x/psi"
)

// forcedData has block 2 answered incorrectly in every trial.
func forcedData(tst *testing.T, m *psi.Model) *psi.Data {
	data := expectedData(tst, m, 100)
	data.NCorrect[2] = 0
	return data
}

func TestOutliers(tst *testing.T) {
	m := newModel(tst)
	data := forcedData(tst, m)
	s := DefaultSettings()
	s.Quiet = true
	full, err := Run(m, data, nil, s)
	if err != nil {
		tst.Fatal("Error: ", err)
	}
	for _, workers := range []int{0, 1, 2} {
		res, err := Outliers(m, data, full, 0.95, workers, s)
		if err != nil {
			tst.Fatal("Error: ", err)
		}
		if len(res) != data.NBlocks() {
			tst.Fatal("Incorrect number of results:", len(res))
		}
		if !res[2].Outlier || res[2].P > 0.01 || res[2].PValue > 1e-6 {
			tst.Error("Block 2 should be an outlier, got", res[2])
		}
		for j, o := range res {
			if o.Block != j || o.Intensity != testX[j] || len(o.Params) != 4 {
				tst.Error("Incorrect block result:", o)
			}
			if j != 2 && o.Drop >= res[2].Drop {
				tst.Errorf("Block %d has a larger deviance drop than the outlier", j)
			}
			if o.PValue < 0 || o.PValue > 1 {
				tst.Error("Incorrect p-value:", o.PValue)
			}
		}
	}
}

func TestOutliersErrors(tst *testing.T) {
	m := newModel(tst)
	data := forcedData(tst, m)
	s := DefaultSettings()
	s.Quiet = true
	full := &Result{Params: []float64{0, 2, 0.02}}
	for _, level := range []float64{0, 1, -0.5} {
		if _, err := Outliers(m, data, full, level, 1, s); err == nil {
			tst.Error("Expected error for level", level)
		}
	}
	if _, err := Outliers(m, data, nil, 0.95, 1, s); err == nil {
		tst.Error("Expected error without a full fit")
	}
	if _, err := Outliers(m, data, &Result{Params: []float64{0, 2}}, 0.95, 1, s); err == nil {
		tst.Error("Expected error for a wrong full fit")
	}
}
