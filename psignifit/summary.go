package main

import (
	"encoding/json"
	"math"
	"os"

	"github.com/mani33/Psignifit-3.x/fit"
)

// jsonFloat is a float encoded as null when it is not finite.
type jsonFloat float64

func (f jsonFloat) MarshalJSON() ([]byte, error) {
	v := float64(f)
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return []byte("null"), nil
	}
	return json.Marshal(v)
}

func jsonFloats(x []float64) []jsonFloat {
	r := make([]jsonFloat, len(x))
	for i, v := range x {
		r[i] = jsonFloat(v)
	}
	return r
}

// CallSummary stores information about the program call.
type CallSummary struct {
	// Version stores psignifit version.
	Version string `json:"version"`
	// CommandLine is an array storing binary name and all command-line parameters.
	CommandLine []string `json:"commandLine"`
	// Seed is the seed used for random number generation initialization.
	Seed int64 `json:"seed"`
	// Time is the computations time in seconds.
	TotalTime float64 `json:"time"`
}

// FitSummary is the summary of a single fit.
type FitSummary struct {
	Model             string      `json:"model"`
	ParameterNames    []string    `json:"parameterNames"`
	Parameters        []jsonFloat `json:"parameters"`
	NegLogPosterior   jsonFloat   `json:"negLogPosterior"`
	Deviance          jsonFloat   `json:"deviance"`
	Cuts              []float64   `json:"cuts"`
	Thresholds        []jsonFloat `json:"thresholds"`
	DevianceResiduals []jsonFloat `json:"devianceResiduals"`
	Rpd               jsonFloat   `json:"rpd"`
	Rkd               jsonFloat   `json:"rkd"`
	LeastFavourable   []jsonFloat `json:"leastFavourable"`
	Method            string      `json:"method"`
	Converged         bool        `json:"converged"`
	Iterations        int         `json:"iterations"`
	Evaluations       int         `json:"evaluations"`
	// Checkpoint is true if the fit was read from the database.
	Checkpoint bool `json:"checkpoint,omitempty"`
	// Time is the computations time in seconds.
	Time float64 `json:"optimizationTime"`
}

// newFitSummary creates a summary from a fit result.
func newFitSummary(model string, res *fit.Result) *FitSummary {
	return &FitSummary{
		Model:             model,
		ParameterNames:    res.ParameterNames,
		Parameters:        jsonFloats(res.Params),
		NegLogPosterior:   jsonFloat(res.NegLogPosterior),
		Deviance:          jsonFloat(res.Deviance),
		Cuts:              res.Cuts,
		Thresholds:        jsonFloats(res.Thresholds),
		DevianceResiduals: jsonFloats(res.DevianceResiduals),
		Rpd:               jsonFloat(res.Rpd),
		Rkd:               jsonFloat(res.Rkd),
		LeastFavourable:   jsonFloats(res.LeastFavourable),
		Method:            res.Method,
		Converged:         res.Converged,
		Iterations:        res.Iterations,
		Evaluations:       res.Evaluations,
	}
}

// RunSummary is written by the --json option.
type RunSummary struct {
	CallSummary
	Fit      *FitSummary   `json:"fit"`
	Outliers []fit.Outlier `json:"outliers,omitempty"`
	// CriticalLevel is the outlier test level.
	CriticalLevel float64 `json:"level,omitempty"`
}

// writeJSON writes the summary to a file.
func writeJSON(fn string, summary interface{}) error {
	j, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return err
	}
	log.Debug(string(j))
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if _, err := f.Write(j); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
