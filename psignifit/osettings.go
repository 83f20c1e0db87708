package main

import (
	"io"

	"github.com/mani33/Psignifit-3.x/fit"
)

// optimizerSettings stores settings for creation of a new optimizer.
type optimizerSettings struct {
	method     string
	iterations int
	report     int
	polish     bool
	cuts       []float64

	trajF io.Writer
}

// newOptimizerSettings creates a new optimizerSettings from the
// command line parameters (global variables) and the configuration.
func newOptimizerSettings(cfg *config, trajF io.Writer) *optimizerSettings {
	o := &optimizerSettings{
		method:     *method,
		iterations: *iterations,
		report:     *report,
		polish:     *polish,
		cuts:       *cuts,

		trajF: trajF,
	}
	o.merge(cfg)
	return o
}

// merge fills settings not given on the command line from cfg and
// the defaults.
func (o *optimizerSettings) merge(cfg *config) {
	if cfg != nil {
		if o.method == "" {
			o.method = cfg.Method
		}
		if o.iterations == 0 {
			o.iterations = cfg.Iterations
		}
		if len(o.cuts) == 0 {
			o.cuts = cfg.Cuts
		}
		o.polish = o.polish || cfg.Polish
	}
	if o.method == "" {
		o.method = fit.Simplex
	}
	if len(o.cuts) == 0 {
		o.cuts = []float64{fit.DefaultCut}
	}
}

// create returns the fit settings.
func (o *optimizerSettings) create() (fit.Settings, error) {
	s := fit.Settings{
		Method:        o.method,
		Cuts:          o.cuts,
		MaxIterations: o.iterations,
		ReportPeriod:  o.report,
		Polish:        o.polish,
		Trajectory:    o.trajF,
	}
	if err := s.Validate(); err != nil {
		return s, err
	}
	log.Infof("Using %s optimization.", o.method)
	return s, nil
}
