package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"golang.org/x/exp/rand"
	"gopkg.in/yaml.v3"

	"github.com/mani33/Psignifit-3.x/core"
	"github.com/mani33/Psignifit-3.x/prior"
	"github.com/mani33/Psignifit-3.x/psi"
	"github.com/mani33/Psignifit-3.x/sigmoid"
)

// Default model settings.
const (
	defaultNafc    = 2
	defaultSigmoid = "logistic"
	defaultCore    = "ab"
)

// config is the YAML configuration file. Values given on the command
// line take precedence.
type config struct {
	Nafc       int       `yaml:"nafc"`
	Sigmoid    string    `yaml:"sigmoid"`
	Core       string    `yaml:"core"`
	Priors     []string  `yaml:"priors"`
	Cuts       []float64 `yaml:"cuts"`
	Method     string    `yaml:"method"`
	Iterations int       `yaml:"iterations"`
	Polish     bool      `yaml:"polish"`
}

// readConfig reads a YAML configuration file.
func readConfig(fn string) (*config, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cfg := &config{}
	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("Error reading config %s: %w", fn, err)
	}
	return cfg, nil
}

// modelSettings stores settings for creating a new model.
type modelSettings struct {
	nafc    int
	sigmoid string
	core    string
	priors  []string

	start     string
	randomize bool
	seed      int64
}

// newModelSettings initializes modelSettings from global
// variables (command-line arguments) and the configuration.
func newModelSettings(cfg *config) *modelSettings {
	ms := &modelSettings{
		nafc:    *nafc,
		sigmoid: *sigmoidName,
		core:    *coreName,
		priors:  *priors,

		start:     *startS,
		randomize: *randomize,
		seed:      *seed,
	}
	ms.merge(cfg)
	return ms
}

// merge fills settings not given on the command line from cfg and
// the defaults.
func (ms *modelSettings) merge(cfg *config) {
	if cfg != nil {
		if ms.nafc == 0 {
			ms.nafc = cfg.Nafc
		}
		if ms.sigmoid == "" {
			ms.sigmoid = cfg.Sigmoid
		}
		if ms.core == "" {
			ms.core = cfg.Core
		}
		if len(ms.priors) == 0 {
			ms.priors = cfg.Priors
		}
	}
	if ms.nafc == 0 {
		ms.nafc = defaultNafc
	}
	if ms.sigmoid == "" {
		ms.sigmoid = defaultSigmoid
	}
	if ms.core == "" {
		ms.core = defaultCore
	}
}

// descriptor describes the model, it is used as a checkpoint key.
func (ms *modelSettings) descriptor() string {
	return fmt.Sprintf("%dAFC %s %s [%s]", ms.nafc, ms.sigmoid, ms.core, strings.Join(ms.priors, " "))
}

// createModel creates a new model from modelSettings.
func (ms *modelSettings) createModel() (*psi.Model, error) {
	sig, err := sigmoid.Get(ms.sigmoid)
	if err != nil {
		return nil, err
	}
	cr, err := core.Get(ms.core, sig)
	if err != nil {
		return nil, err
	}
	m, err := psi.NewModel(ms.nafc, cr, sig)
	if err != nil {
		return nil, err
	}
	if len(ms.priors) > m.GetNparams() {
		return nil, fmt.Errorf("Model has %d parameters, got %d priors", m.GetNparams(), len(ms.priors))
	}
	names := m.GetParameterNames()
	for i, s := range ms.priors {
		p, err := prior.Parse(s)
		if err != nil {
			return nil, fmt.Errorf("Prior for %s: %w", names[i], err)
		}
		m.SetPrior(i, p)
		if p != nil {
			log.Infof("Prior for %s: %s", names[i], p)
		}
	}
	log.Infof("Using %s model (sigmoid %s, core %s), %d parameters", nafcName(ms.nafc), ms.sigmoid, ms.core, m.GetNparams())
	return m, nil
}

func nafcName(nafc int) string {
	if nafc == 1 {
		return "yes/no"
	}
	return fmt.Sprintf("%dAFC", nafc)
}

// getStart returns the starting vector or nil for the model default.
func (ms *modelSettings) getStart(m *psi.Model, data *psi.Data) ([]float64, error) {
	n := m.GetNparams()
	if ms.start != "" {
		start, err := readStart(ms.start, n)
		if err != nil {
			return nil, err
		}
		log.Infof("Starting values: %v", start)
		return start, nil
	}
	if !ms.randomize {
		return nil, nil
	}
	log.Info("Drawing starting values from the priors")
	src := rand.NewSource(uint64(ms.seed))
	start := m.GetStart(data)
	for i := range start {
		if v, err := m.RandPrior(i, src); err == nil {
			start[i] = v
		}
	}
	log.Infof("Starting values: %v", start)
	return start, nil
}

// lastLine returns the last non-empty line of a file content.
func lastLine(fn string) (line string, err error) {
	f, err := os.Open(fn)
	if err != nil {
		return line, err
	}
	defer f.Close()
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if l := strings.TrimSpace(scanner.Text()); l != "" {
			line = l
		}
	}
	err = scanner.Err()
	return line, err
}

// readStart parses comma separated starting values. If s is a file,
// the parameters are taken from the last line of an optimization
// trajectory.
func readStart(s string, n int) ([]float64, error) {
	var fields []string
	if _, err := os.Stat(s); err == nil {
		l, err := lastLine(s)
		if err != nil {
			return nil, err
		}
		fields = strings.Fields(l)
		// iteration and objective value
		if len(fields) != n+2 {
			return nil, fmt.Errorf("Expected %d columns in the trajectory, got %d", n+2, len(fields))
		}
		fields = fields[2:]
	} else {
		fields = strings.Split(s, ",")
	}
	if len(fields) < n || len(fields) > 2*n {
		return nil, fmt.Errorf("Expected from %d to %d starting values, got %d", n, 2*n, len(fields))
	}
	start := make([]float64, len(fields))
	for i, f := range fields {
		v, err := strconv.ParseFloat(strings.TrimSpace(f), 64)
		if err != nil {
			return nil, fmt.Errorf("Error parsing starting value: %w", err)
		}
		start[i] = v
	}
	return start, nil
}

// readData reads the data file.
func readData(fn string) (*psi.Data, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	data, err := psi.ReadData(f)
	if err != nil {
		return nil, err
	}
	if data.NBlocks() == 0 {
		return nil, errors.New("No data blocks")
	}
	log.Infof("Read %d blocks", data.NBlocks())
	return data, nil
}
