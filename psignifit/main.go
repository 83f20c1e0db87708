/*

Psignifit fits psychometric functions to binomial trial data.

Data files have three columns: stimulus intensity, number of correct
responses and number of trials. The basic usage looks like this:

	psignifit fit data.txt

, this will fit a 2AFC logistic model with the downhill simplex
optimizer. You can change the model and the optimizer:

	psignifit --nafc 1 --sigmoid gauss --core mw0.1 --prior None --prior None --prior 'Beta(2,20)' --method lbfgsb fit data.txt

To test every block for being an outlier:

	psignifit outliers data.txt

To see all the options run:

	psignifit --help

*/
package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/op/go-logging"
	bolt "go.etcd.io/bbolt"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/mani33/Psignifit-3.x/checkpoint"
	"github.com/mani33/Psignifit-3.x/fit"
	"github.com/mani33/Psignifit-3.x/optimize"
	"github.com/mani33/Psignifit-3.x/psi"
)

// These three variables are set during the compilation.
var githash = ""
var gitbranch = ""
var buildstamp = ""
var version = fmt.Sprintf("branch: %s, revision: %s, build time: %s", gitbranch, githash, buildstamp)

// Logger settings.
var log = logging.MustGetLogger("psignifit")
var formatter = logging.MustStringFormatter(`%{message}`)

// loggers are the modules with configurable level.
var loggers = []string{"psignifit", "optimize", "psi", "fit", "checkpoint"}

// command-line options
var (
	// application
	app = kingpin.New("psignifit", "psychometric function fitting").Version(version)

	// commands
	fitCmd  = app.Command("fit", "fit a psychometric function")
	fitData = fitCmd.Arg("data", "data file (intensity, correct, trials)").Required().ExistingFile()

	outCmd   = app.Command("outliers", "fit and test every block for being an outlier")
	outData  = outCmd.Arg("data", "data file (intensity, correct, trials)").Required().ExistingFile()
	level    = outCmd.Flag("level", "outlier test level").Default("0.95").Float64()
	nThreads = outCmd.Flag("nt", "number of blocks fitted in parallel (all by default)").Int()

	// model parameters
	nafc        = app.Flag("nafc", "number of alternatives, 1 for yes/no tasks (default 2)").Int()
	sigmoidName = app.Flag("sigmoid", "sigmoid (logistic, gauss, gumbel_l, gumbel_r, cauchy, exp; default logistic)").String()
	coreName    = app.Flag("core", "core (ab, mw<alpha>, linear, log, weibull, poly; default ab)").String()
	priors      = app.Flag("prior", "prior per parameter in order, e.g. 'Beta(2,20)' or None; repeatable").Strings()
	startS      = app.Flag("start", "comma separated starting values (extra values set the simplex size) "+
		"or a trajectory file").String()
	randomize = app.Flag("randomize", "draw starting values from the priors").Bool()
	cuts      = app.Flag("cut", "performance level for thresholds (default 0.5); repeatable").Float64List()

	// optimizer parameters
	method = app.Flag("method", "optimization method "+
		"(simplex: downhill simplex, "+
		"lbfgsb: limited-memory Broyden–Fletcher–Goldfarb–Shanno with bounding constraints)").
		Enum(fit.Methods...)
	iterations = app.Flag("iter", "maximum number of iterations").Int()
	report     = app.Flag("report", "record trajectory every N iterations").Default("10").Int()
	polish     = app.Flag("polish", "run L-BFGS-B after the downhill simplex").Bool()

	// technical
	seed    = app.Flag("seed", "random generator seed, default time based").Default("-1").Int64()
	configF = app.Flag("config", "YAML configuration file, command line options take precedence").ExistingFile()
	dbF     = app.Flag("db", "bolt database to store and reuse fits").String()

	// input/output
	outLogF  = app.Flag("log", "write log to a file").String()
	outF     = app.Flag("out", "write optimization trajectory to a file").String()
	plotF    = app.Flag("plot", "plot data and the fitted function to a file (png, svg, pdf, eps)").String()
	jsonF    = app.Flag("json", "write json output to a file").String()
	logLevel = app.Flag("loglevel", "set loglevel "+
		"('critical', 'error', 'warning', 'notice', 'info', 'debug')").
		Default("notice").
		Enum("critical", "error", "warning", "notice", "info", "debug")
)

// openDB opens the checkpoint database.
func openDB(fn string) (*bolt.DB, error) {
	if fn == "" {
		return nil, nil
	}
	return bolt.Open(fn, 0666, &bolt.Options{Timeout: time.Second})
}

// runFit fits the model, reusing and updating the checkpoint.
func runFit(m *psi.Model, data *psi.Data, start []float64, s fit.Settings, cio *checkpoint.CheckpointIO) (res *fit.Result, fromCheckpoint bool, err error) {
	chk, err := cio.Load()
	if err != nil {
		log.Error("Error loading checkpoint:", err)
	}
	if chk != nil && len(chk.Parameters) == m.GetNparams() {
		if chk.Final {
			sum := optimize.Summary{
				Method:     "checkpoint",
				Iterations: chk.Iter,
				Converged:  true,
			}
			return fit.Evaluate(m, data, chk.Parameters, s.Cuts, sum), true, nil
		}
		log.Notice("Continuing from the checkpoint")
		start = chk.Parameters
	}

	res, err = fit.Run(m, data, start, s)
	if err != nil {
		return nil, false, err
	}
	err = cio.Save(&checkpoint.CheckpointData{
		Parameters:      res.Params,
		NegLogPosterior: res.NegLogPosterior,
		Iter:            res.Iterations,
		Final:           res.Converged,
	})
	if err != nil {
		log.Error("Error saving checkpoint:", err)
	}
	return res, false, nil
}

// printResult logs the fitted parameters and the diagnostics.
func printResult(res *fit.Result) {
	log.Notice("Parameters:")
	for i, name := range res.ParameterNames {
		log.Noticef("  %s=%v", name, res.Params[i])
	}
	log.Noticef("Negative log posterior: %v", res.NegLogPosterior)
	log.Noticef("Deviance: %v", res.Deviance)
	for i, cut := range res.Cuts {
		log.Noticef("Threshold at %v: %v", cut, res.Thresholds[i])
	}
	log.Infof("Deviance residuals: %v", res.DevianceResiduals)
	log.Infof("Rpd=%v, Rkd=%v", res.Rpd, res.Rkd)
	log.Infof("Least favourable direction: %v", res.LeastFavourable)
}

func run(dataFn string, outliers bool, cfg *config) (summary *RunSummary, err error) {
	summary = &RunSummary{}
	startTime := time.Now()

	data, err := readData(dataFn)
	if err != nil {
		return nil, err
	}

	ms := newModelSettings(cfg)
	m, err := ms.createModel()
	if err != nil {
		return nil, err
	}

	start, err := ms.getStart(m, data)
	if err != nil {
		return nil, err
	}

	var trajF io.Writer
	if *outF != "" {
		f, err := os.Create(*outF)
		if err != nil {
			return nil, fmt.Errorf("Error creating trajectory file: %w", err)
		}
		defer f.Close()
		trajF = f
	}

	s, err := newOptimizerSettings(cfg, trajF).create()
	if err != nil {
		return nil, err
	}

	db, err := openDB(*dbF)
	if err != nil {
		return nil, fmt.Errorf("Error opening database: %w", err)
	}
	if db != nil {
		defer db.Close()
	}
	absFn, err := filepath.Abs(dataFn)
	if err != nil {
		absFn = dataFn
	}
	cio := checkpoint.NewCheckpointIO(db, checkpoint.Key(absFn, ms.descriptor()))

	res, fromCheckpoint, err := runFit(m, data, start, s, cio)
	if err != nil {
		return nil, err
	}
	printResult(res)
	summary.Fit = newFitSummary(ms.descriptor(), res)
	summary.Fit.Checkpoint = fromCheckpoint
	summary.Fit.Time = time.Since(startTime).Seconds()

	if *plotF != "" {
		if err := plotFit(*plotF, m, data, res.Params, res.Thresholds); err != nil {
			log.Error("Error creating plot:", err)
		}
	}

	if outliers {
		log.Infof("Testing %d blocks for outliers", data.NBlocks())
		out, err := fit.Outliers(m, data, res, *level, *nThreads, s)
		if err != nil {
			return nil, err
		}
		for _, o := range out {
			mark := ""
			if o.Outlier {
				mark = " *"
			}
			log.Noticef("Block %d (x=%v): p=%v, deviance drop=%v, p-value=%v%s",
				o.Block, o.Intensity, o.P, o.Drop, o.PValue, mark)
		}
		summary.Outliers = out
		summary.CriticalLevel = *level
	}

	return summary, nil
}

// setupLogging configures the backend and the levels.
func setupLogging() (io.Closer, error) {
	logging.SetFormatter(formatter)

	var backend *logging.LogBackend
	var closer io.Closer
	if *outLogF != "" {
		f, err := os.OpenFile(*outLogF, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0666)
		if err != nil {
			return nil, fmt.Errorf("Error creating log file: %w", err)
		}
		closer = f
		backend = logging.NewLogBackend(f, "", 0)
	} else {
		backend = logging.NewLogBackend(os.Stderr, "", 0)
	}
	logging.SetBackend(backend)

	lvl, err := logging.LogLevel(*logLevel)
	if err != nil {
		return closer, err
	}
	for _, module := range loggers {
		logging.SetLevel(lvl, module)
	}
	return closer, nil
}

func main() {
	cmd := kingpin.MustParse(app.Parse(os.Args[1:]))

	closer, err := setupLogging()
	if err != nil {
		log.Fatal(err)
	}
	if closer != nil {
		defer closer.Close()
	}

	// print revision
	log.Info(version)

	// print commandline
	log.Info("Command line:", os.Args)

	if *seed == -1 {
		*seed = time.Now().UnixNano()
		log.Debug("Random seed from time")
	}
	log.Infof("Random seed=%v", *seed)

	var cfg *config
	if *configF != "" {
		cfg, err = readConfig(*configF)
		if err != nil {
			log.Fatal(err)
		}
	}

	startTime := time.Now()

	var summary *RunSummary
	switch cmd {
	case fitCmd.FullCommand():
		summary, err = run(*fitData, false, cfg)
	case outCmd.FullCommand():
		summary, err = run(*outData, true, cfg)
	}
	if err != nil {
		log.Fatal(err)
	}

	deltaT := time.Since(startTime)
	log.Noticef("Running time: %v", deltaT)

	summary.Version = version
	summary.CommandLine = os.Args
	summary.Seed = *seed
	summary.TotalTime = deltaT.Seconds()

	// output summary in json format
	if *jsonF != "" {
		if err := writeJSON(*jsonF, summary); err != nil {
			log.Error("Error writing json output:", err)
		}
	}
}
