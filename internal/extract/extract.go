// Package extract runs catalog datasets end to end: open the raster, build
// its category registry, aggregate against the boundary index, write the
// tables and record the run.
package extract

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/config"
	"github.com/sashkaw/spatial-aez/internal/dataset"
	"github.com/sashkaw/spatial-aez/internal/export"
	"github.com/sashkaw/spatial-aez/internal/metrics"
	"github.com/sashkaw/spatial-aez/internal/raster"
	"github.com/sashkaw/spatial-aez/internal/registry"
	"github.com/sashkaw/spatial-aez/internal/store"
	"github.com/sashkaw/spatial-aez/internal/zonal"
)

// Status is the outcome of one dataset.
type Status string

// Outcome statuses.
const (
	StatusComplete Status = "complete"
	StatusFailed   Status = "failed"
	StatusSkipped  Status = "skipped"
)

// Options control every run of a Runner.
type Options struct {
	DataDir   string
	OutputDir string
	Formats   []export.Format
	Precision int
	Unit      area.Unit // overrides the dataset unit when set
	Model     area.Model
	Workers   int
	BandRows  int
	Lenient   bool
	Parallel  int    // datasets processed at once; default 1
	Textfile  string // Prometheus textfile written after RunAll
}

// OptionsFromConfig derives runner options from the extract section.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	model, err := area.ParseModel(cfg.Extract.AreaModel)
	if err != nil {
		return Options{}, eris.Wrap(err, "extract: area model")
	}
	unit, err := area.ParseUnit(cfg.Extract.Units)
	if err != nil {
		return Options{}, eris.Wrap(err, "extract: units")
	}
	formats, err := export.ParseFormats(cfg.Extract.Formats)
	if err != nil {
		return Options{}, eris.Wrap(err, "extract: formats")
	}
	return Options{
		DataDir:   cfg.Data.Dir,
		OutputDir: cfg.Extract.OutputDir,
		Formats:   formats,
		Precision: cfg.Extract.Precision,
		Unit:      unit,
		Model:     model,
		Workers:   cfg.Extract.Workers,
		BandRows:  cfg.Extract.BandRows,
		Lenient:   !cfg.Extract.Strict,
		Textfile:  cfg.Metrics.Textfile,
	}, nil
}

// Option configures optional Runner collaborators.
type Option func(*Runner)

// WithStore records every run in s.
func WithStore(s store.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithMetrics records run outcomes in m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// Runner executes datasets against one vocabulary and boundary index.
type Runner struct {
	opts    Options
	vocab   *registry.Vocabulary
	locator zonal.Locator
	store   store.Store
	metrics *metrics.Metrics
}

// New returns a Runner. The locator is shared by every run and must be safe
// for concurrent use.
func New(vocab *registry.Vocabulary, locator zonal.Locator, opts Options, options ...Option) (*Runner, error) {
	if vocab == nil {
		return nil, eris.New("extract: nil vocabulary")
	}
	if locator == nil {
		return nil, eris.New("extract: nil locator")
	}
	if opts.Model == nil {
		opts.Model = area.Ellipsoid{}
	}
	if len(opts.Formats) == 0 {
		opts.Formats = []export.Format{export.CSV}
	}
	if opts.Parallel <= 0 {
		opts.Parallel = 1
	}
	r := &Runner{opts: opts, vocab: vocab, locator: locator}
	for _, o := range options {
		o(r)
	}
	return r, nil
}

// Outcome describes what happened to one dataset.
type Outcome struct {
	Dataset     string
	Status      Status
	RunID       string
	Outputs     []string
	Diagnostics zonal.Diagnostics
	Elapsed     time.Duration
	Err         error
}

// Report collects the outcomes of RunAll in input order.
type Report struct {
	Outcomes []Outcome
}

// Count returns the number of outcomes with status s.
func (rp *Report) Count(s Status) int {
	n := 0
	for _, o := range rp.Outcomes {
		if o.Status == s {
			n++
		}
	}
	return n
}

// Err joins the errors of every failed dataset.
func (rp *Report) Err() error {
	var errs []error
	for _, o := range rp.Outcomes {
		if o.Err != nil {
			errs = append(errs, eris.Wrapf(o.Err, "extract: %s", o.Dataset))
		}
	}
	return errors.Join(errs...)
}

// RunAll runs every dataset, at most Options.Parallel at a time. A failing
// dataset does not stop the others. The returned error only reports problems
// outside the individual runs.
func (r *Runner) RunAll(ctx context.Context, datasets []dataset.Dataset) (*Report, error) {
	report := &Report{Outcomes: make([]Outcome, len(datasets))}

	var g errgroup.Group
	g.SetLimit(r.opts.Parallel)
	for i, d := range datasets {
		g.Go(func() error {
			report.Outcomes[i] = r.Run(ctx, d)
			return nil
		})
	}
	_ = g.Wait()

	zap.L().Info("extract: finished",
		zap.Int("complete", report.Count(StatusComplete)),
		zap.Int("failed", report.Count(StatusFailed)),
		zap.Int("skipped", report.Count(StatusSkipped)),
	)

	if err := r.metrics.WriteTextfile(r.opts.Textfile); err != nil {
		return report, err
	}
	return report, ctx.Err()
}

// Run extracts one dataset. Missing rasters are skipped; every other problem
// is reported in the outcome and, when a store is attached, on the run row.
func (r *Runner) Run(ctx context.Context, d dataset.Dataset) Outcome {
	log := zap.L().With(zap.String("component", "extract"), zap.String("dataset", d.Name))
	out := Outcome{Dataset: d.Name}
	path := d.RasterPath(r.opts.DataDir)

	if !d.Available(r.opts.DataDir) {
		out.Status = StatusSkipped
		if d.Optional {
			log.Info("extract: optional raster not present, skipping", zap.String("path", path))
		} else {
			log.Warn("extract: raster not found, skipping", zap.String("path", path))
		}
		return out
	}

	unit := r.opts.Unit
	if unit == "" {
		unit = d.Unit
	}
	if unit == "" {
		unit = area.SquareKilometres
	}

	start := time.Now()
	if r.store != nil {
		run, err := r.store.CreateRun(ctx, store.RunSpec{
			Dataset:   d.Name,
			Scheme:    d.Scheme,
			Raster:    path,
			AreaModel: r.opts.Model.Name(),
			Unit:      string(unit),
			Lenient:   r.opts.Lenient,
			Vocab:     r.vocab.Version(),
		})
		if err != nil {
			return r.fail(ctx, log, out, start, eris.Wrap(err, "extract: create run"))
		}
		out.RunID = run.ID
		log = log.With(zap.String("run_id", run.ID))
	}

	log.Info("extract: starting", zap.String("path", path), zap.String("scheme", d.Scheme))

	res, err := r.aggregate(ctx, d, path)
	if err != nil {
		return r.fail(ctx, log, out, start, err)
	}
	out.Diagnostics = res.Diagnostics

	for _, z := range res.Diagnostics.UnmappedZones {
		log.Warn("extract: boundary name not in vocabulary",
			zap.String("name", z.Name),
			zap.Float64("area_km2", z.Area),
		)
	}

	sheet := export.NewSheet(d.Name, res.Table, r.vocab.Countries(), unit, r.opts.Precision)
	paths, err := export.Write(r.opts.OutputDir, d.Output, r.opts.Formats, sheet)
	out.Outputs = paths
	if err != nil {
		return r.fail(ctx, log, out, start, err)
	}

	if r.store != nil {
		result := store.RunResult{
			Columns:     res.Table.Columns(),
			Countries:   r.vocab.Countries(),
			Outputs:     paths,
			Diagnostics: res.Diagnostics,
		}
		if err := r.store.CompleteRun(ctx, out.RunID, result, res.Table.Cells()); err != nil {
			return r.fail(ctx, log, out, start, eris.Wrap(err, "extract: complete run"))
		}
	}

	out.Status = StatusComplete
	out.Elapsed = time.Since(start)
	r.metrics.ObserveRun(d.Name, string(StatusComplete), out.Elapsed)
	r.metrics.ObserveDiagnostics(d.Name, res.Diagnostics, time.Now())

	log.Info("extract: complete",
		zap.Strings("outputs", paths),
		zap.Float64("assigned_km2", res.Diagnostics.Assigned),
		zap.Float64("residual_km2", res.Diagnostics.Residual()),
		zap.Duration("elapsed", out.Elapsed),
	)
	return out
}

func (r *Runner) aggregate(ctx context.Context, d dataset.Dataset, path string) (*zonal.Result, error) {
	rast, err := raster.Open(path, raster.Options{NoData: d.NoData})
	if err != nil {
		return nil, eris.Wrap(err, "extract: open raster")
	}
	scheme, err := registry.BuildScheme(d.Scheme, rast)
	if err != nil {
		return nil, eris.Wrap(err, "extract: build scheme")
	}
	reg, err := registry.New(scheme, r.vocab, registryOptions(rast.Grid(), r.opts.Lenient)...)
	if err != nil {
		return nil, eris.Wrap(err, "extract: build registry")
	}
	agg, err := zonal.New(reg, r.locator, zonal.Options{
		Model:    r.opts.Model,
		Workers:  r.opts.Workers,
		BandRows: r.opts.BandRows,
	})
	if err != nil {
		return nil, eris.Wrap(err, "extract: build aggregator")
	}
	res, err := agg.Run(ctx, rast)
	if err != nil {
		return nil, err
	}
	if err := res.Diagnostics.Check(); err != nil {
		return nil, err
	}
	return res, nil
}

func (r *Runner) fail(ctx context.Context, log *zap.Logger, out Outcome, start time.Time, err error) Outcome {
	out.Status = StatusFailed
	out.Err = err
	out.Elapsed = time.Since(start)
	log.Error("extract: failed", zap.Error(err))

	if r.store != nil && out.RunID != "" {
		// The run row is updated even when ctx was cancelled.
		if ferr := r.store.FailRun(context.WithoutCancel(ctx), out.RunID, err.Error()); ferr != nil {
			log.Warn("extract: failed to record failure", zap.Error(ferr))
		}
	}
	r.metrics.ObserveRun(out.Dataset, string(StatusFailed), out.Elapsed)
	return out
}

// registryOptions carries the raster's sentinel into the registry so that
// CategoryOf agrees with the aggregator's no-data test.
func registryOptions(g raster.Grid, lenient bool) []registry.Option {
	opts := []registry.Option{registry.WithLenient(lenient)}
	if g.HasNoData {
		opts = append(opts, registry.WithNoData(g.NoData))
	}
	return opts
}
