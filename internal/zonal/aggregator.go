// Package zonal attributes the area of every pixel of a classified raster to
// the (zone, category) it falls in.
package zonal

import (
	"context"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/raster"
	"github.com/sashkaw/spatial-aez/internal/registry"
)

// DefaultBandRows is the number of raster rows handed to a worker at a time.
const DefaultBandRows = 256

// Classifier resolves raw pixel codes to table columns.
type Classifier interface {
	Columns() []string
	CategoryOf(raw int) (registry.Category, error)
	Unclassified() (registry.Category, bool)
}

// Locator resolves a point to the zone containing it.
type Locator interface {
	CountryAt(lon, lat float64) (registry.Resolution, bool)
}

// Options tunes an Aggregator.
type Options struct {
	Model    area.Model    // default area.Ellipsoid
	Workers  int           // default runtime.NumCPU()
	BandRows int           // default DefaultBandRows
	Progress time.Duration // minimum interval between progress logs; default 10s
}

// Aggregator runs the zonal pass. It holds no per-run state and may be reused.
type Aggregator struct {
	classifier Classifier
	locator    Locator
	opts       Options
}

// New returns an Aggregator over the given lookups.
func New(classifier Classifier, locator Locator, opts Options) (*Aggregator, error) {
	if classifier == nil {
		return nil, eris.New("zonal: nil classifier")
	}
	if locator == nil {
		return nil, eris.New("zonal: nil locator")
	}
	if opts.Model == nil {
		opts.Model = area.Ellipsoid{}
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.BandRows <= 0 {
		opts.BandRows = DefaultBandRows
	}
	if opts.Progress <= 0 {
		opts.Progress = 10 * time.Second
	}
	return &Aggregator{classifier: classifier, locator: locator, opts: opts}, nil
}

// Result is the output of a successful run.
type Result struct {
	Table       *Table
	Diagnostics Diagnostics
}

// partial is one band's private accumulator.
type partial struct {
	table        *Table
	counts       Counts
	noData       int64
	unclassified int64
}

// Run aggregates r. It fails on the first unknown category in strict mode, on
// invalid grid geometry, or when ctx is cancelled; no table is returned then.
func (a *Aggregator) Run(ctx context.Context, r raster.Raster) (*Result, error) {
	g := r.Grid()
	rowArea, err := area.RowAreas(a.opts.Model, g)
	if err != nil {
		return nil, eris.Wrap(err, "zonal: pixel areas")
	}
	rowFixed := make([]int64, len(rowArea))
	for i, v := range rowArea {
		rowFixed[i] = toFixed(v)
	}
	total, err := area.GridArea(a.opts.Model, g)
	if err != nil {
		return nil, eris.Wrap(err, "zonal: grid area")
	}

	columns := a.classifier.Columns()
	nBands := (g.Rows + a.opts.BandRows - 1) / a.opts.BandRows

	log := zap.L().With(
		zap.String("component", "zonal"),
		zap.Int("rows", g.Rows),
		zap.Int("cols", g.Cols),
		zap.String("area_model", a.opts.Model.Name()),
	)
	log.Info("zonal: aggregation started",
		zap.Int("bands", nBands),
		zap.Int("workers", a.opts.Workers),
	)
	start := time.Now()

	partials := make([]*partial, nBands)
	progress := &rate.Sometimes{Interval: a.opts.Progress}
	var rowsDone atomic.Int64

	eg, gCtx := errgroup.WithContext(ctx)
	eg.SetLimit(a.opts.Workers)

	for b := 0; b < nBands; b++ {
		lo := b * a.opts.BandRows
		hi := min(lo+a.opts.BandRows, g.Rows)

		eg.Go(func() error {
			p, err := a.band(gCtx, r, g, columns, rowFixed, lo, hi)
			if err != nil {
				return err
			}
			partials[b] = p

			done := rowsDone.Add(int64(hi - lo))
			progress.Do(func() {
				log.Info("zonal: progress",
					zap.Int64("rows_done", done),
					zap.Float64("pct", 100*float64(done)/float64(g.Rows)),
				)
			})
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	// Merge in band order.
	table := NewTable(columns)
	var (
		counts       Counts
		noData       int64
		unclassified int64
	)
	for _, p := range partials {
		if err := table.Merge(p.table); err != nil {
			return nil, err
		}
		counts.add(p.counts)
		noData += p.noData
		unclassified += p.unclassified
	}
	table.Freeze()

	diag := Diagnostics{
		Assigned:      fromFixed(table.kindTotal(Country)),
		Unmapped:      fromFixed(table.kindTotal(Unmapped)),
		Rejected:      fromFixed(table.kindTotal(Rejected)),
		Unassigned:    fromFixed(table.kindTotal(Unassigned)),
		NoData:        fromFixed(noData),
		Unclassified:  fromFixed(unclassified),
		Total:         total,
		Counts:        counts,
		UnmappedZones: table.Unmapped(),
		RejectedZones: table.Rejected(),
	}

	if len(diag.UnmappedZones) > 0 {
		names := make([]string, len(diag.UnmappedZones))
		for i, z := range diag.UnmappedZones {
			names[i] = z.Name
		}
		log.Warn("zonal: boundary names missing from vocabulary",
			zap.Strings("names", names),
			zap.Float64("area_km2", diag.Unmapped),
		)
	}
	log.Info("zonal: aggregation complete",
		zap.Duration("elapsed", time.Since(start)),
		zap.Float64("assigned_km2", diag.Assigned),
		zap.Float64("unassigned_km2", diag.Unassigned),
		zap.Float64("nodata_km2", diag.NoData),
		zap.Float64("residual_km2", diag.Residual()),
	)

	return &Result{Table: table, Diagnostics: diag}, nil
}

// band aggregates rows [lo, hi) into a fresh partial table.
func (a *Aggregator) band(ctx context.Context, r raster.Raster, g raster.Grid, columns []string, rowFixed []int64, lo, hi int) (*partial, error) {
	p := &partial{table: NewTable(columns)}
	unc, hasUnc := a.classifier.Unclassified()

	for row := lo; row < hi; row++ {
		if err := ctx.Err(); err != nil {
			return nil, eris.Wrapf(err, "zonal: cancelled at row %d", row)
		}
		q := rowFixed[row]
		lat := g.CenterLat(row)

		for col := 0; col < g.Cols; col++ {
			raw := r.At(row, col)
			p.counts.Pixels++

			if g.IsNoData(raw) {
				p.counts.NoData++
				p.noData += q
				continue
			}
			cat, err := a.classifier.CategoryOf(raw)
			if err != nil {
				return nil, eris.Wrapf(&PixelError{Row: row, Col: col, Raw: raw, Err: err},
					"zonal: band rows %d-%d", lo, hi-1)
			}
			if cat == registry.NoData {
				p.counts.NoData++
				p.noData += q
				continue
			}
			if hasUnc && cat == unc {
				p.counts.Unclassified++
				p.unclassified += q
			}

			zone := ZoneOf(a.locator.CountryAt(g.CenterLon(col), lat))
			switch zone.Kind {
			case Country:
				p.counts.Assigned++
			case Unmapped:
				p.counts.Unmapped++
			case Rejected:
				p.counts.Rejected++
			case Unassigned:
				p.counts.Unassigned++
			}
			p.table.addFixed(zone, cat, q)
		}
	}
	return p, nil
}
