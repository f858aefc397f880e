package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sashkaw/spatial-aez/internal/area"
	"github.com/sashkaw/spatial-aez/internal/boundary"
	"github.com/sashkaw/spatial-aez/internal/config"
	"github.com/sashkaw/spatial-aez/internal/dataset"
	"github.com/sashkaw/spatial-aez/internal/export"
	"github.com/sashkaw/spatial-aez/internal/metrics"
	"github.com/sashkaw/spatial-aez/internal/raster"
	"github.com/sashkaw/spatial-aez/internal/registry"
	"github.com/sashkaw/spatial-aez/internal/store"
	"github.com/sashkaw/spatial-aez/internal/zonal"
)

const workGrid = `ncols 4
nrows 4
xllcorner 0
yllcorner -2
cellsize 1
NODATA_value -9999
1 1 2 2
1 1 2 2
3 3 -9999 0
3 3 7 7
`

var workDataset = dataset.Dataset{
	Name:   "wk-test",
	Group:  dataset.GroupWork,
	Raster: "wk.asc",
	Scheme: registry.SchemeWorkability,
	Output: "Workability-by-country.csv",
	Unit:   area.SquareKilometres,
}

type fixture struct {
	dataDir string
	outDir  string
	vocab   *registry.Vocabulary
	index   *boundary.Index
}

func newFixture(t *testing.T, grid string) fixture {
	t.Helper()
	root := t.TempDir()
	f := fixture{dataDir: filepath.Join(root, "data"), outDir: filepath.Join(root, "results")}
	require.NoError(t, os.MkdirAll(f.dataDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(f.dataDir, "wk.asc"), []byte(grid), 0o644))

	v, err := registry.NewVocabulary(registry.VocabularyFile{
		Version:   "test",
		Countries: []string{"Alpha", "Beta", "Gamma"},
	})
	require.NoError(t, err)
	f.vocab = v

	ix, err := boundary.NewIndex(boundary.Polygons{
		boundary.Rectangle("Alpha", 0, -2, 2, 2),
		boundary.Rectangle("Beta", 2, -2, 4, 2),
	}, v)
	require.NoError(t, err)
	f.index = ix
	return f
}

func (f fixture) options() Options {
	return Options{
		DataDir:   f.dataDir,
		OutputDir: f.outDir,
		Precision: export.DefaultPrecision,
		Workers:   2,
		BandRows:  1,
	}
}

func newStore(t *testing.T) *store.SQLiteStore {
	t.Helper()
	s, err := store.NewSQLite(filepath.Join(t.TempDir(), "runs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	require.NoError(t, s.Migrate(context.Background()))
	return s
}

func TestRun_Complete(t *testing.T) {
	f := newFixture(t, workGrid)
	st := newStore(t)
	m := metrics.New()

	r, err := New(f.vocab, f.index, f.options(), WithStore(st), WithMetrics(m))
	require.NoError(t, err)

	out := r.Run(context.Background(), workDataset)
	require.NoError(t, out.Err)
	assert.Equal(t, StatusComplete, out.Status)
	assert.NotEmpty(t, out.RunID)
	require.Equal(t, []string{filepath.Join(f.outDir, "Workability-by-country.csv")}, out.Outputs)

	data, err := os.ReadFile(out.Outputs[0])
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 4, "header plus one row per vocabulary country")
	assert.Equal(t, "Country,1,2,3,4,5,6,7", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "Alpha,"))
	assert.True(t, strings.HasPrefix(lines[2], "Beta,0.00,"))
	assert.Equal(t, "Gamma,0.00,0.00,0.00,0.00,0.00,0.00,0.00", lines[3])

	d := out.Diagnostics
	assert.Equal(t, int64(16), d.Counts.Pixels)
	assert.Equal(t, int64(14), d.Counts.Assigned)
	assert.Equal(t, int64(2), d.Counts.NoData)
	assert.NoError(t, d.Check())

	run, err := st.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusComplete, run.Status)
	assert.Equal(t, "wk-test", run.Spec.Dataset)
	assert.Equal(t, "ellipsoid", run.Spec.AreaModel)
	assert.Equal(t, "test", run.Spec.Vocab)
	require.NotNil(t, run.Result)
	assert.Equal(t, []string{"Alpha", "Beta", "Gamma"}, run.Result.Countries)

	tbl, err := store.Table(context.Background(), st, run)
	require.NoError(t, err)
	alpha := zonal.Zone{Kind: zonal.Country, Name: "Alpha"}
	assert.Greater(t, tbl.Get(alpha, "1"), 0.0)
	assert.Greater(t, tbl.Get(alpha, "3"), 0.0)
	assert.Equal(t, 0.0, tbl.Get(alpha, "7"))
}

func TestRun_AreaModelChangesOutput(t *testing.T) {
	f := newFixture(t, workGrid)

	opts := f.options()
	r, err := New(f.vocab, f.index, opts)
	require.NoError(t, err)
	ell := r.Run(context.Background(), workDataset)
	require.NoError(t, ell.Err)

	opts.Model = area.Sphere{}
	opts.OutputDir = filepath.Join(t.TempDir(), "sphere")
	r, err = New(f.vocab, f.index, opts)
	require.NoError(t, err)
	sph := r.Run(context.Background(), workDataset)
	require.NoError(t, sph.Err)

	assert.NotEqual(t, ell.Diagnostics.Total, sph.Diagnostics.Total)
}

func TestRun_MissingRasterSkipped(t *testing.T) {
	f := newFixture(t, workGrid)
	st := newStore(t)
	r, err := New(f.vocab, f.index, f.options(), WithStore(st))
	require.NoError(t, err)

	d := workDataset
	d.Raster = "absent.asc"
	out := r.Run(context.Background(), d)
	assert.Equal(t, StatusSkipped, out.Status)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.RunID)

	runs, err := st.ListRuns(context.Background(), store.RunFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs, "skipped datasets leave no run behind")
}

func TestRun_StrictUnknownCodeFails(t *testing.T) {
	f := newFixture(t, strings.Replace(workGrid, "7 7", "7 9", 1))
	st := newStore(t)
	r, err := New(f.vocab, f.index, f.options(), WithStore(st))
	require.NoError(t, err)

	out := r.Run(context.Background(), workDataset)
	assert.Equal(t, StatusFailed, out.Status)
	require.Error(t, out.Err)
	assert.ErrorIs(t, out.Err, registry.ErrUnknownCategory)

	run, err := st.GetRun(context.Background(), out.RunID)
	require.NoError(t, err)
	assert.Equal(t, store.RunStatusFailed, run.Status)
	assert.Contains(t, run.Error, "9")

	_, err = os.Stat(filepath.Join(f.outDir, "Workability-by-country.csv"))
	assert.True(t, os.IsNotExist(err), "no table is written for a failed run")
}

func TestRun_LenientAddsUnclassified(t *testing.T) {
	f := newFixture(t, strings.Replace(workGrid, "7 7", "7 9", 1))
	opts := f.options()
	opts.Lenient = true
	r, err := New(f.vocab, f.index, opts)
	require.NoError(t, err)

	out := r.Run(context.Background(), workDataset)
	require.NoError(t, out.Err)
	assert.Equal(t, int64(1), out.Diagnostics.Counts.Unclassified)

	data, err := os.ReadFile(out.Outputs[0])
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), "Country,1,2,3,4,5,6,7,Unclassified\n"))
}

func TestRunAll_ReportAndTextfile(t *testing.T) {
	f := newFixture(t, workGrid)
	opts := f.options()
	opts.Formats = []export.Format{export.CSV, export.XLSX}
	opts.Parallel = 2
	opts.Textfile = filepath.Join(t.TempDir(), "aez.prom")

	r, err := New(f.vocab, f.index, opts, WithMetrics(metrics.New()))
	require.NoError(t, err)

	missing := workDataset
	missing.Name = "wk-missing"
	missing.Raster = "absent.asc"
	missing.Optional = true
	broken := workDataset
	broken.Name = "wk-broken"
	broken.Scheme = "no-such-scheme"
	broken.Output = "Broken.csv"

	report, err := r.RunAll(context.Background(), []dataset.Dataset{workDataset, missing, broken})
	require.NoError(t, err)
	require.Len(t, report.Outcomes, 3)
	assert.Equal(t, "wk-test", report.Outcomes[0].Dataset)
	assert.Equal(t, StatusComplete, report.Outcomes[0].Status)
	assert.Len(t, report.Outcomes[0].Outputs, 2)
	assert.Equal(t, StatusSkipped, report.Outcomes[1].Status)
	assert.Equal(t, StatusFailed, report.Outcomes[2].Status)

	assert.Equal(t, 1, report.Count(StatusComplete))
	require.Error(t, report.Err())
	assert.Contains(t, report.Err().Error(), "wk-broken")

	prom, err := os.ReadFile(opts.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `aez_runs_total{dataset="wk-test",status="complete"} 1`)
	assert.Contains(t, string(prom), `aez_runs_total{dataset="wk-broken",status="failed"} 1`)
}

func TestRunAll_Cancelled(t *testing.T) {
	f := newFixture(t, workGrid)
	r, err := New(f.vocab, f.index, f.options())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := r.RunAll(ctx, []dataset.Dataset{workDataset})
	assert.ErrorIs(t, err, context.Canceled)
	require.Len(t, report.Outcomes, 1)
	assert.Equal(t, StatusFailed, report.Outcomes[0].Status)
}

func TestNew_Validation(t *testing.T) {
	f := newFixture(t, workGrid)
	_, err := New(nil, f.index, Options{})
	assert.Error(t, err)
	_, err = New(f.vocab, nil, Options{})
	assert.Error(t, err)
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := &config.Config{}
	cfg.Data.Dir = "data"
	cfg.Extract = config.ExtractConfig{
		OutputDir: "out",
		Workers:   3,
		BandRows:  64,
		Strict:    false,
		Precision: 1,
		AreaModel: "sphere",
		Units:     "ha",
		Formats:   []string{"xlsx"},
	}
	cfg.Metrics.Textfile = "aez.prom"

	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, "data", opts.DataDir)
	assert.Equal(t, "out", opts.OutputDir)
	assert.Equal(t, []export.Format{export.XLSX}, opts.Formats)
	assert.Equal(t, area.Hectares, opts.Unit)
	assert.Equal(t, "sphere", opts.Model.Name())
	assert.True(t, opts.Lenient)
	assert.Equal(t, 3, opts.Workers)
	assert.Equal(t, "aez.prom", opts.Textfile)

	cfg.Extract.Units = "acres"
	_, err = OptionsFromConfig(cfg)
	assert.Error(t, err)
}

func TestRegistryOptions_CarrySentinel(t *testing.T) {
	scheme, err := registry.BuildScheme(registry.SchemeWorkability, nil)
	require.NoError(t, err)
	v, err := registry.NewVocabulary(registry.VocabularyFile{Countries: []string{"Alpha"}})
	require.NoError(t, err)

	reg, err := registry.New(scheme, v, registryOptions(raster.Grid{NoData: 3, HasNoData: true}, false)...)
	require.NoError(t, err)
	cat, err := reg.CategoryOf(3)
	require.NoError(t, err)
	assert.Equal(t, registry.NoData, cat)

	reg, err = registry.New(scheme, v, registryOptions(raster.Grid{}, true)...)
	require.NoError(t, err)
	cat, err = reg.CategoryOf(3)
	require.NoError(t, err)
	assert.NotEqual(t, registry.NoData, cat)
	assert.True(t, reg.Lenient())
}
