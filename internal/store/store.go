package store

import (
	"context"
	"errors"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/zonal"
)

// ErrNotFound is returned when a run does not exist.
var ErrNotFound = errors.New("not found")

// RunStatus is the lifecycle state of an extraction run.
type RunStatus string

// Run statuses.
const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// RunSpec is what was asked for when a run started.
type RunSpec struct {
	Dataset   string `json:"dataset"`
	Scheme    string `json:"scheme"`
	Raster    string `json:"raster"`
	AreaModel string `json:"area_model"`
	Unit      string `json:"unit"`
	Lenient   bool   `json:"lenient"`
	Vocab     string `json:"vocabulary_version,omitempty"`
}

// RunResult is what a completed run produced.
type RunResult struct {
	Columns     []string          `json:"columns"`
	Countries   []string          `json:"countries"`
	Outputs     []string          `json:"outputs,omitempty"`
	Diagnostics zonal.Diagnostics `json:"diagnostics"`
}

// Run is one stored extraction.
type Run struct {
	ID        string     `json:"id"`
	Spec      RunSpec    `json:"spec"`
	Status    RunStatus  `json:"status"`
	Result    *RunResult `json:"result,omitempty"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// RunFilter specifies criteria for listing runs.
type RunFilter struct {
	Status  RunStatus `json:"status,omitempty"`
	Dataset string    `json:"dataset,omitempty"`
	Limit   int       `json:"limit,omitempty"`
	Offset  int       `json:"offset,omitempty"`
}

const defaultListLimit = 100

// Store persists run history and the area cells of completed runs.
type Store interface {
	// Runs
	CreateRun(ctx context.Context, spec RunSpec) (*Run, error)
	CompleteRun(ctx context.Context, runID string, result RunResult, cells []zonal.Cell) error
	FailRun(ctx context.Context, runID string, reason string) error
	GetRun(ctx context.Context, runID string) (*Run, error)
	ListRuns(ctx context.Context, filter RunFilter) ([]Run, error)

	// Cells
	ListCells(ctx context.Context, runID string) ([]zonal.Cell, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// Table rebuilds the frozen result table of a completed run.
func Table(ctx context.Context, s Store, run *Run) (*zonal.Table, error) {
	if run.Status != RunStatusComplete || run.Result == nil {
		return nil, eris.Errorf("store: run %s has no result", run.ID)
	}
	cells, err := s.ListCells(ctx, run.ID)
	if err != nil {
		return nil, err
	}
	return zonal.TableFromCells(run.Result.Columns, cells)
}

// Open returns the store for driver ("sqlite" or "postgres") without
// migrating it.
func Open(ctx context.Context, driver, dsn string) (Store, error) {
	switch driver {
	case "", "sqlite":
		if dsn == "" {
			dsn = "aez.db"
		}
		return NewSQLite(dsn)
	case "postgres":
		if dsn == "" {
			return nil, eris.New("store: postgres requires a database url")
		}
		return NewPostgres(ctx, dsn, nil)
	default:
		return nil, eris.Errorf("store: unsupported driver %q", driver)
	}
}
