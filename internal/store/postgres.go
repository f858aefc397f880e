package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sashkaw/spatial-aez/internal/db"
	"github.com/sashkaw/spatial-aez/internal/zonal"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

var cellsUpsert = db.UpsertConfig{
	Table:        "area_cells",
	Columns:      []string{"run_id", "kind", "zone", "category", "area_km2"},
	ConflictKeys: []string{"run_id", "kind", "zone", "category"},
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	dataset    TEXT NOT NULL,
	spec       JSONB NOT NULL,
	status     TEXT NOT NULL DEFAULT 'running',
	result     JSONB,
	error      TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS area_cells (
	run_id   TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	kind     TEXT NOT NULL,
	zone     TEXT NOT NULL,
	category TEXT NOT NULL,
	area_km2 DOUBLE PRECISION NOT NULL,
	PRIMARY KEY (run_id, kind, zone, category)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_dataset ON runs(dataset);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) CreateRun(ctx context.Context, spec RunSpec) (*Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	specJSON, err := json.Marshal(spec)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: marshal spec")
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, dataset, spec, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, spec.Dataset, specJSON, string(RunStatusRunning), now, now,
	)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
	}

	return &Run{
		ID:        id,
		Spec:      spec,
		Status:    RunStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// CompleteRun stores the result and the cells in one transaction. Cells of a
// first completion are streamed with COPY; recording an already complete run
// again upserts them, leaving one copy of each cell.
func (s *PostgresStore) CompleteRun(ctx context.Context, runID string, result RunResult, cells []zonal.Cell) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin tx")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var prior string
	err = tx.QueryRow(ctx, `SELECT status FROM runs WHERE id = $1 FOR UPDATE`, runID).Scan(&prior)
	if errors.Is(err, pgx.ErrNoRows) {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	if err != nil {
		return eris.Wrapf(err, "postgres: lock run %s", runID)
	}

	if _, err := tx.Exec(ctx,
		`UPDATE runs SET result = $1, status = $2, error = NULL, updated_at = $3 WHERE id = $4`,
		resultJSON, string(RunStatusComplete), time.Now().UTC(), runID,
	); err != nil {
		return eris.Wrapf(err, "postgres: complete run %s", runID)
	}

	rows := make([][]any, len(cells))
	for i, c := range cells {
		rows[i] = []any{runID, c.Zone.Kind.String(), c.Zone.Name, c.Category, c.Area}
	}
	if prior == string(RunStatusComplete) {
		_, err = db.UpsertTx(ctx, tx, cellsUpsert, rows)
	} else {
		_, err = db.CopyFrom(ctx, tx, cellsUpsert.Table, cellsUpsert.Columns, rows)
	}
	if err != nil {
		return err
	}

	return eris.Wrap(tx.Commit(ctx), "postgres: commit run")
}

func (s *PostgresStore) FailRun(ctx context.Context, runID string, reason string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, error = $2, updated_at = $3 WHERE id = $4`,
		string(RunStatusFailed), reason, time.Now().UTC(), runID,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: fail run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Wrapf(ErrNotFound, "run %s", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, spec, status, result, error, created_at, updated_at FROM runs WHERE id = $1`,
		runID,
	)
	r, err := scanPgRun(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: get run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]Run, error) {
	query := `SELECT id, spec, status, result, error, created_at, updated_at FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	if filter.Dataset != "" {
		query += fmt.Sprintf(` AND dataset = $%d`, argIdx)
		args = append(args, filter.Dataset)
		argIdx++
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limit)
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListCells(ctx context.Context, runID string) ([]zonal.Cell, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT kind, zone, category, area_km2 FROM area_cells WHERE run_id = $1 ORDER BY kind, zone, category`,
		runID,
	)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list cells %s", runID)
	}
	defer rows.Close()

	var cells []zonal.Cell
	for rows.Next() {
		var kind string
		var c zonal.Cell
		if err := rows.Scan(&kind, &c.Zone.Name, &c.Category, &c.Area); err != nil {
			return nil, eris.Wrap(err, "postgres: scan cell")
		}
		if c.Zone.Kind, err = zonal.ParseZoneKind(kind); err != nil {
			return nil, err
		}
		cells = append(cells, c)
	}
	return cells, eris.Wrap(rows.Err(), "postgres: list cells iterate")
}

func scanPgRun(row pgx.Row) (*Run, error) {
	var r Run
	var specJSON []byte
	var resultJSON *[]byte
	var status string
	var errMsg *string

	if err := row.Scan(&r.ID, &specJSON, &status, &resultJSON, &errMsg, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	r.Status = RunStatus(status)
	if err := json.Unmarshal(specJSON, &r.Spec); err != nil {
		return nil, eris.Wrap(err, "postgres: unmarshal spec")
	}
	if resultJSON != nil {
		r.Result = &RunResult{}
		if err := json.Unmarshal(*resultJSON, r.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	if errMsg != nil {
		r.Error = *errMsg
	}
	return &r, nil
}
