package migrations

import (
	"context"
	"database/sql"
	"io/fs"

	gerrors "github.com/go-faster/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

type Runner struct {
	db       *sql.DB
	provider *goose.Provider
}

// NewRunner wraps pool in a database/sql handle for goose. Close releases the
// handle but leaves the pool open.
func NewRunner(pool *pgxpool.Pool) (*Runner, error) {
	sub, err := fs.Sub(FS, OrgDir)
	if err != nil {
		return nil, gerrors.Wrap(err, "open embedded migrations")
	}
	db := stdlib.OpenDBFromPool(pool)
	provider, err := goose.NewProvider(goose.DialectPostgres, db, sub)
	if err != nil {
		_ = db.Close()
		return nil, gerrors.Wrap(err, "init goose provider")
	}
	return &Runner{db: db, provider: provider}, nil
}

type Result struct {
	Version    int64  `json:"version"`
	Path       string `json:"path"`
	Direction  string `json:"direction,omitempty"`
	State      string `json:"state,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func (r *Runner) Up(ctx context.Context) ([]Result, error) {
	results, err := r.provider.Up(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "migrate up")
	}
	out := make([]Result, 0, len(results))
	for _, res := range results {
		out = append(out, fromMigrationResult(res))
	}
	return out, nil
}

func (r *Runner) Down(ctx context.Context) (*Result, error) {
	res, err := r.provider.Down(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "migrate down")
	}
	out := fromMigrationResult(res)
	return &out, nil
}

func (r *Runner) Status(ctx context.Context) ([]Result, error) {
	statuses, err := r.provider.Status(ctx)
	if err != nil {
		return nil, gerrors.Wrap(err, "migrate status")
	}
	out := make([]Result, 0, len(statuses))
	for _, st := range statuses {
		if st == nil || st.Source == nil {
			continue
		}
		out = append(out, Result{
			Version: st.Source.Version,
			Path:    st.Source.Path,
			State:   string(st.State),
		})
	}
	return out, nil
}

func (r *Runner) Close() error {
	return r.db.Close()
}

func fromMigrationResult(res *goose.MigrationResult) Result {
	if res == nil || res.Source == nil {
		return Result{}
	}
	return Result{
		Version:    res.Source.Version,
		Path:       res.Source.Path,
		Direction:  res.Direction,
		DurationMS: res.Duration.Milliseconds(),
	}
}
