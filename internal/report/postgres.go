package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/obiente/translate/batchscribe/internal/domain"
)

var outcomeColumns = []string{"run_id", "file_path", "status", "transcript", "error_msg"}

type copier interface {
	CopyFrom(ctx context.Context, table pgx.Identifier, columns []string, src pgx.CopyFromSource) (int64, error)
}

// PostgresWriter mirrors report rows into a table, tagged with the run ID.
type PostgresWriter struct {
	db      copier
	close   func()
	table   pgx.Identifier
	runID   string
	timeout time.Duration
}

// OpenPostgres connects, creates the table if needed and returns a writer for runID.
func OpenPostgres(ctx context.Context, dsn, table, runID string) (*PostgresWriter, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect report db: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping report db: %w", err)
	}

	ident := tableIdent(table)
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id          BIGSERIAL PRIMARY KEY,
	run_id      TEXT NOT NULL,
	file_path   TEXT NOT NULL,
	status      TEXT NOT NULL CHECK (status IN ('success', 'failed')),
	transcript  TEXT,
	error_msg   TEXT,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now()
)`, ident.Sanitize())
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("create report table: %w", err)
	}

	w := newPostgresWriter(pool, ident, runID)
	w.close = pool.Close
	return w, nil
}

func newPostgresWriter(db copier, table pgx.Identifier, runID string) *PostgresWriter {
	return &PostgresWriter{db: db, table: table, runID: runID, timeout: 30 * time.Second}
}

func tableIdent(name string) pgx.Identifier {
	return pgx.Identifier(strings.Split(name, "."))
}

func nullable(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func (w *PostgresWriter) Write(rows []domain.Outcome) error {
	data := make([][]any, len(rows))
	for i, o := range rows {
		data[i] = []any{w.runID, o.Path, string(o.Status), nullable(o.Transcript), nullable(o.Error)}
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.timeout)
	defer cancel()
	n, err := w.db.CopyFrom(ctx, w.table, outcomeColumns, pgx.CopyFromRows(data))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", w.table.Sanitize(), err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("copy into %s: wrote %d of %d rows", w.table.Sanitize(), n, len(rows))
	}
	return nil
}

func (w *PostgresWriter) Close() error {
	if w.close != nil {
		w.close()
	}
	return nil
}
