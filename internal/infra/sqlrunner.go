package infra

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
)

// SQLExecutor is the query surface repositories depend on.
type SQLExecutor interface {
	Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, query string, args ...any) pgx.Row
	Query(ctx context.Context, query string, args ...any) (pgx.Rows, error)
}

// ErrMissingMarker is returned for queries not tagged with a "--sql <uuid>" first line.
var ErrMissingMarker = errors.New("sql marker missing or invalid")

// DefaultSlowQuery is the latency above which statements are logged at warn level.
const DefaultSlowQuery = 500 * time.Millisecond

var markerRegexp = regexp.MustCompile(`^--sql ([0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12})$`)

// SQLRunner strips the marker from each query, runs it on the underlying pool
// and logs the outcome keyed by marker instead of the statement text.
type SQLRunner struct {
	db        SQLExecutor
	logger    zerolog.Logger
	slowQuery time.Duration
}

// NewSQLRunner wraps a pgxpool.Pool, or anything else with the same query methods.
func NewSQLRunner(db SQLExecutor, logger zerolog.Logger) *SQLRunner {
	return &SQLRunner{db: db, logger: logger, slowQuery: DefaultSlowQuery}
}

// WithSlowQuery overrides the warn threshold. Non-positive values disable it.
func (r *SQLRunner) WithSlowQuery(d time.Duration) *SQLRunner {
	r.slowQuery = d
	return r
}

func (r *SQLRunner) Exec(ctx context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return pgconn.CommandTag{}, err
	}
	start := time.Now()
	tag, err := r.db.Exec(ctx, body, args...)
	r.observe("exec", marker, start, err).Int64("rows", tag.RowsAffected()).Msg("sql: exec")
	return tag, err
}

func (r *SQLRunner) QueryRow(ctx context.Context, query string, args ...any) pgx.Row {
	marker, body, err := extractMarker(query)
	if err != nil {
		return errorRow{err: err}
	}
	return loggingRow{row: r.db.QueryRow(ctx, body, args...), runner: r, marker: marker, start: time.Now()}
}

func (r *SQLRunner) Query(ctx context.Context, query string, args ...any) (pgx.Rows, error) {
	marker, body, err := extractMarker(query)
	if err != nil {
		return nil, err
	}
	start := time.Now()
	rows, err := r.db.Query(ctx, body, args...)
	if err != nil {
		r.observe("query", marker, start, err).Msg("sql: query")
		return nil, err
	}
	return loggingRows{Rows: rows, runner: r, marker: marker, start: start}, nil
}

// observe picks the level for one statement: error on failure, warn when slow, debug otherwise.
func (r *SQLRunner) observe(op, marker string, start time.Time, err error) *zerolog.Event {
	elapsed := time.Since(start)
	var ev *zerolog.Event
	switch {
	case err != nil && !errors.Is(err, pgx.ErrNoRows):
		ev = r.logger.Error().Err(err)
	case r.slowQuery > 0 && elapsed >= r.slowQuery:
		ev = r.logger.Warn().Bool("slow", true)
	default:
		ev = r.logger.Debug()
	}
	if errors.Is(err, pgx.ErrNoRows) {
		ev = ev.Bool("no_rows", true)
	}
	return ev.Str("op", op).Str("sql", marker).Dur("elapsed", elapsed)
}

type loggingRow struct {
	row    pgx.Row
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l loggingRow) Scan(dest ...any) error {
	err := l.row.Scan(dest...)
	l.runner.observe("query_row", l.marker, l.start, err).Msg("sql: query_row")
	return err
}

type loggingRows struct {
	pgx.Rows
	runner *SQLRunner
	marker string
	start  time.Time
}

func (l loggingRows) Close() {
	l.Rows.Close()
	l.runner.observe("query", l.marker, l.start, l.Rows.Err()).Msg("sql: query")
}

type errorRow struct {
	err error
}

func (e errorRow) Scan(dest ...any) error {
	return e.err
}

// extractMarker returns the marker uuid and the statement without its marker line.
func extractMarker(query string) (string, string, error) {
	trimmed := strings.TrimSpace(query)
	if trimmed == "" {
		return "", "", errors.New("empty query")
	}
	first, rest, _ := strings.Cut(trimmed, "\n")
	m := markerRegexp.FindStringSubmatch(strings.TrimSpace(first))
	if m == nil {
		return "", "", ErrMissingMarker
	}
	return m[1], rest, nil
}

var _ SQLExecutor = (*SQLRunner)(nil)
