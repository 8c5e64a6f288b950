package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/cenkalti/backoff/v4"
	"github.com/pressly/goose/v3"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/idcs-tools/scimctl/assets"
	"github.com/idcs-tools/scimctl/internal/submit"
	"github.com/idcs-tools/scimctl/pkg/logger"
)

var tracer = otel.Tracer("internal/journal")

func startTrace(ctx context.Context, name string) (context.Context, trace.Span) {
	return tracer.Start(ctx, "sqlite."+name)
}

// SQLite stores the journal in a SQLite database file.
type SQLite struct {
	stbl   sq.StatementBuilderType
	db     *sql.DB
	logger logger.Logger
}

var _ Journal = (*SQLite)(nil)

// PrepareDSN sets the WAL journal mode and a busy timeout unless the path
// already specifies them.
func PrepareDSN(uri string) (string, error) {
	query := url.Values{}
	var err error

	if i := strings.Index(uri, "?"); i != -1 {
		query, err = url.ParseQuery(uri[i+1:])
		if err != nil {
			return uri, fmt.Errorf("error parsing dsn: %w", err)
		}
		uri = uri[:i]
	}

	foundJournalMode := false
	foundBusyTimeout := false
	for _, val := range query["_pragma"] {
		if strings.HasPrefix(val, "journal_mode") {
			foundJournalMode = true
		} else if strings.HasPrefix(val, "busy_timeout") {
			foundBusyTimeout = true
		}
	}

	if !foundJournalMode {
		query.Add("_pragma", "journal_mode(WAL)")
	}
	if !foundBusyTimeout {
		query.Add("_pragma", "busy_timeout(1000)")
	}
	query.Add("_pragma", "foreign_keys(1)")

	return uri + "?" + query.Encode(), nil
}

// Open opens the journal at path and migrates it to the latest schema. The
// database is pinged until timeout elapses.
func Open(ctx context.Context, path string, timeout time.Duration, log logger.Logger) (*SQLite, error) {
	dsn, err := PrepareDSN(path)
	if err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite connection: %w", err)
	}

	policy := backoff.NewExponentialBackOff()
	policy.MaxElapsedTime = timeout
	err = backoff.Retry(func() error {
		return db.PingContext(ctx)
	}, backoff.WithContext(policy, ctx))
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("ping journal database: %w", err)
	}

	if err := migrate(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	log.Debug("journal ready", zap.String("path", path))

	return &SQLite{
		stbl:   sq.StatementBuilder.RunWith(db),
		db:     db,
		logger: log,
	}, nil
}

func migrate(ctx context.Context, db *sql.DB) error {
	goose.SetLogger(goose.NopLogger())
	goose.SetBaseFS(assets.EmbedMigrations)

	if err := goose.SetDialect("sqlite"); err != nil {
		return fmt.Errorf("failed to set sqlite dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, assets.SqliteMigrationDir); err != nil {
		return fmt.Errorf("failed to run journal migrations: %w", err)
	}
	return nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) StartRun(ctx context.Context, run Run) error {
	ctx, span := startTrace(ctx, "StartRun")
	defer span.End()

	_, err := s.stbl.
		Insert("runs").
		Columns("id", "command", "client_id", "started_at").
		Values(run.ID, run.Command, run.ClientID, formatTime(run.StartedAt)).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}
	return nil
}

func (s *SQLite) RecordBatch(ctx context.Context, runID string, outcome submit.Outcome) error {
	ctx, span := startTrace(ctx, "RecordBatch")
	defer span.End()

	rec := batchRecord(runID, outcome)
	_, err := s.stbl.
		Insert("batches").
		Columns("run_id", "task", "operations", "outcome", "error", "operation_failures", "duration_ms").
		Values(rec.RunID, rec.Task, rec.Operations, rec.Outcome, nullString(rec.Error), rec.OperationFailures, rec.Duration.Milliseconds()).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}
	return nil
}

func (s *SQLite) FinishRun(ctx context.Context, runID string, result Result) error {
	ctx, span := startTrace(ctx, "FinishRun")
	defer span.End()

	var errText string
	if result.Err != nil {
		errText = result.Err.Error()
	}

	res, err := s.stbl.
		Update("runs").
		Set("finished_at", formatTime(time.Now())).
		Set("discovered", result.Discovered).
		Set("batches", result.Batches).
		Set("succeeded", result.Succeeded).
		Set("failed", result.Failed).
		Set("operation_failures", result.OperationFailures).
		Set("error", nullString(errText)).
		Where(sq.Eq{"id": runID}).
		ExecContext(ctx)
	if err != nil {
		return HandleSQLError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return HandleSQLError(err)
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	return nil
}

// Runs returns the most recent runs, newest first.
func (s *SQLite) Runs(ctx context.Context, limit uint64) ([]RunRecord, error) {
	ctx, span := startTrace(ctx, "Runs")
	defer span.End()

	rows, err := s.stbl.
		Select("id", "command", "client_id", "started_at", "finished_at",
			"discovered", "batches", "succeeded", "failed", "operation_failures", "error").
		From("runs").
		OrderBy("started_at DESC", "id DESC").
		Limit(limit).
		QueryContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer rows.Close()

	var runs []RunRecord
	for rows.Next() {
		var (
			rec        RunRecord
			startedAt  string
			finishedAt sql.NullString
			errText    sql.NullString
		)
		err := rows.Scan(&rec.ID, &rec.Command, &rec.ClientID, &startedAt, &finishedAt,
			&rec.Discovered, &rec.Batches, &rec.Succeeded, &rec.Failed, &rec.OperationFailures, &errText)
		if err != nil {
			return nil, HandleSQLError(err)
		}

		if rec.StartedAt, err = parseTime(startedAt); err != nil {
			return nil, err
		}
		if finishedAt.Valid {
			t, err := parseTime(finishedAt.String)
			if err != nil {
				return nil, err
			}
			rec.FinishedAt = &t
		}
		rec.Error = errText.String
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, HandleSQLError(err)
	}
	return runs, nil
}

// Batches returns the bulk requests of a run ordered by task number.
func (s *SQLite) Batches(ctx context.Context, runID string) ([]BatchRecord, error) {
	ctx, span := startTrace(ctx, "Batches")
	defer span.End()

	rows, err := s.stbl.
		Select("run_id", "task", "operations", "outcome", "error", "operation_failures", "duration_ms").
		From("batches").
		Where(sq.Eq{"run_id": runID}).
		OrderBy("task").
		QueryContext(ctx)
	if err != nil {
		return nil, HandleSQLError(err)
	}
	defer rows.Close()

	var batches []BatchRecord
	for rows.Next() {
		var (
			rec        BatchRecord
			errText    sql.NullString
			durationMs int64
		)
		if err := rows.Scan(&rec.RunID, &rec.Task, &rec.Operations, &rec.Outcome, &errText, &rec.OperationFailures, &durationMs); err != nil {
			return nil, HandleSQLError(err)
		}
		rec.Error = errText.String
		rec.Duration = time.Duration(durationMs) * time.Millisecond
		batches = append(batches, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, HandleSQLError(err)
	}
	return batches, nil
}

// HandleSQLError maps driver errors to the journal errors.
func HandleSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}

	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) && sqliteErr.Code()&0xFF == sqlite3.SQLITE_CONSTRAINT {
		return ErrCollision
	}

	return fmt.Errorf("sql error: %w", err)
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse journal timestamp %q: %w", s, err)
	}
	return t, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
