package jobs

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schemaSQL string

const schemaVersion = 1

// ErrNotFound is returned when a job id does not exist.
var ErrNotFound = errors.New("job not found")

// Store is the SQLite-backed job log.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the job database under stateDir.
func Open(stateDir string) (*Store, error) {
	if err := os.MkdirAll(stateDir, 0o755); err != nil {
		return nil, fmt.Errorf("create state directory: %w", err)
	}
	dbPath := filepath.Join(stateDir, "jobs.db")

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)")
	if err != nil {
		return nil, fmt.Errorf("open job database: %w", err)
	}
	// modernc.org/sqlite connections do not share in-memory state; a single
	// connection avoids SQLITE_BUSY under concurrent webhooks.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	if _, err := s.db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	var version int
	err := s.db.QueryRow("SELECT version FROM schema_info LIMIT 1").Scan(&version)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := s.db.Exec("INSERT INTO schema_info (version) VALUES (?)", schemaVersion); err != nil {
			return fmt.Errorf("record schema version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read schema version: %w", err)
	case version != schemaVersion:
		return fmt.Errorf("job database schema version %d, expected %d", version, schemaVersion)
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Create records a new running job and returns it.
func (s *Store) Create(ctx context.Context, title, fingerprint, mode string) (*Job, error) {
	now := time.Now().UTC()
	job := &Job{
		ID:          uuid.New().String(),
		Title:       title,
		Fingerprint: fingerprint,
		Mode:        mode,
		Status:      StatusRunning,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO jobs (id, title, filename, fingerprint, mode, status, error_message, created_at, updated_at)
		 VALUES (?, ?, '', ?, ?, ?, '', ?, ?)`,
		job.ID, job.Title, job.Fingerprint, job.Mode, string(job.Status),
		formatTime(job.CreatedAt), formatTime(job.UpdatedAt))
	if err != nil {
		return nil, fmt.Errorf("insert job: %w", err)
	}
	return job, nil
}

// SetFilename records the filename a job's transcript was stored under.
func (s *Store) SetFilename(ctx context.Context, id, filename string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET filename = ?, updated_at = ? WHERE id = ?",
		filename, formatTime(time.Now().UTC()), id)
	if err != nil {
		return fmt.Errorf("update job filename: %w", err)
	}
	return requireRow(res)
}

// Finish moves a job to a terminal status.
func (s *Store) Finish(ctx context.Context, id string, status Status, errorMessage string) error {
	if !status.Terminal() {
		return fmt.Errorf("status %q is not terminal", status)
	}
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error_message = ?, updated_at = ?, completed_at = ? WHERE id = ?",
		string(status), errorMessage, now, now, id)
	if err != nil {
		return fmt.Errorf("finish job: %w", err)
	}
	return requireRow(res)
}

// Get returns a job by id.
func (s *Store) Get(ctx context.Context, id string) (*Job, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return job, err
}

// List returns the newest jobs, optionally filtered by status.
func (s *Store) List(ctx context.Context, status Status, limit int) ([]*Job, error) {
	if limit <= 0 {
		limit = 50
	}
	query := selectColumns
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var out []*Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, job)
	}
	return out, rows.Err()
}

// CountByStatus returns job counts per status.
func (s *Store) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

// RecoverInterrupted fails any job still marked running, called once at
// startup. A running job at boot means the previous daemon died mid-flight.
func (s *Store) RecoverInterrupted(ctx context.Context) (int, error) {
	now := formatTime(time.Now().UTC())
	res, err := s.db.ExecContext(ctx,
		"UPDATE jobs SET status = ?, error_message = 'interrupted by daemon restart', updated_at = ?, completed_at = ? WHERE status = ?",
		string(StatusFailed), now, now, string(StatusRunning))
	if err != nil {
		return 0, fmt.Errorf("recover interrupted jobs: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}

const selectColumns = "SELECT id, title, filename, fingerprint, mode, status, error_message, created_at, updated_at, completed_at FROM jobs"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*Job, error) {
	var job Job
	var status, createdAt, updatedAt string
	var completedAt sql.NullString
	if err := row.Scan(&job.ID, &job.Title, &job.Filename, &job.Fingerprint, &job.Mode,
		&status, &job.ErrorMessage, &createdAt, &updatedAt, &completedAt); err != nil {
		return nil, err
	}
	job.Status = Status(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	if completedAt.Valid {
		t := parseTime(completedAt.String)
		job.CompletedAt = &t
	}
	return &job, nil
}

func requireRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func formatTime(t time.Time) string {
	return t.Format(time.RFC3339Nano)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
