// Package history keeps a local DuckDB log of finished runs.
package history

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/genai-analyzer/demo/internal/logging"
	"github.com/genai-analyzer/demo/internal/models"
	"github.com/google/uuid"
	"github.com/labstack/gommon/log"
	"github.com/marcboeker/go-duckdb"
	"github.com/vmihailenco/msgpack/v5"
)

// Lookup errors.
var (
	ErrNotFound  = errors.New("run not found")
	ErrAmbiguous = errors.New("run id prefix matches more than one run")
)

// Record is one finished run.
type Record struct {
	ID         string
	RunID      string
	Mode       models.Mode
	Live       bool
	Outcome    string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time
	Files      []models.FileRef
	Config     models.RunConfiguration
	Result     string
}

// Duration is how long the run took.
func (r Record) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// NewRecord captures a terminal run state.
func NewRecord(st models.RunState, cfg models.RunConfiguration, files []models.FileRef) Record {
	return Record{
		ID:         uuid.New().String(),
		RunID:      st.RunID,
		Mode:       cfg.Mode,
		Live:       st.Live,
		Outcome:    st.Outcome(),
		Error:      st.Error,
		StartedAt:  st.StartedAt,
		FinishedAt: st.FinishedAt,
		Files:      files,
		Config:     cfg,
		Result:     st.Result,
	}
}

// Options tunes the DuckDB connection.
type Options struct {
	Threads     int
	MemoryLimit string
}

// Store is the run history database.
type Store struct {
	db   *sql.DB
	path string
	log  *log.Logger
}

// Open opens or creates the history database at path.
func Open(path string, opts Options) (*Store, error) {
	logger := logging.New("History")

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}
	if opts.Threads <= 0 {
		opts.Threads = 2
	}
	if opts.MemoryLimit == "" {
		opts.MemoryLimit = "256MB"
	}

	connector, err := duckdb.NewConnector(path, func(execer driver.ExecerContext) error {
		pragmas := []string{
			fmt.Sprintf("PRAGMA memory_limit='%s'", opts.MemoryLimit),
			fmt.Sprintf("PRAGMA threads=%d", opts.Threads),
			"PRAGMA enable_progress_bar=false",
		}
		for _, pragma := range pragmas {
			if _, err := execer.ExecContext(context.Background(), pragma, nil); err != nil {
				logger.Warnf("pragma %q failed: %v", pragma, err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create DuckDB connector: %w", err)
	}

	db := sql.OpenDB(connector)
	_, err = db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          VARCHAR PRIMARY KEY,
			run_id      VARCHAR NOT NULL,
			mode        VARCHAR NOT NULL,
			live        BOOLEAN NOT NULL,
			outcome     VARCHAR NOT NULL,
			error       VARCHAR,
			started_at  TIMESTAMP,
			finished_at TIMESTAMP,
			files       BLOB,
			config      BLOB,
			result      VARCHAR
		)
	`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create runs table: %w", err)
	}

	logger.Debugf("opened %s", path)
	return &Store{db: db, path: path, log: logger}, nil
}

// Path is the database file.
func (s *Store) Path() string {
	return s.path
}

// Record stores a finished run.
func (s *Store) Record(ctx context.Context, rec Record) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	files, err := msgpack.Marshal(rec.Files)
	if err != nil {
		return fmt.Errorf("failed to encode files: %w", err)
	}
	cfg, err := msgpack.Marshal(rec.Config)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, run_id, mode, live, outcome, error, started_at, finished_at, files, config, result)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.RunID, string(rec.Mode), rec.Live, rec.Outcome, rec.Error,
		nullTime(rec.StartedAt), nullTime(rec.FinishedAt), files, cfg, rec.Result)
	if err != nil {
		return fmt.Errorf("failed to insert run: %w", err)
	}
	s.log.Infof("[Run %s] recorded %s", logging.ShortID(rec.RunID), rec.Outcome)
	return nil
}

// List returns up to limit runs, newest first. A non-positive limit returns all.
func (s *Store) List(ctx context.Context, limit int) ([]Record, error) {
	query := `
		SELECT id, run_id, mode, live, outcome, error, started_at, finished_at, files, config, result
		FROM runs
		ORDER BY finished_at DESC NULLS LAST, started_at DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read runs: %w", err)
	}
	return out, nil
}

// Get returns one run by record ID or run ID prefix.
func (s *Store) Get(ctx context.Context, id string) (Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, mode, live, outcome, error, started_at, finished_at, files, config, result
		FROM runs
		WHERE id = ? OR starts_with(run_id, ?) OR starts_with(id, ?)
		ORDER BY finished_at DESC NULLS LAST
		LIMIT 2`, id, id, id)
	if err != nil {
		return Record{}, fmt.Errorf("failed to query run: %w", err)
	}
	defer rows.Close()

	var found []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return Record{}, err
		}
		found = append(found, rec)
	}
	if err := rows.Err(); err != nil {
		return Record{}, fmt.Errorf("failed to read run: %w", err)
	}

	switch {
	case len(found) == 0:
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case len(found) > 1 && found[0].ID != id:
		return Record{}, fmt.Errorf("%w: %s", ErrAmbiguous, id)
	}
	return found[0], nil
}

// Close closes the database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func scanRecord(rows *sql.Rows) (Record, error) {
	var (
		rec                Record
		mode               string
		errText, result    sql.NullString
		started, finished  sql.NullTime
		filesBlob, cfgBlob []byte
	)
	if err := rows.Scan(&rec.ID, &rec.RunID, &mode, &rec.Live, &rec.Outcome, &errText,
		&started, &finished, &filesBlob, &cfgBlob, &result); err != nil {
		return Record{}, fmt.Errorf("failed to scan run: %w", err)
	}
	rec.Mode = models.Mode(mode)
	rec.Error = errText.String
	rec.Result = result.String
	if started.Valid {
		rec.StartedAt = started.Time
	}
	if finished.Valid {
		rec.FinishedAt = finished.Time
	}
	if len(filesBlob) > 0 {
		if err := msgpack.Unmarshal(filesBlob, &rec.Files); err != nil {
			return Record{}, fmt.Errorf("failed to decode files: %w", err)
		}
	}
	if len(cfgBlob) > 0 {
		if err := msgpack.Unmarshal(cfgBlob, &rec.Config); err != nil {
			return Record{}, fmt.Errorf("failed to decode config: %w", err)
		}
	}
	return rec, nil
}

func nullTime(t time.Time) sql.NullTime {
	return sql.NullTime{Time: t, Valid: !t.IsZero()}
}
