// Package store persists settings and recorded pitch traces in SQLite.
//
// The schema is owned by embedded golang-migrate migrations which are applied
// on [Open].
package store

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	_ "modernc.org/sqlite"

	"github.com/MrWong99/pitchtrace/internal/tracker"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// ErrNotFound is returned when a key or session does not exist.
var ErrNotFound = errors.New("store: not found")

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at path and migrates it to the
// latest schema.
func Open(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	// One connection keeps pragmas in effect and serialises writers.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, "PRAGMA foreign_keys = ON; PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: configure %q: %w", path, err)
	}

	s := &Store{db: db}
	if err := s.migrateUp(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) newMigrate() (*migrate.Migrate, error) {
	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("store: migration source: %w", err)
	}
	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return nil, fmt.Errorf("store: sqlite migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "sqlite", driver)
	if err != nil {
		return nil, fmt.Errorf("store: migrate instance: %w", err)
	}
	m.Log = migrateLogger{}
	return m, nil
}

// migrateUp applies pending migrations. The migrate instance is not closed
// because that would close the shared *sql.DB.
func (s *Store) migrateUp() error {
	m, err := s.newMigrate()
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("store: migrate up: %w", err)
	}
	return nil
}

// Version returns the applied schema version.
func (s *Store) Version() (uint, error) {
	m, err := s.newMigrate()
	if err != nil {
		return 0, err
	}
	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: schema version: %w", err)
	}
	if dirty {
		return v, fmt.Errorf("store: schema version %d is dirty", v)
	}
	return v, nil
}

type migrateLogger struct{}

func (migrateLogger) Printf(format string, v ...any) {
	slog.Debug(fmt.Sprintf("store: migrate: "+format, v...))
}

func (migrateLogger) Verbose() bool { return false }

// Ping reports whether the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Get returns the value stored under key, or [ErrNotFound].
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var value []byte
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: key %q", ErrNotFound, key)
	}
	if err != nil {
		return nil, fmt.Errorf("store: get %q: %w", key, err)
	}
	return value, nil
}

// Put stores value under key, replacing any previous value.
func (s *Store) Put(ctx context.Context, key string, value []byte) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: put %q: %w", key, err)
	}
	return nil
}

// SessionRecord is a stored capture session.
type SessionRecord struct {
	ID      string    `json:"id"`
	Device  string    `json:"device"`
	Started time.Time `json:"started"`
	// Ended is zero while the session is open.
	Ended  time.Time `json:"ended,omitzero"`
	Points int       `json:"points"`
}

// CreateSession inserts a new open session.
func (s *Store) CreateSession(ctx context.Context, id, device string, started time.Time) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO sessions (id, device, started_at) VALUES (?, ?, ?)`,
		id, device, started.UnixMilli())
	if err != nil {
		return fmt.Errorf("store: create session %s: %w", id, err)
	}
	return nil
}

// EndSession marks session id as ended.
func (s *Store) EndSession(ctx context.Context, id string, ended time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE sessions SET ended_at = ? WHERE id = ?`, ended.UnixMilli(), id)
	if err != nil {
		return fmt.Errorf("store: end session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return nil
}

// Sessions lists the most recent sessions first. limit <= 0 lists all.
func (s *Store) Sessions(ctx context.Context, limit int) ([]SessionRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.device, s.started_at, s.ended_at,
		       (SELECT COUNT(*) FROM points p WHERE p.session_id = s.id)
		FROM sessions s
		ORDER BY s.started_at DESC, s.rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: list sessions: %w", err)
	}
	defer rows.Close()

	var out []SessionRecord
	for rows.Next() {
		var (
			rec     SessionRecord
			started int64
			ended   sql.NullInt64
		)
		if err := rows.Scan(&rec.ID, &rec.Device, &started, &ended, &rec.Points); err != nil {
			return nil, fmt.Errorf("store: scan session: %w", err)
		}
		rec.Started = time.UnixMilli(started)
		if ended.Valid {
			rec.Ended = time.UnixMilli(ended.Int64)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// PointRow is one recorded point of a session.
type PointRow struct {
	SessionID string
	Point     tracker.Point
}

// InsertPoints writes rows in one transaction. NaN values are stored as NULL.
func (s *Store) InsertPoints(ctx context.Context, rows []PointRow) error {
	if len(rows) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO points (session_id, elapsed, value) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range rows {
		var value sql.NullFloat64
		if r.Point.Valid() {
			value = sql.NullFloat64{Float64: r.Point.Value, Valid: true}
		}
		if _, err := stmt.ExecContext(ctx, r.SessionID, r.Point.Elapsed, value); err != nil {
			return fmt.Errorf("store: insert point: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit points: %w", err)
	}
	return nil
}

// Points returns the recorded points of session id in elapsed order.
func (s *Store) Points(ctx context.Context, id string) ([]tracker.Point, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT elapsed, value FROM points WHERE session_id = ? ORDER BY elapsed, rowid`, id)
	if err != nil {
		return nil, fmt.Errorf("store: points of %s: %w", id, err)
	}
	defer rows.Close()

	var out []tracker.Point
	for rows.Next() {
		var (
			pt    tracker.Point
			value sql.NullFloat64
		)
		if err := rows.Scan(&pt.Elapsed, &value); err != nil {
			return nil, fmt.Errorf("store: scan point: %w", err)
		}
		pt.Value = math.NaN()
		if value.Valid {
			pt.Value = value.Float64
		}
		out = append(out, pt)
	}
	return out, rows.Err()
}

// DeleteSession removes a session and its points.
func (s *Store) DeleteSession(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("store: delete session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: session %s", ErrNotFound, id)
	}
	return nil
}
