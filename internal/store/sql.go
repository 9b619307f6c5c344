package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"  // PostgreSQL driver
	_ "modernc.org/sqlite" // Pure Go SQLite driver
)

// SQL stores records in SQLite or PostgreSQL.
type SQL struct {
	name string
	db   *sql.DB
	// rebind turns ? placeholders into the driver's syntax.
	rebind func(string) string
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS submissions (
		id TEXT PRIMARY KEY,
		created_at TIMESTAMP NOT NULL,
		status TEXT NOT NULL,
		output TEXT NOT NULL DEFAULT '',
		error TEXT NOT NULL DEFAULT '',
		payload TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS save_slots (
		session TEXT NOT NULL,
		slot TEXT NOT NULL,
		hash TEXT NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		PRIMARY KEY (session, slot)
	)`,
}

// NewSQLite opens (and creates) a SQLite database file.
func NewSQLite(path string) (*SQL, error) {
	if path == "" {
		path = "./enquirywitch.db"
	}
	return openSQL("sqlite", "sqlite", path, func(q string) string { return q })
}

// NewPostgres connects to PostgreSQL.
func NewPostgres(dsn string) (*SQL, error) {
	if dsn == "" {
		return nil, fmt.Errorf("postgres store: connection string is required")
	}
	return openSQL("postgres", "postgres", dsn, dollarPlaceholders)
}

func openSQL(name, driver, dsn string, rebind func(string) string) (*SQL, error) {
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("%s store: failed to open database: %w", name, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("%s store: failed to connect: %w", name, err)
	}

	for _, stmt := range schema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s store: failed to create schema: %w", name, err)
		}
	}

	return &SQL{name: name, db: db, rebind: rebind}, nil
}

func dollarPlaceholders(q string) string {
	var b strings.Builder
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQL) SaveSubmission(ctx context.Context, sub Submission) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO submissions (id, created_at, status, output, error, payload) VALUES (?, ?, ?, ?, ?, ?)`),
		sub.ID, sub.Created.UTC(), sub.Status, sub.Output, sub.Error, string(sub.Payload))
	if err != nil {
		return fmt.Errorf("%s store: save submission: %w", s.name, err)
	}
	return nil
}

func (s *SQL) Submissions(ctx context.Context, limit int) ([]Submission, error) {
	query := `SELECT id, created_at, status, output, error, payload FROM submissions ORDER BY created_at DESC`
	var args []any
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("%s store: list submissions: %w", s.name, err)
	}
	defer rows.Close()

	var out []Submission
	for rows.Next() {
		var (
			sub     Submission
			payload string
		)
		if err := rows.Scan(&sub.ID, &sub.Created, &sub.Status, &sub.Output, &sub.Error, &payload); err != nil {
			return nil, fmt.Errorf("%s store: scan submission: %w", s.name, err)
		}
		sub.Payload = []byte(payload)
		out = append(out, sub)
	}
	return out, rows.Err()
}

func (s *SQL) SaveSlot(ctx context.Context, session, slot, hash string) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO save_slots (session, slot, hash, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (session, slot) DO UPDATE SET hash = excluded.hash, updated_at = excluded.updated_at`),
		session, slot, hash, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("%s store: save slot: %w", s.name, err)
	}
	return nil
}

func (s *SQL) LoadSlot(ctx context.Context, session, slot string) (string, error) {
	var hash string
	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT hash FROM save_slots WHERE session = ? AND slot = ?`), session, slot).Scan(&hash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("%s store: load slot: %w", s.name, err)
	}
	return hash, nil
}

func (s *SQL) Close() error {
	return s.db.Close()
}
