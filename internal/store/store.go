// Package store keeps submission records and named save slots.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/enquirywitch/enquirywitch/internal/config"
)

// ErrNotFound is returned when a save slot does not exist.
var ErrNotFound = errors.New("not found")

// Submission statuses.
const (
	StatusSent   = "sent"
	StatusFailed = "failed"
)

// Submission is the archived record of one delivery attempt.
type Submission struct {
	ID      string    `json:"id"`
	Created time.Time `json:"created"`
	Status  string    `json:"status"`
	Output  string    `json:"output,omitempty"` // output that accepted it
	Error   string    `json:"error,omitempty"`
	Payload []byte    `json:"payload"`
}

// Store persists submissions and save slots.
type Store interface {
	SaveSubmission(ctx context.Context, s Submission) error
	// Submissions returns up to limit records, newest first. A limit of zero
	// or less returns all of them.
	Submissions(ctx context.Context, limit int) ([]Submission, error)
	SaveSlot(ctx context.Context, session, slot, hash string) error
	LoadSlot(ctx context.Context, session, slot string) (string, error)
	Close() error
}

// Open creates the store selected by cfg.
func Open(cfg config.StoreConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemory(), nil
	case "sqlite":
		return NewSQLite(cfg.GetDSN())
	case "postgres":
		return NewPostgres(cfg.GetDSN())
	case "bolt":
		return NewBolt(cfg.GetDSN())
	default:
		return nil, fmt.Errorf("unknown store type %q", cfg.Type)
	}
}
