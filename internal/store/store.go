// Package store keeps finished simulation results for retrieval by id.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"mvsim/internal/simerr"
)

// ErrNotFound is returned for unknown or expired ids.
var ErrNotFound = errors.New("simulation not found")

// Status of a stored simulation.
type Status string

const (
	StatusDone   Status = "done"
	StatusFailed Status = "failed"
)

// Record is a stored simulation. Document holds the encoded result document.
type Record struct {
	ID        string          `json:"id"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
	Document  json.RawMessage `json:"document,omitempty"`
	Report    *simerr.Report  `json:"report,omitempty"`
}

// Store persists records for a limited time.
type Store interface {
	Put(ctx context.Context, rec *Record) error
	Get(ctx context.Context, id string) (*Record, error)
	Close() error
}

// Options select and configure a backend.
type Options struct {
	Backend   string
	RedisAddr string
	TTL       time.Duration
}

// Open returns the backend named in opts.
func Open(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "memory":
		return NewMemory(opts.TTL), nil
	case "redis":
		return NewRedis(opts.RedisAddr, opts.TTL)
	default:
		return nil, errors.New("unknown store backend " + opts.Backend)
	}
}
