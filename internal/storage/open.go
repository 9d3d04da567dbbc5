package storage

import (
	"context"
	"errors"
	"strings"

	logx "digestbot/pkg/logx"
)

// Store is the persistence API used by the app and services.
//
// Deletes are ownership-checked: a delete whose owner does not match the
// row's owner is a silent no-op, never an error.
type Store interface {
	UpsertRecipient(ctx context.Context, r Recipient) error
	GetRecipient(ctx context.Context, id int64) (Recipient, bool, error)
	SetSchedule(ctx context.Context, id int64, schedule string) error
	ListScheduled(ctx context.Context) ([]Recipient, error)

	AddSource(ctx context.Context, s Source) (int64, error)
	ListSources(ctx context.Context, ownerID int64) ([]Source, error)
	DeleteSource(ctx context.Context, id, ownerID int64) error

	AddInterest(ctx context.Context, in Interest) (int64, error)
	ListInterests(ctx context.Context, ownerID int64) ([]Interest, error)
	DeleteInterest(ctx context.Context, id, ownerID int64) error

	Close() error
}

// Open initializes the configured store.
func Open(cfg Config, log logx.Logger) (Store, error) {
	if log.IsZero() {
		log = logx.Nop()
	}
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	switch driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, errors.New("unknown storage driver: " + driver)
	}
}
