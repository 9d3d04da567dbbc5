package storage

import (
	"errors"
	"time"
)

var (
	ErrClosed = errors.New("storage closed")

	// ErrInterestTooLong is returned when an interest exceeds MaxInterestLen.
	ErrInterestTooLong = errors.New("interest text too long")
)

// MaxInterestLen bounds the length of a single interest statement.
const MaxInterestLen = 100

// Source kinds. Kind selects the ingestion adapter.
const (
	KindFeed    = "feed"
	KindPage    = "page"
	KindChannel = "channel"
)

// Config configures storage.
//
// Driver values:
//   - "sqlite" (default): SQLite database file
//   - "memory": in-process map store (tests, ephemeral runs)
type Config struct {
	Driver      string
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

// Recipient is the addressable owner of sources, interests and a schedule.
// Schedule is "HH:MM" local time, or empty for no recurring delivery.
type Recipient struct {
	ID       int64
	ChatID   int64
	Schedule string
}

// Scheduled reports whether the recipient has a recurring delivery time.
func (r Recipient) Scheduled() bool { return r.Schedule != "" }

// Source is a configured origin of content, typed by fetch mechanism.
type Source struct {
	ID       int64
	OwnerID  int64
	Kind     string
	Location string
	AddedAt  time.Time
}

// Interest is a free-text topic statement used to compute relevance.
type Interest struct {
	ID      int64
	OwnerID int64
	Text    string
	AddedAt time.Time
}
