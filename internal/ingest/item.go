// Package ingest aggregates content items from a recipient's sources.
//
// Each source kind has an Adapter; the Orchestrator fans out over a source
// list and isolates per-source failures so one broken source never costs
// the rest of the digest.
package ingest

import (
	"context"
	"time"
)

// Item is one normalized piece of content. Items are ephemeral: produced
// per collection run and never persisted.
//
// Optional fields are explicit: Published is nil when the source carries no
// timestamp, Relevance is nil until the ranker attaches a score.
type Item struct {
	Title   string
	Link    string
	Summary string

	Published  *time.Time
	SourceName string
	SourceKind string

	// Engagement counters; zero when the source does not expose them.
	Views    int
	Forwards int

	Relevance *float64
}

// Score returns the attached relevance score, or 0 when unscored.
func (it Item) Score() float64 {
	if it.Relevance == nil {
		return 0
	}
	return *it.Relevance
}

// Adapter produces normalized items for one source location.
//
// Adapters must drop items without a resolvable link before returning;
// callers never see link-less items.
type Adapter interface {
	Fetch(ctx context.Context, location string) ([]Item, error)
}
