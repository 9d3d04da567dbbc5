package ingest

import (
	"context"
	"sync"
	"time"

	"digestbot/internal/storage"
	logx "digestbot/pkg/logx"
)

// Orchestrator dispatches sources to kind-matched adapters and merges the
// results. Adapter registration may change at runtime (the channel adapter
// comes and goes with config), so the registry is mutex-guarded.
type Orchestrator struct {
	mu       sync.RWMutex
	adapters map[string]Adapter

	log logx.Logger
}

func NewOrchestrator(log logx.Logger) *Orchestrator {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Orchestrator{
		adapters: map[string]Adapter{},
		log:      log,
	}
}

// Register installs the adapter for a source kind, replacing any previous one.
func (o *Orchestrator) Register(kind string, a Adapter) {
	o.mu.Lock()
	o.adapters[kind] = a
	o.mu.Unlock()
}

// Deregister removes the adapter for a kind. Sources of that kind are
// skipped (not failed) during collection.
func (o *Orchestrator) Deregister(kind string) {
	o.mu.Lock()
	delete(o.adapters, kind)
	o.mu.Unlock()
}

// Supports reports whether an adapter is currently installed for kind.
func (o *Orchestrator) Supports(kind string) bool {
	o.mu.RLock()
	_, ok := o.adapters[kind]
	o.mu.RUnlock()
	return ok
}

// Collect fetches items for every source, in input order, one source at a
// time. A failing source contributes zero items and is logged; Collect
// itself never fails. The merged output preserves each adapter's emission
// order, concatenated in source order.
func (o *Orchestrator) Collect(ctx context.Context, sources []storage.Source) []Item {
	if len(sources) == 0 {
		return nil
	}

	var items []Item
	for _, src := range sources {
		if ctx.Err() != nil {
			break
		}

		o.mu.RLock()
		a, ok := o.adapters[src.Kind]
		o.mu.RUnlock()
		if !ok {
			o.log.Debug("no adapter for source kind; skipping",
				logx.String("kind", src.Kind), logx.String("location", src.Location))
			continue
		}

		start := time.Now()
		got, err := a.Fetch(ctx, src.Location)
		if err != nil {
			o.log.Warn("source fetch failed",
				logx.String("kind", src.Kind),
				logx.String("location", src.Location),
				logx.Duration("took", time.Since(start)),
				logx.Err(err),
			)
			continue
		}
		o.log.Debug("source fetched",
			logx.String("kind", src.Kind),
			logx.String("location", src.Location),
			logx.Int("items", len(got)),
			logx.Duration("took", time.Since(start)),
		)
		items = append(items, got...)
	}
	return items
}
