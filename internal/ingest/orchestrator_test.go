package ingest

import (
	"context"
	"errors"
	"testing"

	"digestbot/internal/storage"
	logx "digestbot/pkg/logx"
)

type staticAdapter struct {
	items []Item
	err   error
	calls int
}

func (a *staticAdapter) Fetch(ctx context.Context, location string) ([]Item, error) {
	a.calls++
	return a.items, a.err
}

func TestCollectIsolatesFailingSource(t *testing.T) {
	t.Parallel()

	good1 := &staticAdapter{items: []Item{{Title: "a1", Link: "https://a/1"}, {Title: "a2", Link: "https://a/2"}}}
	bad := &staticAdapter{err: errors.New("connection refused")}
	good2 := &staticAdapter{items: []Item{{Title: "c1", Link: "https://c/1"}}}

	o := NewOrchestrator(logx.Nop())
	o.Register("alpha", good1)
	o.Register("beta", bad)
	o.Register("gamma", good2)

	got := o.Collect(context.Background(), []storage.Source{
		{Kind: "alpha", Location: "https://a"},
		{Kind: "beta", Location: "https://b"},
		{Kind: "gamma", Location: "https://c"},
	})

	if len(got) != 3 {
		t.Fatalf("got %d items, want 3", len(got))
	}
	// Source order, then adapter emission order.
	for i, want := range []string{"a1", "a2", "c1"} {
		if got[i].Title != want {
			t.Fatalf("item %d = %q, want %q", i, got[i].Title, want)
		}
	}
	if bad.calls != 1 {
		t.Fatalf("failing adapter called %d times, want 1", bad.calls)
	}
}

func TestCollectSkipsUnknownKinds(t *testing.T) {
	t.Parallel()

	known := &staticAdapter{items: []Item{{Title: "x", Link: "https://x"}}}
	o := NewOrchestrator(logx.Nop())
	o.Register("feed", known)

	got := o.Collect(context.Background(), []storage.Source{
		{Kind: "channel", Location: "technews"},
		{Kind: "feed", Location: "https://x/rss"},
	})
	if len(got) != 1 || got[0].Title != "x" {
		t.Fatalf("got %+v", got)
	}
}

func TestCollectEmptySourceList(t *testing.T) {
	t.Parallel()

	probe := &staticAdapter{}
	o := NewOrchestrator(logx.Nop())
	o.Register("feed", probe)

	if got := o.Collect(context.Background(), nil); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
	if probe.calls != 0 {
		t.Fatal("adapter invoked for empty source list")
	}
}

func TestDeregister(t *testing.T) {
	t.Parallel()

	o := NewOrchestrator(logx.Nop())
	o.Register("channel", &staticAdapter{})
	if !o.Supports("channel") {
		t.Fatal("registered kind not supported")
	}
	o.Deregister("channel")
	if o.Supports("channel") {
		t.Fatal("deregistered kind still supported")
	}
}
