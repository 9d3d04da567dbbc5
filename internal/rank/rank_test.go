package rank

import (
	"fmt"
	"testing"

	"digestbot/internal/ingest"
	logx "digestbot/pkg/logx"
)

func item(title, summary string) ingest.Item {
	return ingest.Item{Title: title, Link: "https://example.com/" + title, Summary: summary}
}

func TestRankNoInterestsPassesThroughUnscored(t *testing.T) {
	t.Parallel()

	items := make([]ingest.Item, 30)
	for i := range items {
		items[i] = item(fmt.Sprintf("post-%02d", i), "text")
	}

	got := New(logx.Nop()).Rank(items, nil)
	if len(got) != 20 {
		t.Fatalf("got %d items, want 20", len(got))
	}
	for i, it := range got {
		if it.Title != items[i].Title {
			t.Fatalf("order broken at %d: %q", i, it.Title)
		}
		if it.Relevance != nil {
			t.Fatalf("item %d carries a score without interests", i)
		}
	}
}

func TestRankFiltersAndOrdersByScore(t *testing.T) {
	t.Parallel()

	items := []ingest.Item{
		item("cooking", "a recipe for sourdough bread and pastry"),
		item("go-release", "golang generics release: the go team ships golang generics for go programmers"),
		item("gardening", "tomato seedlings and watering schedules"),
		item("go-mention", "a short note that mentions golang once among many other unrelated words here"),
	}

	got := New(logx.Nop()).Rank(items, []string{"golang generics"})
	if len(got) == 0 {
		t.Fatal("nothing ranked")
	}
	if got[0].Title != "go-release" {
		t.Fatalf("top item = %q, want go-release", got[0].Title)
	}
	for _, it := range got {
		if it.Relevance == nil {
			t.Fatalf("ranked item %q has no score", it.Title)
		}
		if *it.Relevance < Threshold {
			t.Fatalf("item %q below threshold: %v", it.Title, *it.Relevance)
		}
		if it.Title == "cooking" || it.Title == "gardening" {
			t.Fatalf("irrelevant item %q survived the threshold", it.Title)
		}
	}
	for i := 1; i < len(got); i++ {
		if got[i].Score() > got[i-1].Score() {
			t.Fatalf("scores not descending at %d", i)
		}
	}
}

func TestRankCapsResults(t *testing.T) {
	t.Parallel()

	items := make([]ingest.Item, 80)
	for i := range items {
		items[i] = item(fmt.Sprintf("rust-%02d", i), "rust async runtime internals and borrow checker notes")
	}

	got := New(logx.Nop()).Rank(items, []string{"rust async runtime"})
	if len(got) > MaxResults {
		t.Fatalf("got %d items, cap is %d", len(got), MaxResults)
	}
}

func TestRankDegenerateCorpus(t *testing.T) {
	t.Parallel()

	items := []ingest.Item{
		{Title: "!!!", Link: "https://example.com/1", Summary: "..."},
		{Title: "???", Link: "https://example.com/2", Summary: "---"},
	}
	if got := New(logx.Nop()).Rank(items, []string{"???"}); len(got) != 0 {
		t.Fatalf("degenerate corpus produced %d items, want 0", len(got))
	}
}

func TestRankEmptyInput(t *testing.T) {
	t.Parallel()

	if got := New(logx.Nop()).Rank(nil, []string{"anything"}); got != nil {
		t.Fatalf("got %v, want nil", got)
	}
}
