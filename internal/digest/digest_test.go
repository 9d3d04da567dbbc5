package digest

import (
	"context"
	"strings"
	"testing"
	"time"

	"digestbot/internal/ingest"
	"digestbot/internal/storage"
	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

type fakeCollector struct {
	items   []ingest.Item
	sources []storage.Source
}

func (f *fakeCollector) Collect(ctx context.Context, sources []storage.Source) []ingest.Item {
	f.sources = sources
	return f.items
}

type fakeRanker struct{ interests []string }

func (f *fakeRanker) Rank(items []ingest.Item, interests []string) []ingest.Item {
	f.interests = interests
	return items
}

type fakeSender struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
	sent int
}

func (f *fakeSender) SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.sent++
	f.to, f.text, f.opt = to, text, opt
	return transport.MessageRef{ChatID: to.ChatID, MessageID: 1}, nil
}

func testStore(t *testing.T) storage.Store {
	t.Helper()
	return storage.NewMemory()
}

func TestRunDeliversDigest(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testStore(t)
	if err := store.UpsertRecipient(ctx, storage.Recipient{ID: 10, ChatID: 10}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddSource(ctx, storage.Source{OwnerID: 10, Kind: storage.KindFeed, Location: "https://example.com/rss"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.AddInterest(ctx, storage.Interest{OwnerID: 10, Text: "golang"}); err != nil {
		t.Fatal(err)
	}

	score := 0.9
	collector := &fakeCollector{items: []ingest.Item{{
		Title: "Go 1.26 released", Link: "https://example.com/go", Summary: "notes",
		SourceName: "Example", Relevance: &score,
	}}}
	ranker := &fakeRanker{}
	sender := &fakeSender{}

	svc := NewService(store, collector, ranker, sender, logx.Nop())
	if err := svc.Run(ctx, 10); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if sender.sent != 1 {
		t.Fatalf("sent %d messages, want 1", sender.sent)
	}
	if sender.to.ChatID != 10 {
		t.Fatalf("chat = %d, want 10", sender.to.ChatID)
	}
	if sender.opt == nil || sender.opt.ParseMode != "HTML" || !sender.opt.DisablePreview {
		t.Fatalf("send options = %+v", sender.opt)
	}
	if len(collector.sources) != 1 || collector.sources[0].Location != "https://example.com/rss" {
		t.Fatalf("collector sources = %+v", collector.sources)
	}
	if len(ranker.interests) != 1 || ranker.interests[0] != "golang" {
		t.Fatalf("ranker interests = %+v", ranker.interests)
	}
	if !strings.Contains(sender.text, "Go 1.26 released") {
		t.Fatalf("digest text missing item title: %q", sender.text)
	}
}

func TestRunEmptyResultStillDelivers(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := testStore(t)
	if err := store.UpsertRecipient(ctx, storage.Recipient{ID: 5, ChatID: 5}); err != nil {
		t.Fatal(err)
	}

	sender := &fakeSender{}
	svc := NewService(store, &fakeCollector{}, &fakeRanker{}, sender, logx.Nop())
	if err := svc.Run(ctx, 5); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if sender.sent != 1 {
		t.Fatalf("sent %d messages, want 1", sender.sent)
	}
	if !strings.Contains(sender.text, "Nothing relevant today") {
		t.Fatalf("empty digest text = %q", sender.text)
	}
}

func TestRunUnknownRecipient(t *testing.T) {
	t.Parallel()

	sender := &fakeSender{}
	svc := NewService(testStore(t), &fakeCollector{}, &fakeRanker{}, sender, logx.Nop())
	if err := svc.Run(context.Background(), 404); err == nil {
		t.Fatal("expected error for unknown recipient")
	}
	if sender.sent != 0 {
		t.Fatal("message sent for unknown recipient")
	}
}

func TestFormat(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	score := 0.42
	items := []ingest.Item{
		{
			Title: "Title <with> markup", Link: "https://example.com/a?x=1&y=2",
			Summary: "Body & soul", SourceName: "A <b>site</b>",
			Relevance: &score, Views: 1500,
		},
		{Title: "Plain", Link: "https://example.com/b"},
	}

	got := Format(items, now)
	for _, want := range []string{
		"Your digest for Mon, 2 Mar 2026",
		`<a href="https://example.com/a?x=1&amp;y=2">Title &lt;with&gt; markup</a>`,
		"<i>A &lt;b&gt;site&lt;/b&gt;</i>",
		"relevance 42%",
		"1.5K views",
		"Body &amp; soul",
		"2. ",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("formatted digest missing %q\n%s", want, got)
		}
	}
}

func TestFormatCapsEntries(t *testing.T) {
	t.Parallel()

	items := make([]ingest.Item, 30)
	for i := range items {
		items[i] = ingest.Item{Title: "t", Link: "https://example.com"}
	}
	got := Format(items, time.Now())
	if strings.Contains(got, "21. ") {
		t.Fatal("digest rendered more than the entry cap")
	}
	if !strings.Contains(got, "20. ") {
		t.Fatal("digest rendered fewer entries than expected")
	}
}
