package storage

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	logx "digestbot/pkg/logx"
)

// Both drivers must satisfy the same semantics; every test runs against
// each of them.
func withStores(t *testing.T, fn func(t *testing.T, store Store)) {
	t.Helper()

	t.Run("memory", func(t *testing.T) {
		t.Parallel()
		store := NewMemory()
		defer store.Close()
		fn(t, store)
	})

	t.Run("sqlite", func(t *testing.T) {
		t.Parallel()
		store, err := Open(Config{
			Driver: "sqlite",
			Path:   filepath.Join(t.TempDir(), "digest.db"),
		}, logx.Nop())
		if err != nil {
			t.Fatalf("open sqlite: %v", err)
		}
		defer store.Close()
		fn(t, store)
	})
}

func TestUpsertRecipientPreservesSchedule(t *testing.T) {
	t.Parallel()
	withStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		if err := store.UpsertRecipient(ctx, Recipient{ID: 1, ChatID: 10}); err != nil {
			t.Fatal(err)
		}
		if err := store.SetSchedule(ctx, 1, "08:00"); err != nil {
			t.Fatal(err)
		}

		// Re-registering (say, /start again) must not wipe the schedule.
		if err := store.UpsertRecipient(ctx, Recipient{ID: 1, ChatID: 20}); err != nil {
			t.Fatal(err)
		}

		rec, ok, err := store.GetRecipient(ctx, 1)
		if err != nil || !ok {
			t.Fatalf("get: %v/%v", ok, err)
		}
		if rec.ChatID != 20 {
			t.Errorf("chat id = %d, want 20", rec.ChatID)
		}
		if rec.Schedule != "08:00" {
			t.Errorf("schedule = %q, want 08:00", rec.Schedule)
		}
	})
}

func TestListScheduled(t *testing.T) {
	t.Parallel()
	withStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for id := int64(1); id <= 3; id++ {
			if err := store.UpsertRecipient(ctx, Recipient{ID: id, ChatID: id}); err != nil {
				t.Fatal(err)
			}
		}
		if err := store.SetSchedule(ctx, 1, "07:00"); err != nil {
			t.Fatal(err)
		}
		if err := store.SetSchedule(ctx, 3, "19:30"); err != nil {
			t.Fatal(err)
		}
		// Clearing drops the recipient from the scheduled set.
		if err := store.SetSchedule(ctx, 3, ""); err != nil {
			t.Fatal(err)
		}

		got, err := store.ListScheduled(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 1 || got[0].ID != 1 || got[0].Schedule != "07:00" {
			t.Fatalf("scheduled = %+v", got)
		}
	})
}

func TestSourceOwnershipAndOrdering(t *testing.T) {
	t.Parallel()
	withStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for id := int64(1); id <= 2; id++ {
			if err := store.UpsertRecipient(ctx, Recipient{ID: id, ChatID: id}); err != nil {
				t.Fatal(err)
			}
		}

		base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
		var ids []int64
		for i := 0; i < 3; i++ {
			id, err := store.AddSource(ctx, Source{
				OwnerID:  1,
				Kind:     KindFeed,
				Location: "https://example.com/" + strings.Repeat("a", i+1),
				AddedAt:  base.Add(time.Duration(i) * time.Hour),
			})
			if err != nil {
				t.Fatal(err)
			}
			ids = append(ids, id)
		}
		otherID, err := store.AddSource(ctx, Source{OwnerID: 2, Kind: KindPage, Location: "https://other.example"})
		if err != nil {
			t.Fatal(err)
		}

		got, err := store.ListSources(ctx, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(got) != 3 {
			t.Fatalf("sources = %+v", got)
		}
		// Newest first.
		if got[0].ID != ids[2] || got[2].ID != ids[0] {
			t.Fatalf("ordering = %v %v %v, want newest first", got[0].ID, got[1].ID, got[2].ID)
		}

		// Deleting someone else's source is a silent no-op.
		if err := store.DeleteSource(ctx, otherID, 1); err != nil {
			t.Fatal(err)
		}
		other, err := store.ListSources(ctx, 2)
		if err != nil || len(other) != 1 {
			t.Fatalf("foreign source deleted: %+v (%v)", other, err)
		}

		if err := store.DeleteSource(ctx, ids[0], 1); err != nil {
			t.Fatal(err)
		}
		got, _ = store.ListSources(ctx, 1)
		if len(got) != 2 {
			t.Fatalf("own delete failed: %+v", got)
		}
	})
}

func TestInterestLengthCap(t *testing.T) {
	t.Parallel()
	withStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		if err := store.UpsertRecipient(ctx, Recipient{ID: 1, ChatID: 1}); err != nil {
			t.Fatal(err)
		}

		ok := strings.Repeat("x", MaxInterestLen)
		if _, err := store.AddInterest(ctx, Interest{OwnerID: 1, Text: ok}); err != nil {
			t.Fatalf("max-length interest rejected: %v", err)
		}

		long := strings.Repeat("x", MaxInterestLen+1)
		if _, err := store.AddInterest(ctx, Interest{OwnerID: 1, Text: long}); err != ErrInterestTooLong {
			t.Fatalf("err = %v, want ErrInterestTooLong", err)
		}

		// Rune count, not byte count.
		wide := strings.Repeat("я", MaxInterestLen)
		if _, err := store.AddInterest(ctx, Interest{OwnerID: 1, Text: wide}); err != nil {
			t.Fatalf("multibyte interest rejected: %v", err)
		}
	})
}

func TestInterestOwnershipDelete(t *testing.T) {
	t.Parallel()
	withStores(t, func(t *testing.T, store Store) {
		ctx := context.Background()

		for id := int64(1); id <= 2; id++ {
			if err := store.UpsertRecipient(ctx, Recipient{ID: id, ChatID: id}); err != nil {
				t.Fatal(err)
			}
		}
		id, err := store.AddInterest(ctx, Interest{OwnerID: 1, Text: "golang"})
		if err != nil {
			t.Fatal(err)
		}

		if err := store.DeleteInterest(ctx, id, 2); err != nil {
			t.Fatal(err)
		}
		got, err := store.ListInterests(ctx, 1)
		if err != nil || len(got) != 1 {
			t.Fatalf("foreign delete removed interest: %+v (%v)", got, err)
		}

		if err := store.DeleteInterest(ctx, id, 1); err != nil {
			t.Fatal(err)
		}
		got, _ = store.ListInterests(ctx, 1)
		if len(got) != 0 {
			t.Fatalf("own delete failed: %+v", got)
		}
	})
}
