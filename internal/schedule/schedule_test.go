package schedule

import (
	"context"
	"testing"
	"time"

	"digestbot/internal/storage"
	"digestbot/internal/task"
	logx "digestbot/pkg/logx"
)

type captureEnqueuer struct{ jobs []task.Job }

func (c *captureEnqueuer) Enqueue(job task.Job) error {
	c.jobs = append(c.jobs, job)
	return nil
}

func noRun(ctx context.Context, recipientID int64) error { return nil }

func newTestService(t *testing.T, enq Enqueuer) *Service {
	t.Helper()
	s, err := New(Config{Timezone: "UTC"}, enq, noRun, logx.Nop())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func TestParseTimeOfDay(t *testing.T) {
	t.Parallel()

	valid := map[string]TimeOfDay{
		"00:00": {0, 0},
		"08:05": {8, 5},
		"8:05":  {8, 5},
		"23:59": {23, 59},
	}
	for in, want := range valid {
		got, err := ParseTimeOfDay(in)
		if err != nil {
			t.Errorf("ParseTimeOfDay(%q): %v", in, err)
			continue
		}
		if got != want {
			t.Errorf("ParseTimeOfDay(%q) = %v, want %v", in, got, want)
		}
	}

	invalid := []string{"", "24:00", "12:60", "12", "12:5", "12:345", "ab:cd", "12:30:00", " 08:00"}
	for _, in := range invalid {
		if _, err := ParseTimeOfDay(in); err == nil {
			t.Errorf("ParseTimeOfDay(%q) accepted", in)
		}
	}
}

func TestSetReplacesExistingTrigger(t *testing.T) {
	t.Parallel()

	s := newTestService(t, &captureEnqueuer{})
	if _, err := s.Set(7, "08:00"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(7, "18:00"); err != nil {
		t.Fatal(err)
	}

	tod, ok := s.Scheduled(7)
	if !ok || tod.String() != "18:00" {
		t.Fatalf("Scheduled = %v/%v, want 18:00", tod, ok)
	}
	if got := len(s.c.Entries()); got != 1 {
		t.Fatalf("cron entries = %d, want 1 (old trigger must be removed)", got)
	}
}

func TestSetRejectsBadTimeWithoutMutation(t *testing.T) {
	t.Parallel()

	s := newTestService(t, &captureEnqueuer{})
	if _, err := s.Set(7, "08:30"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Set(7, "25:00"); err == nil {
		t.Fatal("bad time accepted")
	}

	tod, ok := s.Scheduled(7)
	if !ok || tod.String() != "08:30" {
		t.Fatalf("existing schedule lost after rejected update: %v/%v", tod, ok)
	}
}

func TestClearIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newTestService(t, &captureEnqueuer{})
	if _, err := s.Set(3, "09:00"); err != nil {
		t.Fatal(err)
	}
	s.Clear(3)
	s.Clear(3)
	s.Clear(99)

	if _, ok := s.Scheduled(3); ok {
		t.Fatal("schedule survived Clear")
	}
	if got := len(s.c.Entries()); got != 0 {
		t.Fatalf("cron entries = %d, want 0", got)
	}
}

func TestFireEnqueuesSingletonJob(t *testing.T) {
	t.Parallel()

	enq := &captureEnqueuer{}
	s := newTestService(t, enq)
	s.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 0, 10, 0, time.UTC)
	}

	s.fire(42, TimeOfDay{Hour: 8, Minute: 0})
	if len(enq.jobs) != 1 {
		t.Fatalf("enqueued %d jobs, want 1", len(enq.jobs))
	}
	if enq.jobs[0].Key != "digest:42" {
		t.Fatalf("job key = %q", enq.jobs[0].Key)
	}
}

func TestFireSkipsMisfire(t *testing.T) {
	t.Parallel()

	enq := &captureEnqueuer{}
	s := newTestService(t, enq)
	// Firing five minutes past the nominal time, well over the grace.
	s.now = func() time.Time {
		return time.Date(2026, 3, 2, 8, 5, 0, 0, time.UTC)
	}

	s.fire(42, TimeOfDay{Hour: 8, Minute: 0})
	if len(enq.jobs) != 0 {
		t.Fatalf("misfired trigger enqueued %d jobs", len(enq.jobs))
	}
}

func TestRebuildRestoresStoredSchedules(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	store := storage.NewMemory()
	for _, rec := range []storage.Recipient{
		{ID: 1, ChatID: 1, Schedule: "07:30"},
		{ID: 2, ChatID: 2, Schedule: "19:00"},
		{ID: 3, ChatID: 3, Schedule: "nonsense"},
		{ID: 4, ChatID: 4}, // no schedule
	} {
		if err := store.UpsertRecipient(ctx, rec); err != nil {
			t.Fatal(err)
		}
		if rec.Schedule != "" {
			if err := store.SetSchedule(ctx, rec.ID, rec.Schedule); err != nil {
				t.Fatal(err)
			}
		}
	}

	s := newTestService(t, &captureEnqueuer{})
	if err := s.Rebuild(ctx, store); err != nil {
		t.Fatalf("Rebuild: %v", err)
	}

	if tod, ok := s.Scheduled(1); !ok || tod.String() != "07:30" {
		t.Fatalf("recipient 1: %v/%v", tod, ok)
	}
	if tod, ok := s.Scheduled(2); !ok || tod.String() != "19:00" {
		t.Fatalf("recipient 2: %v/%v", tod, ok)
	}
	if _, ok := s.Scheduled(3); ok {
		t.Fatal("unparseable stored schedule was installed")
	}
	if _, ok := s.Scheduled(4); ok {
		t.Fatal("unscheduled recipient got a trigger")
	}
}
