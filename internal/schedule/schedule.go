// Package schedule triggers per-recipient daily digest runs.
//
// Each recipient has at most one trigger; setting a new time replaces the
// old trigger atomically. Execution happens in the task runner, which
// enforces the one-run-per-recipient guard; this service only fires. A
// trigger that fires far past its nominal time (process suspended, clock
// jumps) is treated as misfired and skipped rather than run stale.
package schedule

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"digestbot/internal/storage"
	"digestbot/internal/task"
	logx "digestbot/pkg/logx"
)

const defaultMisfireGrace = time.Minute

type Config struct {
	// Timezone names the IANA location all trigger times are read in.
	// Empty means the host's local time.
	Timezone string

	// MisfireGrace bounds how late a trigger may fire and still run.
	MisfireGrace time.Duration
}

// Enqueuer is the execution side; *task.Runner satisfies it.
type Enqueuer interface {
	Enqueue(job task.Job) error
}

// RunFunc executes one digest for a recipient.
type RunFunc func(ctx context.Context, recipientID int64) error

type entry struct {
	id  cron.EntryID
	tod TimeOfDay
}

type Service struct {
	cfg    Config
	runner Enqueuer
	run    RunFunc
	log    logx.Logger

	mu      sync.Mutex
	c       *cron.Cron
	loc     *time.Location
	entries map[int64]entry
	started bool

	now func() time.Time
}

func New(cfg Config, runner Enqueuer, run RunFunc, log logx.Logger) (*Service, error) {
	if cfg.MisfireGrace <= 0 {
		cfg.MisfireGrace = defaultMisfireGrace
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	loc := time.Local
	if tz := strings.TrimSpace(cfg.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("load timezone %q: %w", tz, err)
		}
		loc = l
	}

	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	return &Service{
		cfg:     cfg,
		runner:  runner,
		run:     run,
		log:     log,
		c:       cron.New(cron.WithParser(parser), cron.WithLocation(loc)),
		loc:     loc,
		entries: map[int64]entry{},
		now:     time.Now,
	}, nil
}

// Start begins firing triggers. Triggers installed before Start are kept.
func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	s.c.Start()
	s.log.Info("scheduler started",
		logx.String("tz", s.loc.String()),
		logx.Int("schedules", len(s.entries)),
	)
}

// Stop halts triggering and waits for in-flight trigger callbacks.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	started := s.started
	s.started = false
	s.mu.Unlock()
	if !started {
		return
	}
	select {
	case <-s.c.Stop().Done():
	case <-ctx.Done():
	}
}

// Set installs the recipient's daily trigger, replacing any existing one.
// The schedule string is validated before any mutation.
func (s *Service) Set(recipientID int64, schedule string) (TimeOfDay, error) {
	tod, err := ParseTimeOfDay(schedule)
	if err != nil {
		return TimeOfDay{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if old, ok := s.entries[recipientID]; ok {
		s.c.Remove(old.id)
		delete(s.entries, recipientID)
	}
	id, err := s.c.AddFunc(tod.cronSpec(), func() { s.fire(recipientID, tod) })
	if err != nil {
		return TimeOfDay{}, fmt.Errorf("install trigger: %w", err)
	}
	s.entries[recipientID] = entry{id: id, tod: tod}

	s.log.Info("digest schedule set",
		logx.Int64("recipient", recipientID),
		logx.String("at", tod.String()),
	)
	return tod, nil
}

// Clear removes the recipient's trigger. Clearing an absent schedule is a
// no-op.
func (s *Service) Clear(recipientID int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[recipientID]
	if !ok {
		return
	}
	s.c.Remove(e.id)
	delete(s.entries, recipientID)
	s.log.Info("digest schedule cleared", logx.Int64("recipient", recipientID))
}

// Scheduled reports the recipient's current trigger time.
func (s *Service) Scheduled(recipientID int64) (TimeOfDay, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[recipientID]
	return e.tod, ok
}

// Rebuild reinstalls triggers for every recipient the store says has one.
// Rows with unparseable times are skipped with a warning, not fatal.
func (s *Service) Rebuild(ctx context.Context, store storage.Store) error {
	recipients, err := store.ListScheduled(ctx)
	if err != nil {
		return fmt.Errorf("list scheduled recipients: %w", err)
	}
	restored := 0
	for _, rec := range recipients {
		if _, err := s.Set(rec.ID, rec.Schedule); err != nil {
			s.log.Warn("skipping unparseable stored schedule",
				logx.Int64("recipient", rec.ID),
				logx.String("schedule", rec.Schedule),
				logx.Err(err),
			)
			continue
		}
		restored++
	}
	s.log.Info("schedules restored", logx.Int("count", restored))
	return nil
}

// fire runs in cron's goroutine; it only classifies and enqueues.
func (s *Service) fire(recipientID int64, tod TimeOfDay) {
	now := s.now().In(s.loc)
	nominal := time.Date(now.Year(), now.Month(), now.Day(), tod.Hour, tod.Minute, 0, 0, s.loc)
	if late := now.Sub(nominal); late < 0 || late > s.cfg.MisfireGrace {
		s.log.Warn("misfired trigger skipped",
			logx.Int64("recipient", recipientID),
			logx.String("nominal", tod.String()),
			logx.Duration("late", late),
		)
		return
	}

	job := task.Job{
		Name: fmt.Sprintf("digest-%d", recipientID),
		Key:  fmt.Sprintf("digest:%d", recipientID),
		Run: func(ctx context.Context) error {
			return s.run(ctx, recipientID)
		},
	}
	switch err := s.runner.Enqueue(job); {
	case err == nil:
	case errors.Is(err, task.ErrAlreadyRunning):
		s.log.Warn("previous digest run still active; skipping",
			logx.Int64("recipient", recipientID))
	default:
		s.log.Error("digest trigger enqueue failed",
			logx.Int64("recipient", recipientID), logx.Err(err))
	}
}
