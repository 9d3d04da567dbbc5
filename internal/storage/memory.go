package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Store. It backs tests and ephemeral runs; the
// semantics (ownership-checked deletes, ordering) mirror the sqlite driver.
type Memory struct {
	mu         sync.Mutex
	closed     bool
	recipients map[int64]Recipient
	sources    map[int64]Source
	interests  map[int64]Interest
	nextID     int64
}

func NewMemory() *Memory {
	return &Memory{
		recipients: map[int64]Recipient{},
		sources:    map[int64]Source{},
		interests:  map[int64]Interest{},
		nextID:     1,
	}
}

func (m *Memory) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *Memory) guard() error {
	if m.closed {
		return ErrClosed
	}
	return nil
}

func (m *Memory) UpsertRecipient(_ context.Context, r Recipient) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if prev, ok := m.recipients[r.ID]; ok {
		prev.ChatID = r.ChatID
		m.recipients[r.ID] = prev
		return nil
	}
	r.Schedule = ""
	m.recipients[r.ID] = r
	return nil
}

func (m *Memory) GetRecipient(_ context.Context, id int64) (Recipient, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return Recipient{}, false, err
	}
	r, ok := m.recipients[id]
	return r, ok, nil
}

func (m *Memory) SetSchedule(_ context.Context, id int64, schedule string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	r, ok := m.recipients[id]
	if !ok {
		return nil
	}
	r.Schedule = schedule
	m.recipients[id] = r
	return nil
}

func (m *Memory) ListScheduled(_ context.Context) ([]Recipient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return nil, err
	}
	var out []Recipient
	for _, r := range m.recipients {
		if r.Scheduled() {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) AddSource(_ context.Context, s Source) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return 0, err
	}
	s.ID = m.nextID
	m.nextID++
	if s.AddedAt.IsZero() {
		s.AddedAt = time.Now()
	}
	m.sources[s.ID] = s
	return s.ID, nil
}

func (m *Memory) ListSources(_ context.Context, ownerID int64) ([]Source, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return nil, err
	}
	var out []Source
	for _, s := range m.sources {
		if s.OwnerID == ownerID {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteSource(_ context.Context, id, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if s, ok := m.sources[id]; ok && s.OwnerID == ownerID {
		delete(m.sources, id)
	}
	return nil
}

func (m *Memory) AddInterest(_ context.Context, in Interest) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return 0, err
	}
	if len([]rune(in.Text)) > MaxInterestLen {
		return 0, ErrInterestTooLong
	}
	in.ID = m.nextID
	m.nextID++
	if in.AddedAt.IsZero() {
		in.AddedAt = time.Now()
	}
	m.interests[in.ID] = in
	return in.ID, nil
}

func (m *Memory) ListInterests(_ context.Context, ownerID int64) ([]Interest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return nil, err
	}
	var out []Interest
	for _, in := range m.interests {
		if in.OwnerID == ownerID {
			out = append(out, in)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].AddedAt.Equal(out[j].AddedAt) {
			return out[i].AddedAt.After(out[j].AddedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, nil
}

func (m *Memory) DeleteInterest(_ context.Context, id, ownerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.guard(); err != nil {
		return err
	}
	if in, ok := m.interests[id]; ok && in.OwnerID == ownerID {
		delete(m.interests, id)
	}
	return nil
}
