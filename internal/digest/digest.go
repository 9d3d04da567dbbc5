// Package digest assembles and delivers per-recipient digests.
//
// A run reads the recipient's sources and interests fresh from storage,
// collects items, ranks them against the interest profile and delivers the
// formatted result. Runs are stateless between invocations.
package digest

import (
	"context"
	"fmt"
	"time"

	"digestbot/internal/ingest"
	"digestbot/internal/storage"
	"digestbot/internal/transport"
	logx "digestbot/pkg/logx"
)

// Collector gathers items for a source list.
type Collector interface {
	Collect(ctx context.Context, sources []storage.Source) []ingest.Item
}

// Ranker orders items by relevance to the interests.
type Ranker interface {
	Rank(items []ingest.Item, interests []string) []ingest.Item
}

// Sender is the delivery slice of the transport.
type Sender interface {
	SendText(ctx context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error)
}

type Service struct {
	store     storage.Store
	collector Collector
	ranker    Ranker
	sender    Sender
	log       logx.Logger

	now func() time.Time
}

func NewService(store storage.Store, collector Collector, ranker Ranker, sender Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{
		store:     store,
		collector: collector,
		ranker:    ranker,
		sender:    sender,
		log:       log,
		now:       time.Now,
	}
}

// Run builds and delivers one digest for the recipient. An empty result
// still delivers (the recipient learns their digest ran); only storage and
// delivery failures surface as errors.
func (s *Service) Run(ctx context.Context, recipientID int64) error {
	rec, ok, err := s.store.GetRecipient(ctx, recipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if !ok {
		return fmt.Errorf("recipient %d not registered", recipientID)
	}

	sources, err := s.store.ListSources(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load sources: %w", err)
	}
	interests, err := s.store.ListInterests(ctx, rec.ID)
	if err != nil {
		return fmt.Errorf("load interests: %w", err)
	}

	start := s.now()
	collected := s.collector.Collect(ctx, sources)
	ranked := s.ranker.Rank(collected, interestTexts(interests))

	s.log.Info("digest built",
		logx.Int64("recipient", rec.ID),
		logx.Int("sources", len(sources)),
		logx.Int("collected", len(collected)),
		logx.Int("ranked", len(ranked)),
		logx.Duration("took", time.Since(start)),
	)

	text := Format(ranked, s.now())
	_, err = s.sender.SendText(ctx, transport.ChatTarget{ChatID: rec.ChatID}, text, &transport.SendOptions{
		ParseMode:      "HTML",
		DisablePreview: true,
	})
	if err != nil {
		return fmt.Errorf("deliver digest: %w", err)
	}
	return nil
}

func interestTexts(interests []storage.Interest) []string {
	out := make([]string, 0, len(interests))
	for _, in := range interests {
		out = append(out, in.Text)
	}
	return out
}
