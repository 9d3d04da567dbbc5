// Package channel implements the rate-aware adapter for public Telegram
// channels.
//
// The provider punishes aggressive polling, so every remote call goes
// through a pacer that spaces requests by an adaptive base delay with
// multiplicative jitter. Rate-limit responses escalate the base delay for
// the rest of the fetch scope; access failures are classified so the retry
// loop never hammers a channel it can never read.
package channel

import (
	"context"
	"strconv"
	"strings"
	"time"

	"digestbot/internal/ingest"
	logx "digestbot/pkg/logx"
)

const (
	initialBaseDelay = 2 * time.Second
	maxBaseDelay     = 10 * time.Second

	maxRetries   = 3
	defaultLimit = 20
	maxLimit     = 100

	// Only messages from the last week make it into a digest.
	lookback = 7 * 24 * time.Hour

	titleLimit = 100
)

type Config struct {
	// MessageLimit caps messages taken per channel. Clamped to 100.
	MessageLimit int
}

// Adapter fetches recent posts from a public channel. Each Fetch opens its
// own provider session and runs its own pacing state, so concurrent digest
// runs never share mutable backoff state.
type Adapter struct {
	factory Factory
	limit   int
	log     logx.Logger

	// Test seams. Production uses real sleeping and math/rand.
	sleep     func(ctx context.Context, d time.Duration)
	randFloat func() float64
	now       func() time.Time
}

func New(factory Factory, cfg Config, log logx.Logger) *Adapter {
	limit := cfg.MessageLimit
	if limit <= 0 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		factory:   factory,
		limit:     limit,
		log:       log,
		sleep:     sleepCtx,
		randFloat: randFloat64,
		now:       time.Now,
	}
}

// Fetch implements ingest.Adapter.
func (a *Adapter) Fetch(ctx context.Context, location string) ([]ingest.Item, error) {
	return a.ParseChannel(ctx, location)
}

// ParseChannel resolves the channel and returns its recent posts, newest
// first. Terminal access failures and exhausted retries yield an empty
// result rather than an error: a broken channel costs its own items only.
func (a *Adapter) ParseChannel(ctx context.Context, location string) ([]ingest.Item, error) {
	client, err := a.factory.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	p := a.newPacer()
	handle := NormalizeHandle(location)

	for attempt := 1; attempt <= maxRetries; attempt++ {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		msgs, ent, err := a.attempt(ctx, client, p, handle)
		if err == nil {
			if !ent.Channel {
				a.log.Warn("handle is not a channel; skipping",
					logx.String("channel", handle))
				return nil, nil
			}
			return a.toItems(ctx, p, ent, msgs), nil
		}

		switch wait, limited := AsRateLimit(err); {
		case IsPermanent(err):
			a.log.Warn("channel access denied",
				logx.String("channel", handle), logx.Err(err))
			return nil, nil

		case limited:
			a.log.Warn("rate limited by provider",
				logx.String("channel", handle),
				logx.Duration("wait", wait),
				logx.Int("attempt", attempt),
			)
			if attempt == maxRetries {
				break
			}
			p.escalate()
			a.sleep(ctx, wait+a.uniform(5, 15))

		default:
			a.log.Warn("channel fetch failed",
				logx.String("channel", handle),
				logx.Int("attempt", attempt),
				logx.Err(err),
			)
			if attempt == maxRetries {
				break
			}
			a.sleep(ctx, a.uniform(3, 7))
		}
	}

	a.log.Warn("channel retries exhausted", logx.String("channel", handle))
	return nil, nil
}

// Validate reports whether the location resolves to a readable channel.
// The check goes through the same pacing as a real fetch.
func (a *Adapter) Validate(ctx context.Context, location string) bool {
	client, err := a.factory.Open(ctx)
	if err != nil {
		return false
	}
	defer client.Close()

	p := a.newPacer()
	a.pace(ctx, p)
	ent, err := client.Resolve(ctx, NormalizeHandle(location))
	return err == nil && ent.Channel
}

// attempt is one paced resolve+read round trip.
func (a *Adapter) attempt(ctx context.Context, client Client, p *pacer, handle string) ([]Message, Entity, error) {
	a.pace(ctx, p)
	ent, err := client.Resolve(ctx, handle)
	if err != nil {
		return nil, Entity{}, err
	}
	if !ent.Channel {
		return nil, ent, nil
	}

	a.pace(ctx, p)
	msgs, err := client.Messages(ctx, ent, a.limit)
	if err != nil {
		return nil, Entity{}, err
	}
	return msgs, ent, nil
}

func (a *Adapter) toItems(ctx context.Context, p *pacer, ent Entity, msgs []Message) []ingest.Item {
	since := a.now().Add(-lookback)
	sourceName := ent.Title
	if sourceName == "" {
		sourceName = ent.Username
	}
	if sourceName == "" {
		sourceName = "Unknown Channel"
	}

	var items []ingest.Item
	for i, msg := range msgs {
		// The preview pages lazily; a breather every ten messages keeps
		// the session under the provider's radar.
		if i > 0 && i%10 == 0 {
			a.sleep(ctx, a.uniform(1, 2))
		}
		if msg.Text == "" {
			continue
		}
		if !msg.Published.IsZero() && msg.Published.Before(since) {
			continue
		}

		published := msg.Published
		item := ingest.Item{
			Title:      messageTitle(msg.Text),
			Link:       messageLink(ent, msg.ID),
			Summary:    msg.Text,
			SourceName: sourceName,
			SourceKind: "channel",
			Views:      msg.Views,
			Forwards:   msg.Forwards,
		}
		if !published.IsZero() {
			item.Published = &published
		}
		items = append(items, item)
	}
	return items
}

// messageTitle takes the first line of a post, truncated for display.
func messageTitle(text string) string {
	line := text
	if idx := strings.IndexByte(line, '\n'); idx >= 0 {
		line = line[:idx]
	}
	line = strings.TrimSpace(line)

	rs := []rune(line)
	if len(rs) > titleLimit {
		return string(rs[:titleLimit-3]) + "..."
	}
	return line
}

func messageLink(ent Entity, id int64) string {
	return "https://t.me/" + ent.Username + "/" + strconv.FormatInt(id, 10)
}
