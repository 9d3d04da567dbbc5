// Package feed implements the simple-fetch adapter for RSS/Atom sources.
package feed

import (
	"context"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/mmcdole/gofeed"

	"digestbot/internal/ingest"
	logx "digestbot/pkg/logx"
)

const (
	defaultLimit   = 20
	defaultTimeout = 10 * time.Second
)

type Config struct {
	// Limit caps the number of items taken per feed. Default 20.
	Limit   int
	Timeout time.Duration
}

type Adapter struct {
	cfg      Config
	parser   *gofeed.Parser
	sanitize *bluemonday.Policy
	log      logx.Logger
}

func New(cfg Config, log logx.Logger) *Adapter {
	if cfg.Limit <= 0 {
		cfg.Limit = defaultLimit
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if log.IsZero() {
		log = logx.Nop()
	}

	p := gofeed.NewParser()
	p.Client = &http.Client{Timeout: cfg.Timeout}

	return &Adapter{
		cfg:      cfg,
		parser:   p,
		sanitize: bluemonday.StrictPolicy(),
		log:      log,
	}
}

func (a *Adapter) Fetch(ctx context.Context, location string) ([]ingest.Item, error) {
	fd, err := a.parser.ParseURLWithContext(location, ctx)
	if err != nil {
		// Malformed feed or HTTP failure: this source contributes nothing.
		return nil, err
	}

	sourceName := strings.TrimSpace(fd.Title)
	if sourceName == "" {
		sourceName = "RSS"
	}

	items := make([]ingest.Item, 0, min(len(fd.Items), a.cfg.Limit))
	for _, entry := range fd.Items {
		if len(items) >= a.cfg.Limit {
			break
		}
		if entry == nil || strings.TrimSpace(entry.Link) == "" {
			continue
		}

		title := strings.TrimSpace(entry.Title)
		if title == "" {
			title = "Untitled"
		}

		summary := entry.Description
		if summary == "" {
			summary = entry.Content
		}

		items = append(items, ingest.Item{
			Title:      title,
			Link:       entry.Link,
			Summary:    a.plainText(summary),
			Published:  entry.PublishedParsed,
			SourceName: sourceName,
			SourceKind: "feed",
		})
	}
	return items, nil
}

// plainText strips markup from a feed summary and collapses whitespace.
func (a *Adapter) plainText(s string) string {
	s = a.sanitize.Sanitize(s)
	s = html.UnescapeString(s)
	return strings.Join(strings.Fields(s), " ")
}
