package channel

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Entity is a resolved channel handle.
type Entity struct {
	Username string
	Title    string

	// Channel is false when the handle resolves to something without a
	// public message feed (a user profile, an invite-only group).
	Channel bool
}

// Message is one raw channel post before normalization.
type Message struct {
	ID        int64
	Text      string
	Published time.Time
	Views     int
	Forwards  int
}

// Client is one provider session. Sessions are not shared between fetch
// scopes; the adapter opens one per fetch and closes it when done.
type Client interface {
	Resolve(ctx context.Context, handle string) (Entity, error)
	Messages(ctx context.Context, ent Entity, limit int) ([]Message, error)
	Close() error
}

// Factory opens session-scoped clients.
type Factory interface {
	Open(ctx context.Context) (Client, error)
}

const (
	defaultBaseURL   = "https://t.me"
	defaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	maxPreviewBytes  = 8 << 20
)

// HTTPFactory opens clients backed by the public t.me channel preview.
type HTTPFactory struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
}

func (f HTTPFactory) Open(ctx context.Context) (Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}

	base := strings.TrimRight(f.BaseURL, "/")
	if base == "" {
		base = defaultBaseURL
	}
	ua := f.UserAgent
	if ua == "" {
		ua = defaultUserAgent
	}
	timeout := f.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &httpClient{
		base: base,
		ua:   ua,
		http: &http.Client{Timeout: timeout, Jar: jar},
	}, nil
}

type httpClient struct {
	base string
	ua   string
	http *http.Client
}

func (c *httpClient) Close() error {
	c.http.CloseIdleConnections()
	return nil
}

func (c *httpClient) Resolve(ctx context.Context, handle string) (Entity, error) {
	name := NormalizeHandle(handle)
	if name == "" {
		return Entity{}, Permanent(errors.New("empty channel handle"))
	}

	doc, err := c.fetchPreview(ctx, name)
	if err != nil {
		return Entity{}, err
	}

	ent := Entity{Username: name}
	ent.Title = strings.TrimSpace(doc.Find(".tgme_channel_info_header_title").First().Text())
	if ent.Title == "" {
		ent.Title = strings.TrimSpace(doc.Find(".tgme_page_title").First().Text())
	}

	// Only channel-like pages render the info block or a message feed.
	if doc.Find(".tgme_channel_info").Length() > 0 ||
		doc.Find(".tgme_widget_message").Length() > 0 {
		ent.Channel = true
	}
	return ent, nil
}

func (c *httpClient) Messages(ctx context.Context, ent Entity, limit int) ([]Message, error) {
	doc, err := c.fetchPreview(ctx, ent.Username)
	if err != nil {
		return nil, err
	}

	var msgs []Message
	doc.Find(".tgme_widget_message").Each(func(_ int, sel *goquery.Selection) {
		post, ok := sel.Attr("data-post")
		if !ok {
			return
		}
		// data-post is "<name>/<id>".
		idx := strings.LastIndexByte(post, '/')
		if idx < 0 {
			return
		}
		id, err := strconv.ParseInt(post[idx+1:], 10, 64)
		if err != nil {
			return
		}

		msg := Message{
			ID:   id,
			Text: strings.TrimSpace(sel.Find(".tgme_widget_message_text").First().Text()),
		}
		if dt, ok := sel.Find(".tgme_widget_message_date time").First().Attr("datetime"); ok {
			if ts, err := time.Parse(time.RFC3339, dt); err == nil {
				msg.Published = ts.UTC()
			}
		}
		msg.Views = parseCount(sel.Find(".tgme_widget_message_views").First().Text())
		msgs = append(msgs, msg)
	})

	// The preview renders oldest first; callers want newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (c *httpClient) fetchPreview(ctx context.Context, name string) (*goquery.Document, error) {
	previewURL := c.base + "/s/" + url.PathEscape(name)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, previewURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", c.ua)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, RateLimited(fmt.Errorf("GET %s: status %d", previewURL, resp.StatusCode),
			retryAfter(resp))
	case resp.StatusCode == http.StatusNotFound,
		resp.StatusCode == http.StatusForbidden,
		resp.StatusCode == http.StatusGone:
		return nil, Permanent(fmt.Errorf("GET %s: status %d", previewURL, resp.StatusCode))
	default:
		return nil, fmt.Errorf("GET %s: status %d", previewURL, resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(io.LimitReader(resp.Body, maxPreviewBytes))
}

func retryAfter(resp *http.Response) time.Duration {
	if secs, err := strconv.Atoi(resp.Header.Get("Retry-After")); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	return 0
}

// parseCount reads preview counters like "1.2K" or "3.4M".
func parseCount(s string) int {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"):
		mult, s = 1e3, strings.TrimSuffix(s, "K")
	case strings.HasSuffix(s, "M"):
		mult, s = 1e6, strings.TrimSuffix(s, "M")
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return int(v * mult)
}

// NormalizeHandle reduces a channel reference (bare name, @name, or a t.me
// link) to the bare public name.
func NormalizeHandle(s string) string {
	s = strings.TrimSpace(s)
	for _, prefix := range []string{"https://", "http://"} {
		s = strings.TrimPrefix(s, prefix)
	}
	s = strings.TrimPrefix(s, "t.me/")
	s = strings.TrimPrefix(s, "telegram.me/")
	s = strings.TrimPrefix(s, "s/")
	s = strings.TrimPrefix(s, "@")
	if idx := strings.IndexAny(s, "/?"); idx >= 0 {
		s = s[:idx]
	}
	return s
}
