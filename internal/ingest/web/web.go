// Package web implements the simple-fetch adapter for plain web pages.
//
// Extraction runs go-readability first; when it cannot find an article the
// adapter falls back to whole-page text. Either way the summary is capped
// and scripts/styles never leak into it.
package web

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"

	"digestbot/internal/ingest"
	logx "digestbot/pkg/logx"
)

const (
	defaultTimeout = 10 * time.Second
	summaryLimit   = 1000
	maxBodyBytes   = 4 << 20

	browserUA = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
)

type Config struct {
	Timeout   time.Duration
	UserAgent string
}

type Adapter struct {
	cfg  Config
	http *http.Client
	log  logx.Logger
}

func New(cfg Config, log logx.Logger) *Adapter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if strings.TrimSpace(cfg.UserAgent) == "" {
		cfg.UserAgent = browserUA
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Adapter{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
		log:  log,
	}
}

// Fetch produces exactly one item for the page, or an error when the page
// is unreachable. The item link is the page URL itself.
func (a *Adapter) Fetch(ctx context.Context, location string) ([]ingest.Item, error) {
	pageURL, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}

	body, err := a.get(ctx, location)
	if err != nil {
		return nil, err
	}

	title, summary := a.extract(body, pageURL)
	if title == "" {
		title = "Web page"
	}

	return []ingest.Item{{
		Title:      title,
		Link:       location,
		Summary:    truncateRunes(summary, summaryLimit),
		SourceName: pageURL.Host,
		SourceKind: "page",
	}}, nil
}

func (a *Adapter) get(ctx context.Context, location string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", a.cfg.UserAgent)

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
}

func (a *Adapter) extract(body []byte, pageURL *url.URL) (title, summary string) {
	if article, err := readability.FromReader(bytes.NewReader(body), pageURL); err == nil {
		title = strings.TrimSpace(article.Title)
		summary = collapse(article.TextContent)
	}
	if title != "" && summary != "" {
		return title, summary
	}

	// Readability found no article; fall back to the raw document.
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return title, summary
	}
	doc.Find("script, style, noscript").Remove()

	if title == "" {
		title = strings.TrimSpace(doc.Find("h1, title, h2, h3").First().Text())
	}
	if summary == "" {
		var paragraphs []string
		doc.Find("p").Each(func(_ int, sel *goquery.Selection) {
			if t := strings.TrimSpace(sel.Text()); t != "" {
				paragraphs = append(paragraphs, t)
			}
		})
		summary = collapse(strings.Join(paragraphs, " "))
	}
	if summary == "" {
		// Last resort: whole-page text.
		summary = collapse(doc.Text())
	}
	return title, summary
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	rs := []rune(s)
	if len(rs) <= n {
		return s
	}
	return string(rs[:n])
}
