package digest

import (
	"fmt"
	"time"

	"digestbot/internal/ingest"
	"digestbot/pkg/tgui"
)

const (
	// maxEntries caps how many items one digest message presents.
	maxEntries = 20

	summaryPreview = 200
)

// emptyMessage is sent when collection or ranking produced nothing.
const emptyMessage = "Nothing relevant today. Try adding more sources or broadening your interests."

// Format renders ranked items as one Telegram-HTML document: a dated
// header, then numbered entries with a linked title, source, optional
// relevance and engagement, and a short summary.
func Format(items []ingest.Item, now time.Time) string {
	header := tgui.B("Your digest for " + now.Format("Mon, 2 Jan 2006"))
	if len(items) == 0 {
		return tgui.JoinH("\n\n", header, tgui.Esc(emptyMessage)).String()
	}
	if len(items) > maxEntries {
		items = items[:maxEntries]
	}

	parts := make([]tgui.H, 0, len(items)+1)
	parts = append(parts, header)
	for i, it := range items {
		parts = append(parts, formatEntry(i+1, it))
	}
	return tgui.JoinH("\n\n", parts...).String()
}

func formatEntry(n int, it ingest.Item) tgui.H {
	title := it.Title
	if title == "" {
		title = it.Link
	}
	head := tgui.Raw(fmt.Sprintf("%d. ", n)) + tgui.Link(title, it.Link)

	var meta tgui.H
	if it.SourceName != "" {
		meta = tgui.I(it.SourceName)
	}
	if it.Relevance != nil {
		meta = joinMeta(meta, tgui.Esc(fmt.Sprintf("relevance %d%%", int(*it.Relevance*100))))
	}
	if it.Views > 0 {
		meta = joinMeta(meta, tgui.Esc(fmt.Sprintf("%s views", compactCount(it.Views))))
	}

	lines := []tgui.H{head}
	if meta != "" {
		lines = append(lines, meta)
	}
	if it.Summary != "" {
		lines = append(lines, tgui.Esc(tgui.TruncRunes(it.Summary, summaryPreview)))
	}
	return tgui.JoinH("\n", lines...)
}

func joinMeta(base, extra tgui.H) tgui.H {
	if base == "" {
		return extra
	}
	return base + tgui.Raw(" · ") + extra
}

func compactCount(v int) string {
	switch {
	case v >= 1_000_000:
		return fmt.Sprintf("%.1fM", float64(v)/1e6)
	case v >= 1_000:
		return fmt.Sprintf("%.1fK", float64(v)/1e3)
	default:
		return fmt.Sprintf("%d", v)
	}
}
