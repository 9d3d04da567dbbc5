package adapter

import (
	"strings"
	"testing"
)

func TestSplitTelegramTextShort(t *testing.T) {
	t.Parallel()

	got := splitTelegramText("hello", 100, "")
	if len(got) != 1 || got[0] != "hello" {
		t.Fatalf("got %v", got)
	}
}

func TestSplitTelegramTextPrefersNewlines(t *testing.T) {
	t.Parallel()

	var b strings.Builder
	for i := 0; i < 40; i++ {
		b.WriteString(strings.Repeat("x", 20))
		b.WriteByte('\n')
	}
	chunks := splitTelegramText(b.String(), 100, "")
	if len(chunks) < 2 {
		t.Fatalf("expected multiple chunks, got %d", len(chunks))
	}
	for i, c := range chunks {
		if len([]rune(c)) > 100 {
			t.Fatalf("chunk %d over limit: %d runes", i, len([]rune(c)))
		}
		if strings.HasPrefix(c, "\n") || strings.HasSuffix(c, "\n") {
			t.Fatalf("chunk %d has dangling newline: %q", i, c)
		}
		// Newline-aligned splitting keeps lines whole.
		for _, line := range strings.Split(c, "\n") {
			if line != strings.Repeat("x", 20) {
				t.Fatalf("chunk %d broke a line: %q", i, line)
			}
		}
	}
}

func TestSplitTelegramTextAvoidsDanglingHTMLTag(t *testing.T) {
	t.Parallel()

	// The window boundary lands in the middle of the <a href=...> tag.
	text := strings.Repeat("a", 95) + `<a href="https://example.com/long/path">link</a>` + strings.Repeat("b", 60)
	chunks := splitTelegramText(text, 100, "HTML")
	for i, c := range chunks {
		opens := strings.Count(c, "<")
		closes := strings.Count(c, ">")
		if opens != closes {
			t.Fatalf("chunk %d splits inside a tag: %q", i, c)
		}
	}
}
