package channel

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

const previewHTML = `<!DOCTYPE html>
<html><body>
<div class="tgme_channel_info">
  <div class="tgme_channel_info_header_title">Tech News</div>
</div>
<section class="tgme_channel_history">
  <div class="tgme_widget_message_wrapper">
    <div class="tgme_widget_message" data-post="technews/101">
      <div class="tgme_widget_message_text">First post body</div>
      <span class="tgme_widget_message_views">1.2K</span>
      <a class="tgme_widget_message_date"><time datetime="2026-03-01T10:00:00+00:00"></time></a>
    </div>
  </div>
  <div class="tgme_widget_message_wrapper">
    <div class="tgme_widget_message" data-post="technews/102">
      <div class="tgme_widget_message_text">Second post body</div>
      <span class="tgme_widget_message_views">534</span>
      <a class="tgme_widget_message_date"><time datetime="2026-03-01T12:30:00+00:00"></time></a>
    </div>
  </div>
</section>
</body></html>`

const profileHTML = `<!DOCTYPE html>
<html><body>
<div class="tgme_page">
  <div class="tgme_page_title">Some User</div>
</div>
</body></html>`

func previewServer(t *testing.T, handler http.HandlerFunc) Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := HTTPFactory{BaseURL: srv.URL, Timeout: 2 * time.Second}.Open(context.Background())
	if err != nil {
		t.Fatalf("open client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestHTTPClientResolveAndMessages(t *testing.T) {
	t.Parallel()

	client := previewServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/s/technews" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write([]byte(previewHTML))
	})
	ctx := context.Background()

	ent, err := client.Resolve(ctx, "@technews")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !ent.Channel || ent.Username != "technews" || ent.Title != "Tech News" {
		t.Fatalf("entity = %+v", ent)
	}

	msgs, err := client.Messages(ctx, ent, 10)
	if err != nil {
		t.Fatalf("Messages: %v", err)
	}
	if len(msgs) != 2 {
		t.Fatalf("got %d messages, want 2", len(msgs))
	}
	// Newest first.
	if msgs[0].ID != 102 || msgs[1].ID != 101 {
		t.Fatalf("order = %d, %d", msgs[0].ID, msgs[1].ID)
	}
	if msgs[0].Text != "Second post body" {
		t.Errorf("text = %q", msgs[0].Text)
	}
	if msgs[1].Views != 1200 {
		t.Errorf("views = %d, want 1200", msgs[1].Views)
	}
	want := time.Date(2026, 3, 1, 12, 30, 0, 0, time.UTC)
	if !msgs[0].Published.Equal(want) {
		t.Errorf("published = %v, want %v", msgs[0].Published, want)
	}
}

func TestHTTPClientResolveNonChannel(t *testing.T) {
	t.Parallel()

	client := previewServer(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(profileHTML))
	})

	ent, err := client.Resolve(context.Background(), "someuser")
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if ent.Channel {
		t.Fatalf("user profile classified as channel: %+v", ent)
	}
	if ent.Title != "Some User" {
		t.Errorf("title = %q", ent.Title)
	}
}

func TestHTTPClientErrorClassification(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name    string
		status  int
		headers map[string]string
		check   func(t *testing.T, err error)
	}{
		{
			name:   "not found is permanent",
			status: http.StatusNotFound,
			check: func(t *testing.T, err error) {
				if !IsPermanent(err) {
					t.Fatalf("err = %v, want permanent", err)
				}
			},
		},
		{
			name:   "forbidden is permanent",
			status: http.StatusForbidden,
			check: func(t *testing.T, err error) {
				if !IsPermanent(err) {
					t.Fatalf("err = %v, want permanent", err)
				}
			},
		},
		{
			name:    "429 carries retry-after",
			status:  http.StatusTooManyRequests,
			headers: map[string]string{"Retry-After": "42"},
			check: func(t *testing.T, err error) {
				wait, ok := AsRateLimit(err)
				if !ok || wait != 42*time.Second {
					t.Fatalf("err = %v (wait %v, ok %v)", err, wait, ok)
				}
			},
		},
		{
			name:   "server error is transient",
			status: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				if err == nil || IsPermanent(err) {
					t.Fatalf("err = %v, want transient", err)
				}
				if _, ok := AsRateLimit(err); ok {
					t.Fatalf("err = %v classified as rate limit", err)
				}
			},
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			client := previewServer(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tc.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tc.status)
			})
			_, err := client.Resolve(context.Background(), "whatever")
			tc.check(t, err)
		})
	}
}
