package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseJSON(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc", "poll_timeout": "15s"},
		"logging": {"level": "DEBUG", "console": true},
		"storage": {"path": "./data/bot.db"},
		"channel": {"enabled": true, "message_limit": 30},
		"digest": {"timezone": "Europe/Berlin", "workers": 3}
	}`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Channel == nil || !cfg.Channel.Enabled || cfg.Channel.MessageLimit != 30 {
		t.Errorf("channel = %+v", cfg.Channel)
	}
	if cfg.Digest.Timezone != "Europe/Berlin" || cfg.Digest.Workers != 3 {
		t.Errorf("digest = %+v", cfg.Digest)
	}
}

func TestParseYAML(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.yaml", `
telegram:
  token: "123:abc"
logging:
  level: INFO
  console: true
storage:
  path: ./bot.db
digest:
  workers: 2
  misfire_grace: 90s
`)

	cfg, err := NewManager(path).Parse()
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Errorf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Digest.MisfireGrace != "90s" {
		t.Errorf("misfire_grace = %q", cfg.Digest.MisfireGrace)
	}
	if cfg.Channel != nil {
		t.Errorf("channel section fabricated: %+v", cfg.Channel)
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json", `{
		"telegram": {"token": "123:abc"},
		"logging": {"level": "INFO"},
		"storage": {"path": "./bot.db"},
		"digest": {},
		"surprise": true
	}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("unknown top-level field accepted")
	}
}

func TestParseRejectsTrailingData(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "config.json",
		`{"telegram":{"token":"t"},"logging":{"level":"INFO"},"storage":{"path":"x"},"digest":{}} {"extra":1}`)

	if _, err := NewManager(path).Parse(); err == nil {
		t.Fatal("trailing JSON accepted")
	}
}

func TestParseDurationField(t *testing.T) {
	t.Parallel()

	if d, err := ParseDurationField("x", "2m30s"); err != nil || d != 2*time.Minute+30*time.Second {
		t.Fatalf("got %v/%v", d, err)
	}
	if d, err := ParseDurationField("x", ""); err != nil || d != 0 {
		t.Fatalf("empty: got %v/%v", d, err)
	}
	if _, err := ParseDurationField("x", "soon"); err == nil {
		t.Fatal("bad duration accepted")
	}
	if _, err := ParseDurationField("x", "-5s"); err == nil {
		t.Fatal("negative duration accepted")
	}

	if d, err := ParseDurationOrDefault("x", "", 7*time.Second); err != nil || d != 7*time.Second {
		t.Fatalf("default: got %v/%v", d, err)
	}
}
