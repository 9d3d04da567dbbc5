package config

type Config struct {
	Telegram TelegramConfig `json:"telegram"`
	Logging  LoggingConfig  `json:"logging"`
	Storage  StorageConfig  `json:"storage"`

	// Channel configures the rate-limited channel source adapter.
	// If the section is omitted or disabled, channel sources are skipped
	// during collection and cannot be registered.
	Channel *ChannelConfig `json:"channel,omitempty"`

	Digest DigestConfig `json:"digest"`
}

type TelegramConfig struct {
	Token    string `json:"token"`
	GroupLog string `json:"group_log,omitempty"`
	// PollTimeout is a Go duration string (e.g. "10s", "2m").
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// StorageConfig controls the persistence layer (recipients, sources,
// interests). SQLite is the only on-disk driver.
type StorageConfig struct {
	Path        string `json:"path"`
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration string
}

// ChannelConfig controls the rate-limited channel adapter.
//
// All durations are Go duration strings. Defaults (when fields are omitted):
//   - base_url: "https://t.me"
//   - timeout: "10s"
//   - message_limit: 20
type ChannelConfig struct {
	Enabled      bool   `json:"enabled"`
	BaseURL      string `json:"base_url,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	MessageLimit int    `json:"message_limit,omitempty"`
}

// DigestConfig controls digest pipeline execution and scheduling.
//
// Defaults (when fields are omitted/zero):
//   - workers: 2
//   - queue_size: 64
//   - misfire_grace: "60s"
//   - feed_limit: 20
//   - page_timeout: "10s"
type DigestConfig struct {
	// Timezone is the IANA trigger timezone, e.g. "Europe/Berlin".
	Timezone string `json:"timezone,omitempty"`

	Workers   int `json:"workers,omitempty"`
	QueueSize int `json:"queue_size,omitempty"`

	// MisfireGrace skips scheduled runs that start later than this past
	// their nominal fire time.
	MisfireGrace string `json:"misfire_grace,omitempty"`

	FeedLimit   int    `json:"feed_limit,omitempty"`
	PageTimeout string `json:"page_timeout,omitempty"`
}
