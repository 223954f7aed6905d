// Package config loads environment variables into a typed Config used across the service.
// Defaults let the bot start locally with only DISCORD_TOKEN set; platforms without
// credentials are disabled rather than treated as errors.
// Use ValidateDiscordReady before connecting to the gateway.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/noxrp/stream-notifier/poller"
	"github.com/noxrp/stream-notifier/store"
)

// State backends.
const (
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	// Discord
	DiscordToken    string `envconfig:"DISCORD_TOKEN"`
	NotifyChannelID string `envconfig:"DISCORD_NOTIFY_CHANNEL_ID"`
	GuildID         string `envconfig:"DISCORD_GUILD_ID"`
	Prefix          string `envconfig:"PREFIX" default:"."`
	AllowedRoleIDs  string `envconfig:"ALLOWED_ROLE_IDS"` // comma-separated
	LiveRoleID      string `envconfig:"STREAMER_LIVE_ROLE_ID"`

	// Initial settings; only used when the state document is created.
	MentionHere          bool   `envconfig:"MENTION_HERE" default:"true"`
	KeywordRegex         string `envconfig:"KEYWORD_REGEX" default:"nox\\s*rp"`
	CheckIntervalSeconds int    `envconfig:"CHECK_INTERVAL_SECONDS" default:"60"`
	DiscoveryMode        bool   `envconfig:"DISCOVERY_MODE" default:"false"`
	DiscoveryTwitchPages int    `envconfig:"DISCOVERY_TWITCH_PAGES" default:"5"`
	DiscoveryKickLimit   int    `envconfig:"DISCOVERY_KICK_LIMIT" default:"100"`

	// Twitch
	TwitchClientID     string `envconfig:"TWITCH_CLIENT_ID"`
	TwitchClientSecret string `envconfig:"TWITCH_CLIENT_SECRET"`
	TwitchGameID       string `envconfig:"TWITCH_GTA5_GAME_ID" default:"32982"`

	// Kick
	KickClientID     string `envconfig:"KICK_CLIENT_ID"`
	KickClientSecret string `envconfig:"KICK_CLIENT_SECRET"`
	KickCategoryName string `envconfig:"KICK_GTA_CATEGORY_NAME" default:"Grand Theft Auto V"`

	// State
	StateBackend  string `envconfig:"STATE_BACKEND" default:"file"`
	DataFile      string `envconfig:"DATA_FILE" default:"data.json"`
	DBDsn         string `envconfig:"DB_DSN"`
	RedisAddr     string `envconfig:"REDIS_ADDR"`
	RedisPassword string `envconfig:"REDIS_PASSWORD"`
	RedisDB       int    `envconfig:"REDIS_DB" default:"0"`
	StateKey      string `envconfig:"STATE_KEY" default:"notifier:state"`
	SeedFile      string `envconfig:"SEED_FILE"`

	// HTTP
	HTTPAddr    string        `envconfig:"HTTP_ADDR" default:":8080"`
	HTTPTimeout time.Duration `envconfig:"HTTP_TIMEOUT" default:"15s"`

	// Observability
	LogLevel         string  `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat        string  `envconfig:"LOG_FORMAT" default:"text"`
	OTLPEndpoint     string  `envconfig:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	TraceSampleRatio float64 `envconfig:"OTEL_TRACES_SAMPLER_ARG" default:"1"`
}

// Load reads environment variables and applies defaults. Missing platform
// credentials are fine; the platform is simply skipped each tick.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("process env: %w", err)
	}
	cfg.StateBackend = strings.ToLower(strings.TrimSpace(cfg.StateBackend))
	if cfg.StateBackend == "" {
		cfg.StateBackend = BackendFile
	}
	if cfg.Prefix == "" {
		cfg.Prefix = "."
	}
	return &cfg, nil
}

// Validate checks values that depend on each other.
func (c *Config) Validate() error {
	switch c.StateBackend {
	case BackendFile:
		if c.DataFile == "" {
			return errors.New("DATA_FILE required for file state backend")
		}
	case BackendPostgres:
		if c.DBDsn == "" {
			return errors.New("DB_DSN required for postgres state backend")
		}
	case BackendRedis:
		if c.RedisAddr == "" {
			return errors.New("REDIS_ADDR required for redis state backend")
		}
	default:
		return fmt.Errorf("unknown STATE_BACKEND %q (want file, postgres or redis)", c.StateBackend)
	}
	if c.StateKey == "" && c.StateBackend != BackendFile {
		return errors.New("STATE_KEY must not be empty")
	}
	if c.HTTPTimeout <= 0 {
		return fmt.Errorf("HTTP_TIMEOUT must be positive, got %s", c.HTTPTimeout)
	}
	if err := poller.ValidateKeyword(c.KeywordRegex); err != nil {
		return fmt.Errorf("KEYWORD_REGEX: %w", err)
	}
	return nil
}

// ValidateDiscordReady ensures the bot can log in.
func (c *Config) ValidateDiscordReady() error {
	if strings.TrimSpace(c.DiscordToken) == "" {
		return errors.New("missing required env: DISCORD_TOKEN")
	}
	return nil
}

// AllowedRoles returns the parsed ALLOWED_ROLE_IDS list, nil when unset.
func (c *Config) AllowedRoles() []string {
	if c.AllowedRoleIDs == "" {
		return nil
	}
	var out []string
	for _, id := range strings.Split(c.AllowedRoleIDs, ",") {
		if id = strings.TrimSpace(id); id != "" {
			out = append(out, id)
		}
	}
	return out
}

// KickEnabled reports whether Kick credentials are configured.
func (c *Config) KickEnabled() bool {
	return c.KickClientID != "" && c.KickClientSecret != ""
}

// TwitchEnabled reports whether Twitch credentials are configured.
func (c *Config) TwitchEnabled() bool {
	return c.TwitchClientID != "" && c.TwitchClientSecret != ""
}

// InitialState builds the document used when no state exists yet. After that
// the persisted settings win over env.
func (c *Config) InitialState() *store.State {
	st := store.Defaults()
	s := &st.Settings
	s.NotifyChannelID = c.NotifyChannelID
	s.MentionHere = c.MentionHere
	if c.KeywordRegex != "" {
		s.KeywordRegex = c.KeywordRegex
	}
	s.CheckIntervalSeconds = store.ClampInt(c.CheckIntervalSeconds, store.MinIntervalSeconds, store.MaxIntervalSeconds, store.DefaultIntervalSeconds)
	s.DiscoveryMode = c.DiscoveryMode
	s.DiscoveryTwitchPages = store.ClampInt(c.DiscoveryTwitchPages, 1, 50, store.DefaultDiscoveryTwitchPages)
	s.DiscoveryKickLimit = store.ClampInt(c.DiscoveryKickLimit, 1, 100, store.DefaultDiscoveryKickLimit)
	if c.TwitchGameID != "" {
		s.TwitchGameID = c.TwitchGameID
	}
	if c.KickCategoryName != "" {
		s.KickCategoryName = c.KickCategoryName
	}
	return st
}
