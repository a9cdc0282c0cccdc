// Package config loads and validates bot configuration via Viper.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Reddit    RedditConfig    `mapstructure:"reddit"`
	Bot       BotConfig       `mapstructure:"bot"`
	Site      SiteConfig      `mapstructure:"site"`
	Render    RenderConfig    `mapstructure:"render"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	DB        DBConfig        `mapstructure:"db"`
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// RedditConfig holds API credentials and endpoints.
type RedditConfig struct {
	Username          string `mapstructure:"username"`
	Password          string `mapstructure:"password"`
	ClientID          string `mapstructure:"client_id"`
	ClientSecret      string `mapstructure:"client_secret"`
	UserAgent         string `mapstructure:"user_agent"`
	APIBase           string `mapstructure:"api_base"`
	TokenURL          string `mapstructure:"token_url"`
	RequestsPerMinute int    `mapstructure:"requests_per_minute"`
}

// BotConfig governs the polling loop and reply behavior.
type BotConfig struct {
	Limit             int           `mapstructure:"limit"`
	Wait              time.Duration `mapstructure:"wait"`
	RefreshCycles     int           `mapstructure:"refresh_cycles"`
	SettingsWiki      string        `mapstructure:"settings_wiki"`
	OverflowSubreddit string        `mapstructure:"overflow_subreddit"`
	PostConcurrency   int           `mapstructure:"post_concurrency"`
	WarnAfter         time.Duration `mapstructure:"warn_after"`
	DryRun            bool          `mapstructure:"dry_run"`
}

// SiteConfig describes the feed site's own hosts.
type SiteConfig struct {
	Domain        string        `mapstructure:"domain"`
	CanonicalBase string        `mapstructure:"canonical_base"`
	APIWait       time.Duration `mapstructure:"api_wait"`
}

// RenderConfig controls the reply text.
type RenderConfig struct {
	Info              string   `mapstructure:"info"`
	Contact           string   `mapstructure:"contact"`
	MaxCommentLength  int      `mapstructure:"max_comment_length"`
	MaxOverflowLength int      `mapstructure:"max_overflow_length"`
	TitleMaxLength    int      `mapstructure:"title_max_length"`
	EscapeMentionsIn  []string `mapstructure:"escape_mentions_in"`
}

// ArchiveConfig controls the archive backends.
type ArchiveConfig struct {
	UserAgent         string        `mapstructure:"user_agent"`
	Timeout           time.Duration `mapstructure:"timeout"`
	MegalodonEnabled  bool          `mapstructure:"megalodon_enabled"`
	MegalodonInterval time.Duration `mapstructure:"megalodon_interval"`
	Mirrors           []string      `mapstructure:"mirrors"`
}

// DBConfig selects and configures the idempotency store.
type DBConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ServerConfig controls the ops HTTP server. Port 0 disables it.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// TelemetryConfig controls tracing.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	LogSpans    bool   `mapstructure:"log_spans"`
}

// Store drivers accepted in db.driver.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// legacyEnv maps keys to the environment names of older deployments.
var legacyEnv = map[string]string{
	"reddit.username":      "REDDIT_USER",
	"reddit.password":      "REDDIT_PASS",
	"reddit.client_id":     "REDDIT_CLIENT_ID",
	"reddit.client_secret": "REDDIT_CLIENT_SECRET",
	"bot.limit":            "LIMIT",
	"bot.wait":             "WAIT",
	"db.path":              "DATABASE",
	"logging.development":  "DEBUG",
	"bot.dry_run":          "TEST",
}

// secondsKeys accept a bare number of seconds as well as a duration string.
var secondsKeys = []string{"bot.wait", "bot.warn_after", "site.api_wait", "archive.timeout", "archive.megalodon_interval"}

const envPrefix = "SNAPSHILL"

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	for key, legacy := range legacyEnv {
		prefixed := envPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, prefixed, legacy); err != nil {
			return Config{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	for _, key := range secondsKeys {
		raw := strings.TrimSpace(v.GetString(key))
		if n, err := strconv.ParseFloat(raw, 64); err == nil {
			v.Set(key, time.Duration(n*float64(time.Second)))
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("reddit.user_agent", "Archives to archive.is and archive.org (/r/SnapshillBot) v1.4")
	v.SetDefault("reddit.api_base", "https://oauth.reddit.com")
	v.SetDefault("reddit.token_url", "https://www.reddit.com/api/v1/access_token")
	v.SetDefault("reddit.requests_per_minute", 60)
	v.SetDefault("bot.limit", 25)
	v.SetDefault("bot.wait", "5s")
	v.SetDefault("bot.refresh_cycles", 180)
	v.SetDefault("bot.settings_wiki", "SnapshillBot")
	v.SetDefault("bot.overflow_subreddit", "SnapshillBotEx")
	v.SetDefault("bot.post_concurrency", 4)
	v.SetDefault("bot.warn_after", "5m")
	v.SetDefault("bot.dry_run", false)
	v.SetDefault("site.domain", "reddit.com")
	v.SetDefault("site.canonical_base", "https://old.reddit.com")
	v.SetDefault("site.api_wait", "2s")
	v.SetDefault("render.info", "/r/SnapshillBot")
	v.SetDefault("render.contact", `/message/compose?to=\/r\/SnapshillBot`)
	v.SetDefault("render.max_comment_length", 9999)
	v.SetDefault("render.max_overflow_length", 39999)
	v.SetDefault("render.title_max_length", 35)
	v.SetDefault("render.escape_mentions_in", []string{"TheseFuckingAccounts"})
	v.SetDefault("archive.user_agent", "Archives to archive.is and archive.org (/r/SnapshillBot) v1.4")
	v.SetDefault("archive.timeout", "60s")
	v.SetDefault("archive.megalodon_enabled", false)
	v.SetDefault("archive.megalodon_interval", "10s")
	v.SetDefault("archive.mirrors", []string{"removeddit"})
	v.SetDefault("db.driver", DriverSQLite)
	v.SetDefault("db.path", "snapshill.sqlite3")
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("logging.level", "info")
	v.SetDefault("telemetry.service_name", "snapshill")
	v.SetDefault("telemetry.log_spans", false)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Reddit.Username == "" || c.Reddit.Password == "" {
		return fmt.Errorf("reddit.username and reddit.password are required")
	}
	if c.Reddit.ClientID == "" {
		return fmt.Errorf("reddit.client_id is required")
	}
	if c.Bot.Limit <= 0 {
		return fmt.Errorf("bot.limit must be > 0")
	}
	if c.Bot.Wait < 0 {
		return fmt.Errorf("bot.wait must be >= 0")
	}
	if c.Bot.RefreshCycles <= 0 {
		return fmt.Errorf("bot.refresh_cycles must be > 0")
	}
	if c.Bot.PostConcurrency <= 0 {
		return fmt.Errorf("bot.post_concurrency must be > 0")
	}
	if c.Site.Domain == "" {
		return fmt.Errorf("site.domain is required")
	}
	if c.Render.MaxCommentLength <= 0 {
		return fmt.Errorf("render.max_comment_length must be > 0")
	}
	if c.Render.MaxOverflowLength < c.Render.MaxCommentLength {
		return fmt.Errorf("render.max_overflow_length must be >= render.max_comment_length")
	}
	if c.Archive.Timeout <= 0 {
		return fmt.Errorf("archive.timeout must be > 0")
	}
	switch c.DB.Driver {
	case DriverSQLite:
		if c.DB.Path == "" {
			return fmt.Errorf("db.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.DB.DSN == "" {
			return fmt.Errorf("db.dsn is required for the postgres driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown db.driver %q", c.DB.Driver)
	}
	if c.Server.Port < 0 {
		return fmt.Errorf("server.port must be >= 0")
	}
	return nil
}
