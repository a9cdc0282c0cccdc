package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const credsYAML = `
reddit:
  username: bot
  password: pw
  client_id: cid
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load(writeConfig(t, credsYAML))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Bot.Limit != 25 || cfg.Bot.Wait != 5*time.Second || cfg.Bot.RefreshCycles != 180 {
		t.Fatalf("unexpected bot defaults: %+v", cfg.Bot)
	}
	if cfg.Bot.SettingsWiki != "SnapshillBot" || cfg.Bot.OverflowSubreddit != "SnapshillBotEx" {
		t.Fatalf("unexpected scope defaults: %+v", cfg.Bot)
	}
	if cfg.Site.APIWait != 2*time.Second || cfg.Site.CanonicalBase != "https://old.reddit.com" {
		t.Fatalf("unexpected site defaults: %+v", cfg.Site)
	}
	if cfg.Render.MaxCommentLength != 9999 || cfg.Render.MaxOverflowLength != 39999 {
		t.Fatalf("unexpected render limits: %+v", cfg.Render)
	}
	if len(cfg.Archive.Mirrors) != 1 || cfg.Archive.Mirrors[0] != "removeddit" {
		t.Fatalf("unexpected mirrors: %v", cfg.Archive.Mirrors)
	}
	if cfg.Archive.Timeout != time.Minute || cfg.Bot.WarnAfter != 5*time.Minute {
		t.Fatalf("unexpected timeouts: %v %v", cfg.Archive.Timeout, cfg.Bot.WarnAfter)
	}
	if cfg.DB.Driver != DriverSQLite || cfg.DB.Path != "snapshill.sqlite3" {
		t.Fatalf("unexpected db defaults: %+v", cfg.DB)
	}
	if cfg.Server.Port != 8080 {
		t.Fatalf("expected port 8080, got %d", cfg.Server.Port)
	}
	if cfg.Telemetry.ServiceName != "snapshill" || cfg.Telemetry.LogSpans {
		t.Fatalf("unexpected telemetry defaults: %+v", cfg.Telemetry)
	}
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, credsYAML+`
bot:
  limit: 10
  wait: 30
  post_concurrency: 2
  dry_run: true
site:
  domain: example-feed.com
  canonical_base: https://old.example-feed.com
  api_wait: 500ms
render:
  escape_mentions_in: [a, b]
archive:
  megalodon_enabled: true
  mirrors: [removeddit, snew]
db:
  driver: postgres
  dsn: postgres://localhost/snapshill
server:
  port: 0
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Bot.Limit != 10 || cfg.Bot.PostConcurrency != 2 || !cfg.Bot.DryRun {
		t.Fatalf("expected bot overrides to apply: %+v", cfg.Bot)
	}
	if cfg.Bot.Wait != 30*time.Second {
		t.Fatalf("expected bare seconds to parse, got %v", cfg.Bot.Wait)
	}
	if cfg.Site.APIWait != 500*time.Millisecond || cfg.Site.Domain != "example-feed.com" {
		t.Fatalf("expected site overrides to apply: %+v", cfg.Site)
	}
	if strings.Join(cfg.Render.EscapeMentionsIn, ",") != "a,b" {
		t.Fatalf("unexpected escape scopes: %v", cfg.Render.EscapeMentionsIn)
	}
	if !cfg.Archive.MegalodonEnabled || len(cfg.Archive.Mirrors) != 2 {
		t.Fatalf("expected archive overrides to apply: %+v", cfg.Archive)
	}
	if cfg.DB.Driver != DriverPostgres || cfg.Server.Port != 0 {
		t.Fatalf("expected db/server overrides to apply")
	}
}

func TestLoadLegacyEnvironment(t *testing.T) {
	t.Setenv("REDDIT_USER", "legacy-user")
	t.Setenv("REDDIT_PASS", "legacy-pass")
	t.Setenv("REDDIT_CLIENT_ID", "legacy-id")
	t.Setenv("LIMIT", "7")
	t.Setenv("WAIT", "12")
	t.Setenv("DATABASE", "/tmp/legacy.sqlite3")
	t.Setenv("DEBUG", "true")
	t.Setenv("TEST", "true")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reddit.Username != "legacy-user" || cfg.Reddit.Password != "legacy-pass" || cfg.Reddit.ClientID != "legacy-id" {
		t.Fatalf("legacy credentials not bound: %+v", cfg.Reddit)
	}
	if cfg.Bot.Limit != 7 || cfg.Bot.Wait != 12*time.Second {
		t.Fatalf("legacy loop settings not bound: %+v", cfg.Bot)
	}
	if cfg.DB.Path != "/tmp/legacy.sqlite3" || !cfg.Logging.Development || !cfg.Bot.DryRun {
		t.Fatalf("legacy flags not bound")
	}
}

func TestPrefixedEnvironmentWinsOverLegacy(t *testing.T) {
	t.Setenv("SNAPSHILL_REDDIT_USERNAME", "new-user")
	t.Setenv("REDDIT_USER", "legacy-user")
	t.Setenv("REDDIT_PASS", "pw")
	t.Setenv("SNAPSHILL_REDDIT_CLIENT_ID", "cid")
	t.Setenv("SNAPSHILL_BOT_POST_CONCURRENCY", "9")

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Reddit.Username != "new-user" {
		t.Fatalf("expected prefixed name to win, got %q", cfg.Reddit.Username)
	}
	if cfg.Bot.PostConcurrency != 9 {
		t.Fatalf("expected automatic env binding, got %d", cfg.Bot.PostConcurrency)
	}
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	base := func() Config {
		return Config{
			Reddit:  RedditConfig{Username: "u", Password: "p", ClientID: "c"},
			Bot:     BotConfig{Limit: 25, Wait: time.Second, RefreshCycles: 1, PostConcurrency: 1},
			Site:    SiteConfig{Domain: "reddit.com"},
			Render:  RenderConfig{MaxCommentLength: 10, MaxOverflowLength: 20},
			Archive: ArchiveConfig{Timeout: time.Second},
			DB:      DBConfig{Driver: DriverMemory},
		}
	}
	if err := base().Validate(); err != nil {
		t.Fatalf("base config should validate: %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"missing credentials", func(c *Config) { c.Reddit.Password = "" }, "reddit.username"},
		{"missing client id", func(c *Config) { c.Reddit.ClientID = "" }, "reddit.client_id"},
		{"zero limit", func(c *Config) { c.Bot.Limit = 0 }, "bot.limit"},
		{"zero concurrency", func(c *Config) { c.Bot.PostConcurrency = 0 }, "bot.post_concurrency"},
		{"overflow shorter than comment", func(c *Config) { c.Render.MaxOverflowLength = 5 }, "max_overflow_length"},
		{"sqlite without path", func(c *Config) { c.DB.Driver = DriverSQLite }, "db.path"},
		{"postgres without dsn", func(c *Config) { c.DB.Driver = DriverPostgres }, "db.dsn"},
		{"unknown driver", func(c *Config) { c.DB.Driver = "mongo" }, "db.driver"},
		{"negative port", func(c *Config) { c.Server.Port = -1 }, "server.port"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := base()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tc.want)
			}
		})
	}
}
