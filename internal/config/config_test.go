package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/peterldowns/testy/assert"
	"github.com/peterldowns/testy/check"
)

const sampleTOML = `
log_level = "debug"

[server]
addr = ":9000"
admin_user_ids = ["admin-1"]

[database]
driver = "memory"

[market]
session_size = 6
session_length = "2h"
seed_demo = true

[auth]
static_tokens = ["t1=user-1"]

[worker]
tick_every = "15s"
`

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "leaguebid.toml")
	assert.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_FileOverDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleTOML))
	assert.NoError(t, err)

	check.Equal(t, "debug", cfg.LogLevel)
	check.Equal(t, ":9000", cfg.Server.Addr)
	check.Equal(t, []string{"admin-1"}, cfg.Server.AdminUserIDs)
	check.Equal(t, "memory", cfg.Database.Driver)
	check.Equal(t, 6, cfg.Market.SessionSize)
	check.Equal(t, 25, cfg.Market.MaxRoster)
	check.Equal(t, 2*time.Hour, cfg.Market.SessionLength.Duration)
	check.True(t, cfg.Market.SeedDemo)
	check.True(t, cfg.Market.RequireActiveMembership)
	check.Equal(t, 15*time.Second, cfg.Worker.TickEvery.Duration)
	check.Equal(t, "leaguebid:events", cfg.Redis.Stream)
	check.NoError(t, cfg.ValidateAPI())
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("PORT", "7070")
	t.Setenv("LEAGUEBID_MARKET_MAX_ROSTER", "18")
	t.Setenv("LEAGUEBID_ADMIN_USER_IDS", "a, b,,c")
	t.Setenv("LEAGUEBID_WORKER_RUN_ONCE", "true")
	t.Setenv("LEAGUEBID_MARKET_SESSION_SIZE", "not-a-number")
	t.Setenv("SUPABASE_URL", "https://example.supabase.co/")

	cfg, err := Load(writeConfig(t, sampleTOML))
	assert.NoError(t, err)
	check.Equal(t, ":7070", cfg.Server.Addr)
	check.Equal(t, 18, cfg.Market.MaxRoster)
	check.Equal(t, []string{"a", "b", "c"}, cfg.Server.AdminUserIDs)
	check.True(t, cfg.Worker.RunOnce)
	check.Equal(t, 6, cfg.Market.SessionSize)
	check.Equal(t, "https://example.supabase.co", cfg.Auth.SupabaseURL)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.toml"))
	check.Error(t, err)
}

func TestValidate(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"memory defaults", func(c *Config) { c.Database.Driver = "memory" }, true},
		{"postgres without url", func(c *Config) {}, false},
		{"postgres with url", func(c *Config) { c.Database.URL = "postgres://localhost/lb" }, true},
		{"unknown driver", func(c *Config) { c.Database.Driver = "sqlite" }, false},
		{"zero session size", func(c *Config) { c.Database.Driver = "memory"; c.Market.SessionSize = 0 }, false},
		{"s3 without bucket", func(c *Config) { c.Database.Driver = "memory"; c.S3.Enabled = true }, false},
		{"telegram half set", func(c *Config) { c.Database.Driver = "memory"; c.Notify.TelegramBotToken = "x" }, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := Defaults()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.ok {
				check.NoError(t, err)
			} else {
				check.Error(t, err)
			}
		})
	}
}

func TestValidateAPI_Auth(t *testing.T) {
	cfg := Defaults()
	cfg.Database.Driver = "memory"
	check.Error(t, cfg.ValidateAPI())

	cfg.Auth.StaticTokens = []string{"broken"}
	check.Error(t, cfg.ValidateAPI())

	cfg.Auth.StaticTokens = nil
	cfg.Auth.SupabaseURL = "https://x.supabase.co"
	cfg.Auth.SupabaseAnonKey = "anon"
	check.NoError(t, cfg.ValidateAPI())
}

func TestLoadCLIFromEnv(t *testing.T) {
	t.Setenv("LB_API_BASE_URL", "https://api.example.com/")
	check.Equal(t, "https://api.example.com", LoadCLIFromEnv().APIBaseURL)
}
