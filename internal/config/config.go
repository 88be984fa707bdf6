package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

type Config struct {
	LogLevel string         `toml:"log_level"`
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Market   MarketConfig   `toml:"market"`
	Auth     AuthConfig     `toml:"auth"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Notify   NotifyConfig   `toml:"notify"`
	Worker   WorkerConfig   `toml:"worker"`
}

type ServerConfig struct {
	Addr         string   `toml:"addr"`
	AdminUserIDs []string `toml:"admin_user_ids"`
}

type DatabaseConfig struct {
	Driver        string `toml:"driver"`
	URL           string `toml:"url"`
	MaxConns      int    `toml:"max_conns"`
	MinConns      int    `toml:"min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
}

type MarketConfig struct {
	SessionSize             int      `toml:"session_size"`
	MaxRoster               int      `toml:"max_roster"`
	SessionLength           Duration `toml:"session_length"`
	RequireActiveMembership bool     `toml:"require_active_membership"`
	SeedDemo                bool     `toml:"seed_demo"`
	DemoControllers         []string `toml:"demo_controllers"`
}

type AuthConfig struct {
	SupabaseURL     string `toml:"supabase_url"`
	SupabaseAnonKey string `toml:"supabase_anon_key"`
	// StaticTokens holds "token=user_id" pairs accepted without Supabase.
	StaticTokens []string `toml:"static_tokens"`
}

type RedisConfig struct {
	Enabled  bool   `toml:"enabled"`
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Stream   string `toml:"stream"`
}

type S3Config struct {
	Enabled        bool   `toml:"enabled"`
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Prefix         string `toml:"prefix"`
}

type NotifyConfig struct {
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	TelegramBotToken  string   `toml:"telegram_bot_token"`
	TelegramChatID    int64    `toml:"telegram_chat_id"`
	Events            []string `toml:"events"`
}

type WorkerConfig struct {
	TickEvery Duration `toml:"tick_every"`
	RunOnce   bool     `toml:"run_once"`
}

// Duration decodes TOML strings such as "24h" or "30s".
type Duration struct {
	time.Duration
}

func (d *Duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

type CLIConfig struct {
	APIBaseURL string
}

func Defaults() Config {
	return Config{
		LogLevel: "info",
		Server:   ServerConfig{Addr: ":8080"},
		Database: DatabaseConfig{Driver: "postgres", MaxConns: 20, MinConns: 2, RunMigrations: true},
		Market: MarketConfig{
			SessionSize:             10,
			MaxRoster:               25,
			SessionLength:           Duration{24 * time.Hour},
			RequireActiveMembership: true,
		},
		Redis:  RedisConfig{Addr: "localhost:6379", Stream: "leaguebid:events"},
		S3:     S3Config{Region: "us-east-1", Prefix: "clearing-reports"},
		Worker: WorkerConfig{TickEvery: Duration{time.Minute}},
	}
}

// Load decodes the TOML file at path over the defaults (an empty path skips
// the file), loads .env if present, then applies LEAGUEBID_* overrides.
// The result is not validated.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("decode %s: %w", path, err)
		}
	}
	_ = godotenv.Load()
	applyEnvOverrides(&cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	cfg.LogLevel = envDefault("LEAGUEBID_LOG_LEVEL", cfg.LogLevel)

	if port := strings.TrimSpace(os.Getenv("PORT")); port != "" {
		if !strings.HasPrefix(port, ":") {
			port = ":" + port
		}
		cfg.Server.Addr = port
	} else {
		cfg.Server.Addr = envDefault("LEAGUEBID_SERVER_ADDR", cfg.Server.Addr)
	}
	cfg.Server.AdminUserIDs = envListDefault("LEAGUEBID_ADMIN_USER_IDS", cfg.Server.AdminUserIDs)

	cfg.Database.Driver = envDefault("LEAGUEBID_DATABASE_DRIVER", cfg.Database.Driver)
	cfg.Database.URL = envDefault("DATABASE_URL", envDefault("LEAGUEBID_DATABASE_URL", cfg.Database.URL))
	cfg.Database.MaxConns = envIntDefault("LEAGUEBID_DATABASE_MAX_CONNS", cfg.Database.MaxConns)
	cfg.Database.MinConns = envIntDefault("LEAGUEBID_DATABASE_MIN_CONNS", cfg.Database.MinConns)
	cfg.Database.RunMigrations = envBoolDefault("LEAGUEBID_DATABASE_RUN_MIGRATIONS", cfg.Database.RunMigrations)

	cfg.Market.SessionSize = envIntDefault("LEAGUEBID_MARKET_SESSION_SIZE", cfg.Market.SessionSize)
	cfg.Market.MaxRoster = envIntDefault("LEAGUEBID_MARKET_MAX_ROSTER", cfg.Market.MaxRoster)
	cfg.Market.SessionLength.Duration = envDurationDefault("LEAGUEBID_MARKET_SESSION_LENGTH", cfg.Market.SessionLength.Duration)
	cfg.Market.RequireActiveMembership = envBoolDefault("LEAGUEBID_MARKET_REQUIRE_ACTIVE_MEMBERSHIP", cfg.Market.RequireActiveMembership)
	cfg.Market.SeedDemo = envBoolDefault("LEAGUEBID_MARKET_SEED_DEMO", cfg.Market.SeedDemo)
	cfg.Market.DemoControllers = envListDefault("LEAGUEBID_MARKET_DEMO_CONTROLLERS", cfg.Market.DemoControllers)

	cfg.Auth.SupabaseURL = strings.TrimRight(envDefault("SUPABASE_URL", cfg.Auth.SupabaseURL), "/")
	cfg.Auth.SupabaseAnonKey = envDefault("SUPABASE_ANON_KEY", cfg.Auth.SupabaseAnonKey)
	cfg.Auth.StaticTokens = envListDefault("LEAGUEBID_AUTH_STATIC_TOKENS", cfg.Auth.StaticTokens)

	cfg.Redis.Enabled = envBoolDefault("LEAGUEBID_REDIS_ENABLED", cfg.Redis.Enabled)
	cfg.Redis.Addr = envDefault("LEAGUEBID_REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = envDefault("LEAGUEBID_REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = envIntDefault("LEAGUEBID_REDIS_DB", cfg.Redis.DB)
	cfg.Redis.Stream = envDefault("LEAGUEBID_REDIS_STREAM", cfg.Redis.Stream)

	cfg.S3.Enabled = envBoolDefault("LEAGUEBID_S3_ENABLED", cfg.S3.Enabled)
	cfg.S3.Endpoint = envDefault("LEAGUEBID_S3_ENDPOINT", cfg.S3.Endpoint)
	cfg.S3.Region = envDefault("LEAGUEBID_S3_REGION", cfg.S3.Region)
	cfg.S3.Bucket = envDefault("LEAGUEBID_S3_BUCKET", cfg.S3.Bucket)
	cfg.S3.AccessKey = envDefault("LEAGUEBID_S3_ACCESS_KEY", cfg.S3.AccessKey)
	cfg.S3.SecretKey = envDefault("LEAGUEBID_S3_SECRET_KEY", cfg.S3.SecretKey)
	cfg.S3.ForcePathStyle = envBoolDefault("LEAGUEBID_S3_FORCE_PATH_STYLE", cfg.S3.ForcePathStyle)
	cfg.S3.Prefix = envDefault("LEAGUEBID_S3_PREFIX", cfg.S3.Prefix)

	cfg.Notify.DiscordWebhookURL = envDefault("LEAGUEBID_NOTIFY_DISCORD_WEBHOOK_URL", cfg.Notify.DiscordWebhookURL)
	cfg.Notify.TelegramBotToken = envDefault("LEAGUEBID_NOTIFY_TELEGRAM_BOT_TOKEN", cfg.Notify.TelegramBotToken)
	cfg.Notify.TelegramChatID = envInt64Default("LEAGUEBID_NOTIFY_TELEGRAM_CHAT_ID", cfg.Notify.TelegramChatID)
	cfg.Notify.Events = envListDefault("LEAGUEBID_NOTIFY_EVENTS", cfg.Notify.Events)

	cfg.Worker.TickEvery.Duration = envDurationDefault("LEAGUEBID_WORKER_TICK_EVERY", cfg.Worker.TickEvery.Duration)
	cfg.Worker.RunOnce = envBoolDefault("LEAGUEBID_WORKER_RUN_ONCE", cfg.Worker.RunOnce)
}

// Validate checks the fields every binary needs.
func (c Config) Validate() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("database.url (DATABASE_URL) is required for the postgres driver")
		}
	case "memory":
	default:
		return fmt.Errorf("database.driver must be postgres or memory, got %q", c.Database.Driver)
	}
	if c.Market.SessionSize <= 0 {
		return fmt.Errorf("market.session_size must be > 0")
	}
	if c.Market.MaxRoster <= 0 {
		return fmt.Errorf("market.max_roster must be > 0")
	}
	if c.Market.SessionLength.Duration <= 0 {
		return fmt.Errorf("market.session_length must be > 0")
	}
	if c.Worker.TickEvery.Duration <= 0 {
		return fmt.Errorf("worker.tick_every must be > 0")
	}
	if c.S3.Enabled && c.S3.Bucket == "" {
		return fmt.Errorf("s3.bucket is required when s3 is enabled")
	}
	if (c.Notify.TelegramBotToken == "") != (c.Notify.TelegramChatID == 0) {
		return fmt.Errorf("notify.telegram_bot_token and notify.telegram_chat_id must be set together")
	}
	return nil
}

// ValidateAPI additionally requires a way to authenticate callers.
func (c Config) ValidateAPI() error {
	if err := c.Validate(); err != nil {
		return err
	}
	hasSupabase := c.Auth.SupabaseURL != "" && c.Auth.SupabaseAnonKey != ""
	if !hasSupabase && len(c.Auth.StaticTokens) == 0 {
		return fmt.Errorf("auth needs SUPABASE_URL and SUPABASE_ANON_KEY or static_tokens")
	}
	for _, pair := range c.Auth.StaticTokens {
		if token, user, ok := strings.Cut(pair, "="); !ok || token == "" || user == "" {
			return fmt.Errorf("auth.static_tokens entries must look like token=user_id")
		}
	}
	return nil
}

func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func LoadCLIFromEnv() CLIConfig {
	return CLIConfig{
		APIBaseURL: strings.TrimRight(envDefault("LB_API_BASE_URL", "http://localhost:8080"), "/"),
	}
}

func envDefault(key, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	return v
}

func envDurationDefault(key string, fallback time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envIntDefault(key string, fallback int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envInt64Default(key string, fallback int64) int64 {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fallback
	}
	return n
}

func envBoolDefault(key string, fallback bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envListDefault(key string, fallback []string) []string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
