package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/relaybots/relay/backend/go-services/pkg/logger"
)

// Config holds application configuration shared by the console and bot workers
type Config struct {
	Server    ServerConfig
	Store     StoreConfig
	Console   ConsoleConfig
	MongoDB   MongoDBConfig
	Redis     RedisConfig
	MinIO     MinIOConfig
	RateLimit RateLimitConfig
	Telegram  TelegramConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// StoreConfig locates the shared JSON document.
type StoreConfig struct {
	DataDir     string
	Path        string
	LockTimeout time.Duration
}

// ConsoleConfig describes the static admin account table and session settings.
// Accounts maps identity -> bcrypt hash; Passwords holds plaintext defaults that
// are hashed once at startup when no hash is configured for that identity.
type ConsoleConfig struct {
	Accounts      map[string]string
	Passwords     map[string]string
	SessionSecret string
	SessionTTL    time.Duration
}

type MongoDBConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type MinIOConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Bucket    string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

type TelegramConfig struct {
	Token       string
	APIURL      string
	PollTimeout time.Duration
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("SERVER_PORT", "5000")
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_ENVIRONMENT", "development")
	v.SetDefault("DATA_DIR", "data")
	v.SetDefault("STORE_LOCK_TIMEOUT", "5s")
	v.SetDefault("SESSION_TTL", "12h")
	v.SetDefault("CONSOLE_ADMIN_PASSWORD", "admin123")
	v.SetDefault("CONSOLE_SUPPORT_PASSWORD", "support123")
	v.SetDefault("MONGODB_DATABASE", "relay")
	v.SetDefault("MONGODB_TIMEOUT", 10)
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("MINIO_BUCKET", "relay-backups")
	v.SetDefault("RATE_LIMIT_ENABLED", true)
	v.SetDefault("RATE_LIMIT_RPS", 1.0)
	v.SetDefault("RATE_LIMIT_BURST", 5)
	v.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 60)
	v.SetDefault("TELEGRAM_API_URL", "https://api.telegram.org")
	v.SetDefault("TELEGRAM_POLL_TIMEOUT", "30s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "console")

	dataDir := v.GetString("DATA_DIR")
	dbPath := v.GetString("DB_PATH")
	if dbPath == "" {
		dbPath = filepath.Join(dataDir, "db.json")
	}

	accounts, err := parseAccounts(v.GetString("CONSOLE_ACCOUNTS"))
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("SERVER_PORT"),
			Host:         v.GetString("SERVER_HOST"),
			Environment:  v.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Store: StoreConfig{
			DataDir:     dataDir,
			Path:        dbPath,
			LockTimeout: v.GetDuration("STORE_LOCK_TIMEOUT"),
		},
		Console: ConsoleConfig{
			Accounts: accounts,
			Passwords: map[string]string{
				"admin":   v.GetString("CONSOLE_ADMIN_PASSWORD"),
				"support": v.GetString("CONSOLE_SUPPORT_PASSWORD"),
			},
			SessionSecret: os.Getenv("SESSION_SECRET"),
			SessionTTL:    v.GetDuration("SESSION_TTL"),
		},
		MongoDB: MongoDBConfig{
			URI:      v.GetString("MONGODB_URI"),
			Database: v.GetString("MONGODB_DATABASE"),
			Timeout:  time.Duration(v.GetInt("MONGODB_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     v.GetString("REDIS_HOST"),
			Port:     v.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       v.GetInt("REDIS_DB"),
		},
		MinIO: MinIOConfig{
			Endpoint:  v.GetString("MINIO_ENDPOINT"),
			AccessKey: v.GetString("MINIO_ACCESS_KEY"),
			SecretKey: os.Getenv("MINIO_SECRET_KEY"),
			UseSSL:    v.GetBool("MINIO_USE_SSL"),
			Bucket:    v.GetString("MINIO_BUCKET"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       v.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      v.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           v.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         v.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: v.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
		Telegram: TelegramConfig{
			Token:       os.Getenv("TELEGRAM_BOT_TOKEN"),
			APIURL:      v.GetString("TELEGRAM_API_URL"),
			PollTimeout: v.GetDuration("TELEGRAM_POLL_TIMEOUT"),
		},
		Log: LogConfig{
			Level:  v.GetString("LOG_LEVEL"),
			Format: v.GetString("LOG_FORMAT"),
		},
	}

	// Basic validation
	if cfg.Store.LockTimeout <= 0 {
		return nil, fmt.Errorf("STORE_LOCK_TIMEOUT must be positive, got %s", cfg.Store.LockTimeout)
	}
	if cfg.Console.SessionTTL <= 0 {
		return nil, fmt.Errorf("SESSION_TTL must be positive, got %s", cfg.Console.SessionTTL)
	}
	if cfg.Console.SessionSecret == "" {
		logger.Warn("SESSION_SECRET is not set; console sessions will not survive a restart")
	}

	return cfg, nil
}

// parseAccounts reads "name:hash,name:hash". bcrypt hashes contain '$' but no
// ':' or ',', so the first ':' splits each entry.
func parseAccounts(raw string) (map[string]string, error) {
	out := map[string]string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return out, nil
	}
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		name, hash, ok := strings.Cut(entry, ":")
		name, hash = strings.TrimSpace(name), strings.TrimSpace(hash)
		if !ok || name == "" || hash == "" {
			return nil, fmt.Errorf("CONSOLE_ACCOUNTS: malformed entry %q (want name:bcrypt-hash)", entry)
		}
		if _, dup := out[name]; dup {
			return nil, fmt.Errorf("CONSOLE_ACCOUNTS: duplicate account %q", name)
		}
		out[name] = hash
	}
	return out, nil
}
