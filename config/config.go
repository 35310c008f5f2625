package config

import (
	"fmt"
	"net/url"
	"time"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

type Config struct {
	Telegram struct {
		// Bot token issued by @BotFather
		BotToken string `env:"TELEGRAM_BOT_TOKEN"`

		// Base URL of the Bot API, overridable for tests and local proxies
		APIURL string `env:"TELEGRAM_API_URL" envDefault:"https://api.telegram.org"`

		// Long polling timeout passed to getUpdates
		PollTimeout time.Duration `env:"TELEGRAM_POLL_TIMEOUT" envDefault:"30s"`

		// Timeout for a single send request
		RequestTimeout time.Duration `env:"TELEGRAM_REQUEST_TIMEOUT" envDefault:"20s"`
	}

	Database struct {
		Host     string `env:"DB_HOST" envDefault:"localhost"`
		Port     int    `env:"DB_PORT" envDefault:"5432"`
		Name     string `env:"DB_NAME" envDefault:"buildings"`
		User     string `env:"DB_USER" envDefault:"postgres"`
		Password string `env:"DB_PASSWORD"`
		SSLMode  string `env:"DB_SSLMODE" envDefault:"disable"`

		MaxOpenConns int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
		MaxIdleConns int           `env:"DB_MAX_IDLE_CONNS" envDefault:"2"`
		QueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"15s"`

		// How often the background job pings the database
		CheckInterval time.Duration `env:"DB_CHECK_INTERVAL" envDefault:"5m"`
	}

	Geocoding struct {
		BaseURL   string        `env:"GEOCODER_URL" envDefault:"https://nominatim.openstreetmap.org/search"`
		UserAgent string        `env:"GEOCODER_USER_AGENT" envDefault:"GeoBot"`
		Timeout   time.Duration `env:"GEOCODER_TIMEOUT" envDefault:"10s"`

		// Number of addresses kept in the in-memory cache
		CacheSize int `env:"GEOCODER_CACHE_SIZE" envDefault:"1024"`

		// When set, cached coordinates are shared through Redis instead
		RedisAddr string        `env:"GEOCODER_REDIS_ADDR"`
		CacheTTL  time.Duration `env:"GEOCODER_CACHE_TTL" envDefault:"168h"`
	}

	Queue struct {
		// Number of per-user shards, each drained by one goroutine
		Shards int `env:"QUEUE_SHARDS" envDefault:"4"`

		// Buffered updates per shard before Push reports the queue as full
		ShardBuffer int `env:"QUEUE_SHARD_BUFFER" envDefault:"64"`

		// Upper bound for handling a single update, including chart uploads
		UpdateTimeout time.Duration `env:"UPDATE_TIMEOUT" envDefault:"2m"`
	}

	Session struct {
		// Comparison flows untouched for this long are reset to idle
		IdleTimeout time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"10m"`

		SweepInterval time.Duration `env:"SESSION_SWEEP_INTERVAL" envDefault:"1m"`
	}

	Charts struct {
		// Parent directory for per-render chart directories, os.TempDir() when empty
		TempDir string `env:"CHARTS_TEMP_DIR"`
	}

	HTTP struct {
		Enabled bool   `env:"HTTP_ENABLED" envDefault:"true"`
		Addr    string `env:"HTTP_ADDR" envDefault:"127.0.0.1:5250"`

		// Bearer token for /api/users; the endpoint is off when empty
		APIToken string `env:"HTTP_API_TOKEN"`

		// Comma separated list; "*" allows any origin
		AllowedOrigins []string `env:"HTTP_ALLOWED_ORIGINS" envSeparator:"," envDefault:"*"`
	}

	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`
}

// LoadConfig reads an optional .env file and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DSN assembles the PostgreSQL connection string.
func (c *Config) DSN() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Database.User, c.Database.Password),
		Host:   fmt.Sprintf("%s:%d", c.Database.Host, c.Database.Port),
		Path:   c.Database.Name,
	}
	q := u.Query()
	q.Set("sslmode", c.Database.SSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Validate reports settings the bot cannot start without.
func (c *Config) Validate() error {
	if c.Telegram.BotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is not set")
	}
	if c.Queue.Shards <= 0 {
		return fmt.Errorf("QUEUE_SHARDS must be positive, got %d", c.Queue.Shards)
	}
	if c.Session.SweepInterval <= 0 {
		return fmt.Errorf("SESSION_SWEEP_INTERVAL must be positive")
	}
	return nil
}
