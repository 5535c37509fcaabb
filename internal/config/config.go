package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	env "github.com/Netflix/go-env"
	"github.com/joho/godotenv"
)

type Config struct {
	Env        string `env:"ENV,default=development"`
	ServerPort string `env:"SERVER_PORT,default=8080"`
	LogLevel   string `env:"LOG_LEVEL,default=info"`

	// DatabaseURL selects Postgres. Without it the embedded badger store at
	// BadgerPath is used and SeedFile, if set, is loaded into it.
	DatabaseURL string `env:"DATABASE_URL"`
	BadgerPath  string `env:"BADGER_PATH,default=./data/huddle"`
	SeedFile    string `env:"SEED_FILE"`

	RedisURL     string `env:"REDIS_URL"`
	RedisChannel string `env:"REDIS_CHANNEL,default=huddle:rooms"`

	JWTSecret string `env:"JWT_SECRET,default=dev-secret-change-me"`

	TypingTimeout    time.Duration `env:"TYPING_TIMEOUT,default=3s"`
	WSSendBuffer     int           `env:"WS_SEND_BUFFER,default=256"`
	WSRateLimit      float64       `env:"WS_RATE_LIMIT,default=20"`
	WSRateBurst      int           `env:"WS_RATE_BURST,default=40"`
	MessagePageLimit int           `env:"MESSAGE_PAGE_LIMIT,default=50"`
	AllowedOrigins   string        `env:"ALLOWED_ORIGINS,default=*"`
}

// Load reads an optional .env file, then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if _, err := env.UnmarshalFromEnviron(&cfg); err != nil {
		return nil, fmt.Errorf("reading environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

func (c *Config) Validate() error {
	if c.IsProduction() {
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required in production")
		}
		if c.JWTSecret == "dev-secret-change-me" {
			return errors.New("JWT_SECRET must be set in production")
		}
	}
	if c.TypingTimeout <= 0 {
		return fmt.Errorf("TYPING_TIMEOUT must be positive, got %s", c.TypingTimeout)
	}
	if c.WSSendBuffer <= 0 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WSSendBuffer)
	}
	if c.WSRateLimit <= 0 || c.WSRateBurst <= 0 {
		return errors.New("WS_RATE_LIMIT and WS_RATE_BURST must be positive")
	}
	if c.MessagePageLimit <= 0 || c.MessagePageLimit > 100 {
		return fmt.Errorf("MESSAGE_PAGE_LIMIT must be between 1 and 100, got %d", c.MessagePageLimit)
	}
	return nil
}

// Origins splits ALLOWED_ORIGINS on commas.
func (c *Config) Origins() []string {
	var out []string
	for _, o := range strings.Split(c.AllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}
