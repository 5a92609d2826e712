package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// lockTTLMargin is added on top of both backend stages when deriving the submission lock TTL.
const lockTTLMargin = time.Minute

// Config holds runtime configuration values for the comparison service.
type Config struct {
	AppName           string
	AppEnv            string
	AppPort           string
	BackendURL        string
	BackendTimeout    time.Duration
	RedisURL          string
	SubmissionLockTTL time.Duration
	AnswerCacheTTL    time.Duration
	RateLimitMax      int
	RateLimitWindow   time.Duration
	ModelName         string
}

// HTTPAddress returns the address the HTTP server should listen on.
func (c Config) HTTPAddress() string {
	if strings.HasPrefix(c.AppPort, ":") {
		return c.AppPort
	}

	return fmt.Sprintf(":%s", c.AppPort)
}

// Load reads configuration values from environment variables and optional .env file.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix("LLMCMP")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	return FromViper(v)
}

// FromViper builds a Config from an already prepared viper instance.
func FromViper(v *viper.Viper) (Config, error) {
	v.SetDefault("app.name", "LLM Compare")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.port", "8080")
	v.SetDefault("backend.timeout", "5m")
	v.SetDefault("answer.cache_ttl", "24h")
	v.SetDefault("ratelimit.max", 5)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("model.name", "gpt-4o-mini-2024-07-18")

	backendTimeout, err := parseDuration(v, "backend.timeout")
	if err != nil {
		return Config{}, err
	}
	lockTTL, err := parseDuration(v, "submission.lock_ttl")
	if err != nil {
		return Config{}, err
	}
	switch {
	case lockTTL == 0:
		lockTTL = 2*backendTimeout + lockTTLMargin
	case lockTTL <= 2*backendTimeout:
		return Config{}, fmt.Errorf("invalid submission.lock_ttl: %s must exceed two backend timeouts (%s)", lockTTL, 2*backendTimeout)
	}
	answerTTL, err := parseDuration(v, "answer.cache_ttl")
	if err != nil {
		return Config{}, err
	}
	window, err := parseDuration(v, "ratelimit.window")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		AppName:           v.GetString("app.name"),
		AppEnv:            v.GetString("app.env"),
		AppPort:           v.GetString("app.port"),
		BackendURL:        strings.TrimRight(strings.TrimSpace(v.GetString("backend.url")), "/"),
		BackendTimeout:    backendTimeout,
		RedisURL:          v.GetString("redis.url"),
		SubmissionLockTTL: lockTTL,
		AnswerCacheTTL:    answerTTL,
		RateLimitMax:      v.GetInt("ratelimit.max"),
		RateLimitWindow:   window,
		ModelName:         v.GetString("model.name"),
	}

	if cfg.BackendURL == "" {
		return Config{}, fmt.Errorf("backend url must be provided")
	}

	if cfg.RateLimitMax <= 0 {
		cfg.RateLimitMax = 5
	}

	return cfg, nil
}

func parseDuration(v *viper.Viper, key string) (time.Duration, error) {
	raw := strings.TrimSpace(v.GetString(key))
	if raw == "" {
		return 0, nil
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", key, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid %s: must not be negative", key)
	}
	return d, nil
}
