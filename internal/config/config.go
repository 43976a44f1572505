// Package config loads fluxgated's configuration from the environment
// (and an optional .env file), mirroring the teacher pack's
// caarlos0/env + go-playground/validator + joho/godotenv convention.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
)

// Config is fluxgated's full configuration surface (§6's enumerated
// configuration surface).
type Config struct {
	Server struct {
		Port         int           `env:"PORT" envDefault:"8080" validate:"min=1,max=65535"`
		ReadTimeout  time.Duration `env:"READ_TIMEOUT" envDefault:"5s"`
		WriteTimeout time.Duration `env:"WRITE_TIMEOUT" envDefault:"5s"`
	}

	Logging struct {
		Level  string `env:"LOG_LEVEL" envDefault:"info" validate:"oneof=debug info warn error"`
		Format string `env:"LOG_FORMAT" envDefault:"json" validate:"oneof=json text"`
	}

	Store struct {
		Backend  string `env:"STORE_BACKEND" envDefault:"redis" validate:"oneof=redis memory"`
		RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`
	}

	RuleSets struct {
		Provider      string        `env:"RULESET_PROVIDER" envDefault:"yaml" validate:"oneof=yaml postgres"`
		YamlDir       string        `env:"RULESET_YAML_DIR" envDefault:"./rulesets"`
		PostgresURL   string        `env:"RULESET_POSTGRES_URL"`
		CacheMaxSize  int           `env:"RULESET_CACHE_MAX_SIZE" envDefault:"1000" validate:"min=1"`
		CacheTTL      time.Duration `env:"RULESET_CACHE_TTL" envDefault:"5m"`
		DefaultId     string        `env:"RATE_LIMIT_DEFAULT_RULE_SET_ID"`
	}

	Reload struct {
		Mode    string        `env:"RELOAD_MODE" envDefault:"AUTO" validate:"oneof=AUTO PUBSUB POLLING NONE"`
		Channel string        `env:"RELOAD_CHANNEL" envDefault:"fluxgate:rule-reload"`
		Polling time.Duration `env:"RELOAD_POLLING_INTERVAL" envDefault:"30s"`
	}

	Resilience struct {
		RetryAttempts              uint          `env:"RETRY_ATTEMPTS" envDefault:"3" validate:"min=1"`
		RetryInitialDelay          time.Duration `env:"RETRY_INITIAL_DELAY" envDefault:"100ms"`
		RetryMaxDelay              time.Duration `env:"RETRY_MAX_DELAY" envDefault:"2s"`
		BreakerFailureThreshold    int           `env:"BREAKER_FAILURE_THRESHOLD" envDefault:"5" validate:"min=1"`
		BreakerWaitDurationOpen    time.Duration `env:"BREAKER_WAIT_DURATION_OPEN" envDefault:"30s"`
		BreakerPermittedHalfOpen   int           `env:"BREAKER_PERMITTED_HALF_OPEN" envDefault:"3" validate:"min=1"`
		BreakerFallback            string        `env:"BREAKER_FALLBACK" envDefault:"FAIL_CLOSED" validate:"oneof=FAIL_OPEN FAIL_CLOSED"`
	}

	Filter struct {
		Includes           []string `env:"FILTER_INCLUDES" envSeparator:","`
		Excludes           []string `env:"FILTER_EXCLUDES" envSeparator:","`
		MaxWaitTimeMs      int64    `env:"FILTER_MAX_WAIT_TIME_MS" envDefault:"5000"`
		MaxConcurrentWaits int      `env:"FILTER_MAX_CONCURRENT_WAITS" envDefault:"100" validate:"min=1"`
	}
}

// Load reads environment variables (after loading an optional .env file)
// into a validated Config.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("fluxgated: parse environment: %w", err)
	}
	if err := validator.New().Struct(cfg); err != nil {
		return nil, fmt.Errorf("fluxgated: invalid configuration: %w", err)
	}
	return cfg, nil
}
