package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"trivia-quiz-service/internal/validation"
)

const DefaultPath = "config/config.yaml"

type Config struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn error"`
		Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	} `yaml:"log"`
	OpenTDB struct {
		BaseURL       string `yaml:"base_url" validate:"required,url"`
		Amount        int    `yaml:"amount" validate:"gte=1,lte=50"`
		Difficulty    string `yaml:"difficulty" validate:"omitempty,oneof=easy medium hard"`
		ThrottleDelay string `yaml:"throttle_delay"`
		Timeout       string `yaml:"timeout"`
	} `yaml:"opentdb"`
	Quiz struct {
		AdvanceDelay string `yaml:"advance_delay"`
	} `yaml:"quiz"`
	Storage struct {
		Backend    string `yaml:"backend" validate:"oneof=memory sqlite redis postgres"`
		SQLitePath string `yaml:"sqlite_path"`
	} `yaml:"storage"`
	Redis struct {
		Addr     string `yaml:"addr"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db" validate:"gte=0"`
		TTL      string `yaml:"ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Events struct {
		Publisher    string   `yaml:"publisher" validate:"oneof=none gochannel kafka"`
		KafkaBrokers []string `yaml:"kafka_brokers"`
		Topic        string   `yaml:"topic"`
	} `yaml:"events"`
}

// Default returns the configuration used when no file is present.
func Default() Config {
	var cfg Config
	cfg.Server.Port = "8080"
	cfg.Log.Level = "info"
	cfg.Log.Format = "json"
	cfg.OpenTDB.BaseURL = "https://opentdb.com"
	cfg.OpenTDB.Amount = 10
	cfg.OpenTDB.ThrottleDelay = "1s"
	cfg.OpenTDB.Timeout = "10s"
	cfg.Quiz.AdvanceDelay = "1500ms"
	cfg.Storage.Backend = "sqlite"
	cfg.Storage.SQLitePath = "trivia.db"
	cfg.Redis.TTL = "24h"
	cfg.Events.Publisher = "none"
	cfg.Events.Topic = "trivia.events"
	return cfg
}

// Load reads YAML config from path over the defaults, applies environment overrides
// and validates the result. A missing file is not an error.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return cfg, err
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	overrides := map[string]*string{
		"PORT":             &c.Server.Port,
		"REDIS_ADDR":       &c.Redis.Addr,
		"POSTGRES_URL":     &c.Postgres.URL,
		"STORAGE_BACKEND":  &c.Storage.Backend,
		"OPENTDB_BASE_URL": &c.OpenTDB.BaseURL,
		"LOG_LEVEL":        &c.Log.Level,
	}
	for key, dst := range overrides {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("OPENTDB_AMOUNT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OPENTDB_AMOUNT: %w", err)
		}
		c.OpenTDB.Amount = n
	}
	return nil
}

// Validate checks field rules and the settings each backend needs.
func (c Config) Validate() error {
	if err := validation.New().Struct(c); err != nil {
		return err
	}

	var errs validation.Errors
	if c.Storage.Backend == "redis" && c.Redis.Addr == "" {
		errs = append(errs, validation.FieldError{Field: "Config.Redis.Addr", Message: "is required for the redis backend", Rule: "required"})
	}
	if c.Storage.Backend == "postgres" && c.Postgres.URL == "" {
		errs = append(errs, validation.FieldError{Field: "Config.Postgres.URL", Message: "is required for the postgres backend", Rule: "required"})
	}
	if c.Events.Publisher == "kafka" && len(c.Events.KafkaBrokers) == 0 {
		errs = append(errs, validation.FieldError{Field: "Config.Events.KafkaBrokers", Message: "is required for the kafka publisher", Rule: "required"})
	}
	if len(errs) > 0 {
		return errs
	}
	return nil
}

// Duration parses a duration string or returns the fallback if empty or malformed.
func Duration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
