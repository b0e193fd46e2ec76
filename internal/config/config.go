package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Config is read from YAML and then overridden by ACADEMY_* environment
// variables. Durations are strings parsed with TTLDuration.
type Config struct {
	Server struct {
		Port            string `yaml:"port" env:"PORT"`
		ShutdownTimeout string `yaml:"shutdownTimeout" env:"SHUTDOWN_TIMEOUT"`
	} `yaml:"server" envPrefix:"SERVER_"`
	Log struct {
		Level       string `yaml:"level" env:"LEVEL"`
		Development bool   `yaml:"development" env:"DEVELOPMENT"`
	} `yaml:"log" envPrefix:"LOG_"`
	Storage struct {
		// Driver is one of memory, sqlite or postgres.
		Driver      string `yaml:"driver" env:"DRIVER"`
		SQLitePath  string `yaml:"sqlitePath" env:"SQLITE_PATH"`
		MaxAttempts int    `yaml:"maxAttempts" env:"MAX_ATTEMPTS"`
	} `yaml:"storage" envPrefix:"STORAGE_"`
	Redis struct {
		Addr     string `yaml:"addr" env:"ADDR"`
		Password string `yaml:"password" env:"PASSWORD"`
		DB       int    `yaml:"db" env:"DB"`
		TTL      string `yaml:"ttl" env:"TTL"`
	} `yaml:"redis" envPrefix:"REDIS_"`
	Postgres struct {
		URL string `yaml:"url" env:"URL"`
	} `yaml:"postgres" envPrefix:"POSTGRES_"`
	Battle struct {
		DefinitionTTL string `yaml:"definitionTTL" env:"DEFINITION_TTL"`
	} `yaml:"battle" envPrefix:"BATTLE_"`
	Auth struct {
		Secret   string `yaml:"secret" env:"SECRET"`
		Issuer   string `yaml:"issuer" env:"ISSUER"`
		TokenTTL string `yaml:"tokenTTL" env:"TOKEN_TTL"`
	} `yaml:"auth" envPrefix:"AUTH_"`
	Files struct {
		Root    string `yaml:"root" env:"ROOT"`
		BaseURL string `yaml:"baseURL" env:"BASE_URL"`
	} `yaml:"files" envPrefix:"FILES_"`
	Gemini struct {
		APIKey string `yaml:"apiKey" env:"API_KEY"`
		Model  string `yaml:"model" env:"MODEL"`
	} `yaml:"gemini" envPrefix:"GEMINI_"`
}

// Load reads YAML config from path and applies environment overrides. A
// missing file is not an error; the environment alone can configure the server.
func Load(path string) (Config, error) {
	cfg := Config{}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, err
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: "ACADEMY_"}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
		if c.Postgres.URL != "" {
			c.Storage.Driver = "postgres"
		}
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = "data/academy.db"
	}
	if c.Storage.MaxAttempts <= 0 {
		c.Storage.MaxAttempts = 10
	}
	if c.Auth.Issuer == "" {
		c.Auth.Issuer = "academy-of-heroes"
	}
	if c.Files.Root == "" {
		c.Files.Root = "data/files"
	}
	if c.Files.BaseURL == "" {
		c.Files.BaseURL = "http://localhost:" + c.Server.Port
	}
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
