package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v2"
)

// Realtime drivers
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverAMQP     = "amqp"
)

// Config holds the gateway settings
type Config struct {
	Env  string `yaml:"env"`
	Port string `yaml:"port"`

	Database struct {
		Type         string        `yaml:"type"`
		URL          string        `yaml:"url"`
		StoreTimeout time.Duration `yaml:"store_timeout"`
	} `yaml:"db"`

	Auth struct {
		JWTSecret string `yaml:"jwt_secret"`
	} `yaml:"auth"`

	Realtime struct {
		Driver   string `yaml:"driver"`
		RedisURL string `yaml:"redis_addr"`
		AMQPURL  string `yaml:"amqp_url"`
		Exchange string `yaml:"exchange"`
	} `yaml:"realtime"`

	Cache struct {
		ProfileTTL time.Duration `yaml:"profile_ttl"`
	} `yaml:"cache"`

	HTTP struct {
		AllowedOrigins []string `yaml:"allowed_origins"`
	} `yaml:"http"`

	Logs struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"logs"`
}

// Default returns a config with every optional field set
func Default() *Config {
	cfg := &Config{Env: "development", Port: "8080"}
	cfg.Database.Type = "postgres"
	cfg.Database.StoreTimeout = 10 * time.Second
	cfg.Realtime.Driver = DriverMemory
	cfg.Realtime.Exchange = "realtime_events"
	cfg.Cache.ProfileTTL = 5 * time.Minute
	cfg.HTTP.AllowedOrigins = []string{"http://localhost:3000"}
	cfg.Logs.Level = "info"
	cfg.Logs.File = "server.log"
	return cfg
}

// Load reads .env, then the YAML file named by CONFIG_FILE (if any), then
// applies environment overrides.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		// .env is optional; real environment variables still apply
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	cfg := Default()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile merges a YAML file into cfg
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

func (c *Config) applyEnv() {
	setString(&c.Env, "ENV")
	setString(&c.Port, "PORT")
	setString(&c.Database.Type, "DB_TYPE")
	setString(&c.Database.URL, "DATABASE_URL")
	setString(&c.Auth.JWTSecret, "JWT_SECRET")
	setString(&c.Realtime.Driver, "REALTIME_DRIVER")
	setString(&c.Realtime.RedisURL, "REDIS_ADDR")
	setString(&c.Realtime.AMQPURL, "AMQP_URL")
	setString(&c.Logs.Level, "LOG_LEVEL")

	if v := os.Getenv("STORE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.Database.StoreTimeout = d
		}
	}
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.HTTP.AllowedOrigins = strings.Split(v, ",")
	}
}

// Validate checks that required settings are present
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("DATABASE_URL is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.Database.StoreTimeout <= 0 {
		return errors.New("store timeout must be positive")
	}

	switch c.Realtime.Driver {
	case DriverMemory, DriverPostgres:
	case DriverRedis:
		if c.Realtime.RedisURL == "" {
			return errors.New("REDIS_ADDR is required for the redis realtime driver")
		}
	case DriverAMQP:
		if c.Realtime.AMQPURL == "" {
			return errors.New("AMQP_URL is required for the amqp realtime driver")
		}
	default:
		return fmt.Errorf("unknown realtime driver %q", c.Realtime.Driver)
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}
