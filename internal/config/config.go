// Package config loads service configuration from a YAML file and the
// environment. Environment variables win over the file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/liamcoop/ruleengine/integrations/eventbus"
	"github.com/liamcoop/ruleengine/integrations/httpcall"
	"github.com/liamcoop/ruleengine/internal/logger"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig    `yaml:"server"`
	Database DatabaseConfig  `yaml:"database"`
	Log      logger.Config   `yaml:"log"`
	Services httpcall.Config `yaml:"services"`
	Events   eventbus.Config `yaml:"events"`
}

type ServerConfig struct {
	Port                 string        `yaml:"port"`
	ReadTimeout          time.Duration `yaml:"read_timeout"`
	WriteTimeout         time.Duration `yaml:"write_timeout"`
	IdleTimeout          time.Duration `yaml:"idle_timeout"`
	RequestTimeout       time.Duration `yaml:"request_timeout"`
	ShutdownTimeout      time.Duration `yaml:"shutdown_timeout"`
	SlowRequestThreshold time.Duration `yaml:"slow_request_threshold"`
}

type DatabaseConfig struct {
	URL          string `yaml:"url"`
	MaxOpenConns int    `yaml:"max_open_conns"`
	MaxIdleConns int    `yaml:"max_idle_conns"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Port:                 "8080",
			ReadTimeout:          15 * time.Second,
			WriteTimeout:         15 * time.Second,
			IdleTimeout:          60 * time.Second,
			RequestTimeout:       60 * time.Second,
			ShutdownTimeout:      30 * time.Second,
			SlowRequestThreshold: time.Second,
		},
		Database: DatabaseConfig{
			MaxOpenConns: 25,
			MaxIdleConns: 5,
		},
		Log: logger.Config{
			Level:           "INFO",
			ErrorSampleRate: 100,
			ServiceName:     "ruleengine",
		},
		Services: httpcall.DefaultConfig(),
		Events:   eventbus.Config{Type: eventbus.TypeLog, SubjectPrefix: "rules."},
	}
}

// Load reads path over the defaults, then applies environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}

	str("DATABASE_URL", &c.Database.URL)
	str("PORT", &c.Server.Port)
	str("LOG_LEVEL", &c.Log.Level)
	str("OTEL_SERVICE_NAME", &c.Log.ServiceName)
	str("SERVICE_BASE_URL", &c.Services.BaseURL)
	str("EVENTBUS_TYPE", &c.Events.Type)
	str("EVENTBUS_URL", &c.Events.URL)
	str("EVENTBUS_TOPIC", &c.Events.Topic)
	str("EVENTBUS_EXCHANGE", &c.Events.Exchange)
	str("EVENTBUS_SUBJECT_PREFIX", &c.Events.SubjectPrefix)

	if v, ok := lookup("EVENTBUS_BROKERS"); ok && v != "" {
		c.Events.Brokers = strings.Split(v, ",")
	}
	if v, ok := lookup("OTEL_ENABLED"); ok && v != "" {
		c.Log.OTELEnabled = strings.EqualFold(v, "true")
	}
	if v, ok := lookup("ERROR_SAMPLE_RATE"); ok && v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			return fmt.Errorf("invalid ERROR_SAMPLE_RATE %q", v)
		}
		c.Log.ErrorSampleRate = rate
	}
	return nil
}

// Validate checks the settings every command relies on.
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if _, err := strconv.Atoi(c.Server.Port); err != nil {
		return fmt.Errorf("invalid server port %q", c.Server.Port)
	}
	if c.Log.Level != "" {
		if _, err := logger.ParseLevel(c.Log.Level); err != nil {
			return err
		}
	}
	return nil
}
