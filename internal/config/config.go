// Package config handles application configuration from environment variables,
// an optional YAML file and an optional .env file.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Supported storage drivers.
const (
	DriverSQLite = "sqlite"
	DriverMySQL  = "mysql"
)

// Config holds the application configuration.
type Config struct {
	LogLevel              string   `yaml:"logLevel"`
	UpdateIntervalMinutes int      `yaml:"updateIntervalMinutes"`
	Database              Database `yaml:"database"`
	Fetch                 Fetch    `yaml:"fetch"`
	Sources               []string `yaml:"sources"`
	DumpDir               string   `yaml:"dumpDir"`
}

// Database selects the storage backend and its connection parameters.
type Database struct {
	Driver   string `yaml:"driver"`
	Path     string `yaml:"path"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Name     string `yaml:"name"`
}

// Fetch holds the budget handed to every source adapter.
type Fetch struct {
	TimeoutSeconds int `yaml:"timeoutSeconds"`
	DelaySeconds   int `yaml:"delaySeconds"`
	MaxItems       int `yaml:"maxItems"`
}

func defaults() *Config {
	return &Config{
		LogLevel:              "info",
		UpdateIntervalMinutes: 30,
		Database: Database{
			Driver: DriverSQLite,
			Path:   "./data/tracker.db",
			Port:   3306,
		},
		Fetch: Fetch{
			TimeoutSeconds: 300,
			DelaySeconds:   1,
		},
	}
}

// Load reads configuration. Sources are applied in order: defaults, the .env
// file (ENV_FILE, default ".env"), the YAML file named by TRACKER_CONFIG, and
// finally environment variables.
func Load() (*Config, error) {
	envFile := os.Getenv("ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := defaults()

	if path := os.Getenv("TRACKER_CONFIG"); path != "" {
		raw, err := os.ReadFile(path) //nolint:gosec // path comes from the operator
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() error {
	setString(&c.LogLevel, "LOG_LEVEL")
	setString(&c.Database.Driver, "DB_DRIVER")
	setString(&c.Database.Path, "DATABASE_PATH")
	setString(&c.Database.Host, "DB_HOST")
	setString(&c.Database.User, "DB_USER")
	setString(&c.Database.Password, "DB_PASSWORD")
	setString(&c.Database.Name, "DB_NAME")
	setString(&c.DumpDir, "DUMP_DIR")

	ints := []struct {
		key string
		dst *int
	}{
		{"UPDATE_INTERVAL_MINUTES", &c.UpdateIntervalMinutes},
		{"DB_PORT", &c.Database.Port},
		{"FETCH_TIMEOUT_SECONDS", &c.Fetch.TimeoutSeconds},
		{"FETCH_DELAY_SECONDS", &c.Fetch.DelaySeconds},
		{"FETCH_MAX_ITEMS", &c.Fetch.MaxItems},
	}
	for _, v := range ints {
		if err := setInt(v.dst, v.key); err != nil {
			return err
		}
	}

	if raw := os.Getenv("SOURCES"); raw != "" {
		c.Sources = nil
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			c.Sources = append(c.Sources, s)
		}
	}
	return nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if c.UpdateIntervalMinutes <= 0 {
		return fmt.Errorf("update interval must be positive, got %d", c.UpdateIntervalMinutes)
	}
	if c.Fetch.TimeoutSeconds <= 0 {
		return fmt.Errorf("fetch timeout must be positive, got %d", c.Fetch.TimeoutSeconds)
	}
	if c.Fetch.DelaySeconds < 0 || c.Fetch.MaxItems < 0 {
		return errors.New("fetch delay and max items must not be negative")
	}

	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("DATABASE_PATH is required for the sqlite driver")
		}
	case DriverMySQL:
		if c.Database.Host == "" || c.Database.Name == "" {
			return errors.New("DB_HOST and DB_NAME are required for the mysql driver")
		}
	default:
		return fmt.Errorf("unknown DB_DRIVER %q", c.Database.Driver)
	}
	return nil
}

// DSN returns the data source name for the configured driver.
func (c *Config) DSN() string {
	if c.Database.Driver != DriverMySQL {
		return c.Database.Path
	}

	mc := mysql.NewConfig()
	mc.User = c.Database.User
	mc.Passwd = c.Database.Password
	mc.Net = "tcp"
	mc.Addr = net.JoinHostPort(c.Database.Host, strconv.Itoa(c.Database.Port))
	mc.DBName = c.Database.Name
	mc.ParseTime = true
	return mc.FormatDSN()
}

// UpdateInterval is the scheduler cadence.
func (c *Config) UpdateInterval() time.Duration {
	return time.Duration(c.UpdateIntervalMinutes) * time.Minute
}

// FetchTimeout is the wall-clock budget of a single adapter fetch.
func (c *Config) FetchTimeout() time.Duration {
	return time.Duration(c.Fetch.TimeoutSeconds) * time.Second
}

// FetchDelay is the pause between two page requests of one fetch.
func (c *Config) FetchDelay() time.Duration {
	return time.Duration(c.Fetch.DelaySeconds) * time.Second
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	*dst = v
	return nil
}
