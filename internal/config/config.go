package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/eleven-am/pantry/internal/logger"
	"github.com/eleven-am/pantry/internal/migrator"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "PANTRY_"

var searchPaths = []string{"pantry.yaml", "pantry.yml", ".pantry.yaml", ".pantry.yml"}

// Config represents the pantry.yaml configuration structure
type Config struct {
	Database struct {
		Driver         string `yaml:"driver"`
		URL            string `yaml:"url"`
		MaxConnections int    `yaml:"max_connections"`
	} `yaml:"database"`

	Migrations struct {
		Table     string `yaml:"table"`
		AutoApply bool   `yaml:"auto_apply"`
	} `yaml:"migrations"`

	Log struct {
		Level    string `yaml:"level"`
		Encoding string `yaml:"encoding"`
	} `yaml:"log"`
}

// Default returns the configuration used when nothing is set
func Default() *Config {
	cfg := &Config{}
	cfg.Database.Driver = "sqlite"
	cfg.Database.URL = "pantry.db"
	cfg.Database.MaxConnections = 10
	cfg.Migrations.Table = migrator.DefaultHistoryTable
	cfg.Log.Level = "info"
	cfg.Log.Encoding = "console"
	return cfg
}

// Path returns the config file to use: PANTRY_CONFIG, or the first of the
// default names present in the working directory. Empty means none.
func Path() string {
	if path := os.Getenv(EnvPrefix + "CONFIG"); path != "" {
		return path
	}
	for _, loc := range searchPaths {
		if _, err := os.Stat(loc); err == nil {
			return loc
		}
	}
	return ""
}

// Load reads .env, then the config file at path (or the one Path finds), then
// applies PANTRY_* environment overrides. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	cfg := Default()

	if path == "" {
		path = Path()
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
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
	strs := map[string]*string{
		"DATABASE_DRIVER":  &c.Database.Driver,
		"DATABASE_URL":     &c.Database.URL,
		"MIGRATIONS_TABLE": &c.Migrations.Table,
		"LOG_LEVEL":        &c.Log.Level,
		"LOG_ENCODING":     &c.Log.Encoding,
	}
	for key, dst := range strs {
		if v, ok := os.LookupEnv(EnvPrefix + key); ok {
			*dst = v
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "DATABASE_MAX_CONNECTIONS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid %sDATABASE_MAX_CONNECTIONS %q: %w", EnvPrefix, v, err)
		}
		c.Database.MaxConnections = n
	}
	if v, ok := os.LookupEnv(EnvPrefix + "MIGRATIONS_AUTO_APPLY"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("invalid %sMIGRATIONS_AUTO_APPLY %q: %w", EnvPrefix, v, err)
		}
		c.Migrations.AutoApply = b
	}
	return nil
}

// Validate checks the values that cannot be defaulted
func (c *Config) Validate() error {
	if _, err := migrator.DialectFor(c.Database.Driver); err != nil {
		return fmt.Errorf("invalid database driver: %w", err)
	}
	if c.Database.URL == "" {
		return errors.New("database url is required")
	}
	if c.Database.MaxConnections < 0 {
		return fmt.Errorf("max_connections must not be negative, got %d", c.Database.MaxConnections)
	}
	if c.Migrations.Table == "" {
		return errors.New("migrations table is required")
	}
	return nil
}

// Logger returns the logging section as a logger configuration
func (c *Config) Logger() logger.Config {
	return logger.Config{Level: c.Log.Level, Encoding: c.Log.Encoding}
}

// Save writes the configuration as YAML
func Save(cfg *Config, path string) error {
	if path == "" {
		path = searchPaths[0]
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}
