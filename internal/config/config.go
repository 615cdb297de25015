package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverMongo  = "mongo"
)

// Config models taskboard.yml.
type Config struct {
	Server struct {
		Addr     string `yaml:"addr"`
		BasePath string `yaml:"base_path"`
	} `yaml:"server"`
	Store struct {
		Driver        string `yaml:"driver"`
		Path          string `yaml:"path"`
		MongoURI      string `yaml:"mongo_uri"`
		MongoDatabase string `yaml:"mongo_database"`
	} `yaml:"store"`
	Auth struct {
		JWTSecret         string        `yaml:"jwt_secret"`
		Issuer            string        `yaml:"issuer"`
		TokenTTL          time.Duration `yaml:"token_ttl"`
		RefreshTTL        time.Duration `yaml:"refresh_ttl"`
		MinPasswordLength int           `yaml:"min_password_length"`
	} `yaml:"auth"`
	Log struct {
		Level string `yaml:"level"`
		File  string `yaml:"file"`
	} `yaml:"log"`
	Client struct {
		BaseURL    string        `yaml:"base_url"`
		Timeout    time.Duration `yaml:"timeout"`
		KeyringDir string        `yaml:"keyring_dir"`
	} `yaml:"client"`
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		return fmt.Errorf("config.server.base_path must start with /")
	}
	switch c.Store.Driver {
	case DriverSQLite:
		if c.Store.Path == "" {
			return fmt.Errorf("config.store.path is required for the sqlite driver")
		}
	case DriverMongo:
		if c.Store.MongoURI == "" {
			return fmt.Errorf("config.store.mongo_uri is required for the mongo driver")
		}
		if c.Store.MongoDatabase == "" {
			return fmt.Errorf("config.store.mongo_database is required for the mongo driver")
		}
		if c.Store.Path == "" {
			return fmt.Errorf("config.store.path is required for the identity database")
		}
	default:
		return fmt.Errorf("config.store.driver must be %q or %q", DriverSQLite, DriverMongo)
	}
	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("config.auth.token_ttl must be positive")
	}
	if c.Auth.RefreshTTL < c.Auth.TokenTTL {
		return fmt.Errorf("config.auth.refresh_ttl must be at least token_ttl")
	}
	if c.Auth.MinPasswordLength < 1 {
		return fmt.Errorf("config.auth.min_password_length must be at least 1")
	}
	if c.Client.Timeout < 0 {
		return fmt.Errorf("config.client.timeout must not be negative")
	}
	return nil
}

// Path returns the config file path for a directory.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "taskboard.yml")
}

// Load reads and validates config from path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; create one with tb config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the default config when the file does not exist.
func LoadOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Default returns the default Config.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// FromYAML parses and validates config from raw YAML bytes. Keys missing from
// data keep their default values.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const defaultTemplate = `server:
  addr: 127.0.0.1:8080
  base_path: /api

store:
  driver: sqlite
  path: .taskboard/taskboard.db
  mongo_uri: ""
  mongo_database: taskboard

auth:
  # Set via TASKBOARD_AUTH_JWT_SECRET rather than committing it here.
  jwt_secret: ""
  issuer: taskboard
  token_ttl: 1h
  refresh_ttl: 720h
  min_password_length: 8

log:
  level: info
  file: ""

client:
  base_url: http://127.0.0.1:8080
  timeout: 10s
  keyring_dir: ~/.config/taskboard/credentials
`
