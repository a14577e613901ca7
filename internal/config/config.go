package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

type Config struct {
	Addr            string  `yaml:"addr" env:"ADDR"`
	DataDir         string  `yaml:"data_dir" env:"DATA_DIR"`
	DBPath          string  `yaml:"db_path" env:"DB_PATH"`
	CommunityPath   string  `yaml:"community_path" env:"COMMUNITY_PATH"`
	CommunityID     string  `yaml:"community_id" env:"COMMUNITY_ID"`
	AdjacencyReach  float64 `yaml:"adjacency_reach" env:"ADJACENCY_REACH"`
	AuditLog        bool    `yaml:"audit_log" env:"AUDIT_LOG"`
	LookupTimeoutMs int     `yaml:"lookup_timeout_ms" env:"LOOKUP_TIMEOUT_MS"`
	MaxQueue        int     `yaml:"max_queue" env:"MAX_QUEUE"`
}

const EnvPrefix = "PLOTS_"

func Defaults() Config {
	return Config{
		Addr:            ":8080",
		DataDir:         "./data",
		AdjacencyReach:  36,
		AuditLog:        true,
		LookupTimeoutMs: 3000,
		MaxQueue:        16,
	}
}

// Load reads path (optional) over the defaults, then applies PLOTS_* environment
// overrides, normalises and validates.
func Load(path string) (Config, error) {
	cfg := Defaults()
	if strings.TrimSpace(path) != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return cfg, fmt.Errorf("%s: %w", filepath.Base(path), err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) Normalize() {
	c.Addr = strings.TrimSpace(c.Addr)
	c.DataDir = strings.TrimSpace(c.DataDir)
	c.DBPath = strings.TrimSpace(c.DBPath)
	c.CommunityPath = strings.TrimSpace(c.CommunityPath)
	c.CommunityID = strings.TrimSpace(c.CommunityID)
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.DBPath == "" {
		c.DBPath = filepath.Join(c.DataDir, "plots.db")
	}
	if c.MaxQueue <= 0 {
		c.MaxQueue = 16
	}
	if c.MaxQueue > 256 {
		c.MaxQueue = 256
	}
}

func (c Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("config: addr is required")
	}
	if c.AdjacencyReach <= 0 {
		return fmt.Errorf("config: adjacency_reach must be positive")
	}
	if c.LookupTimeoutMs < 0 {
		return fmt.Errorf("config: lookup_timeout_ms must not be negative")
	}
	return nil
}

func (c Config) LookupTimeout() time.Duration {
	return time.Duration(c.LookupTimeoutMs) * time.Millisecond
}
