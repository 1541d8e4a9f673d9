// Package config provides hierarchical configuration management.
// Priority: defaults < system < user < project < env < flags
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/logflow/hminer/pkg/cache"
	hmerrors "github.com/logflow/hminer/pkg/errors"
	"github.com/logflow/hminer/pkg/heuristics"
	"github.com/logflow/hminer/pkg/parser"
	"github.com/logflow/hminer/pkg/source"
	"github.com/logflow/hminer/pkg/telemetry"
)

// Environment variables read by Load.
const (
	EnvDependencyThreshold = "HMINER_DEPENDENCY_THRESHOLD"
	EnvNoiseThreshold      = "HMINER_NOISE_THRESHOLD"
	EnvLoopThreshold       = "HMINER_LOOP_THRESHOLD"
	EnvRedisAddr           = "HMINER_REDIS_ADDR"
	EnvOTLPEndpoint        = "HMINER_OTLP_ENDPOINT"
)

// Config holds all hminer configuration.
type Config struct {
	Version int `yaml:"version"`

	Miner     heuristics.Config `yaml:"miner"`
	Columns   parser.Config     `yaml:"columns"`
	Cache     CacheConfig       `yaml:"cache"`
	Telemetry telemetry.Config  `yaml:"telemetry"`
	S3        source.S3Config   `yaml:"s3"`
}

// CacheConfig selects the result cache backend.
type CacheConfig struct {
	Backend string            `yaml:"backend"` // none | memory | redis
	TTL     time.Duration     `yaml:"ttl"`
	Redis   cache.RedisConfig `yaml:"redis"`
}

// Source returns the source configuration.
func (c *Config) Source() source.Config {
	return source.Config{S3: c.S3}
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Version:   1,
		Miner:     heuristics.DefaultConfig(),
		Columns:   parser.DefaultConfig(),
		Telemetry: telemetry.DefaultConfig(),
		Cache: CacheConfig{
			Backend: "none",
			TTL:     24 * time.Hour,
			Redis:   cache.DefaultRedisConfig("localhost:6379"),
		},
		S3: source.S3Config{
			Timeout: 5 * time.Minute,
		},
	}
}

// Manager handles configuration loading and merging.
type Manager struct {
	mu     sync.RWMutex
	config *Config
	search []string // candidate files in priority order
	paths  []string // files that were loaded
}

// NewManager creates a configuration manager reading the given files in
// order. Without arguments it reads the system, user and project files.
func NewManager(paths ...string) *Manager {
	if len(paths) == 0 {
		paths = DefaultPaths()
	}
	return &Manager{
		config: Default(),
		search: paths,
	}
}

// DefaultPaths returns config file paths in priority order.
func DefaultPaths() []string {
	var paths []string

	// System config
	if runtime.GOOS != "windows" {
		paths = append(paths, "/etc/hminer/config.yaml")
	}

	// User config
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".hminer", "config.yaml"))
	}

	// Project config (current directory)
	if cwd, err := os.Getwd(); err == nil {
		paths = append(paths, filepath.Join(cwd, ".hminer.yaml"))
	}

	return paths
}

// Load loads configuration from all sources in priority order. Missing
// files are skipped; unreadable or malformed ones fail the load.
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.config = Default()
	m.paths = nil

	for _, path := range m.search {
		if err := m.loadFile(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return hmerrors.Wrap(err, hmerrors.CodeInvalidFormat, "failed to load config").
				WithContext("path", path)
		}
		m.paths = append(m.paths, path)
	}

	return m.loadEnv()
}

// loadFile decodes a config file on top of the current values. Keys absent
// from the file keep their value, so an explicit zero threshold overrides.
func (m *Manager) loadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return yaml.Unmarshal(data, m.config)
}

// loadEnv loads configuration from environment variables.
func (m *Manager) loadEnv() error {
	floats := []struct {
		name string
		set  func(float64)
	}{
		{EnvDependencyThreshold, func(v float64) { m.config.Miner.DependencyThreshold = v }},
		{EnvNoiseThreshold, func(v float64) { m.config.Miner.NoiseThreshold = v }},
		{EnvLoopThreshold, func(v float64) { m.config.Miner.LoopThreshold = &v }},
	}
	for _, f := range floats {
		raw := os.Getenv(f.name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return hmerrors.Wrap(err, hmerrors.CodeInvalidFormat, "invalid environment value").
				WithContext("variable", f.name)
		}
		f.set(v)
	}

	if v := os.Getenv(EnvRedisAddr); v != "" {
		m.config.Cache.Redis.Address = v
		if m.config.Cache.Backend == "" || m.config.Cache.Backend == "none" {
			m.config.Cache.Backend = "redis"
		}
	}
	if v := os.Getenv(EnvOTLPEndpoint); v != "" {
		m.config.Telemetry.Endpoint = v
		m.config.Telemetry.Enabled = true
	}
	return nil
}

// Get returns the current configuration.
func (m *Manager) Get() *Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetPaths returns the paths that were loaded.
func (m *Manager) GetPaths() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.paths
}

// Marshal renders the current configuration as YAML.
func (m *Manager) Marshal() ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return yaml.Marshal(m.config)
}
