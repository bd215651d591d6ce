// Package config loads the gateway YAML configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"
)

// HookConfig is the per-hook configuration surface.
type HookConfig struct {
	Enabled *bool          `yaml:"enabled,omitempty"`
	Options map[string]any `yaml:"options,omitempty"`
}

// MemoryConfig tunes the short-term mirror and the archiver.
type MemoryConfig struct {
	DBPath            string   `yaml:"db_path,omitempty"`
	ShortTermCapacity int      `yaml:"short_term_capacity"`
	ShortTermTTL      Duration `yaml:"short_term_ttl"`
	ArchiveAge        Duration `yaml:"archive_age"`
	ArchiveBatch      int      `yaml:"archive_batch"`
	MaxMemories       int      `yaml:"max_memories"`
	MinImportance     float64  `yaml:"min_importance"`
	Keyframes         bool     `yaml:"keyframes"`
}

// ReconcileConfig tunes startup reconciliation.
type ReconcileConfig struct {
	GracePeriod Duration `yaml:"grace_period"`
}

// LogConfig selects log level and output format.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // json or text
}

// Config is the full gateway configuration.
type Config struct {
	StateDir          string                `yaml:"state_dir,omitempty"`
	Port              int                   `yaml:"port"`
	TestMode          bool                  `yaml:"test_mode"`
	AllowMultiple     bool                  `yaml:"allow_multiple"`
	HeartbeatInterval Duration              `yaml:"heartbeat_interval"`
	Log               LogConfig             `yaml:"log"`
	Reconcile         ReconcileConfig       `yaml:"reconcile"`
	Memory            MemoryConfig          `yaml:"memory"`
	Hooks             map[string]HookConfig `yaml:"hooks,omitempty"`

	mu sync.RWMutex
}

// Default returns the baseline configuration.
func Default() *Config {
	return &Config{
		Port:              18789,
		HeartbeatInterval: Duration(30 * time.Second),
		Log:               LogConfig{Level: "info", Format: "json"},
		Reconcile:         ReconcileConfig{GracePeriod: Duration(3 * time.Second)},
		Memory: MemoryConfig{
			ShortTermCapacity: 200,
			ShortTermTTL:      Duration(24 * time.Hour),
			ArchiveAge:        Duration(time.Hour),
			ArchiveBatch:      20,
			MaxMemories:       10,
			MinImportance:     0.5,
			Keyframes:         true,
		},
		Hooks: make(map[string]HookConfig),
	}
}

// Load reads the config at path, returning defaults when the file is
// absent. The AGENT_GATEWAY_STATE environment variable overrides the
// state dir.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read config: %w", err)
	}

	if cfg.Hooks == nil {
		cfg.Hooks = make(map[string]HookConfig)
	}
	if env := os.Getenv("AGENT_GATEWAY_STATE"); env != "" {
		cfg.StateDir = env
	}
	if cfg.StateDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve home dir: %w", err)
		}
		cfg.StateDir = filepath.Join(home, ".agent-gateway")
	}

	return cfg, nil
}

// HookEnabled reports whether the hook id is enabled. Hooks without an
// explicit entry are enabled; the lookup is live so toggling takes
// effect on the next dispatched event.
func (c *Config) HookEnabled(id string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hc, ok := c.Hooks[id]
	if !ok || hc.Enabled == nil {
		return true
	}
	return *hc.Enabled
}

// SetHookEnabled toggles a hook at runtime.
func (c *Config) SetHookEnabled(id string, enabled bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	hc := c.Hooks[id]
	hc.Enabled = &enabled
	c.Hooks[id] = hc
}

// HookOption returns a hook-specific option value, or nil.
func (c *Config) HookOption(id, key string) any {
	c.mu.RLock()
	defer c.mu.RUnlock()
	hc, ok := c.Hooks[id]
	if !ok {
		return nil
	}
	return hc.Options[key]
}

// LockPath is the well-known lock file location under the state dir.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "gateway.lock")
}

// AgentsDir is the root of per-agent session state.
func (c *Config) AgentsDir() string {
	return filepath.Join(c.StateDir, "agents")
}

// MemoryDBPath resolves the sqlite database path.
func (c *Config) MemoryDBPath() string {
	if c.Memory.DBPath != "" {
		return c.Memory.DBPath
	}
	return filepath.Join(c.StateDir, "memory.db")
}
