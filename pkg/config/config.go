// Package config loads the engine configuration from a YAML file,
// filling in defaults for anything the file leaves out.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GlobalScript describes one script the registry keeps alive across
// restarts. The map key in the config file is the script's name.
type GlobalScript struct {
	TypePath   string `yaml:"type_path"`
	Desc       string `yaml:"desc"`
	Interval   int    `yaml:"interval"`
	StartDelay bool   `yaml:"start_delay"`
	Repeats    int    `yaml:"repeats"`
	Transient  bool   `yaml:"transient"` // opt out of surviving restarts
}

// Config is the full engine configuration.
type Config struct {
	MudName string `yaml:"mud_name"`

	DataDir  string `yaml:"data_dir"`
	BoltFile string `yaml:"bolt_file"`
	AttrFile string `yaml:"attr_file"`
	HelpDir  string `yaml:"help_dir"`
	LogDir   string `yaml:"log_dir"`

	ServerLogMaxMB   int `yaml:"server_log_max_mb"`
	ServerLogBackups int `yaml:"server_log_backups"`

	ChannelLogRotateBytes int64 `yaml:"channel_log_rotate_bytes"`
	ChannelLogTailLines   int   `yaml:"channel_log_tail_lines"`

	// DefaultHome is the ref new objects fall back to when created
	// without a home. -1 disables the fallback.
	DefaultHome int `yaml:"default_home"`

	CompressAttrs    bool `yaml:"compress_attrs"`
	AttrCacheTTLSecs int  `yaml:"attr_cache_ttl_secs"`
	AttrCacheKeys    int  `yaml:"attr_cache_keys"`

	// MetricsAddr is the listen address for the Prometheus endpoint.
	// Empty disables it.
	MetricsAddr string `yaml:"metrics_addr"`

	GlobalScripts map[string]GlobalScript `yaml:"global_scripts"`
}

// DefaultConfig returns the built-in defaults. Relative file names are
// resolved against DataDir by Load.
func DefaultConfig() *Config {
	return &Config{
		MudName:               "LanternMUSH",
		DataDir:               "data",
		BoltFile:              "records.bolt",
		AttrFile:              "attrs.db",
		HelpDir:               "help",
		LogDir:                "logs",
		ServerLogMaxMB:        10,
		ServerLogBackups:      5,
		ChannelLogRotateBytes: 1000000,
		ChannelLogTailLines:   20,
		DefaultHome:           1,
		CompressAttrs:         false,
		AttrCacheTTLSecs:      300,
		AttrCacheKeys:         4096,
	}
}

// Load reads the YAML config at path over the defaults. A missing file
// is not an error: the defaults are returned so a fresh checkout runs
// without any setup. Relative data file paths are resolved against
// DataDir before the config is validated.
func Load(path string) (*Config, error) {
	conf := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("config: read %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, conf); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	conf.ResolvePaths()
	if err := conf.Validate(); err != nil {
		return nil, err
	}
	return conf, nil
}

// ResolvePaths joins relative file and directory names onto DataDir so
// the rest of the engine only ever sees full paths.
func (c *Config) ResolvePaths() {
	resolve := func(p string) string {
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Join(c.DataDir, p)
	}
	c.BoltFile = resolve(c.BoltFile)
	c.AttrFile = resolve(c.AttrFile)
	c.HelpDir = resolve(c.HelpDir)
	c.LogDir = resolve(c.LogDir)
}

// Validate rejects values the engine cannot run with.
func (c *Config) Validate() error {
	if c.MudName == "" {
		return fmt.Errorf("config: mud_name must not be empty")
	}
	if c.DataDir == "" {
		return fmt.Errorf("config: data_dir must not be empty")
	}
	if c.ServerLogMaxMB <= 0 {
		return fmt.Errorf("config: server_log_max_mb must be positive, got %d", c.ServerLogMaxMB)
	}
	if c.ServerLogBackups < 0 {
		return fmt.Errorf("config: server_log_backups must not be negative, got %d", c.ServerLogBackups)
	}
	if c.ChannelLogRotateBytes <= 0 {
		return fmt.Errorf("config: channel_log_rotate_bytes must be positive, got %d", c.ChannelLogRotateBytes)
	}
	if c.ChannelLogTailLines < 0 {
		return fmt.Errorf("config: channel_log_tail_lines must not be negative, got %d", c.ChannelLogTailLines)
	}
	if c.DefaultHome < -1 {
		return fmt.Errorf("config: default_home must be a ref or -1, got %d", c.DefaultHome)
	}
	if c.AttrCacheTTLSecs < 0 {
		return fmt.Errorf("config: attr_cache_ttl_secs must not be negative, got %d", c.AttrCacheTTLSecs)
	}
	if c.AttrCacheKeys < 0 {
		return fmt.Errorf("config: attr_cache_keys must not be negative, got %d", c.AttrCacheKeys)
	}
	for name, gs := range c.GlobalScripts {
		if name == "" {
			return fmt.Errorf("config: global script with empty name")
		}
		if gs.TypePath == "" {
			return fmt.Errorf("config: global script %q has no type_path", name)
		}
		if gs.Interval < 0 {
			return fmt.Errorf("config: global script %q has negative interval", name)
		}
		if gs.Repeats < 0 {
			return fmt.Errorf("config: global script %q has negative repeats", name)
		}
	}
	return nil
}
