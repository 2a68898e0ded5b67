// Package config loads the single configuration document that declares the
// service registry and global orchestrator options (spec §6.4).
package config

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	toml "github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"gpumand/internal/common/fsutil"
	"gpumand/pkg/types"
)

// Config is the top-level configuration document.
type Config struct {
	Addr            string                    `json:"addr" yaml:"addr" toml:"addr"`
	VRAMReserveMB   int                       `json:"vram_reserve_mb" yaml:"vram_reserve_mb" toml:"vram_reserve_mb"`
	DefaultLockTTLS int                       `json:"default_lock_ttl_s" yaml:"default_lock_ttl_s" toml:"default_lock_ttl_s"`
	DeviceIndex     int                       `json:"device_index" yaml:"device_index" toml:"device_index"`
	RedisURL        string                    `json:"redis_url" yaml:"redis_url" toml:"redis_url"`
	Services        []types.ServiceDescriptor `json:"services" yaml:"services" toml:"services"`
}

// Defaults applied to zero-valued global options once a document is loaded.
const (
	DefaultVRAMReserveMB   = 1024
	DefaultLockTTLSeconds  = 600
)

// ApplyDefaults fills zero-valued global options with the spec's defaults.
func (c *Config) ApplyDefaults() {
	if c.VRAMReserveMB <= 0 {
		c.VRAMReserveMB = DefaultVRAMReserveMB
	}
	if c.DefaultLockTTLS <= 0 {
		c.DefaultLockTTLS = DefaultLockTTLSeconds
	}
}

// Load reads a configuration document from path. Supported extensions are
// .yaml/.yml, .json, and .toml. Unknown top-level keys are rejected.
func Load(path string) (Config, error) {
	var cfg Config
	if path == "" {
		return cfg, fmt.Errorf("empty config path")
	}
	path, err := fsutil.ExpandHome(path)
	if err != nil {
		return cfg, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(b))
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse yaml: %w", err)
		}
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse json: %w", err)
		}
	case ".toml":
		dec := toml.NewDecoder(bytes.NewReader(b))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&cfg); err != nil {
			return cfg, fmt.Errorf("parse toml: %w", err)
		}
	default:
		return cfg, fmt.Errorf("unsupported config extension: %s", ext)
	}
	cfg.ApplyDefaults()
	return cfg, nil
}
