// Package config loads the settings of a weft deployment from YAML or JSON.
package config

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/aretw0/weft/internal/logging"
	"github.com/mitchellh/mapstructure"
	"gopkg.in/yaml.v3"
)

// Store kinds.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreBolt   = "bolt"
)

// Locker kinds.
const (
	LockerNone  = "none"
	LockerRedis = "redis"
)

// Config is the full deployment configuration.
type Config struct {
	LogLevel        string          `mapstructure:"log_level"`
	LogFormat       string          `mapstructure:"log_format"` // text or json
	Execution       string          `mapstructure:"execution"`
	ResponseTimeout time.Duration   `mapstructure:"response_timeout"`
	HTTP            HTTPConfig      `mapstructure:"http"`
	Websocket       WebsocketConfig `mapstructure:"websocket"`
	Metrics         MetricsConfig   `mapstructure:"metrics"`
	Store           StoreConfig     `mapstructure:"store"`
	Locker          LockerConfig    `mapstructure:"locker"`
	OutputPorts     []PortConfig    `mapstructure:"output_ports"`
}

type HTTPConfig struct {
	Addr    string        `mapstructure:"addr"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WebsocketConfig mounts the websocket transport on the HTTP server. An
// empty path disables it.
type WebsocketConfig struct {
	Path        string        `mapstructure:"path"`
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
}

// MetricsConfig serves Prometheus metrics. An empty address disables them.
type MetricsConfig struct {
	Addr string `mapstructure:"addr"`
}

// StoreConfig selects the snapshot store. Redact lists regular expressions
// naming variables masked before a snapshot is written; Encryption seals
// snapshots at rest.
type StoreConfig struct {
	Kind       string           `mapstructure:"kind"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Bolt       BoltConfig       `mapstructure:"bolt"`
	Redact     []string         `mapstructure:"redact"`
	Encryption EncryptionConfig `mapstructure:"encryption"`
}

type RedisConfig struct {
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	Prefix   string        `mapstructure:"prefix"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type BoltConfig struct {
	Path string `mapstructure:"path"`
}

// EncryptionConfig holds base64 encoded AES-256 keys. Snapshots are written
// with Key and read with Key or any of FallbackKeys.
type EncryptionConfig struct {
	Key          string   `mapstructure:"key"`
	FallbackKeys []string `mapstructure:"fallback_keys"`
}

// Enabled reports whether snapshots are encrypted.
func (e EncryptionConfig) Enabled() bool { return e.Key != "" }

// Keys decodes the active and fallback keys.
func (e EncryptionConfig) Keys() ([]byte, [][]byte, error) {
	active, err := decodeKey(e.Key)
	if err != nil {
		return nil, nil, fmt.Errorf("store.encryption.key: %w", err)
	}
	fallback := make([][]byte, len(e.FallbackKeys))
	for i, k := range e.FallbackKeys {
		if fallback[i], err = decodeKey(k); err != nil {
			return nil, nil, fmt.Errorf("store.encryption.fallback_keys[%d]: %w", i, err)
		}
	}
	return active, fallback, nil
}

func decodeKey(s string) ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("want 32 bytes, got %d", len(key))
	}
	return key, nil
}

// LockerConfig selects the distributed locker backing synchronized regions
// and session exclusion. The redis locker reuses Store.Redis for its address.
type LockerConfig struct {
	Kind string        `mapstructure:"kind"`
	TTL  time.Duration `mapstructure:"ttl"`
}

// PortConfig declares an output port: a websocket dialed at startup when URL
// is set, or local commands answering each operation.
type PortConfig struct {
	Name         string                   `mapstructure:"name"`
	URL          string                   `mapstructure:"url"`
	ResourcePath string                   `mapstructure:"resource_path"`
	Commands     map[string]CommandConfig `mapstructure:"commands"`
	Dir          string                   `mapstructure:"dir"`
}

// CommandConfig is the allow-listed command answering one operation.
type CommandConfig struct {
	Command string            `mapstructure:"command"`
	Args    []string          `mapstructure:"args"`
	Env     map[string]string `mapstructure:"env"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		LogLevel:        "info",
		LogFormat:       "text",
		Execution:       "concurrent",
		ResponseTimeout: 30 * time.Second,
		HTTP:            HTTPConfig{Addr: ":8080", Timeout: 30 * time.Second},
		Websocket:       WebsocketConfig{Path: "/ws"},
		Store: StoreConfig{
			Kind:  StoreMemory,
			Redis: RedisConfig{Addr: "localhost:6379", Prefix: "weft:session:"},
			Bolt:  BoltConfig{Path: "weft.db"},
		},
		Locker: LockerConfig{Kind: LockerNone, TTL: 30 * time.Second},
	}
}

// Load reads the file at path over the defaults. JSON is used for ".json"
// files, YAML for anything else. An empty path returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}
	if err := Parse(data, strings.ToLower(filepath.Ext(path)) == ".json", &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse %s: %w", filepath.Base(path), err)
	}
	return cfg, cfg.Validate()
}

// Parse decodes data into cfg. Keys absent from data keep their value in cfg.
// Durations may be written as strings ("500ms") or as nanoseconds.
func Parse(data []byte, asJSON bool, cfg *Config) error {
	raw := map[string]any{}
	var err error
	if asJSON {
		err = json.Unmarshal(data, &raw)
	} else {
		err = yaml.Unmarshal(data, &raw)
	}
	if err != nil {
		return err
	}

	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           cfg,
	})
	if err != nil {
		return err
	}
	return dec.Decode(raw)
}

// Validate rejects unknown enum values and inconsistent settings.
func (c Config) Validate() error {
	var errs []error
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if !oneOf(c.LogFormat, "", "text", "json") {
		errs = append(errs, fmt.Errorf("unknown log format %q", c.LogFormat))
	}
	if !oneOf(c.Execution, "", "concurrent", "sequential", "single") {
		errs = append(errs, fmt.Errorf("unknown execution mode %q", c.Execution))
	}
	if !oneOf(c.Store.Kind, StoreMemory, StoreRedis, StoreBolt) {
		errs = append(errs, fmt.Errorf("unknown store kind %q", c.Store.Kind))
	}
	if c.Store.Kind == StoreBolt && c.Store.Bolt.Path == "" {
		errs = append(errs, errors.New("store.bolt.path is required"))
	}
	if c.Store.Encryption.Enabled() {
		if _, _, err := c.Store.Encryption.Keys(); err != nil {
			errs = append(errs, err)
		}
	}
	for _, p := range c.Store.Redact {
		if _, err := regexp.Compile(p); err != nil {
			errs = append(errs, fmt.Errorf("store.redact: %w", err))
		}
	}
	if !oneOf(c.Locker.Kind, "", LockerNone, LockerRedis) {
		errs = append(errs, fmt.Errorf("unknown locker kind %q", c.Locker.Kind))
	}
	if (c.Store.Kind == StoreRedis || c.Locker.Kind == LockerRedis) && c.Store.Redis.Addr == "" {
		errs = append(errs, errors.New("store.redis.addr is required"))
	}
	seen := make(map[string]bool, len(c.OutputPorts))
	for i, p := range c.OutputPorts {
		switch {
		case p.Name == "":
			errs = append(errs, fmt.Errorf("output_ports[%d]: name is required", i))
		case seen[p.Name]:
			errs = append(errs, fmt.Errorf("output_ports[%d]: duplicate name %q", i, p.Name))
		case p.URL == "" && len(p.Commands) == 0:
			errs = append(errs, fmt.Errorf("output_ports[%d]: url or commands is required", i))
		case p.URL != "" && len(p.Commands) > 0:
			errs = append(errs, fmt.Errorf("output_ports[%d]: url and commands are exclusive", i))
		}
		for op, cmd := range p.Commands {
			if cmd.Command == "" {
				errs = append(errs, fmt.Errorf("output_ports[%d].commands.%s: command is required", i, op))
			}
		}
		seen[p.Name] = true
	}
	if c.ResponseTimeout < 0 {
		errs = append(errs, errors.New("response_timeout must not be negative"))
	}
	return errors.Join(errs...)
}

func oneOf(s string, options ...string) bool {
	for _, o := range options {
		if s == o {
			return true
		}
	}
	return false
}
