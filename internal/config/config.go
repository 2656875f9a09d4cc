// Package config loads offcache settings from YAML, JSON, or CUE files.
package config

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/roach88/offcache/internal/objectstore"
	"github.com/roach88/offcache/internal/store"
)

//go:embed schema.cue
var schemaCUE string

// Config holds the cache settings.
type Config struct {
	// Database is the SQLite file path.
	Database string `json:"database" yaml:"database"`

	// Signaling is the schema version signaling variant.
	Signaling string `json:"signaling" yaml:"signaling"`

	// IDScheme generates ids for records saved without one.
	IDScheme string `json:"id_scheme" yaml:"id_scheme"`

	LogLevel string `json:"log_level" yaml:"log_level"`

	Remote Remote `json:"remote" yaml:"remote"`
}

// Remote configures the REST sync target.
type Remote struct {
	BaseURL string            `json:"base_url" yaml:"base_url"`
	AppKey  string            `json:"app_key" yaml:"app_key"`
	Timeout string            `json:"timeout" yaml:"timeout"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Database:  "offcache.db",
		Signaling: string(store.SignalUpgradeEvent),
		IDScheme:  "timestamp",
		LogLevel:  "info",
		Remote: Remote{
			Timeout: "30s",
		},
	}
}

// Load reads a configuration file. A missing file yields the defaults.
// The format follows the extension: .yaml/.yml, .json, or .cue.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	switch ext := filepath.Ext(path); ext {
	case ".yaml", ".yml":
		err = decodeYAML(data, cfg)
	case ".json":
		err = decodeJSON(data, cfg)
	case ".cue":
		err = decodeCUE(data, path, cfg)
	default:
		return nil, fmt.Errorf("load config %s: unsupported extension %q", path, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}

func decodeYAML(data []byte, cfg *Config) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse YAML: %w", err)
	}
	return nil
}

func decodeJSON(data []byte, cfg *Config) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return fmt.Errorf("parse JSON: %w", err)
	}
	return nil
}

// decodeCUE unifies the file with the embedded schema, so defaults and
// constraints come from CUE before the Go-side Validate runs.
func decodeCUE(data []byte, path string, cfg *Config) error {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return fmt.Errorf("compile config schema: %w", err)
	}
	value := ctx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return fmt.Errorf("parse CUE: %w", err)
	}

	unified := schema.LookupPath(cue.ParsePath("#Config")).Unify(value)
	if err := unified.Validate(cue.Concrete(true)); err != nil {
		return fmt.Errorf("validate CUE: %w", err)
	}
	if err := unified.Decode(cfg); err != nil {
		return fmt.Errorf("decode CUE: %w", err)
	}
	return nil
}

// Validate checks enumerations and the timeout format.
func (c *Config) Validate() error {
	if c.Database == "" {
		return fmt.Errorf("database is required")
	}
	if _, err := store.ParseSignaling(c.Signaling); err != nil {
		return err
	}
	if _, ok := objectstore.NewIDGenerator(c.IDScheme); !ok {
		return fmt.Errorf("unknown id_scheme %q (want timestamp or uuidv7)", c.IDScheme)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	if _, err := c.Remote.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}

// SignalingMode returns the parsed signaling variant.
func (c *Config) SignalingMode() store.Signaling {
	s, err := store.ParseSignaling(c.Signaling)
	if err != nil {
		return store.SignalUpgradeEvent
	}
	return s
}

// IDGenerator returns the generator for the configured id scheme.
func (c *Config) IDGenerator() objectstore.IDGenerator {
	g, ok := objectstore.NewIDGenerator(c.IDScheme)
	if !ok {
		return objectstore.TimestampGenerator{}
	}
	return g
}

// SlogLevel returns the configured log level.
func (c *Config) SlogLevel() slog.Level {
	l, err := parseLevel(c.LogLevel)
	if err != nil {
		return slog.LevelInfo
	}
	return l
}

func parseLevel(s string) (slog.Level, error) {
	if s == "" {
		return slog.LevelInfo, nil
	}
	var l slog.Level
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return 0, fmt.Errorf("unknown log_level %q", s)
	}
	return l, nil
}

// TimeoutDuration parses Timeout. Empty means no timeout.
func (r Remote) TimeoutDuration() (time.Duration, error) {
	if r.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(r.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid remote timeout %q: %w", r.Timeout, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("invalid remote timeout %q: negative", r.Timeout)
	}
	return d, nil
}
