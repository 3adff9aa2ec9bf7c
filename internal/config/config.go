// Package config loads the driver configuration from YAML.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/invopop/jsonschema"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned for configuration that cannot be used.
var ErrInvalidConfig = errors.New("config: invalid configuration")

// Environment overrides, applied after the file is read.
const (
	EnvLogLevel  = "DEOBF_LOG_LEVEL"
	EnvWorkers   = "DEOBF_WORKERS"
	EnvMaxPasses = "DEOBF_MAX_PASSES"
)

// DefaultFile is the configuration file looked up when none is given.
const DefaultFile = "deobf.yaml"

// Config is the root of deobf.yaml.
type Config struct {
	Transformers     []string        `yaml:"transformers" json:"transformers,omitempty" jsonschema:"title=Transformers,description=Transformer names to run; dependencies are added automatically. Empty runs the default queue"`
	MaxPasses        int             `yaml:"max_passes" json:"max_passes,omitempty" jsonschema:"title=Max passes,description=Ceiling on repetitions of the queue until nothing changes,minimum=1,default=10"`
	Workers          int             `yaml:"workers" json:"workers,omitempty" jsonschema:"title=Workers,description=Classes transformed concurrently; 0 means GOMAXPROCS,minimum=0"`
	MaxAnalysisSteps int             `yaml:"max_analysis_steps" json:"max_analysis_steps,omitempty" jsonschema:"title=Max analysis steps,description=Block visits allowed per method analysis; 0 uses the built-in limit,minimum=0,default=1000000"`
	Lookup           LookupConfig    `yaml:"lookup" json:"lookup,omitempty"`
	Log              LogConfig       `yaml:"log" json:"log,omitempty"`
	Telemetry        TelemetryConfig `yaml:"telemetry" json:"telemetry,omitempty"`
}

// LookupConfig restricts the library calls constant folding may evaluate.
type LookupConfig struct {
	Allow []string `yaml:"allow" json:"allow,omitempty" jsonschema:"description=Call keys or key prefixes ending in * to keep; empty keeps every built-in call"`
	Deny  []string `yaml:"deny" json:"deny,omitempty" jsonschema:"description=Call keys or key prefixes ending in * to drop"`
}

type LogConfig struct {
	Level string `yaml:"level" json:"level,omitempty" jsonschema:"enum=debug,enum=info,enum=warn,enum=error,default=info"`
}

type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled" json:"enabled,omitempty"`
	Endpoint    string `yaml:"endpoint" json:"endpoint,omitempty" jsonschema:"description=OTLP/HTTP collector host:port,default=localhost:4318"`
	ServiceName string `yaml:"service_name" json:"service_name,omitempty" jsonschema:"default=deobf"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		MaxPasses:        10,
		MaxAnalysisSteps: 1_000_000,
		Log:              LogConfig{Level: "info"},
		Telemetry: TelemetryConfig{
			Endpoint:    "localhost:4318",
			ServiceName: "deobf",
		},
	}
}

// Load reads path over the defaults and applies the environment overrides.
// An empty path loads DefaultFile if it exists and the defaults otherwise.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultFile
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.Parse(data); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
	case !explicit && errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Parse decodes YAML over c. Unknown keys are rejected.
func (c *Config) Parse(data []byte) error {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(c); err != nil {
		// an empty document leaves the defaults alone
		if errors.Is(err, io.EOF) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

func (c *Config) applyEnv() error {
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	for _, o := range []struct {
		env string
		dst *int
	}{
		{EnvWorkers, &c.Workers},
		{EnvMaxPasses, &c.MaxPasses},
	} {
		v := os.Getenv(o.env)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, o.env, v)
		}
		*o.dst = n
	}
	return nil
}

// Validate reports the first unusable setting.
func (c *Config) Validate() error {
	switch {
	case c.MaxPasses < 1:
		return fmt.Errorf("%w: max_passes must be at least 1, got %d", ErrInvalidConfig, c.MaxPasses)
	case c.Workers < 0:
		return fmt.Errorf("%w: workers must not be negative, got %d", ErrInvalidConfig, c.Workers)
	case c.MaxAnalysisSteps < 0:
		return fmt.Errorf("%w: max_analysis_steps must not be negative, got %d", ErrInvalidConfig, c.MaxAnalysisSteps)
	case c.Telemetry.Enabled && c.Telemetry.Endpoint == "":
		return fmt.Errorf("%w: telemetry.endpoint is required when telemetry is enabled", ErrInvalidConfig)
	}
	switch strings.ToLower(c.Log.Level) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("%w: unknown log level %q", ErrInvalidConfig, c.Log.Level)
	}
	seen := make(map[string]bool, len(c.Transformers))
	for _, name := range c.Transformers {
		if name == "" {
			return fmt.Errorf("%w: empty transformer name", ErrInvalidConfig)
		}
		if seen[name] {
			return fmt.Errorf("%w: transformer %q listed twice", ErrInvalidConfig, name)
		}
		seen[name] = true
	}
	return nil
}

// Schema returns the JSON schema of the configuration file.
func Schema() *jsonschema.Schema {
	r := &jsonschema.Reflector{DoNotReference: true}
	s := r.Reflect(&Config{})
	s.Title = "deobf configuration"
	return s
}
