// Package config loads host configuration for the memory engine from a
// YAML file. The engine itself takes explicit structs and never reads the
// environment or files; this package exists for hosts that want their
// wiring declared in one place.
package config

import (
	"os"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"

	"github.com/becomeliminal/memcore/memory"
)

// Config is the host-facing configuration.
type Config struct {
	// Scope identifies the namespace this host serves.
	Scope memory.Scope `yaml:"scope"`

	// Weights override the default fusion weights when set.
	Weights *memory.Weights `yaml:"weights"`

	// ShortTerm sets the rolling buffer policy.
	ShortTerm ShortTerm `yaml:"shortTerm"`

	// Backend selects durable storage.
	Backend Backend `yaml:"backend"`

	// Embedder selects the embedding provider.
	Embedder Embedder `yaml:"embedder"`
}

// ShortTerm mirrors memory.ShortTermConfig with an explicit enable flag
// for the summarize-on-overflow policy (absent means enabled).
type ShortTerm struct {
	TokenLimit        int   `yaml:"tokenLimit"`
	SummarizeOverflow *bool `yaml:"summarizeOverflow"`
}

// BufferConfig converts to the engine's buffer policy.
func (s ShortTerm) BufferConfig() memory.ShortTermConfig {
	cfg := memory.DefaultShortTermConfig
	if s.TokenLimit > 0 {
		cfg.TokenLimit = s.TokenLimit
	}
	if s.SummarizeOverflow != nil {
		cfg.SummarizeOverflow = *s.SummarizeOverflow
	}
	return cfg
}

// Backend selects and parameterizes a SearchBackend implementation.
type Backend struct {
	// Driver is "local" or "pgvector".
	Driver string `yaml:"driver"`

	// DSN is the Postgres connection string for the pgvector driver.
	DSN string `yaml:"dsn"`
}

// Embedder selects and parameterizes an Embedder implementation.
type Embedder struct {
	// Provider is "mock" or "onnx".
	Provider string `yaml:"provider"`

	ModelPath     string `yaml:"modelPath"`
	TokenizerPath string `yaml:"tokenizerPath"`
	LibraryPath   string `yaml:"libraryPath"`
	Dimensions    int    `yaml:"dimensions"`

	// CacheBytes enables the ristretto embedding cache when positive.
	CacheBytes int64 `yaml:"cacheBytes"`
}

// Load reads and validates a YAML config file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read config file", goerr.V("path", path))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "parse config file", goerr.V("path", path))
	}
	if err := cfg.Scope.Validate(); err != nil {
		return nil, err
	}
	if cfg.Weights != nil {
		if err := cfg.Weights.Validate(); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}
