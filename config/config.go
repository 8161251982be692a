// Package config loads and validates the application configuration.
package config

import (
	"bytes"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ThomasConway01/OutfitMatcher/media"
	"github.com/ThomasConway01/OutfitMatcher/providers"
)

// Default configuration values.
const (
	DefaultProviderType = "gemini"
	DefaultModel        = "gemini-1.5-flash"
	DefaultMaxTokens    = 1024
	DefaultTemperature  = 0.7
	DefaultTopP         = 0.95

	// DefaultMinRequestSpacing is the minimum spacing between inference
	// dispatches.
	DefaultMinRequestSpacing = 2 * time.Second
)

// Config is the root configuration.
type Config struct {
	Provider ProviderConfig `yaml:"provider"`

	// MinRequestSpacingMs is the minimum spacing between inference
	// dispatches, in milliseconds.
	MinRequestSpacingMs int `yaml:"min_request_spacing_ms"`

	Capture CaptureConfig `yaml:"capture"`

	// PreferencesPath overrides the default location of the persisted
	// preference store.
	PreferencesPath string `yaml:"preferences_path"`
}

// ProviderConfig selects and parameterizes the inference provider.
type ProviderConfig struct {
	Type        string  `yaml:"type"` // "gemini", "openrouter", "mock"
	Model       string  `yaml:"model"`
	ImageModel  string  `yaml:"image_model"`
	BaseURL     string  `yaml:"base_url"`
	APIKey      string  `yaml:"api_key"`
	Referer     string  `yaml:"referer"`
	Title       string  `yaml:"title"`
	Temperature float32 `yaml:"temperature"`
	TopP        float32 `yaml:"top_p"`
	TopK        int     `yaml:"top_k"`
	MaxTokens   int     `yaml:"max_tokens"`
}

// CaptureConfig parameterizes the capture source.
type CaptureConfig struct {
	// Root is the capture backend root (directory-backed source).
	Root string `yaml:"root"`

	MaxWidth  int `yaml:"max_width"`
	MaxHeight int `yaml:"max_height"`
	Quality   int `yaml:"quality"`
}

// Default returns a configuration with all defaults applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

// Load reads and validates a YAML configuration file.
// Unknown fields are rejected so typos surface early.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", path, err)
	}

	var cfg Config
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Provider.Type == "" {
		c.Provider.Type = DefaultProviderType
	}
	if c.Provider.Model == "" && c.Provider.Type == "gemini" {
		c.Provider.Model = DefaultModel
	}
	if c.Provider.Temperature == 0 {
		c.Provider.Temperature = DefaultTemperature
	}
	if c.Provider.TopP == 0 {
		c.Provider.TopP = DefaultTopP
	}
	if c.Provider.MaxTokens == 0 {
		c.Provider.MaxTokens = DefaultMaxTokens
	}
	if c.MinRequestSpacingMs == 0 {
		c.MinRequestSpacingMs = int(DefaultMinRequestSpacing / time.Millisecond)
	}
	if c.Capture.MaxWidth == 0 {
		c.Capture.MaxWidth = media.DefaultMaxWidth
	}
	if c.Capture.MaxHeight == 0 {
		c.Capture.MaxHeight = media.DefaultMaxHeight
	}
	if c.Capture.Quality == 0 {
		c.Capture.Quality = media.DefaultQuality
	}
}

// Validate checks configuration consistency.
func (c *Config) Validate() error {
	switch c.Provider.Type {
	case "gemini", "openrouter", "mock":
	default:
		return fmt.Errorf("unknown provider type %q", c.Provider.Type)
	}
	if c.MinRequestSpacingMs < 0 {
		return fmt.Errorf("min_request_spacing_ms must not be negative")
	}
	if c.Capture.Quality < 0 || c.Capture.Quality > 100 {
		return fmt.Errorf("capture quality must be within 1-100")
	}
	return nil
}

// MinRequestSpacing returns the configured pacing interval.
func (c *Config) MinRequestSpacing() time.Duration {
	return time.Duration(c.MinRequestSpacingMs) * time.Millisecond
}

// ProviderSpec converts the provider configuration into a factory spec.
// apiKey is the resolved credential; it overrides the configured value.
func (c *Config) ProviderSpec(apiKey string) providers.Spec {
	if apiKey == "" {
		apiKey = c.Provider.APIKey
	}
	return providers.Spec{
		ID:         c.Provider.Type,
		Type:       c.Provider.Type,
		Model:      c.Provider.Model,
		ImageModel: c.Provider.ImageModel,
		BaseURL:    c.Provider.BaseURL,
		APIKey:     apiKey,
		Referer:    c.Provider.Referer,
		Title:      c.Provider.Title,
		Defaults: providers.Defaults{
			Temperature: c.Provider.Temperature,
			TopP:        c.Provider.TopP,
			TopK:        c.Provider.TopK,
			MaxTokens:   c.Provider.MaxTokens,
		},
	}
}

// FrameConfig converts the capture configuration into snapshot encoding
// parameters.
func (c *Config) FrameConfig() media.FrameConfig {
	return media.FrameConfig{
		MaxWidth:  c.Capture.MaxWidth,
		MaxHeight: c.Capture.MaxHeight,
		Quality:   c.Capture.Quality,
	}
}
