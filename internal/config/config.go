// Package config assembles the ChatRelay runtime configuration from
// environment variables, optionally overlaid by a YAML file.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults applied when neither environment nor file provide a value.
const (
	DefaultProvider  = "google"
	DefaultModel     = "gemini-2.0-flash"
	DefaultMaxTokens = 200
	DefaultTimeout   = 28 * time.Second
	DefaultListen    = ":8080"
	DefaultDBPath    = "chatrelay.db"
)

// Config is the immutable runtime configuration. It is built once at startup
// and threaded into constructors; nothing reads the environment afterwards.
type Config struct {
	Listen string `yaml:"listen"`

	LLM  LLMConfig  `yaml:"llm"`
	Line LineConfig `yaml:"line"`

	// AuthKey guards /api/chat. Empty disables the check.
	AuthKey string `yaml:"auth_key"`

	// EncryptionKey is the passphrase for at-rest secret encryption. Empty
	// disables encryption (values stored as given).
	EncryptionKey string `yaml:"encryption_key"`

	// DatabasePath is the SQLite file backing conversations and settings.
	// Empty selects the in-memory conversation store.
	DatabasePath string `yaml:"database_path"`

	GoogleMapAPIKey string `yaml:"google_map_api_key"`
	TavilyAPIKey    string `yaml:"tavily_api_key"`
}

// LLMConfig holds the environment-level model defaults. Persisted settings
// shadow these field-by-field at resolution time.
type LLMConfig struct {
	Provider    string        `yaml:"provider"`
	Model       string        `yaml:"model"`
	APIKey      string        `yaml:"api_key"`
	BaseURL     string        `yaml:"base_url"`
	MaxTokens   int           `yaml:"max_tokens"`
	Temperature *float32      `yaml:"temperature"`
	Timeout     time.Duration `yaml:"timeout"`
	SystemRole  string        `yaml:"system_role"`
}

// LineConfig holds the LINE messaging channel credentials.
type LineConfig struct {
	ChannelAccessToken string `yaml:"channel_access_token"`
	ChannelSecret      string `yaml:"channel_secret"`
}

// FromEnv builds a Config from environment variables with documented
// defaults.
func FromEnv() (*Config, error) {
	cfg := &Config{
		Listen: envOr("LISTEN_ADDR", DefaultListen),
		LLM: LLMConfig{
			Provider:   envOr("LLM_PROVIDER", DefaultProvider),
			Model:      envOr("LLM_MODEL", DefaultModel),
			APIKey:     os.Getenv("LLM_API_KEY"),
			BaseURL:    os.Getenv("LLM_BASE_URL"),
			SystemRole: os.Getenv("LLM_SYSTEM_ROLE"),
			MaxTokens:  DefaultMaxTokens,
			Timeout:    DefaultTimeout,
		},
		Line: LineConfig{
			ChannelAccessToken: os.Getenv("LINE_CHANNEL_ACCESS_TOKEN"),
			ChannelSecret:      os.Getenv("LINE_CHANNEL_SECRET"),
		},
		AuthKey:         os.Getenv("AUTH_KEY"),
		EncryptionKey:   os.Getenv("ENCRYPTION_KEY"),
		DatabasePath:    envOr("DATABASE_PATH", DefaultDBPath),
		GoogleMapAPIKey: os.Getenv("GOOGLE_MAP_API_KEY"),
		TavilyAPIKey:    os.Getenv("TAVILY_API_KEY"),
	}

	if v := os.Getenv("LLM_MAX_TOKENS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid LLM_MAX_TOKENS %q", v)
		}
		cfg.LLM.MaxTokens = n
	}
	if v := os.Getenv("LLM_TIMEOUT"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil || ms <= 0 {
			return nil, fmt.Errorf("invalid LLM_TIMEOUT %q (milliseconds)", v)
		}
		cfg.LLM.Timeout = time.Duration(ms) * time.Millisecond
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		f, err := strconv.ParseFloat(v, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid LLM_TEMPERATURE %q", v)
		}
		t := float32(f)
		cfg.LLM.Temperature = &t
	}

	return cfg, nil
}

// Load builds the environment config and, when path is non-empty, overlays
// the YAML file on top. Environment references in the file (`${VAR}`) are
// expanded before parsing.
func Load(path string) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}
	expanded := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
