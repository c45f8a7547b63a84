// Package config loads the tally configuration file and applies TALLY_*
// environment overrides on top of it.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aretw0/tally/internal/logging"
	"github.com/aretw0/tally/pkg/domain"
	"github.com/aretw0/tally/pkg/persistence/middleware"
	"gopkg.in/yaml.v3"
)

// Planner providers.
const (
	ProviderOpenAI   = "openai"
	ProviderScripted = "scripted"
)

// Store drivers.
const (
	DriverMemory = "memory"
	DriverRedis  = "redis"
)

// EnvPrefix marks the environment variables read by ApplyEnv.
const EnvPrefix = "TALLY_"

// Config is the full application configuration.
type Config struct {
	Planner     PlannerConfig     `yaml:"planner" json:"planner"`
	Engine      EngineConfig      `yaml:"engine" json:"engine"`
	Store       StoreConfig       `yaml:"store" json:"store"`
	HTTP        HTTPConfig        `yaml:"http" json:"http"`
	Transcripts TranscriptsConfig `yaml:"transcripts" json:"transcripts"`
	Log         LogConfig         `yaml:"log" json:"log"`
	// User is the identity used by the local chat and MCP stdio commands.
	User domain.Identity `yaml:"user" json:"user"`
}

type PlannerConfig struct {
	Provider     string  `yaml:"provider" json:"provider"`
	URL          string  `yaml:"url" json:"url"`
	Model        string  `yaml:"model" json:"model"`
	APIKey       string  `yaml:"api_key" json:"api_key"`
	SystemPrompt string  `yaml:"system_prompt,omitempty" json:"system_prompt,omitempty"`
	MaxTokens    int     `yaml:"max_tokens" json:"max_tokens"`
	Temperature  float64 `yaml:"temperature" json:"temperature"`
	// Script is the YAML script replayed by the scripted provider.
	Script string `yaml:"script,omitempty" json:"script,omitempty"`
}

type EngineConfig struct {
	StepBudget     int      `yaml:"step_budget" json:"step_budget"`
	PlannerTimeout Duration `yaml:"planner_timeout" json:"planner_timeout"`
	PlannerRetries int      `yaml:"planner_retries" json:"planner_retries"`
	RetryBackoff   Duration `yaml:"retry_backoff" json:"retry_backoff"`
	ActionTimeout  Duration `yaml:"action_timeout" json:"action_timeout"`
	ChunkSize      int      `yaml:"chunk_size" json:"chunk_size"`
	Progress       bool     `yaml:"progress" json:"progress"`
}

type StoreConfig struct {
	Driver   string   `yaml:"driver" json:"driver"`
	Addr     string   `yaml:"addr,omitempty" json:"addr,omitempty"`
	Password string   `yaml:"password,omitempty" json:"password,omitempty"`
	DB       int      `yaml:"db" json:"db"`
	Prefix   string   `yaml:"prefix" json:"prefix"`
	TTL      Duration `yaml:"ttl" json:"ttl"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr" json:"addr"`
	// Tokens maps bearer tokens to the identity they authenticate.
	Tokens map[string]domain.Identity `yaml:"tokens,omitempty" json:"tokens,omitempty"`
	// IdentityHeader enables header-based identity for development. Empty disables it.
	IdentityHeader string `yaml:"identity_header,omitempty" json:"identity_header,omitempty"`
}

type TranscriptsConfig struct {
	Persist bool     `yaml:"persist" json:"persist"`
	Redact  []string `yaml:"redact,omitempty" json:"redact,omitempty"`
	// EncryptionKey is a base64 AES-256 key. Empty stores transcripts in clear.
	EncryptionKey string   `yaml:"encryption_key,omitempty" json:"encryption_key,omitempty"`
	FallbackKeys  []string `yaml:"fallback_keys,omitempty" json:"fallback_keys,omitempty"`
}

type LogConfig struct {
	Level  string `yaml:"level" json:"level"`
	Format string `yaml:"format" json:"format"`
}

// Duration is a time.Duration written as "30s" in configuration files.
type Duration time.Duration

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Default returns a configuration that runs fully in memory.
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			Provider:  ProviderOpenAI,
			URL:       "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			MaxTokens: 1024,
		},
		Engine: EngineConfig{
			StepBudget:     5,
			PlannerTimeout: Duration(30 * time.Second),
			PlannerRetries: 1,
			RetryBackoff:   Duration(500 * time.Millisecond),
			ActionTimeout:  Duration(10 * time.Second),
			ChunkSize:      48,
			Progress:       true,
		},
		Store: StoreConfig{
			Driver: DriverMemory,
			Prefix: "tally:",
		},
		HTTP: HTTPConfig{
			Addr: ":8080",
		},
		Transcripts: TranscriptsConfig{
			Persist: true,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "auto",
		},
		User: domain.Identity{UserID: "local", Name: "Local User"},
	}
}

// Load reads the configuration at path and applies environment overrides.
// A missing file yields the defaults. Files ending in .json are decoded as
// JSON and everything else as YAML.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := decode(path, data, cfg); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := cfg.ApplyEnv(os.Environ()); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(cfg)
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Save writes cfg to path as YAML or JSON depending on the extension.
func Save(cfg *Config, path string) error {
	var (
		data []byte
		err  error
	)
	if strings.EqualFold(filepath.Ext(path), ".json") {
		data, err = json.MarshalIndent(cfg, "", "  ")
	} else {
		data, err = yaml.Marshal(cfg)
	}
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate reports every out-of-range setting at once.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	switch c.Planner.Provider {
	case ProviderOpenAI:
		if c.Planner.URL == "" {
			add("planner.url is required for the %s provider", ProviderOpenAI)
		}
		if c.Planner.Model == "" {
			add("planner.model is required for the %s provider", ProviderOpenAI)
		}
	case ProviderScripted:
		if c.Planner.Script == "" {
			add("planner.script is required for the %s provider", ProviderScripted)
		}
	default:
		add("planner.provider %q is not one of %s, %s", c.Planner.Provider, ProviderOpenAI, ProviderScripted)
	}

	if c.Engine.StepBudget <= 0 {
		add("engine.step_budget must be positive, got %d", c.Engine.StepBudget)
	}
	if c.Engine.PlannerRetries < 0 {
		add("engine.planner_retries must not be negative, got %d", c.Engine.PlannerRetries)
	}
	if c.Engine.PlannerTimeout < 0 || c.Engine.RetryBackoff < 0 || c.Engine.ActionTimeout < 0 {
		add("engine timeouts must not be negative")
	}
	if c.Engine.ChunkSize <= 0 {
		add("engine.chunk_size must be positive, got %d", c.Engine.ChunkSize)
	}

	switch c.Store.Driver {
	case DriverMemory:
	case DriverRedis:
		if c.Store.Addr == "" {
			add("store.addr is required for the %s driver", DriverRedis)
		}
	default:
		add("store.driver %q is not one of %s, %s", c.Store.Driver, DriverMemory, DriverRedis)
	}
	if c.Store.TTL < 0 {
		add("store.ttl must not be negative")
	}

	for token, id := range c.HTTP.Tokens {
		if strings.TrimSpace(token) == "" {
			add("http.tokens contains an empty token")
		}
		if err := id.Validate(); err != nil {
			add("http.tokens: %w", err)
		}
	}

	if c.Transcripts.EncryptionKey != "" {
		if _, err := middleware.ParseKey(c.Transcripts.EncryptionKey); err != nil {
			add("transcripts.encryption_key: %w", err)
		}
	}
	for i, k := range c.Transcripts.FallbackKeys {
		if _, err := middleware.ParseKey(k); err != nil {
			add("transcripts.fallback_keys[%d]: %w", i, err)
		}
	}

	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		add("log.level: %w", err)
	}
	switch strings.ToLower(c.Log.Format) {
	case "", "auto", "text", "json":
	default:
		add("log.format %q is not one of auto, text, json", c.Log.Format)
	}

	return errors.Join(errs...)
}
