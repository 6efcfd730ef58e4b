// Package config loads the prediction server configuration from a TOML file
// and DSPY_OBSIDIAN_* environment overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// EnvPrefix prefixes every environment override, e.g. DSPY_OBSIDIAN_LLM_PROVIDER.
const EnvPrefix = "DSPY_OBSIDIAN"

// Config is the server configuration.
type Config struct {
	LLM       LLM       `toml:"llm"`
	Memories  Memories  `toml:"memories"`
	Retrieval Retrieval `toml:"retrieval"`
	App       App       `toml:"app"`
}

// LLM selects and tunes the generator.
type LLM struct {
	Provider    string  `toml:"provider"` // "provider/model", default "openai/gpt-4o-mini"
	APIKey      string  `toml:"api_key"`
	BaseURL     string  `toml:"base_url"` // OpenAI-compatible endpoints only
	Temperature float64 `toml:"temperature"`
	MaxTokens   int     `toml:"max_tokens"`
}

// Memories configures the memory store.
type Memories struct {
	DBPath      string `toml:"db_path"` // empty = ~/.config/meridian-notes/notes.db
	Namespace   string `toml:"namespace"`
	RecallLimit int    `toml:"recall_limit"`
}

// Retrieval configures note search.
type Retrieval struct {
	K     int    `toml:"k"`
	Vault string `toml:"vault"` // indexed at startup when set
}

// App configures the HTTP surface.
type App struct {
	Addr             string `toml:"addr"`
	APIKey           string `toml:"api_key"`
	AllowCrossOrigin bool   `toml:"allow_cross_origin"`
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		LLM: LLM{
			Provider:    "openai/gpt-4o-mini",
			Temperature: 0.2,
		},
		Memories: Memories{
			Namespace:   "obsidian",
			RecallLimit: 10,
		},
		Retrieval: Retrieval{
			K: 4,
		},
		App: App{
			Addr:             "127.0.0.1:8000",
			AllowCrossOrigin: true,
		},
	}
}

// file mirrors Config but also accepts the legacy top-level api_key and
// allow_cross_origin keys.
type file struct {
	Config
	APIKey           string `toml:"api_key"`
	AllowCrossOrigin *bool  `toml:"allow_cross_origin"`
}

// Load reads path over the defaults, then applies environment overrides.
// A missing file (or an empty path) is not an error.
func Load(path string) (*Config, error) {
	return load(path, os.LookupEnv)
}

func load(path string, lookup func(string) (string, bool)) (*Config, error) {
	f := file{Config: *Default()}

	if path != "" {
		md, err := toml.DecodeFile(path, &f)
		switch {
		case err == nil:
			if !md.IsDefined("app", "api_key") && f.APIKey != "" {
				f.Config.App.APIKey = f.APIKey
			}
			if !md.IsDefined("app", "allow_cross_origin") && f.AllowCrossOrigin != nil {
				f.Config.App.AllowCrossOrigin = *f.AllowCrossOrigin
			}
		case os.IsNotExist(err):
		default:
			return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
		}
	}

	cfg := f.Config
	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}
	cfg.App.APIKey = strings.TrimSpace(cfg.App.APIKey)
	return &cfg, nil
}

// override binds one environment variable to a config field.
type override struct {
	section, key string
	set          func(string) error
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	overrides := []override{
		{"LLM", "PROVIDER", setString(&c.LLM.Provider)},
		{"LLM", "API_KEY", setString(&c.LLM.APIKey)},
		{"LLM", "BASE_URL", setString(&c.LLM.BaseURL)},
		{"LLM", "TEMPERATURE", setFloat(&c.LLM.Temperature)},
		{"LLM", "MAX_TOKENS", setInt(&c.LLM.MaxTokens)},
		{"MEMORY", "DB_PATH", setString(&c.Memories.DBPath)},
		{"MEMORY", "NAMESPACE", setString(&c.Memories.Namespace)},
		{"MEMORY", "RECALL_LIMIT", setInt(&c.Memories.RecallLimit)},
		{"RETRIEVAL", "K", setInt(&c.Retrieval.K)},
		{"RETRIEVAL", "VAULT", setString(&c.Retrieval.Vault)},
		{"APP", "ADDR", setString(&c.App.Addr)},
		{"APP", "API_KEY", setString(&c.App.APIKey)},
		{"APP", "ALLOW_CROSS_ORIGIN", setBool(&c.App.AllowCrossOrigin)},
	}

	for _, o := range overrides {
		name := EnvName(o.section, o.key)
		value, ok := lookup(name)
		if !ok {
			continue
		}
		if err := o.set(value); err != nil {
			return fmt.Errorf("config: %s: %w", name, err)
		}
	}
	return nil
}

// EnvName returns the environment variable that overrides section.key.
func EnvName(section, key string) string {
	return strings.ToUpper(EnvPrefix + "_" + section + "_" + key)
}

func setString(dst *string) func(string) error {
	return func(v string) error {
		*dst = v
		return nil
	}
}

func setInt(dst *int) func(string) error {
	return func(v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst = n
		return nil
	}
}

func setFloat(dst *float64) func(string) error {
	return func(v string) error {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return err
		}
		*dst = f
		return nil
	}
}

// setBool accepts true, 1, and yes (any case); everything else is false.
func setBool(dst *bool) func(string) error {
	return func(v string) error {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "1", "yes":
			*dst = true
		default:
			*dst = false
		}
		return nil
	}
}

// ProviderAPIKey returns the configured LLM key, falling back to the
// provider's conventional environment variable.
func (l LLM) ProviderAPIKey(provider string) string {
	if l.APIKey != "" {
		return l.APIKey
	}
	switch provider {
	case "anthropic":
		return os.Getenv("ANTHROPIC_API_KEY")
	case "openai":
		return os.Getenv("OPENAI_API_KEY")
	}
	return ""
}
