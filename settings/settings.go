// Package settings stores the prediction client's backend settings.
//
// Values are layered: built-in defaults, then the YAML settings file, then
// NOTES_* environment variables. Only the file layer is ever written back.
package settings

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	notes "github.com/haowjy/meridian-notes-go"
	"github.com/haowjy/meridian-notes-go/client"
)

// Environment overrides.
const (
	EnvBaseURL          = "NOTES_BASE_URL"
	EnvAPIKey           = "NOTES_API_KEY"
	EnvIncludeMemory    = "NOTES_INCLUDE_MEMORY"
	EnvIncludeRetrieval = "NOTES_INCLUDE_RETRIEVAL"
	EnvStream           = "NOTES_STREAM"
)

// ErrUnknownKey is returned by Set for a key that is not a setting.
var ErrUnknownKey = errors.New("settings: unknown key")

// BackendSettings configures how the client reaches the backend.
type BackendSettings struct {
	BaseURL                   string `yaml:"base_url" json:"base_url"`
	APIKey                    string `yaml:"api_key,omitempty" json:"api_key,omitempty"`
	IncludeMemoryByDefault    bool   `yaml:"include_memory_by_default" json:"include_memory_by_default"`
	IncludeRetrievalByDefault bool   `yaml:"include_retrieval_by_default" json:"include_retrieval_by_default"`
	StreamResponses           bool   `yaml:"stream_responses" json:"stream_responses"`
}

// Defaults returns the settings used before anything is persisted.
func Defaults() BackendSettings {
	return BackendSettings{
		BaseURL:                   "http://localhost:8000",
		IncludeMemoryByDefault:    true,
		IncludeRetrievalByDefault: true,
		StreamResponses:           true,
	}
}

// Store loads and persists settings.
type Store interface {
	Load() (BackendSettings, error)
	Save(BackendSettings) error
}

// FileStore keeps settings in a YAML file.
type FileStore struct {
	Path string

	// LookupEnv resolves overrides; nil means os.LookupEnv
	LookupEnv func(string) (string, bool)
}

var _ Store = (*FileStore)(nil)

// DefaultPath returns ~/.config/meridian-notes/settings.yaml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("settings: cannot determine home directory: %w", err)
	}
	return filepath.Join(home, ".config", "meridian-notes", "settings.yaml"), nil
}

// NewFileStore returns a store at path, or at DefaultPath when path is empty.
func NewFileStore(path string) (*FileStore, error) {
	if path == "" {
		var err error
		if path, err = DefaultPath(); err != nil {
			return nil, err
		}
	}
	return &FileStore{Path: path}, nil
}

// Load returns defaults overlaid by the file and then the environment.
func (s *FileStore) Load() (BackendSettings, error) {
	settings, err := s.LoadPersisted()
	if err != nil {
		return settings, err
	}
	if err := settings.applyEnv(s.lookup()); err != nil {
		return settings, err
	}
	return settings.normalize(), nil
}

// LoadPersisted returns defaults overlaid by the file only. A missing file
// yields the defaults.
func (s *FileStore) LoadPersisted() (BackendSettings, error) {
	settings := Defaults()
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return settings, nil
	}
	if err != nil {
		return settings, fmt.Errorf("settings: read %s: %w", s.Path, err)
	}
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return Defaults(), fmt.Errorf("settings: parse %s: %w", s.Path, err)
	}
	return settings.normalize(), nil
}

// Save writes settings to the file.
func (s *FileStore) Save(settings BackendSettings) error {
	data, err := yaml.Marshal(settings.normalize())
	if err != nil {
		return fmt.Errorf("settings: encode: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0700); err != nil {
		return fmt.Errorf("settings: create directory: %w", err)
	}
	if err := os.WriteFile(s.Path, data, 0600); err != nil {
		return fmt.Errorf("settings: write %s: %w", s.Path, err)
	}
	return nil
}

func (s *FileStore) lookup() func(string) (string, bool) {
	if s.LookupEnv != nil {
		return s.LookupEnv
	}
	return os.LookupEnv
}

func (b *BackendSettings) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvBaseURL); ok {
		b.BaseURL = v
	}
	if v, ok := lookup(EnvAPIKey); ok {
		b.APIKey = v
	}
	for name, dst := range map[string]*bool{
		EnvIncludeMemory:    &b.IncludeMemoryByDefault,
		EnvIncludeRetrieval: &b.IncludeRetrievalByDefault,
		EnvStream:           &b.StreamResponses,
	} {
		v, ok := lookup(name)
		if !ok {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("settings: %s: %w", name, err)
		}
		*dst = parsed
	}
	return nil
}

func (b BackendSettings) normalize() BackendSettings {
	b.BaseURL = strings.TrimSpace(b.BaseURL)
	b.APIKey = strings.TrimSpace(b.APIKey)
	return b
}

// Keys lists the names accepted by Set.
func Keys() []string {
	return []string{"base_url", "api_key", "include_memory_by_default", "include_retrieval_by_default", "stream_responses"}
}

// Set assigns one setting by its YAML key.
func (b *BackendSettings) Set(key, value string) error {
	switch key {
	case "base_url":
		b.BaseURL = strings.TrimSpace(value)
		return nil
	case "api_key":
		b.APIKey = strings.TrimSpace(value)
		return nil
	}

	var dst *bool
	switch key {
	case "include_memory_by_default":
		dst = &b.IncludeMemoryByDefault
	case "include_retrieval_by_default":
		dst = &b.IncludeRetrievalByDefault
	case "stream_responses":
		dst = &b.StreamResponses
	default:
		return fmt.Errorf("%w %q (valid: %s)", ErrUnknownKey, key, strings.Join(Keys(), ", "))
	}
	parsed, err := strconv.ParseBool(strings.TrimSpace(value))
	if err != nil {
		return fmt.Errorf("settings: %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

// NewRequest builds a request with the configured include defaults.
// An empty notePath is sent as absent.
func (b BackendSettings) NewRequest(prompt, notePath string) *notes.PredictRequest {
	req := &notes.PredictRequest{
		Prompt:           prompt,
		IncludeMemory:    b.IncludeMemoryByDefault,
		IncludeRetrieval: b.IncludeRetrievalByDefault,
	}
	if notePath != "" {
		req.NotePath = &notePath
	}
	return req
}

// NewClient returns a client for the configured backend.
func (b BackendSettings) NewClient(opts ...client.Option) (*client.Client, error) {
	if b.APIKey != "" {
		opts = append([]client.Option{client.WithAPIKey(b.APIKey)}, opts...)
	}
	return client.New(b.BaseURL, opts...)
}

// LoadDotEnv searches for a .env file starting from the current directory
// and walking up the directory tree, and loads the first one found without
// overriding variables that are already set. Returns the loaded path, or ""
// when there is none.
func LoadDotEnv() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", nil
	}

	for {
		envPath := filepath.Join(dir, ".env")
		if info, err := os.Stat(envPath); err == nil && !info.IsDir() {
			if err := godotenv.Load(envPath); err != nil {
				return envPath, fmt.Errorf("settings: load %s: %w", envPath, err)
			}
			return envPath, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}
