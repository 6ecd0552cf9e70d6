// Package config handles configuration loading and layering.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/atomicfile"
)

// ---------------------------------------------------------------------------
// Config types
// ---------------------------------------------------------------------------

// LLMConfig holds settings for the text-generation provider.
type LLMConfig struct {
	Provider  string `yaml:"provider"` // "anthropic" | "openai" | "openrouter" | "ollama" | "none"
	Model     string `yaml:"model"`
	BaseURL   string `yaml:"base_url"`
	APIKey    string `yaml:"api_key"` // #nosec G117 -- APIKey is an intentional field name for the provider's authentication token
	MaxTokens int    `yaml:"max_tokens"`
}

// EmbeddingConfig holds settings for the embedding provider.
type EmbeddingConfig struct {
	Provider string `yaml:"provider"` // "ollama" | "openai" | "openrouter" | "none"
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key"` // #nosec G117 -- APIKey is an intentional field name for the embedding provider's authentication token
}

// GitConfig controls how much version-control history is summarised.
type GitConfig struct {
	RecentCommits int `yaml:"recent_commits"`
}

// DepsConfig selects and locates the package index used by `deps check`.
type DepsConfig struct {
	Index      string `yaml:"index"` // "auto" | "goproxy" | "pypi"
	GoProxyURL string `yaml:"goproxy_url"`
	PyPIURL    string `yaml:"pypi_url"`
}

// HistoryConfig controls the event journal.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Semantic string `yaml:"semantic"` // "auto" | "always" | "never"
}

// Config is the effective configuration handed to collaborator constructors.
type Config struct {
	LLM       LLMConfig       `yaml:"llm"`
	Embedding EmbeddingConfig `yaml:"embedding"`
	Git       GitConfig       `yaml:"git"`
	Deps      DepsConfig      `yaml:"deps"`
	History   HistoryConfig   `yaml:"history"`
}

// Environment variables consulted by ApplyEnv.
const (
	EnvAnthropicKey = "ANTHROPIC_API_KEY"
	EnvOpenAIKey    = "OPENAI_API_KEY"
	EnvLLMProvider  = "CONTEXTMGR_LLM_PROVIDER"
	EnvLLMModel     = "CONTEXTMGR_LLM_MODEL"
)

// ErrExists is returned by WriteStarter when the target exists and force is off.
var ErrExists = errors.New("config file already exists")

// Default returns a Config populated with sensible defaults.
func Default() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:  "anthropic",
			Model:     "claude-3-opus-20240229",
			MaxTokens: 1000,
		},
		Embedding: EmbeddingConfig{
			Provider: "none",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		Git: GitConfig{
			RecentCommits: 5,
		},
		Deps: DepsConfig{
			Index:      "auto",
			GoProxyURL: "https://proxy.golang.org",
			PyPIURL:    "https://pypi.org/pypi",
		},
		History: HistoryConfig{
			Enabled:  true,
			Semantic: "auto",
		},
	}
}

// Load reads a single config.yaml from path on top of Default().
// If the file does not exist it returns Default() with no error.
func Load(path string) (*Config, error) {
	cfg := Default()
	if err := Merge(cfg, path); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Merge applies the keys present in the file at path to cfg.
// Missing keys retain their current values. A missing file is not an error.
func Merge(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("config.Merge: %w", err)
	}

	// Unmarshal into a plain map so we can apply only the keys that are present.
	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("config.Merge: parse %s: %w", path, err)
	}

	if llm, ok := raw["llm"].(map[string]any); ok {
		setNonEmpty(llm, "provider", &cfg.LLM.Provider)
		setNonEmpty(llm, "model", &cfg.LLM.Model)
		setString(llm, "base_url", &cfg.LLM.BaseURL)
		setString(llm, "api_key", &cfg.LLM.APIKey)
		setPositive(llm, "max_tokens", &cfg.LLM.MaxTokens)
	}

	if emb, ok := raw["embedding"].(map[string]any); ok {
		setNonEmpty(emb, "provider", &cfg.Embedding.Provider)
		setNonEmpty(emb, "model", &cfg.Embedding.Model)
		setString(emb, "base_url", &cfg.Embedding.BaseURL)
		setString(emb, "api_key", &cfg.Embedding.APIKey)
	}

	if git, ok := raw["git"].(map[string]any); ok {
		setPositive(git, "recent_commits", &cfg.Git.RecentCommits)
	}

	if deps, ok := raw["deps"].(map[string]any); ok {
		setNonEmpty(deps, "index", &cfg.Deps.Index)
		setNonEmpty(deps, "goproxy_url", &cfg.Deps.GoProxyURL)
		setNonEmpty(deps, "pypi_url", &cfg.Deps.PyPIURL)
	}

	if hist, ok := raw["history"].(map[string]any); ok {
		if v, ok := hist["enabled"].(bool); ok {
			cfg.History.Enabled = v
		}
		setNonEmpty(hist, "semantic", &cfg.History.Semantic)
	}

	return nil
}

// ApplyEnv overlays environment settings onto cfg. API keys from the
// environment only fill keys the files left empty.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if v := strings.TrimSpace(getenv(EnvLLMProvider)); v != "" {
		cfg.LLM.Provider = v
	}
	if v := strings.TrimSpace(getenv(EnvLLMModel)); v != "" {
		cfg.LLM.Model = v
	}

	if cfg.LLM.APIKey == "" {
		switch cfg.LLM.Provider {
		case "anthropic":
			cfg.LLM.APIKey = getenv(EnvAnthropicKey)
		case "openai":
			cfg.LLM.APIKey = getenv(EnvOpenAIKey)
		}
	}
	if cfg.Embedding.APIKey == "" && cfg.Embedding.Provider == "openai" {
		cfg.Embedding.APIKey = getenv(EnvOpenAIKey)
	}
}

// ---------------------------------------------------------------------------
// Layering
// ---------------------------------------------------------------------------

// GlobalPath returns the path to the per-user config file.
func GlobalPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "contextmgr", "config.yaml"), nil
}

// ProjectPath returns the path to the per-project config file.
func ProjectPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".context", "config.yaml")
}

// Resolve builds the effective config for projectRoot:
// Default → global file → project file → environment.
func Resolve(projectRoot string) (*Config, error) {
	paths := make([]string, 0, 2)
	if global, err := GlobalPath(); err == nil {
		paths = append(paths, global)
	}
	paths = append(paths, ProjectPath(projectRoot))
	return ResolveFrom(paths, os.Getenv)
}

// ResolveFrom merges the files in order over Default() and then applies getenv.
func ResolveFrom(paths []string, getenv func(string) string) (*Config, error) {
	cfg := Default()
	for _, p := range paths {
		if err := Merge(cfg, p); err != nil {
			return nil, err
		}
	}
	ApplyEnv(cfg, getenv)
	return cfg, nil
}

// Redacted returns a copy of cfg safe to print.
func (c *Config) Redacted() *Config {
	out := *c
	out.LLM.APIKey = mask(c.LLM.APIKey)
	out.Embedding.APIKey = mask(c.Embedding.APIKey)
	return &out
}

func mask(key string) string {
	if key == "" {
		return ""
	}
	return "********"
}

// ---------------------------------------------------------------------------
// Starter file
// ---------------------------------------------------------------------------

// Starter is the commented config written by `config init`.
const Starter = `# contextmgr configuration.
# Keys left out keep their built-in defaults. API keys may instead come from
# ANTHROPIC_API_KEY / OPENAI_API_KEY.

llm:
  # anthropic | openai | openrouter | ollama | none
  provider: anthropic
  model: claude-3-opus-20240229
  # base_url defaults to the provider's public endpoint
  # api_key: ""
  max_tokens: 1000

embedding:
  # ollama | openai | openrouter | none (disables semantic history search)
  provider: none
  model: nomic-embed-text
  base_url: http://localhost:11434

git:
  recent_commits: 5

deps:
  # auto | goproxy | pypi
  index: auto

history:
  enabled: true
  # auto | always | never
  semantic: auto
`

// WriteStarter writes Starter to path, creating parent directories.
func WriteStarter(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config.WriteStarter: %w: %s", ErrExists, path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("config.WriteStarter: %w", err)
	}
	if err := atomicfile.WriteFile(path, []byte(Starter), 0o600); err != nil {
		return fmt.Errorf("config.WriteStarter: %w", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setString(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok {
		*dst = v
	}
}

func setNonEmpty(m map[string]any, key string, dst *string) {
	if v, ok := m[key].(string); ok && v != "" {
		*dst = v
	}
}

func setPositive(m map[string]any, key string, dst *int) {
	if v, ok := m[key].(int); ok && v > 0 {
		*dst = v
	}
}
