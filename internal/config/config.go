// Package config loads and validates pce configuration from .pce/config.json.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// Config represents the complete pce configuration
type Config struct {
	Version  int    `json:"version" mapstructure:"version"`
	RepoRoot string `json:"repoRoot" mapstructure:"repoRoot"`

	Sources  SourcesConfig  `json:"sources" mapstructure:"sources"`
	Cache    CacheConfig    `json:"cache" mapstructure:"cache"`
	Budget   BudgetConfig   `json:"budget" mapstructure:"budget"`
	Learning LearningConfig `json:"learning" mapstructure:"learning"`
	Docs     DocsConfig     `json:"docs" mapstructure:"docs"`
	LLM      LLMConfig      `json:"llm" mapstructure:"llm"`
	API      APIConfig      `json:"api" mapstructure:"api"`
	Logging  LoggingConfig  `json:"logging" mapstructure:"logging"`
}

// SourcesConfig contains per-adapter context source configuration
type SourcesConfig struct {
	Facts    FactsSourceConfig    `json:"facts" mapstructure:"facts"`
	Docs     DocsSourceConfig     `json:"docs" mapstructure:"docs"`
	Snippets SnippetsSourceConfig `json:"snippets" mapstructure:"snippets"`
}

// FactsSourceConfig configures the project-fact adapter
type FactsSourceConfig struct {
	Enabled   bool `json:"enabled" mapstructure:"enabled"`
	MaxItems  int  `json:"maxItems" mapstructure:"maxItems"`
	TimeoutMs int  `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// DocsSourceConfig configures the documentation adapter
type DocsSourceConfig struct {
	Enabled      bool `json:"enabled" mapstructure:"enabled"`
	MaxItems     int  `json:"maxItems" mapstructure:"maxItems"`
	TimeoutMs    int  `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxDocTokens int  `json:"maxDocTokens" mapstructure:"maxDocTokens"`
}

// SnippetsSourceConfig configures the code-snippet adapter
type SnippetsSourceConfig struct {
	Enabled          bool     `json:"enabled" mapstructure:"enabled"`
	MaxItems         int      `json:"maxItems" mapstructure:"maxItems"`
	TimeoutMs        int      `json:"timeoutMs" mapstructure:"timeoutMs"`
	MaxFileSizeBytes int      `json:"maxFileSizeBytes" mapstructure:"maxFileSizeBytes"`
	MaxFilesScanned  int      `json:"maxFilesScanned" mapstructure:"maxFilesScanned"`
	Ignore           []string `json:"ignore" mapstructure:"ignore"`
}

// CacheConfig contains enhancement cache configuration
type CacheConfig struct {
	Enabled    bool `json:"enabled" mapstructure:"enabled"`
	TtlSeconds int  `json:"ttlSeconds" mapstructure:"ttlSeconds"`
}

// BudgetConfig contains context budget configuration
type BudgetConfig struct {
	MaxContextTokens int `json:"maxContextTokens" mapstructure:"maxContextTokens"`
	// MinPromptLength is the length above which a prompt that gathered no
	// context is returned unmodified instead of being wrapped.
	MinPromptLength int `json:"minPromptLength" mapstructure:"minPromptLength"`
}

// LearningConfig controls the adaptive pattern registry
type LearningConfig struct {
	LearningRate     float64 `json:"learningRate" mapstructure:"learningRate"`
	TrustedThreshold float64 `json:"trustedThreshold" mapstructure:"trustedThreshold"`
	MinSuccessRate   float64 `json:"minSuccessRate" mapstructure:"minSuccessRate"`
	MinUsage         int     `json:"minUsage" mapstructure:"minUsage"`
	MaxEvents        int     `json:"maxEvents" mapstructure:"maxEvents"`
}

// DocsConfig configures the external documentation client
type DocsConfig struct {
	BaseURL   string `json:"baseUrl" mapstructure:"baseUrl"`
	APIKeyEnv string `json:"apiKeyEnv" mapstructure:"apiKeyEnv"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// LLMConfig configures the completion client used for best-effort summarization
type LLMConfig struct {
	Enabled   bool   `json:"enabled" mapstructure:"enabled"`
	BaseURL   string `json:"baseUrl" mapstructure:"baseUrl"`
	Model     string `json:"model" mapstructure:"model"`
	APIKeyEnv string `json:"apiKeyEnv" mapstructure:"apiKeyEnv"`
	TimeoutMs int    `json:"timeoutMs" mapstructure:"timeoutMs"`
}

// APIConfig configures the HTTP API server
type APIConfig struct {
	Addr string `json:"addr" mapstructure:"addr"`
	// TokenHash is the bcrypt hash of the API bearer token. Empty disables auth.
	TokenHash string `json:"tokenHash" mapstructure:"tokenHash"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Format string `json:"format" mapstructure:"format"`
	Level  string `json:"level" mapstructure:"level"`
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Version:  1,
		RepoRoot: ".",
		Sources: SourcesConfig{
			Facts: FactsSourceConfig{
				Enabled:   true,
				MaxItems:  10,
				TimeoutMs: 2000,
			},
			Docs: DocsSourceConfig{
				Enabled:      true,
				MaxItems:     10,
				TimeoutMs:    5000,
				MaxDocTokens: 1500,
			},
			Snippets: SnippetsSourceConfig{
				Enabled:          true,
				MaxItems:         10,
				TimeoutMs:        3000,
				MaxFileSizeBytes: 1000000,
				MaxFilesScanned:  2000,
				Ignore:           []string{"node_modules", "vendor", "build", "dist", ".git"},
			},
		},
		Cache: CacheConfig{
			Enabled:    true,
			TtlSeconds: 3600,
		},
		Budget: BudgetConfig{
			MaxContextTokens: 2000,
			MinPromptLength:  20,
		},
		Learning: LearningConfig{
			LearningRate:     0.1,
			TrustedThreshold: 0.7,
			MinSuccessRate:   0.3,
			MinUsage:         5,
			MaxEvents:        1000,
		},
		Docs: DocsConfig{
			BaseURL:   "https://context7.com/api/v1",
			APIKeyEnv: "PCE_DOCS_API_KEY",
			TimeoutMs: 5000,
		},
		LLM: LLMConfig{
			Enabled:   false,
			BaseURL:   "https://api.openai.com/v1",
			Model:     "gpt-4o-mini",
			APIKeyEnv: "PCE_LLM_API_KEY",
			TimeoutMs: 20000,
		},
		API: APIConfig{
			Addr: "127.0.0.1:7431",
		},
		Logging: LoggingConfig{
			Format: "human",
			Level:  "info",
		},
	}
}

// LoadConfig loads configuration from .pce/config.json
func LoadConfig(repoRoot string) (*Config, error) {
	v := viper.New()

	v.SetDefault("version", 1)
	v.SetDefault("repoRoot", ".")

	v.SetConfigName("config")
	v.SetConfigType("json")
	v.AddConfigPath(filepath.Join(repoRoot, ".pce"))

	if err := v.ReadInConfig(); err != nil {
		// Missing config falls back to defaults
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return DefaultConfig(), nil
		}
		return nil, err
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Save writes the configuration to .pce/config.json
func (c *Config) Save(repoRoot string) error {
	pceDir := filepath.Join(repoRoot, ".pce")
	if err := os.MkdirAll(pceDir, 0755); err != nil {
		return err
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}

	return os.WriteFile(filepath.Join(pceDir, "config.json"), data, 0644)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Budget.MaxContextTokens <= 0 {
		return fmt.Errorf("budget.maxContextTokens must be positive, got %d", c.Budget.MaxContextTokens)
	}
	if c.Learning.LearningRate <= 0 || c.Learning.LearningRate > 1 {
		return fmt.Errorf("learning.learningRate must be in (0,1], got %f", c.Learning.LearningRate)
	}
	if c.Learning.TrustedThreshold < 0 || c.Learning.TrustedThreshold > 1 {
		return fmt.Errorf("learning.trustedThreshold must be in [0,1], got %f", c.Learning.TrustedThreshold)
	}
	if c.Learning.MinSuccessRate < 0 || c.Learning.MinSuccessRate > 1 {
		return fmt.Errorf("learning.minSuccessRate must be in [0,1], got %f", c.Learning.MinSuccessRate)
	}
	if c.Learning.MinSuccessRate >= c.Learning.TrustedThreshold {
		return fmt.Errorf("learning.minSuccessRate (%f) must be below trustedThreshold (%f)",
			c.Learning.MinSuccessRate, c.Learning.TrustedThreshold)
	}
	if c.Learning.MaxEvents <= 0 {
		return fmt.Errorf("learning.maxEvents must be positive, got %d", c.Learning.MaxEvents)
	}
	if c.Cache.TtlSeconds <= 0 {
		return fmt.Errorf("cache.ttlSeconds must be positive, got %d", c.Cache.TtlSeconds)
	}
	return nil
}
