// Package config holds operator-level configuration for a hackseeker
// installation: data directory, model endpoint, token budgets, billing and
// housekeeping. Values come from env vars (HACKSEEKER_*), an optional
// hackseeker.config.yaml and the defaults below.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
)

// Viper keys. Each maps to an env var with the HACKSEEKER_ prefix
// (e.g. "llm_model" → HACKSEEKER_LLM_MODEL) and to a YAML field.
const (
	KeyDataDir             = "data_dir"
	KeyLLMAPIKey           = "llm_api_key"
	KeyLLMBaseURL          = "llm_base_url"
	KeyLLMModel            = "llm_model"
	KeyLLMFastModel        = "llm_fast_model"
	KeySearchURL           = "search_url"
	KeySearchAPIKey        = "search_api_key"
	KeySearchLimit         = "search_limit"
	KeyContextTotalTokens  = "context_total_tokens"
	KeyHistoryTokens       = "history_tokens"
	KeyArtifactTokens      = "artifact_tokens"
	KeyToolMemoryTokens    = "tool_memory_tokens"
	KeyRecentWindowDays    = "recent_window_days"
	KeyChargeAmount        = "charge_amount"
	KeyInitialCredits      = "initial_credits"
	KeyRateLimitRPS        = "rate_limit_rps"
	KeyMemoryRetentionDays = "memory_retention_days"
	KeyRetentionSchedule   = "retention_schedule"
	KeyAPIKeys             = "api_keys"
	KeyCORSOrigins         = "cors_origins"
)

// Defaults.
const (
	DefaultLLMBaseURL          = "https://api.x.ai"
	DefaultLLMModel            = "grok-4-1-fast"
	DefaultLLMFastModel        = "grok-4-1-fast-non-reasoning"
	DefaultSearchLimit         = 2
	DefaultRecentWindowDays    = 7
	DefaultChargeAmount        = 1
	DefaultInitialCredits      = 10
	DefaultRateLimitRPS        = 2
	DefaultMemoryRetentionDays = 180
	DefaultRetentionSchedule   = "0 3 * * *"
)

// ErrNoAPIKey is returned by RequireLLM when no model API key is configured.
var ErrNoAPIKey = errors.New("no LLM API key: set HACKSEEKER_LLM_API_KEY, XAI_API_KEY or OPENAI_API_KEY")

// Config holds resolved configuration for a hackseeker process.
type Config struct {
	DataDir string

	LLMAPIKey    string
	LLMBaseURL   string
	LLMModel     string
	LLMFastModel string

	// SearchURL enables artifact research; empty leaves it off.
	SearchURL    string
	SearchAPIKey string
	SearchLimit  int

	ContextTotalTokens int
	HistoryTokens      int
	ArtifactTokens     int
	ToolMemoryTokens   int
	RecentWindow       time.Duration

	ChargeAmount   int64
	InitialCredits int64
	RateLimitRPS   int

	MemoryRetentionDays int
	RetentionSchedule   string

	// APIKeys maps API key to user id.
	APIKeys     map[string]string
	CORSOrigins []string
}

// SetDefaults registers the env prefix and defaults on viper.
func SetDefaults() {
	viper.SetEnvPrefix("HACKSEEKER")
	viper.AutomaticEnv()
	viper.SetDefault(KeyLLMBaseURL, DefaultLLMBaseURL)
	viper.SetDefault(KeyLLMModel, DefaultLLMModel)
	viper.SetDefault(KeyLLMFastModel, DefaultLLMFastModel)
	viper.SetDefault(KeySearchLimit, DefaultSearchLimit)
	viper.SetDefault(KeyContextTotalTokens, budget.DefaultTotalTokens)
	viper.SetDefault(KeyHistoryTokens, budget.DefaultHistoryTokens)
	viper.SetDefault(KeyArtifactTokens, budget.DefaultArtifactTokens)
	viper.SetDefault(KeyToolMemoryTokens, budget.DefaultToolMemoryTokens)
	viper.SetDefault(KeyRecentWindowDays, DefaultRecentWindowDays)
	viper.SetDefault(KeyChargeAmount, DefaultChargeAmount)
	viper.SetDefault(KeyInitialCredits, DefaultInitialCredits)
	viper.SetDefault(KeyRateLimitRPS, DefaultRateLimitRPS)
	viper.SetDefault(KeyMemoryRetentionDays, DefaultMemoryRetentionDays)
	viper.SetDefault(KeyRetentionSchedule, DefaultRetentionSchedule)
	viper.SetDefault(KeyCORSOrigins, []string{"*"})
}

func init() {
	SetDefaults()
}

// Load reads configuration from viper (env vars, config file, defaults) and
// returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		DataDir:             resolveDataDir(),
		LLMAPIKey:           resolveAPIKey(),
		LLMBaseURL:          viper.GetString(KeyLLMBaseURL),
		LLMModel:            viper.GetString(KeyLLMModel),
		LLMFastModel:        viper.GetString(KeyLLMFastModel),
		SearchURL:           viper.GetString(KeySearchURL),
		SearchAPIKey:        viper.GetString(KeySearchAPIKey),
		SearchLimit:         viper.GetInt(KeySearchLimit),
		ContextTotalTokens:  viper.GetInt(KeyContextTotalTokens),
		HistoryTokens:       viper.GetInt(KeyHistoryTokens),
		ArtifactTokens:      viper.GetInt(KeyArtifactTokens),
		ToolMemoryTokens:    viper.GetInt(KeyToolMemoryTokens),
		RecentWindow:        time.Duration(viper.GetInt(KeyRecentWindowDays)) * 24 * time.Hour,
		ChargeAmount:        viper.GetInt64(KeyChargeAmount),
		InitialCredits:      viper.GetInt64(KeyInitialCredits),
		RateLimitRPS:        viper.GetInt(KeyRateLimitRPS),
		MemoryRetentionDays: viper.GetInt(KeyMemoryRetentionDays),
		RetentionSchedule:   viper.GetString(KeyRetentionSchedule),
		CORSOrigins:         splitList(viper.GetStringSlice(KeyCORSOrigins)),
	}
	keys, err := parseAPIKeys(splitList(viper.GetStringSlice(KeyAPIKeys)))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	cfg.APIKeys = keys

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Policy returns the token budget policy described by the config.
func (c *Config) Policy() budget.Policy {
	p := budget.DefaultPolicy()
	p.HistoryTokens = c.HistoryTokens
	p.ArtifactTokens = c.ArtifactTokens
	return p
}

// RequireLLM reports ErrNoAPIKey when no model key is configured.
func (c *Config) RequireLLM() error {
	if c.LLMAPIKey == "" {
		return ErrNoAPIKey
	}
	return nil
}

// MemoryDBPath returns the full path to the memory SQLite database.
func (c *Config) MemoryDBPath() string { return filepath.Join(c.DataDir, "memory.db") }

// ChatDBPath returns the full path to the chat SQLite database.
func (c *Config) ChatDBPath() string { return filepath.Join(c.DataDir, "chat.db") }

// PainDBPath returns the full path to the pain draft SQLite database.
func (c *Config) PainDBPath() string { return filepath.Join(c.DataDir, "pain.db") }

// BillingDBPath returns the full path to the billing SQLite database.
func (c *Config) BillingDBPath() string { return filepath.Join(c.DataDir, "billing.db") }

// EnsureDataDir creates the data directory if it doesn't exist.
func (c *Config) EnsureDataDir() error {
	return os.MkdirAll(c.DataDir, 0o700)
}

func resolveDataDir() string {
	if dir := viper.GetString(KeyDataDir); dir != "" {
		return dir
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ".hackseeker"
	}
	return filepath.Join(home, ".hackseeker")
}

// resolveAPIKey falls back to the provider env vars for quickstarts.
func resolveAPIKey() string {
	if k := viper.GetString(KeyLLMAPIKey); k != "" {
		return k
	}
	if k := os.Getenv("XAI_API_KEY"); k != "" {
		return k
	}
	return os.Getenv("OPENAI_API_KEY")
}

// splitList flattens comma-separated entries, as env vars deliver lists as
// one string.
func splitList(in []string) []string {
	var out []string
	for _, s := range in {
		for _, part := range strings.Split(s, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// parseAPIKeys reads "key:user" pairs.
func parseAPIKeys(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		key, user, ok := strings.Cut(p, ":")
		if !ok || key == "" || user == "" {
			return nil, fmt.Errorf("api_keys entry %q must be key:user", p)
		}
		out[key] = user
	}
	return out, nil
}

func (c *Config) validate() error {
	if c.ContextTotalTokens <= 0 {
		return fmt.Errorf("context_total_tokens must be positive")
	}
	if c.HistoryTokens < 0 || c.ArtifactTokens < 0 || c.ToolMemoryTokens < 0 {
		return fmt.Errorf("token budgets must not be negative")
	}
	if c.RecentWindow <= 0 {
		return fmt.Errorf("recent_window_days must be positive")
	}
	if c.ChargeAmount <= 0 {
		return fmt.Errorf("charge_amount must be positive")
	}
	if c.InitialCredits < 0 {
		return fmt.Errorf("initial_credits must not be negative")
	}
	if c.SearchLimit <= 0 {
		return fmt.Errorf("search_limit must be positive")
	}
	if c.LLMModel == "" {
		return fmt.Errorf("llm_model must be set")
	}
	return nil
}
