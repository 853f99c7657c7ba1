package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/CogitoSoftwareOrg/hackseeker/internal/budget"
)

func resetViper(t *testing.T) {
	t.Helper()
	for _, k := range []string{
		"HACKSEEKER_DATA_DIR", "HACKSEEKER_LLM_API_KEY", "XAI_API_KEY", "OPENAI_API_KEY",
		"HACKSEEKER_API_KEYS", "HACKSEEKER_CHARGE_AMOUNT", "HACKSEEKER_HISTORY_TOKENS",
		"HACKSEEKER_CONTEXT_TOTAL_TOKENS", "HACKSEEKER_CORS_ORIGINS",
		"HACKSEEKER_SEARCH_URL", "HACKSEEKER_SEARCH_API_KEY", "HACKSEEKER_SEARCH_LIMIT",
	} {
		t.Setenv(k, "")
	}
	viper.Reset()
	SetDefaults()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultLLMBaseURL, cfg.LLMBaseURL)
	assert.Equal(t, DefaultLLMModel, cfg.LLMModel)
	assert.Equal(t, DefaultLLMFastModel, cfg.LLMFastModel)
	assert.Equal(t, budget.DefaultTotalTokens, cfg.ContextTotalTokens)
	assert.Equal(t, budget.DefaultToolMemoryTokens, cfg.ToolMemoryTokens)
	assert.Equal(t, 7*24*time.Hour, cfg.RecentWindow)
	assert.Equal(t, int64(1), cfg.ChargeAmount)
	assert.Equal(t, int64(10), cfg.InitialCredits)
	assert.Equal(t, 180, cfg.MemoryRetentionDays)
	assert.Equal(t, "0 3 * * *", cfg.RetentionSchedule)
	assert.Equal(t, []string{"*"}, cfg.CORSOrigins)
	assert.Empty(t, cfg.SearchURL)
	assert.Equal(t, 2, cfg.SearchLimit)
	assert.Empty(t, cfg.APIKeys)
	assert.Equal(t, budget.DefaultPolicy(), cfg.Policy())
}

func TestLoad_DataDirOverride(t *testing.T) {
	resetViper(t)
	dir := t.TempDir()
	t.Setenv("HACKSEEKER_DATA_DIR", dir)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, filepath.Join(dir, "memory.db"), cfg.MemoryDBPath())
	assert.Equal(t, filepath.Join(dir, "chat.db"), cfg.ChatDBPath())
	assert.Equal(t, filepath.Join(dir, "pain.db"), cfg.PainDBPath())
	assert.Equal(t, filepath.Join(dir, "billing.db"), cfg.BillingDBPath())
}

func TestLoad_APIKeyFallback(t *testing.T) {
	resetViper(t)
	cfg, err := Load()
	require.NoError(t, err)
	assert.ErrorIs(t, cfg.RequireLLM(), ErrNoAPIKey)

	t.Setenv("OPENAI_API_KEY", "sk-openai")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "sk-openai", cfg.LLMAPIKey)

	t.Setenv("XAI_API_KEY", "xai-key")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "xai-key", cfg.LLMAPIKey)

	t.Setenv("HACKSEEKER_LLM_API_KEY", "explicit")
	cfg, err = Load()
	require.NoError(t, err)
	assert.Equal(t, "explicit", cfg.LLMAPIKey)
	assert.NoError(t, cfg.RequireLLM())
}

func TestLoad_APIKeys(t *testing.T) {
	resetViper(t)
	t.Setenv("HACKSEEKER_API_KEYS", "k1:alice, k2:bob")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"k1": "alice", "k2": "bob"}, cfg.APIKeys)
}

func TestLoad_InvalidAPIKeyPair(t *testing.T) {
	resetViper(t)
	t.Setenv("HACKSEEKER_API_KEYS", "no-user")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "must be key:user")
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		env, value, want string
	}{
		{"HACKSEEKER_CHARGE_AMOUNT", "0", "charge_amount must be positive"},
		{"HACKSEEKER_HISTORY_TOKENS", "-1", "must not be negative"},
		{"HACKSEEKER_CONTEXT_TOTAL_TOKENS", "0", "context_total_tokens must be positive"},
		{"HACKSEEKER_SEARCH_LIMIT", "0", "search_limit must be positive"},
	}
	for _, tt := range tests {
		t.Run(tt.env, func(t *testing.T) {
			resetViper(t)
			t.Setenv(tt.env, tt.value)
			_, err := Load()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_Search(t *testing.T) {
	resetViper(t)
	t.Setenv("HACKSEEKER_SEARCH_URL", "https://search.example/v1/search")
	t.Setenv("HACKSEEKER_SEARCH_API_KEY", "sk-search")
	t.Setenv("HACKSEEKER_SEARCH_LIMIT", "5")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "https://search.example/v1/search", cfg.SearchURL)
	assert.Equal(t, "sk-search", cfg.SearchAPIKey)
	assert.Equal(t, 5, cfg.SearchLimit)
}

func TestEnsureDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	cfg := &Config{DataDir: dir}
	require.NoError(t, cfg.EnsureDataDir())
	assert.DirExists(t, dir)
}

func TestSplitList(t *testing.T) {
	assert.Equal(t, []string{"a", "b", "c"}, splitList([]string{"a,b", " c ", ""}))
	assert.Nil(t, splitList(nil))
}
