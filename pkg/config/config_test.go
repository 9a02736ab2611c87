package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefaults(t *testing.T) {
	cfg, err := LoadFromFile("")
	require.NoError(t, err)
	assert.Equal(t, DefaultAPIBaseURL, cfg.APIBaseURL)
	assert.Equal(t, 10*time.Second, cfg.RequestTimeout)
	assert.Equal(t, 12, cfg.PageSize)
	assert.Equal(t, 300*time.Millisecond, cfg.SearchDebounce)
	assert.Equal(t, 1500*time.Millisecond, cfg.TradeCompleteDelay)
	assert.True(t, cfg.VoteRollbackOnFailure)
	assert.Equal(t, "data/session", cfg.SessionStorePath)
	assert.Equal(t, 10*time.Minute, cfg.CategoriesTTL)
	assert.Equal(t, 2.0, cfg.RateLimit.TradesPerSec)
}

func TestFileOverridesEnv(t *testing.T) {
	t.Setenv("MEMESTREET_API_URL", "http://env.example/api")
	t.Setenv("MEMESTREET_PAGE_SIZE", "30")
	t.Setenv("MEMESTREET_VOTE_ROLLBACK_ON_FAILURE", "true")

	path := writeFile(t, "config.yaml", `
api_base_url: http://file.example/api
vote_rollback_on_failure: false
search_debounce_ms: 0
rate_limit:
  votes_per_sec: 1.5
`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, "http://file.example/api", cfg.APIBaseURL)
	assert.Equal(t, 30, cfg.PageSize)
	assert.False(t, cfg.VoteRollbackOnFailure)
	assert.Zero(t, cfg.SearchDebounce)
	assert.Equal(t, 1.5, cfg.RateLimit.VotesPerSec)
	assert.Equal(t, path, GetConfigPath())
}

func TestJSONConfig(t *testing.T) {
	path := writeFile(t, "config.json", `{"page_size": 24, "log_level": "debug"}`)
	cfg, err := LoadFromFile(path)
	require.NoError(t, err)
	assert.Equal(t, 24, cfg.PageSize)
	assert.Equal(t, "debug", cfg.LogLevel)
}

func TestValidateRejects(t *testing.T) {
	for name, body := range map[string]string{
		"page size": "page_size: 0",
		"delay":     "trade_complete_delay_ms: -1",
		"url":       `api_base_url: ""`,
		"relative":  "api_base_url: /api",
		"rate":      "rate_limit:\n  reads_per_sec: -2",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := LoadFromFile(writeFile(t, "config.yaml", body))
			assert.Error(t, err)
		})
	}

	_, err := LoadFromFile(writeFile(t, "config.toml", "x = 1"))
	assert.Error(t, err)
}
