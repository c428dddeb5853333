package config

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("YOUTUBE_API_KEY", "")
	t.Setenv("REGIONS", "")
	t.Setenv("CACHE_TTL_SECONDS", "")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, DefaultRegions, cfg.Regions)
	assert.Equal(t, "KR", cfg.DefaultRegion())
	assert.Equal(t, 30, cfg.MaxResults)
	assert.Equal(t, 300*time.Second, cfg.CacheTTL)
	assert.Equal(t, "csv", cfg.EventBackend)
}

func TestLoadRegionsOverride(t *testing.T) {
	t.Setenv("REGIONS", " us, jp ,US,,")

	cfg := Load()

	assert.Equal(t, []string{"US", "JP"}, cfg.Regions)
	assert.True(t, cfg.HasRegion("JP"))
	assert.False(t, cfg.HasRegion("KR"))
}

func TestLoadIgnoresMalformedNumbers(t *testing.T) {
	t.Setenv("PORT", "eighty")
	t.Setenv("LOGIN_RATE_RPS", "fast")

	cfg := Load()

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 1.0, cfg.LoginRateRPS)
}

func TestLoadClampsMaxResults(t *testing.T) {
	for in, want := range map[string]int{"100": 50, "0": 1, "-3": 1, "50": 50, "12": 12} {
		t.Setenv("MAX_RESULTS", in)
		assert.Equal(t, want, Load().MaxResults, "MAX_RESULTS=%s", in)
	}
}

func TestValidate(t *testing.T) {
	t.Run("blank key", func(t *testing.T) {
		err := Config{APIKey: "   "}.Validate()

		var cfgErr *ConfigError
		require.True(t, errors.As(err, &cfgErr))
		assert.Equal(t, "YOUTUBE_API_KEY", cfgErr.Key)
		assert.Contains(t, err.Error(), ".env")
	})

	t.Run("key present", func(t *testing.T) {
		assert.NoError(t, Config{APIKey: "k"}.Validate())
	})
}
