package config

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

// unsetEnv removes keys for the duration of the test, restoring whatever
// was previously set (t.Setenv cannot express "unset", only "set to").
func unsetEnv(t *testing.T, keys ...string) {
	t.Helper()
	for _, key := range keys {
		prev, existed := os.LookupEnv(key)
		require.NoError(t, os.Unsetenv(key))
		t.Cleanup(func() {
			if existed {
				_ = os.Setenv(key, prev)
			}
		})
	}
}

func TestLoadAppliesDefaults(t *testing.T) {
	unsetEnv(t, "PORT", "STORE_BACKEND", "RULESET_PROVIDER", "RELOAD_MODE", "BREAKER_FALLBACK")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Server.Port)
	require.Equal(t, "redis", cfg.Store.Backend)
	require.Equal(t, "yaml", cfg.RuleSets.Provider)
	require.Equal(t, "AUTO", cfg.Reload.Mode)
	require.Equal(t, "FAIL_CLOSED", cfg.Resilience.BreakerFallback)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("STORE_BACKEND", "memory")
	t.Setenv("FILTER_INCLUDES", "/api/**,/admin/**")

	cfg, err := Load()
	require.NoError(t, err)
	require.Equal(t, 9090, cfg.Server.Port)
	require.Equal(t, "memory", cfg.Store.Backend)
	require.Equal(t, []string{"/api/**", "/admin/**"}, cfg.Filter.Includes)
}

func TestLoadRejectsInvalidEnumValue(t *testing.T) {
	t.Setenv("STORE_BACKEND", "bogus")

	_, err := Load()
	require.Error(t, err)
}

func TestLoadRejectsOutOfRangePort(t *testing.T) {
	t.Setenv("PORT", "0")

	_, err := Load()
	require.Error(t, err)
}
