package config_test

import (
	"testing"
	"time"

	"github.com/jrsteele09/go-advisor-auth/internal/config"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	t.Setenv("SUPABASE_URL", "")
	t.Setenv("VITE_SUPABASE_URL", "")
	t.Setenv("SUPABASE_ANON_KEY", "")
	t.Setenv("VITE_SUPABASE_ANON_KEY", "")
	t.Setenv("LOGIN_ATTEMPT_LIMIT", "")
	t.Setenv("PRESERVED_STORAGE_KEYS", "")

	c := config.New()
	require.Equal(t, config.PlaceholderURL, c.GetSupabaseURL())
	require.False(t, c.IsConfigured())
	require.Equal(t, time.Minute, c.GetSessionCheckInterval())
	require.Equal(t, 5*time.Minute, c.GetRefreshThreshold())
	require.Equal(t, 5, c.GetLoginAttemptLimit())
	require.Equal(t, 15*time.Minute, c.GetLoginAttemptWindow())
	require.Equal(t, []string{"theme", "language"}, c.GetPreservedStorageKeys())
	require.Equal(t, float64(10), c.GetRequestsPerSecond())
}

func TestProviderSettings(t *testing.T) {
	t.Run("vite aliases are honoured", func(t *testing.T) {
		t.Setenv("SUPABASE_URL", "")
		t.Setenv("VITE_SUPABASE_URL", "https://abc.supabase.co/")
		t.Setenv("VITE_SUPABASE_ANON_KEY", "anon")

		c := config.New()
		require.Equal(t, "https://abc.supabase.co", c.GetSupabaseURL())
		require.True(t, c.IsConfigured())
	})

	t.Run("placeholder key is not configured", func(t *testing.T) {
		require.False(t, config.IsConfigured("https://abc.supabase.co", config.PlaceholderAnonKey))
		require.False(t, config.IsConfigured("", "anon"))
	})
}

func TestOverrides(t *testing.T) {
	t.Setenv("SESSION_CHECK_INTERVAL", "30s")
	t.Setenv("LOGIN_ATTEMPT_WINDOW", "bogus")
	t.Setenv("PRESERVED_STORAGE_KEYS", "theme, ,font")

	c := config.New()
	require.Equal(t, 30*time.Second, c.GetSessionCheckInterval())
	require.Equal(t, 15*time.Minute, c.GetLoginAttemptWindow())
	require.Equal(t, []string{"theme", "font"}, c.GetPreservedStorageKeys())
}
