package config

import (
	"strconv"
	"strings"
)

const (
	// Placeholder values shipped in example environments. A backend left on these is
	// treated as unconfigured.
	PlaceholderURL     = "https://demo.supabase.co"
	PlaceholderAnonKey = "demo-key"
)

type Provider struct{}

var _ ProviderConfig = Provider{}

func (Provider) GetSupabaseURL() string {
	return strings.TrimRight(GetEnvFirst(PlaceholderURL, "SUPABASE_URL", "VITE_SUPABASE_URL"), "/")
}

func (Provider) GetSupabaseAnonKey() string {
	return GetEnvFirst(PlaceholderAnonKey, "SUPABASE_ANON_KEY", "VITE_SUPABASE_ANON_KEY")
}

// GetRedirectURL is where the provider sends the browser after OAuth sign-in.
func (p Provider) GetRedirectURL() string {
	return GetEnv("AUTH_REDIRECT_URL", "http://"+EnvVars{}.GetCallbackAddr()+"/auth/callback")
}

func (Provider) GetVerifyTokens() bool {
	return GetBool("SUPABASE_VERIFY_TOKENS", false)
}

// GetRequestsPerSecond throttles outgoing provider calls.
func (Provider) GetRequestsPerSecond() float64 {
	rps, err := strconv.ParseFloat(GetEnv("SUPABASE_RPS", ""), 64)
	if err != nil || rps <= 0 {
		return 10
	}
	return rps
}

func (p Provider) IsConfigured() bool {
	return IsConfigured(p.GetSupabaseURL(), p.GetSupabaseAnonKey())
}

// IsConfigured reports whether url and key point at a real backend.
func IsConfigured(url, anonKey string) bool {
	if url == "" || anonKey == "" {
		return false
	}
	return url != PlaceholderURL && anonKey != PlaceholderAnonKey
}
