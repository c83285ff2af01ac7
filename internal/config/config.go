package config

import "time"

type Config interface {
	EnvConfig
	ProviderConfig
	SessionConfig
	SecurityConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
	GetDatabaseURL() string
	GetRedisURL() string
	GetUserAgent() string
	GetCallbackAddr() string
}

// ProviderConfig describes the hosted identity/data backend.
type ProviderConfig interface {
	GetSupabaseURL() string
	GetSupabaseAnonKey() string
	GetRedirectURL() string
	GetVerifyTokens() bool
	GetRequestsPerSecond() float64
	IsConfigured() bool
}

type SessionConfig interface {
	GetSessionCheckInterval() time.Duration
	GetRefreshThreshold() time.Duration
	GetPersistSession() bool
}

type mainConfig struct {
	EnvVars
	Provider
	Session
	Security
}

func New() Config {
	return mainConfig{}
}
