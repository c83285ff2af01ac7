package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	appNameVar      = "APP_NAME"
	databaseURLVar  = "DATABASE_URL"
	redisURLVar     = "REDIS_URL"
	userAgentVar    = "USER_AGENT"
	callbackAddrVar = "CALLBACK_ADDR"
)

type EnvVars struct{}

var _ EnvConfig = EnvVars{}

func (EnvVars) GetAppName() string {
	return GetEnv(appNameVar, "Smart Advisor")
}

func (EnvVars) GetEnv() string {
	env := os.Getenv("ENV")
	if env == "" {
		return "DEV"
	}
	return env
}

// GetDatabaseURL returns a Postgres DSN. When empty, rows are read and written through
// the provider's REST interface instead.
func (EnvVars) GetDatabaseURL() string {
	return GetEnv(databaseURLVar, "")
}

// GetRedisURL returns the Redis URL used for shared storage and refresh locks.
func (EnvVars) GetRedisURL() string {
	return GetEnv(redisURLVar, "")
}

func (EnvVars) GetUserAgent() string {
	return GetEnv(userAgentVar, "advisor-auth-cli")
}

func (EnvVars) GetCallbackAddr() string {
	return GetEnv(callbackAddrVar, "localhost:5173")
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// GetEnvFirst returns the first non empty variable of envVars.
func GetEnvFirst(defaultValue string, envVars ...string) string {
	for _, v := range envVars {
		if value := os.Getenv(v); value != "" {
			return value
		}
	}
	return defaultValue
}

func GetDuration(envVar string, defaultValue time.Duration) time.Duration {
	d, err := time.ParseDuration(os.Getenv(envVar))
	if err != nil || d <= 0 {
		return defaultValue
	}
	return d
}

func GetInt(envVar string, defaultValue int) int {
	n, err := strconv.Atoi(os.Getenv(envVar))
	if err != nil || n <= 0 {
		return defaultValue
	}
	return n
}

func GetBool(envVar string, defaultValue bool) bool {
	b, err := strconv.ParseBool(os.Getenv(envVar))
	if err != nil {
		return defaultValue
	}
	return b
}

// GetList splits a comma separated variable, dropping blanks.
func GetList(envVar string, defaultValue []string) []string {
	raw := os.Getenv(envVar)
	if raw == "" {
		return defaultValue
	}
	var list []string
	for _, item := range strings.Split(raw, ",") {
		if item = strings.TrimSpace(item); item != "" {
			list = append(list, item)
		}
	}
	return list
}
