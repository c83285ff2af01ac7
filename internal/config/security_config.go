package config

import "time"

type SecurityConfig interface {
	GetLoginAttemptLimit() int
	GetLoginAttemptWindow() time.Duration
	GetPreservedStorageKeys() []string
}

type Security struct{}

var _ SecurityConfig = Security{}

func (Security) GetLoginAttemptLimit() int {
	return GetInt("LOGIN_ATTEMPT_LIMIT", 5)
}

func (Security) GetLoginAttemptWindow() time.Duration {
	return GetDuration("LOGIN_ATTEMPT_WINDOW", 15*time.Minute)
}

// GetPreservedStorageKeys survive the storage purge on sign-out.
func (Security) GetPreservedStorageKeys() []string {
	return GetList("PRESERVED_STORAGE_KEYS", []string{"theme", "language"})
}
