package config

import "time"

type Session struct{}

var _ SessionConfig = Session{}

// GetSessionCheckInterval is the period of the session monitor.
func (Session) GetSessionCheckInterval() time.Duration {
	return GetDuration("SESSION_CHECK_INTERVAL", time.Minute)
}

// GetRefreshThreshold is how close to expiry a session must be before it is refreshed.
func (Session) GetRefreshThreshold() time.Duration {
	return GetDuration("SESSION_REFRESH_THRESHOLD", 5*time.Minute)
}

func (Session) GetPersistSession() bool {
	return GetBool("PERSIST_SESSION", true)
}
