// Package audit records security relevant authentication events.
package audit

import "time"

// TableName is the value of the table_name column for every auth event.
const TableName = "auth_events"

// ClientIP is recorded in place of an address; the client cannot observe its own.
const ClientIP = "client"

type Event string

const (
	UserRegistered       Event = "user_registered"
	SignUpFailed         Event = "signup_failed"
	UserSignedIn         Event = "user_signed_in"
	LoginFailed          Event = "login_failed"
	RateLimitExceeded    Event = "rate_limit_exceeded"
	GoogleSignInStarted  Event = "google_signin_initiated"
	GoogleSignInFailed   Event = "google_signin_failed"
	AppleSignInStarted   Event = "apple_signin_initiated"
	AppleSignInFailed    Event = "apple_signin_failed"
	OAuthSignInSucceeded Event = "oauth_signin_success"
	UserSignedOut        Event = "user_signed_out"
	SessionRefreshed     Event = "session_refreshed"
	TokenRefreshed       Event = "token_refreshed"
	ProfileUpdated       Event = "profile_updated"
	PasswordChanged      Event = "password_changed"
	AccountDeleted       Event = "account_deleted"
)

type Details map[string]any

type Data struct {
	Timestamp time.Time `json:"timestamp"`
	UserAgent string    `json:"user_agent"`
	IPAddress string    `json:"ip_address"`
	EventType Event     `json:"event_type"`
	Details   Details   `json:"details"`
}

// Record is a row of the audit_logs table.
type Record struct {
	UserID    *string `json:"user_id"`
	Action    Event   `json:"action"`
	TableName string  `json:"table_name"`
	NewData   Data    `json:"new_data"`
}
