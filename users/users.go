package users

import (
	"time"

	apperrors "github.com/jrsteele09/go-advisor-auth/internal/errors"
	"github.com/jrsteele09/go-advisor-auth/internal/utils"
)

var (
	ErrNotFound      = apperrors.ErrNotFound
	ErrAlreadyExists = apperrors.ErrAlreadyExists
)

type SubscriptionType string

const (
	SubscriptionFree       SubscriptionType = "free"
	SubscriptionGrowth     SubscriptionType = "growth"
	SubscriptionEnterprise SubscriptionType = "enterprise"
)

type AuthProvider string

const (
	ProviderEmail  AuthProvider = "email"
	ProviderGoogle AuthProvider = "google"
	ProviderApple  AuthProvider = "apple"
)

// ParseAuthProvider maps a provider name reported by the identity backend, defaulting to email.
func ParseAuthProvider(name string) AuthProvider {
	switch AuthProvider(name) {
	case ProviderGoogle, ProviderApple:
		return AuthProvider(name)
	}
	return ProviderEmail
}

type ProfileVisibility string

const (
	VisibilityPublic  ProfileVisibility = "public"
	VisibilityPrivate ProfileVisibility = "private"
)

type Notifications struct {
	Email     bool `json:"email"`
	SMS       bool `json:"sms"`
	Push      bool `json:"push"`
	Marketing bool `json:"marketing"`
}

type Privacy struct {
	ProfileVisibility ProfileVisibility `json:"profile_visibility"`
	DataSharing       bool              `json:"data_sharing"`
	Analytics         bool              `json:"analytics"`
}

type Preferences struct {
	Language      string        `json:"language"`
	Notifications Notifications `json:"notifications"`
	Privacy       Privacy       `json:"privacy"`
}

// DefaultPreferences are applied to every new profile.
func DefaultPreferences() Preferences {
	return Preferences{
		Language: "ar",
		Notifications: Notifications{
			Email: true,
			Push:  true,
		},
		Privacy: Privacy{
			ProfileVisibility: VisibilityPrivate,
			Analytics:         true,
		},
	}
}

// User is a row of the users table. There is exactly one per authenticated identity and
// its ID is the identity provider's user id.
type User struct {
	ID               string           `json:"id"`
	Email            string           `json:"email"`
	Name             string           `json:"name"`
	Phone            string           `json:"phone,omitempty"`
	City             string           `json:"city,omitempty"`
	SubscriptionType SubscriptionType `json:"subscription_type"`
	AvatarURL        string           `json:"avatar_url,omitempty"`
	EmailVerified    bool             `json:"email_verified"`
	PhoneVerified    bool             `json:"phone_verified"`
	CreatedAt        time.Time        `json:"created_at"`
	UpdatedAt        time.Time        `json:"updated_at"`
	LastLogin        *time.Time       `json:"last_login,omitempty"`
	LoginCount       int              `json:"login_count"`
	AuthProvider     AuthProvider     `json:"auth_provider,omitempty"`
	Preferences      Preferences      `json:"preferences"`
}

// New returns a profile with the defaults every account starts with: the free tier,
// default preferences and no recorded logins.
func New(id, email string, provider AuthProvider, now time.Time) *User {
	return &User{
		ID:               id,
		Email:            email,
		SubscriptionType: SubscriptionFree,
		CreatedAt:        now,
		UpdatedAt:        now,
		AuthProvider:     provider,
		Preferences:      DefaultPreferences(),
	}
}

// Clone returns a deep copy of u.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	c.LastLogin = utils.Copy(u.LastLogin)
	return &c
}

// Update is a partial profile change. Nil fields are left untouched.
type Update struct {
	Name        *string      `json:"name,omitempty"`
	Phone       *string      `json:"phone,omitempty"`
	City        *string      `json:"city,omitempty"`
	AvatarURL   *string      `json:"avatar_url,omitempty"`
	Preferences *Preferences `json:"preferences,omitempty"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Apply merges the update into u.
func (up Update) Apply(u *User) {
	utils.Assign(&u.Name, up.Name)
	utils.Assign(&u.Phone, up.Phone)
	utils.Assign(&u.City, up.City)
	utils.Assign(&u.AvatarURL, up.AvatarURL)
	utils.Assign(&u.Preferences, up.Preferences)
	if !up.UpdatedAt.IsZero() {
		u.UpdatedAt = up.UpdatedAt
	}
}
