// Package security holds input validation and sanitisation helpers shared by the auth flows.
package security

import (
	"html"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
)

const MinPasswordLength = 8

// Password feedback, shown to the user joined with ", ".
const (
	FeedbackTooShort  = "يجب أن تكون 8 أحرف على الأقل"
	FeedbackNoUpper   = "يجب أن تحتوي على حرف كبير"
	FeedbackNoLower   = "يجب أن تحتوي على حرف صغير"
	FeedbackNoDigit   = "يجب أن تحتوي على رقم"
	FeedbackNoSpecial = "يجب أن تحتوي على رمز خاص"
)

var (
	emailPattern      = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	saudiPhonePattern = regexp.MustCompile(`^(?:9665|05|5)\d{8}$`)
	nonDigits         = regexp.MustCompile(`\D`)

	stripTags = bluemonday.StrictPolicy()
)

// PasswordCheck is the result of ValidatePassword.
type PasswordCheck struct {
	Valid    bool
	Score    int // number of satisfied rules, 0..5
	Feedback []string
}

func ValidateEmail(email string) bool {
	email = strings.TrimSpace(email)
	return len(email) <= 254 && emailPattern.MatchString(email)
}

// NormalizeEmail lower-cases and trims an address. It is also the rate limit key.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidatePassword checks password against the strength policy: minimum length, upper and
// lower case letters, a digit and a special character.
func ValidatePassword(password string) PasswordCheck {
	var hasUpper, hasLower, hasDigit, hasSpecial bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			hasSpecial = true
		}
	}

	check := PasswordCheck{}
	rules := []struct {
		ok       bool
		feedback string
	}{
		{utf8.RuneCountInString(password) >= MinPasswordLength, FeedbackTooShort},
		{hasUpper, FeedbackNoUpper},
		{hasLower, FeedbackNoLower},
		{hasDigit, FeedbackNoDigit},
		{hasSpecial, FeedbackNoSpecial},
	}
	for _, rule := range rules {
		if rule.ok {
			check.Score++
			continue
		}
		check.Feedback = append(check.Feedback, rule.feedback)
	}
	check.Valid = len(check.Feedback) == 0
	return check
}

// NormalizePhone keeps only the digits of phone.
func NormalizePhone(phone string) string {
	return nonDigits.ReplaceAllString(phone, "")
}

// ValidateSaudiPhone accepts Saudi mobile numbers written as 05XXXXXXXX, 5XXXXXXXX or
// 9665XXXXXXXX, ignoring any formatting characters.
func ValidateSaudiPhone(phone string) bool {
	return saudiPhonePattern.MatchString(NormalizePhone(phone))
}

// SanitizeInput removes markup from free text and trims the result.
func SanitizeInput(input string) string {
	cleaned := html.UnescapeString(stripTags.Sanitize(input))
	cleaned = strings.NewReplacer("<", "", ">", "").Replace(cleaned)
	return strings.TrimSpace(cleaned)
}
