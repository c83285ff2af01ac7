package auth

import (
	"strings"
	"unicode/utf8"

	"github.com/jrsteele09/go-advisor-auth/security"
	"github.com/jrsteele09/go-advisor-auth/users"
)

const minNameLength = 2

// SignUpData is the profile information collected at registration.
type SignUpData struct {
	Name  string
	Phone string
	City  string
}

// validateSignUp checks the raw form input. Checks run in form order and the first failure
// is reported.
func validateSignUp(email, password string, data SignUpData) *Error {
	if !security.ValidateEmail(email) {
		return validationError(msgInvalidEmail)
	}
	if err := validatePassword(password, msgWeakPassword); err != nil {
		return err
	}
	if !security.ValidateSaudiPhone(data.Phone) {
		return validationError(msgInvalidPhone)
	}
	if utf8.RuneCountInString(security.SanitizeInput(data.Name)) < minNameLength {
		return validationError(msgShortName)
	}
	return nil
}

func validatePassword(password, prefix string) *Error {
	check := security.ValidatePassword(password)
	if check.Valid {
		return nil
	}
	return validationError(prefix + strings.Join(check.Feedback, ", "))
}

// sanitizeUpdate cleans the free text fields of update in place and validates the result.
func sanitizeUpdate(update *users.Update) *Error {
	if update.Name != nil {
		name := security.SanitizeInput(*update.Name)
		if utf8.RuneCountInString(name) < minNameLength {
			return validationError(msgShortName)
		}
		update.Name = &name
	}
	if update.Phone != nil {
		// A blank phone leaves the stored number as it is.
		phone := security.NormalizePhone(*update.Phone)
		if phone == "" {
			update.Phone = nil
		} else if !security.ValidateSaudiPhone(phone) {
			return validationError(msgInvalidPhone)
		} else {
			update.Phone = &phone
		}
	}
	if update.City != nil {
		city := security.SanitizeInput(*update.City)
		update.City = &city
	}
	if update.AvatarURL != nil {
		avatar := strings.TrimSpace(*update.AvatarURL)
		update.AvatarURL = &avatar
	}
	return nil
}
