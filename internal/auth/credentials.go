package auth

import (
	"net/mail"
	"strings"

	"github.com/sakif/field-survey/internal/apperror"
)

// MinPasswordLength is the shortest password a sign-in attempt may carry.
const MinPasswordLength = 6

// ValidateCredentials checks the shape of a sign-in attempt before any
// network or database work. It returns apperror.FieldErrors keyed by
// "email" and "password".
func ValidateCredentials(email, password string) error {
	errs := apperror.FieldErrors{}

	email = strings.TrimSpace(email)
	if addr, err := mail.ParseAddress(email); err != nil || addr.Address != email {
		errs["email"] = "Invalid email address"
	}
	if len(password) < MinPasswordLength {
		errs["password"] = "Password must be at least 6 characters"
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}
