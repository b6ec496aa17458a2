package service

import (
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/natours/tours-api/internal/core/domain"
)

const (
	msgEmailRequired = "Please provide your email"
	msgEmailInvalid  = "Please provide a valid email"
)

var emailValidator = validator.New()

// normalizeEmail trims and lower-cases raw and rejects anything that is not
// a well-formed address.
func normalizeEmail(raw string) (string, error) {
	email := strings.ToLower(strings.TrimSpace(raw))
	if email == "" {
		return "", domain.FieldValidation("email", msgEmailRequired)
	}
	if err := emailValidator.Var(email, "email"); err != nil {
		return "", domain.FieldValidation("email", msgEmailInvalid)
	}
	return email, nil
}
