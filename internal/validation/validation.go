// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

// Package validation wraps go-playground/validator with the form rules used
// by the recovery pages.
package validation

import (
	"errors"
	"reflect"
	"regexp"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
)

var (
	usernamePattern = regexp.MustCompile(`^[\p{L}\p{N}_.@+-]+$`)
	pinPattern      = regexp.MustCompile(`^[0-9]{4}$`)

	emailPattern = regexp.MustCompile(`[\p{L}\p{N}_.+-]+@[\p{L}\p{N}-]+\.[\p{L}\p{N}.-]+`)
	phonePattern = regexp.MustCompile(`(?:\+|\b0)[0-9][0-9 -]{7,}[0-9]`)
)

var (
	once     sync.Once
	instance *validator.Validate
)

// Validator returns the shared validator with the custom rules registered.
// Field names in errors are taken from the form tag.
func Validator() *validator.Validate {
	once.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("form"), ",", 2)[0]
			if name == "-" || name == "" {
				return f.Name
			}
			return name
		})
		_ = v.RegisterValidation("username", func(fl validator.FieldLevel) bool {
			return usernamePattern.MatchString(fl.Field().String())
		})
		_ = v.RegisterValidation("pin", func(fl validator.FieldLevel) bool {
			return pinPattern.MatchString(fl.Field().String())
		})
		instance = v
	})
	return instance
}

// Struct validates s and returns validator.ValidationErrors on failure.
func Struct(s any) error {
	return Validator().Struct(s)
}

// FirstError returns the first failed check in err. Field reports the form
// field, Tag the rule and Param its argument.
func FirstError(err error) (validator.FieldError, bool) {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return nil, false
	}
	return verrs[0], true
}

// ValidUsername reports whether s has the shape of a username.
func ValidUsername(s string) bool {
	return utf8.RuneCountInString(s) <= 30 && usernamePattern.MatchString(s)
}

// ValidPIN reports whether s is exactly four digits.
func ValidPIN(s string) bool {
	return pinPattern.MatchString(s)
}

// ContainsContactDetails reports whether s contains something that looks
// like an e-mail address or a phone number.
func ContainsContactDetails(s string) bool {
	return emailPattern.MatchString(s) || phonePattern.MatchString(s)
}
