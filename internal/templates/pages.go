// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package templates

import "github.com/a-h/templ"

//go:generate go run github.com/a-h/templ/cmd/templ@v0.3.977 generate

// ForgotForm is the view model of the forgot-password page.
type ForgotForm struct {
	Question string
	Username string
	// Error is shown above the form.
	Error string
	// FieldErrors maps form field names to messages.
	FieldErrors map[string]string
}

// ResetForm is the view model of the reset-password page.
type ResetForm struct {
	Username    string
	Token       string
	Error       string
	FieldErrors map[string]string
}

var (
	usernameAttrs = templ.Attributes{"maxlength": "30", "autocomplete": "username", "required": true}
	answerAttrs   = templ.Attributes{"maxlength": "128", "autocomplete": "off", "required": true}
	pinAttrs      = templ.Attributes{"inputmode": "numeric", "maxlength": "4", "autocomplete": "new-password", "required": true}
)

// ResetDone renders the confirmation after a successful reset.
func ResetDone() templ.Component {
	return message("reset_success_title", "reset_success_body", false)
}

// Forbidden renders the 403 page for invalid reset links.
func Forbidden() templ.Component {
	return message("forbidden_title", "forbidden_body", true)
}

// NotFound renders the 404 page.
func NotFound() templ.Component {
	return message("not_found_title", "not_found_body", false)
}

// Error renders a generic error page.
func Error() templ.Component {
	return message("error_title", "error_body", false)
}
