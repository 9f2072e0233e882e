// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/gemaccounts/internal/i18n"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"codeberg.org/oliverandrich/gemaccounts/internal/templates"
)

// ErrorHandler renders error pages for errors returned by handlers and
// middleware.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code := http.StatusInternalServerError
	var he *echo.HTTPError
	if errors.As(err, &he) {
		code = he.Code
	}

	if code >= http.StatusInternalServerError {
		slog.Error("request_failed", "error", err, "method", c.Request().Method, "path", c.Request().URL.Path)
	}

	if c.Request().Method == http.MethodHead {
		_ = c.NoContent(code)
		return
	}

	var renderErr error
	switch code {
	case http.StatusNotFound:
		renderErr = Render(c, code, templates.NotFound())
	case http.StatusForbidden:
		renderErr = Forbidden(c)
	default:
		renderErr = Render(c, code, templates.Error())
	}
	if renderErr != nil {
		slog.Error("error_page_failed", "error", renderErr)
	}
}

// Forbidden renders the 403 page.
func Forbidden(c echo.Context) error {
	return Render(c, http.StatusForbidden, templates.Forbidden())
}

// formErrors turns a recovery error into a page message and per-field
// messages.
func formErrors(ctx context.Context, err error) (string, map[string]string) {
	var vErr *recovery.ValidationError
	if errors.As(err, &vErr) {
		return "", map[string]string{vErr.Field: fieldMessage(ctx, vErr)}
	}

	switch {
	case errors.Is(err, recovery.ErrInvalidUsername):
		return i18n.T(ctx, i18n.MsgInvalidUsername), nil
	case errors.Is(err, recovery.ErrInactiveAccount):
		return i18n.T(ctx, i18n.MsgInactiveAccount), nil
	case errors.Is(err, recovery.ErrWrongAnswer):
		return i18n.T(ctx, i18n.MsgWrongAnswer), nil
	case errors.Is(err, recovery.ErrThrottled), errors.Is(err, recovery.ErrVersionConflict):
		return i18n.T(ctx, i18n.MsgTooManyAttempts), nil
	case errors.Is(err, recovery.ErrPINMismatch):
		return i18n.T(ctx, i18n.MsgPINMismatch), nil
	}
	return i18n.T(ctx, i18n.MsgInvalidInput), nil
}

func fieldMessage(ctx context.Context, vErr *recovery.ValidationError) string {
	switch vErr.Rule {
	case "required":
		return i18n.T(ctx, i18n.MsgRequired)
	case "max":
		return i18n.TData(ctx, i18n.MsgTooLong, map[string]any{"Max": vErr.Param})
	case "username":
		return i18n.T(ctx, i18n.MsgUsernameFormat)
	case "pin":
		return i18n.T(ctx, i18n.MsgPINFormat)
	}
	return i18n.T(ctx, i18n.MsgInvalidInput)
}
