// Copyright 2025 Oliver Andrich
// Licensed under the EUPL-1.2

package handlers

import (
	"net/http"
	"net/url"

	"github.com/labstack/echo/v4"

	"codeberg.org/oliverandrich/gemaccounts/internal/services/recovery"
	"codeberg.org/oliverandrich/gemaccounts/internal/services/session"
	"codeberg.org/oliverandrich/gemaccounts/internal/templates"
)

// RecoveryHandlers serves the forgot-password and reset-password pages.
type RecoveryHandlers struct {
	engine   *recovery.Engine
	sessions *session.Manager
}

// NewRecovery creates a new RecoveryHandlers instance.
func NewRecovery(engine *recovery.Engine, sessions *session.Manager) *RecoveryHandlers {
	return &RecoveryHandlers{
		engine:   engine,
		sessions: sessions,
	}
}

// ForgotPage starts or resumes a recovery session and shows its security
// question.
func (h *RecoveryHandlers) ForgotPage(c echo.Context) error {
	prompt, err := h.begin(c)
	if err != nil {
		return err
	}
	return Render(c, http.StatusOK, templates.ForgotPage(templates.ForgotForm{
		Question: prompt.Text,
	}))
}

// ForgotSubmit checks the username and the answer to the pinned question.
// On success the user is sent to the reset link.
func (h *RecoveryHandlers) ForgotSubmit(c echo.Context) error {
	var req recovery.AnswerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}

	sessionID, err := h.sessionID(c)
	if err != nil {
		return err
	}

	ctx := c.Request().Context()
	grant, err := h.engine.Submit(ctx, sessionID, req)

	switch recovery.Classify(err) {
	case recovery.KindUnknown:
		if err != nil {
			return err
		}
		link := "/reset-password?" + url.Values{
			"user":  {grant.Username},
			"token": {grant.Token},
		}.Encode()
		return c.Redirect(http.StatusSeeOther, link)

	case recovery.KindSessionExpired:
		c.SetCookie(h.sessions.Clear())
		return c.Redirect(http.StatusSeeOther, "/forgot-password")

	case recovery.KindValidation, recovery.KindAuthentication, recovery.KindThrottled:
		prompt, beginErr := h.begin(c)
		if beginErr != nil {
			return beginErr
		}
		message, fields := formErrors(ctx, err)
		return Render(c, http.StatusOK, templates.ForgotPage(templates.ForgotForm{
			Question:    prompt.Text,
			Username:    req.Username,
			Error:       message,
			FieldErrors: fields,
		}))
	}
	return err
}

// ResetPage shows the new PIN form for a valid reset link.
func (h *RecoveryHandlers) ResetPage(c echo.Context) error {
	username := c.QueryParam("user")
	token := c.QueryParam("token")

	err := h.engine.CheckLink(c.Request().Context(), username, token)
	if recovery.Classify(err) == recovery.KindAccessDenied {
		return Forbidden(c)
	}
	if err != nil {
		return err
	}

	return Render(c, http.StatusOK, templates.ResetPage(templates.ResetForm{
		Username: username,
		Token:    token,
	}))
}

// ResetSubmit sets the new PIN.
func (h *RecoveryHandlers) ResetSubmit(c echo.Context) error {
	var req recovery.ResetRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid form")
	}
	// The form may also be posted back to the link it was served from.
	if req.Username == "" {
		req.Username = c.QueryParam("user")
	}
	if req.Token == "" {
		req.Token = c.QueryParam("token")
	}

	ctx := c.Request().Context()
	err := h.engine.Reset(ctx, req)

	switch recovery.Classify(err) {
	case recovery.KindUnknown:
		if err != nil {
			return err
		}
		return c.Redirect(http.StatusSeeOther, "/reset-password/done")

	case recovery.KindAccessDenied:
		return Forbidden(c)

	case recovery.KindValidation:
		message, fields := formErrors(ctx, err)
		return Render(c, http.StatusOK, templates.ResetPage(templates.ResetForm{
			Username:    req.Username,
			Token:       req.Token,
			Error:       message,
			FieldErrors: fields,
		}))
	}
	return err
}

// ResetDone confirms a successful reset.
func (h *RecoveryHandlers) ResetDone(c echo.Context) error {
	return Render(c, http.StatusOK, templates.ResetDone())
}

// begin resumes the session from the cookie or starts a new one, replacing
// the cookie when the session changed.
func (h *RecoveryHandlers) begin(c echo.Context) (recovery.Prompt, error) {
	sessionID, err := h.sessionID(c)
	if err != nil {
		return recovery.Prompt{}, err
	}

	s, prompt, err := h.engine.Begin(c.Request().Context(), sessionID)
	if err != nil {
		return recovery.Prompt{}, err
	}

	if s.ID != sessionID {
		cookie, err := h.sessions.Create(s.ID)
		if err != nil {
			return recovery.Prompt{}, err
		}
		c.SetCookie(cookie)
	}
	return prompt, nil
}

func (h *RecoveryHandlers) sessionID(c echo.Context) (string, error) {
	data, err := h.sessions.Parse(c.Request())
	if err != nil || data == nil {
		return "", err
	}
	return data.SessionID, nil
}
