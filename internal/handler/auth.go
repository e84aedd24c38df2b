package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/service"
)

// AuthHandler serves the /auth/v1 endpoints.
//
// ROUTES:
//   - POST /auth/v1/token   → password and refresh_token grants (OAuth 2.0 token endpoint)
//   - POST /auth/v1/logout  → revoke the caller's refresh tokens
//   - GET  /auth/v1/user    → the caller's profile
type AuthHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

func NewAuthHandler(svc *service.AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// tokenResponse follows RFC 6749 section 5.1 plus a "user" object, which the
// client reads with oauth2.Token.Extra("user").
type tokenResponse struct {
	AccessToken  string      `json:"access_token"`
	TokenType    string      `json:"token_type"`
	ExpiresIn    int64       `json:"expires_in"`
	ExpiresAt    int64       `json:"expires_at"`
	RefreshToken string      `json:"refresh_token"`
	User         *model.User `json:"user"`
}

// HandleToken exchanges credentials or a refresh token for a session.
//
// HTTP: POST /auth/v1/token
// BODY (application/x-www-form-urlencoded, as sent by golang.org/x/oauth2):
//
//	grant_type=password&username=a@example.com&password=secret
//	grant_type=refresh_token&refresh_token=...
//
// grant_type may also be given in the query string.
func (h *AuthHandler) HandleToken(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBody)
	if err := r.ParseForm(); err != nil {
		writeOAuthError(w, apperror.ValidationFailed("body", "Invalid form body"))
		return
	}

	var (
		pair *service.TokenPair
		err  error
	)
	switch grant := r.Form.Get("grant_type"); grant {
	case "password":
		email := r.Form.Get("username")
		if email == "" {
			email = r.Form.Get("email")
		}
		pair, err = h.svc.SignInWithPassword(r.Context(), email, r.Form.Get("password"))
	case "refresh_token":
		pair, err = h.svc.Refresh(r.Context(), r.Form.Get("refresh_token"))
	default:
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:            "unsupported_grant_type",
			ErrorDescription: "unsupported grant_type " + grant,
		})
		return
	}
	if err != nil {
		writeOAuthError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		TokenType:    "bearer",
		ExpiresIn:    int64(pair.ExpiresIn / time.Second),
		ExpiresAt:    time.Now().Add(pair.ExpiresIn).Unix(),
		RefreshToken: pair.RefreshToken,
		User:         pair.User,
	})
}

// HandleLogout revokes every refresh token of the caller.
//
// HTTP: POST /auth/v1/logout (requires auth)
func (h *AuthHandler) HandleLogout(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	if err := h.svc.SignOut(r.Context(), userID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleUser returns the caller's profile.
//
// HTTP: GET /auth/v1/user (requires auth)
func (h *AuthHandler) HandleUser(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	user, err := h.svc.GetUser(r.Context(), userID)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			// Token is valid but the account is gone.
			writeError(w, apperror.Unauthenticated("User not found"))
			return
		}
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, user)
}

// writeOAuthError maps a domain error to the token endpoint's error format.
func writeOAuthError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:            "invalid_request",
			ErrorDescription: apperror.MessageOf(err, "invalid request"),
		})
	case errors.Is(err, apperror.ErrUnauthenticated):
		writeJSON(w, http.StatusBadRequest, OAuthError{
			Error:            "invalid_grant",
			ErrorDescription: apperror.MessageOf(err, "invalid grant"),
		})
	default:
		slog.Error("token grant failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, OAuthError{
			Error:            "server_error",
			ErrorDescription: "An internal error occurred",
		})
	}
}
