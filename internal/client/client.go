// Package client adapts the hosted backend's HTTP surface to the collaborator
// interfaces the client core is written against:
//
//   - AuthClient    → session.AuthProvider   (/auth/v1, OAuth 2.0 grants via golang.org/x/oauth2)
//   - FormsClient   → repository.FormRepository (/rest/v1/forms)
//   - StorageClient → storage.ObjectStore    (/storage/v1/object)
//
// FormsClient and StorageClient authenticate every request through an
// oauth2.TokenSource; in the app that source is the session.Manager.
package client

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/field-survey/internal/apperror"
)

// errorBody mirrors handler.ErrorResponse.
type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

// authedClient returns an http.Client that sets "Authorization: Bearer" from src.
func authedClient(src oauth2.TokenSource, timeout time.Duration) *http.Client {
	return &http.Client{
		Timeout:   timeout,
		Transport: &oauth2.Transport{Source: src, Base: http.DefaultTransport},
	}
}

// apiError turns a non-2xx response into an apperror. The response body is
// consumed but not closed.
func apiError(resp *http.Response) error {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err := json.Unmarshal(raw, &body); err != nil || body.Message == "" {
		body.Message = strings.TrimSpace(string(raw))
	}
	if body.Message == "" {
		body.Message = http.StatusText(resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		if len(body.Fields) > 0 {
			return apperror.FieldErrors(body.Fields)
		}
		return &apperror.AppError{Err: apperror.ErrValidation, Message: body.Message}
	case http.StatusUnauthorized:
		return apperror.Unauthenticated(body.Message)
	case http.StatusForbidden:
		return apperror.Forbidden(body.Message)
	case http.StatusNotFound:
		return &apperror.AppError{Err: apperror.ErrNotFound, Message: body.Message}
	case http.StatusConflict:
		return &apperror.AppError{Err: apperror.ErrConflict, Message: body.Message}
	}
	return fmt.Errorf("client: unexpected status %d: %s", resp.StatusCode, body.Message)
}

// transportError wraps a failed round trip as a persistence failure. Errors
// the backend answered with, and a missing session, surface as is, so callers
// can still tell "signed out" or "not found" from "network down".
func transportError(message string, err error) error {
	for _, passthrough := range []error{
		apperror.ErrUnauthenticated,
		apperror.ErrValidation,
		apperror.ErrNotFound,
		apperror.ErrForbidden,
	} {
		if errors.Is(err, passthrough) {
			return err
		}
	}
	return apperror.PersistenceFailed(message, err)
}
