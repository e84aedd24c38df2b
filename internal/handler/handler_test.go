package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/storage"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestWriteError_StatusMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantType   string
		wantMsg    string
	}{
		{"validation", apperror.ValidationFailed("id", "id is required"), http.StatusBadRequest, "validation_error", "id is required"},
		{"unauthenticated", apperror.Unauthenticated("no session"), http.StatusUnauthorized, "unauthorized", "no session"},
		{"not found", apperror.NotFound("form", "abc"), http.StatusNotFound, "not_found", "form not found with id abc"},
		{"forbidden", apperror.Forbidden("nope"), http.StatusForbidden, "forbidden", "nope"},
		{"conflict", apperror.Conflict("object", "a.jpg"), http.StatusConflict, "conflict", ""},
		{"internal", errors.New("pq: connection refused"), http.StatusInternalServerError, "internal_error", "An internal error occurred"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			writeError(rr, tt.err)

			assert.Equal(t, tt.wantStatus, rr.Code)
			var body ErrorResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Equal(t, tt.wantType, body.Error)
			if tt.wantMsg != "" {
				assert.Equal(t, tt.wantMsg, body.Message)
			}
		})
	}
}

func TestWriteError_IncludesFieldErrors(t *testing.T) {
	rr := httptest.NewRecorder()
	writeError(rr, apperror.FieldErrors{"address": "Address is required"})

	var body ErrorResponse
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, map[string]string{"address": "Address is required"}, body.Fields)
}

// presigningStore is a BlobStore that can presign, like the S3 store.
type presigningStore struct {
	gotKey string
	gotTTL time.Duration
}

func (p *presigningStore) Put(context.Context, string, string, []byte, bool) error { return nil }

func (p *presigningStore) Get(context.Context, string) (*storage.Object, error) {
	return &storage.Object{ContentType: "image/jpeg", Body: io.NopCloser(strings.NewReader("x"))}, nil
}

func (p *presigningStore) Delete(context.Context, ...string) error { return nil }

func (p *presigningStore) PresignGet(_ context.Context, key string, ttl time.Duration) (string, error) {
	p.gotKey, p.gotTTL = key, ttl
	return "https://bucket.s3.amazonaws.com/" + key + "?X-Amz-Signature=abc", nil
}

func withURLParams(r *http.Request, kv ...string) *http.Request {
	rctx := chi.NewRouteContext()
	for i := 0; i+1 < len(kv); i += 2 {
		rctx.URLParams.Add(kv[i], kv[i+1])
	}
	ctx := context.WithValue(r.Context(), chi.RouteCtxKey, rctx)
	return r.WithContext(auth.WithUserID(ctx, "user-1"))
}

func TestHandleSign_UsesPresignerWhenAvailable(t *testing.T) {
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	store := &presigningStore{}
	h := NewStorageHandler("form_images", store, tokens, "http://localhost:8080", testLogger())

	tests := []struct {
		name    string
		body    string
		wantTTL time.Duration
	}{
		{"explicit", `{"expiresIn":60}`, time.Minute},
		{"default", `{}`, defaultSignTTL},
		{"clamped", `{"expiresIn":99999999}`, maxSignTTL},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/storage/v1/object/sign/form_images/a.jpg", strings.NewReader(tt.body))
			req = withURLParams(req, "bucket", "form_images", "key", "a.jpg")
			rr := httptest.NewRecorder()

			h.HandleSign(rr, req)

			require.Equal(t, http.StatusOK, rr.Code)
			var body signResponse
			require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
			assert.Contains(t, body.SignedURL, "X-Amz-Signature")
			assert.Equal(t, "a.jpg", store.gotKey)
			assert.Equal(t, tt.wantTTL, store.gotTTL)
		})
	}
}

func TestHandleSign_RejectsNegativeTTL(t *testing.T) {
	tokens, err := auth.NewTokenService("test-secret-at-least-16-chars!!")
	require.NoError(t, err)
	h := NewStorageHandler("form_images", &presigningStore{}, tokens, "http://localhost:8080", testLogger())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"expiresIn":-5}`))
	req = withURLParams(req, "bucket", "form_images", "key", "a.jpg")
	rr := httptest.NewRecorder()
	h.HandleSign(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestWriteOAuthError(t *testing.T) {
	rr := httptest.NewRecorder()
	writeOAuthError(rr, apperror.Unauthenticated("Invalid login credentials"))

	assert.Equal(t, http.StatusBadRequest, rr.Code)
	var body OAuthError
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	assert.Equal(t, "invalid_grant", body.Error)
	assert.Equal(t, "Invalid login credentials", body.ErrorDescription)

	rr = httptest.NewRecorder()
	writeOAuthError(rr, errors.New("boom"))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}
