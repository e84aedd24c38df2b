package handler

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/auth"
	"github.com/sakif/field-survey/internal/storage"
)

const (
	// maxUploadBody caps a single object upload. The client rejects anything
	// over 5MB before it gets here; the extra room covers re-encoded images.
	maxUploadBody = 10 << 20

	defaultSignTTL = time.Hour
	maxSignTTL     = 7 * 24 * time.Hour
)

// StorageHandler exposes one bucket of a BlobStore over HTTP.
//
// ROUTES:
//   - POST   /storage/v1/object/{bucket}/{key}         → upload (auth, "x-upsert: true" to overwrite)
//   - DELETE /storage/v1/object/{bucket}               → remove {"prefixes": [...]} (auth)
//   - GET    /storage/v1/object/public/{bucket}/{key}  → public download
//   - POST   /storage/v1/object/sign/{bucket}/{key}    → mint a signed URL (auth)
//   - GET    /storage/v1/object/sign/{bucket}/{key}    → download with ?token=
type StorageHandler struct {
	bucket    string
	blobs     storage.BlobStore
	tokens    *auth.TokenService
	publicURL string
	logger    *slog.Logger
}

func NewStorageHandler(bucket string, blobs storage.BlobStore, tokens *auth.TokenService, publicURL string, logger *slog.Logger) *StorageHandler {
	return &StorageHandler{
		bucket:    bucket,
		blobs:     blobs,
		tokens:    tokens,
		publicURL: publicURL,
		logger:    logger,
	}
}

type uploadResponse struct {
	Key string `json:"Key"`
}

type removeRequest struct {
	Prefixes []string `json:"prefixes"`
}

type removedObject struct {
	Name string `json:"name"`
}

type signRequest struct {
	ExpiresIn int64 `json:"expiresIn"`
}

type signResponse struct {
	SignedURL string `json:"signedURL"`
}

// objectParams reads and checks {bucket} and {key}.
func (h *StorageHandler) objectParams(r *http.Request) (string, error) {
	bucket := chi.URLParam(r, "bucket")
	if bucket != h.bucket {
		return "", apperror.NotFound("bucket", bucket)
	}
	key := chi.URLParam(r, "key")
	if err := storage.ValidateKey(key); err != nil {
		return "", apperror.ValidationFailed("key", "Invalid object key")
	}
	return key, nil
}

// HandleUpload stores the raw request body under {key}.
//
// HTTP: POST /storage/v1/object/{bucket}/{key}
// HEADERS: Content-Type of the object; "x-upsert: true" replaces an existing key.
func (h *StorageHandler) HandleUpload(w http.ResponseWriter, r *http.Request) {
	key, err := h.objectParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUploadBody))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, ErrorResponse{
				Error:   "payload_too_large",
				Message: "Object exceeds " + strconv.Itoa(maxUploadBody>>20) + "MB",
			})
			return
		}
		writeError(w, apperror.ValidationFailed("body", "Could not read upload body"))
		return
	}
	if len(data) == 0 {
		writeError(w, apperror.ValidationFailed("body", "Upload body is empty"))
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" || contentType == "application/octet-stream" {
		contentType = http.DetectContentType(data)
	}
	overwrite := r.Header.Get("x-upsert") == "true"

	if err := h.blobs.Put(r.Context(), key, contentType, data, overwrite); err != nil {
		if errors.Is(err, storage.ErrObjectExists) {
			writeError(w, apperror.Conflict("object", key))
			return
		}
		writeError(w, fmt.Errorf("storing %s: %w", key, err))
		return
	}

	h.logger.Info("object stored",
		slog.String("key", key),
		slog.Int("bytes", len(data)),
		slog.Bool("upsert", overwrite),
	)
	writeJSON(w, http.StatusOK, uploadResponse{Key: h.bucket + "/" + key})
}

// HandleRemove deletes the listed keys. Keys that do not exist are ignored.
//
// HTTP: DELETE /storage/v1/object/{bucket}
// BODY: {"prefixes": ["1700000000000-abc.jpg", ...]}
func (h *StorageHandler) HandleRemove(w http.ResponseWriter, r *http.Request) {
	if bucket := chi.URLParam(r, "bucket"); bucket != h.bucket {
		writeError(w, apperror.NotFound("bucket", bucket))
		return
	}

	var req removeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if len(req.Prefixes) == 0 {
		writeError(w, apperror.ValidationFailed("prefixes", "At least one key is required"))
		return
	}
	for _, key := range req.Prefixes {
		if err := storage.ValidateKey(key); err != nil {
			writeError(w, apperror.ValidationFailed("prefixes", "Invalid object key"))
			return
		}
	}

	if err := h.blobs.Delete(r.Context(), req.Prefixes...); err != nil {
		writeError(w, fmt.Errorf("removing objects: %w", err))
		return
	}

	removed := make([]removedObject, 0, len(req.Prefixes))
	for _, key := range req.Prefixes {
		removed = append(removed, removedObject{Name: key})
	}
	writeJSON(w, http.StatusOK, removed)
}

// HandlePublic streams an object without authentication.
//
// HTTP: GET /storage/v1/object/public/{bucket}/{key}
func (h *StorageHandler) HandlePublic(w http.ResponseWriter, r *http.Request) {
	key, err := h.objectParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	h.serveObject(w, r, key)
}

// HandleSign returns a URL that grants read access to one object for a
// limited time. S3-backed stores presign directly; others get a URL back to
// HandleSigned carrying a short-lived object token.
//
// HTTP: POST /storage/v1/object/sign/{bucket}/{key}
// BODY: {"expiresIn": 3600}
func (h *StorageHandler) HandleSign(w http.ResponseWriter, r *http.Request) {
	key, err := h.objectParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var req signRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	ttl := time.Duration(req.ExpiresIn) * time.Second
	switch {
	case req.ExpiresIn < 0:
		writeError(w, apperror.ValidationFailed("expiresIn", "expiresIn must be positive"))
		return
	case ttl == 0:
		ttl = defaultSignTTL
	case ttl > maxSignTTL:
		ttl = maxSignTTL
	}

	if p, ok := h.blobs.(storage.Presigner); ok {
		signed, err := p.PresignGet(r.Context(), key, ttl)
		if err != nil {
			writeError(w, fmt.Errorf("presigning %s: %w", key, err))
			return
		}
		writeJSON(w, http.StatusOK, signResponse{SignedURL: signed})
		return
	}

	tok, err := h.tokens.SignObject(h.bucket, key, ttl)
	if err != nil {
		writeError(w, err)
		return
	}
	signed := h.publicURL + "/storage/v1/object/sign/" + url.PathEscape(h.bucket) + "/" +
		url.PathEscape(key) + "?token=" + url.QueryEscape(tok)
	writeJSON(w, http.StatusOK, signResponse{SignedURL: signed})
}

// HandleSigned streams an object when ?token= was minted for it.
//
// HTTP: GET /storage/v1/object/sign/{bucket}/{key}?token=...
func (h *StorageHandler) HandleSigned(w http.ResponseWriter, r *http.Request) {
	key, err := h.objectParams(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := h.tokens.ValidateObject(r.URL.Query().Get("token"), h.bucket, key); err != nil {
		writeError(w, apperror.Forbidden("Invalid or expired signature"))
		return
	}
	h.serveObject(w, r, key)
}

func (h *StorageHandler) serveObject(w http.ResponseWriter, r *http.Request, key string) {
	obj, err := h.blobs.Get(r.Context(), key)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			writeError(w, apperror.NotFound("object", key))
			return
		}
		writeError(w, fmt.Errorf("reading %s: %w", key, err))
		return
	}
	defer obj.Body.Close()

	w.Header().Set("Content-Type", obj.ContentType)
	if obj.Size > 0 {
		w.Header().Set("Content-Length", strconv.FormatInt(obj.Size, 10))
	}
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, obj.Body); err != nil {
		h.logger.Warn("object stream interrupted", slog.String("key", key), slog.String("error", err.Error()))
	}
}
