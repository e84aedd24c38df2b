// Package storage declares the object-store contracts.
//
// Two sides use it:
//   - ObjectStore is what the client core sees: one bucket, upload with an
//     explicit overwrite flag, public and time-limited signed URLs.
//   - BlobStore is what the backend persists bytes into (local disk or S3).
//     The HTTP handlers in internal/handler expose a BlobStore as the hosted
//     object-store surface that the client's ObjectStore adapter talks to.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"
)

var (
	// ErrObjectExists is returned by an upload with overwrite=false when the
	// key is already taken. The stored object is left untouched.
	ErrObjectExists = errors.New("storage: object already exists")
	// ErrObjectNotFound is returned when a key has no stored object.
	ErrObjectNotFound = errors.New("storage: object not found")
)

// ObjectStore is a single bucket of the hosted object store.
type ObjectStore interface {
	Upload(ctx context.Context, key, contentType string, data []byte, overwrite bool) error
	// Remove deletes keys. Missing keys are not an error.
	Remove(ctx context.Context, keys ...string) error
	// PublicURL is a pure function of the key.
	PublicURL(key string) string
	// SignedURL returns a URL that grants read access for ttl.
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// Object is a stored blob opened for reading. Callers must close Body.
type Object struct {
	ContentType string
	Size        int64
	Body        io.ReadCloser
}

// BlobStore is the backend's byte store for one bucket.
type BlobStore interface {
	Put(ctx context.Context, key, contentType string, data []byte, overwrite bool) error
	Get(ctx context.Context, key string) (*Object, error)
	Delete(ctx context.Context, keys ...string) error
}

// Presigner is implemented by blob stores that can mint their own
// time-limited download URLs (S3). Stores without it are signed by the backend.
type Presigner interface {
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}

var keyPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)

// ValidateKey rejects keys that could escape a bucket or a directory.
func ValidateKey(key string) error {
	if !keyPattern.MatchString(key) || strings.Contains(key, "..") {
		return fmt.Errorf("storage: invalid object key %q", key)
	}
	return nil
}

// KeyFromRef extracts the object key from a stored reference. A reference is
// either a bare key or a URL whose last path segment is the key.
func KeyFromRef(ref string) string {
	ref = strings.TrimSpace(ref)
	if u, err := url.Parse(ref); err == nil && u.Path != "" {
		ref = u.Path
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	base := path.Base(ref)
	if base == "." || base == "/" {
		return ""
	}
	return base
}
