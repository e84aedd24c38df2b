package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"golang.org/x/oauth2"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/storage"
)

var _ storage.ObjectStore = (*StorageClient)(nil)

// StorageClient is one bucket of the hosted object store.
type StorageClient struct {
	baseURL string
	bucket  string
	http    *http.Client
}

func NewStorageClient(baseURL, bucket string, src oauth2.TokenSource, timeout time.Duration) *StorageClient {
	return &StorageClient{baseURL: baseURL, bucket: bucket, http: authedClient(src, timeout)}
}

// Upload stores data under key. With overwrite=false an existing key fails
// with storage.ErrObjectExists and the stored object is not touched.
func (c *StorageClient) Upload(ctx context.Context, key, contentType string, data []byte, overwrite bool) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL("", key), bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("client: building upload request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", strconv.FormatBool(overwrite))

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: uploading %s: %w", key, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		return nil
	}
	apiErr := apiError(resp)
	if errors.Is(apiErr, apperror.ErrConflict) {
		return fmt.Errorf("client: uploading %s: %w", key, storage.ErrObjectExists)
	}
	return fmt.Errorf("client: uploading %s: %w", key, apiErr)
}

// Remove deletes keys. Keys that do not exist are ignored by the backend.
func (c *StorageClient) Remove(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	raw, err := json.Marshal(map[string][]string{"prefixes": keys})
	if err != nil {
		return fmt.Errorf("client: encoding remove request: %w", err)
	}
	endpoint := c.baseURL + "/storage/v1/object/" + url.PathEscape(c.bucket)
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, endpoint, bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("client: building remove request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: removing objects: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("client: removing objects: %w", apiError(resp))
	}
	return nil
}

// PublicURL is the non-expiring URL of key.
func (c *StorageClient) PublicURL(key string) string {
	return c.objectURL("public/", key)
}

// SignedURL asks the backend for a URL that grants read access for ttl.
func (c *StorageClient) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	raw, err := json.Marshal(map[string]int64{"expiresIn": int64(ttl / time.Second)})
	if err != nil {
		return "", fmt.Errorf("client: encoding sign request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.objectURL("sign/", key), bytes.NewReader(raw))
	if err != nil {
		return "", fmt.Errorf("client: building sign request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("client: signing %s: %w", key, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("client: signing %s: %w", key, apiError(resp))
	}

	var body struct {
		SignedURL string `json:"signedURL"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("client: decoding signed URL: %w", err)
	}
	if body.SignedURL == "" {
		return "", fmt.Errorf("client: backend returned no signed URL for %s", key)
	}
	return body.SignedURL, nil
}

func (c *StorageClient) objectURL(kind, key string) string {
	return c.baseURL + "/storage/v1/object/" + kind + url.PathEscape(c.bucket) + "/" + url.PathEscape(key)
}
