package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/storage"
)

// memStore is an in-memory storage.ObjectStore.
type memStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	types     map[string]string
	uploadErr error
	removed   []string
}

func newMemStore() *memStore {
	return &memStore{objects: map[string][]byte{}, types: map[string]string{}}
}

func (m *memStore) Upload(_ context.Context, key, contentType string, data []byte, overwrite bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.uploadErr != nil {
		return m.uploadErr
	}
	if _, ok := m.objects[key]; ok && !overwrite {
		return storage.ErrObjectExists
	}
	m.objects[key] = data
	m.types[key] = contentType
	return nil
}

func (m *memStore) Remove(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		delete(m.objects, k)
		m.removed = append(m.removed, k)
	}
	return nil
}

func (m *memStore) PublicURL(key string) string {
	return "http://store/storage/v1/object/public/form_images/" + key
}

func (m *memStore) SignedURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "http://store/signed/" + key, nil
}

type mapReader map[string]string

func (r mapReader) ReadBase64(_ context.Context, uri string) (string, error) {
	v, ok := r[uri]
	if !ok {
		return "", errors.New("no such file")
	}
	return v, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestValidateSelection(t *testing.T) {
	tests := []struct {
		name    string
		sel     model.ImageSelection
		wantMsg string
	}{
		{"jpeg ok", model.ImageSelection{MIMEType: "image/jpeg", FileSize: 1024}, ""},
		{"png ok", model.ImageSelection{MIMEType: "image/png", FileSize: MaxImageSize}, ""},
		{"unknown type and size ok", model.ImageSelection{}, ""},
		{"too large", model.ImageSelection{MIMEType: "image/jpeg", FileSize: MaxImageSize + 1}, MsgTooLarge},
		{"gif", model.ImageSelection{MIMEType: "image/gif", FileSize: 10}, MsgBadType},
		{"heic", model.ImageSelection{MIMEType: "image/heic"}, MsgBadType},
		{"non-standard jpg alias", model.ImageSelection{MIMEType: "image/jpg", FileSize: 10}, MsgBadType},
		{"type is case-insensitive", model.ImageSelection{MIMEType: "IMAGE/PNG", FileSize: 10}, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSelection(tt.sel)
			if tt.wantMsg == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.Is(err, apperror.ErrUpload))
			assert.Equal(t, tt.wantMsg, err.Error())
		})
	}
}

func TestExtensionAndContentType(t *testing.T) {
	assert.Equal(t, "jpg", ExtensionFor(""))
	assert.Equal(t, "jpg", ExtensionFor("IMG_0001"))
	assert.Equal(t, "png", ExtensionFor("shop.PNG"))
	assert.Equal(t, "jpeg", ExtensionFor("a.jpeg"))

	assert.Equal(t, "image/png", ContentTypeFor("png"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("jpeg"))
	assert.Equal(t, "image/jpeg", ContentTypeFor("webp"))
}

func TestUpload_StoresUnderFreshKey(t *testing.T) {
	store := newMemStore()
	payload := []byte("\x89PNG fake")
	reader := mapReader{"file:///tmp/a.png": base64.StdEncoding.EncodeToString(payload)}
	p := NewPipeline(store, reader, testLogger())
	p.now = func() time.Time { return time.UnixMilli(1700000000000) }

	ref, err := p.Upload(context.Background(), "file:///tmp/a.png", "a.png")
	require.NoError(t, err)

	require.Len(t, store.objects, 1)
	for key, data := range store.objects {
		assert.Regexp(t, regexp.MustCompile(`^1700000000000-[0-9a-v]{20}\.png$`), key)
		assert.Equal(t, payload, data)
		assert.Equal(t, "image/png", store.types[key])
		assert.Equal(t, store.PublicURL(key), ref)
	}
	assert.NotEqual(t, "file:///tmp/a.png", ref)
}

func TestUpload_DataURLAndDefaultExtension(t *testing.T) {
	store := newMemStore()
	reader := mapReader{"content://1": "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString([]byte("jpeg"))}
	p := NewPipeline(store, reader, testLogger())

	ref, err := p.Upload(context.Background(), "content://1", "")
	require.NoError(t, err)
	assert.Regexp(t, `\.jpg$`, ref)
}

func TestUpload_Failures(t *testing.T) {
	ctx := context.Background()

	t.Run("read failure", func(t *testing.T) {
		p := NewPipeline(newMemStore(), mapReader{}, testLogger())
		_, err := p.Upload(ctx, "file:///missing.jpg", "missing.jpg")
		assert.True(t, errors.Is(err, apperror.ErrUpload))
		assert.Contains(t, err.Error(), "Failed to upload image")
	})

	t.Run("bad base64", func(t *testing.T) {
		p := NewPipeline(newMemStore(), mapReader{"f": "%%%"}, testLogger())
		_, err := p.Upload(ctx, "f", "a.jpg")
		assert.True(t, errors.Is(err, apperror.ErrUpload))
	})

	t.Run("store rejects", func(t *testing.T) {
		store := newMemStore()
		store.uploadErr = errors.New("network down")
		p := NewPipeline(store, mapReader{"f": base64.StdEncoding.EncodeToString([]byte("x"))}, testLogger())
		_, err := p.Upload(ctx, "f", "a.jpg")
		assert.True(t, errors.Is(err, apperror.ErrUpload))
		assert.Equal(t, "Failed to upload image: network down", err.Error())
	})
}

func TestUpload_CollisionIsHardFailure(t *testing.T) {
	store := newMemStore()
	reader := mapReader{"f": base64.StdEncoding.EncodeToString([]byte("new"))}
	p := NewPipeline(store, reader, testLogger())
	p.now = func() time.Time { return time.UnixMilli(42) }
	p.newID = func() string { return "fixed" }

	store.objects["42-fixed.jpg"] = []byte("old")

	_, err := p.Upload(context.Background(), "f", "a.jpg")
	assert.True(t, errors.Is(err, apperror.ErrUpload))
	assert.True(t, errors.Is(err, storage.ErrObjectExists))
	assert.Equal(t, []byte("old"), store.objects["42-fixed.jpg"], "existing object must be untouched")
}

func TestDiscard(t *testing.T) {
	store := newMemStore()
	p := NewPipeline(store, mapReader{}, testLogger())

	require.NoError(t, p.Discard(context.Background(), store.PublicURL("1-abc.jpg")))
	assert.Equal(t, []string{"1-abc.jpg"}, store.removed)

	require.NoError(t, p.Discard(context.Background(), ""))
	assert.Len(t, store.removed, 1)
}
