// Package upload turns a locally picked image into a durable object-store
// reference.
package upload

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/field-survey/internal/apperror"
	"github.com/sakif/field-survey/internal/model"
	"github.com/sakif/field-survey/internal/platform"
	"github.com/sakif/field-survey/internal/storage"
)

// MaxImageSize is the largest image a user may pick.
const MaxImageSize = 5 << 20

const (
	MsgTooLarge = "File size must be less than 5MB"
	MsgBadType  = "Only JPEG and PNG images are allowed"
)

var allowedTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
}

// ValidateSelection applies the picker rules. An unknown size or type is not
// held against the selection.
func ValidateSelection(sel model.ImageSelection) error {
	if sel.FileSize > MaxImageSize {
		return apperror.ImageRejected("image", MsgTooLarge)
	}
	if sel.MIMEType != "" && !allowedTypes[strings.ToLower(sel.MIMEType)] {
		return apperror.ImageRejected("image", MsgBadType)
	}
	return nil
}

// ExtensionFor returns the lower-case extension of filename without the dot,
// or "jpg" when there is none.
func ExtensionFor(filename string) string {
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(filename), "."))
	if ext == "" {
		return "jpg"
	}
	return ext
}

// ContentTypeFor maps an extension to the stored content type. Only PNG is
// told apart; everything else is stored as JPEG.
func ContentTypeFor(ext string) string {
	if strings.EqualFold(ext, "png") {
		return "image/png"
	}
	return "image/jpeg"
}

// Pipeline uploads picked images.
type Pipeline struct {
	store  storage.ObjectStore
	reader platform.FileReader
	logger *slog.Logger
	now    func() time.Time
	newID  func() string
}

func NewPipeline(store storage.ObjectStore, reader platform.FileReader, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:  store,
		reader: reader,
		logger: logger,
		now:    time.Now,
		newID:  func() string { return xid.New().String() },
	}
}

// Upload reads the file at uri and stores it under a fresh key. The key is
// "<unix millis>-<xid>.<ext>" and is uploaded with overwrite=false, so a
// collision fails instead of replacing someone else's photo. It returns the
// object's public URL.
//
// Every failure is an apperror.ErrUpload carrying the cause.
func (p *Pipeline) Upload(ctx context.Context, uri, filename string) (string, error) {
	if filename == "" {
		filename = filepath.Base(platform.PathFromURI(uri))
	}
	ext := ExtensionFor(filename)
	contentType := ContentTypeFor(ext)

	encoded, err := p.reader.ReadBase64(ctx, uri)
	if err != nil {
		return "", apperror.UploadFailed(err)
	}
	data, err := decodePayload(encoded)
	if err != nil {
		return "", apperror.UploadFailed(err)
	}

	key := fmt.Sprintf("%d-%s.%s", p.now().UnixMilli(), p.newID(), ext)
	if err := p.store.Upload(ctx, key, contentType, data, false); err != nil {
		p.logger.Error("image upload failed", slog.String("key", key), slog.String("error", err.Error()))
		return "", apperror.UploadFailed(err)
	}

	p.logger.Info("image uploaded", slog.String("key", key), slog.Int("bytes", len(data)))
	return p.store.PublicURL(key), nil
}

// Discard removes an uploaded object by its reference. It is used to roll
// back uploads of a submission that failed.
func (p *Pipeline) Discard(ctx context.Context, ref string) error {
	key := storage.KeyFromRef(ref)
	if key == "" {
		return nil
	}
	if err := p.store.Remove(ctx, key); err != nil {
		return fmt.Errorf("upload: discarding %s: %w", key, err)
	}
	return nil
}

// decodePayload accepts plain base64 or a data: URL.
func decodePayload(encoded string) ([]byte, error) {
	if strings.HasPrefix(encoded, "data:") {
		_, after, ok := strings.Cut(encoded, ",")
		if !ok {
			return nil, errors.New("malformed data URL")
		}
		encoded = after
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("decoding image: %w", err)
	}
	if len(data) == 0 {
		return nil, errors.New("image is empty")
	}
	return data, nil
}
