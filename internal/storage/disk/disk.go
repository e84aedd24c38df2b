// Package disk stores objects as files in one directory per bucket.
//
// The content type given to Put is kept in a sidecar file under .types/,
// which no valid key can name.
package disk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/sakif/field-survey/internal/storage"
)

var _ storage.BlobStore = (*Store)(nil)

type Store struct {
	dir string
}

const typesDir = ".types"

// New creates dir if needed and returns a store rooted there.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(filepath.Join(dir, typesDir), 0o755); err != nil {
		return nil, fmt.Errorf("disk: creating %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// Put writes data under key.
//
// The bytes go to a temp file first. With overwrite=false the temp file is
// hard-linked into place: link(2) fails when the target exists, so two racing
// uploads of one key cannot both win and an existing object is never modified.
func (s *Store) Put(ctx context.Context, key, contentType string, data []byte, overwrite bool) error {
	if err := storage.ValidateKey(key); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("disk: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("disk: writing %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("disk: closing temp file: %w", err)
	}

	final := s.path(key)
	if overwrite {
		if err := os.Rename(tmpName, final); err != nil {
			return fmt.Errorf("disk: replacing %s: %w", key, err)
		}
		return s.writeType(key, contentType)
	}

	if err := os.Link(tmpName, final); err != nil {
		if errors.Is(err, fs.ErrExist) {
			return storage.ErrObjectExists
		}
		return fmt.Errorf("disk: linking %s: %w", key, err)
	}
	return s.writeType(key, contentType)
}

// writeType records the content type for key. An empty type removes the
// record so Get falls back to detection.
func (s *Store) writeType(key, contentType string) error {
	name := s.typePath(key)
	if contentType == "" {
		if err := os.Remove(name); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("disk: clearing type of %s: %w", key, err)
		}
		return nil
	}

	tmp, err := os.CreateTemp(filepath.Dir(name), ".type-*")
	if err != nil {
		return fmt.Errorf("disk: creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.WriteString(contentType); err != nil {
		tmp.Close()
		return fmt.Errorf("disk: writing type of %s: %w", key, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("disk: closing temp file: %w", err)
	}
	if err := os.Rename(tmpName, name); err != nil {
		return fmt.Errorf("disk: storing type of %s: %w", key, err)
	}
	return nil
}

func (s *Store) readType(key string) (string, error) {
	b, err := os.ReadFile(s.typePath(key))
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("disk: reading type of %s: %w", key, err)
	}
	return strings.TrimSpace(string(b)), nil
}

func (s *Store) Get(ctx context.Context, key string) (*storage.Object, error) {
	if err := storage.ValidateKey(key); err != nil {
		return nil, storage.ErrObjectNotFound
	}

	f, err := os.Open(s.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, storage.ErrObjectNotFound
		}
		return nil, fmt.Errorf("disk: opening %s: %w", key, err)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("disk: stat %s: %w", key, err)
	}

	ct, err := s.readType(key)
	if err == nil && ct == "" {
		ct, err = contentTypeOf(f, key)
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	return &storage.Object{
		ContentType: ct,
		Size:        info.Size(),
		Body:        f,
	}, nil
}

// Delete removes keys; missing keys are ignored.
func (s *Store) Delete(ctx context.Context, keys ...string) error {
	for _, key := range keys {
		if err := storage.ValidateKey(key); err != nil {
			return err
		}
		if err := os.Remove(s.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("disk: removing %s: %w", key, err)
		}
		if err := s.writeType(key, ""); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) path(key string) string {
	return filepath.Join(s.dir, key)
}

func (s *Store) typePath(key string) string {
	return filepath.Join(s.dir, typesDir, key)
}

// contentTypeOf is used for objects stored without a type. It prefers the
// extension and falls back to sniffing, leaving f at offset 0.
func contentTypeOf(f *os.File, key string) (string, error) {
	if ct := mime.TypeByExtension(filepath.Ext(key)); ct != "" {
		return ct, nil
	}
	buf := make([]byte, 512)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", fmt.Errorf("disk: sniffing %s: %w", key, err)
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", fmt.Errorf("disk: rewinding %s: %w", key, err)
	}
	return http.DetectContentType(buf[:n]), nil
}
