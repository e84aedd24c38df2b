// Package platform declares the device capabilities the client core needs
// (image picker, file reader, geolocation) and provides local implementations
// for the CLI and tests.
package platform

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"

	"github.com/sakif/field-survey/internal/model"
)

// ImagePicker asks the user for one image. A nil selection with a nil error
// means the user cancelled.
type ImagePicker interface {
	PickImage(ctx context.Context) (*model.ImageSelection, error)
}

// FileReader reads a local file handle as base64.
type FileReader interface {
	ReadBase64(ctx context.Context, uri string) (string, error)
}

// Position is a fix in decimal degrees.
type Position struct {
	Latitude  float64
	Longitude float64
}

// LatString and LonString format the fix the way the form stores it.
func (p Position) LatString() string { return strconv.FormatFloat(p.Latitude, 'f', -1, 64) }
func (p Position) LonString() string { return strconv.FormatFloat(p.Longitude, 'f', -1, 64) }

// Locator is foreground geolocation.
type Locator interface {
	// RequestPermission reports whether foreground location access is granted.
	RequestPermission(ctx context.Context) (bool, error)
	CurrentPosition(ctx context.Context) (Position, error)
}

// =========================================================================
// Local implementations
// =========================================================================

// LocalFileReader reads paths and file:// URIs from the local filesystem.
type LocalFileReader struct{}

var _ FileReader = LocalFileReader{}

func (LocalFileReader) ReadBase64(ctx context.Context, uri string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	data, err := os.ReadFile(PathFromURI(uri))
	if err != nil {
		return "", fmt.Errorf("platform: reading %s: %w", uri, err)
	}
	return base64.StdEncoding.EncodeToString(data), nil
}

// PathFromURI strips a file:// scheme.
func PathFromURI(uri string) string {
	return strings.TrimPrefix(uri, "file://")
}

// SelectFile describes a local file as a picker would: declared size from
// stat, declared type sniffed from the first 512 bytes.
func SelectFile(path string) (*model.ImageSelection, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("platform: opening %s: %w", path, err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("platform: stat %s: %w", path, err)
	}
	head := make([]byte, 512)
	n, _ := f.Read(head)

	mimeType := http.DetectContentType(head[:n])
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	return &model.ImageSelection{
		URI:      "file://" + abs,
		MIMEType: mimeType,
		FileName: filepath.Base(path),
		FileSize: info.Size(),
	}, nil
}

// FilePicker hands out local files in order, one per PickImage call. Once the
// queue is empty every pick is a cancellation.
type FilePicker struct {
	mu    sync.Mutex
	paths []string
}

var _ ImagePicker = (*FilePicker)(nil)

func NewFilePicker(paths ...string) *FilePicker {
	return &FilePicker{paths: paths}
}

func (p *FilePicker) PickImage(ctx context.Context) (*model.ImageSelection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p.mu.Lock()
	if len(p.paths) == 0 {
		p.mu.Unlock()
		return nil, nil
	}
	path := p.paths[0]
	p.paths = p.paths[1:]
	p.mu.Unlock()

	return SelectFile(path)
}

// StaticLocator returns a fixed position, or refuses permission when Denied.
type StaticLocator struct {
	Position Position
	Denied   bool
}

var _ Locator = StaticLocator{}

func (l StaticLocator) RequestPermission(ctx context.Context) (bool, error) {
	return !l.Denied, ctx.Err()
}

func (l StaticLocator) CurrentPosition(ctx context.Context) (Position, error) {
	if l.Denied {
		return Position{}, fmt.Errorf("platform: location permission not granted")
	}
	return l.Position, ctx.Err()
}
