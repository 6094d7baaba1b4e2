// Package imaging turns a picked image reference into the payload sent for
// inference.
package imaging

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"  // register decoder
	_ "image/jpeg" // register decoder
	_ "image/png"  // register decoder
	"io"
	"io/fs"
	"net/http"
	"os"

	"github.com/vietddude/snapcook/internal/core/domain"
)

// DefaultMaxBytes bounds the image size accepted for inference.
const DefaultMaxBytes = 8 << 20

// ErrUnsupportedImage is returned for files that are not a decodable image.
var ErrUnsupportedImage = errors.New("unsupported image")

// FileNormalizer reads a local image file and reports its mime type and size.
type FileNormalizer struct {
	MaxBytes int64
}

// NewFileNormalizer creates a normalizer with the default size limit.
func NewFileNormalizer() *FileNormalizer {
	return &FileNormalizer{MaxBytes: DefaultMaxBytes}
}

// Normalize implements the capture session image normalizer.
func (n *FileNormalizer) Normalize(ctx context.Context, ref string) (*domain.ImagePayload, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(ref)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return nil, fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		return nil, fmt.Errorf("open image: %w", err)
	}
	defer f.Close()

	limit := n.MaxBytes
	if limit <= 0 {
		limit = DefaultMaxBytes
	}
	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("%w: larger than %d bytes", ErrUnsupportedImage, limit)
	}

	mime := http.DetectContentType(data)
	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %s (%s)", ErrUnsupportedImage, ref, mime)
	}

	return &domain.ImagePayload{
		Reference: ref,
		Data:      data,
		MimeType:  mimeFor(format, mime),
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

func mimeFor(format, sniffed string) string {
	switch format {
	case "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	case "gif":
		return "image/gif"
	}
	return sniffed
}

// PathPicker hands back a path chosen up front, e.g. a CLI argument.
// An empty path behaves like a user backing out of the picker.
type PathPicker struct {
	Path string
}

// Pick implements the capture session image picker.
func (p PathPicker) Pick(ctx context.Context) (string, error) {
	if p.Path == "" {
		return "", domain.ErrPickCancelled
	}
	if _, err := os.Stat(p.Path); err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return "", fmt.Errorf("%w: %v", domain.ErrPermissionDenied, err)
		}
		return "", fmt.Errorf("pick image: %w", err)
	}
	return p.Path, nil
}
