package imaging

import (
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vietddude/snapcook/internal/core/domain"
)

func writeImage(t *testing.T, name string, w, h int) string {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(1, 1, color.RGBA{R: 200, A: 255})

	path := filepath.Join(t.TempDir(), name)
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	switch filepath.Ext(name) {
	case ".png":
		require.NoError(t, png.Encode(f, img))
	case ".jpg":
		require.NoError(t, jpeg.Encode(f, img, nil))
	}
	return path
}

func TestFileNormalizer_Formats(t *testing.T) {
	tests := []struct {
		name     string
		file     string
		wantMime string
	}{
		{"png", "fridge.png", "image/png"},
		{"jpeg", "fridge.jpg", "image/jpeg"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeImage(t, tt.file, 32, 24)

			got, err := NewFileNormalizer().Normalize(context.Background(), path)
			require.NoError(t, err)
			assert.Equal(t, path, got.Reference)
			assert.Equal(t, tt.wantMime, got.MimeType)
			assert.Equal(t, 32, got.Width)
			assert.Equal(t, 24, got.Height)
			assert.NotEmpty(t, got.Data)
		})
	}
}

func TestFileNormalizer_Rejects(t *testing.T) {
	dir := t.TempDir()
	text := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(text, []byte("eggs, milk"), 0o600))

	_, err := NewFileNormalizer().Normalize(context.Background(), text)
	assert.ErrorIs(t, err, ErrUnsupportedImage)

	_, err = NewFileNormalizer().Normalize(context.Background(), filepath.Join(dir, "missing.png"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	big := writeImage(t, "big.png", 64, 64)
	_, err = (&FileNormalizer{MaxBytes: 16}).Normalize(context.Background(), big)
	assert.ErrorIs(t, err, ErrUnsupportedImage)
}

func TestFileNormalizer_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewFileNormalizer().Normalize(ctx, writeImage(t, "a.png", 2, 2))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathPicker(t *testing.T) {
	ctx := context.Background()

	_, err := PathPicker{}.Pick(ctx)
	assert.ErrorIs(t, err, domain.ErrPickCancelled)

	_, err = PathPicker{Path: filepath.Join(t.TempDir(), "nope.jpg")}.Pick(ctx)
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := writeImage(t, "ok.png", 4, 4)
	got, err := PathPicker{Path: path}.Pick(ctx)
	require.NoError(t, err)
	assert.Equal(t, path, got)
}
