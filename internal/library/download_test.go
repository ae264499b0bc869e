package library

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeStreamer implements ContentStreamer from an in-memory payload,
// writing in small chunks so mid-stream ceiling checks are exercised.
type fakeStreamer struct {
	content   []byte
	chunkSize int
	err       error
}

func (f *fakeStreamer) DownloadTo(_ context.Context, _, _ string, w io.Writer) (int64, error) {
	chunk := f.chunkSize
	if chunk <= 0 {
		chunk = 8
	}

	var total int64

	for off := 0; off < len(f.content); off += chunk {
		end := off + chunk
		if end > len(f.content) {
			end = len(f.content)
		}

		n, err := w.Write(f.content[off:end])
		total += int64(n)

		if err != nil {
			return total, err
		}
	}

	if f.err != nil {
		return total, f.err
	}

	return total, nil
}

func TestDownload_Success(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "book.pdf")
	content := []byte("pdf bytes here, definitely a real book")

	d := NewDownloader(&fakeStreamer{content: content}, nil)

	name, err := d.Download(context.Background(), "tok", "f-1", dest, 1024)
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", name)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, content, got)

	// No partial artifact left behind.
	_, err = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(err))
}

func TestDownload_SizeCeilingRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "book.pdf")

	d := NewDownloader(&fakeStreamer{content: make([]byte, 100)}, nil)

	_, err := d.Download(context.Background(), "tok", "f-1", dest, 50)
	require.Error(t, err)

	var sizeErr *SizeLimitError
	require.ErrorAs(t, err, &sizeErr)
	assert.Equal(t, int64(50), sizeErr.Limit)
	assert.Greater(t, sizeErr.Got, sizeErr.Limit)

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr), "no file at destination after ceiling breach")
	_, statErr = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(statErr), "partial removed after ceiling breach")
}

func TestDownload_StreamErrorRemovesPartial(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "book.pdf")

	d := NewDownloader(&fakeStreamer{content: []byte("partial data"), err: errors.New("connection reset")}, nil)

	_, err := d.Download(context.Background(), "tok", "f-1", dest, 1024)
	require.Error(t, err)

	var sizeErr *SizeLimitError
	assert.False(t, errors.As(err, &sizeErr), "stream error is not a size error")

	_, statErr := os.Stat(dest)
	assert.True(t, os.IsNotExist(statErr))
	_, statErr = os.Stat(dest + ".partial")
	assert.True(t, os.IsNotExist(statErr))
}

func TestDownload_ExactCeilingAllowed(t *testing.T) {
	dir := t.TempDir()
	dest := filepath.Join(dir, "book.pdf")
	content := make([]byte, 64)

	d := NewDownloader(&fakeStreamer{content: content}, nil)

	name, err := d.Download(context.Background(), "tok", "f-1", dest, 64)
	require.NoError(t, err)
	assert.Equal(t, "book.pdf", name)
}
