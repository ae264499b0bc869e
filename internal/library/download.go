package library

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// SizeLimitError reports that a download's actual streamed bytes passed
// the byte ceiling. The partial file has already been removed.
type SizeLimitError struct {
	Limit int64
	Got   int64
}

func (e *SizeLimitError) Error() string {
	return fmt.Sprintf("library: file exceeds max size (%d bytes); aborted at %d bytes", e.Limit, e.Got)
}

// ContentStreamer streams a remote file's content into a writer.
// Implemented by *drive.Client.
type ContentStreamer interface {
	DownloadTo(ctx context.Context, accessToken, fileID string, w io.Writer) (int64, error)
}

// Downloader streams single files to local storage under a byte ceiling,
// leaving no partial artifacts behind on any failure.
type Downloader struct {
	client ContentStreamer
	logger *slog.Logger
}

// NewDownloader creates a Downloader.
func NewDownloader(client ContentStreamer, logger *slog.Logger) *Downloader {
	if logger == nil {
		logger = slog.Default()
	}

	return &Downloader{client: client, logger: logger}
}

// Download streams fileID into destPath and returns the final basename.
// Content is written to destPath+".partial" and renamed into place only on
// success. The running byte count is checked on every write, because the
// declared size from the scan phase can be absent, stale, or wrong; passing
// maxBytes aborts the stream with a *SizeLimitError. On any failure the
// partial file is removed before the error propagates.
func (d *Downloader) Download(ctx context.Context, accessToken, fileID, destPath string, maxBytes int64) (string, error) {
	partialPath := destPath + ".partial"

	f, err := os.Create(partialPath)
	if err != nil {
		return "", fmt.Errorf("library: creating partial file %s: %w", partialPath, err)
	}

	lw := &limitWriter{w: f, limit: maxBytes}

	_, err = d.client.DownloadTo(ctx, accessToken, fileID, lw)
	closeErr := f.Close()

	if err != nil {
		_ = os.Remove(partialPath) // best-effort cleanup; error is non-actionable here

		if lw.err != nil {
			d.logger.Warn("download aborted over byte ceiling",
				slog.String("file_id", fileID),
				slog.Int64("limit", maxBytes),
			)

			return "", lw.err
		}

		return "", err
	}

	if closeErr != nil {
		_ = os.Remove(partialPath)
		return "", fmt.Errorf("library: closing partial file %s: %w", partialPath, closeErr)
	}

	if err := os.Rename(partialPath, destPath); err != nil {
		_ = os.Remove(partialPath)
		return "", fmt.Errorf("library: renaming partial %s: %w", partialPath, err)
	}

	d.logger.Info("download complete",
		slog.String("file_id", fileID),
		slog.String("path", destPath),
		slog.Int64("bytes", lw.written),
	)

	return filepath.Base(destPath), nil
}

// limitWriter counts bytes and fails the write that would pass the limit.
type limitWriter struct {
	w       io.Writer
	limit   int64
	written int64
	err     *SizeLimitError
}

func (lw *limitWriter) Write(p []byte) (int, error) {
	if lw.written+int64(len(p)) > lw.limit {
		lw.err = &SizeLimitError{Limit: lw.limit, Got: lw.written + int64(len(p))}
		return 0, lw.err
	}

	n, err := lw.w.Write(p)
	lw.written += int64(n)

	return n, err
}
