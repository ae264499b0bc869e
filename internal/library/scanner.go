// Package library discovers eligible book files in a user's Drive folder
// tree and downloads them into the per-user storage namespace.
//
// The remote tree is never cached: every scan recomputes the eligible set
// against the live folder structure, so results reflect whatever the user
// has moved or deleted since the last call.
package library

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/drivebooks/drivebooks/internal/config"
	"github.com/drivebooks/drivebooks/internal/drive"
)

// eligibleMimeTypes are the book formats the downstream pipeline accepts.
var eligibleMimeTypes = map[string]bool{
	"application/pdf":      true,
	"application/epub+zip": true,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": true,
}

// File is one eligible entry found by a scan. Size is nil when Drive did
// not declare one; such files are admitted provisionally and sized during
// download instead.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     *int64 `json:"size"`
}

// LimitError reports a scan ceiling breach. What names the ceiling that
// was hit ("folders" or "files") so callers and users can tell them apart.
type LimitError struct {
	What  string
	Limit int
}

func (e *LimitError) Error() string {
	return fmt.Sprintf("library: scan limit exceeded: max %d %s", e.Limit, e.What)
}

// ChildLister fetches one page of a folder's children.
// Implemented by *drive.Client.
type ChildLister interface {
	ListChildren(ctx context.Context, accessToken, parentID, pageToken string) (*drive.Page, error)
}

// Scanner walks a folder tree collecting eligible files under hard
// ceilings on folders visited and files collected.
type Scanner struct {
	client ChildLister
	limits config.Limits
	logger *slog.Logger
}

// NewScanner creates a Scanner.
func NewScanner(client ChildLister, limits config.Limits, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}

	return &Scanner{client: client, limits: limits, logger: logger}
}

// Scan traverses the folder graph rooted at rootID and returns every
// eligible file found, in discovery order. The order is not stable across
// calls against a live tree.
//
// The traversal uses an explicit work stack and a visited set keyed by
// folder id, so folders reachable through multiple parents (or cycles,
// which the Drive API permits) are listed at most once. The folder ceiling
// is checked before each listing call, bounding API calls and not just
// results. A ceiling breach aborts the scan with a *LimitError; no partial
// list is returned. Provider errors propagate unchanged.
func (s *Scanner) Scan(ctx context.Context, accessToken, rootID string) ([]File, error) {
	var result []File

	stack := []string{rootID}
	seen := map[string]bool{rootID: true}
	foldersProcessed := 0

	for len(stack) > 0 {
		if foldersProcessed >= s.limits.MaxScanFolders {
			return nil, &LimitError{What: "folders", Limit: s.limits.MaxScanFolders}
		}

		folderID := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		foldersProcessed++

		pageToken := ""

		for {
			page, err := s.client.ListChildren(ctx, accessToken, folderID, pageToken)
			if err != nil {
				return nil, err
			}

			for _, item := range page.Items {
				if item.ID == "" {
					continue
				}

				if item.IsFolder() {
					if !seen[item.ID] {
						seen[item.ID] = true
						stack = append(stack, item.ID)
					}

					continue
				}

				if !s.eligible(item) {
					continue
				}

				if len(result) >= s.limits.MaxScanFiles {
					return nil, &LimitError{What: "eligible files", Limit: s.limits.MaxScanFiles}
				}

				result = append(result, File{
					ID:       item.ID,
					Name:     item.Name,
					MimeType: item.MimeType,
					Size:     item.Size,
				})
			}

			pageToken = page.NextPageToken
			if pageToken == "" {
				break
			}
		}
	}

	s.logger.Info("scan complete",
		slog.String("root_id", rootID),
		slog.Int("folders_processed", foldersProcessed),
		slog.Int("eligible_files", len(result)),
	)

	return result, nil
}

// eligible admits files whose type is supported and whose declared size,
// when known, is within the byte ceiling. Unknown size passes here; the
// downloader enforces the ceiling on actual bytes.
func (s *Scanner) eligible(item drive.Item) bool {
	if !eligibleMimeTypes[item.MimeType] {
		return false
	}

	return item.Size == nil || *item.Size <= s.limits.MaxFileSizeBytes
}
