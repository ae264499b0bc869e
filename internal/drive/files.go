package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
)

// FolderMimeType identifies folders in Drive metadata.
const FolderMimeType = "application/vnd.google-apps.folder"

// listFields is the projection requested on listing and metadata calls.
const listFields = "nextPageToken, files(id, name, mimeType, size)"

// Item is a normalized Drive file or folder entry.
// Size is nil when Drive omits it (common for shortcuts and some
// Google-native types); such files are sized at download time instead.
type Item struct {
	ID       string
	Name     string
	MimeType string
	Size     *int64
}

// IsFolder reports whether the item is a Drive folder.
func (i Item) IsFolder() bool {
	return i.MimeType == FolderMimeType
}

// Page is one page of a folder listing. NextPageToken is empty on the
// last page.
type Page struct {
	Items         []Item
	NextPageToken string
}

// fileResource mirrors the Drive v3 file JSON. Size arrives as a decimal
// string when present.
type fileResource struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     string `json:"size"`
}

type fileListResponse struct {
	Files         []fileResource `json:"files"`
	NextPageToken string         `json:"nextPageToken"`
}

func (f *fileResource) toItem(logger *slog.Logger) Item {
	item := Item{
		ID:       f.ID,
		Name:     f.Name,
		MimeType: f.MimeType,
	}

	if f.Size != "" {
		n, err := strconv.ParseInt(f.Size, 10, 64)
		if err != nil {
			// Treated as unknown; the byte ceiling still applies at download.
			logger.Warn("unparsable size in file metadata",
				slog.String("file_id", f.ID),
				slog.String("raw", f.Size),
			)
		} else {
			item.Size = &n
		}
	}

	return item
}

// ListChildren fetches a single page of the direct children of parentID.
// Pass the previous page's NextPageToken to continue; empty for the first
// page. Pagination stays page-at-a-time so callers can enforce ceilings
// between calls.
func (c *Client) ListChildren(ctx context.Context, accessToken, parentID, pageToken string) (*Page, error) {
	params := url.Values{}
	params.Set("q", fmt.Sprintf("'%s' in parents and trashed = false", parentID))
	params.Set("fields", listFields)

	if pageToken != "" {
		params.Set("pageToken", pageToken)
	}

	resp, err := c.do(ctx, c.httpClient, accessToken, http.MethodGet, "/files?"+params.Encode())
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list fileListResponse
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, fmt.Errorf("drive: decoding file list: %w", err)
	}

	page := &Page{NextPageToken: list.NextPageToken}
	for i := range list.Files {
		page.Items = append(page.Items, list.Files[i].toItem(c.logger))
	}

	c.logger.Debug("listed children page",
		slog.String("parent_id", parentID),
		slog.Int("count", len(page.Items)),
		slog.Bool("more", page.NextPageToken != ""),
	)

	return page, nil
}

// GetFile fetches metadata for a single file or folder by id.
func (c *Client) GetFile(ctx context.Context, accessToken, fileID string) (*Item, error) {
	params := url.Values{}
	params.Set("fields", "id, name, mimeType, size")

	path := "/files/" + url.PathEscape(fileID) + "?" + params.Encode()

	resp, err := c.do(ctx, c.httpClient, accessToken, http.MethodGet, path)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var res fileResource
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("drive: decoding file metadata: %w", err)
	}

	item := res.toItem(c.logger)

	return &item, nil
}

// DownloadTo streams the content of fileID into w and returns the number
// of bytes written. Write errors from w (including ceiling enforcement by
// a limiting writer) abort the stream and propagate to the caller.
func (c *Client) DownloadTo(ctx context.Context, accessToken, fileID string, w io.Writer) (int64, error) {
	path := "/files/" + url.PathEscape(fileID) + "?alt=media"

	resp, err := c.do(ctx, c.downloadClient, accessToken, http.MethodGet, path)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("drive: streaming file %s: %w", fileID, err)
	}

	c.logger.Debug("download complete",
		slog.String("file_id", fileID),
		slog.Int64("bytes", n),
	)

	return n, nil
}
