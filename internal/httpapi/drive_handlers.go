package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/drivebooks/drivebooks/internal/broker"
	"github.com/drivebooks/drivebooks/internal/drive"
	"github.com/drivebooks/drivebooks/internal/library"
)

// handleGetRootFolder returns the user's configured scan root, or null when
// none has been chosen yet.
func (s *Server) handleGetRootFolder(c echo.Context) error {
	user := currentUser(c)

	var folderID *string
	if user.RootFolderID != "" {
		folderID = &user.RootFolderID
	}
	return c.JSON(http.StatusOK, map[string]*string{"folder_id": folderID})
}

type setRootFolderRequest struct {
	FolderID string `json:"folder_id"`
}

// handleSetRootFolder validates that the given ID names a reachable Drive
// folder before persisting it as the user's scan root.
func (s *Server) handleSetRootFolder(c echo.Context) error {
	user := currentUser(c)

	var req setRootFolderRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if req.FolderID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("folder_id is required"))
	}

	ctx := c.Request().Context()

	var item *drive.Item
	err := s.withToken(ctx, user, func(token string) error {
		var ferr error
		item, ferr = s.drive.GetFile(ctx, token, req.FolderID)
		return ferr
	})
	if err != nil {
		if errors.Is(err, broker.ErrReauthRequired) {
			return s.reauthResponse(c)
		}
		if errors.Is(err, drive.ErrNotFound) {
			return c.JSON(http.StatusBadRequest, errorBody("folder not found or not accessible"))
		}
		return s.providerErrorResponse(c, user.ID, "validate root folder", err)
	}
	if !item.IsFolder() {
		return c.JSON(http.StatusBadRequest, errorBody("the selected item is not a folder"))
	}

	if err := s.users.SetRootFolder(ctx, user.ID, req.FolderID); err != nil {
		s.logger.Error("persisting root folder",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody("could not save root folder"))
	}

	return c.JSON(http.StatusOK, map[string]string{"folder_id": req.FolderID})
}

// handleListFiles walks the user's scan root and returns every eligible
// book file beneath it. An unset root is not an error: the client gets an
// empty list and a hint to configure one.
func (s *Server) handleListFiles(c echo.Context) error {
	user := currentUser(c)

	if user.RootFolderID == "" {
		return c.JSON(http.StatusOK, map[string]any{
			"files":   []library.File{},
			"message": "no root folder configured",
		})
	}

	ctx := c.Request().Context()

	var files []library.File
	err := s.withToken(ctx, user, func(token string) error {
		var serr error
		files, serr = s.scanner.Scan(ctx, token, user.RootFolderID)
		return serr
	})
	if err != nil {
		if errors.Is(err, broker.ErrReauthRequired) {
			return s.reauthResponse(c)
		}
		var limitErr *library.LimitError
		if errors.As(err, &limitErr) {
			return c.JSON(http.StatusBadRequest, errorBody(limitErr.Error()))
		}
		return s.providerErrorResponse(c, user.ID, "scan files", err)
	}

	if files == nil {
		files = []library.File{}
	}
	return c.JSON(http.StatusOK, map[string]any{"files": files})
}

type downloadRequest struct {
	FileIDs []string `json:"file_ids"`
}

// handleDownload fetches the requested files into the user's local storage.
// The request is validated against a fresh scan so a client can only pull
// files that are currently eligible under the configured root. Files are
// downloaded sequentially; the first failure aborts the batch.
func (s *Server) handleDownload(c echo.Context) error {
	user := currentUser(c)

	var req downloadRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("invalid request body"))
	}
	if len(req.FileIDs) == 0 {
		return c.JSON(http.StatusOK, map[string]any{"downloaded": []string{}})
	}
	if len(req.FileIDs) > s.cfg.Limits.MaxDownloadFiles {
		return c.JSON(http.StatusBadRequest, errorBody(
			fmt.Sprintf("too many files requested: limit is %d per request", s.cfg.Limits.MaxDownloadFiles)))
	}
	if user.RootFolderID == "" {
		return c.JSON(http.StatusBadRequest, errorBody("no root folder configured"))
	}

	ctx := c.Request().Context()

	var eligible []library.File
	err := s.withToken(ctx, user, func(token string) error {
		var serr error
		eligible, serr = s.scanner.Scan(ctx, token, user.RootFolderID)
		return serr
	})
	if err != nil {
		if errors.Is(err, broker.ErrReauthRequired) {
			return s.reauthResponse(c)
		}
		var limitErr *library.LimitError
		if errors.As(err, &limitErr) {
			return c.JSON(http.StatusBadRequest, errorBody(limitErr.Error()))
		}
		return s.providerErrorResponse(c, user.ID, "scan before download", err)
	}

	byID := make(map[string]library.File, len(eligible))
	for _, f := range eligible {
		byID[f.ID] = f
	}
	for _, id := range req.FileIDs {
		if _, ok := byID[id]; !ok {
			return c.JSON(http.StatusBadRequest, errorBody(
				fmt.Sprintf("file %q is not an eligible file under the configured root folder", id)))
		}
	}

	destDir, err := library.UserStoragePath(s.cfg.Storage.Root, user.ID, "drive", "raw")
	if err != nil {
		s.logger.Error("preparing storage directory",
			slog.String("user_id", user.ID), slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody("could not prepare storage"))
	}

	downloaded := make([]string, 0, len(req.FileIDs))
	for _, id := range req.FileIDs {
		file := byID[id]
		destPath := library.ResolveDestPath(destDir, library.SafeFileName(file.Name))

		var saved string
		err := s.withToken(ctx, user, func(token string) error {
			var derr error
			saved, derr = s.downloader.Download(ctx, token, file.ID, destPath, s.cfg.Limits.MaxFileSizeBytes)
			return derr
		})
		if err != nil {
			if errors.Is(err, broker.ErrReauthRequired) {
				return s.reauthResponse(c)
			}
			var sizeErr *library.SizeLimitError
			if errors.As(err, &sizeErr) {
				return c.JSON(http.StatusBadRequest, errorBody(
					fmt.Sprintf("file %q exceeds the %d byte size limit", file.Name, sizeErr.Limit)))
			}
			return s.providerErrorResponse(c, user.ID, "download file", err)
		}
		downloaded = append(downloaded, saved)
	}

	return c.JSON(http.StatusOK, map[string]any{"downloaded": downloaded})
}

// reauthResponse tells the client the stored grant is no longer usable and
// the user must go through the consent flow again.
func (s *Server) reauthResponse(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, errorBody("re-authentication required"))
}

// providerErrorResponse logs the underlying provider failure and returns a
// generic message so upstream error bodies never leak to clients.
func (s *Server) providerErrorResponse(c echo.Context, userID, op string, err error) error {
	s.logger.Error("drive operation failed",
		slog.String("user_id", userID), slog.String("op", op), slog.String("error", err.Error()))
	return c.JSON(http.StatusBadGateway, errorBody("the file provider is currently unavailable"))
}
