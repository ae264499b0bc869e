package library

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/drivebooks/drivebooks/internal/config"
	"github.com/drivebooks/drivebooks/internal/drive"
)

const mib = int64(1024 * 1024)

// fakeDrive is an in-memory folder graph implementing ChildLister.
// pageSize > 0 splits listings into pages to exercise pagination.
type fakeDrive struct {
	children map[string][]drive.Item
	pageSize int

	listCalls int
	err       error
}

func (f *fakeDrive) ListChildren(_ context.Context, _, parentID, pageToken string) (*drive.Page, error) {
	f.listCalls++

	if f.err != nil {
		return nil, f.err
	}

	items := f.children[parentID]

	if f.pageSize <= 0 || len(items) <= f.pageSize {
		if pageToken != "" {
			return nil, fmt.Errorf("unexpected page token %q", pageToken)
		}

		return &drive.Page{Items: items}, nil
	}

	offset := 0
	if pageToken != "" {
		if _, err := fmt.Sscanf(pageToken, "page-%d", &offset); err != nil {
			return nil, err
		}
	}

	end := offset + f.pageSize
	next := ""

	if end < len(items) {
		next = fmt.Sprintf("page-%d", end)
	} else {
		end = len(items)
	}

	return &drive.Page{Items: items[offset:end], NextPageToken: next}, nil
}

func folder(id, name string) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: drive.FolderMimeType}
}

func file(id, name, mime string, size int64) drive.Item {
	return drive.Item{ID: id, Name: name, MimeType: mime, Size: &size}
}

func testLimits() config.Limits {
	return config.Limits{
		MaxFileSizeBytes: 50 * mib,
		MaxScanFolders:   1000,
		MaxScanFiles:     5000,
	}
}

func TestScan_FiltersByTypeAndRecurses(t *testing.T) {
	fd := &fakeDrive{children: map[string][]drive.Item{
		"root": {
			file("f-a", "a.pdf", "application/pdf", 10*mib),
			folder("d-sub", "sub"),
		},
		"d-sub": {
			file("f-b", "b.epub", "application/epub+zip", 5*mib),
			file("f-c", "c.exe", "application/x-msdownload", 1*mib),
		},
	}}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "root")
	require.NoError(t, err)
	require.Len(t, files, 2)

	names := []string{files[0].Name, files[1].Name}
	assert.ElementsMatch(t, []string{"a.pdf", "b.epub"}, names)
}

func TestScan_SizeFiltering(t *testing.T) {
	unknown := drive.Item{ID: "f-u", Name: "unknown.pdf", MimeType: "application/pdf"}

	fd := &fakeDrive{children: map[string][]drive.Item{
		"root": {
			file("f-ok", "small.pdf", "application/pdf", 50*mib),
			file("f-big", "big.pdf", "application/pdf", 51*mib),
			unknown,
		},
	}}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "root")
	require.NoError(t, err)
	require.Len(t, files, 2)

	byName := map[string]File{}
	for _, f := range files {
		byName[f.Name] = f
	}

	assert.Contains(t, byName, "small.pdf")
	// Unknown declared size passes the scan; the downloader enforces the
	// ceiling on actual bytes.
	assert.Contains(t, byName, "unknown.pdf")
	assert.Nil(t, byName["unknown.pdf"].Size)
	assert.NotContains(t, byName, "big.pdf")
}

func TestScan_CycleTerminates(t *testing.T) {
	fd := &fakeDrive{children: map[string][]drive.Item{
		"a": {folder("b", "b"), file("f-1", "one.pdf", "application/pdf", mib)},
		"b": {folder("a", "a"), file("f-2", "two.pdf", "application/pdf", mib)},
	}}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "a")
	require.NoError(t, err)
	assert.Len(t, files, 2)
	// Each folder listed exactly once despite the cycle.
	assert.Equal(t, 2, fd.listCalls)
}

func TestScan_SharedParentVisitedOnce(t *testing.T) {
	fd := &fakeDrive{children: map[string][]drive.Item{
		"root":   {folder("a", "a"), folder("b", "b")},
		"a":      {folder("shared", "shared")},
		"b":      {folder("shared", "shared")},
		"shared": {file("f-1", "one.pdf", "application/pdf", mib)},
	}}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "root")
	require.NoError(t, err)
	assert.Len(t, files, 1)
	assert.Equal(t, 4, fd.listCalls)
}

func TestScan_FolderCeiling(t *testing.T) {
	// A chain of folders deeper than the ceiling.
	children := map[string][]drive.Item{}
	for i := 0; i < 10; i++ {
		children[fmt.Sprintf("d-%d", i)] = []drive.Item{folder(fmt.Sprintf("d-%d", i+1), "next")}
	}

	fd := &fakeDrive{children: children}

	limits := testLimits()
	limits.MaxScanFolders = 5
	s := NewScanner(fd, limits, nil)

	_, err := s.Scan(context.Background(), "tok", "d-0")
	require.Error(t, err)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "folders", limitErr.What)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Contains(t, err.Error(), "folders")

	// The ceiling bounds API calls, not just results.
	assert.LessOrEqual(t, fd.listCalls, limits.MaxScanFolders+1)
}

func TestScan_FileCeiling(t *testing.T) {
	var items []drive.Item
	for i := 0; i < 10; i++ {
		items = append(items, file(fmt.Sprintf("f-%d", i), fmt.Sprintf("book-%d.pdf", i), "application/pdf", mib))
	}

	fd := &fakeDrive{children: map[string][]drive.Item{"root": items}}

	limits := testLimits()
	limits.MaxScanFiles = 3
	s := NewScanner(fd, limits, nil)

	_, err := s.Scan(context.Background(), "tok", "root")
	require.Error(t, err)

	var limitErr *LimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, "eligible files", limitErr.What)
	assert.Contains(t, err.Error(), "files")
}

func TestScan_Pagination(t *testing.T) {
	var items []drive.Item
	for i := 0; i < 7; i++ {
		items = append(items, file(fmt.Sprintf("f-%d", i), fmt.Sprintf("book-%d.epub", i), "application/epub+zip", mib))
	}

	fd := &fakeDrive{children: map[string][]drive.Item{"root": items}, pageSize: 3}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "root")
	require.NoError(t, err)
	assert.Len(t, files, 7)
	assert.Equal(t, 3, fd.listCalls)
}

func TestScan_ProviderErrorPropagates(t *testing.T) {
	fd := &fakeDrive{err: &drive.APIError{StatusCode: 401, Err: drive.ErrUnauthorized}}

	s := NewScanner(fd, testLimits(), nil)

	_, err := s.Scan(context.Background(), "tok", "root")
	assert.ErrorIs(t, err, drive.ErrUnauthorized)
}

func TestScan_SkipsItemsWithoutID(t *testing.T) {
	fd := &fakeDrive{children: map[string][]drive.Item{
		"root": {{Name: "ghost.pdf", MimeType: "application/pdf"}},
	}}

	s := NewScanner(fd, testLimits(), nil)

	files, err := s.Scan(context.Background(), "tok", "root")
	require.NoError(t, err)
	assert.Empty(t, files)
}
