package library

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

const (
	maxFileNameLength = 200
	maxSuffixAttempts = 99
	dirPermissions    = 0o755
)

// unsafeChars matches path separators, characters reserved on common
// filesystems, and whitespace runs.
var unsafeChars = regexp.MustCompile(`[\\/:*?"<>|\s]+`)

// SafeFileName turns an arbitrary remote file name into one safe to write
// locally. Names are NFC-normalized first so the same logical name from
// differently-composed Unicode forms maps to one local name.
func SafeFileName(name string) string {
	safe := unsafeChars.ReplaceAllString(norm.NFC.String(name), "_")

	// Truncate by runes, not bytes, so a multi-byte character is never
	// split into invalid UTF-8.
	if utf8.RuneCountInString(safe) > maxFileNameLength {
		runes := []rune(safe)
		safe = string(runes[:maxFileNameLength])
	}

	if safe == "" {
		return "unnamed"
	}

	return safe
}

// UserStoragePath builds and creates the per-user directory
// <root>/users/user_<id>/<parts...>. All downloads are confined under
// this namespace.
func UserStoragePath(root, userID string, parts ...string) (string, error) {
	elems := append([]string{root, "users", "user_" + userID}, parts...)
	path := filepath.Join(elems...)

	if err := os.MkdirAll(path, dirPermissions); err != nil {
		return "", fmt.Errorf("library: creating storage path %s: %w", path, err)
	}

	return path, nil
}

// ResolveDestPath returns the destination path for baseName inside dir,
// appending _1.._99 before the extension when the name is taken. After the
// attempt budget it settles on the _99 name rather than looping forever.
func ResolveDestPath(dir, baseName string) string {
	path := filepath.Join(dir, baseName)
	if !fileExists(path) {
		return path
	}

	ext := filepath.Ext(baseName)
	stem := baseName[:len(baseName)-len(ext)]

	for i := 1; i <= maxSuffixAttempts; i++ {
		path = filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, i, ext))
		if !fileExists(path) {
			return path
		}
	}

	return filepath.Join(dir, fmt.Sprintf("%s_%d%s", stem, maxSuffixAttempts, ext))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
