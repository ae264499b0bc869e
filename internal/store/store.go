// Package store persists user credential records in an embedded SQLite
// database. Token fields hold ciphertext only; encryption happens in the
// vault package before values reach the store.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// ErrUserNotFound is returned when no record exists for the given id.
var ErrUserNotFound = errors.New("store: user not found")

// User is the credential record for one authenticated user.
// Token fields are vault ciphertext; EncryptedRefreshToken is empty when
// the provider never granted one. AccessTokenExpiresAt is nil when the
// provider did not report a lifetime. RootFolderID is empty until the user
// picks a folder.
type User struct {
	ID                    string
	Email                 string
	Name                  string
	EncryptedAccessToken  string
	EncryptedRefreshToken string
	AccessTokenExpiresAt  *time.Time
	RootFolderID          string
}

// Store wraps the SQLite database and prepared statements.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	getUser       *sql.Stmt
	upsertUser    *sql.Stmt
	updateTokens  *sql.Stmt
	setRootFolder *sql.Stmt
}

// Open opens the database at dbPath, applies pragmas and migrations, and
// prepares statements. Use ":memory:" for tests.
func Open(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening user database", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open sqlite: %w", err)
	}

	// Sole-writer pattern: SQLite serializes writers anyway, and one
	// connection keeps the pool away from per-connection pragmas.
	db.SetMaxOpenConns(1)

	if err := setPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(ctx, db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: prepare statements: %w", err)
	}

	return s, nil
}

// Close releases prepared statements and the underlying database.
func (s *Store) Close() error {
	for _, stmt := range []*sql.Stmt{s.getUser, s.upsertUser, s.updateTokens, s.setRootFolder} {
		if stmt != nil {
			stmt.Close()
		}
	}

	return s.db.Close()
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = FULL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return fmt.Errorf("store: set pragma %q: %w", p, err)
		}
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	s.getUser, err = s.db.PrepareContext(ctx, `
		SELECT id, email, name, encrypted_access_token,
		       COALESCE(encrypted_refresh_token, ''),
		       access_token_expires_at,
		       COALESCE(root_folder_id, '')
		FROM users WHERE id = ?`)
	if err != nil {
		return err
	}

	s.upsertUser, err = s.db.PrepareContext(ctx, `
		INSERT INTO users (id, email, name, encrypted_access_token,
		                   encrypted_refresh_token, access_token_expires_at,
		                   created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			encrypted_access_token = excluded.encrypted_access_token,
			encrypted_refresh_token = COALESCE(excluded.encrypted_refresh_token, users.encrypted_refresh_token),
			access_token_expires_at = excluded.access_token_expires_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}

	s.updateTokens, err = s.db.PrepareContext(ctx, `
		UPDATE users SET
			encrypted_access_token = ?,
			encrypted_refresh_token = COALESCE(?, encrypted_refresh_token),
			access_token_expires_at = ?,
			updated_at = ?
		WHERE id = ?`)
	if err != nil {
		return err
	}

	s.setRootFolder, err = s.db.PrepareContext(ctx, `
		UPDATE users SET root_folder_id = ?, updated_at = ? WHERE id = ?`)

	return err
}

// GetUser loads a user record by id. Returns ErrUserNotFound when absent.
func (s *Store) GetUser(ctx context.Context, id string) (*User, error) {
	var (
		u         User
		expiresAt sql.NullTime
	)

	err := s.getUser.QueryRowContext(ctx, id).Scan(
		&u.ID, &u.Email, &u.Name,
		&u.EncryptedAccessToken, &u.EncryptedRefreshToken,
		&expiresAt, &u.RootFolderID,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}

	if err != nil {
		return nil, fmt.Errorf("store: get user %s: %w", id, err)
	}

	if expiresAt.Valid {
		t := expiresAt.Time.UTC()
		u.AccessTokenExpiresAt = &t
	}

	return &u, nil
}

// UpsertUser creates or updates the identity and token fields on login.
// An empty encryptedRefreshToken keeps any previously stored refresh token
// (repeat consent without offline re-grant must not erase it).
func (s *Store) UpsertUser(ctx context.Context, u *User) error {
	now := time.Now().UTC()

	var refresh any
	if u.EncryptedRefreshToken != "" {
		refresh = u.EncryptedRefreshToken
	}

	var expiry any
	if u.AccessTokenExpiresAt != nil {
		expiry = u.AccessTokenExpiresAt.UTC()
	}

	if _, err := s.upsertUser.ExecContext(ctx,
		u.ID, u.Email, u.Name, u.EncryptedAccessToken, refresh, expiry, now, now,
	); err != nil {
		return fmt.Errorf("store: upsert user %s: %w", u.ID, err)
	}

	return nil
}

// UpdateTokens commits the result of a token refresh in a single write.
// encryptedRefreshToken is nil when the provider did not rotate it, which
// keeps the stored value.
func (s *Store) UpdateTokens(ctx context.Context, id, encryptedAccessToken string, encryptedRefreshToken *string, expiresAt time.Time) error {
	var refresh any
	if encryptedRefreshToken != nil {
		refresh = *encryptedRefreshToken
	}

	res, err := s.updateTokens.ExecContext(ctx,
		encryptedAccessToken, refresh, expiresAt.UTC(), time.Now().UTC(), id,
	)
	if err != nil {
		return fmt.Errorf("store: update tokens for %s: %w", id, err)
	}

	return requireRowAffected(res, id)
}

// SetRootFolder persists the validated scan root for a user.
func (s *Store) SetRootFolder(ctx context.Context, id, folderID string) error {
	res, err := s.setRootFolder.ExecContext(ctx, folderID, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("store: set root folder for %s: %w", id, err)
	}

	return requireRowAffected(res, id)
}

func requireRowAffected(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: rows affected: %w", err)
	}

	if n == 0 {
		return ErrUserNotFound
	}

	return nil
}
