// Package broker hands out currently-valid provider access tokens.
//
// The broker is the only component that mutates stored token fields. A
// call either returns the stored access token (when it is still safely
// valid) or performs exactly one refresh exchange and commits the result
// in a single store write. There are no retry loops here: recovery from an
// out-of-band revocation is the caller's single forced-refresh retry.
package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/drivebooks/drivebooks/internal/drive"
	"github.com/drivebooks/drivebooks/internal/store"
)

// expiryMargin is how close to expiry a stored token may be before it is
// refreshed anyway. This absorbs clock skew and request-processing latency
// so a token does not expire mid-flight.
const expiryMargin = 5 * time.Minute

// ErrReauthRequired means the user must go through consent again: the
// refresh token is missing or the provider rejected it. Terminal for the
// enclosing request; never retried automatically.
var ErrReauthRequired = errors.New("broker: re-authentication required")

// UserStore persists token mutations. Implemented by *store.Store.
type UserStore interface {
	UpdateTokens(ctx context.Context, id, encryptedAccessToken string, encryptedRefreshToken *string, expiresAt time.Time) error
}

// Sealer encrypts and decrypts tokens at rest. Implemented by *vault.Vault.
type Sealer interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

// Refresher exchanges a refresh token at the provider's token endpoint.
// Implemented by *drive.Client.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*drive.TokenResponse, error)
}

// Broker produces valid access tokens for stored user credentials.
type Broker struct {
	users     UserStore
	vault     Sealer
	refresher Refresher
	logger    *slog.Logger

	// now is injected for tests; defaults to time.Now.
	now func() time.Time
}

// New creates a Broker.
func New(users UserStore, vault Sealer, refresher Refresher, logger *slog.Logger) *Broker {
	if logger == nil {
		logger = slog.Default()
	}

	return &Broker{
		users:     users,
		vault:     vault,
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
	}
}

// AccessToken returns a currently-valid access token for the user,
// refreshing via the provider when the stored one is expired, expiring
// within the safety margin, of unknown expiry, or when forceRefresh is
// set. On refresh the new token, expiry, and any rotated refresh token are
// committed in one store write and mirrored onto the passed user record.
func (b *Broker) AccessToken(ctx context.Context, user *store.User, forceRefresh bool) (string, error) {
	if !forceRefresh && b.stillValid(user) {
		token, err := b.vault.Decrypt(user.EncryptedAccessToken)
		if err != nil {
			return "", fmt.Errorf("broker: decrypting access token: %w", err)
		}

		return token, nil
	}

	return b.refresh(ctx, user)
}

// stillValid reports whether the stored token can be returned without a
// network call: a known expiry more than the safety margin in the future.
// Unknown expiry counts as stale.
func (b *Broker) stillValid(user *store.User) bool {
	if user.EncryptedAccessToken == "" || user.AccessTokenExpiresAt == nil {
		return false
	}

	return b.now().Before(user.AccessTokenExpiresAt.Add(-expiryMargin))
}

func (b *Broker) refresh(ctx context.Context, user *store.User) (string, error) {
	refreshToken, err := b.vault.Decrypt(user.EncryptedRefreshToken)
	if err != nil {
		return "", fmt.Errorf("broker: decrypting refresh token: %w", err)
	}

	if refreshToken == "" {
		b.logger.Warn("no refresh token on record", slog.String("user_id", user.ID))
		return "", ErrReauthRequired
	}

	resp, err := b.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		b.logger.Warn("token refresh failed",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)

		return "", fmt.Errorf("%w: %w", ErrReauthRequired, err)
	}

	expiresAt := b.now().UTC().Add(time.Duration(resp.ExpiresIn) * time.Second)

	encAccess, err := b.vault.Encrypt(resp.AccessToken)
	if err != nil {
		return "", fmt.Errorf("broker: encrypting access token: %w", err)
	}

	var encRefresh *string

	if resp.RefreshToken != "" {
		enc, encErr := b.vault.Encrypt(resp.RefreshToken)
		if encErr != nil {
			return "", fmt.Errorf("broker: encrypting refresh token: %w", encErr)
		}

		encRefresh = &enc
	}

	if err := b.users.UpdateTokens(ctx, user.ID, encAccess, encRefresh, expiresAt); err != nil {
		return "", fmt.Errorf("broker: persisting refreshed token: %w", err)
	}

	// Mirror the committed state so the in-memory record never pairs a
	// token with the wrong expiry.
	user.EncryptedAccessToken = encAccess
	user.AccessTokenExpiresAt = &expiresAt

	if encRefresh != nil {
		user.EncryptedRefreshToken = *encRefresh
	}

	b.logger.Info("access token refreshed",
		slog.String("user_id", user.ID),
		slog.Time("expires_at", expiresAt),
		slog.Bool("refresh_token_rotated", encRefresh != nil),
	)

	return resp.AccessToken, nil
}
