package drive

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRefresh_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, http.MethodPost, r.Method)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.PostForm.Get("grant_type"))
		assert.Equal(t, "old-refresh", r.PostForm.Get("refresh_token"))
		assert.Equal(t, "test-client", r.PostForm.Get("client_id"))
		assert.Equal(t, "test-secret", r.PostForm.Get("client_secret"))

		_, _ = w.Write([]byte(`{"access_token": "new-access", "expires_in": 1800}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	tok, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "new-access", tok.AccessToken)
	assert.Equal(t, int64(1800), tok.ExpiresIn)
	assert.Empty(t, tok.RefreshToken)
}

func TestRefresh_LargeSuccessResponse(t *testing.T) {
	// Google includes an id_token JWT in refresh replies under the openid
	// scope, pushing valid responses past the 4 KiB error-body cap. The
	// full success body must be read, not truncated.
	accessToken := strings.Repeat("a", 3000)
	idToken := strings.Repeat("j", 2500)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		resp := map[string]any{
			"access_token": accessToken,
			"expires_in":   3600,
			"id_token":     idToken,
			"scope":        "openid email profile https://www.googleapis.com/auth/drive.readonly",
			"token_type":   "Bearer",
		}
		require.NoError(t, json.NewEncoder(w).Encode(resp))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	tok, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, accessToken, tok.AccessToken)
	assert.Equal(t, int64(3600), tok.ExpiresIn)
}

func TestRefresh_DefaultLifetimeWhenAbsent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token": "new-access"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	tok, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, int64(defaultTokenLifetimeSeconds), tok.ExpiresIn)
}

func TestRefresh_RotatedRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"access_token": "new-access", "expires_in": 3600, "refresh_token": "rotated"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	tok, err := c.Refresh(context.Background(), "old-refresh")
	require.NoError(t, err)
	assert.Equal(t, "rotated", tok.RefreshToken)
}

func TestRefresh_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": "invalid_grant", "error_description": "Token has been revoked."}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Refresh(context.Background(), "revoked-refresh")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_ErrorFieldWith200(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"error": "invalid_grant"}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Refresh(context.Background(), "revoked-refresh")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefresh_MissingAccessToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)

	_, err := c.Refresh(context.Background(), "old-refresh")
	assert.Error(t, err)
}
