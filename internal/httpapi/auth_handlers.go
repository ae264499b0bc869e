package httpapi

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"golang.org/x/oauth2"

	"github.com/drivebooks/drivebooks/internal/store"
)

// stateCookieName carries the OAuth CSRF state between login and callback.
const stateCookieName = "oauth_state"

// stateCookieMaxAge bounds the OAuth CSRF state cookie lifetime.
const stateCookieMaxAge = 10 * time.Minute

const stateTokenBytes = 16

// handleLogin redirects to Google's consent page. A random state value
// goes both into the redirect URL and into a short-lived cookie so the
// callback can verify the request was not forged.
func (s *Server) handleLogin(c echo.Context) error {
	state, err := generateState()
	if err != nil {
		s.logger.Error("generating oauth state", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}

	c.SetCookie(&http.Cookie{
		Name:     stateCookieName,
		Value:    state,
		Path:     "/",
		MaxAge:   int(stateCookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	// access_type=offline and prompt=consent so Google grants a refresh
	// token; without them repeat logins return only an access token.
	url := s.oauth.AuthCodeURL(state,
		oauth2.AccessTypeOffline,
		oauth2.SetAuthURLParam("prompt", "consent"),
	)

	return c.Redirect(http.StatusFound, url)
}

// handleCallback validates the state cookie, exchanges the authorization
// code for tokens, stores the user with encrypted tokens, and issues a
// session cookie. The session JWT travels only in the cookie, never in
// the redirect URL.
func (s *Server) handleCallback(c echo.Context) error {
	if errParam := c.QueryParam("error"); errParam != "" {
		return c.JSON(http.StatusBadRequest, errorBody("oauth error: "+errParam))
	}

	code := c.QueryParam("code")
	state := c.QueryParam("state")

	if code == "" || state == "" {
		return c.JSON(http.StatusBadRequest, errorBody("missing code or state"))
	}

	stateCookie, err := c.Cookie(stateCookieName)
	if err != nil || subtle.ConstantTimeCompare([]byte(stateCookie.Value), []byte(state)) != 1 {
		return c.JSON(http.StatusBadRequest, errorBody("invalid or expired state; please try logging in again"))
	}

	ctx := c.Request().Context()

	tok, err := s.oauth.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("token exchange failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusBadRequest, errorBody("token exchange failed"))
	}

	info, err := s.fetchUserinfo(ctx, tok.AccessToken)
	if err != nil {
		s.logger.Warn("userinfo fetch failed", slog.String("error", err.Error()))
		return c.JSON(http.StatusBadRequest, errorBody("could not load user profile"))
	}

	if err := s.saveUser(c, info, tok); err != nil {
		s.logger.Error("persisting user after login", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}

	session, err := s.issueSessionToken(info.Sub, time.Now().UTC())
	if err != nil {
		s.logger.Error("issuing session token", slog.String("error", err.Error()))
		return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
	}

	s.setSessionCookie(c, session)
	s.clearCookie(c, stateCookieName)

	s.logger.Info("user logged in", slog.String("user_id", info.Sub))

	return c.Redirect(http.StatusFound, s.cfg.Server.FrontendURL+"/login/success")
}

// userinfo is the subset of the OIDC userinfo response the server needs.
type userinfo struct {
	Sub   string `json:"sub"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// fetchUserinfo loads the OIDC profile for the freshly issued token.
func (s *Server) fetchUserinfo(ctx context.Context, accessToken string) (*userinfo, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.userinfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating userinfo request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("userinfo request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("userinfo returned HTTP %d", resp.StatusCode)
	}

	var info userinfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("decoding userinfo: %w", err)
	}

	if info.Sub == "" || info.Email == "" {
		return nil, fmt.Errorf("userinfo missing sub or email")
	}

	return &info, nil
}

func (s *Server) saveUser(c echo.Context, info *userinfo, tok *oauth2.Token) error {
	encAccess, err := s.vault.Encrypt(tok.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}

	encRefresh, err := s.vault.Encrypt(tok.RefreshToken)
	if err != nil {
		return fmt.Errorf("encrypting refresh token: %w", err)
	}

	u := &store.User{
		ID:                    info.Sub,
		Email:                 info.Email,
		Name:                  info.Name,
		EncryptedAccessToken:  encAccess,
		EncryptedRefreshToken: encRefresh,
	}

	if !tok.Expiry.IsZero() {
		expiry := tok.Expiry.UTC()
		u.AccessTokenExpiresAt = &expiry
	}

	return s.users.UpsertUser(c.Request().Context(), u)
}

// handleMe returns the current user's profile.
func (s *Server) handleMe(c echo.Context) error {
	u := currentUser(c)

	return c.JSON(http.StatusOK, map[string]string{
		"id":    u.ID,
		"email": u.Email,
		"name":  u.Name,
	})
}

// handleLogout clears the session cookie.
func (s *Server) handleLogout(c echo.Context) error {
	s.clearCookie(c, s.cfg.Session.CookieName)
	return c.JSON(http.StatusOK, map[string]bool{"ok": true})
}

func generateState() (string, error) {
	b := make([]byte, stateTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}

	return hex.EncodeToString(b), nil
}
