package httpapi

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/drivebooks/drivebooks/internal/store"
)

// userContextKey is the echo context key holding the authenticated user.
const userContextKey = "drivebooks.user"

// issueSessionToken creates a signed session JWT for the user.
func (s *Server) issueSessionToken(userID string, now time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.Session.TTLDuration())),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)

	signed, err := token.SignedString([]byte(s.cfg.Secrets.SessionSecret))
	if err != nil {
		return "", fmt.Errorf("httpapi: signing session token: %w", err)
	}

	return signed, nil
}

// parseSessionToken verifies a session JWT and returns the subject.
func (s *Server) parseSessionToken(raw string) (string, error) {
	var claims jwt.RegisteredClaims

	_, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return []byte(s.cfg.Secrets.SessionSecret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return "", err
	}

	if claims.Subject == "" {
		return "", errors.New("httpapi: session token missing subject")
	}

	return claims.Subject, nil
}

// requireSession is middleware that resolves the session cookie to a user
// record and stores it on the context. Requests without a valid session
// get a 401 before any core component runs.
func (s *Server) requireSession(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		cookie, err := c.Cookie(s.cfg.Session.CookieName)
		if err != nil || cookie.Value == "" {
			return c.JSON(http.StatusUnauthorized, errorBody("not authenticated"))
		}

		userID, err := s.parseSessionToken(cookie.Value)
		if err != nil {
			s.logger.Debug("rejecting session token", slog.String("error", err.Error()))
			return c.JSON(http.StatusUnauthorized, errorBody("invalid or expired session"))
		}

		user, err := s.users.GetUser(c.Request().Context(), userID)
		if errors.Is(err, store.ErrUserNotFound) {
			return c.JSON(http.StatusUnauthorized, errorBody("user not found"))
		}

		if err != nil {
			s.logger.Error("loading session user", slog.String("error", err.Error()))
			return c.JSON(http.StatusInternalServerError, errorBody("internal error"))
		}

		c.Set(userContextKey, user)

		return next(c)
	}
}

// currentUser returns the user stored by requireSession.
func currentUser(c echo.Context) *store.User {
	u, _ := c.Get(userContextKey).(*store.User)
	return u
}

// setSessionCookie writes the session JWT as an HttpOnly cookie.
func (s *Server) setSessionCookie(c echo.Context, token string) {
	c.SetCookie(&http.Cookie{
		Name:     s.cfg.Session.CookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   int(s.cfg.Session.TTLDuration().Seconds()),
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// clearCookie expires a cookie by name.
func (s *Server) clearCookie(c echo.Context, name string) {
	c.SetCookie(&http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   s.cfg.Server.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}
