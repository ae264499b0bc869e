// Package httpapi is the HTTP layer in front of the core components: it
// resolves session identity, calls the token broker, and translates
// scanner/downloader results and failures into JSON responses.
//
// The one piece of recovery logic that lives here by design is the
// 401-retry protocol: a provider call that fails unauthorized is retried
// exactly once after a forced token refresh. The broker, scanner, and
// downloader contain no retry loops of their own.
package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/oauth2"

	"github.com/drivebooks/drivebooks/internal/broker"
	"github.com/drivebooks/drivebooks/internal/config"
	"github.com/drivebooks/drivebooks/internal/drive"
	"github.com/drivebooks/drivebooks/internal/library"
	"github.com/drivebooks/drivebooks/internal/store"
	"github.com/drivebooks/drivebooks/internal/vault"
)

// Google OAuth2 endpoints. Overridable in Options for tests.
const (
	defaultAuthURL     = "https://accounts.google.com/o/oauth2/v2/auth"
	defaultTokenURL    = "https://oauth2.googleapis.com/token"
	defaultUserinfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

// outboundGlueTimeout bounds the userinfo call made during login.
const outboundGlueTimeout = 30 * time.Second

// oauthScopes requested at consent: identity plus read-only Drive access.
var oauthScopes = []string{
	"openid", "email", "profile",
	"https://www.googleapis.com/auth/drive.readonly",
}

// Server wires the HTTP routes to the core components.
type Server struct {
	cfg        *config.Config
	users      *store.Store
	vault      *vault.Vault
	broker     *broker.Broker
	scanner    *library.Scanner
	downloader *library.Downloader
	drive      *drive.Client

	oauth       *oauth2.Config
	userinfoURL string
	httpClient  *http.Client

	echo   *echo.Echo
	logger *slog.Logger
}

// Options collects the dependencies for a Server. AuthURL, TokenURL, and
// UserinfoURL default to the Google production endpoints.
type Options struct {
	Config     *config.Config
	Users      *store.Store
	Vault      *vault.Vault
	Broker     *broker.Broker
	Scanner    *library.Scanner
	Downloader *library.Downloader
	Drive      *drive.Client
	Logger     *slog.Logger

	AuthURL     string
	TokenURL    string
	UserinfoURL string
}

// New assembles the echo instance with middleware and routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	if opts.AuthURL == "" {
		opts.AuthURL = defaultAuthURL
	}

	if opts.TokenURL == "" {
		opts.TokenURL = defaultTokenURL
	}

	if opts.UserinfoURL == "" {
		opts.UserinfoURL = defaultUserinfoURL
	}

	s := &Server{
		cfg:         opts.Config,
		users:       opts.Users,
		vault:       opts.Vault,
		broker:      opts.Broker,
		scanner:     opts.Scanner,
		downloader:  opts.Downloader,
		drive:       opts.Drive,
		logger:      opts.Logger,
		userinfoURL: opts.UserinfoURL,
		httpClient:  &http.Client{Timeout: outboundGlueTimeout},
		oauth: &oauth2.Config{
			ClientID:     opts.Config.OAuth.ClientID,
			ClientSecret: opts.Config.Secrets.OAuthClientSecret,
			RedirectURL:  opts.Config.OAuth.RedirectURL,
			Scopes:       oauthScopes,
			Endpoint: oauth2.Endpoint{
				AuthURL:  opts.AuthURL,
				TokenURL: opts.TokenURL,
			},
		},
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))
	e.Use(middleware.Recover())
	e.Use(s.logRequests)

	s.registerRoutes(e)
	s.echo = e

	return s
}

func (s *Server) registerRoutes(e *echo.Echo) {
	e.GET("/auth/google/login", s.handleLogin)
	e.GET("/auth/google/callback", s.handleCallback)
	e.GET("/auth/me", s.handleMe, s.requireSession)
	e.POST("/auth/logout", s.handleLogout)

	d := e.Group("/drive", s.requireSession)
	d.GET("/root-folder", s.handleGetRootFolder)
	d.POST("/root-folder", s.handleSetRootFolder)
	d.GET("/files", s.handleListFiles)
	d.POST("/download", s.handleDownload)
}

// logRequests emits one structured log line per request.
func (s *Server) logRequests(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		err := next(c)

		s.logger.Info("request",
			slog.String("method", c.Request().Method),
			slog.String("path", c.Request().URL.Path),
			slog.Int("status", c.Response().Status),
			slog.Duration("duration", time.Since(start)),
			slog.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
		)

		return err
	}
}

// Start begins serving on the configured listen address. Blocks until
// Shutdown or a listener error.
func (s *Server) Start() error {
	s.logger.Info("http server starting", slog.String("addr", s.cfg.Server.ListenAddr))
	return s.echo.Start(s.cfg.Server.ListenAddr)
}

// Shutdown drains in-flight requests and stops the listener.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// Handler exposes the underlying http.Handler for tests.
func (s *Server) Handler() *echo.Echo {
	return s.echo
}

// withToken runs fn with a valid access token, implementing the two-step
// 401 protocol: on drive.ErrUnauthorized it forces one refresh and retries
// fn exactly once. Any other failure, and any failure of the retry,
// propagates as-is.
func (s *Server) withToken(ctx context.Context, user *store.User, fn func(token string) error) error {
	token, err := s.broker.AccessToken(ctx, user, false)
	if err != nil {
		return err
	}

	err = fn(token)
	if err == nil || !errors.Is(err, drive.ErrUnauthorized) {
		return err
	}

	s.logger.Info("provider returned 401, forcing token refresh", slog.String("user_id", user.ID))

	token, err = s.broker.AccessToken(ctx, user, true)
	if err != nil {
		return err
	}

	return fn(token)
}
