package drive

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
)

const userAgent = "drivebooks/0.1"

// DefaultAPIBase is the Google Drive v3 API base URL.
const DefaultAPIBase = "https://www.googleapis.com/drive/v3"

// DefaultTokenURL is the Google OAuth2 token endpoint.
const DefaultTokenURL = "https://oauth2.googleapis.com/token"

// Client is an HTTP client for the Drive API. It handles request
// construction, bearer authentication, and error classification.
// Timeouts come from the injected http.Clients; there is no retry layer.
type Client struct {
	apiBase  string
	tokenURL string

	clientID     string
	clientSecret string

	// httpClient serves metadata and listing calls; downloadClient serves
	// streaming content calls and carries a longer timeout.
	httpClient     *http.Client
	downloadClient *http.Client

	logger *slog.Logger
}

// Options configures a Client. Zero-value URL fields fall back to the
// Google production endpoints; tests point them at httptest servers.
type Options struct {
	APIBase        string
	TokenURL       string
	ClientID       string
	ClientSecret   string
	HTTPClient     *http.Client
	DownloadClient *http.Client
	Logger         *slog.Logger
}

// NewClient creates a Drive API client.
func NewClient(opts Options) *Client {
	if opts.APIBase == "" {
		opts.APIBase = DefaultAPIBase
	}

	if opts.TokenURL == "" {
		opts.TokenURL = DefaultTokenURL
	}

	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	if opts.DownloadClient == nil {
		opts.DownloadClient = opts.HTTPClient
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Client{
		apiBase:        opts.APIBase,
		tokenURL:       opts.TokenURL,
		clientID:       opts.ClientID,
		clientSecret:   opts.ClientSecret,
		httpClient:     opts.HTTPClient,
		downloadClient: opts.DownloadClient,
		logger:         opts.Logger,
	}
}

// do executes a single bearer-authenticated request against the Drive API
// and classifies non-2xx responses. The caller closes the response body on
// success. No retries: a timeout or 5xx surfaces as-is.
func (c *Client) do(ctx context.Context, httpClient *http.Client, accessToken, method, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.apiBase+path, nil)
	if err != nil {
		return nil, fmt.Errorf("drive: creating request: %w", err)
	}

	req.Header.Set("Authorization", "Bearer "+accessToken)
	req.Header.Set("User-Agent", userAgent)

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive: %s %s: %w", method, path, err)
	}

	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices {
		c.logger.Debug("request succeeded",
			slog.String("method", method),
			slog.Int("status", resp.StatusCode),
		)

		return resp, nil
	}

	errBody, readErr := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	resp.Body.Close()

	if readErr != nil {
		errBody = []byte("(failed to read response body)")
	}

	c.logger.Warn("request failed",
		slog.String("method", method),
		slog.Int("status", resp.StatusCode),
	)

	return nil, &APIError{
		StatusCode: resp.StatusCode,
		Body:       string(errBody),
		Err:        classifyStatus(resp.StatusCode),
	}
}

// maxErrorBodyBytes caps how much of an error response is retained.
const maxErrorBodyBytes = 4096
