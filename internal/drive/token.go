package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
)

// defaultTokenLifetimeSeconds is assumed when the token endpoint omits
// expires_in.
const defaultTokenLifetimeSeconds = 3600

// TokenResponse is the token endpoint's reply to a refresh grant.
// RefreshToken is non-empty only when the provider rotated it.
type TokenResponse struct {
	AccessToken  string
	ExpiresIn    int64
	RefreshToken string
}

type tokenEndpointResponse struct {
	AccessToken      string `json:"access_token"`
	ExpiresIn        int64  `json:"expires_in"`
	RefreshToken     string `json:"refresh_token"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Refresh exchanges a refresh token for a new access token. A provider
// error response (JSON "error" field or non-2xx status) is returned as an
// *APIError so callers can classify it. ExpiresIn is always positive on
// success, defaulting to one hour when the provider omits it.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*TokenResponse, error) {
	form := url.Values{}
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)
	form.Set("refresh_token", refreshToken)
	form.Set("grant_type", "refresh_token")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("drive: creating refresh request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("User-Agent", userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("drive: refresh request: %w", err)
	}
	defer resp.Body.Close()

	// Success bodies carry variable-length tokens (access token plus an
	// id_token under the openid scope) and can well exceed the error-body
	// cap, so only failure responses get a bounded read.
	bodyReader := io.Reader(resp.Body)
	if resp.StatusCode != http.StatusOK {
		bodyReader = io.LimitReader(resp.Body, maxErrorBodyBytes)
	}

	body, err := io.ReadAll(bodyReader)
	if err != nil {
		return nil, fmt.Errorf("drive: reading refresh response: %w", err)
	}

	var ter tokenEndpointResponse
	if err := json.Unmarshal(body, &ter); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{
				StatusCode: resp.StatusCode,
				Body:       string(body),
				Err:        ErrUnauthorized,
			}
		}

		return nil, fmt.Errorf("drive: decoding refresh response: %w", err)
	}

	if ter.Error != "" || resp.StatusCode != http.StatusOK {
		c.logger.Warn("token refresh rejected",
			slog.Int("status", resp.StatusCode),
			slog.String("error", ter.Error),
		)

		return nil, &APIError{
			StatusCode: resp.StatusCode,
			Body:       ter.Error,
			Err:        ErrUnauthorized,
		}
	}

	if ter.AccessToken == "" {
		return nil, fmt.Errorf("drive: token endpoint returned no access_token")
	}

	expiresIn := ter.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = defaultTokenLifetimeSeconds
	}

	return &TokenResponse{
		AccessToken:  ter.AccessToken,
		ExpiresIn:    expiresIn,
		RefreshToken: ter.RefreshToken,
	}, nil
}
