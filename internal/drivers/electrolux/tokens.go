package electrolux

import (
	"acbridge/internal/core"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// TokenEndpoint calls the vendor's refresh endpoint. It uses a plain HTTP
// client: the current access token is attached as-is, expired or not.
type TokenEndpoint struct {
	baseURL    string
	httpClient *http.Client
}

// NewTokenEndpoint creates a refresher for the given API base URL
func NewTokenEndpoint(baseURL string, timeout time.Duration) *TokenEndpoint {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &TokenEndpoint{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

type refreshResponse struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	ExpiresIn             int64  `json:"expiresIn"`
	RefreshTokenExpiresIn int64  `json:"refreshTokenExpiresIn"`
	TokenType             string `json:"tokenType"`
	Scope                 string `json:"scope"`
}

// RefreshTokens implements core.TokenRefresher
func (e *TokenEndpoint) RefreshTokens(ctx context.Context, accessToken, refreshToken string) (*core.RefreshResult, error) {
	bodyBytes, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/token/refresh", bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("Content-Type", "application/json")
	if accessToken != "" {
		httpReq.Header.Set("Authorization", "Bearer "+accessToken)
	}

	resp, err := e.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to send refresh request: %w", core.ErrNetwork, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read refresh response: %w", core.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: wait before retrying: %s", core.ErrRateLimited, vendorMessage(resp.StatusCode, respBody))
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, fmt.Errorf("%w: status %d: %s", core.ErrRefreshFailed, resp.StatusCode, vendorMessage(resp.StatusCode, respBody))
	}

	var parsed refreshResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("%w: failed to parse refresh response: %w", core.ErrRefreshFailed, err)
	}

	return &core.RefreshResult{
		AccessToken:      parsed.AccessToken,
		RefreshToken:     parsed.RefreshToken,
		ExpiresIn:        parsed.ExpiresIn,
		RefreshExpiresIn: parsed.RefreshTokenExpiresIn,
	}, nil
}

var _ core.TokenRefresher = (*TokenEndpoint)(nil)
