// Package electrolux is the client for the Electrolux appliance cloud API.
package electrolux

import (
	"acbridge/internal/auth"
	"acbridge/internal/core"
	"acbridge/internal/devices"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const (
	DefaultBaseURL           = "https://api.developer.electrolux.one/api/v1"
	DefaultTimeout           = 10 * time.Second
	DefaultRequestsPerSecond = 5
	DefaultBurst             = 5

	maxResponseBytes = 1 << 20
)

// Config contains Electrolux API configuration
type Config struct {
	BaseURL           string
	APIKey            string
	Timeout           time.Duration
	RequestsPerSecond float64
	Burst             int
}

// ProfileSource resolves the command profile for an appliance
type ProfileSource interface {
	ProfileFor(applianceID string) core.CommandProfile
}

// Client implements devices.Driver against the vendor REST API
type Client struct {
	config   Config
	tokens   core.TokenProvider
	profiles ProfileSource
	base     http.RoundTripper
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// NewClient creates a client. Every request obtains its bearer token from
// tokens, which refreshes as needed.
func NewClient(config Config, tokens core.TokenProvider, profiles ProfileSource, logger *slog.Logger) *Client {
	if config.BaseURL == "" {
		config.BaseURL = DefaultBaseURL
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultTimeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = DefaultRequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = DefaultBurst
	}

	return &Client{
		config:   config,
		tokens:   tokens,
		profiles: profiles,
		base:     http.DefaultTransport,
		limiter:  rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		logger:   logger.With("component", "electrolux"),
	}
}

// ListAppliances returns the appliances linked to the account
func (c *Client) ListAppliances(ctx context.Context) (json.RawMessage, error) {
	return c.get(ctx, "/appliances")
}

// GetApplianceInfo returns static appliance information
func (c *Client) GetApplianceInfo(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return c.get(ctx, appliancePath(applianceID, "info"))
}

// GetApplianceCapabilities returns the appliance's capability model
func (c *Client) GetApplianceCapabilities(ctx context.Context, applianceID string) (json.RawMessage, error) {
	return c.get(ctx, appliancePath(applianceID, "capabilities"))
}

// GetApplianceState returns the current reported state
func (c *Client) GetApplianceState(ctx context.Context, applianceID string) (*core.ApplianceState, error) {
	raw, err := c.get(ctx, appliancePath(applianceID, "state"))
	if err != nil {
		return nil, err
	}
	return core.ParseApplianceState(raw)
}

// SendCommand validates the intent and sends it in one PUT. Invalid intents
// never reach the network.
func (c *Client) SendCommand(ctx context.Context, applianceID string, intent core.CommandIntent) (json.RawMessage, error) {
	profile := c.profiles.ProfileFor(applianceID)
	if err := profile.Validate(intent); err != nil {
		return nil, err
	}

	body, err := json.Marshal(intent)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal command: %w", err)
	}

	c.logger.Info("sending command",
		"appliance_id", applianceID,
		"profile", profile.Name,
		"command", string(body))

	status, respBody, err := c.do(ctx, http.MethodPut, appliancePath(applianceID, "command"), body)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, mapCommandStatus(status, respBody)
	}
	return rawOrEmpty(respBody), nil
}

func (c *Client) get(ctx context.Context, path string) (json.RawMessage, error) {
	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status < 200 || status > 299 {
		return nil, mapStatus(status, body)
	}
	return rawOrEmpty(body), nil
}

// do performs one paced, authenticated request and returns the raw response.
func (c *Client) do(ctx context.Context, method, path string, body []byte) (int, []byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return 0, nil, fmt.Errorf("rate limiter: %w", err)
	}

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("x-api-key", c.config.APIKey)
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	httpClient := &http.Client{
		Timeout: c.config.Timeout,
		Transport: &oauth2.Transport{
			Source: auth.NewTokenSource(ctx, c.tokens),
			Base:   c.base,
		},
	}

	start := time.Now()
	resp, err := httpClient.Do(httpReq)
	if err != nil {
		return 0, nil, c.transportError(ctx, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return 0, nil, fmt.Errorf("%w: failed to read response: %w", core.ErrNetwork, err)
	}

	c.logger.Debug("vendor request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start))

	return resp.StatusCode, respBody, nil
}

// tokenLifecycleErrors are returned by the token source and must reach the
// caller unchanged rather than as network failures.
var tokenLifecycleErrors = []error{
	core.ErrNoAccessToken,
	core.ErrNoRefreshToken,
	core.ErrRefreshTokenExpired,
	core.ErrRefreshFailed,
	core.ErrRefreshTimeout,
	core.ErrRateLimited,
}

func (c *Client) transportError(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		for _, target := range tokenLifecycleErrors {
			if errors.Is(urlErr.Err, target) {
				return urlErr.Err
			}
		}
	}
	return fmt.Errorf("%w: %w", core.ErrNetwork, err)
}

func appliancePath(applianceID, resource string) string {
	return "/appliances/" + url.PathEscape(applianceID) + "/" + resource
}

func rawOrEmpty(body []byte) json.RawMessage {
	if len(bytes.TrimSpace(body)) == 0 {
		return json.RawMessage("{}")
	}
	if !json.Valid(body) {
		quoted, _ := json.Marshal(string(body))
		return quoted
	}
	return json.RawMessage(body)
}

var _ devices.Driver = (*Client)(nil)
