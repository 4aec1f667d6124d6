package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/models"
)

// Client is the authenticated entry point for backend API calls. Every
// request carries the stored bearer token and the device ID, and transparently
// survives a single expired-token 401 via refresh-and-resend.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(cfg *config.APIConfig, tokens models.TokenSource, deviceID string) *Client {
	transport := &Transport{
		Interceptors: []RequestInterceptor{
			BearerAuth(tokens),
			DeviceID(deviceID),
		},
		Handlers: []ResponseHandler{
			RefreshRetry(tokens),
		},
	}

	return &Client{
		baseURL: cfg.BaseURL,
		httpClient: &http.Client{
			Transport: transport,
			Timeout:   cfg.Timeout,
		},
	}
}

// Get performs an authenticated GET and decodes the JSON response into out.
func (c *Client) Get(ctx context.Context, path string, out interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

// Post performs an authenticated POST with a JSON body (nil for empty) and
// decodes the JSON response into out (nil to discard).
func (c *Client) Post(ctx context.Context, path string, in, out interface{}) error {
	return c.do(ctx, http.MethodPost, path, in, out)
}

func (c *Client) do(ctx context.Context, method, path string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// Refresh outcomes surfaced by the pipeline keep their identity so
		// callers can branch on them.
		if errors.Is(err, models.ErrRefreshFailed) || errors.Is(err, models.ErrNoRefreshToken) {
			return err
		}
		return fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return models.ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("api request failed: status %d, body: %s", resp.StatusCode, string(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}

	return nil
}
