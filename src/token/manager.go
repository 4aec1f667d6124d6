package token

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/models"
)

const (
	refreshEndpoint  = "/api/auth/refresh"
	exchangeEndpoint = "/api/auth/google"
)

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Manager owns the token lifecycle: deciding whether the stored access token
// is usable, minting a new one from the refresh token, and tearing the
// session down when that is no longer possible.
//
// Refresh is deduplicated: concurrent callers share a single in-flight
// backend call and all observe its outcome.
type Manager struct {
	store      models.CredentialStore
	session    models.SessionPublisher
	httpClient *http.Client
	baseURL    string
	group      singleflight.Group

	now func() time.Time
}

func NewManager(cfg *config.APIConfig, store models.CredentialStore, session models.SessionPublisher) *Manager {
	return &Manager{
		store:      store,
		session:    session,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    cfg.BaseURL,
		now:        time.Now,
	}
}

// IsUsable reports whether credentials are stored and the access token has
// not expired. It consults only the store and the clock; the backend stays
// the final authority via 401 responses.
func (m *Manager) IsUsable(ctx context.Context) bool {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return false
	}
	return creds.Usable(m.now())
}

// AccessToken returns the stored access token, or "" when none is stored.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	return creds.AccessToken, nil
}

// RefreshToken returns the stored refresh token, or "" when none is stored.
func (m *Manager) RefreshToken(ctx context.Context) (string, error) {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return "", err
	}
	if creds == nil {
		return "", nil
	}
	return creds.RefreshToken, nil
}

// Refresh exchanges the stored refresh token for new credentials and
// persists them, returning the new access token.
//
// Without a stored refresh token it fails with ErrNoRefreshToken and leaves
// the session untouched. Any backend failure logs the session out before
// returning ErrRefreshFailed.
func (m *Manager) Refresh(ctx context.Context) (string, error) {
	token, err, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.refresh(ctx)
	})
	if err != nil {
		return "", err
	}
	return token.(string), nil
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	creds, err := m.store.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to load credentials: %w", err)
	}
	if creds == nil || creds.RefreshToken == "" {
		return "", models.ErrNoRefreshToken
	}

	resp, err := m.postRefresh(ctx, creds.RefreshToken)
	if err != nil {
		m.Logout(ctx)
		return "", fmt.Errorf("%w: %v", models.ErrRefreshFailed, err)
	}

	next := resp.Credentials(m.now())
	if err := m.store.Save(ctx, next); err != nil {
		m.Logout(ctx)
		return "", fmt.Errorf("%w: %v", models.ErrRefreshFailed, err)
	}

	return next.AccessToken, nil
}

// Exchange trades a Google ID token for backend credentials and persists
// them. It is the login-shaped variant of refresh: failures leave the store
// and session untouched.
func (m *Manager) Exchange(ctx context.Context, idToken string) (*models.Credentials, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+exchangeEndpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create exchange request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+idToken)

	resp, err := m.doTokenRequest(req)
	if err != nil {
		return nil, err
	}

	creds := resp.Credentials(m.now())
	if err := m.store.Save(ctx, creds); err != nil {
		return nil, err
	}

	return creds, nil
}

// Logout clears stored credentials and publishes a signed-out session.
// Calling it when already logged out is a no-op.
func (m *Manager) Logout(ctx context.Context) error {
	if err := m.store.Clear(ctx); err != nil {
		return err
	}
	m.session.Set(nil)
	return nil
}

func (m *Manager) postRefresh(ctx context.Context, refreshToken string) (*models.TokenResponse, error) {
	body, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+refreshEndpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return m.doTokenRequest(req)
}

func (m *Manager) doTokenRequest(req *http.Request) (*models.TokenResponse, error) {
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("token request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("token request rejected: status %d, body: %s", resp.StatusCode, string(body))
	}

	var tokenResp models.TokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tokenResp); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if tokenResp.AccessToken == "" || tokenResp.RefreshToken == "" {
		return nil, fmt.Errorf("token response missing fields")
	}

	return &tokenResp, nil
}
