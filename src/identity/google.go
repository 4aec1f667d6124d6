package identity

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os/exec"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/agroscan/agroscan-core/src/config"
	"github.com/agroscan/agroscan-core/src/models"
)

const (
	userInfoURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	revokeURL   = "https://oauth2.googleapis.com/revoke"

	callbackPath = "/callback"
)

type googleUserInfo struct {
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	Name          string `json:"name"`
	Picture       string `json:"picture"`
}

type callbackResult struct {
	state string
	code  string
	err   string
}

// GoogleProvider runs the interactive Google sign-in: it opens the consent
// page in a browser, receives the redirect on a short-lived loopback
// listener, and exchanges the code for an ID token plus profile fields.
type GoogleProvider struct {
	oauth       *oauth2.Config
	httpClient  *http.Client
	openBrowser func(url string) error
	lastToken   string
}

func NewGoogleProvider(cfg *config.GoogleConfig) *GoogleProvider {
	return &GoogleProvider{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Endpoint:     google.Endpoint,
			RedirectURL:  fmt.Sprintf("http://localhost:%d%s", cfg.RedirectPort, callbackPath),
			Scopes:       []string{"openid", "email", "profile"},
		},
		httpClient:  &http.Client{Timeout: 10 * time.Second},
		openBrowser: openBrowser,
	}
}

// SignIn drives the full interactive flow. Cancellation of ctx (the user
// giving up, the app closing the screen) surfaces as ErrIdentityProvider,
// never as a hang.
func (p *GoogleProvider) SignIn(ctx context.Context) (*models.GoogleIdentity, error) {
	state, err := generateState()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIdentityProvider, err)
	}

	results := make(chan callbackResult, 1)
	shutdown, err := p.startCallbackListener(results)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIdentityProvider, err)
	}
	defer shutdown()

	authURL := p.oauth.AuthCodeURL(state, oauth2.AccessTypeOffline)
	if err := p.openBrowser(authURL); err != nil {
		log.Printf("⚠️  Could not open browser, visit manually: %s", authURL)
	}

	var result callbackResult
	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("%w: sign-in cancelled: %v", models.ErrIdentityProvider, ctx.Err())
	case result = <-results:
	}

	if result.err != "" {
		return nil, fmt.Errorf("%w: provider returned %q", models.ErrIdentityProvider, result.err)
	}
	if result.state != state {
		return nil, fmt.Errorf("%w: state mismatch", models.ErrIdentityProvider)
	}
	if result.code == "" {
		return nil, fmt.Errorf("%w: missing authorization code", models.ErrIdentityProvider)
	}

	token, err := p.oauth.Exchange(ctx, result.code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange failed: %v", models.ErrIdentityProvider, err)
	}

	idToken, _ := token.Extra("id_token").(string)
	if idToken == "" {
		return nil, fmt.Errorf("%w: no ID token in provider response", models.ErrIdentityProvider)
	}
	p.lastToken = token.AccessToken

	profile, err := profileFromIDToken(idToken)
	if err != nil {
		// The ID token is still good for the backend exchange; fall back to
		// the userinfo endpoint for display fields.
		profile, err = p.fetchUserInfo(token.AccessToken)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrIdentityProvider, err)
		}
	}

	return &models.GoogleIdentity{IDToken: idToken, Profile: *profile}, nil
}

// SignOut revokes the provider-side grant, best effort. The caller clears
// local state regardless of the outcome.
func (p *GoogleProvider) SignOut(ctx context.Context) error {
	if p.lastToken == "" {
		return nil
	}

	form := url.Values{"token": {p.lastToken}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, revokeURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to revoke token: %w", err)
	}
	resp.Body.Close()
	p.lastToken = ""

	return nil
}

func (p *GoogleProvider) startCallbackListener(results chan<- callbackResult) (func(), error) {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET(callbackPath, func(c *gin.Context) {
		result := callbackResult{
			state: c.Query("state"),
			code:  c.Query("code"),
			err:   c.Query("error"),
		}

		select {
		case results <- result:
		default:
		}

		c.String(http.StatusOK, "Sign-in complete. You can close this tab and return to AgroScan.")
	})

	redirect, err := url.Parse(p.oauth.RedirectURL)
	if err != nil {
		return nil, err
	}

	srv := &http.Server{Addr: redirect.Host, Handler: r}
	errs := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errs <- err
		}
	}()

	// Give a bind failure a moment to surface before the browser opens.
	select {
	case err := <-errs:
		return nil, err
	case <-time.After(50 * time.Millisecond):
	}

	shutdown := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}

	return shutdown, nil
}

func (p *GoogleProvider) fetchUserInfo(accessToken string) (*models.UserProfile, error) {
	req, err := http.NewRequest(http.MethodGet, userInfoURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch user info: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("failed to fetch user info: status %d, body: %s", resp.StatusCode, string(body))
	}

	var info googleUserInfo
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return nil, fmt.Errorf("failed to decode user info: %w", err)
	}
	if info.Email == "" {
		return nil, fmt.Errorf("user info missing email")
	}

	return &models.UserProfile{
		Email:   info.Email,
		Name:    info.Name,
		Picture: info.Picture,
	}, nil
}

// profileFromIDToken reads the profile claims without verifying the
// signature. Verification is the backend's job during the exchange; the
// client only needs display fields.
func profileFromIDToken(idToken string) (*models.UserProfile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, claims); err != nil {
		return nil, fmt.Errorf("failed to parse ID token: %w", err)
	}

	email, _ := claims["email"].(string)
	if email == "" {
		return nil, fmt.Errorf("ID token missing email claim")
	}

	profile := &models.UserProfile{Email: email}
	if name, ok := claims["name"].(string); ok {
		profile.Name = name
	}
	if picture, ok := claims["picture"].(string); ok {
		profile.Picture = picture
	}

	return profile, nil
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate random state: %w", err)
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

func openBrowser(url string) error {
	switch runtime.GOOS {
	case "darwin":
		return exec.Command("open", url).Start()
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url).Start()
	default:
		return exec.Command("xdg-open", url).Start()
	}
}
