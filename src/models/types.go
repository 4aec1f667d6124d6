package models

import "time"

// Credentials is the backend-issued token pair plus its expiry. All three
// fields are written and cleared together; a partially populated value is
// never persisted.
type Credentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// Usable reports whether the access token can still be presented to the
// backend at the given instant.
func (c *Credentials) Usable(now time.Time) bool {
	if c == nil || c.AccessToken == "" {
		return false
	}
	return c.ExpiresAt.After(now)
}

// UserProfile is the signed-in user as shown by the app. Email is the
// identifying field; name and picture are optional display data.
type UserProfile struct {
	Email   string `json:"email"`
	Name    string `json:"name,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// TokenResponse is the wire shape of the backend's /api/auth/google and
// /api/auth/refresh endpoints.
type TokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int    `json:"expiresIn"` // seconds until the access token expires
}

// Credentials converts the response into a stored credential set, anchoring
// the relative expiry at the given instant.
func (r *TokenResponse) Credentials(now time.Time) *Credentials {
	return &Credentials{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		ExpiresAt:    now.Add(time.Duration(r.ExpiresIn) * time.Second),
	}
}

// GoogleIdentity is the outcome of an interactive sign-in: the ID token to
// exchange with the backend plus the profile fields Google reported.
type GoogleIdentity struct {
	IDToken string
	Profile UserProfile
}
