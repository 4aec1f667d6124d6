package models

import "context"

// CredentialStore persists the token triple and the cached profile fields.
type CredentialStore interface {
	// Save writes all credential fields atomically.
	Save(ctx context.Context, creds *Credentials) error
	// Load returns the stored credentials, or (nil, nil) when absent. A set
	// with any token field missing is reported as absent.
	Load(ctx context.Context) (*Credentials, error)
	// SaveProfile caches the profile fields alongside the credentials.
	SaveProfile(ctx context.Context, profile *UserProfile) error
	// LoadProfile returns the cached profile, or (nil, nil) when absent.
	LoadProfile(ctx context.Context) (*UserProfile, error)
	// Clear removes credentials and cached profile fields.
	Clear(ctx context.Context) error
	Close() error
}

// TokenSource is the slice of the token lifecycle the request pipeline needs.
type TokenSource interface {
	// AccessToken returns the stored access token, or "" when none.
	AccessToken(ctx context.Context) (string, error)
	// Refresh mints a new access token from the stored refresh token.
	Refresh(ctx context.Context) (string, error)
}

// IdentityProvider is the third-party sign-in adapter.
type IdentityProvider interface {
	SignIn(ctx context.Context) (*GoogleIdentity, error)
	SignOut(ctx context.Context) error
}

// SessionPublisher receives the current user whenever it changes.
type SessionPublisher interface {
	// Set publishes the signed-in user; nil means signed out.
	Set(profile *UserProfile)
	// Current returns the most recently published value.
	Current() *UserProfile
}
