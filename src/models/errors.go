package models

import "errors"

var (
	// ErrNoRefreshToken means a refresh was requested with no refresh token
	// stored. Session state is left untouched.
	ErrNoRefreshToken = errors.New("no refresh token available")

	// ErrRefreshFailed means the backend rejected the refresh token or was
	// unreachable during refresh. The session has been logged out.
	ErrRefreshFailed = errors.New("token refresh failed")

	// ErrIdentityProvider covers cancellation and provider-side failures of
	// the interactive sign-in flow.
	ErrIdentityProvider = errors.New("identity provider error")

	// ErrBackendUnavailable is a generic network-level failure on an API call.
	ErrBackendUnavailable = errors.New("backend unavailable")

	// ErrUnauthorized means the backend returned 401 and the single
	// refresh-and-retry cycle is exhausted.
	ErrUnauthorized = errors.New("unauthorized")
)
