package authservice

import (
	"context"
	"fmt"
	"log"

	"github.com/agroscan/agroscan-core/src/api"
	"github.com/agroscan/agroscan-core/src/models"
	"github.com/agroscan/agroscan-core/src/session"
	"github.com/agroscan/agroscan-core/src/token"
)

const verifyEndpoint = "/api/auth/verify"

// Service is the session core the app talks to: one long-lived instance,
// constructed at startup and handed to every consumer. It composes the
// identity provider, the token lifecycle, the credential store, and the
// observable session state.
type Service struct {
	store    models.CredentialStore
	tokens   *token.Manager
	client   *api.Client
	identity models.IdentityProvider
	session  *session.State
}

// New builds the service and publishes any cached profile so the UI can
// render the last known user before the first network call.
func New(
	ctx context.Context,
	store models.CredentialStore,
	tokens *token.Manager,
	client *api.Client,
	identity models.IdentityProvider,
	sess *session.State,
) *Service {
	s := &Service{
		store:    store,
		tokens:   tokens,
		client:   client,
		identity: identity,
		session:  sess,
	}

	if profile, err := store.LoadProfile(ctx); err == nil && profile != nil {
		sess.Set(profile)
	}

	return s
}

// SignInWithGoogle runs the interactive provider flow, exchanges the
// identity assertion for backend credentials, and publishes the signed-in
// user. Any failure leaves the session at "not authenticated" with no
// partial state behind.
func (s *Service) SignInWithGoogle(ctx context.Context) (*models.UserProfile, error) {
	identity, err := s.identity.SignIn(ctx)
	if err != nil {
		return nil, err
	}

	return s.SignInWithIdentity(ctx, identity)
}

// SignInWithIdentity completes login from an already-obtained identity
// assertion, for embedders that drive the provider flow themselves.
func (s *Service) SignInWithIdentity(ctx context.Context, identity *models.GoogleIdentity) (*models.UserProfile, error) {
	if _, err := s.tokens.Exchange(ctx, identity.IDToken); err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrBackendUnavailable, err)
	}

	profile := identity.Profile
	if err := s.store.SaveProfile(ctx, &profile); err != nil {
		// Roll the credentials back rather than leave a half-written login.
		s.store.Clear(ctx)
		return nil, err
	}

	s.session.Set(&profile)
	return &profile, nil
}

// CheckAuthStatus is the verify-on-resume entry point: with a usable token
// it confirms the session against the backend and refreshes the cached
// profile; any verification failure tears the session down.
func (s *Service) CheckAuthStatus(ctx context.Context) (bool, error) {
	if !s.tokens.IsUsable(ctx) {
		return false, nil
	}

	var profile models.UserProfile
	if err := s.client.Get(ctx, verifyEndpoint, &profile); err != nil {
		s.tokens.Logout(ctx)
		return false, err
	}

	if err := s.store.SaveProfile(ctx, &profile); err != nil {
		s.tokens.Logout(ctx)
		return false, err
	}

	s.session.Set(&profile)
	return true, nil
}

// IsAuthenticated is the synchronous snapshot: credentials stored and not
// yet expired, no network involved.
func (s *Service) IsAuthenticated(ctx context.Context) bool {
	return s.tokens.IsUsable(ctx)
}

// Logout tears down the provider session best-effort, then clears local
// credentials and publishes "signed out". Idempotent.
func (s *Service) Logout(ctx context.Context) error {
	if err := s.identity.SignOut(ctx); err != nil {
		// Provider-side teardown must not block local teardown.
		log.Printf("⚠️  Identity provider sign-out failed: %v", err)
	}

	return s.tokens.Logout(ctx)
}

// CurrentUser returns the most recently published user, or nil.
func (s *Service) CurrentUser() *models.UserProfile {
	return s.session.Current()
}

// Subscribe attaches an observer to the live session; see session.State.
func (s *Service) Subscribe() (<-chan *models.UserProfile, func()) {
	return s.session.Subscribe()
}

// API exposes the authenticated client for the app's own backend calls
// (diagnosis submissions, community feed, and so on).
func (s *Service) API() *api.Client {
	return s.client
}
