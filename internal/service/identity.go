// Package service contains the business logic layer: the identity manager
// and the discussion engine. Services speak in domain terms and domain
// errors; they know nothing about HTTP, and reach storage only through the
// repository interfaces.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/auth"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// ExternalProvider is the capability the identity manager needs from an
// OAuth-style provider: produce a consent URL, trade a code for a provider
// token, and fetch the principal's profile. auth.GoogleProvider implements
// it; tests substitute a fake.
type ExternalProvider interface {
	AuthURL(state string) string
	Exchange(ctx context.Context, code string) (*auth.ProviderToken, error)
	FetchProfile(ctx context.Context, accessToken string) (*auth.ProviderProfile, error)
}

// IdentityConfig is the immutable configuration handed to the identity
// manager at construction. LocalProvider names this deployment's own
// credential realm.
type IdentityConfig struct {
	LocalProvider    model.Provider
	ExternalProvider model.Provider
}

// DefaultIdentityConfig returns the standard provider naming.
func DefaultIdentityConfig() IdentityConfig {
	return IdentityConfig{
		LocalProvider:    model.ProviderLocal,
		ExternalProvider: model.ProviderGoogle,
	}
}

// IdentityService unifies a user's identity across authentication methods,
// issues bearer session tokens, and maintains the per-provider Account
// links. It is the only component that owns User records.
type IdentityService struct {
	users     repository.UserRepository
	accounts  repository.AccountRepository
	tokens    *auth.TokenService
	passwords *auth.PasswordService
	provider  ExternalProvider
	cfg       IdentityConfig
	logger    *slog.Logger
}

// NewIdentityService creates an IdentityService with all dependencies
// injected. provider may be nil when external login is not configured; the
// external entry points then fail with AuthenticationFailed.
func NewIdentityService(
	users repository.UserRepository,
	accounts repository.AccountRepository,
	tokens *auth.TokenService,
	passwords *auth.PasswordService,
	provider ExternalProvider,
	cfg IdentityConfig,
	logger *slog.Logger,
) *IdentityService {
	return &IdentityService{
		users:     users,
		accounts:  accounts,
		tokens:    tokens,
		passwords: passwords,
		provider:  provider,
		cfg:       cfg,
		logger:    logger,
	}
}

// Session is the result of a successful login: the resolved public identity
// plus the freshly issued bearer token and its remaining lifetime.
type Session struct {
	User        *model.User    `json:"user"`
	AccessToken string         `json:"access_token"`
	TokenType   string         `json:"token_type"`
	ExpiresIn   int            `json:"expires_in"` // seconds
	Provider    model.Provider `json:"provider"`
}

// Register creates a new local identity with a bcrypt-hashed password.
func (s *IdentityService) Register(ctx context.Context, givenName, familyName, email, password string) (*model.User, error) {
	email = normalizeEmail(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, apperror.ValidationFailed("email", "a valid email is required")
	}
	if len(password) < 8 {
		return nil, apperror.ValidationFailed("password", "password must be at least 8 characters")
	}

	hash, err := s.passwords.Hash(password)
	if err != nil {
		return nil, apperror.ValidationFailed("password", err.Error())
	}

	user := &model.User{
		GivenName:    strings.TrimSpace(givenName),
		FamilyName:   strings.TrimSpace(familyName),
		Email:        email,
		PasswordHash: hash,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("service/identity: registering user: %w", err)
	}

	s.logger.Info("user registered", slog.String("userID", user.ID))

	return user, nil
}

// LocalLogin authenticates an (email, password) pair.
//
// Unknown email and wrong password produce the same AuthenticationFailed;
// the caller can never learn which emails are registered. On success the
// local Account row is refreshed with the newly issued token, overwriting
// whatever stale token a previous login left there.
func (s *IdentityService) LocalLogin(ctx context.Context, email, password string) (*Session, error) {
	email = normalizeEmail(email)

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.AuthenticationFailed()
		}
		return nil, fmt.Errorf("service/identity: looking up user for login: %w", err)
	}

	// A provider-only user has no password hash; Verify rejects the empty
	// hash the same way it rejects a wrong password.
	if err := s.passwords.Verify(user.PasswordHash, password); err != nil {
		return nil, apperror.AuthenticationFailed()
	}

	token, expiresAt, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/identity: issuing token for user %s: %w", user.ID, err)
	}

	// The local realm has no provider-side account numbering, so the
	// user's own id is the provider-scoped account id. One local Account
	// row per user, same uniqueness key shape as external providers.
	account := &model.Account{
		UserID:            user.ID,
		Provider:          s.cfg.LocalProvider,
		ProviderAccountID: user.ID,
		AccessToken:       token,
		ExpiresAt:         expiresAt,
		TokenType:         "bearer",
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("service/identity: linking local account for user %s: %w", user.ID, err)
	}

	s.logger.Info("user authenticated locally", slog.String("userID", user.ID))

	return &Session{
		User:        user,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		Provider:    s.cfg.LocalProvider,
	}, nil
}

// ExternalLoginURL returns the provider consent URL to redirect the user
// to. state is round-tripped through the provider for CSRF verification.
func (s *IdentityService) ExternalLoginURL(state string) (string, error) {
	if s.provider == nil {
		return "", apperror.AuthenticationFailed()
	}
	return s.provider.AuthURL(state), nil
}

// ExternalLoginComplete finishes the OAuth flow: exchanges the code,
// fetches the profile, resolves or creates the identity by email, issues a
// bearer token, and links the provider Account.
//
// Provider failures are recovered into the uniform AuthenticationFailed;
// the caller never sees ProviderUnavailable.
func (s *IdentityService) ExternalLoginComplete(ctx context.Context, code string) (*Session, error) {
	if s.provider == nil {
		return nil, apperror.AuthenticationFailed()
	}

	providerToken, err := s.provider.Exchange(ctx, code)
	if err != nil {
		s.logger.Warn("provider code exchange failed", slog.String("error", err.Error()))
		return nil, apperror.AuthenticationFailed()
	}

	profile, err := s.provider.FetchProfile(ctx, providerToken.AccessToken)
	if err != nil {
		s.logger.Warn("provider profile fetch failed", slog.String("error", err.Error()))
		return nil, apperror.AuthenticationFailed()
	}

	email := normalizeEmail(profile.Email)
	if email == "" {
		return nil, apperror.AuthenticationFailed()
	}

	user, err := s.resolveOrCreateUser(ctx, email, profile)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.tokens.Issue(user.Email)
	if err != nil {
		return nil, fmt.Errorf("service/identity: issuing token for user %s: %w", user.ID, err)
	}

	account := &model.Account{
		UserID:            user.ID,
		Provider:          s.cfg.ExternalProvider,
		ProviderAccountID: profile.ID,
		AccessToken:       providerToken.AccessToken,
		ExpiresAt:         providerToken.ExpiresAt,
		TokenType:         providerToken.TokenType,
		RefreshToken:      providerToken.RefreshToken,
		Image:             profile.Picture,
	}
	if err := s.accounts.Upsert(ctx, account); err != nil {
		return nil, fmt.Errorf("service/identity: linking %s account for user %s: %w",
			s.cfg.ExternalProvider, user.ID, err)
	}

	s.logger.Info("user authenticated via provider",
		slog.String("userID", user.ID),
		slog.String("provider", string(s.cfg.ExternalProvider)),
	)

	return &Session{
		User:        user,
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(time.Until(expiresAt).Seconds()),
		Provider:    s.cfg.ExternalProvider,
	}, nil
}

// resolveOrCreateUser finds the identity matching the profile's email or
// creates one from the profile. First match wins: an existing identity is
// reused as-is, its name fields are never overwritten with provider data.
func (s *IdentityService) resolveOrCreateUser(ctx context.Context, email string, profile *auth.ProviderProfile) (*model.User, error) {
	user, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("service/identity: resolving user by email: %w", err)
	}

	user = &model.User{
		GivenName:     profile.GivenName,
		FamilyName:    profile.FamilyName,
		Email:         email,
		EmailVerified: profile.EmailVerified,
	}
	err = s.users.Create(ctx, user)
	if err == nil {
		s.logger.Info("user created from provider profile", slog.String("userID", user.ID))
		return user, nil
	}

	// Lost a create race against a concurrent login with the same email;
	// the row that won is the identity we want.
	if errors.Is(err, apperror.ErrConflict) {
		return s.users.GetByEmail(ctx, email)
	}

	return nil, fmt.Errorf("service/identity: creating user from provider profile: %w", err)
}

// Authenticate verifies a bearer token and resolves the caller's identity.
// Every protected operation goes through here. A structurally valid token
// whose identity has since been removed fails the same way as a forged one.
func (s *IdentityService) Authenticate(ctx context.Context, token string) (*model.User, error) {
	subject, err := s.tokens.Verify(token)
	if err != nil {
		return nil, apperror.Unauthenticated("token is invalid or expired")
	}

	user, err := s.users.GetByEmail(ctx, subject)
	if err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return nil, apperror.Unauthenticated("token is invalid or expired")
		}
		return nil, fmt.Errorf("service/identity: resolving token subject: %w", err)
	}

	return user, nil
}

// VerifyToken checks a token without resolving the identity. Backs the
// public verify-token endpoint.
func (s *IdentityService) VerifyToken(token string) error {
	if _, err := s.tokens.Verify(token); err != nil {
		return apperror.Unauthenticated("token is invalid or expired")
	}
	return nil
}

// ActiveAccount returns the user's Account link for the given provider.
func (s *IdentityService) ActiveAccount(ctx context.Context, userID string, provider model.Provider) (*model.Account, error) {
	account, err := s.accounts.GetByUserAndProvider(ctx, userID, provider)
	if err != nil {
		return nil, err
	}
	return account, nil
}

// GetUserByID returns the user for the given internal ID.
func (s *IdentityService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetByID(ctx, id)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
