package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vstrealm/reviewd/internal/apperror"
)

// DefaultTokenTTL is the session token lifetime used when no explicit TTL
// is configured.
const DefaultTokenTTL = 30 * time.Minute

const tokenIssuer = "reviewd"

// TokenService signs, issues, and verifies bearer session tokens.
//
// Tokens are self-contained JWTs (HS256): the subject claim carries the
// identity's email, the expiry is embedded, and verification is a local
// signature check with no store lookup and no session table. The service never
// refreshes a token; when one expires the caller re-authenticates.
type TokenService struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenService creates a TokenService with the given HMAC secret and
// token lifetime. A non-positive ttl falls back to DefaultTokenTTL.
// The secret should be at least 32 bytes of random data in production
// (e.g. JWT_SECRET=$(openssl rand -hex 32)).
func NewTokenService(secret string, ttl time.Duration) (*TokenService, error) {
	if len(secret) < 16 {
		return nil, errors.New("auth: JWT secret must be at least 16 characters")
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenService{secret: []byte(secret), ttl: ttl}, nil
}

// claims embeds jwt.RegisteredClaims; we use the standard "sub" claim for
// the principal's email.
type claims struct {
	jwt.RegisteredClaims
}

// Issue creates and signs a token for the given subject (the identity's
// email) and returns it together with its expiry instant, so callers can
// report the remaining lifetime without reparsing the token.
func (s *TokenService) Issue(subject string) (string, time.Time, error) {
	return s.IssueWithDuration(subject, s.ttl)
}

// IssueWithDuration creates a token with a custom expiry duration. Used by
// tests to mint already-expired or short-lived tokens.
func (s *TokenService) IssueWithDuration(subject string, d time.Duration) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(d)

	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			Issuer:    tokenIssuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, expiresAt, nil
}

// Verify parses and verifies a token string and returns the subject claim.
//
// Every failure (bad signature, structural garbage, expiry passed, empty
// subject) comes back wrapping apperror.ErrInvalidToken. The service layer
// maps that to Unauthenticated at the boundary; this package never decides
// HTTP semantics.
//
// jwt.WithValidMethods pins the algorithm to HS256 so a token signed with
// "none" (or an attacker-chosen method) is rejected outright.
func (s *TokenService) Verify(tokenStr string) (string, error) {
	token, err := jwt.ParseWithClaims(
		tokenStr,
		&claims{},
		func(token *jwt.Token) (any, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("auth: unexpected signing method: %v", token.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithValidMethods([]string{"HS256"}),
		jwt.WithIssuer(tokenIssuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", fmt.Errorf("%w: token expired", apperror.ErrInvalidToken)
		}
		return "", fmt.Errorf("%w: %v", apperror.ErrInvalidToken, err)
	}

	c, ok := token.Claims.(*claims)
	if !ok || !token.Valid {
		return "", fmt.Errorf("%w: malformed claims", apperror.ErrInvalidToken)
	}

	if c.Subject == "" {
		return "", fmt.Errorf("%w: token has no subject", apperror.ErrInvalidToken)
	}

	return c.Subject, nil
}
