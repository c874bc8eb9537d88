package model

import "time"

// Provider tags the authentication route an Account belongs to.
//
// ProviderLocal is the name of this deployment's own credential realm.
// Local Accounts use the user's own id as the provider-scoped account id,
// so every user has at most one local Account row.
type Provider string

const (
	ProviderLocal  Provider = "vst-realm"
	ProviderGoogle Provider = "google"
)

// Account links a User to one authentication provider and holds the session
// state last issued through that provider.
//
// Uniqueness is keyed on (provider, provider_account_id): one external
// account can never be linked to two different users. Re-authenticating
// through the same provider identity updates the existing row in place;
// the repository upsert is a single atomic statement, so concurrent logins
// from the same principal converge to one row.
type Account struct {
	ID                string    `json:"id"                db:"id"`
	UserID            string    `json:"userId"            db:"user_id"`
	Provider          Provider  `json:"provider"          db:"provider"`
	ProviderAccountID string    `json:"providerAccountId" db:"provider_account_id"`
	AccessToken       string    `json:"accessToken"       db:"access_token"`
	ExpiresAt         time.Time `json:"expiresAt"         db:"expires_at"`
	TokenType         string    `json:"tokenType"         db:"token_type"`
	RefreshToken      string    `json:"refreshToken"      db:"refresh_token"` // may be empty
	Image             string    `json:"image"             db:"image"`         // avatar URL, may be empty
	CreatedAt         time.Time `json:"createdAt"         db:"created_at"`
	UpdatedAt         time.Time `json:"updatedAt"         db:"updated_at"`
}
