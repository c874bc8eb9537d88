package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// compile-time check that *Accounts implements repository.AccountRepository
var _ repository.AccountRepository = (*Accounts)(nil)

// Accounts is the provider-account repository, backed by the shared
// connection pool.
type Accounts struct {
	conn *sql.DB
}

const accountColumns = `id, user_id, provider, provider_account_id, access_token, expires_at, token_type, refresh_token, image, created_at, updated_at`

// Upsert atomically links the account or refreshes its token fields.
//
// This is ONE statement on purpose. A SELECT-then-INSERT pair here would
// let two concurrent logins from the same principal both miss the SELECT
// and insert twice; ON CONFLICT makes SQLite serialize the decision inside
// the statement, so the invariant "one Account per (provider, provider
// account id)" holds with no locking in our code.
//
// On conflict, user_id is deliberately NOT updated: the first user the
// external account was linked to keeps it. Token fields are last-writer-
// wins, which is what "most-recently-written token" means under a race.
func (r *Accounts) Upsert(ctx context.Context, account *model.Account) error {
	now := time.Now().UTC()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO accounts (`+accountColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (provider, provider_account_id) DO UPDATE SET
			access_token  = excluded.access_token,
			expires_at    = excluded.expires_at,
			token_type    = excluded.token_type,
			refresh_token = excluded.refresh_token,
			image         = excluded.image,
			updated_at    = excluded.updated_at`,
		xid.New().String(),
		account.UserID,
		account.Provider,
		account.ProviderAccountID,
		account.AccessToken,
		account.ExpiresAt,
		account.TokenType,
		account.RefreshToken,
		account.Image,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting account (provider=%s, providerAccountID=%s): %w",
			account.Provider, account.ProviderAccountID, err)
	}

	// Read the canonical row back so the caller sees the surviving ID,
	// owner, and timestamps (the insert's id is discarded on conflict).
	return r.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE provider = ? AND provider_account_id = ?`,
		account.Provider, account.ProviderAccountID,
	).Scan(
		&account.ID,
		&account.UserID,
		&account.Provider,
		&account.ProviderAccountID,
		&account.AccessToken,
		&account.ExpiresAt,
		&account.TokenType,
		&account.RefreshToken,
		&account.Image,
		&account.CreatedAt,
		&account.UpdatedAt,
	)
}

// GetByUserAndProvider returns the user's Account link for one provider.
func (r *Accounts) GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.Account, error) {
	var a model.Account

	err := r.conn.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		 WHERE user_id = ? AND provider = ?`,
		userID, provider,
	).Scan(
		&a.ID,
		&a.UserID,
		&a.Provider,
		&a.ProviderAccountID,
		&a.AccessToken,
		&a.ExpiresAt,
		&a.TokenType,
		&a.RefreshToken,
		&a.Image,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("account", fmt.Sprintf("%s/%s", userID, provider))
		}
		return nil, fmt.Errorf("sqlite: getting account (userID=%s, provider=%s): %w", userID, provider, err)
	}

	return &a, nil
}
