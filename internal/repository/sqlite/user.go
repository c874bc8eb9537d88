package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// compile-time check that *Users implements repository.UserRepository
var _ repository.UserRepository = (*Users)(nil)

// Users is the user repository, backed by the shared connection pool.
type Users struct {
	conn *sql.DB
}

const userColumns = `id, given_name, family_name, email, email_verified, password_hash, created_at, updated_at`

// Create inserts a new user. The email UNIQUE constraint is the source of
// truth for duplicates: a constraint violation maps to ErrConflict rather
// than being pre-checked with a racy SELECT.
func (r *Users) Create(ctx context.Context, user *model.User) error {
	now := time.Now().UTC()
	user.ID = xid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	user.CreatedAt = now
	user.UpdatedAt = now

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO users (`+userColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		user.ID,
		user.GivenName,
		user.FamilyName,
		user.Email,
		user.EmailVerified,
		user.PasswordHash,
		user.CreatedAt,
		user.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", user.Email)
		}
		return fmt.Errorf("sqlite: inserting user (email=%s): %w", user.Email, err)
	}

	return nil
}

// GetByID retrieves a user by internal ID.
func (r *Users) GetByID(ctx context.Context, id string) (*model.User, error) {
	return r.getUser(ctx, `id = ?`, id)
}

// GetByEmail retrieves a user by case-normalized email.
func (r *Users) GetByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.getUser(ctx, `email = ?`, strings.ToLower(strings.TrimSpace(email)))
}

func (r *Users) getUser(ctx context.Context, where string, arg any) (*model.User, error) {
	var u model.User

	err := r.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE `+where, arg,
	).Scan(
		&u.ID,
		&u.GivenName,
		&u.FamilyName,
		&u.Email,
		&u.EmailVerified,
		&u.PasswordHash,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("user", fmt.Sprint(arg))
		}
		return nil, fmt.Errorf("sqlite: getting user (%s): %w", where, err)
	}

	return &u, nil
}

// isUniqueViolation reports whether err is a UNIQUE constraint failure.
// modernc.org/sqlite surfaces these as plain errors carrying the SQLite
// message, so string matching is the portable check.
func isUniqueViolation(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed")
}
