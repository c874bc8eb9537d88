// Package sqlite implements the repository interfaces on SQLite via
// modernc.org/sqlite (pure Go, no CGo).
//
// The store carries the concurrency contracts the services rely on:
//   - Account and Vote upserts are single INSERT ... ON CONFLICT DO UPDATE
//     statements, so two concurrent logins (or votes) from the same
//     principal converge to one row instead of racing a read-then-write.
//   - Reply-id appends are a single UPDATE using json_insert, an atomic
//     single-field append, never a full-row replace built from a stale
//     read.
package sqlite

import (
	"database/sql"
	"fmt"

	// Side-effect import: registers the "sqlite" driver with database/sql.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and carries one repository per entity,
// all sharing the pool (see the compile-time checks in the sibling files).
type DB struct {
	conn *sql.DB

	Users    *Users
	Accounts *Accounts
	Comments *Comments
	Votes    *Votes
}

// New opens the database at dbPath (":memory:" for tests), verifies the
// connection, and runs migrations.
func New(dbPath string) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// One connection: SQLite allows a single writer anyway, and a pool of
	// one turns SQLITE_BUSY into queueing. It also makes ":memory:" behave:
	// every pool connection would otherwise get its own empty database.
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL allows concurrent reads while a write is in flight; one request
	// per goroutine means the store sees plenty of interleaving.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{
		conn:     conn,
		Users:    &Users{conn: conn},
		Accounts: &Accounts{conn: conn},
		Comments: &Comments{conn: conn},
		Votes:    &Votes{conn: conn},
	}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the connection pool. Always defer this next to New.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate creates the schema. CREATE TABLE IF NOT EXISTS keeps it safe to
// run on every start.
func (db *DB) migrate() error {
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			id             TEXT PRIMARY KEY,
			given_name     TEXT NOT NULL DEFAULT '',
			family_name    TEXT NOT NULL DEFAULT '',
			email          TEXT NOT NULL UNIQUE,
			email_verified INTEGER NOT NULL DEFAULT 0,
			password_hash  TEXT NOT NULL DEFAULT '',
			created_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at     DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Uniqueness is (provider, provider_account_id), not (user_id, ...):
	// one external account can never be linked to two local users, even
	// when two logins race.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS accounts (
			id                  TEXT PRIMARY KEY,
			user_id             TEXT NOT NULL REFERENCES users(id),
			provider            TEXT NOT NULL,
			provider_account_id TEXT NOT NULL,
			access_token        TEXT NOT NULL DEFAULT '',
			expires_at          DATETIME NOT NULL,
			token_type          TEXT NOT NULL DEFAULT '',
			refresh_token       TEXT NOT NULL DEFAULT '',
			image               TEXT NOT NULL DEFAULT '',
			created_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at          DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (provider, provider_account_id)
		);
		CREATE INDEX IF NOT EXISTS idx_accounts_user_id ON accounts(user_id);
	`)
	if err != nil {
		return fmt.Errorf("creating accounts table: %w", err)
	}

	// replies is a JSON array of child comment ids, the flat-adjacency
	// reply tree. updated_at is NULL until the first reply lands.
	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS comments (
			id         TEXT PRIMARY KEY,
			message    TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			product_id TEXT NOT NULL DEFAULT '',
			is_reply   INTEGER NOT NULL DEFAULT 0,
			replies    TEXT NOT NULL DEFAULT '[]',
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME
		);
		CREATE INDEX IF NOT EXISTS idx_comments_product_id ON comments(product_id);
		CREATE INDEX IF NOT EXISTS idx_comments_created_at ON comments(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating comments table: %w", err)
	}

	_, err = db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS votes (
			id         TEXT PRIMARY KEY,
			comment_id TEXT NOT NULL,
			user_id    TEXT NOT NULL,
			action     TEXT NOT NULL CHECK (action IN ('upvote', 'downvote')),
			created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
			UNIQUE (comment_id, user_id)
		);
		CREATE INDEX IF NOT EXISTS idx_votes_comment_id ON votes(comment_id);
	`)
	if err != nil {
		return fmt.Errorf("creating votes table: %w", err)
	}

	return nil
}
