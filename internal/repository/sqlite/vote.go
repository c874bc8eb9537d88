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

// compile-time check that *Votes implements repository.VoteRepository
var _ repository.VoteRepository = (*Votes)(nil)

// Votes is the vote repository, backed by the shared connection pool.
type Votes struct {
	conn *sql.DB
}

const voteColumns = `id, comment_id, user_id, action, created_at, updated_at`

// Upsert records or flips the user's vote on a comment in one statement.
// Same contract as the account upsert: the (comment_id, user_id) decision
// happens inside SQLite, so N concurrent votes from one user leave exactly
// one row, carrying whichever action landed last.
func (r *Votes) Upsert(ctx context.Context, vote *model.Vote) error {
	now := time.Now().UTC()

	_, err := r.conn.ExecContext(ctx,
		`INSERT INTO votes (`+voteColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?)
		 ON CONFLICT (comment_id, user_id) DO UPDATE SET
			action     = excluded.action,
			updated_at = excluded.updated_at`,
		xid.New().String(),
		vote.CommentID,
		vote.UserID,
		vote.Action,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("sqlite: upserting vote (commentID=%s, userID=%s): %w",
			vote.CommentID, vote.UserID, err)
	}

	// Read the surviving row back for canonical ID and timestamps.
	return r.conn.QueryRowContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE comment_id = ? AND user_id = ?`,
		vote.CommentID, vote.UserID,
	).Scan(
		&vote.ID,
		&vote.CommentID,
		&vote.UserID,
		&vote.Action,
		&vote.CreatedAt,
		&vote.UpdatedAt,
	)
}

// GetByCommentAndUser returns the user's current vote on a comment.
func (r *Votes) GetByCommentAndUser(ctx context.Context, commentID, userID string) (*model.Vote, error) {
	var v model.Vote

	err := r.conn.QueryRowContext(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE comment_id = ? AND user_id = ?`,
		commentID, userID,
	).Scan(
		&v.ID,
		&v.CommentID,
		&v.UserID,
		&v.Action,
		&v.CreatedAt,
		&v.UpdatedAt,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("vote", fmt.Sprintf("%s/%s", commentID, userID))
		}
		return nil, fmt.Errorf("sqlite: getting vote (commentID=%s, userID=%s): %w", commentID, userID, err)
	}

	return &v, nil
}

// Score computes upvotes minus downvotes for a comment at read time. The
// score is never cached on the comment row; caching would reintroduce the
// staleness the vote upsert exists to avoid.
func (r *Votes) Score(ctx context.Context, commentID string) (int, error) {
	var score int

	err := r.conn.QueryRowContext(ctx,
		`SELECT COALESCE(SUM(CASE action WHEN 'upvote' THEN 1 ELSE -1 END), 0)
		 FROM votes WHERE comment_id = ?`,
		commentID,
	).Scan(&score)
	if err != nil {
		return 0, fmt.Errorf("sqlite: scoring comment %s: %w", commentID, err)
	}

	return score, nil
}
