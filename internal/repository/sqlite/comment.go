package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// compile-time check that *Comments implements repository.CommentRepository
var _ repository.CommentRepository = (*Comments)(nil)

// Comments is the comment repository, backed by the shared connection
// pool. Delete reaches into the votes table as well so the cascade stays
// in one transaction.
type Comments struct {
	conn *sql.DB
}

const commentColumns = `id, message, user_id, product_id, is_reply, replies, created_at, updated_at`

// Create inserts a comment (top-level or reply). A fresh comment always
// starts with an empty reply list and a NULL updated timestamp.
func (r *Comments) Create(ctx context.Context, comment *model.Comment) error {
	comment.ID = xid.New().String()
	comment.CreatedAt = time.Now().UTC()
	comment.UpdatedAt = nil
	if comment.ReplyIDs == nil {
		comment.ReplyIDs = []string{}
	}

	replies, err := json.Marshal(comment.ReplyIDs)
	if err != nil {
		return fmt.Errorf("sqlite: encoding reply ids: %w", err)
	}

	_, err = r.conn.ExecContext(ctx,
		`INSERT INTO comments (`+commentColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, NULL)`,
		comment.ID,
		comment.Message,
		comment.UserID,
		comment.ProductID,
		comment.IsReply,
		string(replies),
		comment.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: inserting comment: %w", err)
	}

	return nil
}

// GetByID retrieves a comment by its ID.
func (r *Comments) GetByID(ctx context.Context, id string) (*model.Comment, error) {
	row := r.conn.QueryRowContext(ctx,
		`SELECT `+commentColumns+` FROM comments WHERE id = ?`, id)

	comment, err := scanComment(row)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apperror.NotFound("comment", id)
		}
		return nil, fmt.Errorf("sqlite: getting comment %s: %w", id, err)
	}

	return comment, nil
}

// List retrieves comments matching the optional filter predicates, sorted
// as requested.
func (r *Comments) List(ctx context.Context, filter repository.CommentFilter) ([]model.Comment, error) {
	query := `SELECT ` + commentColumns + ` FROM comments`
	var conds []string
	var args []any

	if filter.ProductID != nil {
		conds = append(conds, `product_id = ?`)
		args = append(args, *filter.ProductID)
	}
	if filter.IsReply != nil {
		conds = append(conds, `is_reply = ?`)
		args = append(args, *filter.IsReply)
	}
	if len(conds) > 0 {
		query += ` WHERE ` + strings.Join(conds, ` AND `)
	}
	query += ` ORDER BY ` + orderClause(filter.Order)

	rows, err := r.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// ListByIDs fetches the comments whose ids appear in ids, with skip/limit/
// order applied at read time. Ids with no surviving row simply drop out;
// this is what makes dangling reply-id entries harmless.
func (r *Comments) ListByIDs(ctx context.Context, ids []string, opts repository.ListOptions) ([]model.Comment, error) {
	if len(ids) == 0 {
		return []model.Comment{}, nil
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = len(ids)
	}
	offset := opts.Offset
	if offset < 0 {
		offset = 0
	}

	placeholders := strings.Repeat("?, ", len(ids)-1) + "?"
	args := make([]any, 0, len(ids)+2)
	for _, id := range ids {
		args = append(args, id)
	}
	args = append(args, limit, offset)

	rows, err := r.conn.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM comments
		 WHERE id IN (`+placeholders+`)
		 ORDER BY `+orderClause(opts.Order)+`
		 LIMIT ? OFFSET ?`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing comments by ids: %w", err)
	}
	defer rows.Close()

	return collectComments(rows)
}

// AppendReply appends replyID to the parent's reply-id list and bumps its
// updated timestamp, in one statement.
//
// json_insert with the '$[#]' path appends to the array inside SQLite, so
// concurrent replies to the same parent each land exactly once; there is
// no read-modify-write window for one append to overwrite another.
func (r *Comments) AppendReply(ctx context.Context, parentID, replyID string) error {
	result, err := r.conn.ExecContext(ctx,
		`UPDATE comments
		 SET replies = json_insert(replies, '$[#]', ?), updated_at = ?
		 WHERE id = ?`,
		replyID, time.Now().UTC(), parentID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: appending reply %s to comment %s: %w", replyID, parentID, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return apperror.NotFound("comment", parentID)
	}

	return nil
}

// Delete removes the comment together with its votes, its direct replies,
// and those replies' votes, in one transaction.
//
// Reply-id lists of OTHER surviving parents are not touched: a dangling id
// is filtered out at read time by ListByIDs, so pruning would buy nothing
// and cost a multi-row write.
func (r *Comments) Delete(ctx context.Context, id string) error {
	comment, err := r.GetByID(ctx, id)
	if err != nil {
		return err
	}

	doomed := append([]string{comment.ID}, comment.ReplyIDs...)
	placeholders := strings.Repeat("?, ", len(doomed)-1) + "?"
	args := make([]any, len(doomed))
	for i, d := range doomed {
		args[i] = d
	}

	tx, err := r.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM votes WHERE comment_id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("sqlite: deleting votes for comment %s: %w", id, err)
	}

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM comments WHERE id IN (`+placeholders+`)`, args...); err != nil {
		return fmt.Errorf("sqlite: deleting comment %s: %w", id, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: committing delete of comment %s: %w", id, err)
	}

	return nil
}

// orderClause maps an Order value to a SQL ORDER BY expression. Only the
// four known values ever reach SQL; anything else falls back to newest
// first.
func orderClause(o repository.Order) string {
	switch o {
	case repository.OrderCreatedAsc:
		return "created_at ASC"
	case repository.OrderUpdatedAsc:
		return "updated_at ASC"
	case repository.OrderUpdatedDesc:
		return "updated_at DESC"
	case repository.OrderCreatedDesc:
		return "created_at DESC"
	default:
		return "created_at DESC"
	}
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanComment(row rowScanner) (*model.Comment, error) {
	var (
		c         model.Comment
		replies   string
		updatedAt sql.NullTime
	)

	err := row.Scan(
		&c.ID,
		&c.Message,
		&c.UserID,
		&c.ProductID,
		&c.IsReply,
		&replies,
		&c.CreatedAt,
		&updatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(replies), &c.ReplyIDs); err != nil {
		return nil, fmt.Errorf("decoding reply ids for comment %s: %w", c.ID, err)
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		c.UpdatedAt = &t
	}

	return &c, nil
}

func collectComments(rows *sql.Rows) ([]model.Comment, error) {
	comments := []model.Comment{}
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning comment row: %w", err)
		}
		comments = append(comments, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating comments: %w", err)
	}
	return comments, nil
}
