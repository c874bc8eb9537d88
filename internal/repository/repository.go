// Package repository defines the persistence interfaces the services are
// written against. The concrete implementation lives in repository/sqlite;
// service tests substitute in-memory fakes.
package repository

import (
	"context"

	"github.com/vstrealm/reviewd/internal/model"
)

// Order selects the sort column and direction for comment listings. The
// values match the wire-level order_by parameter: a leading '-' means
// descending.
type Order string

const (
	OrderCreatedAsc  Order = "created_at"
	OrderCreatedDesc Order = "-created_at"
	OrderUpdatedAsc  Order = "updated_at"
	OrderUpdatedDesc Order = "-updated_at"
)

// Valid reports whether o is one of the supported orderings.
func (o Order) Valid() bool {
	switch o {
	case OrderCreatedAsc, OrderCreatedDesc, OrderUpdatedAsc, OrderUpdatedDesc:
		return true
	}
	return false
}

// ListOptions carries skip/limit/order for paginated reads.
type ListOptions struct {
	Limit  int
	Offset int
	Order  Order
}

// CommentFilter holds the optional equality predicates for listing
// comments. A nil field means the predicate is not applied.
type CommentFilter struct {
	ProductID *string
	IsReply   *bool
	Order     Order
}

type UserRepository interface {
	// Create inserts a new user; the repository assigns ID and timestamps.
	// Returns ErrConflict if the email is already registered.
	Create(ctx context.Context, user *model.User) error
	GetByID(ctx context.Context, id string) (*model.User, error)
	// GetByEmail looks a user up by case-normalized email.
	GetByEmail(ctx context.Context, email string) (*model.User, error)
}

type AccountRepository interface {
	// Upsert atomically creates or refreshes the Account link keyed on
	// (provider, provider_account_id). It must be a single atomic store
	// operation, never a read-then-write pair: two concurrent logins from
	// the same principal must converge to one row.
	Upsert(ctx context.Context, account *model.Account) error
	GetByUserAndProvider(ctx context.Context, userID string, provider model.Provider) (*model.Account, error)
}

type CommentRepository interface {
	Create(ctx context.Context, comment *model.Comment) error
	GetByID(ctx context.Context, id string) (*model.Comment, error)
	List(ctx context.Context, filter CommentFilter) ([]model.Comment, error)
	// ListByIDs fetches the comments whose id appears in ids, applying
	// skip/limit/order at read time. Ids with no matching row are skipped.
	ListByIDs(ctx context.Context, ids []string, opts ListOptions) ([]model.Comment, error)
	// AppendReply atomically appends replyID to the parent's reply-id list
	// and bumps its updated timestamp, as a single-row single-statement
	// write. Returns ErrNotFound if the parent does not exist.
	AppendReply(ctx context.Context, parentID, replyID string) error
	// Delete removes the comment, its votes, its direct replies, and those
	// replies' votes. Returns ErrNotFound if the comment does not exist.
	Delete(ctx context.Context, id string) error
}

type VoteRepository interface {
	// Upsert atomically creates the vote or overwrites the action of the
	// existing (comment_id, user_id) row. Same atomicity contract as
	// AccountRepository.Upsert.
	Upsert(ctx context.Context, vote *model.Vote) error
	GetByCommentAndUser(ctx context.Context, commentID, userID string) (*model.Vote, error)
	// Score returns upvotes minus downvotes for the comment, computed at
	// read time.
	Score(ctx context.Context, commentID string) (int, error)
}
