package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// Validation and pagination bounds for the discussion engine.
const (
	MaxCommentLength  = 5000
	DefaultReplyLimit = 10
	MaxListLimit      = 100
)

// DiscussionService owns the comment threads attached to products: posting
// comments and replies, voting, score computation, and removal. Comments
// and votes are persisted through the injected repositories; the service
// enforces the thread shape (one level of nesting) and input bounds.
type DiscussionService struct {
	comments repository.CommentRepository
	votes    repository.VoteRepository
	logger   *slog.Logger
}

// NewDiscussionService creates a DiscussionService.
func NewDiscussionService(comments repository.CommentRepository, votes repository.VoteRepository, logger *slog.Logger) *DiscussionService {
	return &DiscussionService{
		comments: comments,
		votes:    votes,
		logger:   logger,
	}
}

// PostComment creates a top-level comment on a product.
func (s *DiscussionService) PostComment(ctx context.Context, productID, authorID, message string) (*model.Comment, error) {
	message = strings.TrimSpace(message)
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	if strings.TrimSpace(productID) == "" {
		return nil, apperror.ValidationFailed("product_id", "product ID is required")
	}
	if strings.TrimSpace(authorID) == "" {
		return nil, apperror.ValidationFailed("user_id", "author ID is required")
	}

	comment := &model.Comment{
		Message:   message,
		UserID:    authorID,
		ProductID: productID,
		IsReply:   false,
		ReplyIDs:  []string{},
	}
	if err := s.comments.Create(ctx, comment); err != nil {
		return nil, fmt.Errorf("service/discussion: creating comment: %w", err)
	}

	s.logger.Info("comment posted",
		slog.String("commentID", comment.ID),
		slog.String("productID", productID),
	)

	return comment, nil
}

// PostReply creates a reply under an existing top-level comment and links
// it into the parent's reply list.
//
// The reply row is saved before the parent link. If the link step loses a
// race against a concurrent delete of the parent, the parent's NotFound is
// returned and the saved reply stays unreachable; the parent is never left
// pointing at a reply that was not written.
func (s *DiscussionService) PostReply(ctx context.Context, parentID, authorID, message string) (*model.Comment, error) {
	message = strings.TrimSpace(message)
	if err := validateMessage(message); err != nil {
		return nil, err
	}
	if strings.TrimSpace(authorID) == "" {
		return nil, apperror.ValidationFailed("user_id", "author ID is required")
	}

	parent, err := s.comments.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}
	if parent.IsReply {
		return nil, apperror.ValidationFailed("parent_id", "replies cannot be nested under replies")
	}

	reply := &model.Comment{
		Message:   message,
		UserID:    authorID,
		ProductID: parent.ProductID,
		IsReply:   true,
		ReplyIDs:  []string{},
	}
	if err := s.comments.Create(ctx, reply); err != nil {
		return nil, fmt.Errorf("service/discussion: creating reply: %w", err)
	}
	if err := s.comments.AppendReply(ctx, parent.ID, reply.ID); err != nil {
		return nil, fmt.Errorf("service/discussion: linking reply %s to comment %s: %w", reply.ID, parent.ID, err)
	}

	s.logger.Info("reply posted",
		slog.String("commentID", reply.ID),
		slog.String("parentID", parent.ID),
	)

	return reply, nil
}

// GetComment retrieves a single comment or reply by ID.
func (s *DiscussionService) GetComment(ctx context.Context, id string) (*model.Comment, error) {
	if strings.TrimSpace(id) == "" {
		return nil, apperror.ValidationFailed("id", "comment ID is required")
	}
	return s.comments.GetByID(ctx, id)
}

// ListComments retrieves comments matching the filter. An unset order
// defaults to newest first; an unknown order value is rejected.
func (s *DiscussionService) ListComments(ctx context.Context, filter repository.CommentFilter) ([]model.Comment, error) {
	if filter.Order == "" {
		filter.Order = repository.OrderCreatedDesc
	}
	if !filter.Order.Valid() {
		return nil, apperror.ValidationFailed("order_by", fmt.Sprintf("unknown sort order %q", filter.Order))
	}

	comments, err := s.comments.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("service/discussion: listing comments: %w", err)
	}
	return comments, nil
}

// ListReplies pages through a comment's replies, newest first unless
// another order is requested. Skip and limit window the sorted result, and
// replies deleted since they were linked simply do not appear.
func (s *DiscussionService) ListReplies(ctx context.Context, parentID string, skip, limit int, order repository.Order) ([]model.Comment, error) {
	parent, err := s.comments.GetByID(ctx, parentID)
	if err != nil {
		return nil, err
	}

	if order != "" && !order.Valid() {
		return nil, apperror.ValidationFailed("order_by", fmt.Sprintf("unknown sort order %q", order))
	}
	if skip < 0 {
		skip = 0
	}
	if limit <= 0 {
		limit = DefaultReplyLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	replies, err := s.comments.ListByIDs(ctx, parent.ReplyIDs, repository.ListOptions{
		Limit:  limit,
		Offset: skip,
		Order:  order,
	})
	if err != nil {
		return nil, fmt.Errorf("service/discussion: listing replies of %s: %w", parent.ID, err)
	}
	return replies, nil
}

// CastVote records the user's vote on a comment, replacing any previous
// vote by the same user. The comment must exist; votes on replies are
// allowed the same as on top-level comments.
func (s *DiscussionService) CastVote(ctx context.Context, commentID, userID string, action model.VoteAction) (*model.Vote, error) {
	if !action.Valid() {
		return nil, apperror.ValidationFailed("action", fmt.Sprintf("action must be %q or %q", model.VoteUp, model.VoteDown))
	}
	if strings.TrimSpace(userID) == "" {
		return nil, apperror.ValidationFailed("user_id", "voter ID is required")
	}

	if _, err := s.comments.GetByID(ctx, commentID); err != nil {
		return nil, err
	}

	vote := &model.Vote{
		CommentID: commentID,
		UserID:    userID,
		Action:    action,
	}
	if err := s.votes.Upsert(ctx, vote); err != nil {
		return nil, fmt.Errorf("service/discussion: recording vote on %s: %w", commentID, err)
	}

	s.logger.Info("vote cast",
		slog.String("commentID", commentID),
		slog.String("action", string(action)),
	)

	return vote, nil
}

// CommentScore computes the comment's score as upvotes minus downvotes at
// read time. A comment with no votes scores zero.
func (s *DiscussionService) CommentScore(ctx context.Context, commentID string) (int, error) {
	if _, err := s.comments.GetByID(ctx, commentID); err != nil {
		return 0, err
	}

	score, err := s.votes.Score(ctx, commentID)
	if err != nil {
		return 0, fmt.Errorf("service/discussion: computing score of %s: %w", commentID, err)
	}
	return score, nil
}

// UserVote returns the caller's current vote on a comment, or NotFound if
// the caller has not voted on it.
func (s *DiscussionService) UserVote(ctx context.Context, commentID, userID string) (*model.Vote, error) {
	return s.votes.GetByCommentAndUser(ctx, commentID, userID)
}

// DeleteComment removes a comment together with its replies and all votes
// on any of them. Deleting a reply leaves its id dangling in the parent's
// reply list; reads filter dangling ids out.
func (s *DiscussionService) DeleteComment(ctx context.Context, id string) error {
	if strings.TrimSpace(id) == "" {
		return apperror.ValidationFailed("id", "comment ID is required")
	}

	if err := s.comments.Delete(ctx, id); err != nil {
		if errors.Is(err, apperror.ErrNotFound) {
			return err
		}
		return fmt.Errorf("service/discussion: deleting comment %s: %w", id, err)
	}

	s.logger.Info("comment deleted", slog.String("commentID", id))

	return nil
}

func validateMessage(message string) error {
	if message == "" {
		return apperror.ValidationFailed("message", "message is required")
	}
	if len(message) > MaxCommentLength {
		return apperror.ValidationFailed("message",
			fmt.Sprintf("message must be %d characters or less", MaxCommentLength))
	}
	return nil
}
