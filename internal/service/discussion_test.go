package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"strings"
	"testing"
	"time"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
)

// =========================================================================
// FAKES AND HELPERS
// =========================================================================

// fakeCommentRepo is an in-memory repository.CommentRepository with just
// enough behavior to exercise the service: stable insertion order, a real
// reply append, and a cascade delete.
type fakeCommentRepo struct {
	comments map[string]*model.Comment
	order    []string // insertion order, stands in for created_at ordering
	nextID   int
	votes    *fakeVoteRepo // set when cascade delete should clear votes

	createErr error
	appendErr error
}

func newFakeCommentRepo() *fakeCommentRepo {
	return &fakeCommentRepo{comments: make(map[string]*model.Comment)}
}

func (f *fakeCommentRepo) Create(_ context.Context, comment *model.Comment) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.nextID++
	comment.ID = fmt.Sprintf("comment-%d", f.nextID)
	comment.CreatedAt = time.Now().UTC()
	stored := *comment
	stored.ReplyIDs = append([]string(nil), comment.ReplyIDs...)
	f.comments[comment.ID] = &stored
	f.order = append(f.order, comment.ID)
	return nil
}

func (f *fakeCommentRepo) GetByID(_ context.Context, id string) (*model.Comment, error) {
	c, ok := f.comments[id]
	if !ok {
		return nil, apperror.NotFound("comment", id)
	}
	result := *c
	result.ReplyIDs = append([]string(nil), c.ReplyIDs...)
	return &result, nil
}

func (f *fakeCommentRepo) List(_ context.Context, filter repository.CommentFilter) ([]model.Comment, error) {
	result := []model.Comment{}
	for _, id := range f.order {
		c, ok := f.comments[id]
		if !ok {
			continue
		}
		if filter.ProductID != nil && c.ProductID != *filter.ProductID {
			continue
		}
		if filter.IsReply != nil && c.IsReply != *filter.IsReply {
			continue
		}
		result = append(result, *c)
	}
	if filter.Order == repository.OrderCreatedDesc {
		sort.SliceStable(result, func(i, j int) bool { return result[i].CreatedAt.After(result[j].CreatedAt) })
	}
	return result, nil
}

func (f *fakeCommentRepo) ListByIDs(_ context.Context, ids []string, opts repository.ListOptions) ([]model.Comment, error) {
	found := []model.Comment{}
	for _, id := range ids {
		if c, ok := f.comments[id]; ok {
			found = append(found, *c)
		}
	}
	if opts.Offset >= len(found) {
		return []model.Comment{}, nil
	}
	found = found[opts.Offset:]
	if opts.Limit > 0 && opts.Limit < len(found) {
		found = found[:opts.Limit]
	}
	return found, nil
}

func (f *fakeCommentRepo) AppendReply(_ context.Context, parentID, replyID string) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	parent, ok := f.comments[parentID]
	if !ok {
		return apperror.NotFound("comment", parentID)
	}
	parent.ReplyIDs = append(parent.ReplyIDs, replyID)
	now := time.Now().UTC()
	parent.UpdatedAt = &now
	return nil
}

func (f *fakeCommentRepo) Delete(_ context.Context, id string) error {
	c, ok := f.comments[id]
	if !ok {
		return apperror.NotFound("comment", id)
	}
	doomed := append([]string{id}, c.ReplyIDs...)
	for _, d := range doomed {
		delete(f.comments, d)
		if f.votes != nil {
			f.votes.deleteByComment(d)
		}
	}
	return nil
}

// fakeVoteRepo keys votes by (comment, user), mirroring the storage
// uniqueness constraint.
type fakeVoteRepo struct {
	votes     map[string]*model.Vote
	upsertErr error
}

func newFakeVoteRepo() *fakeVoteRepo {
	return &fakeVoteRepo{votes: make(map[string]*model.Vote)}
}

func voteKey(commentID, userID string) string { return commentID + "/" + userID }

func (f *fakeVoteRepo) Upsert(_ context.Context, vote *model.Vote) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	key := voteKey(vote.CommentID, vote.UserID)
	if existing, ok := f.votes[key]; ok {
		existing.Action = vote.Action
		existing.UpdatedAt = time.Now().UTC()
		*vote = *existing
		return nil
	}
	vote.ID = "vote-" + key
	vote.CreatedAt = time.Now().UTC()
	vote.UpdatedAt = vote.CreatedAt
	stored := *vote
	f.votes[key] = &stored
	return nil
}

func (f *fakeVoteRepo) GetByCommentAndUser(_ context.Context, commentID, userID string) (*model.Vote, error) {
	v, ok := f.votes[voteKey(commentID, userID)]
	if !ok {
		return nil, apperror.NotFound("vote", commentID)
	}
	result := *v
	return &result, nil
}

func (f *fakeVoteRepo) Score(_ context.Context, commentID string) (int, error) {
	score := 0
	for _, v := range f.votes {
		if v.CommentID != commentID {
			continue
		}
		if v.Action == model.VoteUp {
			score++
		} else {
			score--
		}
	}
	return score, nil
}

func (f *fakeVoteRepo) deleteByComment(commentID string) {
	for key, v := range f.votes {
		if v.CommentID == commentID {
			delete(f.votes, key)
		}
	}
}

func newTestDiscussionService(comments *fakeCommentRepo, votes *fakeVoteRepo) *DiscussionService {
	comments.votes = votes
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	return NewDiscussionService(comments, votes, logger)
}

func postTestComment(t *testing.T, svc *DiscussionService, productID string) *model.Comment {
	t.Helper()
	comment, err := svc.PostComment(context.Background(), productID, "user-1", "solid product")
	if err != nil {
		t.Fatalf("PostComment(): %v", err)
	}
	return comment
}

// =========================================================================
// PostComment TESTS
// =========================================================================

func TestPostComment(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	comment, err := svc.PostComment(context.Background(), "product-1", "user-1", "  nice keyboard  ")
	if err != nil {
		t.Fatalf("PostComment() error = %v", err)
	}

	if comment.ID == "" {
		t.Error("Comment.ID should be set after create")
	}
	if comment.Message != "nice keyboard" {
		t.Errorf("Comment.Message = %q, want trimmed %q", comment.Message, "nice keyboard")
	}
	if comment.IsReply {
		t.Error("a top-level comment must have IsReply = false")
	}
	if len(comment.ReplyIDs) != 0 {
		t.Errorf("Comment.ReplyIDs = %v, want empty", comment.ReplyIDs)
	}
}

func TestPostComment_Validation(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	cases := []struct {
		name      string
		productID string
		authorID  string
		message   string
	}{
		{"empty message", "product-1", "user-1", "   "},
		{"oversized message", "product-1", "user-1", strings.Repeat("x", MaxCommentLength+1)},
		{"missing product", "", "user-1", "hello"},
		{"missing author", "product-1", "", "hello"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.PostComment(context.Background(), tc.productID, tc.authorID, tc.message)
			if !errors.Is(err, apperror.ErrValidation) {
				t.Errorf("PostComment() error = %v, want ErrValidation", err)
			}
		})
	}
}

// =========================================================================
// PostReply TESTS
// =========================================================================

func TestPostReply(t *testing.T) {
	comments := newFakeCommentRepo()
	svc := newTestDiscussionService(comments, newFakeVoteRepo())

	parent := postTestComment(t, svc, "product-1")

	reply, err := svc.PostReply(context.Background(), parent.ID, "user-2", "agreed")
	if err != nil {
		t.Fatalf("PostReply() error = %v", err)
	}

	if !reply.IsReply {
		t.Error("a reply must have IsReply = true")
	}
	if reply.ProductID != parent.ProductID {
		t.Errorf("Reply.ProductID = %q, want the parent's %q", reply.ProductID, parent.ProductID)
	}

	got, err := svc.GetComment(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("GetComment(parent) error = %v", err)
	}
	if len(got.ReplyIDs) != 1 || got.ReplyIDs[0] != reply.ID {
		t.Errorf("parent.ReplyIDs = %v, want [%s]", got.ReplyIDs, reply.ID)
	}
	if got.UpdatedAt == nil {
		t.Error("appending a reply should bump the parent's UpdatedAt")
	}
}

func TestPostReply_ParentNotFound(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	_, err := svc.PostReply(context.Background(), "missing", "user-1", "hello")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("PostReply() error = %v, want ErrNotFound", err)
	}
}

func TestPostReply_NoNestingUnderReplies(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	parent := postTestComment(t, svc, "product-1")
	reply, err := svc.PostReply(context.Background(), parent.ID, "user-2", "first level")
	if err != nil {
		t.Fatalf("PostReply() error = %v", err)
	}

	_, err = svc.PostReply(context.Background(), reply.ID, "user-3", "second level")
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("PostReply() under a reply error = %v, want ErrValidation", err)
	}
}

func TestPostReply_PreservesOrder(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	parent := postTestComment(t, svc, "product-1")
	want := []string{}
	for i := 0; i < 4; i++ {
		reply, err := svc.PostReply(context.Background(), parent.ID, "user-2", fmt.Sprintf("reply %d", i))
		if err != nil {
			t.Fatalf("PostReply(%d) error = %v", i, err)
		}
		want = append(want, reply.ID)
	}

	got, err := svc.GetComment(context.Background(), parent.ID)
	if err != nil {
		t.Fatalf("GetComment() error = %v", err)
	}
	if len(got.ReplyIDs) != len(want) {
		t.Fatalf("parent.ReplyIDs = %v, want %v", got.ReplyIDs, want)
	}
	for i := range want {
		if got.ReplyIDs[i] != want[i] {
			t.Errorf("ReplyIDs[%d] = %q, want %q", i, got.ReplyIDs[i], want[i])
		}
	}
}

// =========================================================================
// Listing TESTS
// =========================================================================

func TestListComments_FilterAndDefaults(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	postTestComment(t, svc, "product-1")
	postTestComment(t, svc, "product-1")
	postTestComment(t, svc, "product-2")

	productID := "product-1"
	comments, err := svc.ListComments(context.Background(), repository.CommentFilter{ProductID: &productID})
	if err != nil {
		t.Fatalf("ListComments() error = %v", err)
	}
	if len(comments) != 2 {
		t.Errorf("ListComments() returned %d comments, want 2", len(comments))
	}
}

func TestListComments_RejectsUnknownOrder(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	_, err := svc.ListComments(context.Background(), repository.CommentFilter{Order: "random"})
	if !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("ListComments() error = %v, want ErrValidation", err)
	}
}

func TestListReplies_Window(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	parent := postTestComment(t, svc, "product-1")
	ids := []string{}
	for i := 0; i < 5; i++ {
		reply, err := svc.PostReply(context.Background(), parent.ID, "user-2", fmt.Sprintf("reply %d", i))
		if err != nil {
			t.Fatalf("PostReply(%d) error = %v", i, err)
		}
		ids = append(ids, reply.ID)
	}

	replies, err := svc.ListReplies(context.Background(), parent.ID, 1, 2, "")
	if err != nil {
		t.Fatalf("ListReplies() error = %v", err)
	}
	if len(replies) != 2 {
		t.Fatalf("ListReplies() returned %d replies, want 2", len(replies))
	}
	if replies[0].ID != ids[1] || replies[1].ID != ids[2] {
		t.Errorf("ListReplies() window = [%s %s], want [%s %s]", replies[0].ID, replies[1].ID, ids[1], ids[2])
	}
}

func TestListReplies_ClampsPagination(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	parent := postTestComment(t, svc, "product-1")
	for i := 0; i < DefaultReplyLimit+3; i++ {
		if _, err := svc.PostReply(context.Background(), parent.ID, "user-2", fmt.Sprintf("reply %d", i)); err != nil {
			t.Fatalf("PostReply(%d) error = %v", i, err)
		}
	}

	// Negative skip and zero limit fall back to the defaults.
	replies, err := svc.ListReplies(context.Background(), parent.ID, -5, 0, "")
	if err != nil {
		t.Fatalf("ListReplies() error = %v", err)
	}
	if len(replies) != DefaultReplyLimit {
		t.Errorf("ListReplies() returned %d replies, want default limit %d", len(replies), DefaultReplyLimit)
	}
}

func TestListReplies_ParentNotFound(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	_, err := svc.ListReplies(context.Background(), "missing", 0, 10, "")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("ListReplies() error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// Vote TESTS
// =========================================================================

func TestCastVote_AndRevote(t *testing.T) {
	votes := newFakeVoteRepo()
	svc := newTestDiscussionService(newFakeCommentRepo(), votes)

	comment := postTestComment(t, svc, "product-1")

	first, err := svc.CastVote(context.Background(), comment.ID, "user-2", model.VoteUp)
	if err != nil {
		t.Fatalf("CastVote() error = %v", err)
	}

	second, err := svc.CastVote(context.Background(), comment.ID, "user-2", model.VoteDown)
	if err != nil {
		t.Fatalf("revote CastVote() error = %v", err)
	}

	if second.ID != first.ID {
		t.Errorf("revote created a new row: %q -> %q", first.ID, second.ID)
	}
	if second.Action != model.VoteDown {
		t.Errorf("Vote.Action after revote = %q, want %q", second.Action, model.VoteDown)
	}
	if len(votes.votes) != 1 {
		t.Errorf("vote rows = %d, want 1", len(votes.votes))
	}
}

func TestCastVote_InvalidInput(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())
	comment := postTestComment(t, svc, "product-1")

	if _, err := svc.CastVote(context.Background(), comment.ID, "user-2", "sideways"); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("CastVote(bad action) error = %v, want ErrValidation", err)
	}
	if _, err := svc.CastVote(context.Background(), comment.ID, "", model.VoteUp); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("CastVote(no voter) error = %v, want ErrValidation", err)
	}
	if _, err := svc.CastVote(context.Background(), "missing", "user-2", model.VoteUp); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CastVote(missing comment) error = %v, want ErrNotFound", err)
	}
}

func TestCommentScore(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())
	comment := postTestComment(t, svc, "product-1")

	for i, action := range []model.VoteAction{model.VoteUp, model.VoteUp, model.VoteDown} {
		if _, err := svc.CastVote(context.Background(), comment.ID, fmt.Sprintf("voter-%d", i), action); err != nil {
			t.Fatalf("CastVote(%d) error = %v", i, err)
		}
	}

	score, err := svc.CommentScore(context.Background(), comment.ID)
	if err != nil {
		t.Fatalf("CommentScore() error = %v", err)
	}
	if score != 1 {
		t.Errorf("CommentScore() = %d, want 1", score)
	}

	if _, err := svc.CommentScore(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("CommentScore(missing) error = %v, want ErrNotFound", err)
	}
}

// =========================================================================
// Delete TESTS
// =========================================================================

func TestDeleteComment_Cascades(t *testing.T) {
	comments := newFakeCommentRepo()
	votes := newFakeVoteRepo()
	svc := newTestDiscussionService(comments, votes)

	parent := postTestComment(t, svc, "product-1")
	reply, err := svc.PostReply(context.Background(), parent.ID, "user-2", "me too")
	if err != nil {
		t.Fatalf("PostReply() error = %v", err)
	}
	if _, err := svc.CastVote(context.Background(), parent.ID, "user-3", model.VoteUp); err != nil {
		t.Fatalf("CastVote(parent) error = %v", err)
	}
	if _, err := svc.CastVote(context.Background(), reply.ID, "user-3", model.VoteDown); err != nil {
		t.Fatalf("CastVote(reply) error = %v", err)
	}

	if err := svc.DeleteComment(context.Background(), parent.ID); err != nil {
		t.Fatalf("DeleteComment() error = %v", err)
	}

	for _, id := range []string{parent.ID, reply.ID} {
		if _, err := svc.GetComment(context.Background(), id); !errors.Is(err, apperror.ErrNotFound) {
			t.Errorf("GetComment(%s) after delete error = %v, want ErrNotFound", id, err)
		}
	}
	if len(votes.votes) != 0 {
		t.Errorf("votes after cascade = %d, want 0", len(votes.votes))
	}
}

func TestDeleteComment_NotFound(t *testing.T) {
	svc := newTestDiscussionService(newFakeCommentRepo(), newFakeVoteRepo())

	if err := svc.DeleteComment(context.Background(), "missing"); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("DeleteComment() error = %v, want ErrNotFound", err)
	}
}
