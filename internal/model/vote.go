package model

import "time"

// VoteAction is a user's stance on a comment.
type VoteAction string

const (
	VoteUp   VoteAction = "upvote"
	VoteDown VoteAction = "downvote"
)

// Valid reports whether a is one of the two known actions.
func (a VoteAction) Valid() bool {
	return a == VoteUp || a == VoteDown
}

// Vote records one user's current stance on one comment. There is at most
// one row per (comment, user) pair; a revote flips Action in place. A
// comment's score is computed from its votes at read time, never cached on
// the comment.
type Vote struct {
	ID        string     `json:"id"        db:"id"`
	CommentID string     `json:"commentId" db:"comment_id"`
	UserID    string     `json:"userId"    db:"user_id"`
	Action    VoteAction `json:"action"    db:"action"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt time.Time  `json:"updatedAt" db:"updated_at"`
}
