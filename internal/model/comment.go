package model

import "time"

// Comment is a message posted against a product, or a reply to another
// comment.
//
// The reply tree is flat adjacency, not nesting: replies live in the same
// comments table as everything else, and a parent carries an ordered list of
// its direct children's ids. This keeps every write single-row-scoped and
// avoids unbounded recursive shapes.
//
// ReplyIDs may contain ids of replies that have since been deleted; readers
// resolve the list with an id lookup, so dangling entries drop out
// naturally and are never pruned on delete.
type Comment struct {
	ID        string     `json:"id"        db:"id"`
	Message   string     `json:"message"   db:"message"`
	UserID    string     `json:"userId"    db:"user_id"`    // author reference
	ProductID string     `json:"productId" db:"product_id"` // replies inherit the parent's product
	IsReply   bool       `json:"isReply"   db:"is_reply"`
	ReplyIDs  []string   `json:"replies"   db:"replies"`
	CreatedAt time.Time  `json:"createdAt" db:"created_at"`
	UpdatedAt *time.Time `json:"updatedAt" db:"updated_at"` // nil until first reply lands
}
