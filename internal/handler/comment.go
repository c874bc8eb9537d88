package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vstrealm/reviewd/internal/apperror"
	"github.com/vstrealm/reviewd/internal/auth"
	"github.com/vstrealm/reviewd/internal/model"
	"github.com/vstrealm/reviewd/internal/repository"
	"github.com/vstrealm/reviewd/internal/service"
)

// CommentHandler exposes the discussion engine over HTTP: comment and
// reply CRUD, voting, and score reads. All writes require authentication;
// the author is always the authenticated caller, never a body field.
type CommentHandler struct {
	discussion *service.DiscussionService
	logger     *slog.Logger
}

// NewCommentHandler creates a CommentHandler.
func NewCommentHandler(discussion *service.DiscussionService, logger *slog.Logger) *CommentHandler {
	return &CommentHandler{discussion: discussion, logger: logger}
}

type postCommentRequest struct {
	ProductID string `json:"product_id"`
	Message   string `json:"message"`
}

// HandleCreate posts a top-level comment.
//
// HTTP: POST /api/comments
// Auth: required
func (h *CommentHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}

	var req postCommentRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	comment, err := h.discussion.PostComment(r.Context(), req.ProductID, user.ID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, comment)
}

// HandleList returns comments, optionally filtered.
//
// HTTP: GET /api/comments?product_id=xxx&is_reply=false&order_by=-created_at
func (h *CommentHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	filter := repository.CommentFilter{
		Order: repository.Order(r.URL.Query().Get("order_by")),
	}
	if v := r.URL.Query().Get("product_id"); v != "" {
		filter.ProductID = &v
	}
	if v := r.URL.Query().Get("is_reply"); v != "" {
		isReply, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{
				Error:   "validation_error",
				Message: "is_reply must be a boolean",
			})
			return
		}
		filter.IsReply = &isReply
	}

	comments, err := h.discussion.ListComments(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, comments)
}

// HandleGet returns one comment or reply.
//
// HTTP: GET /api/comments/{id}
func (h *CommentHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	comment, err := h.discussion.GetComment(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, comment)
}

// HandleDelete removes a comment, its replies, and all their votes.
//
// HTTP: DELETE /api/comments/{id}
// Auth: required
func (h *CommentHandler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	if err := h.discussion.DeleteComment(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type postReplyRequest struct {
	Message string `json:"message"`
}

// HandleCreateReply posts a reply under a top-level comment.
//
// HTTP: POST /api/comments/{id}/replies
// Auth: required
func (h *CommentHandler) HandleCreateReply(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}

	var req postReplyRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	reply, err := h.discussion.PostReply(r.Context(), chi.URLParam(r, "id"), user.ID, req.Message)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, reply)
}

// HandleListReplies pages through a comment's replies.
//
// HTTP: GET /api/comments/{id}/replies?skip=0&limit=10&order_by=created_at
//
// Unset skip/limit fall back to the service defaults; non-numeric values
// are rejected rather than silently treated as zero.
func (h *CommentHandler) HandleListReplies(w http.ResponseWriter, r *http.Request) {
	skip, err := queryInt(r, "skip", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, err)
		return
	}
	order := repository.Order(r.URL.Query().Get("order_by"))

	replies, err := h.discussion.ListReplies(r.Context(), chi.URLParam(r, "id"), skip, limit, order)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, replies)
}

type castVoteRequest struct {
	Action model.VoteAction `json:"action"`
}

// HandleCastVote records the caller's vote on a comment; voting again
// replaces the previous vote.
//
// HTTP: PUT /api/comments/{id}/vote
// Auth: required
func (h *CommentHandler) HandleCastVote(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}

	var req castVoteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	vote, err := h.discussion.CastVote(r.Context(), chi.URLParam(r, "id"), user.ID, req.Action)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vote)
}

// HandleGetVote returns the caller's current vote on a comment.
//
// HTTP: GET /api/comments/{id}/vote
// Auth: required
func (h *CommentHandler) HandleGetVote(w http.ResponseWriter, r *http.Request) {
	user, ok := auth.UserFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated", Message: "authentication required"})
		return
	}

	vote, err := h.discussion.UserVote(r.Context(), chi.URLParam(r, "id"), user.ID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, vote)
}

type scoreResponse struct {
	CommentID string `json:"commentId"`
	Score     int    `json:"score"`
}

// HandleScore returns the comment's score, upvotes minus downvotes.
//
// HTTP: GET /api/comments/{id}/score
func (h *CommentHandler) HandleScore(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	score, err := h.discussion.CommentScore(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, scoreResponse{CommentID: id, Score: score})
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.ValidationFailed(name, name+" must be an integer")
	}
	return value, nil
}
