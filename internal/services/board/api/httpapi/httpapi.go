// Package httpapi exposes the review engine as a JSON API. Handlers are
// thin: decode, call the engine, encode. All authorization decisions live
// in the engine; the identity middleware only authenticates.
package httpapi

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/louisbranch/inviteboard/internal/platform/errors"
	"github.com/louisbranch/inviteboard/internal/platform/requestctx"
	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/engine"
)

// Route path constants.
const (
	PathPosts        = "/posts"
	PathPostsStats   = "/posts/stats"
	PathPostsPrefix  = "/posts/"
	PathReviewNext   = "/review/next"
	PathReviewPrefix = "/review/"
	PathSettings     = "/admin/settings"
)

// Handler serves the JSON routes backed by one engine.
type Handler struct {
	engine *engine.Engine
}

// NewHandler builds the API handler.
func NewHandler(e *engine.Engine) *Handler {
	return &Handler{engine: e}
}

// Register wires the API routes into the provided mux.
func (h *Handler) Register(mux *http.ServeMux) {
	if mux == nil || h == nil {
		return
	}
	mux.HandleFunc(PathPosts, h.handlePosts)
	mux.HandleFunc(PathPostsStats, h.handleStats)
	mux.HandleFunc(PathPostsPrefix, h.handlePostPath)
	mux.HandleFunc(PathReviewNext, h.handleReviewNext)
	mux.HandleFunc(PathReviewPrefix, h.handleReviewPath)
	mux.HandleFunc(PathSettings, h.handleSettings)
}

// caller reads the authenticated identity the middleware stored.
func caller(r *http.Request) (domain.Identity, error) {
	identity, ok := requestctx.IdentityFromContext(r.Context())
	if !ok {
		return domain.Identity{}, apperrors.New(apperrors.CodeIdentityMissing, "caller identity is required")
	}
	return domain.Identity{
		UserID:     identity.UserID,
		Role:       domain.ParseRole(identity.Role),
		TrustLevel: identity.TrustLevel,
	}, nil
}

// splitPathParts splits a sub-path into its non-empty segments.
func splitPathParts(path string) []string {
	var parts []string
	for _, part := range strings.Split(path, "/") {
		if part != "" {
			parts = append(parts, part)
		}
	}
	return parts
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	w.Header().Set("Allow", strings.Join(allowed, ", "))
	http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
}

func decodeJSON(r *http.Request, dst any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return apperrors.Wrap(apperrors.CodeUnknown, "invalid request body", err)
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	encoder := json.NewEncoder(w)
	_ = encoder.Encode(payload)
}

type errorResponse struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

// writeError maps taxonomy errors onto HTTP statuses. Anything without a
// code is logged and reported as an opaque internal error so storage
// detail never leaks to clients.
func writeError(w http.ResponseWriter, err error) {
	var appErr *apperrors.Error
	if !errors.As(err, &appErr) {
		log.Printf("http: internal error: %v", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{
			Code:  string(apperrors.CodeUnknown),
			Error: "internal error",
		})
		return
	}
	kind := appErr.Code.Kind()
	if kind == apperrors.KindInternal || kind == apperrors.KindUnavailable {
		log.Printf("http: %s: %v", appErr.Code, err)
	}
	message := appErr.Message
	if kind == apperrors.KindInternal {
		message = "internal error"
	}
	writeJSON(w, kind.HTTPStatus(), errorResponse{Code: string(appErr.Code), Error: message})
}

// postView is the wire form of a post. Empty optional fields are omitted.
type postView struct {
	ID           string `json:"id"`
	AuthorID     string `json:"author_id"`
	Title        string `json:"title"`
	Content      string `json:"content"`
	Status       string `json:"status"`
	UpVotes      int    `json:"up_votes"`
	DownVotes    int    `json:"down_votes"`
	ReviewerID   string `json:"reviewer_id,omitempty"`
	ClaimExpires string `json:"claim_expires_at,omitempty"`
	InviteCode   string `json:"invite_code,omitempty"`
	RejectReason string `json:"reject_reason,omitempty"`
	ReviewedAt   string `json:"reviewed_at,omitempty"`
	CreatedAt    string `json:"created_at"`
	UpdatedAt    string `json:"updated_at"`
}

func viewPost(post domain.Post) postView {
	view := postView{
		ID:           post.ID,
		AuthorID:     post.AuthorID,
		Title:        post.Title,
		Content:      post.Content,
		Status:       post.Status.String(),
		UpVotes:      post.UpVotes,
		DownVotes:    post.DownVotes,
		ReviewerID:   post.ReviewerID,
		InviteCode:   post.InviteCode,
		RejectReason: post.RejectReason,
		CreatedAt:    post.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt:    post.UpdatedAt.UTC().Format(time.RFC3339),
	}
	if !post.ClaimExpires.IsZero() {
		view.ClaimExpires = post.ClaimExpires.UTC().Format(time.RFC3339)
	}
	if !post.ReviewedAt.IsZero() {
		view.ReviewedAt = post.ReviewedAt.UTC().Format(time.RFC3339)
	}
	return view
}
