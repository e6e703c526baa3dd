package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/louisbranch/inviteboard/internal/review/domain"
	"github.com/louisbranch/inviteboard/internal/review/storage"
)

type submitRequest struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

type voteRequest struct {
	Vote string `json:"vote"`
}

type voteResponse struct {
	Post    postView `json:"post"`
	Outcome string   `json:"outcome"`
}

type listResponse struct {
	Posts         []postView `json:"posts"`
	NextPageToken string     `json:"next_page_token,omitempty"`
}

type statsResponse struct {
	TotalPosts     int            `json:"total_posts"`
	ByStatus       map[string]int `json:"by_status"`
	TotalVotes     int            `json:"total_votes"`
	OpenClaims     int            `json:"open_claims"`
	TotalUsers     int            `json:"total_users"`
	CertifiedUsers int            `json:"certified_users"`
	TodayPosts     int            `json:"today_posts"`
	TodayApproved  int            `json:"today_approved"`
	TakenAt        string         `json:"taken_at"`
}

func (h *Handler) handlePosts(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.handleSubmit(w, r)
	case http.MethodGet:
		h.handleList(w, r)
	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPost)
	}
}

func (h *Handler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req submitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	post, err := h.engine.Submit(r.Context(), identity, domain.SubmitInput{
		Title:   req.Title,
		Content: req.Content,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, viewPost(post))
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	query := storage.PostQuery{
		AuthorID:  strings.TrimSpace(r.URL.Query().Get("author_id")),
		PageToken: r.URL.Query().Get("page_token"),
	}
	if raw := r.URL.Query().Get("page_size"); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size < 1 {
			http.Error(w, "invalid page_size", http.StatusBadRequest)
			return
		}
		query.PageSize = size
	}
	if raw := r.URL.Query().Get("status"); raw != "" {
		status, ok := parseStatus(raw)
		if !ok {
			http.Error(w, "invalid status", http.StatusBadRequest)
			return
		}
		query.Status = &status
	}

	page, err := h.engine.ListPosts(r.Context(), identity, query)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := listResponse{Posts: make([]postView, 0, len(page.Posts)), NextPageToken: page.NextPageToken}
	for _, post := range page.Posts {
		resp.Posts = append(resp.Posts, viewPost(post))
	}
	writeJSON(w, http.StatusOK, resp)
}

// handlePostPath dispatches /posts/{id} and /posts/{id}/vote.
func (h *Handler) handlePostPath(w http.ResponseWriter, r *http.Request) {
	parts := splitPathParts(strings.TrimPrefix(r.URL.Path, PathPostsPrefix))
	switch {
	case len(parts) == 1:
		h.handleGetPost(w, r, parts[0])
	case len(parts) == 2 && parts[1] == "vote":
		h.handleVote(w, r, parts[0])
	default:
		http.NotFound(w, r)
	}
}

func (h *Handler) handleGetPost(w http.ResponseWriter, r *http.Request, postID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	post, err := h.engine.GetPost(r.Context(), identity, postID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewPost(post))
}

func (h *Handler) handleVote(w http.ResponseWriter, r *http.Request, postID string) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var req voteRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	voteType, err := domain.ParseVoteType(req.Vote)
	if err != nil {
		writeError(w, err)
		return
	}
	result, err := h.engine.CastVote(r.Context(), identity, postID, voteType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, voteResponse{
		Post:    viewPost(result.Post),
		Outcome: outcomeString(result.Outcome),
	})
}

func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	if _, err := caller(r); err != nil {
		writeError(w, err)
		return
	}
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[status.String()] = count
	}
	writeJSON(w, http.StatusOK, statsResponse{
		TotalPosts:     stats.TotalPosts,
		ByStatus:       byStatus,
		TotalVotes:     stats.TotalVotes,
		OpenClaims:     stats.OpenClaims,
		TotalUsers:     stats.TotalUsers,
		CertifiedUsers: stats.CertifiedUsers,
		TodayPosts:     stats.TodayPosts,
		TodayApproved:  stats.TodayApproved,
		TakenAt:        stats.TakenAt.UTC().Format(time.RFC3339),
	})
}

func parseStatus(value string) (domain.Status, bool) {
	for _, status := range []domain.Status{
		domain.StatusPending,
		domain.StatusFirstReview,
		domain.StatusSecondReview,
		domain.StatusApproved,
		domain.StatusRejected,
	} {
		if status.String() == strings.ToLower(strings.TrimSpace(value)) {
			return status, true
		}
	}
	return 0, false
}

func outcomeString(outcome domain.TallyOutcome) string {
	switch outcome {
	case domain.TallyPromoted:
		return "promoted"
	case domain.TallyRejected:
		return "rejected"
	default:
		return "pending"
	}
}
