package httpapi

import (
	"net/http"
	"strings"
)

type nextResponse struct {
	Post     *postView `json:"post"`
	Eligible int       `json:"eligible"`
}

type approveRequest struct {
	InviteCode string `json:"invite_code"`
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

// handleReviewNext serves GET /review/next?skip_ids=a,b,c. The skip list
// is the caller's session state; it is parsed per request and never
// stored.
func (h *Handler) handleReviewNext(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, http.MethodGet)
		return
	}
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	var skipIDs []string
	if raw := r.URL.Query().Get("skip_ids"); raw != "" {
		for _, id := range strings.Split(raw, ",") {
			if id = strings.TrimSpace(id); id != "" {
				skipIDs = append(skipIDs, id)
			}
		}
	}

	post, eligible, err := h.engine.NextReviewable(r.Context(), identity, skipIDs)
	if err != nil {
		writeError(w, err)
		return
	}
	resp := nextResponse{Eligible: eligible}
	if post.ID != "" {
		view := viewPost(post)
		resp.Post = &view
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleReviewPath dispatches POST /review/{id}/{claim,skip,approve,reject}.
func (h *Handler) handleReviewPath(w http.ResponseWriter, r *http.Request) {
	parts := splitPathParts(strings.TrimPrefix(r.URL.Path, PathReviewPrefix))
	if len(parts) != 2 {
		http.NotFound(w, r)
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, http.MethodPost)
		return
	}
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}
	postID := parts[0]

	switch parts[1] {
	case "claim":
		post, err := h.engine.ClaimPost(r.Context(), identity, postID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewPost(post))

	case "skip":
		if err := h.engine.Skip(r.Context(), identity, postID); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	case "approve":
		var req approveRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		post, err := h.engine.Approve(r.Context(), identity, postID, req.InviteCode)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewPost(post))

	case "reject":
		var req rejectRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		post, err := h.engine.Reject(r.Context(), identity, postID, req.Reason)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, viewPost(post))

	default:
		http.NotFound(w, r)
	}
}
