package httpapi

import (
	"net/http"

	"github.com/louisbranch/inviteboard/internal/review/domain"
)

type settingsPayload struct {
	MinVotes     int     `json:"min_votes"`
	ApprovalRate float64 `json:"approval_rate"`
}

// handleSettings serves GET and PUT /admin/settings. The engine enforces
// the admin requirement; changed values apply to the next tally
// evaluation without a restart.
func (h *Handler) handleSettings(w http.ResponseWriter, r *http.Request) {
	identity, err := caller(r)
	if err != nil {
		writeError(w, err)
		return
	}

	switch r.Method {
	case http.MethodGet:
		settings, err := h.engine.Settings(r.Context(), identity)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, settingsPayload{
			MinVotes:     settings.MinVotes,
			ApprovalRate: settings.ApprovalRate,
		})

	case http.MethodPut:
		var req settingsPayload
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, err)
			return
		}
		err := h.engine.UpdateSettings(r.Context(), identity, domain.ReviewSettings{
			MinVotes:     req.MinVotes,
			ApprovalRate: req.ApprovalRate,
		})
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, req)

	default:
		methodNotAllowed(w, http.MethodGet, http.MethodPut)
	}
}
