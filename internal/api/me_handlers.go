package api

import (
	"net/http"
)

// LikedVideos lists the videos the authenticated user has liked.
func (h *Handler) LikedVideos(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	liked, err := h.Store.ListLikedVideos(r.Context(), user.ID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": liked})
}

// Subscriptions lists the channels the authenticated user follows.
func (h *Handler) Subscriptions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	channels, err := h.Store.ListSubscribedChannels(r.Context(), user.ID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"channels": channels})
}

type historyRequest struct {
	VideoID string `json:"videoId"`
}

// History returns the watch history on GET and records a watch on POST.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		watched, err := h.Store.ListHistory(r.Context(), user.ID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"videos": watched})
	case http.MethodPost:
		var req historyRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		entry, err := h.Store.UpsertHistory(r.Context(), user.ID, req.VideoID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, entry)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}
