package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"clipstream/internal/events"
	"clipstream/internal/models"
	"clipstream/internal/storage"
)

type createVideoRequest struct {
	Title        string   `json:"title"`
	Description  string   `json:"description"`
	Tags         []string `json:"tags"`
	Visibility   string   `json:"visibility"`
	VideoURL     string   `json:"videoUrl"`
	ThumbnailURL string   `json:"thumbnailUrl"`
}

type updateVideoRequest struct {
	Title       *string   `json:"title"`
	Description *string   `json:"description"`
	Tags        *[]string `json:"tags"`
	Visibility  *string   `json:"visibility"`
}

type videoResponse struct {
	models.Video
	Channel *models.UserProjection `json:"channel,omitempty"`
}

func (h *Handler) videoWithChannel(r *http.Request, video models.Video) videoResponse {
	resp := videoResponse{Video: video}
	if owner, ok, err := h.Store.GetUser(r.Context(), video.OwnerID); err == nil && ok {
		projection := owner.Projection()
		resp.Channel = &projection
	}
	return resp
}

// Videos handles the collection: POST publishes a video, GET lists and
// searches the public catalogue.
func (h *Handler) Videos(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req createVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		visibility, ok := models.ParseVisibility(req.Visibility)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid visibility %q", req.Visibility))
			return
		}
		video, err := h.Store.CreateVideo(r.Context(), storage.CreateVideoParams{
			OwnerID:      user.ID,
			Title:        req.Title,
			Description:  req.Description,
			Tags:         req.Tags,
			Visibility:   visibility,
			VideoURL:     req.VideoURL,
			ThumbnailURL: req.ThumbnailURL,
		})
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, h.videoWithChannel(r, video))
	case http.MethodGet:
		query := r.URL.Query()
		filter := storage.VideoFilter{
			Query:     query.Get("q"),
			Tag:       query.Get("tag"),
			ChannelID: query.Get("channelId"),
			Sort:      storage.VideoSort(query.Get("sort")),
			Offset:    parseIntParam(query.Get("offset")),
			Limit:     parseIntParam(query.Get("limit")),
		}
		videos, err := h.Store.ListVideos(r.Context(), filter)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func parseIntParam(value string) int {
	if value == "" {
		return 0
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed < 0 {
		return 0
	}
	return parsed
}

// VideoByID routes /api/videos/{id} and its nested resources.
func (h *Handler) VideoByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/videos/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	parts := strings.SplitN(rest, "/", 3)
	videoID := parts[0]

	switch {
	case len(parts) == 1:
		h.handleVideo(w, r, videoID)
	case parts[1] == "reaction" && len(parts) == 2:
		h.handleReaction(w, r, videoID)
	case parts[1] == "comments" && len(parts) == 2:
		h.handleComments(w, r, videoID)
	case parts[1] == "comments" && len(parts) == 3:
		h.handleCommentByID(w, r, parts[2])
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) handleVideo(w http.ResponseWriter, r *http.Request, videoID string) {
	switch r.Method {
	case http.MethodGet:
		video, exists, err := h.Store.GetVideo(r.Context(), videoID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		viewer, authed := UserFromContext(r.Context())
		// Non-public videos are only served to their owner; everyone else
		// gets the same 404 as a missing video.
		if !exists || (video.Visibility != models.VisibilityPublic && (!authed || viewer.ID != video.OwnerID)) {
			writeError(w, http.StatusNotFound, errors.New("not found"))
			return
		}
		// A read counts as a view.
		video, err = h.Store.WatchVideo(r.Context(), videoID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		resp := h.videoWithChannel(r, video)
		if authed {
			if _, err := h.Store.UpsertHistory(r.Context(), viewer.ID, videoID); err != nil {
				h.logger().Warn("record watch history failed", "video_id", videoID, "error", err)
			}
		}
		writeJSON(w, http.StatusOK, resp)
	case http.MethodPatch:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req updateVideoRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		update := storage.VideoUpdate{
			Title:       req.Title,
			Description: req.Description,
			Tags:        req.Tags,
		}
		if req.Visibility != nil {
			visibility, ok := models.ParseVisibility(*req.Visibility)
			if !ok {
				writeError(w, http.StatusBadRequest, fmt.Errorf("invalid visibility %q", *req.Visibility))
				return
			}
			update.Visibility = &visibility
		}
		video, err := h.Store.UpdateVideo(r.Context(), videoID, user.ID, update)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, h.videoWithChannel(r, video))
	case http.MethodDelete:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		if err := h.Store.DeleteVideo(r.Context(), videoID, user.ID); err != nil {
			writeRepoError(w, err)
			return
		}
		h.publishEvent(r.Context(), events.Event{
			Type:         events.EventTypeVideoDeleted,
			VideoDeleted: &events.VideoDeletedEvent{VideoID: videoID, OwnerID: user.ID},
		})
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, PATCH, DELETE")
	}
}

type reactionRequest struct {
	Status string `json:"status"`
}

func (h *Handler) handleReaction(w http.ResponseWriter, r *http.Request, videoID string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		status, exists, err := h.Store.GetReaction(r.Context(), user.ID, videoID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		if !exists {
			writeJSON(w, http.StatusOK, map[string]interface{}{"status": nil})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"status": status})
	case http.MethodPut, http.MethodPost:
		var req reactionRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		status, ok := models.ParseReactionStatus(req.Status)
		if !ok {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid reaction status %q", req.Status))
			return
		}
		result, err := h.Store.SetReaction(r.Context(), user.ID, videoID, status)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		if result.Changed {
			h.publishEvent(r.Context(), events.Event{
				Type: events.EventTypeReaction,
				Reaction: &events.ReactionEvent{
					UserID:  user.ID,
					VideoID: videoID,
					Status:  string(result.Status),
				},
			})
		}
		writeJSON(w, http.StatusOK, result)
	case http.MethodDelete:
		status, err := h.Store.RemoveReaction(r.Context(), user.ID, videoID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		h.publishEvent(r.Context(), events.Event{
			Type: events.EventTypeReaction,
			Reaction: &events.ReactionEvent{
				UserID:  user.ID,
				VideoID: videoID,
				Status:  string(status),
				Removed: true,
			},
		})
		writeJSON(w, http.StatusOK, map[string]interface{}{"removed": status})
	default:
		methodNotAllowed(w, r, "GET, PUT, POST, DELETE")
	}
}

type createCommentRequest struct {
	Content string `json:"content"`
}

func (h *Handler) handleComments(w http.ResponseWriter, r *http.Request, videoID string) {
	if h.Comments == nil {
		writeError(w, http.StatusBadGateway, errors.New("comment service not configured"))
		return
	}
	switch r.Method {
	case http.MethodGet:
		listed, err := h.Comments.ListComments(r.Context(), videoID)
		if err != nil {
			h.writeCommentError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"comments": listed})
	case http.MethodPost:
		user, ok := h.requireAuthenticatedUser(w, r)
		if !ok {
			return
		}
		var req createCommentRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		created, err := h.Comments.CreateComment(r.Context(), videoID, user.ID, req.Content)
		if err != nil {
			h.writeCommentError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	default:
		methodNotAllowed(w, r, "GET, POST")
	}
}

func (h *Handler) handleCommentByID(w http.ResponseWriter, r *http.Request, commentID string) {
	if h.Comments == nil {
		writeError(w, http.StatusBadGateway, errors.New("comment service not configured"))
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, "DELETE")
		return
	}
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	if commentID == "" {
		writeError(w, http.StatusBadRequest, fmt.Errorf("comment id is required"))
		return
	}
	if err := h.Comments.DeleteComment(r.Context(), commentID, user.ID); err != nil {
		h.writeCommentError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
