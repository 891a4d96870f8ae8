package api

import (
	"errors"
	"net/http"
	"strings"

	"golang.org/x/sync/errgroup"

	"clipstream/internal/events"
	"clipstream/internal/models"
	"clipstream/internal/storage"
)

// ChannelByID routes /api/channels/{id} and its nested resources.
func (h *Handler) ChannelByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/channels/"), "/")
	if rest == "" {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	parts := strings.SplitN(rest, "/", 2)
	channelID := parts[0]

	if len(parts) == 1 {
		h.handleChannel(w, r, channelID)
		return
	}
	switch parts[1] {
	case "subscription":
		h.handleSubscription(w, r, channelID)
	case "videos":
		h.handleChannelVideos(w, r, channelID)
	case "stats":
		h.handleChannelStats(w, r, channelID)
	default:
		writeError(w, http.StatusNotFound, errors.New("not found"))
	}
}

func (h *Handler) handleChannel(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	channel, exists, err := h.Store.GetUser(r.Context(), channelID)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	payload := map[string]interface{}{"channel": newUserResponse(channel, false)}
	if viewer, ok := UserFromContext(r.Context()); ok {
		subscribed, err := h.Store.IsSubscribed(r.Context(), viewer.ID, channelID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		payload["subscribed"] = subscribed
	}
	writeJSON(w, http.StatusOK, payload)
}

// handleSubscription manages the viewer's subscription to a channel: POST
// subscribes, DELETE unsubscribes, GET reports the current state.
func (h *Handler) handleSubscription(w http.ResponseWriter, r *http.Request, channelID string) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		subscribed, err := h.Store.IsSubscribed(r.Context(), user.ID, channelID)
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"subscribed": subscribed})
	case http.MethodPost:
		if err := h.Store.Subscribe(r.Context(), user.ID, channelID); err != nil {
			writeRepoError(w, err)
			return
		}
		h.publishEvent(r.Context(), events.Event{
			Type: events.EventTypeSubscription,
			Subscription: &events.SubscriptionEvent{
				SubscriberID: user.ID,
				ChannelID:    channelID,
				Subscribed:   true,
			},
		})
		writeJSON(w, http.StatusCreated, map[string]bool{"subscribed": true})
	case http.MethodDelete:
		if err := h.Store.Unsubscribe(r.Context(), user.ID, channelID); err != nil {
			writeRepoError(w, err)
			return
		}
		h.publishEvent(r.Context(), events.Event{
			Type: events.EventTypeSubscription,
			Subscription: &events.SubscriptionEvent{
				SubscriberID: user.ID,
				ChannelID:    channelID,
				Subscribed:   false,
			},
		})
		writeJSON(w, http.StatusOK, map[string]bool{"subscribed": false})
	default:
		methodNotAllowed(w, r, "GET, POST, DELETE")
	}
}

func (h *Handler) handleChannelVideos(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	if _, exists, err := h.Store.GetUser(r.Context(), channelID); err != nil {
		writeRepoError(w, err)
		return
	} else if !exists {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	query := r.URL.Query()
	videos, err := h.Store.ListVideos(r.Context(), storage.VideoFilter{
		ChannelID: channelID,
		Sort:      storage.VideoSort(query.Get("sort")),
		Offset:    parseIntParam(query.Get("offset")),
		Limit:     parseIntParam(query.Get("limit")),
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}
	// Hide non-public videos from everyone but the owner.
	viewer, authed := UserFromContext(r.Context())
	if !authed || viewer.ID != channelID {
		public := videos[:0]
		for _, video := range videos {
			if video.Visibility == models.VisibilityPublic {
				public = append(public, video)
			}
		}
		videos = public
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"videos": videos})
}

type channelStatsResponse struct {
	ChannelID   string `json:"channelId"`
	ChannelName string `json:"channelName"`
	Subscribers int    `json:"subscribers"`
	TotalVideos int    `json:"totalVideos"`
	TotalViews  int    `json:"totalViews"`
}

// handleChannelStats returns the channel dashboard numbers. The profile and
// the video aggregates are independent queries, so they run concurrently.
func (h *Handler) handleChannelStats(w http.ResponseWriter, r *http.Request, channelID string) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}

	var (
		channel models.User
		agg     storage.VideoAggregates
	)
	group, ctx := errgroup.WithContext(r.Context())
	group.Go(func() error {
		found, exists, err := h.Store.GetUser(ctx, channelID)
		if err != nil {
			return err
		}
		if !exists {
			return storage.ErrNotFound
		}
		channel = found
		return nil
	})
	group.Go(func() error {
		result, err := h.Store.VideoAggregates(ctx, channelID)
		if err != nil {
			return err
		}
		agg = result
		return nil
	})
	if err := group.Wait(); err != nil {
		writeRepoError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, channelStatsResponse{
		ChannelID:   channel.ID,
		ChannelName: channel.ChannelName,
		Subscribers: channel.SubscriberCount,
		TotalVideos: agg.Videos,
		TotalViews:  agg.Views,
	})
}
