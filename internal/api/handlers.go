package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"clipstream/internal/auth"
	"clipstream/internal/comments"
	"clipstream/internal/events"
	"clipstream/internal/storage"
)

// Handler carries the dependencies shared by all HTTP endpoints.
type Handler struct {
	Store    storage.Repository
	Sessions *auth.SessionManager
	Comments *comments.Gateway
	Events   events.Queue
	Logger   *slog.Logger
}

func NewHandler(store storage.Repository, sessions *auth.SessionManager) *Handler {
	if sessions == nil {
		sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return &Handler{Store: store, Sessions: sessions}
}

func (h *Handler) sessionManager() *auth.SessionManager {
	if h.Sessions == nil {
		h.Sessions = auth.NewSessionManager(24 * time.Hour)
	}
	return h.Sessions
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger != nil {
		return h.Logger
	}
	return slog.Default()
}

// publishEvent pushes an engagement event onto the queue. Queue failures are
// logged, never surfaced; the write that triggered the event has already
// committed.
func (h *Handler) publishEvent(ctx context.Context, event events.Event) {
	if h.Events == nil {
		return
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	if err := h.Events.Publish(ctx, event); err != nil {
		h.logger().Warn("publish engagement event failed", "type", event.Type, "error", err)
	}
}

// writeRepoError maps repository sentinel errors onto HTTP statuses. Anything
// unrecognised is treated as a validation failure.
func writeRepoError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrNotFoundOrForbidden):
		writeError(w, http.StatusNotFound, errors.New("not found"))
	case errors.Is(err, storage.ErrSelfSubscription):
		writeError(w, http.StatusBadRequest, err)
	case errors.Is(err, storage.ErrAlreadySubscribed),
		errors.Is(err, storage.ErrNotSubscribed),
		errors.Is(err, storage.ErrEmailInUse),
		errors.Is(err, storage.ErrChannelNameInUse),
		errors.Is(err, storage.ErrConflict):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, storage.ErrInvalidCredentials):
		writeError(w, http.StatusUnauthorized, errors.New("invalid credentials"))
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusInternalServerError, err)
	default:
		writeError(w, http.StatusBadRequest, err)
	}
}

// writeCommentError relays upstream comment-service responses verbatim and
// maps everything else like a repository error.
func (h *Handler) writeCommentError(w http.ResponseWriter, err error) {
	var upstream *comments.UpstreamError
	if errors.As(err, &upstream) {
		contentType := upstream.ContentType
		if contentType == "" {
			contentType = "application/json"
		}
		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(upstream.StatusCode)
		_, _ = w.Write(upstream.Body)
		return
	}
	if errors.Is(err, comments.ErrUnavailable) {
		h.logger().Error("comment service unreachable", "error", err)
		writeError(w, http.StatusBadGateway, errors.New("comment service unavailable"))
		return
	}
	writeRepoError(w, err)
}

func methodNotAllowed(w http.ResponseWriter, r *http.Request, allowed string) {
	w.Header().Set("Allow", allowed)
	writeError(w, http.StatusMethodNotAllowed, fmt.Errorf("method %s not allowed", r.Method))
}

type componentStatus struct {
	Component string `json:"component"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
}

// Health reports the reachability of the datastore and session store.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	overall := "ok"
	statusCode := http.StatusOK
	record := func(component string, err error) componentStatus {
		status := "ok"
		message := ""
		if err != nil {
			status = "degraded"
			message = err.Error()
			overall = "degraded"
			statusCode = http.StatusServiceUnavailable
		}
		return componentStatus{Component: component, Status: status, Error: message}
	}

	components := make([]componentStatus, 0, 2)
	if h.Store != nil {
		components = append(components, record("datastore", h.Store.Ping(r.Context())))
	}
	components = append(components, record("sessions", h.sessionManager().Ping(r.Context())))

	writeJSON(w, statusCode, map[string]interface{}{
		"status":   overall,
		"services": components,
	})
}
