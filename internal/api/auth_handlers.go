package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"clipstream/internal/models"
	"clipstream/internal/storage"
)

type signupRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	ChannelName string `json:"channelName"`
	AvatarURL   string `json:"avatarUrl"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email,omitempty"`
	DisplayName        string    `json:"displayName"`
	AvatarURL          string    `json:"avatarUrl"`
	ChannelName        string    `json:"channelName"`
	ChannelDescription string    `json:"channelDescription"`
	SubscriberCount    int       `json:"subscriberCount"`
	CreatedAt          time.Time `json:"createdAt"`
}

func newUserResponse(user models.User, includeEmail bool) userResponse {
	resp := userResponse{
		ID:                 user.ID,
		DisplayName:        user.DisplayName,
		AvatarURL:          user.AvatarURL,
		ChannelName:        user.ChannelName,
		ChannelDescription: user.ChannelDescription,
		SubscriberCount:    user.SubscriberCount,
		CreatedAt:          user.CreatedAt,
	}
	if includeEmail {
		resp.Email = user.Email
	}
	return resp
}

type authResponse struct {
	User      userResponse `json:"user"`
	ExpiresAt time.Time    `json:"expiresAt"`
}

func (h *Handler) Signup(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req signupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.CreateUser(r.Context(), storage.CreateUserParams{
		Email:       req.Email,
		Password:    req.Password,
		DisplayName: req.DisplayName,
		ChannelName: req.ChannelName,
		AvatarURL:   req.AvatarURL,
	})
	if err != nil {
		writeRepoError(w, err)
		return
	}

	token, expiresAt, err := h.sessionManager().Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, http.StatusCreated, authResponse{User: newUserResponse(user, true), ExpiresAt: expiresAt})
}

func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, "POST")
		return
	}

	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	user, err := h.Store.AuthenticateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, http.StatusUnauthorized, fmt.Errorf("invalid credentials"))
		return
	}

	token, expiresAt, err := h.sessionManager().Create(r.Context(), user.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}

	h.setSessionCookie(w, r, token, expiresAt)
	writeJSON(w, http.StatusOK, authResponse{User: newUserResponse(user, true), ExpiresAt: expiresAt})
}

// Session returns the authenticated account on GET and revokes the session on
// DELETE.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		user, err := h.AuthenticateRequest(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": newUserResponse(user, true)})
	case http.MethodDelete:
		if token := ExtractToken(r); token != "" {
			if err := h.sessionManager().Revoke(r.Context(), token); err != nil {
				writeError(w, http.StatusInternalServerError, err)
				return
			}
		}
		h.clearSessionCookie(w, r)
		w.WriteHeader(http.StatusNoContent)
	default:
		methodNotAllowed(w, r, "GET, DELETE")
	}
}

type profileUpdateRequest struct {
	DisplayName        *string `json:"displayName"`
	AvatarURL          *string `json:"avatarUrl"`
	ChannelName        *string `json:"channelName"`
	ChannelDescription *string `json:"channelDescription"`
}

// Me serves the authenticated user's own profile: GET returns it, PATCH
// applies partial updates.
func (h *Handler) Me(w http.ResponseWriter, r *http.Request) {
	user, ok := h.requireAuthenticatedUser(w, r)
	if !ok {
		return
	}
	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, newUserResponse(user, true))
	case http.MethodPatch:
		var req profileUpdateRequest
		if err := decodeJSON(r, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		updated, err := h.Store.UpdateUser(r.Context(), user.ID, storage.UserUpdate{
			DisplayName:        req.DisplayName,
			AvatarURL:          req.AvatarURL,
			ChannelName:        req.ChannelName,
			ChannelDescription: req.ChannelDescription,
		})
		if err != nil {
			writeRepoError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, newUserResponse(updated, true))
	default:
		methodNotAllowed(w, r, "GET, PATCH")
	}
}

// UserByID serves public profiles at /api/users/{id}.
func (h *Handler) UserByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, "GET")
		return
	}
	id := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/users/"), "/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	user, exists, err := h.Store.GetUser(r.Context(), id)
	if err != nil {
		writeRepoError(w, err)
		return
	}
	if !exists {
		writeError(w, http.StatusNotFound, errors.New("not found"))
		return
	}
	writeJSON(w, http.StatusOK, newUserResponse(user, false))
}
