package comments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"clipstream/internal/models"
	"clipstream/internal/storage"
)

func newGatewayTestStore(t *testing.T) (*storage.Storage, models.User, models.Video) {
	t.Helper()
	store, err := storage.NewStorage(filepath.Join(t.TempDir(), "store.json"))
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	user, err := store.CreateUser(context.Background(), storage.CreateUserParams{
		Email:       "author@example.com",
		Password:    "correct horse battery",
		DisplayName: "Author",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	video, err := store.CreateVideo(context.Background(), storage.CreateVideoParams{
		OwnerID:  user.ID,
		Title:    "clip",
		VideoURL: "https://cdn.example.com/clip.mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	return store, user, video
}

func newGatewayForServer(t *testing.T, store Store, upstream *httptest.Server) *Gateway {
	t.Helper()
	client, err := NewClient(ClientConfig{BaseURL: upstream.URL, HTTPClient: upstream.Client()})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	return NewGateway(client, store, nil)
}

func TestCreateCommentForwardsProjection(t *testing.T) {
	store, user, video := newGatewayTestStore(t)

	var received createCommentRequest
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/api/comments" {
			t.Errorf("unexpected upstream request %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode upstream payload: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		json.NewEncoder(w).Encode(RemoteComment{
			ID:      "comment-1",
			VideoID: received.VideoID,
			UserID:  received.UserID,
			Content: received.Content,
		})
	}))
	defer upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	comment, err := gateway.CreateComment(context.Background(), video.ID, user.ID, "  nice clip  ")
	if err != nil {
		t.Fatalf("CreateComment: %v", err)
	}
	if comment.Content != "nice clip" {
		t.Fatalf("content = %q, want trimmed", comment.Content)
	}
	if comment.User == nil || comment.User.DisplayName != "Author" {
		t.Fatalf("comment author = %+v, want local projection", comment.User)
	}
	if received.User.ID != user.ID {
		t.Fatalf("upstream received projection %+v, want local user", received.User)
	}
}

func TestCreateCommentUnknownVideo(t *testing.T) {
	store, user, _ := newGatewayTestStore(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("upstream should not be reached for unknown video")
	}))
	defer upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	if _, err := gateway.CreateComment(context.Background(), "missing", user.ID, "hello"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestCreateCommentRelaysUpstreamError(t *testing.T) {
	store, user, video := newGatewayTestStore(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		w.Write([]byte(`{"error":"content too long"}`))
	}))
	defer upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	_, err := gateway.CreateComment(context.Background(), video.ID, user.ID, "hello")

	var upstreamErr *UpstreamError
	if !errors.As(err, &upstreamErr) {
		t.Fatalf("error = %v, want UpstreamError", err)
	}
	if upstreamErr.StatusCode != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", upstreamErr.StatusCode)
	}
	if string(upstreamErr.Body) != `{"error":"content too long"}` {
		t.Fatalf("body = %q, not relayed verbatim", upstreamErr.Body)
	}
}

func TestCreateCommentServiceUnavailable(t *testing.T) {
	store, user, video := newGatewayTestStore(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	if _, err := gateway.CreateComment(context.Background(), video.ID, user.ID, "hello"); !errors.Is(err, ErrUnavailable) {
		t.Fatalf("error = %v, want ErrUnavailable", err)
	}
}

func TestListCommentsEnrichesAuthors(t *testing.T) {
	store, user, video := newGatewayTestStore(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("videoId"); got != video.ID {
			t.Errorf("videoId = %q, want %q", got, video.ID)
		}
		json.NewEncoder(w).Encode([]RemoteComment{
			{ID: "c1", VideoID: video.ID, UserID: user.ID, Content: "first"},
			{ID: "c2", VideoID: video.ID, UserID: "deleted-user", Content: "second"},
		})
	}))
	defer upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	listed, err := gateway.ListComments(context.Background(), video.ID)
	if err != nil {
		t.Fatalf("ListComments: %v", err)
	}
	if len(listed) != 2 {
		t.Fatalf("comments = %d, want 2", len(listed))
	}
	if listed[0].User == nil || listed[0].User.DisplayName != "Author" {
		t.Fatalf("first author = %+v, want enriched", listed[0].User)
	}
	if listed[1].User == nil || listed[1].User.DisplayName != "Unknown User" {
		t.Fatalf("second author = %+v, want placeholder", listed[1].User)
	}
	if listed[1].UserID != "deleted-user" {
		t.Fatalf("remote user ID %q dropped from placeholder entry", listed[1].UserID)
	}
}

func TestDeleteCommentForwardsActor(t *testing.T) {
	store, user, _ := newGatewayTestStore(t)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodDelete || r.URL.Path != "/api/comments/c1" {
			t.Errorf("unexpected upstream request %s %s", r.Method, r.URL.Path)
		}
		if got := r.URL.Query().Get("userId"); got != user.ID {
			t.Errorf("userId = %q, want %q", got, user.ID)
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer upstream.Close()

	gateway := newGatewayForServer(t, store, upstream)
	if err := gateway.DeleteComment(context.Background(), "c1", user.ID); err != nil {
		t.Fatalf("DeleteComment: %v", err)
	}
}
