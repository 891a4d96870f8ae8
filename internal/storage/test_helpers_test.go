package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"clipstream/internal/models"
)

func newTestStore(t *testing.T) *Storage {
	t.Helper()
	dir := t.TempDir()
	store, err := NewStorage(filepath.Join(dir, "store.json"))
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func createTestUser(t *testing.T, store *Storage, label string) models.User {
	t.Helper()
	user, err := store.CreateUser(context.Background(), CreateUserParams{
		Email:       fmt.Sprintf("%s@example.com", label),
		Password:    "correct horse battery",
		DisplayName: label,
	})
	if err != nil {
		t.Fatalf("CreateUser %s: %v", label, err)
	}
	return user
}

func createTestVideo(t *testing.T, store *Storage, ownerID, title string) models.Video {
	t.Helper()
	video, err := store.CreateVideo(context.Background(), CreateVideoParams{
		OwnerID:  ownerID,
		Title:    title,
		VideoURL: "https://cdn.example.com/" + title + ".mp4",
	})
	if err != nil {
		t.Fatalf("CreateVideo %s: %v", title, err)
	}
	return video
}

func likeCount(store *Storage) int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.data.Likes)
}

func historyCount(store *Storage) int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.data.History)
}

func subscriptionCount(store *Storage) int {
	store.mu.RLock()
	defer store.mu.RUnlock()
	return len(store.data.Subscriptions)
}
