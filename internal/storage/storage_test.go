package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"clipstream/internal/models"
)

func TestNewStorageCreatesMissingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	if err := store.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}
}

func TestStorageReloadsPersistedState(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "store.json")

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "clip")
	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction: %v", err)
	}
	if err := store.Subscribe(ctx, viewer.ID, owner.ID); err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	reloaded, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage reload: %v", err)
	}

	got, ok, err := reloaded.GetVideo(ctx, video.ID)
	if err != nil || !ok {
		t.Fatalf("GetVideo after reload: ok=%v err=%v", ok, err)
	}
	if got.Stats.Likes != 1 {
		t.Fatalf("likes = %d after reload, want 1", got.Stats.Likes)
	}

	channel, _, err := reloaded.GetUser(ctx, owner.ID)
	if err != nil {
		t.Fatalf("GetUser after reload: %v", err)
	}
	if channel.SubscriberCount != 1 {
		t.Fatalf("subscriber count = %d after reload, want 1", channel.SubscriberCount)
	}
}

func TestStorageToleratesEmptyFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage on empty file: %v", err)
	}
	createTestUser(t, store, "viewer")
}

func TestPersistWritesNoPartialFileOnFailure(t *testing.T) {
	path := filepath.Join(t.TempDir(), "store.json")
	store, err := NewStorage(path)
	if err != nil {
		t.Fatalf("NewStorage: %v", err)
	}
	createTestUser(t, store, "viewer")

	before, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	store.persistOverride = func(dataset) error { return os.ErrPermission }
	if _, err := store.CreateUser(context.Background(), CreateUserParams{
		Email:       "second@example.com",
		Password:    "another password",
		DisplayName: "Second",
	}); err == nil {
		t.Fatalf("expected persist failure to surface")
	}
	store.persistOverride = nil

	after, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile after failure: %v", err)
	}
	if string(before) != string(after) {
		t.Fatalf("datastore file changed despite persist failure")
	}
}
