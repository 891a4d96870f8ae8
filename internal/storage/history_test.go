package storage

import (
	"context"
	"errors"
	"testing"
)

func TestUpsertHistoryRefreshesExistingEntry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "clip")

	first, err := store.UpsertHistory(ctx, viewer.ID, video.ID)
	if err != nil {
		t.Fatalf("UpsertHistory: %v", err)
	}
	second, err := store.UpsertHistory(ctx, viewer.ID, video.ID)
	if err != nil {
		t.Fatalf("UpsertHistory repeat: %v", err)
	}
	if historyCount(store) != 1 {
		t.Fatalf("history records = %d, want 1", historyCount(store))
	}
	if second.WatchedAt.Before(first.WatchedAt) {
		t.Fatalf("rewatch did not refresh WatchedAt")
	}
}

func TestUpsertHistoryMissingVideo(t *testing.T) {
	store := newTestStore(t)
	viewer := createTestUser(t, store, "viewer")

	if _, err := store.UpsertHistory(context.Background(), viewer.ID, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestListHistoryOrdering(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	first := createTestVideo(t, store, owner.ID, "first")
	second := createTestVideo(t, store, owner.ID, "second")

	if _, err := store.UpsertHistory(ctx, viewer.ID, first.ID); err != nil {
		t.Fatalf("UpsertHistory first: %v", err)
	}
	if _, err := store.UpsertHistory(ctx, viewer.ID, second.ID); err != nil {
		t.Fatalf("UpsertHistory second: %v", err)
	}

	watched, err := store.ListHistory(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("ListHistory: %v", err)
	}
	if len(watched) != 2 {
		t.Fatalf("history entries = %d, want 2", len(watched))
	}
	if watched[0].WatchedAt.Before(watched[1].WatchedAt) {
		t.Fatalf("history not ordered most recent first")
	}
	if watched[0].Channel.ID != owner.ID {
		t.Fatalf("channel projection missing from history entry")
	}
}
