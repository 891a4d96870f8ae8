package storage

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"clipstream/internal/models"
)

func TestSetReactionMaintainsCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "first")

	result, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike)
	if err != nil {
		t.Fatalf("SetReaction: %v", err)
	}
	if !result.Changed || result.Status != models.ReactionLike {
		t.Fatalf("unexpected result %+v", result)
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Likes != 1 || got.Stats.Dislikes != 0 {
		t.Fatalf("counters = %+v, want likes=1 dislikes=0", got.Stats)
	}
}

func TestSetReactionSameStatusIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "first")

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction: %v", err)
	}
	result, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike)
	if err != nil {
		t.Fatalf("SetReaction repeat: %v", err)
	}
	if result.Changed {
		t.Fatalf("repeat reaction reported Changed=true")
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Likes != 1 {
		t.Fatalf("likes = %d, want 1 after repeat", got.Stats.Likes)
	}
	if likeCount(store) != 1 {
		t.Fatalf("like records = %d, want 1", likeCount(store))
	}
}

func TestSetReactionSwitchMovesBothCounters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "first")

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction like: %v", err)
	}
	result, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionDislike)
	if err != nil {
		t.Fatalf("SetReaction dislike: %v", err)
	}
	if !result.Changed || result.Status != models.ReactionDislike {
		t.Fatalf("unexpected switch result %+v", result)
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Likes != 0 || got.Stats.Dislikes != 1 {
		t.Fatalf("counters = %+v, want likes=0 dislikes=1", got.Stats)
	}
	if likeCount(store) != 1 {
		t.Fatalf("like records = %d, want 1 after switch", likeCount(store))
	}
}

func TestRemoveReaction(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "first")

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionDislike); err != nil {
		t.Fatalf("SetReaction: %v", err)
	}
	removed, err := store.RemoveReaction(ctx, viewer.ID, video.ID)
	if err != nil {
		t.Fatalf("RemoveReaction: %v", err)
	}
	if removed != models.ReactionDislike {
		t.Fatalf("removed status = %q, want dislike", removed)
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Dislikes != 0 {
		t.Fatalf("dislikes = %d, want 0", got.Stats.Dislikes)
	}

	if _, err := store.RemoveReaction(ctx, viewer.ID, video.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove error = %v, want ErrNotFound", err)
	}
}

func TestSetReactionMissingVideo(t *testing.T) {
	store := newTestStore(t)
	viewer := createTestUser(t, store, "viewer")

	if _, err := store.SetReaction(context.Background(), viewer.ID, "missing", models.ReactionLike); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound", err)
	}
}

func TestSetReactionConcurrentViewers(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "popular")

	const viewers = 16
	users := make([]string, viewers)
	for i := range users {
		users[i] = createTestUser(t, store, fmt.Sprintf("viewer%02d", i)).ID
	}

	var wg sync.WaitGroup
	errs := make(chan error, viewers)
	for _, userID := range users {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			if _, err := store.SetReaction(ctx, id, video.ID, models.ReactionLike); err != nil {
				errs <- err
			}
		}(userID)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent SetReaction: %v", err)
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Likes != viewers {
		t.Fatalf("likes = %d, want %d", got.Stats.Likes, viewers)
	}
	if likeCount(store) != viewers {
		t.Fatalf("like records = %d, want %d", likeCount(store), viewers)
	}
}

func TestSetReactionPersistFailureLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "first")

	boom := errors.New("disk full")
	store.persistOverride = func(dataset) error { return boom }

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); !errors.Is(err, boom) {
		t.Fatalf("error = %v, want persist failure", err)
	}
	store.persistOverride = nil

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Likes != 0 {
		t.Fatalf("likes = %d, want 0 after failed persist", got.Stats.Likes)
	}
	if likeCount(store) != 0 {
		t.Fatalf("like records = %d, want 0 after failed persist", likeCount(store))
	}
}

func TestListLikedVideos(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	viewer := createTestUser(t, store, "viewer")
	owner := createTestUser(t, store, "owner")
	first := createTestVideo(t, store, owner.ID, "first")
	second := createTestVideo(t, store, owner.ID, "second")
	third := createTestVideo(t, store, owner.ID, "third")

	if _, err := store.SetReaction(ctx, viewer.ID, first.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction first: %v", err)
	}
	if _, err := store.SetReaction(ctx, viewer.ID, second.ID, models.ReactionDislike); err != nil {
		t.Fatalf("SetReaction second: %v", err)
	}
	if _, err := store.SetReaction(ctx, viewer.ID, third.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction third: %v", err)
	}

	liked, err := store.ListLikedVideos(ctx, viewer.ID)
	if err != nil {
		t.Fatalf("ListLikedVideos: %v", err)
	}
	if len(liked) != 2 {
		t.Fatalf("liked videos = %d, want 2 (dislikes excluded)", len(liked))
	}
	for _, entry := range liked {
		if entry.Video.ID == second.ID {
			t.Fatalf("disliked video %s appeared in liked list", second.ID)
		}
		if entry.Channel.ID != owner.ID {
			t.Fatalf("channel = %q, want %q", entry.Channel.ID, owner.ID)
		}
	}
}
