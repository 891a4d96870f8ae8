package storage

import (
	"context"
	"errors"
	"testing"

	"clipstream/internal/models"
)

func TestCreateVideoDefaults(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")

	video, err := store.CreateVideo(context.Background(), CreateVideoParams{
		OwnerID:  owner.ID,
		Title:    "My Clip",
		VideoURL: "https://cdn.example.com/clip.mp4",
		Tags:     []string{"Go", "go", " tutorial "},
	})
	if err != nil {
		t.Fatalf("CreateVideo: %v", err)
	}
	if video.Visibility != models.VisibilityPublic {
		t.Fatalf("visibility = %q, want public", video.Visibility)
	}
	if len(video.Tags) != 2 {
		t.Fatalf("tags = %v, want duplicates folded away", video.Tags)
	}
}

func TestCreateVideoValidation(t *testing.T) {
	store := newTestStore(t)
	owner := createTestUser(t, store, "owner")
	ctx := context.Background()

	if _, err := store.CreateVideo(ctx, CreateVideoParams{OwnerID: owner.ID, VideoURL: "x"}); err == nil {
		t.Fatalf("expected error for missing title")
	}
	if _, err := store.CreateVideo(ctx, CreateVideoParams{OwnerID: "missing", Title: "t", VideoURL: "x"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("error = %v, want ErrNotFound for unknown owner", err)
	}
}

func TestWatchVideoIncrementsViews(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	video := createTestVideo(t, store, owner.ID, "clip")

	for i := 0; i < 3; i++ {
		if _, err := store.WatchVideo(ctx, video.ID); err != nil {
			t.Fatalf("WatchVideo: %v", err)
		}
	}

	got, _, err := store.GetVideo(ctx, video.ID)
	if err != nil {
		t.Fatalf("GetVideo: %v", err)
	}
	if got.Stats.Views != 3 {
		t.Fatalf("views = %d, want 3", got.Stats.Views)
	}
}

func TestUpdateVideoOwnerFiltered(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	other := createTestUser(t, store, "other")
	video := createTestVideo(t, store, owner.ID, "clip")

	title := "Renamed"
	if _, err := store.UpdateVideo(ctx, video.ID, other.ID, VideoUpdate{Title: &title}); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("foreign update error = %v, want ErrNotFoundOrForbidden", err)
	}

	updated, err := store.UpdateVideo(ctx, video.ID, owner.ID, VideoUpdate{Title: &title})
	if err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}
	if updated.Title != "Renamed" {
		t.Fatalf("title = %q, want Renamed", updated.Title)
	}
}

func TestListVideosFilters(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")

	visibility := models.VisibilityPrivate
	public := createTestVideo(t, store, owner.ID, "Go Concurrency Patterns")
	hidden := createTestVideo(t, store, owner.ID, "Secret Draft")
	if _, err := store.UpdateVideo(ctx, hidden.ID, owner.ID, VideoUpdate{Visibility: &visibility}); err != nil {
		t.Fatalf("UpdateVideo: %v", err)
	}

	listed, err := store.ListVideos(ctx, VideoFilter{})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != public.ID {
		t.Fatalf("public listing = %v, want only %s", listed, public.ID)
	}

	matched, err := store.ListVideos(ctx, VideoFilter{Query: "CONCURRENCY"})
	if err != nil {
		t.Fatalf("ListVideos query: %v", err)
	}
	if len(matched) != 1 {
		t.Fatalf("query matches = %d, want 1 (case-folded)", len(matched))
	}

	none, err := store.ListVideos(ctx, VideoFilter{Query: "rust"})
	if err != nil {
		t.Fatalf("ListVideos miss: %v", err)
	}
	if len(none) != 0 {
		t.Fatalf("query matches = %d, want 0", len(none))
	}
}

func TestListVideosSortPopular(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	quiet := createTestVideo(t, store, owner.ID, "quiet")
	loud := createTestVideo(t, store, owner.ID, "loud")

	for i := 0; i < 5; i++ {
		if _, err := store.WatchVideo(ctx, loud.ID); err != nil {
			t.Fatalf("WatchVideo: %v", err)
		}
	}

	listed, err := store.ListVideos(ctx, VideoFilter{Sort: SortPopular})
	if err != nil {
		t.Fatalf("ListVideos: %v", err)
	}
	if len(listed) != 2 || listed[0].ID != loud.ID || listed[1].ID != quiet.ID {
		t.Fatalf("popular order wrong: %v", listed)
	}
}

func TestDeleteVideoCascades(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	viewer := createTestUser(t, store, "viewer")
	video := createTestVideo(t, store, owner.ID, "doomed")
	kept := createTestVideo(t, store, owner.ID, "kept")

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction: %v", err)
	}
	if _, err := store.SetReaction(ctx, viewer.ID, kept.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction kept: %v", err)
	}
	if _, err := store.UpsertHistory(ctx, viewer.ID, video.ID); err != nil {
		t.Fatalf("UpsertHistory: %v", err)
	}

	if err := store.DeleteVideo(ctx, video.ID, owner.ID); err != nil {
		t.Fatalf("DeleteVideo: %v", err)
	}

	if _, ok, _ := store.GetVideo(ctx, video.ID); ok {
		t.Fatalf("video still present after delete")
	}
	if likeCount(store) != 1 {
		t.Fatalf("like records = %d, want 1 (only the kept video's)", likeCount(store))
	}
	if historyCount(store) != 0 {
		t.Fatalf("history records = %d, want 0", historyCount(store))
	}
}

func TestDeleteVideoForeignOwnerLeavesEverything(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	intruder := createTestUser(t, store, "intruder")
	viewer := createTestUser(t, store, "viewer")
	video := createTestVideo(t, store, owner.ID, "clip")

	if _, err := store.SetReaction(ctx, viewer.ID, video.ID, models.ReactionLike); err != nil {
		t.Fatalf("SetReaction: %v", err)
	}

	if err := store.DeleteVideo(ctx, video.ID, intruder.ID); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("error = %v, want ErrNotFoundOrForbidden", err)
	}
	if err := store.DeleteVideo(ctx, "missing", intruder.ID); !errors.Is(err, ErrNotFoundOrForbidden) {
		t.Fatalf("missing video error = %v, want ErrNotFoundOrForbidden", err)
	}

	if _, ok, _ := store.GetVideo(ctx, video.ID); !ok {
		t.Fatalf("video removed by foreign delete")
	}
	if likeCount(store) != 1 {
		t.Fatalf("like records = %d, want 1", likeCount(store))
	}
}

func TestVideoAggregates(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()
	owner := createTestUser(t, store, "owner")
	first := createTestVideo(t, store, owner.ID, "first")
	createTestVideo(t, store, owner.ID, "second")

	for i := 0; i < 4; i++ {
		if _, err := store.WatchVideo(ctx, first.ID); err != nil {
			t.Fatalf("WatchVideo: %v", err)
		}
	}

	agg, err := store.VideoAggregates(ctx, owner.ID)
	if err != nil {
		t.Fatalf("VideoAggregates: %v", err)
	}
	if agg.Videos != 2 || agg.Views != 4 {
		t.Fatalf("aggregates = %+v, want 2 videos / 4 views", agg)
	}
}
