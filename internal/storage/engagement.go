package storage

import (
	"context"
	"sort"
	"time"

	"clipstream/internal/models"
)

// likeKey indexes reactions by the (user, video) pair that uniquely owns them.
func likeKeyFor(userID, videoID string) string {
	return userID + ":" + videoID
}

func findLikeLocked(data dataset, userID, videoID string) (models.Like, bool) {
	like, ok := data.Likes[likeKeyFor(userID, videoID)]
	return like, ok
}

// adjustLikeCounters is the single chokepoint that moves a video's denormalized
// like/dislike counters. Deltas are clamped at zero so a replayed decrement can
// never drive a counter negative.
func adjustLikeCounters(video *models.Video, status models.ReactionStatus, delta int) {
	switch status {
	case models.ReactionLike:
		video.Stats.Likes += delta
		if video.Stats.Likes < 0 {
			video.Stats.Likes = 0
		}
	case models.ReactionDislike:
		video.Stats.Dislikes += delta
		if video.Stats.Dislikes < 0 {
			video.Stats.Dislikes = 0
		}
	}
}

// SetReaction records userID's reaction to videoID. Repeating the current
// reaction changes nothing; switching direction moves both counters in the
// same unit so the totals never drift from the reaction records.
func (s *Storage) SetReaction(ctx context.Context, userID, videoID string, status models.ReactionStatus) (ReactionResult, error) {
	if err := ctx.Err(); err != nil {
		return ReactionResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return ReactionResult{}, ErrNotFound
	}
	video, ok := s.data.Videos[videoID]
	if !ok {
		return ReactionResult{}, ErrNotFound
	}

	existing, hasExisting := findLikeLocked(s.data, userID, videoID)
	if hasExisting && existing.Status == status {
		return ReactionResult{Changed: false, Status: status}, nil
	}

	now := time.Now().UTC()
	updatedData := cloneDataset(s.data)

	if hasExisting {
		adjustLikeCounters(&video, existing.Status, -1)
		existing.Status = status
		existing.UpdatedAt = now
		updatedData.Likes[likeKeyFor(userID, videoID)] = existing
	} else {
		id, err := generateID()
		if err != nil {
			return ReactionResult{}, err
		}
		updatedData.Likes[likeKeyFor(userID, videoID)] = models.Like{
			ID:        id,
			UserID:    userID,
			VideoID:   videoID,
			Status:    status,
			CreatedAt: now,
			UpdatedAt: now,
		}
	}
	adjustLikeCounters(&video, status, 1)
	video.UpdatedAt = now
	updatedData.Videos[videoID] = video

	if err := s.persistDataset(updatedData); err != nil {
		return ReactionResult{}, err
	}
	s.data = updatedData

	return ReactionResult{Changed: true, Status: status}, nil
}

// RemoveReaction deletes userID's reaction to videoID and decrements the
// matching counter. A second removal reports ErrNotFound.
func (s *Storage) RemoveReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := findLikeLocked(s.data, userID, videoID)
	if !ok {
		return "", ErrNotFound
	}

	updatedData := cloneDataset(s.data)
	delete(updatedData.Likes, likeKeyFor(userID, videoID))

	if video, ok := updatedData.Videos[videoID]; ok {
		adjustLikeCounters(&video, existing.Status, -1)
		video.UpdatedAt = time.Now().UTC()
		updatedData.Videos[videoID] = video
	}

	if err := s.persistDataset(updatedData); err != nil {
		return "", err
	}
	s.data = updatedData

	return existing.Status, nil
}

func (s *Storage) GetReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, bool, error) {
	if err := ctx.Err(); err != nil {
		return "", false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	like, ok := findLikeLocked(s.data, userID, videoID)
	if !ok {
		return "", false, nil
	}
	return like.Status, true, nil
}

// ListLikedVideos returns the videos userID has liked, most recent reaction
// first, each joined with its channel for rendering.
func (s *Storage) ListLikedVideos(ctx context.Context, userID string) ([]LikedVideo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	liked := make([]LikedVideo, 0)
	for _, like := range s.data.Likes {
		if like.UserID != userID || like.Status != models.ReactionLike {
			continue
		}
		video, ok := s.data.Videos[like.VideoID]
		if !ok {
			continue
		}
		entry := LikedVideo{Video: video, LikedAt: like.UpdatedAt}
		if owner, ok := s.data.Users[video.OwnerID]; ok {
			entry.Channel = owner.Projection()
		}
		liked = append(liked, entry)
	}

	sort.Slice(liked, func(i, j int) bool {
		if !liked[i].LikedAt.Equal(liked[j].LikedAt) {
			return liked[i].LikedAt.After(liked[j].LikedAt)
		}
		return liked[i].Video.ID < liked[j].Video.ID
	})

	return liked, nil
}
