package storage

import (
	"context"
	"sort"
	"time"

	"clipstream/internal/models"
)

func historyKeyFor(userID, videoID string) string {
	return userID + ":" + videoID
}

// UpsertHistory records that userID watched videoID. Re-watching refreshes the
// existing entry's timestamp instead of appending a duplicate.
func (s *Storage) UpsertHistory(ctx context.Context, userID, videoID string) (models.HistoryEntry, error) {
	if err := ctx.Err(); err != nil {
		return models.HistoryEntry{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[userID]; !ok {
		return models.HistoryEntry{}, ErrNotFound
	}
	if _, ok := s.data.Videos[videoID]; !ok {
		return models.HistoryEntry{}, ErrNotFound
	}

	key := historyKeyFor(userID, videoID)
	now := time.Now().UTC()

	entry, ok := s.data.History[key]
	if ok {
		entry.WatchedAt = now
	} else {
		id, err := generateID()
		if err != nil {
			return models.HistoryEntry{}, err
		}
		entry = models.HistoryEntry{
			ID:        id,
			UserID:    userID,
			VideoID:   videoID,
			WatchedAt: now,
		}
	}

	updatedData := cloneDataset(s.data)
	updatedData.History[key] = entry
	if err := s.persistDataset(updatedData); err != nil {
		return models.HistoryEntry{}, err
	}
	s.data = updatedData

	return entry, nil
}

// ListHistory returns the user's watch history, most recent first.
func (s *Storage) ListHistory(ctx context.Context, userID string) ([]WatchedVideo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	watched := make([]WatchedVideo, 0)
	for _, entry := range s.data.History {
		if entry.UserID != userID {
			continue
		}
		video, ok := s.data.Videos[entry.VideoID]
		if !ok {
			continue
		}
		item := WatchedVideo{Video: video, WatchedAt: entry.WatchedAt}
		if owner, ok := s.data.Users[video.OwnerID]; ok {
			item.Channel = owner.Projection()
		}
		watched = append(watched, item)
	}

	sort.Slice(watched, func(i, j int) bool {
		if !watched[i].WatchedAt.Equal(watched[j].WatchedAt) {
			return watched[i].WatchedAt.After(watched[j].WatchedAt)
		}
		return watched[i].Video.ID < watched[j].Video.ID
	})

	return watched, nil
}
