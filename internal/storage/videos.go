package storage

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"

	"clipstream/internal/models"
)

// searchFolder normalizes strings for case- and width-insensitive matching.
var searchFolder = cases.Fold()

func foldForSearch(value string) string {
	return searchFolder.String(strings.TrimSpace(value))
}

func (s *Storage) CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}
	title := strings.TrimSpace(params.Title)
	if title == "" {
		return models.Video{}, errors.New("title is required")
	}
	if strings.TrimSpace(params.VideoURL) == "" {
		return models.Video{}, errors.New("video URL is required")
	}

	id, err := generateID()
	if err != nil {
		return models.Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[params.OwnerID]; !ok {
		return models.Video{}, ErrNotFound
	}

	now := time.Now().UTC()
	video := models.Video{
		ID:           id,
		OwnerID:      params.OwnerID,
		Title:        title,
		Description:  strings.TrimSpace(params.Description),
		Tags:         normalizeTags(params.Tags),
		Visibility:   params.Visibility,
		VideoURL:     strings.TrimSpace(params.VideoURL),
		ThumbnailURL: strings.TrimSpace(params.ThumbnailURL),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if video.Visibility == "" {
		video.Visibility = models.VisibilityPublic
	}

	updatedData := cloneDataset(s.data)
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

func normalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(tags))
	normalized := make([]string, 0, len(tags))
	for _, tag := range tags {
		folded := foldForSearch(tag)
		if folded == "" {
			continue
		}
		if _, ok := seen[folded]; ok {
			continue
		}
		seen[folded] = struct{}{}
		normalized = append(normalized, folded)
	}
	if len(normalized) == 0 {
		return nil
	}
	return normalized
}

func (s *Storage) GetVideo(ctx context.Context, id string) (models.Video, bool, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	video, ok := s.data.Videos[id]
	return video, ok, nil
}

// WatchVideo returns the video and bumps its view counter.
func (s *Storage) WatchVideo(ctx context.Context, id string) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[id]
	if !ok {
		return models.Video{}, ErrNotFound
	}

	video.Stats.Views++
	video.UpdatedAt = time.Now().UTC()

	updatedData := cloneDataset(s.data)
	updatedData.Videos[id] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

// UpdateVideo applies the partial update when videoID belongs to ownerID. The
// ownership check is folded into the lookup so callers cannot distinguish a
// missing video from somebody else's.
func (s *Storage) UpdateVideo(ctx context.Context, videoID, ownerID string, update VideoUpdate) (models.Video, error) {
	if err := ctx.Err(); err != nil {
		return models.Video{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[videoID]
	if !ok || video.OwnerID != ownerID {
		return models.Video{}, ErrNotFoundOrForbidden
	}

	if update.Title != nil {
		title := strings.TrimSpace(*update.Title)
		if title == "" {
			return models.Video{}, errors.New("title cannot be empty")
		}
		video.Title = title
	}
	if update.Description != nil {
		video.Description = strings.TrimSpace(*update.Description)
	}
	if update.Tags != nil {
		video.Tags = normalizeTags(*update.Tags)
	}
	if update.Visibility != nil {
		video.Visibility = *update.Visibility
	}
	video.UpdatedAt = time.Now().UTC()

	updatedData := cloneDataset(s.data)
	updatedData.Videos[videoID] = video
	if err := s.persistDataset(updatedData); err != nil {
		return models.Video{}, err
	}
	s.data = updatedData

	return video, nil
}

func (s *Storage) ListVideos(ctx context.Context, filter VideoFilter) ([]models.Video, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	query := foldForSearch(filter.Query)
	tag := foldForSearch(filter.Tag)

	videos := make([]models.Video, 0, len(s.data.Videos))
	for _, video := range s.data.Videos {
		if filter.ChannelID != "" && video.OwnerID != filter.ChannelID {
			continue
		}
		if filter.ChannelID == "" && video.Visibility != models.VisibilityPublic {
			continue
		}
		if query != "" && !strings.Contains(foldForSearch(video.Title), query) &&
			!strings.Contains(foldForSearch(video.Description), query) {
			continue
		}
		if tag != "" && !containsTag(video.Tags, tag) {
			continue
		}
		videos = append(videos, video)
	}

	switch filter.Sort {
	case SortPopular:
		sort.Slice(videos, func(i, j int) bool {
			if videos[i].Stats.Views != videos[j].Stats.Views {
				return videos[i].Stats.Views > videos[j].Stats.Views
			}
			return videos[i].CreatedAt.After(videos[j].CreatedAt)
		})
	default:
		sort.Slice(videos, func(i, j int) bool {
			if !videos[i].CreatedAt.Equal(videos[j].CreatedAt) {
				return videos[i].CreatedAt.After(videos[j].CreatedAt)
			}
			return videos[i].ID < videos[j].ID
		})
	}

	return paginateVideos(videos, filter.Offset, filter.Limit), nil
}

func containsTag(tags []string, tag string) bool {
	for _, candidate := range tags {
		if candidate == tag {
			return true
		}
	}
	return false
}

func paginateVideos(videos []models.Video, offset, limit int) []models.Video {
	if offset < 0 {
		offset = 0
	}
	if offset >= len(videos) {
		return []models.Video{}
	}
	videos = videos[offset:]
	if limit > 0 && limit < len(videos) {
		videos = videos[:limit]
	}
	return videos
}

// DeleteVideo removes the video and cascades to its reactions and history
// entries in one unit. Deleting somebody else's video reports
// ErrNotFoundOrForbidden without touching any record.
func (s *Storage) DeleteVideo(ctx context.Context, videoID, ownerID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	video, ok := s.data.Videos[videoID]
	if !ok || video.OwnerID != ownerID {
		return ErrNotFoundOrForbidden
	}

	updatedData := cloneDataset(s.data)
	delete(updatedData.Videos, videoID)
	for likeID, like := range updatedData.Likes {
		if like.VideoID == videoID {
			delete(updatedData.Likes, likeID)
		}
	}
	for entryID, entry := range updatedData.History {
		if entry.VideoID == videoID {
			delete(updatedData.History, entryID)
		}
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData

	return nil
}

// VideoAggregates sums upload and view counts across a channel's videos.
func (s *Storage) VideoAggregates(ctx context.Context, channelID string) (VideoAggregates, error) {
	if err := ctx.Err(); err != nil {
		return VideoAggregates{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var agg VideoAggregates
	for _, video := range s.data.Videos {
		if video.OwnerID != channelID {
			continue
		}
		agg.Videos++
		agg.Views += video.Stats.Views
	}
	return agg, nil
}
