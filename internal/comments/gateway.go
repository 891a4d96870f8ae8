package comments

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"clipstream/internal/models"
	"clipstream/internal/storage"
)

// placeholderDisplayName stands in for authors whose account no longer exists
// locally. The remote comment record is kept as-is.
const placeholderDisplayName = "Unknown User"

// Store is the slice of the repository the gateway needs for existence checks
// and author enrichment.
type Store interface {
	GetVideo(ctx context.Context, id string) (models.Video, bool, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
}

// Gateway proxies the remote comment service, validating videos and enriching
// author identity from the local user store. Comment content itself is owned
// by the remote service.
type Gateway struct {
	client *Client
	store  Store
	logger *slog.Logger
}

// NewGateway wires the comment client to the local store.
func NewGateway(client *Client, store Store, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{client: client, store: store, logger: logger}
}

// CreateComment validates the video and author locally, then forwards the
// comment with the author's current projection attached. Upstream errors pass
// through untouched.
func (g *Gateway) CreateComment(ctx context.Context, videoID, userID, content string) (models.Comment, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Comment{}, errors.New("content is required")
	}

	if _, ok, err := g.store.GetVideo(ctx, videoID); err != nil {
		return models.Comment{}, err
	} else if !ok {
		return models.Comment{}, storage.ErrNotFound
	}
	user, ok, err := g.store.GetUser(ctx, userID)
	if err != nil {
		return models.Comment{}, err
	}
	if !ok {
		return models.Comment{}, storage.ErrNotFound
	}

	projection := user.Projection()
	created, err := g.client.Create(ctx, createCommentRequest{
		VideoID: videoID,
		UserID:  userID,
		Content: content,
		User:    projection,
	})
	if err != nil {
		return models.Comment{}, err
	}

	return models.Comment{
		ID:        created.ID,
		VideoID:   created.VideoID,
		UserID:    created.UserID,
		Content:   created.Content,
		CreatedAt: created.CreatedAt,
		User:      &projection,
	}, nil
}

// ListComments fetches the raw comments and joins each author from the local
// store in one batched lookup. Authors that no longer exist are rendered with
// a placeholder identity instead of being dropped.
func (g *Gateway) ListComments(ctx context.Context, videoID string) ([]models.Comment, error) {
	if _, ok, err := g.store.GetVideo(ctx, videoID); err != nil {
		return nil, err
	} else if !ok {
		return nil, storage.ErrNotFound
	}

	remote, err := g.client.List(ctx, videoID)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(remote))
	ids := make([]string, 0, len(remote))
	for _, comment := range remote {
		if _, ok := seen[comment.UserID]; ok {
			continue
		}
		seen[comment.UserID] = struct{}{}
		ids = append(ids, comment.UserID)
	}

	users, err := g.store.GetUsers(ctx, ids)
	if err != nil {
		return nil, err
	}

	enriched := make([]models.Comment, 0, len(remote))
	for _, comment := range remote {
		entry := models.Comment{
			ID:        comment.ID,
			VideoID:   comment.VideoID,
			UserID:    comment.UserID,
			Content:   comment.Content,
			CreatedAt: comment.CreatedAt,
		}
		if user, ok := users[comment.UserID]; ok {
			projection := user.Projection()
			entry.User = &projection
		} else {
			entry.User = &models.UserProjection{
				ID:          comment.UserID,
				DisplayName: placeholderDisplayName,
			}
		}
		enriched = append(enriched, entry)
	}
	return enriched, nil
}

// DeleteComment forwards the removal to the comment service. Authorization is
// enforced remotely against the acting user.
func (g *Gateway) DeleteComment(ctx context.Context, commentID, userID string) error {
	return g.client.Delete(ctx, commentID, userID)
}
