package storage

import (
	"context"
	"time"

	"clipstream/internal/models"
)

// Repository exposes the datastore operations required by the API handlers
// and the comment gateway. Two implementations exist: the JSON file store and
// the Postgres repository.
type Repository interface {
	Ping(ctx context.Context) error

	CreateUser(ctx context.Context, params CreateUserParams) (models.User, error)
	AuthenticateUser(ctx context.Context, email, password string) (models.User, error)
	GetUser(ctx context.Context, id string) (models.User, bool, error)
	GetUsers(ctx context.Context, ids []string) (map[string]models.User, error)
	UpdateUser(ctx context.Context, id string, update UserUpdate) (models.User, error)

	CreateVideo(ctx context.Context, params CreateVideoParams) (models.Video, error)
	GetVideo(ctx context.Context, id string) (models.Video, bool, error)
	WatchVideo(ctx context.Context, id string) (models.Video, error)
	UpdateVideo(ctx context.Context, videoID, ownerID string, update VideoUpdate) (models.Video, error)
	ListVideos(ctx context.Context, filter VideoFilter) ([]models.Video, error)
	DeleteVideo(ctx context.Context, videoID, ownerID string) error

	SetReaction(ctx context.Context, userID, videoID string, status models.ReactionStatus) (ReactionResult, error)
	RemoveReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, error)
	GetReaction(ctx context.Context, userID, videoID string) (models.ReactionStatus, bool, error)
	ListLikedVideos(ctx context.Context, userID string) ([]LikedVideo, error)

	Subscribe(ctx context.Context, subscriberID, channelID string) error
	Unsubscribe(ctx context.Context, subscriberID, channelID string) error
	IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error)
	ListSubscribedChannels(ctx context.Context, subscriberID string) ([]SubscribedChannel, error)

	UpsertHistory(ctx context.Context, userID, videoID string) (models.HistoryEntry, error)
	ListHistory(ctx context.Context, userID string) ([]WatchedVideo, error)

	VideoAggregates(ctx context.Context, channelID string) (VideoAggregates, error)
}

// CreateUserParams captures the attributes set when registering an account.
type CreateUserParams struct {
	Email       string
	Password    string
	DisplayName string
	ChannelName string
	AvatarURL   string
}

// UserUpdate carries optional profile changes; nil fields are left untouched.
type UserUpdate struct {
	DisplayName        *string
	AvatarURL          *string
	ChannelName        *string
	ChannelDescription *string
}

// CreateVideoParams captures the metadata stored when a video is published.
// The media and thumbnail URLs are opaque strings produced by the upload
// pipeline.
type CreateVideoParams struct {
	OwnerID      string
	Title        string
	Description  string
	Tags         []string
	Visibility   models.Visibility
	VideoURL     string
	ThumbnailURL string
}

// VideoUpdate carries optional metadata changes; nil fields are left
// untouched.
type VideoUpdate struct {
	Title       *string
	Description *string
	Tags        *[]string
	Visibility  *models.Visibility
}

// VideoSort selects the ordering for video listings.
type VideoSort string

const (
	SortNewest  VideoSort = "newest"
	SortPopular VideoSort = "popular"
)

// VideoFilter narrows and pages public video listings.
type VideoFilter struct {
	Query     string
	Tag       string
	ChannelID string
	Sort      VideoSort
	Offset    int
	Limit     int
}

// ReactionResult reports the outcome of a SetReaction call. Changed is false
// when the requested status was already in place and nothing was written.
type ReactionResult struct {
	Changed bool                  `json:"changed"`
	Status  models.ReactionStatus `json:"status"`
}

// LikedVideo joins a like relation with its video and channel for listings.
type LikedVideo struct {
	Video   models.Video          `json:"video"`
	Channel models.UserProjection `json:"channel"`
	LikedAt time.Time             `json:"likedAt"`
}

// SubscribedChannel is a channel entry on the viewer's subscription list.
type SubscribedChannel struct {
	Channel         models.UserProjection `json:"channel"`
	SubscriberCount int                   `json:"subscriberCount"`
	SubscribedAt    time.Time             `json:"subscribedAt"`
}

// WatchedVideo joins a history record with its video and channel.
type WatchedVideo struct {
	Video     models.Video          `json:"video"`
	Channel   models.UserProjection `json:"channel"`
	WatchedAt time.Time             `json:"watchedAt"`
}

// VideoAggregates summarises a channel's public catalogue.
type VideoAggregates struct {
	Videos int `json:"totalVideos"`
	Views  int `json:"totalViews"`
}

var (
	_ Repository = (*Storage)(nil)
	_ Repository = (*PostgresRepository)(nil)
)
