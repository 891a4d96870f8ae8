package models

import (
	"strings"
	"time"
)

// Visibility controls who can discover and watch a video.
type Visibility string

const (
	VisibilityPublic   Visibility = "public"
	VisibilityPrivate  Visibility = "private"
	VisibilityUnlisted Visibility = "unlisted"
)

// ParseVisibility validates a raw visibility value, defaulting to public when
// the input is empty.
func ParseVisibility(raw string) (Visibility, bool) {
	switch Visibility(strings.ToLower(strings.TrimSpace(raw))) {
	case "":
		return VisibilityPublic, true
	case VisibilityPublic:
		return VisibilityPublic, true
	case VisibilityPrivate:
		return VisibilityPrivate, true
	case VisibilityUnlisted:
		return VisibilityUnlisted, true
	default:
		return "", false
	}
}

// ReactionStatus is the state a viewer holds toward a video: like or dislike.
type ReactionStatus string

const (
	ReactionLike    ReactionStatus = "like"
	ReactionDislike ReactionStatus = "dislike"
)

// ParseReactionStatus validates a raw reaction value.
func ParseReactionStatus(raw string) (ReactionStatus, bool) {
	switch ReactionStatus(strings.ToLower(strings.TrimSpace(raw))) {
	case ReactionLike:
		return ReactionLike, true
	case ReactionDislike:
		return ReactionDislike, true
	default:
		return "", false
	}
}

// User doubles as the channel entity: every account owns a channel page and a
// denormalized subscriber count maintained by the subscription lifecycle.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"passwordHash,omitempty"`
	DisplayName        string    `json:"displayName"`
	AvatarURL          string    `json:"avatarUrl,omitempty"`
	ChannelName        string    `json:"channelName"`
	ChannelDescription string    `json:"channelDescription,omitempty"`
	SubscriberCount    int       `json:"subscriberCount"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// Projection returns the minimal public view of the user that is embedded in
// cross-service payloads and listing responses.
func (u User) Projection() UserProjection {
	return UserProjection{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		AvatarURL:   u.AvatarURL,
		ChannelName: u.ChannelName,
	}
}

// UserProjection is the slice of user data other services and enriched
// listings are allowed to see.
type UserProjection struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
	ChannelName string `json:"channelName"`
}

// VideoStats carries the denormalized counters attached to a video. Likes and
// dislikes always equal the count of live Like records with the matching
// status; views are bumped by the read path only.
type VideoStats struct {
	Views    int `json:"views"`
	Likes    int `json:"likes"`
	Dislikes int `json:"dislikes"`
}

type Video struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"ownerId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Tags         []string   `json:"tags"`
	Visibility   Visibility `json:"visibility"`
	VideoURL     string     `json:"videoUrl"`
	ThumbnailURL string     `json:"thumbnailUrl"`
	Stats        VideoStats `json:"stats"`
	CreatedAt    time.Time  `json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`
}

// Like is the relation record behind the likes/dislikes counters. At most one
// live record exists per (user, video) pair.
type Like struct {
	ID        string         `json:"id"`
	UserID    string         `json:"userId"`
	VideoID   string         `json:"videoId"`
	Status    ReactionStatus `json:"status"`
	CreatedAt time.Time      `json:"createdAt"`
	UpdatedAt time.Time      `json:"updatedAt"`
}

// Subscription links a subscriber to a channel. At most one live record exists
// per (subscriber, channel) pair and a user never subscribes to themselves.
type Subscription struct {
	ID           string    `json:"id"`
	SubscriberID string    `json:"subscriberId"`
	ChannelID    string    `json:"channelId"`
	CreatedAt    time.Time `json:"createdAt"`
}

// HistoryEntry records the last time a user watched a video, unique per
// (user, video) pair with last-write-wins semantics.
type HistoryEntry struct {
	ID        string    `json:"id"`
	UserID    string    `json:"userId"`
	VideoID   string    `json:"videoId"`
	WatchedAt time.Time `json:"watchedAt"`
}

// Comment is the shape the remote comment service returns for a single
// comment. The author projection is filled in locally by the gateway.
type Comment struct {
	ID        string          `json:"id"`
	VideoID   string          `json:"videoId"`
	UserID    string          `json:"userId"`
	Content   string          `json:"content"`
	CreatedAt time.Time       `json:"createdAt"`
	User      *UserProjection `json:"user,omitempty"`
}
