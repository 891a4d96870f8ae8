package events

import "time"

// EventType enumerates the engagement events flowing through the queue.
type EventType string

const (
	// EventTypeReaction is emitted when a reaction is set, switched, or
	// removed.
	EventTypeReaction EventType = "reaction"
	// EventTypeSubscription is emitted on subscribe and unsubscribe.
	EventTypeSubscription EventType = "subscription"
	// EventTypeVideoDeleted is emitted after a video and its dependent
	// records have been removed.
	EventTypeVideoDeleted EventType = "video_deleted"
)

// Event is the wire representation forwarded to the queue. Exactly one of the
// payload pointers is set, matching Type.
type Event struct {
	Type         EventType          `json:"type"`
	Reaction     *ReactionEvent     `json:"reaction,omitempty"`
	Subscription *SubscriptionEvent `json:"subscription,omitempty"`
	VideoDeleted *VideoDeletedEvent `json:"videoDeleted,omitempty"`
	OccurredAt   time.Time          `json:"occurredAt"`
}

// ReactionEvent records a reaction change on a video. Status is empty when the
// reaction was removed.
type ReactionEvent struct {
	UserID  string `json:"userId"`
	VideoID string `json:"videoId"`
	Status  string `json:"status,omitempty"`
	Removed bool   `json:"removed,omitempty"`
}

// SubscriptionEvent records a change to a channel's subscriber set.
type SubscriptionEvent struct {
	SubscriberID string `json:"subscriberId"`
	ChannelID    string `json:"channelId"`
	Subscribed   bool   `json:"subscribed"`
}

// VideoDeletedEvent records a completed cascade deletion.
type VideoDeletedEvent struct {
	VideoID string `json:"videoId"`
	OwnerID string `json:"ownerId"`
}
