package storage

import (
	"context"
	"sort"
	"time"

	"clipstream/internal/models"
)

func subscriptionKeyFor(subscriberID, channelID string) string {
	return subscriberID + ":" + channelID
}

// Subscribe records subscriberID following channelID and bumps the channel's
// subscriber counter in the same unit. Subscribing to yourself is rejected
// before any record is touched.
func (s *Storage) Subscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if subscriberID == channelID {
		return ErrSelfSubscription
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.data.Users[subscriberID]; !ok {
		return ErrNotFound
	}
	channel, ok := s.data.Users[channelID]
	if !ok {
		return ErrNotFound
	}
	if _, ok := s.data.Subscriptions[subscriptionKeyFor(subscriberID, channelID)]; ok {
		return ErrAlreadySubscribed
	}

	id, err := generateID()
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	channel.SubscriberCount++
	channel.UpdatedAt = now

	updatedData := cloneDataset(s.data)
	updatedData.Subscriptions[subscriptionKeyFor(subscriberID, channelID)] = models.Subscription{
		ID:           id,
		SubscriberID: subscriberID,
		ChannelID:    channelID,
		CreatedAt:    now,
	}
	updatedData.Users[channelID] = channel

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData

	return nil
}

// Unsubscribe removes the subscription and decrements the channel counter.
// Removing a subscription that does not exist reports ErrNotSubscribed.
func (s *Storage) Unsubscribe(ctx context.Context, subscriberID, channelID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := subscriptionKeyFor(subscriberID, channelID)
	if _, ok := s.data.Subscriptions[key]; !ok {
		return ErrNotSubscribed
	}

	updatedData := cloneDataset(s.data)
	delete(updatedData.Subscriptions, key)

	if channel, ok := updatedData.Users[channelID]; ok {
		channel.SubscriberCount--
		if channel.SubscriberCount < 0 {
			channel.SubscriberCount = 0
		}
		channel.UpdatedAt = time.Now().UTC()
		updatedData.Users[channelID] = channel
	}

	if err := s.persistDataset(updatedData); err != nil {
		return err
	}
	s.data = updatedData

	return nil
}

func (s *Storage) IsSubscribed(ctx context.Context, subscriberID, channelID string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.data.Subscriptions[subscriptionKeyFor(subscriberID, channelID)]
	return ok, nil
}

// ListSubscribedChannels returns the channels subscriberID follows, most
// recently subscribed first.
func (s *Storage) ListSubscribedChannels(ctx context.Context, subscriberID string) ([]SubscribedChannel, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	channels := make([]SubscribedChannel, 0)
	for _, sub := range s.data.Subscriptions {
		if sub.SubscriberID != subscriberID {
			continue
		}
		channel, ok := s.data.Users[sub.ChannelID]
		if !ok {
			continue
		}
		channels = append(channels, SubscribedChannel{
			Channel:         channel.Projection(),
			SubscriberCount: channel.SubscriberCount,
			SubscribedAt:    sub.CreatedAt,
		})
	}

	sort.Slice(channels, func(i, j int) bool {
		if !channels[i].SubscribedAt.Equal(channels[j].SubscribedAt) {
			return channels[i].SubscribedAt.After(channels[j].SubscribedAt)
		}
		return channels[i].Channel.ID < channels[j].Channel.ID
	})

	return channels, nil
}
