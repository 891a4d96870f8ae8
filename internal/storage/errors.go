package storage

import "errors"

// Error kinds surfaced by repositories. Handlers map these onto HTTP statuses;
// anything not listed here is treated as an internal error and logged without
// leaking detail to the caller.
var (
	// ErrNotFound covers missing entities and missing relation records.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a write conflict persists after the
	// bounded internal retries, or when a uniqueness constraint fires
	// outside the cases with a more specific kind below.
	ErrConflict = errors.New("conflict")

	// ErrSelfSubscription rejects a user subscribing to their own channel.
	// It is checked before any store access.
	ErrSelfSubscription = errors.New("cannot subscribe to your own channel")

	// ErrAlreadySubscribed reports a duplicate (subscriber, channel) pair.
	ErrAlreadySubscribed = errors.New("already subscribed to this channel")

	// ErrNotSubscribed reports an unsubscribe that removed zero records.
	ErrNotSubscribed = errors.New("not subscribed to this channel")

	// ErrNotFoundOrForbidden is the deliberately opaque failure for video
	// deletion and owner-filtered updates: it does not reveal whether the
	// video is missing or owned by someone else.
	ErrNotFoundOrForbidden = errors.New("video not found or not editable by requester")

	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailInUse         = errors.New("email already in use")
	ErrChannelNameInUse   = errors.New("channel name already in use")
)
