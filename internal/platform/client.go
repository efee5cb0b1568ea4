package platform

import (
	"context"
	"errors"
)

// ErrNotFound marks responses saying the target no longer exists, for
// example deleting an already-deleted message. Callers treat it as success
// when the desired end state is already in place.
var ErrNotFound = errors.New("platform: not found")

// ErrBadRequest marks the malformed-request signature some member-removal
// endpoints return; the enforcer retries those once through the direct
// call path.
var ErrBadRequest = errors.New("platform: bad request")

// Client is the messaging-platform capability the engine enforces through.
// The wire protocol behind it is not this module's concern.
type Client interface {
	// DeleteMessage removes a message by id. Returns ErrNotFound when the
	// message is already gone.
	DeleteMessage(ctx context.Context, chatID int64, messageID string) error

	// SendNotice posts a bot message to the chat and returns its id so the
	// caller can schedule its deletion.
	SendNotice(ctx context.Context, chatID int64, text string) (string, error)

	// RemoveMember kicks a user; block additionally prevents rejoining.
	RemoveMember(ctx context.Context, chatID, userID int64, block bool) error

	// RemoveMemberDirect performs the same removal through the lower-level
	// members endpoint, carrying the same parameters differently. Used as a
	// fallback when RemoveMember fails with ErrBadRequest.
	RemoveMemberDirect(ctx context.Context, chatID, userID int64, block bool) error

	// AddMember re-adds a previously removed user (pending rejoin).
	AddMember(ctx context.Context, chatID, userID int64) error
}

// AdminResolver answers whether a user is an admin of a chat. Resolution is
// external; implementations are expected to cache.
type AdminResolver interface {
	IsAdmin(ctx context.Context, chatID, userID int64) (bool, error)
}
