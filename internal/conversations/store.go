// Package conversations provides authoritative persistence for chat
// conversations and their append-only message logs. Every query is
// scoped by the owning user; a conversation owned by someone else is
// indistinguishable from a missing one.
package conversations

import (
	"context"
	"errors"

	"github.com/farewatch/farewatch/pkg/models"
)

// ErrNotFound is returned for missing conversations and for
// conversations owned by a different user.
var ErrNotFound = errors.New("conversation not found")

// Store is the interface for conversation persistence.
type Store interface {
	// Create starts a new conversation for the user.
	Create(ctx context.Context, userID, title string) (*models.Conversation, error)

	// Get returns the conversation iff it is owned by userID.
	Get(ctx context.Context, id, userID string) (*models.Conversation, error)

	// GetOrCreate returns the conversation when id is set and owned by
	// userID, and creates a fresh one otherwise. It never returns
	// another user's conversation.
	GetOrCreate(ctx context.Context, id, userID string) (*models.Conversation, error)

	// List returns the user's conversations ordered by updated_at
	// descending. limit is clamped to [1,100]; negative offsets are
	// treated as zero.
	List(ctx context.Context, userID string, limit, offset int) ([]*models.Conversation, error)

	// SetTitle assigns a title to the conversation.
	SetTitle(ctx context.Context, id, title string) error

	// Append adds one message to the conversation log and advances the
	// conversation's updated_at to the message's created_at.
	Append(ctx context.Context, conversationID string, msg *models.Message) (*models.Message, error)

	// AppendTurn persists the finalization of one utterance atomically:
	// the given messages are appended in order and the log is pruned to
	// the keep most recent entries. Either all of it happens or none.
	AppendTurn(ctx context.Context, conversationID string, msgs []*models.Message, keep int) error

	// Messages returns the conversation's messages in ascending
	// created_at order. limit <= 0 returns the full log.
	Messages(ctx context.Context, conversationID string, limit int) ([]*models.Message, error)

	// MessagesForContext selects the suffix of the log that fits within
	// the configured token budget after reserving room for systemPrompt.
	// The newest message is always included even when it alone exceeds
	// the budget.
	MessagesForContext(ctx context.Context, conversationID, systemPrompt string) ([]*models.Message, error)

	// PruneOldest deletes messages so that at most keep most recent
	// remain, returning the number removed. keep=0 deletes all.
	PruneOldest(ctx context.Context, conversationID string, keep int) (int, error)

	// Delete removes the conversation and cascades to its messages.
	// Returns ErrNotFound when missing or not owned by userID.
	Delete(ctx context.Context, id, userID string) error

	// Count returns the user's current number of conversations.
	Count(ctx context.Context, userID string) (int, error)

	// DeleteOldest removes the n conversations with the smallest
	// updated_at, cascading to messages. Returns the number removed.
	DeleteOldest(ctx context.Context, userID string, n int) (int, error)

	// EnforceLimit deletes the oldest conversations when the user is at
	// or over max, leaving room for exactly one new conversation.
	// Returns the number removed.
	EnforceLimit(ctx context.Context, userID string, max int) (int, error)
}

// clampPage normalizes list pagination bounds.
func clampPage(limit, offset int) (int, int) {
	if limit < 1 {
		limit = 1
	}
	if limit > 100 {
		limit = 100
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
