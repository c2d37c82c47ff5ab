// Package storage declares the two capability interfaces the tool dispatcher
// works against.
//
// ConversationStore is read-only: the conversation schema belongs to the chat
// application and is never created, migrated or written here. MemoryStore is
// owned by this server and provisions its own schema. Keeping them apart lets
// tests swap in a conversation store without touching provisioning.
package storage

import (
	"context"

	"github.com/scrypster/luna-history/pkg/types"
)

// ConversationStore provides read access to the conversation history.
type ConversationStore interface {
	// SearchMessages runs an OR full-text search over message content and
	// returns hits ranked best first. keywords must already be normalised.
	SearchMessages(ctx context.Context, keywords []string, limit int) ([]types.MessageHit, error)

	// GetThread returns the conversation and all of its messages in sequence
	// order. Returns ErrNotFound when the conversation does not exist.
	GetThread(ctx context.Context, conversationID string) (*types.ConversationThread, error)

	// SearchTitles returns conversations whose title contains query,
	// case-insensitively, most recent first.
	SearchTitles(ctx context.Context, query string, limit int) ([]types.ConversationSummary, error)

	// ListConversations returns one page of conversations, most recent first
	// with ties broken by identifier descending.
	ListConversations(ctx context.Context, page Page) ([]types.ConversationSummary, error)

	// GetMessage returns a single message. Returns ErrNotFound when absent.
	GetMessage(ctx context.Context, messageID int64) (*types.Message, error)
}

// MemoryStore provides the long-term memory lifecycle.
type MemoryStore interface {
	// Provision creates the memory table and its full-text index when they
	// are missing. It is idempotent.
	Provision(ctx context.Context) error

	// Insert stores a new entry and returns the assigned identifier.
	Insert(ctx context.Context, m types.NewMemory) (int64, error)

	// Search runs an OR full-text search over content and category and
	// returns hits ranked best first.
	Search(ctx context.Context, keywords []string, limit int) ([]types.MemoryHit, error)

	// ByCategory returns entries with exactly this category, ordered by
	// importance descending, then creation time descending.
	ByCategory(ctx context.Context, category string) ([]types.MemoryEntry, error)

	// Delete removes an entry. Returns ErrNotFound when no row was removed.
	Delete(ctx context.Context, id int64) error
}
