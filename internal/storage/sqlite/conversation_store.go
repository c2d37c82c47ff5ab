package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/scrypster/luna-history/internal/mapper"
	"github.com/scrypster/luna-history/internal/query"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

// Ensure *ConversationStore implements storage.ConversationStore at compile time.
var _ storage.ConversationStore = (*ConversationStore)(nil)

const conversationStore = "conversation"

// ConversationStore reads the chat application's conversations, messages
// and messages_fts tables. It never writes.
type ConversationStore struct {
	db *sql.DB
}

// NewConversationStore wraps an open handle. The caller owns db.
func NewConversationStore(db *sql.DB) *ConversationStore {
	return &ConversationStore{db: db}
}

// SearchMessages implements storage.ConversationStore.
func (s *ConversationStore) SearchMessages(ctx context.Context, keywords []string, limit int) ([]types.MessageHit, error) {
	plan, err := query.SearchMessages(keywords, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, storage.Unavailable(conversationStore, "search messages", err)
	}
	defer func() { _ = rows.Close() }()

	var out []mapper.MessageHitRow
	for rows.Next() {
		var r mapper.MessageHitRow
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, storage.Unavailable(conversationStore, "scan message hit", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(conversationStore, "search messages", err)
	}
	return mapper.MessageHits(out), nil
}

// GetThread implements storage.ConversationStore.
func (s *ConversationStore) GetThread(ctx context.Context, conversationID string) (*types.ConversationThread, error) {
	plan := query.GetConversation(conversationID)
	var conv mapper.ConversationRow
	err := s.db.QueryRowContext(ctx, plan.SQL, plan.Args...).Scan(conv.Dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: conversation %q", storage.ErrNotFound, conversationID)
	}
	if err != nil {
		return nil, storage.Unavailable(conversationStore, "get conversation", err)
	}

	plan = query.ThreadMessages(conversationID)
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, storage.Unavailable(conversationStore, "get messages", err)
	}
	defer func() { _ = rows.Close() }()

	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	return mapper.Thread(conv, msgs), nil
}

// SearchTitles implements storage.ConversationStore.
func (s *ConversationStore) SearchTitles(ctx context.Context, q string, limit int) ([]types.ConversationSummary, error) {
	plan, err := query.SearchTitles(q, limit)
	if err != nil {
		return nil, err
	}
	return s.summaries(ctx, "search titles", plan)
}

// ListConversations implements storage.ConversationStore.
func (s *ConversationStore) ListConversations(ctx context.Context, page storage.Page) ([]types.ConversationSummary, error) {
	return s.summaries(ctx, "list conversations", query.ListConversations(page))
}

// GetMessage implements storage.ConversationStore.
func (s *ConversationStore) GetMessage(ctx context.Context, messageID int64) (*types.Message, error) {
	plan := query.GetMessage(messageID)
	var r mapper.MessageRow
	err := s.db.QueryRowContext(ctx, plan.SQL, plan.Args...).Scan(r.Dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: message %d", storage.ErrNotFound, messageID)
	}
	if err != nil {
		return nil, storage.Unavailable(conversationStore, "get message", err)
	}
	m := mapper.Message(r)
	return &m, nil
}

func (s *ConversationStore) summaries(ctx context.Context, op string, plan query.Plan) ([]types.ConversationSummary, error) {
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, storage.Unavailable(conversationStore, op, err)
	}
	defer func() { _ = rows.Close() }()

	var out []mapper.SummaryRow
	for rows.Next() {
		var r mapper.SummaryRow
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, storage.Unavailable(conversationStore, op, err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(conversationStore, op, err)
	}
	return mapper.Summaries(out), nil
}

func scanMessages(rows *sql.Rows) ([]mapper.MessageRow, error) {
	var out []mapper.MessageRow
	for rows.Next() {
		var r mapper.MessageRow
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, storage.Unavailable(conversationStore, "scan message", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(conversationStore, "scan messages", err)
	}
	return out, nil
}
