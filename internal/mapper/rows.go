// Package mapper turns flat database rows into the domain objects of
// pkg/types. It performs no I/O: stores scan into the row structs declared
// here and hand them over, so every transformation can be tested against
// fixture rows.
package mapper

import "database/sql"

// ConversationRow mirrors the conversation column list used by the query
// package.
type ConversationRow struct {
	ID             string
	Title          sql.NullString
	CreatedAt      sql.NullInt64
	TitleGenerated sql.NullInt64
	ProfileName    sql.NullString
}

// Dest returns scan destinations in column order.
func (r *ConversationRow) Dest() []any {
	return []any{&r.ID, &r.Title, &r.CreatedAt, &r.TitleGenerated, &r.ProfileName}
}

// SummaryRow is a conversation row followed by its message count.
type SummaryRow struct {
	ConversationRow
	MessageCount sql.NullInt64
}

// Dest returns scan destinations in column order.
func (r *SummaryRow) Dest() []any {
	return append(r.ConversationRow.Dest(), &r.MessageCount)
}

// MessageRow mirrors the message column list used by the query package.
type MessageRow struct {
	ID               int64
	ConversationID   string
	Role             sql.NullString
	Content          sql.NullString
	CreatedAt        sql.NullInt64
	ToolCalls        sql.NullString
	ToolCallID       sql.NullString
	ToolName         sql.NullString
	ToolStatus       sql.NullString
	ToolParamsJSON   sql.NullString
	ToolResultJSON   sql.NullString
	ReasoningContent sql.NullString
}

// Dest returns scan destinations in column order.
func (r *MessageRow) Dest() []any {
	return []any{
		&r.ID, &r.ConversationID, &r.Role, &r.Content, &r.CreatedAt,
		&r.ToolCalls, &r.ToolCallID, &r.ToolName, &r.ToolStatus,
		&r.ToolParamsJSON, &r.ToolResultJSON, &r.ReasoningContent,
	}
}

// MessageHitRow is one row of a ranked message search. RawScore is the FTS
// engine's score where lower is better.
type MessageHitRow struct {
	MessageID         int64
	ConversationID    string
	ConversationTitle string
	Role              sql.NullString
	ContentPreview    sql.NullString
	Snippet           sql.NullString
	CreatedAt         sql.NullInt64
	RawScore          float64
}

// Dest returns scan destinations in column order.
func (r *MessageHitRow) Dest() []any {
	return []any{
		&r.MessageID, &r.ConversationID, &r.ConversationTitle, &r.Role,
		&r.ContentPreview, &r.Snippet, &r.CreatedAt, &r.RawScore,
	}
}

// MemoryRow mirrors the memory column list used by the query package.
type MemoryRow struct {
	ID         int64
	Content    string
	Category   sql.NullString
	Importance sql.NullInt64
	CreatedAt  sql.NullInt64
}

// Dest returns scan destinations in column order.
func (r *MemoryRow) Dest() []any {
	return []any{&r.ID, &r.Content, &r.Category, &r.Importance, &r.CreatedAt}
}

// MemoryHitRow is a memory row followed by its raw FTS score (lower is
// better).
type MemoryHitRow struct {
	MemoryRow
	RawScore float64
}

// Dest returns scan destinations in column order.
func (r *MemoryHitRow) Dest() []any {
	return append(r.MemoryRow.Dest(), &r.RawScore)
}
