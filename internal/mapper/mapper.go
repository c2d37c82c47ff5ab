package mapper

import (
	"database/sql"
	"sort"

	"github.com/scrypster/luna-history/pkg/types"
)

// Conversation converts a conversation row.
func Conversation(r ConversationRow) types.Conversation {
	return types.Conversation{
		ID:             r.ID,
		Title:          r.Title.String,
		CreatedAt:      r.CreatedAt.Int64,
		TitleGenerated: r.TitleGenerated.Valid && r.TitleGenerated.Int64 != 0,
		ProfileName:    nullable(r.ProfileName),
	}
}

// Summaries converts summary rows, keeping their order.
func Summaries(rows []SummaryRow) []types.ConversationSummary {
	out := make([]types.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.ConversationSummary{
			Conversation: Conversation(r.ConversationRow),
			MessageCount: r.MessageCount.Int64,
		})
	}
	return out
}

// Message converts a message row. Position is left at zero.
func Message(r MessageRow) types.Message {
	return types.Message{
		ID:               r.ID,
		ConversationID:   r.ConversationID,
		Role:             types.ParseRole(r.Role.String),
		Content:          r.Content.String,
		CreatedAt:        r.CreatedAt.Int64,
		ToolCalls:        nullable(r.ToolCalls),
		ToolCallID:       nullable(r.ToolCallID),
		ToolName:         nullable(r.ToolName),
		ToolStatus:       nullable(r.ToolStatus),
		ToolParamsJSON:   nullable(r.ToolParamsJSON),
		ToolResultJSON:   nullable(r.ToolResultJSON),
		ReasoningContent: nullable(r.ReasoningContent),
	}
}

// Thread assembles a conversation and its messages into a thread. Rows may
// arrive in any order: they are sorted chronologically (creation time, then
// id) and numbered from 1, so positions are strictly increasing.
func Thread(conv ConversationRow, rows []MessageRow) *types.ConversationThread {
	sorted := make([]MessageRow, len(rows))
	copy(sorted, rows)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if a.CreatedAt.Int64 != b.CreatedAt.Int64 {
			return a.CreatedAt.Int64 < b.CreatedAt.Int64
		}
		return a.ID < b.ID
	})

	msgs := make([]types.Message, 0, len(sorted))
	for i, r := range sorted {
		m := Message(r)
		m.Position = i + 1
		msgs = append(msgs, m)
	}
	return &types.ConversationThread{
		Conversation: Conversation(conv),
		Messages:     msgs,
	}
}

// MessageHits converts ranked search rows, preserving the database's order.
func MessageHits(rows []MessageHitRow) []types.MessageHit {
	out := make([]types.MessageHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.MessageHit{
			MessageID:         r.MessageID,
			ConversationID:    r.ConversationID,
			ConversationTitle: r.ConversationTitle,
			Role:              types.ParseRole(r.Role.String),
			ContentPreview:    r.ContentPreview.String,
			Snippet:           r.Snippet.String,
			CreatedAt:         r.CreatedAt.Int64,
			Score:             InvertScore(r.RawScore),
		})
	}
	return out
}

// MemoryEntry converts a memory row. Importance is clamped to the valid
// range (NULL reads as the default) and a blank category becomes nil.
func MemoryEntry(r MemoryRow) types.MemoryEntry {
	importance := types.DefaultImportance
	if r.Importance.Valid {
		importance = types.ClampImportance(int(r.Importance.Int64))
	}
	return types.MemoryEntry{
		ID:         r.ID,
		Content:    r.Content,
		Category:   types.NormalizeCategory(nullable(r.Category)),
		Importance: importance,
		CreatedAt:  r.CreatedAt.Int64,
	}
}

// MemoryEntries converts memory rows, preserving order.
func MemoryEntries(rows []MemoryRow) []types.MemoryEntry {
	out := make([]types.MemoryEntry, 0, len(rows))
	for _, r := range rows {
		out = append(out, MemoryEntry(r))
	}
	return out
}

// MemoryHits converts ranked memory rows, preserving the database's order.
func MemoryHits(rows []MemoryHitRow) []types.MemoryHit {
	out := make([]types.MemoryHit, 0, len(rows))
	for _, r := range rows {
		out = append(out, types.MemoryHit{
			MemoryEntry: MemoryEntry(r.MemoryRow),
			Score:       InvertScore(r.RawScore),
		})
	}
	return out
}

// InvertScore turns a lower-is-better engine score (FTS5 bm25) into the
// higher-is-better score reported to callers.
func InvertScore(raw float64) float64 {
	if raw == 0 {
		return 0
	}
	return -raw
}

func nullable(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}
