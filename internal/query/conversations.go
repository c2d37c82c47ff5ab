package query

import (
	"fmt"
	"strings"

	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

// Column lists shared by the statements below. The mapper scans rows in this
// exact order.
const (
	conversationColumns = `c.id, c.title, c.created_at, c.title_generated, c.profile_name`

	messageColumns = `m.id, m.conversation_id, m.role, m.content, m.created_at,
		m.tool_calls, m.tool_call_id, m.tool_name, m.tool_status,
		m.tool_params_json, m.tool_result_json, m.reasoning_content`
)

// SearchMessages ranks messages matching any keyword. FTS5 bm25() is lower
// for better matches, so rows are ordered by it ascending; creation time and
// id break ties so the order is deterministic.
func SearchMessages(keywords []string, limit int) (Plan, error) {
	if len(keywords) == 0 {
		return Plan{}, storage.InvalidField("keywords", "at least one keyword is required")
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	sql := fmt.Sprintf(`
		SELECT
			m.id, m.conversation_id, COALESCE(c.title, ''), m.role,
			substr(m.content, 1, %d),
			snippet(messages_fts, -1, '[', ']', '...', 24),
			m.created_at,
			bm25(messages_fts) AS rank_score
		FROM messages_fts
		JOIN messages m ON m.id = messages_fts.rowid
		LEFT JOIN conversations c ON c.id = m.conversation_id
		WHERE messages_fts MATCH ?
		ORDER BY rank_score ASC, m.created_at DESC, m.id DESC
		LIMIT ?`, types.ContentPreviewLength)
	return Plan{SQL: sql, Args: []any{MatchExpression(keywords), limit}}, nil
}

// GetConversation selects one conversation row by id.
func GetConversation(id string) Plan {
	return Plan{
		SQL:  `SELECT ` + conversationColumns + ` FROM conversations c WHERE c.id = ?`,
		Args: []any{id},
	}
}

// ThreadMessages selects every message of a conversation in sequence order.
func ThreadMessages(conversationID string) Plan {
	return Plan{
		SQL: `SELECT ` + messageColumns + `
		FROM messages m
		WHERE m.conversation_id = ?
		ORDER BY m.created_at ASC, m.id ASC`,
		Args: []any{conversationID},
	}
}

// GetMessage selects one message by id.
func GetMessage(id int64) Plan {
	return Plan{
		SQL:  `SELECT ` + messageColumns + ` FROM messages m WHERE m.id = ?`,
		Args: []any{id},
	}
}

const summarySelect = `SELECT ` + conversationColumns + `, COUNT(m.id)
		FROM conversations c
		LEFT JOIN messages m ON m.conversation_id = c.id`

const summaryGroupOrder = `
		GROUP BY c.id, c.title, c.created_at, c.title_generated, c.profile_name
		ORDER BY c.created_at DESC, c.id DESC`

// SearchTitles matches q as a case-insensitive substring of the title.
func SearchTitles(q string, limit int) (Plan, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return Plan{}, storage.InvalidField("query", "must not be empty")
	}
	if limit < 1 {
		limit = TitleSearchLimit
	}
	return Plan{
		SQL: summarySelect + `
		WHERE c.title LIKE ? ESCAPE '\'` + summaryGroupOrder + `
		LIMIT ?`,
		Args: []any{LikePattern(q), limit},
	}, nil
}

// ListConversations selects one page of conversation summaries, most recent
// first.
func ListConversations(p storage.Page) Plan {
	return Plan{
		SQL:  summarySelect + summaryGroupOrder + `
		LIMIT ? OFFSET ?`,
		Args: []any{p.Limit, p.Offset},
	}
}
