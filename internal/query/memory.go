package query

import (
	"strings"

	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

const memoryColumns = `m.id, m.content, m.category, m.importance, m.created_at`

// InsertMemory stores a validated entry. A nil category is written as NULL.
func InsertMemory(m types.NewMemory) Plan {
	var category any
	if m.Category != nil {
		category = *m.Category
	}
	return Plan{
		SQL:  `INSERT INTO memory (content, category, importance, created_at) VALUES (?, ?, ?, ?)`,
		Args: []any{m.Content, category, m.Importance, m.CreatedAt},
	}
}

// SearchMemory ranks entries whose content or category matches any keyword.
// Ties on relevance fall back to importance, then recency, then id.
func SearchMemory(keywords []string, limit int) (Plan, error) {
	if len(keywords) == 0 {
		return Plan{}, storage.InvalidField("keywords", "at least one keyword is required")
	}
	if limit < 1 {
		limit = DefaultLimit
	}
	return Plan{
		SQL: `SELECT ` + memoryColumns + `, bm25(memory_fts) AS rank_score
		FROM memory_fts
		JOIN memory m ON m.id = memory_fts.rowid
		WHERE memory_fts MATCH ?
		ORDER BY rank_score ASC, m.importance DESC, m.created_at DESC, m.id DESC
		LIMIT ?`,
		Args: []any{MatchExpression(keywords), limit},
	}, nil
}

// MemoryByCategory selects entries with exactly this category. The order
// (importance desc, then created_at desc) is part of the tool contract.
func MemoryByCategory(category string) (Plan, error) {
	category = strings.TrimSpace(category)
	if category == "" {
		return Plan{}, storage.InvalidField("category", "must not be empty")
	}
	return Plan{
		SQL: `SELECT ` + memoryColumns + `
		FROM memory m
		WHERE m.category = ?
		ORDER BY m.importance DESC, m.created_at DESC, m.id DESC`,
		Args: []any{category},
	}, nil
}

// GetMemory selects one entry by id.
func GetMemory(id int64) Plan {
	return Plan{
		SQL:  `SELECT ` + memoryColumns + ` FROM memory m WHERE m.id = ?`,
		Args: []any{id},
	}
}

// DeleteMemory removes one entry by id.
func DeleteMemory(id int64) Plan {
	return Plan{SQL: `DELETE FROM memory WHERE id = ?`, Args: []any{id}}
}
