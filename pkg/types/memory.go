package types

import "strings"

// Importance bounds for memory entries.
const (
	MinImportance     = 1
	MaxImportance     = 10
	DefaultImportance = 5
)

// MemoryEntry is a fact stored by the agent for later recall.
type MemoryEntry struct {
	ID         int64   `json:"id"`
	Content    string  `json:"content"`
	Category   *string `json:"category"` // nil or a non-empty tag
	Importance int     `json:"importance"`
	CreatedAt  int64   `json:"created_at"` // unix seconds
}

// MemoryHit is a ranked full-text match against a memory entry.
type MemoryHit struct {
	MemoryEntry
	Score float64 `json:"score"` // higher is better
}

// ClampImportance forces v into [MinImportance, MaxImportance].
func ClampImportance(v int) int {
	if v < MinImportance {
		return MinImportance
	}
	if v > MaxImportance {
		return MaxImportance
	}
	return v
}

// NormalizeCategory trims the tag and maps blank values to nil.
func NormalizeCategory(c *string) *string {
	if c == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*c)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}

// NewMemory is the validated input for inserting a memory entry.
type NewMemory struct {
	Content    string
	Category   *string
	Importance int
	CreatedAt  int64
}
