// Package query translates validated tool parameters into parameterised
// SQLite statements.
//
// Everything here is pure: a builder returns a Plan (statement text plus
// ordered bind values) and never touches a database. User text only ever
// reaches SQL as a bound value, and keywords only ever reach FTS5 as quoted
// phrases, so no input can change the shape of a statement.
package query

import (
	"strings"

	"github.com/scrypster/luna-history/internal/storage"
)

// Pagination and result-size limits.
const (
	DefaultLimit     = 50
	MaxLimit         = 200
	TitleSearchLimit = 100
)

// Plan is a statement ready for database/sql.
type Plan struct {
	SQL  string
	Args []any
}

// Paginate applies list defaults. A nil limit means DefaultLimit and values
// above maxLimit are capped silently; a nil offset means 0. A limit below 1
// or a negative offset is an input error. maxLimit <= 0 selects MaxLimit.
func Paginate(limit, offset *int, maxLimit int) (storage.Page, error) {
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	p := storage.Page{Limit: DefaultLimit}
	if p.Limit > maxLimit {
		p.Limit = maxLimit
	}
	if limit != nil {
		if *limit < 1 {
			return storage.Page{}, storage.InvalidField("limit", "must be at least 1, got %d", *limit)
		}
		p.Limit = min(*limit, maxLimit)
	}
	if offset != nil {
		if *offset < 0 {
			return storage.Page{}, storage.InvalidField("offset", "must not be negative, got %d", *offset)
		}
		p.Offset = *offset
	}
	return p, nil
}

// NormalizeKeywords trims each keyword, drops blanks and case-insensitive
// duplicates, and keeps first-seen order. An empty result is an input error
// on field.
func NormalizeKeywords(field string, keywords []string) ([]string, error) {
	seen := make(map[string]bool, len(keywords))
	out := make([]string, 0, len(keywords))
	for _, k := range keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		key := strings.ToLower(k)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, k)
	}
	if len(out) == 0 {
		return nil, storage.InvalidField(field, "at least one non-empty keyword is required")
	}
	return out, nil
}

// MatchExpression builds an FTS5 MATCH string that is true when any keyword
// matches. Each keyword becomes a double-quoted phrase with embedded quotes
// doubled, so FTS5 operators and punctuation in user input are inert.
//
// Example: ["alpha", `say "hi"`] → `"alpha" OR "say ""hi"""`
func MatchExpression(keywords []string) string {
	phrases := make([]string, 0, len(keywords))
	for _, k := range keywords {
		phrases = append(phrases, `"`+strings.ReplaceAll(k, `"`, `""`)+`"`)
	}
	return strings.Join(phrases, " OR ")
}

// LikePattern wraps s in % wildcards for a substring LIKE match, escaping the
// LIKE metacharacters with a backslash. Pair it with ESCAPE '\'.
func LikePattern(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(s) + "%"
}
