package query_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luna-history/internal/query"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

func intPtr(v int) *int { return &v }

func TestPaginate_Defaults(t *testing.T) {
	p, err := query.Paginate(nil, nil, 0)
	require.NoError(t, err)
	assert.Equal(t, storage.Page{Limit: 50, Offset: 0}, p)
}

func TestPaginate_CapsLimitSilently(t *testing.T) {
	p, err := query.Paginate(intPtr(1000), intPtr(10), 0)
	require.NoError(t, err)
	assert.Equal(t, 200, p.Limit)
	assert.Equal(t, 10, p.Offset)

	p, err = query.Paginate(intPtr(200), nil, 0)
	require.NoError(t, err)
	assert.Equal(t, 200, p.Limit)
}

func TestPaginate_CustomMax(t *testing.T) {
	p, err := query.Paginate(nil, nil, 20)
	require.NoError(t, err)
	assert.Equal(t, 20, p.Limit, "default is capped by a smaller max")
}

func TestPaginate_RejectsNegativeOffset(t *testing.T) {
	_, err := query.Paginate(nil, intPtr(-1), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))

	var fe *storage.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "offset", fe.Field)
}

func TestPaginate_RejectsZeroLimit(t *testing.T) {
	_, err := query.Paginate(intPtr(0), nil, 0)
	var fe *storage.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "limit", fe.Field)
}

func TestNormalizeKeywords(t *testing.T) {
	got, err := query.NormalizeKeywords("keywords", []string{" alpha ", "", "Beta", "ALPHA", "  "})
	require.NoError(t, err)
	assert.Equal(t, []string{"alpha", "Beta"}, got)
}

func TestNormalizeKeywords_Empty(t *testing.T) {
	for _, in := range [][]string{nil, {}, {"", "   "}} {
		_, err := query.NormalizeKeywords("keywords", in)
		var fe *storage.FieldError
		require.True(t, errors.As(err, &fe), "input %q", in)
		assert.Equal(t, "keywords", fe.Field)
	}
}

func TestMatchExpression_OrOfQuotedPhrases(t *testing.T) {
	assert.Equal(t, `"alpha" OR "beta"`, query.MatchExpression([]string{"alpha", "beta"}))
	assert.Equal(t, `"solo"`, query.MatchExpression([]string{"solo"}))
}

func TestMatchExpression_NeutralisesOperators(t *testing.T) {
	got := query.MatchExpression([]string{`say "hi"`, "NOT", "a*", "x AND y"})
	assert.Equal(t, `"say ""hi""" OR "NOT" OR "a*" OR "x AND y"`, got)
}

func TestLikePattern_EscapesWildcards(t *testing.T) {
	assert.Equal(t, `%rust%`, query.LikePattern("rust"))
	assert.Equal(t, `%100\% done\_now\\%`, query.LikePattern(`100% done_now\`))
}

func TestSearchMessages_Plan(t *testing.T) {
	plan, err := query.SearchMessages([]string{"alpha", "beta"}, 0)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "messages_fts MATCH ?")
	assert.Contains(t, plan.SQL, "ORDER BY rank_score ASC, m.created_at DESC, m.id DESC")
	assert.Equal(t, []any{`"alpha" OR "beta"`, query.DefaultLimit}, plan.Args)
}

func TestSearchMessages_RequiresKeywords(t *testing.T) {
	_, err := query.SearchMessages(nil, 10)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestSearchTitles_Plan(t *testing.T) {
	plan, err := query.SearchTitles("  Go_lang ", 0)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, `LIKE ? ESCAPE '\'`)
	assert.Equal(t, []any{`%Go\_lang%`, query.TitleSearchLimit}, plan.Args)

	_, err = query.SearchTitles("   ", 0)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestListConversations_Plan(t *testing.T) {
	plan := query.ListConversations(storage.Page{Limit: 25, Offset: 75})
	assert.Contains(t, plan.SQL, "ORDER BY c.created_at DESC, c.id DESC")
	assert.True(t, strings.HasSuffix(strings.TrimSpace(plan.SQL), "LIMIT ? OFFSET ?"))
	assert.Equal(t, []any{25, 75}, plan.Args)
}

func TestPointLookups(t *testing.T) {
	assert.Equal(t, []any{"conv-1"}, query.GetConversation("conv-1").Args)
	assert.Equal(t, []any{"conv-1"}, query.ThreadMessages("conv-1").Args)
	assert.Contains(t, query.ThreadMessages("conv-1").SQL, "ORDER BY m.created_at ASC, m.id ASC")
	assert.Equal(t, []any{int64(7)}, query.GetMessage(7).Args)
	assert.Equal(t, []any{int64(9)}, query.DeleteMemory(9).Args)
	assert.Equal(t, []any{int64(4)}, query.GetMemory(4).Args)
}

func TestInsertMemory_NullCategory(t *testing.T) {
	plan := query.InsertMemory(types.NewMemory{Content: "c", Importance: 5, CreatedAt: 100})
	assert.Equal(t, []any{"c", nil, 5, int64(100)}, plan.Args)

	cat := "work"
	plan = query.InsertMemory(types.NewMemory{Content: "c", Category: &cat, Importance: 7, CreatedAt: 100})
	assert.Equal(t, []any{"c", "work", 7, int64(100)}, plan.Args)
}

func TestSearchMemory_Plan(t *testing.T) {
	plan, err := query.SearchMemory([]string{"alpha"}, 5)
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "ORDER BY rank_score ASC, m.importance DESC, m.created_at DESC, m.id DESC")
	assert.Equal(t, []any{`"alpha"`, 5}, plan.Args)
}

func TestMemoryByCategory_Plan(t *testing.T) {
	plan, err := query.MemoryByCategory(" work ")
	require.NoError(t, err)
	assert.Contains(t, plan.SQL, "ORDER BY m.importance DESC, m.created_at DESC, m.id DESC")
	assert.Equal(t, []any{"work"}, plan.Args)

	_, err = query.MemoryByCategory("")
	var fe *storage.FieldError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, "category", fe.Field)
}
