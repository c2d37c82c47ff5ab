package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrypster/luna-history/internal/fixture"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

// newTestDB seeds the sample history into a temp file and opens it the way
// the server does.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "history.db")

	seed, err := sql.Open("sqlite", path)
	require.NoError(t, err)
	require.NoError(t, fixture.Seed(ctx, seed, fixture.Sample()))
	require.NoError(t, seed.Close())

	db, err := Open(ctx, path, 0)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

// newEmptyDB opens a database file with no tables at all.
func newEmptyDB(t *testing.T) *sql.DB {
	t.Helper()
	path := filepath.Join(t.TempDir(), "empty.db")
	require.NoError(t, os.WriteFile(path, nil, 0o600))
	db, err := Open(context.Background(), path, 100)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func newTestMemoryStore(t *testing.T, db *sql.DB) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(db)
	require.NoError(t, s.Provision(context.Background()))
	return s
}

func TestOpen_MissingFile(t *testing.T) {
	_, err := Open(context.Background(), filepath.Join(t.TempDir(), "nope.db"), 0)
	require.Error(t, err)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	_, err = Open(context.Background(), t.TempDir(), 0)
	assert.ErrorContains(t, err, "directory")

	_, err = Open(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestSearchMessages_RanksAndSnippets(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	hits, err := s.SearchMessages(context.Background(), []string{"ownership"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	ids := []int64{hits[0].MessageID, hits[1].MessageID}
	assert.ElementsMatch(t, []int64{1, 2}, ids)
	for _, h := range hits {
		assert.Equal(t, "c-rust", h.ConversationID)
		assert.Equal(t, "Learning Rust ownership", h.ConversationTitle)
		assert.Contains(t, h.Snippet, "[ownership]")
		assert.Greater(t, h.Score, 0.0)
		assert.LessOrEqual(t, len([]rune(h.ContentPreview)), types.ContentPreviewLength)
	}
	assert.GreaterOrEqual(t, hits[0].Score, hits[1].Score)
}

func TestSearchMessages_OrSemantics(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	hits, err := s.SearchMessages(context.Background(), []string{"alpha", "beta"}, 10)
	require.NoError(t, err)
	var ids []int64
	for _, h := range hits {
		ids = append(ids, h.MessageID)
	}
	assert.ElementsMatch(t, []int64{4, 6}, ids)
}

func TestSearchMessages_OperatorsAreLiteral(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	hits, err := s.SearchMessages(context.Background(), []string{`NOT "zebra`, "NEAR("}, 10)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestSearchMessages_LimitApplies(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	hits, err := s.SearchMessages(context.Background(), []string{"ownership", "the"}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestGetThread_ChronologicalPositions(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	th, err := s.GetThread(context.Background(), "c-rust")
	require.NoError(t, err)

	assert.Equal(t, "Learning Rust ownership", th.Title)
	assert.True(t, th.TitleGenerated)
	require.Len(t, th.Messages, 3)
	assert.Equal(t, []int64{1, 3, 2}, []int64{th.Messages[0].ID, th.Messages[1].ID, th.Messages[2].ID})
	for i, m := range th.Messages {
		assert.Equal(t, i+1, m.Position)
	}
	require.NotNil(t, th.Messages[1].ToolName)
	assert.Equal(t, "web_search", *th.Messages[1].ToolName)
	require.NotNil(t, th.Messages[2].ReasoningContent)
}

func TestGetThread_NotFoundAndEmpty(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	_, err := s.GetThread(context.Background(), "missing")
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	th, err := s.GetThread(context.Background(), "c-empty")
	require.NoError(t, err)
	assert.Empty(t, th.Messages)
}

func TestSearchTitles(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	got, err := s.SearchTitles(ctx, "RUST", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c-rust", got[0].ID)
	assert.Equal(t, int64(3), got[0].MessageCount)

	got, err = s.SearchTitles(ctx, "100%", 0)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "c-trip", got[0].ID)
	require.NotNil(t, got[0].ProfileName)
	assert.Equal(t, "travel", *got[0].ProfileName)

	got, err = s.SearchTitles(ctx, "_", 0)
	require.NoError(t, err)
	assert.Len(t, got, 1, "underscore is literal")

	_, err = s.SearchTitles(ctx, " ", 0)
	assert.True(t, errors.Is(err, storage.ErrInvalidInput))
}

func TestListConversations_OrderAndPaging(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	ctx := context.Background()

	first, err := s.ListConversations(ctx, storage.Page{Limit: 2})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "c-rust", first[0].ID)
	assert.Equal(t, "c-trip", first[1].ID, "equal created_at falls back to id descending")

	rest, err := s.ListConversations(ctx, storage.Page{Limit: 10, Offset: 2})
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, "c-go", rest[0].ID)
	assert.Equal(t, "c-empty", rest[1].ID)
	assert.Zero(t, rest[1].MessageCount)
}

func TestGetMessage(t *testing.T) {
	s := NewConversationStore(newTestDB(t))
	m, err := s.GetMessage(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, types.RoleTool, m.Role)
	require.NotNil(t, m.ToolCallID)
	assert.Equal(t, "call-1", *m.ToolCallID)
	assert.Zero(t, m.Position)

	_, err = s.GetMessage(context.Background(), 999)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
}

func TestConversationStore_MissingSchemaIsUnavailable(t *testing.T) {
	s := NewConversationStore(newEmptyDB(t))
	ctx := context.Background()

	_, err := s.SearchMessages(ctx, []string{"x"}, 0)
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "conversation store unavailable")

	_, err = s.GetThread(ctx, "c")
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))

	_, err = s.ListConversations(ctx, storage.Page{Limit: 1})
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
}

func TestProvision_IdempotentAndLeavesConversationsAlone(t *testing.T) {
	db := newTestDB(t)
	s := newTestMemoryStore(t, db)
	require.NoError(t, s.Provision(context.Background()))

	var msgs int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM messages`).Scan(&msgs))
	assert.Equal(t, 7, msgs)
}

func TestProvision_WorksOnEmptyDatabase(t *testing.T) {
	s := newTestMemoryStore(t, newEmptyDB(t))
	id, err := s.Insert(context.Background(), types.NewMemory{Content: "fresh", Importance: 5})
	require.NoError(t, err)
	assert.Positive(t, id)
}

func TestProvision_UpgradesLegacyIndex(t *testing.T) {
	db := newEmptyDB(t)
	ctx := context.Background()
	legacy := []string{
		`CREATE TABLE memory (id INTEGER PRIMARY KEY AUTOINCREMENT, content TEXT NOT NULL, category TEXT, importance INTEGER DEFAULT 5, created_at INTEGER)`,
		`CREATE VIRTUAL TABLE memory_fts USING fts5(content, content='memory', content_rowid='id')`,
		`CREATE TRIGGER memory_ai AFTER INSERT ON memory BEGIN INSERT INTO memory_fts(rowid, content) VALUES (new.id, new.content); END`,
		`INSERT INTO memory (content, category, importance, created_at) VALUES ('likes green tea', 'preferences', 6, 100)`,
		`INSERT INTO memory (content, category) VALUES ('legacy row', NULL)`,
	}
	for _, stmt := range legacy {
		_, err := db.ExecContext(ctx, stmt)
		require.NoError(t, err)
	}

	s := newTestMemoryStore(t, db)

	hits, err := s.Search(ctx, []string{"preferences"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1, "category is searchable after the upgrade")
	assert.Equal(t, "likes green tea", hits[0].Content)

	hits, err = s.Search(ctx, []string{"legacy"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, types.DefaultImportance, hits[0].Importance)
	assert.Zero(t, hits[0].CreatedAt)
}

func TestMemoryStore_Lifecycle(t *testing.T) {
	s := newTestMemoryStore(t, newTestDB(t))
	ctx := context.Background()
	work := "work"

	id, err := s.Insert(ctx, types.NewMemory{Content: "Deploy window is Friday", Category: &work, Importance: 8, CreatedAt: 100})
	require.NoError(t, err)

	got, err := s.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Deploy window is Friday", got.Content)
	require.NotNil(t, got.Category)
	assert.Equal(t, "work", *got.Category)
	assert.Equal(t, 8, got.Importance)

	byCat, err := s.ByCategory(ctx, "work")
	require.NoError(t, err)
	require.Len(t, byCat, 1)
	assert.Equal(t, id, byCat[0].ID)

	require.NoError(t, s.Delete(ctx, id))
	err = s.Delete(ctx, id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))

	_, err = s.Get(ctx, id)
	assert.True(t, errors.Is(err, storage.ErrNotFound))
	byCat, err = s.ByCategory(ctx, "work")
	require.NoError(t, err)
	assert.Empty(t, byCat)
	hits, err := s.Search(ctx, []string{"deploy"}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestMemoryStore_StampsCreatedAt(t *testing.T) {
	s := newTestMemoryStore(t, newEmptyDB(t))
	s.now = func() time.Time { return time.Unix(1234, 0) }
	id, err := s.Insert(context.Background(), types.NewMemory{Content: "x", Importance: 5})
	require.NoError(t, err)
	got, err := s.Get(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, int64(1234), got.CreatedAt)
	assert.Nil(t, got.Category)
}

func TestMemoryStore_ByCategoryOrder(t *testing.T) {
	s := newTestMemoryStore(t, newEmptyDB(t))
	ctx := context.Background()
	cat := "prefs"
	insert := func(content string, importance int, at int64) int64 {
		id, err := s.Insert(ctx, types.NewMemory{Content: content, Category: &cat, Importance: importance, CreatedAt: at})
		require.NoError(t, err)
		return id
	}
	low := insert("low", 2, 300)
	oldHigh := insert("old high", 9, 100)
	newHigh := insert("new high", 9, 200)

	got, err := s.ByCategory(ctx, "prefs")
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []int64{newHigh, oldHigh, low}, []int64{got[0].ID, got[1].ID, got[2].ID})
}

func TestMemoryStore_SearchOr(t *testing.T) {
	s := newTestMemoryStore(t, newEmptyDB(t))
	ctx := context.Background()
	for _, c := range []string{"alpha project kickoff", "beta launch checklist", "gamma notes"} {
		_, err := s.Insert(ctx, types.NewMemory{Content: c, Importance: 5})
		require.NoError(t, err)
	}
	hits, err := s.Search(ctx, []string{"alpha", "beta"}, 0)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	for _, h := range hits {
		assert.NotEqual(t, "gamma notes", h.Content)
		assert.Greater(t, h.Score, 0.0)
	}
}

func TestMemoryStore_UnprovisionedIsUnavailable(t *testing.T) {
	s := NewMemoryStore(newEmptyDB(t))
	_, err := s.Insert(context.Background(), types.NewMemory{Content: "x", Importance: 5})
	assert.True(t, errors.Is(err, storage.ErrStoreUnavailable))
	assert.Contains(t, err.Error(), "memory store unavailable")
}
