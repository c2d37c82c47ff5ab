// Package memstore provides in-memory implementations of the storage
// interfaces. They rank with ranking.BM25 and follow the same ordering rules
// as the SQL stores. The server uses them when conversation.source is fixture
// or memory.engine is memory; tests use them in place of a database.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/scrypster/luna-history/internal/fixture"
	"github.com/scrypster/luna-history/internal/query"
	"github.com/scrypster/luna-history/internal/ranking"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

var (
	_ storage.ConversationStore = (*ConversationStore)(nil)
	_ storage.MemoryStore       = (*MemoryStore)(nil)
)

// ConversationStore holds conversations and messages in maps.
type ConversationStore struct {
	mu    sync.RWMutex
	convs map[string]types.Conversation
	msgs  []types.Message

	// Err, when set, is returned from every call as a store failure. The
	// server never sets it; tests use it to simulate an outage.
	Err error
}

// NewConversationStore returns a store holding convs and msgs.
func NewConversationStore(convs []types.Conversation, msgs []types.Message) *ConversationStore {
	s := &ConversationStore{convs: make(map[string]types.Conversation, len(convs))}
	for _, c := range convs {
		s.convs[c.ID] = c
	}
	s.msgs = append(s.msgs, msgs...)
	return s
}

// FromFixture loads a parsed fixture.
func FromFixture(f *fixture.Fixture) *ConversationStore {
	convs, msgs := f.Domain()
	return NewConversationStore(convs, msgs)
}

func (s *ConversationStore) fail(op string) error {
	return storage.Unavailable("conversation", op, s.Err)
}

// SearchMessages implements storage.ConversationStore.
func (s *ConversationStore) SearchMessages(ctx context.Context, keywords []string, limit int) ([]types.MessageHit, error) {
	if err := s.fail("search messages"); err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, storage.InvalidField("keywords", "at least one keyword is required")
	}
	if limit < 1 {
		limit = query.DefaultLimit
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	corpus := make([]string, 0, len(s.msgs))
	for _, m := range s.msgs {
		corpus = append(corpus, m.Content)
	}
	var scorer ranking.Scorer = ranking.NewBM25(corpus)

	var hits []types.MessageHit
	for _, m := range s.msgs {
		if !ranking.Matches(keywords, m.Content) {
			continue
		}
		hits = append(hits, types.MessageHit{
			MessageID:         m.ID,
			ConversationID:    m.ConversationID,
			ConversationTitle: s.convs[m.ConversationID].Title,
			Role:              m.Role,
			ContentPreview:    types.Preview(m.Content),
			Snippet:           snippet(m.Content, keywords),
			CreatedAt:         m.CreatedAt,
			Score:             scorer.Score(keywords, m.Content),
		})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt > b.CreatedAt
		}
		return a.MessageID > b.MessageID
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// GetThread implements storage.ConversationStore.
func (s *ConversationStore) GetThread(ctx context.Context, conversationID string) (*types.ConversationThread, error) {
	if err := s.fail("get conversation"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.convs[conversationID]
	if !ok {
		return nil, fmt.Errorf("%w: conversation %q", storage.ErrNotFound, conversationID)
	}
	msgs := []types.Message{}
	for _, m := range s.msgs {
		if m.ConversationID == conversationID {
			msgs = append(msgs, m)
		}
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
	for i := range msgs {
		msgs[i].Position = i + 1
	}
	return &types.ConversationThread{Conversation: c, Messages: msgs}, nil
}

// SearchTitles implements storage.ConversationStore.
func (s *ConversationStore) SearchTitles(ctx context.Context, q string, limit int) ([]types.ConversationSummary, error) {
	if err := s.fail("search titles"); err != nil {
		return nil, err
	}
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, storage.InvalidField("query", "must not be empty")
	}
	if limit < 1 {
		limit = query.TitleSearchLimit
	}
	needle := strings.ToLower(q)
	all := s.summaries(func(c types.Conversation) bool {
		return strings.Contains(strings.ToLower(c.Title), needle)
	})
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

// ListConversations implements storage.ConversationStore.
func (s *ConversationStore) ListConversations(ctx context.Context, page storage.Page) ([]types.ConversationSummary, error) {
	if err := s.fail("list conversations"); err != nil {
		return nil, err
	}
	all := s.summaries(func(types.Conversation) bool { return true })
	if page.Offset >= len(all) {
		return []types.ConversationSummary{}, nil
	}
	end := min(page.Offset+page.Limit, len(all))
	return all[page.Offset:end], nil
}

// GetMessage implements storage.ConversationStore.
func (s *ConversationStore) GetMessage(ctx context.Context, messageID int64) (*types.Message, error) {
	if err := s.fail("get message"); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, m := range s.msgs {
		if m.ID == messageID {
			m.Position = 0
			return &m, nil
		}
	}
	return nil, fmt.Errorf("%w: message %d", storage.ErrNotFound, messageID)
}

// summaries returns matching conversations with counts, newest first, ties
// broken by id descending.
func (s *ConversationStore) summaries(keep func(types.Conversation) bool) []types.ConversationSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[string]int64, len(s.convs))
	for _, m := range s.msgs {
		counts[m.ConversationID]++
	}
	out := []types.ConversationSummary{}
	for _, c := range s.convs {
		if keep(c) {
			out = append(out, types.ConversationSummary{Conversation: c, MessageCount: counts[c.ID]})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID > out[j].ID
	})
	return out
}

// snippet marks the first keyword occurrence with brackets and trims the
// text around it, approximating the FTS5 snippet() output.
func snippet(content string, keywords []string) string {
	lower := strings.ToLower(content)
	if len(lower) != len(content) {
		return types.Preview(content)
	}
	for _, k := range keywords {
		idx := strings.Index(lower, strings.ToLower(k))
		if idx < 0 {
			continue
		}
		const window = 60
		start := max(0, idx-window)
		end := min(len(content), idx+len(k)+window)
		var b strings.Builder
		if start > 0 {
			b.WriteString("...")
		}
		b.WriteString(content[start:idx])
		b.WriteString("[" + content[idx:idx+len(k)] + "]")
		b.WriteString(content[idx+len(k) : end])
		if end < len(content) {
			b.WriteString("...")
		}
		return b.String()
	}
	return types.Preview(content)
}

// MemoryStore keeps memory entries in a slice.
type MemoryStore struct {
	mu      sync.Mutex
	entries []types.MemoryEntry
	nextID  int64
	now     func() time.Time

	// Err, when set, is returned from every call as a store failure. The
	// server never sets it; tests use it to simulate an outage.
	Err error
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{now: time.Now}
}

func (s *MemoryStore) fail(op string) error {
	return storage.Unavailable("memory", op, s.Err)
}

// Provision implements storage.MemoryStore. There is no schema to create.
func (s *MemoryStore) Provision(ctx context.Context) error {
	return s.fail("provision")
}

// Insert implements storage.MemoryStore.
func (s *MemoryStore) Insert(ctx context.Context, m types.NewMemory) (int64, error) {
	if err := s.fail("insert"); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if m.CreatedAt == 0 {
		m.CreatedAt = s.now().Unix()
	}
	s.nextID++
	s.entries = append(s.entries, types.MemoryEntry{
		ID:         s.nextID,
		Content:    m.Content,
		Category:   types.NormalizeCategory(m.Category),
		Importance: types.ClampImportance(m.Importance),
		CreatedAt:  m.CreatedAt,
	})
	return s.nextID, nil
}

// Get returns one entry, or ErrNotFound. No tool reads a single memory;
// it lets callers confirm what Insert stored.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*types.MemoryEntry, error) {
	if err := s.fail("get"); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.entries {
		if e.ID == id {
			return &e, nil
		}
	}
	return nil, fmt.Errorf("%w: memory %d", storage.ErrNotFound, id)
}

// Search implements storage.MemoryStore.
func (s *MemoryStore) Search(ctx context.Context, keywords []string, limit int) ([]types.MemoryHit, error) {
	if err := s.fail("search"); err != nil {
		return nil, err
	}
	if len(keywords) == 0 {
		return nil, storage.InvalidField("keywords", "at least one keyword is required")
	}
	if limit < 1 {
		limit = query.DefaultLimit
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	docs := make([]string, len(s.entries))
	for i, e := range s.entries {
		docs[i] = memoryDocument(e)
	}
	var scorer ranking.Scorer = ranking.NewBM25(docs)

	var hits []types.MemoryHit
	for i, e := range s.entries {
		if !ranking.Matches(keywords, docs[i]) {
			continue
		}
		hits = append(hits, types.MemoryHit{MemoryEntry: e, Score: scorer.Score(keywords, docs[i])})
	}
	sort.SliceStable(hits, func(i, j int) bool {
		a, b := hits[i], hits[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		return entryBefore(a.MemoryEntry, b.MemoryEntry)
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

// ByCategory implements storage.MemoryStore.
func (s *MemoryStore) ByCategory(ctx context.Context, category string) ([]types.MemoryEntry, error) {
	if err := s.fail("by category"); err != nil {
		return nil, err
	}
	category = strings.TrimSpace(category)
	if category == "" {
		return nil, storage.InvalidField("category", "must not be empty")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	out := []types.MemoryEntry{}
	for _, e := range s.entries {
		if e.Category != nil && *e.Category == category {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return entryBefore(out[i], out[j]) })
	return out, nil
}

// Delete implements storage.MemoryStore.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	if err := s.fail("delete"); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, e := range s.entries {
		if e.ID == id {
			s.entries = append(s.entries[:i], s.entries[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("%w: memory %d", storage.ErrNotFound, id)
}

// entryBefore orders by importance, then recency, then id, all descending.
func entryBefore(a, b types.MemoryEntry) bool {
	if a.Importance != b.Importance {
		return a.Importance > b.Importance
	}
	if a.CreatedAt != b.CreatedAt {
		return a.CreatedAt > b.CreatedAt
	}
	return a.ID > b.ID
}

func memoryDocument(e types.MemoryEntry) string {
	if e.Category == nil {
		return e.Content
	}
	return e.Content + " " + *e.Category
}
