package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/scrypster/luna-history/internal/mapper"
	"github.com/scrypster/luna-history/internal/query"
	"github.com/scrypster/luna-history/internal/storage"
	"github.com/scrypster/luna-history/pkg/types"
)

// Ensure *MemoryStore implements storage.MemoryStore at compile time.
var _ storage.MemoryStore = (*MemoryStore)(nil)

const memoryStore = "memory"

// MemoryStore keeps long-term memory entries in the memory table of the
// shared database.
type MemoryStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewMemoryStore wraps an open handle. Call Provision before first use.
func NewMemoryStore(db *sql.DB) *MemoryStore {
	return &MemoryStore{db: db, now: time.Now}
}

// Provision creates the memory table, its FTS5 index and sync triggers. A
// memory_fts left by older versions that indexes content only is replaced.
// The index is always rebuilt from the table so rows written without
// triggers become searchable. Everything runs in one transaction.
func (s *MemoryStore) Provision(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite: provision memory: begin: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, memoryTable); err != nil {
		return fmt.Errorf("sqlite: provision memory: create table: %w", err)
	}
	if _, err := tx.ExecContext(ctx, memoryCategoryIndex); err != nil {
		return fmt.Errorf("sqlite: provision memory: create index: %w", err)
	}

	legacy, err := hasLegacyFTS(ctx, tx)
	if err != nil {
		return err
	}
	if legacy {
		for _, stmt := range legacyDrops {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("sqlite: provision memory: drop legacy index: %w", err)
			}
		}
	}

	if _, err := tx.ExecContext(ctx, memoryFTS); err != nil {
		return fmt.Errorf("sqlite: provision memory: create fts: %w", err)
	}
	for _, stmt := range memoryTriggers {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("sqlite: provision memory: create trigger: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx, memoryRebuild); err != nil {
		return fmt.Errorf("sqlite: provision memory: rebuild fts: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlite: provision memory: commit: %w", err)
	}
	return nil
}

// hasLegacyFTS reports whether memory_fts exists without a category column.
func hasLegacyFTS(ctx context.Context, tx *sql.Tx) (bool, error) {
	var ddl string
	err := tx.QueryRowContext(ctx,
		`SELECT sql FROM sqlite_master WHERE type = 'table' AND name = 'memory_fts'`).Scan(&ddl)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("sqlite: provision memory: inspect fts: %w", err)
	}
	return !strings.Contains(strings.ToLower(ddl), "category"), nil
}

// Insert implements storage.MemoryStore. A zero CreatedAt is stamped with
// the current time.
func (s *MemoryStore) Insert(ctx context.Context, m types.NewMemory) (int64, error) {
	if m.CreatedAt == 0 {
		m.CreatedAt = s.now().Unix()
	}
	plan := query.InsertMemory(m)
	res, err := s.db.ExecContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return 0, storage.Unavailable(memoryStore, "insert", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, storage.Unavailable(memoryStore, "insert", err)
	}
	return id, nil
}

// Get returns one entry, or ErrNotFound. No tool reads a single memory;
// it lets callers confirm what Insert stored.
func (s *MemoryStore) Get(ctx context.Context, id int64) (*types.MemoryEntry, error) {
	plan := query.GetMemory(id)
	var r mapper.MemoryRow
	err := s.db.QueryRowContext(ctx, plan.SQL, plan.Args...).Scan(r.Dest()...)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: memory %d", storage.ErrNotFound, id)
	}
	if err != nil {
		return nil, storage.Unavailable(memoryStore, "get", err)
	}
	e := mapper.MemoryEntry(r)
	return &e, nil
}

// Search implements storage.MemoryStore.
func (s *MemoryStore) Search(ctx context.Context, keywords []string, limit int) ([]types.MemoryHit, error) {
	plan, err := query.SearchMemory(keywords, limit)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, storage.Unavailable(memoryStore, "search", err)
	}
	defer func() { _ = rows.Close() }()

	var out []mapper.MemoryHitRow
	for rows.Next() {
		var r mapper.MemoryHitRow
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, storage.Unavailable(memoryStore, "search", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(memoryStore, "search", err)
	}
	return mapper.MemoryHits(out), nil
}

// ByCategory implements storage.MemoryStore.
func (s *MemoryStore) ByCategory(ctx context.Context, category string) ([]types.MemoryEntry, error) {
	plan, err := query.MemoryByCategory(category)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return nil, storage.Unavailable(memoryStore, "by category", err)
	}
	defer func() { _ = rows.Close() }()

	var out []mapper.MemoryRow
	for rows.Next() {
		var r mapper.MemoryRow
		if err := rows.Scan(r.Dest()...); err != nil {
			return nil, storage.Unavailable(memoryStore, "by category", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, storage.Unavailable(memoryStore, "by category", err)
	}
	return mapper.MemoryEntries(out), nil
}

// Delete implements storage.MemoryStore.
func (s *MemoryStore) Delete(ctx context.Context, id int64) error {
	plan := query.DeleteMemory(id)
	res, err := s.db.ExecContext(ctx, plan.SQL, plan.Args...)
	if err != nil {
		return storage.Unavailable(memoryStore, "delete", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return storage.Unavailable(memoryStore, "delete", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: memory %d", storage.ErrNotFound, id)
	}
	return nil
}
