package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the memory table. It lives in a
// _test file of the postgres package so postgres_test can reach the
// unexported handle.
func (s *MemoryStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE memory RESTART IDENTITY")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memory: %w", err)
	}
	return nil
}
