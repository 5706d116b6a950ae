// This file contains test helpers only available during testing.
package postgres

import (
	"context"
	"fmt"
)

// TruncateForTest removes all rows from the memory table. Defined in the
// postgres package (not postgres_test) so it has access to the unexported
// db field, but exported so postgres_test can call it between tests.
func (s *MemoryStore) TruncateForTest(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "TRUNCATE TABLE memory RESTART IDENTITY CASCADE")
	if err != nil {
		return fmt.Errorf("postgres: failed to truncate memory: %w", err)
	}
	return nil
}
