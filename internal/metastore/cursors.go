package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const getCursorSQL = `SELECT cursor FROM sync_cursors WHERE account_id = ?`

const saveCursorSQL = `
INSERT INTO sync_cursors (account_id, cursor, updated_at) VALUES (?, ?, ?)
ON CONFLICT (account_id) DO UPDATE SET
    cursor = excluded.cursor, updated_at = excluded.updated_at`

const deleteCursorSQL = `DELETE FROM sync_cursors WHERE account_id = ?`

// Cursor returns the saved change-feed position for an account, or "" when
// no cursor has ever been persisted (signals a full listing).
func (s *Store) Cursor(ctx context.Context, accountID string) (string, error) {
	var cursor string

	err := s.cursorStmts.get.QueryRowContext(ctx, accountID).Scan(&cursor)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}

	if err != nil {
		return "", fmt.Errorf("metastore: get cursor for %s: %w", accountID, err)
	}

	return cursor, nil
}

// SaveCursor persists the change-feed position for an account. Callers must
// only advance the cursor after the whole batch it covers has been applied.
func (s *Store) SaveCursor(ctx context.Context, accountID, cursor string) error {
	_, err := s.cursorStmts.save.ExecContext(ctx, accountID, cursor, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("metastore: save cursor for %s: %w", accountID, err)
	}

	return nil
}

// ResetCursor drops the saved cursor so the next reconciliation performs a
// full listing. Used when the provider reports the cursor as expired.
func (s *Store) ResetCursor(ctx context.Context, accountID string) error {
	if _, err := s.cursorStmts.del.ExecContext(ctx, accountID); err != nil {
		return fmt.Errorf("metastore: reset cursor for %s: %w", accountID, err)
	}

	return nil
}
