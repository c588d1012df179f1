package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Entry kinds, matching the provider's discriminant tags.
const (
	KindFile   = "file"
	KindFolder = "folder"
)

// Entry is one remote file or folder as recorded locally. PathKey is the
// case-normalized remote path and, together with AccountID, the natural key.
// Entries are created on first observation and updated in place afterwards;
// this store never deletes them implicitly.
type Entry struct {
	AccountID   string
	PathKey     string
	DisplayPath string
	Name        string
	Kind        string
	Size        int64
	ModifiedAt  time.Time
	ObservedAt  time.Time
}

const upsertEntrySQL = `
INSERT INTO remote_entries
    (account_id, path_key, display_path, name, kind, size, modified_at, observed_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)
ON CONFLICT (account_id, path_key) DO UPDATE SET
    display_path = excluded.display_path,
    name         = excluded.name,
    kind         = excluded.kind,
    size         = excluded.size,
    modified_at  = excluded.modified_at,
    observed_at  = excluded.observed_at
WHERE excluded.modified_at >= remote_entries.modified_at`

const getEntrySQL = `
SELECT account_id, path_key, display_path, name, kind, size, modified_at, observed_at
FROM remote_entries WHERE account_id = ? AND path_key = ?`

const countEntriesSQL = `SELECT COUNT(*) FROM remote_entries WHERE account_id = ?`

// UpsertEntry inserts or updates an entry keyed by (account, normalized
// path). Re-applying the same entry is a no-op, so duplicate deliveries are
// harmless. When two observations of the same path disagree, the later
// modified_at wins; equal timestamps defer to the most recent observation
// (the >= comparison).
func (s *Store) UpsertEntry(ctx context.Context, e Entry) error {
	if e.PathKey == "" {
		return fmt.Errorf("metastore: upsert with empty path key")
	}

	observed := e.ObservedAt
	if observed.IsZero() {
		observed = time.Now()
	}

	_, err := s.entryStmts.upsert.ExecContext(ctx,
		e.AccountID, e.PathKey, e.DisplayPath, e.Name, e.Kind,
		e.Size, e.ModifiedAt.UnixNano(), observed.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("metastore: upsert entry %s: %w", e.PathKey, err)
	}

	return nil
}

// GetEntry returns the recorded entry for a path, or (nil, nil) when the
// path has never been observed.
func (s *Store) GetEntry(ctx context.Context, accountID, pathKey string) (*Entry, error) {
	var (
		e                      Entry
		modifiedNS, observedNS int64
	)

	err := s.entryStmts.get.QueryRowContext(ctx, accountID, pathKey).Scan(
		&e.AccountID, &e.PathKey, &e.DisplayPath, &e.Name, &e.Kind,
		&e.Size, &modifiedNS, &observedNS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("metastore: get entry %s: %w", pathKey, err)
	}

	if modifiedNS != 0 {
		e.ModifiedAt = time.Unix(0, modifiedNS)
	}

	e.ObservedAt = time.Unix(0, observedNS)

	return &e, nil
}

// CountEntries returns the number of recorded entries for an account.
func (s *Store) CountEntries(ctx context.Context, accountID string) (int64, error) {
	var n int64
	if err := s.entryStmts.count.QueryRowContext(ctx, accountID).Scan(&n); err != nil {
		return 0, fmt.Errorf("metastore: count entries: %w", err)
	}

	return n, nil
}
