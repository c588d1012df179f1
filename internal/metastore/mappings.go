package metastore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Mapping records a provisioned owner folder and its optional dependent
// sub-folder. A non-empty DependentPath implies the owner was provisioned
// first; the provisioner enforces the order, never the reverse.
type Mapping struct {
	OwnerPath     string
	DependentPath string
	CreatedAt     time.Time
}

const getMappingSQL = `
SELECT owner_path, dependent_path, created_at FROM folder_mappings WHERE owner_path = ?`

const saveMappingSQL = `
INSERT INTO folder_mappings (owner_path, dependent_path, created_at) VALUES (?, ?, ?)
ON CONFLICT (owner_path) DO UPDATE SET dependent_path = excluded.dependent_path`

// Mapping returns the recorded mapping for an owner path, or (nil, nil)
// when none exists.
func (s *Store) Mapping(ctx context.Context, ownerPath string) (*Mapping, error) {
	var (
		m         Mapping
		dependent sql.NullString
		createdNS int64
	)

	err := s.mappingStmts.get.QueryRowContext(ctx, ownerPath).Scan(
		&m.OwnerPath, &dependent, &createdNS,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil //nolint:nilnil // sentinel for "not found"
	}

	if err != nil {
		return nil, fmt.Errorf("metastore: get mapping %s: %w", ownerPath, err)
	}

	m.DependentPath = dependent.String
	m.CreatedAt = time.Unix(0, createdNS)

	return &m, nil
}

// SaveMapping records a provisioned folder pair. dependentPath may be empty
// when only the owner folder exists.
func (s *Store) SaveMapping(ctx context.Context, ownerPath, dependentPath string) error {
	var dependent sql.NullString
	if dependentPath != "" {
		dependent = sql.NullString{String: dependentPath, Valid: true}
	}

	_, err := s.mappingStmts.save.ExecContext(ctx, ownerPath, dependent, time.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("metastore: save mapping %s: %w", ownerPath, err)
	}

	return nil
}
