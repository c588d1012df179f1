// Package metastore persists the local view of remote storage: file and
// folder entries keyed by normalized remote path, per-account sync cursors,
// and provisioned folder mappings. It is the concrete metadata store behind
// the consumer-side interfaces in changesync and provision.
package metastore

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	_ "modernc.org/sqlite" // Pure Go SQLite driver, registers as "sqlite".
)

// walJournalSizeLimit caps the WAL journal at 64 MiB.
const walJournalSizeLimit = 67108864

// Store is a SQLite-backed metadata store with WAL mode. All local state
// (entries, cursors, folder mappings) is persisted here.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	// Prepared statements for repeated queries, grouped by domain.
	entryStmts   entryStatements
	cursorStmts  cursorStatements
	mappingStmts mappingStatements
}

type entryStatements struct {
	upsert, get, count *sql.Stmt
}

type cursorStatements struct {
	get, save, del *sql.Stmt
}

type mappingStatements struct {
	get, save *sql.Stmt
}

// New opens the database at dbPath, applies migrations, and prepares all
// repeated statements. Use ":memory:" for tests.
func New(dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	logger.Info("opening metadata store", slog.String("path", dbPath))

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("metastore: open sqlite: %w", err)
	}

	// Single writer: SQLite serializes writes anyway, and one connection
	// avoids SQLITE_BUSY under concurrent reconciliations.
	db.SetMaxOpenConns(1)

	if err := setPragmas(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	if err := runMigrations(context.Background(), db, logger); err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{db: db, logger: logger}

	if err := s.prepareStatements(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("metastore: prepare statements: %w", err)
	}

	logger.Info("metadata store ready", slog.String("path", dbPath))

	return s, nil
}

// setPragmas configures SQLite for WAL mode and safety.
func setPragmas(ctx context.Context, db *sql.DB, logger *slog.Logger) error {
	pragmas := []struct {
		sql  string
		desc string
	}{
		{"PRAGMA journal_mode = WAL", "WAL mode"},
		{"PRAGMA synchronous = FULL", "synchronous FULL"},
		{"PRAGMA foreign_keys = ON", "foreign keys"},
		{fmt.Sprintf("PRAGMA journal_size_limit = %d", walJournalSizeLimit), "journal size limit"},
	}

	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p.sql); err != nil {
			return fmt.Errorf("metastore: set pragma %s: %w", p.desc, err)
		}

		logger.Debug("pragma set", slog.String("pragma", p.desc))
	}

	return nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	prepare := func(dst **sql.Stmt, query string) {
		if err != nil {
			return
		}

		*dst, err = s.db.PrepareContext(ctx, query)
	}

	prepare(&s.entryStmts.upsert, upsertEntrySQL)
	prepare(&s.entryStmts.get, getEntrySQL)
	prepare(&s.entryStmts.count, countEntriesSQL)
	prepare(&s.cursorStmts.get, getCursorSQL)
	prepare(&s.cursorStmts.save, saveCursorSQL)
	prepare(&s.cursorStmts.del, deleteCursorSQL)
	prepare(&s.mappingStmts.get, getMappingSQL)
	prepare(&s.mappingStmts.save, saveMappingSQL)

	return err
}

// Close releases prepared statements and the underlying database.
func (s *Store) Close() error {
	stmts := []*sql.Stmt{
		s.entryStmts.upsert, s.entryStmts.get, s.entryStmts.count,
		s.cursorStmts.get, s.cursorStmts.save, s.cursorStmts.del,
		s.mappingStmts.get, s.mappingStmts.save,
	}

	for _, st := range stmts {
		if st != nil {
			st.Close()
		}
	}

	return s.db.Close()
}
