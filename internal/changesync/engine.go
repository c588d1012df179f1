// Package changesync reconciles local metadata with the remote provider's
// change feed. Webhook notifications and one-shot sync runs both funnel into
// Reconcile, which performs a full recursive listing for accounts with no
// saved cursor and an incremental continue otherwise. Upserts are idempotent
// and the cursor only advances after a whole batch applies, so at-least-once
// webhook delivery and batch reprocessing are safe.
package changesync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/harbordocs/docdrive/internal/dropbox"
	"github.com/harbordocs/docdrive/internal/metastore"
)

// Lister fetches change batches from the remote provider.
// Implemented by dropbox.Client.
type Lister interface {
	ListAll(ctx context.Context, root, cursor string) ([]dropbox.Entry, string, error)
}

// MetaStore is the slice of the metadata store the engine needs.
// Implemented by metastore.Store.
type MetaStore interface {
	UpsertEntry(ctx context.Context, e metastore.Entry) error
	Cursor(ctx context.Context, accountID string) (string, error)
	SaveCursor(ctx context.Context, accountID, cursor string) error
	ResetCursor(ctx context.Context, accountID string) error
}

// Engine is the change-sync engine. Reconciliation for one account never
// runs concurrently with itself; different accounts proceed in parallel.
type Engine struct {
	lister   Lister
	store    MetaStore
	rootPath string
	logger   *slog.Logger

	// mu guards accountLocks. The per-account mutexes serialize cursor
	// reads and writes for a single account.
	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// New creates an Engine reconciling rootPath (empty means account root).
func New(lister Lister, store MetaStore, rootPath string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}

	return &Engine{
		lister:       lister,
		store:        store,
		rootPath:     rootPath,
		logger:       logger,
		accountLocks: make(map[string]*sync.Mutex),
	}
}

// accountLock returns the mutex serializing reconciliation for one account,
// creating it on first use.
func (e *Engine) accountLock(accountID string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.accountLocks[accountID]
	if !ok {
		l = &sync.Mutex{}
		e.accountLocks[accountID] = l
	}

	return l
}

// Reconcile brings the metadata store up to date with the remote change
// feed for one account. With no saved cursor it performs a full recursive
// listing and upserts every entry; otherwise it continues from the cursor.
// The new cursor is persisted only after the entire batch has been applied
// without error; any mid-batch failure leaves the previous cursor intact
// so the next run reprocesses the whole batch.
func (e *Engine) Reconcile(ctx context.Context, accountID string) error {
	lock := e.accountLock(accountID)
	lock.Lock()
	defer lock.Unlock()

	runID := uuid.NewString()

	cursor, err := e.store.Cursor(ctx, accountID)
	if err != nil {
		return fmt.Errorf("changesync: loading cursor for %s: %w", accountID, err)
	}

	e.logger.Info("reconciling account",
		slog.String("account_id", accountID),
		slog.String("run_id", runID),
		slog.Bool("full_listing", cursor == ""),
	)

	entries, newCursor, err := e.lister.ListAll(ctx, e.rootPath, cursor)
	if err != nil {
		if isCursorExpired(err) {
			e.logger.Warn("saved cursor expired, restarting with full listing",
				slog.String("account_id", accountID),
				slog.String("run_id", runID),
			)

			if resetErr := e.store.ResetCursor(ctx, accountID); resetErr != nil {
				return fmt.Errorf("changesync: resetting expired cursor for %s: %w", accountID, resetErr)
			}

			entries, newCursor, err = e.lister.ListAll(ctx, e.rootPath, "")
		}

		if err != nil {
			return fmt.Errorf("changesync: listing changes for %s: %w", accountID, err)
		}
	}

	applied, err := e.applyBatch(ctx, accountID, entries)
	if err != nil {
		e.logger.Error("batch application failed, cursor not advanced",
			slog.String("account_id", accountID),
			slog.String("run_id", runID),
			slog.Int("applied", applied),
			slog.Int("batch_size", len(entries)),
			slog.String("error", err.Error()),
		)

		return err
	}

	if err := e.store.SaveCursor(ctx, accountID, newCursor); err != nil {
		return fmt.Errorf("changesync: saving cursor for %s: %w", accountID, err)
	}

	e.logger.Info("account reconciled",
		slog.String("account_id", accountID),
		slog.String("run_id", runID),
		slog.Int("entries", applied),
	)

	return nil
}

// applyBatch upserts every entry in observation order and reports how many
// were applied before the first error.
func (e *Engine) applyBatch(ctx context.Context, accountID string, entries []dropbox.Entry) (int, error) {
	for i, entry := range entries {
		if entry.IsDeleted() {
			// Removals are reported but not mirrored; local entries are
			// never implicitly deleted by this engine.
			e.logger.Debug("skipping deletion entry",
				slog.String("account_id", accountID),
				slog.String("path", entry.PathLower),
			)

			continue
		}

		kind := metastore.KindFile
		if entry.IsFolder() {
			kind = metastore.KindFolder
		}

		err := e.store.UpsertEntry(ctx, metastore.Entry{
			AccountID:   accountID,
			PathKey:     entry.PathLower,
			DisplayPath: entry.PathDisplay,
			Name:        entry.Name,
			Kind:        kind,
			Size:        entry.Size,
			ModifiedAt:  entry.ServerModified,
		})
		if err != nil {
			return i, fmt.Errorf("changesync: applying entry %s: %w", entry.PathLower, err)
		}
	}

	return len(entries), nil
}

// isCursorExpired recognizes the provider's cursor-reset response.
func isCursorExpired(err error) bool {
	var apiErr *dropbox.APIError
	if !errors.As(err, &apiErr) {
		return false
	}

	return strings.Contains(apiErr.Summary, "reset")
}
