package changesync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/sync/errgroup"
)

// ErrMalformedNotification marks a payload that fails shape validation.
// The HTTP layer maps it to 400; nothing is dispatched for such payloads.
var ErrMalformedNotification = errors.New("changesync: malformed notification payload")

// maxParallelAccounts bounds the reconciliation fan-out for one notification.
const maxParallelAccounts = 4

// Notification mirrors the provider's webhook body: the list_folder key maps
// account identifiers to pending change metadata.
type Notification struct {
	ListFolder *ListFolderNotice `json:"list_folder"`
}

// ListFolderNotice carries the accounts with pending changes.
type ListFolderNotice struct {
	Accounts []string `json:"accounts"`
}

// Validate checks the payload shape: the recognized top-level key must be
// present and every account identifier non-empty.
func (n Notification) Validate() error {
	return validation.ValidateStruct(&n,
		validation.Field(&n.ListFolder, validation.Required),
	)
}

// Validate checks the per-key shape.
func (l ListFolderNotice) Validate() error {
	return validation.ValidateStruct(&l,
		validation.Field(&l.Accounts,
			validation.Required,
			validation.Each(validation.Required),
		),
	)
}

// ParseNotification decodes and validates a webhook payload. A payload that
// is not JSON or lacks the recognized key yields ErrMalformedNotification.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedNotification, err.Error())
	}

	if err := n.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrMalformedNotification, err.Error())
	}

	return &n, nil
}

// HandleNotification validates the payload and reconciles every distinct
// account it references. Accounts run in parallel, bounded; one account's
// reconciliation failure is caught and logged with its cursor state and
// does not prevent sibling accounts from being processed. The returned
// error is non-nil only for a malformed payload; per-account failures are
// absorbed here, to be retried on the provider's next notification.
func (e *Engine) HandleNotification(ctx context.Context, body []byte) error {
	n, err := ParseNotification(body)
	if err != nil {
		return err
	}

	accounts := dedupe(n.ListFolder.Accounts)

	e.logger.Info("webhook notification received",
		slog.Int("accounts", len(accounts)),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelAccounts)

	for _, accountID := range accounts {
		g.Go(func() error {
			if err := e.Reconcile(gctx, accountID); err != nil {
				cursor, cursorErr := e.store.Cursor(ctx, accountID)
				if cursorErr != nil {
					cursor = "(unavailable)"
				}

				// Fault isolation: log and absorb so siblings proceed.
				e.logger.Error("account reconciliation failed",
					slog.String("account_id", accountID),
					slog.String("cursor", cursor),
					slog.String("error", err.Error()),
				)
			}

			return nil
		})
	}

	return g.Wait()
}

// dedupe removes duplicate account identifiers, preserving order.
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))

	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		out = append(out, id)
	}

	return out
}
