package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/harbordocs/docdrive/internal/changesync"
	"github.com/harbordocs/docdrive/internal/dropbox"
	"github.com/harbordocs/docdrive/internal/metastore"
)

func newSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sync [account-id...]",
		Short: "Reconcile local metadata with the remote change feed",
		Long: "Runs one reconciliation pass for the given accounts (or the " +
			"configured ones), using the saved cursor when present and a " +
			"full recursive listing otherwise.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSync(cmd.Context(), args)
		},
	}
}

func runSync(ctx context.Context, accounts []string) error {
	logger := buildLogger()

	if len(accounts) == 0 {
		accounts = resolvedCfg.Provider.Accounts
	}

	if len(accounts) == 0 {
		return fmt.Errorf("no accounts given and none configured under [provider]")
	}

	manager, err := buildManager(logger)
	if err != nil {
		return err
	}

	store, err := metastore.New(resolvedCfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	client := dropbox.NewClient(
		resolvedCfg.Provider.APIBaseURL,
		defaultHTTPClient(),
		manager.Source(ctx),
		logger,
	)

	engine := changesync.New(client, store, resolvedCfg.Provider.RootPath, logger)

	var failed int

	for _, accountID := range accounts {
		if err := engine.Reconcile(ctx, accountID); err != nil {
			logger.Error("reconciliation failed",
				slog.String("account_id", accountID),
				slog.String("error", err.Error()),
			)

			failed++
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d accounts failed to reconcile", failed, len(accounts))
	}

	return nil
}
