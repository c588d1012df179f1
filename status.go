package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harbordocs/docdrive/internal/metastore"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show credential and cursor state",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd.Context())
		},
	}
}

func runStatus(ctx context.Context) error {
	logger := buildLogger()

	manager, err := buildManager(logger)
	if err != nil {
		return err
	}

	rec := manager.Snapshot()

	fmt.Println("Credentials:")
	fmt.Printf("  access token:  %s\n", presence(rec.AccessToken != ""))
	fmt.Printf("  refresh token: %s\n", presence(rec.RefreshToken != ""))

	if rec.LastRefresh.IsZero() {
		fmt.Println("  last refresh:  never")
	} else {
		fmt.Printf("  last refresh:  %s (%s ago)\n",
			rec.LastRefresh.Format(time.RFC3339),
			time.Since(rec.LastRefresh).Round(time.Second),
		)
	}

	if rec.RefreshToken == "" {
		fmt.Println("  mode:          legacy (access token only, no validation)")
	} else {
		v := manager.ValidateRefreshToken(ctx)
		switch {
		case v.Valid:
			fmt.Println("  refresh token: valid")
		case v.Permanent():
			fmt.Printf("  refresh token: PERMANENTLY INVALID (HTTP %d), re-authorization required\n", v.StatusCode)
		default:
			fmt.Printf("  refresh token: probe failed (%s), may be temporary\n", v.Class)
		}
	}

	store, err := metastore.New(resolvedCfg.DatabasePath, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if len(resolvedCfg.Provider.Accounts) > 0 {
		fmt.Println("\nAccounts:")

		for _, accountID := range resolvedCfg.Provider.Accounts {
			cursor, err := store.Cursor(ctx, accountID)
			if err != nil {
				return err
			}

			entries, err := store.CountEntries(ctx, accountID)
			if err != nil {
				return err
			}

			state := "cursor saved"
			if cursor == "" {
				state = "no cursor (next sync is a full listing)"
			}

			fmt.Printf("  %s: %d entries, %s\n", accountID, entries, state)
		}
	}

	return nil
}

func presence(ok bool) string {
	if ok {
		return "present"
	}

	return "absent"
}
