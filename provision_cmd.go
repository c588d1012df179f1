package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harbordocs/docdrive/internal/dropbox"
	"github.com/harbordocs/docdrive/internal/metastore"
	"github.com/harbordocs/docdrive/internal/provision"
)

func newProvisionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "provision <owner-path> [dependent-path]",
		Short: "Ensure the remote folder hierarchy exists",
		Long: "Creates the owner folder and, when given, its dependent " +
			"sub-folder on the remote. Already-existing folders count as " +
			"success, so re-running is always safe.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			dependent := ""
			if len(args) == 2 {
				dependent = args[1]
			}

			return runProvision(cmd.Context(), args[0], dependent)
		},
	}
}

func runProvision(ctx context.Context, ownerPath, dependentPath string) error {
	logger := buildLogger()

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

	p := provision.New(client, store, logger)

	ownerPath = dropbox.NormalizePath(ownerPath)
	if dependentPath != "" {
		dependentPath = dropbox.NormalizePath(dependentPath)
	}

	if err := p.EnsureOwnerThenDependent(ctx, ownerPath, dependentPath); err != nil {
		return err
	}

	fmt.Printf("provisioned %s", ownerPath)
	if dependentPath != "" {
		fmt.Printf(" and %s", dependentPath)
	}
	fmt.Println()

	return nil
}
