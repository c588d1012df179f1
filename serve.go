package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/harbordocs/docdrive/internal/changesync"
	"github.com/harbordocs/docdrive/internal/credential"
	"github.com/harbordocs/docdrive/internal/dropbox"
	"github.com/harbordocs/docdrive/internal/metastore"
	"github.com/harbordocs/docdrive/internal/webhook"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook listener and background token renewal",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd.Context())
		},
	}
}

// runServe wires the composition root: credential manager, metadata store,
// provider client, change-sync engine, webhook server, background renewer
// and credential cache watcher. Everything is explicitly constructed here,
// no package-level singletons.
func runServe(ctx context.Context) error {
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

	// Long-lived client: binds Background so token refresh survives
	// individual request contexts.
	client := dropbox.NewClient(
		resolvedCfg.Provider.APIBaseURL,
		defaultHTTPClient(),
		manager.Source(context.Background()),
		logger,
	)

	engine := changesync.New(client, store, resolvedCfg.Provider.RootPath, logger)
	handler := webhook.NewHandler(engine, logger)

	renewer := credential.StartRenewer(manager, renewalInterval, logger)
	defer renewer.Stop()

	watcher, err := credential.WatchCache(manager, resolvedCfg.CredentialPath, logger)
	if err != nil {
		// Degraded but serviceable: manual re-authorization then requires
		// a restart to be picked up.
		logger.Warn("credential cache watcher unavailable", slog.String("error", err.Error()))
	} else {
		defer watcher.Close()
	}

	srv := &http.Server{
		Addr:              resolvedCfg.ListenAddr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: shutdownTimeout,
	}

	errCh := make(chan error, 1)

	go func() {
		logger.Info("webhook listener starting", slog.String("addr", resolvedCfg.ListenAddr))

		if serveErr := srv.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errCh <- serveErr
		}
	}()

	sigCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	select {
	case err := <-errCh:
		return fmt.Errorf("webhook listener: %w", err)
	case <-sigCtx.Done():
	}

	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown error", slog.String("error", err.Error()))
	}

	return nil
}
