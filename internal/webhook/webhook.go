// Package webhook exposes the HTTP surface for provider change
// notifications: the challenge echo used for endpoint verification and the
// notification receiver that feeds the change-sync engine.
package webhook

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/harbordocs/docdrive/internal/changesync"
)

// maxNotificationBytes bounds the webhook body read. Provider notifications
// are small account lists; anything larger is abuse.
const maxNotificationBytes = 1 << 20

// Notifier consumes validated webhook payloads.
// Implemented by changesync.Engine.
type Notifier interface {
	HandleNotification(ctx context.Context, body []byte) error
}

// Handler serves the webhook endpoints.
type Handler struct {
	notifier Notifier
	logger   *slog.Logger
}

// NewHandler creates a webhook Handler.
func NewHandler(notifier Notifier, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}

	return &Handler{notifier: notifier, logger: logger}
}

// Router builds the chi router for the webhook surface.
func (h *Handler) Router() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.health)
	r.Get("/webhook/dropbox", h.challenge)
	r.Post("/webhook/dropbox", h.notify)

	return r
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "ok")
}

// challenge echoes the verification challenge verbatim. The provider calls
// this once when the webhook URL is registered.
func (h *Handler) challenge(w http.ResponseWriter, r *http.Request) {
	challenge := r.URL.Query().Get("challenge")
	if challenge == "" {
		http.Error(w, "missing challenge parameter", http.StatusBadRequest)

		return
	}

	h.logger.Info("webhook verification challenge received")

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, challenge)
}

// notify accepts a change notification. 200 "OK" means every referenced
// account was accepted for processing; a single account's reconciliation
// failure never fails the request. 400 marks a malformed payload, 500 a
// dispatch failure.
func (h *Handler) notify(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxNotificationBytes))
	if err != nil {
		h.logger.Warn("failed to read notification body", slog.String("error", err.Error()))
		http.Error(w, "unreadable body", http.StatusBadRequest)

		return
	}

	if err := h.notifier.HandleNotification(r.Context(), body); err != nil {
		if errors.Is(err, changesync.ErrMalformedNotification) {
			h.logger.Warn("rejecting malformed notification", slog.String("error", err.Error()))
			http.Error(w, "malformed notification payload", http.StatusBadRequest)

			return
		}

		h.logger.Error("notification dispatch failed", slog.String("error", err.Error()))
		http.Error(w, "dispatch failed", http.StatusInternalServerError)

		return
	}

	w.WriteHeader(http.StatusOK)
	fmt.Fprint(w, "OK")
}
