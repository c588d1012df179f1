package credential

import (
	"context"
	"log/slog"
	"time"
)

// Renewer refreshes the access token on a fixed cadence, independent of
// on-demand refreshes. Both paths coordinate through the Manager's single
// exchange lock, so a tick never races a caller-triggered refresh. The
// ticker carries an explicit stop signal so shutdown never strands a
// goroutine.
type Renewer struct {
	manager  *Manager
	interval time.Duration
	logger   *slog.Logger

	stop chan struct{}
	done chan struct{}
}

// StartRenewer launches the background renewal loop. The returned Renewer
// must be stopped with Stop during shutdown. When no refresh token is
// configured the ticks are no-ops.
func StartRenewer(manager *Manager, interval time.Duration, logger *slog.Logger) *Renewer {
	if logger == nil {
		logger = slog.Default()
	}

	r := &Renewer{
		manager:  manager,
		interval: interval,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}

	go r.run()

	logger.Info("background token renewal started", slog.Duration("interval", interval))

	return r
}

func (r *Renewer) run() {
	defer close(r.done)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stop:
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

// tick refreshes unconditionally when a refresh token is configured.
// Failures are logged and left to the next tick; no tight-loop retry.
func (r *Renewer) tick() {
	if r.manager.Snapshot().RefreshToken == "" {
		return
	}

	if ok := r.manager.Refresh(context.Background()); !ok {
		r.logger.Warn("scheduled token renewal failed, will retry next tick")

		return
	}

	r.logger.Debug("scheduled token renewal complete")
}

// Stop signals the loop and waits for it to exit. An in-flight refresh
// finishes first; the exchange lock is never abandoned mid-write.
func (r *Renewer) Stop() {
	close(r.stop)
	<-r.done
	r.logger.Info("background token renewal stopped")
}
