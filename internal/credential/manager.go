package credential

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/harbordocs/docdrive/internal/credfile"
	"github.com/harbordocs/docdrive/internal/dropbox"
)

// Sentinel errors for the expected failure modes. The Manager never panics
// or returns wrapped provider errors for these; callers branch on them to
// decide whether the absence of a token is fatal.
var (
	// ErrNotConfigured means no credentials are available at all.
	ErrNotConfigured = errors.New("credential: no access or refresh token configured")

	// ErrReauthorizationRequired means the refresh token is permanently
	// invalid and no fallback applies. Manual re-authorization must supply
	// a new refresh token; the Manager never retries this state.
	ErrReauthorizationRequired = errors.New("credential: refresh token permanently invalid, re-authorization required")

	// ErrNoToken means no usable token could be produced this call; the
	// condition is transient and the next call or renewal tick may succeed.
	ErrNoToken = errors.New("credential: no valid token available")
)

// Exchanger performs a refresh-token grant against the provider's token
// endpoint. Implemented by dropbox.OAuthClient.
type Exchanger interface {
	Exchange(ctx context.Context, refreshToken string) (*dropbox.TokenResult, error)
}

// LivenessProber checks whether an access token is still accepted by the
// provider, independent of the token endpoint.
type LivenessProber interface {
	Probe(ctx context.Context, accessToken string) error
}

// Validation is the outcome of a side-effect-free refresh-token probe.
type Validation struct {
	Valid      bool
	StatusCode int
	Class      dropbox.Classification
	Err        error
}

// Permanent reports whether the probe failed terminally (revoked token or
// disabled app). Permanent failures are never auto-retried.
func (v Validation) Permanent() bool {
	return !v.Valid && v.Class == dropbox.ClassPermanent
}

// Options configures a Manager. Zero-value fields take defaults.
type Options struct {
	CachePath     string
	StaleAfter    time.Duration // default 50 minutes
	AllowFallback bool
	Now           func() time.Time // test seam
}

// Manager is the token lifecycle manager. It exclusively owns the credential
// record after Load; the environment and cache file are views that it
// refreshes on successful exchanges. A single process-wide mutex serializes
// the refresh exchange so N concurrent stale observers produce exactly one
// network refresh.
type Manager struct {
	exchanger Exchanger
	prober    LivenessProber
	logger    *slog.Logger
	opts      Options

	// mu guards record and permanentlyInvalid, and is held across the
	// refresh exchange. Callers of exported methods never hold it.
	mu                 sync.Mutex
	record             Record
	permanentlyInvalid bool
}

// NewManager constructs a Manager. Call Load before any token operation.
func NewManager(exchanger Exchanger, prober LivenessProber, opts Options, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}

	if opts.StaleAfter <= 0 {
		opts.StaleAfter = 50 * time.Minute
	}

	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Manager{
		exchanger: exchanger,
		prober:    prober,
		logger:    logger,
		opts:      opts,
	}
}

// Load populates the credential record from the ordered source list:
// environment first, cache file second. A file-sourced field never
// overwrites an environment-sourced one. No side effects beyond memory.
func (m *Manager) Load() error {
	rec, err := LoadRecord(EnvSource{}, FileSource{Path: m.opts.CachePath})
	if err != nil {
		return err
	}

	if rec.AccessToken == "" && rec.RefreshToken != "" && (rec.AppKey == "" || rec.AppSecret == "") {
		return fmt.Errorf("%s/%s required with %s: %w", EnvAppKey, EnvAppSecret, EnvRefreshToken, ErrNotConfigured)
	}

	m.mu.Lock()
	m.record = *rec
	m.permanentlyInvalid = false
	m.mu.Unlock()

	m.logger.Info("credentials loaded",
		slog.Bool("has_access_token", rec.AccessToken != ""),
		slog.Bool("has_refresh_token", rec.RefreshToken != ""),
		slog.Time("last_refresh", rec.LastRefresh),
	)

	return nil
}

// Snapshot returns a copy of the current credential record.
func (m *Manager) Snapshot() Record {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.record
}

// AccessToken returns a token usable immediately, refreshing if needed.
// Expected failures come back as sentinel errors, never panics:
// ErrNotConfigured, ErrReauthorizationRequired, or ErrNoToken.
func (m *Manager) AccessToken(ctx context.Context) (string, error) {
	rec := m.Snapshot()

	// Legacy mode: an access token with no refresh token is returned as-is,
	// unvalidated. These deployments predate refresh tokens.
	if rec.RefreshToken == "" {
		if rec.AccessToken == "" {
			return "", ErrNotConfigured
		}

		m.logger.Warn("no refresh token configured, using legacy access token without validation")

		return rec.AccessToken, nil
	}

	// A latched permanent failure is never re-probed; only a new refresh
	// token via ReloadFromCache clears it.
	if m.PermanentlyInvalid() {
		return m.fallbackToken(ctx, rec)
	}

	v := m.ValidateRefreshToken(ctx)

	switch {
	case v.Permanent():
		return m.fallbackToken(ctx, rec)

	case !v.Valid:
		// Transient or unknown probe failure: fall back to the cached
		// access token without further action. The next call retries.
		m.logger.Warn("refresh token probe failed, falling back to cached access token",
			slog.String("classification", v.Class.String()),
		)

		if rec.AccessToken == "" {
			return "", ErrNoToken
		}

		return rec.AccessToken, nil
	}

	if !m.needsRefresh(ctx, rec) {
		return rec.AccessToken, nil
	}

	if !m.refresh(ctx, rec.LastRefresh) {
		return "", ErrNoToken
	}

	return m.Snapshot().AccessToken, nil
}

// needsRefresh decides staleness: past the threshold since last refresh, or
// failing an unconditional liveness probe of the cached token when not yet
// stale by time. A missing access token always needs a refresh.
func (m *Manager) needsRefresh(ctx context.Context, rec Record) bool {
	if rec.AccessToken == "" {
		return true
	}

	elapsed := m.opts.Now().Sub(rec.LastRefresh)
	if elapsed > m.opts.StaleAfter {
		m.logger.Info("access token possibly stale",
			slog.Duration("elapsed", elapsed),
			slog.Duration("threshold", m.opts.StaleAfter),
		)

		return true
	}

	if err := m.prober.Probe(ctx, rec.AccessToken); err != nil {
		m.logger.Warn("access token failed liveness probe, forcing refresh",
			slog.String("error", err.Error()),
		)

		return true
	}

	return false
}

// fallbackToken implements the permanent-failure policy: when the fallback
// flag is enabled and the cached access token still passes an independent
// liveness probe, keep serving it (explicitly time-unbounded legacy
// continuity). Otherwise the caller must re-authorize.
func (m *Manager) fallbackToken(ctx context.Context, rec Record) (string, error) {
	m.mu.Lock()
	m.permanentlyInvalid = true
	m.mu.Unlock()

	if !m.opts.AllowFallback {
		m.logger.Error("refresh token permanently invalid and fallback disabled, re-authorization required")

		return "", ErrReauthorizationRequired
	}

	if rec.AccessToken == "" {
		return "", ErrReauthorizationRequired
	}

	if err := m.prober.Probe(ctx, rec.AccessToken); err != nil {
		m.logger.Error("refresh token permanently invalid and cached access token dead, re-authorization required",
			slog.String("probe_error", err.Error()),
		)

		return "", ErrReauthorizationRequired
	}

	m.logger.Warn("refresh token permanently invalid, serving live cached access token (fallback enabled)")

	return rec.AccessToken, nil
}

// ValidateRefreshToken probes the provider's token endpoint without mutating
// the credential record, distinguishing permanent failures (revoked token,
// disabled app) from transient or unknown ones.
func (m *Manager) ValidateRefreshToken(ctx context.Context) Validation {
	rec := m.Snapshot()
	if rec.RefreshToken == "" {
		return Validation{Valid: false, Err: ErrNotConfigured}
	}

	_, err := m.exchanger.Exchange(ctx, rec.RefreshToken)
	if err == nil {
		return Validation{Valid: true}
	}

	v := Validation{
		Valid: false,
		Class: dropbox.Classify(err),
		Err:   err,
	}

	var apiErr *dropbox.APIError
	if errors.As(err, &apiErr) {
		v.StatusCode = apiErr.StatusCode
	}

	return v
}

// Refresh performs an unconditional refresh-token exchange under the
// process-wide lock. Used by the background renewer. Returns true when the
// record now holds a freshly minted access token.
func (m *Manager) Refresh(ctx context.Context) bool {
	return m.refresh(ctx, time.Time{})
}

// refresh serializes the exchange. observedRefresh is the LastRefresh value
// the caller saw when it decided a refresh was needed; if the record moved
// past it while waiting on the lock, another caller already refreshed and
// this call succeeds without touching the network. A zero observedRefresh
// forces the exchange.
func (m *Manager) refresh(ctx context.Context, observedRefresh time.Time) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.record.RefreshToken == "" {
		m.logger.Warn("refresh requested with no refresh token configured")

		return false
	}

	if !observedRefresh.IsZero() && m.record.LastRefresh.After(observedRefresh) {
		m.logger.Debug("refresh already performed by concurrent caller",
			slog.Time("last_refresh", m.record.LastRefresh),
		)

		return true
	}

	if m.permanentlyInvalid {
		m.logger.Error("refresh skipped: token permanently invalid, re-authorization required")

		return false
	}

	res, err := m.exchanger.Exchange(ctx, m.record.RefreshToken)
	if err != nil {
		if dropbox.Classify(err) == dropbox.ClassPermanent {
			m.permanentlyInvalid = true
			m.logger.Error("refresh failed permanently, manual re-authorization required",
				slog.String("error", err.Error()),
			)

			return false
		}

		// Transient failures are not retried here; the next on-demand call
		// or renewal tick provides the retry cadence.
		m.logger.Warn("refresh failed", slog.String("error", err.Error()))

		return false
	}

	now := m.opts.Now()
	if !now.After(m.record.LastRefresh) {
		// last_refresh is monotonically non-decreasing even with a coarse
		// or frozen clock.
		now = m.record.LastRefresh.Add(time.Nanosecond)
	}

	m.record.AccessToken = res.AccessToken
	if res.RefreshToken != "" {
		m.logger.Info("provider rotated refresh token")
		m.record.RefreshToken = res.RefreshToken
	}

	m.record.LastRefresh = now

	m.persistLocked()

	m.logger.Info("access token refreshed", slog.Time("last_refresh", now))

	return true
}

// persistLocked writes the record to the cache file atomically and mirrors
// the new tokens into the environment view consumed by other collaborators.
// Persistence failure degrades durability, not availability; the in-memory
// record stays authoritative. Caller holds mu.
func (m *Manager) persistLocked() {
	cache := &credfile.Cache{
		AccessToken:  m.record.AccessToken,
		RefreshToken: m.record.RefreshToken,
		LastRefresh:  m.record.LastRefresh,
	}

	if err := credfile.Save(m.opts.CachePath, cache); err != nil {
		m.logger.Warn("failed to persist refreshed credentials",
			slog.String("path", m.opts.CachePath),
			slog.String("error", err.Error()),
		)
	}

	os.Setenv(EnvAccessToken, m.record.AccessToken)
	os.Setenv(EnvRefreshToken, m.record.RefreshToken)
}

// PermanentlyInvalid reports whether the manager has latched the terminal
// state. Cleared only by ReloadFromCache observing a new refresh token.
func (m *Manager) PermanentlyInvalid() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.permanentlyInvalid
}

// ReloadFromCache re-reads the cache file and adopts a changed refresh
// token, clearing the permanently-invalid latch. Called by the cache
// watcher when manual re-authorization writes new credentials while the
// process is running. A no-op when the file matches current state.
func (m *Manager) ReloadFromCache() error {
	c, err := credfile.Load(m.opts.CachePath)
	if err != nil {
		return err
	}

	if c == nil || c.RefreshToken == "" {
		return nil
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if c.RefreshToken == m.record.RefreshToken {
		return nil
	}

	m.record.RefreshToken = c.RefreshToken
	if c.AccessToken != "" {
		m.record.AccessToken = c.AccessToken
	}

	if c.LastRefresh.After(m.record.LastRefresh) {
		m.record.LastRefresh = c.LastRefresh
	}

	m.permanentlyInvalid = false

	m.logger.Info("adopted new refresh token from cache file (manual re-authorization)")

	return nil
}

// Source binds ctx and returns a dropbox.TokenSource backed by AccessToken.
// ctx must outlive the source; pass context.Background() for long-lived
// clients.
func (m *Manager) Source(ctx context.Context) dropbox.TokenSource {
	return &managerSource{ctx: ctx, m: m}
}

type managerSource struct {
	ctx context.Context
	m   *Manager
}

func (s *managerSource) Token() (string, error) {
	return s.m.AccessToken(s.ctx)
}
