package dropbox

import (
	"context"
	"log/slog"
	"net/http"
)

// Prober checks access-token liveness against the account endpoint,
// independent of the token endpoint. It satisfies the credential package's
// LivenessProber.
type Prober struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewProber creates a Prober for the given API base URL.
func NewProber(baseURL string, httpClient *http.Client, logger *slog.Logger) *Prober {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}

	return &Prober{baseURL: baseURL, httpClient: httpClient, logger: logger}
}

// Probe returns nil when the token is accepted by the provider.
func (p *Prober) Probe(ctx context.Context, accessToken string) error {
	client := NewClient(p.baseURL, p.httpClient, StaticToken(accessToken), p.logger)

	return client.CheckAccount(ctx)
}
