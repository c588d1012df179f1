package dropbox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
)

// DefaultTokenURL is the provider's OAuth2 token endpoint.
const DefaultTokenURL = "https://api.dropbox.com/oauth2/token"

// Permanent failure markers in the token endpoint's structured error.
// invalid_grant means the refresh token is revoked or expired;
// the disabled marker appears when the registered app itself is turned off.
const (
	errCodeInvalidGrant = "invalid_grant"
	errTextAppDisabled  = "app is disabled"
)

// TokenResult is the outcome of a successful refresh exchange.
// RefreshToken is non-empty only when the provider rotated it.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	Expiry       time.Time
}

// OAuthClient performs refresh-token exchanges against the provider's token
// endpoint. It is separate from Client because the exchange authenticates
// with the app key/secret rather than a bearer token.
type OAuthClient struct {
	cfg        *oauth2.Config
	httpClient *http.Client
	logger     *slog.Logger
}

// NewOAuthClient builds an OAuthClient for the given app credentials.
// tokenURL is typically DefaultTokenURL; tests inject an httptest URL.
func NewOAuthClient(tokenURL, appKey, appSecret string, httpClient *http.Client, logger *slog.Logger) *OAuthClient {
	if logger == nil {
		logger = slog.Default()
	}

	if httpClient == nil {
		httpClient = &http.Client{Timeout: RequestTimeout}
	}

	return &OAuthClient{
		cfg: &oauth2.Config{
			ClientID:     appKey,
			ClientSecret: appSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		httpClient: httpClient,
		logger:     logger,
	}
}

// Exchange performs one refresh-token grant and returns the minted token.
// Errors are classified exactly once, here: a 400 with a recognized
// permanent error code yields an APIError with ClassPermanent; anything
// else from the endpoint is transient or unknown.
func (o *OAuthClient) Exchange(ctx context.Context, refreshToken string) (*TokenResult, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, o.httpClient)

	src := o.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken})

	tok, err := src.Token()
	if err != nil {
		return nil, o.classifyExchangeError(err)
	}

	res := &TokenResult{
		AccessToken: tok.AccessToken,
		Expiry:      tok.Expiry,
	}

	// The provider may rotate the refresh token; surface it only when it
	// actually changed so callers can distinguish rotation from reuse.
	if tok.RefreshToken != "" && tok.RefreshToken != refreshToken {
		res.RefreshToken = tok.RefreshToken
	}

	o.logger.Debug("refresh exchange succeeded", slog.Time("expiry", tok.Expiry))

	return res, nil
}

// classifyExchangeError converts an oauth2 retrieval error into a tagged
// APIError. This is the only place token-endpoint error text is inspected.
func (o *OAuthClient) classifyExchangeError(err error) error {
	var re *oauth2.RetrieveError
	if !errors.As(err, &re) {
		// No HTTP response at all; network failure, timeout.
		return fmt.Errorf("dropbox: token endpoint unreachable: %w", err)
	}

	apiErr := &APIError{
		StatusCode: re.Response.StatusCode,
		Summary:    re.ErrorCode,
		Message:    re.ErrorDescription,
		Err:        ErrUnauthorized,
		Class:      ClassTransient,
	}

	if apiErr.Message == "" {
		apiErr.Message = strings.TrimSpace(string(re.Body))
	}

	if re.Response.StatusCode == http.StatusBadRequest && isPermanentAuthFailure(re) {
		apiErr.Class = ClassPermanent
	} else if re.Response.StatusCode >= http.StatusInternalServerError ||
		re.Response.StatusCode == http.StatusTooManyRequests {
		apiErr.Class = ClassTransient
	} else {
		apiErr.Class = ClassUnknown
	}

	o.logger.Warn("refresh exchange failed",
		slog.Int("status", apiErr.StatusCode),
		slog.String("error_code", re.ErrorCode),
		slog.String("classification", apiErr.Class.String()),
	)

	return apiErr
}

// isPermanentAuthFailure recognizes the two terminal token-endpoint errors:
// a revoked/expired refresh token and a disabled app registration.
func isPermanentAuthFailure(re *oauth2.RetrieveError) bool {
	if re.ErrorCode == errCodeInvalidGrant {
		return true
	}

	desc := strings.ToLower(re.ErrorDescription + " " + string(re.Body))

	return strings.Contains(desc, errTextAppDisabled)
}
