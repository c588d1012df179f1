package dropbox

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTokenServer(handler http.HandlerFunc) (*httptest.Server, *OAuthClient) {
	srv := httptest.NewServer(handler)
	oc := NewOAuthClient(srv.URL+"/oauth2/token", "app-key", "app-secret", srv.Client(), testLogger())

	return srv, oc
}

func TestExchange_Success(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "refresh_token", r.FormValue("grant_type"))
		assert.Equal(t, "refresh-abc", r.FormValue("refresh_token"))

		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","token_type":"bearer","expires_in":14400}`)
	})
	defer srv.Close()

	res, err := oc.Exchange(context.Background(), "refresh-abc")
	require.NoError(t, err)

	assert.Equal(t, "new-access", res.AccessToken)
	assert.Empty(t, res.RefreshToken, "unrotated refresh token must not surface")
	assert.False(t, res.Expiry.IsZero())
}

func TestExchange_RotatedRefreshToken(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"access_token":"new-access","refresh_token":"rotated-xyz","token_type":"bearer","expires_in":14400}`)
	})
	defer srv.Close()

	res, err := oc.Exchange(context.Background(), "refresh-abc")
	require.NoError(t, err)
	assert.Equal(t, "rotated-xyz", res.RefreshToken)
}

func TestExchange_InvalidGrantIsPermanent(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_grant","error_description":"refresh token is malformed or revoked"}`)
	})
	defer srv.Close()

	_, err := oc.Exchange(context.Background(), "revoked")
	require.Error(t, err)

	assert.Equal(t, ClassPermanent, Classify(err))

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusBadRequest, apiErr.StatusCode)
	assert.Equal(t, "invalid_grant", apiErr.Summary)
}

func TestExchange_AppDisabledIsPermanent(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_request","error_description":"App is disabled"}`)
	})
	defer srv.Close()

	_, err := oc.Exchange(context.Background(), "refresh-abc")
	require.Error(t, err)
	assert.Equal(t, ClassPermanent, Classify(err))
}

func TestExchange_ServerErrorIsTransient(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `upstream exploded`)
	})
	defer srv.Close()

	_, err := oc.Exchange(context.Background(), "refresh-abc")
	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestExchange_OtherBadRequestIsUnknown(t *testing.T) {
	srv, oc := newTokenServer(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		fmt.Fprint(w, `{"error":"invalid_request","error_description":"missing parameter"}`)
	})
	defer srv.Close()

	_, err := oc.Exchange(context.Background(), "refresh-abc")
	require.Error(t, err)
	assert.Equal(t, ClassUnknown, Classify(err))
}

func TestExchange_EndpointUnreachable(t *testing.T) {
	oc := NewOAuthClient("http://127.0.0.1:1/oauth2/token", "k", "s", nil, testLogger())

	_, err := oc.Exchange(context.Background(), "refresh-abc")
	require.Error(t, err)
	assert.Equal(t, ClassTransient, Classify(err))
}
