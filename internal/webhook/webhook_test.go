package webhook

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harbordocs/docdrive/internal/changesync"
)

type fakeNotifier struct {
	bodies [][]byte
	err    error
}

func (f *fakeNotifier) HandleNotification(_ context.Context, body []byte) error {
	f.bodies = append(f.bodies, body)

	return f.err
}

func newTestServer(t *testing.T, notifier *fakeNotifier) *httptest.Server {
	t.Helper()

	h := NewHandler(notifier, slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(h.Router())
	t.Cleanup(srv.Close)

	return srv
}

func TestChallenge_EchoedVerbatim(t *testing.T) {
	srv := newTestServer(t, &fakeNotifier{})

	resp, err := http.Get(srv.URL + "/webhook/dropbox?challenge=ABC123")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ABC123", string(body))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
}

func TestChallenge_MissingParameter(t *testing.T) {
	srv := newTestServer(t, &fakeNotifier{})

	resp, err := http.Get(srv.URL + "/webhook/dropbox")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotify_AcceptedPayload(t *testing.T) {
	notifier := &fakeNotifier{}
	srv := newTestServer(t, notifier)

	payload := `{"list_folder":{"accounts":["acct-1"]}}`

	resp, err := http.Post(srv.URL+"/webhook/dropbox", "application/json", strings.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "OK", string(body))

	require.Len(t, notifier.bodies, 1)
	assert.JSONEq(t, payload, string(notifier.bodies[0]))
}

func TestNotify_MalformedPayload(t *testing.T) {
	notifier := &fakeNotifier{err: changesync.ErrMalformedNotification}
	srv := newTestServer(t, notifier)

	resp, err := http.Post(srv.URL+"/webhook/dropbox", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestNotify_DispatchFailure(t *testing.T) {
	notifier := &fakeNotifier{err: context.DeadlineExceeded}
	srv := newTestServer(t, notifier)

	resp, err := http.Post(srv.URL+"/webhook/dropbox", "application/json", strings.NewReader("{}"))
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
}

func TestNotify_OversizedBodyTruncated(t *testing.T) {
	notifier := &fakeNotifier{}
	srv := newTestServer(t, notifier)

	big := strings.Repeat("x", maxNotificationBytes+1024)

	resp, err := http.Post(srv.URL+"/webhook/dropbox", "application/json", strings.NewReader(big))
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Len(t, notifier.bodies, 1)
	assert.Len(t, notifier.bodies[0], maxNotificationBytes)
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, &fakeNotifier{})

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}
