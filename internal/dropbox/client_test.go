package dropbox

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestClient builds a client against srvURL with instant retries.
func newTestClient(t *testing.T, srvURL string) *Client {
	t.Helper()

	c := NewClient(srvURL, srvURL2HTTPClient(), StaticToken("test-token"), testLogger())
	c.sleepFunc = func(_ context.Context, _ time.Duration) error { return nil }

	return c
}

func srvURL2HTTPClient() *http.Client {
	return &http.Client{Timeout: 5 * time.Second}
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDo_SendsBearerTokenAndContentType(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer test-token", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	resp, err := client.Do(context.Background(), "/files/list_folder", []byte(`{"path":""}`))
	require.NoError(t, err)
	resp.Body.Close()
}

func TestDo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)

			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	resp, err := client.Do(context.Background(), "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()

	assert.Equal(t, int32(3), calls.Load())
}

func TestDo_HonorsRetryAfter(t *testing.T) {
	var calls atomic.Int32

	var sleeps []time.Duration

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.Header().Set("Retry-After", "7")
			w.WriteHeader(http.StatusTooManyRequests)

			return
		}

		w.WriteHeader(http.StatusOK)
		fmt.Fprint(w, `{}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)
	client.sleepFunc = func(_ context.Context, d time.Duration) error {
		sleeps = append(sleeps, d)
		return nil
	}

	resp, err := client.Do(context.Background(), "/x", nil)
	require.NoError(t, err)
	resp.Body.Close()

	require.Len(t, sleeps, 1)
	assert.Equal(t, 7*time.Second, sleeps[0])
}

func TestDo_ConflictClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary":"path/conflict/folder/...","error":{".tag":"path"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Do(context.Background(), "/files/create_folder_v2", []byte(`{}`))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrConflict)
	assert.Equal(t, ClassConflict, Classify(err))
}

func TestDo_NotFoundClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusConflict)
		fmt.Fprint(w, `{"error_summary":"path/not_found/","error":{".tag":"path"}}`)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Do(context.Background(), "/files/get_metadata", []byte(`{}`))
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, ClassNotFound, Classify(err))
}

func TestDo_ExhaustedRetriesReturnTransient(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Do(context.Background(), "/x", nil)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrServerError)
	assert.Equal(t, ClassTransient, Classify(err))
}

func TestDo_ContextCancellationNotRetried(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := newTestClient(t, srv.URL)

	_, err := client.Do(ctx, "/x", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestClassify_PlainNetworkErrorIsTransient(t *testing.T) {
	assert.Equal(t, ClassTransient, Classify(fmt.Errorf("dial tcp: connection refused")))
}
