package credential

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenewer_TicksRefreshTheToken(t *testing.T) {
	setupEnvCredentials(t, "cached-token", "refresh-1")

	ex := &fakeExchanger{}
	m := newTestManager(t, ex, &fakeProber{}, Options{})

	r := StartRenewer(m, 10*time.Millisecond, discardLogger())
	defer r.Stop()

	require.Eventually(t, func() bool {
		return ex.count() >= 2
	}, 2*time.Second, 5*time.Millisecond, "renewal ticks keep exchanging")

	assert.NotEqual(t, "cached-token", m.Snapshot().AccessToken)
}

func TestRenewer_NoOpWithoutRefreshToken(t *testing.T) {
	setupEnvCredentials(t, "legacy-token", "")

	ex := &fakeExchanger{}
	m := newTestManager(t, ex, &fakeProber{}, Options{})

	r := StartRenewer(m, 5*time.Millisecond, discardLogger())

	time.Sleep(50 * time.Millisecond)
	r.Stop()

	assert.Zero(t, ex.count(), "legacy deployments never hit the token endpoint")
}

func TestRenewer_StopTerminates(t *testing.T) {
	setupEnvCredentials(t, "cached-token", "refresh-1")

	m := newTestManager(t, &fakeExchanger{}, &fakeProber{}, Options{})
	r := StartRenewer(m, time.Hour, discardLogger())

	stopped := make(chan struct{})

	go func() {
		r.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}
}
