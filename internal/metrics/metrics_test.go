package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeHookStats struct{ delivered, injected, panics uint64 }

func (f fakeHookStats) Delivered() uint64 { return f.delivered }
func (f fakeHookStats) Injected() uint64  { return f.injected }
func (f fakeHookStats) Panics() uint64    { return f.panics }

func TestFlushCounters(t *testing.T) {
	m := New()

	m.FlushSucceeded(10*time.Millisecond, 4)
	m.FlushSucceeded(5*time.Millisecond, 2)
	m.FlushSkipped()
	m.FlushFailed(time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.flushes.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("empty")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.flushes.WithLabelValues("error")))
	assert.Equal(t, 6.0, testutil.ToFloat64(m.flushRows))
}

func TestHandlerExposesHookStats(t *testing.T) {
	m := New()
	m.RegisterHook(fakeHookStats{delivered: 42, injected: 3})
	m.SetHookInstalled(true)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "keytally_hook_events_total 42")
	assert.Contains(t, body, "keytally_hook_injected_total 3")
	assert.Contains(t, body, "keytally_hook_installed 1")
}
