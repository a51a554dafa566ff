package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordAuth(t *testing.T) {
	m := New()
	m.RecordAuth("login", OutcomeSuccess)
	m.RecordAuth("login", OutcomeSuccess)
	m.RecordAuth("register", OutcomeFailure)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("login", OutcomeSuccess)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.authAttempts.WithLabelValues("register", OutcomeFailure)))
}

func TestShellGauge(t *testing.T) {
	m := New()
	m.ShellMounted()
	m.ShellMounted()
	m.ShellUnmounted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.activeShells))
}

func TestHandlerExposesCollectors(t *testing.T) {
	m := New()
	done := m.InFlight()
	done()
	m.ObserveRequest(http.MethodGet, "/", http.StatusOK, 12*time.Millisecond)
	m.ObserveRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	body, _ := io.ReadAll(rec.Body)
	text := string(body)
	assert.True(t, strings.Contains(text, `cinemax_http_requests_total{method="GET",route="/",status="200"} 1`))
	assert.True(t, strings.Contains(text, `route="unmatched"`))
	assert.True(t, strings.Contains(text, "cinemax_http_request_duration_seconds_bucket"))
}
