package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type observation struct {
	method, route string
	status        int
}

type fakeObserver struct {
	mu       sync.Mutex
	inflight int
	seen     []observation
}

func (f *fakeObserver) InFlight() func() {
	f.mu.Lock()
	f.inflight++
	f.mu.Unlock()
	return func() {
		f.mu.Lock()
		f.inflight--
		f.mu.Unlock()
	}
}

func (f *fakeObserver) ObserveRequest(method, route string, status int, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen = append(f.seen, observation{method, route, status})
}

func newRouter(logger *slog.Logger, obs RequestObserver) *chi.Mux {
	r := chi.NewRouter()
	r.Use(Logger(logger))
	r.Use(Metrics(obs))
	r.Get("/items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("short and stout"))
	})
	return r
}

func TestLoggerAndMetrics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	obs := &fakeObserver{}

	rec := httptest.NewRecorder()
	newRouter(logger, obs).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/items/42?secret=x", nil))
	require.Equal(t, http.StatusTeapot, rec.Code)

	line := buf.String()
	assert.True(t, strings.Contains(line, "status=418"), line)
	assert.True(t, strings.Contains(line, "route=/items/{id}"), line)
	assert.True(t, strings.Contains(line, "path=/items/42"), line)
	assert.True(t, strings.Contains(line, "bytes=15"), line)
	assert.False(t, strings.Contains(line, "secret"), "query strings are not logged")

	require.Len(t, obs.seen, 1)
	assert.Equal(t, observation{http.MethodGet, "/items/{id}", http.StatusTeapot}, obs.seen[0])
	assert.Zero(t, obs.inflight)
}

func TestServerErrorsLogAtErrorLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := Logger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.True(t, strings.Contains(buf.String(), "level=ERROR"))
}
