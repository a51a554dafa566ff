package middleware

import (
	"net/http"
	"time"
)

// RequestObserver records finished requests. *metrics.Metrics implements it.
type RequestObserver interface {
	InFlight() func()
	ObserveRequest(method, route string, status int, d time.Duration)
}

// Metrics reports every request to obs, labelled by route pattern so that
// path parameters do not explode label cardinality.
func Metrics(obs RequestObserver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			done := obs.InFlight()
			defer done()

			start := time.Now()
			wrapped := wrap(w)
			next.ServeHTTP(wrapped, r)

			obs.ObserveRequest(r.Method, routePattern(r), wrapped.statusCode, time.Since(start))
		})
	}
}
