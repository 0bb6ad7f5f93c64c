package handler

import (
	"context"
	"net/http"
	"time"
)

// Health answers 204 when check passes within timeout and 503 otherwise.
func Health(check func(ctx context.Context) error, timeout time.Duration) http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		if err := check(ctx); err != nil {
			rw.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		rw.WriteHeader(http.StatusNoContent)
	}
}
