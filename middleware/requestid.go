// Package middleware holds small HTTP middleware wrapped around the
// gateway's upgrade endpoint.
package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

// RequestIDHeader is the header the id is read from and echoed on.
const RequestIDHeader = "X-Request-ID"

type requestIDKey struct{}

// RequestID tags every inbound request with a UUID before the upgrade
// handler runs, echoes it on the response, and stores it on the request
// context for RequestIDFrom (the upgrade handler adds it to its own log
// lines). An id supplied by
// an upstream proxy is kept only if it is itself a UUID; anything else
// is replaced rather than propagated into the logs.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(reqID); err != nil {
			reqID = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, reqID)
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDFrom retrieves the id RequestID stored on the context, or
// "" if none is present.
func RequestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}
