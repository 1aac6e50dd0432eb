package middleware

import (
	"net/http"

	pnet "scorekeeper/internal/platform/net"
)

// AuthPort extracts caller identity from a request
type AuthPort interface {
	// Parse returns a user id and project id from the request or an error
	Parse(r *http.Request) (userID string, projectID string, err error)
}

// Auth authenticates requests through the port and stamps the caller onto
// the context. A nil port passes everything through
func Auth(p AuthPort, write func(w http.ResponseWriter, status int, body any)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if p == nil {
				next.ServeHTTP(w, r)
				return
			}
			uid, pid, err := p.Parse(r)
			if err != nil {
				status, body := pnet.Error(err, pnet.RequestID(r.Context()))
				write(w, status, body)
				return
			}
			ctx := pnet.WithUser(r.Context(), uid)
			ctx = pnet.WithRequest(ctx, pnet.RequestID(ctx), pid)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
