package middleware

import "net/http"

// UserContext lifts the authenticated user id set by the edge proxy into
// the request context. Identity verification happens upstream; this
// service only consumes the header.
func UserContext() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID := r.Header.Get("X-User-Id"); userID != "" {
				r = r.WithContext(WithUserID(r.Context(), userID))
			}
			next.ServeHTTP(w, r)
		})
	}
}
