package middleware

import (
	"crypto/subtle"
	"net/http"

	"baladi-api/internal/backend"
)

// MerchantAuth resolves the X-API-Key header to a merchant identity using
// constant-time comparison and attaches it to the request context.
// Requests without a key proceed anonymously: public discovery is open,
// and handlers that mutate listings enforce the identity themselves.
func MerchantAuth(apiKeys map[string]string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}

			for validKey, merchantID := range apiKeys {
				if subtle.ConstantTimeCompare([]byte(key), []byte(validKey)) == 1 {
					ctx := backend.WithUser(r.Context(), backend.User{ID: merchantID})
					next.ServeHTTP(w, r.WithContext(ctx))
					return
				}
			}

			http.Error(w, "Unauthorized: invalid API key", http.StatusUnauthorized)
		})
	}
}
