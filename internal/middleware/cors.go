package middleware

import (
	"net/http"

	"github.com/rs/cors"
)

// CORS allows the storefront UI origins. A single "*" reflects any origin,
// which browsers accept together with credentials.
func CORS(allowOrigins []string) func(http.Handler) http.Handler {
	opts := cors.Options{
		AllowedMethods: []string{
			http.MethodGet, http.MethodPost, http.MethodPut,
			http.MethodPatch, http.MethodDelete, http.MethodOptions,
		},
		AllowedHeaders:   []string{"Content-Type", "Authorization", HeaderCorrelationID, HeaderSessionID},
		ExposedHeaders:   []string{HeaderCorrelationID},
		AllowCredentials: true,
	}
	if len(allowOrigins) == 1 && allowOrigins[0] == "*" {
		opts.AllowOriginFunc = func(string) bool { return true }
	} else {
		opts.AllowedOrigins = allowOrigins
	}
	return cors.New(opts).Handler
}
