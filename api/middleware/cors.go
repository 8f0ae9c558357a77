package middleware

import (
	"net/http"

	"github.com/go-chi/cors"
)

const guestCartHeader = "X-Guest-Cart-Id"

// CORS applies the configured origin policy. The guest cart header is exposed so
// browsers can persist a freshly issued cart id.
func CORS(allowedOrigins []string) func(http.Handler) http.Handler {
	return cors.New(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", guestCartHeader, "X-Requested-With"},
		ExposedHeaders:   []string{guestCartHeader, requestIDHeader},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler
}
