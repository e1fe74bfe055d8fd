package security

import (
	"net/http"

	"github.com/noah-isme/ticket-engine/internal/common"
)

// BodyLimit caps request payloads. Ticket commands are small JSON documents.
type BodyLimit struct {
	Max int64
}

// Middleware rejects a declared oversized body with 413 and caps undeclared ones so
// decoding fails once Max is exceeded.
func (b BodyLimit) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if b.Max <= 0 || r.Body == nil {
			next.ServeHTTP(w, r)
			return
		}
		if r.ContentLength > b.Max {
			common.JSONError(w, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "request body too large", nil)
			return
		}
		r.Body = http.MaxBytesReader(w, r.Body, b.Max)
		next.ServeHTTP(w, r)
	})
}
