// Package utils provides small helpers shared across the service: request
// IDs, retry with backoff and duration parsing.
package utils

import (
	"strings"

	"github.com/google/uuid"
)

// MaxRequestIDLength bounds caller-supplied request IDs that are echoed back
const MaxRequestIDLength = 128

// NewRequestID generates a random request ID for tracing and correlation
func NewRequestID() string {
	return uuid.NewString()
}

// SanitizeRequestID returns id when it is safe to reuse as a request ID,
// otherwise a freshly generated one.
func SanitizeRequestID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" || len(id) > MaxRequestIDLength {
		return NewRequestID()
	}
	for _, r := range id {
		if r < 0x21 || r > 0x7e {
			return NewRequestID()
		}
	}
	return id
}
