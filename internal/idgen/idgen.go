// Package idgen generates random identifiers for requests and WebSocket clients.
package idgen

import (
	"crypto/rand"
	"encoding/hex"
)

// Hex returns numBytes of randomness as a lowercase hex string.
func Hex(numBytes int) string {
	b := make([]byte, numBytes)
	if _, err := rand.Read(b); err != nil {
		panic("crypto/rand failed: " + err.Error())
	}
	return hex.EncodeToString(b)
}

// WithPrefix returns prefix followed by 24 hex chars, e.g. "ws_3f9c...".
func WithPrefix(prefix string) string {
	return prefix + Hex(12)
}
