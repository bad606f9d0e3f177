// Package joincode generates the out-of-band secrets required to join
// private groups: 8 characters, uppercase A-Z and 0-9.
package joincode

import (
	"crypto/rand"
	"fmt"
)

const (
	// Length of every join code.
	Length = 8

	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
)

// Generate returns a new random join code.
func Generate() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	for i, b := range buf {
		buf[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(buf), nil
}

// Valid reports whether s has the shape of a join code.
func Valid(s string) bool {
	if len(s) != Length {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < 'A' || c > 'Z') && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}
