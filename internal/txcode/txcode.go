// Package txcode generates the 10-character pickup code a recipient
// presents at completion, drawing from a cryptographically acceptable RNG
// the same way payments/transaction.go draws transaction ids, adapted to
// the fixed [A-Z0-9] alphabet and length this aggregate requires.
package txcode

import (
	"crypto/rand"
	"fmt"
)

const (
	alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	Length   = 10
)

// Checker reports whether a candidate code is already taken.
type Checker interface {
	CodeExists(code string) (bool, error)
}

// Generate draws a fresh code and pre-checks it against checker, retrying
// on collision. The store is still the hard uniqueness guarantee; this is
// a best-effort pre-check per the spec's generator contract.
func Generate(checker Checker) (string, error) {
	for attempt := 0; attempt < 20; attempt++ {
		code, err := draw()
		if err != nil {
			return "", err
		}
		taken, err := checker.CodeExists(code)
		if err != nil {
			return "", err
		}
		if !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("txcode: exhausted collision retries")
}

func draw() (string, error) {
	buf := make([]byte, Length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("txcode: rand read: %w", err)
	}
	out := make([]byte, Length)
	for i, b := range buf {
		out[i] = alphabet[int(b)%len(alphabet)]
	}
	return string(out), nil
}
