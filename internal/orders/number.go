package orders

import (
	"crypto/rand"
	"fmt"
)

// Crockford base32 without I, L, O and U so numbers survive being read over the phone.
const orderNumberAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

// NewOrderNumber returns a code like ORD-7K3M-Q9TD.
func NewOrderNumber() (string, error) {
	var raw [8]byte
	if _, err := rand.Read(raw[:]); err != nil {
		return "", fmt.Errorf("reading random bytes: %w", err)
	}
	var out [8]byte
	for i, b := range raw {
		out[i] = orderNumberAlphabet[int(b)%len(orderNumberAlphabet)]
	}
	return fmt.Sprintf("ORD-%s-%s", out[:4], out[4:]), nil
}
