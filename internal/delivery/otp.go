package delivery

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"
	"io"
)

const (
	minOTPLength = 4
	maxOTPLength = 6
)

// Generator produces numeric delivery codes.
type Generator struct {
	length int
	source io.Reader
}

func NewGenerator(length int) (*Generator, error) {
	if length < minOTPLength || length > maxOTPLength {
		return nil, fmt.Errorf("otp length must be between %d and %d", minOTPLength, maxOTPLength)
	}
	return &Generator{length: length, source: rand.Reader}, nil
}

// Generate returns a uniformly distributed code of the configured length.
func (g *Generator) Generate() (string, error) {
	buf := make([]byte, g.length)
	out := make([]byte, 0, g.length)
	for len(out) < g.length {
		if _, err := io.ReadFull(g.source, buf); err != nil {
			return "", fmt.Errorf("reading random bytes: %w", err)
		}
		for _, b := range buf {
			// 250 is the largest multiple of 10 below 256; rejecting the rest avoids bias.
			if b >= 250 {
				continue
			}
			out = append(out, '0'+b%10)
			if len(out) == g.length {
				break
			}
		}
	}
	return string(out), nil
}

// Matches compares codes in constant time.
func Matches(stored, supplied string) bool {
	if stored == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(stored), []byte(supplied)) == 1
}
