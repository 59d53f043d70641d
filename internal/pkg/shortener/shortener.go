// Package shortener turns numeric row ids into short public slugs.
package shortener

import (
	"errors"
	"fmt"
	"math/bits"
	"strings"
)

const alphabet = "0123456789abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ"

var ErrInvalidSlug = errors.New("invalid slug")

// EncodeID returns the base62 form of id.
func EncodeID(id uint) string {
	if id == 0 {
		return alphabet[:1]
	}
	var buf [16]byte
	i := len(buf)
	for id > 0 {
		i--
		buf[i] = alphabet[id%62]
		id /= 62
	}
	return string(buf[i:])
}

// DecodeID reverses EncodeID. Unknown characters and values that overflow
// uint are rejected.
func DecodeID(slug string) (uint, error) {
	if slug == "" {
		return 0, ErrInvalidSlug
	}
	var id uint
	for i := 0; i < len(slug); i++ {
		v := strings.IndexByte(alphabet, slug[i])
		if v < 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidSlug, slug)
		}
		hi, lo := bits.Mul(id, 62)
		sum, carry := bits.Add(lo, uint(v), 0)
		if hi != 0 || carry != 0 {
			return 0, fmt.Errorf("%w: %q overflows", ErrInvalidSlug, slug)
		}
		id = sum
	}
	return id, nil
}
