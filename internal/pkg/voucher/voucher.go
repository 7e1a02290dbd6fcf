// Package voucher generates the human-facing codes printed on gift
// certificates. Codes are cryptographically random and use an alphabet
// without easily confused characters (no 0/O, 1/I/L).
package voucher

import (
	"crypto/rand"
	"fmt"
	"strings"
)

const alphabet = "23456789ABCDEFGHJKMNPQRSTUVWXYZ"

const (
	codePrefix    = "GC"
	codeGroups    = 2
	codeGroupSize = 4
)

// randomChars returns length characters drawn uniformly from the alphabet.
// Rejection sampling avoids modulo bias; 217 is the largest multiple of 31
// below 256.
func randomChars(length int) (string, error) {
	if length <= 0 {
		return "", fmt.Errorf("invalid code length: %d", length)
	}

	const maxRandomByte = 217

	out := make([]byte, length)
	buf := make([]byte, length*2)
	written := 0

	for written < length {
		if _, err := rand.Read(buf); err != nil {
			return "", fmt.Errorf("failed to read secure random bytes: %w", err)
		}
		for _, b := range buf {
			if b >= maxRandomByte {
				continue
			}
			out[written] = alphabet[int(b)%len(alphabet)]
			written++
			if written == length {
				break
			}
		}
	}

	return string(out), nil
}

// NewCode returns a fresh certificate code like "GC-7XK2-QM4R". Uniqueness
// is enforced by the unique index on gift_certificates.code; callers retry
// on conflict.
func NewCode() (string, error) {
	groups := make([]string, 0, codeGroups+1)
	groups = append(groups, codePrefix)
	for i := 0; i < codeGroups; i++ {
		g, err := randomChars(codeGroupSize)
		if err != nil {
			return "", err
		}
		groups = append(groups, g)
	}
	return strings.Join(groups, "-"), nil
}
