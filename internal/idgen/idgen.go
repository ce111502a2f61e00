// Package idgen generates stable, lexicographically sortable, time-ordered
// identifiers. The encoding scheme is big-integer-to-base-N with zero
// padding, applied to a fixed-width timestamp+entropy token so that
// byte/string comparison orders ids by creation time.
package idgen

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
	"time"
)

// crockfordAlphabet avoids visually ambiguous characters (I, L, O, U) the
// way Crockford base32 does.
const crockfordAlphabet = "0123456789ABCDEFGHJKMNPQRSTVWXYZ"

const (
	timestampChars = 10 // 50 bits of millisecond timestamp, base32
	entropyChars   = 16 // 80 bits of random entropy, base32
)

// encodeBase32 converts data to a fixed-width base32 string using the
// Crockford alphabet, left-padded with the alphabet's zero symbol.
func encodeBase32(data []byte, width int) string {
	num := new(big.Int).SetBytes(data)
	base := big.NewInt(int64(len(crockfordAlphabet)))
	zero := big.NewInt(0)
	mod := new(big.Int)

	chars := make([]byte, 0, width)
	for num.Cmp(zero) > 0 {
		num.DivMod(num, base, mod)
		chars = append(chars, crockfordAlphabet[mod.Int64()])
	}
	for i, j := 0, len(chars)-1; i < j; i, j = i+1, j-1 {
		chars[i], chars[j] = chars[j], chars[i]
	}
	s := string(chars)
	if len(s) < width {
		s = strings.Repeat(string(crockfordAlphabet[0]), width-len(s)) + s
	}
	if len(s) > width {
		s = s[len(s)-width:]
	}
	return s
}

// New returns a new time-ordered id with the given short type prefix, e.g.
// New("ent") -> "ent_01H8X2...".
func New(prefix string) string {
	return prefix + "_" + newBody(time.Now())
}

// newBody encodes ts as milliseconds since epoch followed by random entropy.
func newBody(ts time.Time) string {
	millis := ts.UnixMilli()
	tsBytes := big.NewInt(millis).Bytes()
	tsPart := encodeBase32(tsBytes, timestampChars)

	entropy := make([]byte, 10) // 80 bits
	if _, err := rand.Read(entropy); err != nil {
		// crypto/rand failing is catastrophic; fall back to a
		// time-derived filler rather than panicking on user input paths.
		for i := range entropy {
			entropy[i] = byte(time.Now().UnixNano() >> (i * 8))
		}
	}
	entropyPart := encodeBase32(entropy, entropyChars)

	return fmt.Sprintf("%s%s", tsPart, entropyPart)
}
