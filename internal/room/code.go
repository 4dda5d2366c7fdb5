package room

import (
	"crypto/rand"
	"errors"
	"strings"
)

// codeAlphabet is the 32-symbol set room codes are drawn from. I, O, 0 and 1
// are excluded because they are easy to misread when a code is shared out of
// band. Six symbols give ~30 bits of entropy, enough to resist casual
// guessing for the lifetime of a match.
const codeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"

// CodeLength is the fixed length of a room code.
const CodeLength = 6

// ErrInvalidCode is returned for malformed codes, before any network or
// store access.
var ErrInvalidCode = errors.New("invalid room code")

// GenerateCode returns a fresh random room code.
func GenerateCode() (string, error) {
	buf := make([]byte, CodeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, CodeLength)
	for i, b := range buf {
		out[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(out), nil
}

// NormalizeCode trims whitespace and uppercases the code so joins are
// case-insensitive.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidateCode checks length and alphabet membership on an already
// normalized code.
func ValidateCode(code string) error {
	if len(code) != CodeLength {
		return ErrInvalidCode
	}
	for i := 0; i < len(code); i++ {
		if !strings.ContainsRune(codeAlphabet, rune(code[i])) {
			return ErrInvalidCode
		}
	}
	return nil
}
