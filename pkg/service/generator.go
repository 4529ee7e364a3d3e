package service

import (
	"crypto/rand"
	"fmt"
	"regexp"
)

const codeAlphabet = "0123456789ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz"

const (
	minCodeLength = 6
	maxCodeLength = 20
)

// codePattern matches every well-formed share code. Lookups reject anything
// else before touching storage, rate-limit or lockout state.
var codePattern = regexp.MustCompile(`^[a-zA-Z0-9]{6,20}$`)

// GenerateCode returns a random code of the given length over the share-code
// alphabet. At the default length of 10 the space holds ~8.4e17 codes, so
// collisions within the bounded creation retries are practically impossible.
func GenerateCode(length int) (string, error) {
	if length < minCodeLength || length > maxCodeLength {
		return "", fmt.Errorf("code length %d outside [%d,%d]", length, minCodeLength, maxCodeLength)
	}
	buf := make([]byte, length)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate code: %w", err)
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// ValidateCodeFormat reports whether code is a well-formed share code.
func ValidateCodeFormat(code string) bool {
	return codePattern.MatchString(code)
}
