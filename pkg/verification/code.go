package verification

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// CodeLength is the fixed width of a verification code
const CodeLength = 6

var codeSpace = big.NewInt(1000000)

// GenerateCode returns a uniformly random 6-digit code as a zero-padded
// string. Leading zeros are significant: codes are compared as strings,
// never as integers.
func GenerateCode() (string, error) {
	n, err := rand.Int(rand.Reader, codeSpace)
	if err != nil {
		return "", fmt.Errorf("failed to generate verification code: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}

// NormalizeEmail trims surrounding whitespace and lowercases the address.
// All storage and comparison goes through this.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// IsInstitutionalEmail reports whether candidate is a syntactically valid
// address whose domain exactly matches one of the allowed domains. The
// local part must be one or more characters containing no whitespace and
// no '@'. Domain comparison is exact, so "evilynov.com" never matches an
// allowed "ynov.com".
func IsInstitutionalEmail(candidate string, allowedDomains []string) bool {
	email := NormalizeEmail(candidate)

	at := strings.LastIndex(email, "@")
	if at <= 0 || at == len(email)-1 {
		return false
	}

	local, domain := email[:at], email[at+1:]
	if strings.ContainsAny(local, "@ \t\r\n") {
		return false
	}

	for _, allowed := range allowedDomains {
		if domain == strings.ToLower(strings.TrimSpace(allowed)) {
			return true
		}
	}
	return false
}

// LooksLikeCode reports whether input has the shape of a verification code:
// exactly six characters, all ASCII digits.
func LooksLikeCode(input string) bool {
	if len(input) != CodeLength {
		return false
	}
	for _, r := range input {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
