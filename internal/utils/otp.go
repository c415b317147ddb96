package utils

import (
	"crypto/rand"
	"crypto/subtle"
	"math/big"
	"strings"
)

// DefaultOTPDigits is the code length used when none is configured.
const DefaultOTPDigits = 6

// GenerateOTP returns a uniformly random numeric code of the given length,
// zero-padded.
func GenerateOTP(digits int) (string, error) {
	if digits <= 0 {
		digits = DefaultOTPDigits
	}
	var b strings.Builder
	b.Grow(digits)
	ten := big.NewInt(10)
	for i := 0; i < digits; i++ {
		n, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + n.Int64()))
	}
	return b.String(), nil
}

// EqualOTP compares two codes in constant time.
func EqualOTP(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// MaskEmail hides most of the local part: "jane.doe@example.com" becomes
// "ja******@example.com". At least one character is always hidden, so a
// one-letter local part is fully masked. Inputs without "@" are masked
// entirely.
func MaskEmail(email string) string {
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return strings.Repeat("*", len(email))
	}
	local, domain := email[:at], email[at:]
	if len(local) == 0 {
		return domain
	}
	keep := 2
	if len(local) <= keep {
		keep = len(local) - 1
	}
	return local[:keep] + strings.Repeat("*", len(local)-keep) + domain
}
