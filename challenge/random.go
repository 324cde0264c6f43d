// Package challenge implements the cryptographic primitives shared by every
// validation method: the random-value generator/validator, the deterministic
// request-token binding, and the ACME key-authorization thumbprint helper.
package challenge

import (
	"crypto/rand"
	"math"
	"math/big"
	"time"

	"github.com/sunforge-ca/dcv/berrors"
)

// DefaultCharset is the alphabet used by GenerateRandomValue when the caller
// doesn't supply one: upper/lowercase letters and digits, avoiding characters
// that are easy to transcribe incorrectly is left to the caller's charset
// choice, not assumed here.
const DefaultCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"

// MinEntropyBits is the minimum entropy a generated random value must carry.
const MinEntropyBits = 128

// GenerateRandomValue returns a cryptographically strong random string of the
// given length drawn from charset, refusing to generate a value whose total
// entropy (length * log2(len(charset))) falls below MinEntropyBits.
func GenerateRandomValue(charset string, length int) (string, *berrors.DcvError) {
	if charset == "" {
		charset = DefaultCharset
	}
	if entropyBits(charset, length) < MinEntropyBits {
		return "", berrors.New(berrors.RandomValueInsufficientEntropy,
			"charset of size %d and length %d yields only %.1f bits of entropy, need at least %d",
			len(charset), length, entropyBits(charset, length), MinEntropyBits)
	}

	out := make([]byte, length)
	max := big.NewInt(int64(len(charset)))
	for i := range out {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", berrors.New(berrors.InternalError, "reading random bytes: %s", err)
		}
		out[i] = charset[n.Int64()]
	}
	return string(out), nil
}

func entropyBits(charset string, length int) float64 {
	if len(charset) <= 1 || length <= 0 {
		return 0
	}
	return float64(length) * math.Log2(float64(len(charset)))
}

// RandomValueExpiry computes the expiry time for a random value generated at
// issuedAt, given a validity period in days.
func RandomValueExpiry(issuedAt time.Time, validityDays int) time.Time {
	return issuedAt.AddDate(0, 0, validityDays)
}

// CheckRandomValueNotExpired validates that now is still within the validity
// window started at issuedAt.
func CheckRandomValueNotExpired(issuedAt, now time.Time, validityDays int) *berrors.DcvError {
	expiry := RandomValueExpiry(issuedAt, validityDays)
	if now.After(expiry) {
		return berrors.New(berrors.RandomValueExpired,
			"random value issued at %s expired at %s, now is %s", issuedAt, expiry, now)
	}
	return nil
}
