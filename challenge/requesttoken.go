package challenge

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/sunforge-ca/dcv/berrors"
)

// RequestTokenValidator generates and validates request tokens bound to a
// (hashingKey, hashingValue) pair. Kept pluggable since a CA may need to
// match a specific upstream token scheme; the bundled HMAC implementation is
// the default, not the only option.
type RequestTokenValidator interface {
	Generate(hashingKey, hashingValue string) (string, error)
	Validate(token, hashingKey, hashingValue string) bool
}

// HMACRequestTokenValidator is the bundled default RequestTokenValidator: a
// deterministic HMAC-SHA256 over hashingValue, keyed by hashingKey, so the
// same (key, value) pair always yields the same token and can be
// re-validated without persisting it.
type HMACRequestTokenValidator struct{}

func (HMACRequestTokenValidator) Generate(hashingKey, hashingValue string) (string, error) {
	mac := hmac.New(sha256.New, []byte(hashingKey))
	mac.Write([]byte(hashingValue))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (v HMACRequestTokenValidator) Validate(token, hashingKey, hashingValue string) bool {
	want, err := v.Generate(hashingKey, hashingValue)
	if err != nil {
		return false
	}
	decodedWant, err1 := base64.RawURLEncoding.DecodeString(want)
	decodedGot, err2 := base64.RawURLEncoding.DecodeString(token)
	if err1 != nil || err2 != nil {
		return false
	}
	return hmac.Equal(decodedWant, decodedGot)
}

// ValidateRequestToken checks token against v (for example the bundled
// HMACRequestTokenValidator) and returns a typed error when an input is
// missing or the token does not match.
func ValidateRequestToken(v RequestTokenValidator, token, hashingKey, hashingValue string) *berrors.DcvError {
	if token == "" {
		return berrors.New(berrors.RequestTokenDataRequired, "request token is required")
	}
	if hashingKey == "" {
		return berrors.New(berrors.TokenKeyRequired, "hashing key is required")
	}
	if hashingValue == "" {
		return berrors.New(berrors.TokenValueRequired, "hashing value is required")
	}
	if !v.Validate(token, hashingKey, hashingValue) {
		return berrors.New(berrors.RequestTokenErrorNotFound, "request token did not match the expected value")
	}
	return nil
}
