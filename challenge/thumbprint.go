package challenge

import (
	"crypto"
	"encoding/base64"
	"strings"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/sunforge-ca/dcv/berrors"
)

// ThumbprintFromJWK computes the base64url-encoded JWK thumbprint of key.
func ThumbprintFromJWK(key *jose.JSONWebKey) (string, error) {
	thumb, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(thumb), nil
}

// KeyAuthorization builds the ACME key authorization string (token + "." +
// thumbprint) used by the ACME dns-01/http-01 validator.
func KeyAuthorization(token string, key *jose.JSONWebKey) (string, error) {
	thumb, err := ThumbprintFromJWK(key)
	if err != nil {
		return "", err
	}
	return token + "." + thumb, nil
}

// MatchKeyAuthorization reports whether candidate matches the key
// authorization built from token and key, via a constant-time comparison.
func MatchKeyAuthorization(candidate, token string, key *jose.JSONWebKey) *berrors.DcvError {
	want, err := KeyAuthorization(token, key)
	if err != nil {
		return berrors.New(berrors.AcmeDNSKeyError, "computing key authorization: %s", err)
	}
	if !constantTimeEqual(strings.TrimSpace(candidate), want) {
		return berrors.New(berrors.AcmeValidationFailed, "key authorization did not match")
	}
	return nil
}

func constantTimeEqual(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	var v byte
	for i := 0; i < len(a); i++ {
		v |= a[i] ^ b[i]
	}
	return v == 0
}
