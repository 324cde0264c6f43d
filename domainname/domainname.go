// Package domainname implements the syntactic validation and IDNA
// normalization rules of the Domain name data model (spec §3): label-walking
// validation plus golang.org/x/net/idna for A-label encoding.
package domainname

import (
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/text/unicode/norm"

	"github.com/sunforge-ca/dcv/berrors"
)

const (
	maxDomainLength = 253
	maxLabels       = 127
	maxLabelLength  = 63
)

// VerifyDNSLength is deliberately omitted: it makes ToASCII itself reject an
// over-length domain, which would shadow Validate's explicit
// DomainInvalidTooLong check below with idna's own encoding error.
var idnaProfile = idna.New(
	idna.ValidateLabels(true),
	idna.StrictDomainName(false),
)

// Normalize lowercases (ASCII-only, never locale sensitive — ASCII lowercase
// explicitly, per spec §9's design note about Turkish-i style locale bugs),
// strips a single trailing dot, and IDNA-encodes d to its A-label form.
func Normalize(d string) (string, *berrors.DcvError) {
	if d == "" {
		return "", berrors.New(berrors.DomainRequired, "domain is required")
	}
	d = strings.TrimSuffix(d, ".")
	ascii, err := idnaProfile.ToASCII(d)
	if err != nil {
		return "", berrors.New(berrors.DomainInvalidIncorrectNamePattern, "domain %q does not IDNA-encode: %s", d, err)
	}
	return asciiLower(ascii), nil
}

// asciiLower lowercases s using the ASCII range only, deliberately avoiding
// strings.ToLower's locale-independent-but-still-Unicode-aware case folding,
// matching spec §9's "use ASCII lowercase explicitly" design note.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// IsWildcard reports whether d (pre-normalization) is a wildcard name of the
// form "*.example.com".
func IsWildcard(d string) bool {
	return strings.HasPrefix(d, "*.")
}

var labelCharset = func(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '-' || r == '_'
}

// Validate performs the full syntactic check from spec §3 against an already
// IDNA-normalized domain: length, label count, per-label charset and length,
// no leading/trailing hyphen or underscore, and the last label must not begin
// with a digit.
func Validate(normalized string) *berrors.DcvError {
	if normalized == "" {
		return berrors.New(berrors.DomainRequired, "domain is required")
	}
	if len(normalized) > maxDomainLength {
		return berrors.New(berrors.DomainInvalidTooLong, "domain %q is %d bytes, exceeds maximum of %d", normalized, len(normalized), maxDomainLength)
	}
	labels := strings.Split(normalized, ".")
	if len(labels) > maxLabels {
		return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "domain %q has %d labels, exceeds maximum of %d", normalized, len(labels), maxLabels)
	}
	for _, label := range labels {
		if err := validateLabel(label); err != nil {
			return err
		}
	}
	last := labels[len(labels)-1]
	if len(last) > 0 && last[0] >= '0' && last[0] <= '9' {
		return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "domain %q's last label %q begins with a digit", normalized, last)
	}
	return nil
}

func validateLabel(label string) *berrors.DcvError {
	if len(label) < 1 {
		return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "empty label")
	}
	if len(label) > maxLabelLength {
		return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "label %q is %d bytes, exceeds maximum of %d", label, len(label), maxLabelLength)
	}
	if label[0] == '-' || label[len(label)-1] == '-' || label[0] == '_' || label[len(label)-1] == '_' {
		return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "label %q has a leading or trailing hyphen/underscore", label)
	}
	for _, r := range label {
		if !labelCharset(r) {
			return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "label %q contains an invalid character %q", label, r)
		}
	}
	// P-labels (xn--...) must decode to an NFC-normalized Unicode string,
	// checked with golang.org/x/text/unicode/norm.
	if len(label) >= 4 && strings.EqualFold(label[0:2], "xn") && label[2:4] == "--" {
		u, err := idna.ToUnicode(label)
		if err != nil || !norm.NFC.IsNormalString(u) {
			return berrors.New(berrors.DomainInvalidIncorrectNamePattern, "label %q is a malformed IDN P-label", label)
		}
	}
	return nil
}

// SuffixChecker reports whether a normalized domain has a registrable label
// beneath its public suffix, i.e. is not itself a public suffix. Satisfied
// by *psl.Engine's BaseDomain method; declared here instead of imported
// because psl already imports domainname (for Labels), and domainname
// importing psl back would cycle.
type SuffixChecker interface {
	BaseDomain(domain string) (string, *berrors.DcvError)
}

// NormalizeAndValidate is the composed entry point used by every validator:
// it normalizes d, validates the syntax, and — when psl is non-nil — checks
// that the result lies under a public suffix rather than being one itself
// (spec §4.1's validateDomainName: syntactic plus under-a-public-suffix).
func NormalizeAndValidate(d string, psl SuffixChecker) (string, *berrors.DcvError) {
	norm, err := Normalize(d)
	if err != nil {
		return "", err
	}
	if err := Validate(norm); err != nil {
		return "", err
	}
	if psl != nil {
		if _, err := psl.BaseDomain(norm); err != nil {
			return "", err
		}
	}
	return norm, nil
}

// Labels splits a normalized domain into its labels in the order written
// (left to right, so the top-level label is last).
func Labels(d string) []string {
	if d == "" {
		return nil
	}
	return strings.Split(d, ".")
}

// ByteLen returns the length of s in bytes, the unit of the 253-byte limit,
// for reasoning about non-ASCII input prior to normalization.
func ByteLen(s string) int {
	return len(s)
}
