// Package acme implements the ACME Validator (spec §4.9): dns-01 and
// http-01 per RFC 8555, corroborated via MPIC like every other method
// instead of the single direct probe ACME clients normally perform.
// Grounded on va/dns.go's validateDNS01 and va/http.go's validateHTTP01 for
// the underlying digest/body comparisons, generalized to run through the
// MPIC orchestrator and the engine's shared ValidationState.
package acme

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"strings"
	"time"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/core"
	"github.com/sunforge-ca/dcv/domainname"
	"github.com/sunforge-ca/dcv/mpic"
	"github.com/sunforge-ca/dcv/psl"
)

// RecordLabel is the fixed ACME dns-01 challenge label (RFC 8555 §8.4).
const RecordLabel = "_acme-challenge"

// ChallengePath is the fixed ACME http-01 challenge path prefix (RFC 8555
// §8.3).
const ChallengePath = "/.well-known/acme-challenge/"

// ThumbprintLookup resolves the JWK thumbprint registered for an ACME
// account. ValidateDNS01 and ValidateHTTP01 fail with
// AccountNotAcmeConfigured when it returns ok == false, per spec §4.9.
type ThumbprintLookup func(accountID string) (thumbprint string, ok bool)

// Validator implements the ACME Validator.
type Validator struct {
	orchestrator *mpic.Orchestrator
	thumbprints  ThumbprintLookup
	psl          *psl.Engine
	log          blog.Logger
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(l blog.Logger) Option { return func(v *Validator) { v.log = l } }

// NewValidator constructs an ACME Validator. thumbprints resolves an
// account's registered key thumbprint; pass nil to always fail with
// AccountNotAcmeConfigured (no accounts configured). pslEngine is used to
// reject input domains that are themselves a public suffix (spec §4.1); pass
// nil to skip that check.
func NewValidator(orchestrator *mpic.Orchestrator, thumbprints ThumbprintLookup, pslEngine *psl.Engine) *Validator {
	if thumbprints == nil {
		thumbprints = func(string) (string, bool) { return "", false }
	}
	return &Validator{orchestrator: orchestrator, thumbprints: thumbprints, psl: pslEngine, log: blog.NewStdr("validators/acme")}
}

// suffixChecker adapts v.psl to domainname.SuffixChecker, returning a true
// nil interface (rather than a non-nil interface wrapping a nil *psl.Engine)
// when no engine was configured.
func (v *Validator) suffixChecker() domainname.SuffixChecker {
	if v.psl == nil {
		return nil
	}
	return v.psl
}

// keyAuthorization builds the ACME key authorization string (RFC 8555 §8.1).
func keyAuthorization(token, thumbprint string) string {
	return token + "." + thumbprint
}

// acmeFailure wraps a miss as ACME_VALIDATION_FAILED carrying
// RANDOM_VALUE_NOT_FOUND as its sub-error, per spec §4.9.
func acmeFailure(forensic string, format string, args ...interface{}) *berrors.DcvError {
	e := berrors.New(berrors.AcmeValidationFailed, format, args...)
	e.Payload = struct {
		SubError berrors.DcvErrorType
		Forensic string
	}{SubError: berrors.RandomValueNotFound, Forensic: forensic}
	return e
}

// ValidateDNS01 performs the dns-01 challenge for domain, per spec §4.9.
func (v *Validator) ValidateDNS01(ctx context.Context, accountID, domain, token string) (*core.DomainValidationEvidence, *berrors.DcvError) {
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, err
	}
	thumbprint, ok := v.thumbprints(accountID)
	if !ok {
		return nil, berrors.New(berrors.AccountNotAcmeConfigured, "account %q has no registered ACME thumbprint", accountID)
	}

	keyAuth := keyAuthorization(token, thumbprint)
	digest := sha256.Sum256([]byte(keyAuth))
	expected := base64.RawURLEncoding.EncodeToString(digest[:])

	name := RecordLabel + "." + normalized
	details, mpicErr := v.orchestrator.CorroborateDNS(ctx, "TXT", name, func(primary, secondary mpic.AgentResponse) bool {
		return strings.Contains(primary.Value, expected) && strings.Contains(secondary.Value, expected)
	})
	if mpicErr != nil {
		return nil, mpicErr
	}
	if !details.PrimaryFound || !strings.Contains(details.PrimaryValue, expected) {
		return nil, acmeFailure(name, "dns-01 digest not found in TXT records for %q", name)
	}
	if details.Status == mpic.NonCorroborated {
		return nil, berrors.New(berrors.MPICCorroborationError, "MPIC corroboration failed for %q", name)
	}

	return &core.DomainValidationEvidence{
		Domain:         normalized,
		Method:         core.MethodAcmeDns01,
		BrVersion:      "2.0",
		ValidationDate: time.Now(),
		DNSType:        core.DNSTypeTXT,
		DNSRecordName:  name,
		RandomValue:    token,
		MpicDetails:    details,
	}, nil
}

// ValidateHTTP01 performs the http-01 challenge for domain, per spec §4.9.
func (v *Validator) ValidateHTTP01(ctx context.Context, accountID, domain, token string) (*core.DomainValidationEvidence, *berrors.DcvError) {
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, err
	}
	thumbprint, ok := v.thumbprints(accountID)
	if !ok {
		return nil, berrors.New(berrors.AccountNotAcmeConfigured, "account %q has no registered ACME thumbprint", accountID)
	}

	keyAuth := keyAuthorization(token, thumbprint)
	url := "http://" + normalized + ChallengePath + token

	details, mpicErr := v.orchestrator.CorroborateFile(ctx, url, func(primary, secondary mpic.AgentResponse) bool {
		return strings.TrimSpace(primary.Value) == keyAuth && strings.TrimSpace(secondary.Value) == keyAuth
	})
	if mpicErr != nil {
		return nil, mpicErr
	}
	if !details.PrimaryFound || strings.TrimSpace(details.PrimaryValue) != keyAuth {
		return nil, acmeFailure(url, "http-01 body did not equal the expected key authorization at %q", url)
	}
	if details.Status == mpic.NonCorroborated {
		return nil, berrors.New(berrors.MPICCorroborationError, "MPIC corroboration failed for %q", url)
	}

	return &core.DomainValidationEvidence{
		Domain:         normalized,
		Method:         core.MethodAcmeHttp01,
		BrVersion:      "2.0",
		ValidationDate: time.Now(),
		FileURL:        url,
		RandomValue:    token,
		MpicDetails:    details,
	}, nil
}
