// Package dns implements the DNS Validator (spec §4.6): a server-generated
// random value or a deterministic request token, published as a DNS record
// under the domain itself or under its "_dnsauth." label, corroborated via
// MPIC instead of a direct lookup.
package dns

import (
	"context"
	"strings"
	"time"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/challenge"
	"github.com/sunforge-ca/dcv/core"
	"github.com/sunforge-ca/dcv/domainname"
	"github.com/sunforge-ca/dcv/mpic"
	"github.com/sunforge-ca/dcv/psl"
)

// DefaultLabel is the label prepended to the domain to form the first
// candidate record name tried during validation.
const DefaultLabel = "_dnsauth"

// Validator implements the DNS Validator.
type Validator struct {
	orchestrator *mpic.Orchestrator
	tokenizer    challenge.RequestTokenValidator
	psl          *psl.Engine
	log          blog.Logger

	Label              string
	RandomValueCharset string
	RandomValueLength  int
	ValidityDays       int
	HashingKey         string
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(l blog.Logger) Option { return func(v *Validator) { v.log = l } }
func WithLabel(label string) Option   { return func(v *Validator) { v.Label = label } }
func WithRequestTokenValidator(t challenge.RequestTokenValidator) Option {
	return func(v *Validator) { v.tokenizer = t }
}

// NewValidator constructs a DNS Validator around orchestrator. pslEngine is
// used both to reject input domains that are themselves a public suffix and
// to compute each prepare call's allowedFqdns (spec §4.1, §4.6).
func NewValidator(orchestrator *mpic.Orchestrator, pslEngine *psl.Engine, opts ...Option) *Validator {
	v := &Validator{
		orchestrator:       orchestrator,
		tokenizer:          challenge.HMACRequestTokenValidator{},
		psl:                pslEngine,
		log:                blog.NewStdr("validators/dns"),
		Label:              DefaultLabel,
		RandomValueCharset: challenge.DefaultCharset,
		RandomValueLength:  24,
		ValidityDays:       30,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// candidateNames returns the DNS names tried in order: the labeled name
// first, then the bare domain, per spec §4.6.
func (v *Validator) candidateNames(domain string) []string {
	return []string{v.Label + "." + domain, domain}
}

// allowedFqdns returns domain plus every parent up to (but not including)
// its registry suffix, per spec §4.6. Falls back to just domain when no PSL
// engine was configured.
func (v *Validator) allowedFqdns(domain string) []string {
	if v.psl == nil {
		return []string{domain}
	}
	return v.psl.RegistryDomainAndParents(domain)
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

// PrepareRandomValue generates a fresh random value for domain.
func (v *Validator) PrepareRandomValue(domain string) (*core.ValidationState, *berrors.DcvError) {
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, err
	}
	value, err := challenge.GenerateRandomValue(v.RandomValueCharset, v.RandomValueLength)
	if err != nil {
		return nil, err
	}
	return &core.ValidationState{
		Domain:       normalized,
		Method:       core.MethodDNSChangeRandomValue,
		PrepareTime:  time.Now(),
		RandomValue:  value,
		AllowedFqdns: v.allowedFqdns(normalized),
	}, nil
}

// PrepareRequestToken computes the deterministic request token for domain,
// bound to v.HashingKey.
func (v *Validator) PrepareRequestToken(domain string) (*core.ValidationState, *berrors.DcvError) {
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, err
	}
	token, genErr := v.tokenizer.Generate(v.HashingKey, normalized)
	if genErr != nil {
		return nil, berrors.New(berrors.InternalError, "generating request token: %s", genErr)
	}
	return &core.ValidationState{
		Domain:       normalized,
		Method:       core.MethodDNSChangeRequestToken,
		PrepareTime:  time.Now(),
		RequestToken: token,
		HashingKey:   v.HashingKey,
		AllowedFqdns: v.allowedFqdns(normalized),
	}, nil
}

// Validate probes each candidate name in order, short-circuiting on the
// first corroborated hit, per spec §4.6 step 3.
func (v *Validator) Validate(ctx context.Context, dnsType core.DNSType, state *core.ValidationState) (*core.DomainValidationEvidence, berrors.Errors) {
	switch state.Method {
	case core.MethodDNSChangeRandomValue:
		if err := challenge.CheckRandomValueNotExpired(state.PrepareTime, time.Now(), v.ValidityDays); err != nil {
			return nil, berrors.Errors{err}
		}
		return v.validate(ctx, dnsType, state, state.RandomValue, matchContains(state.RandomValue))
	case core.MethodDNSChangeRequestToken:
		return v.validateRequestToken(ctx, dnsType, state)
	default:
		return nil, berrors.Errors{berrors.New(berrors.InvalidDcvMethod, "dns validator cannot handle method %s", state.Method)}
	}
}

// validate runs the shared candidate-name loop: for each name, corroborate
// via MPIC and check the primary's observed value against want using match.
func (v *Validator) validate(ctx context.Context, dnsType core.DNSType, state *core.ValidationState, want string, match func(string) bool) (*core.DomainValidationEvidence, berrors.Errors) {
	var errs berrors.Errors
	for _, name := range v.candidateNames(state.Domain) {
		details, err := v.orchestrator.CorroborateDNS(ctx, string(dnsType), name, exactContainsMatcher(want))
		if err != nil {
			errs = errs.Add(err)
			continue
		}
		if !details.PrimaryFound || !match(details.PrimaryValue) {
			errs = errs.Add(berrors.New(berrors.RandomValueNotFound, "value not found in %s records for %q", dnsType, name))
			continue
		}
		if details.Status == mpic.NonCorroborated {
			errs = errs.Add(berrors.New(berrors.MPICCorroborationError, "MPIC corroboration failed for %q", name))
			continue
		}
		return &core.DomainValidationEvidence{
			Domain:         state.Domain,
			Method:         state.Method,
			BrVersion:      "2.0",
			ValidationDate: time.Now(),
			DNSType:        dnsType,
			DNSRecordName:  name,
			RandomValue:    state.RandomValue,
			RequestToken:   state.RequestToken,
			MpicDetails:    details,
		}, nil
	}
	if len(errs) == 0 {
		errs = errs.Add(berrors.New(berrors.RandomValueNotFound, "no candidate DNS name yielded a corroborated hit for %q", state.Domain))
	}
	return nil, errs
}

// validateRequestToken implements the two-phase request-token flow: a
// primary-only scan to discover a candidate token, then a full MPIC
// corroboration bound to the exact value observed.
func (v *Validator) validateRequestToken(ctx context.Context, dnsType core.DNSType, state *core.ValidationState) (*core.DomainValidationEvidence, berrors.Errors) {
	var errs berrors.Errors
	for _, name := range v.candidateNames(state.Domain) {
		discovery, err := v.orchestrator.PrimaryOnlyDNS(ctx, string(dnsType), name)
		if err != nil {
			errs = errs.Add(err)
			continue
		}
		if !discovery.PrimaryFound {
			errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no %s record found for %q", dnsType, name))
			continue
		}
		found := extractValidToken(v.tokenizer, discovery.PrimaryValue, state.HashingKey, state.Domain)
		if found == "" {
			errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no valid request token found for %q", name))
			continue
		}
		return v.validate(ctx, dnsType, state, found, func(got string) bool { return strings.Contains(got, found) })
	}
	if len(errs) == 0 {
		errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no candidate DNS name yielded a request token for %q", state.Domain))
	}
	return nil, errs
}

// extractValidToken scans a raw record value (which may join multiple
// strings with newlines, as TXT records do) for one that validates as a
// request token for domain.
func extractValidToken(v challenge.RequestTokenValidator, raw, hashingKey, domain string) string {
	for _, candidate := range strings.Split(raw, "\n") {
		candidate = strings.TrimSpace(candidate)
		if candidate == "" {
			continue
		}
		if v.Validate(candidate, hashingKey, domain) {
			return candidate
		}
	}
	return ""
}

func matchContains(want string) func(string) bool {
	return func(got string) bool { return strings.Contains(got, want) }
}

func exactContainsMatcher(want string) mpic.Matcher {
	return func(primary, secondary mpic.AgentResponse) bool {
		return strings.Contains(primary.Value, want) && strings.Contains(secondary.Value, want)
	}
}
