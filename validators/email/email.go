// Package email implements the Email Validator (spec §4.7): three candidate
// sources (well-known constructed addresses, a DNS TXT record, and CAA
// contactemail tags), each minting one random value per candidate address,
// with a WHOIS fallback (spec §4.10) when DNS publishes no candidates.
// Grounded on va/dns.go's record-scan-and-validate structure, generalized
// from a single challenge value to a per-candidate random value set.
package email

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/sunforge-ca/dcv/bdns"
	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/challenge"
	"github.com/sunforge-ca/dcv/core"
	"github.com/sunforge-ca/dcv/domainname"
	"github.com/sunforge-ca/dcv/psl"
	"github.com/sunforge-ca/dcv/whois"
)

// ConstructedLocalParts is the fixed set of well-known local parts tried for
// the Constructed Email source, per spec §4.7.
var ConstructedLocalParts = []string{"admin", "administrator", "hostmaster", "postmaster", "webmaster"}

// TXTLabel is the label under which the DNS TXT contact-email record lives.
const TXTLabel = "_validation-contactemail"

// CAAContactEmailTag is the CAA property tag carrying a contact address.
const CAAContactEmailTag = "contactemail"

// emailPattern is the RFC-5321/5322-lite address check described in spec §8:
// no control characters, no two consecutive dots, exactly one '@', and a
// valid domain on the right-hand side (checked separately via domainname).
var emailPattern = regexp.MustCompile(`^[^\s@"(),:;<>\\\[\]\x00-\x1f.]+(\.[^\s@"(),:;<>\\\[\]\x00-\x1f.]+)*@([^\s@]+)$`)

// Candidate pairs a discovered email address with the random value minted
// for it.
type Candidate struct {
	Email       string `json:"email"`
	RandomValue string `json:"randomValue"`
}

// PreparationResponse is returned by Prepare: the candidate addresses each
// paired with their own random value, plus the validation state the caller
// must echo back into Validate.
type PreparationResponse struct {
	Domain     string       `json:"domain"`
	Method     core.Method  `json:"method"`
	Candidates []Candidate  `json:"candidates"`
	State      *core.ValidationState `json:"-"`
}

// Validator implements the Email Validator.
type Validator struct {
	dns   bdns.Client
	whois *whois.Client
	psl   *psl.Engine
	log   blog.Logger

	RandomValueCharset string
	RandomValueLength  int
	ValidityDays       int
}

// Option configures a Validator.
type Option func(*Validator)

func WithWHOIS(c *whois.Client) Option { return func(v *Validator) { v.whois = c } }
func WithLogger(l blog.Logger) Option  { return func(v *Validator) { v.log = l } }

// NewValidator constructs an email Validator.
func NewValidator(dnsClient bdns.Client, pslEngine *psl.Engine, opts ...Option) *Validator {
	v := &Validator{
		dns:                dnsClient,
		psl:                pslEngine,
		log:                blog.NewStdr("validators/email"),
		RandomValueCharset: challenge.DefaultCharset,
		RandomValueLength:  24,
		ValidityDays:       30,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v
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

// Prepare discovers candidate email addresses for domain under method and
// mints one random value per candidate.
func (v *Validator) Prepare(ctx context.Context, domain string, method core.Method) (*PreparationResponse, *berrors.DcvError) {
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, err
	}

	var addrs []string
	switch method {
	case core.MethodConstructedEmail:
		for _, local := range ConstructedLocalParts {
			addrs = append(addrs, local+"@"+normalized)
		}
	case core.MethodDNSTXTContactEmail:
		addrs, err = v.discoverTXT(ctx, normalized)
	case core.MethodDNSCAAContactEmail:
		addrs, err = v.discoverCAA(ctx, normalized)
	default:
		return nil, berrors.New(berrors.InvalidDcvMethod, "email validator cannot handle method %s", method)
	}
	if err != nil {
		return nil, err
	}

	if len(addrs) == 0 && v.whois != nil && (method == core.MethodDNSTXTContactEmail || method == core.MethodDNSCAAContactEmail) {
		addrs, err = v.discoverWHOIS(ctx, normalized)
		if err != nil {
			return nil, err
		}
	}
	if len(addrs) == 0 {
		return nil, berrors.New(berrors.WhoisNoEmailsFound, "no candidate email addresses found for %q via %s", normalized, method)
	}

	state := &core.ValidationState{
		Domain:            normalized,
		Method:            method,
		PrepareTime:       time.Now(),
		EmailRandomValues: make(map[string]string, len(addrs)),
	}
	resp := &PreparationResponse{Domain: normalized, Method: method, State: state}
	for _, addr := range dedupe(addrs) {
		value, err := challenge.GenerateRandomValue(v.RandomValueCharset, v.RandomValueLength)
		if err != nil {
			return nil, err
		}
		state.EmailRandomValues[addr] = value
		resp.Candidates = append(resp.Candidates, Candidate{Email: addr, RandomValue: value})
	}
	return resp, nil
}

// Validate checks that (email, randomValue) was one of the pairs Prepare
// minted for state, and that the random value has not expired.
func (v *Validator) Validate(state *core.ValidationState, email, randomValue string) (*core.DomainValidationEvidence, *berrors.DcvError) {
	if err := challenge.CheckRandomValueNotExpired(state.PrepareTime, time.Now(), v.ValidityDays); err != nil {
		return nil, err
	}
	want, ok := state.EmailRandomValues[strings.ToLower(email)]
	if !ok || want != randomValue {
		return nil, berrors.New(berrors.RandomValueNotFound, "email %q / random value pair was not one of the prepared candidates", email)
	}
	return &core.DomainValidationEvidence{
		Domain:         state.Domain,
		Method:         state.Method,
		BrVersion:      "2.0",
		ValidationDate: time.Now(),
		EmailAddress:   email,
		RandomValue:    randomValue,
	}, nil
}

func (v *Validator) discoverTXT(ctx context.Context, domain string) ([]string, *berrors.DcvError) {
	name := TXTLabel + "." + domain
	txts, err := v.dns.LookupTXT(ctx, name)
	if err != nil {
		if de, ok := err.(*berrors.DcvError); ok && de.Type == berrors.DNSLookupDomainNotFound {
			return nil, nil
		}
		return nil, toDNSError(err)
	}
	var addrs []string
	for _, txt := range txts {
		if addr := sanitizeCandidate(txt); isValidEmail(addr) {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

func (v *Validator) discoverCAA(ctx context.Context, domain string) ([]string, *berrors.DcvError) {
	records, err := v.dns.LookupCAA(ctx, domain)
	if err != nil {
		if de, ok := err.(*berrors.DcvError); ok && de.Type == berrors.DNSLookupDomainNotFound {
			return nil, nil
		}
		return nil, toDNSError(err)
	}
	var addrs []string
	for _, r := range records {
		if !strings.EqualFold(r.Tag, CAAContactEmailTag) {
			continue
		}
		if addr := sanitizeCandidate(r.Value); isValidEmail(addr) {
			addrs = append(addrs, addr)
		}
	}
	return addrs, nil
}

func (v *Validator) discoverWHOIS(ctx context.Context, domain string) ([]string, *berrors.DcvError) {
	for _, name := range v.psl.DomainAndParents(domain) {
		text, err := v.whois.Lookup(ctx, name)
		if err != nil {
			continue
		}
		emails, extractErr := whois.ExtractEmails(text)
		if extractErr != nil {
			continue
		}
		if len(emails) > 0 {
			return emails, nil
		}
	}
	return nil, nil
}

// sanitizeCandidate trims surrounding whitespace and one layer of matching
// quote characters from a raw TXT/CAA record value.
func sanitizeCandidate(raw string) string {
	s := strings.TrimSpace(raw)
	if len(s) >= 2 {
		first, last := s[0], s[len(s)-1]
		if (first == '"' && last == '"') || (first == '\'' && last == '\'') {
			s = s[1 : len(s)-1]
		}
	}
	return strings.TrimSpace(s)
}

func isValidEmail(addr string) bool {
	if addr == "" || !emailPattern.MatchString(addr) {
		return false
	}
	at := strings.LastIndex(addr, "@")
	domainPart := addr[at+1:]
	normalized, normErr := domainname.Normalize(domainPart)
	if normErr != nil {
		return false
	}
	return domainname.Validate(normalized) == nil
}

func dedupe(addrs []string) []string {
	seen := map[string]bool{}
	var out []string
	for _, a := range addrs {
		lower := strings.ToLower(a)
		if seen[lower] {
			continue
		}
		seen[lower] = true
		out = append(out, lower)
	}
	return out
}

func toDNSError(err error) *berrors.DcvError {
	if de, ok := err.(*berrors.DcvError); ok {
		return de
	}
	return berrors.New(berrors.DNSLookupIOException, "%s", err)
}
