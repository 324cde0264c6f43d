// Package file implements the File Validator (spec §4.8): a random value or
// request token published at a well-known `.well-known/pki-validation/`
// path, corroborated via MPIC. Grounded on va/http.go's fetch-and-compare
// structure, generalized from ACME's fixed body format to the
// random-value/request-token pair and wired through the MPIC orchestrator.
package file

import (
	"context"
	"regexp"
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

// DefaultFilename is used when the caller does not configure a specific
// fileValidationFilename.
const DefaultFilename = "fileauth.txt"

// filenamePattern enforces spec §4.8's filename constraint: no path
// separators, no shell metacharacters.
var filenamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]{1,64}$`)

// Validator implements the File Validator.
type Validator struct {
	orchestrator *mpic.Orchestrator
	tokenizer    challenge.RequestTokenValidator
	psl          *psl.Engine
	log          blog.Logger

	Filename           string
	CheckHTTPS         bool
	CheckHTTPSFirst    bool
	RandomValueCharset string
	RandomValueLength  int
	ValidityDays       int
	HashingKey         string
}

// Option configures a Validator.
type Option func(*Validator)

func WithLogger(l blog.Logger) Option { return func(v *Validator) { v.log = l } }
func WithFilename(name string) Option { return func(v *Validator) { v.Filename = name } }

// WithCheckHTTPS controls whether both http:// and https:// candidate URLs
// are probed (true, the default) or only http:// (false), per the
// fileValidationCheckHttps config option (spec §6.5).
func WithCheckHTTPS(check bool) Option { return func(v *Validator) { v.CheckHTTPS = check } }

// WithCheckHTTPSFirst controls candidate ordering when CheckHTTPS is true:
// https-then-http (true, the default) or http-then-https (false), per the
// fileValidationCheckHttpsFirst config option (spec §6.5).
func WithCheckHTTPSFirst(first bool) Option { return func(v *Validator) { v.CheckHTTPSFirst = first } }

func WithRequestTokenValidator(t challenge.RequestTokenValidator) Option {
	return func(v *Validator) { v.tokenizer = t }
}

// NewValidator constructs a File Validator around orchestrator. pslEngine is
// used to reject input domains that are themselves a public suffix (spec
// §4.1).
func NewValidator(orchestrator *mpic.Orchestrator, pslEngine *psl.Engine, opts ...Option) *Validator {
	v := &Validator{
		orchestrator:       orchestrator,
		tokenizer:          challenge.HMACRequestTokenValidator{},
		psl:                pslEngine,
		log:                blog.NewStdr("validators/file"),
		Filename:           DefaultFilename,
		CheckHTTPS:         true,
		CheckHTTPSFirst:    true,
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

// ValidateFilename checks a caller-supplied filename against spec §4.8's
// syntax constraint.
func ValidateFilename(name string) *berrors.DcvError {
	if !filenamePattern.MatchString(name) {
		return berrors.New(berrors.FileValidationBadRequest, "invalid file validation filename %q", name)
	}
	return nil
}

// fileURLs returns the candidate URLs tried in order for domain: when
// CheckHTTPS is disabled, just http://; otherwise both schemes, ordered
// https-first unless CheckHTTPSFirst is false (spec §4.4, §4.8, §5(b), §6.5).
func (v *Validator) fileURLs(domain string) []string {
	path := "/.well-known/pki-validation/" + v.Filename
	http := "http://" + domain + path
	if !v.CheckHTTPS {
		return []string{http}
	}
	https := "https://" + domain + path
	if v.CheckHTTPSFirst {
		return []string{https, http}
	}
	return []string{http, https}
}

// fileURL returns the first candidate URL, used as the displayed
// fileLocation in prepare's response (spec §4.8).
func (v *Validator) fileURL(domain string) string {
	return v.fileURLs(domain)[0]
}

// PrepareRandomValue rejects wildcard domains, generates a random value, and
// returns the computed file location alongside the validation state.
func (v *Validator) PrepareRandomValue(domain string) (*core.ValidationState, string, *berrors.DcvError) {
	state, url, err := v.prepareCommon(domain, core.MethodFileValidationRandomValue)
	if err != nil {
		return nil, "", err
	}
	value, err := challenge.GenerateRandomValue(v.RandomValueCharset, v.RandomValueLength)
	if err != nil {
		return nil, "", err
	}
	state.RandomValue = value
	return state, url, nil
}

// PrepareRequestToken is the request-token analogue of PrepareRandomValue.
func (v *Validator) PrepareRequestToken(domain string) (*core.ValidationState, string, *berrors.DcvError) {
	state, url, err := v.prepareCommon(domain, core.MethodFileValidationRequestToken)
	if err != nil {
		return nil, "", err
	}
	token, genErr := v.tokenizer.Generate(v.HashingKey, state.Domain)
	if genErr != nil {
		return nil, "", berrors.New(berrors.InternalError, "generating request token: %s", genErr)
	}
	state.RequestToken = token
	state.HashingKey = v.HashingKey
	return state, url, nil
}

func (v *Validator) prepareCommon(domain string, method core.Method) (*core.ValidationState, string, *berrors.DcvError) {
	if domainname.IsWildcard(domain) {
		return nil, "", berrors.New(berrors.DomainInvalidWildcardNotAllowed, "file validation does not permit wildcard domains: %q", domain)
	}
	normalized, err := domainname.NormalizeAndValidate(domain, v.suffixChecker())
	if err != nil {
		return nil, "", err
	}
	if err := ValidateFilename(v.Filename); err != nil {
		return nil, "", err
	}
	return &core.ValidationState{Domain: normalized, Method: method, PrepareTime: time.Now()}, v.fileURL(normalized), nil
}

// Validate fetches state's file location via MPIC and checks its content,
// per spec §4.8, trying each candidate URL from fileURLs in order and
// short-circuiting on the first clean result (spec §4.5, §5(b)).
func (v *Validator) Validate(ctx context.Context, state *core.ValidationState) (*core.DomainValidationEvidence, berrors.Errors) {
	urls := v.fileURLs(state.Domain)
	switch state.Method {
	case core.MethodFileValidationRandomValue:
		if err := challenge.CheckRandomValueNotExpired(state.PrepareTime, time.Now(), v.ValidityDays); err != nil {
			return nil, berrors.Errors{err}
		}
		return v.validate(ctx, urls, state, state.RandomValue, containsMatcher(state.RandomValue))
	case core.MethodFileValidationRequestToken:
		return v.validateRequestToken(ctx, urls, state)
	default:
		return nil, berrors.Errors{berrors.New(berrors.InvalidDcvMethod, "file validator cannot handle method %s", state.Method)}
	}
}

// validate runs the shared candidate-URL loop: for each URL, corroborate via
// MPIC and check the primary's observed body against want, returning on the
// first clean result; else every error accumulated across the candidates.
func (v *Validator) validate(ctx context.Context, urls []string, state *core.ValidationState, want string, matches mpic.Matcher) (*core.DomainValidationEvidence, berrors.Errors) {
	var errs berrors.Errors
	for _, url := range urls {
		details, err := v.orchestrator.CorroborateFile(ctx, url, matches)
		if err != nil {
			errs = errs.Add(err)
			continue
		}
		if !details.PrimaryFound || !strings.Contains(details.PrimaryValue, want) {
			errs = errs.Add(berrors.New(berrors.RandomValueNotFound, "random value not found in response body for %q", url))
			continue
		}
		if details.Status == mpic.NonCorroborated {
			errs = errs.Add(berrors.New(berrors.MPICCorroborationError, "MPIC corroboration failed for %q", url))
			continue
		}
		return &core.DomainValidationEvidence{
			Domain:         state.Domain,
			Method:         state.Method,
			BrVersion:      "2.0",
			ValidationDate: time.Now(),
			FileURL:        url,
			RandomValue:    state.RandomValue,
			RequestToken:   state.RequestToken,
			MpicDetails:    details,
		}, nil
	}
	return nil, errs
}

// validateRequestToken implements the two-phase discovery-then-corroborate
// flow spec §4.8 requires for applicant-generated, arbitrary-length tokens,
// running the discovery phase over each candidate URL in turn and
// corroborating against whichever one first yields a valid token.
func (v *Validator) validateRequestToken(ctx context.Context, urls []string, state *core.ValidationState) (*core.DomainValidationEvidence, berrors.Errors) {
	var errs berrors.Errors
	for _, url := range urls {
		discovery, err := v.orchestrator.PrimaryOnlyFile(ctx, url)
		if err != nil {
			errs = errs.Add(err)
			continue
		}
		if !discovery.PrimaryFound {
			errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no response body found at %q", url))
			continue
		}
		found := extractValidToken(v.tokenizer, discovery.PrimaryValue, state.HashingKey, state.Domain)
		if found == "" {
			errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no valid request token found at %q", url))
			continue
		}
		evidence, verrs := v.validate(ctx, []string{url}, state, found, func(primary, secondary mpic.AgentResponse) bool {
			return strings.Contains(primary.Value, found) && strings.Contains(secondary.Value, found)
		})
		if verrs != nil {
			errs = append(errs, verrs...)
			continue
		}
		return evidence, nil
	}
	if len(errs) == 0 {
		errs = errs.Add(berrors.New(berrors.RequestTokenErrorNotFound, "no candidate URL yielded a request token for %q", state.Domain))
	}
	return nil, errs
}

func extractValidToken(v challenge.RequestTokenValidator, body, hashingKey, domain string) string {
	for _, line := range strings.Split(body, "\n") {
		candidate := strings.TrimSpace(line)
		if candidate == "" {
			continue
		}
		if v.Validate(candidate, hashingKey, domain) {
			return candidate
		}
	}
	return ""
}

func containsMatcher(want string) mpic.Matcher {
	return func(primary, secondary mpic.AgentResponse) bool {
		return strings.Contains(primary.Value, want) && strings.Contains(secondary.Value, want)
	}
}
