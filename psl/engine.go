package psl

import (
	"io"
	"strings"
	"sync"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/domainname"
)

// Override lets a caller extend or correct the bundled list without
// forking the data file, per spec §4.1's override hook (e.g. an internal
// TLD that must be treated as a public suffix for this deployment only).
type Override struct {
	Rule      string // e.g. "internal.example", "*.internal.example", "!city.internal.example"
	Private   bool
}

// Engine is a loaded Public Suffix List, queryable for base-domain
// extraction and public-suffix classification.
type Engine struct {
	registryExact     *trie
	registryWildcard  *trie
	registryException *trie
	privateExact      *trie
	privateWildcard   *trie

	mu                 sync.RWMutex
	publicSuffixCache  map[string]bool
	registrySuffixCache map[string]bool
}

// NewEngine parses a Mozilla PSL-format data file from r and returns a ready
// Engine. Additional overrides are applied after the base list loads.
func NewEngine(r io.Reader, overrides ...Override) (*Engine, error) {
	e := &Engine{
		registryExact:       newTrie(),
		registryWildcard:    newTrie(),
		registryException:   newTrie(),
		privateExact:        newTrie(),
		privateWildcard:     newTrie(),
		publicSuffixCache:   make(map[string]bool),
		registrySuffixCache: make(map[string]bool),
	}
	if err := parse(r, e); err != nil {
		return nil, err
	}
	for _, o := range overrides {
		e.applyOverride(o)
	}
	return e, nil
}

func (e *Engine) applyOverride(o Override) {
	sec := sectionRegistry
	if o.Private {
		sec = sectionPrivate
	}
	insertRule(e, sec, o.Rule)
}

// match describes the prevailing rule found for a candidate domain, per the
// standard PSL algorithm: exceptions beat wildcards beat exact matches, and
// among non-exceptions the rule with the most labels wins.
type match struct {
	labelCount int
	found      bool
	isPrivate  bool
}

func (e *Engine) prevailingRule(labels []string) match {
	best := match{}
	consider := func(count int, ok bool, private bool) {
		if !ok {
			return
		}
		if count > best.labelCount || !best.found {
			best = match{labelCount: count, found: true, isPrivate: private}
		}
	}

	if n, ok := e.registryException.longestMatch(labels); ok {
		// An exception rule "!x.y.z" means the suffix is the rule minus its
		// leftmost label: city.kobe.jp is NOT a suffix, kobe.jp is.
		return match{labelCount: n - 1, found: true, isPrivate: false}
	}

	if n, ok := e.registryWildcard.wildcardMatch(labels); ok {
		consider(n, true, false)
	}
	if n, ok := e.registryExact.longestMatch(labels); ok {
		consider(n, true, false)
	}
	if n, ok := e.privateWildcard.wildcardMatch(labels); ok {
		consider(n, true, true)
	}
	if n, ok := e.privateExact.longestMatch(labels); ok {
		consider(n, true, true)
	}

	if best.found {
		return best
	}
	// No rule at all: the default rule "*" applies, meaning the last label
	// alone is the public suffix.
	if len(labels) > 0 {
		return match{labelCount: 1, found: true, isPrivate: false}
	}
	return match{}
}

// PublicSuffix returns the public suffix of domain (e.g. "co.uk",
// "blogspot.com"), including private-section suffixes.
func (e *Engine) PublicSuffix(domain string) string {
	labels := domainname.Labels(domain)
	m := e.prevailingRule(labels)
	if !m.found || m.labelCount > len(labels) {
		return domain
	}
	return strings.Join(labels[len(labels)-m.labelCount:], ".")
}

// RegistrySuffix returns the ICANN-registry-only public suffix of domain,
// ignoring the PRIVATE DOMAINS section (e.g. "foo.blogspot.com" resolves to
// "com", not "blogspot.com"), per spec §4.1's distinction between
// isPublicSuffix and isRegistrySuffix.
func (e *Engine) RegistrySuffix(domain string) string {
	labels := domainname.Labels(domain)

	best := match{}
	if n, ok := e.registryException.longestMatch(labels); ok {
		return strings.Join(labels[len(labels)-(n-1):], ".")
	}
	if n, ok := e.registryWildcard.wildcardMatch(labels); ok {
		best = match{labelCount: n, found: true}
	}
	if n, ok := e.registryExact.longestMatch(labels); ok && (!best.found || n > best.labelCount) {
		best = match{labelCount: n, found: true}
	}
	if !best.found {
		if len(labels) == 0 {
			return domain
		}
		best = match{labelCount: 1, found: true}
	}
	if best.labelCount > len(labels) {
		return domain
	}
	return strings.Join(labels[len(labels)-best.labelCount:], ".")
}

// IsPublicSuffix reports whether domain is exactly a public suffix (registry
// or private), e.g. "com", "co.uk", "blogspot.com".
func (e *Engine) IsPublicSuffix(domain string) bool {
	e.mu.RLock()
	if v, ok := e.publicSuffixCache[domain]; ok {
		e.mu.RUnlock()
		return v
	}
	e.mu.RUnlock()

	v := e.PublicSuffix(domain) == domain
	e.mu.Lock()
	e.publicSuffixCache[domain] = v
	e.mu.Unlock()
	return v
}

// IsRegistrySuffix reports whether domain is exactly an ICANN registry
// suffix, ignoring private-section rules.
func (e *Engine) IsRegistrySuffix(domain string) bool {
	e.mu.RLock()
	if v, ok := e.registrySuffixCache[domain]; ok {
		e.mu.RUnlock()
		return v
	}
	e.mu.RUnlock()

	v := e.RegistrySuffix(domain) == domain
	e.mu.Lock()
	e.registrySuffixCache[domain] = v
	e.mu.Unlock()
	return v
}

// BaseDomain returns the registrable domain (public suffix plus exactly one
// additional label) for domain, e.g. BaseDomain("foo.bar.example.co.uk") ==
// "example.co.uk". Returns a DomainInvalidNotUnderPublicSuffix error if
// domain IS a public suffix (no label available to register).
func (e *Engine) BaseDomain(domain string) (string, *berrors.DcvError) {
	labels := domainname.Labels(domain)
	m := e.prevailingRule(labels)
	if !m.found || m.labelCount >= len(labels) {
		return "", berrors.New(berrors.DomainInvalidNotUnderPublicSuffix,
			"domain %q is itself a public suffix, has no registrable base domain", domain)
	}
	return strings.Join(labels[len(labels)-m.labelCount-1:], "."), nil
}

// DomainAndParents returns domain together with every parent domain up to
// (but not including) its public suffix, ordered from most to least
// specific. Used by the email validator's WHOIS fallback to walk up from the
// target domain to its base domain.
func (e *Engine) DomainAndParents(domain string) []string {
	labels := domainname.Labels(domain)
	base, err := e.BaseDomain(domain)
	if err != nil {
		return []string{domain}
	}
	baseLabels := domainname.Labels(base)
	out := make([]string, 0, len(labels)-len(baseLabels)+1)
	for i := 0; i <= len(labels)-len(baseLabels); i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}

// RegistryDomainAndParents returns domain together with every parent domain
// up to (but not including) its ICANN registry suffix, ordered from most to
// least specific. Unlike DomainAndParents, this walk ignores the PRIVATE
// DOMAINS section of the list, so a private suffix rule (e.g.
// "blogspot.com") does not shrink the walk short of the registry-level
// boundary. Used by the DNS Validator to compute allowedFqdns (spec §4.6).
func (e *Engine) RegistryDomainAndParents(domain string) []string {
	labels := domainname.Labels(domain)
	suffixLabels := domainname.Labels(e.RegistrySuffix(domain))
	if len(suffixLabels) >= len(labels) {
		return []string{domain}
	}
	out := make([]string, 0, len(labels)-len(suffixLabels))
	for i := 0; i <= len(labels)-len(suffixLabels)-1; i++ {
		out = append(out, strings.Join(labels[i:], "."))
	}
	return out
}
