// Package whois implements the WHOIS client used by the DNS-TXT-contact and
// DNS-CAA-contact email validators to discover a domain's registrant/admin
// contact addresses when those aren't published via DNS. Grounded on the
// teacher's general client-construction idiom (explicit dial timeout, single
// exchange, typed berrors on failure) seen in core/dns.go, generalized here
// to a TCP/port-43 text protocol instead of a DNS exchange, and using
// golang.org/x/sync/singleflight (a direct teacher dependency) to collapse
// concurrent identical lookups.
package whois

import (
	"context"
	"io"
	"net"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
)

const ianaWhoisHost = "whois.iana.org"
const whoisPort = "43"
const maxReferrals = 8
const defaultTimeout = 5 * time.Second
const maxResponseSize = 64 * 1024

// Client queries WHOIS servers for a domain, following registrar referrals
// starting from IANA's root server.
type Client struct {
	dialer  net.Dialer
	timeout time.Duration
	log     blog.Logger
	cache   Cache
	group   singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

func WithTimeout(d time.Duration) Option { return func(c *Client) { c.timeout = d } }
func WithLogger(l blog.Logger) Option     { return func(c *Client) { c.log = l } }
func WithCache(cache Cache) Option        { return func(c *Client) { c.cache = cache } }

// NewClient constructs a WHOIS Client.
func NewClient(opts ...Option) *Client {
	c := &Client{
		timeout: defaultTimeout,
		log:     blog.NewStdr("whois"),
		cache:   NewMapCache(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Lookup returns the raw WHOIS response text for domain, following referrals.
// Concurrent identical lookups are deduplicated via singleflight, and
// successful results are cached.
func (c *Client) Lookup(ctx context.Context, domain string) (string, error) {
	domain = strings.ToLower(domain)

	if cached, ok := c.cache.Get(domain); ok {
		return cached, nil
	}

	v, err, _ := c.group.Do(domain, func() (interface{}, error) {
		text, err := c.lookupUncached(ctx, domain)
		if err == nil {
			c.cache.Set(domain, text, 1*time.Hour)
		}
		return text, err
	})
	if err != nil {
		return "", err
	}
	return v.(string), nil
}

func (c *Client) lookupUncached(ctx context.Context, domain string) (string, error) {
	host := ianaWhoisHost
	visited := map[string]bool{}

	for i := 0; i < maxReferrals; i++ {
		if visited[host] {
			return "", berrors.New(berrors.WhoisQueryError, "whois referral loop detected at %q while querying %q", host, domain)
		}
		visited[host] = true

		text, err := c.query(ctx, host, domain)
		if err != nil {
			return "", err
		}
		if text == "" {
			return "", berrors.New(berrors.WhoisEmptyResponse, "empty WHOIS response for %q from %q", domain, host)
		}

		if referral := extractReferral(text); referral != "" && !strings.EqualFold(referral, host) {
			host = referral
			continue
		}
		return text, nil
	}
	return "", berrors.New(berrors.WhoisQueryError, "exceeded the maximum of %d WHOIS referrals looking up %q", maxReferrals, domain)
}

func (c *Client) query(ctx context.Context, host, domain string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	conn, err := c.dialer.DialContext(ctx, "tcp", net.JoinHostPort(host, whoisPort))
	if err != nil {
		return "", berrors.New(berrors.WhoisQueryError, "connecting to whois server %q: %s", host, err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		conn.SetDeadline(deadline)
	}

	if _, err := conn.Write([]byte(domain + "\r\n")); err != nil {
		return "", berrors.New(berrors.WhoisQueryError, "sending whois query to %q: %s", host, err)
	}

	body, err := io.ReadAll(io.LimitReader(conn, maxResponseSize))
	if err != nil && err != io.EOF {
		return "", berrors.New(berrors.WhoisQueryError, "reading whois response from %q: %s", host, err)
	}
	return string(body), nil
}

// referralPrefixes are the label forms real WHOIS servers use to point at
// the authoritative registrar server, tried in order.
var referralPrefixes = []string{
	"refer:",
	"whois:",
	"registrar whois server:",
	"whois server:",
}

func extractReferral(text string) string {
	for _, line := range strings.Split(text, "\n") {
		lower := strings.ToLower(strings.TrimSpace(line))
		for _, prefix := range referralPrefixes {
			if strings.HasPrefix(lower, prefix) {
				value := strings.TrimSpace(line[len(prefix):])
				value = strings.TrimPrefix(value, ":")
				return strings.TrimSpace(value)
			}
		}
	}
	return ""
}
