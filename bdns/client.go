// Package bdns implements the DNS probe client used by the DNS, email, and
// ACME dns-01 validators: context.Context-aware lookups that classify
// failures into the berrors DNS taxonomy instead of returning bare errors.
package bdns

import (
	"context"
	"math/rand"
	"time"

	"github.com/miekg/dns"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/metrics"
)

var tracer = otel.Tracer("github.com/sunforge-ca/dcv/bdns")

// Client is the DNS probe client contract consumed by validators.
type Client interface {
	LookupTXT(ctx context.Context, hostname string) ([]string, error)
	LookupCNAME(ctx context.Context, hostname string) (string, error)
	LookupCAA(ctx context.Context, hostname string) ([]*dns.CAA, error)
	LookupHost(ctx context.Context, hostname string) ([]string, error)
}

// Resolver is the default Client implementation, querying a configured list
// of upstream DNS servers directly with miekg/dns, choosing a server at
// random per query, and retrying up to MaxRetries times on transient
// failure.
type Resolver struct {
	dnsClient  *dns.Client
	servers    []string
	maxRetries int
	log        blog.Logger
	metrics    *metrics.DNSMetrics
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithMetrics attaches a *metrics.DNSMetrics to the resolver.
func WithMetrics(m *metrics.DNSMetrics) Option {
	return func(r *Resolver) { r.metrics = m }
}

// WithLogger attaches a blog.Logger to the resolver.
func WithLogger(l blog.Logger) Option {
	return func(r *Resolver) { r.log = l }
}

// WithMaxRetries overrides the default retry budget of 1.
func WithMaxRetries(n int) Option {
	return func(r *Resolver) { r.maxRetries = n }
}

// NewResolver constructs a Resolver that queries servers (host:port form),
// with dialTimeout bounding each individual exchange.
func NewResolver(dialTimeout time.Duration, servers []string, opts ...Option) *Resolver {
	c := new(dns.Client)
	c.DialTimeout = dialTimeout
	c.ReadTimeout = dialTimeout
	c.WriteTimeout = dialTimeout

	r := &Resolver{
		dnsClient:  c,
		servers:    servers,
		maxRetries: 1,
		log:        blog.NewStdr("bdns"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// exchangeOne performs a single DNS exchange against a randomly chosen
// configured server, mirroring core.DNSResolverImpl.ExchangeOne, but honoring
// ctx cancellation and the configured retry budget.
func (r *Resolver) exchangeOne(ctx context.Context, hostname string, qtype uint16) (*dns.Msg, error) {
	ctx, span := tracer.Start(ctx, "bdns.exchangeOne", trace.WithAttributes(
		attribute.String("hostname", hostname),
		attribute.String("qtype", dns.TypeToString[qtype]),
	))
	defer span.End()

	if len(r.servers) < 1 {
		return nil, berrors.New(berrors.InternalError, "no DNS servers configured")
	}

	m := new(dns.Msg)
	m.SetQuestion(dns.Fqdn(hostname), qtype)
	m.SetEdns0(4096, true)

	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, berrors.New(berrors.Cancelled, "dns lookup for %q cancelled: %s", hostname, err)
		}
		server := r.servers[rand.Intn(len(r.servers))]
		resp, _, err := r.dnsClient.ExchangeContext(ctx, m, server)
		if err == nil {
			return resp, nil
		}
		lastErr = err
	}
	return nil, classifyExchangeError(hostname, lastErr)
}

func classifyExchangeError(hostname string, err error) *berrors.DcvError {
	if err == nil {
		return nil
	}
	if err == context.DeadlineExceeded {
		return berrors.New(berrors.DNSLookupTimeout, "dns lookup for %q timed out", hostname)
	}
	netErr, ok := err.(interface{ Timeout() bool })
	if ok && netErr.Timeout() {
		return berrors.New(berrors.DNSLookupTimeout, "dns lookup for %q timed out: %s", hostname, err)
	}
	return berrors.New(berrors.DNSLookupIOException, "dns lookup for %q failed: %s", hostname, err)
}

func (r *Resolver) observe(recordType string, start time.Time, result string) {
	if r.metrics == nil {
		return
	}
	r.metrics.Queries.WithLabelValues(recordType, result).Inc()
	r.metrics.QueryTime.WithLabelValues(recordType).Observe(time.Since(start).Seconds())
}

// LookupTXT returns every TXT record value found for hostname, joining
// multi-string TXT records the way core.DNSResolverImpl.LookupTXT did.
func (r *Resolver) LookupTXT(ctx context.Context, hostname string) ([]string, error) {
	start := time.Now()
	resp, err := r.exchangeOne(ctx, hostname, dns.TypeTXT)
	if err != nil {
		r.observe("TXT", start, "error")
		return nil, err
	}
	if isNameError(resp) {
		r.observe("TXT", start, "not_found")
		return nil, berrors.New(berrors.DNSLookupDomainNotFound, "no such domain %q", hostname)
	}
	if resp.Rcode != dns.RcodeSuccess {
		r.observe("TXT", start, "error")
		return nil, berrors.New(berrors.DNSLookupIOException, "dns failure %d (%s) for TXT query on %q",
			resp.Rcode, dns.RcodeToString[resp.Rcode], hostname)
	}

	var out []string
	for _, rr := range resp.Answer {
		if txt, ok := rr.(*dns.TXT); ok {
			out = append(out, joinTXT(txt.Txt))
		}
	}
	if len(out) == 0 {
		r.observe("TXT", start, "empty")
		return nil, berrors.New(berrors.DNSLookupRecordNotFound, "no TXT records found for %q", hostname)
	}
	r.observe("TXT", start, "success")
	return out, nil
}

func joinTXT(chunks []string) string {
	out := ""
	for _, c := range chunks {
		out += c
	}
	return out
}

// LookupCNAME returns the CNAME target for hostname, or "" with a nil error
// if no CNAME exists, mirroring core.DNSResolverImpl.LookupCNAME.
func (r *Resolver) LookupCNAME(ctx context.Context, hostname string) (string, error) {
	start := time.Now()
	resp, err := r.exchangeOne(ctx, hostname, dns.TypeCNAME)
	if err != nil {
		r.observe("CNAME", start, "error")
		return "", err
	}
	if isNameError(resp) {
		r.observe("CNAME", start, "not_found")
		return "", nil
	}
	if resp.Rcode != dns.RcodeSuccess {
		r.observe("CNAME", start, "error")
		return "", berrors.New(berrors.DNSLookupIOException, "dns failure %d (%s) for CNAME query on %q",
			resp.Rcode, dns.RcodeToString[resp.Rcode], hostname)
	}
	for _, rr := range resp.Answer {
		if c, ok := rr.(*dns.CNAME); ok {
			r.observe("CNAME", start, "success")
			return c.Target, nil
		}
	}
	r.observe("CNAME", start, "not_found")
	return "", nil
}

// LookupCAA returns every CAA record found for hostname. A SERVFAIL response
// yields an empty slice and no error, as core.DNSResolverImpl.LookupCAA did.
func (r *Resolver) LookupCAA(ctx context.Context, hostname string) ([]*dns.CAA, error) {
	start := time.Now()
	resp, err := r.exchangeOne(ctx, hostname, dns.TypeCAA)
	if err != nil {
		r.observe("CAA", start, "error")
		return nil, err
	}
	if resp.Rcode == dns.RcodeServerFailure {
		r.observe("CAA", start, "servfail")
		return nil, nil
	}
	var out []*dns.CAA
	for _, rr := range resp.Answer {
		if caa, ok := rr.(*dns.CAA); ok {
			out = append(out, caa)
		}
	}
	r.observe("CAA", start, "success")
	return out, nil
}

// LookupHost returns every A/AAAA address found for hostname, as dotted or
// colon-separated strings.
func (r *Resolver) LookupHost(ctx context.Context, hostname string) ([]string, error) {
	start := time.Now()
	resp, err := r.exchangeOne(ctx, hostname, dns.TypeA)
	if err != nil {
		r.observe("A", start, "error")
		return nil, err
	}
	if isNameError(resp) {
		r.observe("A", start, "not_found")
		return nil, berrors.New(berrors.DNSLookupDomainNotFound, "no such domain %q", hostname)
	}
	if resp.Rcode != dns.RcodeSuccess {
		r.observe("A", start, "error")
		return nil, berrors.New(berrors.DNSLookupIOException, "dns failure %d (%s) for A query on %q",
			resp.Rcode, dns.RcodeToString[resp.Rcode], hostname)
	}
	var addrs []string
	for _, rr := range resp.Answer {
		if a, ok := rr.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}
	if len(addrs) == 0 {
		r.observe("A", start, "empty")
		return nil, berrors.New(berrors.DNSLookupRecordNotFound, "no A records found for %q", hostname)
	}
	r.observe("A", start, "success")
	return addrs, nil
}

func isNameError(resp *dns.Msg) bool {
	return resp.Rcode == dns.RcodeNameError || resp.Rcode == dns.RcodeNXRrset
}

var _ Client = (*Resolver)(nil)
