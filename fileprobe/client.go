// Package fileprobe implements the HTTP file validation probe client: it
// fetches a candidate URL, enforces the file-validation redirect policy
// (spec §4.4), and caps response bodies. Redirects are inspected and followed
// manually against the DCV redirect policy instead of always proceeding to
// HTTP-01-style IP-pinned fetches.
package fileprobe

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/metrics"
	"github.com/sunforge-ca/dcv/psl"
)

var tracer = otel.Tracer("github.com/sunforge-ca/dcv/fileprobe")

// MaxRedirects bounds the number of redirects a single fetch will follow,
// mirroring va/http.go's maxRedirect constant.
const MaxRedirects = 10

// MaxResponseSize caps the number of bytes read from a response body,
// mirroring va/http.go's maxResponseSize constant (100KB, generous for a
// one-line file-validation token).
const MaxResponseSize = 100 * 1024

// Response is the outcome of a single file-validation fetch.
type Response struct {
	URL         string
	StatusCode  int
	Body        []byte
	Redirects   []string
	DcvError    *berrors.DcvError
}

// Client performs HTTP(S) file-validation fetches under the DCV redirect
// policy.
type Client struct {
	httpClient  *http.Client
	psl         *psl.Engine
	log         blog.Logger
	metrics     *metrics.FileMetrics
	maxRedirect int
	maxBody     int64
}

// Option configures a Client.
type Option func(*Client)

func WithMetrics(m *metrics.FileMetrics) Option { return func(c *Client) { c.metrics = m } }
func WithLogger(l blog.Logger) Option           { return func(c *Client) { c.log = l } }
func WithMaxRedirects(n int) Option             { return func(c *Client) { c.maxRedirect = n } }

// NewClient constructs a Client. pslEngine is used to compare base domains
// across a redirect chain, per the redirect policy's same-base-domain rule.
func NewClient(pslEngine *psl.Engine, opts ...Option) *Client {
	transport := otelhttp.NewTransport(&http.Transport{
		TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
		DisableKeepAlives:   true,
		MaxIdleConns:        1,
		IdleConnTimeout:     time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
	})
	c := &Client{
		httpClient: &http.Client{
			Transport: transport,
			// We follow redirects manually so we can enforce the DCV
			// redirect policy before issuing the next request.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		psl:         pslEngine,
		log:         blog.NewStdr("fileprobe"),
		maxRedirect: MaxRedirects,
		maxBody:     MaxResponseSize,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Fetch retrieves rawURL, following redirects per the DCV redirect policy: it
// follows only 301/302/307/308 responses; relative Location headers are
// always followed; absolute Location headers must use http or https, must
// use a port matching their scheme (or no port at all), and must resolve to
// the same base domain (per psl.BaseDomain) as the original request; a
// circular chain (a URL seen earlier in this fetch) is rejected.
func (c *Client) Fetch(ctx context.Context, rawURL string) (*Response, error) {
	ctx, span := tracer.Start(ctx, "fileprobe.Fetch", trace.WithAttributes(attribute.String("url", rawURL)))
	defer span.End()

	start := time.Now()
	current, err := url.Parse(rawURL)
	if err != nil {
		return nil, berrors.New(berrors.FileValidationBadRequest, "invalid file validation URL %q: %s", rawURL, err)
	}

	sourceBase, baseErr := c.baseDomainOf(current)
	if baseErr != nil {
		return nil, baseErr
	}

	visited := map[string]bool{}
	var redirects []string

	for i := 0; ; i++ {
		if visited[current.String()] {
			c.observe(start, "circular_redirect")
			return nil, berrors.New(berrors.FileValidationBadResponse, "circular redirect chain detected at %q", current.String())
		}
		visited[current.String()] = true

		resp, err := c.doRequest(ctx, current)
		if err != nil {
			c.observe(start, "error")
			return nil, err
		}

		if isRedirectStatus(resp.StatusCode) {
			if i >= c.maxRedirect {
				resp.Body.Close()
				c.observe(start, "too_many_redirects")
				return nil, berrors.New(berrors.FileValidationBadResponse, "exceeded the maximum of %d redirects", c.maxRedirect)
			}
			loc := resp.Header.Get("Location")
			resp.Body.Close()
			next, err := c.resolveRedirect(current, loc, sourceBase)
			if err != nil {
				c.recordRedirect("rejected")
				return nil, err
			}
			c.recordRedirect("followed")
			redirects = append(redirects, next.String())
			current = next
			continue
		}

		body, err := readCapped(resp.Body, c.maxBody)
		resp.Body.Close()
		if err != nil {
			c.observe(start, "error")
			return nil, berrors.New(berrors.FileValidationBadResponse, "reading response body from %q: %s", current.String(), err)
		}

		out := &Response{
			URL:        current.String(),
			StatusCode: resp.StatusCode,
			Body:       body,
			Redirects:  redirects,
		}
		if resp.StatusCode != http.StatusOK {
			out.DcvError = statusCodeError(resp.StatusCode, current.String())
		} else if len(body) == 0 {
			out.DcvError = berrors.New(berrors.FileValidationEmptyResponse, "empty response body from %q", current.String())
		}
		c.observe(start, "success")
		return out, nil
	}
}

func (c *Client) doRequest(ctx context.Context, u *url.URL) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, berrors.New(berrors.FileValidationBadRequest, "constructing request for %q: %s", u.String(), err)
	}
	req.Header.Set("Accept", "*/*")
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, berrors.New(berrors.FileValidationTimeout, "fetching %q timed out: %s", u.String(), err)
		}
		return nil, berrors.New(berrors.FileValidationClientError, "fetching %q failed: %s", u.String(), err)
	}
	return resp, nil
}

func (c *Client) resolveRedirect(source *url.URL, location string, sourceBase string) (*url.URL, *berrors.DcvError) {
	if location == "" {
		return nil, berrors.New(berrors.FileValidationBadResponse, "redirect response from %q had no Location header", source.String())
	}
	loc, err := url.Parse(location)
	if err != nil {
		return nil, berrors.New(berrors.FileValidationBadResponse, "redirect Location %q from %q did not parse: %s", location, source.String(), err)
	}
	next := source.ResolveReference(loc)

	// A relative Location is always followed without further checks (it
	// necessarily stays on the same host).
	if !loc.IsAbs() && loc.Host == "" {
		return next, nil
	}

	if next.Scheme != "http" && next.Scheme != "https" {
		return nil, berrors.New(berrors.FileValidationBadResponse,
			"redirect to %q uses unsupported scheme %q", next.String(), next.Scheme)
	}
	if port := next.Port(); port != "" {
		wantPort := "80"
		if next.Scheme == "https" {
			wantPort = "443"
		}
		if port != wantPort {
			return nil, berrors.New(berrors.FileValidationBadResponse,
				"redirect to %q uses port %s, which does not match its %q scheme", next.String(), port, next.Scheme)
		}
	}

	targetBase, baseErr := c.baseDomainOf(next)
	if baseErr != nil {
		return nil, baseErr
	}
	if targetBase != sourceBase {
		return nil, berrors.New(berrors.FileValidationBadResponse,
			"redirect to %q leaves base domain %q for %q", next.String(), sourceBase, targetBase)
	}
	return next, nil
}

func (c *Client) baseDomainOf(u *url.URL) (string, *berrors.DcvError) {
	host := u.Hostname()
	if net.ParseIP(host) != nil {
		return "", berrors.New(berrors.FileValidationBadRequest, "file validation URL %q must name a host, not a bare IP", u.String())
	}
	base, err := c.psl.BaseDomain(host)
	if err != nil {
		return "", err
	}
	return base, nil
}

func (c *Client) recordRedirect(outcome string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Redirects.WithLabelValues(outcome).Inc()
}

func (c *Client) observe(start time.Time, result string) {
	if c.metrics == nil {
		return
	}
	c.metrics.Fetches.WithLabelValues(result).Inc()
	c.metrics.FetchTime.WithLabelValues(result).Observe(time.Since(start).Seconds())
}

func isRedirectStatus(code int) bool {
	switch code {
	case http.StatusMovedPermanently, http.StatusFound, http.StatusTemporaryRedirect, http.StatusPermanentRedirect:
		return true
	default:
		return false
	}
}

func statusCodeError(code int, u string) *berrors.DcvError {
	switch {
	case code == http.StatusNotFound:
		return berrors.New(berrors.FileValidationNotFound, "file not found at %q", u)
	case code >= 400 && code < 500:
		return berrors.New(berrors.FileValidationClientError, "client error %d fetching %q", code, u)
	case code >= 500:
		return berrors.New(berrors.FileValidationServerError, "server error %d fetching %q", code, u)
	default:
		return berrors.New(berrors.FileValidationInvalidStatusCode, "unexpected status %d fetching %q", code, u)
	}
}

func readCapped(r io.Reader, max int64) ([]byte, error) {
	limited := io.LimitReader(r, max)
	return io.ReadAll(limited)
}

// CandidateURL builds the default file-validation URL for host using the
// well-known /.well-known/pki-validation/ path, per spec §4.4.
func CandidateURL(host, filename string, useHTTPS bool) string {
	scheme := "http"
	if useHTTPS {
		scheme = "https"
	}
	path := "/.well-known/pki-validation/" + filename
	return scheme + "://" + host + path
}
