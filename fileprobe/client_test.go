package fileprobe

import (
	"context"
	"crypto/tls"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/psl"
)

func testPSL(t *testing.T) *psl.Engine {
	t.Helper()
	e, err := psl.Default()
	if err != nil {
		t.Fatalf("psl.Default: %v", err)
	}
	return e
}

// testClient builds a Client whose transport resolves every request,
// regardless of the hostname in the URL, to srv's loopback listener. This
// lets tests exercise the redirect policy's hostname/base-domain checks
// (which reject bare-IP hosts) against a real net/http/httptest server.
func testClient(t *testing.T, srv *httptest.Server) *Client {
	t.Helper()
	addr := srv.Listener.Addr().String()
	dial := func(ctx context.Context, network, _ string) (net.Conn, error) {
		return net.Dial(network, addr)
	}
	c := NewClient(testPSL(t))
	c.httpClient = &http.Client{
		Transport: otelhttp.NewTransport(&http.Transport{
			DialContext:         dial,
			TLSClientConfig:     &tls.Config{InsecureSkipVerify: true},
			DisableKeepAlives:   true,
			TLSHandshakeTimeout: 10 * time.Second,
		}),
		CheckRedirect: func(*http.Request, []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}
	return c
}

func TestFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("expected-token-value"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	resp, err := c.Fetch(context.Background(), "http://dcv-test.example/.well-known/pki-validation/token.txt")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.DcvError != nil {
		t.Fatalf("unexpected DcvError: %v", resp.DcvError)
	}
	if string(resp.Body) != "expected-token-value" {
		t.Fatalf("body = %q, want %q", resp.Body, "expected-token-value")
	}
}

func TestFetchNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := testClient(t, srv)
	resp, err := c.Fetch(context.Background(), "http://dcv-test.example/missing")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.DcvError == nil || resp.DcvError.Type != berrors.FileValidationNotFound {
		t.Fatalf("DcvError = %v, want %s", resp.DcvError, berrors.FileValidationNotFound)
	}
}

func TestFetchFollowsSameBaseDomainRedirect(t *testing.T) {
	var finalHit bool
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://www.dcv-test.example/final", http.StatusFound)
	})
	mux.HandleFunc("/final", func(w http.ResponseWriter, r *http.Request) {
		finalHit = true
		w.Write([]byte("ok"))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	resp, err := c.Fetch(context.Background(), "http://dcv-test.example/start")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !finalHit {
		t.Fatalf("redirect target was never requested")
	}
	if string(resp.Body) != "ok" {
		t.Fatalf("body = %q, want %q", resp.Body, "ok")
	}
	if len(resp.Redirects) != 1 {
		t.Fatalf("Redirects = %v, want exactly one hop", resp.Redirects)
	}
}

func TestFetchRejectsCrossBaseDomainRedirect(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/start", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "http://attacker.example/final", http.StatusFound)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Fetch(context.Background(), "http://dcv-test.example/start")
	if err == nil {
		t.Fatalf("expected an error for a cross-base-domain redirect")
	}
}

func TestFetchRejectsBareIPHost(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	}))
	defer srv.Close()

	c := testClient(t, srv)
	_, err := c.Fetch(context.Background(), srv.URL)
	if err == nil {
		t.Fatalf("expected an error for a bare-IP validation URL")
	}
}
