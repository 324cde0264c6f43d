package email

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/sunforge-ca/dcv/core"
	"github.com/sunforge-ca/dcv/psl"
)

type fakeDNS struct {
	txt  map[string][]string
	caa  map[string][]*dns.CAA
}

func (f *fakeDNS) LookupTXT(ctx context.Context, name string) ([]string, error) {
	return f.txt[name], nil
}
func (f *fakeDNS) LookupCNAME(ctx context.Context, name string) (string, error) { return "", nil }
func (f *fakeDNS) LookupCAA(ctx context.Context, name string) ([]*dns.CAA, error) {
	return f.caa[name], nil
}
func (f *fakeDNS) LookupHost(ctx context.Context, name string) ([]string, error) { return nil, nil }

func testPSL(t *testing.T) *psl.Engine {
	t.Helper()
	e, err := psl.NewEngine(strings.NewReader("com\n"))
	if err != nil {
		t.Fatalf("psl.NewEngine: %v", err)
	}
	return e
}

func TestPrepareConstructedEmail(t *testing.T) {
	v := NewValidator(&fakeDNS{}, testPSL(t))
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodConstructedEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(resp.Candidates) != len(ConstructedLocalParts) {
		t.Fatalf("got %d candidates, want %d", len(resp.Candidates), len(ConstructedLocalParts))
	}
	for _, c := range resp.Candidates {
		if !strings.HasSuffix(c.Email, "@example.com") {
			t.Fatalf("candidate %q does not end with @example.com", c.Email)
		}
	}
}

func TestPrepareDNSTXTTrimsQuotes(t *testing.T) {
	dnsClient := &fakeDNS{txt: map[string][]string{
		"_validation-contactemail.example.com": {`"hostmaster@example.com"`},
	}}
	v := NewValidator(dnsClient, testPSL(t))
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodDNSTXTContactEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].Email != "hostmaster@example.com" {
		t.Fatalf("Candidates = %+v", resp.Candidates)
	}
}

func TestPrepareDNSCAAFiltersByTag(t *testing.T) {
	dnsClient := &fakeDNS{caa: map[string][]*dns.CAA{
		"example.com": {
			{Tag: "issue", Value: "ca.example.net"},
			{Tag: "contactemail", Value: " admin@example.com "},
		},
	}}
	v := NewValidator(dnsClient, testPSL(t))
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodDNSCAAContactEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if len(resp.Candidates) != 1 || resp.Candidates[0].Email != "admin@example.com" {
		t.Fatalf("Candidates = %+v", resp.Candidates)
	}
}

func TestPrepareNoCandidatesErrors(t *testing.T) {
	v := NewValidator(&fakeDNS{}, testPSL(t))
	_, err := v.Prepare(context.Background(), "example.com", core.MethodDNSTXTContactEmail)
	if err == nil {
		t.Fatalf("expected an error when no candidates are found and no WHOIS fallback is configured")
	}
}

func TestValidateMatchesPreparedPair(t *testing.T) {
	v := NewValidator(&fakeDNS{}, testPSL(t))
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodConstructedEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	candidate := resp.Candidates[0]
	evidence, verr := v.Validate(resp.State, candidate.Email, candidate.RandomValue)
	if verr != nil {
		t.Fatalf("Validate: %v", verr)
	}
	if evidence.EmailAddress != candidate.Email {
		t.Fatalf("EmailAddress = %q, want %q", evidence.EmailAddress, candidate.Email)
	}
}

func TestValidateRejectsUnpreparedPair(t *testing.T) {
	v := NewValidator(&fakeDNS{}, testPSL(t))
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodConstructedEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	if _, verr := v.Validate(resp.State, resp.Candidates[0].Email, "wrong-value"); verr == nil {
		t.Fatalf("expected an error for a mismatched random value")
	}
}

func TestValidateRejectsExpiredState(t *testing.T) {
	v := NewValidator(&fakeDNS{}, testPSL(t))
	v.ValidityDays = 1
	resp, err := v.Prepare(context.Background(), "example.com", core.MethodConstructedEmail)
	if err != nil {
		t.Fatalf("Prepare: %v", err)
	}
	resp.State.PrepareTime = time.Now().Add(-48 * time.Hour)
	if _, verr := v.Validate(resp.State, resp.Candidates[0].Email, resp.Candidates[0].RandomValue); verr == nil {
		t.Fatalf("expected an expiry error")
	}
}
