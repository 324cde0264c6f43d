package acme

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"testing"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/mpic"
	"github.com/sunforge-ca/dcv/psl"
)

type fakeMpicClient struct {
	txtValue  string
	txtFound  bool
	fileBody  string
	fileFound bool
	enforce   bool
}

func (f *fakeMpicClient) ShouldEnforceCorroboration() bool { return f.enforce }
func (f *fakeMpicClient) GetPrimaryOnlyDnsResponse(context.Context, string, string) (*mpic.DnsResponse, error) {
	return &mpic.DnsResponse{Primary: mpic.AgentResponse{AgentID: "primary", Found: f.txtFound, Value: f.txtValue}}, nil
}
func (f *fakeMpicClient) GetMpicDnsResponse(context.Context, string, string) (*mpic.DnsResponse, error) {
	primary := mpic.AgentResponse{AgentID: "primary", Found: f.txtFound, Value: f.txtValue}
	secondaries := []mpic.AgentResponse{{AgentID: "s1", Found: f.txtFound, Value: f.txtValue}}
	return &mpic.DnsResponse{Primary: primary, Secondaries: secondaries}, nil
}
func (f *fakeMpicClient) GetPrimaryOnlyFileResponse(context.Context, string) (*mpic.FileResponse, error) {
	return &mpic.FileResponse{Primary: mpic.AgentResponse{AgentID: "primary", Found: f.fileFound, Value: f.fileBody}}, nil
}
func (f *fakeMpicClient) GetMpicFileResponse(context.Context, string) (*mpic.FileResponse, error) {
	primary := mpic.AgentResponse{AgentID: "primary", Found: f.fileFound, Value: f.fileBody}
	secondaries := []mpic.AgentResponse{{AgentID: "s1", Found: f.fileFound, Value: f.fileBody}}
	return &mpic.FileResponse{Primary: primary, Secondaries: secondaries}, nil
}

func thumbprints(thumbprint string) ThumbprintLookup {
	return func(accountID string) (string, bool) {
		if accountID != "acct1" {
			return "", false
		}
		return thumbprint, true
	}
}

func TestValidateDNS01Success(t *testing.T) {
	const thumbprint = "thumb123"
	const token = "tok456"
	keyAuth := token + "." + thumbprint
	digest := sha256.Sum256([]byte(keyAuth))
	expected := base64.RawURLEncoding.EncodeToString(digest[:])

	client := &fakeMpicClient{txtValue: expected, txtFound: true, enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints(thumbprint), nil)
	evidence, err := v.ValidateDNS01(context.Background(), "acct1", "example.com", token)
	if err != nil {
		t.Fatalf("ValidateDNS01: %v", err)
	}
	if evidence.DNSRecordName != "_acme-challenge.example.com" {
		t.Fatalf("DNSRecordName = %q", evidence.DNSRecordName)
	}
}

func TestValidateDNS01WrongDigest(t *testing.T) {
	client := &fakeMpicClient{txtValue: "some-other-digest", txtFound: true, enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints("thumb"), nil)
	_, err := v.ValidateDNS01(context.Background(), "acct1", "example.com", "tok")
	if err == nil || err.Type != berrors.AcmeValidationFailed {
		t.Fatalf("err = %v, want AcmeValidationFailed", err)
	}
}

func TestValidateDNS01UnconfiguredAccount(t *testing.T) {
	client := &fakeMpicClient{enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints("thumb"), nil)
	_, err := v.ValidateDNS01(context.Background(), "unknown-account", "example.com", "tok")
	if err == nil || err.Type != berrors.AccountNotAcmeConfigured {
		t.Fatalf("err = %v, want AccountNotAcmeConfigured", err)
	}
}

func TestValidateHTTP01Success(t *testing.T) {
	const thumbprint = "thumb123"
	const token = "tok456"
	keyAuth := token + "." + thumbprint

	client := &fakeMpicClient{fileBody: keyAuth + "\n", fileFound: true, enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints(thumbprint), nil)
	evidence, err := v.ValidateHTTP01(context.Background(), "acct1", "example.com", token)
	if err != nil {
		t.Fatalf("ValidateHTTP01: %v", err)
	}
	if evidence.FileURL != "http://example.com/.well-known/acme-challenge/"+token {
		t.Fatalf("FileURL = %q", evidence.FileURL)
	}
}

func TestValidateHTTP01BodyMismatch(t *testing.T) {
	client := &fakeMpicClient{fileBody: "wrong-body", fileFound: true, enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints("thumb"), nil)
	_, err := v.ValidateHTTP01(context.Background(), "acct1", "example.com", "tok")
	if err == nil || err.Type != berrors.AcmeValidationFailed {
		t.Fatalf("err = %v, want AcmeValidationFailed", err)
	}
}

func TestValidateDNS01RejectsPublicSuffixDomain(t *testing.T) {
	pslEngine, err := psl.Default()
	if err != nil {
		t.Fatalf("psl.Default: %v", err)
	}
	client := &fakeMpicClient{enforce: true}
	v := NewValidator(mpic.NewOrchestrator(client), thumbprints("thumb"), pslEngine)
	_, verr := v.ValidateDNS01(context.Background(), "acct1", "com", "tok")
	if verr == nil || verr.Type != berrors.DomainInvalidNotUnderPublicSuffix {
		t.Fatalf("err = %v, want DomainInvalidNotUnderPublicSuffix", verr)
	}
}
