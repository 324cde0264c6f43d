package core

import (
	"testing"
	"time"
)

func TestValidationStateRoundTrip(t *testing.T) {
	s := &ValidationState{
		Domain:      "example.com",
		Method:      MethodDNSChangeRandomValue,
		PrepareTime: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RandomValue: "abc123",
	}
	encoded, err := s.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, berr := DecodeValidationState(encoded)
	if berr != nil {
		t.Fatalf("DecodeValidationState: %v", berr)
	}
	if decoded.Domain != s.Domain || decoded.RandomValue != s.RandomValue || decoded.Method != s.Method {
		t.Fatalf("decoded = %+v, want %+v", decoded, s)
	}
}

func TestDecodeValidationStateRequiresInput(t *testing.T) {
	if _, err := DecodeValidationState(""); err == nil {
		t.Fatalf("expected an error for an empty validation state")
	}
}

func TestRequestTypeTableCoversEveryMethod(t *testing.T) {
	seen := map[Method]bool{}
	for _, info := range RequestTypeTable {
		seen[info.Method] = true
	}
	for _, m := range []Method{
		MethodDNSChangeRandomValue, MethodDNSChangeRequestToken, MethodConstructedEmail,
		MethodDNSTXTContactEmail, MethodDNSCAAContactEmail,
		MethodFileValidationRandomValue, MethodFileValidationRequestToken,
		MethodAcmeDns01, MethodAcmeHttp01,
	} {
		if !seen[m] {
			t.Errorf("RequestTypeTable has no entry mapping to method %s", m)
		}
	}
}
