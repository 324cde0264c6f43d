package challenge

import "testing"

func TestHMACRequestTokenRoundTrip(t *testing.T) {
	v := HMACRequestTokenValidator{}
	token, err := v.Generate("hashing-key", "hashing-value")
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	if !v.Validate(token, "hashing-key", "hashing-value") {
		t.Fatalf("generated token did not validate against its own inputs")
	}
	if v.Validate(token, "hashing-key", "different-value") {
		t.Fatalf("token validated against a different hashing value")
	}
}

func TestValidateRequestTokenMissingFields(t *testing.T) {
	v := HMACRequestTokenValidator{}
	if err := ValidateRequestToken(v, "", "key", "value"); err == nil {
		t.Fatalf("expected error for empty token")
	}
	if err := ValidateRequestToken(v, "tok", "", "value"); err == nil {
		t.Fatalf("expected error for empty hashing key")
	}
	if err := ValidateRequestToken(v, "tok", "key", ""); err == nil {
		t.Fatalf("expected error for empty hashing value")
	}
}
