package whois

import "testing"

func TestExtractEmailsUnionsContacts(t *testing.T) {
	text := `
Domain Name: EXAMPLE.COM
Registrant Email: registrant@example.com
Admin Email: admin@example.com
Tech Email: registrant@example.com
`
	emails, err := ExtractEmails(text)
	if err != nil {
		t.Fatalf("ExtractEmails: %v", err)
	}
	if len(emails) != 2 {
		t.Fatalf("ExtractEmails = %v, want 2 unique addresses", emails)
	}
}

func TestExtractEmailsNoneFound(t *testing.T) {
	_, err := ExtractEmails("Domain Name: EXAMPLE.COM\nStatus: active\n")
	if err == nil {
		t.Fatalf("expected an error when no contact emails are present")
	}
}

func TestExtractReferral(t *testing.T) {
	text := "Domain Name: EXAMPLE.COM\nRefer: whois.example-registry.net\n"
	if got := extractReferral(text); got != "whois.example-registry.net" {
		t.Fatalf("extractReferral = %q, want %q", got, "whois.example-registry.net")
	}
}
