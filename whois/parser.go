package whois

import (
	"regexp"
	"strings"

	"github.com/sunforge-ca/dcv/berrors"
)

// emailLabels are the colon-terminated field labels that precede a contact
// email address in a WHOIS record, covering the common registrar variants
// (email/e-mail, with or without a space/hyphen/underscore).
var emailLabels = []string{
	"email", "e-mail", "e mail", "e_mail",
}

var emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9.\-]+\.[A-Za-z]{2,}`)

// ExtractEmails scans a raw WHOIS response and returns the union of every
// email address found on a line whose label matches one of emailLabels
// (registrant, admin, tech, abuse contacts are all unioned, per spec §4.10).
func ExtractEmails(whoisText string) ([]string, *berrors.DcvError) {
	seen := map[string]bool{}
	var out []string

	for _, line := range strings.Split(whoisText, "\n") {
		trimmed := strings.TrimSpace(line)
		idx := strings.Index(trimmed, ":")
		if idx < 0 {
			continue
		}
		label := normalizeLabel(trimmed[:idx])
		if !isEmailLabel(label) {
			continue
		}
		for _, m := range emailPattern.FindAllString(trimmed[idx+1:], -1) {
			lower := strings.ToLower(m)
			if !seen[lower] {
				seen[lower] = true
				out = append(out, lower)
			}
		}
	}

	if len(out) == 0 {
		return nil, berrors.New(berrors.WhoisNoEmailsFound, "no contact email addresses found in WHOIS response")
	}
	return out, nil
}

func normalizeLabel(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.TrimPrefix(s, "registrant ")
	s = strings.TrimPrefix(s, "admin ")
	s = strings.TrimPrefix(s, "technical ")
	s = strings.TrimPrefix(s, "tech ")
	s = strings.TrimPrefix(s, "abuse ")
	s = strings.TrimPrefix(s, "billing ")
	return s
}

func isEmailLabel(label string) bool {
	for _, l := range emailLabels {
		if label == l {
			return true
		}
	}
	return false
}
