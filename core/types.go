// Package core holds the data types shared across every validation method:
// the opaque ValidationState produced by prepare and consumed by validate,
// the evidence bundle a successful validation produces, and the
// DcvRequestType table mapping each request kind to its method, candidate
// source, and challenge kind.
package core

import (
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/mpic"
)

// Method identifies a domain control validation method, split by challenge
// kind where a method supports both a random value and a request token.
type Method string

const (
	MethodDNSChangeRandomValue   Method = "DNS_CHANGE_RANDOM_VALUE"
	MethodDNSChangeRequestToken  Method = "DNS_CHANGE_REQUEST_TOKEN"
	MethodConstructedEmail       Method = "CONSTRUCTED_EMAIL"
	MethodDNSTXTContactEmail     Method = "DNS_TXT_CONTACT_EMAIL"
	MethodDNSCAAContactEmail     Method = "DNS_CAA_CONTACT_EMAIL"
	MethodFileValidationRandomValue  Method = "FILE_VALIDATION_RANDOM_VALUE"
	MethodFileValidationRequestToken Method = "FILE_VALIDATION_REQUEST_TOKEN"
	MethodAcmeDns01  Method = "ACME_DNS_01"
	MethodAcmeHttp01 Method = "ACME_HTTP_01"
)

// DNSType is the record type queried for a DNS-based method.
type DNSType string

const (
	DNSTypeTXT   DNSType = "TXT"
	DNSTypeCNAME DNSType = "CNAME"
	DNSTypeCAA   DNSType = "CAA"
)

// SecretType distinguishes a server-generated random value from a
// deterministic request token, for methods supporting either.
type SecretType string

const (
	SecretTypeRandomValue  SecretType = "RANDOM_VALUE"
	SecretTypeRequestToken SecretType = "REQUEST_TOKEN"
)

// DcvRequestType names one of the supported end-to-end request shapes and
// carries the (method, candidate source, challenge kind) triple the
// request-type table maps it to.
type DcvRequestType string

const (
	RequestDNSChangeRandomValue     DcvRequestType = "DNS_CHANGE_RANDOM_VALUE"
	RequestDNSChangeRequestToken    DcvRequestType = "DNS_CHANGE_REQUEST_TOKEN"
	RequestConstructedEmail         DcvRequestType = "CONSTRUCTED_EMAIL"
	RequestDNSTXTContactEmail       DcvRequestType = "DNS_TXT_CONTACT_EMAIL"
	RequestDNSCAAContactEmail       DcvRequestType = "DNS_CAA_CONTACT_EMAIL"
	RequestFileValidationRandomValue  DcvRequestType = "FILE_VALIDATION_RANDOM_VALUE"
	RequestFileValidationRequestToken DcvRequestType = "FILE_VALIDATION_REQUEST_TOKEN"
	RequestAcmeDns01  DcvRequestType = "ACME_DNS_01"
	RequestAcmeHttp01 DcvRequestType = "ACME_HTTP_01"
)

// RequestTypeInfo is one row of the DcvRequestType table: which Method it
// uses, what DNSType/SecretType it implies (when applicable), and whether it
// is an ACME-style challenge.
type RequestTypeInfo struct {
	Method     Method
	DNSType    DNSType
	SecretType SecretType
	IsAcme     bool
}

// RequestTypeTable is the authoritative mapping from DcvRequestType to its
// method/source/challenge triple, per spec §3.
var RequestTypeTable = map[DcvRequestType]RequestTypeInfo{
	RequestDNSChangeRandomValue:  {Method: MethodDNSChangeRandomValue, DNSType: DNSTypeTXT, SecretType: SecretTypeRandomValue},
	RequestDNSChangeRequestToken: {Method: MethodDNSChangeRequestToken, DNSType: DNSTypeCNAME, SecretType: SecretTypeRequestToken},
	RequestConstructedEmail:      {Method: MethodConstructedEmail, SecretType: SecretTypeRandomValue},
	RequestDNSTXTContactEmail:    {Method: MethodDNSTXTContactEmail, DNSType: DNSTypeTXT, SecretType: SecretTypeRandomValue},
	RequestDNSCAAContactEmail:    {Method: MethodDNSCAAContactEmail, DNSType: DNSTypeCAA, SecretType: SecretTypeRandomValue},
	RequestFileValidationRandomValue:  {Method: MethodFileValidationRandomValue, SecretType: SecretTypeRandomValue},
	RequestFileValidationRequestToken: {Method: MethodFileValidationRequestToken, SecretType: SecretTypeRequestToken},
	RequestAcmeDns01:  {Method: MethodAcmeDns01, DNSType: DNSTypeTXT, IsAcme: true},
	RequestAcmeHttp01: {Method: MethodAcmeHttp01, IsAcme: true},
}

// ValidationState is the opaque, immutable token produced by a method's
// prepare step and consumed by its validate step. It is never mutated after
// construction; its JSON encoding is what callers persist between the two
// calls (spec §6.4 validation-state serialization).
type ValidationState struct {
	Domain       string            `json:"domain"`
	Method       Method            `json:"method"`
	PrepareTime  time.Time         `json:"prepareTime"`
	RandomValue  string            `json:"randomValue,omitempty"`
	RequestToken string            `json:"requestToken,omitempty"`
	HashingKey   string            `json:"hashingKey,omitempty"`

	// AllowedFqdns is domain plus every parent domain up to (but not
	// including) its registry suffix, as the DNS Validator's prepare step
	// returns per spec §4.6, so a caller knows which FQDNs the eventual
	// certificate request is entitled to name.
	AllowedFqdns []string `json:"allowedFqdns,omitempty"`

	// EmailRandomValues maps each candidate email address prepared for an
	// Email Validator method to the random value issued for it. The email
	// methods each mint one random value per candidate address rather than
	// one for the whole request (spec §4.7).
	EmailRandomValues map[string]string `json:"emailRandomValues,omitempty"`
}

// Encode serializes the ValidationState for opaque storage by the caller
// between prepare and validate.
func (s *ValidationState) Encode() (string, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeValidationState parses a state string previously produced by Encode.
func DecodeValidationState(encoded string) (*ValidationState, *berrors.DcvError) {
	if encoded == "" {
		return nil, berrors.New(berrors.ValidationStateRequired, "validation state is required")
	}
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, berrors.New(berrors.ValidationStateParsingError, "validation state is not valid base64url: %s", err)
	}
	var s ValidationState
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, berrors.New(berrors.ValidationStateParsingError, "validation state is not valid JSON: %s", err)
	}
	return &s, nil
}

// DomainValidationEvidence is the successful-validation record returned by
// validate, per spec §3.
type DomainValidationEvidence struct {
	Domain          string        `json:"domain"`
	Method          Method        `json:"method"`
	BrVersion       string        `json:"brVersion"`
	ValidationDate  time.Time     `json:"validationDate"`

	DNSType       DNSType `json:"dnsType,omitempty"`
	DNSRecordName string  `json:"dnsRecordName,omitempty"`
	DNSServer     string  `json:"dnsServer,omitempty"`

	FileURL string `json:"fileUrl,omitempty"`

	EmailAddress string `json:"emailAddress,omitempty"`

	RandomValue  string `json:"randomValue,omitempty"`
	RequestToken string `json:"requestToken,omitempty"`

	MpicDetails *mpic.Details `json:"mpicDetails,omitempty"`
}
