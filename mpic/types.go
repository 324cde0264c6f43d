// Package mpic implements Multi-Perspective Issuance Corroboration: fanning
// a primary validation result out to secondary network perspectives and
// deciding whether the primary result is corroborated, per spec §4.5. The
// transport to the primary/secondary perspectives is injected as MpicClient
// (spec §6.1); this package never dials a perspective directly.
package mpic

// CorroborationStatus is the outcome of an MPIC decision for a single
// validation attempt.
type CorroborationStatus string

const (
	Corroborated        CorroborationStatus = "CORROBORATED"
	NonCorroborated     CorroborationStatus = "NON_CORROBORATED"
	ValueNotFound        CorroborationStatus = "VALUE_NOT_FOUND"
	PrimaryAgentFailure  CorroborationStatus = "PRIMARY_AGENT_FAILURE"
	ErrorStatus          CorroborationStatus = "ERROR"
)

// QueryType distinguishes the two kinds of probes MPIC corroborates.
type QueryType string

const (
	QueryTypeDNS  QueryType = "DNS"
	QueryTypeFile QueryType = "FILE"
)

// AgentResponse is a single perspective's answer to a DNS or file query.
type AgentResponse struct {
	AgentID   string
	Found     bool
	Value     string
	Err       error
}

// DnsResponse is the shape returned by MpicClient's DNS query methods: a
// primary response plus zero or more secondary perspective responses.
type DnsResponse struct {
	Primary    AgentResponse
	Secondaries []AgentResponse
}

// FileResponse is the file-probe analogue of DnsResponse.
type FileResponse struct {
	Primary    AgentResponse
	Secondaries []AgentResponse
}

// Details records the full corroboration outcome for inclusion in
// DomainValidationEvidence.MpicDetails, per spec §3.
type Details struct {
	QueryType               QueryType
	Status                  CorroborationStatus
	PrimaryFound            bool
	PrimaryValue            string
	PerAgentCorroboration   map[string]bool
	CorroboratingAgentCount int
	TotalAgentCount         int
}
