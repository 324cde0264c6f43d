// Package metrics collects the Prometheus counters/histograms shared by the
// probe clients and the MPIC orchestrator, using one struct of named
// collectors per component rather than a single flat registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// DNSMetrics holds counters for the DNS probe client.
type DNSMetrics struct {
	Queries    *prometheus.CounterVec // labels: record_type, result
	QueryTime  *prometheus.HistogramVec
}

// NewDNSMetrics registers and returns DNS probe metrics on reg. If reg is
// nil, a private registry is used (useful for tests).
func NewDNSMetrics(reg prometheus.Registerer) *DNSMetrics {
	m := &DNSMetrics{
		Queries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcv_dns_queries_total",
			Help: "Count of DNS probe queries by record type and result.",
		}, []string{"record_type", "result"}),
		QueryTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dcv_dns_query_duration_seconds",
			Help: "DNS probe query latency by record type.",
		}, []string{"record_type"}),
	}
	register(reg, m.Queries, m.QueryTime)
	return m
}

// FileMetrics holds counters for the HTTP file probe client.
type FileMetrics struct {
	Redirects *prometheus.CounterVec // labels: outcome (followed|rejected)
	Fetches   *prometheus.CounterVec // labels: result
	FetchTime *prometheus.HistogramVec
}

// NewFileMetrics registers and returns file probe metrics on reg.
func NewFileMetrics(reg prometheus.Registerer) *FileMetrics {
	m := &FileMetrics{
		Redirects: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcv_file_redirects_total",
			Help: "Count of HTTP redirects encountered during file validation, by outcome.",
		}, []string{"outcome"}),
		Fetches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcv_file_fetches_total",
			Help: "Count of file validation fetch attempts by result.",
		}, []string{"result"}),
		FetchTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dcv_file_fetch_duration_seconds",
			Help: "File validation fetch latency.",
		}, []string{"result"}),
	}
	register(reg, m.Redirects, m.Fetches, m.FetchTime)
	return m
}

// MPICMetrics holds counters for the MPIC orchestrator.
type MPICMetrics struct {
	Decisions    *prometheus.CounterVec // labels: query_type, status
	DecisionTime *prometheus.HistogramVec
}

// NewMPICMetrics registers and returns MPIC orchestrator metrics on reg.
func NewMPICMetrics(reg prometheus.Registerer) *MPICMetrics {
	m := &MPICMetrics{
		Decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dcv_mpic_decisions_total",
			Help: "Count of MPIC corroboration decisions by query type and resulting status.",
		}, []string{"query_type", "status"}),
		DecisionTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name: "dcv_mpic_decision_duration_seconds",
			Help: "Time spent deciding corroboration status from an MpicClient's raw responses.",
		}, []string{"query_type"}),
	}
	register(reg, m.Decisions, m.DecisionTime)
	return m
}

func register(reg prometheus.Registerer, collectors ...prometheus.Collector) {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	for _, c := range collectors {
		// Ignore AlreadyRegisteredError so tests can call New* repeatedly
		// against the default registry without panicking.
		_ = reg.Register(c)
	}
}
