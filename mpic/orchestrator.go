package mpic

import (
	"context"
	"time"

	"github.com/jmhodges/clock"
	"golang.org/x/exp/maps"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/blog"
	"github.com/sunforge-ca/dcv/metrics"
)

// MinCorroboratingRatio is the fraction of data-bearing secondary
// perspectives that must agree with the primary for a NON_CORROBORATED
// verdict to instead be reported as CORROBORATED.
const MinCorroboratingRatio = 0.5

// Matcher reports whether a secondary perspective's response is consistent
// with (corroborates) the primary's.
type Matcher func(primary, secondary AgentResponse) bool

// Orchestrator decides corroboration status from an MpicClient's raw
// responses, per the decision table in spec §4.5.
type Orchestrator struct {
	client  Client
	log     blog.Logger
	metrics *metrics.MPICMetrics
	clk     clock.Clock
}

// NewOrchestrator constructs an Orchestrator around client.
func NewOrchestrator(client Client, opts ...func(*Orchestrator)) *Orchestrator {
	o := &Orchestrator{client: client, log: blog.NewStdr("mpic"), clk: clock.New()}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

func WithLogger(l blog.Logger) func(*Orchestrator)        { return func(o *Orchestrator) { o.log = l } }
func WithMetrics(m *metrics.MPICMetrics) func(*Orchestrator) { return func(o *Orchestrator) { o.metrics = m } }

// WithClock overrides the Orchestrator's source of time, for deterministic
// tests of decision latency metrics.
func WithClock(c clock.Clock) func(*Orchestrator) { return func(o *Orchestrator) { o.clk = c } }

// CorroborateDNS queries the primary and secondary perspectives for a DNS
// lookup and returns the corroboration decision. matches is applied to each
// secondary against the primary response to decide whether it agrees.
func (o *Orchestrator) CorroborateDNS(ctx context.Context, recordType, name string, matches Matcher) (*Details, *berrors.DcvError) {
	if !o.client.ShouldEnforceCorroboration() {
		resp, err := o.client.GetPrimaryOnlyDnsResponse(ctx, recordType, name)
		if err != nil {
			return nil, berrors.New(berrors.MPICInvalidResponse, "primary-only DNS query for %q failed: %s", name, err)
		}
		return o.decide(QueryTypeDNS, resp.Primary, nil, matches), nil
	}

	resp, err := o.client.GetMpicDnsResponse(ctx, recordType, name)
	if err != nil {
		return nil, berrors.New(berrors.MPICInvalidResponse, "MPIC DNS query for %q failed: %s", name, err)
	}
	return o.decide(QueryTypeDNS, resp.Primary, resp.Secondaries, matches), nil
}

// PrimaryOnlyDNS queries only the primary perspective, regardless of the
// client's corroboration-enforcement setting. Used by the request-token
// discovery phase, which must avoid multi-perspective traffic for what is
// effectively a scan over an applicant-controlled, arbitrary-length value
// (spec §4.6, §4.8).
func (o *Orchestrator) PrimaryOnlyDNS(ctx context.Context, recordType, name string) (*Details, *berrors.DcvError) {
	resp, err := o.client.GetPrimaryOnlyDnsResponse(ctx, recordType, name)
	if err != nil {
		return nil, berrors.New(berrors.MPICInvalidResponse, "primary-only DNS query for %q failed: %s", name, err)
	}
	return o.decide(QueryTypeDNS, resp.Primary, nil, nil), nil
}

// PrimaryOnlyFile is the file-validation analogue of PrimaryOnlyDNS.
func (o *Orchestrator) PrimaryOnlyFile(ctx context.Context, url string) (*Details, *berrors.DcvError) {
	resp, err := o.client.GetPrimaryOnlyFileResponse(ctx, url)
	if err != nil {
		return nil, berrors.New(berrors.MPICInvalidResponse, "primary-only file query for %q failed: %s", url, err)
	}
	return o.decide(QueryTypeFile, resp.Primary, nil, nil), nil
}

// CorroborateFile is the file-validation analogue of CorroborateDNS.
func (o *Orchestrator) CorroborateFile(ctx context.Context, url string, matches Matcher) (*Details, *berrors.DcvError) {
	if !o.client.ShouldEnforceCorroboration() {
		resp, err := o.client.GetPrimaryOnlyFileResponse(ctx, url)
		if err != nil {
			return nil, berrors.New(berrors.MPICInvalidResponse, "primary-only file query for %q failed: %s", url, err)
		}
		return o.decide(QueryTypeFile, resp.Primary, nil, matches), nil
	}

	resp, err := o.client.GetMpicFileResponse(ctx, url)
	if err != nil {
		return nil, berrors.New(berrors.MPICInvalidResponse, "MPIC file query for %q failed: %s", url, err)
	}
	return o.decide(QueryTypeFile, resp.Primary, resp.Secondaries, matches), nil
}

func (o *Orchestrator) decide(qt QueryType, primary AgentResponse, secondaries []AgentResponse, matches Matcher) *Details {
	start := o.clk.Now()
	d := &Details{
		QueryType:             qt,
		PerAgentCorroboration: make(map[string]bool),
		TotalAgentCount:       len(secondaries),
		PrimaryFound:          primary.Found,
		PrimaryValue:          primary.Value,
	}

	if primary.Err != nil || !primary.Found {
		d.Status = PrimaryAgentFailure
		o.observe(d, o.clk.Since(start))
		return d
	}

	if len(secondaries) == 0 {
		// No secondary perspectives configured (or corroboration disabled):
		// nothing refutes the primary result, so it is reported as
		// Corroborated.
		d.Status = Corroborated
		o.observe(d, o.clk.Since(start))
		return d
	}

	dataBearing := 0
	corroborating := 0
	for _, s := range secondaries {
		if s.Err != nil || !s.Found {
			// A failed secondary with no data is excluded from the
			// corroboration ratio's denominator, but still recorded false
			// for audit visibility.
			d.PerAgentCorroboration[s.AgentID] = false
			continue
		}
		dataBearing++
		agrees := matches(primary, s)
		d.PerAgentCorroboration[s.AgentID] = agrees
		if agrees {
			corroborating++
		}
	}
	d.CorroboratingAgentCount = corroborating

	switch {
	case dataBearing == 0:
		d.Status = ValueNotFound
	case float64(corroborating)/float64(dataBearing) >= MinCorroboratingRatio:
		d.Status = Corroborated
	default:
		d.Status = NonCorroborated
	}

	o.observe(d, o.clk.Since(start))
	return d
}

func (o *Orchestrator) observe(d *Details, elapsed time.Duration) {
	if o.metrics == nil {
		return
	}
	o.metrics.Decisions.WithLabelValues(string(d.QueryType), string(d.Status)).Inc()
	o.metrics.DecisionTime.WithLabelValues(string(d.QueryType)).Observe(elapsed.Seconds())
}

// AgentIDs returns the set of agent IDs recorded in d.PerAgentCorroboration.
func AgentIDs(d *Details) []string {
	return maps.Keys(d.PerAgentCorroboration)
}
