package mpic

import (
	"context"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/sunforge-ca/dcv/bdns"
	"github.com/sunforge-ca/dcv/fileprobe"
)

// Perspective is a single named vantage point the in-process client can
// query: either a DNS resolver bound to that perspective's view of the
// network, a file-fetching client bound likewise, or both.
type Perspective struct {
	AgentID string
	DNS     bdns.Client
	File    *fileprobe.Client
}

// InProcessClient is a reference Client implementation that fans out to a
// fixed set of in-process Perspectives using golang.org/x/sync/errgroup,
// rather than dialing out to independently operated remote agents over
// gRPC. It exists for tests, examples, and single-process deployments; a
// production multi-perspective deployment should implement Client against
// its own agent transport instead.
type InProcessClient struct {
	Primary             Perspective
	Secondaries         []Perspective
	EnforceCorroboration bool
}

func (c *InProcessClient) ShouldEnforceCorroboration() bool {
	return c.EnforceCorroboration
}

func (c *InProcessClient) GetPrimaryOnlyDnsResponse(ctx context.Context, recordType, name string) (*DnsResponse, error) {
	return &DnsResponse{Primary: queryDNS(ctx, c.Primary, recordType, name)}, nil
}

func (c *InProcessClient) GetMpicDnsResponse(ctx context.Context, recordType, name string) (*DnsResponse, error) {
	resp := &DnsResponse{Primary: queryDNS(ctx, c.Primary, recordType, name)}
	resp.Secondaries = make([]AgentResponse, len(c.Secondaries))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range c.Secondaries {
		i, p := i, p
		g.Go(func() error {
			resp.Secondaries[i] = queryDNS(ctx, p, recordType, name)
			return nil
		})
	}
	g.Wait()
	return resp, nil
}

func (c *InProcessClient) GetPrimaryOnlyFileResponse(ctx context.Context, url string) (*FileResponse, error) {
	return &FileResponse{Primary: queryFile(ctx, c.Primary, url)}, nil
}

func (c *InProcessClient) GetMpicFileResponse(ctx context.Context, url string) (*FileResponse, error) {
	resp := &FileResponse{Primary: queryFile(ctx, c.Primary, url)}
	resp.Secondaries = make([]AgentResponse, len(c.Secondaries))

	g, ctx := errgroup.WithContext(ctx)
	for i, p := range c.Secondaries {
		i, p := i, p
		g.Go(func() error {
			resp.Secondaries[i] = queryFile(ctx, p, url)
			return nil
		})
	}
	g.Wait()
	return resp, nil
}

func queryDNS(ctx context.Context, p Perspective, recordType, name string) AgentResponse {
	if p.DNS == nil {
		return AgentResponse{AgentID: p.AgentID, Found: false}
	}
	switch recordType {
	case "TXT":
		vals, err := p.DNS.LookupTXT(ctx, name)
		if err != nil {
			return AgentResponse{AgentID: p.AgentID, Err: err}
		}
		if len(vals) == 0 {
			return AgentResponse{AgentID: p.AgentID, Found: false}
		}
		return AgentResponse{AgentID: p.AgentID, Found: true, Value: strings.Join(vals, "\n")}
	case "CNAME":
		target, err := p.DNS.LookupCNAME(ctx, name)
		if err != nil {
			return AgentResponse{AgentID: p.AgentID, Err: err}
		}
		return AgentResponse{AgentID: p.AgentID, Found: target != "", Value: target}
	case "CAA":
		records, err := p.DNS.LookupCAA(ctx, name)
		if err != nil {
			return AgentResponse{AgentID: p.AgentID, Err: err}
		}
		if len(records) == 0 {
			return AgentResponse{AgentID: p.AgentID, Found: false}
		}
		values := make([]string, len(records))
		for i, r := range records {
			values[i] = r.Value
		}
		return AgentResponse{AgentID: p.AgentID, Found: true, Value: strings.Join(values, "\n")}
	default:
		return AgentResponse{AgentID: p.AgentID, Err: errUnsupportedRecordType(recordType)}
	}
}

func queryFile(ctx context.Context, p Perspective, url string) AgentResponse {
	if p.File == nil {
		return AgentResponse{AgentID: p.AgentID, Found: false}
	}
	resp, err := p.File.Fetch(ctx, url)
	if err != nil {
		return AgentResponse{AgentID: p.AgentID, Err: err}
	}
	if resp.DcvError != nil {
		return AgentResponse{AgentID: p.AgentID, Found: false}
	}
	return AgentResponse{AgentID: p.AgentID, Found: true, Value: string(resp.Body)}
}

type unsupportedRecordTypeError string

func (e unsupportedRecordTypeError) Error() string {
	return "unsupported MPIC DNS record type: " + string(e)
}

func errUnsupportedRecordType(recordType string) error {
	return unsupportedRecordTypeError(recordType)
}

var _ Client = (*InProcessClient)(nil)
