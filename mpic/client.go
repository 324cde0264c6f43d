package mpic

import "context"

// Client is the injected MPIC transport contract (spec §6.1). The
// perspective-dialing transport is deliberately out of scope here; this
// interface is the extension point a deployment implements (typically backed
// by gRPC calls to geographically distributed agents). An in-process
// reference implementation fanning out over errgroup is provided in
// inprocess.go for tests and examples.
type Client interface {
	// GetMpicDnsResponse queries the primary agent and every configured
	// secondary perspective for the given DNS lookup.
	GetMpicDnsResponse(ctx context.Context, recordType, name string) (*DnsResponse, error)

	// GetPrimaryOnlyDnsResponse queries only the primary agent, used when
	// corroboration has been disabled for this request.
	GetPrimaryOnlyDnsResponse(ctx context.Context, recordType, name string) (*DnsResponse, error)

	// GetMpicFileResponse queries the primary agent and every configured
	// secondary perspective for the given file-validation URL.
	GetMpicFileResponse(ctx context.Context, url string) (*FileResponse, error)

	// GetPrimaryOnlyFileResponse queries only the primary agent.
	GetPrimaryOnlyFileResponse(ctx context.Context, url string) (*FileResponse, error)

	// ShouldEnforceCorroboration reports whether MPIC corroboration must be
	// enforced for this deployment. Defaults to true; a CA operating without
	// secondary perspectives configured may override this to false.
	ShouldEnforceCorroboration() bool
}
