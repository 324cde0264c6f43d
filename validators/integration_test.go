// Package validators holds no code of its own; this integration test
// exercises the file probe client that the ACME http-01 validator drives
// against a real in-process challenge server instead of fakes, using
// github.com/letsencrypt/challtestsrv.
package validators

import (
	"context"
	"testing"
	"time"

	"github.com/letsencrypt/challtestsrv"

	"github.com/sunforge-ca/dcv/berrors"
	"github.com/sunforge-ca/dcv/fileprobe"
	"github.com/sunforge-ca/dcv/psl"
	"github.com/sunforge-ca/dcv/validators/acme"
)

// TestFileProbeAgainstChallTestServer exercises fileprobe.Client — the
// transport ValidateHTTP01 drives through the MPIC orchestrator — against a
// real in-process HTTP server, following the ACME http-01 key-authorization
// format the File/ACME validators both check. ValidateHTTP01 itself always
// dials port 80 on the normalized domain, which challtestsrv cannot bind to
// in a test process, so this asserts the underlying probe's success and
// failure outcomes directly rather than going through the validator.
func TestFileProbeAgainstChallTestServer(t *testing.T) {
	srv, err := challtestsrv.New(challtestsrv.Config{
		HTTPOneAddrs: []string{"127.0.0.1:14000"},
	})
	if err != nil {
		t.Fatalf("challtestsrv.New: %v", err)
	}
	go srv.Run()
	defer srv.Shutdown()

	const token = "integration-token"
	const thumbprint = "integration-thumbprint"
	keyAuth := keyAuthorization(token, thumbprint)
	srv.AddHTTPOneChallenge(token, keyAuth)
	defer srv.DeleteHTTPOneChallenge(token)

	pslEngine, err := psl.Default()
	if err != nil {
		t.Fatalf("psl.Default: %v", err)
	}
	fileClient := fileprobe.NewClient(pslEngine)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "http://127.0.0.1:14000" + acme.ChallengePath + token
	resp, err := fileClient.Fetch(ctx, url)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if resp.DcvError != nil {
		t.Fatalf("Fetch returned DcvError: %v", resp.DcvError)
	}
	if string(resp.Body) != keyAuth {
		t.Fatalf("body = %q, want key authorization %q", resp.Body, keyAuth)
	}

	missing, err := fileClient.Fetch(ctx, "http://127.0.0.1:14000"+acme.ChallengePath+"no-such-token")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if missing.DcvError == nil || missing.DcvError.Type != berrors.FileValidationNotFound {
		t.Fatalf("DcvError = %v, want FileValidationNotFound", missing.DcvError)
	}
}

func keyAuthorization(token, thumbprint string) string {
	return token + "." + thumbprint
}
