package bdns

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startTestServer spins up a real in-process UDP DNS server answering with
// the given handler (a dns.Server serving a loopback PacketConn), rather
// than a hand-rolled fake resolver interface.
func startTestServer(t *testing.T, handler dns.HandlerFunc) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	server := &dns.Server{PacketConn: pc, Handler: handler}
	go server.ActivateAndServe()
	t.Cleanup(func() {
		server.Shutdown()
	})
	return pc.LocalAddr().String()
}

func TestLookupTXT(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		if r.Question[0].Name == "present.example.com." {
			rr, _ := dns.NewRR(`present.example.com. 60 IN TXT "hello-world"`)
			m.Answer = append(m.Answer, rr)
		}
		w.WriteMsg(m)
	})
	r := NewResolver(2*time.Second, []string{addr})

	txts, err := r.LookupTXT(context.Background(), "present.example.com")
	if err != nil {
		t.Fatalf("LookupTXT: %v", err)
	}
	if len(txts) != 1 || txts[0] != "hello-world" {
		t.Fatalf("LookupTXT = %v, want [hello-world]", txts)
	}

	_, err = r.LookupTXT(context.Background(), "absent.example.com")
	if err == nil {
		t.Fatalf("expected an error for a domain with no TXT records")
	}
}

func TestLookupCAA(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		rr, _ := dns.NewRR(`example.com. 60 IN CAA 0 issue "letsencrypt.org"`)
		m.Answer = append(m.Answer, rr)
		w.WriteMsg(m)
	})
	r := NewResolver(2*time.Second, []string{addr})

	caas, err := r.LookupCAA(context.Background(), "example.com")
	if err != nil {
		t.Fatalf("LookupCAA: %v", err)
	}
	if len(caas) != 1 || caas[0].Tag != "issue" {
		t.Fatalf("LookupCAA = %v, want a single issue record", caas)
	}
}

func TestLookupCNAMENoRecord(t *testing.T) {
	addr := startTestServer(t, func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		m.Rcode = dns.RcodeNameError
		w.WriteMsg(m)
	})
	r := NewResolver(2*time.Second, []string{addr})

	target, err := r.LookupCNAME(context.Background(), "nonexistent.example.com")
	if err != nil {
		t.Fatalf("LookupCNAME: %v", err)
	}
	if target != "" {
		t.Fatalf("LookupCNAME = %q, want empty string for NXDOMAIN", target)
	}
}
