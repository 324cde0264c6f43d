package psl

import (
	"strings"
	"testing"
)

func testEngine(t *testing.T) *Engine {
	t.Helper()
	e, err := Default()
	if err != nil {
		t.Fatalf("Default(): %v", err)
	}
	return e
}

// TestBaseDomain replicates the shape of the EffectiveTLDPlusOne fixture
// table from the globalsign-publicsuffix reference package and the
// ExtractSuffix table from the boulder-lineage iana_test.go fixtures, scoped
// to rules present in our curated data file.
func TestBaseDomain(t *testing.T) {
	cases := []struct {
		domain   string
		wantBase string
		wantErr  bool
	}{
		{domain: "example.com", wantBase: "example.com"},
		{domain: "www.example.com", wantBase: "example.com"},
		{domain: "a.b.c.example.com", wantBase: "example.com"},
		{domain: "example.co.uk", wantBase: "example.co.uk"},
		{domain: "www.example.co.uk", wantBase: "example.co.uk"},
		{domain: "kyoto.jp", wantErr: true},
		{domain: "ide.kyoto.jp", wantErr: true},
		{domain: "foo.ide.kyoto.jp", wantBase: "foo.ide.kyoto.jp"},
		{domain: "kobe.jp", wantErr: true},
		{domain: "city.kobe.jp", wantBase: "city.kobe.jp"},
		{domain: "c.kobe.jp", wantErr: true},
		{domain: "x.c.kobe.jp", wantBase: "x.c.kobe.jp"},
		{domain: "www.ck", wantBase: "www.ck"},
		{domain: "foo.www.ck", wantBase: "www.ck"},
		{domain: "foo.ck", wantErr: true},
		{domain: "foo.bar.ck", wantBase: "foo.bar.ck"},
		{domain: "k12.ak.us", wantErr: true},
		{domain: "foo.k12.ak.us", wantBase: "foo.k12.ak.us"},
		{domain: "foo.blogspot.com", wantBase: "foo.blogspot.com"},
		{domain: "bar.foo.blogspot.com", wantBase: "foo.blogspot.com"},
		{domain: "com", wantErr: true},
		{domain: "co.uk", wantErr: true},
	}
	e := testEngine(t)
	for _, c := range cases {
		t.Run(c.domain, func(t *testing.T) {
			got, err := e.BaseDomain(c.domain)
			if c.wantErr {
				if err == nil {
					t.Fatalf("BaseDomain(%q) = %q, want error", c.domain, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("BaseDomain(%q): unexpected error %v", c.domain, err)
			}
			if got != c.wantBase {
				t.Errorf("BaseDomain(%q) = %q, want %q", c.domain, got, c.wantBase)
			}
		})
	}
}

func TestIsPublicSuffix(t *testing.T) {
	cases := []struct {
		domain string
		want   bool
	}{
		{"com", true},
		{"co.uk", true},
		{"example.com", false},
		{"kobe.jp", true},
		{"city.kobe.jp", false},
		{"c.kobe.jp", true},
		{"www.ck", false},
		{"foo.ck", true},
		{"blogspot.com", true},
		{"foo.blogspot.com", false},
	}
	e := testEngine(t)
	for _, c := range cases {
		if got := e.IsPublicSuffix(c.domain); got != c.want {
			t.Errorf("IsPublicSuffix(%q) = %v, want %v", c.domain, got, c.want)
		}
	}
}

func TestIsRegistrySuffix(t *testing.T) {
	e := testEngine(t)
	if e.IsRegistrySuffix("blogspot.com") {
		t.Errorf("IsRegistrySuffix(blogspot.com) = true, private-section rules must not count")
	}
	if !e.IsRegistrySuffix("com") {
		t.Errorf("IsRegistrySuffix(com) = false, want true")
	}
	if got := e.RegistrySuffix("foo.blogspot.com"); got != "com" {
		t.Errorf("RegistrySuffix(foo.blogspot.com) = %q, want %q", got, "com")
	}
}

func TestDomainAndParents(t *testing.T) {
	e := testEngine(t)
	got := e.DomainAndParents("a.b.example.co.uk")
	want := []string{"a.b.example.co.uk", "b.example.co.uk", "example.co.uk"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("DomainAndParents = %v, want %v", got, want)
	}
}

func TestOverride(t *testing.T) {
	e, err := NewEngine(strings.NewReader("com\n"), Override{Rule: "internal.example"})
	if err != nil {
		t.Fatalf("NewEngine: %v", err)
	}
	if !e.IsPublicSuffix("internal.example") {
		t.Errorf("override rule internal.example was not applied")
	}
	base, berr := e.BaseDomain("host.internal.example")
	if berr != nil {
		t.Fatalf("BaseDomain: %v", berr)
	}
	if base != "host.internal.example" {
		t.Errorf("BaseDomain(host.internal.example) = %q, want %q", base, "host.internal.example")
	}
}
