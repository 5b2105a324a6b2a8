package resolver

import (
	"testing"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

func testEnvironment() *Environment {
	return &Environment{
		Cache:  NewRankedCache(64),
		Clock:  clock.NewFake(),
		IDGen:  NewIDGenerator(),
		Log:    NewLogger(),
		Config: DefaultConfig(),
	}
}

func TestBuildNorecQuerySetsFlags(t *testing.T) {
	env := testEnvironment()
	m, err := buildNorecQuery(env, true, "example.com.", dns.TypeA)
	if err != nil {
		t.Fatalf("buildNorecQuery: %v", err)
	}
	if m.RecursionDesired || m.AuthenticatedData || m.CheckingDisabled {
		t.Fatalf("expected RD=AD=CD=0, got RD=%v AD=%v CD=%v", m.RecursionDesired, m.AuthenticatedData, m.CheckingDisabled)
	}
	opt := m.IsEdns0()
	if opt == nil {
		t.Fatal("expected an OPT record")
	}
	if !opt.Do() {
		t.Fatal("expected DO bit set when dnssecOK is true")
	}
	if opt.UDPSize() != defaultUDPBufSize {
		t.Fatalf("expected UDP buffer size %d, got %d", defaultUDPBufSize, opt.UDPSize())
	}
}

func TestBuildNorecQueryDOOffWhenNotRequested(t *testing.T) {
	env := testEnvironment()
	m, err := buildNorecQuery(env, false, "example.com.", dns.TypeA)
	if err != nil {
		t.Fatalf("buildNorecQuery: %v", err)
	}
	if m.IsEdns0().Do() {
		t.Fatal("expected DO bit clear when dnssecOK is false")
	}
}

func TestCheckNorecResponseIDMismatch(t *testing.T) {
	q := new(dns.Msg)
	q.Id = 1
	q.Question = []dns.Question{{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	r := new(dns.Msg)
	r.Id = 2
	r.Question = q.Question
	err := checkNorecResponse(q, r)
	if qe, ok := err.(*QueryError); !ok || qe.Kind != KindSequenceNumberMismatch {
		t.Fatalf("expected KindSequenceNumberMismatch, got %v", err)
	}
}

func TestCheckNorecResponseQuestionMismatch(t *testing.T) {
	q := new(dns.Msg)
	q.Id = 1
	q.Question = []dns.Question{{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	r := new(dns.Msg)
	r.Id = 1
	r.Question = []dns.Question{{Name: "other.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	err := checkNorecResponse(q, r)
	if qe, ok := err.(*QueryError); !ok || qe.Kind != KindQuestionMismatch {
		t.Fatalf("expected KindQuestionMismatch, got %v", err)
	}
}

func TestCheckNorecResponseFormErrEmptyQuestionAllowed(t *testing.T) {
	q := new(dns.Msg)
	q.Id = 1
	q.Question = []dns.Question{{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	r := new(dns.Msg)
	r.Id = 1
	r.Rcode = dns.RcodeFormatError
	if err := checkNorecResponse(q, r); err != nil {
		t.Fatalf("expected FORMERR with empty question to be allowed, got %v", err)
	}
}

func TestCheckNorecResponseGoodMatch(t *testing.T) {
	q := new(dns.Msg)
	q.Id = 1
	q.Question = []dns.Question{{Name: "example.com.", Qtype: dns.TypeA, Qclass: dns.ClassINET}}
	r := new(dns.Msg)
	r.Id = 1
	r.Question = q.Question
	if err := checkNorecResponse(q, r); err != nil {
		t.Fatalf("expected matching response to pass, got %v", err)
	}
}

func TestRcodeToKind(t *testing.T) {
	cases := map[int]Kind{
		dns.RcodeNameError:     KindNameError,
		dns.RcodeServerFailure: KindServerFailure,
		dns.RcodeRefused:       KindOperationRefused,
	}
	for rcode, want := range cases {
		if got := rcodeToKind(rcode); got != want {
			t.Fatalf("rcodeToKind(%d) = %v, want %v", rcode, got, want)
		}
	}
}
