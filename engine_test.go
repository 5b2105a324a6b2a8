package resolver

import (
	"testing"

	"github.com/miekg/dns"
)

func TestExtractTypeFiltersByRrtype(t *testing.T) {
	rrs := []dns.RR{
		aRecord("example.com.", 300, "192.0.2.1"),
		nsRR("example.com.", "ns1.example.com."),
		nsRR("example.com.", "ns2.example.com."),
	}
	ns := extractType(rrs, dns.TypeNS)
	if len(ns) != 2 {
		t.Fatalf("expected 2 NS records, got %d", len(ns))
	}
	a := extractType(rrs, dns.TypeA)
	if len(a) != 1 {
		t.Fatalf("expected 1 A record, got %d", len(a))
	}
}

func TestMinUint32(t *testing.T) {
	if minUint32(5, 9) != 5 {
		t.Fatal("expected 5")
	}
	if minUint32(9, 5) != 5 {
		t.Fatal("expected 5")
	}
}

func TestAdvanceWithinSubdomainDoesNotCountTowardDepth(t *testing.T) {
	cur := &Delegation{Zone: "com."}
	next := &Delegation{Zone: "example.com."}
	depth := 0
	if err := advance(&cur, next, &depth); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if depth != 0 {
		t.Fatalf("expected depth to stay at 0 for a sub-level step, got %d", depth)
	}
	if cur.Zone != "example.com." {
		t.Fatalf("expected cur to advance to example.com., got %s", cur.Zone)
	}
}

func TestAdvanceNonSubdomainCountsTowardDepthAndCapsOut(t *testing.T) {
	cur := &Delegation{Zone: "a.example."}
	depth := maxDelegationDepth - 1
	next := &Delegation{Zone: "b.example."}
	if err := advance(&cur, next, &depth); err != nil {
		t.Fatalf("advance: %v", err)
	}
	if depth != maxDelegationDepth {
		t.Fatalf("expected depth %d, got %d", maxDelegationDepth, depth)
	}
	next2 := &Delegation{Zone: "c.example."}
	err := advance(&cur, next2, &depth)
	if err == nil {
		t.Fatal("expected an error once depth exceeds the cap")
	}
	qe, ok := err.(*QueryError)
	if !ok || qe.Kind != KindServerFailure {
		t.Fatalf("expected KindServerFailure, got %v", err)
	}
}

func TestIterativeReusesCachedNSWithoutNetworkAccess(t *testing.T) {
	env := testEnvironment()
	root, err := rootDelegation()
	if err != nil {
		t.Fatalf("rootDelegation: %v", err)
	}

	env.Cache.Insert(env.now(), Question{Name: "com.", Type: dns.TypeNS, Class: dns.ClassINET}, 3600,
		NewPositiveNotVerified([]dns.RR{nsRR("com.", "a.gtld-servers.net.")}), RankAuthAnswer)
	env.Cache.InsertRRs(env.now(), []dns.RR{aRecord("a.gtld-servers.net.", 3600, "192.5.6.30")}, RankAdditional)

	got, err := iterative(nil, env, root, []string{".", "com."}, nil)
	if err != nil {
		t.Fatalf("iterative: %v", err)
	}
	if got.Zone != "com." {
		t.Fatalf("expected to land on com. using the cached NS set, got %s", got.Zone)
	}
	if got.Fresh != FreshCached {
		t.Fatalf("expected the cache-sourced delegation to report FreshCached, got %v", got.Fresh)
	}
}

func TestIterativeStopsAtRootWhenNoFurtherSupers(t *testing.T) {
	env := testEnvironment()
	root, err := rootDelegation()
	if err != nil {
		t.Fatalf("rootDelegation: %v", err)
	}
	got, err := iterative(nil, env, root, []string{"."}, nil)
	if err != nil {
		t.Fatalf("iterative: %v", err)
	}
	if got.Zone != "." {
		t.Fatalf("expected to stay at the root zone, got %s", got.Zone)
	}
}
