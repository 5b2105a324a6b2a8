package resolver

import (
	"net"
	"testing"

	"github.com/miekg/dns"
)

func aRecord(name string, ttl uint32, ip string) dns.RR {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: ttl},
		A:   net.ParseIP(ip),
	}
}

func TestCacheDisabledWhenCapacityNonPositive(t *testing.T) {
	c := NewRankedCache(0)
	q := Question{Name: "example.com.", Type: dns.TypeA, Class: dns.ClassINET}
	if c.Insert(0, q, 60, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 60, "1.2.3.4")}), RankAnswer) {
		t.Fatal("expected insert on zero-capacity cache to be rejected")
	}
}

func TestCacheTTLDecay(t *testing.T) {
	c := NewRankedCache(10)
	q := Question{Name: "example.com.", Type: dns.TypeA, Class: dns.ClassINET}
	if !c.Insert(1000, q, 60, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 60, "1.2.3.4")}), RankAnswer) {
		t.Fatal("expected insert to succeed")
	}
	if ttl, _, _, ok := c.Lookup(1000, q); !ok || ttl != 60 {
		t.Fatalf("expected fresh lookup: ok=%v ttl=%d", ok, ttl)
	}
	if ttl, _, _, ok := c.Lookup(1059, q); !ok || ttl != 1 {
		t.Fatalf("expected decayed ttl=1: ok=%v ttl=%d", ok, ttl)
	}
	if _, _, _, ok := c.Lookup(1060, q); ok {
		t.Fatal("expected entry to be expired at insert_time + ttl")
	}
}

// TestCacheRankingMonotonicity checks that among a sequence of inserts on
// the same key, the surviving entry has the max rank among those not
// evicted.
func TestCacheRankingMonotonicity(t *testing.T) {
	c := NewRankedCache(10)
	q := Question{Name: "example.com.", Type: dns.TypeA, Class: dns.ClassINET}

	c.Insert(0, q, 300, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 300, "1.1.1.1")}), RankAdditional)
	if ok := c.Insert(0, q, 300, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 300, "2.2.2.2")}), RankAnswer); !ok {
		t.Fatal("expected higher rank to replace")
	}
	if ok := c.Insert(0, q, 300, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 300, "3.3.3.3")}), RankAdditional); ok {
		t.Fatal("expected lower rank insert to be rejected")
	}
	_, hit, rank, _ := c.Lookup(0, q)
	if rank != RankAnswer {
		t.Fatalf("expected surviving rank RankAnswer, got %s", rank)
	}
	if hit.RDatas[0].(*dns.A).A.String() != "2.2.2.2" {
		t.Fatalf("expected surviving rdata from the RankAnswer insert, got %s", hit.RDatas[0])
	}
	if ok := c.Insert(0, q, 300, NewPositiveNotVerified([]dns.RR{aRecord(q.Name, 300, "4.4.4.4")}), RankAuthAnswer); !ok {
		t.Fatal("expected AuthAnswer to beat Answer")
	}
}

// TestCacheEvictionCorrectness checks that eviction only admits a newcomer
// that outlives the current minimum-expiry entry, and always evicts that
// minimum entry specifically.
func TestCacheEvictionCorrectness(t *testing.T) {
	c := NewRankedCache(2)
	q1 := Question{Name: "a.com.", Type: dns.TypeA}
	q2 := Question{Name: "b.com.", Type: dns.TypeA}
	q3 := Question{Name: "c.com.", Type: dns.TypeA}

	c.Insert(0, q1, 10, NewPositiveNotVerified([]dns.RR{aRecord(q1.Name, 10, "1.1.1.1")}), RankAnswer)
	c.Insert(0, q2, 100, NewPositiveNotVerified([]dns.RR{aRecord(q2.Name, 100, "2.2.2.2")}), RankAnswer)
	if c.Size() != 2 {
		t.Fatalf("expected size 2, got %d", c.Size())
	}
	// q3 outlives q1 (the earliest-expiring entry): eviction should succeed.
	if ok := c.Insert(0, q3, 50, NewPositiveNotVerified([]dns.RR{aRecord(q3.Name, 50, "3.3.3.3")}), RankAnswer); !ok {
		t.Fatal("expected eviction to admit a longer-lived entry")
	}
	if c.Size() != 2 {
		t.Fatalf("expected size to stay at capacity 2, got %d", c.Size())
	}
	if _, _, _, ok := c.Lookup(0, q1); ok {
		t.Fatal("expected q1 (earliest expiry) to have been evicted")
	}
	if _, _, _, ok := c.Lookup(0, q2); !ok {
		t.Fatal("expected q2 to survive eviction")
	}

	// A newcomer that would expire no later than the current minimum is rejected.
	q4 := Question{Name: "d.com.", Type: dns.TypeA}
	if ok := c.Insert(0, q4, 1, NewPositiveNotVerified([]dns.RR{aRecord(q4.Name, 1, "4.4.4.4")}), RankAnswer); ok {
		t.Fatal("expected short-lived newcomer to be rejected at capacity")
	}
}

func TestCacheNegativeLookupEither(t *testing.T) {
	c := NewRankedCache(10)
	soaOwner := "example.com."
	soaQ := Question{Name: soaOwner, Type: dns.TypeSOA, Class: dns.ClassINET}
	soaRR := &dns.SOA{
		Hdr:     dns.RR_Header{Name: soaOwner, Rrtype: dns.TypeSOA, Class: dns.ClassINET, Ttl: 3600},
		Ns:      "ns1.example.com.",
		Mbox:    "hostmaster.example.com.",
		Minttl:  120,
	}
	c.Insert(0, soaQ, 3600, NewPositiveNotVerified([]dns.RR{soaRR}), RankAuthAnswer)

	negQ := Question{Name: "nosuchname.example.com.", Type: dns.TypeA, Class: dns.ClassINET}
	negTTL := min32(soaRR.Minttl, soaRR.Hdr.Ttl)
	c.Insert(0, negQ, negTTL, NewNegative(soaOwner), RankAuthAnswer)

	res, ok := c.LookupEither(0, negQ)
	if !ok || !res.Negative {
		t.Fatalf("expected negative either-result: ok=%v res=%+v", ok, res)
	}
	if len(res.SOARRs) != 1 {
		t.Fatalf("expected one materialized SOA RR, got %d", len(res.SOARRs))
	}
	if res.SOARRs[0].Header().Ttl != negTTL {
		t.Fatalf("expected SOA TTL capped to negative TTL %d, got %d", negTTL, res.SOARRs[0].Header().Ttl)
	}
}

func min32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}

func TestInsertRRsGroupsByOwnerTypeClass(t *testing.T) {
	c := NewRankedCache(10)
	rrs := []dns.RR{
		aRecord("a.example.com.", 100, "1.1.1.1"),
		aRecord("a.example.com.", 50, "1.1.1.2"),
		aRecord("b.example.com.", 200, "2.2.2.2"),
	}
	if !c.InsertRRs(0, rrs, RankAnswer) {
		t.Fatal("expected at least one group to be inserted")
	}
	ttl, hit, _, ok := c.Lookup(0, Question{Name: "a.example.com.", Type: dns.TypeA, Class: dns.ClassINET})
	if !ok || ttl != 50 {
		t.Fatalf("expected grouped TTL = min(100,50) = 50, got ttl=%d ok=%v", ttl, ok)
	}
	if len(hit.RDatas) != 2 {
		t.Fatalf("expected both a.example.com. records grouped together, got %d", len(hit.RDatas))
	}
}
