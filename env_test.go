package resolver

import (
	"testing"
	"time"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

func TestEnvironmentNowTracksClock(t *testing.T) {
	fc := clock.NewFake()
	env := &Environment{Cache: NewRankedCache(8), Clock: fc, IDGen: NewIDGenerator(), Log: NewLogger(), Config: DefaultConfig()}
	before := env.now()
	fc.Add(90 * time.Second)
	after := env.now()
	if after-before != 90 {
		t.Fatalf("expected now() to advance by 90s, got delta %d", after-before)
	}
}

func TestRootDelegationCell(t *testing.T) {
	env := testEnvironment()
	if env.rootDelegationCached() != nil {
		t.Fatal("expected an empty root cell before priming")
	}
	d, err := rootDelegation()
	if err != nil {
		t.Fatalf("rootDelegation: %v", err)
	}
	env.setRootDelegation(d)
	got := env.rootDelegationCached()
	if got == nil || got.Zone != "." {
		t.Fatalf("expected the stored root delegation to be returned, got %+v", got)
	}
}

func TestTrustAnchorDSFallsBackToCompiledInAnchor(t *testing.T) {
	env := testEnvironment()
	anchors := env.trustAnchorDS()
	if len(anchors) != 1 || anchors[0] != rootSEPDS {
		t.Fatalf("expected the compiled-in root SEP DS, got %+v", anchors)
	}
}

func TestTrustAnchorDSPrefersConfigured(t *testing.T) {
	env := testEnvironment()
	custom := &dns.DS{Hdr: dns.RR_Header{Name: ".", Rrtype: dns.TypeDS}, KeyTag: 1234}
	env.Config.RootTrustAnchors = []*dns.DS{custom}
	anchors := env.trustAnchorDS()
	if len(anchors) != 1 || anchors[0] != custom {
		t.Fatalf("expected the configured trust anchor to take precedence, got %+v", anchors)
	}
}
