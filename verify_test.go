package resolver

import (
	"crypto/rsa"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// signedFixture builds a self-signed A RRset plus the RRSIG and DNSKEY
// needed to validate it.
func signedFixture(t *testing.T, zone string) (*dns.DNSKEY, *dns.RRSIG, []dns.RR) {
	t.Helper()
	key := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: zone, Rrtype: dns.TypeDNSKEY, Class: dns.ClassINET, Ttl: 3600},
		Algorithm: dns.RSASHA256,
		Flags:     256,
		Protocol:  3,
	}
	priv, err := key.Generate(1024)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	a := &dns.A{
		Hdr: dns.RR_Header{Name: "www." + zone, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
	}
	sig := &dns.RRSIG{
		Hdr:        dns.RR_Header{Name: "www." + zone, Rrtype: dns.TypeRRSIG, Class: dns.ClassINET, Ttl: 300},
		TypeCovered: dns.TypeA,
		Algorithm:  dns.RSASHA256,
		Labels:     uint8(dns.CountLabel(zone)) + 1,
		OrigTtl:    300,
		Expiration: uint32(time.Now().Add(time.Hour).Unix()),
		Inception:  uint32(time.Now().Add(-time.Hour).Unix()),
		KeyTag:     key.KeyTag(),
		SignerName: zone,
	}
	rk := priv.(*rsa.PrivateKey)
	if err := sig.Sign(rk, []dns.RR{a}); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return key, sig, []dns.RR{a}
}

func TestVerifyRRsetValidSignature(t *testing.T) {
	zone := "example.com."
	key, sig, rrs := signedFixture(t, zone)

	hit, err := VerifyRRset(DefaultVerifier{}, []*dns.DNSKEY{key}, zone, time.Now().Unix(), rrs, []dns.RR{sig}, "www."+zone, dns.TypeA)
	if err != nil {
		t.Fatalf("VerifyRRset: %v", err)
	}
	if hit.Kind != KindPositiveValid {
		t.Fatalf("expected KindPositiveValid, got %v", hit.Kind)
	}
	if len(hit.RRSIGs) != 1 {
		t.Fatalf("expected one validating RRSIG, got %d", len(hit.RRSIGs))
	}
}

func TestVerifyRRsetWrongKeyNotVerified(t *testing.T) {
	zone := "example.com."
	_, sig, rrs := signedFixture(t, zone)

	// A key with a different algorithm never matches the RRSIG's
	// (key tag, algorithm) pair, so VerifyRRset must fall back to
	// KindPositiveNotVerified instead of erroring.
	otherKey := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: zone, Rrtype: dns.TypeDNSKEY},
		Algorithm: dns.RSASHA512,
		Flags:     256,
		Protocol:  3,
	}
	if _, err := otherKey.Generate(1024); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	hit, err := VerifyRRset(DefaultVerifier{}, []*dns.DNSKEY{otherKey}, zone, time.Now().Unix(), rrs, []dns.RR{sig}, "www."+zone, dns.TypeA)
	if err != nil {
		t.Fatalf("VerifyRRset: %v", err)
	}
	if hit.Kind != KindPositiveNotVerified {
		t.Fatalf("expected KindPositiveNotVerified when no key matches the RRSIG's key tag, got %v", hit.Kind)
	}
}

func TestVerifyRRsetNoCandidates(t *testing.T) {
	_, err := VerifyRRset(DefaultVerifier{}, nil, "example.com.", time.Now().Unix(), nil, nil, "www.example.com.", dns.TypeA)
	if err != ErrNoRRset {
		t.Fatalf("expected ErrNoRRset, got %v", err)
	}
}

func TestVerifyDS(t *testing.T) {
	key := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeDNSKEY},
		Algorithm: dns.RSASHA256,
		Flags:     257,
		Protocol:  3,
	}
	if _, err := key.Generate(1024); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ds := key.ToDS(dns.SHA256)
	if err := verifyDS("example.com.", key, ds); err != nil {
		t.Fatalf("expected matching DS to verify, got %v", err)
	}
	ds.Digest = "00"
	if err := verifyDS("example.com.", key, ds); err == nil {
		t.Fatal("expected mismatched digest to fail verification")
	}
}

func TestSelectSEPDNSKeys(t *testing.T) {
	ksk := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeDNSKEY},
		Algorithm: dns.RSASHA256,
		Flags:     257,
		Protocol:  3,
	}
	if _, err := ksk.Generate(1024); err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ds := ksk.ToDS(dns.SHA256)

	zsk := &dns.DNSKEY{
		Hdr:       dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeDNSKEY},
		Algorithm: dns.RSASHA256,
		Flags:     256,
		Protocol:  3,
	}
	if _, err := zsk.Generate(1024); err != nil {
		t.Fatalf("Generate: %v", err)
	}

	seps, err := SelectSEPDNSKeys([]*dns.DS{ds}, "example.com.", []*dns.DNSKEY{ksk, zsk})
	if err != nil {
		t.Fatalf("SelectSEPDNSKeys: %v", err)
	}
	if len(seps) != 1 || seps[0].KeyTag() != ksk.KeyTag() {
		t.Fatalf("expected exactly the KSK selected, got %d keys", len(seps))
	}

	if _, err := SelectSEPDNSKeys([]*dns.DS{ds}, "example.com.", []*dns.DNSKEY{zsk}); err == nil {
		t.Fatal("expected a NoSEPMatch error when no DNSKEY matches the DS")
	}
}
