package resolver

import (
	"errors"
	"time"

	"github.com/miekg/dns"
)

// VerifyErrorKind enumerates the ways a DNSSEC validation step can fail.
type VerifyErrorKind uint8

const (
	UnsupportedAlgorithm VerifyErrorKind = iota + 1
	BadSignature
	InvalidValidityPeriod
	NoMatchingKey
	NoSEPMatch
	DSMismatch
	DanglingDSChain
)

// VerifyError carries a VerifyErrorKind plus the underlying cause, if any.
type VerifyError struct {
	Kind VerifyErrorKind
	Err  error
}

func (e *VerifyError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return verifyErrorText[e.Kind]
}

func (e *VerifyError) Unwrap() error { return e.Err }

var verifyErrorText = map[VerifyErrorKind]string{
	UnsupportedAlgorithm:  "resolver: unsupported DNSSEC algorithm",
	BadSignature:          "resolver: signature failed to verify",
	InvalidValidityPeriod: "resolver: signature outside its validity period",
	NoMatchingKey:         "resolver: no DNSKEY matches the RRSIG's key tag",
	NoSEPMatch:            "resolver: no SEP DNSKEY matches any DS record",
	DSMismatch:            "resolver: DS digest does not match the DNSKEY it names",
	DanglingDSChain:       "resolver: DS present but DNSKEY could not be obtained or validated",
}

func vErr(kind VerifyErrorKind) error { return &VerifyError{Kind: kind} }

// ErrNoRRset and ErrNoncanonicalRRset distinguish VerifyRRset's two
// failure shapes: no candidate records at all, versus records present but
// not forming a valid RRset.
var (
	ErrNoRRset         = errors.New("resolver: no matching records for question")
	ErrNoncanonicalRRset = errors.New("resolver: records present but do not form a canonical RRset")
)

// supportedAlgorithms is the set of algorithms verifyRRSIG will attempt.
var supportedAlgorithms = map[uint8]bool{
	dns.RSASHA1:          true,
	dns.RSASHA256:        true,
	dns.RSASHA512:        true,
	dns.ECDSAP256SHA256:  true,
	dns.ECDSAP384SHA384:  true,
	dns.ED25519:          true,
	dns.ED448:            true,
}

// Verifier checks a single RRSIG against a DNSKEY over an already-grouped
// RRset. It is the seam that keeps cryptographic primitive implementations
// out of the core: callers inject whatever crypto stack they trust.
type Verifier interface {
	VerifyRRSIG(dnskey *dns.DNSKEY, rrsig *dns.RRSIG, rrset []dns.RR) error
}

// DefaultVerifier delegates to (*dns.RRSIG).Verify, which performs RFC 4034
// §6 canonicalization and the actual cryptographic check using whatever
// algorithms the miekg/dns build was compiled with. The resolution engine
// and root priming always use it; a different Verifier can only be used by
// calling VerifyRRset directly.
type DefaultVerifier struct{}

func (DefaultVerifier) VerifyRRSIG(dnskey *dns.DNSKEY, rrsig *dns.RRSIG, rrset []dns.RR) error {
	return rrsig.Verify(dnskey, rrset)
}

// verifyRRSIG dispatches on dnskey.Algorithm: an algorithm outside the
// supported set is rejected before ever reaching the Verifier, so an
// injected Verifier never has to handle it.
func verifyRRSIG(v Verifier, dnskey *dns.DNSKEY, rrsig *dns.RRSIG, rrset []dns.RR) error {
	if !supportedAlgorithms[dnskey.Algorithm] {
		return vErr(UnsupportedAlgorithm)
	}
	if err := v.VerifyRRSIG(dnskey, rrsig, rrset); err != nil {
		return &VerifyError{Kind: BadSignature, Err: err}
	}
	return nil
}

// verifyDS recomputes the DS digest from dnskey and owner and compares it
// against ds.
func verifyDS(owner string, dnskey *dns.DNSKEY, ds *dns.DS) error {
	keyAtOwner := *dnskey
	keyAtOwner.Hdr.Name = owner
	computed := keyAtOwner.ToDS(ds.DigestType)
	if computed == nil {
		return vErr(UnsupportedAlgorithm)
	}
	if !sameDigest(computed.Digest, ds.Digest) {
		return vErr(DSMismatch)
	}
	return nil
}

func sameDigest(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	// DS digests are compared case-insensitively: ToDS encodes hex in
	// whatever case the implementation prefers.
	for i := range a {
		ca, cb := a[i], b[i]
		if 'A' <= ca && ca <= 'Z' {
			ca += 'a' - 'A'
		}
		if 'A' <= cb && cb <= 'Z' {
			cb += 'a' - 'A'
		}
		if ca != cb {
			return false
		}
	}
	return true
}

// SelectSEPDNSKeys returns the DNSKEYs whose (key tag, algorithm) match
// some DS record and whose recomputed digest verifies against it. An
// empty result is a trust-chain break.
func SelectSEPDNSKeys(dss []*dns.DS, owner string, dnskeys []*dns.DNSKEY) ([]*dns.DNSKEY, error) {
	var seps []*dns.DNSKEY
	for _, ds := range dss {
		for _, dk := range dnskeys {
			if dk.KeyTag() != ds.KeyTag || dk.Algorithm != ds.Algorithm {
				continue
			}
			if err := verifyDS(owner, dk, ds); err == nil {
				seps = append(seps, dk)
			}
		}
	}
	if len(seps) == 0 {
		return nil, vErr(NoSEPMatch)
	}
	return seps, nil
}

// VerifyRRset selects records owned by name of the given type from rrs,
// gathers co-located RRSIGs from rrsigs whose signer equals zone and whose
// type covered equals the requested type, and attempts verification
// against keys.
//
// error is ErrNoRRset when no candidate records exist, or
// ErrNoncanonicalRRset when records exist but don't form a valid RRset;
// otherwise the Hit's Kind is KindPositiveValid if at least one signature
// verified, or KindPositiveNotVerified if none did despite a canonical
// RRset being present.
func VerifyRRset(v Verifier, keys []*dns.DNSKEY, zone string, now int64, rrs, rrsigs []dns.RR, name string, qtype uint16) (Hit, error) {
	canonName := dns.CanonicalName(name)
	var candidates []dns.RR
	for _, rr := range rrs {
		if rr.Header().Rrtype == qtype && dns.CanonicalName(rr.Header().Name) == canonName {
			candidates = append(candidates, rr)
		}
	}
	if len(candidates) == 0 {
		return Hit{}, ErrNoRRset
	}
	key := Question{Name: canonName, Type: qtype, Class: dns.ClassINET}
	if err := validateRRsetGroup(key, candidates); err != nil {
		return Hit{}, ErrNoncanonicalRRset
	}

	var sigs []*dns.RRSIG
	for _, rr := range rrsigs {
		sig, ok := rr.(*dns.RRSIG)
		if !ok {
			continue
		}
		if sig.TypeCovered != qtype || dns.CanonicalName(sig.SignerName) != dns.CanonicalName(zone) {
			continue
		}
		if dns.CanonicalName(sig.Hdr.Name) != canonName {
			continue
		}
		sigs = append(sigs, sig)
	}

	nowT := time.Unix(now, 0).UTC()
	var verified []dns.RR
	for _, sig := range sigs {
		if !sig.ValidityPeriod(nowT) {
			continue
		}
		for _, dk := range keys {
			if dk.KeyTag() != sig.KeyTag || dk.Algorithm != sig.Algorithm {
				continue
			}
			if err := verifyRRSIG(v, dk, sig, candidates); err == nil {
				verified = append(verified, sig)
				break
			}
		}
	}
	if len(verified) > 0 {
		return NewPositiveValid(candidates, verified), nil
	}
	return NewPositiveNotVerified(candidates), nil
}

// asDNSKEYs filters rrs down to DNSKEY records whose SEP or ZSK flag is
// set (256 or 257).
func asDNSKEYs(rrs []dns.RR) []*dns.DNSKEY {
	var out []*dns.DNSKEY
	for _, rr := range rrs {
		dk, ok := rr.(*dns.DNSKEY)
		if !ok {
			continue
		}
		if dk.Flags == 256 || dk.Flags == 257 {
			out = append(out, dk)
		}
	}
	return out
}

// asDS filters rrs down to DS records.
func asDS(rrs []dns.RR) []*dns.DS {
	var out []*dns.DS
	for _, rr := range rrs {
		if ds, ok := rr.(*dns.DS); ok {
			out = append(out, ds)
		}
	}
	return out
}
