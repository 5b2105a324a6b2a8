package resolver

import "github.com/miekg/dns"

// TypeERR (0xFF00) is the reserved pseudo-type from RFC 6895 §3.1's
// private-use range. It is used exclusively as the type coordinate for
// cached negative responses whose rcode isn't tied to any particular
// qtype (see NegativeNoSOA). Negative cache writes for an ordinary
// NXDOMAIN/NODATA against a real qtype MUST key on that qtype, never on
// TypeERR — see HitKind docs below.
const TypeERR uint16 = 0xFF00

// HitKind discriminates the cache's tagged-union value.
type HitKind uint8

const (
	// KindPositiveNotVerified carries answer rdata with its RRSIG not
	// (yet, or ever) checked.
	KindPositiveNotVerified HitKind = iota + 1
	// KindPositiveValid carries a validated RRset plus the RRSIGs that
	// validated it.
	KindPositiveValid
	// KindNegative is an NXDOMAIN or NODATA pointing at the owner of the
	// SOA whose cached record supplies the negative TTL.
	KindNegative
	// KindNegativeNoSOA is a negative response without an accompanying
	// SOA; Rcode identifies the failure.
	KindNegativeNoSOA
)

// Hit is the cache value: a tagged variant over four kinds. Only the
// fields relevant to Kind are populated.
type Hit struct {
	Kind HitKind

	// KindPositiveNotVerified, KindPositiveValid
	RDatas []dns.RR
	RRSIGs []dns.RR // non-empty only for KindPositiveValid

	// KindNegative
	SOAOwner string

	// KindNegativeNoSOA
	Rcode int
}

// NewPositiveNotVerified builds a Hit for answer rdata whose RRSIG was not
// checked. rdatas must be non-empty.
func NewPositiveNotVerified(rdatas []dns.RR) Hit {
	return Hit{Kind: KindPositiveNotVerified, RDatas: rdatas}
}

// NewPositiveValid builds a Hit for an RRset validated by the given
// RRSIGs. Both slices must be non-empty.
func NewPositiveValid(rdatas, rrsigs []dns.RR) Hit {
	return Hit{Kind: KindPositiveValid, RDatas: rdatas, RRSIGs: rrsigs}
}

// NewNegative builds an NXDOMAIN/NODATA Hit that defers its TTL to the
// cached SOA at soaOwner.
func NewNegative(soaOwner string) Hit {
	return Hit{Kind: KindNegative, SOAOwner: soaOwner}
}

// NewNegativeNoSOA builds a self-contained negative Hit for a failure not
// tied to a cached SOA (e.g. SERVFAIL, REFUSED from upstream).
func NewNegativeNoSOA(rcode int) Hit {
	return Hit{Kind: KindNegativeNoSOA, Rcode: rcode}
}

// Positive reports whether the Hit carries answer rdata.
func (h Hit) Positive() bool {
	return h.Kind == KindPositiveNotVerified || h.Kind == KindPositiveValid
}

// Authenticated reports whether the Hit's rdata was validated by a
// DNSSEC chain rooted at a configured trust anchor.
func (h Hit) Authenticated() bool {
	return h.Kind == KindPositiveValid
}
