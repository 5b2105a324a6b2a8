package resolver

import (
	"errors"

	"github.com/miekg/dns"
)

// ErrBadRRset is returned when a list of records fails the RRset grouping
// rule: mixed owners, mixed types, a non-Internet class, or an empty
// group.
var ErrBadRRset = errors.New("resolver: invalid RRset")

// groupRRs partitions rrs by (name, type, class) per the grouping law.
// Class 0 is treated as Internet class; records of any other
// non-Internet class and OPT pseudo-records are dropped rather
// than surfaced as errors, since a mixed-class answer section is a
// protocol-layer concern the wire decoder should already have resolved;
// what remains is grouped for insertion.
func groupRRs(rrs []dns.RR) map[Question][]dns.RR {
	groups := make(map[Question][]dns.RR)
	for _, rr := range rrs {
		if rr == nil {
			continue
		}
		h := rr.Header()
		if h.Rrtype == dns.TypeOPT {
			continue
		}
		if h.Class != dns.ClassINET && h.Class != 0 {
			continue
		}
		key := Question{Name: dns.CanonicalName(h.Name), Type: h.Rrtype, Class: dns.ClassINET}
		groups[key] = append(groups[key], rr)
	}
	return groups
}

// validateRRsetGroup checks a single candidate group against the grouping
// law: non-empty, single (name,type,class), and every record's rdata
// discriminant equal to its header type (trivially true for miekg/dns's
// typed RR values, but checked explicitly since a caller may hand-build a
// mixed slice).
func validateRRsetGroup(key Question, group []dns.RR) error {
	if len(group) == 0 {
		return ErrBadRRset
	}
	for _, rr := range group {
		h := rr.Header()
		if dns.CanonicalName(h.Name) != key.Name || h.Rrtype != key.Type {
			return ErrBadRRset
		}
	}
	return nil
}

// effectiveTTL is the minimum TTL among group's members.
func effectiveTTL(group []dns.RR) uint32 {
	if len(group) == 0 {
		return 0
	}
	min := group[0].Header().Ttl
	for _, rr := range group[1:] {
		if rr.Header().Ttl < min {
			min = rr.Header().Ttl
		}
	}
	return min
}

// PendingRRset is a single-use deferred insert: a validated group paired
// with the key and TTL it will be inserted under.
type PendingRRset struct {
	Key Question
	TTL uint32
	RRs []dns.RR
}

// pendingFromRRs groups rrs and returns one PendingRRset per valid group.
// Groups that fail validateRRsetGroup are skipped; no error is reported
// for them. Whether at least one group was inserted is decided by the
// caller from the results of its insert calls.
func pendingFromRRs(rrs []dns.RR) []PendingRRset {
	var out []PendingRRset
	for key, group := range groupRRs(rrs) {
		if err := validateRRsetGroup(key, group); err != nil {
			continue
		}
		out = append(out, PendingRRset{Key: key, TTL: effectiveTTL(group), RRs: group})
	}
	return out
}

// insertPending writes a PendingRRset into cache at the given rank,
// bypassing the TTL-from-records computation (TTL was already fixed when
// the pending value was built). now is the Environment clock's current
// time.
func insertPending(cache *RankedCache, now int64, p PendingRRset, rank Ranking) bool {
	return cache.InsertWithExpire(now, p.Key, p.TTL, NewPositiveNotVerified(p.RRs), rank)
}
