package resolver

import (
	"errors"
	"math/rand"
	"net"

	"github.com/miekg/dns"
)

var (
	// ErrNoDelegation is returned when find_delegation has no NS records
	// to build from.
	ErrNoDelegation = errors.New("resolver: no NS records to build a delegation from")
	// ErrNoNSAddresses is returned when an NsEntry set yields no usable
	// addresses under the current disable_v6_ns policy.
	ErrNoNSAddresses = errors.New("resolver: no nameserver addresses available")
)

// NsEntryKind discriminates which glue, if any, accompanies an NS name.
type NsEntryKind uint8

const (
	NsOnlyNS NsEntryKind = iota + 1
	NsWithA4
	NsWithA6
	NsWithAx
)

// NsEntry pairs a delegated NS name with whatever glue the parent zone
// supplied for it.
type NsEntry struct {
	Kind NsEntryKind
	Name string
	V4   []net.IP
	V6   []net.IP
}

func newNsEntry(name string, glue []dns.RR) NsEntry {
	var v4, v6 []net.IP
	for _, rr := range glue {
		switch r := rr.(type) {
		case *dns.A:
			v4 = append(v4, r.A)
		case *dns.AAAA:
			v6 = append(v6, r.AAAA)
		}
	}
	switch {
	case len(v4) > 0 && len(v6) > 0:
		return NsEntry{Kind: NsWithAx, Name: name, V4: v4, V6: v6}
	case len(v4) > 0:
		return NsEntry{Kind: NsWithA4, Name: name, V4: v4}
	case len(v6) > 0:
		return NsEntry{Kind: NsWithA6, Name: name, V6: v6}
	default:
		return NsEntry{Kind: NsOnlyNS, Name: name}
	}
}

// DsStateKind discriminates a Delegation's DS-chain state.
type DsStateKind uint8

const (
	// DsFilledDS carries the DS set for this zone (an empty set marks a
	// provably-insecure delegation).
	DsFilledDS DsStateKind = iota + 1
	// DsFilledAnchor marks this zone as a configured trust anchor.
	DsFilledAnchor
	// DsNotFilled marks a delegation whose DS has not yet been resolved;
	// it must be filled before descending further.
	DsNotFilled
)

// DsNotFilledReason explains why DsState.Kind is DsNotFilled.
type DsNotFilledReason uint8

const (
	ReasonDeferred DsNotFilledReason = iota + 1
	ReasonServsChildZone
)

// DsState is a Delegation's DS-chain state.
type DsState struct {
	Kind   DsStateKind
	DS     []*dns.DS
	Reason DsNotFilledReason
}

// FreshState marks whether a Delegation was just fetched or is a
// previously cached value being reused.
type FreshState uint8

const (
	FreshFresh FreshState = iota + 1
	FreshCached
)

// Delegation represents a zone cut: the zone name, its NS set with
// whatever glue is known, its DS state, any validated DNSKEYs, and
// whether it was just fetched or reused from the cache.
type Delegation struct {
	Zone      string
	NsEntries []NsEntry
	DsState   DsState
	DNSKeys   []*dns.DNSKEY
	Fresh     FreshState
}

// findDelegation pairs NS records owned by zone with A/AAAA glue from
// additional, and returns a builder that yields a complete Delegation once
// given a DS list. A nil builder (with ErrNoDelegation) means nsRRs carried
// no NS records at all.
func findDelegation(zone string, nsRRs []dns.RR, additional []dns.RR) (func(ds []*dns.DS) *Delegation, error) {
	glueByName := make(map[string][]dns.RR)
	for _, rr := range additional {
		switch rr.(type) {
		case *dns.A, *dns.AAAA:
			name := dns.CanonicalName(rr.Header().Name)
			glueByName[name] = append(glueByName[name], rr)
		}
	}

	seen := make(map[string]bool)
	var entries []NsEntry
	for _, rr := range nsRRs {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		name := dns.CanonicalName(ns.Ns)
		if seen[name] {
			continue
		}
		seen[name] = true
		entries = append(entries, newNsEntry(name, glueByName[name]))
	}
	if len(entries) == 0 {
		return nil, ErrNoDelegation
	}
	return func(ds []*dns.DS) *Delegation {
		return &Delegation{
			Zone:      zone,
			NsEntries: entries,
			DsState:   DsState{Kind: DsFilledDS, DS: ds},
			Fresh:     FreshFresh,
		}
	}, nil
}

// chooseNSAddresses computes up to k addresses to query for d, honoring
// disableV6: entries with only IPv6 glue are skipped entirely when
// disableV6 is set; entries carrying both families pick one family at
// random per entry before the final random selection across entries.
func chooseNSAddresses(d *Delegation, disableV6 bool, k int) []net.IP {
	var candidates []net.IP
	for _, e := range d.NsEntries {
		switch e.Kind {
		case NsWithA4:
			candidates = append(candidates, e.V4...)
		case NsWithA6:
			if !disableV6 {
				candidates = append(candidates, e.V6...)
			}
		case NsWithAx:
			if disableV6 || rand.Intn(2) == 0 {
				candidates = append(candidates, pickOne(e.V4))
			} else {
				candidates = append(candidates, pickOne(e.V6))
			}
		case NsOnlyNS:
			// No glue: the entry contributes no address, and nothing in
			// this package resolves e.Name separately.
		}
	}
	if len(candidates) == 0 {
		return nil
	}
	rand.Shuffle(len(candidates), func(i, j int) { candidates[i], candidates[j] = candidates[j], candidates[i] })
	if k > 0 && len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates
}

func pickOne(ips []net.IP) net.IP {
	return ips[rand.Intn(len(ips))]
}

// hasUsableDS reports whether d's DS state carries at least a validated
// empty-or-nonempty DS list (i.e. is not still NotFilled), used by the
// engine to decide whether to request DNSSEC on the next step.
func hasUsableDS(d *Delegation) bool {
	return d.DsState.Kind == DsFilledDS || d.DsState.Kind == DsFilledAnchor
}
