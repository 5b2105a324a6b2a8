package resolver

import (
	"context"
	"errors"
	"time"

	"github.com/miekg/dns"
)

const (
	maxDelegationDepth = 16
	maxCNAMEChain      = 12
)

var (
	ErrTooManyDelegationSteps = errors.New("resolver: too many non-sub-level delegation steps")
	ErrCNAMEChainTooLong      = errors.New("resolver: CNAME chain exceeded maximum length")
)

// Reply is the resolved message plus the zone cut it was ultimately
// answered from, returned to the transport layer.
type Reply struct {
	Msg        *dns.Msg
	Delegation *Delegation
}

// Query is the top-level entry point: it resolves qname/qtype, chasing
// CNAME chains (bounded at maxCNAMEChain) when the answer redirects away
// from the queried name.
func Query(ctx context.Context, env *Environment, qname string, qtype uint16) (*Reply, error) {
	canon, err := CanonicalName(qname)
	if err != nil {
		return nil, qErr(KindIllegalDomain, qname, err)
	}

	cur := canon
	for i := 0; i < maxCNAMEChain; i++ {
		msg, deleg, err := resolveOnce(ctx, env, cur, qtype)
		if err != nil {
			return nil, err
		}
		cnames := extractType(msg.Answer, dns.TypeCNAME)
		directs := extractType(msg.Answer, qtype)
		if qtype != dns.TypeCNAME && len(cnames) > 0 && len(directs) > 0 {
			return nil, qErr(KindUnexpectedRDATA, cur, errors.New("answer carried both CNAME and the requested type"))
		}
		if len(cnames) == 0 || qtype == dns.TypeCNAME {
			return &Reply{Msg: msg, Delegation: deleg}, nil
		}
		cur = dns.CanonicalName(cnames[0].(*dns.CNAME).Target)
	}
	return nil, qErr(KindServerFailure, canon, ErrCNAMEChainTooLong)
}

// resolveOnce performs a single iterative resolution of qname/qtype: it
// primes the root, walks the delegation hierarchy, and issues a final
// norec query at the discovered zone cut. It does not chase CNAMEs. Every
// upstream exchange taken along the way is accumulated into a lookupLog,
// emitted through env.Log once the resolution finishes.
func resolveOnce(ctx context.Context, env *Environment, qname string, qtype uint16) (*dns.Msg, *Delegation, error) {
	ll := &lookupLog{Query: dns.Question{Name: qname, Qtype: qtype, Qclass: dns.ClassINET}, Started: time.Now()}

	msg, deleg, err := resolveOnceTraced(ctx, env, qname, qtype, ll)
	ll.finish()
	if err != nil {
		env.Log.Warn(ll, qname, err)
		return nil, nil, err
	}
	env.Log.Infof("%s", ll.String())
	return msg, deleg, nil
}

func resolveOnceTraced(ctx context.Context, env *Environment, qname string, qtype uint16, ll *lookupLog) (*dns.Msg, *Delegation, error) {
	root, err := refreshRoot(ctx, env)
	if err != nil {
		return nil, nil, err
	}

	deleg, err := iterative(ctx, env, root, superDomains(qname), ll)
	if err != nil {
		return nil, nil, err
	}

	addrs := chooseNSAddresses(deleg, env.Config.DisableV6NS, 4)
	if len(addrs) == 0 {
		return nil, nil, qErr(KindServerFailure, deleg.Zone, ErrNoNSAddresses)
	}
	dnssecOK := env.Config.DNSSECOkDefault && hasUsableDS(deleg) && len(deleg.DNSKeys) > 0
	q := dns.Question{Name: qname, Qtype: qtype, Qclass: dns.ClassINET}
	started := time.Now()
	msg, addr, err := norec(ctx, env, dnssecOK, addrs, qname, qtype)
	recordQuery(ll, q, addr, false, false, time.Since(started), err)
	if err != nil {
		return nil, nil, err
	}

	if err := validateFinalAnswer(env, deleg, qname, qtype, msg); err != nil {
		return nil, nil, err
	}
	if len(ll.Composite) > 0 {
		ll.Composite[len(ll.Composite)-1].DNSSECValid = len(deleg.DNSKeys) > 0 && dnssecOK
	}
	return msg, deleg, nil
}

// recordQuery appends a queryLog entry to ll. ll may be nil (tests that
// don't care about tracing pass nil through the call chain).
func recordQuery(ll *lookupLog, q dns.Question, addr string, cacheHit, dnssecValid bool, rtt time.Duration, err error) {
	if ll == nil {
		return
	}
	ll.Composite = append(ll.Composite, queryLog{
		Query:       q,
		NSAddr:      addr,
		CacheHit:    cacheHit,
		DNSSECValid: dnssecValid,
		RTT:         rtt,
		Err:         err,
	})
}

// validateFinalAnswer checks the top-level answer against deleg's DNSKEY
// set when deleg is secure: a positive answer's RRset (or, if the answer
// is a wildcard synthesis, its NSEC/NSEC3 proof), or an NXDOMAIN/NODATA's
// denial-of-existence proof. An insecure deleg (no DNSKEYs) is left
// unvalidated, since nothing in the chain vouches for it.
func validateFinalAnswer(env *Environment, deleg *Delegation, qname string, qtype uint16, msg *dns.Msg) error {
	if len(deleg.DNSKeys) == 0 {
		return nil
	}
	nsecRRs := extractNSEC(msg.Ns)

	if len(msg.Answer) > 0 {
		answerType := qtype
		if len(extractType(msg.Answer, qtype)) == 0 {
			if cn := extractType(msg.Answer, dns.TypeCNAME); len(cn) > 0 {
				answerType = dns.TypeCNAME
			}
		}
		rrset := extractType(msg.Answer, answerType)
		if len(rrset) == 0 {
			return nil
		}
		rrsigs := extractType(msg.Answer, dns.TypeRRSIG)
		hit, verr := VerifyRRset(DefaultVerifier{}, deleg.DNSKeys, deleg.Zone, env.now(), rrset, rrsigs, qname, answerType)
		if verr != nil || hit.Kind != KindPositiveValid {
			return qErr(KindVerifyFailed, qname, errors.New("answer RRset failed to validate"))
		}
		for _, rr := range rrsigs {
			sig, ok := rr.(*dns.RRSIG)
			if !ok || sig.TypeCovered != answerType || dns.CanonicalName(sig.Header().Name) != qname {
				continue
			}
			if int(sig.Labels) < dns.CountLabel(qname) {
				if len(nsecRRs) == 0 {
					return qErr(KindVerifyFailed, qname, ErrNSECMissingCoverage)
				}
				if err := verifyWildcardAnswer(qname, sig, nsecRRs); err != nil {
					return qErr(KindVerifyFailed, qname, err)
				}
			}
			break
		}
		return nil
	}

	if len(nsecRRs) == 0 {
		return nil
	}
	q := Question{Name: qname, Type: qtype, Class: dns.ClassINET}
	switch msg.Rcode {
	case dns.RcodeNameError:
		if err := verifyNameError(q, nsecRRs); err != nil {
			return qErr(KindVerifyFailed, qname, err)
		}
	case dns.RcodeSuccess:
		if err := verifyNODATA(q, nsecRRs); err != nil {
			return qErr(KindVerifyFailed, qname, err)
		}
	}
	return nil
}

// iterative walks supers (root-first, ending at the queried name itself),
// descending one zone cut at a time from nss, reusing cached NS sets (and
// respecting a cached negative answer at the A qtype stepQuery queries)
// where possible, falling back to stepQuery otherwise. It enforces the
// maxDelegationDepth cap on non-sub-level steps.
func iterative(ctx context.Context, env *Environment, nss *Delegation, supers []string, ll *lookupLog) (*Delegation, error) {
	cur := nss
	depth := 0
	for _, x := range supers {
		if x == cur.Zone {
			continue
		}

		if next := cachedNSDelegation(env, x); next != nil {
			recordQuery(ll, dns.Question{Name: x, Qtype: dns.TypeNS, Qclass: dns.ClassINET}, "", true, false, 0, nil)
			if err := advance(&cur, next, &depth); err != nil {
				return nil, err
			}
			continue
		}
		if _, hit, _, ok := env.Cache.Lookup(env.now(), Question{Name: x, Type: dns.TypeA, Class: dns.ClassINET}); ok && hit.Kind == KindNegative {
			recordQuery(ll, dns.Question{Name: x, Qtype: dns.TypeA, Qclass: dns.ClassINET}, "", true, false, 0, nil)
			continue
		}

		next, err := stepQuery(ctx, env, cur, x, ll)
		if err != nil {
			return nil, err
		}
		if next == nil {
			continue
		}
		if err := advance(&cur, next, &depth); err != nil {
			return nil, err
		}
	}
	return cur, nil
}

// cachedNSDelegation rebuilds a Delegation for x from a cached NS RRset
// and whatever A/AAAA glue for each NS name is itself cached, letting
// iterative skip the network entirely when both are still fresh. It
// returns nil if no usable NS RRset is cached for x.
func cachedNSDelegation(env *Environment, x string) *Delegation {
	_, hit, _, ok := env.Cache.Lookup(env.now(), Question{Name: x, Type: dns.TypeNS, Class: dns.ClassINET})
	if !ok || !hit.Positive() {
		return nil
	}
	var entries []NsEntry
	for _, rr := range hit.RDatas {
		ns, ok := rr.(*dns.NS)
		if !ok {
			continue
		}
		name := dns.CanonicalName(ns.Ns)
		var glue []dns.RR
		if _, ghit, _, ok := env.Cache.Lookup(env.now(), Question{Name: name, Type: dns.TypeA, Class: dns.ClassINET}); ok && ghit.Positive() {
			glue = append(glue, ghit.RDatas...)
		}
		if _, ghit, _, ok := env.Cache.Lookup(env.now(), Question{Name: name, Type: dns.TypeAAAA, Class: dns.ClassINET}); ok && ghit.Positive() {
			glue = append(glue, ghit.RDatas...)
		}
		entries = append(entries, newNsEntry(name, glue))
	}
	if len(entries) == 0 {
		return nil
	}
	return &Delegation{
		Zone:      x,
		NsEntries: entries,
		DsState:   DsState{Kind: DsNotFilled, Reason: ReasonDeferred},
		Fresh:     FreshCached,
	}
}

func advance(cur **Delegation, next *Delegation, depth *int) error {
	if !isStrictSubdomain(next.Zone, (*cur).Zone) {
		*depth++
		if *depth > maxDelegationDepth {
			return qErr(KindServerFailure, next.Zone, ErrTooManyDelegationSteps)
		}
	}
	*cur = next
	return nil
}

// stepQuery issues a single A-type norec query at x (per RFC 9156 QNAME
// minimization: the engine asks for A rather than NS while descending)
// against nss's addresses, and classifies the result as a referral, the
// sibling-zone workaround, or a terminal (non-delegating) answer. A nil
// Delegation with a nil error means no delegation was found at x and the
// caller should continue with its current nss.
func stepQuery(ctx context.Context, env *Environment, nss *Delegation, x string, ll *lookupLog) (*Delegation, error) {
	dnssecOK := hasUsableDS(nss) && len(nss.DNSKeys) > 0
	addrs := chooseNSAddresses(nss, env.Config.DisableV6NS, 4)
	if len(addrs) == 0 {
		return nil, qErr(KindServerFailure, x, ErrNoNSAddresses)
	}
	started := time.Now()
	msg, addr, err := norec(ctx, env, dnssecOK, addrs, x, dns.TypeA)
	recordQuery(ll, dns.Question{Name: x, Qtype: dns.TypeA, Qclass: dns.ClassINET}, addr, false, dnssecOK, time.Since(started), err)
	if err != nil {
		return nil, err
	}
	nsecRRs := extractNSEC(msg.Ns)

	if nsInAuth := extractType(msg.Ns, dns.TypeNS); len(nsInAuth) > 0 {
		zone := dns.CanonicalName(nsInAuth[0].Header().Name)
		build, err := findDelegation(zone, msg.Ns, msg.Extra)
		if err != nil {
			return nil, err
		}
		candidate := build(nil)
		if len(nss.DNSKeys) > 0 {
			hit, verr := VerifyRRset(DefaultVerifier{}, nss.DNSKeys, nss.Zone, env.now(), msg.Ns, extractRRSIGs(msg.Ns), zone, dns.TypeNS)
			if verr != nil || hit.Kind != KindPositiveValid {
				return nil, qErr(KindServerFailure, zone, errors.New("referral NS RRset failed to validate"))
			}
			// When the authority section also carries an NSEC/NSEC3
			// proof, it must show the NS bit set and the DS/SOA bits
			// clear, proving the referral is legitimately to an
			// insecure (or not-yet-validated) child.
			if len(nsecRRs) > 0 {
				if err := verifyDelegation(zone, nsecRRs); err != nil {
					return nil, qErr(KindVerifyFailed, zone, err)
				}
			}
		}
		if err := fillDNSSEC(ctx, env, nss, candidate, ll); err != nil {
			return nil, err
		}
		env.Cache.InsertRRs(env.now(), msg.Ns, RankAdditional)
		env.Cache.InsertRRs(env.now(), msg.Extra, RankAdditional)
		return candidate, nil
	}

	soas := extractType(msg.Ns, dns.TypeSOA)
	if len(soas) > 1 {
		return nil, qErr(KindServerFailure, x, errors.New("multiple SOA records in authority section"))
	}
	if len(soas) == 1 && dns.CanonicalName(soas[0].Header().Name) == x {
		if len(nss.DNSKeys) > 0 && len(nsecRRs) > 0 {
			// The SOA at x proves it is a zone apex, not a bare NS-only
			// delegation, so the expected verifyDelegation outcome here
			// is ErrNSECBadDelegation (DS/SOA bit set); any other denial
			// failure means the proof itself is missing or malformed.
			if err := verifyDelegation(x, nsecRRs); err != nil && !errors.Is(err, ErrNSECBadDelegation) {
				return nil, qErr(KindVerifyFailed, x, err)
			}
		}
		return &Delegation{
			Zone:      x,
			NsEntries: nss.NsEntries,
			DsState:   DsState{Kind: DsNotFilled, Reason: ReasonServsChildZone},
			Fresh:     FreshFresh,
		}, nil
	}

	switch {
	case msg.Rcode == dns.RcodeNameError && len(soas) == 1:
		if len(nss.DNSKeys) > 0 && len(nsecRRs) > 0 {
			if err := verifyNameError(Question{Name: x, Type: dns.TypeA, Class: dns.ClassINET}, nsecRRs); err != nil {
				return nil, qErr(KindVerifyFailed, x, err)
			}
		}
		negativeCacheSOA(env, x, dns.TypeA, soas[0].(*dns.SOA))
	case msg.Rcode == dns.RcodeSuccess && len(msg.Answer) == 0 && len(soas) == 1:
		if len(nss.DNSKeys) > 0 && len(nsecRRs) > 0 {
			if err := verifyNODATA(Question{Name: x, Type: dns.TypeA, Class: dns.ClassINET}, nsecRRs); err != nil {
				return nil, qErr(KindVerifyFailed, x, err)
			}
		}
		negativeCacheSOA(env, x, dns.TypeA, soas[0].(*dns.SOA))
	}
	return nil, nil
}

// negativeCacheSOA caches a NXDOMAIN/NODATA answer keyed on (name, qtype)
// and pointing at soa's owner, capping the TTL at the configured negative-TTL
// cap, and caches soa itself so the negative entry's TTL can be resolved
// later.
func negativeCacheSOA(env *Environment, name string, qtype uint16, soa *dns.SOA) {
	ttl := minUint32(soa.Minttl, soa.Hdr.Ttl)
	if env.Config.NegativeMinTTLCap > 0 && ttl > env.Config.NegativeMinTTLCap {
		ttl = env.Config.NegativeMinTTLCap
	}
	soaOwner := dns.CanonicalName(soa.Hdr.Name)
	env.Cache.InsertWithExpire(env.now(), Question{Name: soaOwner, Type: dns.TypeSOA, Class: dns.ClassINET}, soa.Hdr.Ttl, NewPositiveNotVerified([]dns.RR{soa}), RankAuthAnswer)
	env.Cache.InsertWithExpire(env.now(), Question{Name: name, Type: qtype, Class: dns.ClassINET}, ttl, NewNegative(soaOwner), RankAuthAnswer)
}

// fillDNSSEC populates dest's DS and DNSKEY state from parent, per the
// rule that an empty parent DNSKEY set leaves the chain insecure, an
// already-filled dest is left alone, and otherwise DS is fetched from
// parent and DNSKEY from dest, each validated in turn.
func fillDNSSEC(ctx context.Context, env *Environment, parent, dest *Delegation, ll *lookupLog) error {
	if len(parent.DNSKeys) == 0 {
		dest.DsState = DsState{Kind: DsFilledDS}
		return nil
	}
	if dest.DsState.Kind == DsFilledDS && len(dest.DNSKeys) > 0 {
		return nil
	}

	parentAddrs := chooseNSAddresses(parent, env.Config.DisableV6NS, 4)
	if len(parentAddrs) == 0 {
		return qErr(KindServerFailure, parent.Zone, ErrNoNSAddresses)
	}
	started := time.Now()
	dsMsg, addr, err := norec(ctx, env, true, parentAddrs, dest.Zone, dns.TypeDS)
	recordQuery(ll, dns.Question{Name: dest.Zone, Qtype: dns.TypeDS, Qclass: dns.ClassINET}, addr, false, true, time.Since(started), err)
	if err != nil {
		return err
	}

	var dsRRs []dns.RR
	if dsMsg.Rcode == dns.RcodeSuccess && len(dsMsg.Answer) > 0 {
		hit, verr := VerifyRRset(DefaultVerifier{}, parent.DNSKeys, parent.Zone, env.now(), dsMsg.Answer, extractRRSIGs(dsMsg.Answer), dest.Zone, dns.TypeDS)
		if verr != nil || hit.Kind != KindPositiveValid {
			return qErr(KindVerifyFailed, dest.Zone, errors.New("DS RRset failed to validate"))
		}
		dsRRs = hit.RDatas
	}
	dest.DsState = DsState{Kind: DsFilledDS, DS: asDS(dsRRs)}
	if len(dest.DsState.DS) == 0 {
		return nil
	}

	destAddrs := chooseNSAddresses(dest, env.Config.DisableV6NS, 4)
	if len(destAddrs) == 0 {
		return qErr(KindServerFailure, dest.Zone, ErrNoNSAddresses)
	}
	started = time.Now()
	dnskeyMsg, addr, err := norec(ctx, env, true, destAddrs, dest.Zone, dns.TypeDNSKEY)
	recordQuery(ll, dns.Question{Name: dest.Zone, Qtype: dns.TypeDNSKEY, Qclass: dns.ClassINET}, addr, false, true, time.Since(started), err)
	if err != nil {
		return err
	}
	if dnskeyMsg.Rcode != dns.RcodeSuccess || len(dnskeyMsg.Answer) == 0 {
		return qErr(KindServerFailure, dest.Zone, errors.New("dangling DS chain: DNSKEY could not be obtained"))
	}
	dnskeys := asDNSKEYs(dnskeyMsg.Answer)
	seps, err := SelectSEPDNSKeys(dest.DsState.DS, dest.Zone, dnskeys)
	if err != nil {
		return qErr(KindVerifyFailed, dest.Zone, err)
	}
	hit, verr := VerifyRRset(DefaultVerifier{}, seps, dest.Zone, env.now(), dnskeyMsg.Answer, extractRRSIGs(dnskeyMsg.Answer), dest.Zone, dns.TypeDNSKEY)
	if verr != nil || hit.Kind != KindPositiveValid {
		return qErr(KindVerifyFailed, dest.Zone, errors.New("dangling DS chain: DNSKEY did not validate"))
	}
	dest.DNSKeys = dnskeys
	env.Cache.Insert(env.now(), Question{Name: dest.Zone, Type: dns.TypeDNSKEY, Class: dns.ClassINET}, effectiveTTL(dnskeyMsg.Answer), hit, RankAuthAnswer)
	return nil
}

func extractType(rrs []dns.RR, t uint16) []dns.RR {
	var out []dns.RR
	for _, rr := range rrs {
		if rr.Header().Rrtype == t {
			out = append(out, rr)
		}
	}
	return out
}

// extractNSEC returns every NSEC and NSEC3 record in rrs, the input
// nsec.go's denial-of-existence checks expect.
func extractNSEC(rrs []dns.RR) []dns.RR {
	var out []dns.RR
	for _, rr := range rrs {
		switch rr.Header().Rrtype {
		case dns.TypeNSEC, dns.TypeNSEC3:
			out = append(out, rr)
		}
	}
	return out
}

func minUint32(a, b uint32) uint32 {
	if a < b {
		return a
	}
	return b
}
