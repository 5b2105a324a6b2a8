package resolver

import (
	"context"
	"errors"

	"github.com/miekg/dns"
)

// ErrRootNSInvalid is returned when the root NS RRset fails to validate
// against the DNSKEYs fetched and verified during priming.
var ErrRootNSInvalid = errors.New("resolver: root NS RRset failed to validate")

// refreshRoot returns the process-wide root Delegation, priming it from
// the network if the cell is empty or its cached NS RRset has expired,
// and falling back to the compiled-in root hints if priming fails.
func refreshRoot(ctx context.Context, env *Environment) (*Delegation, error) {
	if cached := env.rootDelegationCached(); cached != nil {
		if _, _, _, ok := env.Cache.Lookup(env.now(), Question{Name: ".", Type: dns.TypeNS, Class: dns.ClassINET}); ok {
			reuse := *cached
			reuse.Fresh = FreshCached
			return &reuse, nil
		}
	}

	d, err := primeRoot(ctx, env)
	if err != nil {
		env.Log.Warnf("zone=. reason=%q root priming failed, falling back to compiled-in root hints", err)
		fallback, ferr := rootDelegation()
		if ferr != nil {
			return nil, ferr
		}
		env.setRootDelegation(fallback)
		return fallback, nil
	}
	env.setRootDelegation(d)
	return d, nil
}

func primeRoot(ctx context.Context, env *Environment) (*Delegation, error) {
	hint, err := rootDelegation()
	if err != nil {
		return nil, err
	}
	addrs := chooseNSAddresses(hint, env.Config.DisableV6NS, 4)
	if len(addrs) == 0 {
		return nil, qErr(KindServerFailure, ".", ErrNoNSAddresses)
	}

	dnskeyMsg, _, err := norec(ctx, env, true, addrs, ".", dns.TypeDNSKEY)
	if err != nil {
		return nil, err
	}
	if dnskeyMsg.Rcode != dns.RcodeSuccess {
		return nil, qErr(rcodeToKind(dnskeyMsg.Rcode), ".", nil)
	}
	dnskeys := asDNSKEYs(dnskeyMsg.Answer)
	if len(dnskeys) == 0 {
		return nil, qErr(KindServerFailure, ".", ErrNoDelegation)
	}
	seps, err := SelectSEPDNSKeys(env.trustAnchorDS(), ".", dnskeys)
	if err != nil {
		return nil, qErr(KindVerifyFailed, ".", err)
	}
	dnskeyHit, err := VerifyRRset(DefaultVerifier{}, seps, ".", env.now(), dnskeyMsg.Answer, extractRRSIGs(dnskeyMsg.Answer), ".", dns.TypeDNSKEY)
	if err != nil {
		return nil, qErr(KindVerifyFailed, ".", err)
	}
	if dnskeyHit.Kind != KindPositiveValid {
		return nil, qErr(KindVerifyFailed, ".", errors.New("root DNSKEY RRset did not validate against configured trust anchor"))
	}
	env.Cache.Insert(env.now(), Question{Name: ".", Type: dns.TypeDNSKEY, Class: dns.ClassINET}, effectiveTTL(dnskeyMsg.Answer), dnskeyHit, RankAuthAnswer)

	nsMsg, _, err := norec(ctx, env, true, addrs, ".", dns.TypeNS)
	if err != nil {
		return nil, err
	}
	if nsMsg.Rcode != dns.RcodeSuccess {
		return nil, qErr(rcodeToKind(nsMsg.Rcode), ".", nil)
	}
	nsHit, err := VerifyRRset(DefaultVerifier{}, dnskeys, ".", env.now(), nsMsg.Answer, extractRRSIGs(nsMsg.Answer), ".", dns.TypeNS)
	if err != nil {
		return nil, qErr(KindVerifyFailed, ".", err)
	}
	if nsHit.Kind != KindPositiveValid {
		return nil, qErr(KindVerifyFailed, ".", ErrRootNSInvalid)
	}

	build, err := findDelegation(".", nsMsg.Answer, nsMsg.Extra)
	if err != nil {
		return nil, err
	}
	d := build(env.trustAnchorDS())
	d.DNSKeys = dnskeys

	env.Cache.InsertRRs(env.now(), nsMsg.Answer, RankAuthAnswer)
	env.Cache.InsertRRs(env.now(), nsMsg.Extra, RankAdditional)
	return d, nil
}

func extractRRSIGs(rrs []dns.RR) []dns.RR {
	var out []dns.RR
	for _, rr := range rrs {
		if rr.Header().Rrtype == dns.TypeRRSIG {
			out = append(out, rr)
		}
	}
	return out
}
