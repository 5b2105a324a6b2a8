package resolver

import (
	"context"
	"net"
	"time"

	"github.com/miekg/dns"
)

const (
	defaultUDPBufSize  = 1232
	defaultNorecTimeout = 5 * time.Second
	maxNorecRetries    = 2
	dnsPort            = "53"
)

// norec performs a single non-recursive query against one of servers, in
// the order given (callers wanting randomized server order shuffle before
// calling), with RD=0, AD=0, CD=0 and EDNS0 DO set to dnssecOK. It returns
// the first response passing ID and question checks (along with the
// server address that supplied it, for callers accumulating a lookup
// trace), or the last classified error if every server/attempt was
// exhausted.
func norec(ctx context.Context, env *Environment, dnssecOK bool, servers []net.IP, qname string, qtype uint16) (*dns.Msg, string, error) {
	if len(servers) == 0 {
		return nil, "", qErr(KindNetworkFailure, qname, nil)
	}

	var lastErr error
	var lastAddr string
	for _, server := range servers {
		addr := net.JoinHostPort(server.String(), dnsPort)
		lastAddr = addr
		msg, err := norecOneServer(ctx, env, dnssecOK, addr, qname, qtype)
		if err == nil {
			return msg, addr, nil
		}
		lastErr = err
	}
	if lastErr == nil {
		lastErr = qErr(KindRetryLimitExceeded, qname, nil)
	}
	return nil, lastAddr, lastErr
}

func norecOneServer(ctx context.Context, env *Environment, dnssecOK bool, addr, qname string, qtype uint16) (*dns.Msg, error) {
	c := &dns.Client{Timeout: defaultNorecTimeout}

	var lastErr error
	for attempt := 0; attempt <= maxNorecRetries; attempt++ {
		m, err := buildNorecQuery(env, dnssecOK, qname, qtype)
		if err != nil {
			return nil, qErr(KindBadConfiguration, qname, err)
		}
		r, _, err := c.ExchangeContext(ctx, m, addr)
		if err != nil {
			lastErr = classifyNorecError(qname, err)
			if ctx.Err() != nil {
				return nil, qErr(KindTimeoutExpired, qname, ctx.Err())
			}
			continue
		}
		if r.Truncated {
			tc := &dns.Client{Net: "tcp", Timeout: defaultNorecTimeout}
			mTCP, err := buildNorecQuery(env, dnssecOK, qname, qtype)
			if err != nil {
				return nil, qErr(KindBadConfiguration, qname, err)
			}
			r, _, err = tc.ExchangeContext(ctx, mTCP, addr)
			if err != nil {
				lastErr = classifyNorecError(qname, err)
				continue
			}
		}
		if err := checkNorecResponse(m, r); err != nil {
			lastErr = err
			continue
		}
		return r, nil
	}
	if lastErr == nil {
		lastErr = qErr(KindRetryLimitExceeded, qname, nil)
	}
	return nil, lastErr
}

func buildNorecQuery(env *Environment, dnssecOK bool, qname string, qtype uint16) (*dns.Msg, error) {
	id, err := env.IDGen.Next()
	if err != nil {
		return nil, err
	}
	m := new(dns.Msg)
	m.Id = id
	m.RecursionDesired = false
	m.AuthenticatedData = false
	m.CheckingDisabled = false
	m.Question = []dns.Question{{Name: qname, Qtype: qtype, Qclass: dns.ClassINET}}
	m.SetEdns0(defaultUDPBufSize, dnssecOK)
	return m, nil
}

// checkNorecResponse enforces the ID and question-section sanity checks:
// a mismatched ID is dropped rather than retried against the same socket
// (dns.Client already performs this check and reports dns.ErrId), and a
// mismatched question section (beyond the allowance for an empty question
// on FORMERR) is classified as QuestionMismatch.
func checkNorecResponse(query, r *dns.Msg) error {
	if r.Id != query.Id {
		return qErr(KindSequenceNumberMismatch, query.Question[0].Name, nil)
	}
	if len(r.Question) == 0 {
		if r.Rcode == dns.RcodeFormatError {
			return nil
		}
		return qErr(KindQuestionMismatch, query.Question[0].Name, nil)
	}
	rq := r.Question[0]
	qq := query.Question[0]
	if dns.CanonicalName(rq.Name) != dns.CanonicalName(qq.Name) {
		return qErr(KindQuestionMismatch, qq.Name, nil)
	}
	if rq.Qtype != qq.Qtype || rq.Qclass != qq.Qclass {
		return qErr(KindQuestionMismatch, qq.Name, nil)
	}
	return nil
}

func classifyNorecError(qname string, err error) error {
	switch err {
	case dns.ErrId:
		return qErr(KindSequenceNumberMismatch, qname, err)
	}
	if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
		return qErr(KindTimeoutExpired, qname, err)
	}
	return qErr(KindNetworkFailure, qname, err)
}

// rcodeToKind classifies a successfully-received response's Rcode into
// the taxonomy's protocol-level kinds, for callers that need to turn a
// non-success response into a Kind rather than a transport error.
func rcodeToKind(rcode int) Kind {
	switch rcode {
	case dns.RcodeSuccess:
		return 0
	case dns.RcodeFormatError:
		return KindFormatError
	case dns.RcodeServerFailure:
		return KindServerFailure
	case dns.RcodeNameError:
		return KindNameError
	case dns.RcodeNotImplemented:
		return KindNotImplemented
	case dns.RcodeRefused:
		return KindOperationRefused
	case dns.RcodeBadVers:
		return KindBadOptRecord
	default:
		return KindUnknownDNSError
	}
}
