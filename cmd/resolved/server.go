package main

import (
	"context"

	"github.com/google/uuid"
	"github.com/miekg/dns"
	"golang.org/x/net/trace"

	"github.com/nsresolve/itercore"
)

type server struct {
	env *resolver.Environment
}

func (s *server) handler(w dns.ResponseWriter, r *dns.Msg) {
	m := new(dns.Msg)
	m.SetReply(r)
	m.RecursionAvailable = true

	if len(r.Question) != 1 {
		m.Rcode = dns.RcodeNotImplemented
		w.WriteMsg(m)
		return
	}
	q := r.Question[0]

	tr := trace.New("resolver-request", q.String())
	defer tr.Finish()
	ctx := context.WithValue(context.Background(), requestIDKey{}, uuid.NewString())

	reply, err := resolver.Query(ctx, s.env, q.Name, q.Qtype)
	if err != nil {
		s.env.Log.Warnf("request=%s question=%q error=%q", ctx.Value(requestIDKey{}), q.String(), err)
		tr.SetError()
		if qe, ok := err.(*resolver.QueryError); ok {
			m.Rcode = resolver.RcodeFor(qe.Kind)
		} else {
			m.Rcode = dns.RcodeServerFailure
		}
		w.WriteMsg(m)
		return
	}

	m.Rcode = reply.Msg.Rcode
	m.Answer = reply.Msg.Answer
	m.Ns = reply.Msg.Ns
	m.Extra = reply.Msg.Extra
	m.AuthenticatedData = reply.Delegation != nil && len(reply.Delegation.DNSKeys) > 0
	w.WriteMsg(m)
}

type requestIDKey struct{}
