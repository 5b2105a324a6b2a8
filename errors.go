package resolver

import "github.com/miekg/dns"

// Kind is the resolver-wide error taxonomy: every failure that can
// surface out of resolve() is classified into one of these, which in turn
// maps to a single RCODE for the transport layer to reply with.
type Kind uint8

const (
	KindFormatError Kind = iota + 1
	KindSequenceNumberMismatch
	KindQuestionMismatch
	KindUnexpectedRDATA
	KindDecodeError

	KindServerFailure
	KindRetryLimitExceeded
	KindTimeoutExpired
	KindIllegalDomain
	KindNetworkFailure
	KindBadConfiguration
	KindUnknownDNSError

	KindNameError
	KindNotImplemented
	KindOperationRefused
	KindBadOptRecord

	KindVerifyFailed
)

// RcodeFor maps a Kind to the RCODE a transport layer should reply with,
// per the fixed table of error handling design.
func RcodeFor(k Kind) int {
	switch k {
	case KindFormatError, KindSequenceNumberMismatch, KindQuestionMismatch, KindUnexpectedRDATA, KindDecodeError:
		return dns.RcodeFormatError
	case KindServerFailure, KindRetryLimitExceeded, KindTimeoutExpired, KindIllegalDomain, KindNetworkFailure, KindBadConfiguration, KindUnknownDNSError, KindVerifyFailed:
		return dns.RcodeServerFailure
	case KindNameError:
		return dns.RcodeNameError
	case KindNotImplemented:
		return dns.RcodeNotImplemented
	case KindOperationRefused:
		return dns.RcodeRefused
	case KindBadOptRecord:
		return dns.RcodeBadVers
	default:
		return dns.RcodeServerFailure
	}
}

// QueryError pairs a Kind with the underlying cause and the zone (if any)
// the failure occurred against, for logging and for RcodeFor.
type QueryError struct {
	Kind  Kind
	Zone  string
	Err   error
}

func (e *QueryError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return kindText[e.Kind]
}

func (e *QueryError) Unwrap() error { return e.Err }

var kindText = map[Kind]string{
	KindFormatError:            "resolver: malformed response",
	KindSequenceNumberMismatch: "resolver: response ID did not match query",
	KindQuestionMismatch:       "resolver: response question section did not match query",
	KindUnexpectedRDATA:        "resolver: response carried both CNAME and the requested type",
	KindDecodeError:            "resolver: failed to decode response",
	KindServerFailure:          "resolver: upstream server failure",
	KindRetryLimitExceeded:     "resolver: retry limit exceeded",
	KindTimeoutExpired:         "resolver: query timed out",
	KindIllegalDomain:          "resolver: illegal domain name",
	KindNetworkFailure:         "resolver: network failure",
	KindBadConfiguration:       "resolver: bad configuration",
	KindUnknownDNSError:        "resolver: unknown DNS error",
	KindNameError:              "resolver: name error (NXDOMAIN)",
	KindNotImplemented:         "resolver: query kind not implemented",
	KindOperationRefused:       "resolver: operation refused",
	KindBadOptRecord:           "resolver: EDNS version mismatch",
	KindVerifyFailed:           "resolver: DNSSEC validation failed",
}

func qErr(kind Kind, zone string, err error) *QueryError {
	return &QueryError{Kind: kind, Zone: zone, Err: err}
}
