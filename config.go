package resolver

import "github.com/miekg/dns"

// Config carries the core-relevant configuration named in the external
// interfaces: cache sizing, negative-TTL capping, the v6 policy, an
// optional override of the compiled root trust anchors, and the default
// DO flag. There is no file or flag parsing here — populating this struct
// from a config file or CLI flags is a transport/control-plane concern
// outside this package.
type Config struct {
	CacheSize         int
	NegativeMinTTLCap uint32
	DisableV6NS       bool
	RootTrustAnchors  []*dns.DS
	DNSSECOkDefault   bool
}

// DefaultConfig returns the implementation-defined defaults named in the
// external interfaces section.
func DefaultConfig() Config {
	return Config{
		CacheSize:         2048,
		NegativeMinTTLCap: 1800,
		DisableV6NS:       false,
		DNSSECOkDefault:   true,
	}
}
