// Package resolver implements the core of an iterative, DNSSEC-validating
// DNS resolver: a ranked TTL-priority cache (RankedCache) and the
// iterative resolution engine that walks the delegation hierarchy from
// the root, validates DS -> DNSKEY -> RRSIG chains, and materializes
// authoritative answers into the cache.
//
// Wire-format encoding/decoding, the multi-transport front end, and
// cryptographic primitive implementations are external collaborators;
// this package consumes github.com/miekg/dns types for RRs and messages
// and checks signatures through the Verifier interface. The resolution
// engine always uses DefaultVerifier; VerifyRRset accepts any Verifier.
package resolver
