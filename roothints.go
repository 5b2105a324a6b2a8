package resolver

import (
	"strings"

	"github.com/miekg/dns"
)

// compiledInRootHints is the IANA root server set, the same hints data
// shipped with BIND/unbound and kept current the same way: names and
// A/AAAA glue for the thirteen lettered root servers.
const compiledInRootHints = `; Root hints file - IANA root servers
.                       3600000  IN  NS    a.root-servers.net.
.                       3600000  IN  NS    b.root-servers.net.
.                       3600000  IN  NS    c.root-servers.net.
.                       3600000  IN  NS    d.root-servers.net.
.                       3600000  IN  NS    e.root-servers.net.
.                       3600000  IN  NS    f.root-servers.net.
.                       3600000  IN  NS    g.root-servers.net.
.                       3600000  IN  NS    h.root-servers.net.
.                       3600000  IN  NS    i.root-servers.net.
.                       3600000  IN  NS    j.root-servers.net.
.                       3600000  IN  NS    k.root-servers.net.
.                       3600000  IN  NS    l.root-servers.net.
.                       3600000  IN  NS    m.root-servers.net.
a.root-servers.net.     3600000  IN  A     198.41.0.4
a.root-servers.net.     3600000  IN  AAAA  2001:503:ba3e::2:30
b.root-servers.net.     3600000  IN  A     170.247.170.2
b.root-servers.net.     3600000  IN  AAAA  2801:1b8:10::b
c.root-servers.net.     3600000  IN  A     192.33.4.12
c.root-servers.net.     3600000  IN  AAAA  2001:500:2::c
d.root-servers.net.     3600000  IN  A     199.7.91.13
d.root-servers.net.     3600000  IN  AAAA  2001:500:2d::d
e.root-servers.net.     3600000  IN  A     192.203.230.10
e.root-servers.net.     3600000  IN  AAAA  2001:500:a8::e
f.root-servers.net.     3600000  IN  A     192.5.5.241
f.root-servers.net.     3600000  IN  AAAA  2001:500:2f::f
g.root-servers.net.     3600000  IN  A     192.112.36.4
g.root-servers.net.     3600000  IN  AAAA  2001:500:12::d0d
h.root-servers.net.     3600000  IN  A     198.97.190.53
h.root-servers.net.     3600000  IN  AAAA  2001:500:1::53
i.root-servers.net.     3600000  IN  A     192.36.148.17
i.root-servers.net.     3600000  IN  AAAA  2001:7fe::53
j.root-servers.net.     3600000  IN  A     192.58.128.30
j.root-servers.net.     3600000  IN  AAAA  2001:503:c27::2:30
k.root-servers.net.     3600000  IN  A     193.0.14.129
k.root-servers.net.     3600000  IN  AAAA  2001:7fd::1
l.root-servers.net.     3600000  IN  A     199.7.83.42
l.root-servers.net.     3600000  IN  AAAA  2001:500:9f::42
m.root-servers.net.     3600000  IN  A     202.12.27.33
m.root-servers.net.     3600000  IN  AAAA  2001:dc3::35
`

// rootSEPDS is the IANA-published KSK-2017 DS for the root zone
// (key tag 20326, algorithm 8, digest type 2).
var rootSEPDS = &dns.DS{
	Hdr:        dns.RR_Header{Name: ".", Rrtype: dns.TypeDS, Class: dns.ClassINET, Ttl: 172800},
	KeyTag:     20326,
	Algorithm:  8,
	DigestType: 2,
	Digest:     "E06D44B80B8F1D39A95C0B0D7C65D08458E880409BBC683457104237C7F8EC8D",
}

// parseRootHints parses a zone-file formatted hints blob (the compiled-in
// default, or an operator-supplied override) into root NS and glue records
// suitable for NsEntries.
func parseRootHints(zone string) ([]*dns.NS, []dns.RR, error) {
	zp := dns.NewZoneParser(strings.NewReader(zone), ".", "root-hints")
	var ns []*dns.NS
	var glue []dns.RR
	for rr, ok := zp.Next(); ok; rr, ok = zp.Next() {
		switch r := rr.(type) {
		case *dns.NS:
			ns = append(ns, r)
		case *dns.A, *dns.AAAA:
			glue = append(glue, rr)
		}
	}
	if err := zp.Err(); err != nil {
		return nil, nil, err
	}
	return ns, glue, nil
}

// rootHintEntries builds the NsEntry set for rootDelegation from the
// compiled-in hints, pairing each root server name with its glue.
func rootHintEntries() ([]NsEntry, error) {
	nsRRs, glue, err := parseRootHints(compiledInRootHints)
	if err != nil {
		return nil, err
	}
	glueByName := make(map[string][]dns.RR, len(glue))
	for _, rr := range glue {
		name := dns.CanonicalName(rr.Header().Name)
		glueByName[name] = append(glueByName[name], rr)
	}
	var entries []NsEntry
	for _, ns := range nsRRs {
		name := dns.CanonicalName(ns.Ns)
		entries = append(entries, newNsEntry(name, glueByName[name]))
	}
	return entries, nil
}

// rootDelegation returns the hard-coded root Delegation built from the
// compiled-in root hints table, trusting the IANA root SEP DS. It is the
// fallback used whenever live root priming fails.
func rootDelegation() (*Delegation, error) {
	entries, err := rootHintEntries()
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, ErrNoDelegation
	}
	return &Delegation{
		Zone:      ".",
		NsEntries: entries,
		DsState:   DsState{Kind: DsFilledDS, DS: []*dns.DS{rootSEPDS}},
		Fresh:     FreshCached,
	}, nil
}
