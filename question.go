package resolver

import (
	"errors"
	"strings"

	"github.com/miekg/dns"
)

var (
	// ErrNameTooLong is returned when a qname exceeds the RFC 1035 length limits.
	ErrNameTooLong = errors.New("resolver: domain name too long")
	// ErrLabelTooLong is returned when a single label exceeds 63 octets.
	ErrLabelTooLong = errors.New("resolver: domain name label too long")
	// ErrEmptyName is returned for an empty qname, or one other than "."
	// that contains no dot.
	ErrEmptyName = errors.New("resolver: empty domain name")
	// ErrIllegalChar is returned when a qname contains a disallowed character.
	ErrIllegalChar = errors.New("resolver: domain name contains illegal character")
)

// Question is the cache key and query coordinate: (name, type, class).
// Name is stored canonicalized: lowercase, with a trailing root label.
type Question struct {
	Name  string
	Type  uint16
	Class uint16
}

// NewQuestion canonicalizes name and returns a Question of the given type,
// defaulting to the Internet class. It enforces the domain name grammar:
// total length <= 253 octets without the trailing dot (254 with), each
// label <= 63 octets, and no ':' or '/' characters.
func NewQuestion(name string, qtype uint16) (Question, error) {
	canon, err := CanonicalName(name)
	if err != nil {
		return Question{}, err
	}
	return Question{Name: canon, Type: qtype, Class: dns.ClassINET}, nil
}

// CanonicalName lowercases name and ensures a trailing root label, enforcing
// domain name length and character rules.
func CanonicalName(name string) (string, error) {
	if name == "" {
		return "", ErrEmptyName
	}
	if strings.ContainsAny(name, ":/") {
		return "", ErrIllegalChar
	}
	if !strings.Contains(name, ".") && name != "." {
		return "", ErrEmptyName
	}
	fq := dns.Fqdn(strings.ToLower(name))
	withoutDot := strings.TrimSuffix(fq, ".")
	if len(withoutDot) > 253 {
		return "", ErrNameTooLong
	}
	if len(fq) > 254 {
		return "", ErrNameTooLong
	}
	for _, label := range dns.SplitDomainName(fq) {
		if len(label) > 63 {
			return "", ErrLabelTooLong
		}
	}
	return fq, nil
}

// superDomains returns the chain of super-domains of name from TLD down to
// name itself, always starting with the root. For "www.example.com." it
// returns [".", "com.", "example.com.", "www.example.com."].
func superDomains(name string) []string {
	labels := dns.SplitDomainName(name)
	out := make([]string, 0, len(labels)+1)
	out = append(out, ".")
	for i := len(labels) - 1; i >= 0; i-- {
		out = append(out, dns.Fqdn(strings.Join(labels[i:], ".")))
	}
	return out
}

// isStrictSubdomain reports whether child is a strict sub-domain of parent.
func isStrictSubdomain(child, parent string) bool {
	if child == parent {
		return false
	}
	return dns.IsSubDomain(parent, child)
}
