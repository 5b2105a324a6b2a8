package resolver

import (
	"crypto/rand"
	"encoding/binary"
)

// IDGenerator produces fresh 16-bit DNS message IDs from a CSPRNG. Every
// call reads directly from crypto/rand: it costs a syscall per query ID,
// but needs no shared PRNG state and is trivially safe for concurrent
// callers.
type IDGenerator struct{}

// NewIDGenerator returns an IDGenerator. It carries no state.
func NewIDGenerator() *IDGenerator { return &IDGenerator{} }

// Next returns a new 16-bit ID suitable for a DNS query.
func (*IDGenerator) Next() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
