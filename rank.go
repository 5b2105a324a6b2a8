package resolver

// Ranking is the RFC 2181 §5.4.1 ordering used to prevent weaker data
// from overwriting stronger data already in the cache. Values are
// ordered low to high; a cached entry is only replaced by an insert
// whose Ranking is strictly greater.
type Ranking uint8

const (
	// RankAdditional covers glue and additional-section data, and any
	// authority-section data regardless of the AA flag: promoting an AA
	// reply's authority section would let a compromised or misconfigured
	// server overwrite glue with a referral-adjacent record of its own
	// choosing.
	RankAdditional Ranking = iota + 1
	// RankAnswer covers answer-section data from a non-authoritative
	// (AA=0) reply, and is also used by StubInsert.
	RankAnswer
	// RankAuthAnswer covers answer-section data from an authoritative
	// (AA=1) reply.
	RankAuthAnswer
)

func (r Ranking) String() string {
	switch r {
	case RankAdditional:
		return "additional"
	case RankAnswer:
		return "answer"
	case RankAuthAnswer:
		return "auth-answer"
	default:
		return "unknown"
	}
}

// section identifies which part of a DNS reply a set of records came from,
// used only to compute the Ranking of an insert.
type section uint8

const (
	sectionAnswer section = iota
	sectionAuthority
	sectionAdditional
)

// rankFor maps a reply section and its AA flag to a Ranking.
func rankFor(sec section, aa bool) Ranking {
	switch sec {
	case sectionAnswer:
		if aa {
			return RankAuthAnswer
		}
		return RankAnswer
	case sectionAuthority:
		return RankAdditional
	default:
		return RankAdditional
	}
}
