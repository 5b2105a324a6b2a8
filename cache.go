package resolver

import (
	"container/heap"
	"fmt"
	"sync"

	"github.com/miekg/dns"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// cacheEntry is one priority-search-queue node: a Hit plus its Ranking,
// ordered in the heap by absolute expiry (seconds since the epoch).
type cacheEntry struct {
	key    Question
	hit    Hit
	rank   Ranking
	expiry int64
	idx    int // position in the heap slice, maintained by container/heap
}

// entryHeap is a min-heap over cacheEntry.expiry, giving O(log n) insert
// and an O(1) view of the minimum-expiry entry.
type entryHeap []*cacheEntry

func (h entryHeap) Len() int            { return len(h) }
func (h entryHeap) Less(i, j int) bool  { return h[i].expiry < h[j].expiry }
func (h entryHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].idx = i; h[j].idx = j }
func (h *entryHeap) Push(x interface{}) {
	e := x.(*cacheEntry)
	e.idx = len(*h)
	*h = append(*h, e)
}
func (h *entryHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.idx = -1
	*h = old[:n-1]
	return e
}

func cacheKeyString(q Question) string {
	return fmt.Sprintf("%s|%d|%d", q.Name, q.Type, q.Class)
}

// RankedCache is a bounded, TTL-priority cache keyed by Question, enforcing
// an RFC 2181 §5.4.1 ranking discipline. It pairs a sharded concurrent map
// (for O(1) key lookup) with a mutex-guarded binary heap (for the
// min-expiry eviction view); both are mutated under the same lock so the
// two stay consistent.
type RankedCache struct {
	mu      sync.Mutex
	heap    entryHeap
	index   cmap.ConcurrentMap[string, *cacheEntry]
	maxSize int
}

// NewRankedCache returns a cache with the given capacity. A maxSize <= 0
// disables all inserts (Insert always returns false).
func NewRankedCache(maxSize int) *RankedCache {
	return &RankedCache{
		heap:    make(entryHeap, 0),
		index:   cmap.New[*cacheEntry](),
		maxSize: maxSize,
	}
}

// Size returns the number of live-or-not-yet-swept entries currently held.
func (c *RankedCache) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.heap)
}

func saturateTTL(delta int64) uint32 {
	if delta <= 0 {
		return 0
	}
	if delta > int64(^uint32(0)) {
		return ^uint32(0)
	}
	return uint32(delta)
}

// Insert applies the ranking and eviction rules. It returns false if the
// cache is disabled (maxSize <= 0), if an existing unexpired entry's rank
// is >= the new rank (a lower-or-equal rank never overwrites), or if the
// new entry would be evicted on arrival (its expiry isn't later than the
// current minimum and the cache is already full).
func (c *RankedCache) Insert(now int64, key Question, ttl uint32, hit Hit, rank Ranking) bool {
	if c.maxSize <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.insertLocked(now, key, ttl, hit, rank)
}

func (c *RankedCache) insertLocked(now int64, key Question, ttl uint32, hit Hit, rank Ranking) bool {
	expiry := now + int64(ttl)
	ks := cacheKeyString(key)
	if existing, ok := c.index.Get(ks); ok {
		unexpired := existing.expiry > now
		if unexpired && rank <= existing.rank {
			return false // lower-or-equal rank never overwrites an unexpired entry
		}
		existing.hit = hit
		existing.rank = rank
		existing.expiry = expiry
		if existing.idx >= 0 && existing.idx < len(c.heap) {
			heap.Fix(&c.heap, existing.idx)
		}
		return true
	}
	if len(c.heap) < c.maxSize {
		e := &cacheEntry{key: key, hit: hit, rank: rank, expiry: expiry}
		heap.Push(&c.heap, e)
		c.index.Set(ks, e)
		return true
	}
	// Full: evict the earliest-expiring entry iff the newcomer outlives it.
	min := c.heap[0]
	if expiry <= min.expiry {
		return false
	}
	c.index.Remove(cacheKeyString(min.key))
	heap.Pop(&c.heap)
	e := &cacheEntry{key: key, hit: hit, rank: rank, expiry: expiry}
	heap.Push(&c.heap, e)
	c.index.Set(ks, e)
	return true
}

// Lookup returns the entry for key if it hasn't expired, with the
// remaining TTL saturated to an unsigned 32-bit value.
func (c *RankedCache) Lookup(now int64, key Question) (ttlRemaining uint32, hit Hit, rank Ranking, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, present := c.index.Get(cacheKeyString(key))
	if !present || e.expiry <= now {
		return 0, Hit{}, 0, false
	}
	return saturateTTL(e.expiry - now), e.hit, e.rank, true
}

// Expire sweeps every entry whose expiry is <= now, starting from the
// minimum-priority entry, and reports whether anything was removed.
// InsertWithExpire calls it at insertion boundaries so no background timer
// is required to keep expired entries from being returned by Lookup.
func (c *RankedCache) Expire(now int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.expireLocked(now)
}

func (c *RankedCache) expireLocked(now int64) bool {
	if len(c.heap) == 0 || c.heap[0].expiry > now {
		return false
	}
	removed := false
	for len(c.heap) > 0 && c.heap[0].expiry <= now {
		min := heap.Pop(&c.heap).(*cacheEntry)
		c.index.Remove(cacheKeyString(min.key))
		removed = true
	}
	return removed
}

// InsertWithExpire sweeps expired entries and then inserts, so the cache
// is kept tidy at every write without a background goroutine.
func (c *RankedCache) InsertWithExpire(now int64, key Question, ttl uint32, hit Hit, rank Ranking) bool {
	if c.maxSize <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.expireLocked(now)
	return c.insertLocked(now, key, ttl, hit, rank)
}

// InsertRRs groups rrs by (name, type, class), validates each group as a
// canonical RRset, and inserts each as KindPositiveNotVerified at rank. It
// reports whether at least one group was inserted.
func (c *RankedCache) InsertRRs(now int64, rrs []dns.RR, rank Ranking) bool {
	any := false
	for _, p := range pendingFromRRs(rrs) {
		any = insertPending(c, now, p, rank) || any
	}
	return any
}

// EitherResult is the materialized view returned by LookupEither: either a
// negative hit's SOA (with capped TTL), or a positive hit's answer RRs.
type EitherResult struct {
	Negative bool
	SOARRs   []dns.RR
	AnswerRRs []dns.RR
	Rank     Ranking
}

// LookupEither resolves a cached negative-or-positive value into the RRs a
// caller would answer with: for a Negative hit it performs a second lookup
// of (soa_owner, SOA, IN) and returns the SOA
// materialized with TTL capped at the negative entry's remaining TTL; for
// a Positive hit it returns the materialized answer RRs (with synthetic
// RRSIGs when the hit was validated). KindNegativeNoSOA has no either-side
// representation and reports ok=false; callers wanting its Rcode should
// use Lookup directly.
func (c *RankedCache) LookupEither(now int64, key Question) (*EitherResult, bool) {
	ttlRemaining, hit, rank, ok := c.Lookup(now, key)
	if !ok {
		return nil, false
	}
	switch hit.Kind {
	case KindNegative:
		soaKey := Question{Name: hit.SOAOwner, Type: dns.TypeSOA, Class: dns.ClassINET}
		soaTTL, soaHit, _, soaOK := c.Lookup(now, soaKey)
		if !soaOK || !soaHit.Positive() {
			return nil, false
		}
		cap := ttlRemaining
		if soaTTL < cap {
			cap = soaTTL
		}
		return &EitherResult{Negative: true, SOARRs: withTTL(soaHit.RDatas, cap), Rank: rank}, true
	case KindPositiveNotVerified, KindPositiveValid:
		rrs := withTTL(hit.RDatas, ttlRemaining)
		if hit.Kind == KindPositiveValid {
			rrs = append(rrs, withTTL(hit.RRSIGs, ttlRemaining)...)
		}
		return &EitherResult{Negative: false, AnswerRRs: rrs, Rank: rank}, true
	default:
		return nil, false
	}
}

// withTTL returns copies of rrs with Ttl overwritten to ttl, so the
// records returned to a caller reflect the cache entry's remaining
// lifetime rather than the TTL they were originally inserted with.
func withTTL(rrs []dns.RR, ttl uint32) []dns.RR {
	out := make([]dns.RR, 0, len(rrs))
	for _, rr := range rrs {
		c := dns.Copy(rr)
		c.Header().Ttl = ttl
		out = append(out, c)
	}
	return out
}

// StubInsert bypasses ranking entirely: it always writes at RankAnswer,
// regardless of what (if anything) already occupies key, using an
// externally supplied absolute expiry rather than now+ttl. It exists for
// test harnesses and stub-resolver style callers that don't participate
// in the normal delegation walk.
func (c *RankedCache) StubInsert(key Question, hit Hit, absoluteExpiry int64) {
	if c.maxSize <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	ks := cacheKeyString(key)
	if existing, ok := c.index.Get(ks); ok {
		existing.hit = hit
		existing.rank = RankAnswer
		existing.expiry = absoluteExpiry
		if existing.idx >= 0 && existing.idx < len(c.heap) {
			heap.Fix(&c.heap, existing.idx)
		}
		return
	}
	e := &cacheEntry{key: key, hit: hit, rank: RankAnswer, expiry: absoluteExpiry}
	heap.Push(&c.heap, e)
	c.index.Set(ks, e)
}

// StubLookup bypasses ranking on read: it is Lookup without the rank
// return, for callers that only care whether unexpired data exists.
func (c *RankedCache) StubLookup(now int64, key Question) (Hit, bool) {
	_, hit, _, ok := c.Lookup(now, key)
	return hit, ok
}
