package resolver

import (
	"sync/atomic"

	"github.com/jmhodges/clock"
	"github.com/miekg/dns"
)

// Environment is the process-wide shared state the engine closes over:
// the cache, a clock (real or fake, for tests), a CSPRNG-backed ID
// generator, a logger, the root-delegation cell, and the subset of Config
// that affects resolution behavior directly.
type Environment struct {
	Cache  *RankedCache
	Clock  clock.Clock
	IDGen  *IDGenerator
	Log    *Logger
	Config Config

	rootCell atomic.Pointer[Delegation]
}

// NewEnvironment builds an Environment from cfg, using the real wall
// clock. Tests construct one directly with clock.NewFake() instead of
// going through this constructor.
func NewEnvironment(cfg Config) *Environment {
	return &Environment{
		Cache:  NewRankedCache(cfg.CacheSize),
		Clock:  clock.New(),
		IDGen:  NewIDGenerator(),
		Log:    NewLogger(),
		Config: cfg,
	}
}

// now returns the current time as seconds since the epoch, the unit every
// cache operation in this package uses.
func (e *Environment) now() int64 {
	return e.Clock.Now().Unix()
}

// rootDelegationCached returns the process-wide root Delegation if one has
// been primed, for lock-free reads from concurrent queries.
func (e *Environment) rootDelegationCached() *Delegation {
	return e.rootCell.Load()
}

// setRootDelegation atomically replaces the root-delegation cell, the only
// mutation root priming performs.
func (e *Environment) setRootDelegation(d *Delegation) {
	e.rootCell.Store(d)
}

// trustAnchorDS returns the configured root trust anchors, falling back to
// the compiled-in IANA root SEP DS when the operator supplied none.
func (e *Environment) trustAnchorDS() []*dns.DS {
	if len(e.Config.RootTrustAnchors) > 0 {
		return e.Config.RootTrustAnchors
	}
	return []*dns.DS{rootSEPDS}
}
