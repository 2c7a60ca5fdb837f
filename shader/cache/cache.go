// Copyright 2024 The ProbeChain Authors
// This file is part of the ProbeChain.

package cache

import (
	"errors"
	"fmt"
	"strconv"

	lru "github.com/hashicorp/golang-lru"
	"golang.org/x/sync/singleflight"

	"github.com/probeum/picavs/shader/jit"
)

// ErrCacheUnavailable is returned when the backing LRU store could not be
// constructed. This is the "resource-exhausted" class from §7; a caller
// hitting it should treat the session as unable to continue.
var ErrCacheUnavailable = errors.New("cache: shader cache unavailable")

// defaultSize is generous for a single emulator session: real titles
// rarely juggle more than a few hundred distinct vertex shader programs,
// so eviction is reachable in principle but never fires in practice.
const defaultSize = 4096

// Entry is one compiled shader. Program is nil when the program compiled
// successfully but the JIT declined to take it (e.g. dynamic uniform
// addressing it doesn't lower); Core.Run then uses the interpreter for
// that fingerprint instead of treating the miss as an error.
type Entry struct {
	Program *jit.Program
}

// Cache maps a program fingerprint (see Fingerprint) to its compiled
// Entry. It is safe for concurrent use: lookups are lock-free reads
// against the underlying LRU, and compilation of a given fingerprint is
// deduplicated via singleflight so two goroutines racing a Setup for the
// same program never compile it twice.
type Cache struct {
	lru   *lru.Cache
	group singleflight.Group
}

// New constructs a Cache with room for size entries.
func New(size int) (*Cache, error) {
	l, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCacheUnavailable, err)
	}
	return &Cache{lru: l}, nil
}

// NewDefault constructs a Cache sized for one emulator session (§4.4).
func NewDefault() (*Cache, error) {
	return New(defaultSize)
}

// Get returns the entry cached for fp, if any, without triggering a
// compile.
func (c *Cache) Get(fp uint64) (*Entry, bool) {
	v, ok := c.lru.Get(fp)
	if !ok {
		return nil, false
	}
	return v.(*Entry), true
}

// GetOrCompile returns the cached entry for fp, calling compile to
// produce and store one if this is the first sighting of fp since
// construction or the last Shutdown. At most one call to compile runs
// per distinct fingerprint even under concurrent callers (§4.4, §8).
func (c *Cache) GetOrCompile(fp uint64, compile func() (*Entry, error)) (*Entry, error) {
	if e, ok := c.Get(fp); ok {
		return e, nil
	}
	v, err, _ := c.group.Do(strconv.FormatUint(fp, 16), func() (interface{}, error) {
		if e, ok := c.Get(fp); ok {
			return e, nil
		}
		e, err := compile()
		if err != nil {
			return nil, err
		}
		c.lru.Add(fp, e)
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Entry), nil
}

// Shutdown purges every cached entry. A subsequent GetOrCompile for a
// previously-seen fingerprint recompiles, per §4.4 and §8.
func (c *Cache) Shutdown() {
	c.lru.Purge()
}

// Len reports the number of entries currently cached, mainly useful in
// tests asserting cache-hit behaviour without reaching into internals.
func (c *Cache) Len() int {
	return c.lru.Len()
}
