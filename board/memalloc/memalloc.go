// Package memalloc is the board's typed allocation layer. It does not try to
// be a general heap: it owns three bounded regions (general pool, DMA-capable,
// tightly-coupled fast RAM) and selects one per request.
//
// Fallback behaviour differs per kind and is fixed in a policy table:
//
//	KindFast     fast region, falls back to the general pool when exhausted
//	KindDMASafe  DMA region only; exhaustion is reported, never redirected
//	KindDefault  general pool, zero-filled
//
// A nil slice is the only failure signal.
package memalloc

import "sync"

// Kind selects the allocation strategy.
type Kind uint8

const (
	KindDefault Kind = iota
	KindDMASafe
	KindFast
)

func (k Kind) String() string {
	switch k {
	case KindDMASafe:
		return "dma_safe"
	case KindFast:
		return "fast"
	default:
		return "default"
	}
}

type regionID uint8

const (
	regionDefault regionID = iota
	regionDMA
	regionFast
	regionCount
)

// policy fixes where each kind is served from and whether it may fall back.
// DMA must never fall back: a non-DMA address handed to a peripheral would
// corrupt transfers silently.
type policy struct {
	primary   regionID
	fallback  regionID
	fallsBack bool
}

var policies = [...]policy{
	KindDefault: {primary: regionDefault},
	KindDMASafe: {primary: regionDMA},
	KindFast:    {primary: regionFast, fallback: regionDefault, fallsBack: true},
}

// -----------------------------------------------------------------------------
// Region
// -----------------------------------------------------------------------------

type extent struct{ off, size int }

// region is a bounded first-fit arena over a fixed backing buffer.
type region struct {
	name string
	buf  []byte
	brk  int              // bump pointer past the highest live block
	gaps []extent         // freed holes below brk, reused first-fit
	live map[*byte]extent // first byte of a live block -> its extent
}

func newRegion(name string, capacity int) *region {
	return &region{
		name: name,
		buf:  make([]byte, capacity),
		live: map[*byte]extent{},
	}
}

func (r *region) alloc(size int) []byte {
	for i, g := range r.gaps {
		if g.size < size {
			continue
		}
		if rest := g.size - size; rest > 0 {
			r.gaps[i] = extent{off: g.off + size, size: rest}
		} else {
			r.gaps = append(r.gaps[:i], r.gaps[i+1:]...)
		}
		return r.take(extent{off: g.off, size: size})
	}
	if r.brk+size > len(r.buf) {
		return nil
	}
	e := extent{off: r.brk, size: size}
	r.brk += size
	return r.take(e)
}

func (r *region) take(e extent) []byte {
	b := r.buf[e.off : e.off+e.size : e.off+e.size]
	r.live[&b[0]] = e
	return b
}

func (r *region) owns(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	_, ok := r.live[&b[0]]
	return ok
}

func (r *region) release(b []byte) bool {
	if len(b) == 0 {
		return false
	}
	e, ok := r.live[&b[0]]
	if !ok {
		return false
	}
	delete(r.live, &b[0])
	if e.off+e.size == r.brk {
		r.brk = e.off
	} else {
		r.gaps = append(r.gaps, e)
	}
	return true
}

func (r *region) available() int {
	n := len(r.buf) - r.brk
	for _, g := range r.gaps {
		n += g.size
	}
	return n
}

// -----------------------------------------------------------------------------
// Allocator
// -----------------------------------------------------------------------------

// Config sizes the three regions. Zero values pick board defaults.
type Config struct {
	DefaultBytes int
	DMABytes     int
	FastBytes    int
}

type Allocator struct {
	mu      sync.Mutex
	regions [regionCount]*region
}

func New(cfg Config) *Allocator {
	if cfg.DefaultBytes <= 0 {
		cfg.DefaultBytes = 64 * 1024
	}
	if cfg.DMABytes <= 0 {
		cfg.DMABytes = 8 * 1024
	}
	if cfg.FastBytes <= 0 {
		cfg.FastBytes = 16 * 1024
	}
	a := &Allocator{}
	a.regions[regionDefault] = newRegion("default", cfg.DefaultBytes)
	a.regions[regionDMA] = newRegion("dma", cfg.DMABytes)
	a.regions[regionFast] = newRegion("fast", cfg.FastBytes)
	return a
}

// Alloc returns a block of exactly size bytes, or nil on exhaustion.
// Callers must not assume a KindFast block actually lives in fast RAM.
func (a *Allocator) Alloc(size int, kind Kind) []byte {
	if size <= 0 || int(kind) >= len(policies) {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p := policies[kind]
	rid := p.primary
	b := a.regions[rid].alloc(size)
	if b == nil && p.fallsBack {
		rid = p.fallback
		b = a.regions[rid].alloc(size)
	}
	if b == nil {
		return nil
	}
	// General-pool blocks carry calloc semantics; fallback allocations land
	// there and get the same treatment.
	if rid == regionDefault {
		clear(b)
	}
	return b
}

// Free returns a block to the region that served it. Freeing nil or an
// unknown block is a no-op.
func (a *Allocator) Free(b []byte, kind Kind) {
	if len(b) == 0 || int(kind) >= len(policies) {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()

	p := policies[kind]
	if a.regions[p.primary].release(b) {
		return
	}
	if p.fallsBack {
		a.regions[p.fallback].release(b)
	}
}

// Owns reports whether b is a live block in the primary region for kind.
func (a *Allocator) Owns(kind Kind, b []byte) bool {
	if int(kind) >= len(policies) {
		return false
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regions[policies[kind].primary].owns(b)
}

// Available reports free bytes in the general pool.
func (a *Allocator) Available() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.regions[regionDefault].available()
}
