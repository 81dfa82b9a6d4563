package memalloc

import "testing"

func newSmall() *Allocator {
	return New(Config{DefaultBytes: 1024, DMABytes: 128, FastBytes: 64})
}

func TestDMANeverFallsBack(t *testing.T) {
	a := newSmall()

	// Larger than the whole DMA region: must fail outright.
	if b := a.Alloc(256, KindDMASafe); b != nil {
		t.Fatalf("expected nil for oversized DMA request, got %d bytes", len(b))
	}

	// Exhaust the region, then ask for more.
	first := a.Alloc(128, KindDMASafe)
	if first == nil {
		t.Fatal("expected DMA allocation to succeed")
	}
	if !a.Owns(KindDMASafe, first) {
		t.Fatal("DMA block not owned by DMA region")
	}
	if b := a.Alloc(1, KindDMASafe); b != nil {
		t.Fatal("expected nil once DMA region is exhausted, got a block")
	}
	// The general pool must be untouched by the failed DMA requests.
	if got := a.Available(); got != 1024 {
		t.Fatalf("general pool disturbed by DMA exhaustion: available=%d", got)
	}
}

func TestFastFallsBackToDefault(t *testing.T) {
	a := newSmall()

	// Fits neither fast region; must come from the general pool.
	b := a.Alloc(256, KindFast)
	if b == nil {
		t.Fatal("expected fast request to fall back to the general pool")
	}
	if a.Owns(KindFast, b) {
		t.Fatal("fallback block reported as fast-region resident")
	}
	if !a.Owns(KindDefault, b) {
		t.Fatal("fallback block not owned by the general pool")
	}
	if got := a.Available(); got != 1024-256 {
		t.Fatalf("available=%d after fallback, want %d", got, 1024-256)
	}

	// Free with the kind it was requested as; the owning pool gets it back.
	a.Free(b, KindFast)
	if got := a.Available(); got != 1024 {
		t.Fatalf("available=%d after free, want 1024", got)
	}
}

func TestFastPrimaryWhenRoom(t *testing.T) {
	a := newSmall()
	b := a.Alloc(32, KindFast)
	if b == nil {
		t.Fatal("expected fast allocation to succeed")
	}
	if !a.Owns(KindFast, b) {
		t.Fatal("small fast block should live in the fast region")
	}
}

func TestDefaultZeroFillsReusedBlocks(t *testing.T) {
	a := newSmall()

	b := a.Alloc(64, KindDefault)
	if b == nil {
		t.Fatal("alloc failed")
	}
	for i := range b {
		b[i] = 0xA5
	}
	a.Free(b, KindDefault)

	c := a.Alloc(64, KindDefault)
	if c == nil {
		t.Fatal("re-alloc failed")
	}
	for i, v := range c {
		if v != 0 {
			t.Fatalf("byte %d not zeroed on reuse: %#x", i, v)
		}
	}
}

func TestFreeEdgeCases(t *testing.T) {
	a := newSmall()

	a.Free(nil, KindDefault) // no-op
	a.Free([]byte{1, 2, 3}, KindDefault) // foreign block, no-op

	b := a.Alloc(16, KindDefault)
	a.Free(b, KindDefault)
	a.Free(b, KindDefault) // double free, no-op
	if got := a.Available(); got != 1024 {
		t.Fatalf("available=%d after edge-case frees, want 1024", got)
	}
}

func TestFreedSpaceIsReused(t *testing.T) {
	a := New(Config{DefaultBytes: 128, DMABytes: 16, FastBytes: 16})

	b1 := a.Alloc(64, KindDefault)
	b2 := a.Alloc(64, KindDefault)
	if b1 == nil || b2 == nil {
		t.Fatal("setup allocations failed")
	}
	if b := a.Alloc(1, KindDefault); b != nil {
		t.Fatal("pool should be exhausted")
	}

	// Free the lower block: a later fit-sized request must reuse the hole.
	a.Free(b1, KindDefault)
	b3 := a.Alloc(48, KindDefault)
	if b3 == nil {
		t.Fatal("expected freed space to be reusable")
	}
}
