package fwupdate

import (
	"bytes"
	"strings"
	"testing"

	"boardcode-go/board/boardcore"
)

const imageName = "bootloader.bin"

func fixture(image []byte) (*boardcore.MemFlash, *boardcore.MemImageStore, *boardcore.HostScheduler) {
	flash := boardcore.NewMemFlash(4, 1024)
	store := &boardcore.MemImageStore{Images: map[string][]byte{}}
	if image != nil {
		store.Images[imageName] = image
	}
	return flash, store, &boardcore.HostScheduler{}
}

// expectDeadlineCleared asserts the declare/clear pairing: one declaration,
// one unconditional clear, in that order.
func expectDeadlineCleared(t *testing.T, sched *boardcore.HostScheduler) {
	t.Helper()
	if len(sched.ExpectCalls) != 2 {
		t.Fatalf("expected declare+clear, got calls %v", sched.ExpectCalls)
	}
	if sched.ExpectCalls[0] == 0 || sched.ExpectCalls[1] != 0 {
		t.Fatalf("bad deadline sequence: %v", sched.ExpectCalls)
	}
}

func TestUpToDateSkipsFlash(t *testing.T) {
	image := bytes.Repeat([]byte{0xC3}, 512)
	flash, store, sched := fixture(image)
	flash.Write(0, image) // live flash already holds the candidate
	flash.WriteCalls = 0

	var console bytes.Buffer
	res := New(flash, store, sched, &console, Config{}).Run()

	if res.State != StateUpToDate || !res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if flash.EraseCalls != 0 || flash.WriteCalls != 0 {
		t.Fatalf("flash touched on no-op update: erase=%d write=%d", flash.EraseCalls, flash.WriteCalls)
	}
	if !strings.Contains(console.String(), "up-to-date") {
		t.Fatalf("missing console report: %q", console.String())
	}
	expectDeadlineCleared(t, sched)
}

func TestImageMissing(t *testing.T) {
	flash, store, sched := fixture(nil)

	res := New(flash, store, sched, nil, Config{}).Run()

	if res.State != StateImageMissing || res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if flash.EraseCalls != 0 || flash.WriteCalls != 0 {
		t.Fatal("flash touched despite missing image")
	}
	expectDeadlineCleared(t, sched)
}

func TestFlashesDifferingImage(t *testing.T) {
	image := []byte("new bootloader image")
	flash, store, sched := fixture(image)

	res := New(flash, store, sched, nil, Config{}).Run()

	if res.State != StateFlashed || res.Attempts != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if flash.EraseCalls != 1 {
		t.Fatalf("erase called %d times, want 1", flash.EraseCalls)
	}
	got := make([]byte, len(image))
	flash.Read(0, got)
	if !bytes.Equal(got, image) {
		t.Fatalf("flash content mismatch: %q", got)
	}
	expectDeadlineCleared(t, sched)
}

func TestWriteRetriesWithFlatBackoff(t *testing.T) {
	image := []byte("retry me")
	flash, store, sched := fixture(image)
	flash.FailWrites = 3

	res := New(flash, store, sched, nil, Config{}).Run()

	if res.State != StateFlashed || res.Attempts != 4 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(sched.DelayCalls) != 3 {
		t.Fatalf("delay called %d times, want 3", len(sched.DelayCalls))
	}
	for _, d := range sched.DelayCalls {
		if d != 1000 {
			t.Fatalf("backoff not flat: %v", sched.DelayCalls)
		}
	}
	expectDeadlineCleared(t, sched)
}

func TestWriteExhaustsAttempts(t *testing.T) {
	image := []byte("never lands")
	flash, store, sched := fixture(image)
	flash.FailWrites = 100 // more than the attempt bound

	res := New(flash, store, sched, nil, Config{}).Run()

	if res.State != StateWriteFailed || res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if res.Attempts != 10 || flash.WriteCalls != 10 {
		t.Fatalf("attempts=%d writes=%d, want exactly 10", res.Attempts, flash.WriteCalls)
	}
	if flash.EraseCalls != 1 {
		t.Fatalf("erase retried: %d calls", flash.EraseCalls)
	}
	expectDeadlineCleared(t, sched)
}

func TestEraseFailureIsTerminal(t *testing.T) {
	image := []byte("won't get there")
	flash, store, sched := fixture(image)
	flash.FailErase = true

	res := New(flash, store, sched, nil, Config{}).Run()

	if res.State != StateEraseFailed || res.OK() {
		t.Fatalf("unexpected result: %+v", res)
	}
	if flash.EraseCalls != 1 || flash.WriteCalls != 0 {
		t.Fatalf("erase=%d write=%d, want 1/0", flash.EraseCalls, flash.WriteCalls)
	}
	expectDeadlineCleared(t, sched)
}

func TestConfigDefaults(t *testing.T) {
	u := New(nil, nil, nil, nil, Config{})
	if u.cfg.ImageName != imageName || u.cfg.MaxAttempts != 10 ||
		u.cfg.RetryDelayMs != 1000 || u.cfg.DeadlineMs != 5000 {
		t.Fatalf("bad defaults: %+v", u.cfg)
	}
}
