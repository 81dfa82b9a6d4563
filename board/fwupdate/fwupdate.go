// Package fwupdate re-flashes the secondary boot image from the embedded
// image store. It runs once, early in boot, and is the only board component
// allowed to block for seconds; the blocking window is declared to the
// scheduler up front and cleared on every exit path.
package fwupdate

import (
	"bytes"
	"fmt"
	"io"

	"boardcode-go/board/boardcore"
)

// State is the terminal state of one update run.
type State uint8

const (
	StateUpToDate State = iota
	StateFlashed
	StateImageMissing
	StateEraseFailed
	StateWriteFailed
)

func (s State) String() string {
	switch s {
	case StateUpToDate:
		return "up_to_date"
	case StateFlashed:
		return "flashed"
	case StateImageMissing:
		return "image_missing"
	case StateEraseFailed:
		return "erase_failed"
	case StateWriteFailed:
		return "write_failed"
	default:
		return "unknown"
	}
}

// Result reports how a run ended. Attempts counts write attempts only.
type Result struct {
	State    State
	Attempts int
}

// OK reports whether boot may treat the update as successful. A failed
// update is not boot-blocking; the caller decides what to do with false.
func (r Result) OK() bool {
	return r.State == StateUpToDate || r.State == StateFlashed
}

// Config controls one update run. Zero values pick the board defaults.
type Config struct {
	ImageName    string // default "bootloader.bin"
	PageIndex    int    // boot page, default 0
	MaxAttempts  int    // write attempts, default 10
	RetryDelayMs uint32 // flat backoff between write attempts, default 1000
	DeadlineMs   uint32 // declared non-yielding window, default 5000
}

type Updater struct {
	flash   boardcore.FlashDevice
	store   boardcore.ImageStore
	sched   boardcore.Scheduler
	console io.Writer
	cfg     Config
}

func New(flash boardcore.FlashDevice, store boardcore.ImageStore, sched boardcore.Scheduler, console io.Writer, cfg Config) *Updater {
	if cfg.ImageName == "" {
		cfg.ImageName = "bootloader.bin"
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 10
	}
	if cfg.RetryDelayMs == 0 {
		cfg.RetryDelayMs = 1000
	}
	if cfg.DeadlineMs == 0 {
		cfg.DeadlineMs = 5000
	}
	if console == nil {
		console = io.Discard
	}
	return &Updater{flash: flash, store: store, sched: sched, console: console, cfg: cfg}
}

// deadlineGuard scopes a declared non-yielding window. Acquisition declares
// the extended deadline; release clears it and runs on every exit path.
type deadlineGuard struct {
	sched boardcore.Scheduler
}

func declareDeadline(sched boardcore.Scheduler, ms uint32) deadlineGuard {
	sched.ExpectDelay(ms)
	return deadlineGuard{sched: sched}
}

func (g deadlineGuard) release() {
	g.sched.ExpectDelay(0)
}

// Run executes one update sequence to a terminal state. It never fails the
// boot: all outcomes are reported through the Result.
func (u *Updater) Run() Result {
	guard := declareDeadline(u.sched, u.cfg.DeadlineMs)
	defer guard.release()

	fw, ok := u.store.FindDecompress(u.cfg.ImageName)
	if !ok {
		fmt.Fprintf(u.console, "failed to find %s\n", u.cfg.ImageName)
		return Result{State: StateImageMissing}
	}

	addr := u.flash.PageAddr(u.cfg.PageIndex)

	// Compare against the live image first: a no-op update must not cost
	// an erase cycle.
	if u.matchesFlash(addr, fw) {
		fmt.Fprintf(u.console, "%s up-to-date\n", u.cfg.ImageName)
		return Result{State: StateUpToDate}
	}

	fmt.Fprintf(u.console, "erasing page %d\n", u.cfg.PageIndex)
	if !u.flash.ErasePage(u.cfg.PageIndex) {
		fmt.Fprintf(u.console, "erase failed\n")
		return Result{State: StateEraseFailed}
	}

	fmt.Fprintf(u.console, "flashing %s @%08x\n", u.cfg.ImageName, addr)
	for attempt := 1; attempt <= u.cfg.MaxAttempts; attempt++ {
		if u.flash.Write(addr, fw) && u.matchesFlash(addr, fw) {
			fmt.Fprintf(u.console, "flash OK\n")
			return Result{State: StateFlashed, Attempts: attempt}
		}
		fmt.Fprintf(u.console, "flash failed (attempt=%d/%d)\n", attempt, u.cfg.MaxAttempts)
		// Flat backoff: failures here are device-level, not congestion,
		// and the image does not change between attempts.
		u.sched.Delay(u.cfg.RetryDelayMs)
	}

	fmt.Fprintf(u.console, "flash failed after %d attempts\n", u.cfg.MaxAttempts)
	return Result{State: StateWriteFailed, Attempts: u.cfg.MaxAttempts}
}

func (u *Updater) matchesFlash(addr uint32, fw []byte) bool {
	live := make([]byte, len(fw))
	u.flash.Read(addr, live)
	return bytes.Equal(fw, live)
}
