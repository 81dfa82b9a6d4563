package backup

import (
	"testing"

	"boardcode-go/board/boardcore"
)

func TestRestoreGatedOnResetCause(t *testing.T) {
	regs := &boardcore.MemRegisters{Cause: boardcore.ResetNormal}
	s := New(regs)

	// Record plausible values, as flight logic does continuously.
	s.RecordArmed(true)
	s.RecordSafetyOff(true)
	s.RecordHome(-353632621, 1491652374, 58400)
	s.RecordAttitude(120, -340, 27500)

	// Normal reset: everything must read as absent/false regardless of
	// what the cells hold.
	if s.WasWatchdogReset() {
		t.Fatal("normal reset reported as watchdog")
	}
	if s.WasWatchdogArmed() {
		t.Fatal("armed reported without watchdog reset")
	}
	if s.WasWatchdogSafetyOff() {
		t.Fatal("safety-off reported without watchdog reset")
	}
	if _, ok := s.RestoreHome(); ok {
		t.Fatal("home restored without watchdog reset")
	}
	if _, ok := s.RestoreAttitude(); ok {
		t.Fatal("attitude restored without watchdog reset")
	}

	// Same cells, watchdog cause: now the data is trustworthy.
	regs.Cause = boardcore.ResetWatchdog
	if !s.WasWatchdogArmed() {
		t.Fatal("expected armed after watchdog reset")
	}
	if !s.WasWatchdogSafetyOff() {
		t.Fatal("expected safety-off after watchdog reset")
	}
	home, ok := s.RestoreHome()
	if !ok || home.Lat != -353632621 || home.Lon != 1491652374 || home.AltCm != 58400 {
		t.Fatalf("bad restored home: %+v ok=%v", home, ok)
	}
	att, ok := s.RestoreAttitude()
	if !ok || att.RollCd != 120 || att.PitchCd != -340 || att.YawCd != 27500 {
		t.Fatalf("bad restored attitude: %+v ok=%v", att, ok)
	}
}

func TestWritersOverwrite(t *testing.T) {
	regs := &boardcore.MemRegisters{Cause: boardcore.ResetWatchdog}
	s := New(regs)

	s.RecordHome(1, 2, 3)
	s.RecordHome(4, 5, 6)
	home, ok := s.RestoreHome()
	if !ok || home.Lat != 4 || home.Lon != 5 || home.AltCm != 6 {
		t.Fatalf("latest write not visible: %+v", home)
	}

	s.RecordArmed(true)
	s.RecordArmed(false)
	if s.WasWatchdogArmed() {
		t.Fatal("stale armed flag visible after overwrite")
	}
}

func TestSnapshot(t *testing.T) {
	regs := &boardcore.MemRegisters{Cause: boardcore.ResetWatchdog}
	s := New(regs)
	s.RecordArmed(true)
	s.RecordHome(7, 8, 9)

	snap := s.Snapshot()
	if !snap.WatchdogReset || !snap.Armed {
		t.Fatalf("unexpected snapshot flags: %+v", snap)
	}
	if snap.Home == nil || snap.Home.AltCm != 9 {
		t.Fatalf("unexpected snapshot home: %+v", snap.Home)
	}
	if snap.Attitude == nil {
		t.Fatal("attitude missing from watchdog snapshot")
	}

	regs.Cause = boardcore.ResetNormal
	snap = s.Snapshot()
	if snap.WatchdogReset || snap.Home != nil || snap.Attitude != nil {
		t.Fatalf("normal-reset snapshot leaked retained data: %+v", snap)
	}
}

func TestClockPassThrough(t *testing.T) {
	regs := &boardcore.MemRegisters{}
	s := New(regs)
	s.SetClock(1724500000000000)
	if got := s.Clock(); got != 1724500000000000 {
		t.Fatalf("clock=%d", got)
	}
}
