// Package backup persists flight-critical scalars into the backup register
// store so they survive a watchdog reset. Writers record unconditionally;
// readers are gated on the reset cause, because after a normal power-on the
// retained cells hold garbage and must be treated as absent.
package backup

import (
	"boardcode-go/board/boardcore"
	"boardcode-go/types"
)

type Store struct {
	regs boardcore.BackupRegisters
}

func New(regs boardcore.BackupRegisters) *Store {
	return &Store{regs: regs}
}

// -----------------------------------------------------------------------------
// Writers: unconditional, called continuously by flight logic.
// -----------------------------------------------------------------------------

func (s *Store) RecordArmed(armed bool) {
	s.regs.SetArmed(armed)
}

func (s *Store) RecordSafetyOff(off bool) {
	s.regs.SetSafetyOff(off)
}

func (s *Store) RecordHome(lat, lon, altCm int32) {
	s.regs.SetHome(lat, lon, altCm)
}

func (s *Store) RecordAttitude(rollCd, pitchCd, yawCd int32) {
	s.regs.SetAttitude(rollCd, pitchCd, yawCd)
}

// -----------------------------------------------------------------------------
// Boot-time queries
// -----------------------------------------------------------------------------

// WasWatchdogReset reports whether this boot was caused by a watchdog reset.
func (s *Store) WasWatchdogReset() bool {
	return s.regs.ResetCause() == boardcore.ResetWatchdog
}

// WasWatchdogArmed reports whether the vehicle was armed when the watchdog
// fired. Always false after a normal reset.
func (s *Store) WasWatchdogArmed() bool {
	return s.WasWatchdogReset() && s.regs.Armed()
}

// WasWatchdogSafetyOff reports whether safety was off when the watchdog
// fired. Always false after a normal reset.
func (s *Store) WasWatchdogSafetyOff() bool {
	return s.WasWatchdogReset() && s.regs.SafetyOff()
}

// RestoreHome returns the recorded home position, valid only after a
// watchdog reset.
func (s *Store) RestoreHome() (types.HomePoint, bool) {
	if !s.WasWatchdogReset() {
		return types.HomePoint{}, false
	}
	lat, lon, alt := s.regs.Home()
	return types.HomePoint{Lat: lat, Lon: lon, AltCm: alt}, true
}

// RestoreAttitude returns the recorded attitude, valid only after a
// watchdog reset.
func (s *Store) RestoreAttitude() (types.Attitude, bool) {
	if !s.WasWatchdogReset() {
		return types.Attitude{}, false
	}
	roll, pitch, yaw := s.regs.Attitude()
	return types.Attitude{RollCd: roll, PitchCd: pitch, YawCd: yaw}, true
}

// Snapshot bundles the boot-time reads for the recovery publisher. It is
// meant to be taken exactly once, early in boot.
func (s *Store) Snapshot() types.RecoverySnapshot {
	snap := types.RecoverySnapshot{
		WatchdogReset: s.WasWatchdogReset(),
		Armed:         s.WasWatchdogArmed(),
		SafetyOff:     s.WasWatchdogSafetyOff(),
	}
	if home, ok := s.RestoreHome(); ok {
		snap.Home = &home
	}
	if att, ok := s.RestoreAttitude(); ok {
		snap.Attitude = &att
	}
	return snap
}

// -----------------------------------------------------------------------------
// Hardware RTC pass-through (retained UTC microsecond cell)
// -----------------------------------------------------------------------------

func (s *Store) SetClock(utcUsec uint64) { s.regs.SetUTCUsec(utcUsec) }
func (s *Store) Clock() uint64           { return s.regs.UTCUsec() }
