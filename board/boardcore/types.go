// board/boardcore/types.go
package boardcore

// ResetCause distinguishes a watchdog-triggered reset from everything else.
// Retained backup state is only trustworthy under ResetWatchdog.
type ResetCause uint8

const (
	ResetNormal ResetCause = iota
	ResetWatchdog
)

// ---- Flash ----

// FlashDevice abstracts the boot flash. Erase works on whole pages; Write and
// Read address raw bytes. Erase/Write report success as a bool, never an
// error: device-level failure carries no more information than "it failed".
type FlashDevice interface {
	PageAddr(index int) uint32
	ErasePage(index int) bool
	Write(addr uint32, data []byte) bool
	Read(addr uint32, into []byte)
}

// ---- Firmware image store ----

// ImageStore resolves an embedded, compressed firmware image by name.
type ImageStore interface {
	FindDecompress(name string) ([]byte, bool)
}

// ---- Scheduler ----

// Scheduler is the external liveness supervisor. ExpectDelay declares an
// upcoming non-yielding window in milliseconds; 0 clears the declaration.
// Delay blocks the calling context only.
type Scheduler interface {
	ExpectDelay(ms uint32)
	Delay(ms uint32)
}

// ---- Backup register store ----

// BackupRegisters is the small register file retained across a watchdog
// reset (not across power loss). Single writer per cell by caller
// discipline; no locking at this layer.
type BackupRegisters interface {
	ResetCause() ResetCause

	SetArmed(bool)
	Armed() bool

	SetSafetyOff(bool)
	SafetyOff() bool

	SetHome(lat, lon, altCm int32)
	Home() (lat, lon, altCm int32)

	SetAttitude(rollCd, pitchCd, yawCd int32)
	Attitude() (rollCd, pitchCd, yawCd int32)

	SetUTCUsec(uint64)
	UTCUsec() uint64
}

// ---- Heater actuator ----

// HeaterPort drives the inertial-sensor heater. Duty cycle in percent, 0..100.
type HeaterPort interface {
	SetHeaterDutyCycle(pct float32)
}
