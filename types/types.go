package types

// ------------------------
// Capability kinds
// ------------------------

type Kind string

const (
	KindHeater      Kind = "heater"
	KindTemperature Kind = "temperature"
	KindUpdate      Kind = "update"
	KindMemory      Kind = "memory"
)

// ------------------------
// Board service state (retained)
// ------------------------

type BoardState struct {
	Level  string `json:"level"`  // "idle", "ready", "stopped"
	Status string `json:"status"` // freeform short code
	TS     int64  `json:"ts_ms"`  // publish Unix ms
}

// ------------------------
// Flight state recorded for crash recovery
// ------------------------

// HomePoint is a recorded home position. Altitude in centimetres.
type HomePoint struct {
	Lat   int32 `json:"lat"`
	Lon   int32 `json:"lon"`
	AltCm int32 `json:"alt_cm"`
}

// Attitude in centidegrees.
type Attitude struct {
	RollCd  int32 `json:"roll_cd"`
	PitchCd int32 `json:"pitch_cd"`
	YawCd   int32 `json:"yaw_cd"`
}

type ArmedState struct {
	Armed bool `json:"armed"`
}

type SafetyState struct {
	SafetyOff bool `json:"safety_off"`
}

// RecoverySnapshot is published retained once at startup. Home and Attitude
// are nil unless the previous reset was a watchdog reset.
type RecoverySnapshot struct {
	WatchdogReset bool       `json:"watchdog_reset"`
	Armed         bool       `json:"armed"`
	SafetyOff     bool       `json:"safety_off"`
	Home          *HomePoint `json:"home,omitempty"`
	Attitude      *Attitude  `json:"attitude,omitempty"`
	TS            int64      `json:"ts_ms"`
}

// ------------------------
// Heater control + telemetry
// ------------------------

type HeaterSet struct {
	TargetC int8 `json:"target_c"` // -1 disables the loop
}

type HeaterValue struct {
	DutyPct    float32 `json:"duty_pct"`
	TempC      float32 `json:"temp_c"`
	Integrator float32 `json:"integrator"`
	TS         int64   `json:"ts_ms"`
}

// ------------------------
// Firmware self-update telemetry (retained)
// ------------------------

type UpdateState struct {
	State    string `json:"state"` // "up_to_date", "flashed", ...
	Attempts int    `json:"attempts"`
	OK       bool   `json:"ok"`
	Error    string `json:"error,omitempty"` // errcode for failed runs
	TS       int64  `json:"ts_ms"`
}

// ------------------------
// Board identity (retained, diagnostics only)
// ------------------------

type BoardID struct {
	ID string `json:"id"`
}

// ------------------------
// Generic replies
// ------------------------

type OKReply struct {
	OK bool `json:"ok"`
}

type ErrorReply struct {
	OK    bool   `json:"ok"`
	Error string `json:"error"`
}
