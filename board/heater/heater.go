// Package heater holds the IMU enclosure at a setpoint with a PI loop.
// Temperature samples arrive at whatever rate the sensor poller runs; the
// controller averages them and recomputes the duty cycle at 1 Hz.
package heater

import (
	"sync"

	"boardcode-go/board/boardcore"
	"boardcode-go/x/mathx"
	"boardcode-go/x/timex"
)

const (
	// DisabledTarget disables the loop when passed to SetTarget.
	DisabledTarget int8 = -1

	kP = 200.0
	kI = 0.3

	targetMaxC    = 65  // enclosure damage bound
	integratorMax = 70  // anti-windup ceiling
	outputMaxPct  = 100 // duty cycle is a percentage
	periodMs      = 1000
)

// Heater is safe for concurrent use: the poller calls Update while control
// messages call SetTarget.
type Heater struct {
	port boardcore.HeaterPort
	now  func() int64 // ms clock, swappable in tests

	mu         sync.Mutex
	target     int8
	hasTarget  bool
	integrator float32
	sum        float32
	count      uint32
	lastMs     int64
	lastTemp   float32
	lastDuty   float32
}

func New(port boardcore.HeaterPort) *Heater {
	return &Heater{port: port, now: timex.NowMs}
}

// SetTarget sets the setpoint in degrees C. DisabledTarget switches the
// loop off; the next enable starts from a clean integrator.
func (h *Heater) SetTarget(targetC int8) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if targetC == DisabledTarget {
		h.disableLocked()
		return
	}
	h.target = targetC
	h.hasTarget = true
}

// ClearTarget disables the loop, equivalent to SetTarget(DisabledTarget).
func (h *Heater) ClearTarget() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disableLocked()
}

func (h *Heater) disableLocked() {
	h.hasTarget = false
	h.integrator = 0
	h.sum = 0
	h.count = 0
	h.lastDuty = 0
	h.port.SetHeaterDutyCycle(0)
}

// Update feeds one temperature sample. Samples accumulate into an average;
// the PI step itself is self-paced to one per second, so the caller may
// poll the sensor as fast as it likes.
func (h *Heater) Update(sampleC float32) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if !h.hasTarget {
		return
	}

	h.sum += sampleC
	h.count++

	now := h.now()
	if now-h.lastMs < periodMs {
		return
	}
	h.lastMs = now

	current := h.sum / float32(h.count)
	h.sum = 0
	h.count = 0

	target := mathx.Clamp(float32(h.target), 0, targetMaxC)
	err := target - current
	h.integrator = mathx.Clamp(h.integrator+kI*err, 0, integratorMax)
	output := mathx.Clamp(kP*err+h.integrator, 0, outputMaxPct)

	h.lastTemp = current
	h.lastDuty = output
	h.port.SetHeaterDutyCycle(output)
}

// Status is a point-in-time view of the loop.
type Status struct {
	Enabled    bool
	TargetC    int8
	TempC      float32
	DutyPct    float32
	Integrator float32
}

func (h *Heater) Status() Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	st := Status{
		Enabled:    h.hasTarget,
		TargetC:    DisabledTarget,
		TempC:      h.lastTemp,
		DutyPct:    h.lastDuty,
		Integrator: h.integrator,
	}
	if h.hasTarget {
		st.TargetC = h.target
	}
	return st
}
