package heater

import "testing"

type fakePort struct {
	calls []float32
}

func (p *fakePort) SetHeaterDutyCycle(pct float32) {
	p.calls = append(p.calls, pct)
}

func (p *fakePort) last() float32 {
	if len(p.calls) == 0 {
		return -1
	}
	return p.calls[len(p.calls)-1]
}

// paced returns a heater driven by a manual clock.
func paced() (*Heater, *fakePort, *int64) {
	port := &fakePort{}
	h := New(port)
	clk := int64(1000)
	h.now = func() int64 { return clk }
	return h, port, &clk
}

func TestDisabledLoopIsInert(t *testing.T) {
	h, port, clk := paced()

	for i := 0; i < 5; i++ {
		h.Update(20)
		*clk += 1000
	}
	if len(port.calls) != 0 {
		t.Fatalf("disabled heater drove the port: %v", port.calls)
	}
	st := h.Status()
	if st.Enabled || st.TargetC != DisabledTarget {
		t.Fatalf("unexpected status: %+v", st)
	}
}

func TestSentinelDisablesAndResets(t *testing.T) {
	h, port, clk := paced()

	h.SetTarget(45)
	h.Update(25) // err=20: saturates output, winds the integrator
	if port.last() != 100 {
		t.Fatalf("expected saturated duty, got %v", port.last())
	}

	h.SetTarget(DisabledTarget)
	if port.last() != 0 {
		t.Fatalf("disable did not drop duty to zero: %v", port.last())
	}
	st := h.Status()
	if st.Enabled || st.Integrator != 0 {
		t.Fatalf("disable left state behind: %+v", st)
	}

	// Further samples must be ignored.
	before := len(port.calls)
	*clk += 1000
	h.Update(25)
	if len(port.calls) != before {
		t.Fatal("disabled heater still stepping")
	}
}

func TestSelfPacedAtOneHertz(t *testing.T) {
	h, port, clk := paced()
	h.SetTarget(45)

	// Poll at 5 Hz for two seconds: exactly two PI steps may fire.
	for i := 0; i < 10; i++ {
		h.Update(30)
		*clk += 200
	}
	if len(port.calls) != 2 {
		t.Fatalf("expected 2 steps over 2s of 5Hz polling, got %d", len(port.calls))
	}
}

func TestSamplesAreAveraged(t *testing.T) {
	h, _, clk := paced()
	h.SetTarget(40)

	*clk = 500 // within the first window: accumulate only
	h.Update(20)
	*clk = 1000
	h.Update(30)

	if st := h.Status(); st.TempC != 25 {
		t.Fatalf("step used %v, want the window average 25", st.TempC)
	}
}

func TestIntegratorWindsUpAndClamps(t *testing.T) {
	h, port, clk := paced()
	h.SetTarget(45)

	// Constant 20C error: each step adds kI*20 = 6 until the clamp.
	prev := float32(0)
	for i := 0; i < 20; i++ {
		h.Update(25)
		st := h.Status()
		if st.Integrator > 70 {
			t.Fatalf("integrator escaped clamp: %v", st.Integrator)
		}
		if st.Integrator < prev {
			t.Fatalf("integrator decreased under constant error: %v -> %v", prev, st.Integrator)
		}
		if prev < 70 && st.Integrator == prev {
			t.Fatalf("integrator stalled below clamp at %v", prev)
		}
		prev = st.Integrator
		if d := port.last(); d != 100 {
			t.Fatalf("output not saturated under large error: %v", d)
		}
		*clk += 1000
	}
	if prev != 70 {
		t.Fatalf("integrator settled at %v, want the 70 clamp", prev)
	}
}

func TestTargetClampedToSafeRange(t *testing.T) {
	h, port, clk := paced()
	h.SetTarget(127) // clamps to 65

	h.Update(65) // already at the clamped target: zero error
	if port.last() != 0 {
		t.Fatalf("clamped target not honoured, duty=%v", port.last())
	}

	*clk += 1000
	h.Update(64.9) // small error: proportional term dominates, no saturation
	if d := port.last(); d <= 0 || d >= 100 {
		t.Fatalf("expected a proportional response, got %v", d)
	}
}
