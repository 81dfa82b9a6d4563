// services/board/board.go
package board

import (
	"context"
	"encoding/json"
	"io"
	"time"

	"boardcode-go/board/backup"
	"boardcode-go/board/boardcore"
	"boardcode-go/board/fwupdate"
	"boardcode-go/board/heater"
	"boardcode-go/board/memalloc"
	"boardcode-go/board/sysid"
	"boardcode-go/bus"
	"boardcode-go/errcode"
	"boardcode-go/types"
	"boardcode-go/x/timex"
)

// -----------------------------------------------------------------------------
// Dependencies and config
// -----------------------------------------------------------------------------

// TempSensor is the slice of the sensor driver the service needs. The
// tmp102 driver satisfies it; tests substitute a fake.
type TempSensor interface {
	Read() error
	Celsius() float32
}

// Deps carries the board peripherals. All fields are required except
// Console and Alloc.
type Deps struct {
	Flash      boardcore.FlashDevice
	Images     boardcore.ImageStore
	Sched      boardcore.Scheduler
	Regs       boardcore.BackupRegisters
	HeaterPort boardcore.HeaterPort
	Temp       TempSensor
	Serial     [12]byte
	Alloc      *memalloc.Allocator
	Console    io.Writer
}

// BoardConfig is the config/board payload.
type BoardConfig struct {
	Name         string `json:"name"`
	HeaterTarget *int8  `json:"heater_target"`
	PollHz       uint32 `json:"poll_hz"`
	Image        string `json:"image"`
	AutoUpdate   bool   `json:"auto_update"`
}

// -----------------------------------------------------------------------------
// Entry point
// -----------------------------------------------------------------------------

func Run(ctx context.Context, conn *bus.Connection, deps Deps) {
	if deps.Console == nil {
		deps.Console = io.Discard
	}
	if deps.Alloc == nil {
		deps.Alloc = memalloc.New(memalloc.Config{})
	}
	s := &service{
		conn:    conn,
		deps:    deps,
		backup:  backup.New(deps.Regs),
		heater:  heater.New(deps.HeaterPort),
		name:    "unknown",
		image:   "bootloader.bin",
		samples: make(chan sampleResult, 4),
		updRes:  make(chan fwupdate.Result, 1),
	}
	s.loop(ctx)
}

type sampleResult struct {
	tempC float32
	err   error
}

type service struct {
	conn *bus.Connection
	deps Deps

	backup *backup.Store
	heater *heater.Heater

	name   string
	image  string
	pollHz uint32 // 0: sampling off

	timer    *time.Timer
	sampling bool // a sample goroutine is in flight
	updating bool // an update goroutine is in flight

	samples chan sampleResult
	updRes  chan fwupdate.Result
}

// -----------------------------------------------------------------------------
// Main loop
// -----------------------------------------------------------------------------

func (s *service) loop(ctx context.Context) {
	cfgSub := s.conn.Subscribe(bus.Topic{"config", "board"})
	ctrlSub := s.conn.Subscribe(bus.Topic{"board", "+", "control", "+"})
	vehSub := s.conn.Subscribe(bus.Topic{"vehicle", "+"})
	defer s.conn.Unsubscribe(cfgSub)
	defer s.conn.Unsubscribe(ctrlSub)
	defer s.conn.Unsubscribe(vehSub)

	s.publishState("idle", "awaiting_config", nil)
	s.publishIdentity()
	s.publishRecovery()
	s.publishMemoryState()

	s.timer = time.NewTimer(time.Hour)
	if !s.timer.Stop() {
		drainTimer(s.timer)
	}

	for {
		select {
		case <-ctx.Done():
			s.publishState("stopped", "context_cancelled", nil)
			return

		case msg := <-cfgSub.Channel():
			var cfg BoardConfig
			if err := decodeJSON(msg.Payload, &cfg); err != nil {
				s.publishState("error", "config_decode_failed", err)
				continue
			}
			s.applyConfig(cfg)
			s.publishState("ready", "configured", nil)

		case msg := <-ctrlSub.Channel():
			// board/<module>/control/<method>
			if len(msg.Topic) < 4 {
				continue
			}
			module, _ := msg.Topic[1].(string)
			method, _ := msg.Topic[3].(string)
			s.dispatch(msg, module, method)

		case msg := <-vehSub.Channel():
			if len(msg.Topic) < 2 {
				continue
			}
			kind, _ := msg.Topic[1].(string)
			s.recordVehicle(kind, msg.Payload)

		case <-s.timer.C:
			s.submitSample()
			s.armPollTimer()

		case r := <-s.samples:
			s.sampling = false
			s.handleSample(r)

		case r := <-s.updRes:
			s.updating = false
			s.publishUpdateState(r)
		}
	}
}

// -----------------------------------------------------------------------------
// Configuration
// -----------------------------------------------------------------------------

func (s *service) applyConfig(cfg BoardConfig) {
	if cfg.Name != "" {
		s.name = cfg.Name
		s.publishIdentity()
	}
	if cfg.Image != "" {
		s.image = cfg.Image
	}
	if cfg.HeaterTarget != nil {
		s.heater.SetTarget(*cfg.HeaterTarget)
		s.publishHeaterState()
	}
	if cfg.PollHz != s.pollHz {
		s.pollHz = cfg.PollHz
		s.armPollTimer()
	}
	if cfg.AutoUpdate {
		s.startUpdate()
	}
}

// -----------------------------------------------------------------------------
// Control dispatch
// -----------------------------------------------------------------------------

func (s *service) dispatch(msg *bus.Message, module, method string) {
	switch module {
	case "heater":
		s.heaterControl(msg, method)
	case "update":
		s.updateControl(msg, method)
	case "rtc":
		s.rtcControl(msg, method)
	case "memory":
		s.memoryControl(msg, method)
	case "recovery":
		s.recoveryControl(msg, method)
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *service) heaterControl(msg *bus.Message, method string) {
	switch method {
	case "set":
		tgt, ok := parseTarget(msg.Payload)
		if !ok {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		s.heater.SetTarget(tgt)
		s.publishHeaterState()
		s.replyOK(msg, nil)
	case "get":
		st := s.heater.Status()
		s.replyOK(msg, map[string]any{
			"enabled":  st.Enabled,
			"target_c": st.TargetC,
			"temp_c":   st.TempC,
			"duty_pct": st.DutyPct,
		})
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *service) updateControl(msg *bus.Message, method string) {
	switch method {
	case "run":
		if !s.startUpdate() {
			s.replyErr(msg, errcode.Busy)
			return
		}
		s.replyOK(msg, nil)
	case "get":
		s.replyOK(msg, map[string]any{"updating": s.updating})
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *service) rtcControl(msg *bus.Message, method string) {
	switch method {
	case "set":
		usec, ok := parseUsec(msg.Payload)
		if !ok {
			s.replyErr(msg, errcode.InvalidParams)
			return
		}
		s.backup.SetClock(usec)
		s.replyOK(msg, nil)
	case "get":
		usec := s.backup.Clock()
		if usec == 0 {
			s.replyErr(msg, errcode.StaleBackup)
			return
		}
		s.replyOK(msg, map[string]any{"utc_usec": usec})
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *service) memoryControl(msg *bus.Message, method string) {
	switch method {
	case "stats":
		s.replyOK(msg, map[string]any{"available": s.deps.Alloc.Available()})
		s.publishMemoryState()
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

func (s *service) recoveryControl(msg *bus.Message, method string) {
	switch method {
	case "get":
		snap := s.backup.Snapshot()
		s.replyOK(msg, map[string]any{"snapshot": snap})
	default:
		s.replyErr(msg, errcode.Unsupported)
	}
}

// -----------------------------------------------------------------------------
// Vehicle state capture (crash-recovery cells)
// -----------------------------------------------------------------------------

func (s *service) recordVehicle(kind string, payload any) {
	m, ok := payload.(map[string]any)
	if !ok {
		return
	}
	switch kind {
	case "armed":
		if v, ok := m["armed"].(bool); ok {
			s.backup.RecordArmed(v)
		}
	case "safety":
		if v, ok := m["off"].(bool); ok {
			s.backup.RecordSafetyOff(v)
		}
	case "home":
		lat, ok1 := asInt32(m["lat"])
		lon, ok2 := asInt32(m["lon"])
		alt, ok3 := asInt32(m["alt_cm"])
		if ok1 && ok2 && ok3 {
			s.backup.RecordHome(lat, lon, alt)
		}
	case "attitude":
		roll, ok1 := asInt32(m["roll_cd"])
		pitch, ok2 := asInt32(m["pitch_cd"])
		yaw, ok3 := asInt32(m["yaw_cd"])
		if ok1 && ok2 && ok3 {
			s.backup.RecordAttitude(roll, pitch, yaw)
		}
	}
}

// -----------------------------------------------------------------------------
// Temperature sampling
// -----------------------------------------------------------------------------

func (s *service) armPollTimer() {
	if s.pollHz == 0 || s.deps.Temp == nil {
		if !s.timer.Stop() {
			drainTimer(s.timer)
		}
		s.timer.Reset(time.Hour)
		return
	}
	resetTimer(s.timer, time.Duration(timex.PeriodFromHz(s.pollHz)))
}

// submitSample reads the sensor off the service goroutine; sensor reads
// block for a conversion time.
func (s *service) submitSample() {
	if s.sampling || s.deps.Temp == nil {
		return
	}
	s.sampling = true
	go func() {
		if err := s.deps.Temp.Read(); err != nil {
			s.samples <- sampleResult{err: err}
			return
		}
		s.samples <- sampleResult{tempC: s.deps.Temp.Celsius()}
	}()
}

func (s *service) handleSample(r sampleResult) {
	if r.err != nil {
		s.publishState("degraded", "sensor_read_failed", r.err)
		return
	}
	s.heater.Update(r.tempC)
	st := s.heater.Status()
	if !st.Enabled {
		return
	}
	s.conn.Publish(s.conn.NewMessage(
		bus.Topic{"board", "heater", "value"},
		types.HeaterValue{
			DutyPct:    st.DutyPct,
			TempC:      st.TempC,
			Integrator: st.Integrator,
			TS:         timex.NowMs(),
		},
		false,
	))
}

// -----------------------------------------------------------------------------
// Firmware update
// -----------------------------------------------------------------------------

func (s *service) startUpdate() bool {
	if s.updating {
		return false
	}
	s.updating = true
	u := fwupdate.New(s.deps.Flash, s.deps.Images, s.deps.Sched, s.deps.Console,
		fwupdate.Config{ImageName: s.image})
	go func() {
		s.updRes <- u.Run()
	}()
	return true
}

func (s *service) publishUpdateState(r fwupdate.Result) {
	st := types.UpdateState{
		State:    r.State.String(),
		Attempts: r.Attempts,
		OK:       r.OK(),
		TS:       timex.NowMs(),
	}
	if !st.OK {
		st.Error = string(updateErrCode(r.State))
	}
	s.pubRet(bus.Topic{"board", "update", "state"}, st)
}

func updateErrCode(st fwupdate.State) errcode.Code {
	switch st {
	case fwupdate.StateImageMissing:
		return errcode.ImageMissing
	case fwupdate.StateEraseFailed:
		return errcode.EraseFailed
	case fwupdate.StateWriteFailed:
		return errcode.WriteFailed
	default:
		return errcode.OK
	}
}

// -----------------------------------------------------------------------------
// Retained board facts
// -----------------------------------------------------------------------------

func (s *service) publishIdentity() {
	s.pubRet(bus.Topic{"board", "id"}, types.BoardID{
		ID: sysid.ID(s.name, s.deps.Serial),
	})
}

func (s *service) publishRecovery() {
	s.pubRet(bus.Topic{"board", "recovery"}, s.backup.Snapshot())
}

func (s *service) publishMemoryState() {
	s.pubRet(bus.Topic{"board", "memory", "state"},
		map[string]any{"available": s.deps.Alloc.Available(), "ts_ms": timex.NowMs()})
}

func (s *service) publishHeaterState() {
	st := s.heater.Status()
	s.pubRet(bus.Topic{"board", "heater", "state"},
		map[string]any{"enabled": st.Enabled, "target_c": st.TargetC, "ts_ms": timex.NowMs()})
}

// ---- helpers ----

func (s *service) publishState(level, status string, err error) {
	payload := map[string]any{"level": level, "status": status, "ts_ms": timex.NowMs()}
	if err != nil {
		payload["error"] = err.Error()
	}
	s.conn.Publish(s.conn.NewMessage(bus.Topic{"board", "state"}, payload, true))
}

func (s *service) replyOK(req *bus.Message, extra map[string]any) {
	if len(req.ReplyTo) == 0 {
		return
	}
	m := map[string]any{"ok": true}
	for k, v := range extra {
		m[k] = v
	}
	s.conn.Reply(req, m, false)
}

func (s *service) replyErr(req *bus.Message, e errcode.Code) {
	if len(req.ReplyTo) == 0 {
		return
	}
	s.conn.Reply(req, map[string]any{"ok": false, "error": string(e)}, false)
}

func (s *service) pubRet(t bus.Topic, p any) {
	s.conn.Publish(s.conn.NewMessage(t, p, true))
}

func parseTarget(p any) (int8, bool) {
	if m, ok := p.(map[string]any); ok {
		if v, ok := asInt(m["target_c"]); ok && v >= -1 && v <= 127 {
			return int8(v), true
		}
	}
	return 0, false
}

func parseUsec(p any) (uint64, bool) {
	if m, ok := p.(map[string]any); ok {
		switch v := m["utc_usec"].(type) {
		case uint64:
			return v, true
		case int64:
			if v >= 0 {
				return uint64(v), true
			}
		case int:
			if v >= 0 {
				return uint64(v), true
			}
		case float64:
			if v >= 0 {
				return uint64(v), true
			}
		}
	}
	return 0, false
}

func decodeJSON[T any](src any, dst *T) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, dst)
	case string:
		return json.Unmarshal([]byte(v), dst)
	default:
		// Accept maps, structs, numbers… by marshaling then decoding to T.
		b, err := json.Marshal(v)
		if err != nil {
			return err
		}
		return json.Unmarshal(b, dst)
	}
}

func asInt(t any) (int, bool) {
	switch v := t.(type) {
	case int:
		return v, true
	case int8:
		return int(v), true
	case int16:
		return int(v), true
	case int32:
		return int(v), true
	case int64:
		return int(v), true
	case float32:
		return int(v), true
	case float64:
		return int(v), true
	default:
		return 0, false
	}
}

func asInt32(t any) (int32, bool) {
	v, ok := asInt(t)
	return int32(v), ok
}
