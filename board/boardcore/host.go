// board/boardcore/host.go
//
// In-memory stand-ins for the hardware collaborators, used on host builds
// and in tests. Failure injection is explicit so callers can script
// device-level faults.
package boardcore

// ---- Backup registers ----

// MemRegisters is a RAM-backed BackupRegisters. Cause is exported so a test
// or host harness can simulate the boot reset cause.
type MemRegisters struct {
	Cause     ResetCause
	armed     bool
	safetyOff bool
	home      [3]int32
	att       [3]int32
	utc       uint64
}

func (m *MemRegisters) ResetCause() ResetCause { return m.Cause }

func (m *MemRegisters) SetArmed(v bool) { m.armed = v }
func (m *MemRegisters) Armed() bool     { return m.armed }

func (m *MemRegisters) SetSafetyOff(v bool) { m.safetyOff = v }
func (m *MemRegisters) SafetyOff() bool     { return m.safetyOff }

func (m *MemRegisters) SetHome(lat, lon, altCm int32) {
	m.home = [3]int32{lat, lon, altCm}
}
func (m *MemRegisters) Home() (int32, int32, int32) {
	return m.home[0], m.home[1], m.home[2]
}

func (m *MemRegisters) SetAttitude(rollCd, pitchCd, yawCd int32) {
	m.att = [3]int32{rollCd, pitchCd, yawCd}
}
func (m *MemRegisters) Attitude() (int32, int32, int32) {
	return m.att[0], m.att[1], m.att[2]
}

func (m *MemRegisters) SetUTCUsec(v uint64) { m.utc = v }
func (m *MemRegisters) UTCUsec() uint64     { return m.utc }

// ---- Flash ----

// MemFlash simulates page-erasable flash as one contiguous buffer.
// Erased bytes read back 0xFF.
type MemFlash struct {
	pageSize int
	buf      []byte

	// Failure injection.
	FailErase  bool
	FailWrites int // the first N writes fail

	EraseCalls int
	WriteCalls int
}

func NewMemFlash(pages, pageSize int) *MemFlash {
	f := &MemFlash{pageSize: pageSize, buf: make([]byte, pages*pageSize)}
	for i := range f.buf {
		f.buf[i] = 0xFF
	}
	return f
}

func (f *MemFlash) PageAddr(index int) uint32 { return uint32(index * f.pageSize) }

func (f *MemFlash) ErasePage(index int) bool {
	f.EraseCalls++
	if f.FailErase {
		return false
	}
	start := index * f.pageSize
	for i := start; i < start+f.pageSize && i < len(f.buf); i++ {
		f.buf[i] = 0xFF
	}
	return true
}

func (f *MemFlash) Write(addr uint32, data []byte) bool {
	f.WriteCalls++
	if f.FailWrites > 0 {
		f.FailWrites--
		return false
	}
	copy(f.buf[addr:], data)
	return true
}

func (f *MemFlash) Read(addr uint32, into []byte) {
	copy(into, f.buf[addr:])
}

// ---- Image store ----

// MemImageStore serves pre-decompressed images by name.
type MemImageStore struct {
	Images map[string][]byte
}

func (s *MemImageStore) FindDecompress(name string) ([]byte, bool) {
	b, ok := s.Images[name]
	return b, ok
}

// ---- Scheduler ----

// HostScheduler records deadline declarations and skips real delays, so the
// retry loop stays fast in tests and host runs.
type HostScheduler struct {
	ExpectCalls []uint32
	DelayCalls  []uint32
}

func (s *HostScheduler) ExpectDelay(ms uint32) { s.ExpectCalls = append(s.ExpectCalls, ms) }
func (s *HostScheduler) Delay(ms uint32)       { s.DelayCalls = append(s.DelayCalls, ms) }

// LastExpect returns the most recent deadline declaration, or 0 if none.
func (s *HostScheduler) LastExpect() uint32 {
	if len(s.ExpectCalls) == 0 {
		return 0
	}
	return s.ExpectCalls[len(s.ExpectCalls)-1]
}
