// Command boardshell runs the board services against in-memory hardware
// and exposes them on an interactive console. Useful for poking the bus
// API without a target board attached.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/google/shlex"

	"boardcode-go/board/boardcore"
	"boardcode-go/board/memalloc"
	"boardcode-go/bus"
	svcboard "boardcode-go/services/board"
	"boardcode-go/services/config"
	"boardcode-go/services/heartbeat"
	"boardcode-go/x/console"
)

type shell struct {
	conn   *bus.Connection
	alloc  *memalloc.Allocator
	blocks []blockEntry
}

type blockEntry struct {
	kind memalloc.Kind
	buf  []byte
}

func main() {
	out := console.Writer()
	ctx := context.Background()

	b := bus.NewBus(32)
	alloc := memalloc.New(memalloc.Config{})

	images := &boardcore.MemImageStore{Images: map[string][]byte{
		"bootloader.bin": []byte("demo bootloader image v2"),
	}}

	deps := svcboard.Deps{
		Flash:      boardcore.NewMemFlash(16, 1024),
		Images:     images,
		Sched:      &boardcore.HostScheduler{},
		Regs:       &boardcore.MemRegisters{},
		HeaterPort: printPort{out: out},
		Temp:       &simTemp{tempC: 21.5},
		Serial:     [12]byte{0xDE, 0xC0, 0xAD, 0x0B, 0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB, 0xCC, 0xDD},
		Alloc:      alloc,
		Console:    out,
	}
	go svcboard.Run(ctx, b.NewConnection("board"), deps)

	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	cfg := config.NewConfigService()
	cfg.Start(context.WithValue(ctx, config.CtxDeviceKey, "pico"), b.NewConnection("config"))

	sh := &shell{conn: b.NewConnection("shell"), alloc: alloc}

	fmt.Fprintln(out, "boardshell ready; try: id, recovery, heater set 45, update run, mem, alloc fast 64")
	sc := bufio.NewScanner(console.Reader())
	fmt.Fprint(out, "> ")
	for sc.Scan() {
		args, err := shlex.Split(sc.Text())
		if err != nil {
			fmt.Fprintln(out, "parse error:", err)
		} else if len(args) > 0 {
			if args[0] == "exit" || args[0] == "quit" {
				return
			}
			sh.run(out, args)
		}
		fmt.Fprint(out, "> ")
	}
}

func (s *shell) run(out io.Writer, args []string) {
	switch args[0] {
	case "id":
		s.query(out, bus.T("board", "id"))
	case "recovery":
		s.request(out, bus.T("board", "recovery", "control", "get"), nil)
	case "state":
		s.query(out, bus.T("board", "state"))
	case "mem":
		s.request(out, bus.T("board", "memory", "control", "stats"), nil)
	case "heater":
		s.heater(out, args[1:])
	case "update":
		s.request(out, bus.T("board", "update", "control", "run"), nil)
	case "rtc":
		s.rtc(out, args[1:])
	case "alloc":
		s.allocCmd(out, args[1:])
	case "free":
		s.freeCmd(out, args[1:])
	default:
		fmt.Fprintln(out, "unknown command:", args[0])
	}
}

func (s *shell) heater(out io.Writer, args []string) {
	if len(args) == 0 || args[0] == "get" {
		s.request(out, bus.T("board", "heater", "control", "get"), nil)
		return
	}
	if args[0] == "set" && len(args) == 2 {
		if tgt, err := strconv.Atoi(args[1]); err == nil {
			s.request(out, bus.T("board", "heater", "control", "set"),
				map[string]any{"target_c": tgt})
			return
		}
	}
	fmt.Fprintln(out, "usage: heater [get | set <target_c>]")
}

func (s *shell) rtc(out io.Writer, args []string) {
	if len(args) == 1 && args[0] == "get" {
		s.request(out, bus.T("board", "rtc", "control", "get"), nil)
		return
	}
	if len(args) == 1 && args[0] == "set" {
		usec := time.Now().UnixMicro()
		s.request(out, bus.T("board", "rtc", "control", "set"),
			map[string]any{"utc_usec": usec})
		return
	}
	fmt.Fprintln(out, "usage: rtc [get | set]")
}

func (s *shell) allocCmd(out io.Writer, args []string) {
	if len(args) != 2 {
		fmt.Fprintln(out, "usage: alloc <default|dma|fast> <bytes>")
		return
	}
	var kind memalloc.Kind
	switch args[0] {
	case "default":
		kind = memalloc.KindDefault
	case "dma":
		kind = memalloc.KindDMASafe
	case "fast":
		kind = memalloc.KindFast
	default:
		fmt.Fprintln(out, "unknown kind:", args[0])
		return
	}
	n, err := strconv.Atoi(args[1])
	if err != nil || n <= 0 {
		fmt.Fprintln(out, "bad size:", args[1])
		return
	}
	buf := s.alloc.Alloc(n, kind)
	if buf == nil {
		fmt.Fprintln(out, "alloc failed (region exhausted)")
		return
	}
	s.blocks = append(s.blocks, blockEntry{kind: kind, buf: buf})
	fmt.Fprintf(out, "block %d: %d bytes (%s)\n", len(s.blocks)-1, len(buf), kind)
}

func (s *shell) freeCmd(out io.Writer, args []string) {
	if len(args) != 1 {
		fmt.Fprintln(out, "usage: free <block-index>")
		return
	}
	i, err := strconv.Atoi(args[0])
	if err != nil || i < 0 || i >= len(s.blocks) || s.blocks[i].buf == nil {
		fmt.Fprintln(out, "bad block index:", args[0])
		return
	}
	s.alloc.Free(s.blocks[i].buf, s.blocks[i].kind)
	s.blocks[i].buf = nil
	fmt.Fprintln(out, "freed")
}

// query reads a retained topic by subscribing briefly.
func (s *shell) query(out io.Writer, topic bus.Topic) {
	sub := s.conn.Subscribe(topic)
	defer s.conn.Unsubscribe(sub)
	select {
	case m := <-sub.Channel():
		fmt.Fprintf(out, "%+v\n", m.Payload)
	case <-time.After(time.Second):
		fmt.Fprintln(out, "(nothing retained)")
	}
}

func (s *shell) request(out io.Writer, topic bus.Topic, payload any) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	reply, err := s.conn.RequestWait(ctx, &bus.Message{Topic: topic, Payload: payload})
	if err != nil {
		fmt.Fprintln(out, "request failed:", err)
		return
	}
	fmt.Fprintf(out, "%+v\n", reply.Payload)
}

// printPort logs duty changes instead of driving a PWM pin.
type printPort struct {
	out io.Writer
}

func (p printPort) SetHeaterDutyCycle(pct float32) {
	fmt.Fprintf(p.out, "[heater] duty=%.1f%%\n", pct)
}

// simTemp drifts slowly upward while the heater runs, so the loop has
// something to chase.
type simTemp struct {
	tempC float32
}

func (t *simTemp) Read() error {
	t.tempC += 0.05
	return nil
}

func (t *simTemp) Celsius() float32 { return t.tempC }
