//go:build rp2040

// Command pico-board boots the board services on a Raspberry Pi Pico:
// TMP102 on I2C0, heater switch on GPIO15, console on UART0.
package main

import (
	"context"
	"machine"
	"time"

	"boardcode-go/board/boardcore"
	"boardcode-go/bus"
	"boardcode-go/drivers/tmp102"
	svcboard "boardcode-go/services/board"
	"boardcode-go/services/config"
	"boardcode-go/services/heartbeat"
	"boardcode-go/x/console"
)

func main() {
	// Allow USB CDC to enumerate before we print.
	time.Sleep(2 * time.Second)
	console.Init(115200, machine.UART0_TX_PIN, machine.UART0_RX_PIN)
	out := console.Writer()

	_ = machine.I2C0.Configure(machine.I2CConfig{})
	temp := tmp102.New(machine.I2C0)
	_ = temp.Configure()

	heatPin := machine.GPIO15
	heatPin.Configure(machine.PinConfig{Mode: machine.PinOutput})

	ctx := context.Background()
	b := bus.NewBus(8)

	// Flash, image store and backup registers stay RAM-backed until the
	// target's flash partition layout and watchdog scratch cells are
	// brought up.
	deps := svcboard.Deps{
		Flash:      boardcore.NewMemFlash(16, 1024),
		Images:     &boardcore.MemImageStore{Images: map[string][]byte{}},
		Sched:      &boardcore.HostScheduler{},
		Regs:       &boardcore.MemRegisters{},
		HeaterPort: pinPort{pin: heatPin},
		Temp:       &temp,
		Serial:     [12]byte{0xDE, 0xC0, 0xAD, 0x0B, 0x01, 0x02, 0x03, 0x04, 0xAA, 0xBB, 0xCC, 0xDD},
		Console:    out,
	}
	go svcboard.Run(ctx, b.NewConnection("board"), deps)

	hb := &heartbeat.Service{}
	_ = hb.Start(ctx, b.NewConnection("heartbeat"))

	cfg := config.NewConfigService()
	cfg.Start(context.WithValue(ctx, config.CtxDeviceKey, "pico"), b.NewConnection("config"))

	select {}
}

// pinPort switches the heater FET on a plain GPIO. Crude compared to a
// PWM slice, but enough to exercise the control loop on a bare board.
type pinPort struct {
	pin machine.Pin
}

func (p pinPort) SetHeaterDutyCycle(pct float32) {
	if pct >= 50 {
		p.pin.High()
	} else {
		p.pin.Low()
	}
}
