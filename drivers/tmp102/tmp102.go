// Package tmp102 provides a driver for the TMP102 digital temperature
// sensor. It exposes the same two-phase measurement API as the other
// sensor drivers:
//
//	d.Trigger()              // start a one-shot conversion (fast)
//	err := d.Collect(&s)     // fetch when ready; returns ErrNotReady while busy
//
// For convenience, d.Read() performs trigger + bounded polling until ready.
//
// NOTE: I2C.Tx MUST perform a write followed by a repeated-start read when
// both w and r are provided, without releasing the bus.
//
// Raw samples are 12-bit left-justified with 0.0625 C per LSB; fixed-point
// helpers return deci-degrees C.
package tmp102

import (
	"errors"
	"time"

	"tinygo.org/x/drivers"
)

// I2C address (ADD0 tied to ground).
const Address = 0x48

// Registers and config bits (per datasheet).
const (
	regTemperature = 0x00
	regConfig      = 0x01

	cfgShutdown = 0x01 // config MSB: SD, one-shot mode when set
	cfgOneShot  = 0x80 // config MSB: OS, write starts a conversion,
	// reads back 1 once the conversion is done
)

// Errors returned by the driver.
var (
	ErrTimeout  = errors.New("tmp102: timeout")
	ErrNotReady = errors.New("tmp102: not ready")
)

// Config controls non-hardware behaviour. All fields are optional.
type Config struct {
	// Address defaults to 0x48 if zero.
	Address uint16
	// PollInterval is used by Read() between Collect() attempts. Default 5 ms.
	PollInterval time.Duration
	// CollectTimeout bounds the total wait in Read(). Default 50 ms.
	CollectTimeout time.Duration
}

// Device wraps an I2C connection to a TMP102 device.
type Device struct {
	bus     drivers.I2C
	Address uint16

	cfg Config
	buf [2]byte // reuse buffer to avoid allocations
	raw int16   // last raw temperature sample
}

// New creates a new TMP102 connection. The I2C bus must already be
// configured. This function only creates the Device object; it does not
// touch the device.
func New(bus drivers.I2C) Device {
	return Device{
		bus:     bus,
		Address: Address,
	}
}

// Configure puts the device into shutdown so that conversions run only on
// Trigger, and applies optional config.
func (d *Device) Configure(cfgs ...Config) error {
	c := Config{}
	if len(cfgs) > 0 {
		c = cfgs[0]
	}
	if c.Address != 0 {
		d.Address = c.Address
	}
	if c.PollInterval <= 0 {
		c.PollInterval = 5 * time.Millisecond
	}
	if c.CollectTimeout <= 0 {
		c.CollectTimeout = 50 * time.Millisecond
	}
	d.cfg = c

	return d.bus.Tx(d.Address, []byte{regConfig, cfgShutdown, 0x00}, nil)
}

// Trigger starts a one-shot conversion. It is a quick register write with
// no blocking; a conversion takes about 26 ms.
func (d *Device) Trigger() error {
	return d.bus.Tx(d.Address, []byte{regConfig, cfgOneShot | cfgShutdown, 0x00}, nil)
}

// Collect attempts to read one measurement into the device cache and the
// provided sample. While the conversion is still running, ErrNotReady is
// returned. Any bus error is returned as-is.
func (d *Device) Collect(out *Sample) error {
	data := d.buf[:]
	if err := d.bus.Tx(d.Address, []byte{regConfig}, data); err != nil {
		return err
	}
	if data[0]&cfgOneShot == 0 {
		return ErrNotReady
	}

	if err := d.bus.Tx(d.Address, []byte{regTemperature}, data); err != nil {
		return err
	}
	// 12-bit left-justified, sign-extended by the int16 shift.
	raw := int16(uint16(data[0])<<8|uint16(data[1])) >> 4

	d.raw = raw
	if out != nil {
		out.RawTemp = raw
	}
	return nil
}

// Read performs a full measurement cycle: Trigger followed by bounded
// polling until Collect succeeds or the timeout elapses.
func (d *Device) Read() error {
	if err := d.Trigger(); err != nil {
		return err
	}
	deadline := time.Now().Add(d.cfg.CollectTimeout)
	for {
		var s Sample
		err := d.Collect(&s)
		switch err {
		case nil:
			return nil
		case ErrNotReady:
			if time.Now().After(deadline) {
				return ErrTimeout
			}
			time.Sleep(d.cfg.PollInterval)
			continue
		default:
			return err
		}
	}
}

// Sample holds one raw reading.
type Sample struct {
	RawTemp int16
}

// DeciCelsius returns tenths of degrees C (raw is 1/16 C per LSB).
func (s Sample) DeciCelsius() int32 {
	return (int32(s.RawTemp) * 10) / 16
}

// Celsius returns degrees C. Prefer DeciCelsius for fixed-point.
func (s Sample) Celsius() float32 {
	return float32(s.RawTemp) * 0.0625
}

// Accessors operating on the last cached sample.

func (d *Device) RawTemp() int16 { return d.raw }

func (d *Device) Celsius() float32 {
	return float32(d.raw) * 0.0625
}

func (d *Device) DeciCelsius() int32 {
	return (int32(d.raw) * 10) / 16
}
