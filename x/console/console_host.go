//go:build !(rp2040 || rp2350)

// Package console abstracts the board console: stdio on host builds, a
// uartx-backed serial port on MCU builds.
package console

import (
	"io"
	"os"
)

func Writer() io.Writer { return os.Stdout }
func Reader() io.Reader { return os.Stdin }
