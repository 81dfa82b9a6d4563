//go:build rp2040

package console

import (
	"context"
	"io"
	"machine"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"
)

var port = uartx.UART0

// Init configures the console UART. Defaults inside uartx apply if zero.
func Init(baud uint32, tx, rx machine.Pin) {
	_ = port.Configure(uartx.UARTConfig{
		BaudRate: baud,
		TX:       tx,
		RX:       rx,
	})
}

func Writer() io.Writer { return port }
func Reader() io.Reader { return reader{} }

type reader struct{}

func (reader) Read(p []byte) (int, error) {
	return port.RecvSomeContext(context.Background(), p)
}
