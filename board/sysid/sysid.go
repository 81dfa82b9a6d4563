// Package sysid formats the board identity string exposed over the bus
// and on the console. The format is fixed: a short board name followed by
// three 8-digit hex groups derived from the 12-byte silicon serial, each
// group byte-reversed so the words read as big-endian hex.
package sysid

import "boardcode-go/x/conv"

const (
	maxNameLen = 13
	maxIDLen   = 39 // fits a 40-byte NUL-terminated identity buffer
)

// ID renders "<name> XXXXXXXX XXXXXXXX XXXXXXXX". Names longer than 13
// bytes are truncated; the result never exceeds 39 characters.
func ID(boardName string, serial [12]byte) string {
	if len(boardName) > maxNameLen {
		boardName = boardName[:maxNameLen]
	}
	buf := make([]byte, 0, maxIDLen+1)
	buf = append(buf, boardName...)
	var hex [8]byte
	for w := 0; w < 3; w++ {
		buf = append(buf, ' ')
		buf = append(buf, conv.U32Hex(hex[:], conv.U32LE(serial[w*4:]))...)
	}
	if len(buf) > maxIDLen {
		buf = buf[:maxIDLen]
	}
	return string(buf)
}
