package subscriber

import (
	"fmt"
	"unicode/utf8"
)

// DecodeError describes the first byte of a payload that is not valid UTF-8.
type DecodeError struct {
	Offset int
	Byte   byte
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid UTF-8 byte 0x%02x at position %d", e.Byte, e.Offset)
}

// decodeUTF8 returns p as a string, or a *DecodeError if p is not strict UTF-8.
// An encoded U+FFFD in the input is valid; only undecodable bytes fail.
func decodeUTF8(p []byte) (string, error) {
	for i := 0; i < len(p); {
		r, size := utf8.DecodeRune(p[i:])
		if r == utf8.RuneError && size <= 1 {
			return "", &DecodeError{Offset: i, Byte: p[i]}
		}
		i += size
	}
	return string(p), nil
}
