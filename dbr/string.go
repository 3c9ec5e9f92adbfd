package dbr

import (
	"bytes"
	"strings"
)

// decodeString extracts a NUL terminated string from a fixed width slot. A
// slot with no terminator is used in full. Invalid UTF-8 is replaced with
// U+FFFD rather than rejected.
func decodeString(slot []byte) string {
	if i := bytes.IndexByte(slot, 0); i >= 0 {
		slot = slot[:i]
	}
	return strings.ToValidUTF8(string(slot), "\uFFFD")
}

// encodeString copies s into a zeroed slot, truncating if necessary. A string
// that exactly fills the slot is stored without a terminator.
func encodeString(slot []byte, s string) {
	n := copy(slot, s)
	clear(slot[n:])
}
