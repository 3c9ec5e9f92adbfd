package dbr

import (
	"errors"
	"fmt"
)

// ErrDecode matches any *DecodeError with errors.Is.
var ErrDecode = errors.New("dbr: decode error")

// DecodeError reports a record that cannot be decoded as requested.
// Records come from the bus already sized for their element count, so this
// indicates a mismatch between the request and what was delivered rather
// than corrupted data.
type DecodeError struct {
	Type    Type
	Message string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("dbr: decode %s: %s", e.Type, e.Message)
}

func (e *DecodeError) Is(target error) bool {
	return target == ErrDecode
}

func shortRecord(t Type, have, need int) error {
	return &DecodeError{Type: t, Message: fmt.Sprintf("record too short (have %d bytes, need %d)", have, need)}
}
