package codec

import (
	"fmt"

	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// UnsupportedTypeError is returned when a Go value has no SQL tag mapping.
type UnsupportedTypeError struct {
	// GoType is the dynamic type of the rejected value.
	GoType string
}

func (e *UnsupportedTypeError) Error() string {
	return fmt.Sprintf("codec: unsupported type %s", e.GoType)
}

// ProtocolDecodeError is returned when a wire value does not match the
// [tag, payload] shape.
type ProtocolDecodeError struct {
	// Tag is the tag read from the wire, or -1 when it could not be read.
	Tag types.Tag
	Msg string
	Err error
}

func (e *ProtocolDecodeError) Error() string {
	prefix := "codec: " + e.Msg
	if e.Tag >= 0 {
		prefix = fmt.Sprintf("codec: %s (tag %d)", e.Msg, int(e.Tag))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", prefix, e.Err)
	}
	return prefix
}

func (e *ProtocolDecodeError) Unwrap() error {
	return e.Err
}
