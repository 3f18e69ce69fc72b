// Package types defines the domain types shared across the erldb client.
package types

import "fmt"

// Tag is the SQL storage class discriminator carried on the wire.
// Values are fixed by the server protocol.
type Tag int

// Tag constants. The numeric values are part of the wire format.
const (
	TagNull    Tag = 0
	TagInteger Tag = 1
	TagFloat   Tag = 2
	TagText    Tag = 3
	TagBlob    Tag = 4
)

// Valid reports whether t is one of the five protocol tags.
func (t Tag) Valid() bool {
	return t >= TagNull && t <= TagBlob
}

func (t Tag) String() string {
	switch t {
	case TagNull:
		return "null"
	case TagInteger:
		return "integer"
	case TagFloat:
		return "float"
	case TagText:
		return "text"
	case TagBlob:
		return "blob"
	default:
		return fmt.Sprintf("tag(%d)", int(t))
	}
}

// Value is a tagged scalar SQL value.
//
// Payload holds the wire payload for the tag:
//   - TagNull: nil
//   - TagInteger: int64
//   - TagFloat: float64
//   - TagText: string
//   - TagBlob: string, URL-safe base64 (padding may be absent)
//
// Blob payloads stay encoded until the value is rendered.
type Value struct {
	Tag     Tag
	Payload any
}

// Null returns the SQL NULL value.
func Null() Value { return Value{Tag: TagNull} }

// Integer returns an integer value.
func Integer(n int64) Value { return Value{Tag: TagInteger, Payload: n} }

// Float returns a floating point value.
func Float(f float64) Value { return Value{Tag: TagFloat, Payload: f} }

// Text returns a text value.
func Text(s string) Value { return Value{Tag: TagText, Payload: s} }

// BlobPayload returns a blob value from its base64 wire payload.
// Use codec.Encode to build a blob from raw bytes.
func BlobPayload(b64 string) Value { return Value{Tag: TagBlob, Payload: b64} }

// IsNull reports whether v is SQL NULL.
func (v Value) IsNull() bool { return v.Tag == TagNull }

// Row is one result row, one value per projected column.
type Row []Value
