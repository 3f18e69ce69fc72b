// Package codec converts between Go values, tagged SQL values and the
// [tag, payload] wire pair.
//
// Blob payloads are URL-safe base64 with the trailing padding stripped.
// Decoding keeps the payload as received; padding is repaired only when the
// bytes are needed (Bytes, Native, Render).
package codec

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Encode maps a Go scalar onto a tagged SQL value.
//
//   - nil (including typed nil pointers) -> Null
//   - signed and unsigned integers -> Integer
//   - float32, float64 -> Float
//   - string -> Text
//   - []byte -> Blob; a nil []byte is Null, an empty non-nil one an empty Blob
//   - bool -> Integer 0 or 1
//   - time.Time -> Text in RFC 3339 with nanoseconds
//   - types.Value -> itself
//
// Any other type yields *UnsupportedTypeError.
func Encode(v any) (types.Value, error) {
	switch x := v.(type) {
	case nil:
		return types.Null(), nil
	case types.Value:
		return x, nil
	case int64:
		return types.Integer(x), nil
	case int:
		return types.Integer(int64(x)), nil
	case float64:
		return types.Float(x), nil
	case string:
		return types.Text(x), nil
	case []byte:
		if x == nil {
			return types.Null(), nil
		}
		return types.BlobPayload(encodeBlob(x)), nil
	case bool:
		if x {
			return types.Integer(1), nil
		}
		return types.Integer(0), nil
	case time.Time:
		return types.Text(x.Format(time.RFC3339Nano)), nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer:
		if rv.IsNil() {
			return types.Null(), nil
		}
		return Encode(rv.Elem().Interface())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return types.Integer(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		u := rv.Uint()
		if u > math.MaxInt64 {
			return types.Value{}, &UnsupportedTypeError{GoType: fmt.Sprintf("%T (value %d overflows int64)", v, u)}
		}
		return types.Integer(int64(u)), nil
	case reflect.Float32, reflect.Float64:
		return types.Float(rv.Float()), nil
	case reflect.String:
		return types.Text(rv.String()), nil
	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return Encode(rv.Bytes())
		}
	}

	return types.Value{}, &UnsupportedTypeError{GoType: fmt.Sprintf("%T", v)}
}

// EncodeAll encodes a positional argument list.
func EncodeAll(args []any) ([]types.Value, error) {
	out := make([]types.Value, len(args))
	for i, a := range args {
		v, err := Encode(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		out[i] = v
	}
	return out, nil
}

// Wire returns the [tag, payload] pair for v, ready for JSON or msgpack.
// The Null payload is always nil.
func Wire(v types.Value) [2]any {
	if v.Tag == types.TagNull {
		return [2]any{int(types.TagNull), nil}
	}
	return [2]any{int(v.Tag), v.Payload}
}

// WireAll returns the wire pairs for a list of values.
func WireAll(vs []types.Value) [][2]any {
	out := make([][2]any, len(vs))
	for i, v := range vs {
		out[i] = Wire(v)
	}
	return out
}

// EncodeWire is Encode followed by Wire.
func EncodeWire(v any) ([2]any, error) {
	tv, err := Encode(v)
	if err != nil {
		return [2]any{}, err
	}
	return Wire(tv), nil
}

// Decode parses a JSON [tag, payload] pair.
func Decode(raw json.RawMessage) (types.Value, error) {
	var pair []json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return types.Value{}, &ProtocolDecodeError{Tag: -1, Msg: "value is not an array", Err: err}
	}
	if len(pair) != 2 {
		return types.Value{}, &ProtocolDecodeError{Tag: -1, Msg: fmt.Sprintf("value has %d elements, want 2", len(pair))}
	}

	var tagNum int
	if err := json.Unmarshal(pair[0], &tagNum); err != nil {
		return types.Value{}, &ProtocolDecodeError{Tag: -1, Msg: "tag is not an integer", Err: err}
	}
	tag := types.Tag(tagNum)
	if !tag.Valid() {
		return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "unknown tag"}
	}

	payload := pair[1]
	switch tag {
	case types.TagNull:
		return types.Null(), nil
	case types.TagInteger:
		n, err := decodeNumber(payload)
		if err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "integer payload", Err: err}
		}
		i, err := n.Int64()
		if err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "integer payload", Err: err}
		}
		return types.Integer(i), nil
	case types.TagFloat:
		n, err := decodeNumber(payload)
		if err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "float payload", Err: err}
		}
		f, err := n.Float64()
		if err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "float payload", Err: err}
		}
		return types.Float(f), nil
	case types.TagText:
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "text payload is not a string", Err: err}
		}
		return types.Text(s), nil
	default: // TagBlob
		var s string
		if err := json.Unmarshal(payload, &s); err != nil {
			return types.Value{}, &ProtocolDecodeError{Tag: tag, Msg: "blob payload is not a string", Err: err}
		}
		return types.BlobPayload(s), nil
	}
}

// DecodeRow parses a JSON array of [tag, payload] pairs.
func DecodeRow(raw json.RawMessage) (types.Row, error) {
	var cells []json.RawMessage
	if err := json.Unmarshal(raw, &cells); err != nil {
		return nil, &ProtocolDecodeError{Tag: -1, Msg: "row is not an array", Err: err}
	}
	row := make(types.Row, len(cells))
	for i, c := range cells {
		v, err := Decode(c)
		if err != nil {
			return nil, fmt.Errorf("column %d: %w", i, err)
		}
		row[i] = v
	}
	return row, nil
}

// FromWire builds a value from an already-decoded pair (e.g. from msgpack).
// Numeric payloads may arrive as any Go integer or float kind.
func FromWire(tag int, payload any) (types.Value, error) {
	t := types.Tag(tag)
	if !t.Valid() {
		return types.Value{}, &ProtocolDecodeError{Tag: t, Msg: "unknown tag"}
	}
	switch t {
	case types.TagNull:
		return types.Null(), nil
	case types.TagInteger:
		rv := reflect.ValueOf(payload)
		switch rv.Kind() {
		case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
			return types.Integer(rv.Int()), nil
		case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
			if rv.Uint() <= math.MaxInt64 {
				return types.Integer(int64(rv.Uint())), nil
			}
		}
	case types.TagFloat:
		rv := reflect.ValueOf(payload)
		switch rv.Kind() {
		case reflect.Float32, reflect.Float64:
			return types.Float(rv.Float()), nil
		}
	case types.TagText:
		if s, ok := payload.(string); ok {
			return types.Text(s), nil
		}
	case types.TagBlob:
		if s, ok := payload.(string); ok {
			return types.BlobPayload(s), nil
		}
	}
	return types.Value{}, &ProtocolDecodeError{Tag: t, Msg: fmt.Sprintf("payload type %T does not match tag", payload)}
}

// Bytes returns the raw bytes of a blob value.
// Missing base64 padding is restored before decoding.
func Bytes(v types.Value) ([]byte, error) {
	if v.Tag != types.TagBlob {
		return nil, &ProtocolDecodeError{Tag: v.Tag, Msg: "value is not a blob"}
	}
	s, ok := v.Payload.(string)
	if !ok {
		return nil, &ProtocolDecodeError{Tag: v.Tag, Msg: fmt.Sprintf("blob payload has type %T", v.Payload)}
	}
	b, err := base64.URLEncoding.DecodeString(padBase64(s))
	if err != nil {
		return nil, &ProtocolDecodeError{Tag: v.Tag, Msg: "blob payload is not base64", Err: err}
	}
	return b, nil
}

// Native returns the Go form of v: nil, int64, float64, string or []byte.
func Native(v types.Value) (any, error) {
	switch v.Tag {
	case types.TagNull:
		return nil, nil
	case types.TagBlob:
		return Bytes(v)
	case types.TagInteger, types.TagFloat, types.TagText:
		return v.Payload, nil
	default:
		return nil, &ProtocolDecodeError{Tag: v.Tag, Msg: "unknown tag"}
	}
}

// Render returns the display form of v.
// Blobs render as an SQL hex literal, e.g. X'34'.
func Render(v types.Value) string {
	switch v.Tag {
	case types.TagNull:
		return "null"
	case types.TagInteger:
		if n, ok := v.Payload.(int64); ok {
			return strconv.FormatInt(n, 10)
		}
	case types.TagFloat:
		if f, ok := v.Payload.(float64); ok {
			return formatFloat(f)
		}
	case types.TagText:
		if s, ok := v.Payload.(string); ok {
			return s
		}
	case types.TagBlob:
		b, err := Bytes(v)
		if err != nil {
			return fmt.Sprintf("<invalid blob %v>", v.Payload)
		}
		return fmt.Sprintf("X'%X'", b)
	}
	return fmt.Sprintf("%v", v.Payload)
}

// RenderRow renders every value of a row.
func RenderRow(row types.Row) []string {
	out := make([]string, len(row))
	for i, v := range row {
		out[i] = Render(v)
	}
	return out
}

func encodeBlob(b []byte) string {
	return strings.TrimRight(base64.URLEncoding.EncodeToString(b), "=")
}

// padBase64 appends the minimum '=' padding for a valid base64 length.
func padBase64(s string) string {
	s = strings.TrimRight(s, "=")
	if rem := len(s) % 4; rem != 0 {
		s += strings.Repeat("=", 4-rem)
	}
	return s
}

func decodeNumber(raw json.RawMessage) (json.Number, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return "", err
	}
	return n, nil
}

// formatFloat keeps a decimal point on integral values so floats stay
// distinguishable from integers when displayed.
func formatFloat(f float64) string {
	s := strconv.FormatFloat(f, 'g', -1, 64)
	if strings.ContainsAny(s, ".eEnN") {
		return s
	}
	return s + ".0"
}
