// Package frame implements the erldb dump file format: a stream of
// length-prefixed msgpack frames holding one query result.
//
// A dump is a header frame (query and columns), zero or more row frames,
// and a trailer frame (row count and changes). Each frame is a 4-byte
// big-endian payload length followed by the msgpack payload.
package frame

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"reflect"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// Frame size constants.
const (
	// MaxFrameSize is the maximum frame size (16 MiB), including length prefix.
	MaxFrameSize = 16 * 1024 * 1024
	// MaxPayloadSize is the maximum payload size (MaxFrameSize - 4 bytes).
	MaxPayloadSize = MaxFrameSize - LengthPrefixSize
	// LengthPrefixSize is the size of the length prefix in bytes.
	LengthPrefixSize = 4
)

// FormatVersion is written in every header frame.
const FormatVersion = 1

// Frame type discriminants.
const (
	TypeHeader  = "header"
	TypeRow     = "row"
	TypeTrailer = "trailer"
)

// FrameErrorKind classifies frame errors.
type FrameErrorKind int

const (
	// FrameErrorPartial indicates a truncated or incomplete frame.
	FrameErrorPartial FrameErrorKind = iota
	// FrameErrorTooLarge indicates a frame exceeding MaxFrameSize.
	FrameErrorTooLarge
	// FrameErrorDecode indicates a msgpack or value decoding error.
	FrameErrorDecode
	// FrameErrorSequence indicates frames out of header/rows/trailer order.
	FrameErrorSequence
)

func (k FrameErrorKind) String() string {
	switch k {
	case FrameErrorPartial:
		return "partial"
	case FrameErrorTooLarge:
		return "too_large"
	case FrameErrorDecode:
		return "decode"
	case FrameErrorSequence:
		return "sequence"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// FrameError represents a frame encoding or decoding error.
type FrameError struct {
	Kind FrameErrorKind
	Msg  string
	Err  error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	}
	return e.Msg
}

func (e *FrameError) Unwrap() error {
	return e.Err
}

// IsFatal reports whether the stream cannot be read past this error.
// Partial and oversized frames are fatal.
func (e *FrameError) IsFatal() bool {
	return e.Kind == FrameErrorPartial || e.Kind == FrameErrorTooLarge
}

// IsFatalFrameError returns true if the error is a fatal frame error.
func IsFatalFrameError(err error) bool {
	var frameErr *FrameError
	if errors.As(err, &frameErr) {
		return frameErr.IsFatal()
	}
	return false
}

// Header opens a dump.
type Header struct {
	Type      string   `msgpack:"type"`
	Version   int      `msgpack:"version"`
	QueryID   string   `msgpack:"query_id"`
	Endpoint  string   `msgpack:"endpoint"`
	Bucket    string   `msgpack:"bucket"`
	File      string   `msgpack:"file"`
	Query     string   `msgpack:"query"`
	Columns   []string `msgpack:"columns"`
	CreatedAt string   `msgpack:"created_at"`
}

// RowFrame carries one result row as [tag, payload] pairs.
type RowFrame struct {
	Type   string  `msgpack:"type"`
	Seq    int64   `msgpack:"seq"`
	Values [][]any `msgpack:"values"`
}

// Row decodes the frame's values.
func (f *RowFrame) Row() (types.Row, error) {
	row := make(types.Row, len(f.Values))
	for i, pair := range f.Values {
		if len(pair) != 2 {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("row %d column %d: value has %d elements, want 2", f.Seq, i, len(pair))}
		}
		tag, ok := toInt(pair[0])
		if !ok {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("row %d column %d: tag has type %T", f.Seq, i, pair[0])}
		}
		v, err := codec.FromWire(tag, pair[1])
		if err != nil {
			return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("row %d column %d", f.Seq, i), Err: err}
		}
		row[i] = v
	}
	return row, nil
}

// Trailer closes a dump.
type Trailer struct {
	Type    string `msgpack:"type"`
	Rows    int64  `msgpack:"rows"`
	Changes int64  `msgpack:"changes"`
}

// Encoder writes dump frames to a stream.
type Encoder struct {
	w    io.Writer
	rows int64
}

// NewEncoder creates an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// WriteHeader writes the header frame. Type and Version are filled in.
func (e *Encoder) WriteHeader(h Header) error {
	h.Type = TypeHeader
	h.Version = FormatVersion
	return e.writeFrame(&h)
}

// WriteRow writes one row frame. Rows are numbered from 0.
func (e *Encoder) WriteRow(row types.Row) error {
	values := make([][]any, len(row))
	for i, v := range row {
		w := codec.Wire(v)
		values[i] = []any{w[0], w[1]}
	}
	if err := e.writeFrame(&RowFrame{Type: TypeRow, Seq: e.rows, Values: values}); err != nil {
		return err
	}
	e.rows++
	return nil
}

// WriteTrailer writes the trailer frame with the number of rows written.
func (e *Encoder) WriteTrailer(changes int64) error {
	return e.writeFrame(&Trailer{Type: TypeTrailer, Rows: e.rows, Changes: changes})
}

func (e *Encoder) writeFrame(v any) error {
	payload, err := msgpack.Marshal(v)
	if err != nil {
		return &FrameError{Kind: FrameErrorDecode, Msg: "failed to encode frame", Err: err}
	}
	if len(payload) > MaxPayloadSize {
		return &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", len(payload), MaxPayloadSize),
		}
	}
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], uint32(len(payload)))
	if _, err := e.w.Write(lengthBuf[:]); err != nil {
		return fmt.Errorf("write length prefix: %w", err)
	}
	if _, err := e.w.Write(payload); err != nil {
		return fmt.Errorf("write payload: %w", err)
	}
	return nil
}

// Decoder decodes length-prefixed msgpack frames from a stream.
type Decoder struct {
	reader io.Reader
}

// NewDecoder creates a new frame decoder.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{reader: r}
}

// ReadFrame reads a single frame from the stream and returns its raw
// msgpack payload.
//
// Errors:
//   - io.EOF: stream ended cleanly (no more frames)
//   - *FrameError with Kind=FrameErrorPartial: incomplete frame (fatal)
//   - *FrameError with Kind=FrameErrorTooLarge: frame exceeds limit (fatal)
func (d *Decoder) ReadFrame() ([]byte, error) {
	var lengthBuf [LengthPrefixSize]byte
	_, err := io.ReadFull(d.reader, lengthBuf[:])
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read length prefix",
			Err:  err,
		}
	}

	payloadSize := binary.BigEndian.Uint32(lengthBuf[:])
	if payloadSize > MaxPayloadSize {
		return nil, &FrameError{
			Kind: FrameErrorTooLarge,
			Msg:  fmt.Sprintf("payload size %d exceeds maximum %d", payloadSize, MaxPayloadSize),
		}
	}

	payload := make([]byte, payloadSize)
	if _, err := io.ReadFull(d.reader, payload); err != nil {
		return nil, &FrameError{
			Kind: FrameErrorPartial,
			Msg:  "failed to read payload",
			Err:  err,
		}
	}
	return payload, nil
}

// Next reads and decodes the next frame.
func (d *Decoder) Next() (any, error) {
	payload, err := d.ReadFrame()
	if err != nil {
		return nil, err
	}
	return DecodeFrame(payload)
}

// frameTypeProbe is used to peek at the type field without full decode.
type frameTypeProbe struct {
	Type string `msgpack:"type"`
}

// DecodeFrame decodes a payload into *Header, *RowFrame or *Trailer.
func DecodeFrame(payload []byte) (any, error) {
	var probe frameTypeProbe
	if err := msgpack.Unmarshal(payload, &probe); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode frame type", Err: err}
	}

	var out any
	switch probe.Type {
	case TypeHeader:
		out = &Header{}
	case TypeRow:
		out = &RowFrame{}
	case TypeTrailer:
		out = &Trailer{}
	default:
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: fmt.Sprintf("unknown frame type %q", probe.Type)}
	}
	if err := msgpack.Unmarshal(payload, out); err != nil {
		return nil, &FrameError{Kind: FrameErrorDecode, Msg: "failed to decode " + probe.Type + " frame", Err: err}
	}
	return out, nil
}

func toInt(v any) (int, bool) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return int(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int(rv.Uint()), true
	}
	return 0, false
}
