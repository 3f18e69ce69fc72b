package frame

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"slices"
	"testing"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/PuffoTrillionarioGonePublic/erldb/codec"
	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// encodeFrame encodes a payload with a length prefix.
func encodeFrame(payload []byte) []byte {
	buf := make([]byte, LengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(buf[:LengthPrefixSize], uint32(len(payload)))
	copy(buf[LengthPrefixSize:], payload)
	return buf
}

func testRows(t *testing.T) []types.Row {
	t.Helper()
	var rows []types.Row
	for _, args := range [][]any{
		{nil, 1, 2.0, "3", []byte("4")},
		{nil, int64(-9000000000), 0.5, "", []byte{}},
	} {
		vals, err := codec.EncodeAll(args)
		if err != nil {
			t.Fatalf("encode: %v", err)
		}
		rows = append(rows, types.Row(vals))
	}
	return rows
}

func TestDump_RoundTrip(t *testing.T) {
	rows := testRows(t)
	var buf bytes.Buffer
	h := Header{QueryID: "q-1", Bucket: "b", File: "f.db", Query: "SELECT ?, ?, ?, ?, ?", Columns: []string{"a", "b", "c", "d", "e"}}
	if err := WriteDump(&buf, h, rows, 0); err != nil {
		t.Fatalf("write: %v", err)
	}

	d, err := ReadDump(&buf)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if d.Header.Version != FormatVersion || d.Header.Type != TypeHeader {
		t.Errorf("unexpected header %+v", d.Header)
	}
	if d.Header.QueryID != "q-1" || !slices.Equal(d.Header.Columns, h.Columns) {
		t.Errorf("header fields lost: %+v", d.Header)
	}
	if d.Trailer.Rows != 2 {
		t.Errorf("expected 2 rows in trailer, got %d", d.Trailer.Rows)
	}
	if len(d.Rows) != len(rows) {
		t.Fatalf("expected %d rows, got %d", len(rows), len(d.Rows))
	}
	for i := range rows {
		got, want := codec.RenderRow(d.Rows[i]), codec.RenderRow(rows[i])
		if !slices.Equal(got, want) {
			t.Errorf("row %d: got %v, want %v", i, got, want)
		}
		for j, v := range d.Rows[i] {
			if v.Tag != rows[i][j].Tag {
				t.Errorf("row %d col %d: tag %v, want %v", i, j, v.Tag, rows[i][j].Tag)
			}
		}
	}
	if n, _ := codec.Native(d.Rows[1][1]); n != int64(-9000000000) {
		t.Errorf("large integer lost: %v", n)
	}
}

func TestDecoder_EmptyStream(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader(nil)).ReadFrame()
	if !errors.Is(err, io.EOF) {
		t.Errorf("expected io.EOF, got %v", err)
	}
}

func TestDecoder_PartialPrefix(t *testing.T) {
	_, err := NewDecoder(bytes.NewReader([]byte{0, 0})).ReadFrame()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("partial frames are fatal")
	}
}

func TestDecoder_PartialPayload(t *testing.T) {
	frame := encodeFrame([]byte{1, 2, 3, 4})
	_, err := NewDecoder(bytes.NewReader(frame[:6])).ReadFrame()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
}

func TestDecoder_TooLarge(t *testing.T) {
	var prefix [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(prefix[:], MaxPayloadSize+1)
	_, err := NewDecoder(bytes.NewReader(prefix[:])).ReadFrame()
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("expected too-large error, got %v", err)
	}
	if !fe.IsFatal() {
		t.Error("oversized frames are fatal")
	}
}

func TestEncoder_RejectsOversizedRow(t *testing.T) {
	big := make([]byte, MaxPayloadSize)
	v, err := codec.Encode(big)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	err = NewEncoder(io.Discard).WriteRow(types.Row{v})
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Errorf("expected too-large error, got %v", err)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	payload, err := msgpack.Marshal(map[string]any{"type": "mystery"})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	_, err = DecodeFrame(payload)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorDecode {
		t.Fatalf("expected decode error, got %v", err)
	}
	if fe.IsFatal() {
		t.Error("decode errors are not fatal")
	}
}

func TestRowFrame_BadTag(t *testing.T) {
	f := &RowFrame{Type: TypeRow, Values: [][]any{{int8(9), "x"}}}
	_, err := f.Row()
	var pde *codec.ProtocolDecodeError
	if !errors.As(err, &pde) {
		t.Errorf("expected ProtocolDecodeError, got %v", err)
	}
}

func TestReadDump_Sequence(t *testing.T) {
	frameOf := func(v any) []byte {
		payload, err := msgpack.Marshal(v)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		return encodeFrame(payload)
	}
	header := frameOf(&Header{Type: TypeHeader, Version: FormatVersion})
	row0 := frameOf(&RowFrame{Type: TypeRow, Seq: 0, Values: [][]any{{0, nil}}})
	row5 := frameOf(&RowFrame{Type: TypeRow, Seq: 5})
	trailer1 := frameOf(&Trailer{Type: TypeTrailer, Rows: 1})
	trailer3 := frameOf(&Trailer{Type: TypeTrailer, Rows: 3})

	tests := []struct {
		name   string
		frames [][]byte
		kind   FrameErrorKind
	}{
		{"row before header", [][]byte{row0}, FrameErrorSequence},
		{"duplicate header", [][]byte{header, header}, FrameErrorSequence},
		{"gap in seq", [][]byte{header, row5}, FrameErrorSequence},
		{"trailer count mismatch", [][]byte{header, row0, trailer3}, FrameErrorSequence},
		{"frame after trailer", [][]byte{header, row0, trailer1, row0}, FrameErrorSequence},
		{"missing trailer", [][]byte{header, row0}, FrameErrorPartial},
		{"empty", nil, FrameErrorSequence},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ReadDump(bytes.NewReader(bytes.Join(tt.frames, nil)))
			var fe *FrameError
			if !errors.As(err, &fe) || fe.Kind != tt.kind {
				t.Errorf("expected %v error, got %v", tt.kind, err)
			}
		})
	}
}

func TestFrameErrorKind_String(t *testing.T) {
	if FrameErrorTooLarge.String() != "too_large" {
		t.Errorf("unexpected %s", FrameErrorTooLarge)
	}
	if FrameErrorKind(42).String() != "kind(42)" {
		t.Errorf("unexpected %s", FrameErrorKind(42))
	}
}
