package codec

import (
	"bytes"
	"encoding/json"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/PuffoTrillionarioGonePublic/erldb/types"
)

// roundTrip encodes v, marshals the wire pair as JSON and decodes it back.
func roundTrip(t *testing.T, v any) types.Value {
	t.Helper()
	pair, err := EncodeWire(v)
	if err != nil {
		t.Fatalf("EncodeWire(%#v): %v", v, err)
	}
	raw, err := json.Marshal(pair)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := Decode(raw)
	if err != nil {
		t.Fatalf("Decode(%s): %v", raw, err)
	}
	return got
}

func TestEncode_TagMapping(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want types.Tag
	}{
		{"nil", nil, types.TagNull},
		{"int", 1, types.TagInteger},
		{"int8", int8(-3), types.TagInteger},
		{"int64", int64(math.MaxInt64), types.TagInteger},
		{"uint32", uint32(7), types.TagInteger},
		{"float32", float32(1.5), types.TagFloat},
		{"float64", 2.0, types.TagFloat},
		{"string", "3", types.TagText},
		{"bytes", []byte("4"), types.TagBlob},
		{"empty bytes", []byte{}, types.TagBlob},
		{"bool", true, types.TagInteger},
		{"time", time.Date(2023, 1, 1, 2, 16, 52, 0, time.UTC), types.TagText},
		{"nil pointer", (*int)(nil), types.TagNull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Encode(tt.in)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got.Tag != tt.want {
				t.Errorf("tag = %v, want %v", got.Tag, tt.want)
			}
			if Wire(got)[0] != int(tt.want) {
				t.Errorf("wire tag = %v, want %d", Wire(got)[0], int(tt.want))
			}
		})
	}
}

func TestEncode_BlobHasNoPadding(t *testing.T) {
	for n := 0; n < 10; n++ {
		data := bytes.Repeat([]byte{0xfb}, n)
		v, err := Encode(data)
		if err != nil {
			t.Fatalf("Encode: %v", err)
		}
		s := v.Payload.(string)
		if bytes.ContainsAny([]byte(s), "=+/") {
			t.Errorf("len %d: payload %q must be unpadded URL-safe base64", n, s)
		}
	}
}

func TestEncode_Unsupported(t *testing.T) {
	inputs := []any{
		struct{}{},
		map[string]int{"a": 1},
		[]int{1, 2},
		uint64(math.MaxUint64),
	}
	for _, in := range inputs {
		_, err := Encode(in)
		var unsupported *UnsupportedTypeError
		if !errors.As(err, &unsupported) {
			t.Errorf("Encode(%T) error = %v, want UnsupportedTypeError", in, err)
		}
	}
}

func TestRoundTrip_Scalars(t *testing.T) {
	tests := []struct {
		in   any
		want any
	}{
		{nil, nil},
		{int64(1), int64(1)},
		{int64(math.MinInt64), int64(math.MinInt64)},
		{int64(math.MaxInt64), int64(math.MaxInt64)},
		{2.0, 2.0},
		{0.1, 0.1},
		{math.MaxFloat64, math.MaxFloat64},
		{"3", "3"},
		{"", ""},
		{"héllo ✓", "héllo ✓"},
	}

	for _, tt := range tests {
		got, err := Native(roundTrip(t, tt.in))
		if err != nil {
			t.Fatalf("Native: %v", err)
		}
		if got != tt.want {
			t.Errorf("round trip %#v = %#v (%T)", tt.in, got, got)
		}
	}
}

func TestRoundTrip_IntegerStaysInteger(t *testing.T) {
	got := roundTrip(t, 1)
	if got.Tag != types.TagInteger {
		t.Fatalf("tag = %v, want integer", got.Tag)
	}
	if _, ok := got.Payload.(int64); !ok {
		t.Errorf("payload type = %T, want int64", got.Payload)
	}
}

func TestRoundTrip_FloatStaysFloat(t *testing.T) {
	got := roundTrip(t, 2.0)
	if got.Tag != types.TagFloat {
		t.Fatalf("tag = %v, want float", got.Tag)
	}
	if got.Payload != 2.0 {
		t.Errorf("payload = %v, want 2.0", got.Payload)
	}
}

func TestRoundTrip_BlobAllLengths(t *testing.T) {
	for n := 0; n <= 32; n++ {
		data := make([]byte, n)
		for i := range data {
			data[i] = byte(i*37 + n)
		}
		got := roundTrip(t, data)
		b, err := Bytes(got)
		if err != nil {
			t.Fatalf("len %d: Bytes: %v", n, err)
		}
		if !bytes.Equal(b, data) {
			t.Errorf("len %d: got %x, want %x", n, b, data)
		}
	}
}

func TestEncode_NilAndEmptyBlob(t *testing.T) {
	null, err := Encode([]byte(nil))
	if err != nil {
		t.Fatalf("Encode(nil bytes): %v", err)
	}
	if null.Tag != types.TagNull {
		t.Errorf("nil []byte: tag = %v, want null", null.Tag)
	}
	if got := roundTrip(t, []byte(nil)); got.Tag != types.TagNull {
		t.Errorf("nil []byte round trip: tag = %v, want null", got.Tag)
	}

	empty := roundTrip(t, []byte{})
	if empty.Tag != types.TagBlob {
		t.Fatalf("empty []byte: tag = %v, want blob", empty.Tag)
	}
	b, err := Bytes(empty)
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if b == nil || len(b) != 0 {
		t.Errorf("empty []byte: got %#v, want non-nil empty", b)
	}
}

func TestBytes_AcceptsPaddedPayload(t *testing.T) {
	b, err := Bytes(types.BlobPayload("NA=="))
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	if string(b) != "4" {
		t.Errorf("got %q, want 4", b)
	}
}

func TestBytes_NotBlob(t *testing.T) {
	if _, err := Bytes(types.Text("x")); err == nil {
		t.Error("expected error for non-blob value")
	}
}

func TestDecode_Errors(t *testing.T) {
	inputs := []string{
		`{}`,
		`[1]`,
		`[1, 2, 3]`,
		`["1", 2]`,
		`[5, null]`,
		`[-1, null]`,
		`[1, "x"]`,
		`[1, 2.5]`,
		`[2, "x"]`,
		`[3, 3]`,
		`[4, 4]`,
	}
	for _, in := range inputs {
		_, err := Decode(json.RawMessage(in))
		var decodeErr *ProtocolDecodeError
		if !errors.As(err, &decodeErr) {
			t.Errorf("Decode(%s) error = %v, want ProtocolDecodeError", in, err)
		}
	}
}

func TestDecode_NullIgnoresPayload(t *testing.T) {
	for _, in := range []string{`[0, null]`, `[0, "null"]`, `[0, 17]`} {
		v, err := Decode(json.RawMessage(in))
		if err != nil {
			t.Fatalf("Decode(%s): %v", in, err)
		}
		if !v.IsNull() || v.Payload != nil {
			t.Errorf("Decode(%s) = %+v, want null", in, v)
		}
	}
}

func TestDecodeRow(t *testing.T) {
	row, err := DecodeRow(json.RawMessage(`[[0,null],[1,1],[2,2.0],[3,"3"],[4,"NA"]]`))
	if err != nil {
		t.Fatalf("DecodeRow: %v", err)
	}
	want := []string{"null", "1", "2.0", "3", "X'34'"}
	got := RenderRow(row)
	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("col %d = %q, want %q", i, got[i], want[i])
		}
	}
}

func TestDecodeRow_BadCell(t *testing.T) {
	_, err := DecodeRow(json.RawMessage(`[[1,1],[9,null]]`))
	var decodeErr *ProtocolDecodeError
	if !errors.As(err, &decodeErr) {
		t.Fatalf("error = %v, want ProtocolDecodeError", err)
	}
	if decodeErr.Tag != 9 {
		t.Errorf("tag = %d, want 9", decodeErr.Tag)
	}
}

func TestFromWire(t *testing.T) {
	tests := []struct {
		tag     int
		payload any
		want    types.Value
	}{
		{0, nil, types.Null()},
		{1, int8(5), types.Integer(5)},
		{1, uint16(6), types.Integer(6)},
		{2, float32(0.5), types.Float(0.5)},
		{3, "t", types.Text("t")},
		{4, "NA", types.BlobPayload("NA")},
	}
	for _, tt := range tests {
		got, err := FromWire(tt.tag, tt.payload)
		if err != nil {
			t.Fatalf("FromWire(%d, %v): %v", tt.tag, tt.payload, err)
		}
		if got != tt.want {
			t.Errorf("FromWire(%d, %v) = %+v, want %+v", tt.tag, tt.payload, got, tt.want)
		}
	}

	if _, err := FromWire(1, "nope"); err == nil {
		t.Error("expected error for mismatched payload")
	}
	if _, err := FromWire(8, nil); err == nil {
		t.Error("expected error for unknown tag")
	}
}

func TestRender(t *testing.T) {
	tests := []struct {
		in   types.Value
		want string
	}{
		{types.Null(), "null"},
		{types.Integer(-4), "-4"},
		{types.Float(2), "2.0"},
		{types.Float(79.99), "79.99"},
		{types.Float(1e21), "1e+21"},
		{types.Text("Dragon"), "Dragon"},
		{types.BlobPayload("NA"), "X'34'"},
		{types.BlobPayload(""), "X''"},
	}
	for _, tt := range tests {
		if got := Render(tt.in); got != tt.want {
			t.Errorf("Render(%+v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEncodeAll_ReportsPosition(t *testing.T) {
	_, err := EncodeAll([]any{1, "a", struct{}{}})
	if err == nil {
		t.Fatal("expected error")
	}
	var unsupported *UnsupportedTypeError
	if !errors.As(err, &unsupported) {
		t.Errorf("error = %v, want UnsupportedTypeError", err)
	}
	if want := "argument 3"; !bytes.Contains([]byte(err.Error()), []byte(want)) {
		t.Errorf("error %q should mention %q", err, want)
	}
}
