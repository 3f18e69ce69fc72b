package types //nolint:revive // types is a valid package name

import "testing"

func TestTag_FixedValues(t *testing.T) {
	tests := []struct {
		tag  Tag
		want int
		name string
	}{
		{TagNull, 0, "null"},
		{TagInteger, 1, "integer"},
		{TagFloat, 2, "float"},
		{TagText, 3, "text"},
		{TagBlob, 4, "blob"},
	}

	for _, tt := range tests {
		if int(tt.tag) != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, int(tt.tag), tt.want)
		}
		if tt.tag.String() != tt.name {
			t.Errorf("String() = %q, want %q", tt.tag.String(), tt.name)
		}
		if !tt.tag.Valid() {
			t.Errorf("%s should be valid", tt.name)
		}
	}
}

func TestTag_Invalid(t *testing.T) {
	for _, tag := range []Tag{-1, 5, 42} {
		if tag.Valid() {
			t.Errorf("tag %d should be invalid", int(tag))
		}
	}
	if got := Tag(7).String(); got != "tag(7)" {
		t.Errorf("String() = %q, want tag(7)", got)
	}
}

func TestValue_Constructors(t *testing.T) {
	if !Null().IsNull() {
		t.Error("Null() should be null")
	}
	if v := Integer(7); v.Tag != TagInteger || v.Payload != int64(7) {
		t.Errorf("Integer(7) = %+v", v)
	}
	if v := Float(2.5); v.Tag != TagFloat || v.Payload != 2.5 {
		t.Errorf("Float(2.5) = %+v", v)
	}
	if v := Text("x"); v.Tag != TagText || v.Payload != "x" {
		t.Errorf("Text(x) = %+v", v)
	}
	if v := BlobPayload("NA"); v.Tag != TagBlob || v.Payload != "NA" {
		t.Errorf("BlobPayload(NA) = %+v", v)
	}
}
