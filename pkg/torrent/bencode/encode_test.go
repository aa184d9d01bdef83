package bencode_test

import (
	"bytes"
	"reflect"
	"testing"

	"github.com/NamanBalaji/tbs/pkg/torrent/bencode"
)

func TestMarshal(t *testing.T) {
	tests := []struct {
		name    string
		input   any
		want    []byte
		wantErr bool
	}{
		{"empty-string", "", []byte("0:"), false},
		{"binary-string", string([]byte{0xff, 0x00, 0x61}), []byte("3:\xff\x00a"), false},
		{"bytes", []byte("hello"), []byte("5:hello"), false},
		{"array", [3]byte{'a', 'b', 'c'}, []byte("3:abc"), false},
		{"int-negative", -7, []byte("i-7e"), false},
		{"uint64", uint64(9876543210), []byte("i9876543210e"), false},
		{"bool", true, []byte("i1e"), false},
		{"list-mixed", []any{"spam", 1, []byte("foo")}, []byte("l4:spami1e3:fooe"), false},
		{"dict-sorted", map[string]any{"z": 1, "a": "x"}, []byte("d1:a1:x1:zi1ee"), false},
		{"nil-pointer", (*int)(nil), []byte("0:"), false},
		{"float", 3.14, nil, true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := bencode.Marshal(tc.input)
			if (err != nil) != tc.wantErr {
				t.Fatalf("Marshal(%#v) error = %v, wantErr %v", tc.input, err, tc.wantErr)
			}
			if !tc.wantErr && !bytes.Equal(out, tc.want) {
				t.Errorf("Marshal(%#v) = %q, want %q", tc.input, out, tc.want)
			}
		})
	}
}

func TestMarshalStructOmitEmpty(t *testing.T) {
	type rec struct {
		Size   int64  `bencode:"size"`
		Hashes []byte `bencode:"hashes,omitempty"`
		Tail   int64  `bencode:"tail,omitempty"`
		Name   string
	}

	out, err := bencode.Marshal(rec{Size: 4, Name: "n"})
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if want := "d4:name1:n4:sizei4ee"; string(out) != want {
		t.Errorf("got %q, want %q", out, want)
	}
}

func TestMarshalDecodedTree(t *testing.T) {
	input := []byte("d4:infod6:lengthi5e4:name1:ae1:xl1:yi0eee")

	root, err := bencode.Decode(input)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}

	out, err := bencode.Marshal(root)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	if !bytes.Equal(out, input) {
		t.Errorf("re-encoded tree = %q, want %q", out, input)
	}
}

func TestRoundTripStruct(t *testing.T) {
	type rec struct {
		Size   int64    `bencode:"size"`
		Hashes []byte   `bencode:"hashes"`
		Parts  []string `bencode:"parts"`
	}

	in := rec{Size: 99, Hashes: []byte{0, 1, 0xff}, Parts: []string{"a", "b"}}

	data, err := bencode.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}

	var out rec
	if err := bencode.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(in, out) {
		t.Errorf("round trip mismatch: %#v != %#v", in, out)
	}
}
