package gatt

import (
	"bytes"
	"testing"
)

func TestUUID16(t *testing.T) {
	got := UUID16(0x1800)
	short, ok := got.ShortForm()
	if !ok {
		t.Fatalf("UUID16(0x1800) has no short form")
	}
	if want := []byte{0x18, 0x00}; !bytes.Equal(short, want) {
		t.Errorf("ShortForm: got %x, want %x", short, want)
	}
}

func TestUUIDEqualAcrossForms(t *testing.T) {
	short := UUID16(0x1800)
	full := MustParse("00001800-0000-1000-8000-00805f9b34fb")
	if !short.Equal(full) {
		t.Errorf("UUID16(0x1800) != parsed full form: %s vs %s", short, full)
	}
}

func TestUUIDNoShortFormForArbitrary128(t *testing.T) {
	u := MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")
	if _, ok := u.ShortForm(); ok {
		t.Errorf("expected no short form for custom 128-bit UUID")
	}
	if u.Len() != 16 {
		t.Errorf("Len: got %d, want 16", u.Len())
	}
}

func TestReverse(t *testing.T) {
	cases := []struct {
		fwd  []byte
		back []byte
	}{
		{fwd: []byte{0, 1}, back: []byte{1, 0}},
		{fwd: []byte{0, 1, 2}, back: []byte{2, 1, 0}},
		{fwd: []byte{0, 1, 2, 3}, back: []byte{3, 2, 1, 0}},
		{
			fwd:  []byte{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15},
			back: []byte{15, 14, 13, 12, 11, 10, 9, 8, 7, 6, 5, 4, 3, 2, 1, 0},
		},
	}

	for _, tt := range cases {
		got := reverse(tt.fwd)
		if !bytes.Equal(got, tt.back) {
			t.Errorf("reverse(%x): got %x want %x", tt.fwd, got, tt.back)
		}
	}
}

func TestUUIDWireRoundTrip(t *testing.T) {
	u := UUID16(0x180F) // Battery Service
	w := u.wire()
	if len(w) != 2 {
		t.Fatalf("wire length: got %d, want 2", len(w))
	}
	back, err := uuidFromWire(w)
	if err != nil {
		t.Fatalf("uuidFromWire: %v", err)
	}
	if !back.Equal(u) {
		t.Errorf("round trip: got %s, want %s", back, u)
	}
}

func BenchmarkReverseBytes16(b *testing.B) {
	buf := make([]byte, 2)
	for i := 0; i < b.N; i++ {
		reverse(buf)
	}
}

func BenchmarkReverseBytes128(b *testing.B) {
	buf := make([]byte, 16)
	for i := 0; i < b.N; i++ {
		reverse(buf)
	}
}
