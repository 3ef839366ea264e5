package gatt

import (
	"encoding/hex"
	"strings"
)

// bluetoothBaseSuffix is bytes[4:16] of every UUID derived from a 16-bit
// or 32-bit Bluetooth SIG assigned number: 0000xxxx-0000-1000-8000-00805F9B34FB.
var bluetoothBaseSuffix = [12]byte{0x00, 0x00, 0x10, 0x00, 0x80, 0x00, 0x00, 0x80, 0x5F, 0x9B, 0x34, 0xFB}

// UUID is a BLE UUID, stored in its canonical 16-byte big-endian form
// regardless of whether it was constructed from a 16-bit short form or
// a full 128-bit value.
type UUID struct {
	b []byte
}

// UUID16 builds the canonical 16-byte UUID for a 16-bit Bluetooth
// assigned number, e.g. UUID16(0x1800) for the Generic Access service.
func UUID16(n uint16) UUID {
	b := make([]byte, 16)
	b[2] = byte(n >> 8)
	b[3] = byte(n)
	copy(b[4:], bluetoothBaseSuffix[:])
	return UUID{b}
}

// MustParse is like Parse but panics on error. It is intended for use
// with string literals known to be valid at compile time.
func MustParse(s string) UUID {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// Parse parses a UUID from either a bare hex short form ("1800"), a
// bare 32-character hex string, or the canonical dashed form
// ("00001800-0000-1000-8000-00805f9b34fb").
func Parse(s string) (UUID, error) {
	s = strings.ReplaceAll(s, "-", "")
	switch len(s) {
	case 4:
		b, err := hex.DecodeString(s)
		if err != nil {
			return UUID{}, errMalformed("uuid: invalid short-form hex")
		}
		return UUID16(uint16(b[0])<<8 | uint16(b[1])), nil
	case 32:
		b, err := hex.DecodeString(s)
		if err != nil {
			return UUID{}, errMalformed("uuid: invalid hex")
		}
		return UUID{b}, nil
	default:
		return UUID{}, errMalformed("uuid: wrong length")
	}
}

// uuidFromWire builds a UUID from bytes as they appear on the wire,
// which are little-endian; canonical storage is big-endian, so the
// bytes are reversed on the way in.
func uuidFromWire(b []byte) (UUID, error) {
	switch len(b) {
	case 2:
		return UUID16(uint16(b[1])<<8 | uint16(b[0])), nil
	case 16:
		return UUID{reverse(b)}, nil
	default:
		return UUID{}, errMalformed("uuid: wire length must be 2 or 16")
	}
}

// wire returns the little-endian wire encoding of u, using the short
// form when available.
func (u UUID) wire() []byte {
	if short, ok := u.ShortForm(); ok {
		return reverse(short)
	}
	return reverse(u.b)
}

// Len reports the canonical encoded length: 2 if u has a 16-bit short
// form, 16 otherwise.
func (u UUID) Len() int {
	if _, ok := u.ShortForm(); ok {
		return 2
	}
	return 16
}

// ShortForm reports whether u is derived from a 16-bit Bluetooth
// assigned number and, if so, returns its two canonical bytes.
func (u UUID) ShortForm() ([]byte, bool) {
	if len(u.b) != 16 {
		return nil, false
	}
	if u.b[0] != 0 || u.b[1] != 0 {
		return nil, false
	}
	for i, want := range bluetoothBaseSuffix {
		if u.b[4+i] != want {
			return nil, false
		}
	}
	return u.b[2:4], true
}

// Equal reports whether u and v have the same canonical value.
func (u UUID) Equal(v UUID) bool {
	return uuidEqual(u, v)
}

func uuidEqual(u, v UUID) bool {
	if len(u.b) != len(v.b) {
		return false
	}
	for i := range u.b {
		if u.b[i] != v.b[i] {
			return false
		}
	}
	return true
}

// String renders u in canonical dashed form.
func (u UUID) String() string {
	b := u.b
	if len(b) != 16 {
		return hex.EncodeToString(b)
	}
	return hex.EncodeToString(b[0:4]) + "-" +
		hex.EncodeToString(b[4:6]) + "-" +
		hex.EncodeToString(b[6:8]) + "-" +
		hex.EncodeToString(b[8:10]) + "-" +
		hex.EncodeToString(b[10:16])
}

// reverse returns a new slice holding the bytes of b in reverse order.
func reverse(b []byte) []byte {
	r := make([]byte, len(b))
	for i, v := range b {
		r[len(b)-1-i] = v
	}
	return r
}
