package gatt

import "github.com/pkg/errors"

// MaxAdvertisingDataLength is the maximum size of an LE advertising
// data or scan response payload (Core spec Vol 3, Part C, 11).
const MaxAdvertisingDataLength = 31

// GAP AD record type tags (Core spec Supplement, Part A, 1).
const (
	ADFlags               = 0x01
	ADUUID16Incomplete     = 0x02
	ADUUID16Complete       = 0x03
	ADUUID128Incomplete    = 0x06
	ADUUID128Complete      = 0x07
	ADLocalNameShort       = 0x08
	ADLocalNameComplete    = 0x09
	ADTXPowerLevel         = 0x0A
)

// AD flag bits.
const (
	FlagLEGeneralDiscoverable = 0x02
	FlagLEOnly                = 0x04
)

// AdvertisingData builds a GAP advertising or scan-response payload
// one AD record at a time. Each Add* call is rejected once the
// accumulated length would exceed MaxAdvertisingDataLength; on
// rejection the builder is left exactly as it was before the call.
type AdvertisingData struct {
	buf []byte
}

// NewAdvertisingData returns an empty builder.
func NewAdvertisingData() *AdvertisingData {
	return &AdvertisingData{}
}

func (a *AdvertisingData) addRecord(tag byte, value []byte) error {
	recLen := len(value) + 1
	if len(a.buf)+recLen+1 > MaxAdvertisingDataLength {
		return errors.Errorf("gatt: advertising data overflow adding tag %#x (%d bytes, %d already used)", tag, recLen+1, len(a.buf))
	}
	a.buf = append(a.buf, byte(recLen), tag)
	a.buf = append(a.buf, value...)
	return nil
}

// AddFlags appends the Flags AD record.
func (a *AdvertisingData) AddFlags(flags byte) error {
	return a.addRecord(ADFlags, []byte{flags})
}

// AddLocalName appends the device's local name, as a complete name if
// it fits or a shortened one otherwise.
func (a *AdvertisingData) AddLocalName(name string) error {
	tag := byte(ADLocalNameComplete)
	if len(a.buf)+len(name)+2 > MaxAdvertisingDataLength {
		tag = ADLocalNameShort
		if max := MaxAdvertisingDataLength - len(a.buf) - 2; max >= 0 && max < len(name) {
			name = name[:max]
		}
	}
	return a.addRecord(tag, []byte(name))
}

// AddServiceUUIDs appends a service UUID list record. All uuids must
// share the same width (all 16-bit short form, or all 128-bit); mixed
// widths are rejected as a programming error.
func (a *AdvertisingData) AddServiceUUIDs(complete bool, uuids ...UUID) error {
	if len(uuids) == 0 {
		return nil
	}
	width := uuids[0].Len()
	var buf []byte
	for _, u := range uuids {
		if u.Len() != width {
			return errors.New("gatt: AddServiceUUIDs requires uniform-width UUIDs")
		}
		buf = append(buf, u.wire()...)
	}
	var tag byte
	switch width {
	case 2:
		tag = ADUUID16Incomplete
		if complete {
			tag = ADUUID16Complete
		}
	case 16:
		tag = ADUUID128Incomplete
		if complete {
			tag = ADUUID128Complete
		}
	default:
		return errors.Errorf("gatt: unsupported UUID width %d", width)
	}
	return a.addRecord(tag, buf)
}

// AddTXPower appends the TX Power Level record.
func (a *AdvertisingData) AddTXPower(dBm int8) error {
	return a.addRecord(ADTXPowerLevel, []byte{byte(dBm)})
}

// Bytes returns the accumulated AD records, unpadded.
func (a *AdvertisingData) Bytes() []byte {
	return append([]byte(nil), a.buf...)
}

// Padded returns the accumulated records zero-padded to exactly
// MaxAdvertisingDataLength bytes, the shape HCI's LE Set Advertising
// Data and LE Set Scan Response Data commands require on the wire.
func (a *AdvertisingData) Padded() [MaxAdvertisingDataLength]byte {
	var out [MaxAdvertisingDataLength]byte
	copy(out[:], a.buf)
	return out
}

// ADRecord is one decoded (tag, value) pair.
type ADRecord struct {
	Tag   byte
	Value []byte
}

// ParseAdvertisingData iterates the AD records in an advertising or
// scan response payload. A malformed length byte (zero, or one that
// would overrun the buffer) is a parse error; all records decoded
// before the error are still returned.
func ParseAdvertisingData(b []byte) ([]ADRecord, error) {
	var out []ADRecord
	for len(b) > 0 {
		l := b[0]
		if l == 0 {
			return out, errors.New("gatt: zero-length advertising data record")
		}
		if int(l) >= len(b) {
			return out, errors.New("gatt: truncated advertising data record")
		}
		out = append(out, ADRecord{Tag: b[1], Value: append([]byte(nil), b[2:1+l]...)})
		b = b[1+l:]
	}
	return out, nil
}
