package gatt

// HCI packet kind bytes (§4.1). These are the values sent as the very
// first byte of every frame exchanged with the controller.
const (
	PacketTypeCommand = 0x01
	PacketTypeACLData = 0x02
	PacketTypeEvent   = 0x04
)

// ACL packet-boundary flags, packed into bits 12-13 of the handle_flags
// field of an ACL fragment header.
const (
	fragFirstHost = 0x00
	fragNext      = 0x01
	fragFirst     = 0x02
)

// HCIPacket is an immutable, typed HCI frame: a kind byte plus its
// payload. Construction always validates the payload shape for the
// given kind.
type HCIPacket struct {
	kind    byte
	payload []byte
}

// Kind returns the packet's kind byte (one of the PacketType* constants).
func (p HCIPacket) Kind() byte { return p.kind }

// Payload returns the packet's payload, excluding the kind byte.
func (p HCIPacket) Payload() []byte { return p.payload }

// NewCommandPacket builds a COMMAND packet payload: opcode(le16) ||
// len(u8) || params. It fails if params is longer than 255 bytes.
func NewCommandPacket(opcode uint16, params []byte) (HCIPacket, error) {
	if len(params) > 0xFF {
		return HCIPacket{}, errMalformed("packet: command params too long")
	}
	payload := make([]byte, 3+len(params))
	payload[0] = byte(opcode)
	payload[1] = byte(opcode >> 8)
	payload[2] = byte(len(params))
	copy(payload[3:], params)
	return HCIPacket{kind: PacketTypeCommand, payload: payload}, nil
}

// NewACLPacket builds an ACL_DATA packet payload: handle_flags(le16) ||
// data_len(le16) || data. handle must fit in 12 bits and flags in 2 bits.
func NewACLPacket(handle uint16, flags byte, data []byte) (HCIPacket, error) {
	if handle > 0x0FFF {
		return HCIPacket{}, errMalformed("packet: connection handle out of range")
	}
	if flags > 0x03 {
		return HCIPacket{}, errMalformed("packet: boundary flag out of range")
	}
	if len(data) > 0xFFFF {
		return HCIPacket{}, errMalformed("packet: acl fragment too long")
	}
	hf := handle | uint16(flags)<<12
	payload := make([]byte, 4+len(data))
	payload[0] = byte(hf)
	payload[1] = byte(hf >> 8)
	payload[2] = byte(len(data))
	payload[3] = byte(len(data) >> 8)
	copy(payload[4:], data)
	return HCIPacket{kind: PacketTypeACLData, payload: payload}, nil
}

// DecodePacket decodes a raw frame (kind byte followed by payload) as
// read off the transport.
func DecodePacket(raw []byte) (HCIPacket, error) {
	if len(raw) < 1 {
		return HCIPacket{}, errMalformed("packet: empty frame")
	}
	kind, payload := raw[0], raw[1:]
	switch kind {
	case PacketTypeCommand:
		if len(payload) < 3 {
			return HCIPacket{}, errMalformed("packet: command frame too short")
		}
		plen := int(payload[2])
		if len(payload) != 3+plen {
			return HCIPacket{}, errMalformed("packet: command length mismatch")
		}
	case PacketTypeEvent:
		if len(payload) < 2 {
			return HCIPacket{}, errMalformed("packet: event frame too short")
		}
		plen := int(payload[1])
		if len(payload) != 2+plen {
			return HCIPacket{}, errMalformed("packet: event length mismatch")
		}
	case PacketTypeACLData:
		if len(payload) < 4 {
			return HCIPacket{}, errMalformed("packet: acl frame too short")
		}
		dlen := int(payload[2]) | int(payload[3])<<8
		if len(payload) != 4+dlen {
			return HCIPacket{}, errMalformed("packet: acl length mismatch")
		}
	default:
		return HCIPacket{}, errMalformed("packet: unknown kind byte")
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	return HCIPacket{kind: kind, payload: cp}, nil
}

// Encode serialises p back to its wire form (kind byte || payload).
func (p HCIPacket) Encode() []byte {
	out := make([]byte, 1+len(p.payload))
	out[0] = p.kind
	copy(out[1:], p.payload)
	return out
}

// CommandOpcode returns the opcode of a COMMAND packet's payload.
func (p HCIPacket) CommandOpcode() uint16 {
	return uint16(p.payload[0]) | uint16(p.payload[1])<<8
}

// CommandParams returns the parameter bytes of a COMMAND packet's payload.
func (p HCIPacket) CommandParams() []byte { return p.payload[3:] }

// EventCode returns the event code of an EVENT packet's payload.
// Callers must check Kind() == PacketTypeEvent first.
func (p HCIPacket) EventCode() byte { return p.payload[0] }

// EventParams returns the parameter bytes of an EVENT packet's payload.
func (p HCIPacket) EventParams() []byte { return p.payload[2:] }

// ACLHandle returns the 12-bit connection handle of an ACL_DATA packet.
func (p HCIPacket) ACLHandle() uint16 {
	hf := uint16(p.payload[0]) | uint16(p.payload[1])<<8
	return hf & 0x0FFF
}

// ACLBoundaryFlag returns the 2-bit packet-boundary flag of an ACL_DATA packet.
func (p HCIPacket) ACLBoundaryFlag() byte {
	hf := uint16(p.payload[0]) | uint16(p.payload[1])<<8
	return byte(hf>>12) & 0x03
}

// ACLData returns the fragment data of an ACL_DATA packet, i.e. the
// payload following the 4-byte header.
func (p HCIPacket) ACLData() []byte { return p.payload[4:] }
