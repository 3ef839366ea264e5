package gatt

import (
	"bytes"
	"testing"
)

func TestCommandPacketRoundTrip(t *testing.T) {
	p, err := NewCommandPacket(0x0C03, []byte{0xAA, 0xBB})
	if err != nil {
		t.Fatalf("NewCommandPacket: %v", err)
	}
	raw := p.Encode()
	want := []byte{PacketTypeCommand, 0x03, 0x0C, 0x02, 0xAA, 0xBB}
	if !bytes.Equal(raw, want) {
		t.Fatalf("encode: got % X, want % X", raw, want)
	}

	got, err := DecodePacket(raw)
	if err != nil {
		t.Fatalf("DecodePacket: %v", err)
	}
	if got.Kind() != PacketTypeCommand {
		t.Errorf("kind: got %#x", got.Kind())
	}
}

func TestDecodePacketRejectsLengthMismatch(t *testing.T) {
	raw := []byte{PacketTypeEvent, 0x0E, 0x05, 0x01, 0x02} // declares 5, has 2
	if _, err := DecodePacket(raw); err == nil || !isMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestDecodePacketRejectsEmptyFrame(t *testing.T) {
	if _, err := DecodePacket(nil); err == nil || !isMalformed(err) {
		t.Fatalf("expected malformed error, got %v", err)
	}
}

func TestACLPacketFields(t *testing.T) {
	p, err := NewACLPacket(0x0040, fragFirst, []byte{0x06, 0x00, 0x04, 0x00, 0xAA, 0xBB})
	if err != nil {
		t.Fatalf("NewACLPacket: %v", err)
	}
	if p.ACLHandle() != 0x0040 {
		t.Errorf("handle: got %#x", p.ACLHandle())
	}
	if p.ACLBoundaryFlag() != fragFirst {
		t.Errorf("flag: got %#x", p.ACLBoundaryFlag())
	}
	if !bytes.Equal(p.ACLData(), []byte{0x06, 0x00, 0x04, 0x00, 0xAA, 0xBB}) {
		t.Errorf("data: got % X", p.ACLData())
	}
}

func TestNewCommandPacketRejectsOversizeParams(t *testing.T) {
	if _, err := NewCommandPacket(0x0000, make([]byte, 256)); err == nil {
		t.Fatalf("expected error for oversize params")
	}
}
