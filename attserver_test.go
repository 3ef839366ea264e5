package gatt

import (
	"bytes"
	"testing"
)

func newTestServer(t *testing.T, svcs []*ServiceBuilder) *ATTServer {
	t.Helper()
	db, err := NewAttributeDB("srv", svcs)
	if err != nil {
		t.Fatalf("NewAttributeDB: %v", err)
	}
	return NewATTServer(db, DefaultMTU)
}

// Scenario 4: Read By Group Type of primary services.
func TestReadByGroupTypePrimaryServices(t *testing.T) {
	svcs := []*ServiceBuilder{
		NewService(UUID16(0x180D)), // Heart Rate
		NewService(UUID16(0x180F)), // Battery
		NewService(UUID16(0x1812)), // HID
	}
	s := newTestServer(t, svcs)

	req := []byte{attOpReadByGroupReq, 0x01, 0x00, 0xFF, 0xFF, 0x00, 0x28}
	resp := s.HandleRequest(req)

	if len(resp) == 0 || resp[0] != attOpReadByGroupResp {
		t.Fatalf("expected Read By Group Type response, got % X", resp)
	}
	recLen := resp[1]
	if recLen != 6 {
		t.Fatalf("record length: got %d, want 6 (4-byte range + 2-byte UUID)", recLen)
	}
	records := resp[2:]
	if len(records)%int(recLen) != 0 {
		t.Fatalf("response not a whole number of records: %d bytes / %d", len(records), recLen)
	}
	n := len(records) / int(recLen)
	if n != 5 { // GAP + GATT + 3 user services, all primary
		t.Fatalf("got %d service records, want 5", n)
	}
	var lastFirst uint16
	for i := 0; i < n; i++ {
		rec := records[i*int(recLen) : (i+1)*int(recLen)]
		first := uint16(rec[0]) | uint16(rec[1])<<8
		if i > 0 && first <= lastFirst {
			t.Errorf("records not in ascending handle order: %d after %d", first, lastFirst)
		}
		lastFirst = first
	}
}

// Scenario 5: Write Request to a read-only attribute.
func TestWriteRequestToReadOnlyAttribute(t *testing.T) {
	svc := NewService(UUID16(0x180F)).
		AddCharacteristic(NewCharacteristic(UUID16(0x2A19)).Readable([]byte{99}))
	s := newTestServer(t, []*ServiceBuilder{svc})

	var valueHandle uint16
	for h := uint16(1); h < uint16(len(s.db.table)); h++ {
		a, _ := s.db.At(h)
		if a.Type().Equal(UUID16(0x2A19)) {
			valueHandle = h
		}
	}
	if valueHandle == 0 {
		t.Fatal("battery level value attribute not found")
	}

	req := append([]byte{attOpWriteReq, byte(valueHandle), byte(valueHandle >> 8)}, 0x05)
	resp := s.HandleRequest(req)
	want := attErrorResp(attOpWriteReq, valueHandle, attEcodeWriteNotPerm)
	if !bytes.Equal(resp, want) {
		t.Fatalf("got % X, want % X", resp, want)
	}
}

// Scenario 6: Prepare Write then Execute Write.
func TestPrepareAndExecuteWrite(t *testing.T) {
	var committed []byte
	svc := NewService(MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")).
		AddCharacteristic(
			NewCharacteristic(MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")).
				Writable(func(b []byte) byte {
					committed = append([]byte(nil), b...)
					return attEcodeSuccess
				}),
		)
	s := newTestServer(t, []*ServiceBuilder{svc})

	var handle uint16
	for h := uint16(1); h < uint16(len(s.db.table)); h++ {
		a, _ := s.db.At(h)
		if a.Type().Equal(MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")) {
			handle = h
		}
	}

	req1 := []byte{attOpPrepWriteReq, byte(handle), byte(handle >> 8), 0x00, 0x00, 'A', 'B'}
	resp1 := s.HandleRequest(req1)
	want1 := []byte{attOpPrepWriteResp, byte(handle), byte(handle >> 8), 0x00, 0x00, 'A', 'B'}
	if !bytes.Equal(resp1, want1) {
		t.Fatalf("prepare 1: got % X, want % X", resp1, want1)
	}

	req2 := []byte{attOpPrepWriteReq, byte(handle), byte(handle >> 8), 0x02, 0x00, 'C', 'D'}
	resp2 := s.HandleRequest(req2)
	want2 := []byte{attOpPrepWriteResp, byte(handle), byte(handle >> 8), 0x02, 0x00, 'C', 'D'}
	if !bytes.Equal(resp2, want2) {
		t.Fatalf("prepare 2: got % X, want % X", resp2, want2)
	}

	exec := s.HandleRequest([]byte{attOpExecWriteReq, 0x01})
	if !bytes.Equal(exec, []byte{attOpExecWriteResp}) {
		t.Fatalf("execute: got % X", exec)
	}
	if string(committed) != "ABCD" {
		t.Fatalf("committed value: got %q, want %q", committed, "ABCD")
	}
}

func TestPrepareWriteQueueFull(t *testing.T) {
	svc := NewService(UUID16(0x1900))
	for i := 0; i < MaxQueuedHandles+1; i++ {
		svc.AddCharacteristic(NewCharacteristic(UUID16(uint16(0x2B00 + i))).Writable(func(b []byte) byte { return attEcodeSuccess }))
	}
	s := newTestServer(t, []*ServiceBuilder{svc})

	var valueHandles []uint16
	for h := uint16(1); h < uint16(len(s.db.table)); h++ {
		a, _ := s.db.At(h)
		for i := 0; i < MaxQueuedHandles+1; i++ {
			if a.Type().Equal(UUID16(uint16(0x2B00 + i))) {
				valueHandles = append(valueHandles, h)
			}
		}
	}
	if len(valueHandles) != MaxQueuedHandles+1 {
		t.Fatalf("expected %d writable handles, found %d", MaxQueuedHandles+1, len(valueHandles))
	}

	for i, h := range valueHandles {
		req := []byte{attOpPrepWriteReq, byte(h), byte(h >> 8), 0x00, 0x00, 'x'}
		resp := s.HandleRequest(req)
		if i < MaxQueuedHandles {
			if len(resp) == 0 || resp[0] != attOpPrepWriteResp {
				t.Fatalf("queue entry %d rejected unexpectedly: % X", i, resp)
			}
		} else {
			want := attErrorResp(attOpPrepWriteReq, h, attEcodePrepQueueFull)
			if !bytes.Equal(resp, want) {
				t.Fatalf("queue entry %d: got % X, want %X", i, resp, want)
			}
		}
	}
}

func TestUnsupportedOpcode(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.HandleRequest([]byte{0xFE})
	want := attErrorResp(0xFE, 0x0000, attEcodeReqNotSupp)
	if !bytes.Equal(resp, want) {
		t.Fatalf("got % X, want % X", resp, want)
	}
}

func TestExchangeMTU(t *testing.T) {
	s := newTestServer(t, nil)
	resp := s.HandleRequest([]byte{attOpMtuReq, 0x17, 0x00}) // client requests 23
	want := []byte{attOpMtuResp, 0x17, 0x00}
	if !bytes.Equal(resp, want) {
		t.Fatalf("got % X, want % X", resp, want)
	}
}
