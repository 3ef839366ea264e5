package gatt

import "testing"

type fakeTransport struct {
	queued []HCIPacket
}

func (f *fakeTransport) QueuePacket(p HCIPacket) {
	f.queued = append(f.queued, p)
}

// completeLatest simulates a Command Complete event for the most
// recently queued command matching opcode.
func completeLatest(t *testing.T, hc *HostController, opcode Opcode, status byte, extra []byte) {
	t.Helper()
	ret := append([]byte{status}, extra...)
	hc.OnCommandComplete(1, uint16(opcode), ret)
}

// Scenario 1: peripheral startup succeeds end to end.
func TestStartupPeripheralSuccess(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)

	var completed bool
	var failed error
	params := DefaultStartupParams(RolePeripheral)
	seq := NewStartupSequence(hc, params, func() { completed = true }, func(err error) { failed = err })
	seq.Start()

	wantOrder := []Opcode{
		OpReset,
		OpSetEventMask,
		OpReadLocalVersion,
		OpLESetEventMask,
		OpWriteLEHostSupported,
		OpLESetAdvertisingParameters,
		OpLESetAdvertisingData,
		OpLESetScanResponseData,
		OpLESetAdvertiseEnable,
	}

	for i, op := range wantOrder {
		if len(tr.queued) != i+1 {
			t.Fatalf("after completing step %d: queued %d commands, want %d", i, len(tr.queued), i+1)
		}
		got := Opcode(tr.queued[i].CommandOpcode())
		if got != op {
			t.Fatalf("step %d: got opcode %s, want %s", i, got, op)
		}
		if op == OpReadLocalVersion {
			completeLatest(t, hc, op, 0, []byte{0x06, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})
		} else {
			completeLatest(t, hc, op, 0, nil)
		}
	}

	if !completed {
		t.Error("expected sequence to complete")
	}
	if failed != nil {
		t.Errorf("unexpected failure: %v", failed)
	}

	whlhs := tr.queued[4].CommandParams()
	if len(whlhs) != 2 || whlhs[0] != 0x01 || whlhs[1] != 0x00 {
		t.Errorf("WriteLEHostSupported params: got % X, want [01 00]", whlhs)
	}
	adv := tr.queued[len(tr.queued)-1].CommandParams()
	if len(adv) != 1 || adv[0] != 0x01 {
		t.Errorf("LESetAdvertiseEnable params: got % X, want [01]", adv)
	}
}

// Scenario 2: startup aborts on a pre-4.0 controller.
func TestStartupAbortsOnLegacyController(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)

	var completed bool
	var failed error
	params := DefaultStartupParams(RolePeripheral)
	seq := NewStartupSequence(hc, params, func() { completed = true }, func(err error) { failed = err })
	seq.Start()

	completeLatest(t, hc, OpReset, 0, nil)
	completeLatest(t, hc, OpSetEventMask, 0, nil)
	// version = 5, below the minimum of 6.
	completeLatest(t, hc, OpReadLocalVersion, 0, []byte{0x05, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00})

	if completed {
		t.Error("sequence must not complete on legacy controller")
	}
	if failed == nil {
		t.Fatal("expected an abort error")
	}
	if len(tr.queued) != 3 {
		t.Fatalf("expected exactly 3 commands queued before abort, got %d: %v", len(tr.queued), tr.queued)
	}
}

func TestStartupAbortsOnNonZeroStatus(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)

	var failed error
	seq := NewStartupSequence(hc, DefaultStartupParams(RoleCentral), nil, func(err error) { failed = err })
	seq.Start()

	completeLatest(t, hc, OpReset, 0x0C, nil) // COMMAND_DISALLOWED
	if failed == nil {
		t.Fatal("expected abort on non-zero status")
	}
	if len(tr.queued) != 1 {
		t.Fatalf("expected no further commands after abort, got %d", len(tr.queued))
	}
}

func TestHostControllerRejectsDuplicateOpcode(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)

	if err := hc.Queue(&HCICommand{Opcode: OpReset}); err != nil {
		t.Fatalf("first queue: %v", err)
	}
	if err := hc.Queue(&HCICommand{Opcode: OpReset}); err == nil {
		t.Fatal("expected rejection of duplicate in-flight opcode")
	}
}

func TestHostControllerIgnoresOrphanCommandComplete(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)
	// Must not panic.
	hc.OnCommandComplete(1, uint16(OpReset), []byte{0x00})
}

func TestCentralStartupUsesScanCommands(t *testing.T) {
	tr := &fakeTransport{}
	hc := NewHostController(tr.QueuePacket)

	seq := NewStartupSequence(hc, DefaultStartupParams(RoleCentral), nil, nil)
	seq.Start()

	completeLatest(t, hc, OpReset, 0, nil)
	completeLatest(t, hc, OpSetEventMask, 0, nil)
	completeLatest(t, hc, OpReadLocalVersion, 0, []byte{0x06, 0, 0, 0, 0, 0, 0, 0})
	completeLatest(t, hc, OpLESetEventMask, 0, nil)
	completeLatest(t, hc, OpWriteLEHostSupported, 0, nil)

	if len(tr.queued) != 6 {
		t.Fatalf("got %d commands, want 6 after host-supported step", len(tr.queued))
	}
	if Opcode(tr.queued[5].CommandOpcode()) != OpLESetScanParameters {
		t.Errorf("expected LE Set Scan Parameters next, got %s", Opcode(tr.queued[5].CommandOpcode()))
	}
	completeLatest(t, hc, OpLESetScanParameters, 0, nil)
	if Opcode(tr.queued[6].CommandOpcode()) != OpLESetScanEnable {
		t.Errorf("expected LE Set Scan Enable next, got %s", Opcode(tr.queued[6].CommandOpcode()))
	}
}
