package linux

import "testing"

// TestDefaultFilterAdmitsExpectedEvents checks the event mask covers
// exactly the event codes the stack decodes, without relying on a real
// socket (raw HCI sockets need elevated privileges to open).
func TestDefaultFilterAdmitsExpectedEvents(t *testing.T) {
	f := defaultFilter()

	for _, ev := range []uint{evCommandComplete, evCommandStatus, evDisconnectionComplete, evLEMeta} {
		word, bit := ev>>5, ev&31
		if f.eventMask[word]&(1<<bit) == 0 {
			t.Errorf("event 0x%02X not admitted by filter", ev)
		}
	}

	// An event code outside the admitted set, e.g. Inquiry Complete
	// (0x01), must not be admitted.
	const evInquiryComplete = 0x01
	word, bit := uint(evInquiryComplete)>>5, uint(evInquiryComplete)&31
	if f.eventMask[word]&(1<<bit) != 0 {
		t.Error("filter unexpectedly admits an event it shouldn't")
	}
}

func TestDefaultFilterAdmitsAllThreePacketKinds(t *testing.T) {
	f := defaultFilter()
	for _, kind := range []uint{1, 2, 4} { // command, acl, event
		if f.typeMask&(1<<kind) == 0 {
			t.Errorf("packet kind %d not admitted by type mask", kind)
		}
	}
}
