package gatt

import "testing"

func buildSampleDB(t *testing.T) *AttributeDB {
	t.Helper()
	battery := NewService(UUID16(0x180F)).
		AddCharacteristic(NewCharacteristic(UUID16(0x2A19)).Readable([]byte{100}))
	custom := NewService(MustParse("6e400001-b5a3-f393-e0a9-e50e24dcca9e")).
		AddCharacteristic(
			NewCharacteristic(MustParse("6e400002-b5a3-f393-e0a9-e50e24dcca9e")).
				Writable(func(b []byte) byte { return attEcodeSuccess }),
		).
		AddCharacteristic(
			NewCharacteristic(MustParse("6e400003-b5a3-f393-e0a9-e50e24dcca9e")).
				Readable([]byte("hi")).
				Notifiable(),
		)

	db, err := NewAttributeDB("test-device", []*ServiceBuilder{battery, custom})
	if err != nil {
		t.Fatalf("NewAttributeDB: %v", err)
	}
	return db
}

func TestAttributeDBHandlesAreDenseAndMonotonic(t *testing.T) {
	db := buildSampleDB(t)
	for h := uint16(1); h < uint16(len(db.table)); h++ {
		a, ok := db.At(h)
		if !ok {
			t.Fatalf("handle %d missing", h)
		}
		if a.Handle() != h {
			t.Errorf("table[%d].Handle() = %d", h, a.Handle())
		}
	}
}

func TestAttributeDBHandleZeroReserved(t *testing.T) {
	db := buildSampleDB(t)
	if _, ok := db.At(0); ok {
		t.Errorf("handle 0 must be reserved")
	}
}

func TestAttributeDBServiceRangesContiguousAndDisjoint(t *testing.T) {
	db := buildSampleDB(t)
	for i, s := range db.services {
		if s.endHandle < s.defnHandle {
			t.Errorf("service %d: end %d before start %d", i, s.endHandle, s.defnHandle)
		}
		if i > 0 {
			prev := db.services[i-1]
			if s.defnHandle != prev.endHandle+1 {
				t.Errorf("service %d not contiguous with previous: prev end %d, this start %d", i, prev.endHandle, s.defnHandle)
			}
		}
	}
}

func TestCharacteristicDeclarationReferencesValueHandle(t *testing.T) {
	db := buildSampleDB(t)
	// Walk every declaration and confirm decl.value[1:3] == valueHandle(le16)
	// where the value attribute is the very next handle.
	for h := uint16(1); h < uint16(len(db.table)); h++ {
		a, _ := db.At(h)
		if !a.Type().Equal(gattAttrCharacteristicUUID) {
			continue
		}
		valueHandle := uint16(a.value[1]) | uint16(a.value[2])<<8
		if valueHandle != h+1 {
			t.Errorf("declaration at %d points to value handle %d, want %d", h, valueHandle, h+1)
		}
	}
}

func TestAttributeDBSubrange(t *testing.T) {
	db := buildSampleDB(t)
	all := db.Subrange(1, 65535)
	if len(all) != len(db.table)-1 {
		t.Fatalf("Subrange(1,65535): got %d attributes, want %d", len(all), len(db.table)-1)
	}
	if got := db.Subrange(0, 0); got != nil {
		t.Errorf("Subrange(0,0): got %v, want nil", got)
	}
	if got := db.Subrange(5, 3); got != nil {
		t.Errorf("Subrange(5,3): got %v, want nil", got)
	}
}

func TestDefaultServicesPrepended(t *testing.T) {
	db := buildSampleDB(t)
	if len(db.services) < 4 {
		t.Fatalf("expected at least 4 services (GAP, GATT, battery, custom), got %d", len(db.services))
	}
	if !db.services[0].uuid.Equal(AttrGAPUUID) {
		t.Errorf("first service should be GAP, got %s", db.services[0].uuid)
	}
	if !db.services[1].uuid.Equal(AttrGATTUUID) {
		t.Errorf("second service should be GATT, got %s", db.services[1].uuid)
	}
}

func TestWriteNotPermittedOnReadOnlyAttribute(t *testing.T) {
	db := buildSampleDB(t)
	// The battery level value attribute is read-only.
	for h := uint16(1); h < uint16(len(db.table)); h++ {
		a, _ := db.At(h)
		if a.Type().Equal(UUID16(0x2A19)) {
			if status := a.SetValue([]byte{1}); status != attEcodeWriteNotPerm {
				t.Errorf("SetValue on read-only attribute: got status %#x, want %#x", status, attEcodeWriteNotPerm)
			}
			return
		}
	}
	t.Fatal("battery level attribute not found")
}
