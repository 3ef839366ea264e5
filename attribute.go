package gatt

// Characteristic property bits (Bluetooth Core Spec v4.0, Vol 3, Part G, §3.3.1.1).
const (
	PropBroadcast  = 0x01
	PropRead       = 0x02
	PropWriteNoAck = 0x04
	PropWrite      = 0x08
	PropNotify     = 0x10
	PropIndicate   = 0x20
	PropAuthWrite  = 0x40
	PropExtended   = 0x80
)

// WriteFunc is bound to a characteristic or descriptor at construction
// time and is invoked whenever a peer successfully writes that
// attribute's value. It returns an ATT status byte; attEcodeSuccess
// commits, anything else is surfaced to the peer as an Error Response
// and the attribute's stored value is left unchanged.
type WriteFunc func(value []byte) byte

// Attribute is one row of the handle table: a (handle, type, value)
// triple, the unit of addressable storage (§3). Handle assignment is
// one-shot, performed by AttributeDB construction; everything else
// about an Attribute may be read at any time, and its value may be
// mutated through SetValue if it was built writable.
type Attribute struct {
	handle   uint16
	typ      UUID
	value    []byte
	writable bool
	writer   WriteFunc
}

// Handle returns the attribute's 1-based handle.
func (a *Attribute) Handle() uint16 { return a.handle }

// Type returns the attribute's type UUID.
func (a *Attribute) Type() UUID { return a.typ }

// Value returns the attribute's current value.
func (a *Attribute) Value() []byte { return a.value }

// SetValue attempts to write b as the attribute's new value. A
// read-only attribute always fails with attEcodeWriteNotPerm (§3,
// "Default setValue on a read-only attribute fails with
// WRITE_NOT_PERMITTED"). A writable attribute with a bound WriteFunc
// delegates the decision to it; one without a WriteFunc accepts any
// write unconditionally.
func (a *Attribute) SetValue(b []byte) byte {
	if !a.writable {
		return attEcodeWriteNotPerm
	}
	if a.writer != nil {
		if status := a.writer(b); status != attEcodeSuccess {
			return status
		}
	}
	cp := make([]byte, len(b))
	copy(cp, b)
	a.value = cp
	return attEcodeSuccess
}

// descriptorSpec is a descriptor as declared on a CharacteristicBuilder,
// prior to handle assignment.
type descriptorSpec struct {
	uuid     UUID
	value    []byte
	writable bool
	writer   WriteFunc
}

// CharacteristicBuilder accumulates a characteristic's shape. Per the
// fluent-builder design note (§9), it mutates itself and is converted
// into immutable Attributes only during AttributeDB construction; it
// has no existence as a runtime type once the server is built.
type CharacteristicBuilder struct {
	uuid     UUID
	props    byte
	value    []byte
	writable bool
	writer   WriteFunc
	descs    []descriptorSpec
}

// NewCharacteristic starts a characteristic builder for the given UUID.
func NewCharacteristic(u UUID) *CharacteristicBuilder {
	return &CharacteristicBuilder{uuid: u}
}

// Readable marks the characteristic readable with a fixed value.
func (c *CharacteristicBuilder) Readable(value []byte) *CharacteristicBuilder {
	c.props |= PropRead
	c.value = value
	return c
}

// Writable marks the characteristic writable-with-response, routing
// accepted writes through fn.
func (c *CharacteristicBuilder) Writable(fn WriteFunc) *CharacteristicBuilder {
	c.props |= PropWrite
	c.writable = true
	c.writer = fn
	return c
}

// WritableNoAck marks the characteristic writable-without-response.
func (c *CharacteristicBuilder) WritableNoAck(fn WriteFunc) *CharacteristicBuilder {
	c.props |= PropWriteNoAck
	c.writable = true
	c.writer = fn
	return c
}

// Notifiable marks the characteristic as supporting notifications,
// which causes a Client Characteristic Configuration descriptor to be
// added automatically during AttributeDB construction.
func (c *CharacteristicBuilder) Notifiable() *CharacteristicBuilder {
	c.props |= PropNotify
	return c
}

// Indicatable marks the characteristic as supporting indications.
func (c *CharacteristicBuilder) Indicatable() *CharacteristicBuilder {
	c.props |= PropIndicate
	return c
}

// AddDescriptor adds a fixed-value, read-only descriptor.
func (c *CharacteristicBuilder) AddDescriptor(u UUID, value []byte) *CharacteristicBuilder {
	c.descs = append(c.descs, descriptorSpec{uuid: u, value: value})
	return c
}

// AddWritableDescriptor adds a writable descriptor whose accepted
// writes are routed through fn.
func (c *CharacteristicBuilder) AddWritableDescriptor(u UUID, value []byte, fn WriteFunc) *CharacteristicBuilder {
	c.descs = append(c.descs, descriptorSpec{uuid: u, value: value, writable: true, writer: fn})
	return c
}

// ServiceBuilder accumulates a service's shape: its UUID and ordered
// characteristics. See CharacteristicBuilder for why this is a plain
// mutating builder rather than a fluent type reused at runtime.
type ServiceBuilder struct {
	uuid      UUID
	secondary bool
	chars     []*CharacteristicBuilder
	includes  []UUID
}

// NewService starts a primary-service builder for the given UUID.
func NewService(u UUID) *ServiceBuilder {
	return &ServiceBuilder{uuid: u}
}

// AsSecondary marks the service as a secondary service (type 0x2801
// instead of 0x2800).
func (s *ServiceBuilder) AsSecondary() *ServiceBuilder {
	s.secondary = true
	return s
}

// AddCharacteristic appends a characteristic to the service in
// declaration order.
func (s *ServiceBuilder) AddCharacteristic(c *CharacteristicBuilder) *ServiceBuilder {
	s.chars = append(s.chars, c)
	return s
}

// AddIncludedService declares that this service includes the service
// identified by u, which must appear elsewhere in the same
// AttributeDB. Include definition values are resolved once every
// service's handle range is known (§4.5).
func (s *ServiceBuilder) AddIncludedService(u UUID) *ServiceBuilder {
	s.includes = append(s.includes, u)
	return s
}

// serviceRecord is the built, handle-resolved view of a service, used
// by the ATT server to answer group and type queries (§4.6).
type serviceRecord struct {
	defnHandle uint16
	endHandle  uint16
	uuid       UUID
	secondary  bool
}

func (s serviceRecord) typeUUID() UUID {
	if s.secondary {
		return gattAttrSecondaryServiceUUID
	}
	return gattAttrPrimaryServiceUUID
}

// AttributeDB is the finalised, immutable handle table built from an
// ordered list of services (§4.5). Only attribute values mutate after
// construction (§5, "Shared resources").
type AttributeDB struct {
	table    []*Attribute // table[0] is always nil; table[h] is the attribute at handle h
	services []serviceRecord
}

// NewAttributeDB builds an AttributeDB from svcs, prepending the
// default GAP and GATT services (§4.5, "Default services") ahead of
// the caller-supplied ones. Handles are assigned depth-first starting
// at 0x0001, then characteristic-declaration and include-definition
// values are computed in a second pass once every handle is known
// (§9, "two-phase build").
func NewAttributeDB(deviceName string, svcs []*ServiceBuilder) (*AttributeDB, error) {
	all := append(defaultServices(deviceName), svcs...)

	db := &AttributeDB{table: []*Attribute{nil}}
	for _, sb := range all {
		rec, err := db.layoutService(sb)
		if err != nil {
			return nil, err
		}
		db.services = append(db.services, rec)
	}
	for i, sb := range all {
		db.resolveService(sb, db.services[i])
	}
	return db, nil
}

func defaultServices(name string) []*ServiceBuilder {
	gap := NewService(AttrGAPUUID).
		AddCharacteristic(NewCharacteristic(gattAttrDeviceNameUUID).Readable([]byte(name))).
		AddCharacteristic(NewCharacteristic(gattAttrAppearanceUUID).Readable(gapCharAppearanceGenericComputer))
	gatt := NewService(AttrGATTUUID)
	return []*ServiceBuilder{gap, gatt}
}

// layoutService appends every attribute the service will own to
// db.table, assigning handles depth-first, and returns the resulting
// service record. Attribute values that depend on handles assigned
// later in the walk are left zero and filled in by resolveService.
func (db *AttributeDB) layoutService(sb *ServiceBuilder) (serviceRecord, error) {
	defnHandle := db.nextHandle()
	db.table = append(db.table, &Attribute{handle: defnHandle, typ: sb.typeUUID()})

	for _, u := range sb.includes {
		h := db.nextHandle()
		db.table = append(db.table, &Attribute{handle: h, typ: gattAttrIncludeUUID})
		_ = u // resolved in resolveService once included service handles are known
	}

	for _, cb := range sb.chars {
		declHandle := db.nextHandle()
		db.table = append(db.table, &Attribute{handle: declHandle, typ: gattAttrCharacteristicUUID})

		valueHandle := db.nextHandle()
		db.table = append(db.table, &Attribute{
			handle:   valueHandle,
			typ:      cb.uuid,
			value:    cb.value,
			writable: cb.writable,
			writer:   cb.writer,
		})

		if cb.props&(PropNotify|PropIndicate) != 0 {
			cccHandle := db.nextHandle()
			db.table = append(db.table, &Attribute{
				handle:   cccHandle,
				typ:      gattAttrClientCharacteristicConfigUUID,
				value:    []byte{0x00, 0x00},
				writable: true,
			})
		}

		for _, ds := range cb.descs {
			dh := db.nextHandle()
			db.table = append(db.table, &Attribute{
				handle:   dh,
				typ:      ds.uuid,
				value:    ds.value,
				writable: ds.writable,
				writer:   ds.writer,
			})
		}
	}

	return serviceRecord{
		defnHandle: defnHandle,
		endHandle:  uint16(len(db.table) - 1),
		uuid:       sb.uuid,
		secondary:  sb.secondary,
	}, nil
}

// resolveService fills in the values that reference handles, now that
// every handle in the database is known.
func (db *AttributeDB) resolveService(sb *ServiceBuilder, rec serviceRecord) {
	defn, _ := db.At(rec.defnHandle)
	defn.value = sb.uuid.wire()

	h := rec.defnHandle + 1
	for _, includedUUID := range sb.includes {
		incl, _ := db.At(h)
		for _, other := range db.services {
			if !other.uuid.Equal(includedUUID) {
				continue
			}
			v := []byte{byte(other.defnHandle), byte(other.defnHandle >> 8), byte(other.endHandle), byte(other.endHandle >> 8)}
			if short, ok := other.uuid.ShortForm(); ok {
				v = append(v, reverse(short)...)
			}
			incl.value = v
			break
		}
		h++
	}

	for _, cb := range sb.chars {
		declHandle := h
		valueHandle := h + 1
		decl, _ := db.At(declHandle)
		decl.value = append([]byte{cb.props, byte(valueHandle), byte(valueHandle >> 8)}, cb.uuid.wire()...)

		h = valueHandle + 1
		if cb.props&(PropNotify|PropIndicate) != 0 {
			h++
		}
		h += uint16(len(cb.descs))
	}
}

func (sb *ServiceBuilder) typeUUID() UUID {
	if sb.secondary {
		return gattAttrSecondaryServiceUUID
	}
	return gattAttrPrimaryServiceUUID
}

func (db *AttributeDB) nextHandle() uint16 {
	return uint16(len(db.table))
}

// At returns the attribute at handle h, if any.
func (db *AttributeDB) At(h uint16) (*Attribute, bool) {
	if h == 0 || int(h) >= len(db.table) {
		return nil, false
	}
	return db.table[h], true
}

// Subrange returns, in ascending handle order, every attribute whose
// handle lies in [start, end]. It never panics on out-of-range bounds.
func (db *AttributeDB) Subrange(start, end uint16) []*Attribute {
	if start == 0 {
		start = 1
	}
	if int(start) >= len(db.table) || end < start {
		return nil
	}
	if int(end) >= len(db.table)-1 {
		end = uint16(len(db.table) - 1)
	}
	return db.table[start : end+1]
}

// servicesOverlapping returns, in declaration order, every service
// record whose handle range intersects [start, end].
func (db *AttributeDB) servicesOverlapping(start, end uint16) []serviceRecord {
	var out []serviceRecord
	for _, s := range db.services {
		if s.endHandle >= start && s.defnHandle <= end {
			out = append(out, s)
		}
	}
	return out
}
