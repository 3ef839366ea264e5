package gatt

import (
	"github.com/sirupsen/logrus"
)

// ATT server tuning constants (§3, §4.6).
const (
	DefaultMTU = 185
	MinMTU     = 23

	MaxQueuedHandles = 4
	MaxWriteLength   = 1024
)

// pendingWrite is one handle's accumulated Prepare Write buffer.
type pendingWrite struct {
	handle uint16
	buf    []byte
}

// ATTServer answers ATT requests against a fixed AttributeDB (§4.6).
// Besides the database it holds the current MTU and the Prepare Write
// queue; ACLConnection feeds it whole PDUs addressed to CID 0x04 and
// sends whatever it returns.
type ATTServer struct {
	db  *AttributeDB
	mtu uint16

	queue []pendingWrite // insertion order, so Execute Write commits deterministically

	log *logrus.Entry
}

// NewATTServer builds a server over db. requestedMTU is the server's
// own advertised MTU, clamped into [MinMTU, 517] (the ATT protocol
// ceiling); it bounds responses from the first request on, and an
// Exchange MTU Request can lower it.
func NewATTServer(db *AttributeDB, requestedMTU uint16) *ATTServer {
	mtu := requestedMTU
	if mtu < MinMTU {
		mtu = MinMTU
	}
	if mtu > 517 {
		mtu = 517
	}
	return &ATTServer{db: db, mtu: mtu, log: componentLog("att")}
}

// attHandlerFunc answers one PDU; req[0] is always the opcode it was
// dispatched under.
type attHandlerFunc func(s *ATTServer, req []byte) []byte

// attDispatch is the flat opcode→handler table (§9, "Opcode dispatch").
var attDispatch = map[byte]attHandlerFunc{
	attOpMtuReq:         (*ATTServer).handleMTU,
	attOpFindInfoReq:    (*ATTServer).handleFindInfo,
	attOpFindByTypeReq:  (*ATTServer).handleFindByType,
	attOpReadByTypeReq:  (*ATTServer).handleReadByType,
	attOpReadReq:        (*ATTServer).handleRead,
	attOpReadBlobReq:    (*ATTServer).handleReadBlob,
	attOpReadMultiReq:   (*ATTServer).handleReadMulti,
	attOpReadByGroupReq: (*ATTServer).handleReadByGroup,
	attOpWriteReq:       (*ATTServer).handleWriteReq,
	attOpWriteCmd:       (*ATTServer).handleWriteCmd,
	attOpPrepWriteReq:   (*ATTServer).handlePrepareWrite,
	attOpExecWriteReq:   (*ATTServer).handleExecuteWrite,
}

// HandleRequest answers one ATT PDU. It never panics: every failure
// mode is translated into a well-formed Error Response (§4.6,
// "Failure model inside a request"). A nil return means no response
// should be sent at all (Write Command).
func (s *ATTServer) HandleRequest(pdu []byte) []byte {
	if len(pdu) == 0 {
		return nil
	}
	op := pdu[0]
	var resp []byte
	if h, ok := attDispatch[op]; ok {
		resp = h(s, pdu)
	} else {
		resp = attErrorResp(op, 0x0000, attEcodeReqNotSupp)
	}
	if len(resp) == 5 && resp[0] == attOpError {
		s.log.WithFields(logrus.Fields{"opcode": op, "status": resp[4]}).Debug("att error response")
	}
	return resp
}

func (s *ATTServer) handleMTU(req []byte) []byte {
	if len(req) != 3 {
		return attErrorResp(attOpMtuReq, 0x0000, attEcodeInvalidPDU)
	}
	clientMTU := uint16(req[1]) | uint16(req[2])<<8
	mtu := clientMTU
	if mtu > s.mtu {
		mtu = s.mtu
	}
	if mtu < MinMTU {
		mtu = MinMTU
	}
	s.mtu = mtu
	return []byte{attOpMtuResp, byte(mtu), byte(mtu >> 8)}
}

// parseHandleRange validates and extracts (start,end) from the first
// 5 bytes of a PDU: op || start(le16) || end(le16) (§4.6, "Common validation").
func parseHandleRange(req []byte, op byte) (start, end uint16, errResp []byte) {
	if len(req) < 5 {
		return 0, 0, attErrorResp(op, 0x0000, attEcodeInvalidPDU)
	}
	start = uint16(req[1]) | uint16(req[2])<<8
	end = uint16(req[3]) | uint16(req[4])<<8
	if start == 0x0000 || end < start {
		return 0, 0, attErrorResp(op, start, attEcodeInvalidHandle)
	}
	return start, end, nil
}

// parseTailUUID interprets a variable-length UUID tail: 2 bytes is a
// short form, 16 bytes is a full form, anything else is malformed.
func parseTailUUID(tail []byte) (UUID, error) {
	return uuidFromWire(tail)
}

func (s *ATTServer) handleFindInfo(req []byte) []byte {
	start, end, errResp := parseHandleRange(req, attOpFindInfoReq)
	if errResp != nil {
		return errResp
	}
	attrs := s.db.Subrange(start, end)
	p := newRecordPacker(int(s.mtu) - 2)
	for _, a := range attrs {
		uuidBytes := a.Type().wire()
		rec := append([]byte{byte(a.Handle()), byte(a.Handle() >> 8)}, uuidBytes...)
		if !p.add(rec) {
			break
		}
	}
	if p.empty() {
		return attErrorResp(attOpFindInfoReq, start, attEcodeAttrNotFound)
	}
	header := byte(0x02)
	if p.recLen == 4 {
		header = 0x01
	}
	return append([]byte{attOpFindInfoResp, header}, p.bytes()...)
}

func (s *ATTServer) handleFindByType(req []byte) []byte {
	start, end, errResp := parseHandleRange(req, attOpFindByTypeReq)
	if errResp != nil {
		return errResp
	}
	if len(req) < 7 {
		return attErrorResp(attOpFindByTypeReq, start, attEcodeInvalidPDU)
	}
	attrType, err := parseTailUUID(req[5:7])
	if err != nil {
		return attErrorResp(attOpFindByTypeReq, start, attEcodeInvalidPDU)
	}
	attrValue := req[7:]

	p := newRecordPacker(int(s.mtu) - 1)
	for _, svc := range s.db.services {
		if svc.defnHandle < start || svc.defnHandle > end {
			continue
		}
		if !svc.typeUUID().Equal(attrType) {
			continue
		}
		defn, _ := s.db.At(svc.defnHandle)
		if !bytesEqual(defn.Value(), attrValue) {
			continue
		}
		rec := []byte{byte(svc.defnHandle), byte(svc.defnHandle >> 8), byte(svc.endHandle), byte(svc.endHandle >> 8)}
		if !p.add(rec) {
			break
		}
	}
	if p.empty() {
		return attErrorResp(attOpFindByTypeReq, start, attEcodeAttrNotFound)
	}
	return append([]byte{attOpFindByTypeResp}, p.bytes()...)
}

func (s *ATTServer) handleReadByType(req []byte) []byte {
	start, end, errResp := parseHandleRange(req, attOpReadByTypeReq)
	if errResp != nil {
		return errResp
	}
	if len(req) != 7 && len(req) != 21 {
		return attErrorResp(attOpReadByTypeReq, start, attEcodeInvalidPDU)
	}
	want, err := parseTailUUID(req[5:])
	if err != nil {
		return attErrorResp(attOpReadByTypeReq, start, attEcodeInvalidPDU)
	}

	attrs := s.db.Subrange(start, end)
	p := newRecordPacker(int(s.mtu) - 2)
	for _, a := range attrs {
		if !a.Type().Equal(want) {
			continue
		}
		rec := append([]byte{byte(a.Handle()), byte(a.Handle() >> 8)}, truncate(a.Value(), int(s.mtu)-4)...)
		if !p.add(rec) {
			break
		}
	}
	if p.empty() {
		return attErrorResp(attOpReadByTypeReq, start, attEcodeAttrNotFound)
	}
	return append([]byte{attOpReadByTypeResp, byte(p.recLen)}, p.bytes()...)
}

func (s *ATTServer) handleRead(req []byte) []byte {
	if len(req) != 3 {
		return attErrorResp(attOpReadReq, 0x0000, attEcodeInvalidPDU)
	}
	handle := uint16(req[1]) | uint16(req[2])<<8
	a, ok := s.db.At(handle)
	if !ok {
		return attErrorResp(attOpReadReq, handle, attEcodeInvalidHandle)
	}
	return append([]byte{attOpReadResp}, truncate(a.Value(), int(s.mtu)-1)...)
}

func (s *ATTServer) handleReadBlob(req []byte) []byte {
	if len(req) != 5 {
		return attErrorResp(attOpReadBlobReq, 0x0000, attEcodeInvalidPDU)
	}
	handle := uint16(req[1]) | uint16(req[2])<<8
	offset := int(uint16(req[3]) | uint16(req[4])<<8)
	a, ok := s.db.At(handle)
	if !ok {
		return attErrorResp(attOpReadBlobReq, handle, attEcodeInvalidHandle)
	}
	if offset > len(a.Value()) {
		return attErrorResp(attOpReadBlobReq, handle, attEcodeInvalidOffset)
	}
	return append([]byte{attOpReadBlobResp}, truncate(a.Value()[offset:], int(s.mtu)-1)...)
}

func (s *ATTServer) handleReadMulti(req []byte) []byte {
	if len(req) < 5 || (len(req)-1)%2 != 0 {
		return attErrorResp(attOpReadMultiReq, 0x0000, attEcodeInvalidPDU)
	}
	var out []byte
	for i := 1; i < len(req); i += 2 {
		handle := uint16(req[i]) | uint16(req[i+1])<<8
		a, ok := s.db.At(handle)
		if !ok {
			return attErrorResp(attOpReadMultiReq, handle, attEcodeInvalidHandle)
		}
		out = append(out, a.Value()...)
	}
	return append([]byte{attOpReadMultiResp}, truncate(out, int(s.mtu)-1)...)
}

func (s *ATTServer) handleReadByGroup(req []byte) []byte {
	start, end, errResp := parseHandleRange(req, attOpReadByGroupReq)
	if errResp != nil {
		return errResp
	}
	if len(req) != 7 && len(req) != 21 {
		return attErrorResp(attOpReadByGroupReq, start, attEcodeInvalidPDU)
	}
	want, err := parseTailUUID(req[5:])
	if err != nil {
		return attErrorResp(attOpReadByGroupReq, start, attEcodeInvalidPDU)
	}
	if !want.Equal(gattAttrPrimaryServiceUUID) && !want.Equal(gattAttrSecondaryServiceUUID) {
		return attErrorResp(attOpReadByGroupReq, start, attEcodeUnsuppGrpType)
	}

	p := newRecordPacker(int(s.mtu) - 2)
	for _, svc := range s.db.servicesOverlapping(start, end) {
		if !svc.typeUUID().Equal(want) {
			continue
		}
		defn, _ := s.db.At(svc.defnHandle)
		rec := []byte{byte(svc.defnHandle), byte(svc.defnHandle >> 8), byte(svc.endHandle), byte(svc.endHandle >> 8)}
		rec = append(rec, defn.Value()...)
		if !p.add(rec) {
			break
		}
	}
	if p.empty() {
		return attErrorResp(attOpReadByGroupReq, start, attEcodeAttrNotFound)
	}
	return append([]byte{attOpReadByGroupResp, byte(p.recLen)}, p.bytes()...)
}

func (s *ATTServer) handleWriteReq(req []byte) []byte {
	if len(req) < 3 {
		return attErrorResp(attOpWriteReq, 0x0000, attEcodeInvalidPDU)
	}
	handle := uint16(req[1]) | uint16(req[2])<<8
	a, ok := s.db.At(handle)
	if !ok {
		return attErrorResp(attOpWriteReq, handle, attEcodeInvalidHandle)
	}
	if status := a.SetValue(req[3:]); status != attEcodeSuccess {
		return attErrorResp(attOpWriteReq, handle, status)
	}
	return []byte{attOpWriteResp}
}

func (s *ATTServer) handleWriteCmd(req []byte) []byte {
	if len(req) < 3 {
		return nil
	}
	handle := uint16(req[1]) | uint16(req[2])<<8
	a, ok := s.db.At(handle)
	if !ok {
		return nil
	}
	a.SetValue(req[3:])
	return nil
}

func (s *ATTServer) handlePrepareWrite(req []byte) []byte {
	if len(req) < 5 {
		return attErrorResp(attOpPrepWriteReq, 0x0000, attEcodeInvalidPDU)
	}
	handle := uint16(req[1]) | uint16(req[2])<<8
	offset := int(uint16(req[3]) | uint16(req[4])<<8)
	value := req[5:]

	if _, ok := s.db.At(handle); !ok {
		return attErrorResp(attOpPrepWriteReq, handle, attEcodeInvalidHandle)
	}

	idx := s.queueIndex(handle)
	switch {
	case idx < 0 && len(s.queue) >= MaxQueuedHandles:
		return attErrorResp(attOpPrepWriteReq, handle, attEcodePrepQueueFull)
	case idx < 0:
		if offset != 0 {
			return attErrorResp(attOpPrepWriteReq, handle, attEcodeInvalidOffset)
		}
		s.queue = append(s.queue, pendingWrite{handle: handle, buf: append([]byte(nil), value...)})
	default:
		cur := s.queue[idx]
		if offset != len(cur.buf) {
			return attErrorResp(attOpPrepWriteReq, handle, attEcodeInvalidOffset)
		}
		if len(cur.buf)+len(value) > MaxWriteLength {
			return attErrorResp(attOpPrepWriteReq, handle, attEcodeInvalAttrValueLen)
		}
		s.queue[idx].buf = append(s.queue[idx].buf, value...)
	}

	resp := []byte{attOpPrepWriteResp, byte(handle), byte(handle >> 8), byte(offset), byte(offset >> 8)}
	return append(resp, value...)
}

func (s *ATTServer) handleExecuteWrite(req []byte) []byte {
	if len(req) != 2 {
		return attErrorResp(attOpExecWriteReq, 0x0000, attEcodeInvalidPDU)
	}
	flags := req[1]
	switch flags {
	case 0x00:
		s.queue = nil
	case 0x01:
		for _, pw := range s.queue {
			if a, ok := s.db.At(pw.handle); ok {
				a.SetValue(pw.buf)
			}
		}
		s.queue = nil
	default:
		return attErrorResp(attOpExecWriteReq, 0x0000, attEcodeInvalidPDU)
	}
	return []byte{attOpExecWriteResp}
}

func (s *ATTServer) queueIndex(handle uint16) int {
	for i, pw := range s.queue {
		if pw.handle == handle {
			return i
		}
	}
	return -1
}

func truncate(b []byte, max int) []byte {
	if max < 0 {
		return nil
	}
	if len(b) > max {
		return b[:max]
	}
	return b
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// recordPacker accepts fixed-length records one at a time, fixing the
// length from the first accepted record (§4.6, "Record packing").
type recordPacker struct {
	recLen int
	buf    []byte
	max    int
}

func newRecordPacker(max int) *recordPacker {
	return &recordPacker{max: max}
}

// add appends rec if it fits within the byte budget and matches the
// length already fixed by a prior record. It reports whether rec was
// accepted; the caller should stop feeding records on the first false.
func (p *recordPacker) add(rec []byte) bool {
	if p.recLen != 0 && len(rec) != p.recLen {
		return false
	}
	if len(p.buf)+len(rec) > p.max {
		return false
	}
	if p.recLen == 0 {
		p.recLen = len(rec)
	}
	p.buf = append(p.buf, rec...)
	return true
}

func (p *recordPacker) bytes() []byte { return p.buf }
func (p *recordPacker) empty() bool   { return len(p.buf) == 0 }
