package gatt

// ATT request/response opcodes (Bluetooth Core Spec v4.0, Vol 3, Part F).
const (
	attOpError           = 0x01
	attOpMtuReq          = 0x02
	attOpMtuResp         = 0x03
	attOpFindInfoReq     = 0x04
	attOpFindInfoResp    = 0x05
	attOpFindByTypeReq   = 0x06
	attOpFindByTypeResp  = 0x07
	attOpReadByTypeReq   = 0x08
	attOpReadByTypeResp  = 0x09
	attOpReadReq         = 0x0a
	attOpReadResp        = 0x0b
	attOpReadBlobReq     = 0x0c
	attOpReadBlobResp    = 0x0d
	attOpReadMultiReq    = 0x0e
	attOpReadMultiResp   = 0x0f
	attOpReadByGroupReq  = 0x10
	attOpReadByGroupResp = 0x11
	attOpWriteReq        = 0x12
	attOpWriteResp       = 0x13
	attOpWriteCmd        = 0x52
	attOpPrepWriteReq    = 0x16
	attOpPrepWriteResp   = 0x17
	attOpExecWriteReq    = 0x18
	attOpExecWriteResp   = 0x19
	attOpHandleNotify    = 0x1b
	attOpHandleInd       = 0x1d
	attOpHandleCnf       = 0x1e
	attOpSignedWriteCmd  = 0xd2
)

// ATT error codes, returned as the status byte of an Error Response.
const (
	attEcodeSuccess           = 0x00
	attEcodeInvalidHandle     = 0x01
	attEcodeReadNotPerm       = 0x02
	attEcodeWriteNotPerm      = 0x03
	attEcodeInvalidPDU        = 0x04
	attEcodeAuthentication    = 0x05
	attEcodeReqNotSupp        = 0x06
	attEcodeInvalidOffset     = 0x07
	attEcodeAuthorization     = 0x08
	attEcodePrepQueueFull     = 0x09
	attEcodeAttrNotFound      = 0x0a
	attEcodeAttrNotLong       = 0x0b
	attEcodeInsuffEncrKeySize = 0x0c
	attEcodeInvalAttrValueLen = 0x0d
	attEcodeUnlikely          = 0x0e
	attEcodeInsuffEnc         = 0x0f
	attEcodeUnsuppGrpType     = 0x10
	attEcodeInsuffResources   = 0x11
)

// attRespFor maps each request opcode to its successful response opcode.
var attRespFor = map[byte]byte{
	attOpMtuReq:         attOpMtuResp,
	attOpFindInfoReq:    attOpFindInfoResp,
	attOpFindByTypeReq:  attOpFindByTypeResp,
	attOpReadByTypeReq:  attOpReadByTypeResp,
	attOpReadReq:        attOpReadResp,
	attOpReadBlobReq:    attOpReadBlobResp,
	attOpReadMultiReq:   attOpReadMultiResp,
	attOpReadByGroupReq: attOpReadByGroupResp,
	attOpWriteReq:       attOpWriteResp,
	attOpPrepWriteReq:   attOpPrepWriteResp,
	attOpExecWriteReq:   attOpExecWriteResp,
}

// GATT declaration and descriptor UUIDs used to assemble the attribute table.
var (
	// AttrGAPUUID and AttrGATTUUID identify the two default services every
	// AttributeDB carries ahead of caller-supplied services.
	AttrGAPUUID  = UUID16(0x1800)
	AttrGATTUUID = UUID16(0x1801)

	gattAttrPrimaryServiceUUID   = UUID16(0x2800)
	gattAttrSecondaryServiceUUID = UUID16(0x2801)
	gattAttrIncludeUUID          = UUID16(0x2802)
	gattAttrCharacteristicUUID   = UUID16(0x2803)

	gattAttrClientCharacteristicConfigUUID = UUID16(0x2902)

	gattAttrDeviceNameUUID = UUID16(0x2A00)
	gattAttrAppearanceUUID = UUID16(0x2A01)
)

var gapCharAppearanceGenericComputer = []byte{0x00, 0x80}

const gattCCCNotifyFlag = 1

type attErr struct {
	opcode uint8
	handle uint16
	status uint8
}

func attErrorResp(op byte, h uint16, s uint8) []byte {
	return attErr{opcode: op, handle: h, status: s}.Marshal()
}

// Marshal encodes the error response frame: 0x01, request_opcode, handle(le16), status.
func (e attErr) Marshal() []byte {
	return []byte{attOpError, e.opcode, byte(e.handle), byte(e.handle >> 8), e.status}
}
