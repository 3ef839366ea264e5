package gatt

import "github.com/sirupsen/logrus"

// OGF values (Core spec Vol 2, Part E, 5.4).
const (
	ogfLinkCtl   = 0x01
	ogfHostCtl   = 0x03
	ogfInfoParam = 0x04
	ogfLECtl     = 0x08
)

// Opcode is an HCI command opcode: (OGF<<10)|OCF.
type Opcode uint16

func (op Opcode) ogf() uint8  { return uint8(op >> 10) }
func (op Opcode) ocf() uint16 { return uint16(op) & 0x03FF }

// Opcodes of the commands the startup sequences require (§4.2).
const (
	OpReset                      = Opcode(ogfHostCtl<<10 | 0x0003)
	OpSetEventMask               = Opcode(ogfHostCtl<<10 | 0x0001)
	OpReadLocalVersion           = Opcode(ogfInfoParam<<10 | 0x0001)
	OpWriteLEHostSupported       = Opcode(ogfHostCtl<<10 | 0x006D)
	OpLESetEventMask             = Opcode(ogfLECtl<<10 | 0x0001)
	OpLESetAdvertisingParameters = Opcode(ogfLECtl<<10 | 0x0006)
	OpLESetAdvertisingData       = Opcode(ogfLECtl<<10 | 0x0008)
	OpLESetScanResponseData      = Opcode(ogfLECtl<<10 | 0x0009)
	OpLESetAdvertiseEnable       = Opcode(ogfLECtl<<10 | 0x000A)
	OpLESetScanParameters        = Opcode(ogfLECtl<<10 | 0x000B)
	OpLESetScanEnable            = Opcode(ogfLECtl<<10 | 0x000C)
)

var opcodeName = map[Opcode]string{
	OpReset:                      "Reset",
	OpSetEventMask:               "Set Event Mask",
	OpReadLocalVersion:           "Read Local Version Information",
	OpWriteLEHostSupported:       "Write LE Host Supported",
	OpLESetEventMask:             "LE Set Event Mask",
	OpLESetAdvertisingParameters: "LE Set Advertising Parameters",
	OpLESetAdvertisingData:       "LE Set Advertising Data",
	OpLESetScanResponseData:      "LE Set Scan Response Data",
	OpLESetAdvertiseEnable:       "LE Set Advertising Enable",
	OpLESetScanParameters:        "LE Set Scan Parameters",
	OpLESetScanEnable:            "LE Set Scan Enable",
}

func (op Opcode) String() string {
	if name, ok := opcodeName[op]; ok {
		return name
	}
	return "Unknown Command"
}

// LE event mask bit for the Advertising Report sub-event (§4.2).
const leEventMaskAdvertisingReport = uint64(1) << 1

// ReadLocalVersionReturn is the parsed return-parameter block of Read
// Local Version Information (status byte already consumed).
type ReadLocalVersionReturn struct {
	HCIVersion    byte
	HCIRevision   uint16
	LMPVersion    byte
	Manufacturer  uint16
	LMPSubversion uint16
}

func parseReadLocalVersionReturn(b []byte) (ReadLocalVersionReturn, bool) {
	if len(b) < 8 {
		return ReadLocalVersionReturn{}, false
	}
	return ReadLocalVersionReturn{
		HCIVersion:    b[0],
		HCIRevision:   uint16(b[1]) | uint16(b[2])<<8,
		LMPVersion:    b[3],
		Manufacturer:  uint16(b[4]) | uint16(b[5])<<8,
		LMPSubversion: uint16(b[6]) | uint16(b[7])<<8,
	}, true
}

// HCICommand is one outstanding request to the controller: an opcode,
// its encoded parameters, and a callback invoked once a matching
// Command Complete arrives.
type HCICommand struct {
	Opcode     Opcode
	Params     []byte
	OnComplete func(status byte, returnParams []byte)
}

// HostController sequences outbound HCI commands and tracks exactly
// one in-flight request per opcode (§4.2). It implements the
// OnCommandComplete/OnCommandStatus half of EventHandlers; embed it
// (or delegate to it) alongside ACL and GAP handling.
type HostController struct {
	NoopEventHandlers
	inFlight    map[uint16]*HCICommand
	queuePacket func(HCIPacket)
	log         *logrus.Entry
}

// NewHostController builds a command engine whose outbound packets
// are handed to queuePacket (normally a transport's QueuePacket).
func NewHostController(queuePacket func(HCIPacket)) *HostController {
	return &HostController{
		inFlight:    make(map[uint16]*HCICommand),
		queuePacket: queuePacket,
		log:         componentLog("hci"),
	}
}

// Queue encodes and sends cmd, registering it as in-flight. Queueing
// a second command for an opcode already in flight is a programming
// error and is rejected without touching the transport.
func (h *HostController) Queue(cmd *HCICommand) error {
	key := uint16(cmd.Opcode)
	if _, busy := h.inFlight[key]; busy {
		return errProgramming("hci: opcode already in flight: " + cmd.Opcode.String())
	}
	p, err := NewCommandPacket(key, cmd.Params)
	if err != nil {
		return err
	}
	h.inFlight[key] = cmd
	h.log.WithField("opcode", cmd.Opcode.String()).Debug("queueing command")
	h.queuePacket(p)
	return nil
}

// OnCommandComplete implements EventHandlers: it removes the matching
// in-flight command and invokes its completion callback with the
// status byte and the remaining return parameters. An orphan opcode
// (no caller queued it) is logged and dropped.
func (h *HostController) OnCommandComplete(numPkts uint8, opcode uint16, returnParams []byte) {
	cmd, ok := h.inFlight[opcode]
	if !ok {
		h.log.WithField("opcode", opcode).Debug("command complete for unknown opcode")
		return
	}
	delete(h.inFlight, opcode)
	if len(returnParams) < 1 {
		h.log.WithField("opcode", opcode).Warn("command complete with no status byte")
		return
	}
	status := returnParams[0]
	if status != 0 {
		h.log.WithFields(logrus.Fields{"opcode": Opcode(opcode).String(), "status": status}).Error("controller command failed")
	}
	if cmd.OnComplete != nil {
		cmd.OnComplete(status, returnParams[1:])
	}
}

// OnCommandStatus implements EventHandlers for the Command Status
// event; the startup sequences in this package only act on Command
// Complete, but an in-flight command that errors at the status stage
// (queued, not yet executed) is still removed so its opcode can be
// reused.
func (h *HostController) OnCommandStatus(status uint8, numPkts uint8, opcode uint16) {
	if status == 0 {
		return
	}
	if cmd, ok := h.inFlight[opcode]; ok {
		delete(h.inFlight, opcode)
		h.log.WithFields(logrus.Fields{"opcode": Opcode(opcode).String(), "status": status}).Error("command rejected at status stage")
		if cmd.OnComplete != nil {
			cmd.OnComplete(status, nil)
		}
	}
}
