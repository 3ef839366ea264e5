package gatt

import "github.com/sirupsen/logrus"

// HCI event codes this decoder understands (§4.3). Unknown codes are
// logged and ignored; the decoder owns no state beyond its callback table.
const (
	EventCommandComplete      = 0x0E
	EventCommandStatus        = 0x0F
	EventDisconnectionComplete = 0x05
	EventLEMeta               = 0x3E
)

// LE Meta sub-event codes (second byte of an EventLEMeta payload).
const (
	leSubConnectionComplete  = 0x01
	leSubAdvertisingReport   = 0x02
)

// ConnectionCompleteEvent is the parsed payload of an LE Connection
// Complete sub-event (§4.3).
type ConnectionCompleteEvent struct {
	Status          byte
	Handle          uint16
	Role            byte // 0 = master, 1 = slave
	PeerAddrType    byte
	PeerAddr        [6]byte
	Interval        uint16
	Latency         uint16
	SupervisionTO   uint16
	MasterClockAcc  byte
}

// AdvertisingReport is one record of an LE Advertising Report sub-event.
type AdvertisingReport struct {
	EventType byte
	AddrType  byte
	Addr      [6]byte
	Data      []byte
	RSSI      int8
}

// DisconnectionCompleteEvent is the parsed payload of a Disconnection
// Complete event.
type DisconnectionCompleteEvent struct {
	Status byte
	Handle uint16
	Reason byte
}

// EventHandlers is the sum of callbacks an EventDecoder dispatches to
// (§9, "Mixin-style event handler" — expressed here as a plain
// interface rather than a class mixin with stub methods). Embedding
// NoopEventHandlers lets a caller implement only the methods it cares
// about.
type EventHandlers interface {
	OnCommandComplete(numPkts uint8, opcode uint16, returnParams []byte)
	OnCommandStatus(status uint8, numPkts uint8, opcode uint16)
	OnConnectionFailed(status byte)
	OnMasterConnected(ev ConnectionCompleteEvent)
	OnSlaveConnected(ev ConnectionCompleteEvent)
	OnAdvertisingReport(r AdvertisingReport)
	OnDisconnect(ev DisconnectionCompleteEvent)
}

// NoopEventHandlers implements EventHandlers with no-ops, so a
// component only needs to override the callbacks it cares about
// (§9, avoid exposing inheritance; this is Go's embeddable-interface
// equivalent of a mixin with stub methods).
type NoopEventHandlers struct{}

func (NoopEventHandlers) OnCommandComplete(uint8, uint16, []byte) {}
func (NoopEventHandlers) OnCommandStatus(uint8, uint8, uint16)    {}
func (NoopEventHandlers) OnConnectionFailed(byte)                 {}
func (NoopEventHandlers) OnMasterConnected(ConnectionCompleteEvent) {}
func (NoopEventHandlers) OnSlaveConnected(ConnectionCompleteEvent)  {}
func (NoopEventHandlers) OnAdvertisingReport(AdvertisingReport)     {}
func (NoopEventHandlers) OnDisconnect(DisconnectionCompleteEvent)   {}

// EventDecoder parses raw HCI event payloads and dispatches to h.
type EventDecoder struct {
	h   EventHandlers
	log *logrus.Entry
}

// NewEventDecoder builds a decoder that dispatches parsed events to h.
func NewEventDecoder(h EventHandlers) *EventDecoder {
	return &EventDecoder{h: h, log: componentLog("hci")}
}

// Decode parses one EVENT packet and dispatches it. p.Kind() must be
// PacketTypeEvent. Malformed events are logged and dropped, never
// surfaced as an error: the transport keeps running (§7, "Wire-level
// malformed").
func (d *EventDecoder) Decode(p HCIPacket) {
	code := p.EventCode()
	params := p.EventParams()

	switch code {
	case EventCommandComplete:
		if len(params) < 3 {
			d.log.Warn("malformed command complete event")
			return
		}
		numPkts := params[0]
		opcode := uint16(params[1]) | uint16(params[2])<<8
		d.h.OnCommandComplete(numPkts, opcode, params[3:])

	case EventCommandStatus:
		if len(params) < 4 {
			d.log.Warn("malformed command status event")
			return
		}
		status := params[0]
		numPkts := params[1]
		opcode := uint16(params[2]) | uint16(params[3])<<8
		d.h.OnCommandStatus(status, numPkts, opcode)

	case EventDisconnectionComplete:
		if len(params) != 4 {
			d.log.Warn("malformed disconnection complete event")
			return
		}
		d.h.OnDisconnect(DisconnectionCompleteEvent{
			Status: params[0],
			Handle: uint16(params[1]) | uint16(params[2])<<8,
			Reason: params[3],
		})

	case EventLEMeta:
		d.decodeLEMeta(params)

	default:
		d.log.WithField("code", code).Debug("unhandled hci event")
	}
}

func (d *EventDecoder) decodeLEMeta(params []byte) {
	if len(params) < 1 {
		d.log.Warn("empty LE meta event")
		return
	}
	sub, body := params[0], params[1:]
	switch sub {
	case leSubConnectionComplete:
		if len(body) != 18 {
			d.log.Warn("malformed LE connection complete event")
			return
		}
		ev := ConnectionCompleteEvent{
			Status:         body[0],
			Handle:         uint16(body[1]) | uint16(body[2])<<8,
			Role:           body[3],
			PeerAddrType:   body[4],
		}
		copy(ev.PeerAddr[:], body[5:11])
		ev.Interval = uint16(body[11]) | uint16(body[12])<<8
		ev.Latency = uint16(body[13]) | uint16(body[14])<<8
		ev.SupervisionTO = uint16(body[15]) | uint16(body[16])<<8
		ev.MasterClockAcc = body[17]

		if ev.Status != 0 {
			d.h.OnConnectionFailed(ev.Status)
			return
		}
		if ev.Role == 0 {
			d.h.OnMasterConnected(ev)
		} else {
			d.h.OnSlaveConnected(ev)
		}

	case leSubAdvertisingReport:
		d.decodeAdvertisingReport(body)

	default:
		d.log.WithField("subevent", sub).Debug("unhandled LE meta subevent")
	}
}

func (d *EventDecoder) decodeAdvertisingReport(body []byte) {
	if len(body) < 1 {
		d.log.Warn("empty LE advertising report")
		return
	}
	n := int(body[0])
	pos := 1
	for i := 0; i < n; i++ {
		if pos+9 > len(body) {
			d.log.Warn("truncated LE advertising report")
			return
		}
		r := AdvertisingReport{EventType: body[pos], AddrType: body[pos+1]}
		copy(r.Addr[:], body[pos+2:pos+8])
		dataLen := int(body[pos+8])
		pos += 9
		if pos+dataLen+1 > len(body) {
			d.log.Warn("truncated LE advertising report data")
			return
		}
		r.Data = append([]byte(nil), body[pos:pos+dataLen]...)
		pos += dataLen
		r.RSSI = int8(body[pos])
		pos++
		d.h.OnAdvertisingReport(r)
	}
}
