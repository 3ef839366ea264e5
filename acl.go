package gatt

import "github.com/sirupsen/logrus"

// ChannelHandler receives a fully reassembled L2CAP PDU addressed to
// cid on connection conn.
type ChannelHandler func(conn *ACLConnection, cid uint16, pdu []byte)

// CIDATT is the fixed channel identifier for the Attribute Protocol.
const CIDATT = 0x0004

type reassembly struct {
	cid          uint16
	buf          []byte
	expectedLen  int
}

// ACLConnection reassembles inbound ACL fragments into L2CAP PDUs and
// fragments outbound PDUs to fit the negotiated transmit MTU. One
// instance exists per connection handle, created on LE Connection
// Complete and discarded on Disconnection Complete.
type ACLConnection struct {
	Handle   uint16
	TxMTU    uint16
	channels map[uint16]ChannelHandler
	reasm    *reassembly
	send     func(HCIPacket)
	log      *logrus.Entry
}

// NewACLConnection builds a connection tracker for handle, whose
// outbound fragments are delivered to send.
func NewACLConnection(handle uint16, txMTU uint16, send func(HCIPacket)) *ACLConnection {
	return &ACLConnection{
		Handle:   handle,
		TxMTU:    txMTU,
		channels: make(map[uint16]ChannelHandler),
		send:     send,
		log:      componentLog("acl"),
	}
}

// HandleChannel registers h as the recipient of PDUs addressed to cid.
// Must be called before the first inbound frame for that channel.
func (c *ACLConnection) HandleChannel(cid uint16, h ChannelHandler) {
	c.channels[cid] = h
}

// OnReceivedData processes one inbound ACL_DATA frame belonging to
// this connection. framePayload is the packet's payload past the kind
// byte (i.e. HCIPacket.Payload()).
func (c *ACLConnection) OnReceivedData(framePayload []byte) {
	if len(framePayload) < 4 {
		c.log.Warn("acl frame shorter than header")
		return
	}
	fragLen := int(framePayload[2]) | int(framePayload[3])<<8
	if fragLen+4 != len(framePayload) {
		c.log.Warn("acl fragment length mismatch")
		return
	}
	hf := uint16(framePayload[0]) | uint16(framePayload[1])<<8
	boundary := byte(hf>>12) & 0x03
	rest := framePayload[4:]

	switch boundary {
	case fragFirstHost, fragFirst:
		if len(rest) < 4 {
			c.log.Warn("acl first fragment shorter than l2cap header")
			return
		}
		pduLen := int(rest[0]) | int(rest[1])<<8
		cid := uint16(rest[2]) | uint16(rest[3])<<8
		body := rest[4:]
		if pduLen+4 == fragLen {
			c.dispatch(cid, body)
			return
		}
		c.reasm = &reassembly{cid: cid, buf: append([]byte(nil), body...), expectedLen: pduLen}

	case fragNext:
		if c.reasm == nil {
			c.log.Warn("acl continuation fragment with no reassembly in progress")
			return
		}
		c.reasm.buf = append(c.reasm.buf, rest...)
		if len(c.reasm.buf) >= c.reasm.expectedLen {
			pdu := c.reasm.buf[:c.reasm.expectedLen]
			cid := c.reasm.cid
			c.reasm = nil
			c.dispatch(cid, pdu)
		}

	default:
		c.log.WithField("boundary", boundary).Warn("unrecognised acl boundary flag")
	}
}

func (c *ACLConnection) dispatch(cid uint16, pdu []byte) {
	h, ok := c.channels[cid]
	if !ok {
		c.log.WithField("cid", cid).Debug("dropping pdu for unregistered channel")
		return
	}
	h(c, cid, pdu)
}

// Send fragments data as an L2CAP PDU on cid and hands each fragment
// to the connection's send callback in order.
func (c *ACLConnection) Send(cid uint16, data []byte) {
	pdu := make([]byte, 4+len(data))
	pdu[0] = byte(len(data))
	pdu[1] = byte(len(data) >> 8)
	pdu[2] = byte(cid)
	pdu[3] = byte(cid >> 8)
	copy(pdu[4:], data)

	if len(pdu)+4 <= int(c.TxMTU) {
		c.sendFragment(fragFirstHost, pdu)
		return
	}

	maxFrag := int(c.TxMTU) - 4
	first := pdu[:maxFrag]
	c.sendFragment(fragFirstHost, first)
	for rest := pdu[maxFrag:]; len(rest) > 0; {
		n := len(rest)
		if n > maxFrag {
			n = maxFrag
		}
		c.sendFragment(fragNext, rest[:n])
		rest = rest[n:]
	}
}

func (c *ACLConnection) sendFragment(boundary byte, data []byte) {
	p, err := NewACLPacket(c.Handle, boundary, data)
	if err != nil {
		c.log.WithError(err).Error("failed to encode acl fragment")
		return
	}
	c.send(p)
}
