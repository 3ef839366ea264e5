package gatt

import "github.com/sirupsen/logrus"

// Stack wires the HCI command engine, per-connection ACL reassembly,
// and the ATT server together behind a packet transport (§6). It is
// the façade a caller builds to bring a BLE host up and keep it
// running; transports deliver inbound frames to HandlePacket and the
// stack drives outbound commands and responses back through them.
type Stack struct {
	NoopEventHandlers

	cfg       *Config
	transport Transport
	hc        *HostController
	decoder   *EventDecoder
	db        *AttributeDB
	att       *ATTServer
	conns     map[uint16]*ACLConnection
	log       *logrus.Entry

	// OnReady is called once the startup sequence completes successfully.
	OnReady func()
	// OnError is called if the startup sequence aborts.
	OnError func(error)
	// ConnectHandler and DisconnectHandler, if set, are notified of ACL connection lifecycle.
	ConnectHandler    func(handle uint16)
	DisconnectHandler func(handle uint16, reason byte)
}

// NewStack builds a Stack serving svcs (plus the default GAP/GATT
// services) over transport, configured by cfg.
func NewStack(cfg *Config, transport Transport, svcs []*ServiceBuilder) (*Stack, error) {
	db, err := NewAttributeDB(cfg.LocalName, svcs)
	if err != nil {
		return nil, err
	}
	s := &Stack{
		cfg:       cfg,
		transport: transport,
		db:        db,
		att:       NewATTServer(db, cfg.MTU),
		conns:     make(map[uint16]*ACLConnection),
		log:       componentLog("hci"),
	}
	s.hc = NewHostController(transport.QueuePacket)
	s.decoder = NewEventDecoder(s)
	return s, nil
}

// HandlePacket is the transport's inbound callback: it demultiplexes
// events to the HCI engine and ACL frames to the owning connection.
func (s *Stack) HandlePacket(p HCIPacket) {
	switch p.Kind() {
	case PacketTypeEvent:
		s.decoder.Decode(p)
	case PacketTypeACLData:
		handle := p.ACLHandle()
		conn, ok := s.conns[handle]
		if !ok {
			s.log.WithField("handle", handle).Debug("dropping acl frame for unknown connection")
			return
		}
		conn.OnReceivedData(p.Payload())
	default:
		s.log.WithField("kind", p.Kind()).Debug("dropping unexpected packet kind")
	}
}

// Start runs the controller through the configured startup sequence,
// then starts the transport's event loop. It blocks until the
// transport stops.
func (s *Stack) Start() error {
	seq := NewStartupSequence(s.hc, s.cfg.StartupParams, s.OnReady, s.OnError)
	seq.Start()
	return s.transport.Run()
}

// Stop tears down the transport; the startup sequence and any open
// connections are abandoned.
func (s *Stack) Stop() {
	s.transport.Stop()
}

// OnCommandComplete delegates to the host controller's command engine.
func (s *Stack) OnCommandComplete(numPkts uint8, opcode uint16, returnParams []byte) {
	s.hc.OnCommandComplete(numPkts, opcode, returnParams)
}

// OnCommandStatus delegates to the host controller's command engine.
func (s *Stack) OnCommandStatus(status uint8, numPkts uint8, opcode uint16) {
	s.hc.OnCommandStatus(status, numPkts, opcode)
}

// OnMasterConnected and OnSlaveConnected both open an ACLConnection
// for the new handle and bind the ATT server to its attribute channel.
func (s *Stack) OnMasterConnected(ev ConnectionCompleteEvent)  { s.openConnection(ev) }
func (s *Stack) OnSlaveConnected(ev ConnectionCompleteEvent)   { s.openConnection(ev) }

func (s *Stack) openConnection(ev ConnectionCompleteEvent) {
	conn := NewACLConnection(ev.Handle, s.att.mtu, s.transport.QueuePacket)
	conn.HandleChannel(CIDATT, func(c *ACLConnection, cid uint16, pdu []byte) {
		if resp := s.att.HandleRequest(pdu); resp != nil {
			c.Send(cid, resp)
		}
	})
	s.conns[ev.Handle] = conn
	if s.ConnectHandler != nil {
		s.ConnectHandler(ev.Handle)
	}
}

// OnDisconnect discards the connection's reassembly state.
func (s *Stack) OnDisconnect(ev DisconnectionCompleteEvent) {
	delete(s.conns, ev.Handle)
	if s.DisconnectHandler != nil {
		s.DisconnectHandler(ev.Handle, ev.Reason)
	}
}
