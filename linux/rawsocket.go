// Package linux implements the packet transport contract over a Linux
// HCI raw socket (AF_BLUETOOTH/BTPROTO_HCI), the one OS collaborator
// the core stack is written against.
package linux

import (
	"sync"
	"unsafe"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"

	gatt "github.com/IanHarvey/bluepy.device"
)

// pollTimeoutMillis is the fixed poll timeout used to check the stop
// flag between iterations of the event loop.
const pollTimeoutMillis = 1000

// HCI socket-level constants not exposed by golang.org/x/sys/unix.
const (
	solHCI        = 0
	optHCIFilter  = 2
	hciChannelRaw = 0
)

// hciFilter mirrors struct hci_filter: a type-byte bitmask, a two-word
// event-code bitmask, and an opcode match used only for vendor events.
type hciFilter struct {
	typeMask  uint32
	eventMask [2]uint32
	opcode    uint16
}

// Event codes the filter admits: Command Complete, Command Status,
// Disconnection Complete, LE Meta.
const (
	evCommandComplete       = 0x0E
	evCommandStatus         = 0x0F
	evDisconnectionComplete = 0x05
	evLEMeta                = 0x3E
)

func defaultFilter() hciFilter {
	var f hciFilter
	f.typeMask = 1<<gatt.PacketTypeCommand | 1<<gatt.PacketTypeACLData | 1<<gatt.PacketTypeEvent
	for _, ev := range []uint{evCommandComplete, evCommandStatus, evDisconnectionComplete, evLEMeta} {
		f.eventMask[ev>>5] |= 1 << (ev & 31)
	}
	return f
}

func setHCIFilter(fd int, f hciFilter) error {
	_, _, errno := unix.Syscall6(unix.SYS_SETSOCKOPT, uintptr(fd), uintptr(solHCI), uintptr(optHCIFilter),
		uintptr(unsafe.Pointer(&f)), unsafe.Sizeof(f), 0)
	if errno != 0 {
		return errno
	}
	return nil
}

// Socket is a packet transport backed by a Linux HCI raw socket. It
// implements gatt.Transport.
type Socket struct {
	fd      int
	onPkt   func(gatt.HCIPacket)
	log     *logrus.Entry
	wmu     sync.Mutex
	outbox  []gatt.HCIPacket
	stop    chan struct{}
	stopped bool
}

// Open binds a raw HCI socket to devID (-1 selects device 0, hci0)
// and installs the filter the stack needs to receive command
// completion, command status, disconnection, and LE meta events.
// onPacket is invoked synchronously, from within Run's poll loop, for
// every inbound frame.
func Open(devID int, onPacket func(gatt.HCIPacket)) (*Socket, error) {
	fd, err := unix.Socket(unix.AF_BLUETOOTH, unix.SOCK_RAW, unix.BTPROTO_HCI)
	if err != nil {
		return nil, errors.Wrap(err, "rawsocket: can't create socket")
	}
	sa := &unix.SockaddrHCI{Dev: uint16(devID), Channel: hciChannelRaw}
	if devID < 0 {
		sa.Dev = 0
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawsocket: can't bind to hci device")
	}
	if err := setHCIFilter(fd, defaultFilter()); err != nil {
		unix.Close(fd)
		return nil, errors.Wrap(err, "rawsocket: can't install hci filter")
	}
	return &Socket{
		fd:    fd,
		onPkt: onPacket,
		log:   gatt.Logger.WithField("component", "transport"),
		stop:  make(chan struct{}),
	}, nil
}

// QueuePacket appends p to the outbound queue; it is drained on the
// next writable poll iteration.
func (s *Socket) QueuePacket(p gatt.HCIPacket) {
	s.wmu.Lock()
	defer s.wmu.Unlock()
	s.outbox = append(s.outbox, p)
}

// Run polls the socket until Stop is called, delivering inbound frames
// to the callback given to Open and draining the outbound queue on
// every writable iteration. It returns nil on a clean Stop, or a
// wrapped error on an unrecoverable socket failure.
func (s *Socket) Run() error {
	buf := make([]byte, 1024)
	for {
		select {
		case <-s.stop:
			return nil
		default:
		}

		fds := []unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN | unix.POLLOUT}}
		n, err := unix.Poll(fds, pollTimeoutMillis)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return errors.Wrap(err, "rawsocket: poll failed")
		}
		if n == 0 {
			continue
		}

		if fds[0].Revents&unix.POLLIN != 0 {
			if err := s.readOne(buf); err != nil {
				return err
			}
		}
		if fds[0].Revents&unix.POLLOUT != 0 {
			if err := s.drainOutbox(); err != nil {
				return err
			}
		}
	}
}

func (s *Socket) readOne(buf []byte) error {
	n, err := unix.Read(s.fd, buf)
	if err != nil {
		if err == unix.EAGAIN || err == unix.EINTR {
			return nil
		}
		return errors.Wrap(err, "rawsocket: read failed")
	}
	if n == 0 {
		return nil
	}
	p, err := gatt.DecodePacket(buf[:n])
	if err != nil {
		s.log.WithError(err).Warn("dropping malformed frame")
		return nil
	}
	s.onPkt(p)
	return nil
}

func (s *Socket) drainOutbox() error {
	s.wmu.Lock()
	pending := s.outbox
	s.outbox = nil
	s.wmu.Unlock()

	for _, p := range pending {
		if _, err := unix.Write(s.fd, p.Encode()); err != nil {
			return errors.Wrap(err, "rawsocket: write failed")
		}
	}
	return nil
}

// Stop signals Run to exit at its next iteration and closes the
// underlying socket.
func (s *Socket) Stop() {
	if s.stopped {
		return
	}
	s.stopped = true
	close(s.stop)
	unix.Close(s.fd)
}
