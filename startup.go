package gatt

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// Role selects which of the two preset startup sequences a
// StartupSequence drives (§4.2).
type Role int

const (
	RolePeripheral Role = iota
	RoleCentral
)

// minimumControllerVersion is the lowest HCI version this stack will
// drive (6 == Bluetooth 4.0, the first version with LE support).
const minimumControllerVersion = 6

// LE scan type and enable constants used by the central sequence.
const (
	leScanTypeActive = 0x01
	leScanEnable     = 0x01
)

// StartupParams configures the one-shot command sequence a
// StartupSequence runs to bring the controller into the requested role.
type StartupParams struct {
	Role                   Role
	AdvertisingIntervalMin uint16
	AdvertisingIntervalMax uint16
	AdvertisingChannelMap  byte
	AdvertisingData        *AdvertisingData
	ScanResponseData       *AdvertisingData
	ScanInterval           uint16
	ScanWindow             uint16
}

// DefaultStartupParams returns the conservative defaults the teacher's
// own device constructors use for advertising interval and channel map.
func DefaultStartupParams(role Role) StartupParams {
	return StartupParams{
		Role:                   role,
		AdvertisingIntervalMin: 0x0800,
		AdvertisingIntervalMax: 0x0800,
		AdvertisingChannelMap:  0x07,
		ScanInterval:           0x0010,
		ScanWindow:             0x0010,
	}
}

// StartupSequence drives HostController through a fixed list of
// commands, one at a time, advancing to the next only once the
// current one completes with status 0. Any non-zero status aborts the
// sequence and reports the failure through onError; a failed
// ReadLocalVersion check (controller too old) aborts the same way.
type StartupSequence struct {
	hc         *HostController
	params     StartupParams
	steps      []func()
	idx        int
	onError    func(error)
	onComplete func()
	log        *logrus.Entry
}

// NewStartupSequence builds (but does not start) a sequence for the
// requested role. onComplete runs once the final command in the
// sequence succeeds; onError runs on the first failure, and no
// further commands are queued afterwards.
func NewStartupSequence(hc *HostController, params StartupParams, onComplete func(), onError func(error)) *StartupSequence {
	s := &StartupSequence{
		hc:         hc,
		params:     params,
		onComplete: onComplete,
		onError:    onError,
		log:        componentLog("hci"),
	}
	s.steps = s.buildSteps()
	return s
}

// Start queues the first command in the sequence.
func (s *StartupSequence) Start() {
	s.runStep(0)
}

func (s *StartupSequence) runStep(i int) {
	s.idx = i
	if i >= len(s.steps) {
		if s.onComplete != nil {
			s.onComplete()
		}
		return
	}
	s.steps[i]()
}

func (s *StartupSequence) advance() {
	s.runStep(s.idx + 1)
}

func (s *StartupSequence) fail(err error) {
	s.log.WithError(err).Error("startup sequence aborted")
	if s.onError != nil {
		s.onError(err)
	}
}

// queueSimple queues cmd and, on success, advances to the next step;
// any non-zero status aborts the sequence.
func (s *StartupSequence) queueSimple(opcode Opcode, params []byte) {
	err := s.hc.Queue(&HCICommand{
		Opcode: opcode,
		Params: params,
		OnComplete: func(status byte, _ []byte) {
			if status != 0 {
				s.fail(errProgramming(fmt.Sprintf("%s failed with status %#x", opcode, status)))
				return
			}
			s.advance()
		},
	})
	if err != nil {
		s.fail(err)
	}
}

func (s *StartupSequence) buildSteps() []func() {
	common := []func(){
		func() { s.queueSimple(OpReset, nil) },
		func() { s.queueSimple(OpSetEventMask, encodeEventMask(defaultEventMask)) },
		func() { s.queueReadLocalVersion() },
		func() { s.queueSimple(OpLESetEventMask, encodeEventMask(leEventMaskAdvertisingReport)) },
		func() { s.queueSimple(OpWriteLEHostSupported, []byte{0x01, 0x00}) },
	}
	switch s.params.Role {
	case RolePeripheral:
		return append(common,
			func() { s.queueAdvertisingParameters() },
			func() { s.queueAdvertisingData() },
			func() { s.queueScanResponseData() },
			func() { s.queueSimple(OpLESetAdvertiseEnable, []byte{0x01}) },
		)
	default:
		return append(common,
			func() { s.queueScanParameters() },
			func() { s.queueSimple(OpLESetScanEnable, []byte{leScanEnable, 0x00}) },
		)
	}
}

func (s *StartupSequence) queueReadLocalVersion() {
	err := s.hc.Queue(&HCICommand{
		Opcode: OpReadLocalVersion,
		OnComplete: func(status byte, ret []byte) {
			if status != 0 {
				s.fail(errProgramming("Read Local Version Information failed"))
				return
			}
			v, ok := parseReadLocalVersionReturn(ret)
			if !ok {
				s.fail(errMalformed("hci: truncated Read Local Version Information return parameters"))
				return
			}
			if v.HCIVersion < minimumControllerVersion {
				s.fail(errProgramming("controller version too old for LE"))
				return
			}
			s.advance()
		},
	})
	if err != nil {
		s.fail(err)
	}
}

func (s *StartupSequence) queueAdvertisingParameters() {
	p := s.params
	params := make([]byte, 15)
	params[0] = byte(p.AdvertisingIntervalMin)
	params[1] = byte(p.AdvertisingIntervalMin >> 8)
	params[2] = byte(p.AdvertisingIntervalMax)
	params[3] = byte(p.AdvertisingIntervalMax >> 8)
	// advertisingType=0 (ADV_IND), ownAddressType=0, directAddressType=0,
	// directAddress left zero (unused for undirected advertising).
	params[13] = p.AdvertisingChannelMap
	// advertisingFilterPolicy=0 (allow any scan/connect request).
	s.queueSimple(OpLESetAdvertisingParameters, params)
}

func (s *StartupSequence) queueAdvertisingData() {
	ad := s.params.AdvertisingData
	if ad == nil {
		ad = NewAdvertisingData()
	}
	s.queueSimple(OpLESetAdvertisingData, lengthPrefixedAD(ad))
}

func (s *StartupSequence) queueScanResponseData() {
	ad := s.params.ScanResponseData
	if ad == nil {
		ad = NewAdvertisingData()
	}
	s.queueSimple(OpLESetScanResponseData, lengthPrefixedAD(ad))
}

func (s *StartupSequence) queueScanParameters() {
	p := s.params
	params := make([]byte, 7)
	params[0] = leScanTypeActive
	params[1] = byte(p.ScanInterval)
	params[2] = byte(p.ScanInterval >> 8)
	params[3] = byte(p.ScanWindow)
	params[4] = byte(p.ScanWindow >> 8)
	// ownAddressType=0, scanningFilterPolicy=0.
	s.queueSimple(OpLESetScanParameters, params)
}

// lengthPrefixedAD encodes an AdvertisingData as the HCI command shape
// it must take on the wire: a length byte followed by a fixed 31-byte,
// zero-padded buffer (§4.2, §6).
func lengthPrefixedAD(ad *AdvertisingData) []byte {
	b := ad.Bytes()
	out := make([]byte, 1+MaxAdvertisingDataLength)
	out[0] = byte(len(b))
	copy(out[1:], b)
	return out
}

// defaultEventMask enables the standard connection/disconnection
// events; bit assignments per Core spec Vol 2, Part E, 7.3.1.
const defaultEventMask = uint64(0x00001FFFFFFFFFFF)

func encodeEventMask(mask uint64) []byte {
	b := make([]byte, 8)
	for i := 0; i < 8; i++ {
		b[i] = byte(mask >> (8 * i))
	}
	return b
}
