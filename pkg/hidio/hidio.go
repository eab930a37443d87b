// Package hidio implements the HID-IO vendor command surface: a small
// command/response protocol keyboards expose over a raw HID interface
// for host tooling (flashing, terminal access, manufacturing test).
// CommandInterface owns only the command dispatch and the rx/tx chunk
// queues — it has no opinion on the transport those chunks travel
// over (USB, serial, a Unix socket in a simulator). The one transport
// in this package, ProcessTransport, drives a simulator child process
// for integration tests.
package hidio

import (
	"encoding/binary"
	"fmt"
)

// CommandID is the HID-IO command space. Names match the hex ids used
// throughout the protocol's reference implementation and documentation.
type CommandID uint16

const (
	CmdSupportedIDs     CommandID = 0x0000
	CmdInfo             CommandID = 0x0001
	CmdTest             CommandID = 0x0002
	CmdFlashMode        CommandID = 0x0016
	CmdSleepMode        CommandID = 0x001a
	CmdTerminalCmd      CommandID = 0x0031
	CmdTerminalOut      CommandID = 0x0034
	CmdManufacturing    CommandID = 0x0050
	CmdManufacturingRes CommandID = 0x0051
)

// PacketType mirrors the four message kinds HID-IO packets carry.
type PacketType uint8

const (
	PacketData PacketType = iota
	PacketAck
	PacketNak
	PacketSync
)

// Packet is a decoded HID-IO message: an ID, a type, and its payload.
type Packet struct {
	ID   CommandID
	Type PacketType
	Data []byte
}

// InfoProperty is the h0001 sub-command selecting which device fact to
// return.
type InfoProperty uint8

const (
	InfoMajorVersion InfoProperty = iota
	InfoMinorVersion
	InfoPatchVersion
	InfoDeviceName
	InfoDeviceSerialNumber
	InfoDeviceVersion
	InfoDeviceMCU
	InfoFirmwareName
	InfoFirmwareVendor
)

// Version is the firmware's own semantic version, reported over h0001
// independently of the HID-IO protocol version.
type Version struct {
	Major, Minor, Patch uint16
}

// DeviceInfo supplies the device-specific strings h0001 reports. A
// zero value answers every property with an empty string, the same
// graceful-default behavior the protocol's reference trait gives most
// of its callback methods.
type DeviceInfo struct {
	DeviceName         string
	DeviceSerialNumber string
	DeviceVersion      string
	DeviceMCU          string
	FirmwareName       string
	FirmwareVendor     string
}

// ringBuffer is a fixed-capacity FIFO of opaque byte chunks. It never
// grows past capacity — Push reports false instead, the caller's
// signal to apply backpressure.
type ringBuffer struct {
	chunks   [][]byte
	head     int
	count    int
	capacity int
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{chunks: make([][]byte, capacity), capacity: capacity}
}

func (r *ringBuffer) Push(chunk []byte) bool {
	if r.count == r.capacity {
		return false
	}
	tail := (r.head + r.count) % r.capacity
	r.chunks[tail] = chunk
	r.count++
	return true
}

func (r *ringBuffer) Pop() ([]byte, bool) {
	if r.count == 0 {
		return nil, false
	}
	chunk := r.chunks[r.head]
	r.chunks[r.head] = nil
	r.head = (r.head + 1) % r.capacity
	r.count--
	return chunk, true
}

func (r *ringBuffer) Len() int { return r.count }

// CommandInterface decodes and dispatches HID-IO packets. The four
// *Func fields are the device-specific hooks a firmware build
// supplies; a nil FlashModeFunc, SleepModeFunc or ManufacturingFunc
// answers with PacketNak, matching the reference protocol's
// "unsupported" behavior rather than panicking, while a nil
// TerminalInputFunc still answers PacketAck and drops the input.
type CommandInterface struct {
	rx, tx *ringBuffer

	Info    DeviceInfo
	Version Version

	FlashModeFunc     func() error
	SleepModeFunc     func() error
	TerminalInputFunc func(data []byte)
	ManufacturingFunc func(data []byte) ([]byte, error)

	termOut     []byte
	supportedID []CommandID
}

// New creates a CommandInterface with rx/tx queues of the given
// capacity (in chunks, not bytes).
func New(queueCapacity int, info DeviceInfo, version Version) *CommandInterface {
	if queueCapacity <= 0 {
		queueCapacity = 16
	}
	return &CommandInterface{
		rx:      newRingBuffer(queueCapacity),
		tx:      newRingBuffer(queueCapacity),
		Info:    info,
		Version: version,
		supportedID: []CommandID{
			CmdSupportedIDs, CmdInfo, CmdTest, CmdFlashMode, CmdSleepMode,
			CmdTerminalCmd, CmdTerminalOut, CmdManufacturing, CmdManufacturingRes,
		},
	}
}

// PushRx queues a raw chunk received from the transport. It returns an
// error if the rx queue is saturated — the transport should stall
// rather than drop data silently.
func (c *CommandInterface) PushRx(chunk []byte) error {
	if !c.rx.Push(chunk) {
		return fmt.Errorf("hidio: rx queue full")
	}
	return nil
}

// PopTx dequeues the next chunk the transport should send, if any.
func (c *CommandInterface) PopTx() ([]byte, bool) { return c.tx.Pop() }

// ProcessRx dequeues and dispatches up to count queued packets (0 means
// drain the whole queue), pushing each response onto the tx queue.
func (c *CommandInterface) ProcessRx(count int) (int, error) {
	processed := 0
	for count == 0 || processed < count {
		raw, ok := c.rx.Pop()
		if !ok {
			break
		}
		pkt, err := decodePacket(raw)
		if err != nil {
			return processed, err
		}
		resp := c.Dispatch(pkt)
		if !c.tx.Push(encodePacket(resp)) {
			return processed, fmt.Errorf("hidio: tx queue full responding to %04x", pkt.ID)
		}
		processed++
	}
	return processed, nil
}

// Dispatch runs one decoded packet through the command table and
// returns the response packet.
func (c *CommandInterface) Dispatch(pkt Packet) Packet {
	switch pkt.ID {
	case CmdSupportedIDs:
		return c.h0000(pkt)
	case CmdInfo:
		return c.h0001(pkt)
	case CmdTest:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: pkt.Data}
	case CmdFlashMode:
		return c.runHook(pkt, c.FlashModeFunc)
	case CmdSleepMode:
		return c.runHook(pkt, c.SleepModeFunc)
	case CmdTerminalCmd:
		if c.TerminalInputFunc != nil {
			c.TerminalInputFunc(pkt.Data)
		}
		return Packet{ID: pkt.ID, Type: PacketAck}
	case CmdTerminalOut:
		return c.h0034(pkt)
	case CmdManufacturing:
		return c.h0050(pkt)
	case CmdManufacturingRes:
		return Packet{ID: pkt.ID, Type: PacketAck}
	default:
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
}

func (c *CommandInterface) h0000(pkt Packet) Packet {
	data := make([]byte, 0, len(c.supportedID)*2)
	for _, id := range c.supportedID {
		data = append(data, byte(id), byte(id>>8))
	}
	return Packet{ID: pkt.ID, Type: PacketAck, Data: data}
}

func (c *CommandInterface) h0001(pkt Packet) Packet {
	if len(pkt.Data) < 1 {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	switch InfoProperty(pkt.Data[0]) {
	case InfoMajorVersion:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: u16le(c.Version.Major)}
	case InfoMinorVersion:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: u16le(c.Version.Minor)}
	case InfoPatchVersion:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: u16le(c.Version.Patch)}
	case InfoDeviceName:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.DeviceName)}
	case InfoDeviceSerialNumber:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.DeviceSerialNumber)}
	case InfoDeviceVersion:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.DeviceVersion)}
	case InfoDeviceMCU:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.DeviceMCU)}
	case InfoFirmwareName:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.FirmwareName)}
	case InfoFirmwareVendor:
		return Packet{ID: pkt.ID, Type: PacketAck, Data: []byte(c.Info.FirmwareVendor)}
	default:
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
}

func (c *CommandInterface) h0034(pkt Packet) Packet {
	if len(c.termOut) == 0 {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	out := c.termOut
	c.termOut = nil
	return Packet{ID: pkt.ID, Type: PacketAck, Data: out}
}

func (c *CommandInterface) h0050(pkt Packet) Packet {
	if c.ManufacturingFunc == nil {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	data, err := c.ManufacturingFunc(pkt.Data)
	if err != nil {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	return Packet{ID: pkt.ID, Type: PacketAck, Data: data}
}

func (c *CommandInterface) runHook(pkt Packet, hook func() error) Packet {
	if hook == nil {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	if err := hook(); err != nil {
		return Packet{ID: pkt.ID, Type: PacketNak}
	}
	return Packet{ID: pkt.ID, Type: PacketAck}
}

// QueueTerminalOutput appends data to the buffer h0034 drains. Firmware
// calls this as text reaches stdout/stderr inside the keyboard.
func (c *CommandInterface) QueueTerminalOutput(data []byte) {
	c.termOut = append(c.termOut, data...)
}

func u16le(v uint16) []byte { return []byte{byte(v), byte(v >> 8)} }

// encodePacket/decodePacket give packets a wire form of
// [id:u16LE, type:u8, data...] for the ring buffer chunks; anything
// resembling a real transport framing (length prefixes, CRC) lives in
// the transport layer, not here.
func encodePacket(p Packet) []byte {
	buf := make([]byte, 3+len(p.Data))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(p.ID))
	buf[2] = byte(p.Type)
	copy(buf[3:], p.Data)
	return buf
}

func decodePacket(raw []byte) (Packet, error) {
	if len(raw) < 3 {
		return Packet{}, fmt.Errorf("hidio: packet too short (%d bytes)", len(raw))
	}
	return Packet{
		ID:   CommandID(binary.LittleEndian.Uint16(raw[0:2])),
		Type: PacketType(raw[2]),
		Data: raw[3:],
	}, nil
}
