package event

import "encoding/binary"

// CapKind is the discriminant for Capability and CapabilityRun. Order
// matters: it is part of the compiled table format and is pinned, not
// renumberable.
type CapKind uint8

const (
	CapNoOp CapKind = iota
	CapRotate
	CapLayerClear
	CapLayerState
	CapLayerRotate
	CapHidProtocol
	CapHidKeyboard
	CapHidKeyboardState
	CapHidConsumerControl
	CapHidSystemControl
	CapMcuFlashMode
	CapPixelAnimationControl
	CapPixelAnimationIndex
	CapPixelFadeControl
	CapPixelFadeLayer
	CapPixelFadeSet
	CapPixelGammaControl
	CapPixelLedControl
	CapPixelTest
	CapHidioOpenURL
	CapHidioUnicodeString
	CapHidioUnicodeState
)

func (k CapKind) String() string {
	names := [...]string{
		"NoOp", "Rotate", "LayerClear", "LayerState", "LayerRotate",
		"HidProtocol", "HidKeyboard", "HidKeyboardState", "HidConsumerControl",
		"HidSystemControl", "McuFlashMode", "PixelAnimationControl",
		"PixelAnimationIndex", "PixelFadeControl", "PixelFadeLayer", "PixelFadeSet",
		"PixelGammaControl", "PixelLedControl", "PixelTest", "HidioOpenUrl",
		"HidioUnicodeString", "HidioUnicodeState",
	}
	if int(k) < len(names) {
		return names[k]
	}
	return "Unknown"
}

// CapabilitySize is the fixed wire size of a Capability, in bytes.
const CapabilitySize = 8

// Capability is a compile-time token baked into RESULT_GUIDES: "run
// this capability, with these four payload bytes, once the condition
// state described by State is reached". The payload interpretation
// depends on Kind; see Payload* accessors below.
type Capability struct {
	Kind               CapKind
	State              CapabilityState
	LoopConditionIndex uint16
	Payload            [4]byte
}

// Encode writes the 8-byte wire form of c into dst.
func (c Capability) Encode(dst []byte) {
	_ = dst[CapabilitySize-1]
	dst[0] = byte(c.Kind)
	dst[1] = byte(c.State)
	binary.LittleEndian.PutUint16(dst[2:4], c.LoopConditionIndex)
	copy(dst[4:8], c.Payload[:])
}

// Bytes returns the 8-byte encoding of c as a new slice.
func (c Capability) Bytes() []byte {
	buf := make([]byte, CapabilitySize)
	c.Encode(buf)
	return buf
}

// DecodeCapability reads a Capability from the front of src.
func DecodeCapability(src []byte) Capability {
	_ = src[CapabilitySize-1]
	var c Capability
	c.Kind = CapKind(src[0])
	c.State = CapabilityState(src[1])
	c.LoopConditionIndex = binary.LittleEndian.Uint16(src[2:4])
	copy(c.Payload[:], src[4:8])
	return c
}

// PayloadByte returns payload byte i, for capabilities whose first
// field is a single byte (keycode, layer number, mode, ...).
func (c Capability) PayloadByte(i int) byte { return c.Payload[i] }

// PayloadU16 returns two payload bytes at offset i as little-endian.
func (c Capability) PayloadU16(i int) uint16 {
	return binary.LittleEndian.Uint16(c.Payload[i : i+2])
}

// PayloadRune returns the full 4-byte payload as a Unicode code point,
// used by CapHidioUnicodeState.
func (c Capability) PayloadRune() rune {
	return rune(binary.LittleEndian.Uint32(c.Payload[:]))
}

// NewCapability builds a Capability whose payload starts with b0,
// followed by any rest bytes, zero-filled to four bytes; a lone b0 is
// the common case for keycodes, layer numbers and mode switches.
func NewCapability(kind CapKind, state CapabilityState, loopConditionIndex uint16, b0 byte, rest ...byte) Capability {
	var payload [4]byte
	payload[0] = b0
	copy(payload[1:], rest)
	return Capability{Kind: kind, State: state, LoopConditionIndex: loopConditionIndex, Payload: payload}
}

// CapabilityRun is the live instantiation of a Capability once its
// combo's result guide has fired: the payload plus whatever event
// context a Passthrough capability needs to act correctly (e.g. a HID
// keyboard report needs to know Press vs. Release).
type CapabilityRun struct {
	Kind    CapKind
	Event   CapabilityEvent
	Payload [4]byte
	Trigger TriggerEvent // only meaningful when Event == CapabilityEventPassthrough
}

// Generate evaluates a Capability against the event that finalized its
// combo, producing the CapabilityRun the runtime hands back to the
// caller for dispatch (HID report, layer change, LED update, ...).
func (c Capability) Generate(trigger TriggerEvent) CapabilityRun {
	capEvent, passthroughEvent := c.State.Event(trigger)
	return CapabilityRun{
		Kind:    c.Kind,
		Event:   capEvent,
		Payload: c.Payload,
		Trigger: passthroughEvent,
	}
}
