package event

import "math/bits"

// LayerBitState is the persistent state of a single layer: which of the
// three control bits (Shift, Latch, Lock) are currently held. A layer is
// "effective" — actually applied to lookups — when an odd number of bits
// are set, which is exactly the set {Shift, Latch, Lock, Shift|Latch|Lock}.
// Two bits cancel out (e.g. Shift+Latch without Lock reads as inactive),
// matching a user holding shift while a latch is also pending.
type LayerBitState uint8

const (
	LayerBitShift LayerBitState = 1 << iota
	LayerBitLatch
	LayerBitLock
)

// IsSet reports whether bit is present in s.
func (s LayerBitState) IsSet(bit LayerBitState) bool { return s&bit != 0 }

// Add returns s with bit set.
func (s LayerBitState) Add(bit LayerBitState) LayerBitState { return s | bit }

// Remove returns s with bit cleared.
func (s LayerBitState) Remove(bit LayerBitState) LayerBitState { return s &^ bit }

// Toggle returns s with bit flipped.
func (s LayerBitState) Toggle(bit LayerBitState) LayerBitState { return s ^ bit }

// Effective reports whether this layer currently participates in
// lookups: an odd number of Shift/Latch/Lock bits are held.
func (s LayerBitState) Effective() bool {
	return bits.OnesCount8(uint8(s))%2 == 1
}

func (s LayerBitState) String() string {
	switch s {
	case 0:
		return "Off"
	case LayerBitShift:
		return "Shift"
	case LayerBitLatch:
		return "Latch"
	case LayerBitShift | LayerBitLatch:
		return "ShiftLatch"
	case LayerBitLock:
		return "Lock"
	case LayerBitShift | LayerBitLock:
		return "ShiftLock"
	case LayerBitLatch | LayerBitLock:
		return "LatchLock"
	case LayerBitShift | LayerBitLatch | LayerBitLock:
		return "ShiftLatchLock"
	default:
		return "Unknown"
	}
}

// LayerTriggerState packs a LayerBitState together with the Aodo
// activity (activated/maintained/deactivated) that produced it, into
// the single byte TriggerEvent.State carries for KindLayer events: the
// LayerBitState occupies the high bits, Aodo the low 3.
type LayerTriggerState uint8

// LayerTriggerStateFromLayer packs a layer's bit state and the activity
// that changed it into a single trigger state value, using the
// (state << 3 | activity) encoding the runtime's layer events carry.
func LayerTriggerStateFromLayer(layerState LayerBitState, activity Aodo) LayerTriggerState {
	return LayerTriggerState(uint8(layerState)<<3 | uint8(activity))
}

// Layer extracts the packed LayerBitState.
func (l LayerTriggerState) Layer() LayerBitState { return LayerBitState(l >> 3) }

// Activity extracts the packed Aodo.
func (l LayerTriggerState) Activity() Aodo { return Aodo(l & 0x7) }
