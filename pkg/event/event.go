// Package event defines the wire-level vocabulary of the KLL runtime: the
// trigger side (switches, analog sensors, layers, animations) and the
// result side (capabilities a layout can invoke). Every type here is a
// plain value — no allocation, no pointers into shared state — so the
// runtime can copy them freely while walking the compiled byte tables.
package event

// Kind is the discriminant shared by TriggerEvent, TriggerCondition,
// Capability and CapabilityRun. The numeric values are part of the
// compiled table format (see pkg/compiler) and must never be reordered.
type Kind uint8

const (
	KindNone Kind = iota
	KindSwitch
	KindHidLed
	KindAnalogDistance
	KindAnalogVelocity
	KindAnalogAcceleration
	KindAnalogJerk
	KindLayer
	KindAnimation
	KindSleep
	KindResume
	KindInactive
	KindActive
	KindRotation
)

func (k Kind) String() string {
	switch k {
	case KindNone:
		return "None"
	case KindSwitch:
		return "Switch"
	case KindHidLed:
		return "HidLed"
	case KindAnalogDistance:
		return "AnalogDistance"
	case KindAnalogVelocity:
		return "AnalogVelocity"
	case KindAnalogAcceleration:
		return "AnalogAcceleration"
	case KindAnalogJerk:
		return "AnalogJerk"
	case KindLayer:
		return "Layer"
	case KindAnimation:
		return "Animation"
	case KindSleep:
		return "Sleep"
	case KindResume:
		return "Resume"
	case KindInactive:
		return "Inactive"
	case KindActive:
		return "Active"
	case KindRotation:
		return "Rotation"
	default:
		return "Unknown"
	}
}

// Vote is the outcome of comparing a TriggerCondition against a live
// TriggerEvent. It drives combo advancement in pkg/runtime and never
// carries an error — a condition that cannot be evaluated votes
// Insufficient, it does not panic.
type Vote uint8

const (
	// VotePositive means the condition is satisfied for this event.
	VotePositive Vote = iota
	// VoteNegative means the condition failed outright and the combo
	// the condition belongs to can no longer complete this cycle.
	VoteNegative
	// VoteInsufficient means the event doesn't move the condition
	// forward or backward; keep waiting.
	VoteInsufficient
	// VoteOffState means the condition concerns the resting (Off)
	// state of a control and must be queued for a dedicated
	// off-state pass rather than voted on directly.
	VoteOffState
)

// TriggerEvent is a live occurrence fed into the runtime: a key changed
// Phro state, an analog sensor produced a new distance sample, a layer
// toggled, and so on. Unlike TriggerCondition and Capability, it has no
// fixed wire size — it never leaves the process.
type TriggerEvent struct {
	Kind Kind

	// State carries the Phro/Aodo/Dro raw value for switch-like kinds,
	// a packed LayerTriggerState for KindLayer, or doubles as a signed
	// rotation position.
	State uint8

	// Index identifies which control produced the event (scancode,
	// sensor id, layer number, animation id, ...).
	Index uint16

	// LastState counts the scan loops during which State has not
	// changed (0 on the loop it changed). TriggerCondition.Evaluate
	// compares it against the condition's loop-condition threshold.
	LastState uint32

	// Val carries the analog sample for Analog* kinds.
	Val int16
}

// Phro returns State reinterpreted as a momentary-switch phase. Callers
// must only do this for KindSwitch events.
func (e TriggerEvent) Phro() Phro { return Phro(e.State) }

// Aodo returns State reinterpreted as a maintained-switch phase.
func (e TriggerEvent) Aodo() Aodo { return Aodo(e.State) }

// LayerTriggerStateValue returns State reinterpreted as a packed layer
// transition (see LayerTriggerStateFromLayer).
func (e TriggerEvent) LayerTriggerStateValue() LayerTriggerState {
	return LayerTriggerState(e.State)
}

// NewLayerEvent builds the TriggerEvent emitted by LayerState.SetLayer.
func NewLayerEvent(state LayerTriggerState, layer uint16, lastState uint32) TriggerEvent {
	return TriggerEvent{Kind: KindLayer, State: uint8(state), Index: layer, LastState: lastState}
}

// CapabilityState describes which slice of a capability combo's
// lifetime a given Capability entry should fire on.
type CapabilityState uint8

const (
	CapabilityStateNone CapabilityState = iota
	CapabilityStateInitial
	CapabilityStateLast
	CapabilityStateAny
	CapabilityStatePassthrough
)

// CapabilityEvent is the decision a CapabilityState makes once it has
// seen the TriggerEvent that finalized the combo.
type CapabilityEvent uint8

const (
	CapabilityEventNone CapabilityEvent = iota
	CapabilityEventInitial
	CapabilityEventLast
	CapabilityEventAny
	CapabilityEventPassthrough
)

// Event resolves a CapabilityState against the triggering event. Only
// Passthrough carries the event itself forward (the capability acts
// differently depending on Press vs. Release, say); the others reduce
// to a plain request to run "once, now".
func (s CapabilityState) Event(ev TriggerEvent) (CapabilityEvent, TriggerEvent) {
	switch s {
	case CapabilityStateNone:
		return CapabilityEventNone, TriggerEvent{}
	case CapabilityStateInitial:
		return CapabilityEventInitial, TriggerEvent{}
	case CapabilityStateLast:
		return CapabilityEventLast, TriggerEvent{}
	case CapabilityStateAny:
		return CapabilityEventAny, TriggerEvent{}
	case CapabilityStatePassthrough:
		return CapabilityEventPassthrough, ev
	default:
		return CapabilityEventNone, TriggerEvent{}
	}
}
