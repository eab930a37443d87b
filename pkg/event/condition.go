package event

import "encoding/binary"

// ConditionSize is the fixed wire size of a TriggerCondition, in bytes.
// Every variant is padded to this width so offset arithmetic over
// TRIGGER_GUIDES never needs to branch on Kind.
const ConditionSize = 6

// TriggerCondition is a compile-time token baked into TRIGGER_GUIDES by
// pkg/compiler: "this combo needs a Press on scancode 12 no earlier than
// tick 40", for instance. It mirrors TriggerEvent's shape but trades
// LastState for a LoopConditionIndex (a lookup into the separate
// LOOP_CONDITION_LOOKUP table of scheduling deltas) and, for the analog
// kinds, a signed comparison value in the same slot.
type TriggerCondition struct {
	Kind Kind

	// State holds the Phro/Aodo/Dro/LayerTriggerState raw value for
	// switch-like kinds, or a rotation position for KindRotation.
	State uint8

	// Index identifies the control this condition watches.
	Index uint16

	// LoopConditionIndex indexes LOOP_CONDITION_LOOKUP for non-analog
	// kinds. Analog kinds reuse these two bytes as Val instead.
	LoopConditionIndex uint16
}

// Val returns the two LoopConditionIndex bytes reinterpreted as a
// signed analog comparison threshold. Only meaningful for the four
// Analog* kinds.
func (c TriggerCondition) Val() int16 { return int16(c.LoopConditionIndex) }

// WithVal returns a copy of c with its analog threshold set.
func (c TriggerCondition) WithVal(v int16) TriggerCondition {
	c.LoopConditionIndex = uint16(v)
	return c
}

// Encode writes the 6-byte wire form of c into dst, which must have
// length at least ConditionSize.
func (c TriggerCondition) Encode(dst []byte) {
	_ = dst[ConditionSize-1]
	dst[0] = byte(c.Kind)
	dst[1] = c.State
	binary.LittleEndian.PutUint16(dst[2:4], c.Index)
	binary.LittleEndian.PutUint16(dst[4:6], c.LoopConditionIndex)
}

// Bytes returns the 6-byte encoding of c as a new slice.
func (c TriggerCondition) Bytes() []byte {
	buf := make([]byte, ConditionSize)
	c.Encode(buf)
	return buf
}

// DecodeCondition reads a TriggerCondition from the front of src, which
// must have length at least ConditionSize.
func DecodeCondition(src []byte) TriggerCondition {
	_ = src[ConditionSize-1]
	return TriggerCondition{
		Kind:               Kind(src[0]),
		State:              src[1],
		Index:              binary.LittleEndian.Uint16(src[2:4]),
		LoopConditionIndex: binary.LittleEndian.Uint16(src[4:6]),
	}
}

// Evaluate votes on whether c is satisfied by ev, having been scheduled
// condTime ticks in. loopConditionLookup resolves LoopConditionIndex to
// the actual tick delta for non-analog kinds.
func (c TriggerCondition) Evaluate(ev TriggerEvent, loopConditionLookup []uint32) Vote {
	if c.Kind != ev.Kind {
		return VoteInsufficient
	}
	if c.Index != ev.Index {
		return VoteInsufficient
	}

	switch c.Kind {
	case KindSwitch:
		condTime := conditionTime(c.LoopConditionIndex, loopConditionLookup)
		return Phro(c.State).Compare(condTime, Phro(ev.State), ev.LastState)
	case KindHidLed, KindSleep, KindResume, KindInactive, KindActive:
		condTime := conditionTime(c.LoopConditionIndex, loopConditionLookup)
		return Aodo(c.State).Compare(condTime, Aodo(ev.State), ev.LastState)
	case KindLayer:
		want, got := LayerTriggerState(c.State), LayerTriggerState(ev.State)
		if want.Layer() != got.Layer() {
			return VoteInsufficient
		}
		condTime := conditionTime(c.LoopConditionIndex, loopConditionLookup)
		return want.Activity().Compare(condTime, got.Activity(), ev.LastState)
	case KindAnimation:
		condTime := conditionTime(c.LoopConditionIndex, loopConditionLookup)
		return Dro(c.State).Compare(condTime, Dro(ev.State), ev.LastState)
	case KindAnalogDistance, KindAnalogVelocity, KindAnalogAcceleration, KindAnalogJerk:
		return compareAnalog(c.Val(), ev.Val)
	case KindRotation:
		if int8(c.State) == int8(ev.State) {
			return VotePositive
		}
		return VoteInsufficient
	case KindNone:
		return VoteInsufficient
	default:
		return VoteInsufficient
	}
}

// compareAnalog votes Positive once the live sample has reached or
// passed the condition's threshold in the threshold's own sign
// direction (a positive threshold requires >=, a negative one <=).
func compareAnalog(threshold, sample int16) Vote {
	switch {
	case threshold >= 0 && sample >= threshold:
		return VotePositive
	case threshold < 0 && sample <= threshold:
		return VotePositive
	default:
		return VoteInsufficient
	}
}

func conditionTime(idx uint16, loopConditionLookup []uint32) uint32 {
	if int(idx) < len(loopConditionLookup) {
		return loopConditionLookup[idx]
	}
	return 0
}
