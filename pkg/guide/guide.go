// Package guide decodes the combo sequences packed into TRIGGER_GUIDES
// and RESULT_GUIDES by pkg/compiler. Both tables share one shape: a
// length-prefixed run of fixed-size elements (TriggerCondition or
// Capability) followed immediately, byte for byte, by the next combo in
// the same sequence, terminated by a zero-length byte. No table ever
// needs parsing from the front — every consumer already holds an
// offset pointing at a length byte, handed out by pkg/layout.
package guide

import (
	"github.com/kiibohd/kiibohd-core/pkg/event"
)

// TriggerCombo decodes the combo of TriggerConditions starting at
// offset in table. ok is false if the combo is empty (a terminating
// zero-length byte), meaning the sequence ends here.
func TriggerCombo(table []byte, offset int) (conds []event.TriggerCondition, ok bool) {
	count := int(table[offset])
	if count == 0 {
		return nil, false
	}
	conds = make([]event.TriggerCondition, count)
	pos := offset + 1
	for i := 0; i < count; i++ {
		conds[i] = event.DecodeCondition(table[pos : pos+event.ConditionSize])
		pos += event.ConditionSize
	}
	return conds, true
}

// ResultCombo decodes the combo of Capabilities starting at offset.
func ResultCombo(table []byte, offset int) (caps []event.Capability, ok bool) {
	count := int(table[offset])
	if count == 0 {
		return nil, false
	}
	caps = make([]event.Capability, count)
	pos := offset + 1
	for i := 0; i < count; i++ {
		caps[i] = event.DecodeCapability(table[pos : pos+event.CapabilitySize])
		pos += event.CapabilitySize
	}
	return caps, true
}

// NextTriggerCombo computes the offset of the combo following the one
// at offset (which has count elements), and reports whether a combo
// actually exists there (a nonzero length byte).
func NextTriggerCombo(table []byte, offset, count int) (next int, ok bool) {
	return nextCombo(table, offset, count, event.ConditionSize)
}

// NextResultCombo mirrors NextTriggerCombo for RESULT_GUIDES.
func NextResultCombo(table []byte, offset, count int) (next int, ok bool) {
	return nextCombo(table, offset, count, event.CapabilitySize)
}

func nextCombo(table []byte, offset, count, elemSize int) (int, bool) {
	next := offset + 1 + count*elemSize
	if next >= len(table) || table[next] == 0 {
		return next, false
	}
	return next, true
}

// EncodeTriggerCombo appends a length-prefixed combo to dst and returns
// the extended slice. Used by pkg/compiler when assembling TRIGGER_GUIDES.
func EncodeTriggerCombo(dst []byte, conds []event.TriggerCondition) []byte {
	dst = append(dst, byte(len(conds)))
	for _, c := range conds {
		dst = append(dst, c.Bytes()...)
	}
	return dst
}

// EncodeResultCombo appends a length-prefixed combo to dst and returns
// the extended slice.
func EncodeResultCombo(dst []byte, caps []event.Capability) []byte {
	dst = append(dst, byte(len(caps)))
	for _, c := range caps {
		dst = append(dst, c.Bytes()...)
	}
	return dst
}
