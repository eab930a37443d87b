package compiler

import (
	"math/rand/v2"

	"github.com/kiibohd/kiibohd-core/pkg/event"
)

// FuzzScript generates a pseudo-random sequence of Press/Release events
// (each scancode alternates between the two) across numScancodes
// scancodes, for exercising a compiled layout with `kllc simulate` or
// `kllc bench` without hand-authoring a script.
// The PCG seeding mirrors pkg/stoke's MCMC chain seeding: deterministic
// given seed, so a failing run can be reproduced exactly.
func FuzzScript(seed uint64, numScancodes int, length int) []event.TriggerEvent {
	if numScancodes <= 0 {
		numScancodes = 1
	}
	rng := rand.New(rand.NewPCG(seed, seed^0xDEADBEEF))

	events := make([]event.TriggerEvent, 0, length)
	down := make(map[uint16]bool, numScancodes)

	for len(events) < length {
		index := uint16(rng.IntN(numScancodes))
		if down[index] {
			events = append(events, event.TriggerEvent{
				Kind:  event.KindSwitch,
				State: uint8(event.PhroRelease),
				Index: index,
			})
			down[index] = false
		} else {
			events = append(events, event.TriggerEvent{
				Kind:  event.KindSwitch,
				State: uint8(event.PhroPress),
				Index: index,
			})
			down[index] = true
		}
	}
	return events
}
