package runtime

import (
	"encoding/binary"
	"testing"

	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/guide"
	"github.com/kiibohd/kiibohd-core/pkg/layout"
)

// buildLayout assembles a tiny two-layer layout by hand, bypassing
// pkg/compiler: layer 0 maps scancode 1 to a single-capability combo
// emitted on Press; layer 1 maps scancode 1 to a different capability
// (simulating a Fn-layer remap of the same key).
func buildLayout(t *testing.T) *layout.LayerLookup {
	t.Helper()

	var triggerGuides []byte
	baseTriggerOffset := len(triggerGuides)
	triggerGuides = guide.EncodeTriggerCombo(triggerGuides, []event.TriggerCondition{
		{Kind: event.KindSwitch, State: uint8(event.PhroPress), Index: 1},
	})
	triggerGuides = append(triggerGuides, 0)
	fnTriggerOffset := len(triggerGuides)
	triggerGuides = guide.EncodeTriggerCombo(triggerGuides, []event.TriggerCondition{
		{Kind: event.KindSwitch, State: uint8(event.PhroPress), Index: 1},
	})
	triggerGuides = append(triggerGuides, 0)

	var resultGuides []byte
	baseResultOffset := len(resultGuides)
	resultGuides = guide.EncodeResultCombo(resultGuides, []event.Capability{
		event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, 0x04), // 'a'
	})
	resultGuides = append(resultGuides, 0)
	fnResultOffset := len(resultGuides)
	resultGuides = guide.EncodeResultCombo(resultGuides, []event.Capability{
		event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, 0x3A), // F1
	})
	resultGuides = append(resultGuides, 0)

	mapping := make([]byte, 8)
	binary.LittleEndian.PutUint16(mapping[0:2], uint16(baseTriggerOffset))
	binary.LittleEndian.PutUint16(mapping[2:4], uint16(baseResultOffset))
	binary.LittleEndian.PutUint16(mapping[4:6], uint16(fnTriggerOffset))
	binary.LittleEndian.PutUint16(mapping[6:8], uint16(fnResultOffset))

	entry := func(layer uint8, index uint16, triggerID uint16) []byte {
		var b []byte
		b = append(b, layer, 1)
		idx := make([]byte, 2)
		binary.LittleEndian.PutUint16(idx, index)
		b = append(b, idx...)
		b = append(b, 1)
		id := make([]byte, 2)
		binary.LittleEndian.PutUint16(id, triggerID)
		return append(b, id...)
	}

	var raw []byte
	raw = append(raw, entry(0, 1, 0)...)
	raw = append(raw, entry(1, 1, 1)...)

	ll, err := layout.New(raw, triggerGuides, resultGuides, mapping)
	if err != nil {
		t.Fatalf("layout.New() error = %v", err)
	}
	return ll
}

func press(index uint16) event.TriggerEvent {
	return event.TriggerEvent{Kind: event.KindSwitch, State: uint8(event.PhroPress), Index: index}
}

func TestBaseLayerPressEmitsCapability(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() error = %v", err)
	}
	runs := ls.FinalizeTriggers()
	if len(runs) != 1 {
		t.Fatalf("FinalizeTriggers() = %v, want 1 run", runs)
	}
	if runs[0].Payload[0] != 0x04 {
		t.Errorf("Payload[0] = 0x%02X, want 0x04", runs[0].Payload[0])
	}
}

func TestLayerShiftChangesResolution(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	if _, err := ls.SetLayer(1, event.LayerBitShift); err != nil {
		t.Fatalf("SetLayer() error = %v", err)
	}

	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() error = %v", err)
	}
	runs := ls.FinalizeTriggers()
	if len(runs) != 1 {
		t.Fatalf("FinalizeTriggers() = %v, want 1 run", runs)
	}
	if runs[0].Payload[0] != 0x3A {
		t.Errorf("Payload[0] = 0x%02X, want 0x3A (F1, from fn layer)", runs[0].Payload[0])
	}
}

func TestSetLayerZeroIsInvalid(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{}, ll, []uint32{0})
	if _, err := ls.SetLayer(0, event.LayerBitShift); err != ErrInvalidLayer {
		t.Errorf("SetLayer(0, ...) error = %v, want ErrInvalidLayer", err)
	}
}

func TestSetLayerTogglesOffAndRemovesFromStack(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	if _, err := ls.SetLayer(1, event.LayerBitShift); err != nil {
		t.Fatalf("SetLayer() error = %v", err)
	}
	if len(ls.layerStack) != 1 {
		t.Fatalf("layerStack = %v, want 1 entry", ls.layerStack)
	}

	ev, err := ls.SetLayer(1, event.LayerBitShift)
	if err != nil {
		t.Fatalf("SetLayer() error = %v", err)
	}
	if len(ls.layerStack) != 0 {
		t.Fatalf("layerStack after toggle off = %v, want empty", ls.layerStack)
	}
	if ev.Kind != event.KindLayer {
		t.Errorf("event.Kind = %v, want KindLayer", ev.Kind)
	}
}

func TestDoubleTapReusesTriggerPosAfterFinalize(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	for i := 0; i < 2; i++ {
		if err := ls.ProcessTrigger(press(1)); err != nil {
			t.Fatalf("ProcessTrigger() iter %d error = %v", i, err)
		}
		runs := ls.FinalizeTriggers()
		if len(runs) != 1 {
			t.Fatalf("iter %d: FinalizeTriggers() = %v, want 1 run", i, runs)
		}
		ls.IncrementTime()
	}
}

// buildOffStateLayout builds a one-combo layout whose only condition
// watches scancode 1's resting (Off) state — the kind of binding a KLL
// "not pressed" guard compiles to.
func buildOffStateLayout(t *testing.T) *layout.LayerLookup {
	t.Helper()

	var triggerGuides []byte
	triggerGuides = guide.EncodeTriggerCombo(triggerGuides, []event.TriggerCondition{
		{Kind: event.KindSwitch, State: uint8(event.PhroOff), Index: 1},
	})
	triggerGuides = append(triggerGuides, 0)

	var resultGuides []byte
	resultGuides = guide.EncodeResultCombo(resultGuides, []event.Capability{
		event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, 0x04),
	})
	resultGuides = append(resultGuides, 0)

	mapping := make([]byte, 4)
	binary.LittleEndian.PutUint16(mapping[0:2], 0)
	binary.LittleEndian.PutUint16(mapping[2:4], 0)

	var raw []byte
	raw = append(raw, 0, 1, 1, 0, 1, 0, 0)

	ll, err := layout.New(raw, triggerGuides, resultGuides, mapping)
	if err != nil {
		t.Fatalf("layout.New() error = %v", err)
	}
	return ll
}

func TestOffStateLookupIsNecessaryToFinalize(t *testing.T) {
	ll := buildOffStateLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	// A live Press mismatches the Off-state condition and queues it for
	// ProcessOffStateLookups instead of voting Negative outright.
	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() error = %v", err)
	}
	if runs := ls.FinalizeTriggers(); len(runs) != 0 {
		t.Fatalf("FinalizeTriggers() without ProcessOffStateLookups = %v, want no runs", runs)
	}
}

func TestProcessOffStateLookupsResolvesRestingState(t *testing.T) {
	ll := buildOffStateLayout(t)
	ls := New(Config{}, ll, []uint32{0})

	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() error = %v", err)
	}

	resolve := func(kind event.Kind, index uint16) event.TriggerEvent {
		return event.TriggerEvent{Kind: kind, State: uint8(event.PhroOff), Index: index}
	}
	if err := ls.ProcessOffStateLookups(resolve); err != nil {
		t.Fatalf("ProcessOffStateLookups() error = %v", err)
	}

	runs := ls.FinalizeTriggers()
	if len(runs) != 1 {
		t.Fatalf("FinalizeTriggers() after ProcessOffStateLookups = %v, want 1 run", runs)
	}
	if runs[0].Payload[0] != 0x04 {
		t.Errorf("Payload[0] = 0x%02X, want 0x04", runs[0].Payload[0])
	}
}

func TestLookupStateFullReturnsError(t *testing.T) {
	ll := buildLayout(t)
	ls := New(Config{MaxLookupStates: 1}, ll, []uint32{0})

	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() first pair error = %v", err)
	}
	if _, err := ls.SetLayer(1, event.LayerBitShift); err != nil {
		t.Fatalf("SetLayer() error = %v", err)
	}
	// With the base-layer pair from the first Press still tracked, a
	// second distinct pair needs a new LookupState slot and should be
	// rejected once MaxLookupStates is saturated.
	if err := ls.ProcessTrigger(press(1)); err != ErrLookupStateFull {
		t.Errorf("ProcessTrigger() second pair error = %v, want ErrLookupStateFull", err)
	}
}

func TestDelayedCapabilityWaitsForLoopCondition(t *testing.T) {
	var triggerGuides []byte
	triggerGuides = guide.EncodeTriggerCombo(triggerGuides, []event.TriggerCondition{
		{Kind: event.KindSwitch, State: uint8(event.PhroPress), Index: 1},
	})
	triggerGuides = append(triggerGuides, 0)

	var resultGuides []byte
	resultGuides = guide.EncodeResultCombo(resultGuides, []event.Capability{
		event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 1, 0x04),
	})
	resultGuides = append(resultGuides, 0)

	mapping := make([]byte, 4)
	binary.LittleEndian.PutUint16(mapping[0:2], 0)
	binary.LittleEndian.PutUint16(mapping[2:4], 0)

	var raw []byte
	raw = append(raw, 0, 1, 1, 0, 1, 0, 0)

	ll, err := layout.New(raw, triggerGuides, resultGuides, mapping)
	if err != nil {
		t.Fatalf("layout.New() error = %v", err)
	}

	ls := New(Config{}, ll, []uint32{0, 5})
	if err := ls.ProcessTrigger(press(1)); err != nil {
		t.Fatalf("ProcessTrigger() error = %v", err)
	}
	if runs := ls.FinalizeTriggers(); len(runs) != 0 {
		t.Fatalf("FinalizeTriggers() at t=0 = %v, want no runs yet", runs)
	}

	for i := 0; i < 4; i++ {
		ls.IncrementTime()
		if runs := ls.FinalizeTriggers(); len(runs) != 0 {
			t.Fatalf("FinalizeTriggers() at tick %d = %v, want no runs yet", i+1, runs)
		}
	}

	ls.IncrementTime()
	runs := ls.FinalizeTriggers()
	if len(runs) != 1 {
		t.Fatalf("FinalizeTriggers() at tick 5 = %v, want 1 run", runs)
	}
}
