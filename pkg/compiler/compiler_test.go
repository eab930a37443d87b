package compiler

import (
	"bytes"
	"testing"

	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/layout"
)

func simpleSequence(scancode uint16, keycode byte) Sequence {
	return Sequence{
		Triggers: [][]event.TriggerCondition{
			{{Kind: event.KindSwitch, State: uint8(event.PhroPress), Index: scancode}},
		},
		Results: [][]event.Capability{
			{event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, keycode)},
		},
	}
}

func TestBuildProducesUsableLayout(t *testing.T) {
	bindings := []Binding{
		{Layer: 0, Index: 1, Sequence: simpleSequence(1, 0x04)},
		{Layer: 0, Index: 2, Sequence: simpleSequence(2, 0x05)},
	}
	tables, err := Build(Config{}, bindings)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	ll, err := layout.New(tables.LayerLookup, tables.TriggerGuides, tables.ResultGuides, tables.TriggerResultMapping)
	if err != nil {
		t.Fatalf("layout.New() error = %v", err)
	}

	pairs := ll.LookupGuides(layout.Key{Layer: 0, Type: uint8(event.KindSwitch), Index: 1})
	if len(pairs) != 1 {
		t.Fatalf("LookupGuides(index 1) = %v, want 1 pair", pairs)
	}
	caps, ok := ll.ResultCombo(pairs[0].ResultOffset)
	if !ok || caps[0].Payload[0] != 0x04 {
		t.Fatalf("ResultCombo = %v, ok=%v, want keycode 0x04", caps, ok)
	}
}

func TestBuildDedupsIdenticalSequences(t *testing.T) {
	seq := simpleSequence(99, 0x09) // scancode inside the sequence is irrelevant to dedup key construction here
	bindings := []Binding{
		{Layer: 0, Index: 1, Sequence: seq},
		{Layer: 1, Index: 1, Sequence: seq},
	}
	tables, err := Build(Config{}, bindings)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}

	// Two bindings with byte-identical trigger/result sequences must
	// share one stored copy of each table.
	expectedTriggerLen := 1 + event.ConditionSize + 1 // count byte + one condition + terminator
	expectedResultLen := 1 + event.CapabilitySize + 1
	if len(tables.TriggerGuides) != expectedTriggerLen {
		t.Errorf("len(TriggerGuides) = %d, want %d (deduped)", len(tables.TriggerGuides), expectedTriggerLen)
	}
	if len(tables.ResultGuides) != expectedResultLen {
		t.Errorf("len(ResultGuides) = %d, want %d (deduped)", len(tables.ResultGuides), expectedResultLen)
	}
	if len(tables.TriggerResultMapping) != 4 {
		t.Errorf("len(TriggerResultMapping) = %d, want 4 (one deduped pair)", len(tables.TriggerResultMapping))
	}
}

func TestBuildRejectsEmptySequence(t *testing.T) {
	bindings := []Binding{{Layer: 0, Index: 1, Sequence: Sequence{}}}
	if _, err := Build(Config{}, bindings); err == nil {
		t.Error("Build() with empty sequence err = nil, want ErrUnsupportedTriggerType")
	}
}

func TestBuildRejectsNonScancodeEntryCombo(t *testing.T) {
	seq := Sequence{
		Triggers: [][]event.TriggerCondition{
			{{Kind: event.KindLayer, State: uint8(event.AodoOn), Index: 1}},
		},
		Results: [][]event.Capability{
			{event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, 0x04)},
		},
	}
	bindings := []Binding{{Layer: 0, Index: 1, Sequence: seq}}
	_, err := Build(Config{}, bindings)
	if err == nil {
		t.Fatal("Build() with a layer-kind entry combo err = nil, want ErrUnsupportedTriggerType")
	}
	if _, ok := err.(*ErrUnsupportedTriggerType); !ok {
		t.Errorf("Build() error = %T, want *ErrUnsupportedTriggerType", err)
	}
}

func TestEmitGoProducesValidLiterals(t *testing.T) {
	tables := &Tables{
		TriggerGuides:        []byte{1, 2, 3},
		ResultGuides:         []byte{4, 5},
		TriggerResultMapping: []byte{0, 0, 0, 0},
		LayerLookup:          []byte{0, 1, 1, 0, 1, 0, 0},
		LoopConditionLookup:  []byte{200, 0, 0, 0},
	}
	var buf bytes.Buffer
	if err := EmitGo(&buf, "gen", tables); err != nil {
		t.Fatalf("EmitGo() error = %v", err)
	}
	out := buf.String()
	for _, want := range []string{"package gen", "var TriggerGuides", "var ResultGuides", "var TriggerResultMapping", "var LayerLookup", "var LoopConditionLookup"} {
		if !bytes.Contains(buf.Bytes(), []byte(want)) {
			t.Errorf("output missing %q\n%s", want, out)
		}
	}
}

func TestLoopConditionLookupRoundTrip(t *testing.T) {
	bindings := []Binding{{Layer: 0, Index: 1, Sequence: simpleSequence(1, 0x04)}}
	cfg := Config{LoopConditionDeltas: []uint32{0, 200, 4000}}
	tables, err := Build(cfg, bindings)
	if err != nil {
		t.Fatalf("Build() error = %v", err)
	}
	if len(tables.LoopConditionLookup) != len(cfg.LoopConditionDeltas)*4 {
		t.Fatalf("len(LoopConditionLookup) = %d, want %d", len(tables.LoopConditionLookup), len(cfg.LoopConditionDeltas)*4)
	}
	got := DecodeLoopConditionLookup(tables.LoopConditionLookup)
	if len(got) != len(cfg.LoopConditionDeltas) {
		t.Fatalf("DecodeLoopConditionLookup length = %d, want %d", len(got), len(cfg.LoopConditionDeltas))
	}
	for i, want := range cfg.LoopConditionDeltas {
		if got[i] != want {
			t.Errorf("delta[%d] = %d, want %d", i, got[i], want)
		}
	}
}

func TestFuzzScriptDeterministic(t *testing.T) {
	a := FuzzScript(42, 4, 50)
	b := FuzzScript(42, 4, 50)
	if len(a) != len(b) {
		t.Fatalf("len mismatch: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("event %d differs: %+v vs %+v", i, a[i], b[i])
		}
	}
}
