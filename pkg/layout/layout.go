// Package layout holds the compiled LAYER_LOOKUP index and the two
// combo tables (TRIGGER_GUIDES/RESULT_GUIDES) plus TRIGGER_RESULT_MAPPING
// it joins them through. It is a read-only view over bytes produced by
// pkg/compiler — nothing here mutates, so a single LayerLookup can be
// shared across as many pkg/runtime.LayerState machines as a build
// wants (e.g. one per keyboard half).
package layout

import (
	"encoding/binary"
	"fmt"

	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/guide"
)

// Key identifies one row of LAYER_LOOKUP: a layer, the trigger type
// that indexes it (only event.KindSwitch is currently emitted by
// pkg/compiler, see its Open Questions note), and the control index
// within that type.
type Key struct {
	Layer uint8
	Type  uint8
	Index uint16
}

// LayerLookup is the decoded join between layers and the
// trigger/result guide pairs they activate.
type LayerLookup struct {
	TriggerGuides        []byte
	ResultGuides         []byte
	TriggerResultMapping []byte

	offsets  map[Key]int // offset in rawLayerLookup of the trigger-count byte
	raw      []byte
	maxLayer uint8
}

// New parses rawLayerLookup (the LAYER_LOOKUP table) into a lookup
// index over triggerGuides/resultGuides via triggerResultMapping.
//
// rawLayerLookup is a flat run of entries, each
// [layer:u8, indexType:u8, index:u16LE, triggerCount:u8, triggers:u16LE * triggerCount],
// with no terminator — the table simply ends.
func New(rawLayerLookup, triggerGuides, resultGuides, triggerResultMapping []byte) (*LayerLookup, error) {
	ll := &LayerLookup{
		TriggerGuides:        triggerGuides,
		ResultGuides:         resultGuides,
		TriggerResultMapping: triggerResultMapping,
		offsets:              make(map[Key]int),
		raw:                  rawLayerLookup,
	}

	pos := 0
	for pos < len(rawLayerLookup) {
		if pos+4 > len(rawLayerLookup) {
			return nil, fmt.Errorf("layout: truncated LAYER_LOOKUP entry header at offset %d", pos)
		}
		layer := rawLayerLookup[pos]
		indexType := rawLayerLookup[pos+1]
		index := binary.LittleEndian.Uint16(rawLayerLookup[pos+2 : pos+4])
		countOffset := pos + 4
		if countOffset >= len(rawLayerLookup) {
			return nil, fmt.Errorf("layout: truncated LAYER_LOOKUP trigger count at offset %d", countOffset)
		}
		count := int(rawLayerLookup[countOffset])
		end := countOffset + 1 + count*2
		if end > len(rawLayerLookup) {
			return nil, fmt.Errorf("layout: LAYER_LOOKUP trigger list runs past table end at offset %d", countOffset)
		}

		key := Key{Layer: layer, Type: indexType, Index: index}
		if _, dup := ll.offsets[key]; dup {
			// A compiler bug produced two entries for the same key;
			// keep going with the newer one rather than aborting the
			// whole build.
			fmt.Printf("layout: duplicate LAYER_LOOKUP entry for layer=%d type=%d index=%d, overwriting\n", layer, indexType, index)
		}
		ll.offsets[key] = countOffset
		if layer > ll.maxLayer {
			ll.maxLayer = layer
		}

		pos = end
	}

	return ll, nil
}

// MaxLayers returns one past the highest layer number referenced by
// the table (i.e. the size a layer stack needs to address every layer
// by index).
func (ll *LayerLookup) MaxLayers() int { return int(ll.maxLayer) + 1 }

// TriggerList returns the raw u16 trigger ids registered for key, or
// nil if the layer/type/index combination has no entry.
func (ll *LayerLookup) TriggerList(key Key) []uint16 {
	offset, ok := ll.offsets[key]
	if !ok {
		return nil
	}
	count := int(ll.raw[offset])
	if count == 0 {
		return nil
	}
	ids := make([]uint16, count)
	pos := offset + 1
	for i := 0; i < count; i++ {
		ids[i] = binary.LittleEndian.Uint16(ll.raw[pos : pos+2])
		pos += 2
	}
	return ids
}

// LookupGuides resolves key to the (triggerOffset, resultOffset) pairs
// its registered trigger ids point at in TRIGGER_RESULT_MAPPING. A
// trigger id addresses a pair of u16 entries, at byte offset
// 4*id (id selects a pair, each pair is two u16 = 4 bytes).
func (ll *LayerLookup) LookupGuides(key Key) []TriggerResultPair {
	ids := ll.TriggerList(key)
	if ids == nil {
		return nil
	}
	pairs := make([]TriggerResultPair, 0, len(ids))
	for _, id := range ids {
		byteOff := int(id) * 4
		if byteOff+4 > len(ll.TriggerResultMapping) {
			continue
		}
		trig := binary.LittleEndian.Uint16(ll.TriggerResultMapping[byteOff : byteOff+2])
		res := binary.LittleEndian.Uint16(ll.TriggerResultMapping[byteOff+2 : byteOff+4])
		pairs = append(pairs, TriggerResultPair{TriggerOffset: int(trig), ResultOffset: int(res)})
	}
	return pairs
}

// TriggerResultPair is one row of TRIGGER_RESULT_MAPPING: the byte
// offsets into TRIGGER_GUIDES and RESULT_GUIDES for one combo pair.
type TriggerResultPair struct {
	TriggerOffset int
	ResultOffset  int
}

// TriggerCombo decodes the trigger combo at offset.
func (ll *LayerLookup) TriggerCombo(offset int) ([]event.TriggerCondition, bool) {
	return guide.TriggerCombo(ll.TriggerGuides, offset)
}

// ResultCombo decodes the result combo at offset.
func (ll *LayerLookup) ResultCombo(offset int) ([]event.Capability, bool) {
	return guide.ResultCombo(ll.ResultGuides, offset)
}

// NextTriggerCombo advances offset past a combo of count conditions.
func (ll *LayerLookup) NextTriggerCombo(offset, count int) (int, bool) {
	return guide.NextTriggerCombo(ll.TriggerGuides, offset, count)
}

// NextResultCombo advances offset past a combo of count capabilities.
func (ll *LayerLookup) NextResultCombo(offset, count int) (int, bool) {
	return guide.NextResultCombo(ll.ResultGuides, offset, count)
}
