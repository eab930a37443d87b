// Package compiler builds the compiled KLL byte tables (TRIGGER_GUIDES,
// RESULT_GUIDES, TRIGGER_RESULT_MAPPING, LAYER_LOOKUP,
// LOOP_CONDITION_LOOKUP) that pkg/layout
// and pkg/runtime consume. It does not parse KLL source text — that
// surface syntax is out of scope (see the package doc for
// Binding/Sequence) — it takes already-decoded trigger/result sequences
// and performs the dedup + offset-assignment pass a real KLL compiler's
// back end does.
package compiler

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/guide"
)

// indexTypeScancode is the only trigger index type pkg/compiler
// currently emits into LAYER_LOOKUP. Non-scancode trigger types
// (analog sensors, layer-state triggers used as combo entry points,
// animation completions) are a real KLL feature but need a richer
// authoring model than Binding provides; see ErrUnsupportedTriggerType.
const indexTypeScancode = uint8(event.KindSwitch)

// Sequence is a chain of combos: the trigger side must all vote
// Positive in order before the result side starts firing, combo by
// combo, exactly the way pkg/runtime.LayerState walks
// NextTriggerCombo/NextResultCombo.
type Sequence struct {
	Triggers [][]event.TriggerCondition
	Results  [][]event.Capability
}

// Binding maps one scancode on one layer to a Sequence. Multiple
// Bindings may share the same (Layer, Index) — they all fire
// independently, the same way a real layout can attach more than one
// macro to a single key.
type Binding struct {
	Layer    uint8
	Index    uint16
	Sequence Sequence
}

// Config controls the build's parallelism. Dedup itself is inherently
// sequential (every insert depends on every prior one), but computing
// each Binding's wire-format bytes is pure and independent, so that
// stage fans out across NumWorkers the way pkg/search.WorkerPool fans
// out candidate verification.
type Config struct {
	NumWorkers int

	// LoopConditionDeltas is the author-supplied table of tick-delta
	// thresholds that every TriggerCondition/Capability LoopConditionIndex
	// indexes into (LOOP_CONDITION_LOOKUP). Build copies it verbatim
	// into Tables.LoopConditionLookup; it does not infer thresholds from
	// bindings because a delta is a scheduling decision ("fire after 200
	// scan ticks"), not something derivable from the combo shape itself.
	LoopConditionDeltas []uint32
}

func (c *Config) setDefaults() {
	if c.NumWorkers <= 0 {
		c.NumWorkers = runtime.NumCPU()
	}
}

// Tables is the compiled output: byte-exact copies of what a firmware
// build would embed as TRIGGER_GUIDES, RESULT_GUIDES,
// TRIGGER_RESULT_MAPPING, LAYER_LOOKUP and LOOP_CONDITION_LOOKUP.
type Tables struct {
	TriggerGuides        []byte
	ResultGuides         []byte
	TriggerResultMapping []byte
	LayerLookup          []byte
	LoopConditionLookup  []byte
}

// ErrUnsupportedTriggerType is returned by Build for anything other
// than a plain scancode binding. Open Question (a) in the originating
// spec resolves this as a returned error rather than a panic: a build
// tool should report a bad layout, not crash the process running it.
type ErrUnsupportedTriggerType struct {
	Layer uint8
	Index uint16
}

func (e *ErrUnsupportedTriggerType) Error() string {
	return fmt.Sprintf("compiler: unsupported trigger type for layer %d index %d (only scancode bindings are implemented)", e.Layer, e.Index)
}

type encodedBinding struct {
	binding     Binding
	triggerBlob []byte
	resultBlob  []byte
}

// Build compiles bindings into Tables. Bindings may be given in any
// order; the output's byte offsets are a function of first-seen
// sequences only (identical sequences dedup to one stored copy), so
// reordering equivalent input produces byte-identical tables modulo
// that ordering.
func Build(cfg Config, bindings []Binding) (*Tables, error) {
	cfg.setDefaults()

	for _, b := range bindings {
		if len(b.Sequence.Triggers) == 0 || len(b.Sequence.Results) == 0 {
			return nil, &ErrUnsupportedTriggerType{Layer: b.Layer, Index: b.Index}
		}
		// LAYER_LOOKUP only has rows for indexTypeScancode; the entry
		// combo is what gets registered against a live scancode index,
		// so every condition in it must actually be a switch trigger.
		for _, cond := range b.Sequence.Triggers[0] {
			if cond.Kind != event.KindSwitch {
				return nil, &ErrUnsupportedTriggerType{Layer: b.Layer, Index: b.Index}
			}
		}
	}

	encoded, err := encodeBindingsParallel(cfg, bindings)
	if err != nil {
		return nil, err
	}

	triggerTable := newDedupTable()
	resultTable := newDedupTable()
	pairTable := newPairTable()
	layerLookup := newLayerLookupBuilder()

	for _, eb := range encoded {
		triggerOffset := triggerTable.insert(eb.triggerBlob)
		resultOffset := resultTable.insert(eb.resultBlob)
		pairID := pairTable.insert(triggerOffset, resultOffset)
		layerLookup.add(eb.binding.Layer, indexTypeScancode, eb.binding.Index, pairID)
	}

	return &Tables{
		TriggerGuides:        triggerTable.buf,
		ResultGuides:         resultTable.buf,
		TriggerResultMapping: pairTable.mapping,
		LayerLookup:          layerLookup.serialize(),
		LoopConditionLookup:  encodeLoopConditionLookup(cfg.LoopConditionDeltas),
	}, nil
}

// encodeLoopConditionLookup serializes the author-supplied delta table
// as consecutive little-endian u32s, the same layout runtime.New's
// loopConditionLookup parameter (and TriggerCondition/Capability's
// LoopConditionIndex) expect to index into.
func encodeLoopConditionLookup(deltas []uint32) []byte {
	out := make([]byte, 0, len(deltas)*4)
	for _, d := range deltas {
		out = append(out, byte(d), byte(d>>8), byte(d>>16), byte(d>>24))
	}
	return out
}

// DecodeLoopConditionLookup reverses encodeLoopConditionLookup, turning
// a compiled Tables.LoopConditionLookup blob back into the []uint32
// runtime.New expects. Callers that load Tables from a gob file (rather
// than holding on to the Config that built it) use this to recover the
// delta table.
func DecodeLoopConditionLookup(data []byte) []uint32 {
	out := make([]uint32, len(data)/4)
	for i := range out {
		b := data[i*4 : i*4+4]
		out[i] = uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
	}
	return out
}

func encodeBindingsParallel(cfg Config, bindings []Binding) ([]encodedBinding, error) {
	out := make([]encodedBinding, len(bindings))

	jobs := make(chan int, len(bindings))
	for i := range bindings {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for w := 0; w < cfg.NumWorkers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				b := bindings[i]
				out[i] = encodedBinding{
					binding:     b,
					triggerBlob: encodeTriggerChain(b.Sequence.Triggers),
					resultBlob:  encodeResultChain(b.Sequence.Results),
				}
			}
		}()
	}
	wg.Wait()

	return out, nil
}

// encodeTriggerChain concatenates every combo in a sequence back to
// back, followed by a single zero terminator. Storing the whole chain
// as one unit (rather than dedup-ing individual combos) keeps the
// byte-adjacency NextTriggerCombo relies on intact: once a sequence is
// placed in the table nothing else is ever interleaved into it.
func encodeTriggerChain(combos [][]event.TriggerCondition) []byte {
	var buf []byte
	for _, combo := range combos {
		buf = guide.EncodeTriggerCombo(buf, combo)
	}
	return append(buf, 0)
}

func encodeResultChain(combos [][]event.Capability) []byte {
	var buf []byte
	for _, combo := range combos {
		buf = guide.EncodeResultCombo(buf, combo)
	}
	return append(buf, 0)
}

// dedupTable appends distinct byte blobs to buf, returning the offset
// of a blob's first appearance on every subsequent insert of the same
// bytes.
type dedupTable struct {
	buf   []byte
	index map[string]int
}

func newDedupTable() *dedupTable {
	return &dedupTable{index: make(map[string]int)}
}

func (d *dedupTable) insert(blob []byte) int {
	key := string(blob)
	if off, ok := d.index[key]; ok {
		return off
	}
	off := len(d.buf)
	d.buf = append(d.buf, blob...)
	d.index[key] = off
	return off
}

// pairKey identifies a (triggerOffset, resultOffset) combination.
type pairKey struct {
	trigger, result int
}

// pairTable assigns a dense 0-based id to every distinct
// (triggerOffset, resultOffset) pair, in first-seen order, and builds
// TRIGGER_RESULT_MAPPING as it goes: two little-endian u16 per id.
type pairTable struct {
	index   map[pairKey]int
	mapping []byte
}

func newPairTable() *pairTable {
	return &pairTable{index: make(map[pairKey]int)}
}

func (p *pairTable) insert(triggerOffset, resultOffset int) int {
	k := pairKey{triggerOffset, resultOffset}
	if id, ok := p.index[k]; ok {
		return id
	}
	id := len(p.index)
	p.index[k] = id
	p.mapping = append(p.mapping,
		byte(triggerOffset), byte(triggerOffset>>8),
		byte(resultOffset), byte(resultOffset>>8),
	)
	return id
}

// layerLookupKey identifies one LAYER_LOOKUP row.
type layerLookupKey struct {
	layer     uint8
	indexType uint8
	index     uint16
}

// layerLookupBuilder accumulates, per (layer, indexType, index), the
// ordered list of trigger ids (pair ids) registered against it, then
// serializes into the LAYER_LOOKUP wire format pkg/layout.New expects.
type layerLookupBuilder struct {
	order []layerLookupKey
	ids   map[layerLookupKey][]uint16
}

func newLayerLookupBuilder() *layerLookupBuilder {
	return &layerLookupBuilder{ids: make(map[layerLookupKey][]uint16)}
}

func (b *layerLookupBuilder) add(layer, indexType uint8, index uint16, pairID int) {
	k := layerLookupKey{layer, indexType, index}
	if _, ok := b.ids[k]; !ok {
		b.order = append(b.order, k)
	}
	b.ids[k] = append(b.ids[k], uint16(pairID))
}

func (b *layerLookupBuilder) serialize() []byte {
	keys := make([]layerLookupKey, len(b.order))
	copy(keys, b.order)
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].layer != keys[j].layer {
			return keys[i].layer < keys[j].layer
		}
		if keys[i].indexType != keys[j].indexType {
			return keys[i].indexType < keys[j].indexType
		}
		return keys[i].index < keys[j].index
	})

	var out []byte
	for _, k := range keys {
		ids := b.ids[k]
		out = append(out, k.layer, k.indexType, byte(k.index), byte(k.index>>8), byte(len(ids)))
		for _, id := range ids {
			out = append(out, byte(id), byte(id>>8))
		}
	}
	return out
}
