// Package runtime implements the single-threaded KLL state machine: it
// takes a layout.LayerLookup and a stream of TriggerEvents and produces
// CapabilityRuns. Its tables are bounded by Config, but it does allocate
// on the heap while running: ProcessTrigger adds map entries and
// lookupState records, and FinalizeTriggers builds new slices and a new
// combo-vote map on every call. Everything here runs on
// the scan interrupt of a keyboard controller, so there is no locking —
// a LayerState must never be shared across goroutines without external
// synchronization, the same way the firmware never shares it across
// interrupt priorities.
package runtime

import (
	"sort"

	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/layout"
)

type lookupStatus uint8

const (
	statusTriggerPos lookupStatus = iota
	statusResultPos
	statusDone
)

type lookupState struct {
	status       lookupStatus
	timeInstance uint32
	offset       int
	trigger      event.TriggerEvent // valid once status == statusResultPos
}

type cacheKey struct {
	Type  uint8
	Index uint16
}

type cacheEntry struct {
	Layer        uint8
	State        event.LayerBitState
	LastInstance uint32
}

type offStateEntry struct {
	pair  layout.TriggerResultPair
	kind  event.Kind
	index uint16
}

// LayerState is the runtime's combo engine: layer stack, in-flight
// combo bookkeeping and the off-state queue, driven entirely by
// ProcessTrigger/FinalizeTriggers calls from the scan loop.
type LayerState struct {
	cfg          Config
	lookup       *layout.LayerLookup
	loopLookup   []uint32
	timeInstance uint32

	layerStack   []uint8
	layerBits    []event.LayerBitState
	layerLast    []uint32

	cache        map[cacheKey]cacheEntry
	lookupStates map[layout.TriggerResultPair]*lookupState
	comboEval    map[layout.TriggerResultPair]int
	offState     []offStateEntry
}

// New creates a LayerState bound to ll. loopConditionLookup resolves
// TriggerCondition/Capability LoopConditionIndex values to tick deltas
// (LOOP_CONDITION_LOOKUP in the compiled tables).
func New(cfg Config, ll *layout.LayerLookup, loopConditionLookup []uint32) *LayerState {
	cfg.setDefaults()
	maxLayers := ll.MaxLayers()
	if maxLayers < 1 {
		maxLayers = 1
	}
	return &LayerState{
		cfg:          cfg,
		lookup:       ll,
		loopLookup:   loopConditionLookup,
		layerStack:   make([]uint8, 0, cfg.MaxActiveLayers),
		layerBits:    make([]event.LayerBitState, maxLayers),
		layerLast:    make([]uint32, maxLayers),
		cache:        make(map[cacheKey]cacheEntry, cfg.MaxLayerStackCache),
		lookupStates: make(map[layout.TriggerResultPair]*lookupState),
		comboEval:    make(map[layout.TriggerResultPair]int),
	}
}

// IncrementTime advances the tick counter by one, the normal per-scan
// cadence.
func (ls *LayerState) IncrementTime() { ls.timeInstance++ }

// SetTime sets the tick counter directly, mainly useful for tests and
// for replaying a recorded trace.
func (ls *LayerState) SetTime(t uint32) { ls.timeInstance = t }

// Time returns the current tick counter.
func (ls *LayerState) Time() uint32 { return ls.timeInstance }

// SetLayer toggles one of the Shift/Latch/Lock bits on layer, pushing
// or popping it from the layer stack as needed, and returns the
// KindLayer TriggerEvent a layer key's own result combo should feed
// back into ProcessTrigger (layers can trigger on other layers).
func (ls *LayerState) SetLayer(layer uint8, bit event.LayerBitState) (event.TriggerEvent, error) {
	if layer == 0 || int(layer) >= len(ls.layerBits) {
		return event.TriggerEvent{}, ErrInvalidLayer
	}

	prevState := ls.layerBits[layer]
	prevActive := prevState.Effective()
	newState := prevState.Toggle(bit)
	activity := event.AodoFromState(prevActive, newState.Effective())

	lastTime := ls.layerLast[layer]
	ls.layerBits[layer] = newState
	ls.layerLast[layer] = ls.timeInstance

	inStack := ls.stackIndex(layer) >= 0
	if newState == 0 {
		ls.removeFromStack(layer)
	} else if !inStack {
		if len(ls.layerStack) >= ls.cfg.MaxActiveLayers {
			return event.TriggerEvent{}, ErrLayerStackFull
		}
		ls.layerStack = append(ls.layerStack, layer)
	}

	packed := event.LayerTriggerStateFromLayer(newState, activity)
	return event.NewLayerEvent(packed, uint16(layer), lastTime), nil
}

func (ls *LayerState) stackIndex(layer uint8) int {
	for i, l := range ls.layerStack {
		if l == layer {
			return i
		}
	}
	return -1
}

// removeFromStack drops layer from the stack, preserving the relative
// order of the remaining entries (a plain slice delete, not a
// swap-with-last — order encodes push recency, which layerLookupSearch
// relies on).
func (ls *LayerState) removeFromStack(layer uint8) {
	idx := ls.stackIndex(layer)
	if idx < 0 {
		return
	}
	ls.layerStack = append(ls.layerStack[:idx], ls.layerStack[idx+1:]...)
}

// triggerCapState classifies a live TriggerEvent the way a result
// combo's CapabilityState would, so the layer cache can reuse the
// layer resolved at Press/Activate time across the following
// Hold/Release events without re-walking the stack.
func triggerCapState(ev event.TriggerEvent) event.CapabilityState {
	switch ev.Kind {
	case event.KindSwitch:
		switch ev.Phro() {
		case event.PhroPress:
			return event.CapabilityStateInitial
		case event.PhroHold:
			return event.CapabilityStateAny
		case event.PhroRelease:
			return event.CapabilityStateLast
		default:
			return event.CapabilityStateNone
		}
	case event.KindHidLed, event.KindLayer, event.KindSleep, event.KindResume, event.KindInactive, event.KindActive:
		activity := ev.Aodo()
		if ev.Kind == event.KindLayer {
			activity = ev.LayerTriggerStateValue().Activity()
		}
		switch activity {
		case event.AodoActivate:
			return event.CapabilityStateInitial
		case event.AodoOn:
			return event.CapabilityStateAny
		case event.AodoDeactivate:
			return event.CapabilityStateLast
		default:
			return event.CapabilityStateNone
		}
	default:
		return event.CapabilityStateAny
	}
}

func ttypeOf(ev event.TriggerEvent) uint8 { return uint8(ev.Kind) }

// layerLookupSearch walks the layer stack top-down (most recently
// engaged layer wins) looking for a layer whose bits are effective and
// which has a registered trigger list for (ttype, index). The base
// layer (0) is always checked last, since it is implicitly active and
// never appears on the stack.
func (ls *LayerState) layerLookupSearch(ttype uint8, index uint16) (uint8, []layout.TriggerResultPair, bool) {
	for i := len(ls.layerStack) - 1; i >= 0; i-- {
		layer := ls.layerStack[i]
		if !ls.layerBits[layer].Effective() {
			continue
		}
		if pairs := ls.lookup.LookupGuides(layout.Key{Layer: layer, Type: ttype, Index: index}); len(pairs) > 0 {
			return layer, pairs, true
		}
	}
	if pairs := ls.lookup.LookupGuides(layout.Key{Layer: 0, Type: ttype, Index: index}); len(pairs) > 0 {
		return 0, pairs, true
	}
	return 0, nil, false
}

// lookupPairs resolves ev to the trigger/result guide pairs it should be
// voted against, consulting and maintaining the layer cache.
func (ls *LayerState) lookupPairs(ev event.TriggerEvent) []layout.TriggerResultPair {
	key := cacheKey{Type: ttypeOf(ev), Index: ev.Index}
	capState := triggerCapState(ev)

	if capState != event.CapabilityStateInitial {
		if entry, ok := ls.cache[key]; ok {
			pairs := ls.lookup.LookupGuides(layout.Key{Layer: entry.Layer, Type: key.Type, Index: key.Index})
			if capState == event.CapabilityStateLast {
				delete(ls.cache, key)
			}
			return pairs
		}
	}

	layer, pairs, found := ls.layerLookupSearch(key.Type, key.Index)
	if !found {
		return nil
	}
	if capState != event.CapabilityStateLast {
		if _, exists := ls.cache[key]; !exists && len(ls.cache) < ls.cfg.MaxLayerStackCache {
			ls.cache[key] = cacheEntry{Layer: layer, State: ls.layerBits[layer], LastInstance: ls.timeInstance}
		}
	}
	return pairs
}

// ProcessTrigger votes ev against every combo (layout.LookupGuides)
// reachable from its resolved layer, advancing each combo's position
// or scheduling its result for FinalizeTriggers.
func (ls *LayerState) ProcessTrigger(ev event.TriggerEvent) error {
	for _, pair := range ls.lookupPairs(ev) {
		if err := ls.processPair(pair, ev); err != nil {
			return err
		}
	}
	return nil
}

func (ls *LayerState) processPair(pair layout.TriggerResultPair, ev event.TriggerEvent) error {
	st, ok := ls.lookupStates[pair]
	if !ok {
		if len(ls.lookupStates) >= ls.cfg.MaxLookupStates {
			return ErrLookupStateFull
		}
		st = &lookupState{status: statusTriggerPos, timeInstance: ls.timeInstance, offset: pair.TriggerOffset}
	}
	if st.status != statusTriggerPos {
		return nil
	}

	conds, ok := ls.lookup.TriggerCombo(st.offset)
	if !ok {
		delete(ls.lookupStates, pair)
		delete(ls.comboEval, pair)
		return nil
	}

	remaining, tracked := ls.comboEval[pair]
	if !tracked {
		remaining = len(conds)
	}

	for _, c := range conds {
		switch c.Evaluate(ev, ls.loopLookup) {
		case event.VotePositive:
			remaining--
		case event.VoteNegative:
			delete(ls.lookupStates, pair)
			delete(ls.comboEval, pair)
			return nil
		case event.VoteOffState:
			if len(ls.offState) >= ls.cfg.MaxOffStateLookups {
				return ErrOffStateLookupsFull
			}
			ls.offState = append(ls.offState, offStateEntry{pair: pair, kind: c.Kind, index: c.Index})
		case event.VoteInsufficient:
			// neither advances nor kills the combo; keep waiting.
		}
	}

	if remaining == 0 {
		delete(ls.comboEval, pair)
		if next, ok := ls.lookup.NextTriggerCombo(st.offset, len(conds)); ok {
			ls.lookupStates[pair] = &lookupState{status: statusTriggerPos, timeInstance: ls.timeInstance, offset: next}
		} else {
			ls.lookupStates[pair] = &lookupState{status: statusResultPos, timeInstance: ls.timeInstance, offset: pair.ResultOffset, trigger: ev}
		}
		return nil
	}

	if !tracked && len(ls.comboEval) >= ls.cfg.MaxActiveTriggers {
		return ErrTriggerComboEvalStateFull
	}
	ls.comboEval[pair] = remaining
	ls.lookupStates[pair] = st
	return nil
}

// ProcessOffStateLookups re-evaluates every condition that voted
// VoteOffState during the last ProcessTrigger pass, resolving it to a
// synthetic Off-phase TriggerEvent via resolve. This exists because an
// Off-state condition describes a control's resting state, which
// cannot be derived from the event that triggered the scan — the
// caller has to supply "what does Off look like for this control".
func (ls *LayerState) ProcessOffStateLookups(resolve func(kind event.Kind, index uint16) event.TriggerEvent) error {
	entries := ls.offState
	ls.offState = nil
	for _, e := range entries {
		if err := ls.processPair(e.pair, resolve(e.kind, e.index)); err != nil {
			return err
		}
	}
	return nil
}

// FinalizeTriggers advances every combo waiting on its result guide's
// schedule and returns the CapabilityRuns whose loop-condition delta
// has now elapsed. It also clears the per-scan combo vote counters and
// the off-state queue, the same cleanup the original scan loop does
// once a cycle's triggers are fully processed.
func (ls *LayerState) FinalizeTriggers() []event.CapabilityRun {
	var results []event.CapabilityRun
	var done []layout.TriggerResultPair

	pairs := make([]layout.TriggerResultPair, 0, len(ls.lookupStates))
	for pair := range ls.lookupStates {
		pairs = append(pairs, pair)
	}
	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].TriggerOffset != pairs[j].TriggerOffset {
			return pairs[i].TriggerOffset < pairs[j].TriggerOffset
		}
		return pairs[i].ResultOffset < pairs[j].ResultOffset
	})

	for _, pair := range pairs {
		st := ls.lookupStates[pair]
		if st.status != statusResultPos {
			continue
		}

		timeOffset := ls.timeInstance - st.timeInstance
		caps, ok := ls.lookup.ResultCombo(st.offset)
		if !ok {
			done = append(done, pair)
			continue
		}

		completed := 0
		for _, cap := range caps {
			timeCond := conditionTime(cap.LoopConditionIndex, ls.loopLookup)
			switch {
			case timeOffset == timeCond:
				results = append(results, cap.Generate(st.trigger))
				completed++
			case timeOffset > timeCond:
				completed++
			}
		}

		// The anchor (st.timeInstance) stays fixed while any capability
		// in this combo is still waiting on a future loop-condition
		// tick, so timeOffset keeps growing call over call until it
		// catches up. Only once every capability has fired does the
		// combo advance to its next result combo, or finish.
		if completed == len(caps) {
			if next, ok := ls.lookup.NextResultCombo(st.offset, len(caps)); ok {
				st.offset = next
				st.timeInstance = ls.timeInstance
			} else {
				st.status = statusDone
			}
		}
	}

	for _, pair := range pairs {
		if ls.lookupStates[pair].status == statusDone {
			done = append(done, pair)
		}
	}
	for _, pair := range done {
		delete(ls.lookupStates, pair)
	}

	ls.comboEval = make(map[layout.TriggerResultPair]int)
	ls.offState = ls.offState[:0]

	return results
}

func conditionTime(idx uint16, loopConditionLookup []uint32) uint32 {
	if int(idx) < len(loopConditionLookup) {
		return loopConditionLookup[idx]
	}
	return 0
}
