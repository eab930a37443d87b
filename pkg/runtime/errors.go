package runtime

import "errors"

// ProcessError is the closed set of failures a single-threaded
// LayerState can report. None of them are recoverable mid-scan — they
// mean a bounded table configured too small for the layout, which is a
// build-time sizing mistake, not a runtime condition to retry.
var (
	// ErrInvalidLayer is returned by SetLayer for layer 0 (the base
	// layer is always active and is never pushed onto the stack) or
	// for a layer number above the highest layer the compiled layout
	// references.
	ErrInvalidLayer = errors.New("runtime: invalid layer")

	// ErrTriggerComboEvalStateFull is returned when a new combo needs
	// a vote-tracking slot but Config.MaxActiveTriggers is already
	// saturated with other in-flight combos.
	ErrTriggerComboEvalStateFull = errors.New("runtime: trigger combo eval state table full")

	// ErrOffStateLookupsFull is returned when an Off-state condition
	// needs to be queued for the next ProcessOffStateLookups pass but
	// Config.MaxOffStateLookups is already saturated.
	ErrOffStateLookupsFull = errors.New("runtime: off-state lookup queue full")

	// ErrLayerStackFull is returned by SetLayer when the layer stack
	// has reached Config.MaxActiveLayers and a new layer needs to be
	// pushed.
	ErrLayerStackFull = errors.New("runtime: layer stack full")

	// ErrLookupStateFull is returned when a trigger/result pair needs
	// a new LookupState entry but Config.MaxLookupStates is already
	// saturated with other in-flight combos (the "in-flight macros
	// table full" condition).
	ErrLookupStateFull = errors.New("runtime: lookup state table full")
)
