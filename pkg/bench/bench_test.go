package bench

import (
	"testing"
	"time"

	"github.com/kiibohd/kiibohd-core/pkg/compiler"
	"github.com/kiibohd/kiibohd-core/pkg/event"
)

func TestTableSortsSlowestFirst(t *testing.T) {
	tbl := NewTable()
	tbl.Add(Sample{Label: "fast", EventCount: 100, Elapsed: 10 * time.Millisecond})
	tbl.Add(Sample{Label: "slow", EventCount: 100, Elapsed: 50 * time.Millisecond})

	samples := tbl.Samples()
	if len(samples) != 2 {
		t.Fatalf("len(samples) = %d, want 2", len(samples))
	}
	if samples[0].Label != "slow" {
		t.Errorf("samples[0].Label = %q, want %q", samples[0].Label, "slow")
	}
}

func TestSampleEventsPerSecond(t *testing.T) {
	s := Sample{EventCount: 1000, Elapsed: time.Second}
	if got := s.EventsPerSecond(); got != 1000 {
		t.Errorf("EventsPerSecond() = %v, want 1000", got)
	}
	zero := Sample{}
	if got := zero.EventsPerSecond(); got != 0 {
		t.Errorf("EventsPerSecond() on zero sample = %v, want 0", got)
	}
}

func TestCheckpointRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/checkpoint.gob"

	ckpt := &Checkpoint{
		Processed: []compiler.Binding{
			{
				Layer: 0,
				Index: 1,
				Sequence: compiler.Sequence{
					Triggers: [][]event.TriggerCondition{{{Kind: event.KindSwitch, Index: 1}}},
					Results:  [][]event.Capability{{event.NewCapability(event.CapHidKeyboard, event.CapabilityStatePassthrough, 0, 0x04)}},
				},
			},
		},
		Total: 5,
	}
	if err := SaveCheckpoint(path, ckpt); err != nil {
		t.Fatalf("SaveCheckpoint() error = %v", err)
	}

	loaded, err := LoadCheckpoint(path)
	if err != nil {
		t.Fatalf("LoadCheckpoint() error = %v", err)
	}
	if loaded.Total != 5 || len(loaded.Processed) != 1 {
		t.Fatalf("loaded = %+v, want Total=5 with 1 processed binding", loaded)
	}
	if loaded.Processed[0].Index != 1 {
		t.Errorf("Processed[0].Index = %d, want 1", loaded.Processed[0].Index)
	}
}

func TestLoadCheckpointMissingFile(t *testing.T) {
	if _, err := LoadCheckpoint("/nonexistent/path.gob"); err == nil {
		t.Error("LoadCheckpoint() on missing file err = nil, want error")
	}
}
