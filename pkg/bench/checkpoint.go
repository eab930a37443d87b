// Package bench holds the tooling a compile/bench cycle needs that
// isn't part of the compiler or runtime proper: a gob checkpoint so a
// large layout build can resume, and a thread-safe table of timing
// samples `kllc bench` accumulates while stress-driving a compiled
// layout through pkg/runtime.
package bench

import (
	"encoding/gob"
	"os"

	"github.com/kiibohd/kiibohd-core/pkg/compiler"
)

// Checkpoint holds enough state to resume a `kllc compile` run that was
// interrupted partway through a large binding set. Build is
// deterministic and idempotent given the same bindings, so resuming
// just means re-running Build over Processed plus whatever remains —
// there is no incremental table-merge step to get wrong.
type Checkpoint struct {
	Processed []compiler.Binding
	Total     int
}

func init() {
	gob.Register(compiler.Binding{})
}

// SaveCheckpoint writes build state to a file.
func SaveCheckpoint(path string, ckpt *Checkpoint) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return gob.NewEncoder(f).Encode(ckpt)
}

// LoadCheckpoint loads build state from a file.
func LoadCheckpoint(path string) (*Checkpoint, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var ckpt Checkpoint
	if err := gob.NewDecoder(f).Decode(&ckpt); err != nil {
		return nil, err
	}
	return &ckpt, nil
}
