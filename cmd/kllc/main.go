// Command kllc builds and exercises compiled KLL layouts: compile
// turns authored Bindings into the five wire tables, dump pretty-
// prints a compiled table set, simulate replays a TriggerEvent script
// through the runtime, and bench stress-drives a layout with a worker
// pool of concurrent LayerState machines.
package main

import (
	"encoding/gob"
	"fmt"
	"os"
	"runtime"
	"sync"
	"time"

	"github.com/spf13/cobra"

	"github.com/kiibohd/kiibohd-core/pkg/bench"
	"github.com/kiibohd/kiibohd-core/pkg/compiler"
	"github.com/kiibohd/kiibohd-core/pkg/event"
	"github.com/kiibohd/kiibohd-core/pkg/layout"
	kllruntime "github.com/kiibohd/kiibohd-core/pkg/runtime"
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "kllc",
		Short: "KLL layout compiler and runtime harness",
	}

	rootCmd.AddCommand(newCompileCmd(), newDumpCmd(), newSimulateCmd(), newBenchCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "kllc:", err)
		os.Exit(1)
	}
}

func newCompileCmd() *cobra.Command {
	var bindingsPath, outPath, pkgName, checkpointPath string

	cmd := &cobra.Command{
		Use:   "compile",
		Short: "Compile a gob-encoded binding set into Go source",
		RunE: func(cmd *cobra.Command, args []string) error {
			bindings, err := loadBindings(bindingsPath)
			if err != nil {
				return fmt.Errorf("load bindings: %w", err)
			}

			if checkpointPath != "" {
				if ckpt, err := bench.LoadCheckpoint(checkpointPath); err == nil {
					fmt.Printf("resuming from checkpoint: %d/%d bindings already processed\n", len(ckpt.Processed), ckpt.Total)
					bindings = append(ckpt.Processed, bindings...)
				}
			}

			tables, err := compiler.Build(compiler.Config{}, bindings)
			if err != nil {
				return fmt.Errorf("build: %w", err)
			}

			if checkpointPath != "" {
				ckpt := &bench.Checkpoint{Processed: bindings, Total: len(bindings)}
				if err := bench.SaveCheckpoint(checkpointPath, ckpt); err != nil {
					return fmt.Errorf("save checkpoint: %w", err)
				}
			}

			out := os.Stdout
			if outPath != "" {
				f, err := os.Create(outPath)
				if err != nil {
					return err
				}
				defer f.Close()
				out = f
			}
			return compiler.EmitGo(out, pkgName, tables)
		},
	}
	cmd.Flags().StringVar(&bindingsPath, "bindings", "", "gob file containing []compiler.Binding")
	cmd.Flags().StringVar(&outPath, "output", "", "output Go source path (default: stdout)")
	cmd.Flags().StringVar(&pkgName, "package", "layout", "generated package name")
	cmd.Flags().StringVar(&checkpointPath, "checkpoint", "", "checkpoint file to resume from / save to")
	cmd.MarkFlagRequired("bindings")
	return cmd
}

func newDumpCmd() *cobra.Command {
	var tablesPath string

	cmd := &cobra.Command{
		Use:   "dump",
		Short: "Pretty-print a compiled table set's layer lookup entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables(tablesPath)
			if err != nil {
				return fmt.Errorf("load tables: %w", err)
			}
			ll, err := layout.New(tables.LayerLookup, tables.TriggerGuides, tables.ResultGuides, tables.TriggerResultMapping)
			if err != nil {
				return fmt.Errorf("parse layout: %w", err)
			}
			fmt.Printf("layers: %d\n", ll.MaxLayers())
			fmt.Printf("trigger guide bytes: %d\n", len(tables.TriggerGuides))
			fmt.Printf("result guide bytes: %d\n", len(tables.ResultGuides))
			fmt.Printf("trigger/result pairs: %d\n", len(tables.TriggerResultMapping)/4)
			fmt.Printf("loop condition lookup entries: %d\n", len(tables.LoopConditionLookup)/4)
			return nil
		},
	}
	cmd.Flags().StringVar(&tablesPath, "tables", "", "gob file containing *compiler.Tables")
	cmd.MarkFlagRequired("tables")
	return cmd
}

func newSimulateCmd() *cobra.Command {
	var tablesPath string
	var fuzzSeed int64
	var fuzzScancodes, fuzzLength int

	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Replay a fuzzed event script through a compiled layout",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables(tablesPath)
			if err != nil {
				return fmt.Errorf("load tables: %w", err)
			}
			ll, err := layout.New(tables.LayerLookup, tables.TriggerGuides, tables.ResultGuides, tables.TriggerResultMapping)
			if err != nil {
				return fmt.Errorf("parse layout: %w", err)
			}

			ls := kllruntime.New(kllruntime.Config{}, ll, compiler.DecodeLoopConditionLookup(tables.LoopConditionLookup))
			script := compiler.FuzzScript(uint64(fuzzSeed), fuzzScancodes, fuzzLength)

			for _, ev := range script {
				ls.IncrementTime()
				if err := ls.ProcessTrigger(ev); err != nil {
					return fmt.Errorf("process trigger: %w", err)
				}
				if err := ls.ProcessOffStateLookups(restingOffState); err != nil {
					return fmt.Errorf("process off-state lookups: %w", err)
				}
				for _, run := range ls.FinalizeTriggers() {
					fmt.Printf("t=%d kind=%s event=%v payload=%v\n", ls.Time(), run.Kind, run.Event, run.Payload)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tablesPath, "tables", "", "gob file containing *compiler.Tables")
	cmd.Flags().Int64Var(&fuzzSeed, "seed", 1, "fuzz script PRNG seed")
	cmd.Flags().IntVar(&fuzzScancodes, "scancodes", 8, "number of distinct scancodes to fuzz across")
	cmd.Flags().IntVar(&fuzzLength, "length", 100, "number of events to generate")
	cmd.MarkFlagRequired("tables")
	return cmd
}

func newBenchCmd() *cobra.Command {
	var tablesPath string
	var numWorkers, fuzzLength, fuzzScancodes int

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Stress-drive a compiled layout with concurrent LayerState workers",
		RunE: func(cmd *cobra.Command, args []string) error {
			tables, err := loadTables(tablesPath)
			if err != nil {
				return fmt.Errorf("load tables: %w", err)
			}
			ll, err := layout.New(tables.LayerLookup, tables.TriggerGuides, tables.ResultGuides, tables.TriggerResultMapping)
			if err != nil {
				return fmt.Errorf("parse layout: %w", err)
			}

			if numWorkers <= 0 {
				numWorkers = runtime.NumCPU()
			}

			results := bench.NewTable()
			var wg sync.WaitGroup
			for w := 0; w < numWorkers; w++ {
				wg.Add(1)
				go func(seed int64) {
					defer wg.Done()
					ls := kllruntime.New(kllruntime.Config{}, ll, compiler.DecodeLoopConditionLookup(tables.LoopConditionLookup))
					script := compiler.FuzzScript(uint64(seed), fuzzScancodes, fuzzLength)

					start := time.Now()
					fired := 0
					for _, ev := range script {
						ls.IncrementTime()
						if err := ls.ProcessTrigger(ev); err != nil {
							return
						}
						if err := ls.ProcessOffStateLookups(restingOffState); err != nil {
							return
						}
						fired += len(ls.FinalizeTriggers())
					}
					results.Add(bench.Sample{
						Label:      fmt.Sprintf("worker-%d", seed),
						EventCount: len(script),
						CapsFired:  fired,
						Elapsed:    time.Since(start),
					})
				}(int64(w))
			}
			wg.Wait()

			for _, s := range results.Samples() {
				fmt.Printf("%-12s events=%-6d caps=%-6d elapsed=%v (%.0f ev/s)\n",
					s.Label, s.EventCount, s.CapsFired, s.Elapsed, s.EventsPerSecond())
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tablesPath, "tables", "", "gob file containing *compiler.Tables")
	cmd.Flags().IntVar(&numWorkers, "workers", 0, "number of concurrent workers (0 = NumCPU)")
	cmd.Flags().IntVar(&fuzzLength, "length", 10000, "events per worker")
	cmd.Flags().IntVar(&fuzzScancodes, "scancodes", 16, "number of distinct scancodes to fuzz across")
	cmd.MarkFlagRequired("tables")
	return cmd
}

// restingOffState resolves an Off-state lookup the way a fuzzed
// simulation (with no real hardware to poll) has to: it reports the
// control as fully released/deactivated, since the fuzz scripts this
// command drives never hold a control at rest indefinitely mid-combo.
func restingOffState(kind event.Kind, index uint16) event.TriggerEvent {
	return event.TriggerEvent{Kind: kind, State: uint8(event.PhroOff), Index: index}
}

func init() {
	gob.Register(compiler.Tables{})
	gob.Register(compiler.Binding{})
	gob.Register(event.TriggerCondition{})
	gob.Register(event.Capability{})
}

func loadBindings(path string) ([]compiler.Binding, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var bindings []compiler.Binding
	if err := gob.NewDecoder(f).Decode(&bindings); err != nil {
		return nil, err
	}
	return bindings, nil
}

func loadTables(path string) (*compiler.Tables, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var tables compiler.Tables
	if err := gob.NewDecoder(f).Decode(&tables); err != nil {
		return nil, err
	}
	return &tables, nil
}
