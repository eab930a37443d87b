package compiler

import (
	"fmt"
	"io"
	"strings"
)

// EmitGo writes a human-readable Go declaration file for tables to w,
// in the same spirit as a real KLL compiler's rust() emitter: a
// generated-file banner followed by one exported byte-slice literal
// per table, so a firmware build can embed the compiled layout without
// running pkg/compiler at flash time.
func EmitGo(w io.Writer, pkg string, tables *Tables) error {
	if pkg == "" {
		pkg = "layout"
	}
	if _, err := fmt.Fprintf(w, "// Code generated by kllc compile; DO NOT EDIT.\n\npackage %s\n\n", pkg); err != nil {
		return err
	}
	if err := emitByteSlice(w, "TriggerGuides", tables.TriggerGuides); err != nil {
		return err
	}
	if err := emitByteSlice(w, "ResultGuides", tables.ResultGuides); err != nil {
		return err
	}
	if err := emitByteSlice(w, "TriggerResultMapping", tables.TriggerResultMapping); err != nil {
		return err
	}
	if err := emitByteSlice(w, "LayerLookup", tables.LayerLookup); err != nil {
		return err
	}
	return emitByteSlice(w, "LoopConditionLookup", tables.LoopConditionLookup)
}

func emitByteSlice(w io.Writer, name string, data []byte) error {
	var b strings.Builder
	fmt.Fprintf(&b, "var %s = []byte{\n", name)
	for i, by := range data {
		if i%12 == 0 {
			b.WriteString("\t")
		}
		fmt.Fprintf(&b, "0x%02x,", by)
		if i%12 == 11 {
			b.WriteString("\n")
		} else {
			b.WriteString(" ")
		}
	}
	if len(data) == 0 || len(data)%12 != 0 {
		b.WriteString("\n")
	}
	b.WriteString("}\n\n")
	_, err := w.Write([]byte(b.String()))
	return err
}
