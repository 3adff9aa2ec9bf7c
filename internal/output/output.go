// Package output writes deobfuscation results to files.
package output

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"deobf/internal/analysis"
	"deobf/internal/callgraph"
	"deobf/internal/disasm"
	"deobf/internal/jvm"
	"deobf/internal/lookup"
	"deobf/internal/mapping"
	"deobf/internal/transform"
)

// ClassChange lists the methods a run changed in one class.
type ClassChange struct {
	Class   string   `json:"class"`
	Methods []string `json:"methods,omitempty"`
}

// FailureEntry is one recorded transformer failure.
type FailureEntry struct {
	Transformer string `json:"transformer"`
	Class       string `json:"class"`
	Method      string `json:"method,omitempty"`
	Error       string `json:"error"`
}

// Report summarizes a run for result.json.
type Report struct {
	Passes   int             `json:"passes"`
	Changed  []ClassChange   `json:"changed"`
	Removed  []string        `json:"removed,omitempty"`
	Mappings []mapping.Entry `json:"mappings,omitempty"`
	Failures []FailureEntry  `json:"failures,omitempty"`
}

// NewReport builds the report of res. Classes are sorted by name.
func NewReport(res *transform.Result) *Report {
	r := &Report{
		Passes:   res.Passes,
		Changed:  []ClassChange{},
		Removed:  res.Removed,
		Mappings: res.Mappings.Entries(),
	}
	names := make([]string, 0, len(res.Classes))
	for name := range res.Classes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		r.Changed = append(r.Changed, ClassChange{Class: name, Methods: res.Methods[name]})
	}
	for _, f := range res.Failures {
		r.Failures = append(r.Failures, FailureEntry{
			Transformer: f.Key.Transformer,
			Class:       f.Key.Class,
			Method:      f.Key.Method,
			Error:       f.Err.Error(),
		})
	}
	return r
}

// WriteReport writes r as indented JSON to path.
func WriteReport(path string, r *Report) error {
	return writeJSON(path, r)
}

// Records lists one method record per method with code, every invoke as a
// call edge and every string constant load. Methods that fail analysis carry
// the error instead of a dead count.
func Records(classes []*jvm.Class, calls *lookup.Registry) ([]disasm.MethodRecord, []disasm.CallEdgeRecord, []disasm.StringRefRecord) {
	an := analysis.NewAnalyzer(analysis.NewInterpreter(calls))
	var (
		methods []disasm.MethodRecord
		edges   []disasm.CallEdgeRecord
		strs    []disasm.StringRefRecord
	)
	for _, cls := range classes {
		for _, m := range cls.Methods {
			if m.Code == nil {
				continue
			}
			name := callgraph.MethodName(cls.Name, m.Name, m.Desc)
			cfg := disasm.BuildCFG(name, m.Code)
			rec := disasm.MethodRecord{
				Class:      cls.Name,
				Name:       m.Name,
				Desc:       m.Desc,
				Insns:      len(m.Code.Insns),
				Blocks:     len(cfg.Blocks),
				TryCatches: len(m.Code.TryCatches),
			}
			if fm, err := an.Analyze(cls.Name, m); err != nil {
				rec.Error = err.Error()
			} else {
				dead := fm.Unreachable()
				blocks := make(map[int]bool)
				for _, i := range dead {
					if b := cfg.BlockOf(i); b >= 0 {
						blocks[b] = true
					}
				}
				rec.Dead = len(dead)
				rec.DeadBlocks = len(blocks)
			}
			methods = append(methods, rec)

			for i, in := range m.Code.Insns {
				switch {
				case jvm.IsInvoke(in.Op):
					e := disasm.CallEdgeRecord{FromMethod: name, Index: i, Kind: in.Op.String()}
					if in.Op == jvm.INVOKEDYNAMIC {
						e.Target = "indy:" + in.Name + in.Desc
					} else {
						e.Target = callgraph.MethodName(in.Owner, in.Name, in.Desc)
						_, e.Pure = calls.Lookup(in.Owner, in.Name, in.Desc)
					}
					edges = append(edges, e)
				case (in.Op == jvm.LDC || in.Op == jvm.LDC_W) && in.Const != nil && in.Const.Kind == jvm.ConstString:
					strs = append(strs, disasm.StringRefRecord{Method: name, Index: i, Value: in.Const.String})
				}
			}
		}
	}
	return methods, edges, strs
}

// WriteRecords writes methods.jsonl, call_edges.jsonl and string_refs.jsonl
// into dir.
func WriteRecords(dir string, methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord, strs []disasm.StringRefRecord) error {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", dir, err)
	}
	if err := writeJSONL(filepath.Join(dir, "methods.jsonl"), methods); err != nil {
		return err
	}
	if err := writeJSONL(filepath.Join(dir, "call_edges.jsonl"), edges); err != nil {
		return err
	}
	return writeJSONL(filepath.Join(dir, "string_refs.jsonl"), strs)
}

// WriteASM writes the disassembly of cls to <dir>/asm/<class>.txt. Package
// separators in the class name become directories.
func WriteASM(dir string, cls *jvm.Class, annotators func(m *jvm.Method) []disasm.Annotator) error {
	path := filepath.Join(dir, "asm", filepath.FromSlash(cls.Name)+".txt")
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir asm: %w", err)
	}
	text := disasm.FormatClass(cls, annotators)
	return os.WriteFile(path, []byte(text), 0644)
}

// WriteDOT writes a rendered graph to path, creating its directory.
func WriteDOT(path, dot string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("output: mkdir %s: %w", filepath.Dir(path), err)
	}
	return os.WriteFile(path, []byte(dot), 0644)
}

func writeJSON(path string, v any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("output: encode %s: %w", path, err)
	}
	return nil
}

func writeJSONL[T any](path string, recs []T) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("output: create %s: %w", path, err)
	}
	defer f.Close()

	enc := json.NewEncoder(f)
	for _, r := range recs {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("output: encode %s: %w", path, err)
		}
	}
	return nil
}
