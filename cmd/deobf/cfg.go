package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/zboralski/lattice"
	lrender "github.com/zboralski/lattice/render"

	"deobf/internal/analysis"
	"deobf/internal/callgraph"
	"deobf/internal/disasm"
	"deobf/internal/hierarchy"
	"deobf/internal/jvm"
	"deobf/internal/output"
	"deobf/internal/render"
)

type cfgOptions struct {
	in, out    string
	classes    []string
	method     string
	calls      bool
	classGraph bool
	hierarchy  bool
	summary    bool
	maxNodes   int
}

func newCFGCmd(e *env) *cobra.Command {
	o := &cfgOptions{}
	cmd := &cobra.Command{
		Use:   "cfg",
		Short: "Render control flow, call or hierarchy graphs as DOT",
		Long: `Render a graph of the bundle in Graphviz DOT.

With --method the basic blocks of one method are drawn, unreachable blocks
shaded. Without it every method of --class is drawn. --calls, --classgraph,
--summary and --hierarchy draw graphs of the selected classes or the whole
bundle instead.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			dot, err := e.graph(o)
			if err != nil {
				return err
			}
			if o.out == "" {
				fmt.Fprint(cmd.OutOrStdout(), dot)
				return nil
			}
			return output.WriteDOT(o.out, dot)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input bundle (JSON)")
	f.StringVar(&o.out, "out", "", "DOT file to write; stdout when empty")
	f.StringSliceVar(&o.classes, "class", nil, "classes to draw")
	f.StringVar(&o.method, "method", "", "method name, or name and descriptor, to draw")
	f.BoolVar(&o.calls, "calls", false, "draw the method call graph")
	f.BoolVar(&o.classGraph, "classgraph", false, "draw calls aggregated per class")
	f.BoolVar(&o.hierarchy, "hierarchy", false, "draw the class hierarchy")
	f.BoolVar(&o.summary, "summary", false, "draw one node per method listing its calls and string literals")
	f.IntVar(&o.maxNodes, "max-nodes", 0, "limit classes in --classgraph (0 = all)")
	_ = cmd.MarkFlagRequired("in")
	cmd.MarkFlagsMutuallyExclusive("calls", "classgraph", "hierarchy", "summary", "method")
	return cmd
}

func (e *env) graph(o *cfgOptions) (string, error) {
	b, err := loadBundle(o.in)
	if err != nil {
		return "", err
	}
	selected, err := selectClasses(b, o.classes)
	if err != nil {
		return "", err
	}

	switch {
	case o.hierarchy:
		return lrender.DOT(hierarchy.New(b.Classes()).Lattice(), "class hierarchy"), nil
	case o.calls:
		return lrender.DOT(callgraph.BuildCallGraph(callgraph.FromClasses(selected)), "call graph"), nil
	case o.classGraph:
		methods, edges, _ := output.Records(selected, e.calls())
		return render.ClassgraphDOT(methods, edges, "class graph", render.NASA, o.maxNodes), nil
	case o.summary:
		cg := &lattice.CFGGraph{}
		for _, m := range callgraph.FromClasses(selected) {
			if f := callgraph.BuildSummaryCFG(m.Name, m.Code); len(f.Blocks) > 0 {
				cg.Funcs = append(cg.Funcs, f)
			}
		}
		return lrender.DOTCFG(cg, "method summary"), nil
	}

	if len(o.classes) != 1 {
		return "", fmt.Errorf("exactly one --class is required to draw method graphs")
	}
	cls := selected[0]
	if o.method == "" {
		return lrender.DOTCFG(callgraph.BuildCFG(callgraph.FromClasses(selected)), cls.Name), nil
	}
	m := findMethod(cls, o.method)
	if m == nil {
		return "", fmt.Errorf("method %s not found in %s", o.method, cls.Name)
	}
	if m.Code == nil {
		return "", fmt.Errorf("method %s.%s has no code", cls.Name, m.Key())
	}

	cfg := disasm.BuildCFG(callgraph.MethodName(cls.Name, m.Name, m.Desc), m.Code)
	an := analysis.NewAnalyzer(analysis.NewInterpreter(e.calls()))
	an.MaxSteps = e.cfg.MaxAnalysisSteps
	var reachable func(int) bool
	if fm, err := an.Analyze(cls.Name, m); err != nil {
		e.logger.Warn("analysis failed, drawing without reachability", "method", m.Key(), "err", err)
	} else {
		reachable = fm.Reachable
	}
	return render.CFGDOT(cfg, reachable, render.NASA), nil
}

// findMethod matches sel against name+desc first, then the bare name.
func findMethod(cls *jvm.Class, sel string) *jvm.Method {
	for _, m := range cls.Methods {
		if m.Name+m.Desc == sel {
			return m
		}
	}
	if strings.Contains(sel, "(") {
		return nil
	}
	for _, m := range cls.Methods {
		if m.Name == sel {
			return m
		}
	}
	return nil
}
