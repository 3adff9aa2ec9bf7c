package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"deobf/internal/analysis"
	"deobf/internal/disasm"
	"deobf/internal/jvm"
)

func newDisasmCmd(e *env) *cobra.Command {
	var (
		in      string
		classes []string
		analyze bool
	)
	cmd := &cobra.Command{
		Use:   "disasm",
		Short: "Print the disassembly of a bundle",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := loadBundle(in)
			if err != nil {
				return err
			}
			selected, err := selectClasses(b, classes)
			if err != nil {
				return err
			}
			an := analysis.NewAnalyzer(analysis.NewInterpreter(e.calls()))
			an.MaxSteps = e.cfg.MaxAnalysisSteps
			for i, cls := range selected {
				var annotate func(m *jvm.Method) []disasm.Annotator
				if analyze {
					annotate = func(m *jvm.Method) []disasm.Annotator {
						if m.Code == nil {
							return nil
						}
						fm, err := an.Analyze(cls.Name, m)
						if err != nil {
							e.logger.Debug("analysis failed", "class", cls.Name, "method", m.Key(), "err", err)
							return nil
						}
						return disasm.AnalysisAnnotators(m.Code, fm, an.Interp.Calls)
					}
				}
				if i > 0 {
					fmt.Fprintln(cmd.OutOrStdout())
				}
				fmt.Fprint(cmd.OutOrStdout(), disasm.FormatClass(cls, annotate))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&in, "in", "", "input bundle (JSON)")
	cmd.Flags().StringSliceVar(&classes, "class", nil, "classes to print; all when empty")
	cmd.Flags().BoolVar(&analyze, "analyze", false, "annotate with analysis results: dead code, branch outcomes, known values")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

// selectClasses returns the named classes, or every class when names is
// empty.
func selectClasses(b *jvm.Bundle, names []string) ([]*jvm.Class, error) {
	if len(names) == 0 {
		return b.Classes(), nil
	}
	out := make([]*jvm.Class, 0, len(names))
	for _, name := range names {
		cls, ok := b.Get(name)
		if !ok {
			return nil, fmt.Errorf("class %s not in bundle", name)
		}
		out = append(out, cls)
	}
	return out, nil
}
