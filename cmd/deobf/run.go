package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"deobf/internal/output"
	"deobf/internal/passes"
	"deobf/internal/transform"
)

type runOptions struct {
	in, out    string
	report     string
	asmDir     string
	recordsDir string
	transforms []string
	dryRun     bool
}

func newRunCmd(e *env) *cobra.Command {
	o := &runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Transform a bundle and write the result",
		Long: `Load a JSON class bundle, run the configured transformers until a full pass
changes nothing, commit the result and save the bundle.

Per-method failures are logged and reported but never fail the command.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return e.run(cmd, o)
		},
	}
	f := cmd.Flags()
	f.StringVar(&o.in, "in", "", "input bundle (JSON)")
	f.StringVar(&o.out, "out", "", "output bundle; defaults to overwriting --in")
	f.StringVar(&o.report, "report", "", "write a JSON report of changes, renames and failures")
	f.StringVar(&o.asmDir, "asm", "", "write the disassembly of every changed class under this directory")
	f.StringVar(&o.recordsDir, "records", "", "write methods.jsonl, call_edges.jsonl and string_refs.jsonl of the result")
	f.StringSliceVar(&o.transforms, "transform", nil, "transformers to run, overriding the configuration")
	f.BoolVar(&o.dryRun, "dry-run", false, "report what would change without saving")
	_ = cmd.MarkFlagRequired("in")
	return cmd
}

func (e *env) run(cmd *cobra.Command, o *runOptions) error {
	b, err := loadBundle(o.in)
	if err != nil {
		return err
	}

	names := o.transforms
	if len(names) == 0 {
		names = e.cfg.Transformers
	}
	if len(names) == 0 {
		names = passes.DefaultNames
	}

	app := transform.NewApplier(passes.NewRegistry())
	app.Calls = e.calls()
	app.Workers = e.cfg.Workers
	app.MaxPasses = e.cfg.MaxPasses
	app.MaxAnalysisSteps = e.cfg.MaxAnalysisSteps
	app.Logger = e.logger

	e.logger.Info("loaded bundle", "path", o.in, "classes", b.Len())
	res, err := app.Run(cmd.Context(), b, names)
	if err != nil {
		return err
	}
	for _, f := range res.Failures {
		e.logger.Warn("transformer failed",
			"transformer", f.Key.Transformer,
			"class", f.Key.Class,
			"method", f.Key.Method,
			"err", f.Err)
	}

	if o.report != "" {
		if err := output.WriteReport(o.report, output.NewReport(res)); err != nil {
			return err
		}
	}
	if o.dryRun {
		fmt.Fprintf(cmd.OutOrStdout(), "%d classes would change, %d removed, %d renames, %d failures\n",
			len(res.Classes), len(res.Removed), res.Mappings.Len(), len(res.Failures))
		return nil
	}

	if err := res.Apply(); err != nil {
		return err
	}
	out := o.out
	if out == "" {
		out = o.in
	}
	if err := saveBundle(out, b); err != nil {
		return fmt.Errorf("save %s: %w", out, err)
	}
	e.logger.Info("saved bundle", "path", out, "classes", b.Len())

	if o.asmDir != "" {
		changed := make([]string, 0, len(res.Classes))
		for name := range res.Classes {
			changed = append(changed, res.Mappings.Class(name))
		}
		sort.Strings(changed)
		for _, name := range changed {
			cls, ok := b.Get(name)
			if !ok {
				continue
			}
			if err := output.WriteASM(o.asmDir, cls, nil); err != nil {
				return err
			}
		}
	}
	if o.recordsDir != "" {
		methods, edges, strs := output.Records(b.Classes(), app.Calls)
		if err := output.WriteRecords(o.recordsDir, methods, edges, strs); err != nil {
			return err
		}
	}
	return nil
}
