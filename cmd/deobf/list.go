package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"deobf/internal/passes"
	"deobf/internal/transform"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transformers with their dependencies",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			defaults := make(map[string]bool, len(passes.DefaultNames))
			for _, n := range passes.DefaultNames {
				defaults[n] = true
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "NAME\tDEFAULT\tDEPENDS ON\tDESCRIPTION")
			for _, t := range passes.All() {
				var deps []string
				if d, ok := t.(transform.Dependent); ok {
					deps = d.Dependencies()
				}
				def := ""
				if defaults[t.Name()] {
					def = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", t.Name(), def, strings.Join(deps, ","), t.Description())
			}
			return w.Flush()
		},
	}
}
