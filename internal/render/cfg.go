package render

import (
	"fmt"
	"strings"

	"deobf/internal/disasm"
	"deobf/internal/jvm"
)

// CFGDOT renders a per-method basic-block CFG as DOT.
// Each basic block is a node; edges represent control flow.
// Entry block is highlighted. Conditional edges use T/F colors, exception
// edges are dashed. When reachable is non-nil, blocks with no reachable
// instruction are filled with the dead color.
func CFGDOT(cfg disasm.FuncCFG, reachable func(i int) bool, t Theme) string {
	if len(cfg.Blocks) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("digraph cfg {\n")
	b.WriteString("  rankdir=TB;\n")
	b.WriteString("  nodesep=0.3;\n")
	b.WriteString("  ranksep=0.4;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=filled, fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Courier,monospace\", fontsize=8, fontcolor=%q, margin=\"0.08,0.04\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.7, arrowsize=0.5, arrowhead=vee];\n")
	fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
	fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"9\" color=\"%s\">%s</font>>;\n",
		t.TextColor, dotEscape(cfg.Name))
	b.WriteByte('\n')

	for _, blk := range cfg.Blocks {
		id := fmt.Sprintf("bb%d", blk.ID)

		var lines []string
		end := min(blk.End, len(cfg.Insts))
		for i := blk.Start; i < end; i++ {
			inst := cfg.Insts[i]
			line := fmt.Sprintf("%3d: %s", inst.Index, inst.Text)
			if inst.Insn.Op == jvm.LABEL {
				line = inst.Text
			}
			lines = append(lines, dotEscape(line))
		}
		// Truncate long blocks.
		if len(lines) > 12 {
			kept := append(lines[:5], fmt.Sprintf("... (%d more)", len(lines)-10))
			lines = append(kept, lines[len(lines)-5:]...)
		}

		label := strings.Join(lines, "<br align=\"left\"/>")
		label += "<br align=\"left\"/>"

		attrs := ""
		if blk.IsEntry {
			attrs = fmt.Sprintf(", penwidth=1.5, color=%q", t.EntryBorder)
		}
		switch {
		case reachable != nil && isDead(cfg, blk, reachable):
			attrs += fmt.Sprintf(", fillcolor=%q, style=\"filled,dashed\"", t.DeadFill)
		case blk.Handler:
			attrs += fmt.Sprintf(", fillcolor=%q", t.HandlerFill)
		case blk.IsTerm:
			attrs += fmt.Sprintf(", fillcolor=%q", t.TermFill)
		}
		fmt.Fprintf(&b, "  %s [label=<%s>%s];\n", id, label, attrs)
	}
	b.WriteByte('\n')

	for _, blk := range cfg.Blocks {
		from := fmt.Sprintf("bb%d", blk.ID)
		for _, s := range blk.Succs {
			to := fmt.Sprintf("bb%d", s.BlockID)
			switch {
			case s.Cond == "T":
				fmt.Fprintf(&b, "  %s -> %s [color=%q, label=<<font point-size=\"7\" color=\"%s\">T</font>>];\n",
					from, to, t.EdgeTaken, t.EdgeTaken)
			case s.Cond == "F":
				fmt.Fprintf(&b, "  %s -> %s [color=%q, label=<<font point-size=\"7\" color=\"%s\">F</font>>];\n",
					from, to, t.EdgeFallthrough, t.EdgeFallthrough)
			case s.Cond == "E":
				fmt.Fprintf(&b, "  %s -> %s [color=%q, style=dashed];\n", from, to, t.EdgeException)
			case s.Cond != "":
				fmt.Fprintf(&b, "  %s -> %s [color=%q, label=<<font point-size=\"7\" color=\"%s\">%s</font>>];\n",
					from, to, t.EdgeSwitch, t.EdgeSwitch, dotEscape(s.Cond))
			default:
				fmt.Fprintf(&b, "  %s -> %s [color=%q];\n", from, to, t.EdgeDirect)
			}
		}
	}

	b.WriteString("}\n")
	return b.String()
}

// isDead reports whether no real instruction of blk is reachable.
func isDead(cfg disasm.FuncCFG, blk disasm.BasicBlock, reachable func(int) bool) bool {
	for i := blk.Start; i < blk.End && i < len(cfg.Insts); i++ {
		if cfg.Insts[i].Insn.Op != jvm.LABEL && reachable(i) {
			return false
		}
	}
	return true
}
