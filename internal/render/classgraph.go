package render

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"deobf/internal/disasm"
)

// ownerOf returns the class part of "owner.name(desc)".
func ownerOf(method string) string {
	if i := strings.IndexByte(method, '.'); i > 0 {
		return method[:i]
	}
	return method
}

// ClassgraphDOT renders a class-level callgraph where each class is one node
// and edges represent aggregated inter-class calls. maxNodes limits rendered
// classes (0 = all). Calls into classes outside the records are grouped
// under "(library)".
func ClassgraphDOT(methods []disasm.MethodRecord, edges []disasm.CallEdgeRecord, title string, t Theme, maxNodes int) string {
	const library = "(library)"

	ownerMethodCount := make(map[string]int)
	for _, m := range methods {
		ownerMethodCount[m.Class]++
	}

	type classEdge struct {
		from, to string
	}
	classCounts := make(map[classEdge]int)
	for _, e := range edges {
		src := ownerOf(e.FromMethod)
		dst := ownerOf(e.Target)
		if strings.HasPrefix(e.Target, "indy:") {
			continue // no static target
		}
		if _, ok := ownerMethodCount[dst]; !ok {
			dst = library
		}
		if src == dst {
			continue // skip intra-class calls
		}
		classCounts[classEdge{src, dst}]++
	}

	classInvolvement := make(map[string]int) // total edges touching this class
	for ce, count := range classCounts {
		classInvolvement[ce.from] += count
		classInvolvement[ce.to] += count
	}

	type rankedClass struct {
		name        string
		involvement int
	}
	ranked := make([]rankedClass, 0, len(classInvolvement))
	for name, inv := range classInvolvement {
		ranked = append(ranked, rankedClass{name, inv})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].involvement != ranked[j].involvement {
			return ranked[i].involvement > ranked[j].involvement
		}
		return ranked[i].name < ranked[j].name
	})

	renderSet := make(map[string]bool)
	limit := len(ranked)
	if maxNodes > 0 && limit > maxNodes {
		limit = maxNodes
	}
	for _, rc := range ranked[:limit] {
		renderSet[rc.name] = true
	}

	var b strings.Builder
	b.WriteString("digraph classgraph {\n")
	b.WriteString("  rankdir=LR;\n")
	b.WriteString("  splines=true;\n")
	b.WriteString("  nodesep=0.5;\n")
	b.WriteString("  ranksep=0.8;\n")
	fmt.Fprintf(&b, "  bgcolor=%q;\n", t.Background)
	fmt.Fprintf(&b, "  node [shape=rect, style=\"filled,rounded\", fillcolor=%q, color=%q, penwidth=0.5, fontname=\"Helvetica Neue,Helvetica,Arial\", fontsize=10, fontcolor=%q, height=0.4, margin=\"0.15,0.08\"];\n",
		t.NodeFill, t.NodeBorder, t.TextColor)
	fmt.Fprintf(&b, "  edge [penwidth=0.5, arrowsize=0.5, arrowhead=vee, color=%q];\n", t.EdgeDirect)
	if title != "" {
		fmt.Fprintf(&b, "  labelloc=t;\n  labeljust=l;\n")
		fmt.Fprintf(&b, "  label=<<font face=\"Helvetica Neue,Helvetica\" point-size=\"8\" color=\"%s\">%s</font>>;\n",
			t.TextColor, dotEscape(title))
	}
	b.WriteByte('\n')

	maxMethods := 1
	for name := range renderSet {
		if c := ownerMethodCount[name]; c > maxMethods {
			maxMethods = c
		}
	}
	// Classes of one package share a cluster; the library node stays outside.
	byPackage := make(map[string][]string)
	var pkgs []string
	for _, rc := range ranked[:limit] {
		if rc.name == library {
			continue
		}
		pkg := packageOf(rc.name)
		if _, ok := byPackage[pkg]; !ok {
			pkgs = append(pkgs, pkg)
		}
		byPackage[pkg] = append(byPackage[pkg], rc.name)
	}
	sort.Strings(pkgs)

	node := func(indent, name string) {
		methods := ownerMethodCount[name]
		// Scale node height by method count (log scale).
		height := 0.4 + 0.3*math.Log2(float64(methods)+1)/math.Log2(float64(maxMethods)+1)
		if name == library {
			fmt.Fprintf(&b, "%s%s [label=%q, fillcolor=%q, height=%.2f];\n",
				indent, dotID(name), name, t.TermFill, height)
			return
		}
		htmlLabel := fmt.Sprintf("<<font point-size=\"10\">%s</font><br/><font point-size=\"7\" color=\"%s\">%d methods</font>>",
			dotEscape(truncLabel(simpleName(name), 40)), t.ExternalText, methods)
		fmt.Fprintf(&b, "%s%s [label=%s, tooltip=%q, height=%.2f];\n", indent, dotID(name), htmlLabel, name, height)
	}
	for i, pkg := range pkgs {
		classes := byPackage[pkg]
		sort.Strings(classes)
		if pkg == "" {
			for _, name := range classes {
				node("  ", name)
			}
			continue
		}
		fmt.Fprintf(&b, "  subgraph cluster_%d {\n", i)
		fmt.Fprintf(&b, "    label=%q;\n    color=%q;\n    fontcolor=%q;\n    fontsize=8;\n",
			strings.ReplaceAll(pkg, "/", "."), t.ClusterBorder, t.ClusterLabel)
		for _, name := range classes {
			node("    ", name)
		}
		b.WriteString("  }\n")
	}
	if renderSet[library] {
		node("  ", library)
	}
	b.WriteByte('\n')

	var rendered []classEdge
	maxEdgeCount := 1
	for ce, c := range classCounts {
		if !renderSet[ce.from] || !renderSet[ce.to] {
			continue
		}
		rendered = append(rendered, ce)
		if c > maxEdgeCount {
			maxEdgeCount = c
		}
	}
	sort.Slice(rendered, func(i, j int) bool {
		if rendered[i].from != rendered[j].from {
			return rendered[i].from < rendered[j].from
		}
		return rendered[i].to < rendered[j].to
	})

	for _, ce := range rendered {
		count := classCounts[ce]
		pw := 0.5 + 2.0*math.Log2(float64(count)+1)/math.Log2(float64(maxEdgeCount)+1)
		attrs := fmt.Sprintf("penwidth=%.1f", pw)
		if count > 1 {
			attrs += fmt.Sprintf(", label=<<font point-size=\"7\" color=\"%s\">%d</font>>",
				t.ExternalText, count)
		}
		fmt.Fprintf(&b, "  %s -> %s [%s];\n", dotID(ce.from), dotID(ce.to), attrs)
	}

	b.WriteString("}\n")
	return b.String()
}
