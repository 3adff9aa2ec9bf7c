package render

// Theme holds colors for CFG and class graph rendering.
type Theme struct {
	Background string
	NodeFill   string
	NodeBorder string
	TextColor  string

	// Edge colors by successor kind.
	EdgeTaken       string // conditional taken (T)
	EdgeFallthrough string // conditional fallthrough (F)
	EdgeSwitch      string // switch cases and default
	EdgeException   string // exception handler edges (E)
	EdgeDirect      string // unconditional flow

	// Node accents.
	EntryBorder  string // method entry block
	TermFill     string // blocks ending in a return or athrow
	HandlerFill  string // exception handler entry blocks
	DeadFill     string // blocks the analysis never reached
	ExternalText string // secondary text

	// Cluster styling.
	ClusterBorder string // subgraph cluster border
	ClusterLabel  string // subgraph cluster label text
}

// NASA is the NASA/Bauhaus theme: geometric, monochrome, sparse color.
var NASA = Theme{
	Background: "#F5F5F5",
	NodeFill:   "white",
	NodeBorder: "#1A1A1A",
	TextColor:  "#1A1A1A",

	EdgeTaken:       "#0B3D91", // NASA blue
	EdgeFallthrough: "#FC3D21", // NASA red
	EdgeSwitch:      "#00695C", // teal
	EdgeException:   "#E65100", // deep orange
	EdgeDirect:      "#424242", // dark gray

	EntryBorder:  "#0B3D91",
	TermFill:     "#ECEFF1", // blue-gray 50
	HandlerFill:  "#FFF3E0", // orange 50
	DeadFill:     "#E0E0E0",
	ExternalText: "#9E9E9E",

	ClusterBorder: "#BDBDBD",
	ClusterLabel:  "#757575",
}
