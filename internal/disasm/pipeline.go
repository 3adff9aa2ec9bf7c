package disasm

// MethodRecord is one line in methods.jsonl.
type MethodRecord struct {
	Class      string `json:"class"`
	Name       string `json:"name"`
	Desc       string `json:"desc"`
	Insns      int    `json:"insns"`
	Blocks     int    `json:"blocks"`
	TryCatches int    `json:"try_catches,omitempty"`
	Dead       int    `json:"dead,omitempty"`
	DeadBlocks int    `json:"dead_blocks,omitempty"` // blocks holding unreachable instructions
	Error      string `json:"error,omitempty"` // analysis failure, if any
}

// CallEdgeRecord is one line in call_edges.jsonl.
type CallEdgeRecord struct {
	FromMethod string `json:"from_method"`
	Index      int    `json:"index"`
	Kind       string `json:"kind"` // invoke opcode mnemonic
	Target     string `json:"target"`
	Pure       bool   `json:"pure,omitempty"`
}

// StringRefRecord is one line in string_refs.jsonl.
type StringRefRecord struct {
	Method string `json:"method"`
	Index  int    `json:"index"`
	Value  string `json:"value"` // raw string value (unquoted)
}
