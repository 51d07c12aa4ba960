package query

// NodeKind tags a Node's variant. A flat tag is used instead of a type
// hierarchy since the variants (phrase/regex/fuzzy) differ enough that
// subtyping would add indirection without buying anything, per spec.md §9.
type NodeKind int

const (
	NodeAnd NodeKind = iota
	NodeOr
	NodeNot
	NodeTerm
	NodePhrase
	NodeRegex
	NodeFuzzy
)

// Node is one entry in the Query AST tree, per spec.md §3.
type Node struct {
	Kind NodeKind

	// Children holds operands for And/Or (2+ entries) and Not (exactly 1).
	Children []*Node

	// Text holds the literal for Term, Phrase, Fuzzy, and the source
	// pattern for Regex.
	Text string

	// FuzzyBudget is the edit-distance budget for NodeFuzzy: 1 for terms
	// of length <=4, 2 otherwise, per spec.md §4.E.
	FuzzyBudget int

	// Compiled holds the compiled regexp for NodeRegex, set once during
	// parsing; compilation failure surfaces as BadRegex immediately.
	Compiled *compiledRegex
}

// Leaves collects every Term/Phrase/Regex/Fuzzy leaf under n, in left to
// right order, used by the orchestrator to gather candidate posting lists
// and by highlighting to know what to look for.
func (n *Node) Leaves() []*Node {
	var out []*Node
	var walk func(*Node)
	walk = func(node *Node) {
		if node == nil {
			return
		}
		switch node.Kind {
		case NodeTerm, NodePhrase, NodeRegex, NodeFuzzy:
			out = append(out, node)
		default:
			for _, c := range node.Children {
				walk(c)
			}
		}
	}
	walk(n)
	return out
}

// HasTextLeaf reports whether the AST contains a Term or Phrase leaf,
// which per spec.md §4.H selects the index-driven candidate path over the
// regex/fuzzy full-scan path.
func (n *Node) HasTextLeaf() bool {
	for _, leaf := range n.Leaves() {
		if leaf.Kind == NodeTerm || leaf.Kind == NodePhrase {
			return true
		}
	}
	return false
}
