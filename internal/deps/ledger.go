// Package deps records which files a document pass touched.
package deps

import "github.com/MarkBind/markbind-sub000/internal/util/sets"

// Kind classifies a dependency edge.
type Kind int

const (
	// Static edges are resolved while compiling the page (includes).
	Static Kind = iota
	// Dynamic edges are resolved later by the client (panel/popover src).
	Dynamic
	// Missing edges point at files that did not exist at compile time.
	Missing
)

func (k Kind) String() string {
	switch k {
	case Static:
		return "static"
	case Dynamic:
		return "dynamic"
	case Missing:
		return "missing"
	default:
		return "unknown"
	}
}

// Edge is one from → to relationship. AsIfAt is the path the target is
// treated as living at when it differs from To (boilerplate redirection).
type Edge struct {
	From   string
	To     string
	AsIfAt string
	Kind   Kind
}

// Ledger is an append-only edge list owned by one document pass.
// It is not safe for concurrent use.
type Ledger struct {
	edges []Edge
}

// New returns an empty ledger.
func New() *Ledger {
	return &Ledger{}
}

// AddStatic records a static edge.
func (l *Ledger) AddStatic(from, to, asIfAt string) {
	l.edges = append(l.edges, Edge{From: from, To: to, AsIfAt: asIfAt, Kind: Static})
}

// AddDynamic records a dynamic edge.
func (l *Ledger) AddDynamic(from, to, asIfAt string) {
	l.edges = append(l.edges, Edge{From: from, To: to, AsIfAt: asIfAt, Kind: Dynamic})
}

// AddMissing records a reference to an absent file.
func (l *Ledger) AddMissing(from, to string) {
	l.edges = append(l.edges, Edge{From: from, To: to, Kind: Missing})
}

// Edges returns the edges of the given kind in insertion order.
func (l *Ledger) Edges(kind Kind) []Edge {
	var out []Edge
	for _, e := range l.edges {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// All returns every edge in insertion order.
func (l *Ledger) All() []Edge {
	return append([]Edge(nil), l.edges...)
}

// Files is the set of every edge target, across all kinds.
func (l *Ledger) Files() sets.Set[string] {
	out := sets.New[string]()
	for _, e := range l.edges {
		out.Add(e.To)
	}
	return out
}

// Merge appends other's edges.
func (l *Ledger) Merge(other *Ledger) {
	if other == nil {
		return
	}
	l.edges = append(l.edges, other.edges...)
}

// Len reports the number of recorded edges.
func (l *Ledger) Len() int {
	return len(l.edges)
}
