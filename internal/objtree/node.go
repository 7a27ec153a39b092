package objtree

import (
	"context"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/dbgnav/internal/async"
	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
)

// State is the expansion state of a node.
type State int32

const (
	StateUnvisited State = iota
	StateExpanding
	StateExpanded
	StateDuplicate
)

func (s State) String() string {
	switch s {
	case StateUnvisited:
		return "unvisited"
	case StateExpanding:
		return "expanding"
	case StateExpanded:
		return "expanded"
	case StateDuplicate:
		return "duplicate"
	default:
		return "unknown"
	}
}

// ledger records the addresses seen below one root.
type ledger struct {
	mu   sync.Mutex
	seen map[dbgobject.Key]*Node
}

func newLedger() *ledger {
	return &ledger{seen: make(map[dbgobject.Key]*Node)}
}

// claim records the address of obj for n and returns the node that claimed
// it first when the address was already seen, whatever its type was then.
func (l *ledger) claim(obj dbgobject.Object, n *Node) (*Node, bool) {
	k := obj.Key()
	l.mu.Lock()
	defer l.mu.Unlock()
	if first, ok := l.seen[k]; ok {
		return first, true
	}
	l.seen[k] = n
	return nil, false
}

// Node is one element of a tree. Children are computed on first request
// and shared by every caller.
type Node struct {
	tree      *Tree
	object    any
	parent    *Node
	depth     int
	ledger    *ledger
	canonical *Node
	state     atomic.Int32
	children  *async.Future[[]*Node]

	errMu sync.Mutex
	errs  []error
}

// Object returns the value the node shows.
func (n *Node) Object() any { return n.object }

// DbgObject returns the debuggee object behind the node, if any.
func (n *Node) DbgObject() (dbgobject.Object, bool) { return objectOf(n.object) }

// Parent returns the parent node, or nil for a root.
func (n *Node) Parent() *Node { return n.parent }

// Tree returns the tree the node was built from.
func (n *Node) Tree() *Tree { return n.tree }

// Depth returns the distance from the root.
func (n *Node) Depth() int { return n.depth }

// State reports how far expansion has progressed.
func (n *Node) State() State { return State(n.state.Load()) }

// IsDuplicate reports whether the node's object already appears elsewhere
// in the tree. Duplicates have no children.
func (n *Node) IsDuplicate() bool { return n.canonical != nil }

// Canonical returns the first node showing the same object as a duplicate.
func (n *Node) Canonical() *Node { return n.canonical }

// Children expands the node. Failing expansions do not fail the call; they
// are reported by ChildrenErrors.
func (n *Node) Children(ctx context.Context) ([]*Node, error) {
	return n.children.Await(ctx)
}

// ChildrenErrors returns the failures recorded while expanding.
func (n *Node) ChildrenErrors() []error {
	n.errMu.Lock()
	defer n.errMu.Unlock()
	return slices.Clone(n.errs)
}

func (n *Node) recordError(err error) {
	n.errMu.Lock()
	n.errs = append(n.errs, err)
	n.errMu.Unlock()
}

func (n *Node) expand(ctx context.Context) ([]*Node, error) {
	n.state.Store(int32(StateExpanding))
	defer n.state.Store(int32(StateExpanded))

	var values []any
	if obj, ok := objectOf(n.object); ok && !obj.IsNull() {
		values = n.tree.expandObject(ctx, obj, n.recordError)
	}
	if p, ok := n.object.(ChildProvider); ok {
		extra, err := p.Children(ctx)
		if err != nil {
			n.recordError(err)
		} else {
			values = append(values, extra...)
		}
	}

	nodes := make([]*Node, 0, len(values))
	for _, v := range values {
		if obj, ok := v.(dbgobject.Object); ok && obj.IsNull() {
			continue
		}
		nodes = append(nodes, n.tree.newNode(v, n))
	}
	return nodes, nil
}
