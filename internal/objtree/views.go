package objtree

import (
	"context"
	"errors"

	"github.com/fyrsmithlabs/dbgnav/internal/async"
)

// Mapper replaces the value shown by a node.
type Mapper func(ctx context.Context, value any) (any, error)

// MappedNode shows a node's value through a Mapper.
type MappedNode struct {
	node     *Node
	parent   *MappedNode
	value    any
	fn       Mapper
	children *async.Future[[]*MappedNode]
}

// Map applies fn to root and, lazily, to every descendant.
func Map(ctx context.Context, root *Node, fn Mapper) (*MappedNode, error) {
	return mapNode(ctx, root, nil, fn)
}

func mapNode(ctx context.Context, n *Node, parent *MappedNode, fn Mapper) (*MappedNode, error) {
	v, err := fn(ctx, n.Object())
	if err != nil {
		return nil, err
	}
	m := &MappedNode{node: n, parent: parent, value: v, fn: fn}
	m.children = async.NewFuture(func(ctx context.Context) ([]*MappedNode, error) {
		kids, err := n.Children(ctx)
		if err != nil {
			return nil, err
		}
		return async.Map(ctx, kids, func(ctx context.Context, k *Node) (*MappedNode, error) {
			return mapNode(ctx, k, m, fn)
		})
	})
	return m, nil
}

// Object returns the mapped value.
func (m *MappedNode) Object() any { return m.value }

// Node returns the underlying node.
func (m *MappedNode) Node() *Node { return m.node }

// Parent returns the mapped parent, or nil for the root.
func (m *MappedNode) Parent() *MappedNode { return m.parent }

// Children maps the underlying node's children.
func (m *MappedNode) Children(ctx context.Context) ([]*MappedNode, error) {
	return m.children.Await(ctx)
}

// Keep decides whether a node value stays in a filtered tree.
type Keep func(ctx context.Context, value any) (bool, error)

// FilteredNode is a node whose descendants are filtered.
type FilteredNode struct {
	node     *Node
	keep     Keep
	prune    bool
	children *async.Future[[]*FilteredNode]
}

// Filter hides the descendants of root that keep rejects. A rejected node's
// children take its place unless prune is set, in which case the whole
// subtree is dropped. The root itself is always shown.
func Filter(root *Node, keep Keep, prune bool) *FilteredNode {
	return newFiltered(root, keep, prune)
}

func newFiltered(n *Node, keep Keep, prune bool) *FilteredNode {
	f := &FilteredNode{node: n, keep: keep, prune: prune}
	f.children = async.NewFuture(f.expand)
	return f
}

// Object returns the node value.
func (f *FilteredNode) Object() any { return f.node.Object() }

// Node returns the underlying node.
func (f *FilteredNode) Node() *Node { return f.node }

// Children returns the kept descendants that are closest to the node.
func (f *FilteredNode) Children(ctx context.Context) ([]*FilteredNode, error) {
	return f.children.Await(ctx)
}

func (f *FilteredNode) expand(ctx context.Context) ([]*FilteredNode, error) {
	kids, err := f.node.Children(ctx)
	if err != nil {
		return nil, err
	}
	groups, err := async.Map(ctx, kids, func(ctx context.Context, k *Node) ([]*FilteredNode, error) {
		ok, err := f.keep(ctx, k.Object())
		if err != nil {
			return nil, err
		}
		child := newFiltered(k, f.keep, f.prune)
		switch {
		case ok:
			return []*FilteredNode{child}, nil
		case f.prune:
			return nil, nil
		default:
			return child.Children(ctx)
		}
	})
	if err != nil {
		return nil, err
	}
	var out []*FilteredNode
	for _, g := range groups {
		out = append(out, g...)
	}
	return out, nil
}

// ErrSkipChildren may be returned by a Walk visitor to leave a node
// unexpanded.
var ErrSkipChildren = errors.New("skip children")

// Walk visits root and its descendants depth first, parents before
// children. Descent stops below maxDepth when it is non-negative and at
// duplicates. Expansion failures stay on their nodes.
func Walk(ctx context.Context, root *Node, maxDepth int, visit func(n *Node) error) error {
	return walk(ctx, root, 0, maxDepth, visit)
}

func walk(ctx context.Context, n *Node, depth, maxDepth int, visit func(*Node) error) error {
	if err := visit(n); err != nil {
		if errors.Is(err, ErrSkipChildren) {
			return nil
		}
		return err
	}
	if n.IsDuplicate() || (maxDepth >= 0 && depth >= maxDepth) {
		return nil
	}
	kids, err := n.Children(ctx)
	if err != nil {
		return err
	}
	for _, k := range kids {
		if err := walk(ctx, k, depth+1, maxDepth, visit); err != nil {
			return err
		}
	}
	return nil
}
