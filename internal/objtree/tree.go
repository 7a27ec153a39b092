// Package objtree builds lazy trees over debuggee objects.
//
// A Tree holds child expansions registered per type. Expanding a node runs
// every expansion on the object's type chain and concatenates what they
// return. Nodes created from one root share a ledger of visited objects, so
// a cyclic object graph terminates with the second visit marked as a
// duplicate instead of being expanded again.
package objtree

import (
	"context"
	"sync"

	"github.com/fyrsmithlabs/dbgnav/internal/async"
	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ChildExpansion returns children for obj. Elements may be
// dbgobject.Object, Labeled, ChildProvider or any other value.
type ChildExpansion func(ctx context.Context, obj dbgobject.Object) ([]any, error)

// ChildProvider is implemented by synthetic node values that supply their
// own children.
type ChildProvider interface {
	Children(ctx context.Context) ([]any, error)
}

// Labeled is an object shown under a label, such as a field name.
//
// Embedded marks an object stored inside its parent, like a non-pointer
// field or an element of an inline array. It may share its parent's
// address, so it is never recorded in the duplicate ledger.
type Labeled struct {
	Label    string
	Object   dbgobject.Object
	Embedded bool
}

func (l Labeled) String() string {
	return l.Label + ": " + l.Object.String()
}

func isEmbedded(v any) bool {
	l, ok := v.(Labeled)
	return ok && l.Embedded
}

// objectOf extracts the debuggee object a node value stands for.
func objectOf(v any) (dbgobject.Object, bool) {
	switch o := v.(type) {
	case dbgobject.Object:
		return o, o.Session() != nil
	case Labeled:
		return o.Object, o.Object.Session() != nil
	}
	return dbgobject.Object{}, false
}

// Tree is a named set of child expansions.
type Tree struct {
	name       string
	id         string
	logger     *zap.Logger
	expansions *typeext.Registry[dbgobject.Object, ChildExpansion]

	mu    sync.Mutex
	roots map[rootKey]*Node
}

type rootKey struct {
	key      dbgobject.Key
	typeName string
}

// Option configures a Tree.
type Option func(*Tree)

// WithLogger sets the tree logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tree) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates an empty tree called name.
func New(name string, opts ...Option) *Tree {
	t := &Tree{
		name:       name,
		id:         uuid.NewString(),
		logger:     zap.NewNop(),
		expansions: typeext.New[dbgobject.Object, ChildExpansion](),
		roots:      make(map[rootKey]*Node),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.logger = t.logger.With(zap.String("tree", name), zap.String("tree_id", t.id))
	return t
}

// Name returns the tree's name.
func (t *Tree) Name() string { return t.name }

// ID returns the tree's unique id.
func (t *Tree) ID() string { return t.id }

// AddChildren registers fn as a child expansion for types matched by m in
// module and returns the id it is registered under.
func (t *Tree) AddChildren(module string, m typeext.Matcher, fn ChildExpansion) string {
	m = normalize(m)
	id := uuid.NewString()
	t.expansions.Register(module, m, id, fn)
	t.logger.Debug("child expansion added",
		zap.String("module", module), zap.Stringer("type", m), zap.String("id", id))
	return id
}

// RemoveChildren removes the expansion added under id.
func (t *Tree) RemoveChildren(module string, m typeext.Matcher, id string) bool {
	_, ok := t.expansions.Unregister(module, normalize(m), id)
	return ok
}

// normalize spells exact type names the way handles do. A malformed name is
// kept as given; it matches nothing.
func normalize(m typeext.Matcher) typeext.Matcher {
	if nm, err := dbgobject.NormalizeMatcher(m); err == nil {
		return nm
	}
	return m
}

// CreateTree returns the root node for root. Object roots are remembered
// until Invalidate so that repeated requests share expanded children.
func (t *Tree) CreateTree(root any) *Node {
	obj, ok := objectOf(root)
	if !ok || obj.IsNull() {
		return t.newNode(root, nil)
	}
	key := rootKey{key: obj.Key(), typeName: obj.Type().QualifiedName()}

	t.mu.Lock()
	defer t.mu.Unlock()
	if n, ok := t.roots[key]; ok && n.object == root {
		return n
	}
	n := t.newNode(root, nil)
	t.roots[key] = n
	return n
}

// Invalidate forgets every remembered root so that the next CreateTree
// expands afresh.
func (t *Tree) Invalidate() {
	t.mu.Lock()
	n := len(t.roots)
	clear(t.roots)
	t.mu.Unlock()
	t.logger.Debug("tree invalidated", zap.Int("roots", n))
}

// WatchBreaks invalidates the tree whenever sess reports a break.
func (t *Tree) WatchBreaks(sess *dbgobject.Session) {
	sess.OnBreak(t.Invalidate)
}

func (t *Tree) newNode(v any, parent *Node) *Node {
	n := &Node{tree: t, object: v, parent: parent}
	if parent != nil {
		n.ledger = parent.ledger
		n.depth = parent.depth + 1
	} else {
		n.ledger = newLedger()
	}

	if obj, ok := objectOf(v); ok && !obj.IsNull() && !isEmbedded(v) {
		if canonical, dup := n.ledger.claim(obj, n); dup {
			n.canonical = canonical
			n.state.Store(int32(StateDuplicate))
			n.children = async.Resolved([]*Node{})
			return n
		}
	}
	n.children = async.NewFuture(n.expand)
	return n
}

// expandObject runs every expansion on obj's type chain concurrently and
// concatenates their results in chain order. Failures are reported to
// fail and contribute nothing.
func (t *Tree) expandObject(ctx context.Context, obj dbgobject.Object, fail func(error)) []any {
	matches, err := t.expansions.ResolveAll(ctx, obj)
	if err != nil {
		fail(err)
		return nil
	}

	fns := make([]func(context.Context) ([]any, error), len(matches))
	for i, m := range matches {
		fns[i] = func(ctx context.Context) ([]any, error) {
			return m.Extension(ctx, m.Object)
		}
	}

	var out []any
	for i, r := range async.Settle(ctx, fns...) {
		if r.Err != nil {
			t.logger.Debug("child expansion failed",
				zap.String("id", matches[i].Name), zap.Stringer("object", obj), zap.Error(r.Err))
			fail(&dbgobject.ExtensionError{Kind: "children", Name: matches[i].Name, Type: obj.Type(), Err: r.Err})
			continue
		}
		out = append(out, r.Value...)
	}
	return out
}
