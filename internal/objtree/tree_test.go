package objtree

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errExpansion = errors.New("expansion failed")

func sampleSession(t *testing.T) *dbgobject.Session {
	t.Helper()
	snap, err := snapshot.LoadFile("../snapshot/testdata/sample.yaml")
	require.NoError(t, err)
	return dbgobject.NewSession(snap)
}

func create(t *testing.T, s *dbgobject.Session, typeName string, addr dbgobject.Pointer) dbgobject.Object {
	t.Helper()
	obj, err := s.Create("app", typeName, addr)
	require.NoError(t, err)
	return obj
}

func nextNode(ctx context.Context, obj dbgobject.Object) ([]any, error) {
	next, err := obj.Field(ctx, "next")
	if err != nil {
		return nil, err
	}
	return []any{next}, nil
}

func TestTree_CycleTerminates(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("list")
	tree.AddChildren("app", typeext.Exact("Node"), nextNode)

	root := tree.CreateTree(create(t, s, "Node", 0x3000))
	var visited []*Node
	require.NoError(t, Walk(ctx, root, -1, func(n *Node) error {
		visited = append(visited, n)
		return nil
	}))

	require.Len(t, visited, 3)
	assert.False(t, visited[0].IsDuplicate())
	assert.False(t, visited[1].IsDuplicate())
	assert.True(t, visited[2].IsDuplicate())
	assert.Same(t, root, visited[2].Canonical())
	assert.Equal(t, StateDuplicate, visited[2].State())

	kids, err := visited[2].Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, kids)
	assert.Equal(t, StateExpanded, root.State())
}

func TestTree_SameAddressUnderOtherTypeIsDuplicate(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("views")
	tree.AddChildren("app", typeext.Exact("Circle"), func(_ context.Context, obj dbgobject.Object) ([]any, error) {
		shape, err := obj.As("Shape")
		if err != nil {
			return nil, err
		}
		return []any{shape}, nil
	})

	root := tree.CreateTree(create(t, s, "Circle", 0x4000))
	kids, err := root.Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 1)

	shape, ok := kids[0].DbgObject()
	require.True(t, ok)
	assert.Equal(t, "app!Shape", shape.Type().QualifiedName())
	assert.True(t, kids[0].IsDuplicate())
	assert.Same(t, root, kids[0].Canonical())
	assert.Equal(t, StateDuplicate, kids[0].State())
}

func TestTree_FailingExpansionKeepsOtherChildren(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("widgets")
	tree.AddChildren("app", typeext.Exact("Widget"), ArrayChildren(dbgobject.ArrayNamed("missing")))
	tree.AddChildren("app", typeext.Exact("Widget"), func(ctx context.Context, obj dbgobject.Object) ([]any, error) {
		points, err := obj.Field(ctx, "points")
		if err != nil {
			return nil, err
		}
		return ArrayChildren(dbgobject.ArrayDefault())(ctx, points)
	})

	root := tree.CreateTree(create(t, s, "Widget", 0x5000))
	kids, err := root.Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, StateExpanded, root.State())

	errs := root.ChildrenErrors()
	require.Len(t, errs, 1)
	assert.ErrorIs(t, errs[0], dbgobject.ErrExtensionFailed)
	assert.ErrorIs(t, errs[0], dbgobject.ErrUnknownArrayShape)
}

func TestTree_AncestorContributionsConcatenate(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("shapes")
	label := func(text string) ChildExpansion {
		return func(context.Context, dbgobject.Object) ([]any, error) { return []any{text}, nil }
	}
	tree.AddChildren("app", typeext.Exact("Circle"), label("circle"))
	tree.AddChildren("app", typeext.Exact("Shape"), label("shape"))

	kids, err := tree.CreateTree(create(t, s, "Circle", 0x4000)).Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 2)
	assert.Equal(t, "circle", kids[0].Object())
	assert.Equal(t, "shape", kids[1].Object())
}

func TestTree_ConcurrentChildrenShareExpansion(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("list")
	var calls atomic.Int32
	tree.AddChildren("app", typeext.Exact("Node"), func(ctx context.Context, obj dbgobject.Object) ([]any, error) {
		calls.Add(1)
		return nextNode(ctx, obj)
	})
	root := tree.CreateTree(create(t, s, "Node", 0x3000))

	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kids, err := root.Children(ctx)
			assert.NoError(t, err)
			assert.Len(t, kids, 1)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, calls.Load())
}

type folder struct {
	name  string
	items []any
	err   error
}

func (f folder) Children(context.Context) ([]any, error) { return f.items, f.err }

func TestTree_ChildProviderAndNulls(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("mixed")

	root := tree.CreateTree(folder{name: "root", items: []any{
		create(t, s, "Point", 0x1000),
		create(t, s, "Point", 0),
		folder{name: "broken", err: errExpansion},
		create(t, s, "Point", 0x1000),
	}})
	kids, err := root.Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 3)
	assert.False(t, kids[0].IsDuplicate())
	assert.True(t, kids[2].IsDuplicate())

	_, err = kids[1].Children(ctx)
	require.NoError(t, err)
	assert.Equal(t, []error{errExpansion}, kids[1].ChildrenErrors())
}

func TestTree_RootCacheAndInvalidate(t *testing.T) {
	s := sampleSession(t)
	tree := New("list")
	tree.WatchBreaks(s)
	obj := create(t, s, "Node", 0x3000)

	first := tree.CreateTree(obj)
	assert.Same(t, first, tree.CreateTree(obj))

	s.NotifyBreak()
	assert.NotSame(t, first, tree.CreateTree(obj))
}

func TestTree_RemoveChildren(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("list")
	id := tree.AddChildren("app", typeext.Exact("Node"), nextNode)
	assert.NotEmpty(t, id)
	assert.True(t, tree.RemoveChildren("app", typeext.Exact("Node"), id))
	assert.False(t, tree.RemoveChildren("app", typeext.Exact("Node"), id))

	kids, err := tree.CreateTree(create(t, s, "Node", 0x3010)).Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, kids)
}

func TestFieldChildren(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("fields")
	tree.AddChildren("app", typeext.Predicate("all", func(string) bool { return true }), FieldChildren(true))

	root := tree.CreateTree(create(t, s, "Node", 0x3000))
	var labels []string
	require.NoError(t, Walk(ctx, root, 3, func(n *Node) error {
		if l, ok := n.Object().(Labeled); ok {
			labels = append(labels, l.Label)
		}
		return nil
	}))
	// value, next -> value, next(duplicate of root)
	assert.Equal(t, []string{"value", "next", "value", "next"}, labels)
}

func TestStructuralChildren(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("structure")
	tree.AddChildren("app", typeext.Predicate("all", func(string) bool { return true }), StructuralChildren(false))

	root := tree.CreateTree(create(t, s, "Widget", 0x5000))
	kids, err := root.Children(ctx)
	require.NoError(t, err)
	require.Empty(t, root.ChildrenErrors())

	var labels []string
	byLabel := map[string]*Node{}
	for _, k := range kids {
		l := k.Object().(Labeled)
		labels = append(labels, l.Label)
		byLabel[l.Label] = k
	}
	assert.Equal(t, []string{"color", "enabled", "level", "name", "points"}, labels)
	for _, k := range kids {
		assert.False(t, k.IsDuplicate(), "fields stored in the widget are not revisits")
	}

	for _, leaf := range []string{"color", "enabled", "name"} {
		got, err := byLabel[leaf].Children(ctx)
		require.NoError(t, err)
		assert.Empty(t, got, leaf)
	}

	name, _ := byLabel["name"].DbgObject()
	assert.Equal(t, "char*", name.TypeName(), "character pointers stay unfollowed")

	points, err := byLabel["points"].Children(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	first, ok := points[0].DbgObject()
	require.True(t, ok)
	assert.Equal(t, "app!Point", first.Type().QualifiedName())
	assert.Equal(t, dbgobject.Pointer(0x1000), first.Pointer())

	xy, err := points[1].Children(ctx)
	require.NoError(t, err)
	assert.Len(t, xy, 2)
}

func TestStructuralChildren_InlineArray(t *testing.T) {
	ctx := context.Background()
	snap, err := snapshot.New(snapshot.Spec{
		PointerSize: 8,
		Types: []snapshot.TypeDef{
			{Module: "app", Name: "Point", Size: 8, Fields: []snapshot.FieldDef{
				{Name: "x", Type: "int", Offset: 0},
				{Name: "y", Type: "int", Offset: 4},
			}},
			{Module: "app", Name: "Polygon", Size: 16, Fields: []snapshot.FieldDef{
				{Name: "corners", Type: "Point[2]", Offset: 0},
			}},
		},
		Memory: []snapshot.Region{snapshot.Words(0x2000, 4, 1, 2, 3, 4)},
	})
	require.NoError(t, err)
	s := dbgobject.NewSession(snap)

	tree := New("structure")
	tree.AddChildren("app", typeext.Predicate("all", func(string) bool { return true }), StructuralChildren(false))
	root := tree.CreateTree(create(t, s, "Polygon", 0x2000))

	var labels []string
	require.NoError(t, Walk(ctx, root, -1, func(n *Node) error {
		assert.False(t, n.IsDuplicate(), "%v", n.Object())
		if l, ok := n.Object().(Labeled); ok {
			labels = append(labels, l.Label)
		}
		return nil
	}))
	assert.Equal(t, []string{"corners", "[0]", "x", "y", "[1]", "x", "y"}, labels)
}

func TestWalk_DepthAndSkip(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("list")
	tree.AddChildren("app", typeext.Exact("Node"), nextNode)
	root := tree.CreateTree(create(t, s, "Node", 0x3000))

	count := 0
	require.NoError(t, Walk(ctx, root, 0, func(*Node) error { count++; return nil }))
	assert.Equal(t, 1, count)

	count = 0
	require.NoError(t, Walk(ctx, root, -1, func(*Node) error { count++; return ErrSkipChildren }))
	assert.Equal(t, 1, count)

	err := Walk(ctx, root, -1, func(*Node) error { return errExpansion })
	assert.ErrorIs(t, err, errExpansion)
}

func TestMapAndFilter(t *testing.T) {
	ctx := context.Background()
	s := sampleSession(t)
	tree := New("list")
	tree.AddChildren("app", typeext.Exact("Node"), nextNode)
	root := tree.CreateTree(create(t, s, "Node", 0x3000))

	mapped, err := Map(ctx, root, func(ctx context.Context, v any) (any, error) {
		obj := v.(dbgobject.Object)
		value, err := obj.Field(ctx, "value")
		if err != nil {
			return nil, err
		}
		return value.UVal(ctx)
	})
	require.NoError(t, err)
	assert.EqualValues(t, 1, mapped.Object())
	kids, err := mapped.Children(ctx)
	require.NoError(t, err)
	require.Len(t, kids, 1)
	assert.EqualValues(t, 2, kids[0].Object())
	assert.Same(t, mapped, kids[0].Parent())

	notSecond := func(_ context.Context, v any) (bool, error) {
		return v.(dbgobject.Object).Pointer() != 0x3010, nil
	}
	hoisted, err := Filter(root, notSecond, false).Children(ctx)
	require.NoError(t, err)
	require.Len(t, hoisted, 1)
	assert.True(t, hoisted[0].Node().IsDuplicate())

	pruned, err := Filter(root, notSecond, true).Children(ctx)
	require.NoError(t, err)
	assert.Empty(t, pruned)
}
