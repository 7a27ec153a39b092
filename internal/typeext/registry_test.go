package typeext

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeObj struct {
	module    string
	typ       string
	bases     []fakeObj
	baseErr   error
	baseCalls *atomic.Int32
}

func (f fakeObj) ModuleName() string { return f.module }
func (f fakeObj) TypeName() string   { return f.typ }

func (f fakeObj) BaseTypes(context.Context) ([]fakeObj, error) {
	if f.baseCalls != nil {
		f.baseCalls.Add(1)
	}
	return f.bases, f.baseErr
}

func derived() fakeObj {
	return fakeObj{
		module: "app",
		typ:    "Derived",
		bases: []fakeObj{
			{module: "app", typ: "Middle"},
			{module: "app", typ: "Base"},
		},
		baseCalls: &atomic.Int32{},
	}
}

func TestRegistry_LastWriterWins(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Point"), "desc", "first")
	r.Register("APP", Exact("Point"), "desc", "second")

	ext, ok := r.Lookup("app", "Point", "desc")
	require.True(t, ok)
	assert.Equal(t, "second", ext)
	assert.Len(t, r.Extensions("app", "Point"), 1)
}

func TestRegistry_ExactBeforePredicate(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Predicate("all", func(string) bool { return true }), "desc", "pred")
	r.Register("app", Exact("Point"), "desc", "exact")
	r.Register("app", Predicate("all", func(string) bool { return true }), "other", "pred-other")

	ext, ok := r.Lookup("app", "Point", "desc")
	require.True(t, ok)
	assert.Equal(t, "exact", ext)

	ext, ok = r.Lookup("app", "Rect", "desc")
	require.True(t, ok)
	assert.Equal(t, "pred", ext)

	regs := r.Extensions("app", "Point")
	require.Len(t, regs, 2)
	assert.Equal(t, "exact", regs[0].Extension)
	assert.Equal(t, "pred-other", regs[1].Extension)
}

func TestRegistry_PredicateIdentity(t *testing.T) {
	r := New[fakeObj, string]()
	isTemplate := func(name string) bool { return strings.Contains(name, "<") }
	r.Register("app", Predicate("templates", isTemplate), "desc", "v1")
	r.Register("app", Predicate("templates", isTemplate), "desc", "v2")

	regs := r.Extensions("app", "Vector<int>")
	require.Len(t, regs, 1)
	assert.Equal(t, "v2", regs[0].Extension)
	assert.Empty(t, r.Extensions("app", "Point"))
}

func TestRegistry_ModulesAreSeparate(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Point"), "desc", "app")
	_, ok := r.Lookup("lib", "Point", "desc")
	assert.False(t, ok)
}

func TestRegistry_ResolveBest_PrefersMostDerived(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Base"), "desc", "base")
	r.Register("app", Exact("Middle"), "desc", "middle")

	obj := derived()
	m, ok, err := r.ResolveBest(context.Background(), obj, "desc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "middle", m.Extension)
	assert.Equal(t, "Middle", m.Object.typ)
}

func TestRegistry_ResolveBest_NoBaseLookupWhenOwnTypeMatches(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Derived"), "desc", "own")

	obj := derived()
	m, ok, err := r.ResolveBest(context.Background(), obj, "desc")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "own", m.Extension)
	assert.Equal(t, int32(0), obj.baseCalls.Load())
}

func TestRegistry_ResolveBest_NotFound(t *testing.T) {
	r := New[fakeObj, string]()
	_, ok, err := r.ResolveBest(context.Background(), derived(), "desc")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRegistry_ResolveBest_BaseTypesError(t *testing.T) {
	r := New[fakeObj, string]()
	errBoom := errors.New("boom")
	obj := fakeObj{module: "app", typ: "X", baseErr: errBoom}
	_, ok, err := r.ResolveBest(context.Background(), obj, "desc")
	assert.ErrorIs(t, err, errBoom)
	assert.False(t, ok)
}

func TestRegistry_ResolveAll(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Base"), "a", "base-a")
	r.Register("app", Exact("Derived"), "a", "derived-a")
	r.Register("app", Exact("Base"), "b", "base-b")

	matches, err := r.ResolveAll(context.Background(), derived())
	require.NoError(t, err)
	got := make([]string, len(matches))
	for i, m := range matches {
		got[i] = m.Object.typ + ":" + m.Extension
	}
	assert.Equal(t, []string{"Derived:derived-a", "Base:base-a", "Base:base-b"}, got)
}

func TestRegistry_Unregister(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Point"), "desc", "x")

	ext, ok := r.Unregister("app", Exact("Point"), "desc")
	require.True(t, ok)
	assert.Equal(t, "x", ext)
	_, ok = r.Lookup("app", "Point", "desc")
	assert.False(t, ok)

	_, ok = r.Unregister("app", Exact("Point"), "desc")
	assert.False(t, ok)
}

func TestRegistry_Rename(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("app", Exact("Point"), "old", "x")
	r.Register("app", Exact("Point"), "taken", "y")

	require.NoError(t, r.Rename("app", Exact("Point"), "old", "new"))
	ext, ok := r.Lookup("app", "Point", "new")
	require.True(t, ok)
	assert.Equal(t, "x", ext)
	_, ok = r.Lookup("app", "Point", "old")
	assert.False(t, ok)

	err := r.Rename("app", Exact("Point"), "new", "taken")
	assert.ErrorIs(t, err, ErrNameConflict)
	err = r.Rename("app", Exact("Point"), "missing", "other")
	assert.ErrorIs(t, err, ErrNotRegistered)
}

func TestRegistry_Listeners(t *testing.T) {
	r := New[fakeObj, string]()

	var mu sync.Mutex
	var events []string
	record := func(prefix string) func(Event[string]) {
		return func(ev Event[string]) {
			mu.Lock()
			defer mu.Unlock()
			events = append(events, prefix+":"+ev.Op.String()+":"+ev.Registration.Name)
		}
	}
	r.AddListener("app", "Point", record("point"))
	r.AddListener("", "", record("any"))

	r.Register("app", Exact("Point"), "desc", "x")
	r.Register("app", Exact("Point"), "desc", "y")
	r.Register("app", Exact("Rect"), "desc", "z")
	require.NoError(t, r.Rename("app", Exact("Point"), "desc", "label"))
	r.Register("app", Predicate("all", func(string) bool { return true }), "size", "p")
	r.Unregister("app", Exact("Point"), "label")

	assert.Equal(t, []string{
		"point:added:desc",
		"any:added:desc",
		"point:replaced:desc",
		"any:replaced:desc",
		"any:added:desc",
		"point:renamed:label",
		"any:renamed:label",
		"point:added:size",
		"any:added:size",
		"point:removed:label",
		"any:removed:label",
	}, events)
}

func TestRegistry_ConcurrentReadersAndWriters(t *testing.T) {
	r := New[fakeObj, int]()
	var wg sync.WaitGroup
	for i := range 50 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			r.Register("app", Exact("Point"), "desc", i)
		}()
		go func() {
			defer wg.Done()
			_, _, err := r.ResolveBest(context.Background(), derived(), "desc")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.Len(t, r.Extensions("app", "Point"), 1)
}

func TestRegistrations(t *testing.T) {
	r := New[fakeObj, string]()
	r.Register("lib", Exact("B"), "x", "1")
	r.Register("app", Exact("A"), "x", "2")
	r.Register("app", Predicate("p", func(string) bool { return false }), "y", "3")

	regs := r.Registrations()
	require.Len(t, regs, 3)
	assert.Equal(t, "2", regs[0].Extension)
	assert.Equal(t, "1", regs[1].Extension)
	assert.Equal(t, "3", regs[2].Extension)
	assert.Equal(t, "predicate(p)", regs[2].Matcher.String())
}
