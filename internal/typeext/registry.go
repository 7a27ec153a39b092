package typeext

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
)

var (
	// ErrNotRegistered indicates no registration exists under the given
	// module, matcher and name.
	ErrNotRegistered = errors.New("extension not registered")

	// ErrNameConflict indicates a rename target is already taken.
	ErrNameConflict = errors.New("extension name already registered")
)

// Candidate is a value extensions can be resolved against. BaseTypes
// returns the candidate viewed as each of its ancestors, most derived
// first.
type Candidate[O any] interface {
	ModuleName() string
	TypeName() string
	BaseTypes(ctx context.Context) ([]O, error)
}

// Registration is one extension entry.
type Registration[E any] struct {
	Module    string
	Matcher   Matcher
	Name      string
	Extension E
}

// Match is a resolved extension and the candidate, possibly viewed as an
// ancestor type, that it matched.
type Match[O, E any] struct {
	Object    O
	Name      string
	Extension E
}

// Op is the kind of change reported to listeners.
type Op int

const (
	OpAdded Op = iota
	OpReplaced
	OpRemoved
	OpRenamed
)

func (op Op) String() string {
	switch op {
	case OpAdded:
		return "added"
	case OpReplaced:
		return "replaced"
	case OpRemoved:
		return "removed"
	case OpRenamed:
		return "renamed"
	default:
		return fmt.Sprintf("Op(%d)", int(op))
	}
}

// Event describes a registry change. OldName is set for OpRenamed.
type Event[E any] struct {
	Op           Op
	Registration Registration[E]
	OldName      string
}

type listener[E any] struct {
	module   string
	typeName string
	fn       func(Event[E])
}

func (l listener[E]) wants(reg Registration[E]) bool {
	if l.module != "" && !strings.EqualFold(l.module, reg.Module) {
		return false
	}
	if l.typeName == "" {
		return true
	}
	return reg.Matcher.Matches(l.typeName)
}

type table[E any] struct {
	exact      map[string][]Registration[E]
	predicates map[string][]Registration[E]
}

func (t *table[E]) clone() *table[E] {
	return &table[E]{
		exact:      cloneMap(t.exact),
		predicates: cloneMap(t.predicates),
	}
}

func cloneMap[E any](m map[string][]Registration[E]) map[string][]Registration[E] {
	out := make(map[string][]Registration[E], len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func normalizeModule(module string) string {
	return strings.ToLower(module)
}

func exactKey(module, typeName string) string {
	return normalizeModule(module) + "!" + typeName
}

// Registry maps (module, type, name) to extensions of type E and resolves
// them against candidates of type O.
type Registry[O Candidate[O], E any] struct {
	mu        sync.Mutex
	tbl       atomic.Pointer[table[E]]
	listeners []listener[E]
}

// New returns an empty registry.
func New[O Candidate[O], E any]() *Registry[O, E] {
	r := &Registry[O, E]{}
	r.tbl.Store(&table[E]{
		exact:      map[string][]Registration[E]{},
		predicates: map[string][]Registration[E]{},
	})
	return r
}

// slot returns the map and key a registration with module and m lives
// under.
func (t *table[E]) slot(module string, m Matcher) (map[string][]Registration[E], string) {
	if m.IsPredicate() {
		return t.predicates, normalizeModule(module)
	}
	return t.exact, exactKey(module, m.Name())
}

func indexOf[E any](list []Registration[E], m Matcher, name string) int {
	return slices.IndexFunc(list, func(r Registration[E]) bool {
		return r.Name == name && r.Matcher.same(m)
	})
}

// Register adds ext under (module, m, name), replacing any registration with
// the same key.
func (r *Registry[O, E]) Register(module string, m Matcher, name string, ext E) {
	reg := Registration[E]{Module: module, Matcher: m, Name: name, Extension: ext}

	r.mu.Lock()
	next := r.tbl.Load().clone()
	tbl, key := next.slot(module, m)
	list := slices.Clone(tbl[key])
	op := OpAdded
	if i := indexOf(list, m, name); i >= 0 {
		list[i] = reg
		op = OpReplaced
	} else {
		list = append(list, reg)
	}
	tbl[key] = list
	r.tbl.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, Event[E]{Op: op, Registration: reg})
}

// Unregister removes the registration under (module, m, name) and returns
// it.
func (r *Registry[O, E]) Unregister(module string, m Matcher, name string) (E, bool) {
	r.mu.Lock()
	next := r.tbl.Load().clone()
	tbl, key := next.slot(module, m)
	i := indexOf(tbl[key], m, name)
	if i < 0 {
		r.mu.Unlock()
		var zero E
		return zero, false
	}
	removed := tbl[key][i]
	list := slices.Delete(slices.Clone(tbl[key]), i, i+1)
	if len(list) == 0 {
		delete(tbl, key)
	} else {
		tbl[key] = list
	}
	r.tbl.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, Event[E]{Op: OpRemoved, Registration: removed})
	return removed.Extension, true
}

// Rename moves the registration under (module, m, oldName) to newName.
func (r *Registry[O, E]) Rename(module string, m Matcher, oldName, newName string) error {
	r.mu.Lock()
	next := r.tbl.Load().clone()
	tbl, key := next.slot(module, m)
	list := slices.Clone(tbl[key])
	i := indexOf(list, m, oldName)
	if i < 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s on %s!%s", ErrNotRegistered, oldName, module, m)
	}
	if oldName == newName {
		r.mu.Unlock()
		return nil
	}
	if indexOf(list, m, newName) >= 0 {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s on %s!%s", ErrNameConflict, newName, module, m)
	}
	list[i].Name = newName
	renamed := list[i]
	tbl[key] = list
	r.tbl.Store(next)
	listeners := r.listeners
	r.mu.Unlock()

	notify(listeners, Event[E]{Op: OpRenamed, Registration: renamed, OldName: oldName})
	return nil
}

// AddListener calls fn after every change to a registration in module whose
// matcher accepts typeName. Empty module or typeName match anything.
func (r *Registry[O, E]) AddListener(module, typeName string, fn func(Event[E])) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.listeners = append(r.listeners, listener[E]{module: module, typeName: typeName, fn: fn})
}

func notify[E any](listeners []listener[E], ev Event[E]) {
	for _, l := range listeners {
		if l.wants(ev.Registration) {
			l.fn(ev)
		}
	}
}

// Lookup returns the extension named name registered on exactly
// (module, typeName), trying exact registrations before predicates. Base
// types are not consulted.
func (r *Registry[O, E]) Lookup(module, typeName, name string) (E, bool) {
	for _, reg := range r.Extensions(module, typeName) {
		if reg.Name == name {
			return reg.Extension, true
		}
	}
	var zero E
	return zero, false
}

// Extensions lists every extension applying to exactly (module, typeName):
// exact registrations first, then predicates whose name is not already
// taken.
func (r *Registry[O, E]) Extensions(module, typeName string) []Registration[E] {
	t := r.tbl.Load()
	exact := t.exact[exactKey(module, typeName)]
	preds := t.predicates[normalizeModule(module)]

	out := make([]Registration[E], 0, len(exact))
	seen := make(map[string]struct{}, len(exact))
	for _, reg := range exact {
		out = append(out, reg)
		seen[reg.Name] = struct{}{}
	}
	for _, reg := range preds {
		if _, dup := seen[reg.Name]; dup || !reg.Matcher.Matches(typeName) {
			continue
		}
		out = append(out, reg)
		seen[reg.Name] = struct{}{}
	}
	return out
}

// Registrations returns every registration, exact ones sorted by module and
// type followed by predicates in registration order.
func (r *Registry[O, E]) Registrations() []Registration[E] {
	t := r.tbl.Load()
	keys := make([]string, 0, len(t.exact))
	for k := range t.exact {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var out []Registration[E]
	for _, k := range keys {
		out = append(out, t.exact[k]...)
	}
	modules := make([]string, 0, len(t.predicates))
	for m := range t.predicates {
		modules = append(modules, m)
	}
	sort.Strings(modules)
	for _, m := range modules {
		out = append(out, t.predicates[m]...)
	}
	return out
}

// ResolveFirst returns the first registration accepted by accept, searching
// obj's own type and then each base type in order. Base types are only
// fetched when obj's own type has no accepted registration.
func (r *Registry[O, E]) ResolveFirst(ctx context.Context, obj O, accept func(Registration[E]) bool) (Match[O, E], bool, error) {
	if m, ok := r.firstAt(obj, accept); ok {
		return m, true, nil
	}

	bases, err := obj.BaseTypes(ctx)
	if err != nil {
		return Match[O, E]{}, false, err
	}
	for _, base := range bases {
		if m, ok := r.firstAt(base, accept); ok {
			return m, true, nil
		}
	}
	return Match[O, E]{}, false, nil
}

func (r *Registry[O, E]) firstAt(obj O, accept func(Registration[E]) bool) (Match[O, E], bool) {
	for _, reg := range r.Extensions(obj.ModuleName(), obj.TypeName()) {
		if accept(reg) {
			return Match[O, E]{Object: obj, Name: reg.Name, Extension: reg.Extension}, true
		}
	}
	return Match[O, E]{}, false
}

// ResolveBest returns the most derived extension named name applying to
// obj.
func (r *Registry[O, E]) ResolveBest(ctx context.Context, obj O, name string) (Match[O, E], bool, error) {
	return r.ResolveFirst(ctx, obj, func(reg Registration[E]) bool {
		return reg.Name == name
	})
}

// ResolveAll returns every extension applying to obj or any of its base
// types, in chain order. The same name may appear at several levels.
func (r *Registry[O, E]) ResolveAll(ctx context.Context, obj O) ([]Match[O, E], error) {
	bases, err := obj.BaseTypes(ctx)
	if err != nil {
		return nil, err
	}

	var out []Match[O, E]
	for _, level := range append([]O{obj}, bases...) {
		for _, reg := range r.Extensions(level.ModuleName(), level.TypeName()) {
			out = append(out, Match[O, E]{Object: level, Name: reg.Name, Extension: reg.Extension})
		}
	}
	return out, nil
}
