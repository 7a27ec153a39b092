// Package dbgobject navigates the memory of a remote debuggee as typed
// objects.
//
// An Object is an immutable (type, address) handle. Navigation such as
// Field, Deref and Idx returns new handles and issues only the metadata and
// memory requests it needs. A Session ties handles to one debuggee: it owns
// the client, the per-type field overrides and the extension registries
// that attach arrays, extended fields, descriptions and actions to types.
package dbgobject

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"go.uber.org/zap"
)

// Session is the root of navigation against one debuggee.
type Session struct {
	client dbgclient.Client
	logger *zap.Logger
	styler Styler

	arrays       *typeext.Registry[Object, ArrayField]
	fields       *typeext.Registry[Object, ExtendedField]
	descriptions *typeext.Registry[Object, TypeDescription]
	actions      *typeext.Registry[Object, ActionProvider]

	mu        sync.RWMutex
	overrides map[string]string

	breakMu        sync.Mutex
	breakListeners []func()
	generation     atomic.Uint64
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sets the session logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Session) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// WithStyler sets the styler used by default descriptions.
func WithStyler(styler Styler) Option {
	return func(s *Session) {
		if styler != nil {
			s.styler = styler
		}
	}
}

// NewSession creates a session over client. Metadata responses are
// memoized unless client already does so.
func NewSession(client dbgclient.Client, opts ...Option) *Session {
	s := &Session{
		logger:       zap.NewNop(),
		styler:       PlainStyler{},
		arrays:       typeext.New[Object, ArrayField](),
		fields:       typeext.New[Object, ExtendedField](),
		descriptions: typeext.New[Object, TypeDescription](),
		actions:      typeext.New[Object, ActionProvider](),
		overrides:    make(map[string]string),
	}
	for _, opt := range opts {
		opt(s)
	}

	if _, ok := client.(*dbgclient.CachingClient); !ok {
		client = dbgclient.NewCachingClient(client, s.logger)
	}
	s.client = client
	return s
}

// Client returns the session's metadata and memory client.
func (s *Session) Client() dbgclient.Client {
	return s.client
}

// Logger returns the session logger.
func (s *Session) Logger() *zap.Logger {
	return s.logger
}

// Create returns a handle of typeName at addr. typeName may be qualified as
// module!name, in which case module is ignored.
func (s *Session) Create(module, typeName string, addr Pointer) (Object, error) {
	t, err := ParseType(module, typeName)
	if err != nil {
		return Object{}, err
	}
	return s.object(t, addr), nil
}

// CreateType returns a handle of t at addr.
func (s *Session) CreateType(t Type, addr Pointer) Object {
	return s.object(t, addr)
}

func (s *Session) object(t Type, addr Pointer) Object {
	return Object{sess: s, typ: t, ptr: addr}
}

// Global returns a handle to the global variable symbol in module.
func (s *Session) Global(ctx context.Context, module, symbol string) (Object, error) {
	g, err := s.client.GlobalSymbol(ctx, module, symbol)
	if err != nil {
		return Object{}, fmt.Errorf("global %s!%s: %w", module, symbol, err)
	}
	gm := g.Module
	if gm == "" {
		gm = module
	}
	t, err := ParseType(gm, g.Type)
	if err != nil {
		return Object{}, err
	}
	return s.object(t, Pointer(g.Pointer)), nil
}

// Symbol returns the symbol nearest below addr.
func (s *Session) Symbol(ctx context.Context, addr Pointer) (dbgclient.SymbolInfo, error) {
	return s.client.SymbolName(ctx, uint64(addr))
}

// ConstantValue returns the value of a named constant of typeName, or of a
// module-level constant when typeName is empty.
func (s *Session) ConstantValue(ctx context.Context, module, typeName, name string) (uint64, error) {
	return s.client.ConstantValue(ctx, module, typeName, name)
}

// AddTypeOverride makes field of module!typeName resolve as overrideType,
// for fields whose declared type is less specific than the real one.
func (s *Session) AddTypeOverride(module, typeName, field, overrideType string) error {
	t, err := ParseType(module, typeName)
	if err != nil {
		return err
	}
	if _, err := ParseType(module, overrideType); err != nil {
		return err
	}
	s.mu.Lock()
	s.overrides[t.comparisonKey()+"."+field] = overrideType
	s.mu.Unlock()
	return nil
}

// RemoveTypeOverride undoes AddTypeOverride.
func (s *Session) RemoveTypeOverride(module, typeName, field string) {
	t, err := ParseType(module, typeName)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.overrides, t.comparisonKey()+"."+field)
	s.mu.Unlock()
}

func (s *Session) fieldOverride(t Type, field string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	o, ok := s.overrides[t.comparisonKey()+"."+field]
	return o, ok
}

// OnBreak registers fn to run whenever the debuggee breaks or resumes.
func (s *Session) OnBreak(fn func()) {
	s.breakMu.Lock()
	s.breakListeners = append(s.breakListeners, fn)
	s.breakMu.Unlock()
}

// NotifyBreak signals that debuggee state may have changed. Memory is never
// cached, so only listeners holding derived state need to react. The
// metadata cache is kept.
func (s *Session) NotifyBreak() {
	gen := s.generation.Add(1)
	s.breakMu.Lock()
	listeners := append([]func(){}, s.breakListeners...)
	s.breakMu.Unlock()

	s.logger.Debug("debuggee break", zap.Uint64("generation", gen), zap.Int("listeners", len(listeners)))
	for _, fn := range listeners {
		fn()
	}
}

// Generation counts NotifyBreak calls.
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

func (s *Session) pointerSize(ctx context.Context) (int, error) {
	return s.client.PointerSize(ctx)
}

// validExtensionName rejects names that would collide with path syntax.
func validExtensionName(name string) error {
	if strings.Contains(name, ".") {
		return fmt.Errorf("%w: %q contains '.'", ErrInvalidName, name)
	}
	return nil
}
