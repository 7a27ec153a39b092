package dbgobject

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"go.uber.org/zap"
)

// Styler decorates the parts of a default description.
type Styler interface {
	Namespace(ns string) string
	TypeName(name string) string
}

// PlainStyler leaves descriptions undecorated.
type PlainStyler struct{}

func (PlainStyler) Namespace(ns string) string { return ns }
func (PlainStyler) TypeName(name string) string { return name }

// Describer renders obj as a short human readable string.
type Describer func(ctx context.Context, obj Object) (string, error)

// TypeDescription is a named description attached to a type. A primary
// description is used when no name is requested.
type TypeDescription struct {
	Name     string
	Primary  bool
	Describe Describer
}

// AddTypeDescription attaches a description named name to types matched by
// m in module.
func (s *Session) AddTypeDescription(module string, m typeext.Matcher, name string, primary bool, fn Describer) error {
	if err := validExtensionName(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: description %q has no function", ErrInvalidName, name)
	}
	m, err := NormalizeMatcher(m)
	if err != nil {
		return err
	}
	s.descriptions.Register(module, m, name, TypeDescription{Name: name, Primary: primary, Describe: fn})
	s.logger.Debug("type description registered",
		zap.String("module", module), zap.Stringer("type", m), zap.String("name", name), zap.Bool("primary", primary))
	return nil
}

// RemoveTypeDescription undoes AddTypeDescription.
func (s *Session) RemoveTypeDescription(module string, m typeext.Matcher, name string) bool {
	m, err := NormalizeMatcher(m)
	if err != nil {
		return false
	}
	_, ok := s.descriptions.Unregister(module, m, name)
	return ok
}

// Desc describes the handle with the first primary description on its type
// chain, or with the structural default. When a registered description
// fails the result is the type name followed by "???" together with the
// error.
func (o Object) Desc(ctx context.Context) (string, error) {
	m, ok, err := o.sess.descriptions.ResolveFirst(ctx, o, func(r typeext.Registration[TypeDescription]) bool {
		return r.Extension.Primary
	})
	if err != nil {
		return "", err
	}
	if !ok {
		return o.defaultDescription(ctx)
	}
	return o.runDescription(ctx, m)
}

// DescNamed describes the handle with the description called name.
func (o Object) DescNamed(ctx context.Context, name string) (string, error) {
	m, ok, err := o.sess.descriptions.ResolveBest(ctx, o, name)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", fmt.Errorf("%w: no description %q on %s", ErrTypeMismatch, name, o.typ)
	}
	return o.runDescription(ctx, m)
}

func (o Object) runDescription(ctx context.Context, m typeext.Match[Object, TypeDescription]) (string, error) {
	s, err := m.Extension.Describe(ctx, m.Object)
	if err != nil {
		o.sess.logger.Debug("description failed",
			zap.String("name", m.Name), zap.Stringer("object", o), zap.Error(err))
		return o.typ.Name() + "???", &ExtensionError{Kind: "description", Name: m.Name, Type: o.typ, Err: err}
	}
	return s, nil
}

// HasDescription reports whether a primary description applies to the
// handle.
func (o Object) HasDescription(ctx context.Context) (bool, error) {
	_, ok, err := o.sess.descriptions.ResolveFirst(ctx, o, func(r typeext.Registration[TypeDescription]) bool {
		return r.Extension.Primary
	})
	return ok, err
}

func (o Object) defaultDescription(ctx context.Context) (string, error) {
	if o.IsNull() {
		return "nullptr", nil
	}
	if o.typ.isArray {
		return "[...]", nil
	}
	switch {
	case o.typ.IsPointer():
		target, err := o.Deref(ctx)
		if err != nil {
			return "", err
		}
		return target.Ptr(), nil
	case o.typ.IsScalar() || o.bitcount > 0:
		v, err := o.Val(ctx)
		if err != nil {
			return "", err
		}
		return v.String(), nil
	}

	enum, err := o.IsEnum(ctx)
	if err != nil {
		return "", err
	}
	if enum {
		name, err := o.Constant(ctx)
		if err == nil {
			return name, nil
		}
		v, verr := o.Val(ctx)
		if verr != nil {
			return "", verr
		}
		return v.String(), nil
	}
	return o.styledName() + " " + o.Ptr(), nil
}

func (o Object) styledName() string {
	st := o.sess.styler
	ns, base := o.typ.SplitNamespace()
	if ns == "" {
		return st.TypeName(base)
	}
	return st.Namespace(ns) + st.TypeName(base)
}
