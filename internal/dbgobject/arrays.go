package dbgobject

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"go.uber.org/zap"
)

// TypeResolver names the type every result of an extension must be. It is
// given the type of the object the extension was resolved on.
type TypeResolver func(parent Type) string

// StaticType returns a TypeResolver that always names typeName.
func StaticType(typeName string) TypeResolver {
	return func(Type) string { return typeName }
}

// ArrayGetter produces the elements of a named array on obj.
type ArrayGetter func(ctx context.Context, obj Object) ([]Object, error)

// ArrayField is a named array attached to a type.
type ArrayField struct {
	Name       string
	ResultType TypeResolver
	Getter     ArrayGetter
}

// AddArrayField attaches an array named name to types matched by m in
// module. The empty name is the type's default array.
func (s *Session) AddArrayField(module string, m typeext.Matcher, name string, resultType TypeResolver, getter ArrayGetter) error {
	if err := validExtensionName(name); err != nil {
		return err
	}
	if getter == nil {
		return fmt.Errorf("%w: array %q has no getter", ErrInvalidName, name)
	}
	m, err := NormalizeMatcher(m)
	if err != nil {
		return err
	}
	s.arrays.Register(module, m, name, ArrayField{Name: name, ResultType: resultType, Getter: getter})
	s.logger.Debug("array field registered",
		zap.String("module", module), zap.Stringer("type", m), zap.String("name", name))
	return nil
}

// RemoveArrayField undoes AddArrayField.
func (s *Session) RemoveArrayField(module string, m typeext.Matcher, name string) bool {
	m, err := NormalizeMatcher(m)
	if err != nil {
		return false
	}
	_, ok := s.arrays.Unregister(module, m, name)
	return ok
}

// ArrayFields returns the array names registered on obj's type chain, most
// derived first.
func (s *Session) ArrayFields(ctx context.Context, obj Object) ([]string, error) {
	matches, err := s.arrays.ResolveAll(ctx, obj)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(matches))
	seen := make(map[string]bool, len(matches))
	for _, m := range matches {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		names = append(names, m.Name)
	}
	return names, nil
}

type arrayArgKind int

const (
	arrayDefault arrayArgKind = iota
	arrayNamed
	arrayCount
	arrayCountFrom
)

// ArrayArg selects how Array determines the elements.
type ArrayArg struct {
	kind  arrayArgKind
	name  string
	count int
	from  Object
}

// ArrayDefault uses the inline array length, else the type's default array
// extension.
func ArrayDefault() ArrayArg { return ArrayArg{kind: arrayDefault} }

// ArrayNamed uses the array extension called name.
func ArrayNamed(name string) ArrayArg { return ArrayArg{kind: arrayNamed, name: name} }

// ArrayCount reads exactly n elements.
func ArrayCount(n int) ArrayArg { return ArrayArg{kind: arrayCount, count: n} }

// ArrayCountFrom reads as many elements as the scalar at obj holds. A null
// obj means zero.
func ArrayCountFrom(obj Object) ArrayArg { return ArrayArg{kind: arrayCountFrom, from: obj} }

// Array returns the elements of the array starting at the handle.
func (o Object) Array(ctx context.Context, arg ArrayArg) ([]Object, error) {
	switch arg.kind {
	case arrayNamed:
		return o.namedArray(ctx, arg.name)
	case arrayCount:
		return o.arrayOf(ctx, arg.count)
	case arrayCountFrom:
		if arg.from.sess == nil || arg.from.IsNull() {
			return []Object{}, nil
		}
		n, err := arg.from.UVal(ctx)
		if err != nil {
			return nil, fmt.Errorf("array count: %w", err)
		}
		if n > dbgclient.MaxArrayCount {
			return nil, fmt.Errorf("%w: count %d", dbgclient.ErrTooManyValues, n)
		}
		return o.arrayOf(ctx, int(n))
	}

	if o.typ.isArray && o.typ.arrayLen > 0 {
		return o.arrayOf(ctx, o.typ.arrayLen)
	}
	if _, ok, err := o.sess.arrays.ResolveBest(ctx, o, ""); err != nil {
		return nil, err
	} else if ok {
		return o.namedArray(ctx, "")
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownArrayShape, o.typ)
}

func (o Object) namedArray(ctx context.Context, name string) ([]Object, error) {
	m, ok, err := o.sess.arrays.ResolveBest(ctx, o, name)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: no array %q on %s", ErrUnknownArrayShape, name, o.typ)
	}
	ext := m.Extension
	items, err := ext.Getter(ctx, m.Object)
	if err != nil {
		return nil, &ExtensionError{Kind: "array", Name: name, Type: o.typ, Err: err}
	}
	if items == nil {
		items = []Object{}
	}
	if ext.ResultType == nil {
		return items, nil
	}

	want := ext.ResultType(m.Object.typ)
	for i, item := range items {
		ok, err := item.IsType(ctx, want)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, &ExtensionError{
				Kind: "array",
				Name: name,
				Type: o.typ,
				Err:  fmt.Errorf("%w: element %d is %s, expected %s", ErrTypeMismatch, i, item.typ, want),
			}
		}
	}
	return items, nil
}

// arrayOf returns count handles starting at the handle. Pointer elements
// are read in one request; other elements only need the element size.
func (o Object) arrayOf(ctx context.Context, count int) ([]Object, error) {
	if count < 0 {
		return nil, fmt.Errorf("%w: negative count %d", ErrUnknownArrayShape, count)
	}
	if count > dbgclient.MaxArrayCount {
		return nil, fmt.Errorf("%w: count %d", dbgclient.ErrTooManyValues, count)
	}
	if count == 0 || o.IsNull() {
		return []Object{}, nil
	}

	elem := o.typ.NonArray()
	if elem.IsPointer() {
		return o.pointerArray(ctx, elem, count)
	}

	out := make([]Object, count)
	for i := range out {
		item, err := o.Idx(ctx, i)
		if err != nil {
			return nil, err
		}
		out[i] = item
	}
	return out, nil
}

func (o Object) pointerArray(ctx context.Context, elem Type, count int) ([]Object, error) {
	width, err := o.sess.pointerSize(ctx)
	if err != nil {
		return nil, err
	}
	target := elem.Dereferenced()
	out := make([]Object, count)

	values, err := o.sess.client.ReadArray(ctx, uint64(o.ptr), width, count)
	if err == nil && len(values) == count {
		for i, v := range values {
			out[i] = o.sess.object(target, Pointer(v))
		}
		return out, nil
	}
	o.sess.logger.Debug("bulk pointer read failed, reading individually",
		zap.Stringer("object", o), zap.Int("count", count), zap.Error(err))

	for i := range out {
		addr := o.ptr.Add(int64(i * width))
		v, err := o.sess.client.ReadNumber(ctx, uint64(addr), width)
		if err != nil {
			return nil, fmt.Errorf("reading element %d of %s: %w", i, o, err)
		}
		out[i] = o.sess.object(target, Pointer(v))
	}
	return out, nil
}
