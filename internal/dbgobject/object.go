package dbgobject

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
)

// Object is a typed handle to memory in the debuggee. The zero value is not
// usable; handles come from a Session or from navigating another handle.
type Object struct {
	sess      *Session
	typ       Type
	ptr       Pointer
	bitcount  int
	bitoffset int
	elemSize  int64
}

// Key identifies an object's storage for equality and deduplication.
type Key struct {
	Module  string
	Address Pointer
}

// Session returns the session the handle belongs to.
func (o Object) Session() *Session { return o.sess }

// Type returns the handle's type.
func (o Object) Type() Type { return o.typ }

// Module returns the module of the handle's type.
func (o Object) Module() string { return o.typ.module }

// ModuleName implements typeext.Candidate.
func (o Object) ModuleName() string { return o.typ.module }

// TypeName implements typeext.Candidate. It is the element type name, so
// extensions on T also apply to inline arrays of T.
func (o Object) TypeName() string { return o.typ.name }

// Pointer returns the handle's address.
func (o Object) Pointer() Pointer { return o.ptr }

// IsNull reports whether the handle's address is zero.
func (o Object) IsNull() bool { return o.ptr.IsNull() }

// Ptr formats the address.
func (o Object) Ptr() string { return o.ptr.String() }

// BitCount returns the width of a bitfield handle, or 0.
func (o Object) BitCount() int { return o.bitcount }

// BitOffset returns the bit position of a bitfield handle.
func (o Object) BitOffset() int { return o.bitoffset }

// Key returns the handle's identity.
func (o Object) Key() Key {
	return Key{Module: strings.ToLower(o.typ.module), Address: o.ptr}
}

// Equals reports whether both handles refer to the same address in the same
// module.
func (o Object) Equals(other Object) bool {
	return o.Key() == other.Key()
}

func (o Object) String() string {
	return fmt.Sprintf("%s @ %s", o.typ.QualifiedName(), o.ptr)
}

// parseRelative parses typeName relative to the handle's module.
func (o Object) parseRelative(typeName string) (Type, error) {
	return ParseType(o.typ.module, typeName)
}

// As reinterprets the handle as typeName at the same address. No requests
// are issued.
func (o Object) As(typeName string) (Object, error) {
	t, err := o.parseRelative(typeName)
	if err != nil {
		return Object{}, err
	}
	return o.sess.object(t, o.ptr), nil
}

// AsType reinterprets the handle as t at the same address.
func (o Object) AsType(t Type) Object {
	return o.sess.object(t, o.ptr)
}

// Deref reads the pointer stored at the handle's address. A null handle
// yields a null pointee without reading.
func (o Object) Deref(ctx context.Context) (Object, error) {
	if !o.typ.IsPointer() {
		return Object{}, fmt.Errorf("%w: cannot dereference non-pointer %s", ErrTypeMismatch, o.typ)
	}
	target := o.typ.Dereferenced()
	if o.IsNull() {
		return o.sess.object(target, 0), nil
	}

	size, err := o.sess.pointerSize(ctx)
	if err != nil {
		return Object{}, err
	}
	v, err := o.sess.client.ReadNumber(ctx, uint64(o.ptr), size)
	if err != nil {
		return Object{}, fmt.Errorf("dereferencing %s: %w", o, err)
	}
	return o.sess.object(target, Pointer(v)), nil
}

// RawField returns the field name of the handle without following
// pointers.
func (o Object) RawField(ctx context.Context, name string) (Object, error) {
	if name == "" {
		return Object{}, fmt.Errorf("%w: empty field name on %s", ErrTypeMismatch, o.typ)
	}
	if o.typ.IsPointer() && !o.typ.IsArray() {
		return Object{}, fmt.Errorf("%w: field %q requested on pointer %s, dereference first", ErrTypeMismatch, name, o.typ)
	}
	if o.IsNull() {
		return Object{}, fmt.Errorf("%w: field %q of null %s", ErrNullDereference, name, o.typ)
	}

	info, err := o.sess.client.FieldOffset(ctx, o.typ.module, o.typ.name, name)
	if err != nil {
		return Object{}, fieldError(o.typ, name, err)
	}
	return o.fieldObject(name, info)
}

func fieldError(t Type, field string, err error) error {
	var rerr *dbgclient.RemoteError
	if errors.As(err, &rerr) && !dbgclient.IsTransport(err) {
		return fmt.Errorf("unable to find field %q on %s: %w: %w", field, t, ErrTypeMismatch, err)
	}
	return fmt.Errorf("field %q on %s: %w", field, t, err)
}

func (o Object) fieldObject(name string, info dbgclient.FieldInfo) (Object, error) {
	typeName := info.Type
	if override, ok := o.sess.fieldOverride(o.typ, name); ok {
		typeName = override
	}
	module := info.Module
	if module == "" {
		module = o.typ.module
	}
	ft, err := ParseType(module, typeName)
	if err != nil {
		return Object{}, err
	}

	elemSize := info.Size
	if ft.isArray && ft.arrayLen > 0 {
		elemSize = info.Size / int64(ft.arrayLen)
	} else if ft.isArray {
		elemSize = 0
	}
	return Object{
		sess:      o.sess,
		typ:       ft,
		ptr:       o.ptr.Add(info.Offset),
		bitcount:  info.BitCount,
		bitoffset: info.BitOffset,
		elemSize:  elemSize,
	}, nil
}

// Field follows a dotted path of field names. A pointer-typed field that is
// not an array of pointers is dereferenced once before the next step.
func (o Object) Field(ctx context.Context, path string) (Object, error) {
	cur := o
	for _, step := range strings.Split(path, ".") {
		f, err := cur.RawField(ctx, step)
		if err != nil {
			return Object{}, err
		}
		if f.typ.IsPointer() && !f.typ.IsArray() {
			if f, err = f.Deref(ctx); err != nil {
				return Object{}, err
			}
		}
		cur = f
	}
	return cur, nil
}

// elementSize returns the size of one element of the handle's type.
func (o Object) elementSize(ctx context.Context) (int64, error) {
	if o.elemSize > 0 {
		return o.elemSize, nil
	}
	size, err := o.sess.client.TypeSize(ctx, o.typ.module, o.typ.name)
	if err != nil {
		return 0, fmt.Errorf("size of %s: %w", o.typ.NonArray(), err)
	}
	return size, nil
}

// Size returns the size in bytes of the whole handle, including every
// inline array element.
func (o Object) Size(ctx context.Context) (int64, error) {
	size, err := o.elementSize(ctx)
	if err != nil {
		return 0, err
	}
	if o.typ.isArray {
		return size * int64(o.typ.arrayLen), nil
	}
	return size, nil
}

// Idx returns element i of the array starting at the handle.
func (o Object) Idx(ctx context.Context, i int) (Object, error) {
	elem := o.typ.NonArray()
	if i == 0 {
		return Object{sess: o.sess, typ: elem, ptr: o.ptr, elemSize: o.elemSize}, nil
	}
	size, err := o.elementSize(ctx)
	if err != nil {
		return Object{}, err
	}
	return Object{sess: o.sess, typ: elem, ptr: o.ptr.Add(int64(i) * size), elemSize: size}, nil
}

// BaseTypes returns the handle viewed as each of its base classes, ordered
// by descending offset. Pointers and scalars have none.
func (o Object) BaseTypes(ctx context.Context) ([]Object, error) {
	if o.typ.IsPointer() || o.typ.IsScalar() || o.typ.IsVoid() {
		return nil, nil
	}
	bases, err := o.sess.client.BaseTypes(ctx, o.typ.module, o.typ.name)
	if err != nil {
		return nil, fmt.Errorf("base types of %s: %w", o.typ.NonArray(), err)
	}
	sort.SliceStable(bases, func(i, j int) bool { return bases[i].Offset > bases[j].Offset })

	out := make([]Object, 0, len(bases))
	for _, b := range bases {
		module := b.Module
		if module == "" {
			module = o.typ.module
		}
		t, err := ParseType(module, b.Type)
		if err != nil {
			return nil, err
		}
		ptr := o.ptr
		if !ptr.IsNull() {
			ptr = ptr.Add(b.Offset)
		}
		out = append(out, o.sess.object(t, ptr))
	}
	return out, nil
}

// IsType reports whether the handle is typeName or derives from it.
func (o Object) IsType(ctx context.Context, typeName string) (bool, error) {
	t, err := o.parseRelative(typeName)
	if err != nil {
		return false, err
	}
	return o.isType(ctx, t)
}

func (o Object) isType(ctx context.Context, t Type) (bool, error) {
	if o.typ.Equals(t) {
		return true, nil
	}
	bases, err := o.BaseTypes(ctx)
	if err != nil {
		return false, err
	}
	for _, b := range bases {
		if b.typ.Equals(t) {
			return true, nil
		}
	}
	return false, nil
}

// FieldValue is one field of a handle's type.
type FieldValue struct {
	Name string
	Object
}

// Fields lists the fields of the handle's type in layout order. Pointer
// fields are not followed.
func (o Object) Fields(ctx context.Context, includeBaseTypes bool) ([]FieldValue, error) {
	if o.typ.IsPointer() || o.typ.IsScalar() {
		return nil, nil
	}
	fields, err := o.sess.client.TypeFields(ctx, o.typ.module, o.typ.name, includeBaseTypes)
	if err != nil {
		return nil, fmt.Errorf("fields of %s: %w", o.typ.NonArray(), err)
	}
	sort.SliceStable(fields, func(i, j int) bool {
		a, b := fields[i], fields[j]
		ai := a.Offset*64 + int64(a.BitOffset)
		bi := b.Offset*64 + int64(b.BitOffset)
		if ai != bi {
			return ai < bi
		}
		if a.Size != b.Size {
			return a.Size > b.Size
		}
		return a.Name < b.Name
	})

	out := make([]FieldValue, 0, len(fields))
	for _, f := range fields {
		fo, err := o.fieldObject(f.Name, f.FieldInfo)
		if err != nil {
			return nil, err
		}
		if o.IsNull() {
			fo.ptr = 0
		}
		out = append(out, FieldValue{Name: f.Name, Object: fo})
	}
	return out, nil
}

// Unembed returns the outerType object that contains the handle as its
// field.
func (o Object) Unembed(ctx context.Context, outerType, field string) (Object, error) {
	outer, err := o.parseRelative(outerType)
	if err != nil {
		return Object{}, err
	}
	info, err := o.sess.client.FieldOffset(ctx, outer.module, outer.name, field)
	if err != nil {
		return Object{}, fieldError(outer, field, err)
	}
	if o.IsNull() {
		return o.sess.object(outer, 0), nil
	}
	return o.sess.object(outer, o.ptr.Add(-info.Offset)), nil
}
