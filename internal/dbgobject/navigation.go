package dbgobject

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/async"
	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"go.uber.org/zap"
)

const (
	vtableSuffix = "::`vftable'"

	stringChunk = 64
	pageSize    = 4096
)

// IsEnum reports whether the handle's type is an enumeration.
func (o Object) IsEnum(ctx context.Context) (bool, error) {
	if o.typ.IsPointer() || o.typ.IsScalar() || o.typ.IsVoid() {
		return false, nil
	}
	return o.sess.client.IsEnum(ctx, o.typ.module, o.typ.name)
}

// Constants returns every constant name of the handle's type whose value
// equals the value at the handle.
func (o Object) Constants(ctx context.Context) ([]string, error) {
	if o.IsNull() {
		return nil, fmt.Errorf("%w: constant of null %s", ErrNullDereference, o.typ)
	}
	v, err := o.UVal(ctx)
	if err != nil {
		return nil, err
	}
	return o.sess.client.ConstantName(ctx, o.typ.module, o.typ.name, v)
}

// Constant returns the name of the constant the handle holds.
func (o Object) Constant(ctx context.Context) (string, error) {
	names, err := o.Constants(ctx)
	if err != nil {
		return "", err
	}
	if len(names) == 0 {
		return "", fmt.Errorf("%w: %s", ErrNoConstant, o)
	}
	return names[0], nil
}

// HasConstantFlag reports whether every bit of the named constant is set
// in the value at the handle.
func (o Object) HasConstantFlag(ctx context.Context, flag string) (bool, error) {
	vals, err := async.All(ctx,
		func(ctx context.Context) (uint64, error) { return o.UVal(ctx) },
		func(ctx context.Context) (uint64, error) {
			return o.sess.client.ConstantValue(ctx, o.typ.module, o.typ.name, flag)
		},
	)
	if err != nil {
		return false, err
	}
	return vals[0]&vals[1] == vals[1], nil
}

// ListNext steps from one list node to the next.
type ListNext func(ctx context.Context, node Object) (Object, error)

// NextField steps through the extended or real field path.
func NextField(path string) ListNext {
	return func(ctx context.Context, node Object) (Object, error) {
		return node.F(ctx, path)
	}
}

// ListOptions bounds List.
type ListOptions struct {
	// StopAt ends the walk before this node. When unset the walk ends on
	// returning to the first node.
	StopAt *Object
	// Max limits the number of nodes when positive.
	Max int
}

// List walks a linked list from the handle until a null node, the stop
// node or the length limit.
func (o Object) List(ctx context.Context, next ListNext, opts ListOptions) ([]Object, error) {
	stop := o
	first := true
	if opts.StopAt != nil {
		stop = *opts.StopAt
		first = false
	}

	var nodes []Object
	node := o
	for !node.IsNull() && (first || !node.Equals(stop)) {
		if opts.Max > 0 && len(nodes) >= opts.Max {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		first = false
		nodes = append(nodes, node)

		n, err := next(ctx, node)
		if err != nil {
			return nil, fmt.Errorf("list node %d: %w", len(nodes)-1, err)
		}
		node = n
	}
	return nodes, nil
}

// ReadString reads a string of characters starting at the handle. A
// negative length reads up to the first zero character.
func (o Object) ReadString(ctx context.Context, length int) (string, error) {
	if o.IsNull() {
		return "", fmt.Errorf("%w: string at null %s", ErrNullDereference, o.typ)
	}
	if length >= 0 {
		vals, err := o.Vals(ctx, length)
		if err != nil {
			return "", err
		}
		return decodeChars(vals), nil
	}

	width, err := o.readWidth(ctx)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	cur := o
	read := 0
	single := false
	for read < dbgclient.MaxArrayCount {
		chunk := stringChunk
		toPage := int((pageSize - uint64(cur.ptr)%pageSize) / uint64(width))
		if toPage > 0 && toPage < chunk {
			chunk = toPage
		}
		if single {
			chunk = 1
		}

		vals, err := cur.Vals(ctx, chunk)
		if err != nil && chunk > 1 {
			o.sess.logger.Debug("string chunk read failed, reading one character at a time",
				zap.Stringer("at", cur), zap.Int("chunk", chunk), zap.Error(err))
			single = true
			vals, err = cur.Vals(ctx, 1)
		}
		if err != nil {
			return "", err
		}
		for i, v := range vals {
			if v.Bits == 0 {
				return b.String() + decodeChars(vals[:i]), nil
			}
		}
		b.WriteString(decodeChars(vals))
		read += len(vals)
		if cur, err = cur.Idx(ctx, len(vals)); err != nil {
			return "", err
		}
	}
	return b.String(), nil
}

func decodeChars(vals []Value) string {
	runes := make([]rune, len(vals))
	for i, v := range vals {
		runes[i] = rune(v.Bits)
	}
	return string(runes)
}

// VTableType returns the most derived type named by the vtable the handle
// points at.
func (o Object) VTableType(ctx context.Context) (string, error) {
	if o.IsNull() {
		return o.typ.name, nil
	}
	size, err := o.sess.pointerSize(ctx)
	if err != nil {
		return "", err
	}
	vptr, err := o.sess.client.ReadNumber(ctx, uint64(o.ptr), size)
	if err != nil {
		return "", fmt.Errorf("reading vtable of %s: %w", o, err)
	}
	sym, err := o.sess.client.SymbolName(ctx, vptr)
	if err != nil {
		return "", fmt.Errorf("vtable symbol of %s: %w", o, err)
	}
	if sym.Displacement != 0 {
		return "", fmt.Errorf("%w: %s does not point at a vtable (found %s+0x%x)", ErrTypeMismatch, o, sym.Name, sym.Displacement)
	}
	name := sym.Name
	if i := strings.Index(name, "!"); i >= 0 {
		name = name[i+1:]
	}
	i := strings.Index(name, vtableSuffix)
	if i < 0 {
		return "", fmt.Errorf("%w: %s does not point at a vtable (found %s)", ErrTypeMismatch, o, sym.Name)
	}
	return name[:i], nil
}

// VCast casts the handle to the most derived type named by its vtable,
// adjusting the address for the base class offset.
func (o Object) VCast(ctx context.Context) (Object, error) {
	if o.IsNull() {
		return o, nil
	}
	vt, err := o.VTableType(ctx)
	if err != nil {
		return Object{}, err
	}
	if vt == o.typ.name {
		return o, nil
	}
	derived, err := o.parseRelative(vt)
	if err != nil {
		return Object{}, err
	}

	bases, err := o.sess.client.BaseTypes(ctx, derived.module, derived.name)
	if err != nil {
		return Object{}, fmt.Errorf("base types of %s: %w", derived, err)
	}
	for _, b := range bases {
		if b.Type == o.typ.name {
			return o.sess.object(derived, o.ptr.Add(-b.Offset)), nil
		}
	}

	own, err := o.sess.client.BaseTypes(ctx, o.typ.module, o.typ.name)
	if err != nil {
		return Object{}, fmt.Errorf("base types of %s: %w", o.typ, err)
	}
	for _, b := range own {
		if b.Type == vt {
			return o.sess.object(derived, o.ptr.Add(b.Offset)), nil
		}
	}
	return Object{}, fmt.Errorf("%w: %s is not related to vtable type %s", ErrTypeMismatch, o.typ, vt)
}

// DCast casts the handle to typeName through its vtable. A handle whose
// dynamic type is not typeName and does not derive from it yields a null
// handle of typeName.
func (o Object) DCast(ctx context.Context, typeName string) (Object, error) {
	t, err := o.parseRelative(typeName)
	if err != nil {
		return Object{}, err
	}
	null := o.sess.object(t, 0)

	derived, err := o.VCast(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Object{}, ctxErr
		}
		o.sess.logger.Debug("dynamic cast failed", zap.Stringer("object", o), zap.String("to", typeName), zap.Error(err))
		return null, nil
	}
	if derived.typ.Equals(t) {
		return derived, nil
	}
	bases, err := derived.BaseTypes(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return Object{}, err
		}
		return null, nil
	}
	for _, b := range bases {
		if b.typ.Equals(t) {
			return b, nil
		}
	}
	return null, nil
}
