package dbgobject

import (
	"context"
	"fmt"
	"math"
	"strconv"
)

// ValueKind classifies a scalar read from the debuggee.
type ValueKind int

const (
	KindUnsigned ValueKind = iota
	KindSigned
	KindFloat
	KindBool
	KindPointer
)

// Value is a scalar read from the debuggee, kept as raw bits so that 64-bit
// integers and pointers are exact.
type Value struct {
	Kind  ValueKind
	Bits  uint64
	Width int
}

// Uint returns the value as unsigned bits.
func (v Value) Uint() uint64 { return v.Bits }

// Int returns the value sign-extended from its width.
func (v Value) Int() int64 {
	if v.Width >= 8 || v.Width <= 0 {
		return int64(v.Bits)
	}
	shift := 64 - uint(v.Width*8)
	return int64(v.Bits<<shift) >> shift
}

// Float returns the value as a floating point number.
func (v Value) Float() float64 {
	switch {
	case v.Kind == KindFloat && v.Width == 4:
		return float64(math.Float32frombits(uint32(v.Bits)))
	case v.Kind == KindFloat:
		return math.Float64frombits(v.Bits)
	case v.Kind == KindSigned:
		return float64(v.Int())
	default:
		return float64(v.Bits)
	}
}

// Bool reports whether the value is non-zero.
func (v Value) Bool() bool { return v.Bits != 0 }

func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return strconv.FormatBool(v.Bool())
	case KindFloat:
		return strconv.FormatFloat(v.Float(), 'g', -1, 64)
	case KindSigned:
		return strconv.FormatInt(v.Int(), 10)
	case KindPointer:
		return Pointer(v.Bits).String()
	default:
		return strconv.FormatUint(v.Bits, 10)
	}
}

func (o Object) valueKind() ValueKind {
	switch {
	case o.typ.IsPointer():
		return KindPointer
	case o.typ.IsBool() || o.bitcount == 1:
		return KindBool
	case o.typ.IsFloat():
		return KindFloat
	case o.typ.IsUnsigned() || o.bitcount > 0:
		return KindUnsigned
	default:
		return KindSigned
	}
}

// readWidth checks that the handle can be read as a single scalar and
// returns its width.
func (o Object) readWidth(ctx context.Context) (int, error) {
	if o.IsNull() {
		return 0, fmt.Errorf("%w: reading null %s", ErrNullDereference, o.typ)
	}
	size, err := o.elementSize(ctx)
	if err != nil {
		return 0, err
	}
	switch size {
	case 1, 2, 4, 8:
		return int(size), nil
	}
	return 0, fmt.Errorf("%w: %s is %d bytes", ErrUnsupportedSize, o.typ.NonArray(), size)
}

func (o Object) makeValue(raw uint64, width int) Value {
	v := Value{Kind: o.valueKind(), Bits: raw, Width: width}
	if o.bitcount > 0 && o.bitcount < 64 {
		v.Bits = (raw >> uint(o.bitoffset)) & (1<<uint(o.bitcount) - 1)
		if v.Kind == KindSigned {
			// Bitfields of signed type are read unsigned like the
			// debuggers we talk to do.
			v.Kind = KindUnsigned
		}
	}
	if v.Kind == KindFloat && width != 4 && width != 8 {
		v.Kind = KindUnsigned
	}
	return v
}

// Val reads the scalar at the handle.
func (o Object) Val(ctx context.Context) (Value, error) {
	width, err := o.readWidth(ctx)
	if err != nil {
		return Value{}, err
	}
	raw, err := o.sess.client.ReadNumber(ctx, uint64(o.ptr), width)
	if err != nil {
		return Value{}, fmt.Errorf("reading %s: %w", o, err)
	}
	return o.makeValue(raw, width), nil
}

// UVal reads the scalar at the handle as unsigned.
func (o Object) UVal(ctx context.Context) (uint64, error) {
	v, err := o.Val(ctx)
	return v.Uint(), err
}

// SVal reads the scalar at the handle sign-extended.
func (o Object) SVal(ctx context.Context) (int64, error) {
	v, err := o.Val(ctx)
	if err != nil {
		return 0, err
	}
	if o.bitcount > 0 {
		shift := 64 - uint(o.bitcount)
		return int64(v.Bits<<shift) >> shift, nil
	}
	return v.Int(), nil
}

// Float reads the scalar at the handle as a floating point number.
func (o Object) Float(ctx context.Context) (float64, error) {
	v, err := o.Val(ctx)
	return v.Float(), err
}

// Bool reads the scalar at the handle as a truth value.
func (o Object) Bool(ctx context.Context) (bool, error) {
	v, err := o.Val(ctx)
	return v.Bool(), err
}

// Vals reads count consecutive scalars starting at the handle in a single
// request.
func (o Object) Vals(ctx context.Context, count int) ([]Value, error) {
	if count == 0 {
		return []Value{}, nil
	}
	if o.bitcount > 0 {
		return nil, fmt.Errorf("%w: bulk read of bitfield %s", ErrTypeMismatch, o.typ)
	}
	width, err := o.readWidth(ctx)
	if err != nil {
		return nil, err
	}
	raw, err := o.sess.client.ReadArray(ctx, uint64(o.ptr), width, count)
	if err != nil {
		return nil, fmt.Errorf("reading %d values at %s: %w", count, o, err)
	}
	out := make([]Value, len(raw))
	for i, r := range raw {
		out[i] = o.makeValue(r, width)
	}
	return out, nil
}
