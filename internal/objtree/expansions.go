package objtree

import (
	"context"
	"strconv"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
)

// FieldChildren is an expansion that shows every field of an object. A
// pointer field is shown as the object it points at, except character and
// void pointers. Fields that are not followed are marked Embedded.
func FieldChildren(includeBaseTypes bool) ChildExpansion {
	return func(ctx context.Context, obj dbgobject.Object) ([]any, error) {
		fields, err := obj.Fields(ctx, includeBaseTypes)
		if err != nil {
			return nil, err
		}
		out := make([]any, 0, len(fields))
		for _, f := range fields {
			target := f.Object
			follow := followPointer(target.Type())
			if follow {
				if target, err = target.Deref(ctx); err != nil {
					return nil, err
				}
			}
			out = append(out, Labeled{Label: f.Name, Object: target, Embedded: !follow})
		}
		return out, nil
	}
}

// ArrayChildren is an expansion that shows the elements of the array
// selected by arg. Elements stored inline in obj are labeled with their
// index and marked Embedded.
func ArrayChildren(arg dbgobject.ArrayArg) ChildExpansion {
	return func(ctx context.Context, obj dbgobject.Object) ([]any, error) {
		items, err := obj.Array(ctx, arg)
		if err != nil {
			return nil, err
		}
		t := obj.Type()
		inline := t.IsArray() && !t.NonArray().IsPointer()
		out := make([]any, len(items))
		for i, it := range items {
			if inline {
				out[i] = Labeled{Label: "[" + strconv.Itoa(i) + "]", Object: it, Embedded: true}
			} else {
				out[i] = it
			}
		}
		return out, nil
	}
}

func followPointer(t dbgobject.Type) bool {
	if !t.IsPointer() || t.IsArray() {
		return false
	}
	pointee := t.Dereferenced()
	return !pointee.IsCharacter() && !pointee.IsVoid()
}

// StructuralChildren expands an object by its shape: inline arrays into
// their elements, structs into their fields, and nothing for null handles,
// pointers, scalars and enums.
func StructuralChildren(includeBaseTypes bool) ChildExpansion {
	fields := FieldChildren(includeBaseTypes)
	elements := ArrayChildren(dbgobject.ArrayDefault())
	return func(ctx context.Context, obj dbgobject.Object) ([]any, error) {
		t := obj.Type()
		switch {
		case obj.IsNull():
			return nil, nil
		case t.IsArray():
			return elements(ctx, obj)
		case t.IsPointer(), t.IsScalar(), t.IsVoid(), obj.BitCount() > 0:
			return nil, nil
		}
		enum, err := obj.IsEnum(ctx)
		if err != nil {
			return nil, err
		}
		if enum {
			return nil, nil
		}
		return fields(ctx, obj)
	}
}
