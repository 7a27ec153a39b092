package main

import (
	"context"
	"strconv"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
)

// characterPointer matches narrow and wide C string types.
var characterPointer = typeext.Predicate("character-pointer", func(typeName string) bool {
	switch typeName {
	case "char*", "signed char*", "unsigned char*", "wchar_t*", "char16_t*", "char32_t*":
		return true
	}
	return false
})

// registerBuiltins attaches the extensions every CLI session has to the
// types of module: quoted strings for character pointers and a memory link
// for every object.
func registerBuiltins(sess *dbgobject.Session, module string) error {
	if err := sess.AddTypeDescription(module, characterPointer, "string", true, describeString); err != nil {
		return err
	}
	return sess.AddAction(module, anyType, "address", addressAction)
}

var anyType = typeext.Predicate("any", func(string) bool { return true })

func describeString(ctx context.Context, obj dbgobject.Object) (string, error) {
	if obj.IsNull() {
		return "nullptr", nil
	}
	chars, err := obj.Deref(ctx)
	if err != nil {
		return "", err
	}
	s, err := chars.ReadString(ctx, -1)
	if err != nil {
		return "", err
	}
	return strconv.Quote(s), nil
}

func addressAction(_ context.Context, obj dbgobject.Object) ([]dbgobject.Action, error) {
	if obj.IsNull() {
		return nil, nil
	}
	return []dbgobject.Action{{
		Description: "Show memory at " + obj.Ptr(),
		URL:         "memory:" + obj.Ptr(),
	}}, nil
}
