package dbgobject

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"go.uber.org/zap"
)

// FieldGetter computes an extended field of obj.
type FieldGetter func(ctx context.Context, obj Object) (Object, error)

// ExtendedField is a computed field attached to a type and reachable
// through Object.F alongside real fields.
type ExtendedField struct {
	Name       string
	ResultType TypeResolver
	Getter     FieldGetter
}

// AddExtendedField attaches a computed field named name to types matched by
// m in module. Registering the same name again replaces the getter.
func (s *Session) AddExtendedField(module string, m typeext.Matcher, name string, resultType TypeResolver, getter FieldGetter) error {
	if name == "" {
		return fmt.Errorf("%w: empty extended field name", ErrInvalidName)
	}
	if err := validExtensionName(name); err != nil {
		return err
	}
	if getter == nil {
		return fmt.Errorf("%w: extended field %q has no getter", ErrInvalidName, name)
	}
	m, err := NormalizeMatcher(m)
	if err != nil {
		return err
	}
	s.fields.Register(module, m, name, ExtendedField{Name: name, ResultType: resultType, Getter: getter})
	s.logger.Debug("extended field registered",
		zap.String("module", module), zap.Stringer("type", m), zap.String("name", name))
	return nil
}

// RemoveExtendedField undoes AddExtendedField.
func (s *Session) RemoveExtendedField(module string, m typeext.Matcher, name string) bool {
	m, err := NormalizeMatcher(m)
	if err != nil {
		return false
	}
	_, ok := s.fields.Unregister(module, m, name)
	return ok
}

// RenameExtendedField renames a registered extended field in place.
func (s *Session) RenameExtendedField(module string, m typeext.Matcher, oldName, newName string) error {
	if err := validExtensionName(newName); err != nil {
		return err
	}
	m, err := NormalizeMatcher(m)
	if err != nil {
		return err
	}
	return s.fields.Rename(module, m, oldName, newName)
}

// OnExtendedFieldChange calls fn whenever an extended field on
// module!typeName is added, replaced, removed or renamed.
func (s *Session) OnExtendedFieldChange(module, typeName string, fn func(typeext.Event[ExtendedField])) {
	if t, err := parseTypeName(typeName); err == nil {
		typeName = t.name
	}
	s.fields.AddListener(module, typeName, fn)
}

// F follows a dotted path where each step is either an extended field
// registered on the current object's type chain or a real field.
func (o Object) F(ctx context.Context, path string) (Object, error) {
	cur := o
	for _, step := range strings.Split(path, ".") {
		next, err := cur.extendedStep(ctx, step)
		if err != nil {
			return Object{}, err
		}
		cur = next
	}
	return cur, nil
}

func (o Object) extendedStep(ctx context.Context, name string) (Object, error) {
	m, ok, err := o.sess.fields.ResolveBest(ctx, o, name)
	if err != nil {
		return Object{}, err
	}
	if !ok {
		return o.Field(ctx, name)
	}

	ext := m.Extension
	result, err := ext.Getter(ctx, m.Object)
	if err != nil {
		return Object{}, &ExtensionError{Kind: "extended field", Name: name, Type: o.typ, Err: err}
	}
	if ext.ResultType == nil {
		return result, nil
	}
	want := ext.ResultType(m.Object.typ)
	is, err := result.IsType(ctx, want)
	if err != nil {
		return Object{}, err
	}
	if !is {
		return Object{}, &ExtensionError{
			Kind: "extended field",
			Name: name,
			Type: o.typ,
			Err:  fmt.Errorf("%w: result is %s, expected %s", ErrTypeMismatch, result.typ, want),
		}
	}
	return result, nil
}
