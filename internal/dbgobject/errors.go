package dbgobject

import (
	"errors"
	"fmt"
)

var (
	// ErrNullDereference indicates field, element or value access through
	// a zero address.
	ErrNullDereference = errors.New("null dereference")

	// ErrTypeMismatch indicates an operation that does not apply to the
	// handle's type, such as a field lookup on a pointer or an unknown
	// field.
	ErrTypeMismatch = errors.New("type mismatch")

	// ErrUnknownArrayShape indicates an array request without a count that
	// neither the type nor an array extension can supply.
	ErrUnknownArrayShape = errors.New("unknown array shape")

	// ErrUnsupportedSize indicates a value read whose width is not 1, 2, 4
	// or 8 bytes.
	ErrUnsupportedSize = errors.New("unsupported value size")

	// ErrExtensionFailed is wrapped by every ExtensionError.
	ErrExtensionFailed = errors.New("extension failed")

	// ErrMalformedType indicates a type name that cannot be parsed.
	ErrMalformedType = errors.New("malformed type name")

	// ErrNoConstant indicates a value with no matching named constant.
	ErrNoConstant = errors.New("no matching constant")

	// ErrInvalidName indicates an extension name that cannot be registered.
	ErrInvalidName = errors.New("invalid extension name")
)

// ExtensionError reports a failing extension.
type ExtensionError struct {
	Kind string
	Name string
	Type Type
	Err  error
}

func (e *ExtensionError) Error() string {
	return fmt.Sprintf("%s %q on %s: %v", e.Kind, e.Name, e.Type, e.Err)
}

func (e *ExtensionError) Unwrap() []error {
	return []error{ErrExtensionFailed, e.Err}
}
