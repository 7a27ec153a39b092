package dbgobject

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
)

var (
	constQualifier = regexp.MustCompile(`\bconst\b`)
	spaceRun       = regexp.MustCompile(`\s+`)
	spaceBeforePtr = regexp.MustCompile(`\s+\*`)
)

var scalarTypes = map[string]bool{
	"bool": true, "char": true, "signed char": true, "unsigned char": true,
	"wchar_t": true, "char16_t": true, "char32_t": true,
	"short": true, "unsigned short": true, "int": true, "unsigned int": true,
	"unsigned": true, "signed": true, "long": true, "unsigned long": true,
	"long long": true, "unsigned long long": true,
	"__int64": true, "unsigned __int64": true,
	"int8_t": true, "uint8_t": true, "int16_t": true, "uint16_t": true,
	"int32_t": true, "uint32_t": true, "int64_t": true, "uint64_t": true,
	"float": true, "double": true,
}

// Type describes a remote type: its module, its name including any
// pointer decoration, and an optional inline array length.
type Type struct {
	module   string
	name     string
	isArray  bool
	arrayLen int
}

// ParseType parses name in module. A qualified "module!name" overrides
// module. const qualifiers and redundant whitespace are removed, and
// trailing [N] suffixes become an inline array whose length is the product
// of all dimensions.
func ParseType(module, name string) (Type, error) {
	if i := strings.Index(name, "!"); i >= 0 {
		module, name = name[:i], name[i+1:]
	}
	module = strings.TrimSpace(module)
	if module == "" {
		return Type{}, fmt.Errorf("%w: type %q has no module", ErrMalformedType, name)
	}
	t, err := parseTypeName(name)
	if err != nil {
		return Type{}, err
	}
	t.module = module
	return t, nil
}

func parseTypeName(name string) (Type, error) {
	name = constQualifier.ReplaceAllString(name, "")
	name = spaceRun.ReplaceAllString(strings.TrimSpace(name), " ")
	name = spaceBeforePtr.ReplaceAllString(name, "*")

	var t Type
	for strings.HasSuffix(name, "]") {
		open := strings.LastIndex(name, "[")
		if open <= 0 {
			return Type{}, fmt.Errorf("%w: unbalanced brackets in %q", ErrMalformedType, name)
		}
		n, err := strconv.Atoi(strings.TrimSpace(name[open+1 : len(name)-1]))
		if err != nil || n < 0 {
			return Type{}, fmt.Errorf("%w: bad array length in %q", ErrMalformedType, name)
		}
		if t.isArray {
			t.arrayLen *= n
		} else {
			t.isArray = true
			t.arrayLen = n
		}
		name = strings.TrimSpace(name[:open])
	}

	if name == "" {
		return Type{}, fmt.Errorf("%w: empty type name", ErrMalformedType)
	}
	if strings.Count(name, "<") != strings.Count(name, ">") {
		return Type{}, fmt.Errorf("%w: unbalanced template brackets in %q", ErrMalformedType, name)
	}
	if strings.ContainsAny(name, "[]") {
		return Type{}, fmt.Errorf("%w: misplaced brackets in %q", ErrMalformedType, name)
	}
	t.name = name
	return t, nil
}

// NormalizeMatcher spells the name of an exact matcher the way handle type
// names are spelled, so that Exact("const Node *") selects Node* handles.
// Array suffixes are dropped. Predicates are returned unchanged.
func NormalizeMatcher(m typeext.Matcher) (typeext.Matcher, error) {
	if m.IsPredicate() {
		return m, nil
	}
	t, err := parseTypeName(m.Name())
	if err != nil {
		return m, err
	}
	return typeext.Exact(t.name), nil
}

// MustParseType is ParseType that panics on malformed input.
func MustParseType(module, name string) Type {
	t, err := ParseType(module, name)
	if err != nil {
		panic(err)
	}
	return t
}

// Module returns the module the type belongs to.
func (t Type) Module() string { return t.module }

// Name returns the type name without any array suffix.
func (t Type) Name() string { return t.name }

// FullName returns the type name including any array suffix.
func (t Type) FullName() string {
	if t.isArray {
		return fmt.Sprintf("%s[%d]", t.name, t.arrayLen)
	}
	return t.name
}

// QualifiedName returns module!FullName.
func (t Type) QualifiedName() string {
	return t.module + "!" + t.FullName()
}

func (t Type) String() string { return t.QualifiedName() }

// IsArray reports whether the type is an inline array.
func (t Type) IsArray() bool { return t.isArray }

// ArrayLength returns the number of inline array elements.
func (t Type) ArrayLength() int { return t.arrayLen }

// IsPointer reports whether the element type is pointer-decorated.
func (t Type) IsPointer() bool { return strings.HasSuffix(t.name, "*") }

// NonArray returns the element type of an inline array, or t itself.
func (t Type) NonArray() Type {
	return Type{module: t.module, name: t.name}
}

// Dereferenced removes one level of pointer decoration.
func (t Type) Dereferenced() Type {
	return Type{module: t.module, name: strings.TrimSpace(strings.TrimSuffix(t.name, "*"))}
}

// PointerTo adds one level of pointer decoration.
func (t Type) PointerTo() Type {
	return Type{module: t.module, name: t.name + "*"}
}

// IsScalar reports whether the element type is a built-in number type.
func (t Type) IsScalar() bool {
	return !t.IsPointer() && scalarTypes[t.name]
}

// IsFloat reports whether the element type is float or double.
func (t Type) IsFloat() bool {
	return t.name == "float" || t.name == "double"
}

// IsBool reports whether the element type is bool.
func (t Type) IsBool() bool { return t.name == "bool" }

// IsVoid reports whether the element type is void.
func (t Type) IsVoid() bool { return t.name == "void" }

// IsUnsigned reports whether values of the type are read without sign
// extension.
func (t Type) IsUnsigned() bool {
	if t.IsPointer() || t.IsBool() {
		return true
	}
	switch t.name {
	case "wchar_t", "char16_t", "char32_t", "unsigned":
		return true
	}
	return strings.HasPrefix(t.name, "unsigned ") || strings.HasPrefix(t.name, "uint")
}

// IsCharacter reports whether the type holds string characters.
func (t Type) IsCharacter() bool {
	switch t.name {
	case "char", "signed char", "unsigned char", "wchar_t", "char16_t", "char32_t":
		return true
	}
	return false
}

// TemplateParameters returns the top-level template arguments of the type,
// e.g. ["int", "Foo<Bar>"] for "Map<int, Foo<Bar>>".
func (t Type) TemplateParameters() []string {
	open := strings.Index(t.name, "<")
	if open < 0 {
		return nil
	}
	var params []string
	depth := 0
	start := open + 1
	for i := open; i < len(t.name); i++ {
		switch t.name[i] {
		case '<':
			depth++
		case '>':
			depth--
			if depth == 0 {
				if p := strings.TrimSpace(t.name[start:i]); p != "" {
					params = append(params, p)
				}
				return params
			}
		case ',':
			if depth == 1 {
				params = append(params, strings.TrimSpace(t.name[start:i]))
				start = i + 1
			}
		}
	}
	return params
}

// SplitNamespace separates the namespace prefix (including the trailing
// "::") from the unqualified name. Template arguments are not searched.
func (t Type) SplitNamespace() (namespace, base string) {
	depth := 0
	split := -1
	for i := 0; i < len(t.name); i++ {
		switch t.name[i] {
		case '<':
			depth++
		case '>':
			depth--
		case ':':
			if depth == 0 && i+1 < len(t.name) && t.name[i+1] == ':' {
				split = i + 2
				i++
			}
		}
	}
	if split < 0 {
		return "", t.name
	}
	return t.name[:split], t.name[split:]
}

// Equals compares module (case-insensitively), name and array shape.
func (t Type) Equals(o Type) bool {
	return strings.EqualFold(t.module, o.module) &&
		t.name == o.name &&
		t.isArray == o.isArray &&
		t.arrayLen == o.arrayLen
}

// comparisonKey identifies the element type for map keys.
func (t Type) comparisonKey() string {
	return strings.ToLower(t.module) + "!" + t.name
}
