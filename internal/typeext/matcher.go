package typeext

import "fmt"

// Matcher selects the types a registration applies to: either one exact
// type name or every name accepted by a predicate. Predicates carry an id
// because functions cannot be compared; two predicate matchers with the
// same id are the same matcher.
type Matcher struct {
	name string
	id   string
	pred func(typeName string) bool
}

// Exact matches the single type name.
func Exact(name string) Matcher {
	return Matcher{name: name}
}

// Predicate matches every type name fn accepts.
func Predicate(id string, fn func(typeName string) bool) Matcher {
	return Matcher{id: id, pred: fn}
}

// IsPredicate reports whether m was built with Predicate.
func (m Matcher) IsPredicate() bool {
	return m.pred != nil
}

// Name returns the exact type name, or "" for predicates.
func (m Matcher) Name() string {
	return m.name
}

// Matches reports whether typeName is selected by m.
func (m Matcher) Matches(typeName string) bool {
	if m.pred != nil {
		return m.pred(typeName)
	}
	return m.name == typeName
}

func (m Matcher) same(o Matcher) bool {
	if m.IsPredicate() != o.IsPredicate() {
		return false
	}
	if m.IsPredicate() {
		return m.id == o.id
	}
	return m.name == o.name
}

func (m Matcher) String() string {
	if m.IsPredicate() {
		return fmt.Sprintf("predicate(%s)", m.id)
	}
	return m.name
}
