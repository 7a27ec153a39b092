package dbgobject

import (
	"context"
	"fmt"
	"sort"

	"github.com/fyrsmithlabs/dbgnav/internal/async"
	"github.com/fyrsmithlabs/dbgnav/internal/typeext"
	"go.uber.org/zap"
)

// Action is something a user can do with an object: open URL when set,
// otherwise call Run.
type Action struct {
	Name        string
	Description string
	URL         string
	Run         func(ctx context.Context) error
}

// IsLink reports whether the action is a link rather than a callback.
func (a Action) IsLink() bool { return a.URL != "" }

// ActionProvider computes the actions a registration offers for obj. It may
// return none.
type ActionProvider func(ctx context.Context, obj Object) ([]Action, error)

// AddAction attaches the action provider named name to types matched by m
// in module.
func (s *Session) AddAction(module string, m typeext.Matcher, name string, fn ActionProvider) error {
	if err := validExtensionName(name); err != nil {
		return err
	}
	if fn == nil {
		return fmt.Errorf("%w: action %q has no provider", ErrInvalidName, name)
	}
	m, err := NormalizeMatcher(m)
	if err != nil {
		return err
	}
	s.actions.Register(module, m, name, fn)
	return nil
}

// RemoveAction undoes AddAction.
func (s *Session) RemoveAction(module string, m typeext.Matcher, name string) bool {
	m, err := NormalizeMatcher(m)
	if err != nil {
		return false
	}
	_, ok := s.actions.Unregister(module, m, name)
	return ok
}

// Actions collects the actions registered on the handle's type chain. When
// several levels register the same name only the most derived one runs.
// Failing providers are dropped. Groups are ordered by registration name.
func (o Object) Actions(ctx context.Context) ([]Action, error) {
	matches, err := o.sess.actions.ResolveAll(ctx, o)
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(matches))
	unique := matches[:0:0]
	for _, m := range matches {
		if seen[m.Name] {
			continue
		}
		seen[m.Name] = true
		unique = append(unique, m)
	}
	sort.SliceStable(unique, func(i, j int) bool { return unique[i].Name < unique[j].Name })

	fns := make([]func(context.Context) ([]Action, error), len(unique))
	for i, m := range unique {
		fns[i] = func(ctx context.Context) ([]Action, error) {
			return m.Extension(ctx, m.Object)
		}
	}

	var out []Action
	for i, r := range async.Settle(ctx, fns...) {
		if r.Err != nil {
			o.sess.logger.Debug("action provider failed",
				zap.String("name", unique[i].Name), zap.Stringer("object", o), zap.Error(r.Err))
			continue
		}
		for _, a := range r.Value {
			if a.URL == "" && a.Run == nil {
				continue
			}
			if a.Name == "" {
				a.Name = unique[i].Name
			}
			out = append(out, a)
		}
	}
	return out, nil
}
