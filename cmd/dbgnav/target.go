package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
)

// target is a parsed object reference: module!symbol, or
// module!Type@address for a typed address.
type target struct {
	module  string
	name    string
	addr    dbgobject.Pointer
	hasAddr bool
}

func parseTarget(s string) (target, error) {
	module, rest, ok := strings.Cut(strings.TrimSpace(s), "!")
	if !ok || module == "" || rest == "" {
		return target{}, fmt.Errorf("target %q must be module!symbol or module!Type@address", s)
	}

	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return target{module: module, name: rest}, nil
	}

	name, raw := strings.TrimSpace(rest[:at]), strings.TrimSpace(rest[at+1:])
	if name == "" {
		return target{}, fmt.Errorf("target %q has no type before @", s)
	}
	addr, err := strconv.ParseUint(raw, 0, 64)
	if err != nil {
		return target{}, fmt.Errorf("target %q has a bad address: %w", s, err)
	}
	return target{module: module, name: name, addr: dbgobject.Pointer(addr), hasAddr: true}, nil
}

// resolve turns a target string into a handle, attaching the CLI's
// built-in extensions to the target's module.
func (s *session) resolve(ctx context.Context, raw string) (dbgobject.Object, error) {
	t, err := parseTarget(raw)
	if err != nil {
		return dbgobject.Object{}, err
	}
	if err := registerBuiltins(s.Session, t.module); err != nil {
		return dbgobject.Object{}, err
	}
	if t.hasAddr {
		return s.Create(t.module, t.name, t.addr)
	}
	return s.Global(ctx, t.module, t.name)
}
