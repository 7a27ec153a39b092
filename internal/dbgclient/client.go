// Package dbgclient is the boundary to the remote metadata and memory
// service of a debuggee.
//
// Every operation is read-only and idempotent. Type metadata never changes
// while a debuggee is loaded, so CachingClient memoizes it for the life of
// the process; memory reads always go to the service.
package dbgclient

import (
	"context"
)

// FieldInfo locates a field inside its containing type.
type FieldInfo struct {
	Module    string `json:"module"`
	Type      string `json:"type"`
	Offset    int64  `json:"offset"`
	Size      int64  `json:"size"`
	BitCount  int    `json:"bitcount,omitempty"`
	BitOffset int    `json:"bitoffset,omitempty"`
}

// TypeField is one entry of a type's field listing.
type TypeField struct {
	Name string `json:"name"`
	FieldInfo
}

// BaseType is a base class and its offset inside the derived type.
type BaseType struct {
	Module string `json:"module"`
	Type   string `json:"type"`
	Offset int64  `json:"offset"`
}

// SymbolInfo names the symbol nearest below an address.
type SymbolInfo struct {
	Module       string `json:"module"`
	Name         string `json:"name"`
	Displacement int64  `json:"displacement"`
}

// GlobalInfo is the location and type of a global variable.
type GlobalInfo struct {
	Module  string `json:"module"`
	Type    string `json:"type"`
	Pointer uint64 `json:"pointer"`
}

// Client is the read-only metadata and memory service. Type arguments are
// names as the service understands them (for example "Node*" or "int").
// An empty type for ConstantName and ConstantValue means a module-level
// constant.
//
// Numbers read from memory are returned as their raw little-endian bits
// zero-extended to 64 bits; interpretation is up to the caller.
type Client interface {
	PointerSize(ctx context.Context) (int, error)
	TypeSize(ctx context.Context, module, typ string) (int64, error)
	FieldOffset(ctx context.Context, module, typ, field string) (FieldInfo, error)
	TypeFields(ctx context.Context, module, typ string, includeBaseTypes bool) ([]TypeField, error)
	BaseTypes(ctx context.Context, module, typ string) ([]BaseType, error)
	IsEnum(ctx context.Context, module, typ string) (bool, error)
	ConstantName(ctx context.Context, module, typ string, value uint64) ([]string, error)
	ConstantValue(ctx context.Context, module, typ, name string) (uint64, error)
	SymbolName(ctx context.Context, addr uint64) (SymbolInfo, error)
	GlobalSymbol(ctx context.Context, module, symbol string) (GlobalInfo, error)
	ReadNumber(ctx context.Context, addr uint64, width int) (uint64, error)
	ReadArray(ctx context.Context, addr uint64, width int, count int) ([]uint64, error)
}

// MaxArrayCount is the largest number of values a single bulk read may
// request.
const MaxArrayCount = 1_000_000

// widthNames maps a read width to its wire name.
var widthNames = map[int]string{
	1: "byte",
	2: "ushort",
	4: "uint",
	8: "ulong",
}

// WidthName returns the wire name for a read width, or false if the width
// is not 1, 2, 4 or 8.
func WidthName(width int) (string, bool) {
	name, ok := widthNames[width]
	return name, ok
}

// ParseWidth is the inverse of WidthName.
func ParseWidth(name string) (int, bool) {
	for w, n := range widthNames {
		if n == name {
			return w, true
		}
	}
	return 0, false
}
