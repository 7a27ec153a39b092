package dbgobject

import "fmt"

// Pointer is an address in the debuggee.
type Pointer uint64

// IsNull reports whether p is zero.
func (p Pointer) IsNull() bool { return p == 0 }

// Add offsets p by delta bytes, wrapping like the debuggee would.
func (p Pointer) Add(delta int64) Pointer {
	return Pointer(uint64(p) + uint64(delta))
}

func (p Pointer) String() string {
	if p == 0 {
		return "NULL"
	}
	return fmt.Sprintf("0x%x", uint64(p))
}
