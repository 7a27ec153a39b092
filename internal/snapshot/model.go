// Package snapshot is an in-memory debuggee: a set of type layouts, global
// symbols and a memory image, served through the dbgclient.Client
// interface.
//
// Snapshots are immutable once built. A Store swaps whole snapshots when
// the backing file changes, which is the snapshot equivalent of the
// debuggee stopping at a new break.
package snapshot

import (
	"context"
	"encoding/binary"
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
)

// Spec is the declarative description a Snapshot is built from.
type Spec struct {
	PointerSize int        `koanf:"pointer_size"`
	Types       []TypeDef  `koanf:"types"`
	Memory      []Region   `koanf:"memory"`
	Symbols     []Symbol   `koanf:"symbols"`
	Constants   []Constant `koanf:"constants"`
}

// TypeDef describes one user-defined type.
type TypeDef struct {
	Module    string     `koanf:"module"`
	Name      string     `koanf:"name"`
	Size      int64      `koanf:"size"`
	Enum      bool       `koanf:"enum"`
	Fields    []FieldDef `koanf:"fields"`
	Bases     []BaseDef  `koanf:"bases"`
	Constants []Constant `koanf:"constants"`
}

// FieldDef is a field of a TypeDef. Size may be left zero to derive it from
// the field type.
type FieldDef struct {
	Name      string `koanf:"name"`
	Type      string `koanf:"type"`
	Offset    int64  `koanf:"offset"`
	Size      int64  `koanf:"size"`
	BitCount  int    `koanf:"bitcount"`
	BitOffset int    `koanf:"bitoffset"`
}

// BaseDef is a direct base class. Module defaults to the derived type's.
type BaseDef struct {
	Module string `koanf:"module"`
	Type   string `koanf:"type"`
	Offset int64  `koanf:"offset"`
}

// Constant is a named value of an enum or module.
type Constant struct {
	Module string `koanf:"module"`
	Name   string `koanf:"name"`
	Value  uint64 `koanf:"value"`
}

// Region is a span of readable memory. Values are stored little-endian at
// Width bytes each; Text, when set, is appended as bytes with a trailing NUL.
type Region struct {
	Address uint64   `koanf:"address"`
	Width   int      `koanf:"width"`
	Values  []uint64 `koanf:"values"`
	Text    string   `koanf:"text"`
}

// Symbol is a global variable or other named address, such as a vtable.
type Symbol struct {
	Module  string `koanf:"module"`
	Name    string `koanf:"name"`
	Type    string `koanf:"type"`
	Address uint64 `koanf:"address"`
}

// Words is a convenience for building a Region of equally sized values.
func Words(addr uint64, width int, values ...uint64) Region {
	return Region{Address: addr, Width: width, Values: values}
}

var scalarSizes = map[string]int64{
	"bool":               1,
	"char":               1,
	"signed char":        1,
	"unsigned char":      1,
	"int8_t":             1,
	"uint8_t":            1,
	"wchar_t":            2,
	"char16_t":           2,
	"short":              2,
	"unsigned short":     2,
	"int16_t":            2,
	"uint16_t":           2,
	"int":                4,
	"unsigned int":       4,
	"long":               4,
	"unsigned long":      4,
	"int32_t":            4,
	"uint32_t":           4,
	"float":              4,
	"char32_t":           4,
	"__int64":            8,
	"unsigned __int64":   8,
	"long long":          8,
	"unsigned long long": 8,
	"int64_t":            8,
	"uint64_t":           8,
	"double":             8,
}

type memRegion struct {
	base uint64
	data []byte
}

// Snapshot is an immutable debuggee image.
type Snapshot struct {
	pointerSize int
	types       map[string]*TypeDef
	regions     []memRegion
	globals     map[string]Symbol
	symbols     []Symbol
	constants   map[string][]Constant
}

var _ dbgclient.Client = (*Snapshot)(nil)

func typeKey(module, name string) string {
	return strings.ToLower(module) + "!" + name
}

// New validates spec and builds a Snapshot from it.
func New(spec Spec) (*Snapshot, error) {
	s := &Snapshot{
		pointerSize: spec.PointerSize,
		types:       make(map[string]*TypeDef, len(spec.Types)),
		globals:     make(map[string]Symbol, len(spec.Symbols)),
		constants:   make(map[string][]Constant),
	}
	if s.pointerSize == 0 {
		s.pointerSize = 8
	}
	if s.pointerSize != 4 && s.pointerSize != 8 {
		return nil, fmt.Errorf("pointer size must be 4 or 8, got %d", s.pointerSize)
	}

	for i := range spec.Types {
		def := spec.Types[i]
		if def.Module == "" || def.Name == "" {
			return nil, fmt.Errorf("type %d: module and name are required", i)
		}
		key := typeKey(def.Module, def.Name)
		if _, dup := s.types[key]; dup {
			return nil, fmt.Errorf("type %s!%s defined twice", def.Module, def.Name)
		}
		def.Bases = slices.Clone(def.Bases)
		for j := range def.Bases {
			if def.Bases[j].Module == "" {
				def.Bases[j].Module = def.Module
			}
		}
		s.types[key] = &def
	}

	for _, r := range spec.Memory {
		data, err := encodeRegion(r)
		if err != nil {
			return nil, fmt.Errorf("region at 0x%x: %w", r.Address, err)
		}
		if len(data) == 0 {
			continue
		}
		s.regions = append(s.regions, memRegion{base: r.Address, data: data})
	}
	sort.Slice(s.regions, func(i, j int) bool { return s.regions[i].base < s.regions[j].base })
	for i := 1; i < len(s.regions); i++ {
		prev := s.regions[i-1]
		if prev.base+uint64(len(prev.data)) > s.regions[i].base {
			return nil, fmt.Errorf("regions at 0x%x and 0x%x overlap", prev.base, s.regions[i].base)
		}
	}

	for _, sym := range spec.Symbols {
		if sym.Module == "" || sym.Name == "" {
			return nil, fmt.Errorf("symbol at 0x%x: module and name are required", sym.Address)
		}
		s.globals[typeKey(sym.Module, sym.Name)] = sym
		s.symbols = append(s.symbols, sym)
	}
	sort.SliceStable(s.symbols, func(i, j int) bool { return s.symbols[i].Address < s.symbols[j].Address })

	for _, c := range spec.Constants {
		key := strings.ToLower(c.Module)
		s.constants[key] = append(s.constants[key], c)
	}
	return s, nil
}

func encodeRegion(r Region) ([]byte, error) {
	var data []byte
	if len(r.Values) > 0 {
		width := r.Width
		if width == 0 {
			width = 8
		}
		if _, ok := dbgclient.WidthName(width); !ok {
			return nil, fmt.Errorf("width %d: %w", width, dbgclient.ErrInvalidWidth)
		}
		data = make([]byte, 0, width*len(r.Values))
		var buf [8]byte
		for _, v := range r.Values {
			binary.LittleEndian.PutUint64(buf[:], v)
			data = append(data, buf[:width]...)
		}
	}
	if r.Text != "" {
		data = append(data, r.Text...)
		data = append(data, 0)
	}
	return data, nil
}

func (s *Snapshot) lookupType(op, module, name string) (*TypeDef, error) {
	def, ok := s.types[typeKey(module, name)]
	if !ok {
		return nil, dbgclient.Errorf(op, "unknown type %s!%s", module, name)
	}
	return def, nil
}

// sizeOf resolves the size of a type name as it appears in field
// declarations.
func (s *Snapshot) sizeOf(op, module, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if strings.HasSuffix(name, "*") {
		return int64(s.pointerSize), nil
	}
	if open := strings.LastIndex(name, "["); open > 0 && strings.HasSuffix(name, "]") {
		n, err := strconv.ParseInt(name[open+1:len(name)-1], 10, 64)
		if err != nil {
			return 0, dbgclient.Errorf(op, "bad array type %s", name)
		}
		elem, err := s.sizeOf(op, module, name[:open])
		if err != nil {
			return 0, err
		}
		return elem * n, nil
	}
	if size, ok := scalarSizes[name]; ok {
		return size, nil
	}
	def, err := s.lookupType(op, module, name)
	if err != nil {
		return 0, err
	}
	if def.Size == 0 && def.Enum {
		return 4, nil
	}
	return def.Size, nil
}

func (s *Snapshot) fieldInfo(op string, def *TypeDef, f FieldDef, delta int64) (dbgclient.FieldInfo, error) {
	size := f.Size
	if size == 0 {
		var err error
		if size, err = s.sizeOf(op, def.Module, f.Type); err != nil {
			return dbgclient.FieldInfo{}, err
		}
	}
	return dbgclient.FieldInfo{
		Module:    def.Module,
		Type:      f.Type,
		Offset:    f.Offset + delta,
		Size:      size,
		BitCount:  f.BitCount,
		BitOffset: f.BitOffset,
	}, nil
}

// PointerSize implements dbgclient.Client.
func (s *Snapshot) PointerSize(context.Context) (int, error) {
	return s.pointerSize, nil
}

// TypeSize implements dbgclient.Client.
func (s *Snapshot) TypeSize(_ context.Context, module, typ string) (int64, error) {
	return s.sizeOf(dbgclient.OpTypeSize, module, typ)
}

// FieldOffset implements dbgclient.Client. Fields of base classes are
// found with their offset adjusted.
func (s *Snapshot) FieldOffset(_ context.Context, module, typ, field string) (dbgclient.FieldInfo, error) {
	def, err := s.lookupType(dbgclient.OpFieldOffset, module, typ)
	if err != nil {
		return dbgclient.FieldInfo{}, err
	}
	info, found, err := s.findField(def, field, 0, 0)
	if err != nil {
		return dbgclient.FieldInfo{}, err
	}
	if !found {
		return dbgclient.FieldInfo{}, dbgclient.Errorf(dbgclient.OpFieldOffset, "unable to find field %s on type %s!%s", field, module, typ)
	}
	return info, nil
}

func (s *Snapshot) findField(def *TypeDef, field string, delta int64, depth int) (dbgclient.FieldInfo, bool, error) {
	if depth > 32 {
		return dbgclient.FieldInfo{}, false, dbgclient.Errorf(dbgclient.OpFieldOffset, "base class chain of %s too deep", def.Name)
	}
	for _, f := range def.Fields {
		if f.Name == field {
			info, err := s.fieldInfo(dbgclient.OpFieldOffset, def, f, delta)
			return info, err == nil, err
		}
	}
	for _, b := range def.Bases {
		base, err := s.lookupType(dbgclient.OpFieldOffset, b.Module, b.Type)
		if err != nil {
			return dbgclient.FieldInfo{}, false, err
		}
		info, found, err := s.findField(base, field, delta+b.Offset, depth+1)
		if err != nil || found {
			return info, found, err
		}
	}
	return dbgclient.FieldInfo{}, false, nil
}

// TypeFields implements dbgclient.Client.
func (s *Snapshot) TypeFields(_ context.Context, module, typ string, includeBaseTypes bool) ([]dbgclient.TypeField, error) {
	def, err := s.lookupType(dbgclient.OpTypeFields, module, typ)
	if err != nil {
		return nil, err
	}
	var out []dbgclient.TypeField
	err = s.collectFields(def, 0, includeBaseTypes, 0, &out)
	return out, err
}

func (s *Snapshot) collectFields(def *TypeDef, delta int64, includeBases bool, depth int, out *[]dbgclient.TypeField) error {
	if depth > 32 {
		return dbgclient.Errorf(dbgclient.OpTypeFields, "base class chain of %s too deep", def.Name)
	}
	for _, f := range def.Fields {
		info, err := s.fieldInfo(dbgclient.OpTypeFields, def, f, delta)
		if err != nil {
			return err
		}
		*out = append(*out, dbgclient.TypeField{Name: f.Name, FieldInfo: info})
	}
	if !includeBases {
		return nil
	}
	for _, b := range def.Bases {
		base, err := s.lookupType(dbgclient.OpTypeFields, b.Module, b.Type)
		if err != nil {
			return err
		}
		if err := s.collectFields(base, delta+b.Offset, true, depth+1, out); err != nil {
			return err
		}
	}
	return nil
}

// BaseTypes implements dbgclient.Client. The result lists every ancestor,
// direct bases before their own bases, with offsets relative to typ.
func (s *Snapshot) BaseTypes(_ context.Context, module, typ string) ([]dbgclient.BaseType, error) {
	def, err := s.lookupType(dbgclient.OpBaseTypes, module, typ)
	if err != nil {
		return nil, err
	}

	type pending struct {
		def   *TypeDef
		delta int64
	}
	out := []dbgclient.BaseType{}
	queue := []pending{{def: def}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, b := range cur.def.Bases {
			base, err := s.lookupType(dbgclient.OpBaseTypes, b.Module, b.Type)
			if err != nil {
				return nil, err
			}
			if len(out) > 256 {
				return nil, dbgclient.Errorf(dbgclient.OpBaseTypes, "base class graph of %s too large", typ)
			}
			out = append(out, dbgclient.BaseType{Module: b.Module, Type: b.Type, Offset: cur.delta + b.Offset})
			queue = append(queue, pending{def: base, delta: cur.delta + b.Offset})
		}
	}
	return out, nil
}

// IsEnum implements dbgclient.Client.
func (s *Snapshot) IsEnum(_ context.Context, module, typ string) (bool, error) {
	if _, ok := scalarSizes[typ]; ok || strings.HasSuffix(typ, "*") {
		return false, nil
	}
	def, err := s.lookupType(dbgclient.OpIsEnum, module, typ)
	if err != nil {
		return false, err
	}
	return def.Enum, nil
}

func (s *Snapshot) constantsOf(op, module, typ string) ([]Constant, error) {
	if typ == "" {
		return s.constants[strings.ToLower(module)], nil
	}
	def, err := s.lookupType(op, module, typ)
	if err != nil {
		return nil, err
	}
	return def.Constants, nil
}

// ConstantName implements dbgclient.Client.
func (s *Snapshot) ConstantName(_ context.Context, module, typ string, value uint64) ([]string, error) {
	consts, err := s.constantsOf(dbgclient.OpConstantName, module, typ)
	if err != nil {
		return nil, err
	}
	names := []string{}
	for _, c := range consts {
		if c.Value == value {
			names = append(names, c.Name)
		}
	}
	return names, nil
}

// ConstantValue implements dbgclient.Client.
func (s *Snapshot) ConstantValue(_ context.Context, module, typ, name string) (uint64, error) {
	consts, err := s.constantsOf(dbgclient.OpConstantValue, module, typ)
	if err != nil {
		return 0, err
	}
	for _, c := range consts {
		if c.Name == name {
			return c.Value, nil
		}
	}
	return 0, dbgclient.Errorf(dbgclient.OpConstantValue, "unknown constant %s", name)
}

// SymbolName implements dbgclient.Client.
func (s *Snapshot) SymbolName(_ context.Context, addr uint64) (dbgclient.SymbolInfo, error) {
	i := sort.Search(len(s.symbols), func(i int) bool { return s.symbols[i].Address > addr })
	if i == 0 {
		return dbgclient.SymbolInfo{}, dbgclient.Errorf(dbgclient.OpSymbolName, "no symbol at 0x%x", addr)
	}
	sym := s.symbols[i-1]
	return dbgclient.SymbolInfo{
		Module:       sym.Module,
		Name:         sym.Name,
		Displacement: int64(addr - sym.Address),
	}, nil
}

// GlobalSymbol implements dbgclient.Client.
func (s *Snapshot) GlobalSymbol(_ context.Context, module, symbol string) (dbgclient.GlobalInfo, error) {
	sym, ok := s.globals[typeKey(module, symbol)]
	if !ok {
		return dbgclient.GlobalInfo{}, dbgclient.Errorf(dbgclient.OpGlobalSymbol, "unknown symbol %s!%s", module, symbol)
	}
	return dbgclient.GlobalInfo{Module: sym.Module, Type: sym.Type, Pointer: sym.Address}, nil
}

// readBytes copies n bytes at addr, spanning adjacent regions.
func (s *Snapshot) readBytes(op string, addr uint64, n int) ([]byte, error) {
	out := make([]byte, 0, n)
	cur := addr
	for len(out) < n {
		i := sort.Search(len(s.regions), func(i int) bool { return s.regions[i].base > cur })
		if i == 0 {
			return nil, dbgclient.Errorf(op, "memory at 0x%x is not readable", cur)
		}
		r := s.regions[i-1]
		end := r.base + uint64(len(r.data))
		if cur >= end {
			return nil, dbgclient.Errorf(op, "memory at 0x%x is not readable", cur)
		}
		take := min(uint64(n-len(out)), end-cur)
		start := cur - r.base
		out = append(out, r.data[start:start+take]...)
		cur += take
	}
	return out, nil
}

func decode(b []byte) uint64 {
	var buf [8]byte
	copy(buf[:], b)
	return binary.LittleEndian.Uint64(buf[:])
}

// ReadNumber implements dbgclient.Client.
func (s *Snapshot) ReadNumber(_ context.Context, addr uint64, width int) (uint64, error) {
	if err := dbgclient.ValidateRead(dbgclient.OpReadNumber, width, 1); err != nil {
		return 0, err
	}
	b, err := s.readBytes(dbgclient.OpReadNumber, addr, width)
	if err != nil {
		return 0, err
	}
	return decode(b), nil
}

// ReadArray implements dbgclient.Client.
func (s *Snapshot) ReadArray(_ context.Context, addr uint64, width int, count int) ([]uint64, error) {
	if err := dbgclient.ValidateRead(dbgclient.OpReadArray, width, count); err != nil {
		return nil, err
	}
	b, err := s.readBytes(dbgclient.OpReadArray, addr, width*count)
	if err != nil {
		return nil, err
	}
	vals := make([]uint64, count)
	for i := range vals {
		vals[i] = decode(b[i*width : (i+1)*width])
	}
	return vals, nil
}

// TypeNames lists every defined type as module!name, sorted.
func (s *Snapshot) TypeNames() []string {
	names := make([]string, 0, len(s.types))
	for _, def := range s.types {
		names = append(names, def.Module+"!"+def.Name)
	}
	slices.Sort(names)
	return names
}
