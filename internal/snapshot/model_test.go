package snapshot

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func loadSample(t *testing.T) *Snapshot {
	t.Helper()
	s, err := LoadFile("testdata/sample.yaml")
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		spec    Spec
		wantErr string
	}{
		{
			name:    "bad pointer size",
			spec:    Spec{PointerSize: 2},
			wantErr: "pointer size must be 4 or 8",
		},
		{
			name:    "type without module",
			spec:    Spec{Types: []TypeDef{{Name: "Point"}}},
			wantErr: "module and name are required",
		},
		{
			name:    "duplicate type",
			spec:    Spec{Types: []TypeDef{{Module: "app", Name: "Point"}, {Module: "APP", Name: "Point"}}},
			wantErr: "defined twice",
		},
		{
			name:    "overlapping regions",
			spec:    Spec{Memory: []Region{Words(0x1000, 8, 1, 2), Words(0x1008, 4, 1)}},
			wantErr: "overlap",
		},
		{
			name:    "bad width",
			spec:    Spec{Memory: []Region{Words(0x1000, 3, 1)}},
			wantErr: "invalid read width",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.spec)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestSnapshot_FieldOffset(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	info, err := s.FieldOffset(ctx, "app", "Point", "y")
	require.NoError(t, err)
	assert.Equal(t, dbgclient.FieldInfo{Module: "app", Type: "int", Offset: 4, Size: 4}, info)

	info, err = s.FieldOffset(ctx, "APP", "Circle", "id")
	require.NoError(t, err)
	assert.Equal(t, int64(8), info.Offset, "fields of base classes are found")

	info, err = s.FieldOffset(ctx, "app", "Widget", "points")
	require.NoError(t, err)
	assert.Equal(t, int64(16), info.Size, "array size is element size times length")

	info, err = s.FieldOffset(ctx, "app", "Widget", "level")
	require.NoError(t, err)
	assert.Equal(t, 3, info.BitCount)
	assert.Equal(t, 1, info.BitOffset)

	_, err = s.FieldOffset(ctx, "app", "Point", "z")
	var rerr *dbgclient.RemoteError
	require.ErrorAs(t, err, &rerr)
	assert.Contains(t, rerr.Payload, "unable to find field z")
	assert.False(t, dbgclient.IsTransport(err))
}

func TestSnapshot_TypeSize(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	for name, want := range map[string]int64{
		"Point":      8,
		"Point*":     8,
		"int":        4,
		"Point[3]":   24,
		"char[2][3]": 6,
		"Color":      4,
	} {
		got, err := s.TypeSize(ctx, "app", name)
		require.NoError(t, err, name)
		assert.Equal(t, want, got, name)
	}

	_, err := s.TypeSize(ctx, "app", "Missing")
	assert.Error(t, err)
}

func TestSnapshot_TypeFields(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	own, err := s.TypeFields(ctx, "app", "Circle", false)
	require.NoError(t, err)
	require.Len(t, own, 1)
	assert.Equal(t, "radius", own[0].Name)

	all, err := s.TypeFields(ctx, "app", "Circle", true)
	require.NoError(t, err)
	names := make([]string, len(all))
	for i, f := range all {
		names[i] = f.Name
	}
	assert.Equal(t, []string{"radius", "__vfptr", "id"}, names)
}

func TestSnapshot_BaseTypes(t *testing.T) {
	s, err := New(Spec{Types: []TypeDef{
		{Module: "app", Name: "A", Size: 8},
		{Module: "app", Name: "B", Size: 16, Bases: []BaseDef{{Type: "A", Offset: 8}}},
		{Module: "app", Name: "C", Size: 32, Bases: []BaseDef{{Type: "B", Offset: 16}}},
	}})
	require.NoError(t, err)

	bases, err := s.BaseTypes(context.Background(), "app", "C")
	require.NoError(t, err)
	assert.Equal(t, []dbgclient.BaseType{
		{Module: "app", Type: "B", Offset: 16},
		{Module: "app", Type: "A", Offset: 24},
	}, bases)

	bases, err = s.BaseTypes(context.Background(), "app", "A")
	require.NoError(t, err)
	assert.Empty(t, bases)
}

func TestSnapshot_Memory(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	v, err := s.ReadNumber(ctx, 0x1004, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(9), v)

	vals, err := s.ReadArray(ctx, 0x5008, 8, 3)
	require.NoError(t, err)
	assert.Equal(t, []uint64{0x6000, 0x1000, 0x1008}, vals)

	// 0x5000 and 0x5008 are adjacent regions.
	v, err = s.ReadNumber(ctx, 0x5004, 8)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x6000)<<32|11, v)

	b, err := s.ReadArray(ctx, 0x6000, 1, 11)
	require.NoError(t, err)
	assert.Equal(t, uint64('w'), b[0])
	assert.Equal(t, uint64(0), b[10])

	_, err = s.ReadNumber(ctx, 0x8000, 4)
	assert.Error(t, err)
	_, err = s.ReadNumber(ctx, 0x100c, 8)
	assert.Error(t, err, "read running past the end of a region")
	_, err = s.ReadNumber(ctx, 0x1000, 5)
	assert.True(t, errors.Is(err, dbgclient.ErrInvalidWidth))
}

func TestSnapshot_Symbols(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	g, err := s.GlobalSymbol(ctx, "app", "g_list")
	require.NoError(t, err)
	assert.Equal(t, dbgclient.GlobalInfo{Module: "app", Type: "Node", Pointer: 0x3000}, g)

	sym, err := s.SymbolName(ctx, 0x9000)
	require.NoError(t, err)
	assert.Equal(t, "Circle::`vftable'", sym.Name)
	assert.Equal(t, int64(0), sym.Displacement)

	sym, err = s.SymbolName(ctx, 0x1004)
	require.NoError(t, err)
	assert.Equal(t, "g_point", sym.Name)
	assert.Equal(t, int64(4), sym.Displacement)

	_, err = s.SymbolName(ctx, 0x10)
	assert.Error(t, err)
	_, err = s.GlobalSymbol(ctx, "app", "nope")
	assert.Error(t, err)
}

func TestSnapshot_Constants(t *testing.T) {
	ctx := context.Background()
	s := loadSample(t)

	isEnum, err := s.IsEnum(ctx, "app", "Color")
	require.NoError(t, err)
	assert.True(t, isEnum)
	isEnum, err = s.IsEnum(ctx, "app", "int")
	require.NoError(t, err)
	assert.False(t, isEnum)

	names, err := s.ConstantName(ctx, "app", "Color", 2)
	require.NoError(t, err)
	assert.Equal(t, []string{"Blue"}, names)

	names, err = s.ConstantName(ctx, "app", "Color", 9)
	require.NoError(t, err)
	assert.Empty(t, names)

	v, err := s.ConstantValue(ctx, "app", "", "MAX_WIDGETS")
	require.NoError(t, err)
	assert.Equal(t, uint64(16), v)

	_, err = s.ConstantValue(ctx, "app", "Color", "Purple")
	assert.Error(t, err)
}

func TestSnapshot_TypeNames(t *testing.T) {
	s := loadSample(t)
	assert.Contains(t, s.TypeNames(), "app!Widget")
}

func TestStore_Replace(t *testing.T) {
	ctx := context.Background()
	first, err := New(Spec{Memory: []Region{Words(0x10, 4, 1)}})
	require.NoError(t, err)
	second, err := New(Spec{Memory: []Region{Words(0x10, 4, 2)}})
	require.NoError(t, err)

	store := NewStore(first)
	var notified *Snapshot
	store.OnReplace(func(s *Snapshot) { notified = s })

	v, err := store.ReadNumber(ctx, 0x10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), v)

	store.Replace(second)
	assert.Same(t, second, notified)
	v, err = store.ReadNumber(ctx, 0x10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
}
