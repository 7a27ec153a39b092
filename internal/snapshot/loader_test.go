package snapshot

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	s, err := Parse([]byte(`
pointer_size: 4
types:
  - module: app
    name: Pair
    size: 8
    fields:
      - {name: a, type: int, offset: 0}
      - {name: b, type: "int*", offset: 4}
memory:
  - {address: 0x20, width: 4, values: [0xffffffff, 0x40]}
`))
	require.NoError(t, err)

	size, err := s.PointerSize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 4, size)

	info, err := s.FieldOffset(context.Background(), "app", "Pair", "b")
	require.NoError(t, err)
	assert.Equal(t, int64(4), info.Size, "pointer fields use the snapshot pointer size")

	v, err := s.ReadNumber(context.Background(), 0x20, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(0xffffffff), v)
}

func TestParse_Invalid(t *testing.T) {
	_, err := Parse([]byte("types: [unterminated"))
	assert.Error(t, err)

	_, err = Parse([]byte("pointer_size: 3"))
	assert.Error(t, err)
}

func TestLoadFile_Missing(t *testing.T) {
	_, err := LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestWatcher_ReloadsOnWrite(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  - {address: 0x10, width: 4, values: [1]}\n"), 0o600))

	initial, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(initial)

	w, err := NewWatcher(path, store, nil)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("memory:\n  - {address: 0x10, width: 4, values: [2]}\n"), 0o600))

	select {
	case ev := <-w.Events():
		require.NoError(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}

	v, err := store.ReadNumber(context.Background(), 0x10, 4)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), v)
}

func TestWatcher_KeepsSnapshotOnBadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snap.yaml")
	require.NoError(t, os.WriteFile(path, []byte("memory:\n  - {address: 0x10, width: 4, values: [1]}\n"), 0o600))

	initial, err := LoadFile(path)
	require.NoError(t, err)
	store := NewStore(initial)

	w, err := NewWatcher(path, store, nil)
	require.NoError(t, err)
	w.debounce = 10 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, w.Start(ctx))
	defer w.Stop()

	require.NoError(t, os.WriteFile(path, []byte("pointer_size: 3\n"), 0o600))

	select {
	case ev := <-w.Events():
		assert.Error(t, ev.Err)
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for reload")
	}
	assert.Same(t, initial, store.Current())
}
