package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	dbghttp "github.com/fyrsmithlabs/dbgnav/internal/http"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const sampleSnapshot = "../../internal/snapshot/testdata/sample.yaml"

func run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	t.Setenv("HOME", t.TempDir())

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetArgs(append(args, "--log-level", "error"))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestParseTarget(t *testing.T) {
	tests := []struct {
		in   string
		want target
	}{
		{"app!g_list", target{module: "app", name: "g_list"}},
		{"app!Node@0x3000", target{module: "app", name: "Node", addr: 0x3000, hasAddr: true}},
		{"app!Map<int, Node*>@4096", target{module: "app", name: "Map<int, Node*>", addr: 4096, hasAddr: true}},
		{" app!Point @ 0x1000 ", target{module: "app", name: "Point", addr: 0x1000, hasAddr: true}},
	}
	for _, tt := range tests {
		got, err := parseTarget(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"g_list", "!g_list", "app!", "app!@0x10", "app!Node@zz"} {
		_, err := parseTarget(bad)
		assert.Error(t, err, bad)
	}
}

func TestDesc(t *testing.T) {
	out, _, err := run(t, "desc", "app!g_widget", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Widget 0x5000")
	assert.Contains(t, out, "type:    app!Widget")
	assert.Contains(t, out, "address: 0x5000")
	assert.Contains(t, out, "action:  address memory:0x5000")
}

func TestDesc_EnumAndDynamic(t *testing.T) {
	out, _, err := run(t, "desc", "app!Color@0x5000", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "Blue")
	assert.Contains(t, out, "constant: Blue")

	out, _, err = run(t, "desc", "--dynamic", "app!g_shape", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "type:    app!Circle")
}

func TestField(t *testing.T) {
	out, _, err := run(t, "field", "app!g_list", "next.value", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "next.value = 2 (app!int)")

	out, _, err = run(t, "field", "app!g_widget", "name", "--string", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, `name = "widget-one"`)

	out, _, err = run(t, "field", "app!g_widget", "points", "--array", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "[0] Point 0x1000")
	assert.Contains(t, out, "[1] Point 0x1008")

	out, _, err = run(t, "field", "app!g_list", "next", "--list", "next", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "[0] Node 0x3010")
	assert.Contains(t, out, "[1] Node 0x3000")
	assert.NotContains(t, out, "[2]")

	_, _, err = run(t, "field", "app!g_list", "missing", "--snapshot", sampleSnapshot)
	assert.ErrorIs(t, err, dbgobject.ErrTypeMismatch)
}

func TestTree(t *testing.T) {
	out, _, err := run(t, "tree", "app!g_widget", "--depth", "2", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	for _, want := range []string{
		"Widget 0x5000",
		"  color: Blue",
		"  level: 5",
		`  name: "widget-one"`,
		"  points: [...]",
		"    Point 0x1000",
		"    Point 0x1008",
	} {
		assert.Contains(t, out, want)
	}
	assert.NotContains(t, out, "x: 7", "depth limit stops below the points")
	assert.NotContains(t, out, "(shown above)", "fields sharing the widget address are not duplicates")
}

func TestTree_MarksDuplicates(t *testing.T) {
	out, _, err := run(t, "tree", "app!g_list", "--depth", "-1", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, out, "(shown above)")
}

func TestStats(t *testing.T) {
	_, stderr, err := run(t, "field", "app!g_list", "value", "--stats", "--snapshot", sampleSnapshot)
	require.NoError(t, err)
	assert.Contains(t, stderr, "requests:")
	assert.Contains(t, stderr, "global")
	assert.Contains(t, stderr, "fieldoffset")
}

func TestRemoteSession(t *testing.T) {
	snap, err := snapshot.LoadFile(sampleSnapshot)
	require.NoError(t, err)
	srv, err := dbghttp.NewServer(snap, zap.NewNop(), &dbghttp.Config{Version: "test"})
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	out, _, err := run(t, "field", "app!g_point", "y", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "y = 9")

	out, _, err = run(t, "health", "--server", ts.URL)
	require.NoError(t, err)
	assert.Contains(t, out, "Server Status: ok")
	assert.Contains(t, out, "Version: test")
	assert.Contains(t, out, "Pointer Size: 8")
}

func TestConfigErrors(t *testing.T) {
	_, _, err := run(t, "desc", "app!g_widget", "--config", "/nonexistent/dbgnav.yaml")
	assert.Error(t, err)

	_, _, err = run(t, "serve", "--server", "http://localhost:1")
	assert.ErrorContains(t, err, "serve needs --snapshot")

	_, _, err = run(t, "tree", "app!g_widget", "--watch", "--server", "http://localhost:1")
	assert.Error(t, err)
}

func TestDesc_LongSnapshotPath(t *testing.T) {
	data, err := os.ReadFile(sampleSnapshot)
	require.NoError(t, err)

	dir := t.TempDir()
	for i := 0; i < 6; i++ {
		dir = filepath.Join(dir, strings.Repeat("d", 100))
	}
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := filepath.Join(dir, "sample.yaml")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	require.Greater(t, len(path), 512)

	out, _, err := run(t, "desc", "app!g_widget", "--snapshot", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Widget 0x5000")
}
