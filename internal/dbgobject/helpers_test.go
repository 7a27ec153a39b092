package dbgobject

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/stretchr/testify/require"
)

// sampleSession returns a session over the shared sample image and the
// counter sitting between the session cache and the image.
func sampleSession(t *testing.T) (*Session, *dbgclient.CountingClient) {
	t.Helper()
	snap, err := snapshot.LoadFile("../snapshot/testdata/sample.yaml")
	require.NoError(t, err)
	counter := dbgclient.NewCountingClient(snap)
	return NewSession(counter), counter
}

func specSession(t *testing.T, spec snapshot.Spec) (*Session, *dbgclient.CountingClient) {
	t.Helper()
	snap, err := snapshot.New(spec)
	require.NoError(t, err)
	counter := dbgclient.NewCountingClient(snap)
	return NewSession(counter), counter
}

func mustCreate(t *testing.T, s *Session, typeName string, addr Pointer) Object {
	t.Helper()
	obj, err := s.Create("app", typeName, addr)
	require.NoError(t, err)
	return obj
}

// noBulkClient fails every bulk read.
type noBulkClient struct {
	dbgclient.Client
}

func (noBulkClient) ReadArray(context.Context, uint64, int, int) ([]uint64, error) {
	return nil, &dbgclient.RemoteError{Op: dbgclient.OpReadArray, Payload: "bulk reads disabled"}
}

var errBoom = errors.New("boom")
