package http_test

import (
	"context"
	"fmt"
	"net/http/httptest"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	httpserver "github.com/fyrsmithlabs/dbgnav/internal/http"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"go.uber.org/zap"
)

// ExampleServer serves a snapshot and reads it back through the protocol
// client.
func ExampleServer() {
	snap, err := snapshot.New(snapshot.Spec{
		Memory: []snapshot.Region{snapshot.Words(0x1000, 4, 42)},
	})
	if err != nil {
		panic(err)
	}

	server, err := httpserver.NewServer(snap, zap.NewNop(), nil)
	if err != nil {
		panic(err)
	}

	ts := httptest.NewServer(server.Handler())
	defer ts.Close()

	client, err := dbgclient.NewHTTPClient(dbgclient.HTTPConfig{BaseURL: ts.URL}, nil)
	if err != nil {
		panic(err)
	}

	v, err := client.ReadNumber(context.Background(), 0x1000, 4)
	if err != nil {
		panic(err)
	}
	fmt.Println(v)
	// Output: 42
}
