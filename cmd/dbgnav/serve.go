package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	dbghttp "github.com/fyrsmithlabs/dbgnav/internal/http"
	"github.com/fyrsmithlabs/dbgnav/internal/logging"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCmd(c *cli) *cobra.Command {
	var (
		watch bool
		port  int
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a snapshot over the debuggee protocol",
		Long: `Serve a snapshot file over the /jsdbg-server protocol so that other dbgnav
commands (or any protocol client) can navigate it.

Examples:
  dbgnav serve --snapshot testdata/sample.yaml
  dbgnav serve --snapshot snap.yaml --watch --port 9400`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if c.cfg.Snapshot.Path == "" {
				return errors.New("serve needs --snapshot or snapshot.path")
			}
			if cmd.Flags().Changed("port") {
				c.cfg.Server.Port = port
			}
			if !cmd.Flags().Changed("watch") {
				watch = c.cfg.Snapshot.Watch
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx = logging.WithDebuggee(ctx, c.debuggee())
			return c.serve(ctx, watch)
		},
	}
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the snapshot when the file changes")
	cmd.Flags().IntVar(&port, "port", 9300, "listen port (overrides server.port)")
	return cmd
}

func (c *cli) serve(ctx context.Context, watch bool) error {
	snap, err := snapshot.LoadFile(c.cfg.Snapshot.Path)
	if err != nil {
		return err
	}
	store := snapshot.NewStore(snap)

	if watch {
		watcher, err := snapshot.NewWatcher(c.cfg.Snapshot.Path, store, c.logger.Underlying())
		if err != nil {
			return err
		}
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		defer watcher.Stop()
	}

	srv, err := dbghttp.NewServer(store, c.logger.Underlying(), &dbghttp.Config{
		Host:    c.cfg.Server.Host,
		Port:    c.cfg.Server.Port,
		Version: version,
	})
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()
	c.logger.Info(ctx, "serving snapshot", zap.String("addr", c.cfg.Server.Addr()), zap.Bool("watch", watch))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), c.cfg.Server.ShutdownTimeout.Duration())
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
