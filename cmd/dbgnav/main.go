// Dbgnav inspects the memory of a running process as a graph of typed
// objects.
//
// It talks to a debugger-side service over the /jsdbg-server protocol, or
// reads a local snapshot file. The serve command exposes a snapshot over
// the same protocol.
//
// Usage:
//
//	# Serve a snapshot, reloading it when the file changes
//	dbgnav serve --snapshot testdata/sample.yaml --watch
//
//	# Describe a global, walk its fields, or print a tree
//	dbgnav desc 'app!g_widget'
//	dbgnav field 'app!g_list' next.next.value
//	dbgnav tree 'app!Widget@0x5000' --depth 2
package main

import (
	"context"
	"fmt"
	"os"
	"sort"

	"github.com/fyrsmithlabs/dbgnav/internal/config"
	"github.com/fyrsmithlabs/dbgnav/internal/dbgclient"
	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/fyrsmithlabs/dbgnav/internal/logging"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/log/global"
	"go.uber.org/zap"
)

// Version information (set via ldflags during build)
var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// cli carries global flags and the state built from them before each
// command runs.
type cli struct {
	configPath string
	server     string
	snapshot   string
	logLevel   string
	stats      bool

	cfg    *config.Config
	logger *logging.Logger
}

func newRootCmd() *cobra.Command {
	c := &cli{}
	root := &cobra.Command{
		Use:   "dbgnav",
		Short: "Navigate the memory of a running process as typed objects",
		Long: `dbgnav reads types and memory from a debugger-side service (or a local
snapshot) and presents them as typed objects, fields and trees.`,
		Version:           version,
		SilenceUsage:      true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}

	flags := root.PersistentFlags()
	flags.StringVar(&c.configPath, "config", "", "config file (default ~/.config/dbgnav/config.yaml)")
	flags.StringVar(&c.server, "server", "", "debuggee service URL (overrides client.base_url)")
	flags.StringVar(&c.snapshot, "snapshot", "", "read from a snapshot file instead of a service")
	flags.StringVar(&c.logLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	flags.BoolVar(&c.stats, "stats", false, "print remote request counts to stderr")

	root.AddCommand(
		newServeCmd(c),
		newHealthCmd(c),
		newFieldCmd(c),
		newDescCmd(c),
		newTreeCmd(c),
	)
	return root
}

// setup loads configuration, applies flag overrides and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.server != "" {
		cfg.Client.BaseURL = c.server
	}
	if c.snapshot != "" {
		cfg.Snapshot.Path = c.snapshot
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	c.cfg = cfg

	lcfg, err := logging.FromSettings(cfg.Logging)
	if err != nil {
		return err
	}
	logger, err := logging.NewLoggerTo(lcfg, cmd.ErrOrStderr(), global.GetLoggerProvider())
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// debuggee names where objects are read from.
func (c *cli) debuggee() string {
	if c.cfg.Snapshot.Path != "" {
		return logging.DebuggeeName(c.cfg.Snapshot.Path)
	}
	return logging.DebuggeeName(c.cfg.Client.BaseURL)
}

// openClient returns the configured metadata and memory client. A snapshot
// is returned as a Store so that it can be reloaded in place.
func (c *cli) openClient() (dbgclient.Client, *snapshot.Store, error) {
	if path := c.cfg.Snapshot.Path; path != "" {
		snap, err := snapshot.LoadFile(path)
		if err != nil {
			return nil, nil, err
		}
		store := snapshot.NewStore(snap)
		return store, store, nil
	}

	cc := c.cfg.Client
	client, err := dbgclient.NewHTTPClient(dbgclient.HTTPConfig{
		BaseURL:     cc.BaseURL,
		Timeout:     cc.Timeout.Duration(),
		MaxInFlight: cc.MaxInFlight,
		RateLimit:   cc.RateLimit,
		Burst:       cc.Burst,
		MaxRetries:  cc.MaxRetries,
	}, c.logger.Underlying())
	if err != nil {
		return nil, nil, err
	}
	return client, nil, nil
}

// session is an open navigation session and what it reads through.
type session struct {
	*dbgobject.Session
	store   *snapshot.Store
	counter *dbgclient.CountingClient
}

func (c *cli) openSession(cmd *cobra.Command) (*session, context.Context, error) {
	client, store, err := c.openClient()
	if err != nil {
		return nil, nil, err
	}
	counter := dbgclient.NewCountingClient(client)
	sess := dbgobject.NewSession(counter,
		dbgobject.WithLogger(c.logger.Underlying()),
		dbgobject.WithStyler(newTermStyler()),
	)
	if store != nil {
		store.OnReplace(func(*snapshot.Snapshot) {
			if cc, ok := sess.Client().(*dbgclient.CachingClient); ok {
				cc.Purge()
			}
			sess.NotifyBreak()
		})
	}

	ctx := logging.WithDebuggee(cmd.Context(), c.debuggee())
	ctx = logging.WithLogger(ctx, c.logger)
	c.logger.Debug(ctx, "session opened")
	return &session{Session: sess, store: store, counter: counter}, ctx, nil
}

// printStats writes per-operation request counts when --stats is set.
func (c *cli) printStats(cmd *cobra.Command, s *session) {
	if !c.stats {
		return
	}
	counts := s.counter.Counts()
	ops := make([]string, 0, len(counts))
	for op := range counts {
		ops = append(ops, op)
	}
	sort.Strings(ops)

	w := cmd.ErrOrStderr()
	fmt.Fprintf(w, "requests: %d\n", s.counter.Total())
	for _, op := range ops {
		fmt.Fprintf(w, "  %-14s %d\n", op, counts[op])
	}
	c.logger.Debug(cmd.Context(), "request stats", zap.Int("total", s.counter.Total()))
}
