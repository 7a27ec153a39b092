package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/fyrsmithlabs/dbgnav/internal/logging"
	"github.com/fyrsmithlabs/dbgnav/internal/objtree"
	"github.com/fyrsmithlabs/dbgnav/internal/snapshot"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newTreeCmd(c *cli) *cobra.Command {
	var (
		depth int
		base  bool
		watch bool
	)
	cmd := &cobra.Command{
		Use:   "tree <target>",
		Short: "Print an object and its fields as a tree",
		Long: `Print an object and, recursively, its fields and array elements. Objects
already shown higher in the tree are marked and not expanded again.

Examples:
  dbgnav tree 'app!g_widget'
  dbgnav tree 'app!g_list' --depth -1
  dbgnav tree 'app!g_widget' --snapshot snap.yaml --watch`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !cmd.Flags().Changed("depth") {
				depth = c.cfg.Tree.MaxDepth
			}
			if !cmd.Flags().Changed("base") {
				base = c.cfg.Tree.IncludeBaseTypes
			}

			s, ctx, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer c.printStats(cmd, s)

			obj, err := s.resolve(ctx, args[0])
			if err != nil {
				return err
			}

			tree := objtree.New("dbgnav", objtree.WithLogger(c.logger.Underlying()))
			tree.AddChildren(obj.Module(), anyType, objtree.StructuralChildren(base))
			tree.WatchBreaks(s.Session)

			w := cmd.OutOrStdout()
			if err := renderTree(ctx, w, tree.CreateTree(obj), depth); err != nil {
				return err
			}
			if !watch {
				return nil
			}
			if s.store == nil {
				return fmt.Errorf("--watch needs a snapshot")
			}
			return c.watchTree(ctx, w, s.store, func() error {
				fmt.Fprintln(w, dimStyle.Render(strings.Repeat("-", 40)))
				return renderTree(ctx, w, tree.CreateTree(obj), depth)
			})
		},
	}
	cmd.Flags().IntVar(&depth, "depth", 4, "maximum depth, -1 for unlimited")
	cmd.Flags().BoolVar(&base, "base", false, "include fields of base types")
	cmd.Flags().BoolVar(&watch, "watch", false, "re-render whenever the snapshot file changes")
	return cmd
}

// watchTree redraws after every successful snapshot reload until ctx ends.
func (c *cli) watchTree(ctx context.Context, w io.Writer, store *snapshot.Store, redraw func() error) error {
	watcher, err := snapshot.NewWatcher(c.cfg.Snapshot.Path, store, c.logger.Underlying())
	if err != nil {
		return err
	}
	if err := watcher.Start(ctx); err != nil {
		return err
	}
	defer watcher.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-watcher.Events():
			if ev.Err != nil {
				logging.FromContext(ctx).Warn(ctx, "snapshot reload failed", zap.Error(ev.Err))
				continue
			}
			if err := redraw(); err != nil {
				return err
			}
		}
	}
}

// renderTree prints root and its descendants, one per line, followed by
// any expansion failures.
func renderTree(ctx context.Context, w io.Writer, root *objtree.Node, depth int) error {
	var visited []*objtree.Node
	err := objtree.Walk(ctx, root, depth, func(n *objtree.Node) error {
		visited = append(visited, n)
		fmt.Fprintln(w, strings.Repeat("  ", n.Depth())+nodeLine(ctx, n))
		return nil
	})
	if err != nil {
		return err
	}

	for _, n := range visited {
		for _, e := range n.ChildrenErrors() {
			fmt.Fprintln(w, errorStyle.Render(fmt.Sprintf("! %s: %v", nodeName(n), e)))
		}
	}
	return nil
}

func nodeName(n *objtree.Node) string {
	if l, ok := n.Object().(objtree.Labeled); ok {
		return l.Label
	}
	return fmt.Sprint(n.Object())
}

func nodeLine(ctx context.Context, n *objtree.Node) string {
	var line string
	switch v := n.Object().(type) {
	case objtree.Labeled:
		line = labelStyle.Render(v.Label+":") + " " + describeLeaf(ctx, v.Object)
	case dbgobject.Object:
		line = describeLeaf(ctx, v)
	default:
		line = fmt.Sprint(v)
	}
	if n.IsDuplicate() {
		line += dimStyle.Render(" (shown above)")
	}
	return line
}

func describeLeaf(ctx context.Context, obj dbgobject.Object) string {
	d, err := obj.Desc(ctx)
	if err != nil {
		return d + " " + errorStyle.Render(err.Error())
	}
	return d
}
