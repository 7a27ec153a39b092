package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/dbgnav/internal/dbgobject"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newDescCmd(c *cli) *cobra.Command {
	var dynamic bool
	cmd := &cobra.Command{
		Use:   "desc <target>",
		Short: "Describe an object",
		Long: `Describe an object with its type description, enum constants and actions.

Examples:
  dbgnav desc 'app!g_widget'
  dbgnav desc --dynamic 'app!g_shape'
  dbgnav desc 'app!Point@0x1000' --snapshot testdata/sample.yaml`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer c.printStats(cmd, s)

			obj, err := s.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			if dynamic {
				if obj, err = obj.VCast(ctx); err != nil {
					return err
				}
			}
			return describe(ctx, cmd.OutOrStdout(), obj)
		},
	}
	cmd.Flags().BoolVar(&dynamic, "dynamic", false, "cast to the dynamic type named by the object's vtable first")
	return cmd
}

func describe(ctx context.Context, w io.Writer, obj dbgobject.Object) error {
	d, err := obj.Desc(ctx)
	fmt.Fprintln(w, d)
	if err != nil {
		fmt.Fprintln(w, errorStyle.Render("description failed: "+err.Error()))
	}
	writeAttr(w, "type", obj.Type().QualifiedName())
	writeAttr(w, "address", obj.Ptr())

	if !obj.IsNull() {
		enum, err := obj.IsEnum(ctx)
		if err != nil {
			return err
		}
		if enum {
			names, err := obj.Constants(ctx)
			if err != nil {
				return err
			}
			writeAttr(w, "constant", strings.Join(names, " | "))
		}
	}

	actions, err := obj.Actions(ctx)
	if err != nil {
		return err
	}
	for _, a := range actions {
		target := a.URL
		if !a.IsLink() {
			target = "(runs)"
		}
		writeAttr(w, "action", a.Name+" "+dimStyle.Render(target))
	}
	return nil
}

// writeAttr prints "label: value" with values aligned in one column.
func writeAttr(w io.Writer, label, value string) {
	pad := strings.Repeat(" ", max(0, 7-len(label)))
	fmt.Fprintf(w, "%s%s %s\n", labelStyle.Render(label+":"), pad, value)
}

func newFieldCmd(c *cli) *cobra.Command {
	var (
		asArray  bool
		asString bool
		list     string
		limit    int
	)
	cmd := &cobra.Command{
		Use:   "field <target> <path>",
		Short: "Follow a dotted field path",
		Long: `Follow a dotted path of real or extended fields from an object and describe
the result.

Examples:
  dbgnav field 'app!g_list' next.value
  dbgnav field 'app!g_widget' points --array
  dbgnav field 'app!g_widget' name --string
  dbgnav field 'app!g_list' next --list next`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, ctx, err := c.openSession(cmd)
			if err != nil {
				return err
			}
			defer c.printStats(cmd, s)

			obj, err := s.resolve(ctx, args[0])
			if err != nil {
				return err
			}
			f, err := obj.F(ctx, args[1])
			if err != nil {
				return err
			}
			c.logger.Debug(ctx, "field resolved", zap.String("path", args[1]), zap.Stringer("object", f))

			w := cmd.OutOrStdout()
			switch {
			case list != "":
				nodes, err := f.List(ctx, dbgobject.NextField(list), dbgobject.ListOptions{Max: limit})
				if err != nil {
					return err
				}
				return printItems(ctx, w, nodes)
			case asString:
				str, err := f.ReadString(ctx, -1)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s = %q\n", labelStyle.Render(args[1]), str)
				return nil
			case asArray:
				items, err := f.Array(ctx, dbgobject.ArrayDefault())
				if err != nil {
					return err
				}
				return printItems(ctx, w, items)
			}

			d, derr := f.Desc(ctx)
			fmt.Fprintf(w, "%s = %s %s\n", labelStyle.Render(args[1]), d, dimStyle.Render("("+f.Type().QualifiedName()+")"))
			return derr
		},
	}
	cmd.Flags().BoolVar(&asArray, "array", false, "print the elements of the resulting array")
	cmd.Flags().BoolVar(&asString, "string", false, "read a zero-terminated string at the result")
	cmd.Flags().StringVar(&list, "list", "", "walk a linked list using this field path as the next pointer")
	cmd.Flags().IntVar(&limit, "limit", 1000, "maximum list nodes to print")
	return cmd
}

func printItems(ctx context.Context, w io.Writer, items []dbgobject.Object) error {
	for i, it := range items {
		d, err := it.Desc(ctx)
		if err != nil {
			return fmt.Errorf("item %d: %w", i, err)
		}
		fmt.Fprintf(w, "%s %s\n", labelStyle.Render(fmt.Sprintf("[%d]", i)), d)
	}
	return nil
}
