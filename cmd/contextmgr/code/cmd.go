// Package codecmd implements the `contextmgr code` command group.
package codecmd

import (
	"fmt"
	"path/filepath"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/codegen"
)

// Command implements `contextmgr code`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the code command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "code",
		Short: "Generate Go boilerplate",
		RunE:  func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	c.cmd.AddCommand(newGenerate(ctx), newList())
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

// ---------------------------------------------------------------------------
// code generate
// ---------------------------------------------------------------------------

func newGenerate(ctx *shared.Context) *cobra.Command {
	var output string
	var opts codegen.Options
	var force bool
	cmd := &cobra.Command{
		Use:   "generate <template>",
		Short: "Render a boilerplate template to stdout or a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if output == "" {
				src, err := codegen.Render(args[0], opts)
				if err != nil {
					return err
				}
				_, err = out.Write(src)
				return err
			}

			path := output
			if !filepath.IsAbs(path) {
				root, err := ctx.Root()
				if err != nil {
					return err
				}
				path = filepath.Join(root, path)
			}
			if err := codegen.WriteFile(path, args[0], opts, force); err != nil {
				return err
			}
			fmt.Fprintf(out, "Code saved to %s\n", path)
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&output, "output", "", "Write to this file (relative to the project dir) instead of stdout")
	f.StringVar(&opts.Package, "package", "", "Package clause (default depends on the template)")
	f.StringVar(&opts.Name, "name", "", "Program name used by templates that need one")
	f.BoolVar(&force, "force", false, "Overwrite an existing output file")
	return cmd
}

// ---------------------------------------------------------------------------
// code list
// ---------------------------------------------------------------------------

func newList() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List available templates",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			for _, t := range codegen.List() {
				fmt.Fprintf(tw, "%s\t%s\n", t.Name, t.Description)
			}
			return tw.Flush()
		},
	}
}
