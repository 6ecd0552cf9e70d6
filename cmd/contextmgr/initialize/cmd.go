// Package initcmd implements the `contextmgr init` command.
package initcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
)

// Command implements `contextmgr init`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	force bool
}

// New creates the init command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "init",
		Short: "Create .context/GLOBAL_CONTEXT.yaml and the CONTEXT.md notes file",
		Args:  cobra.NoArgs,
		RunE:  c.run,
	}
	c.cmd.Flags().BoolVar(&c.force, "force", false, "Overwrite an existing CONTEXT.md")
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) run(cmd *cobra.Command, _ []string) error {
	svc, err := c.ctx.Service()
	if err != nil {
		return err
	}
	defer svc.Close()

	res, err := svc.Init(c.force)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Project context ready at %s\n", res.ContextPath)
	if res.NotesWritten {
		fmt.Fprintf(out, "Created %s\n", res.NotesPath)
	} else {
		fmt.Fprintf(out, "Kept existing %s (use --force to overwrite)\n", res.NotesPath)
	}
	return nil
}
