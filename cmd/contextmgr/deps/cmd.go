// Package depscmd implements the `contextmgr deps` command group.
package depscmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
)

// Command implements `contextmgr deps`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the deps command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "deps",
		Short: "Inspect project dependencies",
		RunE:  func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	c.cmd.AddCommand(newCheck(ctx))
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func newCheck(ctx *shared.Context) *cobra.Command {
	var index string
	cmd := &cobra.Command{
		Use:   "check",
		Short: "Compare declared dependencies with the latest published versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			report, err := svc.DepsCheck(cmd.Context(), index)
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(report, "", "  ")
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "## Dependency Updates")
			fmt.Fprintln(out, string(b))
			return nil
		},
	}
	cmd.Flags().StringVar(&index, "index", "", "Package index: auto | goproxy | pypi (default from config)")
	return cmd
}
