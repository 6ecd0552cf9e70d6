// Package uninstallcmd implements the `contextmgr uninstall` command group.
package uninstallcmd

import (
	"github.com/spf13/cobra"

	setupcmd "github.com/go-ports/contextmgr/cmd/contextmgr/setup"
	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/setup"
)

// Command implements `contextmgr uninstall`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the uninstall command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "uninstall",
		Short: "Remove the contextmgr MCP server from a coding agent",
		RunE:  func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	for _, agent := range setup.Agents {
		c.cmd.AddCommand(setupcmd.AgentCommand(ctx, agent, "Remove contextmgr from "+agent, setup.Uninstall))
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }
