// Package setupcmd implements the `contextmgr setup` command group.
package setupcmd

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/setup"
)

// Command implements `contextmgr setup`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the setup command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "setup",
		Short: "Register the contextmgr MCP server with a coding agent",
		RunE:  func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	for _, agent := range setup.Agents {
		c.cmd.AddCommand(AgentCommand(ctx, agent, "Install contextmgr into "+agent, setup.Install))
	}
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

// dotDirs maps each agent to its config directory name.
var dotDirs = map[string]string{
	setup.AgentClaudeCode: ".claude",
	setup.AgentCursor:     ".cursor",
	setup.AgentCodex:      ".codex",
}

// AgentCommand builds the per-agent subcommand shared by setup and uninstall.
func AgentCommand(ctx *shared.Context, agent, short string, action func(agent, home string, project bool) (setup.Result, error)) *cobra.Command {
	var configDir string
	var project bool
	cmd := &cobra.Command{
		Use:   agent,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target, err := resolveConfigDir(ctx, dotDirs[agent], configDir, project)
			if err != nil {
				return err
			}
			result, err := action(agent, target, project)
			if errors.Is(err, setup.ErrUnknownAgent) {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), result)
			return err
		},
	}
	cmd.Flags().StringVar(&configDir, "config-dir", "", "Path to the agent's "+dotDirs[agent]+" directory")
	cmd.Flags().BoolVar(&project, "project", false, "Use the project dir instead of the user's home")
	return cmd
}

//revive:disable:flag-parameter
func resolveConfigDir(ctx *shared.Context, dotDir, configDir string, project bool) (string, error) {
	if configDir != "" {
		return configDir, nil
	}
	if project {
		root, err := ctx.Root()
		if err != nil {
			return "", err
		}
		return filepath.Join(root, dotDir), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, dotDir), nil
}

//revive:enable:flag-parameter
