// Package configcmd implements the `contextmgr config` command group.
package configcmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/config"
)

// Command implements `contextmgr config`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the config command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "config",
		Short: "Show the effective configuration (API keys redacted)",
		Args:  cobra.NoArgs,
		RunE:  c.runShow,
	}
	c.cmd.AddCommand(newConfigInit(ctx))
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

func (c *Command) runShow(cmd *cobra.Command, _ []string) error {
	cfg, root, err := c.ctx.Config()
	if err != nil {
		return err
	}
	b, err := yaml.Marshal(cfg.Redacted())
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprint(out, string(b))

	fmt.Fprintln(out, "# sources (later wins):")
	if global, err := config.GlobalPath(); err == nil {
		fmt.Fprintf(out, "#   %s\n", global)
	}
	fmt.Fprintf(out, "#   %s\n", config.ProjectPath(root))
	fmt.Fprintln(out, "#   environment")
	return nil
}

// ---------------------------------------------------------------------------
// config init
// ---------------------------------------------------------------------------

func newConfigInit(ctx *shared.Context) *cobra.Command {
	var force, global bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a commented starter config.yaml",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var path string
			if global {
				p, err := config.GlobalPath()
				if err != nil {
					return err
				}
				path = p
			} else {
				root, err := ctx.Root()
				if err != nil {
					return err
				}
				path = config.ProjectPath(root)
			}

			out := cmd.OutOrStdout()
			err := config.WriteStarter(path, force)
			if errors.Is(err, config.ErrExists) {
				fmt.Fprintf(out, "Config already exists at %s\n", path)
				fmt.Fprintln(out, "Use --force to overwrite.")
				return nil
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Created %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite existing config")
	cmd.Flags().BoolVar(&global, "global", false, "Write the per-user config instead of the project one")
	return cmd
}
