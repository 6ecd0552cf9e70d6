// Package rootcmd wires the root cobra.Command for the contextmgr CLI binary.
package rootcmd

import (
	"log/slog"

	"github.com/spf13/cobra"

	codecmd "github.com/go-ports/contextmgr/cmd/contextmgr/code"
	configcmd "github.com/go-ports/contextmgr/cmd/contextmgr/config"
	contextcmd "github.com/go-ports/contextmgr/cmd/contextmgr/context"
	depscmd "github.com/go-ports/contextmgr/cmd/contextmgr/deps"
	initcmd "github.com/go-ports/contextmgr/cmd/contextmgr/initialize"
	mcpcmd "github.com/go-ports/contextmgr/cmd/contextmgr/mcp"
	onboardcmd "github.com/go-ports/contextmgr/cmd/contextmgr/onboard"
	setupcmd "github.com/go-ports/contextmgr/cmd/contextmgr/setup"
	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	uninstallcmd "github.com/go-ports/contextmgr/cmd/contextmgr/uninstall"
	versioncmd "github.com/go-ports/contextmgr/cmd/contextmgr/version"
	"github.com/go-ports/contextmgr/internal/service"
)

// New creates and returns the root cobra.Command for the contextmgr CLI.
// opts are applied to every service the commands open.
func New(opts ...service.Option) *cobra.Command {
	ctx := &shared.Context{ServiceOptions: opts}

	root := &cobra.Command{
		Use:           "contextmgr",
		Short:         "contextmgr: track project phase, milestones and development context",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if ctx.Verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level})))
		},
		RunE: func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}

	f := root.PersistentFlags()
	f.StringVar(&ctx.ProjectDir, "project-dir", "", "Project root (default: current directory)")
	f.BoolVarP(&ctx.Verbose, "verbose", "v", false, "Enable debug logging")

	root.AddCommand(
		initcmd.New(ctx).Cmd(),
		contextcmd.New(ctx).Cmd(),
		depscmd.New(ctx).Cmd(),
		codecmd.New(ctx).Cmd(),
		onboardcmd.New(ctx).Cmd(),
		configcmd.New(ctx).Cmd(),
		mcpcmd.New(ctx).Cmd(),
		setupcmd.New(ctx).Cmd(),
		uninstallcmd.New(ctx).Cmd(),
		versioncmd.New(ctx).Cmd(),
	)

	return root
}
