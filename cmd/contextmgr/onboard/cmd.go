// Package onboardcmd implements the `contextmgr onboard` command.
package onboardcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/onboarding"
)

// Command implements `contextmgr onboard`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command

	preset onboarding.Details
	seed   bool
}

// New creates the onboard command.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "onboard",
		Short: "Interview the user about the project and write PROJECT_BLUEPRINT.yaml",
		Long: "Asks for every project detail not given as a flag, requests a development\n" +
			"strategy from the configured model and writes PROJECT_BLUEPRINT.yaml.",
		Args: cobra.NoArgs,
		RunE: c.run,
	}

	f := c.cmd.Flags()
	f.StringVar(&c.preset.Name, "name", "", "Project name")
	f.StringVar(&c.preset.Description, "description", "", "Project description")
	f.StringVar(&c.preset.Domain, "domain", "", "Project domain or industry")
	f.StringVar(&c.preset.Type, "type", "", "Project type")
	f.StringVar(&c.preset.PrimaryLanguage, "language", "", "Primary programming language")
	f.StringVar(&c.preset.Frameworks, "frameworks", "", "Preferred frameworks and libraries")
	f.BoolVar(&c.seed, "seed-milestones", false, "Add the suggested milestones to the context document")

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

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Starting project onboarding for %s\n", svc.Root)

	p := onboarding.NewPrompter(cmd.InOrStdin(), out)
	res, err := svc.Onboard(cmd.Context(), p, c.preset, c.seed)
	if err != nil {
		return err
	}

	if res.Warning != "" {
		fmt.Fprintf(out, "Development strategy unavailable: %s\n", res.Warning)
	}
	fmt.Fprintf(out, "Blueprint written to %s\n", res.BlueprintPath)
	for _, m := range res.Seeded {
		fmt.Fprintf(out, "Milestone added: %s\n", m)
	}
	fmt.Fprintln(out, "Recommended development standards:")
	for _, s := range onboarding.Standards {
		fmt.Fprintf(out, "  - %s\n", s)
	}
	fmt.Fprintln(out, "Project onboarding complete.")
	return nil
}
