// Package contextcmd implements the `contextmgr context` command group.
package contextcmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/yalp/jsonpath"
	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
)

// Command implements `contextmgr context`.
type Command struct {
	ctx *shared.Context
	cmd *cobra.Command
}

// New creates the context command group.
func New(ctx *shared.Context) *Command {
	c := &Command{ctx: ctx}
	c.cmd = &cobra.Command{
		Use:   "context",
		Short: "Track and report on the project development context",
		RunE:  func(cmd *cobra.Command, _ []string) error { return cmd.Help() },
	}
	c.cmd.AddCommand(
		newTrack(ctx),
		newShow(ctx),
		newComplete(ctx),
		newPhase(ctx),
		newMilestones(ctx),
		newUpdate(ctx),
		newStatus(ctx),
		newDocs(ctx),
		newInsights(ctx),
		newHistory(ctx),
		newSearch(ctx),
		newReindex(ctx),
		newPrune(ctx),
	)
	return c
}

// Cmd returns the cobra command.
func (c *Command) Cmd() *cobra.Command { return c.cmd }

// ---------------------------------------------------------------------------
// context track
// ---------------------------------------------------------------------------

func newTrack(ctx *shared.Context) *cobra.Command {
	var milestone string
	cmd := &cobra.Command{
		Use:   "track",
		Short: "Optionally add a milestone, then print the current context",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			if _, err := svc.Track(cmd.Context(), milestone); err != nil {
				return err
			}
			data, err := svc.ContextData()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if milestone != "" {
				fmt.Fprintf(out, "Milestone added: %s\n", milestone)
			}
			fmt.Fprintln(out, "## Current Project Context")
			return writeJSON(out, data)
		},
	}
	cmd.Flags().StringVar(&milestone, "milestone", "", "Add a new milestone")
	return cmd
}

// ---------------------------------------------------------------------------
// context show
// ---------------------------------------------------------------------------

func newShow(ctx *shared.Context) *cobra.Command {
	var format, query string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the context document, or the part selected by a JSONPath query",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if format != "json" && format != "yaml" {
				return fmt.Errorf("unsupported format %q (expected json or yaml)", format)
			}
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			if query == "" && format == "yaml" {
				// Marshal the typed document to keep the stored key order.
				doc, err := svc.Context()
				if err != nil {
					return err
				}
				return writeYAML(out, doc)
			}

			data, err := svc.ContextData()
			if err != nil {
				return err
			}
			var v any = data
			if query != "" {
				if v, err = jsonpath.Read(data, query); err != nil {
					return fmt.Errorf("query %s: %w", query, err)
				}
			}
			if format == "yaml" {
				return writeYAML(out, v)
			}
			return writeJSON(out, v)
		},
	}
	cmd.Flags().StringVar(&format, "format", "yaml", "Output format: json | yaml")
	cmd.Flags().StringVar(&query, "query", "", "JSONPath expression, e.g. $.development.current_phase")
	return cmd
}

// ---------------------------------------------------------------------------
// context complete
// ---------------------------------------------------------------------------

func newComplete(ctx *shared.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <milestone>",
		Short: "Move the active milestone with exactly this text to completed",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			found, err := svc.CompleteMilestone(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if found {
				fmt.Fprintf(out, "Milestone completed: %s\n", args[0])
			} else {
				fmt.Fprintf(out, "No active milestone named %q. Run `contextmgr context milestones` to list them.\n", args[0])
			}
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// context phase
// ---------------------------------------------------------------------------

func newPhase(ctx *shared.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "phase <phase>",
		Short: "Set the current development phase",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			if err := svc.UpdatePhase(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Current phase: %s\n", args[0])
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// context milestones
// ---------------------------------------------------------------------------

func newMilestones(ctx *shared.Context) *cobra.Command {
	var completed bool
	cmd := &cobra.Command{
		Use:   "milestones",
		Short: "List active (or completed) milestones in stored order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			labels, err := svc.Milestones(completed)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(labels) == 0 {
				if completed {
					fmt.Fprintln(out, "No completed milestones.")
				} else {
					fmt.Fprintln(out, "No active milestones.")
				}
				return nil
			}
			for _, l := range labels {
				fmt.Fprintf(out, "- %s\n", l)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&completed, "completed", false, "List completed milestones instead")
	return cmd
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func writeJSON(w io.Writer, v any) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(b))
	return err
}

func writeYAML(w io.Writer, v any) error {
	b, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = w.Write(b)
	return err
}
