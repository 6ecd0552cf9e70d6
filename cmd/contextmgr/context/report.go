package contextcmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
)

// ---------------------------------------------------------------------------
// context update
// ---------------------------------------------------------------------------

func newUpdate(ctx *shared.Context) *cobra.Command {
	var ai bool
	cmd := &cobra.Command{
		Use:   "update",
		Short: "Append a dated summary of recent commits to CONTEXT.md",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			res, err := svc.Update(cmd.Context(), ai)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprint(out, res.Section)
			fmt.Fprintf(out, "\nAppended to %s\n", res.NotesPath)
			return nil
		},
	}
	cmd.Flags().BoolVar(&ai, "ai", false, "Add AI insights on the recent work")
	return cmd
}

// ---------------------------------------------------------------------------
// context status
// ---------------------------------------------------------------------------

func newStatus(ctx *shared.Context) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show commit, phase and milestone progress",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			st, err := svc.Status(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if format == "json" {
				return writeJSON(out, st)
			}

			fmt.Fprintln(out, "## Project Status")
			if st.VCSError != "" {
				fmt.Fprintf(out, "Version control: unavailable (%s)\n", st.VCSError)
			} else {
				fmt.Fprintf(out, "Total commits:        %d\n", st.TotalCommits)
				fmt.Fprintf(out, "Active branch:        %s\n", st.ActiveBranch)
				fmt.Fprintf(out, "Last commit:          %s\n", st.LastCommit)
			}
			fmt.Fprintf(out, "Days since start:     %d\n", st.DaysSinceStart)
			fmt.Fprintf(out, "Current phase:        %s\n", st.CurrentPhase)
			fmt.Fprintf(out, "Active milestones:    %d\n", st.ActiveMilestones)
			fmt.Fprintf(out, "Completed milestones: %d\n", st.CompletedMilestones)
			fmt.Fprintf(out, "History events:       %d\n", st.HistoryEvents)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "text", "Output format: text | json")
	return cmd
}

// ---------------------------------------------------------------------------
// context docs
// ---------------------------------------------------------------------------

func newDocs(ctx *shared.Context) *cobra.Command {
	var format string
	cmd := &cobra.Command{
		Use:   "docs",
		Short: "Export CONTEXT.md as PROJECT_DOCS.<format>",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			path, err := svc.Docs(format)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Documentation exported to %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "File extension of the exported docs")
	return cmd
}

// ---------------------------------------------------------------------------
// context insights
// ---------------------------------------------------------------------------

func newInsights(ctx *shared.Context) *cobra.Command {
	var trajectory bool
	var limit int
	cmd := &cobra.Command{
		Use:   "insights",
		Short: "Ask the configured model for recommendations on the project",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			rec, err := svc.Insights(cmd.Context(), trajectory, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if trajectory {
				fmt.Fprintln(out, "## Trajectory Insights")
			} else {
				fmt.Fprintln(out, "## Strategic Recommendations")
			}
			if rec.Error != "" {
				fmt.Fprintf(out, "Insights unavailable: %s\n", rec.Error)
				return nil
			}
			if len(rec.Items) == 0 {
				fmt.Fprintln(out, rec.Raw)
				return nil
			}
			for i, item := range rec.Items {
				fmt.Fprintf(out, "%d. %s\n", i+1, item)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&trajectory, "trajectory", false, "Analyse recent history instead of the current context")
	cmd.Flags().IntVar(&limit, "limit", 20, "History events to analyse with --trajectory")
	return cmd
}
