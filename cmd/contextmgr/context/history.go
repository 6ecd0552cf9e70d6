package contextcmd

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/go-ports/contextmgr/cmd/contextmgr/shared"
	"github.com/go-ports/contextmgr/internal/models"
)

const dateLayout = "2006-01-02 15:04"

// ---------------------------------------------------------------------------
// context history
// ---------------------------------------------------------------------------

func newHistory(ctx *shared.Context) *cobra.Command {
	var limit int
	var kind string
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent changes from the history journal",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			events, err := svc.History(limit, k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(events) == 0 {
				fmt.Fprintln(out, "No history yet.")
				return nil
			}
			for _, e := range events {
				fmt.Fprintf(out, "- [%s] %s: %s\n", e.CreatedAt.Local().Format(dateLayout), e.Kind, e.Title)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of events")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by event kind ("+kindList()+")")
	return cmd
}

// ---------------------------------------------------------------------------
// context search
// ---------------------------------------------------------------------------

func newSearch(ctx *shared.Context) *cobra.Command {
	var limit int
	var kind string
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search the history journal by keyword or meaning",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			k, err := parseKind(kind)
			if err != nil {
				return err
			}
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			results, err := svc.Search(cmd.Context(), args[0], limit, k)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(results) == 0 {
				fmt.Fprintln(out, "No results found.")
				return nil
			}
			fmt.Fprintf(out, "Results (%d found)\n", len(results))
			for i, r := range results {
				fmt.Fprintf(out, "\n [%d] %s (score: %.2f)\n", i+1, r.Title, r.Score)
				fmt.Fprintf(out, "     %s | %s\n", r.Kind, r.CreatedAt.Local().Format(dateLayout))
				if r.Body != "" {
					fmt.Fprintf(out, "     %s\n", r.Body)
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 5, "Maximum number of results")
	cmd.Flags().StringVar(&kind, "kind", "", "Filter by event kind ("+kindList()+")")
	return cmd
}

// ---------------------------------------------------------------------------
// context reindex
// ---------------------------------------------------------------------------

func newReindex(ctx *shared.Context) *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild history vectors with the current embedding provider",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Reindexing history with %s/%s...\n",
				svc.Config.Embedding.Provider, svc.Config.Embedding.Model)

			result, err := svc.Reindex(cmd.Context(), func(current, total int) {
				fmt.Fprintf(out, "\r  %d/%d", current, total)
				if current == total {
					fmt.Fprintln(out)
				}
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "Re-indexed %d events with %s (%d dims)\n", result.Count, result.Model, result.Dim)
			return nil
		},
	}
}

// ---------------------------------------------------------------------------
// context prune
// ---------------------------------------------------------------------------

func newPrune(ctx *shared.Context) *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete history events older than --older-than days",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			svc, err := ctx.Service()
			if err != nil {
				return err
			}
			defer svc.Close()

			n, err := svc.PruneHistory(days)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d events older than %d days\n", n, days)
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "older-than", 90, "Age in days")
	return cmd
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func parseKind(s string) (models.EventKind, error) {
	k := models.EventKind(s)
	if s == "" || slices.Contains(models.ValidEventKinds, k) {
		return k, nil
	}
	return "", fmt.Errorf("unknown event kind %q (expected one of %s)", s, kindList())
}

func kindList() string {
	names := make([]string, len(models.ValidEventKinds))
	for i, k := range models.ValidEventKinds {
		names[i] = string(k)
	}
	return strings.Join(names, ", ")
}
