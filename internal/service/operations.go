package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/deps"
	"github.com/go-ports/contextmgr/internal/insights"
	"github.com/go-ports/contextmgr/internal/llm"
	"github.com/go-ports/contextmgr/internal/models"
	"github.com/go-ports/contextmgr/internal/notes"
	"github.com/go-ports/contextmgr/internal/onboarding"
	"github.com/go-ports/contextmgr/internal/search"
)

// lastCommitLayout is how Status renders the newest commit time.
const lastCommitLayout = "2006-01-02 15:04:05"

// ---------------------------------------------------------------------------
// Init
// ---------------------------------------------------------------------------

// InitResult reports what Init created.
type InitResult struct {
	ContextPath  string
	NotesPath    string
	NotesWritten bool
}

// Init writes the CONTEXT.md template next to the context document.
// An edited CONTEXT.md is kept unless force is set.
func (s *Service) Init(force bool) (*InitResult, error) {
	written, err := notes.Initialize(s.Root, "", s.now(), force)
	if err != nil {
		return nil, err
	}
	return &InitResult{
		ContextPath:  s.store.Path(),
		NotesPath:    notes.Path(s.Root),
		NotesWritten: written,
	}, nil
}

// ---------------------------------------------------------------------------
// Show
// ---------------------------------------------------------------------------

// ContextData returns the document as generic data with every key present,
// including ones this version does not model.
func (s *Service) ContextData() (map[string]any, error) {
	doc, err := s.store.Context()
	if err != nil {
		return nil, err
	}
	raw, err := yaml.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("service.ContextData: %w", err)
	}
	var out map[string]any
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("service.ContextData: %w", err)
	}
	return out, nil
}

// ---------------------------------------------------------------------------
// Update
// ---------------------------------------------------------------------------

// UpdateResult is the section appended to CONTEXT.md.
type UpdateResult struct {
	NotesPath string
	Section   string
}

// Update appends a "Recent Changes" section built from version control to
// CONTEXT.md and, with ai set, an insights section. Collaborator failures
// are written into the section instead of returned.
func (s *Service) Update(ctx context.Context, ai bool) (*UpdateResult, error) {
	doc, err := s.store.Context()
	if err != nil {
		return nil, err
	}
	now := s.now()

	summary, gitErr := s.git.Summary(ctx, s.Root, s.Config.Git.RecentCommits)
	var section string
	if gitErr != nil {
		slog.Warn("context update: version control unavailable", "err", gitErr)
		section = notes.RenderUnavailable(gitErr, now)
	} else {
		section = notes.RenderUpdate(summary, now)
	}

	if ai {
		section += insights.Section(ctx, s.generator(), s.redactor, insights.UpdatePrompt(doc, summary))
	}

	if err := notes.Append(s.Root, section); err != nil {
		return nil, err
	}
	s.record(ctx, models.EventContextUpdated, "CONTEXT.md updated", section)
	return &UpdateResult{NotesPath: notes.Path(s.Root), Section: section}, nil
}

// generator returns the configured generator, or one that reports why
// generation is unavailable.
func (s *Service) generator() llm.Generator {
	if s.gen == nil && s.genErr != nil {
		return unavailable{err: s.genErr}
	}
	return s.gen
}

type unavailable struct{ err error }

func (u unavailable) Generate(context.Context, string) (string, error) { return "", u.err }

// ---------------------------------------------------------------------------
// Status
// ---------------------------------------------------------------------------

// Status summarises repository and milestone state.
type Status struct {
	TotalCommits        int    `json:"total_commits"`
	ActiveBranch        string `json:"active_branch"`
	LastCommit          string `json:"last_commit"`
	DaysSinceStart      int    `json:"days_since_start"`
	CurrentPhase        string `json:"current_phase"`
	ActiveMilestones    int    `json:"active_milestones"`
	CompletedMilestones int    `json:"completed_milestones"`
	HistoryEvents       int    `json:"history_events"`
	VCSError            string `json:"vcs_error,omitempty"`
}

// Status reports project progress. A missing repository is reported in
// VCSError rather than returned.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	doc, err := s.store.Context()
	if err != nil {
		return nil, err
	}
	st := &Status{
		LastCommit:          "No commits",
		CurrentPhase:        doc.Development.CurrentPhase,
		ActiveMilestones:    len(doc.Development.Milestones),
		CompletedMilestones: len(doc.Development.CompletedMilestones),
	}
	if created := doc.Project.CreatedAt; !created.IsZero() {
		st.DaysSinceStart = int(math.Floor(s.now().Sub(created.Time).Hours() / 24))
	}
	if s.journal != nil {
		if st.HistoryEvents, err = s.journal.Count(""); err != nil {
			slog.Debug("status: journal count failed", "err", err)
		}
	}

	summary, err := s.git.Summary(ctx, s.Root, 1)
	if err != nil {
		st.VCSError = err.Error()
		return st, nil
	}
	st.TotalCommits = summary.TotalCommits
	st.ActiveBranch = summary.ActiveBranch
	if c := summary.LastCommit(); c != nil {
		st.LastCommit = c.When.Format(lastCommitLayout)
	}
	return st, nil
}

// ---------------------------------------------------------------------------
// Docs
// ---------------------------------------------------------------------------

// Docs exports CONTEXT.md as PROJECT_DOCS.<format> and returns the path.
func (s *Service) Docs(format string) (string, error) {
	if err := notes.Ensure(s.Root); err != nil {
		return "", err
	}
	return notes.ExportDocs(s.Root, format)
}

// ---------------------------------------------------------------------------
// Insights
// ---------------------------------------------------------------------------

// Insights asks for strategic recommendations, or with trajectory set for an
// analysis of the last limit journal events. Failures are reported in the
// result. Successful replies are journalled.
func (s *Service) Insights(ctx context.Context, trajectory bool, limit int) (insights.Recommendations, error) {
	now := s.now()
	var rec insights.Recommendations
	if trajectory {
		events, err := s.History(limit, "")
		if err != nil {
			return insights.Recommendations{}, err
		}
		ptrs := make([]*models.Event, len(events))
		for i := range events {
			ptrs[i] = &events[i]
		}
		rec = insights.Trajectory(ctx, s.generator(), s.redactor, ptrs, now)
	} else {
		doc, err := s.store.Context()
		if err != nil {
			return insights.Recommendations{}, err
		}
		rec = insights.Strategic(ctx, s.generator(), s.redactor, doc, now)
	}
	if rec.Error == "" {
		title := "Strategic recommendations"
		if trajectory {
			title = "Trajectory insights"
		}
		s.record(ctx, models.EventInsight, title, rec.Raw)
	}
	return rec, nil
}

// ---------------------------------------------------------------------------
// History / Search / Reindex
// ---------------------------------------------------------------------------

// History lists up to limit journal events, newest first.
func (s *Service) History(limit int, kind models.EventKind) ([]models.Event, error) {
	if s.journal == nil {
		return nil, ErrHistoryDisabled
	}
	return s.journal.Recent(limit, kind)
}

// PruneHistory drops journal events older than days and reports how many went.
func (s *Service) PruneHistory(days int) (int, error) {
	if s.journal == nil {
		return 0, ErrHistoryDisabled
	}
	if days < 0 {
		return 0, fmt.Errorf("service.PruneHistory: negative age %d", days)
	}
	return s.journal.Prune(s.now().AddDate(0, 0, -days))
}

// Search runs journal search in the configured semantic mode, falling back to
// keyword search when vectors are unavailable.
func (s *Service) Search(ctx context.Context, query string, limit int, kind models.EventKind) ([]search.Result, error) {
	if s.journal == nil {
		return nil, ErrHistoryDisabled
	}
	mode := s.Config.History.Semantic
	ep := s.emb
	if ep == nil || !s.vectorsAvailable() {
		mode = search.ModeNever
	}
	results, err := search.Run(ctx, s.journal, ep, mode, query, limit, kind)
	if err == nil {
		return results, nil
	}
	if mode == search.ModeNever {
		return nil, err
	}
	slog.Warn("search: semantic search failed, using keywords", "err", err)
	return search.Run(ctx, s.journal, nil, search.ModeNever, query, limit, kind)
}

// ReindexResult summarises a vector rebuild.
type ReindexResult struct {
	Count int
	Dim   int
	Model string
}

// Reindex rebuilds the vector table using the current embedder.
// progress is called with (current, total) after each event; may be nil.
func (s *Service) Reindex(ctx context.Context, progress func(current, total int)) (*ReindexResult, error) {
	if s.journal == nil {
		return nil, ErrHistoryDisabled
	}
	if s.emb == nil {
		return nil, errors.New("service.Reindex: no embedding provider configured")
	}

	probe, err := s.emb.Embed(ctx, "dimension probe")
	if err != nil {
		return nil, fmt.Errorf("service.Reindex: probe embed: %w", err)
	}
	dim := len(probe)

	if err := s.journal.DropVecTable(); err != nil {
		return nil, fmt.Errorf("service.Reindex: drop vec table: %w", err)
	}
	if err := s.journal.EnsureVecTable(dim); err != nil {
		return nil, fmt.Errorf("service.Reindex: create vec table: %w", err)
	}

	entries, err := s.journal.Entries()
	if err != nil {
		return nil, fmt.Errorf("service.Reindex: %w", err)
	}
	total := len(entries)
	for i, e := range entries {
		embedding, err := s.emb.Embed(ctx, e.Text)
		if err != nil {
			return nil, fmt.Errorf("service.Reindex: embed event: %w", err)
		}
		if err := s.journal.InsertVector(e.RowID, embedding); err != nil {
			return nil, fmt.Errorf("service.Reindex: insert vector: %w", err)
		}
		if progress != nil {
			progress(i+1, total)
		}
	}

	s.setVectorsOK(true)
	return &ReindexResult{Count: total, Dim: dim, Model: s.Config.Embedding.Model}, nil
}

// ---------------------------------------------------------------------------
// Dependencies
// ---------------------------------------------------------------------------

// DepsCheck compares the project's declared dependencies with the package
// index. index overrides the configured one ("auto", "goproxy" or "pypi").
func (s *Service) DepsCheck(ctx context.Context, index string) (*deps.Report, error) {
	if index == "" {
		index = s.Config.Deps.Index
	}
	pkgs, eco, err := deps.Installed(s.Root, deps.EcosystemForIndex(index))
	if err != nil {
		return nil, err
	}
	idx := s.index
	if idx == nil {
		if idx, err = deps.NewIndex(s.Config, eco); err != nil {
			return nil, err
		}
	}
	return deps.Check(ctx, idx, eco, pkgs), nil
}

// ---------------------------------------------------------------------------
// Onboarding
// ---------------------------------------------------------------------------

// OnboardResult reports what Onboard wrote.
type OnboardResult struct {
	Blueprint     *onboarding.Blueprint
	BlueprintPath string
	Seeded        []string
	// Warning explains why the strategy is empty, if it is.
	Warning string
}

// Onboard asks p for every field missing from preset, generates a strategy,
// writes PROJECT_BLUEPRINT.yaml and, with seed set, adds the strategy's
// milestones to the context document.
func (s *Service) Onboard(ctx context.Context, p *onboarding.Prompter, preset onboarding.Details, seed bool) (*OnboardResult, error) {
	details, err := onboarding.Gather(p, preset, onboarding.Defaults(s.Root))
	if err != nil {
		return nil, err
	}

	res := &OnboardResult{}
	strategy, err := onboarding.GenerateStrategy(ctx, s.generator(), s.redactor, details)
	if err != nil {
		slog.Warn("onboarding: strategy generation failed", "err", err)
		res.Warning = err.Error()
	}

	res.Blueprint = &onboarding.Blueprint{Project: details, DevelopmentStrategy: strategy}
	if res.BlueprintPath, err = onboarding.WriteBlueprint(s.Root, res.Blueprint); err != nil {
		return nil, err
	}
	s.record(ctx, models.EventOnboarded, details.Name, details.Description)

	if seed {
		for _, m := range strategy.MilestoneDescriptions() {
			if err := s.AddMilestone(ctx, m); err != nil {
				return res, err
			}
			res.Seeded = append(res.Seeded, m)
		}
	}
	return res, nil
}
