package service_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/contextmgr/internal/config"
	"github.com/go-ports/contextmgr/internal/contextstore"
	"github.com/go-ports/contextmgr/internal/gitlog"
	"github.com/go-ports/contextmgr/internal/models"
	"github.com/go-ports/contextmgr/internal/onboarding"
	"github.com/go-ports/contextmgr/internal/service"
)

type fakeGit struct {
	summary   *gitlog.Summary
	err       error
	gotRecent int
}

func (f *fakeGit) Summary(_ context.Context, _ string, recent int) (*gitlog.Summary, error) {
	f.gotRecent = recent
	return f.summary, f.err
}

type stubGen struct {
	reply string
	err   error
	calls int
}

func (s *stubGen) Generate(context.Context, string) (string, error) {
	s.calls++
	return s.reply, s.err
}

type stubEmbedder struct{}

func (stubEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.Contains(text, "deploy") {
		return []float32{0, 1, 0}, nil
	}
	return []float32{1, 0, 0}, nil
}

func (e stubEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i], _ = e.Embed(ctx, t)
	}
	return out, nil
}

type fakeIndex map[string]string

func (f fakeIndex) Latest(_ context.Context, name string) (string, error) {
	v, ok := f[name]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

var base = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)

func sampleSummary() *gitlog.Summary {
	return &gitlog.Summary{
		TotalCommits: 3,
		ActiveBranch: "main",
		BranchCount:  2,
		Recent: []gitlog.Commit{
			{Hash: "c3", Summary: "feat: add status", When: base.Add(2 * time.Hour)},
			{Hash: "c2", Summary: "fix: lock reclaim", When: base.Add(time.Hour)},
		},
	}
}

// newTestService opens a Service over a fresh project directory with a
// controllable clock. Extra options are applied after the defaults.
func newTestService(c *qt.C, opts ...service.Option) (*service.Service, *time.Time) {
	c.Helper()
	now := base
	cfg := config.Default()
	cfg.LLM.Provider = "none"
	all := append([]service.Option{
		service.WithClock(func() time.Time { return now }),
		service.WithGitReader(&fakeGit{summary: sampleSummary()}),
		service.WithGenerator(nil),
	}, opts...)
	svc, err := service.New(filepath.Join(c.TempDir(), "demo"), cfg, all...)
	c.Assert(err, qt.IsNil)
	c.Cleanup(func() { _ = svc.Close() })
	return svc, &now
}

func TestNew_HappyPath(t *testing.T) {
	c := qt.New(t)

	svc, _ := newTestService(c)
	c.Assert(svc.ContextPath(), qt.Equals, filepath.Join(svc.Root, ".context", "GLOBAL_CONTEXT.yaml"))
	_, err := os.Stat(filepath.Join(svc.Root, ".context", "history.db"))
	c.Assert(err, qt.IsNil)

	doc, err := svc.Context()
	c.Assert(err, qt.IsNil)
	c.Assert(doc.Project.Name, qt.Equals, "demo")
	c.Assert(doc.Development.CurrentPhase, qt.Equals, models.DefaultPhase)
}

func TestNew_FailurePath(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	c.Assert(os.WriteFile(filepath.Join(root, ".context"), []byte("x"), 0o644), qt.IsNil)
	_, err := service.New(root, config.Default(), service.WithGenerator(nil))
	c.Assert(err, qt.ErrorIs, contextstore.ErrStorageUnavailable)
}

func TestMilestones_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()
	svc, now := newTestService(c)

	doc, err := svc.Track(ctx, "Set up CI")
	c.Assert(err, qt.IsNil)
	c.Assert(doc.ActiveLabels(), qt.DeepEquals, []string{"Set up CI"})

	*now = base.Add(time.Minute)
	c.Assert(svc.AddMilestone(ctx, "Write docs"), qt.IsNil)

	c.Run("completing an active milestone", func(c *qt.C) {
		found, err := svc.CompleteMilestone(ctx, "Set up CI")
		c.Assert(err, qt.IsNil)
		c.Assert(found, qt.IsTrue)
	})

	c.Run("completing a missing milestone is a no-op", func(c *qt.C) {
		found, err := svc.CompleteMilestone(ctx, "set up ci")
		c.Assert(err, qt.IsNil)
		c.Assert(found, qt.IsFalse)
	})

	c.Assert(svc.UpdatePhase(ctx, "development"), qt.IsNil)

	active, err := svc.Milestones(false)
	c.Assert(err, qt.IsNil)
	c.Assert(active, qt.DeepEquals, []string{"Write docs"})
	done, err := svc.Milestones(true)
	c.Assert(err, qt.IsNil)
	c.Assert(done, qt.DeepEquals, []string{"Set up CI"})

	c.Run("every effective mutation is journalled", func(c *qt.C) {
		events, err := svc.History(10, "")
		c.Assert(err, qt.IsNil)
		kinds := make([]models.EventKind, len(events))
		for i, e := range events {
			kinds[i] = e.Kind
		}
		c.Assert(kinds, qt.DeepEquals, []models.EventKind{
			models.EventPhaseUpdated,
			models.EventMilestoneCompleted,
			models.EventMilestoneAdded,
			models.EventMilestoneAdded,
		})
		c.Assert(events[0].Project, qt.Equals, "demo")
	})

	c.Run("track without a milestone only reads", func(c *qt.C) {
		doc, err := svc.Track(ctx, "")
		c.Assert(err, qt.IsNil)
		c.Assert(doc.Development.CurrentPhase, qt.Equals, "development")
	})
}

func TestMilestones_FailurePath(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService(c)

	_, err := svc.Track(context.Background(), "   ")
	c.Assert(err, qt.ErrorIs, contextstore.ErrEmptyDescription)

	events, err := svc.History(10, "")
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 0)
}

func TestJournalFailureDoesNotBlockMutations(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	c.Assert(os.MkdirAll(filepath.Join(root, ".context", "history.db"), 0o755), qt.IsNil)
	cfg := config.Default()
	svc, err := service.New(root, cfg, service.WithGenerator(nil))
	c.Assert(err, qt.IsNil)
	defer svc.Close()

	c.Assert(svc.AddMilestone(context.Background(), "still works"), qt.IsNil)
	active, err := svc.Milestones(false)
	c.Assert(err, qt.IsNil)
	c.Assert(active, qt.DeepEquals, []string{"still works"})

	_, err = svc.History(5, "")
	c.Assert(err, qt.ErrorIs, service.ErrHistoryDisabled)
}

func TestHistoryDisabled(t *testing.T) {
	c := qt.New(t)

	cfg := config.Default()
	cfg.History.Enabled = false
	svc, err := service.New(c.TempDir(), cfg, service.WithGenerator(nil))
	c.Assert(err, qt.IsNil)
	defer svc.Close()

	c.Assert(svc.AddMilestone(context.Background(), "m"), qt.IsNil)
	_, err = svc.Search(context.Background(), "m", 5, "")
	c.Assert(err, qt.ErrorIs, service.ErrHistoryDisabled)
	_, err = os.Stat(filepath.Join(svc.Root, ".context", "history.db"))
	c.Assert(errors.Is(err, os.ErrNotExist), qt.IsTrue)
}

func TestUpdate_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("recent changes from version control", func(c *qt.C) {
		git := &fakeGit{summary: sampleSummary()}
		svc, _ := newTestService(c, service.WithGitReader(git))

		res, err := svc.Update(ctx, false)
		c.Assert(err, qt.IsNil)
		c.Assert(git.gotRecent, qt.Equals, 5)
		c.Assert(res.Section, qt.Equals, "\n## Recent Changes (2024-01-15)\n3 total commits\n\n"+
			"### Last 2 Commits:\n- feat: add status\n- fix: lock reclaim\n\n"+
			"### Repository Statistics\n- Total Branches: 2\n- Active Branch: main\n")

		data, err := os.ReadFile(res.NotesPath)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Equals, "# Project Context\n"+res.Section)

		events, err := svc.History(1, models.EventContextUpdated)
		c.Assert(err, qt.IsNil)
		c.Assert(events, qt.HasLen, 1)
	})

	c.Run("ai insights are appended", func(c *qt.C) {
		gen := &stubGen{reply: "1. Add tests\n"}
		svc, _ := newTestService(c, service.WithGenerator(gen))

		res, err := svc.Update(ctx, true)
		c.Assert(err, qt.IsNil)
		c.Assert(gen.calls, qt.Equals, 1)
		c.Assert(strings.HasSuffix(res.Section, "\n### AI Development Insights\n1. Add tests\n"), qt.IsTrue)
	})

	c.Run("generator failure is written into the section", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGenerator(&stubGen{err: errors.New("rate limited")}))

		res, err := svc.Update(ctx, true)
		c.Assert(err, qt.IsNil)
		c.Assert(strings.HasSuffix(res.Section, "\n### AI Insights Error\nrate limited\n"), qt.IsTrue)
	})

	c.Run("no generator configured", func(c *qt.C) {
		svc, _ := newTestService(c)

		res, err := svc.Update(ctx, true)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Section, qt.Contains, "### AI Insights Error\ntext generation is not configured")
	})

	c.Run("missing api key is reported", func(c *qt.C) {
		cfg := config.Default()
		cfg.LLM.APIKey = ""
		svc, err := service.New(c.TempDir(), cfg, service.WithGitReader(&fakeGit{summary: sampleSummary()}))
		c.Assert(err, qt.IsNil)
		defer svc.Close()

		res, err := svc.Update(ctx, true)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Section, qt.Contains, "### AI Insights Error\nllm: provider requires an API key")
	})

	c.Run("version control failure is written into the section", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGitReader(&fakeGit{err: gitlog.ErrNotRepository}))

		res, err := svc.Update(ctx, false)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Section, qt.Equals, "\n## Recent Changes (2024-01-15)\nVersion control history unavailable: not a git repository\n")
	})
}

func TestCompleteMilestone_ConcurrentWriter(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	svc, _ := newTestService(c)
	c.Assert(svc.AddMilestone(ctx, "Ship"), qt.IsNil)

	// Another writer completes the milestone between our reads.
	other, err := contextstore.Open(svc.Root)
	c.Assert(err, qt.IsNil)
	found, err := other.CompleteMilestone("Ship")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsTrue)

	found, err = svc.CompleteMilestone(ctx, "Ship")
	c.Assert(err, qt.IsNil)
	c.Assert(found, qt.IsFalse)

	events, err := svc.History(10, models.EventMilestoneCompleted)
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 0)
}

func TestStatus_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	svc, now := newTestService(c)
	c.Assert(svc.AddMilestone(ctx, "a"), qt.IsNil)
	c.Assert(svc.AddMilestone(ctx, "b"), qt.IsNil)
	_, err := svc.CompleteMilestone(ctx, "a")
	c.Assert(err, qt.IsNil)
	*now = base.Add(3*24*time.Hour + time.Hour)

	st, err := svc.Status(ctx)
	c.Assert(err, qt.IsNil)
	c.Assert(st, qt.DeepEquals, &service.Status{
		TotalCommits:        3,
		ActiveBranch:        "main",
		LastCommit:          "2024-01-15 12:30:00",
		DaysSinceStart:      3,
		CurrentPhase:        "initialization",
		ActiveMilestones:    1,
		CompletedMilestones: 1,
		HistoryEvents:       3,
	})

	c.Run("outside a repository", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGitReader(&fakeGit{err: gitlog.ErrNotRepository}))
		st, err := svc.Status(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(st.LastCommit, qt.Equals, "No commits")
		c.Assert(st.VCSError, qt.Equals, "not a git repository")
	})

	c.Run("repository without commits", func(c *qt.C) {
		empty := &gitlog.Summary{ActiveBranch: "main", BranchCount: 0, Recent: []gitlog.Commit{}}
		svc, _ := newTestService(c, service.WithGitReader(&fakeGit{summary: empty}))
		st, err := svc.Status(ctx)
		c.Assert(err, qt.IsNil)
		c.Assert(st.TotalCommits, qt.Equals, 0)
		c.Assert(st.LastCommit, qt.Equals, "No commits")
		c.Assert(st.VCSError, qt.Equals, "")
	})
}

func TestPruneHistory(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	svc, now := newTestService(c)
	c.Assert(svc.AddMilestone(ctx, "old"), qt.IsNil)
	*now = base.AddDate(0, 0, 30)
	c.Assert(svc.AddMilestone(ctx, "new"), qt.IsNil)

	n, err := svc.PruneHistory(7)
	c.Assert(err, qt.IsNil)
	c.Assert(n, qt.Equals, 1)

	events, err := svc.History(10, "")
	c.Assert(err, qt.IsNil)
	c.Assert(events, qt.HasLen, 1)
	c.Assert(events[0].Title, qt.Equals, "new")

	c.Run("negative age", func(c *qt.C) {
		_, err := svc.PruneHistory(-1)
		c.Assert(err, qt.ErrorMatches, `service.PruneHistory: negative age -1`)
	})

	c.Run("journal disabled", func(c *qt.C) {
		cfg := config.Default()
		cfg.History.Enabled = false
		svc, err := service.New(c.TempDir(), cfg, service.WithGenerator(nil))
		c.Assert(err, qt.IsNil)
		defer svc.Close()
		_, err = svc.PruneHistory(7)
		c.Assert(err, qt.ErrorIs, service.ErrHistoryDisabled)
	})
}

func TestInitAndDocs_HappyPath(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService(c)

	res, err := svc.Init(false)
	c.Assert(err, qt.IsNil)
	c.Assert(res.NotesWritten, qt.IsTrue)
	data, err := os.ReadFile(res.NotesPath)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, "- Start Date: 2024-01-15")

	c.Run("init keeps edited notes", func(c *qt.C) {
		res, err := svc.Init(false)
		c.Assert(err, qt.IsNil)
		c.Assert(res.NotesWritten, qt.IsFalse)
	})

	path, err := svc.Docs("markdown")
	c.Assert(err, qt.IsNil)
	c.Assert(path, qt.Equals, filepath.Join(svc.Root, "PROJECT_DOCS.markdown"))
	exported, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(exported, qt.DeepEquals, data)

	c.Run("invalid format", func(c *qt.C) {
		_, err := svc.Docs("../x")
		c.Assert(err, qt.ErrorMatches, `notes.ExportDocs: invalid format "../x"`)
	})
}

func TestInsights_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("strategic", func(c *qt.C) {
		gen := &stubGen{reply: "Overview\n1. Split packages\n2. Add CI\n"}
		svc, _ := newTestService(c, service.WithGenerator(gen))

		rec, err := svc.Insights(ctx, false, 10)
		c.Assert(err, qt.IsNil)
		c.Assert(rec.Items, qt.DeepEquals, []string{"1. Split packages", "2. Add CI"})
		c.Assert(rec.Error, qt.Equals, "")
		c.Assert(rec.Timestamp, qt.Equals, "2024-01-15T10:30:00Z")

		events, err := svc.History(1, models.EventInsight)
		c.Assert(err, qt.IsNil)
		c.Assert(events, qt.HasLen, 1)
		c.Assert(events[0].Body, qt.Contains, "Split packages")
	})

	c.Run("trajectory", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGenerator(&stubGen{reply: "- steady progress"}))
		c.Assert(svc.AddMilestone(ctx, "a"), qt.IsNil)

		rec, err := svc.Insights(ctx, true, 10)
		c.Assert(err, qt.IsNil)
		c.Assert(rec.Items, qt.DeepEquals, []string{"- steady progress"})
	})

	c.Run("failure is reported in the result", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGenerator(&stubGen{err: errors.New("boom")}))

		rec, err := svc.Insights(ctx, false, 10)
		c.Assert(err, qt.IsNil)
		c.Assert(rec.Error, qt.Equals, "boom")
		c.Assert(rec.Items, qt.HasLen, 0)

		n, err := svc.History(10, models.EventInsight)
		c.Assert(err, qt.IsNil)
		c.Assert(n, qt.HasLen, 0)
	})
}

func TestSearch_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	c.Run("keyword search without embeddings", func(c *qt.C) {
		svc, _ := newTestService(c)
		c.Assert(svc.AddMilestone(ctx, "Set up continuous integration"), qt.IsNil)
		c.Assert(svc.AddMilestone(ctx, "Write docs"), qt.IsNil)

		results, err := svc.Search(ctx, "integration", 5, "")
		c.Assert(err, qt.IsNil)
		c.Assert(results, qt.HasLen, 1)
		c.Assert(results[0].Title, qt.Equals, "Set up continuous integration")
	})

	c.Run("semantic hits merge with keyword hits", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithEmbedder(stubEmbedder{}))
		c.Assert(svc.AddMilestone(ctx, "Ship to production"), qt.IsNil)
		c.Assert(svc.AddMilestone(ctx, "Write docs"), qt.IsNil)

		results, err := svc.Search(ctx, "deploy", 5, "")
		c.Assert(err, qt.IsNil)
		c.Assert(len(results) > 0, qt.IsTrue)

		res, err := svc.Reindex(ctx, nil)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Count, qt.Equals, 2)
		c.Assert(res.Dim, qt.Equals, 3)
	})
}

func TestReindex_FailurePath(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService(c)

	_, err := svc.Reindex(context.Background(), nil)
	c.Assert(err, qt.ErrorMatches, "service.Reindex: no embedding provider configured")
}

func TestDepsCheck_HappyPath(t *testing.T) {
	c := qt.New(t)

	svc, _ := newTestService(c, service.WithIndex(fakeIndex{
		"github.com/spf13/cobra": "v1.10.2",
		"gopkg.in/yaml.v3":       "v3.0.1",
	}))
	gomod := "module example.com/demo\n\ngo 1.22\n\nrequire (\n" +
		"\tgithub.com/spf13/cobra v1.8.0\n" +
		"\tgopkg.in/yaml.v3 v3.0.1\n" +
		"\tgithub.com/gone/away v0.1.0\n" +
		")\n"
	c.Assert(os.WriteFile(filepath.Join(svc.Root, "go.mod"), []byte(gomod), 0o644), qt.IsNil)

	report, err := svc.DepsCheck(context.Background(), "")
	c.Assert(err, qt.IsNil)
	c.Assert(report.Ecosystem, qt.Equals, "go")
	c.Assert(report.InstalledPackages, qt.HasLen, 3)
	c.Assert(report.UpdatesAvailable, qt.HasLen, 1)
	c.Assert(report.UpdatesAvailable["github.com/spf13/cobra"].Latest, qt.Equals, "v1.10.2")
	c.Assert(report.Skipped, qt.HasLen, 1)

	c.Run("no manifest", func(c *qt.C) {
		svc, _ := newTestService(c)
		_, err := svc.DepsCheck(context.Background(), "")
		c.Assert(err, qt.Not(qt.IsNil))
	})
}

func TestOnboard_HappyPath(t *testing.T) {
	c := qt.New(t)
	ctx := context.Background()

	reply := "Phase 1: Foundations\nKey milestones:\n- Milestone 1: CLI skeleton\n- Major goal: public beta\n"
	svc, _ := newTestService(c, service.WithGenerator(&stubGen{reply: reply}))

	var out strings.Builder
	p := onboarding.NewPrompter(strings.NewReader(""), &out)
	preset := onboarding.Details{Name: "Atlas", Type: "CLI Tool"}

	res, err := svc.Onboard(ctx, p, preset, true)
	c.Assert(err, qt.IsNil)
	c.Assert(res.Warning, qt.Equals, "")
	c.Assert(res.BlueprintPath, qt.Equals, filepath.Join(svc.Root, "PROJECT_BLUEPRINT.yaml"))
	c.Assert(res.Blueprint.Project.Name, qt.Equals, "Atlas")
	c.Assert(res.Blueprint.Project.Domain, qt.Equals, "General")
	c.Assert(res.Seeded, qt.DeepEquals, []string{"Milestone 1: CLI skeleton", "Major goal: public beta"})

	active, err := svc.Milestones(false)
	c.Assert(err, qt.IsNil)
	c.Assert(active, qt.DeepEquals, res.Seeded)

	c.Run("generation failure writes an empty strategy", func(c *qt.C) {
		svc, _ := newTestService(c, service.WithGenerator(&stubGen{err: errors.New("offline")}))
		p := onboarding.NewPrompter(strings.NewReader(""), &out)

		res, err := svc.Onboard(ctx, p, onboarding.Details{}, true)
		c.Assert(err, qt.IsNil)
		c.Assert(res.Warning, qt.Equals, "onboarding.GenerateStrategy: offline")
		c.Assert(res.Seeded, qt.HasLen, 0)
		data, err := os.ReadFile(res.BlueprintPath)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Contains, "development_strategy: {}")
	})
}

func TestContextData_HappyPath(t *testing.T) {
	c := qt.New(t)
	svc, _ := newTestService(c)
	c.Assert(svc.AddMilestone(context.Background(), "Set up CI"), qt.IsNil)

	data, err := svc.ContextData()
	c.Assert(err, qt.IsNil)
	project := data["project"].(map[string]any)
	c.Assert(project["name"], qt.Equals, "demo")
	c.Assert(project["created_at"], qt.Equals, "2024-01-15T10:30:00Z")
	dev := data["development"].(map[string]any)
	ms := dev["milestones"].([]any)
	c.Assert(ms, qt.HasLen, 1)
	c.Assert(ms[0].(map[string]any)["description"], qt.Equals, "Set up CI")
}
