package notes_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/contextmgr/internal/gitlog"
	"github.com/go-ports/contextmgr/internal/notes"
)

var day = time.Date(2024, 3, 9, 15, 0, 0, 0, time.UTC)

func read(c *qt.C, root string) string {
	c.Helper()
	s, err := notes.Read(root)
	c.Assert(err, qt.IsNil)
	return s
}

func TestEnsure(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	c.Assert(notes.Ensure(root), qt.IsNil)
	c.Assert(read(c, root), qt.Equals, "# Project Context\n")

	c.Assert(os.WriteFile(notes.Path(root), []byte("custom\n"), 0o644), qt.IsNil)
	c.Assert(notes.Ensure(root), qt.IsNil)
	c.Assert(read(c, root), qt.Equals, "custom\n")
}

func TestInitialize_HappyPath(t *testing.T) {
	c := qt.New(t)

	c.Run("default template gets the start date", func(c *qt.C) {
		root := c.TempDir()
		written, err := notes.Initialize(root, "", day, false)
		c.Assert(err, qt.IsNil)
		c.Assert(written, qt.IsTrue)

		got := read(c, root)
		c.Assert(got, qt.Contains, "- Start Date: 2024-03-09\n")
		c.Assert(got, qt.Contains, "## Development Strategy\n1. Initial Setup\n")
		c.Assert(got, qt.Not(qt.Contains), "{start_date}")
	})

	c.Run("bare heading is replaced", func(c *qt.C) {
		root := c.TempDir()
		c.Assert(notes.Ensure(root), qt.IsNil)
		written, err := notes.Initialize(root, "started {start_date}\n", day, false)
		c.Assert(err, qt.IsNil)
		c.Assert(written, qt.IsTrue)
		c.Assert(read(c, root), qt.Equals, "started 2024-03-09\n")
	})

	c.Run("existing notes are kept without force", func(c *qt.C) {
		root := c.TempDir()
		c.Assert(os.WriteFile(notes.Path(root), []byte("# Mine\nhands off\n"), 0o644), qt.IsNil)

		written, err := notes.Initialize(root, "", day, false)
		c.Assert(err, qt.IsNil)
		c.Assert(written, qt.IsFalse)
		c.Assert(read(c, root), qt.Equals, "# Mine\nhands off\n")

		written, err = notes.Initialize(root, "fresh\n", day, true)
		c.Assert(err, qt.IsNil)
		c.Assert(written, qt.IsTrue)
		c.Assert(read(c, root), qt.Equals, "fresh\n")
	})
}

func TestRenderUpdate(t *testing.T) {
	c := qt.New(t)

	s := &gitlog.Summary{
		TotalCommits: 42,
		Recent: []gitlog.Commit{
			{Summary: "Add milestone tracking"},
			{Summary: "Fix typo"},
		},
		ActiveBranch: "main",
		BranchCount:  3,
	}
	want := "\n## Recent Changes (2024-03-09)\n" +
		"42 total commits\n\n" +
		"### Last 2 Commits:\n" +
		"- Add milestone tracking\n" +
		"- Fix typo\n\n" +
		"### Repository Statistics\n" +
		"- Total Branches: 3\n" +
		"- Active Branch: main\n"
	c.Assert(notes.RenderUpdate(s, day), qt.Equals, want)
}

func TestRenderUnavailable(t *testing.T) {
	c := qt.New(t)

	got := notes.RenderUnavailable(errors.New("not a git repository"), day)
	c.Assert(got, qt.Equals, "\n## Recent Changes (2024-03-09)\nVersion control history unavailable: not a git repository\n")
}

func TestAppend(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	c.Assert(notes.Append(root, "\n## One\n"), qt.IsNil)
	c.Assert(notes.Append(root, "\n## Two\n"), qt.IsNil)
	c.Assert(read(c, root), qt.Equals, "# Project Context\n\n## One\n\n## Two\n")
}

func TestExportDocs_HappyPath(t *testing.T) {
	c := qt.New(t)

	root := c.TempDir()
	c.Assert(notes.Append(root, "\n## Body\n"), qt.IsNil)

	out, err := notes.ExportDocs(root, "markdown")
	c.Assert(err, qt.IsNil)
	c.Assert(out, qt.Equals, filepath.Join(root, "PROJECT_DOCS.markdown"))
	data, err := os.ReadFile(out)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Equals, read(c, root))
}

func TestExportDocs_FailurePath(t *testing.T) {
	c := qt.New(t)

	c.Run("format cannot escape the project", func(c *qt.C) {
		_, err := notes.ExportDocs(c.TempDir(), "../../etc")
		c.Assert(err, qt.ErrorMatches, `notes.ExportDocs: invalid format .*`)
	})

	c.Run("missing notes", func(c *qt.C) {
		_, err := notes.ExportDocs(c.TempDir(), "md")
		c.Assert(err, qt.ErrorIs, os.ErrNotExist)
	})
}
