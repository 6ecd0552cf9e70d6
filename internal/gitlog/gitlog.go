// Package gitlog summarises a project's version-control history by shelling out to git.
package gitlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

// ErrNotRepository is returned when the directory is not inside a git work tree.
var ErrNotRepository = errors.New("not a git repository")

// Commit is one entry of the log.
type Commit struct {
	Hash    string    `json:"hash"`
	Summary string    `json:"summary"`
	Author  string    `json:"author"`
	When    time.Time `json:"when"`
}

// Summary is the snapshot of repository state used by context updates and status.
type Summary struct {
	TotalCommits int      `json:"total_commits"`
	Recent       []Commit `json:"recent"`
	ActiveBranch string   `json:"active_branch"`
	BranchCount  int      `json:"branch_count"`
}

// LastCommit returns the newest commit, or nil for a repository without commits.
func (s *Summary) LastCommit() *Commit {
	if len(s.Recent) == 0 {
		return nil
	}
	return &s.Recent[0]
}

// Reader produces repository summaries.
type Reader interface {
	Summary(ctx context.Context, dir string, recent int) (*Summary, error)
}

// CLI is a Reader backed by the git executable.
type CLI struct {
	// Binary is the git executable; empty means "git" from PATH.
	Binary string
}

// NewCLI returns a CLI reader using git from PATH.
func NewCLI() *CLI {
	return &CLI{Binary: "git"}
}

const fieldSep = "\x1f"

// Summary collects commit count, the newest recent commits and branch facts for dir.
func (g *CLI) Summary(ctx context.Context, dir string, recent int) (*Summary, error) {
	if _, err := g.run(ctx, dir, "rev-parse", "--is-inside-work-tree"); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("gitlog.Summary: %s: %w", dir, ErrNotRepository)
		}
		return nil, fmt.Errorf("gitlog.Summary: %w", err)
	}

	s := &Summary{Recent: []Commit{}}

	branch, err := g.run(ctx, dir, "symbolic-ref", "--quiet", "--short", "HEAD")
	if err != nil {
		s.ActiveBranch = "HEAD (detached)"
	} else {
		s.ActiveBranch = branch
	}

	branches, err := g.run(ctx, dir, "for-each-ref", "--format=%(refname:short)", "refs/heads")
	if err != nil {
		return nil, fmt.Errorf("gitlog.Summary: branches: %w", err)
	}
	s.BranchCount = countLines(branches)

	if _, err := g.run(ctx, dir, "rev-parse", "--verify", "--quiet", "HEAD"); err != nil {
		// Unborn branch: no commits yet.
		return s, nil
	}

	count, err := g.run(ctx, dir, "rev-list", "--count", "HEAD")
	if err != nil {
		return nil, fmt.Errorf("gitlog.Summary: count: %w", err)
	}
	s.TotalCommits, err = strconv.Atoi(count)
	if err != nil {
		return nil, fmt.Errorf("gitlog.Summary: count %q: %w", count, err)
	}

	if recent <= 0 {
		return s, nil
	}
	format := strings.Join([]string{"%H", "%s", "%an", "%cI"}, fieldSep)
	out, err := g.run(ctx, dir, "log", "-n", strconv.Itoa(recent), "--format="+format)
	if err != nil {
		return nil, fmt.Errorf("gitlog.Summary: log: %w", err)
	}
	s.Recent, err = parseLog(out)
	if err != nil {
		return nil, fmt.Errorf("gitlog.Summary: %w", err)
	}
	return s, nil
}

func (g *CLI) run(ctx context.Context, dir string, args ...string) (string, error) {
	bin := g.Binary
	if bin == "" {
		bin = "git"
	}
	cmd := exec.CommandContext(ctx, bin, args...) // #nosec G204 -- fixed git subcommands
	cmd.Dir = dir
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return "", fmt.Errorf("git %s: %w: %s", args[0], err, msg)
		}
		return "", fmt.Errorf("git %s: %w", args[0], err)
	}
	return strings.TrimSpace(string(out)), nil
}

func parseLog(out string) ([]Commit, error) {
	commits := []Commit{}
	for _, line := range strings.Split(out, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		parts := strings.SplitN(line, fieldSep, 4)
		if len(parts) != 4 {
			return nil, fmt.Errorf("unexpected log line %q", line)
		}
		when, err := time.Parse(time.RFC3339, parts[3])
		if err != nil {
			return nil, fmt.Errorf("commit %s date: %w", parts[0], err)
		}
		commits = append(commits, Commit{
			Hash:    parts[0],
			Summary: parts[1],
			Author:  parts[2],
			When:    when,
		})
	}
	return commits, nil
}

func countLines(s string) int {
	n := 0
	for _, line := range strings.Split(s, "\n") {
		if strings.TrimSpace(line) != "" {
			n++
		}
	}
	return n
}
