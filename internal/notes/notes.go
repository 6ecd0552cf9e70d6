// Package notes maintains the human-readable CONTEXT.md at the project root.
package notes

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/go-ports/contextmgr/internal/atomicfile"
	"github.com/go-ports/contextmgr/internal/gitlog"
)

// FileName is the notes file at the project root.
const FileName = "CONTEXT.md"

const header = "# Project Context\n"

// DefaultTemplate is written by Initialize when no template is given.
// {start_date} is replaced with the current date.
const DefaultTemplate = `
# Project Context

## Overview
- Project Name: 
- Description: 
- Start Date: {start_date}

## Development Strategy
1. Initial Setup
2. Core Feature Development
3. Testing and Refinement
4. Documentation
5. Deployment

## Key Stakeholders
- 

## Current Status
- Phase: Initial Setup
- Progress: 0%
`

// Path returns the notes path for projectRoot.
func Path(projectRoot string) string {
	return filepath.Join(projectRoot, FileName)
}

// Ensure creates the notes file with a bare heading if it does not exist.
func Ensure(projectRoot string) error {
	path := Path(projectRoot)
	if _, err := os.Stat(path); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("notes.Ensure: %w", err)
	}
	if err := atomicfile.WriteFile(path, []byte(header), 0o644); err != nil {
		return fmt.Errorf("notes.Ensure: %w", err)
	}
	return nil
}

// Initialize writes template (DefaultTemplate when empty) with the start date
// filled in. An existing file with content beyond the bare heading is kept
// unless force is set. It reports whether the file was written.
func Initialize(projectRoot, template string, now time.Time, force bool) (bool, error) {
	path := Path(projectRoot)
	existing, err := os.ReadFile(path)
	switch {
	case errors.Is(err, os.ErrNotExist):
	case err != nil:
		return false, fmt.Errorf("notes.Initialize: %w", err)
	case !force && strings.TrimSpace(string(existing)) != strings.TrimSpace(header):
		return false, nil
	}

	if template == "" {
		template = DefaultTemplate
	}
	content := strings.ReplaceAll(template, "{start_date}", now.Format("2006-01-02"))
	if err := atomicfile.WriteFile(path, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("notes.Initialize: %w", err)
	}
	return true, nil
}

// Read returns the notes content.
func Read(projectRoot string) (string, error) {
	data, err := os.ReadFile(Path(projectRoot))
	if err != nil {
		return "", fmt.Errorf("notes.Read: %w", err)
	}
	return string(data), nil
}

// Append adds section to the end of the notes file, creating it if needed.
func Append(projectRoot, section string) error {
	if err := Ensure(projectRoot); err != nil {
		return err
	}
	existing, err := Read(projectRoot)
	if err != nil {
		return err
	}
	if err := atomicfile.WriteFile(Path(projectRoot), []byte(existing+section), 0o644); err != nil {
		return fmt.Errorf("notes.Append: %w", err)
	}
	return nil
}

// RenderUpdate produces the "Recent Changes" block for a repository summary.
func RenderUpdate(s *gitlog.Summary, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("\n## Recent Changes (")
	sb.WriteString(now.Format("2006-01-02"))
	sb.WriteString(")\n")
	sb.WriteString(strconv.Itoa(s.TotalCommits))
	sb.WriteString(" total commits\n\n### Last ")
	sb.WriteString(strconv.Itoa(len(s.Recent)))
	sb.WriteString(" Commits:\n")
	for _, c := range s.Recent {
		sb.WriteString("- ")
		sb.WriteString(c.Summary)
		sb.WriteString("\n")
	}
	sb.WriteString("\n### Repository Statistics\n- Total Branches: ")
	sb.WriteString(strconv.Itoa(s.BranchCount))
	sb.WriteString("\n- Active Branch: ")
	sb.WriteString(s.ActiveBranch)
	sb.WriteString("\n")
	return sb.String()
}

// RenderUnavailable produces the "Recent Changes" block when history could not be read.
func RenderUnavailable(reason error, now time.Time) string {
	var sb strings.Builder
	sb.WriteString("\n## Recent Changes (")
	sb.WriteString(now.Format("2006-01-02"))
	sb.WriteString(")\nVersion control history unavailable: ")
	sb.WriteString(reason.Error())
	sb.WriteString("\n")
	return sb.String()
}

var formatRe = regexp.MustCompile(`^[A-Za-z0-9]+$`)

// ExportDocs copies the notes to PROJECT_DOCS.<format> and returns the new path.
func ExportDocs(projectRoot, format string) (string, error) {
	if !formatRe.MatchString(format) {
		return "", fmt.Errorf("notes.ExportDocs: invalid format %q", format)
	}
	content, err := Read(projectRoot)
	if err != nil {
		return "", fmt.Errorf("notes.ExportDocs: %w", err)
	}
	out := filepath.Join(projectRoot, "PROJECT_DOCS."+format)
	if err := atomicfile.WriteFile(out, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("notes.ExportDocs: %w", err)
	}
	return out, nil
}
