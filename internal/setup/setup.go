// Package setup registers and unregisters the contextmgr MCP server with
// supported coding agents (Claude Code, Cursor, Codex).
package setup

import (
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/go-ports/contextmgr/internal/atomicfile"
)

//go:embed skill.md
var skillMD []byte

// ServerName is the key the MCP server is registered under.
const ServerName = "contextmgr"

// Agent names accepted by Install and Uninstall.
const (
	AgentClaudeCode = "claude-code"
	AgentCursor     = "cursor"
	AgentCodex      = "codex"
)

// Agents lists the supported agent names.
var Agents = []string{AgentClaudeCode, AgentCursor, AgentCodex}

// ErrUnknownAgent is returned for an agent name not in Agents.
var ErrUnknownAgent = errors.New("unknown agent")

// Result lists the artifacts an Install or Uninstall changed.
type Result struct {
	Install bool
	Changed []string
}

// String renders the result the way the CLI prints it.
func (r Result) String() string {
	switch {
	case r.Install && len(r.Changed) == 0:
		return "Already installed"
	case len(r.Changed) == 0:
		return "Nothing to remove"
	case r.Install:
		return "Installed: " + strings.Join(r.Changed, ", ")
	default:
		return "Removed: " + strings.Join(r.Changed, ", ")
	}
}

// Install wires contextmgr into agent. home is the agent's config directory
// and defaults to the dot directory in the user's home. project only affects
// Claude Code, whose server entry then goes to .mcp.json beside home instead
// of ~/.claude.json. Every artifact is attempted; failures are joined.
//
//revive:disable:flag-parameter
func Install(agent, home string, project bool) (Result, error) {
	return apply(agent, home, project, true)
}

// Uninstall reverses Install, deleting files that end up empty.
func Uninstall(agent, home string, project bool) (Result, error) {
	return apply(agent, home, project, false)
}

func apply(agent, home string, project, install bool) (Result, error) {
	arts, err := artifacts(agent, home, project)
	if err != nil {
		return Result{}, err
	}
	res := Result{Install: install}
	var errs []error
	for _, a := range arts {
		step, verb := a.remove, " from "
		if install {
			step, verb = a.install, " in "
		}
		changed, err := step()
		if err != nil {
			errs = append(errs, fmt.Errorf("%s %s: %w", agent, a.name, err))
			continue
		}
		if !changed {
			continue
		}
		label := a.name
		if a.where != "" {
			label += verb + a.where
		}
		res.Changed = append(res.Changed, label)
	}
	return res, errors.Join(errs...)
}

// artifact is one edit that wires contextmgr into an agent.
type artifact struct {
	name    string
	where   string
	install func() (bool, error)
	remove  func() (bool, error)
}

func artifacts(agent, home string, project bool) ([]artifact, error) {
	switch agent {
	case AgentClaudeCode:
		if home == "" {
			home = DefaultClaudeHome()
		}
		mcp := serverEntry(homeDir(".claude.json"))
		mcp.where = "~/.claude.json"
		if project {
			mcp = serverEntry(filepath.Join(filepath.Dir(home), ".mcp.json"))
			mcp.where = ".mcp.json"
		}
		return []artifact{mcp, skill(home)}, nil
	case AgentCursor:
		if home == "" {
			home = DefaultCursorHome()
		}
		return []artifact{serverEntry(filepath.Join(home, "mcp.json"))}, nil
	case AgentCodex:
		if home == "" {
			home = DefaultCodexHome()
		}
		return []artifact{
			agentsSection(filepath.Join(home, "AGENTS.md")),
			tomlTable(filepath.Join(home, "config.toml")),
		}, nil
	}
	return nil, fmt.Errorf("%w: %q (expected one of %s)", ErrUnknownAgent, agent, strings.Join(Agents, ", "))
}

//revive:enable:flag-parameter

// DefaultClaudeHome returns ~/.claude.
func DefaultClaudeHome() string { return homeDir(".claude") }

// DefaultCursorHome returns ~/.cursor.
func DefaultCursorHome() string { return homeDir(".cursor") }

// DefaultCodexHome returns ~/.codex.
func DefaultCodexHome() string { return homeDir(".codex") }

func homeDir(name string) string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, name)
}

// writeFile creates the parent directory, then replaces path atomically.
func writeFile(path string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return atomicfile.WriteFile(path, data, 0o644)
}

// readOptional returns the file content, or nil when it does not exist.
func readOptional(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return data, err
}

// ---------------------------------------------------------------------------
// mcpServers entry (JSON)
// ---------------------------------------------------------------------------

var serverConfig = map[string]any{
	"type":    "stdio",
	"command": ServerName,
	"args":    []any{"mcp"},
}

// serverEntry manages mcpServers.contextmgr in a JSON settings file,
// leaving every other key untouched.
func serverEntry(path string) artifact {
	return artifact{
		name: "mcpServers",
		install: func() (bool, error) {
			return editJSON(path, func(doc map[string]any) bool {
				servers, _ := doc["mcpServers"].(map[string]any)
				if _, ok := servers[ServerName]; ok {
					return false
				}
				if servers == nil {
					servers = map[string]any{}
					doc["mcpServers"] = servers
				}
				servers[ServerName] = serverConfig
				return true
			})
		},
		remove: func() (bool, error) {
			return editJSON(path, func(doc map[string]any) bool {
				servers, _ := doc["mcpServers"].(map[string]any)
				if _, ok := servers[ServerName]; !ok {
					return false
				}
				delete(servers, ServerName)
				if len(servers) == 0 {
					delete(doc, "mcpServers")
				}
				return true
			})
		},
	}
}

// editJSON loads path as a JSON object (missing means empty), applies edit
// and writes the result back when edit reports a change. An object left
// empty deletes the file.
func editJSON(path string, edit func(map[string]any) bool) (bool, error) {
	data, err := readOptional(path)
	if err != nil {
		return false, err
	}
	doc := map[string]any{}
	if len(strings.TrimSpace(string(data))) > 0 {
		if err := json.Unmarshal(data, &doc); err != nil {
			return false, fmt.Errorf("parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	}
	if !edit(doc) {
		return false, nil
	}
	if len(doc) == 0 {
		return true, os.Remove(path)
	}
	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return false, err
	}
	return true, writeFile(path, append(out, '\n'))
}

// ---------------------------------------------------------------------------
// [mcp_servers.contextmgr] table (TOML)
// ---------------------------------------------------------------------------

const tomlHeader = "[mcp_servers." + ServerName + "]"

const tomlBody = "command = \"" + ServerName + "\"\nargs = [\"mcp\"]\n"

// tomlTable manages the contextmgr table in a TOML config by line edits,
// so comments and formatting elsewhere survive.
func tomlTable(path string) artifact {
	return artifact{
		name: "config.toml",
		install: func() (bool, error) {
			data, err := readOptional(path)
			if err != nil {
				return false, err
			}
			lines := strings.Split(string(data), "\n")
			if tomlHeaderIndex(lines) >= 0 {
				return false, nil
			}
			var b strings.Builder
			if prev := strings.TrimRight(string(data), "\n"); prev != "" {
				b.WriteString(prev + "\n\n")
			}
			b.WriteString(tomlHeader + "\n" + tomlBody)
			return true, writeFile(path, []byte(b.String()))
		},
		remove: func() (bool, error) {
			data, err := readOptional(path)
			if err != nil || data == nil {
				return false, err
			}
			lines := strings.Split(string(data), "\n")
			start := tomlHeaderIndex(lines)
			if start < 0 {
				return false, nil
			}
			end := start + 1
			for end < len(lines) && !strings.HasPrefix(strings.TrimSpace(lines[end]), "[") {
				end++
			}
			kept := strings.TrimSpace(strings.Join(append(lines[:start:start], lines[end:]...), "\n"))
			if kept == "" {
				return true, os.Remove(path)
			}
			return true, writeFile(path, []byte(kept+"\n"))
		},
	}
}

// tomlHeaderIndex returns the line holding the contextmgr table header, or -1.
func tomlHeaderIndex(lines []string) int {
	for i, line := range lines {
		if strings.TrimSpace(line) == tomlHeader {
			return i
		}
	}
	return -1
}

// ---------------------------------------------------------------------------
// Skill
// ---------------------------------------------------------------------------

// skill manages <home>/skills/contextmgr/SKILL.md. An existing file, even
// one the user edited, counts as installed.
func skill(home string) artifact {
	dir := filepath.Join(home, "skills", ServerName)
	return artifact{
		name: "skill",
		install: func() (bool, error) {
			path := filepath.Join(dir, "SKILL.md")
			if _, err := os.Stat(path); err == nil {
				return false, nil
			}
			return true, writeFile(path, skillMD)
		},
		remove: func() (bool, error) {
			if _, err := os.Lstat(dir); errors.Is(err, fs.ErrNotExist) {
				return false, nil
			} else if err != nil {
				return false, err
			}
			return true, os.RemoveAll(dir)
		},
	}
}

// ---------------------------------------------------------------------------
// AGENTS.md section
// ---------------------------------------------------------------------------

const agentsHeading = "## contextmgr"

const agentsSectionText = agentsHeading + ` (project context)

This project tracks its phase and milestones in .context/GLOBAL_CONTEXT.yaml.

### Before starting work

` + "```bash\ncontextmgr context show\n```" + `

### After finishing a unit of work

` + "```bash" + `
contextmgr context complete "<exact milestone text>"
contextmgr context track --milestone "<next milestone>"
contextmgr context phase <phase>
` + "```" + `

Milestone names are matched exactly; run ` + "`contextmgr context milestones`" + ` to list them.
`

// agentsSection manages the contextmgr section of an AGENTS.md file.
func agentsSection(path string) artifact {
	return artifact{
		name: "AGENTS.md",
		install: func() (bool, error) {
			data, err := readOptional(path)
			if err != nil {
				return false, err
			}
			if strings.Contains(string(data), agentsHeading) {
				return false, nil
			}
			content := agentsSectionText
			if prev := strings.TrimRight(string(data), "\n"); prev != "" {
				content = prev + "\n\n" + agentsSectionText
			}
			return true, writeFile(path, []byte(content))
		},
		remove: func() (bool, error) {
			data, err := readOptional(path)
			if err != nil || data == nil {
				return false, err
			}
			cleaned, changed := stripAgentsSection(string(data))
			if !changed {
				return false, nil
			}
			if strings.TrimSpace(cleaned) == "" {
				return true, os.Remove(path)
			}
			return true, writeFile(path, []byte(cleaned))
		},
	}
}

var agentsSectionRe = regexp.MustCompile(`(?s)\n*` + regexp.QuoteMeta(agentsHeading) + `[^\n]*\n.*?(?:\n## |\z)`)

// stripAgentsSection drops the contextmgr section up to the next level-two
// heading, which is kept. It reports whether anything was removed.
func stripAgentsSection(content string) (string, bool) {
	if !strings.Contains(content, agentsHeading) {
		return content, false
	}
	cleaned := agentsSectionRe.ReplaceAllStringFunc(content, func(m string) string {
		if strings.HasSuffix(m, "\n## ") {
			return "\n\n## "
		}
		return ""
	})
	return strings.TrimRight(cleaned, "\n") + "\n", true
}
