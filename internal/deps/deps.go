// Package deps lists a project's declared dependencies and compares them
// against the latest versions published on a package index.
package deps

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/mod/modfile"
	"golang.org/x/mod/semver"
)

// Ecosystems understood by Installed.
const (
	EcosystemGo     = "go"
	EcosystemPython = "python"
)

// ErrNoManifest is returned when the project has no supported dependency manifest.
var ErrNoManifest = errors.New("no go.mod or requirements.txt found")

// Package is one declared dependency.
type Package struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Update describes an available upgrade.
type Update struct {
	Current string `json:"current"`
	Latest  string `json:"latest"`
}

// Report is the result of Check.
type Report struct {
	Ecosystem         string            `json:"ecosystem"`
	InstalledPackages []Package         `json:"installed_packages"`
	UpdatesAvailable  map[string]Update `json:"updates_available"`
	Skipped           map[string]string `json:"skipped,omitempty"`
}

// Index resolves the newest published version of a package.
type Index interface {
	Latest(ctx context.Context, name string) (string, error)
}

// EcosystemForIndex maps a configured index name onto the ecosystem passed to Installed.
func EcosystemForIndex(index string) string {
	switch index {
	case "goproxy":
		return EcosystemGo
	case "pypi":
		return EcosystemPython
	default:
		return index
	}
}

// Installed reads the dependency manifest in projectPath.
// ecosystem selects the manifest; "" or "auto" picks go.mod before requirements.txt.
// The second return value names the ecosystem that was read.
func Installed(projectPath, ecosystem string) ([]Package, string, error) {
	switch ecosystem {
	case EcosystemGo:
		pkgs, err := readGoMod(filepath.Join(projectPath, "go.mod"))
		return pkgs, EcosystemGo, err
	case EcosystemPython:
		pkgs, err := readRequirements(filepath.Join(projectPath, "requirements.txt"))
		return pkgs, EcosystemPython, err
	case "", "auto":
		if fileExists(filepath.Join(projectPath, "go.mod")) {
			return Installed(projectPath, EcosystemGo)
		}
		if fileExists(filepath.Join(projectPath, "requirements.txt")) {
			return Installed(projectPath, EcosystemPython)
		}
		return nil, "", fmt.Errorf("deps.Installed: %s: %w", projectPath, ErrNoManifest)
	default:
		return nil, "", fmt.Errorf("deps.Installed: unknown ecosystem %q", ecosystem)
	}
}

// Check looks up every package on idx. Lookup failures are recorded in
// Report.Skipped and do not stop the check.
func Check(ctx context.Context, idx Index, ecosystem string, pkgs []Package) *Report {
	r := &Report{
		Ecosystem:         ecosystem,
		InstalledPackages: pkgs,
		UpdatesAvailable:  map[string]Update{},
	}
	if r.InstalledPackages == nil {
		r.InstalledPackages = []Package{}
	}
	for _, p := range pkgs {
		if err := ctx.Err(); err != nil {
			r.skip(p.Name, err.Error())
			continue
		}
		latest, err := idx.Latest(ctx, p.Name)
		if err != nil {
			slog.Debug("deps: lookup failed", "package", p.Name, "err", err)
			r.skip(p.Name, err.Error())
			continue
		}
		if UpdateAvailable(p.Version, latest) {
			r.UpdatesAvailable[p.Name] = Update{Current: p.Version, Latest: latest}
		}
	}
	return r
}

func (r *Report) skip(name, reason string) {
	if r.Skipped == nil {
		r.Skipped = map[string]string{}
	}
	r.Skipped[name] = reason
}

// UpdateAvailable reports whether latest is newer than current.
// Versions that do not parse as semantic versions are compared for inequality.
func UpdateAvailable(current, latest string) bool {
	if latest == "" {
		return false
	}
	cv, lv := canonical(current), canonical(latest)
	if cv == "" || lv == "" {
		return strings.TrimPrefix(current, "v") != strings.TrimPrefix(latest, "v")
	}
	return semver.Compare(lv, cv) > 0
}

var pyVersion = regexp.MustCompile(`^(\d+(?:\.\d+){0,2})(?:[.-]?(a|b|rc|dev)\.?(\d+))?$`)

// canonical maps Go and simple Python version strings onto semver.
func canonical(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "v") {
		if semver.IsValid(v) {
			return semver.Canonical(v)
		}
		return ""
	}
	m := pyVersion.FindStringSubmatch(v)
	if m == nil {
		return ""
	}
	parts := strings.Split(m[1], ".")
	for len(parts) < 3 {
		parts = append(parts, "0")
	}
	out := "v" + strings.Join(parts, ".")
	if m[2] != "" {
		out += "-" + m[2] + "." + m[3]
	}
	if !semver.IsValid(out) {
		return ""
	}
	return semver.Canonical(out)
}

func readGoMod(path string) ([]Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deps.Installed: %w", err)
	}
	f, err := modfile.ParseLax(path, data, nil)
	if err != nil {
		return nil, fmt.Errorf("deps.Installed: %w", err)
	}
	pkgs := make([]Package, 0, len(f.Require))
	for _, r := range f.Require {
		if r.Indirect {
			continue
		}
		pkgs = append(pkgs, Package{Name: r.Mod.Path, Version: r.Mod.Version})
	}
	return pkgs, nil
}

var requirementLine = regexp.MustCompile(`^([A-Za-z0-9][A-Za-z0-9._-]*)(?:\[[^\]]*\])?\s*==\s*([^\s;#]+)`)

// readRequirements returns the pinned (name==version) entries of a requirements file.
func readRequirements(path string) ([]Package, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("deps.Installed: %w", err)
	}
	pkgs := []Package{}
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") || strings.HasPrefix(line, "-") {
			continue
		}
		m := requirementLine.FindStringSubmatch(line)
		if m == nil {
			slog.Debug("deps: skipping unpinned requirement", "line", line)
			continue
		}
		pkgs = append(pkgs, Package{Name: m[1], Version: m[2]})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("deps.Installed: %w", err)
	}
	return pkgs, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
