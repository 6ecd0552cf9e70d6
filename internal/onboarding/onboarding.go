// Package onboarding gathers a new project's profile, asks the text generator
// for a development strategy and records both in PROJECT_BLUEPRINT.yaml.
package onboarding

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/atomicfile"
	"github.com/go-ports/contextmgr/internal/llm"
	"github.com/go-ports/contextmgr/internal/redaction"
)

// BlueprintFile is written at the project root.
const BlueprintFile = "PROJECT_BLUEPRINT.yaml"

const maxPerCategory = 5

// ProjectTypes are the accepted answers for Details.Type.
var ProjectTypes = []string{
	"Web Application",
	"Mobile App",
	"Desktop App",
	"CLI Tool",
	"Library/Package",
	"Machine Learning",
	"Other",
}

// Standards are printed at the end of onboarding.
var Standards = []string{
	"Follow SOLID principles",
	"Implement comprehensive testing (unit, integration, e2e)",
	"Maintain clear, concise documentation",
	"Use semantic versioning",
	"Adopt a branching strategy (e.g., GitFlow)",
	"Code review and pair programming",
	"Static code analysis",
	"Continuous Integration/Continuous Deployment (CI/CD)",
}

// Details is the project profile.
type Details struct {
	Name            string `yaml:"name"`
	Description     string `yaml:"description"`
	Domain          string `yaml:"domain"`
	Type            string `yaml:"type"`
	PrimaryLanguage string `yaml:"primary_language"`
	Frameworks      string `yaml:"frameworks"`
}

// Strategy is the structured development strategy.
type Strategy struct {
	Roadmap       []string `yaml:"roadmap,omitempty"`
	Milestones    []string `yaml:"milestones,omitempty"`
	Challenges    []string `yaml:"challenges,omitempty"`
	BestPractices []string `yaml:"best_practices,omitempty"`
}

// Blueprint is the persisted onboarding result.
type Blueprint struct {
	Project             Details  `yaml:"project"`
	DevelopmentStrategy Strategy `yaml:"development_strategy"`
}

// Defaults returns the suggested answers for a project directory.
func Defaults(projectRoot string) Details {
	name := filepath.Base(projectRoot)
	if name == "" || name == "." || name == string(filepath.Separator) {
		name = "MyProject"
	}
	return Details{
		Name:            name,
		Description:     "A new software project",
		Domain:          "General",
		Type:            "Other",
		PrimaryLanguage: "Go",
	}
}

// Gather asks for every field not already set in preset, offering defaults.
func Gather(p *Prompter, preset, defaults Details) (Details, error) {
	d := preset
	questions := []struct {
		label string
		dst   *string
		def   string
	}{
		{"Project Name", &d.Name, defaults.Name},
		{"Project Description", &d.Description, defaults.Description},
		{"Project Domain/Industry", &d.Domain, defaults.Domain},
	}
	for _, q := range questions {
		if *q.dst != "" {
			continue
		}
		v, err := p.Ask(q.label, q.def)
		if err != nil {
			return Details{}, err
		}
		*q.dst = v
	}

	if d.Type == "" {
		v, err := p.Choose("Project Type", ProjectTypes, defaults.Type)
		if err != nil {
			return Details{}, err
		}
		d.Type = v
	}
	if d.PrimaryLanguage == "" {
		v, err := p.Ask("Primary Programming Language", defaults.PrimaryLanguage)
		if err != nil {
			return Details{}, err
		}
		d.PrimaryLanguage = v
	}
	if d.Frameworks == "" {
		v, err := p.Ask("Preferred Frameworks/Libraries", defaults.Frameworks)
		if err != nil {
			return Details{}, err
		}
		d.Frameworks = v
	}
	return d, nil
}

// StrategyPrompt asks for a development strategy tailored to d.
func StrategyPrompt(d Details) string {
	var sb strings.Builder
	sb.WriteString("Help create a comprehensive development strategy for a new software project with these characteristics:\n\n")
	fmt.Fprintf(&sb, "Project Name: %s\n", d.Name)
	fmt.Fprintf(&sb, "Project Type: %s\n", d.Type)
	fmt.Fprintf(&sb, "Primary Language: %s\n", d.PrimaryLanguage)
	fmt.Fprintf(&sb, "Domain: %s\n", d.Domain)
	if d.Frameworks != "" {
		fmt.Fprintf(&sb, "Frameworks: %s\n", d.Frameworks)
	}
	sb.WriteString("\nPlease provide:\n" +
		"1. Phased development roadmap\n" +
		"2. Key milestones\n" +
		"3. Potential technical challenges\n" +
		"4. Recommended best practices\n" +
		"5. Initial architectural considerations\n")
	return sb.String()
}

// GenerateStrategy asks gen for a strategy and extracts it.
// On failure the returned Strategy is empty.
func GenerateStrategy(ctx context.Context, gen llm.Generator, r *redaction.Redactor, d Details) (Strategy, error) {
	if gen == nil {
		return Strategy{}, fmt.Errorf("onboarding.GenerateStrategy: text generation is not configured")
	}
	text, err := gen.Generate(ctx, r.Redact(StrategyPrompt(d)))
	if err != nil {
		return Strategy{}, fmt.Errorf("onboarding.GenerateStrategy: %w", err)
	}
	return Extract(text), nil
}

// Extract sorts reply lines into strategy categories by keyword.
// A line may land in more than one category; each keeps at most five.
func Extract(text string) Strategy {
	var s Strategy
	for _, raw := range strings.Split(text, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}
		lower := strings.ToLower(line)
		if strings.Contains(line, "Phase") || strings.Contains(line, "Stage") {
			s.Roadmap = appendCapped(s.Roadmap, line)
		}
		if containsAny(lower, "milestone", "key deliverable", "major goal") {
			s.Milestones = appendCapped(s.Milestones, line)
		}
		if containsAny(lower, "challenge", "potential issue", "complexity") {
			s.Challenges = appendCapped(s.Challenges, line)
		}
		if containsAny(lower, "best practice", "recommendation", "should") {
			s.BestPractices = appendCapped(s.BestPractices, line)
		}
	}
	return s
}

var listMarkerRe = regexp.MustCompile(`^(?:(?:[-*•#]+|\d+[.)])\s*)+`)

// MilestoneDescriptions turns extracted milestone lines into milestone text
// by dropping list markers, markdown emphasis and heading lines ending in ':'.
func (s Strategy) MilestoneDescriptions() []string {
	out := make([]string, 0, len(s.Milestones))
	for _, m := range s.Milestones {
		m = strings.ReplaceAll(m, "**", "")
		m = listMarkerRe.ReplaceAllString(strings.TrimSpace(m), "")
		m = strings.TrimSpace(m)
		if m != "" && !strings.HasSuffix(m, ":") {
			out = append(out, m)
		}
	}
	return out
}

// WriteBlueprint writes b to <projectRoot>/PROJECT_BLUEPRINT.yaml and returns the path.
func WriteBlueprint(projectRoot string, b *Blueprint) (string, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(b); err != nil {
		return "", fmt.Errorf("onboarding.WriteBlueprint: %w", err)
	}
	if err := enc.Close(); err != nil {
		return "", fmt.Errorf("onboarding.WriteBlueprint: %w", err)
	}
	path := filepath.Join(projectRoot, BlueprintFile)
	if err := atomicfile.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return "", fmt.Errorf("onboarding.WriteBlueprint: %w", err)
	}
	return path, nil
}

func appendCapped(list []string, line string) []string {
	if len(list) >= maxPerCategory {
		return list
	}
	return append(list, line)
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
