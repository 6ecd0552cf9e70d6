// Package insights asks a text generator for development advice and shapes
// the reply for notes and terminal output. Generation failures are reported
// in the result instead of returned.
package insights

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/gitlog"
	"github.com/go-ports/contextmgr/internal/llm"
	"github.com/go-ports/contextmgr/internal/models"
	"github.com/go-ports/contextmgr/internal/redaction"
)

// MaxItems caps the list extracted from a reply.
const MaxItems = 10

// ErrNotConfigured is reported when no generator is available.
var ErrNotConfigured = errors.New("text generation is not configured")

// Recommendations is a parsed generator reply.
type Recommendations struct {
	Items     []string `json:"items"`
	Raw       string   `json:"raw_response,omitempty"`
	Error     string   `json:"error,omitempty"`
	Timestamp string   `json:"timestamp"`
}

// Section renders an "AI Development Insights" block for CONTEXT.md, or an
// "AI Insights Error" block when generation fails.
func Section(ctx context.Context, gen llm.Generator, r *redaction.Redactor, prompt string) string {
	text, err := generate(ctx, gen, r, prompt)
	if err != nil {
		return "\n### AI Insights Error\n" + err.Error() + "\n"
	}
	return "\n### AI Development Insights\n" + strings.TrimSpace(text) + "\n"
}

// Strategic asks for strategic recommendations about the project document.
func Strategic(ctx context.Context, gen llm.Generator, r *redaction.Redactor, doc *models.Document, now time.Time) Recommendations {
	prompt, err := StrategicPrompt(doc)
	if err != nil {
		return failed(err, now)
	}
	return recommend(ctx, gen, r, prompt, now)
}

// Trajectory asks for an analysis of the project's event history.
func Trajectory(ctx context.Context, gen llm.Generator, r *redaction.Redactor, events []*models.Event, now time.Time) Recommendations {
	return recommend(ctx, gen, r, TrajectoryPrompt(events), now)
}

// UpdatePrompt is sent by `context update --ai`.
func UpdatePrompt(doc *models.Document, s *gitlog.Summary) string {
	var sb strings.Builder
	sb.WriteString("Analyze the development context of this project based on its recent git commits and provide strategic insights for improvement.\n\n")
	if doc != nil {
		fmt.Fprintf(&sb, "Project: %s\nCurrent phase: %s\n", doc.Project.Name, doc.Development.CurrentPhase)
		if labels := doc.ActiveLabels(); len(labels) > 0 {
			sb.WriteString("Active milestones:\n")
			for _, l := range labels {
				sb.WriteString("- " + l + "\n")
			}
		}
	}
	if s != nil && len(s.Recent) > 0 {
		sb.WriteString("Recent commits:\n")
		for _, c := range s.Recent {
			sb.WriteString("- " + c.Summary + "\n")
		}
	}
	return sb.String()
}

// StrategicPrompt embeds the document as YAML.
func StrategicPrompt(doc *models.Document) (string, error) {
	body, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("insights.StrategicPrompt: %w", err)
	}
	return "Analyze the following project context and provide strategic insights:\n\n" +
		string(body) + "\n" +
		"Please provide:\n" +
		"1. Strategic development recommendations\n" +
		"2. Potential architectural improvements\n" +
		"3. Risk assessment and mitigation strategies\n" +
		"4. Technology stack optimization suggestions\n" +
		"5. Development process enhancements\n", nil
}

// TrajectoryPrompt lists events oldest first.
func TrajectoryPrompt(events []*models.Event) string {
	var sb strings.Builder
	sb.WriteString("Analyze the following project development history:\n\n")
	for i := len(events) - 1; i >= 0; i-- {
		e := events[i]
		fmt.Fprintf(&sb, "- %s [%s] %s\n", e.CreatedAt.Format(time.RFC3339), e.Kind, e.Title)
	}
	sb.WriteString("\nPlease provide:\n" +
		"1. Development pattern analysis\n" +
		"2. Potential future challenges\n" +
		"3. Productivity trend insights\n" +
		"4. Recommendations for process improvement\n" +
		"5. Predictive development trajectory\n")
	return sb.String()
}

var listItemRe = regexp.MustCompile(`^(?:\d+\.|•|-|\*)\s*`)

// Parse keeps the list lines of a reply, up to MaxItems.
func Parse(text string) []string {
	items := []string{}
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || !listItemRe.MatchString(line) {
			continue
		}
		items = append(items, line)
		if len(items) == MaxItems {
			break
		}
	}
	return items
}

func recommend(ctx context.Context, gen llm.Generator, r *redaction.Redactor, prompt string, now time.Time) Recommendations {
	text, err := generate(ctx, gen, r, prompt)
	if err != nil {
		return failed(err, now)
	}
	return Recommendations{
		Items:     Parse(text),
		Raw:       text,
		Timestamp: models.NewTimestamp(now).String(),
	}
}

func failed(err error, now time.Time) Recommendations {
	return Recommendations{
		Items:     []string{},
		Error:     err.Error(),
		Timestamp: models.NewTimestamp(now).String(),
	}
}

func generate(ctx context.Context, gen llm.Generator, r *redaction.Redactor, prompt string) (string, error) {
	if gen == nil {
		return "", ErrNotConfigured
	}
	text, err := gen.Generate(ctx, r.Redact(prompt))
	if err != nil {
		return "", err
	}
	return text, nil
}
