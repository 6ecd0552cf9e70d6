// Package redaction scrubs secrets from text before it leaves the machine
// or lands in the history journal.
package redaction

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
)

// IgnoreFile is the per-project pattern file, one regular expression per line.
const IgnoreFile = ".contextignore"

// Replacement is substituted for every redacted span.
const Replacement = "[REDACTED]"

// Rule is a named pattern whose matches are replaced.
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// Builtin lists the credential shapes every Redactor removes.
var Builtin = []Rule{
	{"anthropic key", regexp.MustCompile(`sk-ant-[a-zA-Z0-9_-]+`)},
	{"openai key", regexp.MustCompile(`sk-(?:proj-)?[a-zA-Z0-9_-]{20,}`)},
	{"stripe key", regexp.MustCompile(`(?i)sk_(?:live|test)_[a-zA-Z0-9]+`)},
	{"github token", regexp.MustCompile(`gh[pousr]_[a-zA-Z0-9]+`)},
	{"aws access key id", regexp.MustCompile(`AKIA[0-9A-Z]{16}`)},
	{"slack token", regexp.MustCompile(`xox[bp]-[a-zA-Z0-9-]+`)},
	{"private key", regexp.MustCompile(`-----BEGIN (?:RSA |EC |OPENSSH )?PRIVATE KEY-----`)},
	{"jwt", regexp.MustCompile(`eyJ[a-zA-Z0-9_-]+\.eyJ[a-zA-Z0-9_-]+`)},
	{"assignment", regexp.MustCompile(`(?i)(?:password|secret|api[_-]?key|token)\s*[:=]\s*["']?.+`)},
}

// tagRe matches explicit <redacted>...</redacted> spans, across lines.
var tagRe = regexp.MustCompile(`(?s)<redacted>.*?</redacted>`)

// Redactor removes explicit <redacted> spans, then applies its rules in order.
// The zero value and a nil *Redactor apply Builtin only.
type Redactor struct {
	rules []Rule
}

// New returns a Redactor applying Builtin followed by extra.
func New(extra ...Rule) *Redactor {
	rules := make([]Rule, 0, len(Builtin)+len(extra))
	rules = append(rules, Builtin...)
	rules = append(rules, extra...)
	return &Redactor{rules: rules}
}

// ForProject returns a Redactor that also applies <projectRoot>/.contextignore.
func ForProject(projectRoot string) (*Redactor, error) {
	extra, err := LoadIgnore(filepath.Join(projectRoot, IgnoreFile))
	if err != nil {
		return nil, fmt.Errorf("redaction.ForProject: %w", err)
	}
	return New(extra...), nil
}

// Redact returns text with every secret replaced by Replacement.
func (r *Redactor) Redact(text string) string {
	for {
		next := tagRe.ReplaceAllString(text, Replacement)
		if next == text {
			break
		}
		text = next
	}
	// Unpaired tags carry no span to hide.
	text = strings.NewReplacer("<redacted>", "", "</redacted>", "").Replace(text)

	rules := Builtin
	if r != nil && r.rules != nil {
		rules = r.rules
	}
	for _, rule := range rules {
		text = rule.Pattern.ReplaceAllString(text, Replacement)
	}
	return text
}

// LoadIgnore compiles each non-blank, non-comment line of path into a Rule
// named "<file>:<line>". A missing file yields no rules.
func LoadIgnore(path string) ([]Rule, error) {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var rules []Rule
	scanner := bufio.NewScanner(f)
	for n := 1; scanner.Scan(); n++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		name := fmt.Sprintf("%s:%d", filepath.Base(path), n)
		re, err := regexp.Compile(line)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		rules = append(rules, Rule{Name: name, Pattern: re})
	}
	return rules, scanner.Err()
}
