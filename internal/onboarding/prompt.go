package onboarding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// Prompter asks questions on a line-oriented terminal.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter reads answers from in and writes questions to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

// Ask prints label with its default and returns the trimmed answer.
// An empty answer or end of input yields def.
func (p *Prompter) Ask(label, def string) (string, error) {
	if def != "" {
		fmt.Fprintf(p.out, "%s [%s]: ", label, def)
	} else {
		fmt.Fprintf(p.out, "%s: ", label)
	}
	line, err := p.in.ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("onboarding.Ask: %w", err)
	}
	if errors.Is(err, io.EOF) && line == "" {
		fmt.Fprintln(p.out)
	}
	answer := strings.TrimSpace(line)
	if answer == "" {
		return def, nil
	}
	return answer, nil
}

// Choose asks until the answer names one of choices, case-insensitively or by
// 1-based number. End of input yields def.
func (p *Prompter) Choose(label string, choices []string, def string) (string, error) {
	fmt.Fprintf(p.out, "%s:\n", label)
	for i, ch := range choices {
		fmt.Fprintf(p.out, "  %d) %s\n", i+1, ch)
	}
	for {
		answer, err := p.Ask("Choose", def)
		if err != nil {
			return "", err
		}
		if picked, ok := match(answer, choices); ok {
			return picked, nil
		}
		if p.exhausted() {
			return def, nil
		}
		fmt.Fprintf(p.out, "Please pick one of: %s\n", strings.Join(choices, ", "))
	}
}

func (p *Prompter) exhausted() bool {
	_, err := p.in.Peek(1)
	return err != nil
}

func match(answer string, choices []string) (string, bool) {
	if n, err := strconv.Atoi(answer); err == nil && n >= 1 && n <= len(choices) {
		return choices[n-1], true
	}
	for _, ch := range choices {
		if strings.EqualFold(answer, ch) {
			return ch, true
		}
	}
	return "", false
}
