// Package codegen renders Go boilerplate from embedded templates.
package codegen

import (
	"bytes"
	"embed"
	"errors"
	"fmt"
	"go/format"
	"os"
	"path/filepath"
	"regexp"
	"text/template"

	"github.com/go-ports/contextmgr/internal/atomicfile"
)

//go:embed templates/*.go.tmpl
var templateFiles embed.FS

// ErrUnknownTemplate is returned when no template has the requested name.
var ErrUnknownTemplate = errors.New("unknown template")

// Template describes one boilerplate template.
type Template struct {
	Name           string
	Description    string
	DefaultPackage string
}

var templates = []Template{
	{Name: "cli_app", Description: "cobra command line application", DefaultPackage: "main"},
	{Name: "http_service", Description: "net/http JSON service with an in-memory store", DefaultPackage: "service"},
	{Name: "go_test", Description: "quicktest test file", DefaultPackage: "example"},
	{Name: "worker", Description: "context-aware worker pool", DefaultPackage: "worker"},
}

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Options fill the template placeholders. Empty fields take defaults.
type Options struct {
	Package string
	// Name is the command name used by cli_app.
	Name string
}

// List returns the available templates in display order.
func List() []Template {
	out := make([]Template, len(templates))
	copy(out, templates)
	return out
}

// Lookup returns the template called name.
func Lookup(name string) (Template, error) {
	for _, t := range templates {
		if t.Name == name {
			return t, nil
		}
	}
	return Template{}, fmt.Errorf("%w: %q", ErrUnknownTemplate, name)
}

// Render executes the template called name and returns gofmt-ed source.
func Render(name string, opts Options) ([]byte, error) {
	t, err := Lookup(name)
	if err != nil {
		return nil, err
	}
	if opts.Package == "" {
		opts.Package = t.DefaultPackage
	}
	if !identRe.MatchString(opts.Package) {
		return nil, fmt.Errorf("codegen.Render: invalid package name %q", opts.Package)
	}
	if opts.Name == "" {
		opts.Name = "app"
	}

	raw, err := templateFiles.ReadFile("templates/" + name + ".go.tmpl")
	if err != nil {
		return nil, fmt.Errorf("codegen.Render: %w", err)
	}
	tmpl, err := template.New(name).Parse(string(raw))
	if err != nil {
		return nil, fmt.Errorf("codegen.Render: parse %s: %w", name, err)
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, opts); err != nil {
		return nil, fmt.Errorf("codegen.Render: execute %s: %w", name, err)
	}
	src, err := format.Source(buf.Bytes())
	if err != nil {
		return nil, fmt.Errorf("codegen.Render: format %s: %w", name, err)
	}
	return src, nil
}

// WriteFile renders name into path, creating parent directories.
// An existing file is left alone unless force is set.
func WriteFile(path, name string, opts Options, force bool) error {
	src, err := Render(name, opts)
	if err != nil {
		return err
	}
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("codegen.WriteFile: %s already exists", path)
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("codegen.WriteFile: %w", err)
	}
	if err := atomicfile.WriteFile(path, src, 0o644); err != nil {
		return fmt.Errorf("codegen.WriteFile: %w", err)
	}
	return nil
}
