// Package shared holds the context passed to all CLI commands.
package shared

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-ports/contextmgr/internal/config"
	"github.com/go-ports/contextmgr/internal/service"
)

// Context carries global CLI state (flags set on the root command).
type Context struct {
	// ProjectDir is the project root. Empty means the working directory.
	ProjectDir string
	// Verbose enables debug logging.
	Verbose bool
	// ServiceOptions are applied to every Service the commands open.
	ServiceOptions []service.Option
}

// Root returns the absolute project root.
func (c *Context) Root() (string, error) {
	dir := c.ProjectDir
	if dir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("resolve project dir: %w", err)
		}
		dir = wd
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", fmt.Errorf("resolve project dir: %w", err)
	}
	return abs, nil
}

// Config resolves the layered configuration for the project root.
func (c *Context) Config() (*config.Config, string, error) {
	root, err := c.Root()
	if err != nil {
		return nil, "", err
	}
	cfg, err := config.Resolve(root)
	if err != nil {
		return nil, "", err
	}
	return cfg, root, nil
}

// Service opens the project service. Callers must Close it.
func (c *Context) Service() (*service.Service, error) {
	cfg, root, err := c.Config()
	if err != nil {
		return nil, err
	}
	return service.New(root, cfg, c.ServiceOptions...)
}
