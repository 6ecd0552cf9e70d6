package codegen_test

import (
	"go/parser"
	"go/token"
	"os"
	"path/filepath"
	"testing"

	qt "github.com/frankban/quicktest"

	"github.com/go-ports/contextmgr/internal/codegen"
)

func TestRender_HappyPath(t *testing.T) {
	c := qt.New(t)

	for _, tmpl := range codegen.List() {
		c.Run(tmpl.Name, func(c *qt.C) {
			src, err := codegen.Render(tmpl.Name, codegen.Options{})
			c.Assert(err, qt.IsNil)

			f, err := parser.ParseFile(token.NewFileSet(), tmpl.Name+".go", src, parser.PackageClauseOnly)
			c.Assert(err, qt.IsNil)
			want := tmpl.DefaultPackage
			if tmpl.Name == "go_test" {
				want += "_test"
			}
			c.Assert(f.Name.Name, qt.Equals, want)
		})
	}

	c.Run("package and name are substituted", func(c *qt.C) {
		src, err := codegen.Render("cli_app", codegen.Options{Package: "tool", Name: "atlas"})
		c.Assert(err, qt.IsNil)
		c.Assert(string(src), qt.Contains, "package tool\n")
		c.Assert(string(src), qt.Contains, `"atlas"`)
	})
}

func TestRender_FailurePath(t *testing.T) {
	c := qt.New(t)

	c.Run("unknown template", func(c *qt.C) {
		_, err := codegen.Render("fastapi_app", codegen.Options{})
		c.Assert(err, qt.ErrorIs, codegen.ErrUnknownTemplate)
		c.Assert(err, qt.ErrorMatches, `unknown template: "fastapi_app"`)
	})

	c.Run("invalid package", func(c *qt.C) {
		_, err := codegen.Render("worker", codegen.Options{Package: "not-a-package"})
		c.Assert(err, qt.ErrorMatches, `codegen.Render: invalid package name "not-a-package"`)
	})
}

func TestWriteFile_HappyPath(t *testing.T) {
	c := qt.New(t)

	path := filepath.Join(c.TempDir(), "pkg", "worker.go")
	err := codegen.WriteFile(path, "worker", codegen.Options{Package: "jobs"}, false)
	c.Assert(err, qt.IsNil)
	data, err := os.ReadFile(path)
	c.Assert(err, qt.IsNil)
	c.Assert(string(data), qt.Contains, "package jobs\n")

	c.Run("existing file is kept without force", func(c *qt.C) {
		err := codegen.WriteFile(path, "go_test", codegen.Options{}, false)
		c.Assert(err, qt.ErrorMatches, ".*already exists")
		data, err := os.ReadFile(path)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Contains, "package jobs\n")
	})

	c.Run("force overwrites", func(c *qt.C) {
		err := codegen.WriteFile(path, "go_test", codegen.Options{Package: "jobs"}, true)
		c.Assert(err, qt.IsNil)
		data, err := os.ReadFile(path)
		c.Assert(err, qt.IsNil)
		c.Assert(string(data), qt.Contains, "package jobs_test\n")
	})
}
