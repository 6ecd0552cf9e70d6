// Package checkers holds quicktest checkers shared by the test suites.
package checkers

import (
	"encoding/json"
	"fmt"

	qt "github.com/frankban/quicktest"
	"github.com/yalp/jsonpath"
)

// JSONPathEquals returns a checker that decodes got as JSON (a string,
// []byte or json.RawMessage), evaluates path against it and compares the
// result with the wanted value using qt.DeepEquals. JSON numbers decode as
// float64.
//
//	c.Assert(body, checkers.JSONPathEquals("$.project.name"), "demo")
func JSONPathEquals(path string) qt.Checker {
	return &jsonPathChecker{
		argNames: []string{"got", "want"},
		path:     path,
	}
}

type jsonPathChecker struct {
	argNames []string
	path     string
}

// ArgNames implements qt.Checker.
func (c *jsonPathChecker) ArgNames() []string {
	return c.argNames
}

// Check implements qt.Checker.
func (c *jsonPathChecker) Check(got any, args []any, note func(key string, value any)) error {
	var raw []byte
	switch v := got.(type) {
	case string:
		raw = []byte(v)
	case []byte:
		raw = v
	case json.RawMessage:
		raw = v
	default:
		note("error", qt.Unquoted("got must be a JSON string, []byte or json.RawMessage"))
		return qt.BadCheckf("unsupported type %T", got)
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		note("json", qt.Unquoted(string(raw)))
		return fmt.Errorf("cannot decode JSON: %w", err)
	}
	value, err := jsonpath.Read(doc, c.path)
	if err != nil {
		note("path", c.path)
		note("json", qt.Unquoted(string(raw)))
		return fmt.Errorf("cannot evaluate path: %w", err)
	}
	note("path", c.path)
	return qt.DeepEquals.Check(value, args, note)
}
