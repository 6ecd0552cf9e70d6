package models_test

import (
	"testing"
	"time"

	qt "github.com/frankban/quicktest"
	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/models"
)

// plusTwo is a fixed zone east of UTC used as the local zone in tests.
var plusTwo = time.FixedZone("UTC+2", 2*60*60)

func TestParseTimestamp_HappyPath(t *testing.T) {
	c := qt.New(t)
	c.Patch(&time.Local, plusTwo)

	cases := []struct {
		name string
		in   string
		want time.Time
	}{
		{"rfc3339 utc", "2024-01-15T10:30:00Z", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"rfc3339 nanos", "2024-01-15T10:30:00.5Z", time.Date(2024, 1, 15, 10, 30, 0, 500000000, time.UTC)},
		{"rfc3339 offset", "2024-01-15T12:30:00+02:00", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"naive iso with micros is local", "2024-01-15T10:30:00.123456", time.Date(2024, 1, 15, 8, 30, 0, 123456000, time.UTC)},
		{"space separated is local", "2024-01-15 10:30:00", time.Date(2024, 1, 15, 8, 30, 0, 0, time.UTC)},
		{"space separated with zone", "2024-01-15 10:30:00Z", time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)},
		{"date only is local midnight", "2024-01-15", time.Date(2024, 1, 14, 22, 0, 0, 0, time.UTC)},
	}
	for _, tc := range cases {
		c.Run(tc.name, func(c *qt.C) {
			got, err := models.ParseTimestamp(tc.in)
			c.Assert(err, qt.IsNil)
			c.Assert(got.Equal(tc.want), qt.IsTrue, qt.Commentf("got %s", got.Time))
			c.Assert(got.Raw, qt.Equals, tc.in)
		})
	}
}

func TestParseTimestamp_FailurePath(t *testing.T) {
	c := qt.New(t)

	_, err := models.ParseTimestamp("yesterday")
	c.Assert(err, qt.ErrorMatches, `invalid timestamp "yesterday"`)
}

func TestTimestamp_YAML(t *testing.T) {
	c := qt.New(t)

	c.Run("marshals as quoted rfc3339 in utc", func(c *qt.C) {
		ts := models.NewTimestamp(time.Date(2024, 1, 15, 12, 30, 0, 0, time.FixedZone("x", 7200)))
		out, err := yaml.Marshal(map[string]models.Timestamp{"at": ts})
		c.Assert(err, qt.IsNil)
		c.Assert(string(out), qt.Equals, "at: \"2024-01-15T10:30:00Z\"\n")
	})

	c.Run("zero value marshals as empty string", func(c *qt.C) {
		out, err := yaml.Marshal(map[string]models.Timestamp{"at": {}})
		c.Assert(err, qt.IsNil)
		c.Assert(string(out), qt.Equals, "at: \"\"\n")
	})

	c.Run("unquoted yaml timestamp is accepted", func(c *qt.C) {
		var v struct {
			At models.Timestamp `yaml:"at"`
		}
		err := yaml.Unmarshal([]byte("at: 2024-01-15T10:30:00Z\n"), &v)
		c.Assert(err, qt.IsNil)
		c.Assert(v.At.Equal(time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)), qt.IsTrue)
	})

	c.Run("untouched naive value is written back as read", func(c *qt.C) {
		c.Patch(&time.Local, plusTwo)
		var v struct {
			At models.Timestamp `yaml:"at"`
		}
		err := yaml.Unmarshal([]byte("at: '2026-10-15T12:00:00.000001'\n"), &v)
		c.Assert(err, qt.IsNil)
		c.Assert(v.At.Equal(time.Date(2026, 10, 15, 10, 0, 0, 1000, time.UTC)), qt.IsTrue)

		out, err := yaml.Marshal(v)
		c.Assert(err, qt.IsNil)
		c.Assert(string(out), qt.Equals, "at: \"2026-10-15T12:00:00.000001\"\n")
	})

	c.Run("changed value drops the original text", func(c *qt.C) {
		ts, err := models.ParseTimestamp("2024-01-15T10:30:00.5")
		c.Assert(err, qt.IsNil)
		ts.Time = ts.Add(time.Hour)
		c.Assert(ts.String(), qt.Equals, ts.UTC().Format(time.RFC3339Nano))
	})

	c.Run("garbage is rejected", func(c *qt.C) {
		var v struct {
			At models.Timestamp `yaml:"at"`
		}
		err := yaml.Unmarshal([]byte("at: soon\n"), &v)
		c.Assert(err, qt.ErrorMatches, `.*invalid timestamp "soon".*`)
	})

	c.Run("mapping is rejected", func(c *qt.C) {
		var v struct {
			At models.Timestamp `yaml:"at"`
		}
		err := yaml.Unmarshal([]byte("at: {a: 1}\n"), &v)
		c.Assert(err, qt.ErrorMatches, `.*timestamp must be a scalar.*`)
	})
}
