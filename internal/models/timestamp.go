package models

import (
	"fmt"
	"time"

	"gopkg.in/yaml.v3"
)

// Timestamp is an instant persisted as an ISO-8601 string.
// New values are written as RFC 3339 with nanoseconds in UTC. Values without
// a zone, as older tooling wrote them, are read in the local zone.
type Timestamp struct {
	time.Time
	// Raw is the text the value was read from. It is written back unchanged
	// as long as it still denotes Time.
	Raw string
}

var zonedLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999Z07:00",
}

var naiveLayouts = []string{
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02",
}

// NewTimestamp wraps t, dropping the monotonic reading and normalising to UTC.
func NewTimestamp(t time.Time) Timestamp {
	return Timestamp{Time: t.UTC()}
}

// ParseTimestamp parses s using every accepted layout.
func ParseTimestamp(s string) (Timestamp, error) {
	for _, layout := range zonedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return Timestamp{Time: t, Raw: s}, nil
		}
	}
	for _, layout := range naiveLayouts {
		if t, err := time.ParseInLocation(layout, s, time.Local); err == nil {
			return Timestamp{Time: t, Raw: s}, nil
		}
	}
	return Timestamp{}, fmt.Errorf("invalid timestamp %q", s)
}

// String returns the persisted representation.
func (t Timestamp) String() string {
	if t.Raw != "" {
		if orig, err := ParseTimestamp(t.Raw); err == nil && orig.Time.Equal(t.Time) {
			return t.Raw
		}
	}
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

// MarshalYAML implements yaml.Marshaler.
func (t Timestamp) MarshalYAML() (any, error) {
	return t.String(), nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("line %d: timestamp must be a scalar", value.Line)
	}
	if value.Value == "" || value.Tag == "!!null" {
		*t = Timestamp{}
		return nil
	}
	parsed, err := ParseTimestamp(value.Value)
	if err != nil {
		return fmt.Errorf("line %d: %w", value.Line, err)
	}
	*t = parsed
	return nil
}
