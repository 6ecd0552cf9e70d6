// Package models defines the core data types for the project context system.
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultPhase is the lifecycle phase written into a freshly created document.
const DefaultPhase = "initialization"

// Status is the lifecycle state of a milestone.
type Status string

// Milestone statuses. StatusInProgress is written by older tooling and is
// treated the same as StatusPending.
const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// Document is the persisted project context (GLOBAL_CONTEXT.yaml).
// Extra collects top-level keys this version does not know about so they
// survive a read-modify-write cycle.
type Document struct {
	Project     Project        `yaml:"project"`
	Development Development    `yaml:"development"`
	Extra       map[string]any `yaml:",inline"`
}

// Project identifies the project the document belongs to.
type Project struct {
	Name        string         `yaml:"name"`
	CreatedAt   Timestamp      `yaml:"created_at"`
	LastUpdated Timestamp      `yaml:"last_updated"`
	Extra       map[string]any `yaml:",inline"`
}

// Development tracks the current phase and the milestone record.
type Development struct {
	CurrentPhase        string         `yaml:"current_phase"`
	Milestones          []Milestone    `yaml:"milestones"`
	CompletedMilestones []Milestone    `yaml:"completed_milestones"`
	Extra               map[string]any `yaml:",inline"`
}

// Milestone is a named unit of project progress.
// Description/AddedAt are the canonical fields; Name/CreatedAt are accepted
// from legacy milestone files and preserved as-is.
type Milestone struct {
	Description string         `yaml:"description,omitempty"`
	Name        string         `yaml:"name,omitempty"`
	AddedAt     *Timestamp     `yaml:"added_at,omitempty"`
	CreatedAt   *Timestamp     `yaml:"created_at,omitempty"`
	Status      Status         `yaml:"status,omitempty"`
	CompletedAt *Timestamp     `yaml:"completed_at,omitempty"`
	Extra       map[string]any `yaml:",inline"`
}

// NewDocument returns the default document for a project created at now.
func NewDocument(name string, now time.Time) *Document {
	ts := NewTimestamp(now)
	return &Document{
		Project: Project{
			Name:        name,
			CreatedAt:   ts,
			LastUpdated: ts,
		},
		Development: Development{
			CurrentPhase:        DefaultPhase,
			Milestones:          make([]Milestone, 0),
			CompletedMilestones: make([]Milestone, 0),
		},
	}
}

// NewMilestone returns a pending milestone stamped with now.
func NewMilestone(description string, now time.Time) Milestone {
	ts := NewTimestamp(now)
	return Milestone{
		Description: description,
		AddedAt:     &ts,
		Status:      StatusPending,
	}
}

// Label is the text callers use to refer to the milestone.
func (m *Milestone) Label() string {
	if m.Description != "" {
		return m.Description
	}
	return m.Name
}

// Active reports whether the milestone still belongs in the active list.
func (m *Milestone) Active() bool {
	return m.Status != StatusCompleted
}

// Complete marks the milestone completed at now.
func (m *Milestone) Complete(now time.Time) {
	ts := NewTimestamp(now)
	m.Status = StatusCompleted
	m.CompletedAt = &ts
}

// Normalize replaces nil milestone slices with empty ones so the document
// always serialises them as [] rather than null.
func (d *Document) Normalize() {
	if d.Development.Milestones == nil {
		d.Development.Milestones = make([]Milestone, 0)
	}
	if d.Development.CompletedMilestones == nil {
		d.Development.CompletedMilestones = make([]Milestone, 0)
	}
}

// ActiveLabels returns the label of every active milestone in stored order.
func (d *Document) ActiveLabels() []string {
	out := make([]string, 0, len(d.Development.Milestones))
	for i := range d.Development.Milestones {
		out = append(out, d.Development.Milestones[i].Label())
	}
	return out
}

// CompletedLabels returns the label of every completed milestone in stored order.
func (d *Document) CompletedLabels() []string {
	out := make([]string, 0, len(d.Development.CompletedMilestones))
	for i := range d.Development.CompletedMilestones {
		out = append(out, d.Development.CompletedMilestones[i].Label())
	}
	return out
}

// ---------------------------------------------------------------------------
// History events
// ---------------------------------------------------------------------------

// EventKind classifies a history journal entry.
type EventKind string

// Journal event kinds.
const (
	EventMilestoneAdded     EventKind = "milestone_added"
	EventMilestoneCompleted EventKind = "milestone_completed"
	EventPhaseUpdated       EventKind = "phase_updated"
	EventContextUpdated     EventKind = "context_updated"
	EventInsight            EventKind = "insight"
	EventOnboarded          EventKind = "onboarded"
)

// ValidEventKinds lists the accepted journal event kinds.
var ValidEventKinds = []EventKind{
	EventMilestoneAdded,
	EventMilestoneCompleted,
	EventPhaseUpdated,
	EventContextUpdated,
	EventInsight,
	EventOnboarded,
}

// Event is one entry in the history journal.
type Event struct {
	ID        string
	Kind      EventKind
	Title     string
	Body      string
	Project   string
	CreatedAt time.Time
}

// NewEvent constructs an Event with a fresh ID stamped with the current time.
func NewEvent(kind EventKind, project, title, body string) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Kind:      kind,
		Title:     strings.TrimSpace(title),
		Body:      body,
		Project:   project,
		CreatedAt: time.Now().UTC(),
	}
}
