// Package contextstore persists the project context document under
// <project>/.context/GLOBAL_CONTEXT.yaml.
package contextstore

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/go-ports/contextmgr/internal/atomicfile"
	"github.com/go-ports/contextmgr/internal/models"
)

// Layout of the context directory.
const (
	DirName      = ".context"
	FileName     = "GLOBAL_CONTEXT.yaml"
	lockFileName = "GLOBAL_CONTEXT.lock"
)

const defaultLockTimeout = 10 * time.Second

// Sentinel errors. Returned errors wrap one of these and can be matched with errors.Is.
var (
	ErrStorageUnavailable = errors.New("context storage unavailable")
	ErrCorruptDocument    = errors.New("context document is corrupt")
	ErrNotFound           = errors.New("context document not found")
	ErrLocked             = errors.New("context document is locked by another process")
	ErrEmptyDescription   = errors.New("milestone description must not be empty")
)

// Store reads and mutates a single project's context document.
// Every mutation is a locked read-modify-write that replaces the file atomically.
type Store struct {
	root        string
	dir         string
	path        string
	now         func() time.Time
	lockTimeout time.Duration
	lock        *fileLock
	mu          sync.Mutex
}

// Option configures a Store.
type Option func(*Store)

// WithClock replaces time.Now as the source of timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// WithLockTimeout bounds how long a mutation waits for another writer.
func WithLockTimeout(d time.Duration) Option {
	return func(s *Store) { s.lockTimeout = d }
}

// Open binds a Store to projectPath, creating the context directory and a
// default document when none exists. An existing document is left untouched.
func Open(projectPath string, opts ...Option) (*Store, error) {
	root, err := filepath.Abs(projectPath)
	if err != nil {
		return nil, fmt.Errorf("contextstore.Open: %w: resolve %s: %w", ErrStorageUnavailable, projectPath, err)
	}

	dir := filepath.Join(root, DirName)
	s := &Store{
		root:        root,
		dir:         dir,
		path:        filepath.Join(dir, FileName),
		now:         time.Now,
		lockTimeout: defaultLockTimeout,
		lock:        newFileLock(filepath.Join(dir, lockFileName)),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("contextstore.Open: %w: create %s: %w", ErrStorageUnavailable, dir, err)
	}

	exists, err := s.exists()
	if err != nil {
		return nil, fmt.Errorf("contextstore.Open: %w", err)
	}
	if exists {
		return s, nil
	}

	err = s.withLock(func() error {
		// Another process may have created it while we waited.
		exists, err := s.exists()
		if err != nil || exists {
			return err
		}
		return s.write(models.NewDocument(filepath.Base(root), s.now()))
	})
	if err != nil {
		return nil, fmt.Errorf("contextstore.Open: %w", err)
	}
	return s, nil
}

// Root returns the absolute project directory.
func (s *Store) Root() string { return s.root }

// Dir returns the context directory.
func (s *Store) Dir() string { return s.dir }

// Path returns the document path.
func (s *Store) Path() string { return s.path }

// Context returns a fresh copy of the persisted document.
func (s *Store) Context() (*models.Document, error) {
	doc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("contextstore.Context: %w", err)
	}
	return doc, nil
}

// AddMilestone appends a pending milestone to the active list.
func (s *Store) AddMilestone(description string) error {
	if strings.TrimSpace(description) == "" {
		return fmt.Errorf("contextstore.AddMilestone: %w", ErrEmptyDescription)
	}
	err := s.update(func(doc *models.Document, now time.Time) {
		doc.Development.Milestones = append(doc.Development.Milestones, models.NewMilestone(description, now))
	})
	if err != nil {
		return fmt.Errorf("contextstore.AddMilestone: %w", err)
	}
	return nil
}

// CompleteMilestone moves the first active milestone whose label equals name
// exactly into the completed list and reports whether one matched. A name with
// no match changes nothing but last_updated.
func (s *Store) CompleteMilestone(name string) (bool, error) {
	var found bool
	err := s.update(func(doc *models.Document, now time.Time) {
		active := doc.Development.Milestones
		for i := range active {
			if active[i].Label() != name {
				continue
			}
			m := active[i]
			m.Complete(now)
			doc.Development.Milestones = append(active[:i:i], active[i+1:]...)
			doc.Development.CompletedMilestones = append(doc.Development.CompletedMilestones, m)
			found = true
			return
		}
	})
	if err != nil {
		return false, fmt.Errorf("contextstore.CompleteMilestone: %w", err)
	}
	return found, nil
}

// UpdatePhase sets the current development phase.
func (s *Store) UpdatePhase(phase string) error {
	err := s.update(func(doc *models.Document, _ time.Time) {
		doc.Development.CurrentPhase = phase
	})
	if err != nil {
		return fmt.Errorf("contextstore.UpdatePhase: %w", err)
	}
	return nil
}

// ActiveMilestones returns the labels of the active milestones in stored order.
func (s *Store) ActiveMilestones() ([]string, error) {
	doc, err := s.load()
	if err != nil {
		return nil, fmt.Errorf("contextstore.ActiveMilestones: %w", err)
	}
	return doc.ActiveLabels(), nil
}

// update runs fn against the latest persisted document and writes the result.
func (s *Store) update(fn func(doc *models.Document, now time.Time)) error {
	return s.withLock(func() error {
		doc, err := s.load()
		if err != nil {
			return err
		}
		now := s.now()
		fn(doc, now)
		if now.After(doc.Project.LastUpdated.Time) {
			doc.Project.LastUpdated = models.NewTimestamp(now)
		}
		return s.write(doc)
	})
}

func (s *Store) withLock(fn func() error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.lock.acquire(s.lockTimeout); err != nil {
		if errors.Is(err, ErrLocked) {
			return err
		}
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	defer func() { _ = s.lock.release() }()
	return fn()
}

func (s *Store) exists() (bool, error) {
	_, err := os.Stat(s.path)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, os.ErrNotExist):
		return false, nil
	default:
		return false, fmt.Errorf("%w: stat %s: %w", ErrStorageUnavailable, s.path, err)
	}
}

func (s *Store) load() (*models.Document, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, s.path)
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageUnavailable, s.path, err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", ErrCorruptDocument, s.path)
	}

	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	var doc models.Document
	if err := root.Decode(&doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	if err := checkShape(&root, &doc); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorruptDocument, s.path, err)
	}
	doc.Normalize()
	return &doc, nil
}

// checkShape rejects well-formed YAML that is not a context document.
func checkShape(root *yaml.Node, doc *models.Document) error {
	if doc.Project.Name == "" {
		return errors.New("missing project.name")
	}
	top := root
	if top.Kind == yaml.DocumentNode && len(top.Content) == 1 {
		top = top.Content[0]
	}
	if dev := mappingValue(top, "development"); dev == nil || dev.Kind != yaml.MappingNode {
		return errors.New("missing development section")
	}
	return nil
}

func mappingValue(m *yaml.Node, key string) *yaml.Node {
	if m.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(m.Content); i += 2 {
		if m.Content[i].Value == key {
			return m.Content[i+1]
		}
	}
	return nil
}

func (s *Store) write(doc *models.Document) error {
	doc.Normalize()
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("encode %s: %w", s.path, err)
	}
	if err := atomicfile.WriteFile(s.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrStorageUnavailable, err)
	}
	return nil
}
