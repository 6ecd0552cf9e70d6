// Package service implements the Service orchestrator that wires together
// the context store, version-control reader, text generation, the history
// journal and the notes file.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-ports/contextmgr/internal/config"
	"github.com/go-ports/contextmgr/internal/contextstore"
	"github.com/go-ports/contextmgr/internal/deps"
	"github.com/go-ports/contextmgr/internal/gitlog"
	"github.com/go-ports/contextmgr/internal/history"
	"github.com/go-ports/contextmgr/internal/llm"
	"github.com/go-ports/contextmgr/internal/models"
	"github.com/go-ports/contextmgr/internal/redaction"
)

// ErrHistoryDisabled is returned by journal queries when no journal is open.
var ErrHistoryDisabled = errors.New("history journal is disabled")

// Service orchestrates all project context operations.
type Service struct {
	Root   string
	Config *config.Config

	store    *contextstore.Store
	git      gitlog.Reader
	gen      llm.Generator
	genErr   error
	emb      llm.Embedder
	index    deps.Index
	journal  *history.DB
	redactor *redaction.Redactor
	now      func() time.Time

	vectorsOK *bool
	mu        sync.Mutex
}

// Option customises a Service.
type Option func(*settings)

type settings struct {
	git      gitlog.Reader
	gen      llm.Generator
	genSet   bool
	emb      llm.Embedder
	embSet   bool
	index    deps.Index
	now      func() time.Time
	lockWait time.Duration
}

// WithGitReader replaces the git executable reader.
func WithGitReader(r gitlog.Reader) Option {
	return func(s *settings) { s.git = r }
}

// WithGenerator replaces the configured text generator. nil disables generation.
func WithGenerator(g llm.Generator) Option {
	return func(s *settings) { s.gen, s.genSet = g, true }
}

// WithEmbedder replaces the configured embedder. nil disables semantic search.
func WithEmbedder(e llm.Embedder) Option {
	return func(s *settings) { s.emb, s.embSet = e, true }
}

// WithIndex replaces the package index used by DepsCheck.
func WithIndex(idx deps.Index) Option {
	return func(s *settings) { s.index = idx }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *settings) { s.now = now }
}

// WithLockTimeout bounds how long mutations wait for the document lock.
func WithLockTimeout(d time.Duration) Option {
	return func(s *settings) { s.lockWait = d }
}

// New opens the context store under root and the collaborators described by
// cfg. Collaborator setup failures are logged and leave that feature off.
func New(root string, cfg *config.Config, opts ...Option) (*Service, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	st := settings{now: time.Now}
	for _, o := range opts {
		o(&st)
	}

	storeOpts := []contextstore.Option{contextstore.WithClock(st.now)}
	if st.lockWait > 0 {
		storeOpts = append(storeOpts, contextstore.WithLockTimeout(st.lockWait))
	}
	store, err := contextstore.Open(root, storeOpts...)
	if err != nil {
		return nil, fmt.Errorf("service.New: %w", err)
	}

	s := &Service{
		Root:   store.Root(),
		Config: cfg,
		store:  store,
		git:    st.git,
		index:  st.index,
		now:    st.now,
	}
	if s.git == nil {
		s.git = gitlog.NewCLI()
	}

	if st.genSet {
		s.gen = st.gen
	} else if s.gen, err = llm.NewGenerator(cfg); err != nil {
		slog.Debug("text generation unavailable", "err", err)
		s.genErr = err
	}
	if st.embSet {
		s.emb = st.emb
	} else if s.emb, err = llm.NewEmbedder(cfg); err != nil {
		slog.Warn("embedding unavailable", "err", err)
	}

	if s.redactor, err = redaction.ForProject(s.Root); err != nil {
		slog.Warn("failed to load "+redaction.IgnoreFile, "err", err)
	}

	if cfg.History.Enabled {
		if s.journal, err = history.Open(filepath.Join(store.Dir(), history.FileName)); err != nil {
			slog.Warn("history journal unavailable", "err", err)
			s.journal = nil
		}
	}
	return s, nil
}

// Close releases the journal.
func (s *Service) Close() error {
	if s.journal == nil {
		return nil
	}
	return s.journal.Close()
}

// ContextPath returns the context document path.
func (s *Service) ContextPath() string { return s.store.Path() }

// ---------------------------------------------------------------------------
// Context document
// ---------------------------------------------------------------------------

// Context returns the current document.
func (s *Service) Context() (*models.Document, error) {
	return s.store.Context()
}

// Track adds milestone when it is non-empty and returns the resulting document.
func (s *Service) Track(ctx context.Context, milestone string) (*models.Document, error) {
	if milestone != "" {
		if err := s.AddMilestone(ctx, milestone); err != nil {
			return nil, err
		}
	}
	return s.store.Context()
}

// AddMilestone appends a pending milestone.
func (s *Service) AddMilestone(ctx context.Context, description string) error {
	if err := s.store.AddMilestone(description); err != nil {
		return err
	}
	s.record(ctx, models.EventMilestoneAdded, description, "")
	return nil
}

// CompleteMilestone completes the first active milestone labelled name.
// It reports whether one was found; a miss only refreshes last_updated.
func (s *Service) CompleteMilestone(ctx context.Context, name string) (bool, error) {
	found, err := s.store.CompleteMilestone(name)
	if err != nil {
		return false, err
	}
	if found {
		s.record(ctx, models.EventMilestoneCompleted, name, "")
	}
	return found, nil
}

// UpdatePhase sets the current phase.
func (s *Service) UpdatePhase(ctx context.Context, phase string) error {
	if err := s.store.UpdatePhase(phase); err != nil {
		return err
	}
	s.record(ctx, models.EventPhaseUpdated, phase, "")
	return nil
}

// Milestones lists active milestone labels, or completed ones when completed is set.
func (s *Service) Milestones(completed bool) ([]string, error) {
	if !completed {
		return s.store.ActiveMilestones()
	}
	doc, err := s.store.Context()
	if err != nil {
		return nil, err
	}
	return doc.CompletedLabels(), nil
}

// ---------------------------------------------------------------------------
// Journal
// ---------------------------------------------------------------------------

// record journals an event. Failures are logged and never returned.
func (s *Service) record(ctx context.Context, kind models.EventKind, title, body string) {
	if s.journal == nil {
		return
	}
	e := models.NewEvent(kind, filepath.Base(s.Root), s.redactor.Redact(title), s.redactor.Redact(body))
	e.CreatedAt = s.now().UTC()
	rowid, err := s.journal.Record(e)
	if err != nil {
		slog.Warn("history: record failed", "kind", kind, "err", err)
		return
	}
	s.embedEvent(ctx, rowid, e.Title+"\n"+e.Body)
}

// embedEvent stores the event vector when an embedder is configured.
func (s *Service) embedEvent(ctx context.Context, rowid int64, text string) {
	if s.emb == nil || s.Config.History.Semantic == "never" {
		return
	}
	embedding, err := s.emb.Embed(ctx, text)
	if err != nil {
		slog.Warn("history: embedding failed", "err", err)
		return
	}
	if !s.ensureVectors(embedding) {
		slog.Warn("history: vector dimension mismatch, run 'contextmgr context reindex' to rebuild")
		return
	}
	if err := s.journal.InsertVector(rowid, embedding); err != nil {
		slog.Warn("history: insert vector", "err", err)
	}
}

// ensureVectors sets up the vec table for the given embedding dimension.
// Returns false when there is a dimension mismatch.
func (s *Service) ensureVectors(embedding []float32) bool {
	if err := s.journal.EnsureVecTable(len(embedding)); err != nil {
		if !errors.Is(err, history.ErrDimensionMismatch) {
			slog.Warn("ensureVectors", "err", err)
		}
		s.setVectorsOK(false)
		return false
	}
	s.setVectorsOK(true)
	return true
}

// vectorsAvailable checks whether the vec table exists, caching the result.
func (s *Service) vectorsAvailable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.vectorsOK != nil {
		return *s.vectorsOK
	}
	ok, err := s.journal.HasVecTable()
	if err != nil {
		ok = false
	}
	s.vectorsOK = &ok
	return ok
}

func (s *Service) setVectorsOK(ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.vectorsOK = &ok
}
