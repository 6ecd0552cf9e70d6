// Package search ranks history journal events for a free-text query,
// blending keyword relevance with embedding similarity when available.
package search

import (
	"cmp"
	"context"
	"log/slog"
	"slices"
	"time"

	"github.com/go-ports/contextmgr/internal/history"
	"github.com/go-ports/contextmgr/internal/llm"
	"github.com/go-ports/contextmgr/internal/models"
)

// Semantic modes accepted by Run.
const (
	ModeAuto   = "auto"
	ModeAlways = "always"
	ModeNever  = "never"
)

// minKeywordHits is the keyword hit count at which ModeAuto skips embedding.
const minKeywordHits = 3

// Weights scale the normalised keyword and vector scores before they are summed.
type Weights struct {
	Keyword float64
	Vector  float64
}

// DefaultWeights favours semantic similarity.
var DefaultWeights = Weights{Keyword: 0.3, Vector: 0.7}

// Result is a single journal hit with a combined relevance score in [0, 1].
type Result struct {
	ID        string           `json:"id"`
	Score     float64          `json:"score"`
	Kind      models.EventKind `json:"kind"`
	Title     string           `json:"title"`
	Body      string           `json:"body,omitempty"`
	Project   string           `json:"project"`
	CreatedAt time.Time        `json:"created_at"`
}

// Source is the part of the journal a search needs.
type Source interface {
	FTSSearch(query string, limit int, kind models.EventKind) ([]history.Hit, error)
	VectorSearch(query []float32, limit int, kind models.EventKind) ([]history.Hit, error)
}

var _ Source = (*history.DB)(nil)

// Run searches src for query. Each pass fetches twice limit candidates.
//
// ModeNever, or a nil ep, ranks by keywords alone. ModeAuto adds a vector
// pass only when keywords find fewer than three events, and falls back to
// the keyword hits if that pass fails. ModeAlways always adds the vector
// pass and reports its errors.
func Run(
	ctx context.Context,
	src Source,
	ep llm.Embedder,
	mode, query string,
	limit int,
	kind models.EventKind,
) ([]Result, error) {
	keyword, err := src.FTSSearch(query, limit*2, kind)
	if err != nil {
		return nil, err
	}

	if ep == nil || mode == ModeNever || (mode != ModeAlways && len(keyword) >= minKeywordHits) {
		return Merge(keyword, nil, Weights{Keyword: 1}, limit), nil
	}

	vector, err := vectorPass(ctx, src, ep, query, limit*2, kind)
	if err != nil {
		if mode == ModeAlways {
			return nil, err
		}
		slog.Debug("search: vector pass skipped", "err", err)
		return Merge(keyword, nil, Weights{Keyword: 1}, limit), nil
	}
	return Merge(keyword, vector, DefaultWeights, limit), nil
}

func vectorPass(
	ctx context.Context,
	src Source,
	ep llm.Embedder,
	query string,
	limit int,
	kind models.EventKind,
) ([]history.Hit, error) {
	embedding, err := ep.Embed(ctx, query)
	if err != nil {
		return nil, err
	}
	return src.VectorSearch(embedding, limit, kind)
}

// Merge scales each list so its best hit scores 1, weights the lists and sums
// the scores of events present in both. Results are ordered by score, then
// newest first, and cut to limit when limit is positive.
func Merge(keyword, vector []history.Hit, w Weights, limit int) []Result {
	byID := make(map[string]*Result, len(keyword)+len(vector))
	order := make([]*Result, 0, len(keyword)+len(vector))

	add := func(hits []history.Hit, weight float64) {
		top := bestScore(hits)
		for i := range hits {
			h := &hits[i]
			score := weight * (h.Score / top)
			if r, ok := byID[h.ID]; ok {
				r.Score += score
				continue
			}
			r := &Result{
				ID:        h.ID,
				Score:     score,
				Kind:      h.Kind,
				Title:     h.Title,
				Body:      h.Body,
				Project:   h.Project,
				CreatedAt: h.CreatedAt,
			}
			byID[h.ID] = r
			order = append(order, r)
		}
	}
	add(keyword, w.Keyword)
	add(vector, w.Vector)

	slices.SortStableFunc(order, func(a, b *Result) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		return b.CreatedAt.Compare(a.CreatedAt)
	})
	if limit > 0 && len(order) > limit {
		order = order[:limit]
	}

	results := make([]Result, len(order))
	for i, r := range order {
		results[i] = *r
	}
	return results
}

// bestScore is the divisor that maps the best hit to 1. Lists without a
// positive score are left unscaled.
func bestScore(hits []history.Hit) float64 {
	top := 0.0
	for _, h := range hits {
		top = max(top, h.Score)
	}
	if top <= 0 {
		return 1
	}
	return top
}
