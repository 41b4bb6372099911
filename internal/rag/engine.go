// Package rag – retrieval engine
//
// This file implements Engine, the hybrid retrieval pipeline behind the
// voice agent's answers. A query is expanded (see expand.go), embedded, and
// matched against the vector store with a deliberately loose threshold to
// build a wide candidate pool. Candidates are then re-ranked by combining
// the cosine similarity with a fixed boost per keyword hit, filtered by the
// caller's acceptance threshold, and truncated to TopK.
//
// Empty results are a normal outcome and never an error; errors are
// reserved for infrastructure failures (see errors.go).
//
// Observability: public methods are OpenTelemetry-instrumented.
package rag

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// poolMultiplier widens the candidate pool relative to TopK before
// re-ranking, so keyword boosts can promote chunks the pure vector ordering
// would have cut.
const poolMultiplier = 3

// ScoredChunk is one store row with its base cosine similarity.
type ScoredChunk struct {
	Content    string
	SourceName string
	Similarity float64
}

// ChunkSearcher is the narrow store dependency of the engine.
type ChunkSearcher interface {
	Search(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]ScoredChunk, error)
}

// Embedder mirrors ai.Embedder; declared locally so the engine can be
// exercised with fakes without importing the provider package.
type Embedder interface {
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

// Result is a retrieved chunk after hybrid re-ranking.
type Result struct {
	Content     string
	SourceName  string
	BaseScore   float64
	Score       float64
	KeywordHits int
}

// Options are the retrieval tunables, normally sourced from config.
type Options struct {
	TopK              int
	PoolThreshold     float64
	ContextThreshold  float64
	SearchThreshold   float64
	KeywordBoost      float64
	BoostCap          float64
	MinBaseSimilarity float64
	ContextBudget     int
	Dim               int
}

// Engine runs expansion, embedding, and hybrid ranking over a chunk store.
type Engine struct {
	Embedder Embedder
	Store    ChunkSearcher
	Opts     Options
}

// NewEngine wires an Engine from its dependencies.
func NewEngine(embedder Embedder, store ChunkSearcher, opts Options) *Engine {
	if opts.TopK < 1 {
		opts.TopK = 3
	}
	return &Engine{Embedder: embedder, Store: store, Opts: opts}
}

// Embed produces the query embedding, retrying once on provider failure.
// A failed retry surfaces ErrEmbeddingUnavailable; a vector of the wrong
// dimension surfaces ErrDimensionMismatch. Both wrap the underlying detail.
func (e *Engine) Embed(ctx context.Context, text string) ([]float32, error) {
	tr := otel.Tracer("rag/Engine")
	ctx, span := tr.Start(ctx, "Embed")
	defer span.End()

	vec, err := e.Embedder.EmbedText(ctx, text)
	if err != nil {
		vec, err = e.Embedder.EmbedText(ctx, text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingUnavailable, err)
	}
	if e.Opts.Dim > 0 && len(vec) != e.Opts.Dim {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrDimensionMismatch, len(vec), e.Opts.Dim)
	}
	return vec, nil
}

// Search retrieves up to TopK chunks for a query using the strict search
// acceptance threshold. An empty slice with a nil error means the knowledge
// base has nothing relevant.
func (e *Engine) Search(ctx context.Context, query string) ([]Result, error) {
	return e.retrieve(ctx, query, e.Opts.SearchThreshold)
}

// Context assembles a prompt context string for a query: accepted chunks
// (using the looser context threshold) are concatenated with per-chunk
// source attribution until the character budget is exhausted. Returns ""
// when nothing clears the threshold.
func (e *Engine) Context(ctx context.Context, query string) (string, error) {
	tr := otel.Tracer("rag/Engine")
	ctx, span := tr.Start(ctx, "Context")
	defer span.End()

	results, err := e.retrieve(ctx, query, e.Opts.ContextThreshold)
	if err != nil {
		return "", err
	}
	if len(results) == 0 {
		return "", nil
	}

	budget := e.Opts.ContextBudget
	if budget <= 0 {
		budget = 6000
	}

	var b strings.Builder
	for _, r := range results {
		entry := fmt.Sprintf("[From %s (relevance: %.2f)]\n%s", r.SourceName, r.Score, r.Content)
		if b.Len() > 0 {
			if b.Len()+len(entry)+2 > budget {
				break
			}
			b.WriteString("\n\n")
		} else if len(entry) > budget {
			// Always include at least one chunk, trimmed to the budget on a
			// rune boundary so no partial UTF-8 sequence leaks into the prompt.
			entry = truncateRunes(entry, budget)
		}
		b.WriteString(entry)
	}
	return b.String(), nil
}

// truncateRunes cuts s to at most max bytes, backing off to the previous
// rune boundary instead of splitting a multibyte character.
func truncateRunes(s string, max int) string {
	if len(s) <= max {
		return s
	}
	for max > 0 && !utf8.RuneStart(s[max]) {
		max--
	}
	return s[:max]
}

// retrieve is the shared pipeline: expand, embed, pool, re-rank, accept.
func (e *Engine) retrieve(ctx context.Context, query string, acceptance float64) ([]Result, error) {
	tr := otel.Tracer("rag/Engine")
	ctx, span := tr.Start(ctx, "retrieve",
		trace.WithAttributes(attribute.Float64("rag.acceptance", acceptance)),
	)
	defer span.End()

	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}

	expanded, keywords := ExpandQuery(query)

	vec, err := e.Embed(ctx, expanded)
	if err != nil {
		return nil, err
	}

	pool, err := e.Store.Search(ctx, vec, e.Opts.TopK*poolMultiplier, e.Opts.PoolThreshold)
	if err != nil {
		return nil, fmt.Errorf("chunk search: %w", err)
	}
	span.SetAttributes(attribute.Int("rag.pool_size", len(pool)))

	results := e.rerank(pool, keywords, acceptance)
	span.SetAttributes(attribute.Int("rag.results", len(results)))
	return results, nil
}

// rerank applies the keyword boost, filters by the acceptance threshold,
// and returns the TopK best results. The sort is stable: candidates keep
// their pool order (descending base similarity) when scores tie.
func (e *Engine) rerank(pool []ScoredChunk, keywords []string, acceptance float64) []Result {
	results := make([]Result, 0, len(pool))
	for _, c := range pool {
		hits := countKeywordHits(c.Content, keywords)
		score := c.Similarity
		// Boosting below the base-similarity floor would let keyword
		// stuffing promote semantically unrelated chunks.
		if hits > 0 && c.Similarity >= e.Opts.MinBaseSimilarity {
			boost := float64(hits) * e.Opts.KeywordBoost
			if boost > e.Opts.BoostCap {
				boost = e.Opts.BoostCap
			}
			score += boost
		}
		if score < acceptance {
			continue
		}
		results = append(results, Result{
			Content:     c.Content,
			SourceName:  c.SourceName,
			BaseScore:   c.Similarity,
			Score:       score,
			KeywordHits: hits,
		})
	}

	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > e.Opts.TopK {
		results = results[:e.Opts.TopK]
	}
	return results
}

// countKeywordHits counts distinct keywords present in the chunk content
// (case-insensitive substring match, same as the store's keyword semantics).
func countKeywordHits(content string, keywords []string) int {
	if len(keywords) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, kw := range keywords {
		if strings.Contains(lower, strings.ToLower(kw)) {
			hits++
		}
	}
	return hits
}
