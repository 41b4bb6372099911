// Package rag – gorm-backed store adapter
//
// Adapts the repository free functions to the narrow interfaces the engine
// and indexer depend on, keeping those components decoupled from gorm and
// trivially fakeable in tests.
package rag

import (
	"context"
	"errors"

	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/repo"
)

// GormStore implements ChunkSearcher and SourceStore over a *gorm.DB
// (Postgres with pgvector in production).
type GormStore struct {
	DB *gorm.DB
}

// Search proxies repo.SearchChunks, converting the raw embedding to a
// pgvector value.
func (s *GormStore) Search(ctx context.Context, embedding []float32, limit int, minSimilarity float64) ([]ScoredChunk, error) {
	rows, err := repo.SearchChunks(ctx, s.DB, pgvector.NewVector(embedding), limit, minSimilarity)
	if err != nil {
		return nil, err
	}
	out := make([]ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScoredChunk{
			Content:    r.Chunk.Content,
			SourceName: r.Chunk.SourceName,
			Similarity: r.Similarity,
		})
	}
	return out, nil
}

// SourceHash returns the stored content hash for a source, or "" when the
// source was never indexed.
func (s *GormStore) SourceHash(ctx context.Context, name string) (string, error) {
	src, err := repo.GetSourceByName(ctx, s.DB, name)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", nil
		}
		return "", err
	}
	return src.ContentHash, nil
}

// ReplaceSource upserts the source record and swaps its chunks for the given
// contents/embeddings in one transaction per source.
func (s *GormStore) ReplaceSource(ctx context.Context, name, hash string, contents []string, embeddings [][]float32) error {
	src, err := repo.UpsertSource(ctx, s.DB, name, hash, len(contents))
	if err != nil {
		return err
	}
	vecs := make([]pgvector.Vector, len(embeddings))
	for i, e := range embeddings {
		vecs[i] = pgvector.NewVector(e)
	}
	return repo.ReplaceChunks(ctx, s.DB, src.ID, name, contents, vecs)
}
