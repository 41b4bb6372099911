// Package repo implements the data persistence layer for domain entities,
// backed by GORM. This file provides repository functions for the indexed
// knowledge base: document sources, their chunks, and cosine-similarity
// search over pgvector embeddings.
//
// The similarity queries use the pgvector cosine-distance operator (<=>)
// and therefore require Postgres. Consumers depend on small interfaces in
// internal/rag, so unit tests exercise the pipeline through fakes.
package repo

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"
	"gorm.io/gorm"

	"github.com/cybertechlabs/go-voice-backend/internal/domain"
)

// ScoredChunk is a document chunk paired with its cosine similarity to a
// query embedding, as computed by the database.
type ScoredChunk struct {
	Chunk      domain.DocumentChunk
	Similarity float64
}

// GetSourceByName fetches an indexed document source by its unique name.
// Returns ErrNotFound when the document was never indexed.
func GetSourceByName(ctx context.Context, db *gorm.DB, name string) (*domain.DocumentSource, error) {
	var src domain.DocumentSource
	if err := db.WithContext(ctx).Where("name = ?", name).First(&src).Error; err != nil {
		return nil, err
	}
	return &src, nil
}

// UpsertSource records (or refreshes) the content hash and chunk count of an
// indexed document, returning the stable source ID.
func UpsertSource(ctx context.Context, db *gorm.DB, name, contentHash string, chunkCount int) (*domain.DocumentSource, error) {
	now := time.Now().UTC()
	var src domain.DocumentSource
	err := db.WithContext(ctx).Where("name = ?", name).First(&src).Error
	switch {
	case err == nil:
		src.ContentHash = contentHash
		src.ChunkCount = chunkCount
		src.IndexedAt = now
		if err := db.WithContext(ctx).Save(&src).Error; err != nil {
			return nil, err
		}
		return &src, nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		src = domain.DocumentSource{
			ID:          uuid.NewString(),
			Name:        name,
			ContentHash: contentHash,
			ChunkCount:  chunkCount,
			IndexedAt:   now,
		}
		if err := db.WithContext(ctx).Create(&src).Error; err != nil {
			return nil, err
		}
		return &src, nil
	default:
		return nil, err
	}
}

// ReplaceChunks atomically swaps all chunks of a source for the given set.
// Embeddings are attached per chunk; ChunkIndex must be unique per source.
func ReplaceChunks(ctx context.Context, db *gorm.DB, sourceID, sourceName string, contents []string, embeddings []pgvector.Vector) error {
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("source_id = ?", sourceID).Delete(&domain.DocumentChunk{}).Error; err != nil {
			return err
		}
		for i := range contents {
			emb := embeddings[i]
			c := domain.DocumentChunk{
				ID:         uuid.NewString(),
				SourceID:   sourceID,
				SourceName: sourceName,
				ChunkIndex: i,
				Content:    contents[i],
				Embedding:  &emb,
			}
			if err := tx.Create(&c).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// SearchChunks returns up to limit chunks ordered by descending cosine
// similarity to the query embedding, keeping only rows at or above
// minSimilarity. Similarity is 1 - cosine distance, in [0,1] for
// normalized embeddings.
func SearchChunks(ctx context.Context, db *gorm.DB, embedding pgvector.Vector, limit int, minSimilarity float64) ([]ScoredChunk, error) {
	type row struct {
		domain.DocumentChunk
		Similarity float64
	}
	var rows []row
	err := db.WithContext(ctx).
		Model(&domain.DocumentChunk{}).
		Select("document_chunks.*, 1 - (embedding <=> ?) AS similarity", embedding).
		Where("1 - (embedding <=> ?) >= ?", embedding, minSimilarity).
		Order("similarity DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]ScoredChunk, 0, len(rows))
	for _, r := range rows {
		out = append(out, ScoredChunk{Chunk: r.DocumentChunk, Similarity: r.Similarity})
	}
	return out, nil
}

// CountChunks returns the total number of indexed chunks.
func CountChunks(ctx context.Context, db *gorm.DB) (int64, error) {
	var total int64
	err := db.WithContext(ctx).Model(&domain.DocumentChunk{}).Count(&total).Error
	return total, err
}
