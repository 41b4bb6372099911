// Package rag – knowledge-base indexer
//
// Chunks and embeds source documents into the vector store. A SHA-256
// content hash per source lets repeated runs skip unchanged documents; a
// changed document has its chunks replaced wholesale. Embedding requests
// run concurrently with a small bound to avoid overwhelming the provider.
package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embedding calls during indexing.
const embedConcurrency = 4

// SourceStore is the indexer's persistence dependency.
type SourceStore interface {
	SourceHash(ctx context.Context, name string) (string, error)
	ReplaceSource(ctx context.Context, name, hash string, contents []string, embeddings [][]float32) error
}

// Indexer ingests documents into the chunk store. Dim, when positive, is
// the expected embedding width; vectors of any other width are rejected
// before anything is written.
type Indexer struct {
	Embedder Embedder
	Store    SourceStore
	Chunker  *Chunker
	Dim      int
}

// IndexResult reports what IndexDocument did for one source.
type IndexResult struct {
	Source  string
	Chunks  int
	Skipped bool
}

// IndexDocument chunks, embeds, and stores one document. Unchanged content
// (same SHA-256) is skipped. Empty content removes nothing and indexes
// nothing.
func (ix *Indexer) IndexDocument(ctx context.Context, name, content string) (IndexResult, error) {
	res := IndexResult{Source: name}

	content = strings.TrimSpace(content)
	if content == "" {
		res.Skipped = true
		return res, nil
	}

	sum := sha256.Sum256([]byte(content))
	hash := hex.EncodeToString(sum[:])

	prev, err := ix.Store.SourceHash(ctx, name)
	if err != nil {
		return res, fmt.Errorf("source hash %s: %w", name, err)
	}
	if prev == hash {
		res.Skipped = true
		log.Debug().Str("component", "indexer").Str("source", name).Msg("content unchanged, skipping")
		return res, nil
	}

	chunks := ix.Chunker.Split(content)
	embeddings := make([][]float32, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)
	for i, chunk := range chunks {
		g.Go(func() error {
			vec, err := ix.Embedder.EmbedText(gctx, chunk)
			if err != nil {
				return fmt.Errorf("embed chunk %d of %s: %w", i, name, err)
			}
			if ix.Dim > 0 && len(vec) != ix.Dim {
				return fmt.Errorf("chunk %d of %s: %w: got %d, want %d",
					i, name, ErrDimensionMismatch, len(vec), ix.Dim)
			}
			embeddings[i] = vec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return res, err
	}

	if err := ix.Store.ReplaceSource(ctx, name, hash, chunks, embeddings); err != nil {
		return res, fmt.Errorf("replace source %s: %w", name, err)
	}
	res.Chunks = len(chunks)
	log.Info().Str("component", "indexer").Str("source", name).Int("chunks", len(chunks)).Msg("document indexed")
	return res, nil
}

// IndexDirectory indexes every regular file under dir (non-recursive),
// using the file name as the source name. Missing directories are not an
// error; the knowledge base is simply empty.
func (ix *Indexer) IndexDirectory(ctx context.Context, dir string) ([]IndexResult, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			log.Warn().Str("component", "indexer").Str("dir", dir).Msg("data directory missing, skipping indexing")
			return nil, nil
		}
		return nil, err
	}

	var out []IndexResult
	for _, ent := range entries {
		if ent.IsDir() {
			continue
		}
		path := filepath.Join(dir, ent.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return out, fmt.Errorf("read %s: %w", path, err)
		}
		res, err := ix.IndexDocument(ctx, ent.Name(), string(data))
		if err != nil {
			return out, err
		}
		out = append(out, res)
	}
	return out, nil
}
