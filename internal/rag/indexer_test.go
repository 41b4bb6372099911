package rag

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

// fakeSourceStore records ReplaceSource calls and serves hashes.
type fakeSourceStore struct {
	mu       sync.Mutex
	hashes   map[string]string
	replaced []string
	contents map[string][]string
	err      error
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{
		hashes:   make(map[string]string),
		contents: make(map[string][]string),
	}
}

func (s *fakeSourceStore) SourceHash(ctx context.Context, name string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return "", s.err
	}
	return s.hashes[name], nil
}

func (s *fakeSourceStore) ReplaceSource(ctx context.Context, name, hash string, contents []string, embeddings [][]float32) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if len(contents) != len(embeddings) {
		return errors.New("contents/embeddings length mismatch")
	}
	s.hashes[name] = hash
	s.replaced = append(s.replaced, name)
	s.contents[name] = contents
	return nil
}

func newTestIndexer(store *fakeSourceStore) (*Indexer, *fakeEmbedder) {
	emb := &fakeEmbedder{vec: []float32{0.1, 0.2, 0.3}}
	return &Indexer{
		Embedder: emb,
		Store:    store,
		Chunker:  NewChunker(200, 40),
		Dim:      3,
	}, emb
}

func TestIndexDocument_NewSource(t *testing.T) {
	store := newFakeSourceStore()
	ix, _ := newTestIndexer(store)

	res, err := ix.IndexDocument(context.Background(), "faq.md", "How do I check my balance?\n\nDial *236# from your phone.")
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if res.Skipped || res.Chunks == 0 {
		t.Fatalf("unexpected result: %+v", res)
	}
	if len(store.replaced) != 1 || store.replaced[0] != "faq.md" {
		t.Fatalf("replaced = %v; want [faq.md]", store.replaced)
	}
}

func TestIndexDocument_SkipsUnchangedContent(t *testing.T) {
	store := newFakeSourceStore()
	ix, emb := newTestIndexer(store)
	ctx := context.Background()

	if _, err := ix.IndexDocument(ctx, "faq.md", "stable content"); err != nil {
		t.Fatalf("first index: %v", err)
	}
	callsAfterFirst := emb.calls

	res, err := ix.IndexDocument(ctx, "faq.md", "stable content")
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if !res.Skipped {
		t.Fatalf("unchanged content must be skipped")
	}
	if emb.calls != callsAfterFirst {
		t.Fatalf("skip must not embed; calls %d -> %d", callsAfterFirst, emb.calls)
	}
	if len(store.replaced) != 1 {
		t.Fatalf("replaced twice for unchanged content")
	}
}

func TestIndexDocument_ReplacesChangedContent(t *testing.T) {
	store := newFakeSourceStore()
	ix, _ := newTestIndexer(store)
	ctx := context.Background()

	if _, err := ix.IndexDocument(ctx, "faq.md", "version one"); err != nil {
		t.Fatalf("first index: %v", err)
	}
	res, err := ix.IndexDocument(ctx, "faq.md", "version two")
	if err != nil {
		t.Fatalf("second index: %v", err)
	}
	if res.Skipped {
		t.Fatalf("changed content must be re-indexed")
	}
	if len(store.replaced) != 2 {
		t.Fatalf("replaced = %v; want two replacements", store.replaced)
	}
	if got := store.contents["faq.md"]; len(got) != 1 || !strings.Contains(got[0], "version two") {
		t.Fatalf("stored contents = %v; want version two", got)
	}
}

func TestIndexDocument_EmptyContentSkipped(t *testing.T) {
	store := newFakeSourceStore()
	ix, emb := newTestIndexer(store)

	res, err := ix.IndexDocument(context.Background(), "empty.md", "   \n\t ")
	if err != nil {
		t.Fatalf("IndexDocument: %v", err)
	}
	if !res.Skipped || emb.calls != 0 || len(store.replaced) != 0 {
		t.Fatalf("blank content must be a no-op: %+v", res)
	}
}

func TestIndexDocument_EmbedErrorPropagates(t *testing.T) {
	store := newFakeSourceStore()
	ix, emb := newTestIndexer(store)
	emb.failN = 100 // every call fails

	_, err := ix.IndexDocument(context.Background(), "faq.md", "some content")
	if err == nil {
		t.Fatalf("expected embedding error")
	}
	if len(store.replaced) != 0 {
		t.Fatalf("failed index must not write chunks")
	}
}

func TestIndexDocument_WrongDimensionRejected(t *testing.T) {
	store := newFakeSourceStore()
	ix, emb := newTestIndexer(store)
	ix.Dim = 768
	emb.vec = []float32{0.1, 0.2, 0.3}

	_, err := ix.IndexDocument(context.Background(), "faq.md", "some content")
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected ErrDimensionMismatch, got %v", err)
	}
	if len(store.replaced) != 0 {
		t.Fatalf("mismatched vectors must not be written")
	}
}

func TestIndexDocument_StoreErrorPropagates(t *testing.T) {
	store := newFakeSourceStore()
	store.err = errors.New("db down")
	ix, _ := newTestIndexer(store)

	if _, err := ix.IndexDocument(context.Background(), "faq.md", "some content"); err == nil {
		t.Fatalf("expected store error")
	}
}

func TestIndexDirectory(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "a.md"), []byte("alpha document"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "b.md"), []byte("beta document"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := os.Mkdir(filepath.Join(dir, "nested"), 0o700); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	store := newFakeSourceStore()
	ix, _ := newTestIndexer(store)

	results, err := ix.IndexDirectory(context.Background(), dir)
	if err != nil {
		t.Fatalf("IndexDirectory: %v", err)
	}
	if len(results) != 2 {
		t.Fatalf("results = %d; want 2 (subdirectories ignored)", len(results))
	}
	if _, ok := store.hashes["a.md"]; !ok {
		t.Fatalf("a.md not indexed")
	}
	if _, ok := store.hashes["b.md"]; !ok {
		t.Fatalf("b.md not indexed")
	}
}

func TestIndexDirectory_MissingDir(t *testing.T) {
	store := newFakeSourceStore()
	ix, _ := newTestIndexer(store)

	results, err := ix.IndexDirectory(context.Background(), "/nope/definitely/missing")
	if err != nil {
		t.Fatalf("missing directory must not be an error, got %v", err)
	}
	if results != nil {
		t.Fatalf("results = %v; want nil", results)
	}
}
