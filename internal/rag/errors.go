// Package rag – sentinel errors
//
// Centralized error values for the retrieval engine. Handlers and the agent
// layer match these with errors.Is to distinguish infrastructure failures
// (embedding provider down, misconfigured model) from ordinary empty
// retrieval results, which are never errors.
package rag

import "errors"

var (
	// ErrEmbeddingUnavailable indicates the embedding provider could not
	// produce a vector (network failure, provider error) after retrying.
	ErrEmbeddingUnavailable = errors.New("embedding provider unavailable")

	// ErrDimensionMismatch indicates the provider returned a vector whose
	// dimension does not match the configured store dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)
