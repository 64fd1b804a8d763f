// Package embed converts text into dense vector representations used for
// passage similarity search.
//
// The console embeds two kinds of text with the same model: user
// utterances at query time (one short string per outgoing message) and
// stored passages at ingestion time (batched).
//
//	e := embed.NewOpenAI("sk-xxx")
//	vec, err := e.Embed(ctx, "What is the AWP methodology?")
package embed

import (
	"context"
	"errors"
)

// Embedder converts text into dense float32 vectors.
type Embedder interface {
	// Embed returns the embedding vector for a single text.
	Embed(ctx context.Context, text string) ([]float32, error)

	// EmbedBatch returns embedding vectors for multiple texts.
	// Implementations may split large batches into smaller API calls
	// transparently.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the dimensionality of the output vectors.
	Dimension() int
}

// ErrEmptyInput is returned when the input text is empty.
var ErrEmptyInput = errors.New("embed: empty input")
