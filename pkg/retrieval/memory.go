package retrieval

import (
	"context"
	"math"
	"sort"
	"sync"
)

// Memory is an in-memory [PassageStore] using brute-force cosine
// similarity. Intended for tests and single-binary runs without a
// database.
//
// It is safe for concurrent use.
type Memory struct {
	mu       sync.RWMutex
	passages []memPassage
}

type memPassage struct {
	text   string
	vector []float32
}

// NewMemory creates an empty in-memory passage store.
func NewMemory() *Memory {
	return &Memory{}
}

// Add stores a passage with its embedding vector.
func (m *Memory) Add(text string, vector []float32) {
	cp := make([]float32, len(vector))
	copy(cp, vector)
	m.mu.Lock()
	m.passages = append(m.passages, memPassage{text: text, vector: cp})
	m.mu.Unlock()
}

// Len returns the number of stored passages.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.passages)
}

// Similar implements [PassageStore]: passages with cosine similarity
// strictly above [SimilarityThreshold], descending, capped at
// [MaxPassages].
func (m *Memory) Similar(ctx context.Context, vector []float32) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	type scored struct {
		text string
		sim  float64
	}
	var results []scored
	for _, p := range m.passages {
		sim := cosineSimilarity(vector, p.vector)
		if sim > SimilarityThreshold {
			results = append(results, scored{text: p.text, sim: sim})
		}
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].sim > results[j].sim
	})
	if len(results) > MaxPassages {
		results = results[:MaxPassages]
	}

	texts := make([]string, len(results))
	for i, r := range results {
		texts[i] = r.text
	}
	return texts, nil
}

// cosineSimilarity returns a value in [-1, 1] where 1 means identical
// direction. Returns 0 if either vector has zero norm or the dimensions
// mismatch.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	// Clamp to [-1, 1] to handle floating point errors.
	if sim > 1 {
		sim = 1
	}
	if sim < -1 {
		sim = -1
	}
	return sim
}
