// Package retrieval fetches passage context for outgoing user messages.
//
// A [Bridge] combines an [embed.Embedder] with a [PassageStore]: the
// utterance is embedded, the store is queried for the most similar
// passages, and the qualifying passage texts are concatenated for
// inclusion in the wire payload.
//
// Retrieval is best-effort. Callers treat any error as "no context" and
// never block the primary conversation flow on it. Greetings skip
// retrieval entirely: [IsGreeting] is evaluated before any network call.
package retrieval

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/acolytehealth/rtconsole/pkg/embed"
)

const (
	// SimilarityThreshold is the minimum cosine similarity for a passage
	// to qualify. The comparison is strict: similarity must exceed it.
	SimilarityThreshold = 0.7

	// MaxPassages caps the number of passages returned per query.
	MaxPassages = 5

	// passageSeparator joins qualifying passage texts.
	passageSeparator = "\n\n"
)

// PassageStore performs similarity search over stored passage embeddings.
type PassageStore interface {
	// Similar returns the texts of passages whose cosine similarity to
	// the query vector strictly exceeds [SimilarityThreshold], ordered
	// by descending similarity, at most [MaxPassages] results.
	Similar(ctx context.Context, vector []float32) ([]string, error)
}

// greetingPatterns match conversational openers that carry no retrieval
// intent. Checked against the trimmed, lowercased utterance.
var greetingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^(hi|hello|hey|good morning|good afternoon|good evening|greetings)(\s|$)`),
	regexp.MustCompile(`^(how are you|what's up|wassup|sup)(\?|\s|$)`),
	regexp.MustCompile(`^(hola|bonjour|hallo|ciao)(\s|$)`),
}

// IsGreeting reports whether the utterance is a fixed-pattern greeting.
// Greetings bypass embedding and similarity search.
func IsGreeting(text string) bool {
	q := strings.ToLower(strings.TrimSpace(text))
	for _, p := range greetingPatterns {
		if p.MatchString(q) {
			return true
		}
	}
	return false
}

// Bridge retrieves passage context for user utterances.
type Bridge struct {
	embedder embed.Embedder
	store    PassageStore
}

// NewBridge creates a retrieval bridge from an explicitly constructed
// embedder and store. Neither is shared module-level state; the caller
// owns both.
func NewBridge(e embed.Embedder, s PassageStore) *Bridge {
	return &Bridge{embedder: e, store: s}
}

// Fetch returns the concatenated passage context for the utterance, or
// an empty string when no passage qualifies. Greetings return "" without
// touching the embedder or the store.
func (b *Bridge) Fetch(ctx context.Context, text string) (string, error) {
	if IsGreeting(text) {
		return "", nil
	}

	vec, err := b.embedder.Embed(ctx, text)
	if err != nil {
		return "", fmt.Errorf("retrieval: embed: %w", err)
	}

	passages, err := b.store.Similar(ctx, vec)
	if err != nil {
		return "", fmt.Errorf("retrieval: similarity search: %w", err)
	}

	return strings.Join(passages, passageSeparator), nil
}
